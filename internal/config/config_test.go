package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.RateLimit.MaxRequestsPerWindow != 10 || cfg.RateLimit.WindowSeconds != 60 {
		t.Fatalf("unexpected rate limit defaults: %+v", cfg.RateLimit)
	}
	if cfg.Breaker.FailureThreshold != 5 || cfg.Breaker.ResetTimeoutSeconds != 30 {
		t.Fatalf("unexpected breaker defaults: %+v", cfg.Breaker)
	}
	if cfg.Queue.MaxSize != 16 || cfg.Queue.WorkerCount != 4 {
		t.Fatalf("unexpected queue defaults: %+v", cfg.Queue)
	}
	if cfg.Stream.MaxAttempts != 2 {
		t.Fatalf("unexpected stream defaults: %+v", cfg.Stream)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TTSGW_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("TTSGW_BUS_USERNAME", "alice")
	t.Setenv("TTSGW_BUS_PASSWORD", "secret")
	t.Setenv("TTSGW_RATE_LIMIT_MAX_REQUESTS_PER_WINDOW", "3")
	t.Setenv("TTSGW_RATE_LIMIT_WINDOW_SECONDS", "10")
	t.Setenv("TTSGW_CIRCUIT_BREAKER_FAILURE_THRESHOLD", "2")
	t.Setenv("TTSGW_CIRCUIT_BREAKER_RESET_TIMEOUT_SECONDS", "7")
	t.Setenv("TTSGW_QUEUE_MAX_SIZE", "1")
	t.Setenv("TTSGW_QUEUE_WORKER_COUNT", "0")
	t.Setenv("TTSGW_STREAM_CHUNK_TIMEOUT_SECONDS", "0.5")
	t.Setenv("TTSGW_STREAM_MAX_ATTEMPTS", "3")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if cfg.RateLimit.MaxRequestsPerWindow != 3 || cfg.RateLimit.WindowSeconds != 10 {
		t.Fatalf("expected rate limit override, got %+v", cfg.RateLimit)
	}
	if cfg.Breaker.FailureThreshold != 2 || cfg.Breaker.ResetTimeoutSeconds != 7 {
		t.Fatalf("expected breaker override, got %+v", cfg.Breaker)
	}
	if cfg.Queue.MaxSize != 1 || cfg.Queue.WorkerCount != 0 {
		t.Fatalf("expected queue override, got %+v", cfg.Queue)
	}
	if cfg.Stream.ChunkTimeoutSeconds != 0.5 {
		t.Fatalf("expected chunk timeout override, got %v", cfg.Stream.ChunkTimeoutSeconds)
	}
	if cfg.Stream.MaxAttempts != 3 {
		t.Fatalf("expected max attempts override, got %d", cfg.Stream.MaxAttempts)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("TTSGW_QUEUE_MAX_SIZE", "0")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for queue.max_size=0")
	}
}
