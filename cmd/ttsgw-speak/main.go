// ttsgw-speak is a small client for exercising a running gateway: it
// creates a session over HTTP, requests the stream over NATS, and writes
// the received audio to a WAV file.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/loqalabs/loqa-tts-gateway/internal/audio"
	"github.com/loqalabs/loqa-tts-gateway/internal/protocol"
	"github.com/nats-io/nats.go"
)

var version = "0.1.0-dev"

func main() {
	speakCmd := flag.NewFlagSet("speak", flag.ExitOnError)
	apiURL := speakCmd.String("api", "http://localhost:8080", "Gateway HTTP base URL")
	natsURL := speakCmd.String("nats", nats.DefaultURL, "NATS server URL")
	providerID := speakCmd.String("provider", "mock_tone", "Synthesis provider")
	voice := speakCmd.String("voice", "", "Voice id")
	text := speakCmd.String("text", "", "Text to synthesize")
	sampleRate := speakCmd.Int("rate", 16000, "Output sample rate")
	outPath := speakCmd.String("out", "out.wav", "Output WAV file")
	timeout := speakCmd.Duration("timeout", 30*time.Second, "Overall stream timeout")

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "expected 'speak' or 'version'")
		os.Exit(2)
	}

	switch os.Args[1] {
	case "speak":
		speakCmd.Parse(os.Args[2:])
		if err := runSpeak(*apiURL, *natsURL, *providerID, *voice, *text, *sampleRate, *outPath, *timeout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
}

func runSpeak(apiURL, natsURL, providerID, voice, text string, sampleRate int, outPath string, timeout time.Duration) error {
	if text == "" {
		return fmt.Errorf("-text is required")
	}

	sessionID, err := createSession(apiURL, providerID, voice, text, sampleRate)
	if err != nil {
		return err
	}
	fmt.Printf("session %s created\n", sessionID)

	conn, err := nats.Connect(natsURL, nats.Name("ttsgw-speak"))
	if err != nil {
		return fmt.Errorf("connect to nats: %w", err)
	}
	defer conn.Close()

	inbox := make(chan *nats.Msg, 64)
	sub, err := conn.ChanSubscribe(protocol.AudioSubject(sessionID), inbox)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	start, err := json.Marshal(protocol.StreamRequest{SessionID: sessionID, Timestamp: time.Now().UTC()})
	if err != nil {
		return err
	}
	if err := conn.Publish(protocol.SubjectStreamStart, start); err != nil {
		return fmt.Errorf("publish stream request: %w", err)
	}

	pcm, err := collectAudio(inbox, timeout)
	if err != nil {
		return err
	}

	if err := writeWAV(outPath, pcm, sampleRate); err != nil {
		return err
	}
	fmt.Printf("wrote %d bytes of audio to %s\n", len(pcm), outPath)
	return nil
}

func createSession(apiURL, providerID, voice, text string, sampleRate int) (string, error) {
	reqBody, err := json.Marshal(map[string]any{
		"provider":    providerID,
		"voice":       voice,
		"text":        text,
		"format":      "pcm16",
		"sample_rate": sampleRate,
	})
	if err != nil {
		return "", err
	}

	resp, err := http.Post(apiURL+"/v1/tts/sessions", "application/json", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return "", fmt.Errorf("create session: status %d: %s", resp.StatusCode, apiErr.Error)
	}

	var created struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decode session response: %w", err)
	}
	return created.SessionID, nil
}

func collectAudio(inbox <-chan *nats.Msg, timeout time.Duration) ([]byte, error) {
	deadline := time.After(timeout)
	var pcm []byte
	for {
		select {
		case msg := <-inbox:
			var envelope struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(msg.Data, &envelope); err != nil {
				return nil, fmt.Errorf("decode frame: %w", err)
			}
			switch envelope.Type {
			case protocol.MessageTypeAudio:
				var chunk protocol.AudioChunkMessage
				if err := json.Unmarshal(msg.Data, &chunk); err != nil {
					return nil, fmt.Errorf("decode audio frame: %w", err)
				}
				pcm = append(pcm, chunk.Data...)
			case protocol.MessageTypeEndOfStream:
				return pcm, nil
			case protocol.MessageTypeError:
				var streamErr protocol.ErrorMessage
				if err := json.Unmarshal(msg.Data, &streamErr); err != nil {
					return nil, fmt.Errorf("decode error frame: %w", err)
				}
				return nil, fmt.Errorf("stream failed: %d %s", streamErr.Code, streamErr.Message)
			}
		case <-deadline:
			return nil, fmt.Errorf("timed out after %s waiting for audio", timeout)
		}
	}
}

func writeWAV(path string, pcm []byte, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	header := audio.WAVHeader(len(pcm)/2, sampleRate, 1, 16)
	if _, err := f.Write(header); err != nil {
		return err
	}
	_, err = f.Write(pcm)
	return err
}
