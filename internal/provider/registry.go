package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownProvider is returned when no backend carries the requested id.
var ErrUnknownProvider = errors.New("unknown provider")

// Registry maps provider ids to backends.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

func NewRegistry(backends ...Backend) *Registry {
	r := &Registry{backends: make(map[string]Backend)}
	for _, b := range backends {
		r.backends[b.ID()] = b
	}
	return r
}

// Register adds or replaces a backend.
func (r *Registry) Register(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[b.ID()] = b
}

// Get resolves a backend by id.
func (r *Registry) Get(id string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, id)
	}
	return b, nil
}

// List returns all registered backends ordered by id.
func (r *Registry) List() []Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Backend, 0, len(r.backends))
	for _, b := range r.backends {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// ListAllVoices aggregates the voices of every backend.
func (r *Registry) ListAllVoices(ctx context.Context) ([]Voice, error) {
	var voices []Voice
	for _, b := range r.List() {
		vs, err := b.ListVoices(ctx)
		if err != nil {
			return nil, fmt.Errorf("list voices for %q: %w", b.ID(), err)
		}
		voices = append(voices, vs...)
	}
	return voices, nil
}
