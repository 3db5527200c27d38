package sandbox

import (
	"context"
	"sync"
	"time"
)

// LocalBackend is an in-process stand-in for a real isolation backend. It
// provisions handles that accept code and return a canned result without
// executing anything. Used for development and tests; production deploys
// supply a Backend talking to an actual sandbox provider.
type LocalBackend struct {
	mu      sync.Mutex
	created int
}

func NewLocalBackend() *LocalBackend {
	return &LocalBackend{}
}

func (b *LocalBackend) Create(_ context.Context, _ time.Duration) (Handle, error) {
	b.mu.Lock()
	b.created++
	n := b.created
	b.mu.Unlock()
	return &localHandle{seq: n}, nil
}

// Created reports how many handles have been provisioned.
func (b *LocalBackend) Created() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.created
}

type localHandle struct {
	mu     sync.Mutex
	seq    int
	closed bool
	ran    []string
}

func (h *localHandle) Run(_ context.Context, code string) (*RunOutput, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ran = append(h.ran, code)
	return &RunOutput{
		Logs:   []string{"local backend: code accepted, not executed"},
		Result: map[string]any{"accepted": true, "bytes": len(code)},
	}, nil
}

func (h *localHandle) Close(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}
