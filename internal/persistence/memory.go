package persistence

import (
	"context"
	"sync"

	"github.com/reduxgo/redux/pkg/api"
)

// MemoryPersistor is a goroutine-safe in-memory Persistor, intended for
// tests and development. The snapshot goes through the gob codec so that
// encodability problems surface just like with the durable backends.
type MemoryPersistor[S any] struct {
	mu       sync.RWMutex
	snapshot []byte
}

var _ api.Persistor[int] = (*MemoryPersistor[int])(nil)

// NewMemoryPersistor creates an empty MemoryPersistor.
func NewMemoryPersistor[S any]() *MemoryPersistor[S] {
	return &MemoryPersistor[S]{}
}

func (p *MemoryPersistor[S]) ReadState(ctx context.Context) (S, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var zero S
	if p.snapshot == nil {
		return zero, false, nil
	}
	state, err := decodeState[S](p.snapshot)
	if err != nil {
		return zero, false, err
	}
	return state, true, nil
}

func (p *MemoryPersistor[S]) PersistState(ctx context.Context, state S) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshot = data
	return nil
}

func (p *MemoryPersistor[S]) DeleteState(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshot = nil
	return nil
}
