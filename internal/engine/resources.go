package engine

import "sync"

// resourceRegistry tracks store-owned resources (polling loops, user
// registrations) by key so Close can dispose them deterministically.
type resourceRegistry struct {
	mu        sync.Mutex
	closed    bool
	disposers map[string]func()
}

func newResourceRegistry() *resourceRegistry {
	return &resourceRegistry{disposers: make(map[string]func())}
}

// register adds a disposer under key. It reports false without registering
// if the key is already taken or the registry is closed; the caller is then
// responsible for releasing whatever it was about to register.
func (r *resourceRegistry) register(key string, dispose func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	if _, exists := r.disposers[key]; exists {
		return false
	}
	r.disposers[key] = dispose
	return true
}

// dispose runs and removes the disposer for key, if any.
func (r *resourceRegistry) dispose(key string) {
	r.mu.Lock()
	d := r.disposers[key]
	delete(r.disposers, key)
	r.mu.Unlock()
	if d != nil {
		d()
	}
}

// disposeAll runs every disposer and marks the registry closed. It is
// idempotent.
func (r *resourceRegistry) disposeAll() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	disposers := r.disposers
	r.disposers = make(map[string]func())
	r.mu.Unlock()

	for _, d := range disposers {
		d()
	}
}
