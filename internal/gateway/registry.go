package gateway

import (
	"sync"

	"github.com/Alexandru89754/TestPV-V2/internal/session"
)

// Registry lazily creates and caches one session manager per identity.
type Registry struct {
	mu       sync.Mutex
	managers map[string]*managed
	create   func(identity string, sink session.Sink) (*session.Manager, error)
}

type managed struct {
	manager *session.Manager
	sink    *fanoutSink
}

// NewRegistry creates a registry. create builds a manager bound to the
// given sink; the registry initializes it on first use.
func NewRegistry(create func(identity string, sink session.Sink) (*session.Manager, error)) *Registry {
	return &Registry{
		managers: make(map[string]*managed),
		create:   create,
	}
}

// Get returns the manager and fanout sink for identity, creating and
// initializing them on first use.
func (r *Registry) Get(identity string) (*session.Manager, *fanoutSink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.managers[identity]; ok {
		return m.manager, m.sink, nil
	}

	sink := newFanoutSink()
	mgr, err := r.create(identity, sink)
	if err != nil {
		return nil, nil, err
	}
	if err := mgr.Initialize(); err != nil {
		return nil, nil, err
	}
	r.managers[identity] = &managed{manager: mgr, sink: sink}
	return mgr, sink, nil
}

// Drop forgets the manager for identity, e.g. after logout.
func (r *Registry) Drop(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.managers, identity)
}
