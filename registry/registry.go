package registry

import (
	"sync"
	"time"
)

// Registry tracks live connections and their join time. Unregister
// doubles as the once-only gate for disconnect reconciliation: the
// first call for an id wins, later calls report known=false.
type Registry struct {
	mx       *sync.Mutex
	sessions map[string]time.Time
	now      func() time.Time
}

func New() *Registry {
	return &Registry{
		mx:       &sync.Mutex{},
		sessions: make(map[string]time.Time),
		now:      time.Now,
	}
}

func (r *Registry) Register(id string) {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.sessions[id] = r.now()
}

// Unregister removes the record and returns the elapsed session
// duration. Unknown ids are a no-op.
func (r *Registry) Unregister(id string) (time.Duration, bool) {
	r.mx.Lock()
	defer r.mx.Unlock()

	joined, ok := r.sessions[id]
	if !ok {
		return 0, false
	}
	delete(r.sessions, id)
	return r.now().Sub(joined), true
}

func (r *Registry) Len() int {
	r.mx.Lock()
	defer r.mx.Unlock()
	return len(r.sessions)
}
