package coordinator

import (
	"sync"

	"github.com/dashif-labs/ssaigw/internal/store"
)

// Registry is a manager for Coordinator objects, one per channel,
// created lazily on first access. The key is the channel_id.
type Registry struct {
	mu           sync.RWMutex
	coordinators map[string]*Coordinator
	stateStore   store.StateStore
}

// NewRegistry builds a Registry backed by st for every coordinator it
// creates.
func NewRegistry(st store.StateStore) *Registry {
	return &Registry{
		coordinators: make(map[string]*Coordinator),
		stateStore:   st,
	}
}

// Get returns the Coordinator for channelID, creating one (and
// recovering any durably persisted break) on first access.
func (r *Registry) Get(channelID string) (*Coordinator, error) {
	r.mu.RLock()
	c, ok := r.coordinators[channelID]
	r.mu.RUnlock()
	if ok {
		return c, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.coordinators[channelID]; ok {
		return c, nil
	}
	c, err := New(channelID, r.stateStore)
	if err != nil {
		return nil, err
	}
	r.coordinators[channelID] = c
	return c, nil
}
