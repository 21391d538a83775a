package adplatform

import (
	"fmt"
	"sync"

	"github.com/autosem/autosem-backend/internal/types"
)

type Registry struct {
	mu      sync.RWMutex
	clients map[types.Platform]Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[types.Platform]Client)}
}

func (r *Registry) Register(c Client) error {
	if c == nil {
		return fmt.Errorf("nil client")
	}
	p := c.Platform()
	if p == "" {
		return fmt.Errorf("client Platform() is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.clients[p]; exists {
		return fmt.Errorf("client already registered for platform=%s", p)
	}
	r.clients[p] = c
	return nil
}

func (r *Registry) Get(platform types.Platform) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[platform]
	return c, ok
}

func (r *Registry) Platforms() []types.Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Platform, 0, len(r.clients))
	for p := range r.clients {
		out = append(out, p)
	}
	return out
}
