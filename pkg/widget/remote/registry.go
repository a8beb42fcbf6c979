package remote

import (
	"fmt"
	"sync"

	"github.com/embedmeet/embedmeet/pkg/widget"
)

// Registry tracks the currently connected page agent and exposes it as
// a widget.Environment and widget.Factory. Controllers hold the
// registry, not a bridge, so page reconnects swap the backing bridge
// without rewiring sessions. With no page attached the environment
// reports nothing available and widget creation fails.
type Registry struct {
	mu     sync.RWMutex
	bridge *Bridge
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Attach makes b the active bridge, replacing any previous one.
func (r *Registry) Attach(b *Bridge) {
	r.mu.Lock()
	r.bridge = b
	r.mu.Unlock()
}

// Detach clears b if it is still the active bridge. A bridge replaced
// by a newer Attach is left alone.
func (r *Registry) Detach(b *Bridge) {
	r.mu.Lock()
	if r.bridge == b {
		r.bridge = nil
	}
	r.mu.Unlock()
}

// Current returns the active bridge, or nil when no page is connected.
func (r *Registry) Current() *Bridge {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bridge
}

func (r *Registry) SecureContext() bool {
	b := r.Current()
	return b != nil && b.SecureContext()
}

func (r *Registry) FactoryPresent(domain string) bool {
	b := r.Current()
	return b != nil && b.FactoryPresent(domain)
}

func (r *Registry) InjectScript(url string) error {
	b := r.Current()
	if b == nil {
		return fmt.Errorf("no page agent connected")
	}
	return b.InjectScript(url)
}

func (r *Registry) ContainerAvailable(id string) bool {
	b := r.Current()
	return b != nil && b.ContainerAvailable(id)
}

func (r *Registry) Create(domain string, cfg widget.Config) (widget.Handle, error) {
	b := r.Current()
	if b == nil {
		return nil, fmt.Errorf("no page agent connected")
	}
	return b.Create(domain, cfg)
}
