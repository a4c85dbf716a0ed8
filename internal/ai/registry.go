package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Factory builds a Gateway for one model of a vendor.
type Factory func(ctx context.Context, model string) (Gateway, error)

// Registry maps vendor names to gateway factories and memoizes the built
// gateways, so each (vendor, model) pair is constructed once and its HTTP
// client is shared across requests.
type Registry struct {
	mu       sync.RWMutex
	vendors  map[string]Factory
	gateways map[string]Gateway
}

func NewRegistry() *Registry {
	return &Registry{
		vendors:  make(map[string]Factory),
		gateways: make(map[string]Gateway),
	}
}

func (r *Registry) Register(vendor string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vendors[vendorKey(vendor)] = f
}

// Resolve returns the gateway for (vendor, model), building it on first use.
func (r *Registry) Resolve(ctx context.Context, vendor, model string) (Gateway, error) {
	key := vendorKey(vendor) + "/" + model

	r.mu.RLock()
	gw, cached := r.gateways[key]
	f, known := r.vendors[vendorKey(vendor)]
	r.mu.RUnlock()
	if cached {
		return gw, nil
	}
	if !known {
		return nil, fmt.Errorf("unknown ai vendor: %s", vendor)
	}

	gw, err := f(ctx, model)
	if err != nil {
		return nil, fmt.Errorf("build %s gateway: %w", vendor, err)
	}

	r.mu.Lock()
	// Another request may have built it concurrently; keep the first.
	if prior, ok := r.gateways[key]; ok {
		gw = prior
	} else {
		r.gateways[key] = gw
	}
	r.mu.Unlock()
	return gw, nil
}

func vendorKey(vendor string) string {
	return strings.ToLower(strings.TrimSpace(vendor))
}
