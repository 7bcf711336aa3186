// Package adapters looks up the Adapter for a scheduling platform. The
// platform clients live in the acuity and square subpackages.
package adapters

import (
	"sort"

	"retention_backend/internal/booking/domain"
	"retention_backend/platform/apperr"
)

// Registry maps platforms to adapters.
type Registry struct {
	byPlatform map[domain.Platform]domain.Adapter
}

// NewRegistry indexes the given adapters by their platform.
func NewRegistry(adapters ...domain.Adapter) *Registry {
	r := &Registry{byPlatform: make(map[domain.Platform]domain.Adapter, len(adapters))}
	for _, a := range adapters {
		r.byPlatform[a.Platform()] = a
	}
	return r
}

// Get returns the adapter for platform.
func (r *Registry) Get(platform domain.Platform) (domain.Adapter, error) {
	a, ok := r.byPlatform[platform]
	if !ok {
		return nil, apperr.BadRequest("unsupported platform: " + string(platform))
	}
	return a, nil
}

// Platforms lists the registered platforms in name order.
func (r *Registry) Platforms() []domain.Platform {
	out := make([]domain.Platform, 0, len(r.byPlatform))
	for p := range r.byPlatform {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
