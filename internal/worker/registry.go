package worker

import (
	"slices"

	"github.com/cuongbtq/connector-worker/internal/connector"
)

// Registry maps job types to the handlers that run them
type Registry struct {
	base     connector.HandlerConfig
	handlers map[string]*connector.Handler
	fallback *connector.Handler
}

// NewRegistry creates a registry whose handlers share base's collaborators
func NewRegistry(base *connector.HandlerConfig) *Registry {
	fallback := *base
	fallback.Function = nil
	return &Registry{
		base:     *base,
		handlers: make(map[string]*connector.Handler),
		fallback: connector.NewHandler(&fallback),
	}
}

// Register binds fn to jobType, replacing any earlier binding
func (r *Registry) Register(jobType string, fn connector.Function) {
	cfg := r.base
	cfg.Function = fn
	r.handlers[jobType] = connector.NewHandler(&cfg)
}

// Lookup returns the handler for jobType.
// Unknown types get a handler without a function, which fails the job.
func (r *Registry) Lookup(jobType string) *connector.Handler {
	if h, ok := r.handlers[jobType]; ok {
		return h
	}
	return r.fallback
}

// Types lists the registered job types
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}
