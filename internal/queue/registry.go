package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/toolscheap/toolscheap/internal/job"
)

// HandlerFunc processes one job. Returning nil means the work finished and
// the handler has already recorded the result on the job; returning an error
// schedules a retry unless the error is Permanent.
type HandlerFunc func(ctx context.Context, j *job.Job) error

// Middleware wraps a handler with cross-cutting behavior.
type Middleware func(next HandlerFunc) HandlerFunc

// Registry maps tool types to their handlers.
type Registry struct {
	mu         sync.RWMutex
	handlers   map[job.ToolType]HandlerFunc
	middleware []Middleware
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[job.ToolType]HandlerFunc)}
}

// Use appends middleware applied to every handler. Middleware runs in the
// order it was added, outermost first.
func (r *Registry) Use(mw ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, mw...)
}

// Register binds a handler to a tool. Registering the same tool twice is a
// programming error and panics at startup.
func (r *Registry) Register(tool job.ToolType, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[tool]; exists {
		panic(fmt.Sprintf("queue: handler already registered for %s", tool))
	}
	r.handlers[tool] = h
}

// Resolve returns the handler for tool with the registry middleware applied.
func (r *Registry) Resolve(tool job.ToolType) (HandlerFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[tool]
	if !ok {
		return nil, fmt.Errorf("queue: no handler registered for %s", tool)
	}
	for i := len(r.middleware) - 1; i >= 0; i-- {
		h = r.middleware[i](h)
	}
	return h, nil
}

// Tools lists the registered tool types.
func (r *Registry) Tools() []job.ToolType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]job.ToolType, 0, len(r.handlers))
	for t := range r.handlers {
		tools = append(tools, t)
	}
	return tools
}
