// Package platform defines the adapter boundary between the execution engine
// and the external AI chat services it queries. The engine treats every
// platform uniformly through the Adapter interface; authentication, retries,
// and vendor error mapping live inside each adapter.
package platform

import (
	"context"
	"sort"
)

type Response struct {
	Content string
}

type Adapter interface {
	Send(ctx context.Context, prompt string) (Response, error)
}

// Func adapts a plain function into an Adapter. Tests use it to script
// platform behavior.
type Func func(ctx context.Context, prompt string) (Response, error)

func (f Func) Send(ctx context.Context, prompt string) (Response, error) {
	return f(ctx, prompt)
}

// Registry maps platform identifiers to adapters. It is assembled once at
// startup and read-only afterwards.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

func (r *Registry) Register(platform string, adapter Adapter) {
	r.adapters[platform] = adapter
}

func (r *Registry) Get(platform string) (Adapter, bool) {
	a, ok := r.adapters[platform]
	return a, ok
}

func (r *Registry) Known(platform string) bool {
	_, ok := r.adapters[platform]
	return ok
}

// Platforms returns the registered identifiers in sorted order.
func (r *Registry) Platforms() []string {
	platforms := make([]string, 0, len(r.adapters))
	for p := range r.adapters {
		platforms = append(platforms, p)
	}
	sort.Strings(platforms)

	return platforms
}
