// Package worker runs the gateway's long-lived tasks under one lifetime:
// HTTP listeners and periodic maintenance loops.
package worker

import "context"

// Worker is a long-running background task.
type Worker interface {
	// Run blocks until ctx is cancelled or an unrecoverable error occurs.
	Run(ctx context.Context) error
}

// Named lets a worker report a stable name for logs.
type Named interface {
	Name() string
}

// Func adapts a plain function to Worker.
type Func struct {
	name string
	fn   func(ctx context.Context) error
}

// NewFunc wraps fn as a Worker called name.
func NewFunc(name string, fn func(ctx context.Context) error) *Func {
	return &Func{name: name, fn: fn}
}

// Run calls the wrapped function.
func (f *Func) Run(ctx context.Context) error { return f.fn(ctx) }

// Name returns the worker name.
func (f *Func) Name() string { return f.name }
