// Package module defines the contract every loadable unit satisfies and the
// descriptor that tracks one unit's lifecycle through the load pipeline.
package module

import "context"

// Module is the minimal contract a loadable unit presents to the rest of the
// application. Anything placed into the registry satisfies it.
type Module interface {
	// Initialize prepares the module for use. It is called at most once per
	// session, after the module has been resolved.
	Initialize(ctx context.Context) error
}

// Initializable is optionally implemented by modules that can report whether
// Initialize has already run.
type Initializable interface {
	IsInitialized() bool
}

// Cleaner is optionally implemented by modules that hold resources needing
// release at shutdown.
type Cleaner interface {
	Cleanup()
}

// Degraded is implemented by fallback stand-ins so dependents and diagnostics
// can distinguish degraded behavior from the genuine implementation.
type Degraded interface {
	Degraded() bool
}

// IsFallback reports whether m is a degraded stand-in rather than a real
// implementation.
func IsFallback(m Module) bool {
	d, ok := m.(Degraded)
	return ok && d.Degraded()
}

// Func adapts a bare function into a Module with that function as its
// Initialize step.
type Func func(ctx context.Context) error

// Initialize implements Module.
func (f Func) Initialize(ctx context.Context) error {
	if f == nil {
		return nil
	}
	return f(ctx)
}
