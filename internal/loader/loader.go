// Package loader performs single-module fetch/evaluate operations with a
// timeout bound and a bounded retry/backoff policy.
package loader

import (
	"context"
	"errors"
	"time"

	"github.com/vk/modboot/internal/ctxlog"
	"github.com/vk/modboot/internal/module"
)

// Source produces the implementation of a module. A Source is expected to
// honor ctx cancellation but is not required to: the loader races every fetch
// against its own deadline and abandons sources that overrun it.
type Source interface {
	Fetch(ctx context.Context, id string) (module.Module, error)
}

// SourceFunc adapts a function into a Source.
type SourceFunc func(ctx context.Context, id string) (module.Module, error)

// Fetch implements Source.
func (f SourceFunc) Fetch(ctx context.Context, id string) (module.Module, error) {
	return f(ctx, id)
}

// Options bound a single load operation.
type Options struct {
	Timeout           time.Duration
	MaxRetries        int
	BackoffBase       time.Duration
	BackoffMultiplier float64
	BackoffMax        time.Duration
}

// DefaultOptions mirror the tuning the surrounding application ships with.
func DefaultOptions() Options {
	return Options{
		Timeout:           10 * time.Second,
		MaxRetries:        3,
		BackoffBase:       250 * time.Millisecond,
		BackoffMultiplier: 2,
		BackoffMax:        5 * time.Second,
	}
}

func (o Options) normalized() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultOptions().Timeout
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = DefaultOptions().BackoffBase
	}
	if o.BackoffMultiplier < 1 {
		o.BackoffMultiplier = 1
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = DefaultOptions().BackoffMax
	}
	return o
}

// Loader executes fetch/evaluate operations for individual modules.
type Loader struct {
	opts Options

	// late, when set, receives results that arrive after the loader has
	// already abandoned the attempt as timed out. The orchestrator uses it
	// to fill still-empty registry slots.
	late func(id string, m module.Module)
}

// New creates a Loader with the given default options.
func New(opts Options) *Loader {
	return &Loader{opts: opts.normalized()}
}

// OnLateResult registers the handler for post-timeout successful results.
// Must be called before any Load.
func (l *Loader) OnLateResult(fn func(id string, m module.Module)) {
	l.late = fn
}

// fetchResult carries a source's answer across the timeout race.
type fetchResult struct {
	mod module.Module
	err error
}

// Load fetches and validates one module, retrying retryable failures with
// capped exponential backoff. Attempt bookkeeping is recorded on the
// descriptor regardless of outcome.
func (l *Loader) Load(ctx context.Context, desc *module.Descriptor, source Source, opts *Options) (module.Module, error) {
	logger := ctxlog.FromContext(ctx).With("moduleID", desc.ID)
	o := l.opts
	if opts != nil {
		o = opts.normalized()
	}

	desc.SetState(module.StateLoading)
	start := time.Now()
	backoff := o.BackoffBase

	var lastErr error
	retries := 0
	for attempt := 0; ; attempt++ {
		mod, err := l.attempt(ctx, desc.ID, source, o.Timeout)
		if err == nil {
			desc.RecordAttempt(retries, time.Since(start), nil)
			logger.Debug("Module load succeeded.", "attempt", attempt+1, "duration", time.Since(start))
			return mod, nil
		}

		lastErr = err
		kind, _ := KindOf(err)
		if !kind.Retryable() || attempt >= o.MaxRetries || ctx.Err() != nil {
			break
		}

		retries++
		logger.Warn("Module load attempt failed, retrying.",
			"attempt", attempt+1, "kind", kind.String(), "backoff", backoff, "error", err)
		select {
		case <-ctx.Done():
			lastErr = NewError(KindFetch, desc.ID, ctx.Err())
		case <-time.After(backoff):
		}
		if ctx.Err() != nil {
			break
		}
		backoff = time.Duration(float64(backoff) * o.BackoffMultiplier)
		if backoff > o.BackoffMax {
			backoff = o.BackoffMax
		}
	}

	desc.RecordAttempt(retries, time.Since(start), lastErr)
	logger.Error("Module load failed terminally.", "retries", retries, "error", lastErr)
	return nil, lastErr
}

// attempt races one fetch against the timeout. A fetch that overruns the
// deadline is abandoned, not interrupted; if it later succeeds anyway, the
// result is handed to the late-result handler.
func (l *Loader) attempt(ctx context.Context, id string, source Source, timeout time.Duration) (module.Module, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)

	// done is unbuffered so the send succeeds only while the racing select
	// below is still listening. Once the attempt is abandoned, the fetch
	// goroutine falls through to the late-result path instead.
	done := make(chan fetchResult)
	go func() {
		mod, err := source.Fetch(attemptCtx, id)
		if err == nil {
			if checkErr := checkContract(id, mod); checkErr != nil {
				err = checkErr
				mod = nil
			}
		}
		select {
		case done <- fetchResult{mod: mod, err: err}:
		default:
			// The attempt already timed out and nobody is listening.
			cancel()
			if err == nil && l.late != nil {
				l.late(id, mod)
			}
		}
	}()

	select {
	case res := <-done:
		cancel()
		if res.err != nil {
			return nil, classify(id, res.err)
		}
		return res.mod, nil
	case <-attemptCtx.Done():
		// Leave cancel to the fetch goroutine so a late result can still
		// complete and be reported.
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, NewError(KindTimeout, id, attemptCtx.Err())
		}
		cancel()
		return nil, NewError(KindFetch, id, ctx.Err())
	}
}

// checkContract rejects resolved values that do not satisfy the module
// contract. A nil module is the Go analogue of a dependent observing
// undefined.
func checkContract(id string, m module.Module) error {
	if m == nil {
		return NewError(KindContract, id, errors.New("source returned nil module"))
	}
	return nil
}

// classify ensures every surfaced error carries a Kind.
func classify(id string, err error) error {
	var le *Error
	if errors.As(err, &le) {
		return err
	}
	return NewError(KindFetch, id, err)
}
