package loader_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/modboot/internal/loader"
	"github.com/vk/modboot/internal/module"
	"github.com/vk/modboot/internal/testutil"
)

// fastOptions keep retry loops tight so tests do not wait on real backoff.
func fastOptions() loader.Options {
	return loader.Options{
		Timeout:           time.Second,
		MaxRetries:        3,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 2,
		BackoffMax:        5 * time.Millisecond,
	}
}

func TestLoad_Success(t *testing.T) {
	l := loader.New(fastOptions())
	desc := module.NewDescriptor("feature/a", module.CategoryFeature, nil)
	src := testutil.NewCountingSource()

	mod, err := l.Load(context.Background(), desc, src, nil)

	require.NoError(t, err)
	require.NotNil(t, mod)
	assert.Equal(t, 1, src.Count("feature/a"))
	assert.Equal(t, 0, desc.RetryCount())
	assert.NoError(t, desc.LastError())
}

func TestLoad_RetriesTransientFailures(t *testing.T) {
	l := loader.New(fastOptions())
	desc := module.NewDescriptor("feature/a", module.CategoryFeature, nil)
	src := testutil.NewFlakySource(2)

	mod, err := l.Load(context.Background(), desc, src, nil)

	require.NoError(t, err)
	require.NotNil(t, mod)
	assert.Equal(t, 3, src.Attempts("feature/a"))
	assert.Equal(t, 2, desc.RetryCount())
}

func TestLoad_ExhaustsRetryBudget(t *testing.T) {
	opts := fastOptions()
	opts.MaxRetries = 2
	l := loader.New(opts)
	desc := module.NewDescriptor("feature/a", module.CategoryFeature, nil)
	src := testutil.NewFlakySource(10)

	_, err := l.Load(context.Background(), desc, src, nil)

	require.Error(t, err)
	// Initial attempt plus two retries.
	assert.Equal(t, 3, src.Attempts("feature/a"))
	assert.Equal(t, 2, desc.RetryCount())
	assert.Error(t, desc.LastError())
}

func TestLoad_DoesNotRetryNonRetryableKinds(t *testing.T) {
	for _, kind := range []loader.Kind{loader.KindEvaluation, loader.KindContract} {
		t.Run(kind.String(), func(t *testing.T) {
			l := loader.New(fastOptions())
			desc := module.NewDescriptor("feature/a", module.CategoryFeature, nil)

			var calls atomic.Int32
			src := loader.SourceFunc(func(ctx context.Context, id string) (module.Module, error) {
				calls.Add(1)
				return nil, loader.NewError(kind, id, errors.New("broken artifact"))
			})

			_, err := l.Load(context.Background(), desc, src, nil)

			require.Error(t, err)
			gotKind, ok := loader.KindOf(err)
			require.True(t, ok)
			assert.Equal(t, kind, gotKind)
			assert.Equal(t, int32(1), calls.Load())
		})
	}
}

func TestLoad_TimeoutIsClassifiedAndRetryable(t *testing.T) {
	opts := fastOptions()
	opts.Timeout = 10 * time.Millisecond
	opts.MaxRetries = 1
	l := loader.New(opts)
	desc := module.NewDescriptor("feature/slow", module.CategoryFeature, nil)

	var calls atomic.Int32
	src := loader.SourceFunc(func(ctx context.Context, id string) (module.Module, error) {
		calls.Add(1)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	_, err := l.Load(context.Background(), desc, src, nil)

	require.Error(t, err)
	kind, ok := loader.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, loader.KindTimeout, kind)
	assert.True(t, loader.Retryable(err))
	// The timeout was retried once before giving up.
	assert.Equal(t, int32(2), calls.Load())
}

func TestLoad_NilModuleIsContractViolation(t *testing.T) {
	l := loader.New(fastOptions())
	desc := module.NewDescriptor("feature/a", module.CategoryFeature, nil)

	src := loader.SourceFunc(func(ctx context.Context, id string) (module.Module, error) {
		return nil, nil
	})

	_, err := l.Load(context.Background(), desc, src, nil)

	require.Error(t, err)
	kind, ok := loader.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, loader.KindContract, kind)
}

func TestLoad_LateResultIsReported(t *testing.T) {
	opts := fastOptions()
	opts.Timeout = 10 * time.Millisecond
	opts.MaxRetries = 0
	l := loader.New(opts)

	lateCh := make(chan string, 1)
	l.OnLateResult(func(id string, m module.Module) {
		assert.NotNil(t, m)
		lateCh <- id
	})

	desc := module.NewDescriptor("feature/slow", module.CategoryFeature, nil)
	src := &testutil.SlowSource{Delay: 50 * time.Millisecond}

	_, err := l.Load(context.Background(), desc, src, nil)
	require.Error(t, err)
	kind, _ := loader.KindOf(err)
	assert.Equal(t, loader.KindTimeout, kind)

	select {
	case id := <-lateCh:
		assert.Equal(t, "feature/slow", id)
	case <-time.After(time.Second):
		t.Fatal("late result never delivered")
	}
}

func TestLoad_CanceledContextStopsRetrying(t *testing.T) {
	opts := fastOptions()
	opts.BackoffBase = 50 * time.Millisecond
	l := loader.New(opts)
	desc := module.NewDescriptor("feature/a", module.CategoryFeature, nil)
	src := testutil.NewFlakySource(10)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := l.Load(ctx, desc, src, nil)

	require.Error(t, err)
	assert.LessOrEqual(t, src.Attempts("feature/a"), 2)
}

func TestKind_WireNames(t *testing.T) {
	assert.Equal(t, "timeout", loader.KindTimeout.String())
	assert.Equal(t, "fetchError", loader.KindFetch.String())
	assert.Equal(t, "evaluationError", loader.KindEvaluation.String())
	assert.Equal(t, "contractViolation", loader.KindContract.String())
}

func TestKindOf_UnclassifiedDefaultsToFetch(t *testing.T) {
	kind, classified := loader.KindOf(errors.New("socket hangup"))
	assert.False(t, classified)
	assert.Equal(t, loader.KindFetch, kind)
	assert.True(t, kind.Retryable())
}
