package module

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDescriptor_Lifecycle(t *testing.T) {
	d := NewDescriptor("feature/scraper", CategoryFeature, []string{"core/eventbus"})

	assert.Equal(t, StatePending, d.State())
	assert.False(t, d.Terminal())

	d.SetState(StateLoading)
	assert.False(t, d.Terminal())

	d.SetState(StateLoaded)
	assert.True(t, d.Terminal())
}

func TestDescriptor_TerminalStates(t *testing.T) {
	for _, s := range []State{StateLoaded, StateFallback, StateFailed} {
		d := NewDescriptor("a", CategoryCore, nil)
		d.SetState(s)
		assert.True(t, d.Terminal(), s.String())
	}
}

func TestDescriptor_RecordAttempt(t *testing.T) {
	d := NewDescriptor("a", CategoryCore, nil)
	cause := errors.New("boom")

	d.RecordAttempt(2, 150*time.Millisecond, cause)

	assert.Equal(t, 2, d.RetryCount())
	assert.Equal(t, 150*time.Millisecond, d.LoadDuration())
	assert.ErrorIs(t, d.LastError(), cause)
}

func TestDescriptor_Reset(t *testing.T) {
	d := NewDescriptor("a", CategoryCore, nil)
	d.SetState(StateFailed)
	d.RecordAttempt(3, time.Second, errors.New("boom"))

	d.Reset()

	assert.Equal(t, StatePending, d.State())
	assert.Equal(t, 0, d.RetryCount())
	assert.Zero(t, d.LoadDuration())
	assert.NoError(t, d.LastError())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "loading", StateLoading.String())
	assert.Equal(t, "loaded", StateLoaded.String())
	assert.Equal(t, "fallback", StateFallback.String())
	assert.Equal(t, "failed", StateFailed.String())
}

func TestValidCategory(t *testing.T) {
	for _, c := range []Category{CategoryCore, CategoryUtility, CategoryApplication, CategoryFeature} {
		assert.True(t, ValidCategory(c), string(c))
	}
	assert.False(t, ValidCategory("kernel"))
	assert.False(t, ValidCategory(""))
}
