package ocr

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThrottleSpacesSlots(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	th := NewThrottle(4)
	th.now = func() time.Time { return base }

	assert.Equal(t, base, th.reserve())
	assert.Equal(t, base.Add(250*time.Millisecond), th.reserve())
	assert.Equal(t, base.Add(500*time.Millisecond), th.reserve())
}

func TestThrottleReleasesCancelledSlot(t *testing.T) {
	th := NewThrottle(1)
	require.NoError(t, th.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, th.Wait(ctx), context.Canceled)

	// the cancelled slot is free again, so the next reservation takes it
	// rather than queueing a second interval behind it.
	next := th.reserve()
	assert.WithinDuration(t, time.Now().Add(time.Second), next, 200*time.Millisecond)
}

func TestThrottleDefaultsToOnePerSecond(t *testing.T) {
	assert.Equal(t, time.Second, NewThrottle(0).interval)
}
