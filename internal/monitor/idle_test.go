package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appguard/internal/core"
)

func newIdleFixture(events chan core.Event) (*IdleDetector, *fixedSettings) {
	settings := &fixedSettings{s: core.DefaultSettings()}
	settings.s.LockOnIdle = true
	settings.s.IdleTimeoutMinutes = 5
	d := NewIdleDetector(settings, events, nil, nil)
	return d, settings
}

func TestIdleDetector_RisingEdgeOnly(t *testing.T) {
	events := make(chan core.Event, 8)
	d, _ := newIdleFixture(events)

	idle := time.Minute
	d.idleFn = func() time.Duration { return idle }

	d.check()
	assert.Empty(t, events, "below threshold emits nothing")

	idle = 6 * time.Minute
	d.check()
	require.Len(t, events, 1)
	assert.Equal(t, core.IdleTimeoutReached{Idle: 6 * time.Minute}, <-events)

	// Staying idle does not repeat the event.
	idle = 7 * time.Minute
	d.check()
	assert.Empty(t, events)

	// Activity resets the edge; the next idle period fires again.
	idle = time.Second
	d.check()
	idle = 6 * time.Minute
	d.check()
	assert.Len(t, events, 1)
}

func TestIdleDetector_DisabledEmitsNothing(t *testing.T) {
	events := make(chan core.Event, 8)
	d, settings := newIdleFixture(events)
	settings.s.LockOnIdle = false

	d.idleFn = func() time.Duration { return time.Hour }
	d.check()

	assert.Empty(t, events)
}

func TestIdleDetector_ZeroThresholdIgnored(t *testing.T) {
	events := make(chan core.Event, 8)
	d, settings := newIdleFixture(events)
	settings.s.IdleTimeoutMinutes = 0

	d.idleFn = func() time.Duration { return time.Hour }
	d.check()

	assert.Empty(t, events)
}

func TestSleepWakeDetector_GapEmitsSleepThenWake(t *testing.T) {
	events := make(chan core.Event, 8)
	clock := &MockClock{CurrentTime: time.Now()}
	d := NewSleepWakeDetector(events, clock, nil)
	d.last = clock.Now()

	// Ticks on schedule stay silent.
	clock.Advance(d.interval)
	d.tick()
	assert.Empty(t, events)

	// A large scheduler gap means the host was suspended.
	clock.Advance(10 * time.Minute)
	d.tick()
	require.Len(t, events, 2)
	assert.Equal(t, core.SystemSleeping{}, <-events)
	assert.Equal(t, core.SystemWoke{}, <-events)

	// Back on schedule, silent again.
	clock.Advance(d.interval)
	d.tick()
	assert.Empty(t, events)
}
