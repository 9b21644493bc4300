package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)

func TestSpacerSpacesConsecutiveCalls(t *testing.T) {
	clock := NewFakeClock(epoch)
	lim := NewSpacer(clock, 12*time.Second)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, lim.Wait(ctx))
	}

	sleeps := clock.Sleeps()
	require.Len(t, sleeps, 2)
	for _, d := range sleeps {
		assert.InDelta(t, float64(12*time.Second), float64(d), float64(time.Millisecond))
	}
	assert.WithinDuration(t, epoch.Add(24*time.Second), clock.Now(), time.Millisecond)
}

func TestSpacerDoesNotWaitAfterIdle(t *testing.T) {
	clock := NewFakeClock(epoch)
	lim := NewSpacer(clock, 12*time.Second)
	ctx := context.Background()

	require.NoError(t, lim.Wait(ctx))
	clock.Advance(20 * time.Second)
	require.NoError(t, lim.Wait(ctx))
	assert.Zero(t, clock.Slept())

	clock.Advance(5 * time.Second)
	require.NoError(t, lim.Wait(ctx))
	assert.InDelta(t, float64(7*time.Second), float64(clock.Slept()), float64(time.Millisecond))
}

func TestSpacerHonoursCancellation(t *testing.T) {
	lim := NewSpacer(NewFakeClock(epoch), time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, lim.Wait(ctx), context.Canceled)
}

func TestRealClockSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, RealClock().Sleep(ctx, time.Hour), context.Canceled)
}

func TestUnlimited(t *testing.T) {
	lim := NewSpacer(nil, 0)
	for i := 0; i < 5; i++ {
		require.NoError(t, lim.Wait(context.Background()))
	}
}

func TestDelaySleepsEveryTime(t *testing.T) {
	clock := NewFakeClock(epoch)
	d := NewDelay(clock, time.Second)
	for i := 0; i < 3; i++ {
		clock.Advance(time.Hour)
		require.NoError(t, d.Wait(context.Background()))
	}
	assert.Equal(t, []time.Duration{time.Second, time.Second, time.Second}, clock.Sleeps())
}
