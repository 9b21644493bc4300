package ratelimit

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

// Limiter blocks until the caller may issue its next call.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Spacer is a token bucket of size one: consecutive calls are at least
// interval apart. Reservations are made against the injected clock.
type Spacer struct {
	clock   Clock
	limiter *rate.Limiter
}

// NewSpacer returns a limiter allowing one call per interval. A non-positive
// interval disables limiting.
func NewSpacer(clock Clock, interval time.Duration) Limiter {
	if interval <= 0 {
		return Unlimited()
	}
	if clock == nil {
		clock = RealClock()
	}
	return &Spacer{
		clock:   clock,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

func (s *Spacer) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := s.clock.Now()
	r := s.limiter.ReserveN(now, 1)
	if !r.OK() {
		return errors.New("ratelimit: reservation exceeds burst")
	}
	delay := r.DelayFrom(now)
	if delay <= 0 {
		return nil
	}
	if err := s.clock.Sleep(ctx, delay); err != nil {
		r.CancelAt(s.clock.Now())
		return err
	}
	return nil
}

type unlimited struct{}

func Unlimited() Limiter { return unlimited{} }

func (unlimited) Wait(ctx context.Context) error { return ctx.Err() }

// Delay sleeps a fixed duration on every Wait, regardless of when the
// previous call happened.
type Delay struct {
	clock Clock
	d     time.Duration
}

func NewDelay(clock Clock, d time.Duration) Limiter {
	if d <= 0 {
		return Unlimited()
	}
	if clock == nil {
		clock = RealClock()
	}
	return &Delay{clock: clock, d: d}
}

func (p *Delay) Wait(ctx context.Context) error {
	return p.clock.Sleep(ctx, p.d)
}
