// Package ratelimit enforces per-user daily request caps. The cap is a pure
// function of the request log and the current time: a user may create at most
// their daily limit of requests between local midnight and the next. The day
// boundary follows the configured deployment timezone, not UTC, so "try again
// tomorrow" means tomorrow on the user's wall clock.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/mbrownnycnyc/signalerr/internal/keyed"
	"github.com/mbrownnycnyc/signalerr/store"
)

// Counter is the slice of the store the limiter needs.
type Counter interface {
	CountRequestsSince(ctx context.Context, userID int64, since time.Time) (int, error)
}

// Limiter answers whether a user may create another request right now.
type Limiter struct {
	counter Counter
	locks   keyed.Mutex
}

// New creates a limiter over the given request log.
func New(counter Counter) *Limiter {
	return &Limiter{counter: counter}
}

// Allow reports whether u may create a request at the given instant. The
// check is serialized per user so two concurrent submissions cannot both
// slip under the cap.
func (l *Limiter) Allow(ctx context.Context, u *store.User, at time.Time, loc *time.Location) (bool, error) {
	unlock := l.locks.Lock(u.PhoneNumber)
	defer unlock()

	used, err := l.used(ctx, u, at, loc)
	if err != nil {
		return false, err
	}
	return used < u.DailyLimit, nil
}

// Remaining returns how many requests u has left today, for the settings
// display. Never negative.
func (l *Limiter) Remaining(ctx context.Context, u *store.User, at time.Time, loc *time.Location) (int, error) {
	used, err := l.used(ctx, u, at, loc)
	if err != nil {
		return 0, err
	}
	if used >= u.DailyLimit {
		return 0, nil
	}
	return u.DailyLimit - used, nil
}

// Used returns how many requests u has created since local midnight.
func (l *Limiter) Used(ctx context.Context, u *store.User, at time.Time, loc *time.Location) (int, error) {
	return l.used(ctx, u, at, loc)
}

func (l *Limiter) used(ctx context.Context, u *store.User, at time.Time, loc *time.Location) (int, error) {
	n, err := l.counter.CountRequestsSince(ctx, u.ID, DayStart(at, loc))
	if err != nil {
		return 0, fmt.Errorf("count daily requests: %w", err)
	}
	return n, nil
}

// DayStart returns local midnight of at's calendar day in loc.
func DayStart(at time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	local := at.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
