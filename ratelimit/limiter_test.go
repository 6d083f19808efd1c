package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbrownnycnyc/signalerr/store"
)

type fakeCounter struct {
	counts map[int64][]time.Time
}

func (f *fakeCounter) CountRequestsSince(_ context.Context, userID int64, since time.Time) (int, error) {
	var n int
	for _, at := range f.counts[userID] {
		if !at.Before(since) {
			n++
		}
	}
	return n, nil
}

func TestAllowUnderCap(t *testing.T) {
	u := &store.User{ID: 1, PhoneNumber: "+15550001111", DailyLimit: 10}
	f := &fakeCounter{counts: map[int64][]time.Time{}}
	l := New(f)

	now := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	ok, err := l.Allow(context.Background(), u, now, time.UTC)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAllowAtCap(t *testing.T) {
	now := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	u := &store.User{ID: 1, PhoneNumber: "+15550001111", DailyLimit: 10}

	var today []time.Time
	for i := 0; i < 10; i++ {
		today = append(today, now.Add(-time.Duration(i)*time.Hour/2))
	}
	f := &fakeCounter{counts: map[int64][]time.Time{1: today}}
	l := New(f)

	ok, err := l.Allow(context.Background(), u, now, time.UTC)
	require.NoError(t, err)
	assert.False(t, ok)

	remaining, err := l.Remaining(context.Background(), u, now, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}

func TestYesterdayDoesNotCount(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 30, 0, 0, time.UTC)
	u := &store.User{ID: 1, PhoneNumber: "+15550001111", DailyLimit: 2}

	f := &fakeCounter{counts: map[int64][]time.Time{1: {
		now.Add(-time.Hour),     // yesterday 23:30
		now.Add(-10 * time.Minute), // today 00:20
	}}}
	l := New(f)

	ok, err := l.Allow(context.Background(), u, now, time.UTC)
	require.NoError(t, err)
	assert.True(t, ok, "only one request falls on today's calendar day")
}

func TestDayBoundaryFollowsLocation(t *testing.T) {
	// 03:00 UTC is 22:00 the previous day in New York.
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	at := time.Date(2024, 3, 1, 3, 0, 0, 0, time.UTC)

	utcStart := DayStart(at, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), utcStart)

	nyStart := DayStart(at, ny)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, ny), nyStart)
}
