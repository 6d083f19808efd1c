package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderIsTotal(t *testing.T) {
	kinds := []EventKind{
		EventRequested,
		EventDownloadStarted,
		EventDownloadCompleted,
		EventNotFound,
		EventRateLimited,
		EventDeclined,
		EventGenericError,
	}
	tiers := []Verbosity{Casual, Simple, Verbose}

	for _, kind := range kinds {
		for _, tier := range tiers {
			e := Event{
				Kind:       kind,
				Title:      "The Matrix",
				Year:       1999,
				ETA:        time.Hour,
				ExternalID: 42,
				CheckDelay: 2 * time.Minute,
				DailyLimit: 10,
				At:         time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
			}
			out := Render(e, tier)
			require.NotEmpty(t, out, "kind=%d verbosity=%s", kind, tier)
		}
	}
}

func TestRenderUnknownVerbosityFallsBack(t *testing.T) {
	e := Event{Kind: EventDownloadCompleted, Title: "Dune"}
	assert.Equal(t, Render(e, Simple), Render(e, Verbosity("shouty")))
}

func TestRenderDownloadStarted(t *testing.T) {
	e := Event{
		Kind:  EventDownloadStarted,
		Title: "The Matrix",
		ETA:   time.Hour,
	}

	simple := Render(e, Simple)
	assert.Contains(t, simple, "The Matrix")
	assert.Contains(t, simple, "1h")

	// ETA is omitted, not rendered as zero.
	e.ETA = 0
	assert.NotContains(t, Render(e, Simple), "remaining")
}

func TestRenderVerboseIncludesIDAndTimestamp(t *testing.T) {
	e := Event{
		Kind:       EventDownloadStarted,
		Title:      "Severance",
		ExternalID: 314,
		At:         time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
	}
	out := Render(e, Verbose)
	assert.Contains(t, out, "314")
	assert.Contains(t, out, "2024-03-01 09:30")
}

func TestRenderGenericErrorLeaksNothing(t *testing.T) {
	e := Event{
		Kind:   EventGenericError,
		Title:  "Whatever",
		Reason: "pq: connection refused at 10.0.0.3:5432",
	}
	for _, tier := range []Verbosity{Casual, Simple, Verbose} {
		out := Render(e, tier)
		assert.NotContains(t, out, "connection refused")
		assert.NotContains(t, out, "10.0.0.3")
	}
}

func TestRenderSeasons(t *testing.T) {
	e := Event{
		Kind:       EventRequested,
		Title:      "Some Obscure Show",
		Seasons:    []int{3, 4, 5, 6},
		CheckDelay: 2 * time.Minute,
	}
	out := Render(e, Simple)
	assert.Contains(t, out, "Seasons 3-6")

	e.Seasons = []int{2}
	out = Render(e, Verbose)
	assert.Contains(t, out, "**Seasons:** 2")
	assert.False(t, strings.Contains(out, "2-2"))
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{2 * time.Minute, "2m"},
		{59 * time.Minute, "59m"},
		{time.Hour, "1h"},
		{90 * time.Minute, "1h 30m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.d))
	}
}
