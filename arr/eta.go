// Package arr looks up download progress in Radarr and Sonarr. Overseerr
// only reports coarse status codes, so completion estimates come from the
// download queues of the underlying services. Both clients are optional;
// a nil client simply yields no estimate.
package arr

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golift.io/starr"
	"golift.io/starr/radarr"
	"golift.io/starr/sonarr"
)

const queuePageSize = 100

// ETASource answers "when will this title land" from the *arr queues
type ETASource struct {
	radarr *radarr.Radarr
	sonarr *sonarr.Sonarr
	logger zerolog.Logger
}

// NewETASource builds an ETA source from whichever clients are non-nil
func NewETASource(radarrClient *radarr.Radarr, sonarrClient *sonarr.Sonarr, logger zerolog.Logger) *ETASource {
	return &ETASource{
		radarr: radarrClient,
		sonarr: sonarrClient,
		logger: logger.With().Str("component", "arr").Logger(),
	}
}

// NewRadarrClient creates a Radarr client and verifies connectivity
func NewRadarrClient(url, apiKey string) (*radarr.Radarr, error) {
	client := radarr.New(starr.New(apiKey, url, 30*time.Second))
	if err := client.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to Radarr: %w", err)
	}
	return client, nil
}

// NewSonarrClient creates a Sonarr client and verifies connectivity
func NewSonarrClient(url, apiKey string) (*sonarr.Sonarr, error) {
	client := sonarr.New(starr.New(apiKey, url, 30*time.Second))
	if err := client.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to Sonarr: %w", err)
	}
	return client, nil
}

// MovieETA returns the remaining download time for a movie identified by
// its TMDB ID. The second return is false when no queue entry exists or
// Radarr is not configured.
func (s *ETASource) MovieETA(ctx context.Context, tmdbID int64) (time.Duration, bool) {
	if s.radarr == nil {
		return 0, false
	}

	movies, err := s.radarr.GetMovieContext(ctx, &radarr.GetMovie{TMDBID: tmdbID})
	if err != nil || len(movies) == 0 {
		if err != nil {
			s.logger.Debug().Err(err).Int64("tmdb_id", tmdbID).Msg("Radarr movie lookup failed")
		}
		return 0, false
	}
	movieID := movies[0].ID

	queue, err := s.radarr.GetQueueContext(ctx, 0, queuePageSize)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Radarr queue lookup failed")
		return 0, false
	}

	var best time.Duration
	found := false
	for _, record := range queue.Records {
		if record.MovieID != movieID {
			continue
		}
		if eta, ok := remaining(record.EstimatedCompletionTime); ok && (!found || eta < best) {
			best = eta
			found = true
		}
	}

	return best, found
}

// SeriesETA returns the longest remaining download time across queued
// episodes of a series identified by its TVDB ID. The last episode to
// finish bounds the whole request.
func (s *ETASource) SeriesETA(ctx context.Context, tvdbID int64) (time.Duration, bool) {
	if s.sonarr == nil || tvdbID == 0 {
		return 0, false
	}

	series, err := s.sonarr.GetSeriesContext(ctx, tvdbID)
	if err != nil || len(series) == 0 {
		if err != nil {
			s.logger.Debug().Err(err).Int64("tvdb_id", tvdbID).Msg("Sonarr series lookup failed")
		}
		return 0, false
	}
	seriesID := series[0].ID

	queue, err := s.sonarr.GetQueueContext(ctx, 0, queuePageSize)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Sonarr queue lookup failed")
		return 0, false
	}

	var worst time.Duration
	found := false
	for _, record := range queue.Records {
		if record.SeriesID != seriesID {
			continue
		}
		if eta, ok := remaining(record.EstimatedCompletionTime); ok && eta > worst {
			worst = eta
			found = true
		}
	}

	return worst, found
}

// remaining converts an estimated completion timestamp into a duration
// from now, clamping stale estimates to zero.
func remaining(completion time.Time) (time.Duration, bool) {
	if completion.IsZero() {
		return 0, false
	}
	eta := time.Until(completion)
	if eta < 0 {
		eta = 0
	}
	return eta, true
}
