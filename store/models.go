package store

import (
	"encoding/json"
	"time"
)

// Verbosity is a user's notification detail tier.
type Verbosity string

const (
	VerbosityCasual  Verbosity = "casual"
	VerbositySimple  Verbosity = "simple"
	VerbosityVerbose Verbosity = "verbose"
)

// Valid reports whether the verbosity is one of the known tiers.
func (v Verbosity) Valid() bool {
	switch v {
	case VerbosityCasual, VerbositySimple, VerbosityVerbose:
		return true
	}
	return false
}

// MediaKind distinguishes movies from TV shows.
type MediaKind string

const (
	KindMovie MediaKind = "movie"
	KindTV    MediaKind = "tv"
)

// RequestState is the lifecycle state of a media request.
type RequestState string

const (
	StateSubmitting    RequestState = "submitting"
	StateAwaitingCheck RequestState = "awaiting_check"
	StateDownloading   RequestState = "downloading"
	StateNotFound      RequestState = "not_found"
	StateCompleted     RequestState = "completed"
	StateFailed        RequestState = "failed"
	StateDeclined      RequestState = "declined"
)

// Terminal reports whether the state admits no further transitions.
// Downloading is not terminal: the completion watch may still move it.
func (s RequestState) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateDeclined, StateNotFound:
		return true
	}
	return false
}

// User is a registered bot user addressed by phone number.
type User struct {
	ID          int64
	PhoneNumber string
	DisplayName string
	IsAdmin     bool
	IsActive    bool
	Verbosity   Verbosity
	AutoNotify  bool
	DailyLimit  int
	CreatedAt   time.Time
	LastActive  time.Time
}

// MediaRequest is one tracked request through its lifecycle.
// ExternalID is nil until the request has been accepted upstream.
// Detail carries the failure message or decline reason, if any.
type MediaRequest struct {
	ID          int64
	UserID      int64
	ExternalID  *int64
	Kind        MediaKind
	CatalogID   int64
	Title       string
	Year        int
	State       RequestState
	Seasons     []int
	Detail      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// Setting is one runtime configuration row, mutated only by the admin console.
type Setting struct {
	Key         string
	Value       string
	Description string
	UpdatedAt   time.Time
}

// LogEntry is an append-only observability record.
type LogEntry struct {
	ID        int64
	Level     string
	Message   string
	Component string
	UserID    *int64
	RequestID *int64
	CreatedAt time.Time
}

// Stats summarizes request volume for the admin stats command.
type Stats struct {
	TotalUsers    int
	RequestsToday int
	InFlight      int
	Completed     int
	Failed        int
}

// encodeSeasons serializes a season list into its column representation.
func encodeSeasons(seasons []int) (*string, error) {
	if len(seasons) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(seasons)
	if err != nil {
		return nil, err
	}
	s := string(raw)
	return &s, nil
}

// decodeSeasons parses the column representation back into a season list.
func decodeSeasons(raw *string) ([]int, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	var seasons []int
	if err := json.Unmarshal([]byte(*raw), &seasons); err != nil {
		return nil, err
	}
	return seasons, nil
}
