package overseerr

import (
	"strconv"
	"strings"
	"time"
)

// MediaType represents the type of media
type MediaType string

const (
	// MediaTypeMovie represents a movie
	MediaTypeMovie MediaType = "movie"
	// MediaTypeTV represents a TV show
	MediaTypeTV MediaType = "tv"
)

// IsMovie checks if the media type is a movie
func (mt MediaType) IsMovie() bool {
	return mt == MediaTypeMovie
}

// RequestStatus represents the status of a request as reported by Overseerr.
// The numeric values are Overseerr's own status codes.
type RequestStatus int

const (
	// RequestStatusPending indicates a request awaiting approval
	RequestStatusPending RequestStatus = 1
	// RequestStatusApproved indicates an approved request not yet downloading
	RequestStatusApproved RequestStatus = 2
	// RequestStatusDeclined indicates a declined request
	RequestStatusDeclined RequestStatus = 3
	// RequestStatusProcessing indicates a request whose download is in progress
	RequestStatusProcessing RequestStatus = 4
	// RequestStatusAvailable indicates the media is available in the library
	RequestStatusAvailable RequestStatus = 5
)

// String returns the string representation of a RequestStatus
func (rs RequestStatus) String() string {
	switch rs {
	case RequestStatusPending:
		return "PENDING"
	case RequestStatusApproved:
		return "APPROVED"
	case RequestStatusDeclined:
		return "DECLINED"
	case RequestStatusProcessing:
		return "PROCESSING"
	case RequestStatusAvailable:
		return "AVAILABLE"
	default:
		return "UNKNOWN"
	}
}

// SearchResult represents a single hit from the search endpoint
type SearchResult struct {
	ID           int       `json:"id"`
	MediaType    MediaType `json:"mediaType"`
	Title        string    `json:"title,omitempty"`
	Name         string    `json:"name,omitempty"`
	ReleaseDate  string    `json:"releaseDate,omitempty"`
	FirstAirDate string    `json:"firstAirDate,omitempty"`
	Overview     string    `json:"overview,omitempty"`
	PosterPath   string    `json:"posterPath,omitempty"`
	Popularity   float64   `json:"popularity,omitempty"`
}

// DisplayTitle returns the title for movies and the name for TV shows
func (sr *SearchResult) DisplayTitle() string {
	if sr.Title != "" {
		return sr.Title
	}
	return sr.Name
}

// Year extracts the release year, or 0 when the date is missing
func (sr *SearchResult) Year() int {
	date := sr.ReleaseDate
	if sr.MediaType == MediaTypeTV {
		date = sr.FirstAirDate
	}
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return year
}

// SearchResponse represents the paginated response from the search endpoint
type SearchResponse struct {
	Page         int            `json:"page"`
	TotalPages   int            `json:"totalPages"`
	TotalResults int            `json:"totalResults"`
	Results      []SearchResult `json:"results"`
}

// CollectionRef is the collection stub embedded in movie details
type CollectionRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// MovieDetails represents the detail view of a movie
type MovieDetails struct {
	ID          int            `json:"id"`
	Title       string         `json:"title"`
	ReleaseDate string         `json:"releaseDate,omitempty"`
	Overview    string         `json:"overview,omitempty"`
	Runtime     int            `json:"runtime,omitempty"`
	Collection  *CollectionRef `json:"collection,omitempty"`
	MediaInfo   *MediaInfo     `json:"mediaInfo,omitempty"`
}

// Collection represents a movie collection and its member films
type Collection struct {
	ID       int            `json:"id"`
	Name     string         `json:"name"`
	Overview string         `json:"overview,omitempty"`
	Parts    []SearchResult `json:"parts"`
}

// TvDetails represents the detail view of a TV show
type TvDetails struct {
	ID               int        `json:"id"`
	Name             string     `json:"name"`
	FirstAirDate     string     `json:"firstAirDate,omitempty"`
	Overview         string     `json:"overview,omitempty"`
	NumberOfSeasons  int        `json:"numberOfSeasons"`
	NumberOfEpisodes int        `json:"numberOfEpisodes,omitempty"`
	MediaInfo        *MediaInfo `json:"mediaInfo,omitempty"`
}

// MediaInfo represents library state attached to detail responses
type MediaInfo struct {
	ID     int           `json:"id"`
	TmdbID int           `json:"tmdbId"`
	TvdbID int           `json:"tvdbId,omitempty"`
	Status RequestStatus `json:"status"`
}

// SubmitOptions describes a request submission
type SubmitOptions struct {
	MediaType MediaType `json:"mediaType"`
	MediaID   int       `json:"mediaId"`
	Seasons   []int     `json:"seasons,omitempty"`
	Is4k      bool      `json:"is4k"`
}

// SubmitResponse represents the created request
type SubmitResponse struct {
	ID     int64         `json:"id"`
	Status RequestStatus `json:"status"`
}

// RequestDetails represents one request as returned by the request endpoint
type RequestDetails struct {
	ID        int64         `json:"id"`
	Status    RequestStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
	Type      MediaType     `json:"type"`
	Media     MediaInfo     `json:"media"`
}

// Declined reports whether the request was declined inside Overseerr
func (rd *RequestDetails) Declined() bool {
	return rd.Status == RequestStatusDeclined
}

// Downloading reports whether the underlying media is being fetched
func (rd *RequestDetails) Downloading() bool {
	return rd.Status == RequestStatusProcessing || rd.Media.Status == RequestStatusProcessing
}

// Completed reports whether the underlying media is available
func (rd *RequestDetails) Completed() bool {
	return rd.Status == RequestStatusAvailable || rd.Media.Status == RequestStatusAvailable
}

// MediaStatus represents the availability of a library item
type MediaStatus struct {
	ID     int           `json:"id"`
	TmdbID int           `json:"tmdbId"`
	Status RequestStatus `json:"status"`
}

// Available reports whether the media is fully available
func (ms *MediaStatus) Available() bool {
	return ms.Status == RequestStatusAvailable
}

// StatusInfo represents the instance status endpoint
type StatusInfo struct {
	Version    string `json:"version"`
	CommitTag  string `json:"commitTag,omitempty"`
	RestartReq bool   `json:"restartRequired,omitempty"`
}

// normalizeBaseURL strips trailing slashes from a configured base URL
func normalizeBaseURL(raw string) string {
	return strings.TrimRight(raw, "/")
}
