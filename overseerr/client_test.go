package overseerr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, "test-key", zerolog.Nop())
	require.NoError(t, err)
	return client
}

func TestNewClient(t *testing.T) {
	logger := zerolog.Nop()

	tests := []struct {
		name    string
		baseURL string
		apiKey  string
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			baseURL: "http://localhost:5055",
			apiKey:  "test-key",
			wantErr: false,
		},
		{
			name:    "missing URL",
			baseURL: "",
			apiKey:  "test-key",
			wantErr: true,
			errMsg:  "URL is required",
		},
		{
			name:    "missing API key",
			baseURL: "http://localhost:5055",
			apiKey:  "",
			wantErr: true,
			errMsg:  "API key is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.baseURL, tt.apiKey, logger)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.baseURL, client.baseURL)
			assert.Equal(t, tt.apiKey, client.apiKey)
		})
	}

	t.Run("trailing slash trimmed", func(t *testing.T) {
		client, err := NewClient("http://localhost:5055/", "test-key", logger)
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:5055", client.baseURL)
	})
}

func TestClientOptions(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("with timeout", func(t *testing.T) {
		client, err := NewClient("http://localhost:5055", "test-key", logger, WithTimeout(5*time.Second))
		require.NoError(t, err)
		assert.Equal(t, 5*time.Second, client.httpClient.Timeout)
	})

	t.Run("with custom http client", func(t *testing.T) {
		customClient := &http.Client{Timeout: 10 * time.Second}
		client, err := NewClient("http://localhost:5055", "test-key", logger, WithHTTPClient(customClient))
		require.NoError(t, err)
		assert.Equal(t, customClient, client.httpClient)
	})
}

func TestSearch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/search", r.URL.Path)
		assert.Equal(t, "the matrix", r.URL.Query().Get("query"))
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		json.NewEncoder(w).Encode(SearchResponse{
			Page: 1,
			Results: []SearchResult{
				{ID: 603, MediaType: MediaTypeMovie, Title: "The Matrix", ReleaseDate: "1999-03-30"},
				{ID: 1396, MediaType: MediaTypeTV, Name: "The Matrix Show", FirstAirDate: "2003-05-01"},
				{ID: 9, MediaType: "person", Name: "Keanu Reeves"},
			},
		})
	})

	results, err := client.Search(context.Background(), "the matrix", "")
	require.NoError(t, err)
	require.Len(t, results, 2, "person results should be dropped")

	assert.Equal(t, "The Matrix", results[0].DisplayTitle())
	assert.Equal(t, 1999, results[0].Year())
	assert.Equal(t, "The Matrix Show", results[1].DisplayTitle())
	assert.Equal(t, 2003, results[1].Year())
}

func TestSearchEmpty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(SearchResponse{Page: 1})
	})

	results, err := client.Search(context.Background(), "zxqv", MediaTypeMovie)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMovieDetailsWithCollection(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/movie/603", r.URL.Path)
		json.NewEncoder(w).Encode(MovieDetails{
			ID:         603,
			Title:      "The Matrix",
			Collection: &CollectionRef{ID: 2344, Name: "The Matrix Collection"},
		})
	})

	details, err := client.MovieDetails(context.Background(), 603)
	require.NoError(t, err)
	require.NotNil(t, details.Collection)
	assert.Equal(t, 2344, details.Collection.ID)
}

func TestCollection(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/collection/2344", r.URL.Path)
		json.NewEncoder(w).Encode(Collection{
			ID:   2344,
			Name: "The Matrix Collection",
			Parts: []SearchResult{
				{ID: 603, Title: "The Matrix"},
				{ID: 604, Title: "The Matrix Reloaded"},
				{ID: 605, Title: "The Matrix Revolutions"},
				{ID: 624860, Title: "The Matrix Resurrections"},
			},
		})
	})

	collection, err := client.Collection(context.Background(), 2344)
	require.NoError(t, err)
	assert.Len(t, collection.Parts, 4)
}

func TestTvDetails(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/tv/1396", r.URL.Path)
		json.NewEncoder(w).Encode(TvDetails{ID: 1396, Name: "Breaking Bad", NumberOfSeasons: 5})
	})

	details, err := client.TvDetails(context.Background(), 1396)
	require.NoError(t, err)
	assert.Equal(t, 5, details.NumberOfSeasons)
}

func TestSubmitRequest(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/request", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var opts SubmitOptions
		require.NoError(t, json.NewDecoder(r.Body).Decode(&opts))
		assert.Equal(t, MediaTypeTV, opts.MediaType)
		assert.Equal(t, []int{1, 2, 3}, opts.Seasons)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(SubmitResponse{ID: 42, Status: RequestStatusPending})
	})

	resp, err := client.SubmitRequest(context.Background(), SubmitOptions{
		MediaType: MediaTypeTV,
		MediaID:   1396,
		Seasons:   []int{1, 2, 3},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), resp.ID)
}

func TestSubmitRequestConflict(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"message": "Request for this media already exists."})
	})

	_, err := client.SubmitRequest(context.Background(), SubmitOptions{
		MediaType: MediaTypeMovie,
		MediaID:   603,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyRequested)
}

func TestRequestDetails(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/request/42", r.URL.Path)
		json.NewEncoder(w).Encode(RequestDetails{
			ID:     42,
			Status: RequestStatusApproved,
			Media:  MediaInfo{ID: 7, TmdbID: 603, Status: RequestStatusProcessing},
		})
	})

	details, err := client.RequestDetails(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, details.Downloading())
	assert.False(t, details.Completed())
	assert.False(t, details.Declined())
}

func TestRequestDetailsPhases(t *testing.T) {
	tests := []struct {
		name        string
		details     RequestDetails
		downloading bool
		completed   bool
		declined    bool
	}{
		{
			name:    "pending",
			details: RequestDetails{Status: RequestStatusPending},
		},
		{
			name:        "processing via request status",
			details:     RequestDetails{Status: RequestStatusProcessing},
			downloading: true,
		},
		{
			name:      "available via media status",
			details:   RequestDetails{Status: RequestStatusApproved, Media: MediaInfo{Status: RequestStatusAvailable}},
			completed: true,
		},
		{
			name:     "declined",
			details:  RequestDetails{Status: RequestStatusDeclined},
			declined: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.downloading, tt.details.Downloading())
			assert.Equal(t, tt.completed, tt.details.Completed())
			assert.Equal(t, tt.declined, tt.details.Declined())
		})
	}
}

func TestMediaStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/media/7/status", r.URL.Path)
		json.NewEncoder(w).Encode(MediaStatus{ID: 7, TmdbID: 603, Status: RequestStatusAvailable})
	})

	status, err := client.MediaStatus(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, status.Available())
}

func TestDeclineRequest(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/request/42/decline", r.URL.Path)

		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "not our genre", payload["reason"])

		w.WriteHeader(http.StatusOK)
	})

	err := client.DeclineRequest(context.Background(), 42, "not our genre")
	require.NoError(t, err)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"server error", http.StatusInternalServerError, ErrServiceUnavailable},
		{"bad gateway", http.StatusBadGateway, ErrServiceUnavailable},
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized},
		{"forbidden", http.StatusForbidden, ErrUnauthorized},
		{"not found", http.StatusNotFound, ErrNotFound},
		{"conflict", http.StatusConflict, ErrAlreadyRequested},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(map[string]string{"message": tt.name})
			})

			_, err := client.RequestDetails(context.Background(), 1)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("connection refused", func(t *testing.T) {
		client, err := NewClient("http://127.0.0.1:1", "test-key", zerolog.Nop(), WithTimeout(time.Second))
		require.NoError(t, err)

		_, err = client.RequestDetails(context.Background(), 1)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrServiceUnavailable)
	})

	t.Run("unexpected status is APIError", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
			json.NewEncoder(w).Encode(map[string]string{"message": "teapot"})
		})

		_, err := client.RequestDetails(context.Background(), 1)
		require.Error(t, err)

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusTeapot, apiErr.StatusCode)
		assert.Equal(t, "teapot", apiErr.Message)
	})
}

func TestTestConnection(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/status", r.URL.Path)
		json.NewEncoder(w).Encode(StatusInfo{Version: "1.33.2"})
	})

	require.NoError(t, client.TestConnection(context.Background()))
}

func TestRequestStatusString(t *testing.T) {
	tests := []struct {
		status   RequestStatus
		expected string
	}{
		{RequestStatusPending, "PENDING"},
		{RequestStatusApproved, "APPROVED"},
		{RequestStatusDeclined, "DECLINED"},
		{RequestStatusProcessing, "PROCESSING"},
		{RequestStatusAvailable, "AVAILABLE"},
		{RequestStatus(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.status.String())
		})
	}
}

func TestSearchResultYear(t *testing.T) {
	tests := []struct {
		name     string
		result   SearchResult
		expected int
	}{
		{"movie release date", SearchResult{MediaType: MediaTypeMovie, ReleaseDate: "1999-03-30"}, 1999},
		{"tv first air date", SearchResult{MediaType: MediaTypeTV, FirstAirDate: "2008-01-20"}, 2008},
		{"missing date", SearchResult{MediaType: MediaTypeMovie}, 0},
		{"garbage date", SearchResult{MediaType: MediaTypeMovie, ReleaseDate: "soon"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.result.Year())
		})
	}
}
