package server

import (
	"bytes"
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

	"github.com/mbrownnycnyc/signalerr/config"
	"github.com/mbrownnycnyc/signalerr/store"
)

type stubStore struct {
	pingErr  error
	requests map[int64]*store.MediaRequest
}

func (s *stubStore) Ping(context.Context) error {
	return s.pingErr
}

func (s *stubStore) ListRequests(_ context.Context, limit, offset int) ([]store.MediaRequest, error) {
	var out []store.MediaRequest
	for _, r := range s.requests {
		out = append(out, *r)
	}
	return out, nil
}

func (s *stubStore) RequestByID(_ context.Context, id int64) (*store.MediaRequest, error) {
	r, ok := s.requests[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *r
	return &copied, nil
}

type stubDecliner struct {
	declined map[int64]string
	err      error
}

func (d *stubDecliner) Decline(_ context.Context, id int64, reason string) error {
	if d.err != nil {
		return d.err
	}
	if d.declined == nil {
		d.declined = make(map[int64]string)
	}
	d.declined[id] = reason
	return nil
}

func newTestServer(t *testing.T, st *stubStore, d *stubDecliner, reload func(context.Context) error) *httptest.Server {
	t.Helper()

	runtime := config.NewRuntime(&config.Settings{
		CheckDelay:       2 * time.Minute,
		DailyLimit:       10,
		SeasonThreshold:  4,
		DefaultVerbosity: "simple",
		Admins:           []string{"+15550000001"},
		Location:         time.UTC,
	})

	srv := New(st, d, runtime, reload, zerolog.Nop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func seededStore() *stubStore {
	ext := int64(420)
	return &stubStore{
		requests: map[int64]*store.MediaRequest{
			1: {ID: 1, UserID: 7, Kind: store.KindMovie, Title: "Dune", Year: 2021, State: store.StateDownloading, ExternalID: &ext},
			2: {ID: 2, UserID: 7, Kind: store.KindTV, Title: "Severance", State: store.StateCompleted, Seasons: []int{1, 2}},
		},
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, seededStore(), &stubDecliner{}, nil)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestHealthzStoreDown(t *testing.T) {
	st := seededStore()
	st.pingErr = errors.New("connection refused")
	ts := newTestServer(t, st, &stubDecliner{}, nil)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestListRequests(t *testing.T) {
	ts := newTestServer(t, seededStore(), &stubDecliner{}, nil)

	resp, err := http.Get(ts.URL + "/api/requests")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Requests []requestView `json:"requests"`
		Count    int           `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 2, body.Count)
	assert.Len(t, body.Requests, 2)
}

func TestGetRequest(t *testing.T) {
	ts := newTestServer(t, seededStore(), &stubDecliner{}, nil)

	resp, err := http.Get(ts.URL + "/api/requests/1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view requestView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, "Dune", view.Title)
	assert.Equal(t, "downloading", view.State)
	require.NotNil(t, view.ExternalID)
	assert.Equal(t, int64(420), *view.ExternalID)
}

func TestGetRequestNotFound(t *testing.T) {
	ts := newTestServer(t, seededStore(), &stubDecliner{}, nil)

	resp, err := http.Get(ts.URL + "/api/requests/99")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetRequestBadID(t *testing.T) {
	ts := newTestServer(t, seededStore(), &stubDecliner{}, nil)

	resp, err := http.Get(ts.URL + "/api/requests/abc")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDecline(t *testing.T) {
	d := &stubDecliner{}
	ts := newTestServer(t, seededStore(), d, nil)

	payload := bytes.NewBufferString(`{"reason":"not our genre"}`)
	resp, err := http.Post(ts.URL+"/api/requests/1/decline", "application/json", payload)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "not our genre", d.declined[1])
}

func TestDeclineEmptyBody(t *testing.T) {
	d := &stubDecliner{}
	ts := newTestServer(t, seededStore(), d, nil)

	resp, err := http.Post(ts.URL+"/api/requests/2/decline", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "", d.declined[2])
}

func TestDeclineTerminal(t *testing.T) {
	d := &stubDecliner{err: store.ErrTerminalState}
	ts := newTestServer(t, seededStore(), d, nil)

	resp, err := http.Post(ts.URL+"/api/requests/2/decline", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestSettings(t *testing.T) {
	ts := newTestServer(t, seededStore(), &stubDecliner{}, nil)

	resp, err := http.Get(ts.URL + "/api/settings")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view settingsView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, 120, view.CheckDelaySeconds)
	assert.Equal(t, 10, view.DailyLimit)
	assert.Equal(t, []string{"+15550000001"}, view.Admins)
}

func TestReload(t *testing.T) {
	called := false
	ts := newTestServer(t, seededStore(), &stubDecliner{}, func(context.Context) error {
		called = true
		return nil
	})

	resp, err := http.Post(ts.URL+"/api/settings/reload", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, called)
}

func TestReloadUnconfigured(t *testing.T) {
	ts := newTestServer(t, seededStore(), &stubDecliner{}, nil)

	resp, err := http.Post(ts.URL+"/api/settings/reload", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, seededStore(), &stubDecliner{}, nil)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
