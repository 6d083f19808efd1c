// Package server exposes the admin HTTP surface: read access to request
// records, the decline entry point, settings inspection and reload, health,
// and Prometheus metrics. The admin web console is the intended consumer.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mbrownnycnyc/signalerr/config"
	"github.com/mbrownnycnyc/signalerr/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500

	shutdownGrace = 10 * time.Second
)

// RequestStore is the read slice of the store the admin surface serves from.
type RequestStore interface {
	Ping(ctx context.Context) error
	ListRequests(ctx context.Context, limit, offset int) ([]store.MediaRequest, error)
	RequestByID(ctx context.Context, id int64) (*store.MediaRequest, error)
}

// Decliner is the lifecycle manager's admin decline entry point.
type Decliner interface {
	Decline(ctx context.Context, requestID int64, reason string) error
}

// Server is the admin HTTP surface.
type Server struct {
	store    RequestStore
	decliner Decliner
	runtime  *config.Runtime
	reload   func(ctx context.Context) error
	logger   zerolog.Logger
	router   chi.Router
}

// New builds the server and its routes. reload re-reads the settings rows
// into the runtime snapshot; nil disables the endpoint.
func New(st RequestStore, decliner Decliner, runtime *config.Runtime, reload func(ctx context.Context) error, logger zerolog.Logger) *Server {
	s := &Server{
		store:    st,
		decliner: decliner,
		runtime:  runtime,
		reload:   reload,
		logger:   logger.With().Str("component", "server").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/requests", s.handleListRequests)
		r.Get("/requests/{id}", s.handleGetRequest)
		r.Post("/requests/{id}/decline", s.handleDecline)
		r.Get("/settings", s.handleSettings)
		r.Post("/settings/reload", s.handleReload)
	})

	s.router = r
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is canceled, then drains with a short grace period.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("Admin HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}

// requestView is the wire shape of a MediaRequest.
type requestView struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	ExternalID  *int64     `json:"external_id,omitempty"`
	Kind        string     `json:"kind"`
	CatalogID   int64      `json:"catalog_id"`
	Title       string     `json:"title"`
	Year        int        `json:"year,omitempty"`
	State       string     `json:"state"`
	Seasons     []int      `json:"seasons,omitempty"`
	Detail      string     `json:"detail,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func viewOf(r *store.MediaRequest) requestView {
	return requestView{
		ID:          r.ID,
		UserID:      r.UserID,
		ExternalID:  r.ExternalID,
		Kind:        string(r.Kind),
		CatalogID:   r.CatalogID,
		Title:       r.Title,
		Year:        r.Year,
		State:       string(r.State),
		Seasons:     r.Seasons,
		Detail:      r.Detail,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		CompletedAt: r.CompletedAt,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "store unreachable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultListLimit)
	if limit < 1 || limit > maxListLimit {
		limit = defaultListLimit
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	rows, err := s.store.ListRequests(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error().Err(err).Msg("Request listing failed")
		s.writeError(w, http.StatusInternalServerError, "listing failed")
		return
	}

	views := make([]requestView, 0, len(rows))
	for i := range rows {
		views = append(views, viewOf(&rows[i]))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"requests": views, "count": len(views)})
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request id")
		return
	}

	row, err := s.store.RequestByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "request not found")
			return
		}
		s.logger.Error().Err(err).Int64("request_id", id).Msg("Request lookup failed")
		s.writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	s.writeJSON(w, http.StatusOK, viewOf(row))
}

type declineBody struct {
	Reason string `json:"reason"`
}

func (s *Server) handleDecline(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request id")
		return
	}

	var body declineBody
	if r.Body != nil {
		// An empty body means decline without a reason.
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	switch err := s.decliner.Decline(r.Context(), id, body.Reason); {
	case err == nil:
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "declined"})
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "request not found")
	case errors.Is(err, store.ErrTerminalState):
		s.writeError(w, http.StatusConflict, "request already resolved")
	default:
		s.logger.Error().Err(err).Int64("request_id", id).Msg("Decline failed")
		s.writeError(w, http.StatusInternalServerError, "decline failed")
	}
}

// settingsView is the wire shape of the runtime settings snapshot.
type settingsView struct {
	CheckDelaySeconds int      `json:"check_delay_seconds"`
	DailyLimit        int      `json:"daily_limit"`
	SeasonThreshold   int      `json:"season_threshold"`
	DefaultVerbosity  string   `json:"default_verbosity"`
	AutoNotify        bool     `json:"auto_notify"`
	GroupChats        bool     `json:"group_chats"`
	MaintenanceMode   bool     `json:"maintenance_mode"`
	MaxRechecks       int      `json:"max_rechecks"`
	Admins            []string `json:"admins"`
	Timezone          string   `json:"timezone"`
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	cur := s.runtime.Current()
	s.writeJSON(w, http.StatusOK, settingsView{
		CheckDelaySeconds: int(cur.CheckDelay.Seconds()),
		DailyLimit:        cur.DailyLimit,
		SeasonThreshold:   cur.SeasonThreshold,
		DefaultVerbosity:  cur.DefaultVerbosity,
		AutoNotify:        cur.AutoNotify,
		GroupChats:        cur.GroupChats,
		MaintenanceMode:   cur.MaintenanceMode,
		MaxRechecks:       cur.MaxRechecks,
		Admins:            cur.Admins,
		Timezone:          cur.Location.String(),
	})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.reload == nil {
		s.writeError(w, http.StatusNotImplemented, "reload not configured")
		return
	}
	if err := s.reload(r.Context()); err != nil {
		s.logger.Error().Err(err).Msg("Settings reload failed")
		s.writeError(w, http.StatusInternalServerError, "reload failed")
		return
	}
	s.logger.Info().Msg("Settings reloaded via admin API")
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("Response encoding failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
