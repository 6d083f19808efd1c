package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// SQLite is the default single-file backend.
type SQLite struct {
	db     *sql.DB
	logger zerolog.Logger
}

// OpenSQLite opens the database at path, creating it if needed.
func OpenSQLite(ctx context.Context, path string, logger zerolog.Logger) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite database path is required")
	}

	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	// WAL and a busy timeout keep concurrent readers from tripping over the
	// single writer.
	dsn = fmt.Sprintf("%s%s_pragma=busy_timeout=10000&_pragma=journal_mode=WAL&_pragma=foreign_keys=ON", dsn, sep)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLite{db: db, logger: logger.With().Str("component", "store").Logger()}, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate applies the embedded schema.
func (s *SQLite) Migrate(ctx context.Context) error {
	schema, err := migrations.ReadFile("migrations/sqlite.sql")
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, string(schema)); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}

const sqliteUserColumns = `id, phone_number, display_name, is_admin, is_active, verbosity, auto_notify, daily_limit, created_at, last_active`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	var verbosity string
	err := row.Scan(&u.ID, &u.PhoneNumber, &u.DisplayName, &u.IsAdmin, &u.IsActive,
		&verbosity, &u.AutoNotify, &u.DailyLimit, &u.CreatedAt, &u.LastActive)
	if err != nil {
		return nil, err
	}
	u.Verbosity = Verbosity(verbosity)
	return &u, nil
}

// CreateUser inserts a new user.
func (s *SQLite) CreateUser(ctx context.Context, u User) (*User, error) {
	now := time.Now().UTC()
	const q = `
INSERT INTO users (phone_number, display_name, is_admin, is_active, verbosity, auto_notify, daily_limit, created_at, last_active)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + sqliteUserColumns
	row := s.db.QueryRowContext(ctx, q,
		u.PhoneNumber, u.DisplayName, u.IsAdmin, u.IsActive, string(u.Verbosity),
		u.AutoNotify, u.DailyLimit, now, now)
	created, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

// UserByPhone looks a user up by contact address.
func (s *SQLite) UserByPhone(ctx context.Context, phone string) (*User, error) {
	const q = `SELECT ` + sqliteUserColumns + ` FROM users WHERE phone_number = ?`
	u, err := scanUser(s.db.QueryRowContext(ctx, q, phone))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user by phone: %w", err)
	}
	return u, nil
}

// UserByID looks a user up by id.
func (s *SQLite) UserByID(ctx context.Context, id int64) (*User, error) {
	const q = `SELECT ` + sqliteUserColumns + ` FROM users WHERE id = ?`
	u, err := scanUser(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user by id: %w", err)
	}
	return u, nil
}

// UpdateUser persists mutable user fields.
func (s *SQLite) UpdateUser(ctx context.Context, u *User) error {
	const q = `
UPDATE users SET display_name = ?, is_admin = ?, is_active = ?, verbosity = ?,
	auto_notify = ?, daily_limit = ?, last_active = ?
WHERE id = ?`
	res, err := s.db.ExecContext(ctx, q,
		u.DisplayName, u.IsAdmin, u.IsActive, string(u.Verbosity),
		u.AutoNotify, u.DailyLimit, u.LastActive, u.ID)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeactivateUser soft-disables a user without deleting request history.
func (s *SQLite) DeactivateUser(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET is_active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUsers returns all users, admins first.
func (s *SQLite) ListUsers(ctx context.Context) ([]User, error) {
	const q = `SELECT ` + sqliteUserColumns + ` FROM users ORDER BY is_admin DESC, phone_number`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

const sqliteRequestColumns = `id, user_id, external_id, kind, catalog_id, title, year, state, seasons, detail, created_at, updated_at, completed_at`

func scanRequest(row interface{ Scan(...any) error }) (*MediaRequest, error) {
	var r MediaRequest
	var kind, state string
	var seasons, detail *string
	err := row.Scan(&r.ID, &r.UserID, &r.ExternalID, &kind, &r.CatalogID, &r.Title,
		&r.Year, &state, &seasons, &detail, &r.CreatedAt, &r.UpdatedAt, &r.CompletedAt)
	if err != nil {
		return nil, err
	}
	r.Kind = MediaKind(kind)
	r.State = RequestState(state)
	if detail != nil {
		r.Detail = *detail
	}
	r.Seasons, err = decodeSeasons(seasons)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRequest inserts a request at the start of its lifecycle.
func (s *SQLite) CreateRequest(ctx context.Context, r MediaRequest) (*MediaRequest, error) {
	seasons, err := encodeSeasons(r.Seasons)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	now := time.Now().UTC()
	const q = `
INSERT INTO media_requests (user_id, external_id, kind, catalog_id, title, year, state, seasons, detail, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + sqliteRequestColumns
	row := s.db.QueryRowContext(ctx, q,
		r.UserID, r.ExternalID, string(r.Kind), r.CatalogID, r.Title, r.Year,
		string(r.State), seasons, nullableString(r.Detail), now, now)
	created, err := scanRequest(row)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return created, nil
}

// RequestByID fetches a single request.
func (s *SQLite) RequestByID(ctx context.Context, id int64) (*MediaRequest, error) {
	const q = `SELECT ` + sqliteRequestColumns + ` FROM media_requests WHERE id = ?`
	r, err := scanRequest(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("request by id: %w", err)
	}
	return r, nil
}

// RequestsByUser returns a user's requests, newest first.
func (s *SQLite) RequestsByUser(ctx context.Context, userID int64, limit int) ([]MediaRequest, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `SELECT ` + sqliteRequestColumns + ` FROM media_requests WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`
	return s.queryRequests(ctx, q, userID, limit)
}

// ListRequests returns requests across all users, newest first.
func (s *SQLite) ListRequests(ctx context.Context, limit, offset int) ([]MediaRequest, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT ` + sqliteRequestColumns + ` FROM media_requests ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	return s.queryRequests(ctx, q, limit, offset)
}

func (s *SQLite) queryRequests(ctx context.Context, q string, args ...any) ([]MediaRequest, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query requests: %w", err)
	}
	defer rows.Close()

	var requests []MediaRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("query requests: %w", err)
		}
		requests = append(requests, *r)
	}
	return requests, rows.Err()
}

// SetRequestSubmitted records upstream acceptance and arms the check state.
func (s *SQLite) SetRequestSubmitted(ctx context.Context, id, externalID int64) error {
	const q = `
UPDATE media_requests SET external_id = ?, state = ?, updated_at = ?
WHERE id = ? AND state = ?`
	res, err := s.db.ExecContext(ctx, q,
		externalID, string(StateAwaitingCheck), time.Now().UTC(), id, string(StateSubmitting))
	if err != nil {
		return fmt.Errorf("set request submitted: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTerminalState
	}
	return nil
}

// SetRequestState moves a request into a new state. Updates against rows
// already in a terminal state are refused with ErrTerminalState, which keeps
// stale scheduler callbacks harmless.
func (s *SQLite) SetRequestState(ctx context.Context, id int64, state RequestState, detail string) error {
	now := time.Now().UTC()
	var completedAt *time.Time
	if state.Terminal() {
		completedAt = &now
	}
	const q = `
UPDATE media_requests SET state = ?, detail = ?, updated_at = ?,
	completed_at = COALESCE(?, completed_at)
WHERE id = ? AND state NOT IN (?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, q,
		string(state), nullableString(detail), now, completedAt, id,
		string(StateCompleted), string(StateFailed), string(StateDeclined), string(StateNotFound))
	if err != nil {
		return fmt.Errorf("set request state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.RequestByID(ctx, id); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrTerminalState
	}
	return nil
}

// CountRequestsSince counts a user's requests created at or after since.
func (s *SQLite) CountRequestsSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	const q = `SELECT COUNT(*) FROM media_requests WHERE user_id = ? AND created_at >= ?`
	var n int
	if err := s.db.QueryRowContext(ctx, q, userID, since.UTC()).Scan(&n); err != nil {
		return 0, fmt.Errorf("count requests: %w", err)
	}
	return n, nil
}

// Settings returns all settings rows as a key/value map.
func (s *SQLite) Settings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("load settings: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// SetSetting upserts one settings row.
func (s *SQLite) SetSetting(ctx context.Context, key, value string) error {
	const q = `
INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, q, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

// AppendLog writes one observability record.
func (s *SQLite) AppendLog(ctx context.Context, e LogEntry) error {
	const q = `
INSERT INTO log_entries (level, message, component, user_id, request_id, created_at)
VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q, e.Level, e.Message, e.Component, e.UserID, e.RequestID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

// PruneLogs deletes log entries older than before and reports how many.
func (s *SQLite) PruneLogs(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM log_entries WHERE created_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune logs: %w", err)
	}
	return res.RowsAffected()
}

// GatherStats collects the counters shown by the admin stats command.
func (s *SQLite) GatherStats(ctx context.Context, dayStart time.Time) (*Stats, error) {
	var st Stats
	queries := []struct {
		dst  *int
		q    string
		args []any
	}{
		{&st.TotalUsers, `SELECT COUNT(*) FROM users WHERE is_active = 1`, nil},
		{&st.RequestsToday, `SELECT COUNT(*) FROM media_requests WHERE created_at >= ?`, []any{dayStart.UTC()}},
		{&st.InFlight, `SELECT COUNT(*) FROM media_requests WHERE state IN (?, ?, ?)`,
			[]any{string(StateSubmitting), string(StateAwaitingCheck), string(StateDownloading)}},
		{&st.Completed, `SELECT COUNT(*) FROM media_requests WHERE state = ?`, []any{string(StateCompleted)}},
		{&st.Failed, `SELECT COUNT(*) FROM media_requests WHERE state = ?`, []any{string(StateFailed)}},
	}
	for _, query := range queries {
		if err := s.db.QueryRowContext(ctx, query.q, query.args...).Scan(query.dst); err != nil {
			return nil, fmt.Errorf("gather stats: %w", err)
		}
	}
	return &st, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
