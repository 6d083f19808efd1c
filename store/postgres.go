package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Postgres backs the store with a pgx connection pool.
type Postgres struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// OpenPostgres opens a pool against url and verifies connectivity.
func OpenPostgres(ctx context.Context, url string, logger zerolog.Logger) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	p := &Postgres{pool: pool, logger: logger.With().Str("component", "store").Logger()}
	if err := p.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// Ping verifies the database is reachable.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Migrate applies the embedded schema.
func (p *Postgres) Migrate(ctx context.Context) error {
	schema, err := migrations.ReadFile("migrations/postgres.sql")
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}
	if _, err := p.pool.Exec(ctx, string(schema)); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}

const pgUserColumns = `id, phone_number, display_name, is_admin, is_active, verbosity, auto_notify, daily_limit, created_at, last_active`

// CreateUser inserts a new user.
func (p *Postgres) CreateUser(ctx context.Context, u User) (*User, error) {
	const q = `
INSERT INTO users (phone_number, display_name, is_admin, is_active, verbosity, auto_notify, daily_limit)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + pgUserColumns
	row := p.pool.QueryRow(ctx, q,
		u.PhoneNumber, u.DisplayName, u.IsAdmin, u.IsActive, string(u.Verbosity),
		u.AutoNotify, u.DailyLimit)
	created, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

// UserByPhone looks a user up by contact address.
func (p *Postgres) UserByPhone(ctx context.Context, phone string) (*User, error) {
	const q = `SELECT ` + pgUserColumns + ` FROM users WHERE phone_number = $1`
	u, err := scanUser(p.pool.QueryRow(ctx, q, phone))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user by phone: %w", err)
	}
	return u, nil
}

// UserByID looks a user up by id.
func (p *Postgres) UserByID(ctx context.Context, id int64) (*User, error) {
	const q = `SELECT ` + pgUserColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(p.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user by id: %w", err)
	}
	return u, nil
}

// UpdateUser persists mutable user fields.
func (p *Postgres) UpdateUser(ctx context.Context, u *User) error {
	const q = `
UPDATE users SET display_name = $1, is_admin = $2, is_active = $3, verbosity = $4,
	auto_notify = $5, daily_limit = $6, last_active = $7
WHERE id = $8`
	tag, err := p.pool.Exec(ctx, q,
		u.DisplayName, u.IsAdmin, u.IsActive, string(u.Verbosity),
		u.AutoNotify, u.DailyLimit, u.LastActive, u.ID)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeactivateUser soft-disables a user without deleting request history.
func (p *Postgres) DeactivateUser(ctx context.Context, id int64) error {
	tag, err := p.pool.Exec(ctx, `UPDATE users SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUsers returns all users, admins first.
func (p *Postgres) ListUsers(ctx context.Context) ([]User, error) {
	const q = `SELECT ` + pgUserColumns + ` FROM users ORDER BY is_admin DESC, phone_number`
	rows, err := p.pool.Query(ctx, q)
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

const pgRequestColumns = `id, user_id, external_id, kind, catalog_id, title, year, state, seasons, detail, created_at, updated_at, completed_at`

// CreateRequest inserts a request at the start of its lifecycle.
func (p *Postgres) CreateRequest(ctx context.Context, r MediaRequest) (*MediaRequest, error) {
	seasons, err := encodeSeasons(r.Seasons)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	const q = `
INSERT INTO media_requests (user_id, external_id, kind, catalog_id, title, year, state, seasons, detail)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + pgRequestColumns
	row := p.pool.QueryRow(ctx, q,
		r.UserID, r.ExternalID, string(r.Kind), r.CatalogID, r.Title, r.Year,
		string(r.State), seasons, nullableString(r.Detail))
	created, err := scanRequest(row)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return created, nil
}

// RequestByID fetches a single request.
func (p *Postgres) RequestByID(ctx context.Context, id int64) (*MediaRequest, error) {
	const q = `SELECT ` + pgRequestColumns + ` FROM media_requests WHERE id = $1`
	r, err := scanRequest(p.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("request by id: %w", err)
	}
	return r, nil
}

// RequestsByUser returns a user's requests, newest first.
func (p *Postgres) RequestsByUser(ctx context.Context, userID int64, limit int) ([]MediaRequest, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `SELECT ` + pgRequestColumns + ` FROM media_requests WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`
	return p.queryRequests(ctx, q, userID, limit)
}

// ListRequests returns requests across all users, newest first.
func (p *Postgres) ListRequests(ctx context.Context, limit, offset int) ([]MediaRequest, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT ` + pgRequestColumns + ` FROM media_requests ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`
	return p.queryRequests(ctx, q, limit, offset)
}

func (p *Postgres) queryRequests(ctx context.Context, q string, args ...any) ([]MediaRequest, error) {
	rows, err := p.pool.Query(ctx, q, args...)
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
func (p *Postgres) SetRequestSubmitted(ctx context.Context, id, externalID int64) error {
	const q = `
UPDATE media_requests SET external_id = $1, state = $2, updated_at = NOW()
WHERE id = $3 AND state = $4`
	tag, err := p.pool.Exec(ctx, q, externalID, string(StateAwaitingCheck), id, string(StateSubmitting))
	if err != nil {
		return fmt.Errorf("set request submitted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTerminalState
	}
	return nil
}

// SetRequestState moves a request into a new state, refusing updates to rows
// already terminal.
func (p *Postgres) SetRequestState(ctx context.Context, id int64, state RequestState, detail string) error {
	var completedAt *time.Time
	if state.Terminal() {
		now := time.Now().UTC()
		completedAt = &now
	}
	const q = `
UPDATE media_requests SET state = $1, detail = $2, updated_at = NOW(),
	completed_at = COALESCE($3, completed_at)
WHERE id = $4 AND state NOT IN ($5, $6, $7, $8)`
	tag, err := p.pool.Exec(ctx, q,
		string(state), nullableString(detail), completedAt, id,
		string(StateCompleted), string(StateFailed), string(StateDeclined), string(StateNotFound))
	if err != nil {
		return fmt.Errorf("set request state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := p.RequestByID(ctx, id); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrTerminalState
	}
	return nil
}

// CountRequestsSince counts a user's requests created at or after since.
func (p *Postgres) CountRequestsSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	const q = `SELECT COUNT(*) FROM media_requests WHERE user_id = $1 AND created_at >= $2`
	var n int
	if err := p.pool.QueryRow(ctx, q, userID, since.UTC()).Scan(&n); err != nil {
		return 0, fmt.Errorf("count requests: %w", err)
	}
	return n, nil
}

// Settings returns all settings rows as a key/value map.
func (p *Postgres) Settings(ctx context.Context) (map[string]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT key, value FROM settings`)
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
func (p *Postgres) SetSetting(ctx context.Context, key, value string) error {
	const q = `
INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, NOW())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`
	if _, err := p.pool.Exec(ctx, q, key, value); err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

// AppendLog writes one observability record.
func (p *Postgres) AppendLog(ctx context.Context, e LogEntry) error {
	const q = `
INSERT INTO log_entries (level, message, component, user_id, request_id)
VALUES ($1, $2, $3, $4, $5)`
	if _, err := p.pool.Exec(ctx, q, e.Level, e.Message, e.Component, e.UserID, e.RequestID); err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

// PruneLogs deletes log entries older than before and reports how many.
func (p *Postgres) PruneLogs(ctx context.Context, before time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM log_entries WHERE created_at < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune logs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GatherStats collects the counters shown by the admin stats command.
func (p *Postgres) GatherStats(ctx context.Context, dayStart time.Time) (*Stats, error) {
	var st Stats
	queries := []struct {
		dst  *int
		q    string
		args []any
	}{
		{&st.TotalUsers, `SELECT COUNT(*) FROM users WHERE is_active`, nil},
		{&st.RequestsToday, `SELECT COUNT(*) FROM media_requests WHERE created_at >= $1`, []any{dayStart.UTC()}},
		{&st.InFlight, `SELECT COUNT(*) FROM media_requests WHERE state IN ($1, $2, $3)`,
			[]any{string(StateSubmitting), string(StateAwaitingCheck), string(StateDownloading)}},
		{&st.Completed, `SELECT COUNT(*) FROM media_requests WHERE state = $1`, []any{string(StateCompleted)}},
		{&st.Failed, `SELECT COUNT(*) FROM media_requests WHERE state = $1`, []any{string(StateFailed)}},
	}
	for _, query := range queries {
		if err := p.pool.QueryRow(ctx, query.q, query.args...).Scan(query.dst); err != nil {
			return nil, fmt.Errorf("gather stats: %w", err)
		}
	}
	return &st, nil
}
