package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrTerminalState indicates an update was refused because the request
// has already reached a terminal state.
var ErrTerminalState = errors.New("store: request is in a terminal state")

// Store provides durable CRUD for users, media requests, settings and the
// append-only log sink.
type Store interface {
	Close() error
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error

	// Users. Users referenced by requests are never hard-deleted;
	// DeactivateUser soft-disables them instead.
	CreateUser(ctx context.Context, u User) (*User, error)
	UserByPhone(ctx context.Context, phone string) (*User, error)
	UserByID(ctx context.Context, id int64) (*User, error)
	UpdateUser(ctx context.Context, u *User) error
	DeactivateUser(ctx context.Context, id int64) error
	ListUsers(ctx context.Context) ([]User, error)

	// Requests. Rows are created at submission time and mutated only by
	// the lifecycle manager; once terminal, state updates are refused.
	CreateRequest(ctx context.Context, r MediaRequest) (*MediaRequest, error)
	RequestByID(ctx context.Context, id int64) (*MediaRequest, error)
	RequestsByUser(ctx context.Context, userID int64, limit int) ([]MediaRequest, error)
	ListRequests(ctx context.Context, limit, offset int) ([]MediaRequest, error)
	SetRequestSubmitted(ctx context.Context, id, externalID int64) error
	SetRequestState(ctx context.Context, id int64, state RequestState, detail string) error
	CountRequestsSince(ctx context.Context, userID int64, since time.Time) (int, error)

	// Settings.
	Settings(ctx context.Context) (map[string]string, error)
	SetSetting(ctx context.Context, key, value string) error

	// Observability.
	AppendLog(ctx context.Context, e LogEntry) error
	PruneLogs(ctx context.Context, before time.Time) (int64, error)
	GatherStats(ctx context.Context, dayStart time.Time) (*Stats, error)
}

// Config selects and configures a storage backend.
type Config struct {
	Driver string // "sqlite" or "postgres"
	Path   string // sqlite database file
	URL    string // postgres connection string
}

// Open creates the store selected by cfg and verifies connectivity.
func Open(ctx context.Context, cfg Config, logger zerolog.Logger) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return OpenSQLite(ctx, cfg.Path, logger)
	case "postgres":
		return OpenPostgres(ctx, cfg.URL, logger)
	default:
		return nil, fmt.Errorf("unknown database driver: %s", cfg.Driver)
	}
}
