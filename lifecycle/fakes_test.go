package lifecycle

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mbrownnycnyc/signalerr/overseerr"
	"github.com/mbrownnycnyc/signalerr/store"
)

// fakeStore is an in-memory store.Store for lifecycle tests.
type fakeStore struct {
	mu       sync.Mutex
	users    map[int64]*store.User
	requests map[int64]*store.MediaRequest
	settings map[string]string
	logs     []store.LogEntry
	nextID   int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[int64]*store.User),
		requests: make(map[int64]*store.MediaRequest),
		settings: make(map[string]string),
	}
}

func (f *fakeStore) Close() error                  { return nil }
func (f *fakeStore) Ping(context.Context) error    { return nil }
func (f *fakeStore) Migrate(context.Context) error { return nil }

func (f *fakeStore) CreateUser(_ context.Context, u store.User) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	u.ID = f.nextID
	u.CreatedAt = time.Now()
	f.users[u.ID] = &u
	copied := u
	return &copied, nil
}

func (f *fakeStore) UserByPhone(_ context.Context, phone string) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.PhoneNumber == phone {
			copied := *u
			return &copied, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) UserByID(_ context.Context, id int64) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (f *fakeStore) UpdateUser(_ context.Context, u *store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[u.ID]; !ok {
		return store.ErrNotFound
	}
	copied := *u
	f.users[u.ID] = &copied
	return nil
}

func (f *fakeStore) DeactivateUser(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.IsActive = false
	return nil
}

func (f *fakeStore) ListUsers(context.Context) ([]store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, *u)
	}
	return out, nil
}

func (f *fakeStore) CreateRequest(_ context.Context, r store.MediaRequest) (*store.MediaRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	r.ID = f.nextID
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	f.requests[r.ID] = &r
	copied := r
	return &copied, nil
}

func (f *fakeStore) RequestByID(_ context.Context, id int64) (*store.MediaRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *r
	return &copied, nil
}

func (f *fakeStore) RequestsByUser(_ context.Context, userID int64, limit int) ([]store.MediaRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.MediaRequest
	for _, r := range f.requests {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) ListRequests(_ context.Context, limit, offset int) ([]store.MediaRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.MediaRequest
	for _, r := range f.requests {
		out = append(out, *r)
	}
	return out, nil
}

func (f *fakeStore) SetRequestSubmitted(_ context.Context, id, externalID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok {
		return store.ErrNotFound
	}
	r.ExternalID = &externalID
	r.UpdatedAt = time.Now()
	return nil
}

func (f *fakeStore) SetRequestState(_ context.Context, id int64, state store.RequestState, detail string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok {
		return store.ErrNotFound
	}
	if r.State.Terminal() {
		return store.ErrTerminalState
	}
	r.State = state
	r.Detail = detail
	r.UpdatedAt = time.Now()
	if state.Terminal() {
		now := time.Now()
		r.CompletedAt = &now
	}
	return nil
}

func (f *fakeStore) CountRequestsSince(_ context.Context, userID int64, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.UserID == userID && !r.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) Settings(context.Context) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.settings))
	for k, v := range f.settings {
		out[k] = v
	}
	return out, nil
}

func (f *fakeStore) SetSetting(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings[key] = value
	return nil
}

func (f *fakeStore) AppendLog(_ context.Context, e store.LogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, e)
	return nil
}

func (f *fakeStore) PruneLogs(_ context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeStore) GatherStats(_ context.Context, dayStart time.Time) (*store.Stats, error) {
	return &store.Stats{}, nil
}

func (f *fakeStore) requestState(id int64) store.RequestState {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.requests[id]; ok {
		return r.State
	}
	return ""
}

// fakeMedia is a scriptable MediaService.
type fakeMedia struct {
	mu sync.Mutex

	movie       *overseerr.MovieDetails
	tv          *overseerr.TvDetails
	collection  *overseerr.Collection
	mediaStatus *overseerr.MediaStatus

	submitErr  error
	submits    []overseerr.SubmitOptions
	nextExtID  int64
	details    *overseerr.RequestDetails
	detailsErr []error // consumed one per call, nil entries succeed
	declines   []int64
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{nextExtID: 100}
}

func (f *fakeMedia) MovieDetails(_ context.Context, tmdbID int) (*overseerr.MovieDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.movie == nil {
		return &overseerr.MovieDetails{ID: tmdbID}, nil
	}
	return f.movie, nil
}

func (f *fakeMedia) TvDetails(_ context.Context, tmdbID int) (*overseerr.TvDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tv == nil {
		return &overseerr.TvDetails{ID: tmdbID, NumberOfSeasons: 1}, nil
	}
	return f.tv, nil
}

func (f *fakeMedia) Collection(_ context.Context, id int) (*overseerr.Collection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.collection == nil {
		return nil, overseerr.ErrNotFound
	}
	return f.collection, nil
}

func (f *fakeMedia) MediaStatus(_ context.Context, mediaID int) (*overseerr.MediaStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mediaStatus == nil {
		return nil, overseerr.ErrNotFound
	}
	return f.mediaStatus, nil
}

func (f *fakeMedia) SubmitRequest(_ context.Context, opts overseerr.SubmitOptions) (*overseerr.SubmitResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submits = append(f.submits, opts)
	f.nextExtID++
	return &overseerr.SubmitResponse{ID: f.nextExtID, Status: overseerr.RequestStatusPending}, nil
}

func (f *fakeMedia) RequestDetails(_ context.Context, id int64) (*overseerr.RequestDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.detailsErr) > 0 {
		err := f.detailsErr[0]
		f.detailsErr = f.detailsErr[1:]
		if err != nil {
			return nil, err
		}
	}
	if f.details == nil {
		return &overseerr.RequestDetails{ID: id, Status: overseerr.RequestStatusPending}, nil
	}
	d := *f.details
	d.ID = id
	return &d, nil
}

func (f *fakeMedia) DeclineRequest(_ context.Context, id int64, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.declines = append(f.declines, id)
	return nil
}

func (f *fakeMedia) submitted() []overseerr.SubmitOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]overseerr.SubmitOptions(nil), f.submits...)
}

// fakeMessenger records outbound messages.
type fakeMessenger struct {
	mu    sync.Mutex
	sent  []sentMessage
	group []sentMessage
}

type sentMessage struct {
	to   string
	text string
}

func (f *fakeMessenger) Send(_ context.Context, recipient, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{to: recipient, text: text})
	return nil
}

func (f *fakeMessenger) SendGroup(_ context.Context, groupID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.group = append(f.group, sentMessage{to: groupID, text: text})
	return nil
}

func (f *fakeMessenger) all() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func (f *fakeMessenger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent) + len(f.group)
}

func (f *fakeMessenger) last() sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sentMessage{}
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeMessenger) sentTo(recipient string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent {
		if m.to == recipient {
			out = append(out, m.text)
		}
	}
	return out
}

func (f *fakeMessenger) anyContains(sub string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range append(append([]sentMessage(nil), f.sent...), f.group...) {
		if strings.Contains(m.text, sub) {
			return true
		}
	}
	return false
}

// fakeETA returns a fixed estimate.
type fakeETA struct {
	eta time.Duration
	ok  bool
}

func (f *fakeETA) MovieETA(context.Context, int64) (time.Duration, bool) {
	return f.eta, f.ok
}

func (f *fakeETA) SeriesETA(context.Context, int64) (time.Duration, bool) {
	return f.eta, f.ok
}
