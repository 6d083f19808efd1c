// Package lifecycle owns the per-request state machine: submission,
// disambiguation prompts, scheduled status re-checks, verbosity-tiered
// notifications, and admin escalation on unexpected failure.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mbrownnycnyc/signalerr/config"
	"github.com/mbrownnycnyc/signalerr/confirm"
	"github.com/mbrownnycnyc/signalerr/internal/syncutil"
	"github.com/mbrownnycnyc/signalerr/metrics"
	"github.com/mbrownnycnyc/signalerr/notify"
	"github.com/mbrownnycnyc/signalerr/overseerr"
	"github.com/mbrownnycnyc/signalerr/policy"
	"github.com/mbrownnycnyc/signalerr/ratelimit"
	"github.com/mbrownnycnyc/signalerr/store"
)

const adminAlertConcurrency = 4

// MediaService is the slice of the Overseerr client the manager consumes.
type MediaService interface {
	MovieDetails(ctx context.Context, tmdbID int) (*overseerr.MovieDetails, error)
	TvDetails(ctx context.Context, tmdbID int) (*overseerr.TvDetails, error)
	Collection(ctx context.Context, id int) (*overseerr.Collection, error)
	MediaStatus(ctx context.Context, mediaID int) (*overseerr.MediaStatus, error)
	SubmitRequest(ctx context.Context, opts overseerr.SubmitOptions) (*overseerr.SubmitResponse, error)
	RequestDetails(ctx context.Context, id int64) (*overseerr.RequestDetails, error)
	DeclineRequest(ctx context.Context, id int64, reason string) error
}

// Messenger delivers outbound chat messages.
type Messenger interface {
	Send(ctx context.Context, recipient, text string) error
	SendGroup(ctx context.Context, groupID, text string) error
}

// ETAProvider answers remaining download time, when known.
type ETAProvider interface {
	MovieETA(ctx context.Context, tmdbID int64) (time.Duration, bool)
	SeriesETA(ctx context.Context, tvdbID int64) (time.Duration, bool)
}

// Draft is a request that has not been submitted yet. It survives inside
// the confirmation broker while a disambiguation prompt is pending.
type Draft struct {
	UserID       int64
	Phone        string
	Conversation string // equals Phone for direct chats, group id otherwise
	Kind         store.MediaKind
	CatalogID    int
	Title        string
	Year         int
	Seasons      []int
	SeasonCount  int
	// PartIDs carries every catalog id to submit when a movie-collection
	// expansion was accepted. Empty means just CatalogID.
	PartIDs []int
	// ExplicitSeasons marks a season selection the user typed out, which
	// bypasses the season-cap prompt.
	ExplicitSeasons bool
}

// Manager drives every media request through its lifecycle.
type Manager struct {
	store     store.Store
	media     MediaService
	messenger Messenger
	eta       ETAProvider // may be nil
	scheduler *Scheduler
	broker    *confirm.Broker[Draft]
	limiter   *ratelimit.Limiter
	runtime   *config.Runtime
	policy    *policy.Engine // may be nil
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	// retried and rechecks track per-request scheduler bookkeeping: one
	// tolerated ServiceUnavailable per check cycle, and the bounded
	// completion-watch loop.
	retried  *syncutil.Set[int64]
	rechecks *syncutil.Counter[int64]
}

// New wires a lifecycle manager.
func New(
	st store.Store,
	media MediaService,
	messenger Messenger,
	eta ETAProvider,
	scheduler *Scheduler,
	limiter *ratelimit.Limiter,
	runtime *config.Runtime,
	policyEngine *policy.Engine,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Manager {
	return &Manager{
		store:     st,
		media:     media,
		messenger: messenger,
		eta:       eta,
		scheduler: scheduler,
		broker:    confirm.NewBroker[Draft](),
		limiter:   limiter,
		runtime:   runtime,
		policy:    policyEngine,
		metrics:   m,
		logger:    logger.With().Str("component", "lifecycle").Logger(),
		retried:   syncutil.NewSet[int64](),
		rechecks:  syncutil.NewCounter[int64](),
	}
}

// Broker exposes the confirmation broker for pending-state queries.
func (m *Manager) Broker() *confirm.Broker[Draft] {
	return m.broker
}

func checkKey(id int64) string {
	return "check:" + strconv.FormatInt(id, 10)
}

func confirmKey(phone string) string {
	return "confirm:" + phone
}

// BeginRequest runs the draft through policy, the rate limiter, and the
// disambiguation rules, then submits it or parks it behind a confirmation
// prompt. All user-facing messaging happens inside; the returned error is
// for the caller's log only.
func (m *Manager) BeginRequest(ctx context.Context, user *store.User, draft Draft) error {
	settings := m.runtime.Current()

	if denied, err := m.applyPolicy(ctx, user, &draft, settings); denied || err != nil {
		return err
	}

	allowed, err := m.limiter.Allow(ctx, user, time.Now(), settings.Location)
	if err != nil {
		return m.internalFailure(ctx, user, draft, 0, fmt.Errorf("rate limit check: %w", err))
	}
	if !allowed {
		m.rateLimited(ctx, user, draft, settings)
		return ErrRateLimited
	}

	switch draft.Kind {
	case store.KindMovie:
		return m.beginMovie(ctx, user, draft, settings)
	case store.KindTV:
		return m.beginShow(ctx, user, draft, settings)
	default:
		return m.internalFailure(ctx, user, draft, 0, fmt.Errorf("unknown media kind %q", draft.Kind))
	}
}

// rateLimited records the refusal and tells the user.
func (m *Manager) rateLimited(ctx context.Context, user *store.User, draft Draft, settings *config.Settings) {
	m.metrics.Requests.WithLabelValues("rate_limited").Inc()
	m.logEntry(ctx, "info", "request rate limited", &user.ID, nil)
	m.reply(ctx, draft.Conversation, user.PhoneNumber, notify.Render(notify.Event{
		Kind:       notify.EventRateLimited,
		DailyLimit: user.DailyLimit,
		At:         time.Now(),
	}, m.verbosityFor(user, settings)))
}

// applyPolicy evaluates the deny rules. A denial records a declined request
// with the matched rule as detail and tells the user.
func (m *Manager) applyPolicy(ctx context.Context, user *store.User, draft *Draft, settings *config.Settings) (bool, error) {
	if m.policy == nil || m.policy.Len() == 0 {
		return false, nil
	}

	used, err := m.limiter.Used(ctx, user, time.Now(), settings.Location)
	if err != nil {
		used = 0
	}

	rule, denied := m.policy.Evaluate(policy.RequestContext{
		Title:       draft.Title,
		Year:        draft.Year,
		Kind:        string(draft.Kind),
		Seasons:     draft.Seasons,
		SeasonCount: draft.SeasonCount,
		Phone:       user.PhoneNumber,
		DisplayName: user.DisplayName,
		UsedToday:   used,
		IsAdmin:     user.IsAdmin,
	})
	if !denied {
		return false, nil
	}

	row := m.newRow(user, *draft)
	row.State = store.StateDeclined
	row.Detail = "policy: " + rule
	if _, err := m.store.CreateRequest(ctx, row); err != nil {
		m.logger.Error().Err(err).Msg("Failed to record policy decline")
	}

	m.metrics.Requests.WithLabelValues("policy_denied").Inc()
	m.logger.Info().Str("title", draft.Title).Str("rule", rule).Msg("Request denied by policy")
	m.reply(ctx, draft.Conversation, user.PhoneNumber, notify.Render(notify.Event{
		Kind:   notify.EventDeclined,
		Title:  draft.Title,
		Reason: "blocked by server policy",
		At:     time.Now(),
	}, m.verbosityFor(user, settings)))
	return true, nil
}

// beginMovie checks collection membership. Two or more released members
// trigger an expansion prompt; otherwise the movie submits as-is.
func (m *Manager) beginMovie(ctx context.Context, user *store.User, draft Draft, settings *config.Settings) error {
	details, err := m.media.MovieDetails(ctx, draft.CatalogID)
	if err != nil {
		// Details are an enrichment step. Submission has its own failure
		// handling, so degrade to a plain single-title submit.
		m.logger.Warn().Err(err).Str("title", draft.Title).Msg("Movie details lookup failed, submitting without expansion check")
		return m.submitDraft(ctx, user, draft)
	}

	if details.MediaInfo != nil && details.MediaInfo.Status == overseerr.RequestStatusAvailable &&
		m.stillAvailable(ctx, details.MediaInfo.ID) {
		return m.alreadyAvailable(ctx, user, draft, settings)
	}

	if details.Collection != nil {
		collection, err := m.media.Collection(ctx, details.Collection.ID)
		if err == nil {
			released := releasedParts(collection.Parts)
			if len(released) >= 2 {
				expanded := draft
				expanded.PartIDs = released

				prompt := fmt.Sprintf("🎬 '%s' is part of %s (%d movies). Want me to request all of them? (yes/no)",
					draft.Title, collection.Name, len(released))
				m.propose(ctx, user, draft, expanded, prompt, settings)
				return nil
			}
		} else {
			m.logger.Warn().Err(err).Int("collection", details.Collection.ID).Msg("Collection lookup failed")
		}
	}

	return m.submitDraft(ctx, user, draft)
}

// beginShow resolves the season selection. Shows above the season threshold
// prompt to cap at the latest N seasons unless the user already picked.
func (m *Manager) beginShow(ctx context.Context, user *store.User, draft Draft, settings *config.Settings) error {
	details, err := m.media.TvDetails(ctx, draft.CatalogID)
	if err != nil {
		m.logger.Warn().Err(err).Str("title", draft.Title).Msg("TV details lookup failed, submitting without season check")
		return m.submitDraft(ctx, user, draft)
	}

	if details.MediaInfo != nil && details.MediaInfo.Status == overseerr.RequestStatusAvailable &&
		m.stillAvailable(ctx, details.MediaInfo.ID) {
		return m.alreadyAvailable(ctx, user, draft, settings)
	}

	draft.SeasonCount = details.NumberOfSeasons

	if draft.ExplicitSeasons && len(draft.Seasons) > 0 {
		return m.submitDraft(ctx, user, draft)
	}

	if draft.SeasonCount > 0 {
		draft.Seasons = seasonRange(1, draft.SeasonCount)
	}

	threshold := settings.SeasonThreshold
	if draft.SeasonCount > threshold {
		expanded := draft
		expanded.Seasons = seasonRange(draft.SeasonCount-threshold+1, draft.SeasonCount)

		prompt := fmt.Sprintf("📺 '%s' has %d seasons. Should I grab just the latest %d? (yes/no, 'no' requests all %d)",
			draft.Title, draft.SeasonCount, threshold, draft.SeasonCount)
		m.propose(ctx, user, draft, expanded, prompt, settings)
		return nil
	}

	return m.submitDraft(ctx, user, draft)
}

// stillAvailable confirms a cached availability flag against the live
// status endpoint. Detail payloads can lag the library; when the live
// lookup fails the cached flag stands.
func (m *Manager) stillAvailable(ctx context.Context, mediaID int) bool {
	status, err := m.media.MediaStatus(ctx, mediaID)
	if err != nil {
		m.logger.Debug().Err(err).Int("media_id", mediaID).Msg("Live media status lookup failed")
		return true
	}
	return status.Available()
}

// alreadyAvailable short-circuits a request for media that is already in
// the library.
func (m *Manager) alreadyAvailable(ctx context.Context, user *store.User, draft Draft, settings *config.Settings) error {
	m.metrics.Requests.WithLabelValues("already_available").Inc()
	m.reply(ctx, draft.Conversation, user.PhoneNumber, notify.Render(notify.Event{
		Kind:  notify.EventDownloadCompleted,
		Title: draft.Title,
		At:    time.Now(),
	}, m.verbosityFor(user, settings)))
	return nil
}

// propose parks the draft behind a yes/no prompt and arms the silent
// timeout fallback.
func (m *Manager) propose(ctx context.Context, user *store.User, original, expanded Draft, prompt string, settings *config.Settings) {
	p := m.broker.Propose(user.PhoneNumber, original.Conversation, original, expanded, settings.ConfirmTTL)

	token := p.Token
	phone := user.PhoneNumber
	m.scheduler.Schedule(confirmKey(phone), settings.ConfirmTTL, func(cbCtx context.Context) {
		m.confirmExpired(cbCtx, phone, token)
	})

	m.reply(ctx, original.Conversation, phone, prompt)
}

// HandleReply resolves inbound text against the user's pending
// confirmation. It returns true when the text was consumed as a yes/no
// answer; false means the caller should treat it as a fresh command (any
// superseded draft has already been submitted in its original form).
func (m *Manager) HandleReply(ctx context.Context, user *store.User, text string) bool {
	outcome, pending := m.broker.Resolve(user.PhoneNumber, text)
	if outcome == confirm.OutcomeNone {
		return false
	}

	m.scheduler.Cancel(confirmKey(user.PhoneNumber))

	switch outcome {
	case confirm.OutcomeAccepted:
		if err := m.submitDraft(ctx, user, pending.Expanded); err != nil {
			m.logger.Error().Err(err).Msg("Expanded submission failed")
		}
		return true
	case confirm.OutcomeRejected:
		if err := m.submitDraft(ctx, user, pending.Original); err != nil {
			m.logger.Error().Err(err).Msg("Original submission failed")
		}
		return true
	default:
		// Unrelated text supersedes the prompt: the original draft
		// proceeds and the text is handled as a new command.
		m.logEntry(ctx, "info", "confirmation superseded by new command", &user.ID, nil)
		if err := m.submitDraft(ctx, user, pending.Original); err != nil {
			m.logger.Error().Err(err).Msg("Superseded submission failed")
		}
		return false
	}
}

// confirmExpired is the scheduler fallback for an unanswered prompt: the
// original draft proceeds silently and the timeout is logged.
func (m *Manager) confirmExpired(ctx context.Context, phone, token string) {
	pending := m.broker.Take(phone, token)
	if pending == nil {
		return
	}

	user, err := m.store.UserByPhone(ctx, phone)
	if err != nil {
		m.logger.Error().Err(err).Str("phone", phone).Msg("Confirmation timeout for unknown user")
		return
	}

	m.logEntry(ctx, "info", "confirmation timed out, falling back to original draft", &user.ID, nil)
	m.logger.Info().Str("phone", phone).Str("title", pending.Original.Title).Msg("Confirmation expired")

	if err := m.submitDraft(ctx, user, pending.Original); err != nil {
		m.logger.Error().Err(err).Msg("Fallback submission failed")
	}
}

// submitDraft creates the durable request row, submits to the external
// service, and arms the delayed status check.
func (m *Manager) submitDraft(ctx context.Context, user *store.User, draft Draft) error {
	settings := m.runtime.Current()

	// A draft parked behind a confirmation outlives the cap check made when
	// the command arrived, and the expiry callback runs outside the router's
	// per-user lock. The cap is enforced again here, where the row is made.
	allowed, err := m.limiter.Allow(ctx, user, time.Now(), settings.Location)
	if err != nil {
		return m.internalFailure(ctx, user, draft, 0, fmt.Errorf("rate limit check: %w", err))
	}
	if !allowed {
		m.rateLimited(ctx, user, draft, settings)
		return ErrRateLimited
	}

	created, err := m.store.CreateRequest(ctx, m.newRow(user, draft))
	if err != nil {
		return m.internalFailure(ctx, user, draft, 0, fmt.Errorf("create request row: %w", err))
	}

	externalID, submitErr := m.submitUpstream(ctx, draft)
	if submitErr != nil {
		if errors.Is(submitErr, overseerr.ErrAlreadyRequested) {
			if err := m.store.SetRequestState(ctx, created.ID, store.StateFailed, "already requested upstream"); err != nil {
				m.logger.Error().Err(err).Int64("request_id", created.ID).Msg("Failed to mark request")
			}
			m.metrics.Requests.WithLabelValues("duplicate").Inc()
			m.reply(ctx, draft.Conversation, user.PhoneNumber, notify.Render(notify.Event{
				Kind:   notify.EventDeclined,
				Title:  draft.Title,
				Reason: "already requested",
				At:     time.Now(),
			}, m.verbosityFor(user, settings)))
			return nil
		}
		return m.internalFailure(ctx, user, draft, created.ID, submitErr)
	}

	if err := m.store.SetRequestSubmitted(ctx, created.ID, externalID); err != nil {
		return m.internalFailure(ctx, user, draft, created.ID, fmt.Errorf("record external id: %w", err))
	}
	if err := m.store.SetRequestState(ctx, created.ID, store.StateAwaitingCheck, ""); err != nil {
		return m.internalFailure(ctx, user, draft, created.ID, fmt.Errorf("enter awaiting_check: %w", err))
	}

	m.metrics.Requests.WithLabelValues("submitted").Inc()
	m.logEntry(ctx, "info", fmt.Sprintf("submitted %q upstream as %d", draft.Title, externalID), &user.ID, &created.ID)

	m.reply(ctx, draft.Conversation, user.PhoneNumber, notify.Render(notify.Event{
		Kind:       notify.EventRequested,
		Title:      draft.Title,
		Year:       draft.Year,
		Seasons:    draft.Seasons,
		ExternalID: externalID,
		CheckDelay: settings.CheckDelay,
		At:         time.Now(),
	}, m.verbosityFor(user, settings)))

	requestID := created.ID
	m.scheduler.Schedule(checkKey(requestID), settings.CheckDelay, func(cbCtx context.Context) {
		m.scheduledCheck(cbCtx, requestID)
	})
	return nil
}

// submitUpstream issues the external submission calls. Collection
// expansions submit one request per member film; the tracked external id
// is the primary title's. A duplicate member inside an expansion is
// ignored, but a duplicate on the only target surfaces.
func (m *Manager) submitUpstream(ctx context.Context, draft Draft) (int64, error) {
	if draft.Kind == store.KindTV {
		resp, err := m.media.SubmitRequest(ctx, overseerr.SubmitOptions{
			MediaType: overseerr.MediaTypeTV,
			MediaID:   draft.CatalogID,
			Seasons:   draft.Seasons,
		})
		if err != nil {
			return 0, err
		}
		return resp.ID, nil
	}

	targets := draft.PartIDs
	if len(targets) == 0 {
		targets = []int{draft.CatalogID}
	}

	var primary int64
	var first int64
	submitted := 0
	for _, id := range targets {
		resp, err := m.media.SubmitRequest(ctx, overseerr.SubmitOptions{
			MediaType: overseerr.MediaTypeMovie,
			MediaID:   id,
		})
		if err != nil {
			if errors.Is(err, overseerr.ErrAlreadyRequested) && len(targets) > 1 {
				continue
			}
			return 0, err
		}
		submitted++
		if first == 0 {
			first = resp.ID
		}
		if id == draft.CatalogID {
			primary = resp.ID
		}
	}

	if submitted == 0 {
		return 0, overseerr.ErrAlreadyRequested
	}
	if primary == 0 {
		primary = first
	}
	return primary, nil
}

// scheduledCheck is the timer callback. It re-reads the durable state
// before acting so a stale callback against a resolved request is a no-op.
func (m *Manager) scheduledCheck(ctx context.Context, requestID int64) {
	row, err := m.store.RequestByID(ctx, requestID)
	if err != nil {
		m.logger.Error().Err(err).Int64("request_id", requestID).Msg("Check callback could not load request")
		m.clearRuntime(requestID)
		return
	}

	if row.State != store.StateAwaitingCheck && row.State != store.StateDownloading {
		m.metrics.ScheduledChecks.WithLabelValues("stale").Inc()
		m.clearRuntime(requestID)
		return
	}
	if row.ExternalID == nil {
		m.failCheck(ctx, row, fmt.Errorf("request in %s without external id", row.State))
		return
	}

	settings := m.runtime.Current()

	user, err := m.store.UserByID(ctx, row.UserID)
	if err != nil {
		m.logger.Error().Err(err).Int64("request_id", requestID).Msg("Check callback could not load user")
		m.clearRuntime(requestID)
		return
	}

	details, err := m.media.RequestDetails(ctx, *row.ExternalID)
	if err != nil {
		if errors.Is(err, overseerr.ErrServiceUnavailable) && !m.retried.Has(requestID) {
			// One transient outage per check cycle is tolerated with a
			// shorter retry before anything reaches the user.
			m.retried.Add(requestID)
			m.metrics.ScheduledChecks.WithLabelValues("retry").Inc()
			m.logger.Warn().Int64("request_id", requestID).Msg("Status check hit unavailable service, retrying once")
			m.scheduler.Schedule(checkKey(requestID), settings.RetryBackoff, func(cbCtx context.Context) {
				m.scheduledCheck(cbCtx, requestID)
			})
			return
		}
		m.failCheck(ctx, row, err)
		return
	}
	m.retried.Remove(requestID)

	switch {
	case details.Declined():
		m.finish(ctx, user, row, store.StateDeclined, "declined upstream", notify.Event{
			Kind:       notify.EventDeclined,
			Title:      row.Title,
			ExternalID: *row.ExternalID,
			At:         time.Now(),
		}, "declined")

	case details.Completed():
		m.finish(ctx, user, row, store.StateCompleted, "", notify.Event{
			Kind:       notify.EventDownloadCompleted,
			Title:      row.Title,
			ExternalID: *row.ExternalID,
			At:         time.Now(),
		}, "completed")

	case details.Downloading():
		if row.State == store.StateAwaitingCheck {
			m.downloadStarted(ctx, user, row, details, settings)
			return
		}
		m.continueWatch(ctx, user, row, settings)

	default:
		// Still pending or approved upstream, nothing moving yet.
		if row.State == store.StateAwaitingCheck {
			m.finish(ctx, user, row, store.StateNotFound, "", notify.Event{
				Kind:       notify.EventNotFound,
				Title:      row.Title,
				ExternalID: *row.ExternalID,
				At:         time.Now(),
			}, "not_found")
			return
		}
		m.continueWatch(ctx, user, row, settings)
	}
}

// downloadStarted moves AwaitingCheck to Downloading, notifies with an ETA
// when one is known, and starts the completion watch if auto-notify is on.
func (m *Manager) downloadStarted(ctx context.Context, user *store.User, row *store.MediaRequest, details *overseerr.RequestDetails, settings *config.Settings) {
	if err := m.store.SetRequestState(ctx, row.ID, store.StateDownloading, ""); err != nil {
		if errors.Is(err, store.ErrTerminalState) {
			m.metrics.ScheduledChecks.WithLabelValues("stale").Inc()
			m.clearRuntime(row.ID)
			return
		}
		m.failCheck(ctx, row, err)
		return
	}

	var eta time.Duration
	if m.eta != nil {
		var ok bool
		if row.Kind == store.KindMovie {
			eta, ok = m.eta.MovieETA(ctx, row.CatalogID)
		} else {
			eta, ok = m.eta.SeriesETA(ctx, int64(details.Media.TvdbID))
		}
		if !ok {
			eta = 0
		}
	}

	m.metrics.ScheduledChecks.WithLabelValues("downloading").Inc()
	m.notifyDirect(ctx, user, notify.Event{
		Kind:       notify.EventDownloadStarted,
		Title:      row.Title,
		ETA:        eta,
		ExternalID: *row.ExternalID,
		At:         time.Now(),
	}, settings)

	if user.AutoNotify && settings.AutoNotify {
		m.armWatch(row.ID, settings)
	} else {
		m.clearRuntime(row.ID)
	}
}

// continueWatch re-arms the completion watch, honoring a mid-flight
// auto-notify opt-out and the bounded re-check cap.
func (m *Manager) continueWatch(ctx context.Context, user *store.User, row *store.MediaRequest, settings *config.Settings) {
	if !user.AutoNotify || !settings.AutoNotify {
		m.metrics.ScheduledChecks.WithLabelValues("watch_stopped").Inc()
		m.logger.Debug().Int64("request_id", row.ID).Msg("Auto-notify disabled, stopping completion watch")
		m.clearRuntime(row.ID)
		return
	}
	m.metrics.ScheduledChecks.WithLabelValues("watching").Inc()
	m.armWatch(row.ID, settings)
}

// armWatch schedules the next completion check unless the re-check cap is
// exhausted.
func (m *Manager) armWatch(requestID int64, settings *config.Settings) {
	count := m.rechecks.Inc(requestID)
	if settings.MaxRechecks > 0 && count > settings.MaxRechecks {
		m.logger.Warn().Int64("request_id", requestID).Int("rechecks", count-1).Msg("Completion watch hit re-check cap, stopping")
		m.clearRuntime(requestID)
		return
	}
	m.scheduler.Schedule(checkKey(requestID), settings.CheckDelay, func(cbCtx context.Context) {
		m.scheduledCheck(cbCtx, requestID)
	})
}

// finish writes a terminal state and notifies the user. A concurrent
// transition that beat us to a terminal state turns this into a no-op.
func (m *Manager) finish(ctx context.Context, user *store.User, row *store.MediaRequest, state store.RequestState, detail string, event notify.Event, outcome string) {
	if err := m.store.SetRequestState(ctx, row.ID, state, detail); err != nil {
		if errors.Is(err, store.ErrTerminalState) {
			m.metrics.ScheduledChecks.WithLabelValues("stale").Inc()
			m.clearRuntime(row.ID)
			return
		}
		m.failCheck(ctx, row, err)
		return
	}

	m.metrics.ScheduledChecks.WithLabelValues(outcome).Inc()
	m.metrics.Requests.WithLabelValues(outcome).Inc()
	m.logEntry(ctx, "info", fmt.Sprintf("request %q resolved: %s", row.Title, state), &row.UserID, &row.ID)

	settings := m.runtime.Current()
	m.notifyDirect(ctx, user, event, settings)
	m.clearRuntime(row.ID)
}

// failCheck handles an unexpected failure inside a scheduled check.
func (m *Manager) failCheck(ctx context.Context, row *store.MediaRequest, cause error) {
	m.metrics.ScheduledChecks.WithLabelValues("failed").Inc()
	m.clearRuntime(row.ID)

	if err := m.store.SetRequestState(ctx, row.ID, store.StateFailed, cause.Error()); err != nil && !errors.Is(err, store.ErrTerminalState) {
		m.logger.Error().Err(err).Int64("request_id", row.ID).Msg("Failed to mark request failed")
	}
	m.metrics.Requests.WithLabelValues("failed").Inc()
	m.logEntry(ctx, "error", fmt.Sprintf("check failed for %q: %v", row.Title, cause), &row.UserID, &row.ID)

	settings := m.runtime.Current()
	m.alertAdmins(ctx, row.ID, row.Title, cause, settings)

	if user, err := m.store.UserByID(ctx, row.UserID); err == nil {
		m.notifyDirect(ctx, user, notify.Event{Kind: notify.EventGenericError, Title: row.Title, At: time.Now()}, settings)
	}
}

// internalFailure records a Failed transition during submission, alerts
// every admin, and sends the user a generic apology with no internal
// detail.
func (m *Manager) internalFailure(ctx context.Context, user *store.User, draft Draft, requestID int64, cause error) error {
	settings := m.runtime.Current()

	if requestID > 0 {
		if err := m.store.SetRequestState(ctx, requestID, store.StateFailed, cause.Error()); err != nil && !errors.Is(err, store.ErrTerminalState) {
			m.logger.Error().Err(err).Int64("request_id", requestID).Msg("Failed to mark request failed")
		}
	}

	m.metrics.Requests.WithLabelValues("failed").Inc()
	m.logEntry(ctx, "error", fmt.Sprintf("submission failed for %q: %v", draft.Title, cause), &user.ID, nil)
	m.logger.Error().Err(cause).Str("title", draft.Title).Int64("request_id", requestID).Msg("Request failed")

	m.alertAdmins(ctx, requestID, draft.Title, cause, settings)

	m.reply(ctx, draft.Conversation, user.PhoneNumber, notify.Render(notify.Event{
		Kind:  notify.EventGenericError,
		Title: draft.Title,
		At:    time.Now(),
	}, m.verbosityFor(user, settings)))

	return cause
}

// alertAdmins fans the failure out to every configured admin identity.
func (m *Manager) alertAdmins(ctx context.Context, requestID int64, title string, cause error, settings *config.Settings) {
	if len(settings.Admins) == 0 {
		return
	}

	text := fmt.Sprintf("🚨 **Request Failure**\n\n🆔 Request: #%d\n🎬 Title: %s\n❗ Error: %v", requestID, title, cause)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(adminAlertConcurrency)
	for _, admin := range settings.Admins {
		g.Go(func() error {
			if err := m.messenger.Send(gctx, admin, text); err != nil {
				m.logger.Error().Err(err).Str("admin", admin).Msg("Failed to deliver admin alert")
			}
			return nil
		})
	}
	g.Wait()

	m.metrics.AdminAlerts.Add(float64(len(settings.Admins)))
}

// Decline terminates a request on behalf of an admin, cancels any armed
// check, propagates to the external service, and notifies the owner.
func (m *Manager) Decline(ctx context.Context, requestID int64, reason string) error {
	row, err := m.store.RequestByID(ctx, requestID)
	if err != nil {
		return err
	}

	if err := m.store.SetRequestState(ctx, requestID, store.StateDeclined, reason); err != nil {
		return err
	}

	m.scheduler.Cancel(checkKey(requestID))
	m.clearRuntime(requestID)

	if row.ExternalID != nil {
		if err := m.media.DeclineRequest(ctx, *row.ExternalID, reason); err != nil {
			m.logger.Warn().Err(err).Int64("request_id", requestID).Msg("Upstream decline failed")
		}
	}

	m.metrics.Requests.WithLabelValues("declined").Inc()
	m.logEntry(ctx, "info", fmt.Sprintf("request %q declined by admin", row.Title), &row.UserID, &row.ID)

	settings := m.runtime.Current()
	if user, err := m.store.UserByID(ctx, row.UserID); err == nil {
		m.notifyDirect(ctx, user, notify.Event{
			Kind:   notify.EventDeclined,
			Title:  row.Title,
			Reason: reason,
			At:     time.Now(),
		}, settings)
	}
	return nil
}

// CancelOwn lets a user cancel their own in-flight request. The caller
// confirms to the user; no notification is sent here.
func (m *Manager) CancelOwn(ctx context.Context, user *store.User, requestID int64) error {
	row, err := m.store.RequestByID(ctx, requestID)
	if err != nil {
		return err
	}
	if row.UserID != user.ID {
		return ErrNotOwner
	}

	if err := m.store.SetRequestState(ctx, requestID, store.StateDeclined, "canceled by user"); err != nil {
		return err
	}

	m.scheduler.Cancel(checkKey(requestID))
	m.clearRuntime(requestID)
	m.metrics.Requests.WithLabelValues("canceled").Inc()
	m.logEntry(ctx, "info", fmt.Sprintf("request %q canceled by owner", row.Title), &user.ID, &row.ID)
	return nil
}

func (m *Manager) newRow(user *store.User, draft Draft) store.MediaRequest {
	return store.MediaRequest{
		UserID:    user.ID,
		Kind:      draft.Kind,
		CatalogID: int64(draft.CatalogID),
		Title:     draft.Title,
		Year:      draft.Year,
		State:     store.StateSubmitting,
		Seasons:   draft.Seasons,
	}
}

// clearRuntime drops the per-request scheduler bookkeeping.
func (m *Manager) clearRuntime(requestID int64) {
	m.retried.Remove(requestID)
	m.rechecks.Remove(requestID)
}

// verbosityFor resolves the tier to format at: the user's preference when
// valid, the configured default otherwise.
func (m *Manager) verbosityFor(user *store.User, settings *config.Settings) notify.Verbosity {
	if user.Verbosity.Valid() {
		return notify.Verbosity(user.Verbosity)
	}
	return notify.Verbosity(settings.DefaultVerbosity)
}

// reply sends to the conversation a command arrived in: direct chat when
// the conversation is the user's own number, group otherwise.
func (m *Manager) reply(ctx context.Context, conversation, phone, text string) {
	var err error
	if conversation == "" || conversation == phone {
		err = m.messenger.Send(ctx, phone, text)
	} else {
		err = m.messenger.SendGroup(ctx, conversation, text)
	}
	if err != nil {
		m.logger.Error().Err(err).Str("conversation", conversation).Msg("Failed to send reply")
		return
	}
	m.metrics.OutboundMessages.WithLabelValues("lifecycle").Inc()
}

// notifyDirect delivers a scheduled-check notification straight to the
// owner's direct chat.
func (m *Manager) notifyDirect(ctx context.Context, user *store.User, event notify.Event, settings *config.Settings) {
	text := notify.Render(event, m.verbosityFor(user, settings))
	if err := m.messenger.Send(ctx, user.PhoneNumber, text); err != nil {
		m.logger.Error().Err(err).Str("phone", user.PhoneNumber).Msg("Failed to send notification")
		return
	}
	m.metrics.OutboundMessages.WithLabelValues("lifecycle").Inc()
}

// logEntry appends to the durable observability log, best-effort.
func (m *Manager) logEntry(ctx context.Context, level, message string, userID, requestID *int64) {
	err := m.store.AppendLog(ctx, store.LogEntry{
		Level:     level,
		Message:   message,
		Component: "lifecycle",
		UserID:    userID,
		RequestID: requestID,
	})
	if err != nil {
		m.logger.Debug().Err(err).Msg("Failed to append log entry")
	}
}

// releasedParts filters a collection down to members already released.
func releasedParts(parts []overseerr.SearchResult) []int {
	now := time.Now()
	var ids []int
	for _, part := range parts {
		if part.ReleaseDate == "" {
			continue
		}
		released, err := time.Parse("2006-01-02", part.ReleaseDate)
		if err != nil || released.After(now) {
			continue
		}
		ids = append(ids, part.ID)
	}
	return ids
}

// seasonRange returns the inclusive integer range [from, to].
func seasonRange(from, to int) []int {
	if to < from {
		return nil
	}
	out := make([]int, 0, to-from+1)
	for s := from; s <= to; s++ {
		out = append(out, s)
	}
	return out
}
