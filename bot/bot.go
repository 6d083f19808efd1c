// Package bot routes inbound chat messages to commands. It owns user
// authorization, the maintenance-mode gate, and per-user serialization;
// everything request-shaped is handed to the lifecycle manager.
package bot

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/mbrownnycnyc/signalerr/config"
	"github.com/mbrownnycnyc/signalerr/internal/keyed"
	"github.com/mbrownnycnyc/signalerr/lifecycle"
	"github.com/mbrownnycnyc/signalerr/metrics"
	"github.com/mbrownnycnyc/signalerr/overseerr"
	"github.com/mbrownnycnyc/signalerr/ratelimit"
	"github.com/mbrownnycnyc/signalerr/signal"
	"github.com/mbrownnycnyc/signalerr/store"
)

// Lifecycle is the slice of the lifecycle manager the router drives.
type Lifecycle interface {
	BeginRequest(ctx context.Context, user *store.User, draft lifecycle.Draft) error
	HandleReply(ctx context.Context, user *store.User, text string) bool
	CancelOwn(ctx context.Context, user *store.User, requestID int64) error
	Decline(ctx context.Context, requestID int64, reason string) error
}

// Searcher is the catalog search slice of the media service client.
type Searcher interface {
	Search(ctx context.Context, query string, mediaType overseerr.MediaType) ([]overseerr.SearchResult, error)
}

// Messenger delivers outbound chat messages and creates group chats.
type Messenger interface {
	Send(ctx context.Context, recipient, text string) error
	SendGroup(ctx context.Context, groupID, text string) error
	CreateGroup(ctx context.Context, name string, members []string) (string, error)
}

// Bot is the command router over inbound Signal envelopes.
type Bot struct {
	store     store.Store
	manager   Lifecycle
	search    Searcher
	messenger Messenger
	runtime   *config.Runtime
	limiter   *ratelimit.Limiter
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	// locks serializes handling within a single user so a reply can never
	// interleave with the command that armed its confirmation.
	locks keyed.Mutex
}

// New wires the command router.
func New(
	st store.Store,
	manager Lifecycle,
	search Searcher,
	messenger Messenger,
	runtime *config.Runtime,
	limiter *ratelimit.Limiter,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Bot {
	return &Bot{
		store:     st,
		manager:   manager,
		search:    search,
		messenger: messenger,
		runtime:   runtime,
		limiter:   limiter,
		metrics:   m,
		logger:    logger.With().Str("component", "bot").Logger(),
	}
}

// HandleMessage is the signal client's inbound handler. Unknown senders are
// rejected in direct chats and ignored in groups.
func (b *Bot) HandleMessage(ctx context.Context, msg signal.Message) {
	b.metrics.InboundMessages.WithLabelValues(sourceLabel(msg)).Inc()

	unlock := b.locks.Lock(msg.Sender)
	defer unlock()

	settings := b.runtime.Current()

	if msg.GroupID != "" && !settings.GroupChats {
		b.logger.Debug().Str("group", msg.GroupID).Msg("Ignoring group message, group chats disabled")
		return
	}

	user, err := b.store.UserByPhone(ctx, msg.Sender)
	if err != nil || !user.IsActive {
		if !errors.Is(err, store.ErrNotFound) && err != nil {
			b.logger.Error().Err(err).Str("sender", msg.Sender).Msg("User lookup failed")
			return
		}
		b.logger.Info().Str("sender", msg.Sender).Msg("Message from unauthorized sender")
		if msg.GroupID == "" {
			b.send(ctx, msg.Sender, "🚫 Sorry, you're not authorized to use this bot. Ask an admin to add you.")
		}
		return
	}

	if settings.MaintenanceMode && !b.isAdmin(user, settings) {
		b.send(ctx, msg.Sender, "🔧 The bot is down for maintenance. Back soon!")
		return
	}

	b.touch(ctx, user)

	// A pending confirmation gets first claim on the text.
	if b.manager.HandleReply(ctx, user, msg.Text) {
		return
	}

	b.dispatch(ctx, user, conversationFor(msg), msg.Text)
}

func conversationFor(msg signal.Message) string {
	if msg.GroupID != "" {
		return msg.GroupID
	}
	return msg.Sender
}

func sourceLabel(msg signal.Message) string {
	if msg.GroupID != "" {
		return "group"
	}
	return "direct"
}

func (b *Bot) dispatch(ctx context.Context, user *store.User, conversation, text string) {
	cmd, rest := splitCommand(text)

	switch cmd {
	case "help":
		b.cmdHelp(ctx, user, conversation)
	case "request":
		b.cmdRequest(ctx, user, conversation, rest)
	case "search":
		b.cmdSearch(ctx, user, conversation, rest)
	case "status":
		b.cmdStatus(ctx, user, conversation, rest)
	case "myrequests":
		b.cmdMyRequests(ctx, user, conversation)
	case "cancel":
		b.cmdCancel(ctx, user, conversation, rest)
	case "settings":
		b.cmdSettings(ctx, user, conversation, rest)
	case "creategroup":
		b.cmdCreateGroup(ctx, user, conversation, rest)
	case "adduser":
		b.adminOnly(ctx, user, conversation, func() { b.cmdAddUser(ctx, user, conversation, rest) })
	case "removeuser":
		b.adminOnly(ctx, user, conversation, func() { b.cmdRemoveUser(ctx, user, conversation, rest) })
	case "listusers":
		b.adminOnly(ctx, user, conversation, func() { b.cmdListUsers(ctx, user, conversation) })
	case "decline":
		b.adminOnly(ctx, user, conversation, func() { b.cmdDecline(ctx, user, conversation, rest) })
	case "broadcast":
		b.adminOnly(ctx, user, conversation, func() { b.cmdBroadcast(ctx, user, conversation, rest) })
	case "stats":
		b.adminOnly(ctx, user, conversation, func() { b.cmdStats(ctx, user, conversation) })
	default:
		// Bare text is the friendly path: treat the whole message as a
		// request query.
		b.cmdRequest(ctx, user, conversation, text)
	}
}

func (b *Bot) adminOnly(ctx context.Context, user *store.User, conversation string, fn func()) {
	if !b.isAdmin(user, b.runtime.Current()) {
		b.reply(ctx, conversation, user.PhoneNumber, "🚫 That command is for admins.")
		return
	}
	fn()
}

// isAdmin accepts either the durable role flag or membership in the
// configured admin identity list.
func (b *Bot) isAdmin(user *store.User, settings *config.Settings) bool {
	return user.IsAdmin || settings.IsAdmin(user.PhoneNumber)
}

func (b *Bot) touch(ctx context.Context, user *store.User) {
	user.LastActive = time.Now()
	if err := b.store.UpdateUser(ctx, user); err != nil {
		b.logger.Debug().Err(err).Int64("user_id", user.ID).Msg("Failed to record activity")
	}
}

// reply answers into the conversation the command arrived in.
func (b *Bot) reply(ctx context.Context, conversation, phone, text string) {
	var err error
	if conversation == "" || conversation == phone {
		err = b.messenger.Send(ctx, phone, text)
	} else {
		err = b.messenger.SendGroup(ctx, conversation, text)
	}
	if err != nil {
		b.logger.Error().Err(err).Str("conversation", conversation).Msg("Failed to send reply")
		return
	}
	b.metrics.OutboundMessages.WithLabelValues("bot").Inc()
}

func (b *Bot) send(ctx context.Context, recipient, text string) {
	if err := b.messenger.Send(ctx, recipient, text); err != nil {
		b.logger.Error().Err(err).Str("recipient", recipient).Msg("Failed to send message")
		return
	}
	b.metrics.OutboundMessages.WithLabelValues("bot").Inc()
}
