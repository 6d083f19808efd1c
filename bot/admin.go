package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mbrownnycnyc/signalerr/ratelimit"
	"github.com/mbrownnycnyc/signalerr/store"
)

const broadcastConcurrency = 4

func (b *Bot) cmdAddUser(ctx context.Context, admin *store.User, conversation, rest string) {
	phoneArg, name := splitArg(rest)
	phone := normalizePhone(phoneArg)
	if phone == "" {
		b.reply(ctx, conversation, admin.PhoneNumber, "🤔 Usage: adduser +15551234567 [name]")
		return
	}

	if existing, err := b.store.UserByPhone(ctx, phone); err == nil {
		if existing.IsActive {
			b.reply(ctx, conversation, admin.PhoneNumber, fmt.Sprintf("ℹ️ %s is already a user.", phone))
			return
		}
		// Re-adding a deactivated user reactivates them.
		existing.IsActive = true
		if name != "" {
			existing.DisplayName = name
		}
		if err := b.store.UpdateUser(ctx, existing); err != nil {
			b.logger.Error().Err(err).Str("phone", phone).Msg("User reactivation failed")
			b.reply(ctx, conversation, admin.PhoneNumber, "❌ Couldn't reactivate that user.")
			return
		}
		b.reply(ctx, conversation, admin.PhoneNumber, fmt.Sprintf("✅ Reactivated %s.", phone))
		return
	}

	settings := b.runtime.Current()
	user := store.User{
		PhoneNumber: phone,
		DisplayName: name,
		IsActive:    true,
		Verbosity:   store.Verbosity(settings.DefaultVerbosity),
		AutoNotify:  settings.AutoNotify,
		DailyLimit:  settings.DailyLimit,
	}
	if _, err := b.store.CreateUser(ctx, user); err != nil {
		b.logger.Error().Err(err).Str("phone", phone).Msg("User creation failed")
		b.reply(ctx, conversation, admin.PhoneNumber, "❌ Couldn't add that user.")
		return
	}

	b.logger.Info().Str("phone", phone).Str("by", admin.PhoneNumber).Msg("User added")
	b.reply(ctx, conversation, admin.PhoneNumber, fmt.Sprintf("✅ Added %s.", phone))
	b.send(ctx, phone, "👋 You've been invited to the media request bot! Send 'help' to see what I can do.")
}

func (b *Bot) cmdRemoveUser(ctx context.Context, admin *store.User, conversation, rest string) {
	phone := normalizePhone(strings.TrimSpace(rest))
	if phone == "" {
		b.reply(ctx, conversation, admin.PhoneNumber, "🤔 Usage: removeuser +15551234567")
		return
	}

	user, err := b.store.UserByPhone(ctx, phone)
	if err != nil {
		b.reply(ctx, conversation, admin.PhoneNumber, fmt.Sprintf("🔍 No user %s found.", phone))
		return
	}

	// Soft-deactivate: requests keep their owner reference.
	if err := b.store.DeactivateUser(ctx, user.ID); err != nil {
		b.logger.Error().Err(err).Str("phone", phone).Msg("User deactivation failed")
		b.reply(ctx, conversation, admin.PhoneNumber, "❌ Couldn't remove that user.")
		return
	}

	b.logger.Info().Str("phone", phone).Str("by", admin.PhoneNumber).Msg("User removed")
	b.reply(ctx, conversation, admin.PhoneNumber, fmt.Sprintf("✅ Removed %s.", phone))
}

func (b *Bot) cmdListUsers(ctx context.Context, admin *store.User, conversation string) {
	users, err := b.store.ListUsers(ctx)
	if err != nil {
		b.logger.Error().Err(err).Msg("User listing failed")
		b.reply(ctx, conversation, admin.PhoneNumber, "❌ Couldn't list users.")
		return
	}

	var sb strings.Builder
	sb.WriteString("👥 **Users**\n")
	for i := range users {
		u := &users[i]
		line := "• " + u.PhoneNumber
		if u.DisplayName != "" {
			line += " (" + u.DisplayName + ")"
		}
		if u.IsAdmin {
			line += " 🔑"
		}
		if !u.IsActive {
			line += " [inactive]"
		}
		sb.WriteString(line + "\n")
	}
	b.reply(ctx, conversation, admin.PhoneNumber, strings.TrimRight(sb.String(), "\n"))
}

func (b *Bot) cmdDecline(ctx context.Context, admin *store.User, conversation, rest string) {
	idArg, reason := splitArg(rest)
	id, err := strconv.ParseInt(idArg, 10, 64)
	if err != nil {
		b.reply(ctx, conversation, admin.PhoneNumber, "🤔 Usage: decline 42 [reason]")
		return
	}

	switch err := b.manager.Decline(ctx, id, reason); {
	case err == nil:
		b.reply(ctx, conversation, admin.PhoneNumber, fmt.Sprintf("✅ Request #%d declined.", id))
	case errors.Is(err, store.ErrNotFound):
		b.reply(ctx, conversation, admin.PhoneNumber, fmt.Sprintf("🔍 No request #%d found.", id))
	case errors.Is(err, store.ErrTerminalState):
		b.reply(ctx, conversation, admin.PhoneNumber, fmt.Sprintf("⛔ Request #%d is already finished.", id))
	default:
		b.logger.Error().Err(err).Int64("request_id", id).Msg("Decline failed")
		b.reply(ctx, conversation, admin.PhoneNumber, "❌ Something went wrong declining that request.")
	}
}

// cmdBroadcast fans a message out to every active user.
func (b *Bot) cmdBroadcast(ctx context.Context, admin *store.User, conversation, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		b.reply(ctx, conversation, admin.PhoneNumber, "🤔 Broadcast what? Usage: broadcast <message>")
		return
	}

	users, err := b.store.ListUsers(ctx)
	if err != nil {
		b.logger.Error().Err(err).Msg("User listing failed")
		b.reply(ctx, conversation, admin.PhoneNumber, "❌ Couldn't load the user list.")
		return
	}

	message := "📢 " + text
	sent := 0
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(broadcastConcurrency)
	for i := range users {
		u := users[i]
		if !u.IsActive || u.PhoneNumber == admin.PhoneNumber {
			continue
		}
		sent++
		g.Go(func() error {
			if err := b.messenger.Send(gctx, u.PhoneNumber, message); err != nil {
				b.logger.Error().Err(err).Str("phone", u.PhoneNumber).Msg("Broadcast delivery failed")
			}
			return nil
		})
	}
	g.Wait()

	b.logger.Info().Int("recipients", sent).Str("by", admin.PhoneNumber).Msg("Broadcast sent")
	b.reply(ctx, conversation, admin.PhoneNumber, fmt.Sprintf("📢 Broadcast sent to %d users.", sent))
}

func (b *Bot) cmdStats(ctx context.Context, admin *store.User, conversation string) {
	settings := b.runtime.Current()
	dayStart := ratelimit.DayStart(time.Now(), settings.Location)

	stats, err := b.store.GatherStats(ctx, dayStart)
	if err != nil {
		b.logger.Error().Err(err).Msg("Stats query failed")
		b.reply(ctx, conversation, admin.PhoneNumber, "❌ Couldn't gather stats.")
		return
	}

	text := fmt.Sprintf("📊 **Bot Stats**\n\n👥 Users: %d\n📥 Requests today: %d\n🔄 In flight: %d\n✅ Completed: %d\n❌ Failed: %d",
		stats.TotalUsers, stats.RequestsToday, stats.InFlight, stats.Completed, stats.Failed)
	b.reply(ctx, conversation, admin.PhoneNumber, text)
}

// SendDailyStats pushes a stats summary straight to every configured admin
// identity. The daemon calls it on a daily schedule.
func (b *Bot) SendDailyStats(ctx context.Context) error {
	settings := b.runtime.Current()
	if len(settings.Admins) == 0 {
		return nil
	}

	dayStart := ratelimit.DayStart(time.Now(), settings.Location)
	stats, err := b.store.GatherStats(ctx, dayStart)
	if err != nil {
		return fmt.Errorf("gather stats: %w", err)
	}

	text := fmt.Sprintf("📊 **Daily Signalerr Stats**\n\n👥 Users: %d\n📥 Requests today: %d\n🔄 In flight: %d\n📅 Date: %s",
		stats.TotalUsers, stats.RequestsToday, stats.InFlight, dayStart.Format("2006-01-02"))
	for _, admin := range settings.Admins {
		b.send(ctx, admin, text)
	}

	b.logger.Info().Int("admins", len(settings.Admins)).Msg("Daily stats sent")
	return nil
}

// splitArg separates the first word of rest from the remainder.
func splitArg(rest string) (string, string) {
	first, remainder, _ := strings.Cut(strings.TrimSpace(rest), " ")
	return first, strings.TrimSpace(remainder)
}
