package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mbrownnycnyc/signalerr/lifecycle"
	"github.com/mbrownnycnyc/signalerr/overseerr"
	"github.com/mbrownnycnyc/signalerr/store"
)

const searchResultLimit = 5

func (b *Bot) cmdHelp(ctx context.Context, user *store.User, conversation string) {
	var sb strings.Builder
	sb.WriteString("🤖 **Signalerr Commands**\n\n")
	sb.WriteString("• request <title> - request a movie or show\n")
	sb.WriteString("• request <title> seasons 2-4 - request specific seasons\n")
	sb.WriteString("• search <title> - look up what's available\n")
	sb.WriteString("• status [id] - check on a request\n")
	sb.WriteString("• myrequests - list your recent requests\n")
	sb.WriteString("• cancel <id> - cancel one of your requests\n")
	sb.WriteString("• settings - show or change your preferences\n")
	sb.WriteString("• creategroup <name> - start a group chat with the bot\n")
	sb.WriteString("\nOr just send a title and I'll figure it out.")

	if b.isAdmin(user, b.runtime.Current()) {
		sb.WriteString("\n\n🔑 **Admin**\n")
		sb.WriteString("• adduser <phone> [name]\n")
		sb.WriteString("• removeuser <phone>\n")
		sb.WriteString("• listusers\n")
		sb.WriteString("• decline <id> [reason]\n")
		sb.WriteString("• broadcast <message>\n")
		sb.WriteString("• stats")
	}

	b.reply(ctx, conversation, user.PhoneNumber, sb.String())
}

// cmdRequest resolves free text to a catalog entry and hands the draft to
// the lifecycle manager, which owns all further messaging.
func (b *Bot) cmdRequest(ctx context.Context, user *store.User, conversation, text string) {
	spec := parseRequest(text)
	if spec.Query == "" {
		b.reply(ctx, conversation, user.PhoneNumber, "🤔 What should I request? Try: request The Matrix")
		return
	}

	result, err := b.findBest(ctx, spec)
	if err != nil {
		if errors.Is(err, lifecycle.ErrNotRecognized) {
			b.reply(ctx, conversation, user.PhoneNumber,
				fmt.Sprintf("🔍 I couldn't find anything matching '%s'. Maybe check the spelling?", spec.Query))
			return
		}
		b.logger.Error().Err(err).Str("query", spec.Query).Msg("Catalog search failed")
		b.reply(ctx, conversation, user.PhoneNumber, "❌ I couldn't reach the media service just now. Try again in a bit.")
		return
	}

	draft := lifecycle.Draft{
		UserID:          user.ID,
		Phone:           user.PhoneNumber,
		Conversation:    conversation,
		Kind:            kindOf(result),
		CatalogID:       result.ID,
		Title:           result.DisplayTitle(),
		Year:            result.Year(),
		Seasons:         spec.Seasons,
		ExplicitSeasons: spec.Explicit,
	}

	if err := b.manager.BeginRequest(ctx, user, draft); err != nil {
		// The manager already told the user; this is for the operator log.
		b.logger.Warn().Err(err).Str("title", draft.Title).Msg("Request did not submit")
	}
}

// findBest returns the first search hit matching the kind hint, or
// ErrNotRecognized when the catalog has nothing usable.
func (b *Bot) findBest(ctx context.Context, spec requestSpec) (*overseerr.SearchResult, error) {
	mediaType := overseerr.MediaType("")
	switch spec.KindHint {
	case store.KindMovie:
		mediaType = overseerr.MediaTypeMovie
	case store.KindTV:
		mediaType = overseerr.MediaTypeTV
	}

	results, err := b.search.Search(ctx, spec.Query, mediaType)
	if err != nil {
		return nil, err
	}
	for i := range results {
		r := &results[i]
		if spec.KindHint != "" && kindOf(r) != spec.KindHint {
			continue
		}
		return r, nil
	}
	return nil, lifecycle.ErrNotRecognized
}

func kindOf(r *overseerr.SearchResult) store.MediaKind {
	if r.MediaType == overseerr.MediaTypeTV {
		return store.KindTV
	}
	return store.KindMovie
}

func (b *Bot) cmdSearch(ctx context.Context, user *store.User, conversation, query string) {
	query = strings.TrimSpace(query)
	if query == "" {
		b.reply(ctx, conversation, user.PhoneNumber, "🤔 Search for what? Try: search Dune")
		return
	}

	results, err := b.search.Search(ctx, query, "")
	if err != nil {
		b.logger.Error().Err(err).Str("query", query).Msg("Catalog search failed")
		b.reply(ctx, conversation, user.PhoneNumber, "❌ I couldn't reach the media service just now. Try again in a bit.")
		return
	}
	if len(results) == 0 {
		b.reply(ctx, conversation, user.PhoneNumber, fmt.Sprintf("🔍 No results for '%s'.", query))
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🔍 Results for '%s':\n", query)
	for i, r := range results {
		if i == searchResultLimit {
			break
		}
		icon := "🎬"
		if r.MediaType == overseerr.MediaTypeTV {
			icon = "📺"
		}
		title := r.DisplayTitle()
		if year := r.Year(); year > 0 {
			fmt.Fprintf(&sb, "%s %s (%d)\n", icon, title, year)
		} else {
			fmt.Fprintf(&sb, "%s %s\n", icon, title)
		}
	}
	sb.WriteString("\nSend 'request <title>' to grab one.")
	b.reply(ctx, conversation, user.PhoneNumber, sb.String())
}

// cmdStatus reports one request. Without an id it picks the user's most
// recent one; admins may query any id.
func (b *Bot) cmdStatus(ctx context.Context, user *store.User, conversation, arg string) {
	var row *store.MediaRequest

	if arg == "" {
		rows, err := b.store.RequestsByUser(ctx, user.ID, 1)
		if err != nil || len(rows) == 0 {
			b.reply(ctx, conversation, user.PhoneNumber, "📭 You don't have any requests yet.")
			return
		}
		row = &rows[0]
	} else {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			b.reply(ctx, conversation, user.PhoneNumber, "🤔 That doesn't look like a request id.")
			return
		}
		row, err = b.store.RequestByID(ctx, id)
		if err != nil {
			b.reply(ctx, conversation, user.PhoneNumber, fmt.Sprintf("🔍 No request #%d found.", id))
			return
		}
		if row.UserID != user.ID && !b.isAdmin(user, b.runtime.Current()) {
			b.reply(ctx, conversation, user.PhoneNumber, fmt.Sprintf("🔍 No request #%d found.", id))
			return
		}
	}

	b.reply(ctx, conversation, user.PhoneNumber, formatRequestLine(row))
}

func (b *Bot) cmdMyRequests(ctx context.Context, user *store.User, conversation string) {
	rows, err := b.store.RequestsByUser(ctx, user.ID, 10)
	if err != nil {
		b.logger.Error().Err(err).Int64("user_id", user.ID).Msg("Request listing failed")
		b.reply(ctx, conversation, user.PhoneNumber, "❌ Something went wrong listing your requests.")
		return
	}
	if len(rows) == 0 {
		b.reply(ctx, conversation, user.PhoneNumber, "📭 You don't have any requests yet.")
		return
	}

	var sb strings.Builder
	sb.WriteString("📋 **Your Requests**\n")
	for i := range rows {
		sb.WriteString(formatRequestLine(&rows[i]))
		sb.WriteString("\n")
	}
	b.reply(ctx, conversation, user.PhoneNumber, strings.TrimRight(sb.String(), "\n"))
}

func (b *Bot) cmdCancel(ctx context.Context, user *store.User, conversation, arg string) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil {
		b.reply(ctx, conversation, user.PhoneNumber, "🤔 Which one? Try: cancel 42")
		return
	}

	switch err := b.manager.CancelOwn(ctx, user, id); {
	case err == nil:
		b.reply(ctx, conversation, user.PhoneNumber, fmt.Sprintf("🗑️ Request #%d canceled.", id))
	case errors.Is(err, lifecycle.ErrNotOwner), errors.Is(err, store.ErrNotFound):
		b.reply(ctx, conversation, user.PhoneNumber, fmt.Sprintf("🔍 No request #%d found.", id))
	case errors.Is(err, store.ErrTerminalState):
		b.reply(ctx, conversation, user.PhoneNumber, fmt.Sprintf("⛔ Request #%d is already finished.", id))
	default:
		b.logger.Error().Err(err).Int64("request_id", id).Msg("Cancel failed")
		b.reply(ctx, conversation, user.PhoneNumber, "❌ Something went wrong canceling that request.")
	}
}

// cmdSettings shows the user's preferences, or updates one:
// "settings verbosity verbose", "settings notify off".
func (b *Bot) cmdSettings(ctx context.Context, user *store.User, conversation, rest string) {
	settings := b.runtime.Current()

	if rest == "" {
		remaining, err := b.limiter.Remaining(ctx, user, time.Now(), settings.Location)
		if err != nil {
			remaining = user.DailyLimit
		}
		text := fmt.Sprintf("⚙️ **Your Settings**\n\n🔊 Verbosity: %s\n🔔 Auto-notify: %s\n📊 Requests left today: %d of %d\n\nChange with 'settings verbosity casual|simple|verbose' or 'settings notify on|off'.",
			user.Verbosity, onOff(user.AutoNotify), remaining, user.DailyLimit)
		b.reply(ctx, conversation, user.PhoneNumber, text)
		return
	}

	key, value := splitCommand(rest)
	switch key {
	case "verbosity":
		v := store.Verbosity(strings.ToLower(value))
		if !v.Valid() {
			b.reply(ctx, conversation, user.PhoneNumber, "🤔 Verbosity can be casual, simple or verbose.")
			return
		}
		user.Verbosity = v
		if err := b.store.UpdateUser(ctx, user); err != nil {
			b.logger.Error().Err(err).Int64("user_id", user.ID).Msg("Settings update failed")
			b.reply(ctx, conversation, user.PhoneNumber, "❌ Couldn't save that, sorry.")
			return
		}
		b.reply(ctx, conversation, user.PhoneNumber, fmt.Sprintf("✅ Verbosity set to %s.", v))

	case "notify":
		var enabled bool
		switch strings.ToLower(value) {
		case "on", "yes", "true":
			enabled = true
		case "off", "no", "false":
			enabled = false
		default:
			b.reply(ctx, conversation, user.PhoneNumber, "🤔 Use 'settings notify on' or 'settings notify off'.")
			return
		}
		user.AutoNotify = enabled
		if err := b.store.UpdateUser(ctx, user); err != nil {
			b.logger.Error().Err(err).Int64("user_id", user.ID).Msg("Settings update failed")
			b.reply(ctx, conversation, user.PhoneNumber, "❌ Couldn't save that, sorry.")
			return
		}
		b.reply(ctx, conversation, user.PhoneNumber, fmt.Sprintf("✅ Auto-notify turned %s.", onOff(enabled)))

	default:
		b.reply(ctx, conversation, user.PhoneNumber, "🤔 I can change 'verbosity' or 'notify'.")
	}
}

func (b *Bot) cmdCreateGroup(ctx context.Context, user *store.User, conversation, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Media Requests"
	}

	groupID, err := b.messenger.CreateGroup(ctx, name, []string{user.PhoneNumber})
	if err != nil {
		b.logger.Error().Err(err).Str("name", name).Msg("Group creation failed")
		b.reply(ctx, conversation, user.PhoneNumber, "❌ Couldn't create the group, sorry.")
		return
	}

	b.logger.Info().Str("group", groupID).Str("name", name).Msg("Group created")
	b.send(ctx, user.PhoneNumber, fmt.Sprintf("👥 Created '%s'. Say hi in there!", name))
}

func formatRequestLine(r *store.MediaRequest) string {
	icon := "🎬"
	if r.Kind == store.KindTV {
		icon = "📺"
	}

	line := fmt.Sprintf("%s #%d %s", icon, r.ID, r.Title)
	if r.Year > 0 {
		line += fmt.Sprintf(" (%d)", r.Year)
	}
	line += " - " + stateLabel(r.State)
	if r.State == store.StateDeclined && r.Detail != "" {
		line += ": " + r.Detail
	}
	return line
}

func stateLabel(s store.RequestState) string {
	switch s {
	case store.StateSubmitting:
		return "submitting"
	case store.StateAwaitingCheck:
		return "requested, waiting for status"
	case store.StateDownloading:
		return "downloading"
	case store.StateNotFound:
		return "not found yet"
	case store.StateCompleted:
		return "ready to watch"
	case store.StateFailed:
		return "failed"
	case store.StateDeclined:
		return "declined"
	default:
		return string(s)
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
