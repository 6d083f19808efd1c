// Package notify renders request lifecycle events into user-facing chat text
// at the user's chosen verbosity tier. Rendering is a pure function and is
// total: every event kind has a defined string at every tier, so callers can
// never hit an unformatted event.
package notify

import (
	"fmt"
	"strings"
	"time"
)

// EventKind identifies a lifecycle event to render.
type EventKind int

const (
	// EventRequested confirms a submission was accepted upstream.
	EventRequested EventKind = iota
	// EventDownloadStarted reports the download is underway.
	EventDownloadStarted
	// EventDownloadCompleted reports the title is ready to watch.
	EventDownloadCompleted
	// EventNotFound reports no active download was observed.
	EventNotFound
	// EventRateLimited reports the daily request cap was hit.
	EventRateLimited
	// EventDeclined reports an admin declined the request.
	EventDeclined
	// EventGenericError is the catch-all apology. It never carries
	// internal error detail.
	EventGenericError
)

// Verbosity mirrors the user's notification tier.
type Verbosity string

const (
	Casual  Verbosity = "casual"
	Simple  Verbosity = "simple"
	Verbose Verbosity = "verbose"
)

// Event carries everything the renderer may use. Unused fields are zero.
type Event struct {
	Kind       EventKind
	Title      string
	Year       int
	Seasons    []int
	ETA        time.Duration // remaining download time, 0 when unknown
	ExternalID int64         // upstream request id, 0 when not yet assigned
	CheckDelay time.Duration
	DailyLimit int
	Reason     string
	At         time.Time
}

// Render produces the chat text for an event at the given verbosity.
// Unknown verbosity values fall back to the simple tier.
func Render(e Event, v Verbosity) string {
	switch v {
	case Casual:
		return renderCasual(e)
	case Verbose:
		return renderVerbose(e)
	default:
		return renderSimple(e)
	}
}

func renderCasual(e Event) string {
	switch e.Kind {
	case EventRequested:
		return fmt.Sprintf("👍 Gotcha! Requesting '%s'%s for ya.", e.Title, casualSeasons(e.Seasons))
	case EventDownloadStarted:
		if e.ETA > 0 {
			return fmt.Sprintf("📥 '%s' is downloadin' now, should be ready in %s!", e.Title, FormatDuration(e.ETA))
		}
		return fmt.Sprintf("📥 '%s' is downloadin' now!", e.Title)
	case EventDownloadCompleted:
		return fmt.Sprintf("🎉 '%s' is done downloadin'! Enjoy!", e.Title)
	case EventNotFound:
		return fmt.Sprintf("🔎 Can't find '%s' downloadin' yet, but I'll keep an eye out!", e.Title)
	case EventRateLimited:
		return fmt.Sprintf("✋ Whoa there! You've hit your %d requests for today. Try again tomorrow!", e.DailyLimit)
	case EventDeclined:
		if e.Reason != "" {
			return fmt.Sprintf("😞 '%s' got declined, sorry! (%s)", e.Title, e.Reason)
		}
		return fmt.Sprintf("😞 '%s' got declined, sorry!", e.Title)
	default:
		return "💥 Somethin' went wrong on my end. Give it another shot in a bit!"
	}
}

func renderSimple(e Event) string {
	switch e.Kind {
	case EventRequested:
		delay := e.CheckDelay
		if delay <= 0 {
			delay = 2 * time.Minute
		}
		return fmt.Sprintf("✅ Requested: %s%s%s\n⏱️ I'll check back in %s!",
			e.Title, yearSuffix(e.Year), simpleSeasons(e.Seasons), FormatDuration(delay))
	case EventDownloadStarted:
		if e.ETA > 0 {
			return fmt.Sprintf("⬇️ %s - Download started (about %s remaining)", e.Title, FormatDuration(e.ETA))
		}
		return fmt.Sprintf("⬇️ %s - Download started", e.Title)
	case EventDownloadCompleted:
		return fmt.Sprintf("✅ %s - Download completed!", e.Title)
	case EventNotFound:
		return fmt.Sprintf("🔎 %s - Not downloading yet, still searching", e.Title)
	case EventRateLimited:
		return fmt.Sprintf("❌ Daily request limit reached (%d). Try again tomorrow.", e.DailyLimit)
	case EventDeclined:
		if e.Reason != "" {
			return fmt.Sprintf("❌ %s - Request declined: %s", e.Title, e.Reason)
		}
		return fmt.Sprintf("❌ %s - Request declined", e.Title)
	default:
		return "❌ An error occurred while processing your request. Please try again."
	}
}

func renderVerbose(e Event) string {
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	stamp := at.Format("2006-01-02 15:04")

	var b strings.Builder
	switch e.Kind {
	case EventRequested:
		b.WriteString("✅ **Request Submitted Successfully**\n\n")
		fmt.Fprintf(&b, "📺 **Title:** %s%s\n", e.Title, yearSuffix(e.Year))
		if len(e.Seasons) > 0 {
			fmt.Fprintf(&b, "📅 **Seasons:** %s\n", seasonRange(e.Seasons))
		}
		if e.ExternalID > 0 {
			fmt.Fprintf(&b, "🆔 **Request ID:** %d\n", e.ExternalID)
		}
		delay := e.CheckDelay
		if delay <= 0 {
			delay = 2 * time.Minute
		}
		fmt.Fprintf(&b, "⏱️ **Status Check:** I'll update you in %s\n", FormatDuration(delay))
		fmt.Fprintf(&b, "⏰ **Submitted:** %s", stamp)
	case EventDownloadStarted:
		b.WriteString("📊 **Status Update**\n\n")
		fmt.Fprintf(&b, "🎬 **Title:** %s\n", e.Title)
		b.WriteString("🔄 **Status:** Downloading\n")
		if e.ETA > 0 {
			fmt.Fprintf(&b, "⏳ **Time Remaining:** %s\n", FormatDuration(e.ETA))
		}
		if e.ExternalID > 0 {
			fmt.Fprintf(&b, "🆔 **Request ID:** %d\n", e.ExternalID)
		}
		fmt.Fprintf(&b, "⏰ **Updated:** %s", stamp)
	case EventDownloadCompleted:
		b.WriteString("📊 **Status Update**\n\n")
		fmt.Fprintf(&b, "🎬 **Title:** %s\n", e.Title)
		b.WriteString("🔄 **Status:** Completed\n")
		if e.ExternalID > 0 {
			fmt.Fprintf(&b, "🆔 **Request ID:** %d\n", e.ExternalID)
		}
		fmt.Fprintf(&b, "⏰ **Updated:** %s\n", stamp)
		b.WriteString("🎉 **Ready to watch!**")
	case EventNotFound:
		b.WriteString("📊 **Status Update**\n\n")
		fmt.Fprintf(&b, "🎬 **Title:** %s\n", e.Title)
		b.WriteString("🔄 **Status:** Not found yet, search continues\n")
		if e.ExternalID > 0 {
			fmt.Fprintf(&b, "🆔 **Request ID:** %d\n", e.ExternalID)
		}
		fmt.Fprintf(&b, "⏰ **Checked:** %s", stamp)
	case EventRateLimited:
		b.WriteString("❌ **Daily Limit Reached**\n\n")
		fmt.Fprintf(&b, "📊 **Limit:** %d requests per day\n", e.DailyLimit)
		fmt.Fprintf(&b, "⏰ **At:** %s\n", stamp)
		b.WriteString("🔄 The counter resets at midnight.")
	case EventDeclined:
		b.WriteString("❌ **Request Declined**\n\n")
		fmt.Fprintf(&b, "🎬 **Title:** %s\n", e.Title)
		if e.Reason != "" {
			fmt.Fprintf(&b, "📝 **Reason:** %s\n", e.Reason)
		}
		if e.ExternalID > 0 {
			fmt.Fprintf(&b, "🆔 **Request ID:** %d\n", e.ExternalID)
		}
		fmt.Fprintf(&b, "⏰ **At:** %s", stamp)
	default:
		b.WriteString("❌ **Request Failed**\n\n")
		b.WriteString("🔧 Something went wrong while processing your request.\n")
		fmt.Fprintf(&b, "⏰ **At:** %s\n", stamp)
		b.WriteString("🔄 Please try again, or contact an administrator if it keeps happening.")
	}
	return b.String()
}

// FormatDuration renders a duration as compact human text, e.g. "2m" or
// "1h 30m".
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if m > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dh", h)
}

func yearSuffix(year int) string {
	if year <= 0 {
		return ""
	}
	return fmt.Sprintf(" (%d)", year)
}

func seasonRange(seasons []int) string {
	if len(seasons) == 1 {
		return fmt.Sprintf("%d", seasons[0])
	}
	return fmt.Sprintf("%d-%d", seasons[0], seasons[len(seasons)-1])
}

func casualSeasons(seasons []int) string {
	if len(seasons) == 0 {
		return ""
	}
	return " seasons " + seasonRange(seasons)
}

func simpleSeasons(seasons []int) string {
	if len(seasons) == 0 {
		return ""
	}
	return fmt.Sprintf(" (Seasons %s)", seasonRange(seasons))
}
