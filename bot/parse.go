package bot

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/mbrownnycnyc/signalerr/store"
)

// requestSpec is the parsed form of a request command's free text.
type requestSpec struct {
	Query string
	// KindHint narrows the search when the user led with "movie" or "show".
	// Empty means search across both.
	KindHint store.MediaKind
	// Seasons is the explicit selection from a trailing "seasons 2-4" or
	// "season 3" clause. Explicit selections skip the season-cap prompt.
	Seasons  []int
	Explicit bool
}

var seasonClause = regexp.MustCompile(`(?i)\s+(?:seasons?|s)\s*(\d+)(?:\s*-\s*(\d+))?\s*$`)

// parseRequest splits a request command into its title query, an optional
// media-kind hint, and an optional explicit season selection.
func parseRequest(text string) requestSpec {
	spec := requestSpec{Query: strings.TrimSpace(text)}

	if m := seasonClause.FindStringSubmatch(spec.Query); m != nil {
		from, _ := strconv.Atoi(m[1])
		to := from
		if m[2] != "" {
			to, _ = strconv.Atoi(m[2])
		}
		if from >= 1 && to >= from {
			for s := from; s <= to; s++ {
				spec.Seasons = append(spec.Seasons, s)
			}
			spec.Explicit = true
			spec.Query = strings.TrimSpace(spec.Query[:len(spec.Query)-len(m[0])])
			spec.KindHint = store.KindTV
		}
	}

	lower := strings.ToLower(spec.Query)
	switch {
	case strings.HasPrefix(lower, "movie "):
		spec.KindHint = store.KindMovie
		spec.Query = strings.TrimSpace(spec.Query[len("movie "):])
	case strings.HasPrefix(lower, "show "):
		spec.KindHint = store.KindTV
		spec.Query = strings.TrimSpace(spec.Query[len("show "):])
	case strings.HasPrefix(lower, "tv "):
		spec.KindHint = store.KindTV
		spec.Query = strings.TrimSpace(spec.Query[len("tv "):])
	}

	return spec
}

// splitCommand separates the command word from its argument remainder.
// A leading "!" or "/" prefix is tolerated.
func splitCommand(text string) (string, string) {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "!")
	trimmed = strings.TrimPrefix(trimmed, "/")

	word, rest, _ := strings.Cut(trimmed, " ")
	return strings.ToLower(word), strings.TrimSpace(rest)
}

// normalizePhone strips the formatting people paste from their contacts.
func normalizePhone(raw string) string {
	var b strings.Builder
	for i, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			continue
		}
		if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}
