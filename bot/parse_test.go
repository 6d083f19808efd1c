package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mbrownnycnyc/signalerr/store"
)

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		query    string
		kind     store.MediaKind
		seasons  []int
		explicit bool
	}{
		{
			name:  "plain title",
			text:  "The Matrix",
			query: "The Matrix",
		},
		{
			name:  "movie hint",
			text:  "movie Dune",
			query: "Dune",
			kind:  store.KindMovie,
		},
		{
			name:  "show hint",
			text:  "show Severance",
			query: "Severance",
			kind:  store.KindTV,
		},
		{
			name:  "tv hint",
			text:  "tv The Wire",
			query: "The Wire",
			kind:  store.KindTV,
		},
		{
			name:     "season range",
			text:     "Breaking Bad seasons 2-4",
			query:    "Breaking Bad",
			kind:     store.KindTV,
			seasons:  []int{2, 3, 4},
			explicit: true,
		},
		{
			name:     "single season",
			text:     "The Wire season 3",
			query:    "The Wire",
			kind:     store.KindTV,
			seasons:  []int{3},
			explicit: true,
		},
		{
			name:     "short form",
			text:     "Fargo s1-2",
			query:    "Fargo",
			kind:     store.KindTV,
			seasons:  []int{1, 2},
			explicit: true,
		},
		{
			name:     "hint plus seasons",
			text:     "show Dark seasons 1-3",
			query:    "Dark",
			kind:     store.KindTV,
			seasons:  []int{1, 2, 3},
			explicit: true,
		},
		{
			name:  "season zero ignored",
			text:  "Weird Title season 0",
			query: "Weird Title season 0",
		},
		{
			name:  "inverted range ignored",
			text:  "Some Show seasons 4-2",
			query: "Some Show seasons 4-2",
		},
		{
			name:  "title containing season word mid-sentence",
			text:  "Season of the Witch",
			query: "Season of the Witch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := parseRequest(tt.text)
			assert.Equal(t, tt.query, spec.Query)
			assert.Equal(t, tt.kind, spec.KindHint)
			assert.Equal(t, tt.seasons, spec.Seasons)
			assert.Equal(t, tt.explicit, spec.Explicit)
		})
	}
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		text string
		cmd  string
		rest string
	}{
		{"help", "help", ""},
		{"Request The Matrix", "request", "The Matrix"},
		{"!status 42", "status", "42"},
		{"/myrequests", "myrequests", ""},
		{"  settings  verbosity casual", "settings", "verbosity casual"},
		{"", "", ""},
	}

	for _, tt := range tests {
		cmd, rest := splitCommand(tt.text)
		assert.Equal(t, tt.cmd, cmd, "text %q", tt.text)
		assert.Equal(t, tt.rest, rest, "text %q", tt.text)
	}
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "+15551234567", normalizePhone("+1 (555) 123-4567"))
	assert.Equal(t, "15551234567", normalizePhone("1 555 123 4567"))
	assert.Equal(t, "+15551234567", normalizePhone("+15551234567"))
	assert.Equal(t, "", normalizePhone("not a number"))
}
