package policy

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngine(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("empty rule list", func(t *testing.T) {
		engine, err := NewEngine(nil, logger)
		require.NoError(t, err)
		assert.Equal(t, 0, engine.Len())
	})

	t.Run("valid rules", func(t *testing.T) {
		engine, err := NewEngine([]string{
			`Year < 1950`,
			`isShow() && SeasonCount > 10`,
		}, logger)
		require.NoError(t, err)
		assert.Equal(t, 2, engine.Len())
	})

	t.Run("empty rule", func(t *testing.T) {
		_, err := NewEngine([]string{"   "}, logger)
		require.Error(t, err)

		var ruleErr *RuleError
		require.ErrorAs(t, err, &ruleErr)
		assert.Equal(t, "empty rule", ruleErr.Reason)
	})

	t.Run("syntax error", func(t *testing.T) {
		_, err := NewEngine([]string{`Year <<< 2000`}, logger)
		require.Error(t, err)

		var ruleErr *RuleError
		require.ErrorAs(t, err, &ruleErr)
		assert.Contains(t, ruleErr.Rule, "Year")
	})

	t.Run("non-boolean rule", func(t *testing.T) {
		_, err := NewEngine([]string{`Title`}, logger)
		require.Error(t, err)
	})
}

func TestEvaluate(t *testing.T) {
	logger := zerolog.Nop()

	tests := []struct {
		name     string
		rules    []string
		rc       RequestContext
		denied   bool
		wantRule string
	}{
		{
			name:   "no rules allows everything",
			rules:  nil,
			rc:     RequestContext{Title: "The Matrix", Kind: "movie"},
			denied: false,
		},
		{
			name:     "title match",
			rules:    []string{`contains(Title, "matrix")`},
			rc:       RequestContext{Title: "The Matrix Reloaded", Kind: "movie"},
			denied:   true,
			wantRule: `contains(Title, "matrix")`,
		},
		{
			name:   "title no match",
			rules:  []string{`contains(Title, "matrix")`},
			rc:     RequestContext{Title: "Heat", Kind: "movie"},
			denied: false,
		},
		{
			name:     "large show denied",
			rules:    []string{`isShow() && SeasonCount > 10`},
			rc:       RequestContext{Title: "Doctor Who", Kind: "tv", SeasonCount: 26},
			denied:   true,
			wantRule: `isShow() && SeasonCount > 10`,
		},
		{
			name:   "movie not caught by show rule",
			rules:  []string{`isShow() && SeasonCount > 10`},
			rc:     RequestContext{Title: "Heat", Kind: "movie"},
			denied: false,
		},
		{
			name:     "first matching rule wins",
			rules:    []string{`Year < 1950`, `contains(Title, "casablanca")`},
			rc:       RequestContext{Title: "Casablanca", Year: 1942, Kind: "movie"},
			denied:   true,
			wantRule: `Year < 1950`,
		},
		{
			name:   "admin exemption expressed in rule",
			rules:  []string{`!IsAdmin && UsedToday >= 5`},
			rc:     RequestContext{Title: "Heat", Kind: "movie", UsedToday: 7, IsAdmin: true},
			denied: false,
		},
		{
			name:     "per-user rule",
			rules:    []string{`requestedBy("+15551234567") && isShow()`},
			rc:       RequestContext{Title: "Lost", Kind: "tv", Phone: "+15551234567"},
			denied:   true,
			wantRule: `requestedBy("+15551234567") && isShow()`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, err := NewEngine(tt.rules, logger)
			require.NoError(t, err)

			rule, denied := engine.Evaluate(tt.rc)
			assert.Equal(t, tt.denied, denied)
			assert.Equal(t, tt.wantRule, rule)
		})
	}
}

func TestEvaluateRuntimeErrorSkipsRule(t *testing.T) {
	// Undefined variables compile but fail at runtime when used as the
	// wrong type. The rule is skipped and later rules still run.
	engine, err := NewEngine([]string{
		`Nonexistent > 5`,
		`contains(Title, "matrix")`,
	}, zerolog.Nop())
	require.NoError(t, err)

	rule, denied := engine.Evaluate(RequestContext{Title: "The Matrix", Kind: "movie"})
	assert.True(t, denied)
	assert.Equal(t, `contains(Title, "matrix")`, rule)
}
