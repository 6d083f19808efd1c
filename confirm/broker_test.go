package confirm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type draft struct {
	Title   string
	Seasons []int
}

func TestResolveNoPending(t *testing.T) {
	b := NewBroker[draft]()
	outcome, p := b.Resolve("+15550001111", "yes")
	assert.Equal(t, OutcomeNone, outcome)
	assert.Nil(t, p)
}

func TestProposeAndAccept(t *testing.T) {
	b := NewBroker[draft]()
	original := draft{Title: "The Matrix"}
	expanded := draft{Title: "The Matrix Collection"}

	p := b.Propose("+15550001111", "convo-1", original, expanded, time.Minute)
	require.NotEmpty(t, p.Token)
	require.True(t, b.HasPending("+15550001111"))

	outcome, resolved := b.Resolve("+15550001111", "YES")
	assert.Equal(t, OutcomeAccepted, outcome)
	assert.Equal(t, expanded, resolved.Expanded)
	assert.False(t, b.HasPending("+15550001111"))

	// Second reply finds nothing.
	outcome, _ = b.Resolve("+15550001111", "yes")
	assert.Equal(t, OutcomeNone, outcome)
}

func TestResolveVocabulary(t *testing.T) {
	tests := []struct {
		reply string
		want  Outcome
	}{
		{"yes", OutcomeAccepted},
		{"Yes!", OutcomeAccepted},
		{" y ", OutcomeAccepted},
		{"okay", OutcomeAccepted},
		{"no", OutcomeRejected},
		{"NOPE", OutcomeRejected},
		{"maybe", OutcomeSuperseded},
		{"request Dune", OutcomeSuperseded},
	}

	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			b := NewBroker[draft]()
			b.Propose("+15550001111", "convo-1", draft{Title: "A"}, draft{Title: "B"}, time.Minute)
			outcome, p := b.Resolve("+15550001111", tt.reply)
			assert.Equal(t, tt.want, outcome)
			require.NotNil(t, p, "pending is always returned when one existed")
		})
	}
}

func TestSecondProposalSupersedesFirst(t *testing.T) {
	b := NewBroker[draft]()
	first := b.Propose("+15550001111", "convo-1", draft{Title: "First"}, draft{}, time.Minute)
	second := b.Propose("+15550001111", "convo-1", draft{Title: "Second"}, draft{}, time.Minute)
	require.NotEqual(t, first.Token, second.Token)

	// The first token can no longer be taken.
	assert.Nil(t, b.Take("+15550001111", first.Token))

	outcome, p := b.Resolve("+15550001111", "yes")
	assert.Equal(t, OutcomeAccepted, outcome)
	assert.Equal(t, "Second", p.Original.Title)
}

func TestExpiredPromptResolvesAsNone(t *testing.T) {
	b := NewBroker[draft]()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	b.SetClock(func() time.Time { return now })

	b.Propose("+15550001111", "convo-1", draft{Title: "A"}, draft{Title: "B"}, time.Minute)
	now = now.Add(2 * time.Minute)

	outcome, p := b.Resolve("+15550001111", "yes")
	assert.Equal(t, OutcomeNone, outcome)
	assert.Nil(t, p)
	assert.False(t, b.HasPending("+15550001111"))
}

func TestTakeForTimeoutFallback(t *testing.T) {
	b := NewBroker[draft]()
	p := b.Propose("+15550001111", "convo-1", draft{Title: "A"}, draft{Title: "B"}, time.Minute)

	taken := b.Take("+15550001111", p.Token)
	require.NotNil(t, taken)
	assert.Equal(t, "A", taken.Original.Title)

	// Already taken.
	assert.Nil(t, b.Take("+15550001111", p.Token))
}

func TestUsersAreIndependent(t *testing.T) {
	b := NewBroker[draft]()
	b.Propose("+15550001111", "convo-1", draft{Title: "A"}, draft{}, time.Minute)
	b.Propose("+15550002222", "convo-2", draft{Title: "C"}, draft{}, time.Minute)

	outcome, p := b.Resolve("+15550001111", "yes")
	assert.Equal(t, OutcomeAccepted, outcome)
	assert.Equal(t, "A", p.Original.Title)
	assert.True(t, b.HasPending("+15550002222"))
}
