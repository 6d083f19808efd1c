// Package confirm holds at most one outstanding yes/no disambiguation per
// user pending a reply. A new proposal supersedes an unanswered one, and an
// unrecognized reply resolves toward forward progress rather than blocking
// the user.
package confirm

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mbrownnycnyc/signalerr/internal/keyed"
)

// Outcome classifies the result of resolving a reply against the pending
// confirmation for a user.
type Outcome int

const (
	// OutcomeNone means there was nothing pending for the user.
	OutcomeNone Outcome = iota
	// OutcomeAccepted means the user confirmed the proposed expansion.
	OutcomeAccepted
	// OutcomeRejected means the user kept the original draft.
	OutcomeRejected
	// OutcomeSuperseded means a pending confirmation existed but the reply
	// was not yes/no-shaped; the pending entry is dropped and the caller
	// proceeds with the original draft.
	OutcomeSuperseded
)

// Pending is one outstanding confirmation scoped to a (user, conversation)
// pair.
type Pending[T any] struct {
	Token        string
	User         string
	Conversation string
	Original     T
	Expanded     T
	ExpiresAt    time.Time
}

// Broker tracks pending confirmations keyed by user.
type Broker[T any] struct {
	locks   keyed.Mutex
	mu      sync.RWMutex
	pending map[string]*Pending[T]
	now     func() time.Time
}

// NewBroker creates an empty broker.
func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{
		pending: make(map[string]*Pending[T]),
		now:     time.Now,
	}
}

// SetClock overrides the broker's time source. Tests only.
func (b *Broker[T]) SetClock(now func() time.Time) {
	b.now = now
}

// Propose registers a confirmation for user, superseding any unanswered one,
// and returns its token.
func (b *Broker[T]) Propose(user, conversation string, original, expanded T, ttl time.Duration) *Pending[T] {
	unlock := b.locks.Lock(user)
	defer unlock()

	p := &Pending[T]{
		Token:        uuid.NewString(),
		User:         user,
		Conversation: conversation,
		Original:     original,
		Expanded:     expanded,
		ExpiresAt:    b.now().Add(ttl),
	}

	b.mu.Lock()
	b.pending[user] = p
	b.mu.Unlock()
	return p
}

// Resolve matches a reply against the user's pending confirmation. When one
// exists it is always removed: a reply that is neither affirmative nor
// negative supersedes the prompt and the original draft proceeds.
func (b *Broker[T]) Resolve(user, reply string) (Outcome, *Pending[T]) {
	unlock := b.locks.Lock(user)
	defer unlock()

	b.mu.RLock()
	p, ok := b.pending[user]
	b.mu.RUnlock()
	if !ok {
		return OutcomeNone, nil
	}

	b.mu.Lock()
	delete(b.pending, user)
	b.mu.Unlock()

	if !b.now().Before(p.ExpiresAt) {
		// Expired prompts behave as if they never existed; the timeout
		// fallback has already been armed by the caller.
		return OutcomeNone, nil
	}

	switch classifyReply(reply) {
	case replyYes:
		return OutcomeAccepted, p
	case replyNo:
		return OutcomeRejected, p
	default:
		return OutcomeSuperseded, p
	}
}

// Take removes and returns the pending confirmation for user if its token
// still matches, for the expiry fallback path. It returns nil when the prompt
// was already answered or superseded.
func (b *Broker[T]) Take(user, token string) *Pending[T] {
	unlock := b.locks.Lock(user)
	defer unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.pending[user]
	if !ok || p.Token != token {
		return nil
	}
	delete(b.pending, user)
	return p
}

// HasPending reports whether user currently has an unanswered, unexpired
// confirmation.
func (b *Broker[T]) HasPending(user string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.pending[user]
	return ok && b.now().Before(p.ExpiresAt)
}

type replyClass int

const (
	replyOther replyClass = iota
	replyYes
	replyNo
)

var (
	affirmatives = map[string]bool{
		"yes": true, "y": true, "yeah": true, "yep": true, "yup": true,
		"sure": true, "ok": true, "okay": true, "👍": true,
	}
	negatives = map[string]bool{
		"no": true, "n": true, "nope": true, "nah": true, "👎": true,
	}
)

func classifyReply(reply string) replyClass {
	normalized := strings.ToLower(strings.TrimSpace(reply))
	normalized = strings.TrimRight(normalized, ".!?")
	switch {
	case affirmatives[normalized]:
		return replyYes
	case negatives[normalized]:
		return replyNo
	default:
		return replyOther
	}
}
