package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mbrownnycnyc/signalerr/internal/keyed"
)

// Callback is invoked once when a scheduled timer fires.
type Callback func(ctx context.Context)

// Scheduler fires one callback per key after a delay. Scheduling a key that
// already has an armed timer supersedes it, so a key never has more than one
// timer outstanding. Callback execution is serialized per key.
type Scheduler struct {
	logger zerolog.Logger
	locks  keyed.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	timers  map[string]*time.Timer
	seq     map[string]uint64
	stopped bool
}

// NewScheduler creates an idle scheduler.
func NewScheduler(logger zerolog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		logger: logger.With().Str("component", "scheduler").Logger(),
		ctx:    ctx,
		cancel: cancel,
		timers: make(map[string]*time.Timer),
		seq:    make(map[string]uint64),
	}
}

// Schedule arms fn to run after delay, replacing any armed timer for key.
func (s *Scheduler) Schedule(key string, delay time.Duration, fn Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	if old, ok := s.timers[key]; ok {
		old.Stop()
	}

	s.seq[key]++
	seq := s.seq[key]
	s.timers[key] = time.AfterFunc(delay, func() {
		s.fire(key, seq, fn)
	})

	s.logger.Debug().Str("key", key).Dur("delay", delay).Msg("Armed timer")
}

func (s *Scheduler) fire(key string, seq uint64, fn Callback) {
	s.mu.Lock()
	if s.stopped || s.seq[key] != seq {
		// Superseded or canceled between firing and running.
		s.mu.Unlock()
		return
	}
	delete(s.timers, key)
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()

	unlock := s.locks.Lock(key)
	defer unlock()

	fn(s.ctx)
}

// Cancel disarms the timer for key. It returns true when a timer was armed.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer, ok := s.timers[key]
	if !ok {
		return false
	}
	timer.Stop()
	delete(s.timers, key)
	s.seq[key]++
	return true
}

// Pending returns the number of armed timers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop disarms every timer, cancels the callback context, and waits for
// in-flight callbacks to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for key, timer := range s.timers {
		timer.Stop()
		delete(s.timers, key)
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}
