package worker

import (
	"context"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/codewars-bot/internal/domain"
)

// ScheduleSource provides the current schedule and change notifications
type ScheduleSource interface {
	Schedule() domain.Schedule
	Subscribe() (<-chan domain.Schedule, func())
}

// Digester builds and delivers the weekly digest
type Digester interface {
	Digest(ctx context.Context) error
}

// Timer is the subset of *time.Timer the scheduler needs
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// Clock abstracts time for the scheduler loop
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
}

type realClock struct{}

type realTimer struct{ t *time.Timer }

func (realClock) Now() time.Time                 { return time.Now() }
func (realClock) NewTimer(d time.Duration) Timer { return realTimer{time.NewTimer(d)} }
func (r realTimer) C() <-chan time.Time          { return r.t.C }
func (r realTimer) Stop() bool                   { return r.t.Stop() }

// SchedulerConfig holds scheduler settings
type SchedulerConfig struct {
	Location   *time.Location
	RunTimeout time.Duration
	Clock      Clock
}

// Scheduler fires the weekly digest. It waits for the next occurrence of the
// current schedule and restarts the wait whenever the schedule changes.
type Scheduler struct {
	source   ScheduleSource
	digester Digester
	loc      *time.Location
	timeout  time.Duration
	clock    Clock
	logger   zerolog.Logger

	stopCh chan struct{}
	doneCh chan struct{}

	mu      sync.Mutex
	running bool
	next    time.Time
	fired   int
}

// NewScheduler creates a new scheduler
func NewScheduler(source ScheduleSource, digester Digester, cfg SchedulerConfig, logger zerolog.Logger) *Scheduler {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	timeout := cfg.RunTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}

	return &Scheduler{
		source:   source,
		digester: digester,
		loc:      loc,
		timeout:  timeout,
		clock:    clock,
		logger:   logger.With().Str("comp", "scheduler").Logger(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background loop
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	// subscribe before reading the schedule so no change is missed
	updates, unsubscribe := s.source.Subscribe()

	s.logger.Info().Str("location", s.loc.String()).Msg("scheduler started")

	go s.run(ctx, updates, unsubscribe)
	return nil
}

// Stop stops the background loop and waits for it to exit
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info().Msg("scheduler stopped")
	return nil
}

// IsRunning returns whether the loop is active
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Next returns the instant the loop is currently waiting for
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Fired returns how many times the schedule has triggered
func (s *Scheduler) Fired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired
}

// run is the main loop: Waiting until the timer or a schedule change,
// Firing when the timer wins.
func (s *Scheduler) run(ctx context.Context, updates <-chan domain.Schedule, unsubscribe func()) {
	defer close(s.doneCh)
	defer unsubscribe()

	sched := s.source.Schedule()
	from := s.clock.Now()

	for {
		target, err := NextOccurrence(sched, from, s.loc)
		if err != nil {
			// state only holds validated schedules; wait for a new one
			s.logger.Error().Err(err).Msg("cannot compute next occurrence")
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case sched = <-updates:
				from = s.clock.Now()
				continue
			}
		}

		s.setNext(target)
		wait := target.Sub(s.clock.Now())
		s.logger.Info().
			Str("schedule", sched.String()).
			Bool("notify", sched.Notify).
			Time("next", target).
			Str("in", humanize.RelTime(s.clock.Now(), target, "ago", "from now")).
			Msg("waiting for next digest")

		timer := s.clock.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()
			return

		case <-s.stopCh:
			timer.Stop()
			return

		case sched = <-updates:
			timer.Stop()
			from = s.clock.Now()
			s.logger.Debug().Str("schedule", sched.String()).Msg("schedule changed, recomputing")

		case <-timer.C():
			sched = s.source.Schedule()
			s.fire(ctx, sched)

			// one digest per calendar day, even if the wall clock lags or
			// the local time repeats
			from = dayAfter(target, s.loc)
			if now := s.clock.Now(); from.Before(now) {
				from = now
			}
			if from.Before(target) {
				from = target
			}
		}
	}
}

// fire runs one digest. Errors are logged and never stop the loop.
func (s *Scheduler) fire(ctx context.Context, sched domain.Schedule) {
	s.mu.Lock()
	s.fired++
	s.mu.Unlock()

	if !sched.Notify {
		s.logger.Info().Msg("digest due but notifications are off, skipping")
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := s.clock.Now()
	if err := s.digester.Digest(runCtx); err != nil {
		s.logger.Error().Err(err).Msg("weekly digest failed")
		return
	}
	s.logger.Info().Dur("took", s.clock.Now().Sub(start)).Msg("weekly digest sent")
}

func (s *Scheduler) setNext(t time.Time) {
	s.mu.Lock()
	s.next = t
	s.mu.Unlock()
}
