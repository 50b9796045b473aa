// Package state owns the roster of tracked users and the digest schedule.
package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/codewars-bot/internal/domain"
)

// State is the process-wide bot state. Mutations are serialized and
// persisted through the Store before they become visible; readers get copies.
type State struct {
	mu       sync.RWMutex
	users    map[string]struct{}
	schedule domain.Schedule

	store  Store
	logger zerolog.Logger

	subMu sync.Mutex
	subs  map[int]chan domain.Schedule
	next  int
}

// Load reads the persisted state, falling back to an empty roster and the
// default schedule when nothing has been saved yet.
func Load(ctx context.Context, store Store, logger zerolog.Logger) (*State, error) {
	s := &State{
		users:    make(map[string]struct{}),
		schedule: domain.DefaultSchedule(),
		store:    store,
		logger:   logger.With().Str("comp", "state").Logger(),
		subs:     make(map[int]chan domain.Schedule),
	}

	doc, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading state: %w", err)
	}
	if doc == nil {
		s.logger.Info().Msg("no stored state, starting empty")
		return s, nil
	}

	users, sched, err := fromDocument(*doc)
	if err != nil {
		return nil, fmt.Errorf("loading state: %w", err)
	}
	s.users = users
	s.schedule = sched

	s.logger.Info().
		Int("users", len(users)).
		Str("schedule", sched.String()).
		Bool("notify", sched.Notify).
		Msg("state loaded")
	return s, nil
}

// AddUser adds name to the roster. It reports false when name was already
// tracked; that is not an error.
func (s *State) AddUser(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[name]; ok {
		return false, nil
	}
	s.users[name] = struct{}{}

	if err := s.saveLocked(ctx); err != nil {
		delete(s.users, name)
		return false, err
	}
	s.logger.Info().Str("user", name).Msg("user added")
	return true, nil
}

// RemoveUser removes name from the roster. It reports false when name was
// not tracked.
func (s *State) RemoveUser(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[name]; !ok {
		return false, nil
	}
	delete(s.users, name)

	if err := s.saveLocked(ctx); err != nil {
		s.users[name] = struct{}{}
		return false, err
	}
	s.logger.Info().Str("user", name).Msg("user removed")
	return true, nil
}

// Users returns the roster sorted by name
func (s *State) Users() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedUsers(s.users)
}

// Schedule returns the current schedule
func (s *State) Schedule() domain.Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schedule
}

// SetSchedule changes the digest weekday and time, keeping the notify flag
func (s *State) SetSchedule(ctx context.Context, day time.Weekday, at domain.Clock) (domain.Schedule, error) {
	return s.updateSchedule(ctx, func(sc *domain.Schedule) {
		sc.Weekday = day
		sc.At = at
	})
}

// SetNotify turns the weekly digest on or off
func (s *State) SetNotify(ctx context.Context, on bool) (domain.Schedule, error) {
	return s.updateSchedule(ctx, func(sc *domain.Schedule) {
		sc.Notify = on
	})
}

func (s *State) updateSchedule(ctx context.Context, apply func(*domain.Schedule)) (domain.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.schedule
	next := prev
	apply(&next)
	if next == prev {
		return next, nil
	}

	s.schedule = next
	if err := s.saveLocked(ctx); err != nil {
		s.schedule = prev
		return prev, err
	}

	s.logger.Info().
		Str("schedule", next.String()).
		Bool("notify", next.Notify).
		Msg("schedule updated")
	s.publish(next)
	return next, nil
}

func (s *State) saveLocked(ctx context.Context) error {
	if err := s.store.Save(ctx, toDocument(s.users, s.schedule)); err != nil {
		s.logger.Error().Err(err).Msg("failed to save state")
		return fmt.Errorf("%w: saving state: %w", domain.ErrStateUnavailable, err)
	}
	return nil
}

// Subscribe returns a channel that receives the latest schedule after every
// change. A slow reader only ever sees the newest value. The returned func
// releases the subscription.
func (s *State) Subscribe() (<-chan domain.Schedule, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.next
	s.next++
	ch := make(chan domain.Schedule, 1)
	s.subs[id] = ch

	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *State) publish(sched domain.Schedule) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, ch := range s.subs {
		// drop the stale pending value, keep the latest
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- sched:
		default:
		}
	}
}
