package state

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/codewars-bot/internal/domain"
)

// Document is the persisted form of the bot state
type Document struct {
	Users    []string         `yaml:"users"`
	Notify   bool             `yaml:"notify"`
	Schedule ScheduleDocument `yaml:"schedule"`
}

// ScheduleDocument stores the weekday by name and the time as HH:MM
type ScheduleDocument struct {
	Weekday string `yaml:"weekday"`
	Time    string `yaml:"time"`
}

// Store loads and saves the bot state. Load returns (nil, nil) when
// nothing has been persisted yet.
type Store interface {
	Load(ctx context.Context) (*Document, error)
	Save(ctx context.Context, doc Document) error
}

func toDocument(users map[string]struct{}, sched domain.Schedule) Document {
	return Document{
		Users:  sortedUsers(users),
		Notify: sched.Notify,
		Schedule: ScheduleDocument{
			Weekday: strings.ToLower(sched.Weekday.String()),
			Time:    sched.At.String(),
		},
	}
}

func fromDocument(doc Document) (map[string]struct{}, domain.Schedule, error) {
	users := make(map[string]struct{}, len(doc.Users))
	for _, u := range doc.Users {
		if u != "" {
			users[u] = struct{}{}
		}
	}

	sched := domain.DefaultSchedule()
	sched.Notify = doc.Notify
	if doc.Schedule.Weekday != "" {
		day, err := domain.ParseWeekday(doc.Schedule.Weekday)
		if err != nil {
			return nil, domain.Schedule{}, fmt.Errorf("stored schedule: %w", err)
		}
		sched.Weekday = day
	}
	if doc.Schedule.Time != "" {
		at, err := domain.ParseClock(doc.Schedule.Time)
		if err != nil {
			return nil, domain.Schedule{}, fmt.Errorf("stored schedule: %w", err)
		}
		sched.At = at
	}
	return users, sched, nil
}

func sortedUsers(users map[string]struct{}) []string {
	out := make([]string, 0, len(users))
	for u := range users {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}
