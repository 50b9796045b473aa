package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewars-bot/internal/domain"
	"github.com/codewars-bot/internal/state"
)

type stubReporter struct {
	report domain.Report
	since  *domain.Date
	calls  int
}

func (s *stubReporter) Report(ctx context.Context, since *domain.Date) (domain.Report, error) {
	s.calls++
	s.since = since
	r := s.report
	r.Since = since
	return r, nil
}

func newTestDispatcher(t *testing.T, rep *stubReporter, poster *fakePoster, cfg DispatcherConfig) (*Dispatcher, *state.State, *state.MemoryStore) {
	t.Helper()
	store := state.NewMemoryStore(nil)
	st, err := state.Load(context.Background(), store, zerolog.Nop())
	require.NoError(t, err)

	cfg.Location = time.UTC
	d := NewDispatcher(st, rep, poster, cfg, zerolog.Nop())
	// Wednesday
	d.now = func() time.Time { return time.Date(2026, 2, 11, 10, 0, 0, 0, time.UTC) }
	return d, st, store
}

func TestDispatchAddRemove(t *testing.T) {
	ctx := context.Background()
	d, st, _ := newTestDispatcher(t, &stubReporter{}, &fakePoster{}, DispatcherConfig{})

	assert.Equal(t, "Now tracking *bob*.", d.Handle(ctx, "add bob").Text)
	assert.Equal(t, "*bob* is already tracked.", d.Handle(ctx, "ADD bob").Text)
	assert.Equal(t, []string{"bob"}, st.Users())

	assert.Equal(t, "*alice* was not tracked.", d.Handle(ctx, "rm alice").Text)
	assert.Equal(t, "Stopped tracking *bob*.", d.Handle(ctx, "remove bob").Text)
	assert.Empty(t, st.Users())
}

func TestDispatchInvalidShowsUsage(t *testing.T) {
	ctx := context.Background()
	rep := &stubReporter{}
	d, st, _ := newTestDispatcher(t, rep, &fakePoster{}, DispatcherConfig{})

	for _, in := range []string{"", "foo bar", "add"} {
		reply := d.Handle(ctx, in)
		assert.Contains(t, reply.Text, "didn't understand")
		assert.Contains(t, reply.Text, "Available commands")
	}
	assert.Empty(t, st.Users())
	assert.Zero(t, rep.calls)
}

func TestDispatchInvalidDoesNotEchoMention(t *testing.T) {
	ctx := context.Background()
	d, _, _ := newTestDispatcher(t, &stubReporter{}, &fakePoster{}, DispatcherConfig{})

	tests := []struct {
		in   string
		want string
	}{
		{in: "<@U0BOT> frobnicate", want: "Sorry, I didn't understand `frobnicate`."},
		{in: "<@U0BOT>", want: "Sorry, I didn't understand that."},
		{in: "add", want: "Sorry, I didn't understand `add`."},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			reply := d.Handle(ctx, tt.in)
			assert.True(t, strings.HasPrefix(reply.Text, tt.want), reply.Text)
			assert.NotContains(t, reply.Text, "<@U0BOT>")
		})
	}
}

func TestDispatchHelp(t *testing.T) {
	d, _, _ := newTestDispatcher(t, &stubReporter{}, &fakePoster{}, DispatcherConfig{})
	assert.True(t, strings.HasPrefix(d.Handle(context.Background(), "help").Text, "Available commands"))
}

func TestDispatchSchedule(t *testing.T) {
	ctx := context.Background()
	d, st, _ := newTestDispatcher(t, &stubReporter{}, &fakePoster{}, DispatcherConfig{})

	reply := d.Handle(ctx, "schedule on mon at 09:00")
	assert.Contains(t, reply.Text, "Monday at 09:00")
	assert.Contains(t, reply.Text, "Mon Feb 16 09:00 UTC")
	assert.Contains(t, reply.Text, "notify on")
	assert.Equal(t, domain.Schedule{Weekday: time.Monday, At: domain.Clock{Hour: 9}}, st.Schedule())

	reply = d.Handle(ctx, "schedule on friday")
	assert.Contains(t, reply.Text, "Friday at 00:00")
	assert.Equal(t, domain.Clock{}, st.Schedule().At)

	reply = d.Handle(ctx, "notify on")
	assert.Contains(t, reply.Text, "turned on")
	assert.NotContains(t, reply.Text, "Notifications are off")
	assert.True(t, st.Schedule().Notify)

	assert.Equal(t, "Weekly digest turned off.", d.Handle(ctx, "notify off").Text)
	assert.False(t, st.Schedule().Notify)
	assert.Equal(t, time.Friday, st.Schedule().Weekday, "notify keeps the schedule")
}

func TestDispatchStatsEphemeral(t *testing.T) {
	ctx := context.Background()
	rep := &stubReporter{report: domain.Report{Rows: []domain.Row{
		{Username: "bob", Status: domain.RowOK, Current: domain.Profile{Score: 10, Rank: domain.Rank{Name: "8 kyu"}}},
	}}}
	poster := &fakePoster{}
	d, _, _ := newTestDispatcher(t, rep, poster, DispatcherConfig{})

	reply := d.Handle(ctx, "stats since 2022/1/5")
	assert.False(t, reply.Posted)
	assert.Contains(t, reply.Text, "*bob*")
	require.NotNil(t, rep.since)
	assert.Equal(t, domain.Date{Year: 2022, Month: time.January, Day: 5}, *rep.since)
	assert.Empty(t, poster.sent())
}

func TestDispatchStatsTooLongGoesToChannel(t *testing.T) {
	ctx := context.Background()
	rows := make([]domain.Row, 0, 200)
	for i := 0; i < 200; i++ {
		rows = append(rows, domain.Row{Username: strings.Repeat("u", 20), Status: domain.RowFailed, Error: "fetch failed"})
	}
	poster := &fakePoster{}
	d, _, _ := newTestDispatcher(t, &stubReporter{report: domain.Report{Rows: rows}}, poster, DispatcherConfig{EphemeralLimit: 500})

	reply := d.Handle(ctx, "stats")
	assert.True(t, reply.Posted)
	assert.Equal(t, "The report was posted to the channel.", reply.Text)
	require.Len(t, poster.sent(), 1)

	poster.err = errors.New("boom")
	reply = d.Handle(ctx, "stats")
	assert.False(t, reply.Posted)
	assert.Contains(t, reply.Text, "could not be posted")
}

func TestDispatchSaveFailure(t *testing.T) {
	ctx := context.Background()
	d, st, store := newTestDispatcher(t, &stubReporter{}, &fakePoster{}, DispatcherConfig{})
	store.SetErr(errors.New("read-only file system"))

	reply := d.Handle(ctx, "add bob")
	assert.Contains(t, reply.Text, "could not be saved")
	assert.Empty(t, st.Users())
}
