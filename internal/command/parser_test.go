package command

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewars-bot/internal/domain"
)

func datePtr(y int, m time.Month, d int) *domain.Date {
	return &domain.Date{Year: y, Month: m, Day: d}
}

func clockPtr(h, m int) *domain.Clock {
	return &domain.Clock{Hour: h, Minute: m}
}

func TestParseValid(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want domain.Command
	}{
		{"add", "add bob", domain.AddUser("bob")},
		{"add keyword uppercase", "ADD bob", domain.AddUser("bob")},
		{"add keeps username case", "add BoB", domain.AddUser("BoB")},
		{"add punctuation", "add jo.hn-doe_42", domain.AddUser("jo.hn-doe_42")},
		{"remove", "remove bob", domain.RemoveUser("bob")},
		{"rm alias", "rm bob", domain.RemoveUser("bob")},
		{"stats", "stats", domain.Stats(nil)},
		{"stats since", "stats since 2022/1/5", domain.Stats(datePtr(2022, time.January, 5))},
		{"stats since two digits", "Stats SINCE 2021/12/31", domain.Stats(datePtr(2021, time.December, 31))},
		{"help", "help", domain.Help()},
		{"schedule with time", "schedule on mon at 09:00", domain.SetSchedule(time.Monday, clockPtr(9, 0))},
		{"schedule full name", "schedule on monday", domain.SetSchedule(time.Monday, nil)},
		{"schedule mixed case prefix", "Schedule On WEDN at 23:59", domain.SetSchedule(time.Wednesday, clockPtr(23, 59))},
		{"notify on", "notify on", domain.SetNotify(true)},
		{"notify off", "notify OFF", domain.SetNotify(false)},
		{"extra whitespace and newlines", "  \n add\t\tbob \n", domain.AddUser("bob")},
		{"leading mention", "<@U024BE7LH> stats", domain.Stats(nil)},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseRemoveAliasesMatch(t *testing.T) {
	t.Parallel()

	a, err := Parse("rm bob")
	require.NoError(t, err)
	b, err := Parse("remove bob")
	require.NoError(t, err)
	assert.Equal(t, b, a)
}

func TestParseInvalid(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"   ",
		"foo bar",
		"add",
		"add bob alice",
		"remove",
		"rm",
		"stats since",
		"stats since yesterday",
		"stats since 22/1/5",
		"stats since 2022/13/1",
		"stats since 2022/2/30",
		"stats since 2022/001/5",
		"stats until 2022/1/5",
		"stats since 2022/1/5 extra",
		"help me",
		"schedule",
		"schedule on",
		"schedule mon",
		"schedule on mo",
		"schedule on funday",
		"schedule on mon at",
		"schedule on mon at 9:00",
		"schedule on mon at 24:00",
		"schedule on mon at 12:60",
		"schedule on mon at 12:00 sharp",
		"schedule on mon 12:00 at",
		"notify",
		"notify maybe",
		"notify on off",
		"<@U024BE7LH>",
	}

	for _, in := range inputs {
		in := in
		t.Run(in, func(t *testing.T) {
			t.Parallel()
			_, err := Parse(in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid))

			var perr *ParseError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, in, perr.Raw)
		})
	}
}

func TestScheduleTimeDefaultsToMidnight(t *testing.T) {
	t.Parallel()

	cmd, err := Parse("schedule on friday")
	require.NoError(t, err)
	assert.Equal(t, domain.Clock{}, cmd.ScheduleTime())
}

func TestStripMention(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "<@U0BOT> frobnicate", want: "frobnicate"},
		{in: "  <@U0BOT>\tadd  bob ", want: "add  bob"},
		{in: "<@U0BOT>", want: ""},
		{in: "add <@U0BOT>", want: "add <@U0BOT>"},
		{in: "stats", want: "stats"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, StripMention(tt.in))
		})
	}
}
