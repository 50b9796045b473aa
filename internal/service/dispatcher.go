package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/codewars-bot/internal/command"
	"github.com/codewars-bot/internal/domain"
	"github.com/codewars-bot/internal/worker"
)

// DefaultEphemeralLimit is the longest reply shown directly to the caller
const DefaultEphemeralLimit = 3000

// BotState is the roster and schedule owner
type BotState interface {
	AddUser(ctx context.Context, name string) (bool, error)
	RemoveUser(ctx context.Context, name string) (bool, error)
	Users() []string
	Schedule() domain.Schedule
	SetSchedule(ctx context.Context, day time.Weekday, at domain.Clock) (domain.Schedule, error)
	SetNotify(ctx context.Context, on bool) (domain.Schedule, error)
}

// StatsReporter builds reports on demand
type StatsReporter interface {
	Report(ctx context.Context, since *domain.Date) (domain.Report, error)
}

// Reply is the text returned to the invoking user
type Reply struct {
	Text string
	// Posted is set when the full answer went to the channel webhook
	Posted bool
}

// DispatcherConfig tunes command replies
type DispatcherConfig struct {
	EphemeralLimit int
	PostStats      bool
	Location       *time.Location
}

// Dispatcher maps parsed commands to their handlers
type Dispatcher struct {
	state    BotState
	reporter StatsReporter
	poster   Poster
	cfg      DispatcherConfig
	logger   zerolog.Logger
	now      func() time.Time
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(state BotState, reporter StatsReporter, poster Poster, cfg DispatcherConfig, logger zerolog.Logger) *Dispatcher {
	if cfg.EphemeralLimit <= 0 {
		cfg.EphemeralLimit = DefaultEphemeralLimit
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Dispatcher{
		state:    state,
		reporter: reporter,
		poster:   poster,
		cfg:      cfg,
		logger:   logger.With().Str("comp", "dispatcher").Logger(),
		now:      time.Now,
	}
}

// Handle parses text and runs the command. Unrecognised input yields the
// usage text; Handle never fails.
func (d *Dispatcher) Handle(ctx context.Context, text string) Reply {
	cmd, err := command.Parse(text)
	if err != nil {
		d.logger.Debug().Str("text", text).Msg("unrecognised command")
		echo := command.StripMention(text)
		if echo == "" {
			return Reply{Text: "Sorry, I didn't understand that.\n\n" + command.Usage}
		}
		return Reply{Text: fmt.Sprintf("Sorry, I didn't understand `%s`.\n\n%s", echo, command.Usage)}
	}

	reply, err := d.Execute(ctx, cmd)
	if err != nil {
		d.logger.Error().Err(err).Stringer("command", cmd.Kind).Msg("command failed")
		if errors.Is(err, domain.ErrStateUnavailable) {
			return Reply{Text: "The change could not be saved, nothing was modified. Please try again."}
		}
		return Reply{Text: "Something went wrong while handling that command, please try again."}
	}
	return reply
}

// Execute runs one parsed command
func (d *Dispatcher) Execute(ctx context.Context, cmd domain.Command) (Reply, error) {
	switch cmd.Kind {
	case domain.CommandAddUser:
		added, err := d.state.AddUser(ctx, cmd.Username)
		if err != nil {
			return Reply{}, err
		}
		if !added {
			return Reply{Text: fmt.Sprintf("*%s* is already tracked.", cmd.Username)}, nil
		}
		return Reply{Text: fmt.Sprintf("Now tracking *%s*.", cmd.Username)}, nil

	case domain.CommandRemoveUser:
		removed, err := d.state.RemoveUser(ctx, cmd.Username)
		if err != nil {
			return Reply{}, err
		}
		if !removed {
			return Reply{Text: fmt.Sprintf("*%s* was not tracked.", cmd.Username)}, nil
		}
		return Reply{Text: fmt.Sprintf("Stopped tracking *%s*.", cmd.Username)}, nil

	case domain.CommandStats:
		return d.stats(ctx, cmd.Since)

	case domain.CommandHelp:
		return Reply{Text: command.Usage}, nil

	case domain.CommandSetSchedule:
		sched, err := d.state.SetSchedule(ctx, cmd.Weekday, cmd.ScheduleTime())
		if err != nil {
			return Reply{}, err
		}
		return Reply{Text: "Weekly digest scheduled for " + d.describe(sched)}, nil

	case domain.CommandSetNotify:
		sched, err := d.state.SetNotify(ctx, cmd.Enabled)
		if err != nil {
			return Reply{}, err
		}
		if !sched.Notify {
			return Reply{Text: "Weekly digest turned off."}, nil
		}
		return Reply{Text: "Weekly digest turned on for " + d.describe(sched)}, nil
	}

	return Reply{}, fmt.Errorf("%w: unknown command kind %d", domain.ErrInvalidRequest, cmd.Kind)
}

func (d *Dispatcher) stats(ctx context.Context, since *domain.Date) (Reply, error) {
	report, err := d.reporter.Report(ctx, since)
	if err != nil {
		return Reply{}, err
	}
	text := Format(report)
	if !d.cfg.PostStats && len(text) <= d.cfg.EphemeralLimit {
		return Reply{Text: text}, nil
	}

	if err := d.poster.Post(ctx, text); err != nil {
		d.logger.Error().Err(err).Msg("failed to post stats to channel")
		return Reply{Text: "The report could not be posted to the channel, please try again later."}, nil
	}
	return Reply{Text: "The report was posted to the channel.", Posted: true}, nil
}

func (d *Dispatcher) describe(sched domain.Schedule) string {
	now := d.now().In(d.cfg.Location)
	text := sched.String() + "."
	next, err := worker.NextOccurrence(sched, now, d.cfg.Location)
	if err == nil {
		text = fmt.Sprintf("%s (%s, next on %s).", sched, humanize.RelTime(now, next, "ago", "from now"),
			next.Format("Mon Jan 2 15:04 MST"))
	}
	if !sched.Notify {
		text += " Notifications are off, turn them on with `notify on`."
	}
	return text
}
