package domain

import "time"

// CommandKind identifies one of the fixed bot commands
type CommandKind int

const (
	CommandAddUser CommandKind = iota + 1
	CommandRemoveUser
	CommandStats
	CommandHelp
	CommandSetSchedule
	CommandSetNotify
)

// String returns the command keyword
func (k CommandKind) String() string {
	switch k {
	case CommandAddUser:
		return "add"
	case CommandRemoveUser:
		return "remove"
	case CommandStats:
		return "stats"
	case CommandHelp:
		return "help"
	case CommandSetSchedule:
		return "schedule"
	case CommandSetNotify:
		return "notify"
	default:
		return "unknown"
	}
}

// Command is a parsed bot command. Only the fields belonging to Kind are
// meaningful; the value is never modified after parsing.
type Command struct {
	Kind CommandKind

	// AddUser, RemoveUser
	Username string

	// Stats
	Since *Date

	// SetSchedule
	Weekday time.Weekday
	At      *Clock

	// SetNotify
	Enabled bool
}

// AddUser builds an add command
func AddUser(name string) Command { return Command{Kind: CommandAddUser, Username: name} }

// RemoveUser builds a remove command
func RemoveUser(name string) Command { return Command{Kind: CommandRemoveUser, Username: name} }

// Stats builds a stats command; since may be nil
func Stats(since *Date) Command { return Command{Kind: CommandStats, Since: since} }

// Help builds a help command
func Help() Command { return Command{Kind: CommandHelp} }

// SetSchedule builds a schedule command; at may be nil
func SetSchedule(day time.Weekday, at *Clock) Command {
	return Command{Kind: CommandSetSchedule, Weekday: day, At: at}
}

// SetNotify builds a notify command
func SetNotify(enabled bool) Command { return Command{Kind: CommandSetNotify, Enabled: enabled} }

// ScheduleTime returns the configured time or midnight when omitted
func (c Command) ScheduleTime() Clock {
	if c.At == nil {
		return Clock{}
	}
	return *c.At
}
