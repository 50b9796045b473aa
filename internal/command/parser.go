// Package command turns free-text chat messages into typed bot commands.
package command

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/codewars-bot/internal/domain"
)

// ErrInvalid is matched by every parse failure
var ErrInvalid = errors.New("invalid command")

// ParseError carries the raw input that failed to parse
type ParseError struct {
	Raw string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid command: %q", e.Raw)
}

// Is makes errors.Is(err, ErrInvalid) hold for every ParseError
func (e *ParseError) Is(target error) bool {
	return target == ErrInvalid
}

// Usage lists the accepted commands
const Usage = "Available commands:\n" +
	"• `add <username>` start tracking a Codewars user\n" +
	"• `remove <username>` (or `rm`) stop tracking a user\n" +
	"• `stats [since YYYY/M/D]` show current stats or progress since a date\n" +
	"• `schedule on <weekday> [at HH:MM]` set the weekly digest time\n" +
	"• `notify on|off` turn the weekly digest on or off\n" +
	"• `help` show this message"

// Parse converts text into a Command. The whole input must match one
// command; anything else returns a *ParseError. Parse never panics.
func Parse(text string) (domain.Command, error) {
	tokens := strings.Fields(text)
	if len(tokens) > 0 && isMention(tokens[0]) {
		tokens = tokens[1:]
	}

	cmd, ok := parseTokens(tokens)
	if !ok {
		return domain.Command{}, &ParseError{Raw: text}
	}
	return cmd, nil
}

func parseTokens(tokens []string) (domain.Command, bool) {
	if len(tokens) == 0 {
		return domain.Command{}, false
	}
	args := tokens[1:]

	switch strings.ToLower(tokens[0]) {
	case "add":
		if len(args) != 1 || !validUsername(args[0]) {
			return domain.Command{}, false
		}
		return domain.AddUser(args[0]), true

	case "remove", "rm":
		if len(args) != 1 || !validUsername(args[0]) {
			return domain.Command{}, false
		}
		return domain.RemoveUser(args[0]), true

	case "stats":
		return parseStats(args)

	case "help":
		if len(args) != 0 {
			return domain.Command{}, false
		}
		return domain.Help(), true

	case "schedule":
		return parseSchedule(args)

	case "notify":
		if len(args) != 1 {
			return domain.Command{}, false
		}
		switch strings.ToLower(args[0]) {
		case "on":
			return domain.SetNotify(true), true
		case "off":
			return domain.SetNotify(false), true
		}
	}

	return domain.Command{}, false
}

// stats [since <date>]
func parseStats(args []string) (domain.Command, bool) {
	switch len(args) {
	case 0:
		return domain.Stats(nil), true
	case 2:
		if !strings.EqualFold(args[0], "since") {
			return domain.Command{}, false
		}
		date, err := domain.ParseDate(args[1])
		if err != nil {
			return domain.Command{}, false
		}
		return domain.Stats(&date), true
	}
	return domain.Command{}, false
}

// schedule on <weekday> [at <time>]
func parseSchedule(args []string) (domain.Command, bool) {
	if len(args) != 2 && len(args) != 4 {
		return domain.Command{}, false
	}
	if !strings.EqualFold(args[0], "on") {
		return domain.Command{}, false
	}
	day, err := domain.ParseWeekday(args[1])
	if err != nil {
		return domain.Command{}, false
	}
	if len(args) == 2 {
		return domain.SetSchedule(day, nil), true
	}

	if !strings.EqualFold(args[2], "at") {
		return domain.Command{}, false
	}
	at, err := domain.ParseClock(args[3])
	if err != nil {
		return domain.Command{}, false
	}
	return domain.SetSchedule(day, &at), true
}

// validUsername accepts letters, digits, punctuation and symbols
func validUsername(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)) {
			return false
		}
	}
	return true
}

// StripMention removes a leading user mention and the space around it, so
// text can be echoed back without pinging anyone.
func StripMention(text string) string {
	text = strings.TrimSpace(text)
	end := strings.IndexFunc(text, unicode.IsSpace)
	if end < 0 {
		end = len(text)
	}
	if isMention(text[:end]) {
		return strings.TrimSpace(text[end:])
	}
	return text
}

// isMention matches a Slack user mention such as <@U024BE7LH>
func isMention(tok string) bool {
	return strings.HasPrefix(tok, "<@") && strings.HasSuffix(tok, ">")
}
