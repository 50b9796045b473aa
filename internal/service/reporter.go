package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/codewars-bot/internal/domain"
)

// ProfileSource fetches current Codewars profiles
type ProfileSource interface {
	Profile(ctx context.Context, username string) (domain.Profile, error)
}

// BaselineStore keeps historical snapshots. Lookup returns the earliest
// snapshot taken at or after since, or domain.ErrBaselineNotFound.
type BaselineStore interface {
	Record(ctx context.Context, p domain.Profile) error
	Lookup(ctx context.Context, username string, since time.Time) (domain.Profile, error)
}

// SnapshotPublisher streams every fetched profile to downstream consumers
type SnapshotPublisher interface {
	PublishSnapshot(ctx context.Context, ev domain.SnapshotEvent) error
}

// Broadcaster pushes finished reports to live listeners
type Broadcaster interface {
	BroadcastReport(r domain.Report)
}

// Poster delivers a message to the channel webhook
type Poster interface {
	Post(ctx context.Context, text string) error
}

// Roster lists tracked users
type Roster interface {
	Users() []string
}

// ReporterConfig tunes report generation
type ReporterConfig struct {
	Concurrency  int
	FetchTimeout time.Duration
	Location     *time.Location
}

// Reporter builds stats reports for the roster
type Reporter struct {
	roster    Roster
	source    ProfileSource
	baselines BaselineStore
	poster    Poster
	publisher SnapshotPublisher
	hub       Broadcaster
	cfg       ReporterConfig
	logger    zerolog.Logger
	now       func() time.Time

	mu       sync.Mutex
	recorded map[string]time.Time // last snapshot fetch time per user
}

// NewReporter creates a new reporter
func NewReporter(
	roster Roster,
	source ProfileSource,
	baselines BaselineStore,
	poster Poster,
	cfg ReporterConfig,
	logger zerolog.Logger,
) *Reporter {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Reporter{
		roster:    roster,
		source:    source,
		baselines: baselines,
		poster:    poster,
		cfg:       cfg,
		logger:    logger.With().Str("comp", "reporter").Logger(),
		now:       time.Now,
		recorded:  make(map[string]time.Time),
	}
}

// SetPublisher sets the snapshot stream
func (r *Reporter) SetPublisher(p SnapshotPublisher) {
	r.publisher = p
}

// SetHub sets the live report broadcaster
func (r *Reporter) SetHub(h Broadcaster) {
	r.hub = h
}

// Report fetches every tracked user. A failed fetch becomes a failed row;
// only a cancelled context aborts the report.
func (r *Reporter) Report(ctx context.Context, since *domain.Date) (domain.Report, error) {
	if err := ctx.Err(); err != nil {
		return domain.Report{}, err
	}

	users := r.roster.Users()
	report := domain.Report{
		RunID:       uuid.New().String(),
		Since:       since,
		Rows:        make([]domain.Row, len(users)),
		GeneratedAt: r.now(),
	}

	sem := make(chan struct{}, r.cfg.Concurrency)
	var wg sync.WaitGroup
	for i, u := range users {
		wg.Add(1)
		go func(i int, username string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			report.Rows[i] = r.row(ctx, report.RunID, username, since)
		}(i, u)
	}
	wg.Wait()

	report.SortRows()

	r.logger.Info().
		Str("run_id", report.RunID).
		Int("users", len(users)).
		Int("failed", report.Failed()).
		Msg("report built")

	if r.hub != nil {
		r.hub.BroadcastReport(report)
	}
	return report, nil
}

func (r *Reporter) row(ctx context.Context, runID, username string, since *domain.Date) domain.Row {
	fetchCtx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()

	current, err := r.source.Profile(fetchCtx, username)
	if err != nil {
		r.logger.Warn().Err(err).Str("user", username).Msg("failed to fetch profile")
		return domain.Row{Username: username, Status: domain.RowFailed, Error: describeFetchError(err)}
	}
	// snapshots are keyed by the roster spelling
	current.Username = username

	row := domain.Row{Username: username, Status: domain.RowOK, Current: current}

	// look up before recording so the fresh snapshot never becomes its own baseline
	if since != nil {
		base, err := r.baselines.Lookup(ctx, username, since.Start(r.cfg.Location))
		switch {
		case errors.Is(err, domain.ErrBaselineNotFound):
			row.Status = domain.RowNoBaseline
		case err != nil:
			r.logger.Warn().Err(err).Str("user", username).Msg("failed to look up baseline")
			row.Status = domain.RowFailed
			row.Error = "baseline unavailable"
		default:
			row.Current = current.Delta(base)
		}
	}

	// a cached profile is the snapshot already stored
	if !r.advanced(current) {
		r.logger.Debug().Str("user", username).Time("fetched_at", current.FetchedAt).Msg("profile not refreshed, skipping snapshot")
		return row
	}
	if err := r.baselines.Record(ctx, current); err != nil {
		r.logger.Warn().Err(err).Str("user", username).Msg("failed to record snapshot")
	} else {
		r.markRecorded(current)
	}
	if r.publisher != nil {
		ev := domain.SnapshotEvent{RunID: runID, Profile: current, Timestamp: r.now()}
		if err := r.publisher.PublishSnapshot(ctx, ev); err != nil {
			r.logger.Warn().Err(err).Str("user", username).Msg("failed to publish snapshot")
		}
	}
	return row
}

// advanced reports whether p was fetched after the last recorded snapshot
func (r *Reporter) advanced(p domain.Profile) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	last, ok := r.recorded[p.Username]
	return !ok || p.FetchedAt.After(last)
}

func (r *Reporter) markRecorded(p domain.Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.FetchedAt.After(r.recorded[p.Username]) {
		r.recorded[p.Username] = p.FetchedAt
	}
}

func describeFetchError(err error) string {
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		return "user not found"
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	default:
		return "fetch failed"
	}
}

// Digest builds an absolute report and posts it to the channel. Delivery is
// attempted once.
func (r *Reporter) Digest(ctx context.Context) error {
	report, err := r.Report(ctx, nil)
	if err != nil {
		return fmt.Errorf("building digest: %w", err)
	}
	if err := r.poster.Post(ctx, "*Weekly Codewars digest*\n"+Format(report)); err != nil {
		return fmt.Errorf("posting digest: %w", err)
	}
	return nil
}

// Format renders a report as Slack mrkdwn
func Format(report domain.Report) string {
	if len(report.Rows) == 0 {
		return "No users are tracked yet. Use `add <username>` to start."
	}

	var b strings.Builder
	if report.Since != nil {
		fmt.Fprintf(&b, "Progress since %s:\n", report.Since)
	} else {
		b.WriteString("Current stats:\n")
	}

	pos := 0
	for _, row := range report.Rows {
		switch row.Status {
		case domain.RowOK:
			pos++
			p := row.Current
			if report.Since != nil {
				fmt.Fprintf(&b, "%d. *%s* %s score, %s honor, %s kata (now %s)\n",
					pos, row.Username, signed(p.Score), signed(p.Honor), signed(p.Completed), p.Rank.Name)
			} else {
				fmt.Fprintf(&b, "%d. *%s* %s, %s score, %s honor, %s kata\n",
					pos, row.Username, p.Rank.Name, humanize.Comma(p.Score), humanize.Comma(p.Honor), humanize.Comma(p.Completed))
			}
		case domain.RowNoBaseline:
			fmt.Fprintf(&b, "• *%s* no data recorded since %s\n", row.Username, report.Since)
		default:
			fmt.Fprintf(&b, "• *%s* unavailable (%s)\n", row.Username, row.Error)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func signed(v int64) string {
	if v > 0 {
		return "+" + humanize.Comma(v)
	}
	return humanize.Comma(v)
}
