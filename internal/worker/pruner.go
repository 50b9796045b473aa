package worker

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// SnapshotPruner deletes baseline snapshots older than a cutoff
type SnapshotPruner interface {
	PruneSnapshots(ctx context.Context, olderThan time.Time) (int64, error)
}

// PrunerConfig holds retention settings
type PrunerConfig struct {
	Retention time.Duration
	// Spec is a cron expression or descriptor, "@daily" when empty
	Spec     string
	Location *time.Location
	Timeout  time.Duration
}

// Pruner periodically trims the snapshot history
type Pruner struct {
	store  SnapshotPruner
	cfg    PrunerConfig
	logger zerolog.Logger
	now    func() time.Time

	mu sync.Mutex
	c  *cron.Cron
}

// NewPruner creates a new pruner
func NewPruner(store SnapshotPruner, cfg PrunerConfig, logger zerolog.Logger) *Pruner {
	if cfg.Spec == "" {
		cfg.Spec = "@daily"
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	return &Pruner{
		store:  store,
		cfg:    cfg,
		logger: logger.With().Str("comp", "pruner").Logger(),
		now:    time.Now,
	}
}

// Start registers the cron entry and starts the cron runner
func (p *Pruner) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.c != nil {
		return nil
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser), cron.WithLocation(p.cfg.Location))
	if _, err := c.AddFunc(p.cfg.Spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Timeout)
		defer cancel()
		p.RunOnce(ctx)
	}); err != nil {
		return err
	}
	c.Start()
	p.c = c

	p.logger.Info().Str("spec", p.cfg.Spec).Dur("retention", p.cfg.Retention).Msg("snapshot pruner started")
	return nil
}

// Stop halts the cron runner and waits for a running prune to finish
func (p *Pruner) Stop() {
	p.mu.Lock()
	c := p.c
	p.c = nil
	p.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// RunOnce deletes everything older than the retention window
func (p *Pruner) RunOnce(ctx context.Context) int64 {
	if p.cfg.Retention <= 0 {
		return 0
	}
	cutoff := p.now().Add(-p.cfg.Retention)
	n, err := p.store.PruneSnapshots(ctx, cutoff)
	if err != nil {
		p.logger.Error().Err(err).Time("cutoff", cutoff).Msg("snapshot pruning failed")
		return 0
	}
	p.logger.Debug().Int64("deleted", n).Time("cutoff", cutoff).Msg("snapshots pruned")
	return n
}
