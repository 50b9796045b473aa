package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePruner struct {
	cutoffs []time.Time
	n       int64
	err     error
}

func (f *fakePruner) PruneSnapshots(ctx context.Context, olderThan time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, olderThan)
	return f.n, f.err
}

func TestPrunerRunOnce(t *testing.T) {
	t.Parallel()

	store := &fakePruner{n: 7}
	p := NewPruner(store, PrunerConfig{Retention: 30 * 24 * time.Hour}, zerolog.Nop())
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	assert.Equal(t, int64(7), p.RunOnce(context.Background()))
	require.Len(t, store.cutoffs, 1)
	assert.True(t, store.cutoffs[0].Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
}

func TestPrunerErrorsAreSwallowed(t *testing.T) {
	t.Parallel()

	store := &fakePruner{err: errors.New("db down")}
	p := NewPruner(store, PrunerConfig{Retention: time.Hour}, zerolog.Nop())
	assert.Equal(t, int64(0), p.RunOnce(context.Background()))
}

func TestPrunerDisabledWithoutRetention(t *testing.T) {
	t.Parallel()

	store := &fakePruner{}
	p := NewPruner(store, PrunerConfig{}, zerolog.Nop())
	assert.Equal(t, int64(0), p.RunOnce(context.Background()))
	assert.Empty(t, store.cutoffs)
}

func TestPrunerStartRejectsBadSpec(t *testing.T) {
	t.Parallel()

	p := NewPruner(&fakePruner{}, PrunerConfig{Retention: time.Hour, Spec: "every tuesday"}, zerolog.Nop())
	assert.Error(t, p.Start())

	ok := NewPruner(&fakePruner{}, PrunerConfig{Retention: time.Hour}, zerolog.Nop())
	require.NoError(t, ok.Start())
	ok.Stop()
}
