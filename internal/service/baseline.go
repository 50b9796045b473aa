package service

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/codewars-bot/internal/domain"
)

const maxSnapshotsPerUser = 520

// MemoryBaselines keeps snapshots in process memory. Used when no database
// is configured; history is lost on restart.
type MemoryBaselines struct {
	mu    sync.RWMutex
	byKey map[string][]domain.Profile
}

// NewMemoryBaselines creates an empty store
func NewMemoryBaselines() *MemoryBaselines {
	return &MemoryBaselines{byKey: make(map[string][]domain.Profile)}
}

// Record inserts a snapshot, keeping each user's history ordered by time.
// A snapshot with the same fetch time as a stored one is ignored.
func (m *MemoryBaselines) Record(_ context.Context, p domain.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.byKey[p.Username]
	i := sort.Search(len(list), func(i int) bool {
		return !list[i].FetchedAt.Before(p.FetchedAt)
	})
	if i < len(list) && list[i].FetchedAt.Equal(p.FetchedAt) {
		return nil
	}
	list = slices.Insert(list, i, p)
	if len(list) > maxSnapshotsPerUser {
		list = list[len(list)-maxSnapshotsPerUser:]
	}
	m.byKey[p.Username] = list
	return nil
}

// Lookup returns the earliest snapshot at or after since
func (m *MemoryBaselines) Lookup(_ context.Context, username string, since time.Time) (domain.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.byKey[username]
	i := sort.Search(len(list), func(i int) bool {
		return !list[i].FetchedAt.Before(since)
	})
	if i == len(list) {
		return domain.Profile{}, domain.ErrBaselineNotFound
	}
	return list[i], nil
}
