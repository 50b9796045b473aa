package state

import (
	"context"
	"sync"
)

// MemoryStore keeps the document in process memory. Nothing survives a
// restart; it backs the "memory" driver and tests.
type MemoryStore struct {
	mu    sync.Mutex
	doc   *Document
	saves int
	err   error
}

// NewMemoryStore optionally seeds the store with a document
func NewMemoryStore(seed *Document) *MemoryStore {
	return &MemoryStore{doc: cloneDocument(seed)}
}

// Load returns a copy of the stored document
func (m *MemoryStore) Load(_ context.Context) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneDocument(m.doc), nil
}

// Save stores a copy of doc unless a failure was injected with SetErr
func (m *MemoryStore) Save(_ context.Context, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.doc = cloneDocument(&doc)
	m.saves++
	return nil
}

// Saves reports how many successful saves happened
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// SetErr makes subsequent saves fail with err
func (m *MemoryStore) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func cloneDocument(doc *Document) *Document {
	if doc == nil {
		return nil
	}
	c := *doc
	c.Users = append([]string(nil), doc.Users...)
	return &c
}
