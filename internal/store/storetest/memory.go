// Package storetest provides an in-memory domain.StoreSession for tests.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"sealpost/internal/domain"
)

// Memory is an unencrypted in-memory store. SyncErr, when set, is returned
// by every Sync call; Incoming documents are delivered on the next Sync.
type Memory struct {
	mu       sync.Mutex
	docs     map[string]domain.Document
	closed   bool
	syncs    int
	lastSync domain.SyncOptions

	SyncErr  error
	Incoming []domain.Document
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]domain.Document)}
}

func (m *Memory) Put(ctx context.Context, doc domain.Document) (domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return domain.Document{}, domain.ErrSessionClosed
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	doc.Updated = time.Now().UTC()
	doc.Content = append([]byte(nil), doc.Content...)
	m.docs[doc.ID] = doc
	return doc, nil
}

func (m *Memory) Get(ctx context.Context, id string) (domain.Document, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return domain.Document{}, false, domain.ErrSessionClosed
	}
	d, ok := m.docs[id]
	return d, ok, nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return domain.ErrSessionClosed
	}
	delete(m.docs, id)
	return nil
}

func (m *Memory) List(ctx context.Context, docType string) ([]domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, domain.ErrSessionClosed
	}
	var out []domain.Document
	for _, d := range m.docs {
		if docType == "" || d.Type == docType {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Sync(ctx context.Context, opts domain.SyncOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncs++
	m.lastSync = opts
	if m.SyncErr != nil {
		return m.SyncErr
	}
	for _, d := range m.Incoming {
		d.Type = domain.DocIncoming
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		m.docs[d.ID] = d
	}
	m.Incoming = nil
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Syncs reports how many times Sync was called and the last options used.
func (m *Memory) Syncs() (int, domain.SyncOptions) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.syncs, m.lastSync
}

// Closed reports whether Close was called.
func (m *Memory) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

var _ domain.StoreSession = (*Memory)(nil)
