package mailbox

import (
	"context"
	"encoding/json"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"sealpost/internal/domain"
)

// mailDocPrefix keeps message documents apart from the account's other
// documents (key pair, mailbox index).
const mailDocPrefix = "mail/"

func docID(id string) string { return mailDocPrefix + id }

// PermanentStore persists messages as mail documents.
type PermanentStore struct {
	docs domain.DocumentStore
}

// NewPermanentStore returns a PermanentStore over docs.
func NewPermanentStore(docs domain.DocumentStore) *PermanentStore {
	return &PermanentStore{docs: docs}
}

// Put writes msg. It refuses to replace a document that is not a mail.
func (p *PermanentStore) Put(ctx context.Context, msg domain.Message) error {
	if msg.ID == "" {
		return fmt.Errorf("mailbox: message without id")
	}
	id := docID(msg.ID)
	prev, ok, err := p.docs.Get(ctx, id)
	if err != nil {
		return err
	}
	if ok && prev.Type != domain.DocMail {
		return fmt.Errorf("%w: %s is %q", domain.ErrDocumentType, id, prev.Type)
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = p.docs.Put(ctx, domain.Document{ID: id, Type: domain.DocMail, Content: raw})
	return err
}

func (p *PermanentStore) Get(ctx context.Context, id string) (domain.Message, bool, error) {
	doc, ok, err := p.docs.Get(ctx, docID(id))
	if err != nil || !ok || doc.Type != domain.DocMail {
		return domain.Message{}, false, err
	}
	msg, err := decodeMessage(doc)
	return msg, err == nil, err
}

func (p *PermanentStore) Delete(ctx context.Context, id string) error {
	return p.docs.Delete(ctx, docID(id))
}

func (p *PermanentStore) All(ctx context.Context) ([]domain.Message, error) {
	docs, err := p.docs.List(ctx, domain.DocMail)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Message, 0, len(docs))
	for _, d := range docs {
		msg, err := decodeMessage(d)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

func decodeMessage(doc domain.Document) (domain.Message, error) {
	var msg domain.Message
	if err := json.Unmarshal(doc.Content, &msg); err != nil {
		return domain.Message{}, fmt.Errorf("mailbox: decode %s: %w", doc.ID, err)
	}
	return msg, nil
}

// MemoryStore caches messages in front of a PermanentStore. Writes go to the
// permanent store first and then to the cache.
type MemoryStore struct {
	perm  *PermanentStore
	cache *lru.Cache[string, domain.Message]
}

// NewMemoryStore returns a MemoryStore caching up to size messages.
func NewMemoryStore(perm *PermanentStore, size int) (*MemoryStore, error) {
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[string, domain.Message](size)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{perm: perm, cache: cache}, nil
}

func (m *MemoryStore) Put(ctx context.Context, msg domain.Message) error {
	if err := m.perm.Put(ctx, msg); err != nil {
		return err
	}
	m.cache.Add(msg.ID, msg)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (domain.Message, bool, error) {
	if msg, ok := m.cache.Get(id); ok {
		return msg, true, nil
	}
	msg, ok, err := m.perm.Get(ctx, id)
	if err != nil || !ok {
		return domain.Message{}, false, err
	}
	m.cache.Add(id, msg)
	return msg, true, nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := m.perm.Delete(ctx, id); err != nil {
		return err
	}
	m.cache.Remove(id)
	return nil
}

// All reads every message from the permanent store, refreshing the cache.
func (m *MemoryStore) All(ctx context.Context) ([]domain.Message, error) {
	msgs, err := m.perm.All(ctx)
	if err != nil {
		return nil, err
	}
	for _, msg := range msgs {
		m.cache.Add(msg.ID, msg)
	}
	return msgs, nil
}

// Purge drops every cached message.
func (m *MemoryStore) Purge() { m.cache.Purge() }

// Len reports how many messages are cached.
func (m *MemoryStore) Len() int { return m.cache.Len() }
