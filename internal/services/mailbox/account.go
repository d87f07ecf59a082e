package mailbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sealpost/internal/domain"
	"sealpost/internal/logging"
)

const indexDocID = "mailbox-index"

type index struct {
	Mailboxes []string `json:"mailboxes"`
}

// Account is the mail account of one user.
type Account struct {
	docs   domain.DocumentStore
	msgs   *MemoryStore
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex
}

// NewAccount returns the account stored in docs. cacheSize bounds the
// in-memory message cache.
func NewAccount(docs domain.DocumentStore, cacheSize int, logger *slog.Logger) (*Account, error) {
	msgs, err := NewMemoryStore(NewPermanentStore(docs), cacheSize)
	if err != nil {
		return nil, err
	}
	return &Account{
		docs:   docs,
		msgs:   msgs,
		logger: logging.Default(logger).With("component", "mailbox"),
		now:    time.Now,
	}, nil
}

// mailboxes loads the index, seeding it with the defaults on first use.
// Callers hold a.mu.
func (a *Account) mailboxes(ctx context.Context) ([]string, error) {
	doc, ok, err := a.docs.Get(ctx, indexDocID)
	if err != nil {
		return nil, err
	}
	if ok {
		if doc.Type != domain.DocMailboxIndex {
			return nil, fmt.Errorf("%w: %s is %q", domain.ErrDocumentType, indexDocID, doc.Type)
		}
		var idx index
		if err := json.Unmarshal(doc.Content, &idx); err != nil {
			return nil, fmt.Errorf("mailbox: decode index: %w", err)
		}
		return idx.Mailboxes, nil
	}
	names := slices.Clone(domain.DefaultMailboxes)
	if err := a.saveIndex(ctx, names); err != nil {
		return nil, err
	}
	return names, nil
}

func (a *Account) saveIndex(ctx context.Context, names []string) error {
	raw, err := json.Marshal(index{Mailboxes: names})
	if err != nil {
		return err
	}
	_, err = a.docs.Put(ctx, domain.Document{ID: indexDocID, Type: domain.DocMailboxIndex, Content: raw})
	return err
}

// Mailboxes returns the mailbox names in creation order.
func (a *Account) Mailboxes(ctx context.Context) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mailboxes(ctx)
}

// CreateMailbox adds a mailbox.
func (a *Account) CreateMailbox(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("mailbox: empty name")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	names, err := a.mailboxes(ctx)
	if err != nil {
		return err
	}
	if slices.Contains(names, name) {
		return fmt.Errorf("%w: %s", domain.ErrMailboxExists, name)
	}
	return a.saveIndex(ctx, append(names, name))
}

func (a *Account) requireMailbox(ctx context.Context, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	names, err := a.mailboxes(ctx)
	if err != nil {
		return err
	}
	if !slices.Contains(names, name) {
		return fmt.Errorf("%w: %s", domain.ErrUnknownMailbox, name)
	}
	return nil
}

// AddMessage stores msg in mailbox under a new ID, filling in the date when
// unset.
func (a *Account) AddMessage(ctx context.Context, mailbox string, msg domain.Message) (domain.Message, error) {
	if err := a.requireMailbox(ctx, mailbox); err != nil {
		return domain.Message{}, err
	}
	msg.ID = uuid.NewString()
	if msg.Date.IsZero() {
		msg.Date = a.now().UTC()
	}
	msg.Mailbox = mailbox
	if err := a.msgs.Put(ctx, msg); err != nil {
		return domain.Message{}, err
	}
	a.logger.Debug("message added", "mailbox", mailbox, "id", msg.ID)
	return msg, nil
}

// Message returns a single message.
func (a *Account) Message(ctx context.Context, id string) (domain.Message, error) {
	msg, ok, err := a.msgs.Get(ctx, id)
	if err != nil {
		return domain.Message{}, err
	}
	if !ok {
		return domain.Message{}, fmt.Errorf("%w: %s", domain.ErrMessageNotFound, id)
	}
	return msg, nil
}

// Messages returns the messages of mailbox, oldest first.
func (a *Account) Messages(ctx context.Context, mailbox string) ([]domain.Message, error) {
	if err := a.requireMailbox(ctx, mailbox); err != nil {
		return nil, err
	}
	all, err := a.msgs.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Message, 0, len(all))
	for _, m := range all {
		if m.Mailbox == mailbox {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID < out[j].ID
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}

// DeleteMessage removes the message with id.
func (a *Account) DeleteMessage(ctx context.Context, id string) error {
	if _, err := a.Message(ctx, id); err != nil {
		return err
	}
	return a.msgs.Delete(ctx, id)
}

// Reset deletes every message and restores the default mailboxes.
func (a *Account) Reset(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	all, err := a.msgs.All(ctx)
	if err != nil {
		return err
	}
	for _, m := range all {
		if err := a.msgs.Delete(ctx, m.ID); err != nil {
			return err
		}
	}
	a.msgs.Purge()
	if err := a.saveIndex(ctx, slices.Clone(domain.DefaultMailboxes)); err != nil {
		return err
	}
	a.logger.Info("account reset", "deleted", len(all))
	return nil
}

// LoadMail parses a raw RFC 5322 message and adds it to INBOX.
func (a *Account) LoadMail(ctx context.Context, raw []byte) (domain.Message, error) {
	msg, err := ParseMail(raw)
	if err != nil {
		return domain.Message{}, err
	}
	return a.AddMessage(ctx, domain.MailboxInbox, msg)
}

// ParseMail converts a raw RFC 5322 message into a Message.
func ParseMail(raw []byte) (domain.Message, error) {
	m, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return domain.Message{}, fmt.Errorf("mailbox: parse mail: %w", err)
	}
	body, err := io.ReadAll(m.Body)
	if err != nil {
		return domain.Message{}, fmt.Errorf("mailbox: read body: %w", err)
	}

	msg := domain.Message{
		MessageID: strings.Trim(m.Header.Get("Message-Id"), "<> "),
		From:      m.Header.Get("From"),
		Subject:   m.Header.Get("Subject"),
		Body:      string(body),
	}
	if date, err := m.Header.Date(); err == nil {
		msg.Date = date.UTC()
	}
	if to, err := m.Header.AddressList("To"); err == nil {
		for _, addr := range to {
			msg.To = append(msg.To, addr.Address)
		}
	}
	return msg, nil
}

// Compile-time assertion that Account implements domain.Account.
var _ domain.Account = (*Account)(nil)
