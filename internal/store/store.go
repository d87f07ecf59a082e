package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"sealpost/internal/api"
	"sealpost/internal/crypto"
	"sealpost/internal/domain"
	"sealpost/internal/logging"
)

const dbFilename = "documents.db"

// Options configures Open.
type Options struct {
	Dir      string        // home directory; the store lives in Dir/<UserID>
	UserID   domain.UserID // provider user id
	Password string        // unlocks the store key
	Remote   *api.Client   // provider sync API, authenticated; nil keeps the store local
	Timeout  time.Duration // how long to wait for the database lock
	Logger   *slog.Logger
}

// Store is an open encrypted document store. It implements domain.StoreSession.
type Store struct {
	db     *bolt.DB
	key    []byte
	uid    domain.UserID
	remote *api.Client
	logger *slog.Logger

	syncMu sync.Mutex
	mu     sync.RWMutex
	closed bool
}

// Open opens (creating if needed) the store of opts.UserID.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.UserID == "" {
		return nil, errors.New("store: empty user id")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := filepath.Join(opts.Dir, opts.UserID.String())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("store: create dir: %w", err)
	}

	key, err := newSecretFileStore(dir).loadOrCreate(opts.Password)
	if err != nil {
		return nil, fmt.Errorf("store: unlock: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	db, err := bolt.Open(filepath.Join(dir, dbFilename), 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		crypto.Wipe(key)
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(docsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(metaBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		crypto.Wipe(key)
		return nil, fmt.Errorf("store: init db: %w", err)
	}

	return &Store{
		db:     db,
		key:    key,
		uid:    opts.UserID,
		remote: opts.Remote,
		logger: logging.Default(opts.Logger).With("component", "store", "uid", opts.UserID),
	}, nil
}

// Close releases the database and wipes the store key. Safe to call twice.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	crypto.Wipe(s.key)
	return s.db.Close()
}

func (s *Store) view(fn func(tx *bolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return domain.ErrSessionClosed
	}
	return s.db.View(fn)
}

func (s *Store) update(fn func(tx *bolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return domain.ErrSessionClosed
	}
	return s.db.Update(fn)
}

func (s *Store) open(r record) (domain.Document, error) {
	pt, err := crypto.OpenSecret(s.key, r.Sealed, []byte(r.ID))
	if err != nil {
		return domain.Document{}, fmt.Errorf("store: document %s: %w", r.ID, err)
	}
	return r.document(pt), nil
}

// Put stores doc, assigning a new ID when doc.ID is empty. The document is
// marked dirty and pushed on the next sync.
func (s *Store) Put(ctx context.Context, doc domain.Document) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return domain.Document{}, err
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := time.Now()

	var out domain.Document
	err := s.update(func(tx *bolt.Tx) error {
		sealed, err := crypto.SealSecret(s.key, doc.Content, []byte(doc.ID))
		if err != nil {
			return err
		}
		b := tx.Bucket(docsBucket)
		r := record{ID: doc.ID, Type: doc.Type, Sealed: sealed, Dirty: true, Updated: now.UnixNano()}
		if prev := b.Get([]byte(doc.ID)); prev != nil {
			old, err := decodeRecord(prev)
			if err != nil {
				return err
			}
			r.Rev = old.Rev
		}
		raw, err := encodeRecord(r)
		if err != nil {
			return err
		}
		out = r.document(doc.Content)
		return b.Put([]byte(r.ID), raw)
	})
	return out, err
}

// Get returns the decrypted document with id.
func (s *Store) Get(ctx context.Context, id string) (domain.Document, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Document{}, false, err
	}
	var (
		doc   domain.Document
		found bool
	)
	err := s.view(func(tx *bolt.Tx) error {
		raw := tx.Bucket(docsBucket).Get([]byte(id))
		if raw == nil {
			return nil
		}
		r, err := decodeRecord(raw)
		if err != nil || r.Deleted {
			return err
		}
		doc, err = s.open(r)
		found = err == nil
		return err
	})
	if err != nil || !found {
		return domain.Document{}, false, err
	}
	return doc, true, nil
}

// Delete leaves a tombstone that is pushed on the next sync.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.update(func(tx *bolt.Tx) error {
		b := tx.Bucket(docsBucket)
		raw := b.Get([]byte(id))
		if raw == nil {
			return nil
		}
		r, err := decodeRecord(raw)
		if err != nil {
			return err
		}
		r.Deleted, r.Dirty, r.Sealed = true, true, nil
		r.Updated = time.Now().UnixNano()
		enc, err := encodeRecord(r)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), enc)
	})
}

// List returns every live document of docType ("" for all types).
func (s *Store) List(ctx context.Context, docType string) ([]domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var docs []domain.Document
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(docsBucket).ForEach(func(_, raw []byte) error {
			r, err := decodeRecord(raw)
			if err != nil {
				return err
			}
			if r.Deleted || (docType != "" && r.Type != docType) {
				return nil
			}
			doc, err := s.open(r)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// Dump returns every live document, decrypted. Used by maintenance tooling.
func (s *Store) Dump(ctx context.Context) ([]domain.Document, error) {
	return s.List(ctx, "")
}

// Generation returns the last remote generation this store has seen.
func (s *Store) Generation() (int64, error) {
	var gen int64
	err := s.view(func(tx *bolt.Tx) error {
		gen = decodeGeneration(tx.Bucket(metaBucket).Get(genKey))
		return nil
	})
	return gen, err
}

// Compile-time assertion that Store implements domain.StoreSession.
var _ domain.StoreSession = (*Store)(nil)
