package store

import (
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"sealpost/internal/crypto"
	"sealpost/internal/domain"
)

// Sync pulls remote changes and pushes local ones. A store opened without a
// remote syncs trivially. Concurrent calls are serialized.
func (s *Store) Sync(ctx context.Context, opts domain.SyncOptions) error {
	if s.remote == nil {
		return nil
	}
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	rem := remote{api: s.remote, uid: s.uid}
	since, err := s.Generation()
	if err != nil {
		return err
	}

	changes, err := rem.changes(ctx, since)
	if err != nil {
		return err
	}
	pulled, err := s.apply(changes, opts)
	if err != nil {
		return err
	}

	dirty, err := s.dirty()
	if err != nil {
		return err
	}
	gen := changes.Generation
	if len(dirty) > 0 {
		docs := make([]wireDoc, len(dirty))
		for i, r := range dirty {
			docs[i] = wireDoc{ID: r.ID, Type: r.Type, Rev: r.Rev, Content: r.Sealed, Deleted: r.Deleted}
		}
		if gen, err = rem.push(ctx, docs); err != nil {
			return err
		}
	}
	if err := s.markClean(dirty, gen); err != nil {
		return err
	}
	s.logger.Debug("sync complete", "pulled", pulled, "pushed", len(dirty), "generation", gen)
	return nil
}

// apply writes pulled documents in one transaction. When decryption is not
// deferred a document that fails to open aborts the whole pass.
func (s *Store) apply(changes changesResponse, opts domain.SyncOptions) (int, error) {
	n := 0
	err := s.update(func(tx *bolt.Tx) error {
		b := tx.Bucket(docsBucket)
		for _, d := range changes.Docs {
			if prev := b.Get([]byte(d.ID)); prev != nil {
				old, err := decodeRecord(prev)
				if err != nil {
					return err
				}
				if old.Dirty {
					continue
				}
			}
			if d.Deleted {
				if err := b.Delete([]byte(d.ID)); err != nil {
					return err
				}
				n++
				continue
			}

			sealed := d.Content
			if d.Type == domain.DocIncoming {
				var err error
				if sealed, err = crypto.SealSecret(s.key, d.Content, []byte(d.ID)); err != nil {
					return err
				}
			} else if !opts.DeferDecryption {
				if _, err := crypto.OpenSecret(s.key, sealed, []byte(d.ID)); err != nil {
					return fmt.Errorf("store: document %s: %w", d.ID, err)
				}
			}
			raw, err := encodeRecord(record{
				ID: d.ID, Type: d.Type, Rev: d.Rev, Sealed: sealed, Updated: time.Now().UnixNano(),
			})
			if err != nil {
				return err
			}
			if err := b.Put([]byte(d.ID), raw); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

func (s *Store) dirty() ([]record, error) {
	var out []record
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(docsBucket).ForEach(func(_, raw []byte) error {
			r, err := decodeRecord(raw)
			if err != nil {
				return err
			}
			if r.Dirty {
				out = append(out, r)
			}
			return nil
		})
	})
	return out, err
}

// markClean clears the dirty flag of pushed records that were not modified
// while the push was in flight, drops pushed tombstones and stores gen.
func (s *Store) markClean(pushed []record, gen int64) error {
	return s.update(func(tx *bolt.Tx) error {
		b := tx.Bucket(docsBucket)
		for _, p := range pushed {
			raw := b.Get([]byte(p.ID))
			if raw == nil {
				continue
			}
			cur, err := decodeRecord(raw)
			if err != nil {
				return err
			}
			if cur.Updated != p.Updated {
				continue
			}
			if cur.Deleted {
				if err := b.Delete([]byte(p.ID)); err != nil {
					return err
				}
				continue
			}
			cur.Dirty = false
			cur.Rev++
			enc, err := encodeRecord(cur)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(p.ID), enc); err != nil {
				return err
			}
		}
		return tx.Bucket(metaBucket).Put(genKey, encodeGeneration(gen))
	})
}
