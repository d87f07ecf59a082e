package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"sealpost/internal/domain"
)

// Registry holds at most one live Session per identity key.
type Registry struct {
	mu       sync.Mutex
	sessions map[domain.IdentityKey]*Session
	group    singleflight.Group
	max      int
}

// NewRegistry returns an empty registry. max <= 0 means no limit.
func NewRegistry(max int) *Registry {
	return &Registry{
		sessions: make(map[domain.IdentityKey]*Session),
		max:      max,
	}
}

// Lookup returns the live session for key.
func (r *Registry) Lookup(key domain.IdentityKey) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[key]
	return s, ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Keys returns the identity keys of all live sessions, sorted.
func (r *Registry) Keys() []domain.IdentityKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]domain.IdentityKey, 0, len(r.sessions))
	for k := range r.sessions {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Remove forgets the session for key without closing it.
func (r *Registry) Remove(key domain.IdentityKey) (*Session, bool) {
	r.mu.Lock()
	s, ok := r.sessions[key]
	delete(r.sessions, key)
	r.mu.Unlock()
	if ok {
		s.mu.Lock()
		if s.registry == r {
			s.registry = nil
		}
		s.mu.Unlock()
	}
	return s, ok
}

// drop removes key only while it still maps to s.
func (r *Registry) drop(key domain.IdentityKey, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[key] == s {
		delete(r.sessions, key)
	}
}

// CloseAll closes every live session.
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.Unlock()

	var errs []error
	for _, s := range all {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", s.Key(), err))
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) full() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.max > 0 && len(r.sessions) >= r.max
}

// getOrCreate returns the live session for key or runs create once for all
// concurrent callers. create runs detached from the caller's cancellation,
// bounded by timeout when positive; each caller stops waiting when its own
// ctx ends.
func (r *Registry) getOrCreate(
	ctx context.Context,
	key domain.IdentityKey,
	timeout time.Duration,
	create func(context.Context) (*Session, error),
) (*Session, error) {
	if s, ok := r.Lookup(key); ok {
		return s, nil
	}

	ch := r.group.DoChan(key.String(), func() (any, error) {
		if s, ok := r.Lookup(key); ok {
			return s, nil
		}
		if r.full() {
			return nil, domain.ErrTooManySessions
		}

		cctx := context.WithoutCancel(ctx)
		if timeout > 0 {
			var cancel context.CancelFunc
			cctx, cancel = context.WithTimeout(cctx, timeout)
			defer cancel()
		}
		s, err := create(cctx)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		if r.max > 0 && len(r.sessions) >= r.max {
			r.mu.Unlock()
			_ = s.Close(cctx)
			return nil, domain.ErrTooManySessions
		}
		s.mu.Lock()
		s.registry = r
		s.mu.Unlock()
		r.sessions[key] = s
		r.mu.Unlock()
		return s, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Session), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
