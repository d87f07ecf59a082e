package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"sealpost/internal/domain"
	"sealpost/internal/logging"
	"sealpost/internal/reactor"
)

// Parts are the collaborators a Session owns.
type Parts struct {
	Credentials domain.Credentials
	Store       domain.StoreSession
	Keys        domain.KeyManager
	Account     domain.Account
	Fetcher     domain.Fetcher
	Gateway     domain.Gateway
}

// close releases every non-nil part, gateway first and store last.
func (p Parts) close() error {
	var errs []error
	if p.Gateway != nil {
		errs = append(errs, p.Gateway.Stop())
	}
	if p.Fetcher != nil {
		errs = append(errs, p.Fetcher.Stop())
	}
	if p.Store != nil {
		errs = append(errs, p.Store.Close())
	}
	return errors.Join(errs...)
}

// Options control how a Session is assembled.
type Options struct {
	Key                 domain.IdentityKey
	Provider            domain.Provider
	Loop                *reactor.Loop // nil runs lifecycle tasks inline
	StartBackgroundJobs bool
	Logger              *slog.Logger
}

// Session is one authenticated user's live connection to the provider.
type Session struct {
	key      domain.IdentityKey
	provider domain.Provider
	parts    Parts
	loop     *reactor.Loop
	logger   *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	registry *Registry
}

// newSession assembles a Session: a full store sync with decryption
// deferred, then key pair generation, then (if configured) the background
// jobs. On error the caller still owns parts.
func newSession(ctx context.Context, parts Parts, opts Options) (*Session, error) {
	s := &Session{
		key:      opts.Key,
		provider: opts.Provider,
		parts:    parts,
		loop:     opts.Loop,
		logger: logging.Default(opts.Logger).With(
			"component", "session",
			"user", parts.Credentials.Username,
		),
	}

	if err := parts.Store.Sync(ctx, domain.SyncOptions{DeferDecryption: true}); err != nil {
		return nil, fmt.Errorf("initial sync: %w", err)
	}
	if err := parts.Keys.GenerateKeyPairIfAbsent(ctx); err != nil {
		return nil, fmt.Errorf("key pair: %w", err)
	}
	if opts.StartBackgroundJobs {
		if err := s.StartBackgroundJobs(ctx); err != nil {
			return nil, fmt.Errorf("background jobs: %w", err)
		}
	}
	return s, nil
}

// Key returns the registry key of the session.
func (s *Session) Key() domain.IdentityKey { return s.key }

// Username returns the provider username.
func (s *Session) Username() domain.Username { return s.parts.Credentials.Username }

// UserID returns the provider user id.
func (s *Session) UserID() domain.UserID { return s.parts.Credentials.UserID }

// Credentials returns the login result the session was built from.
func (s *Session) Credentials() domain.Credentials { return s.parts.Credentials }

// Store returns the encrypted document store.
func (s *Session) Store() domain.StoreSession { return s.parts.Store }

// Keys returns the key manager.
func (s *Session) Keys() domain.KeyManager { return s.parts.Keys }

// Account returns the mailbox account.
func (s *Session) Account() domain.Account { return s.parts.Account }

// Fetcher returns the incoming mail fetcher.
func (s *Session) Fetcher() domain.Fetcher { return s.parts.Fetcher }

// Gateway returns the outbound gateway.
func (s *Session) Gateway() domain.Gateway { return s.parts.Gateway }

// AccountEmail is the user's mail address at the provider.
func (s *Session) AccountEmail() string {
	return s.provider.AddressFor(s.parts.Credentials.Username.String())
}

// BackgroundJobsRunning reports whether StartBackgroundJobs has taken effect
// and no stop has followed.
func (s *Session) BackgroundJobsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// onLoop runs fn as a single event loop task and waits for it. Without a
// loop, or once the loop has stopped, fn runs on the caller's goroutine.
func (s *Session) onLoop(ctx context.Context, fn func() error) error {
	if s.loop == nil {
		return fn()
	}
	err := s.loop.Call(ctx, fn)
	if errors.Is(err, domain.ErrLoopStopped) {
		return fn()
	}
	return err
}

// StartBackgroundJobs brings up the outbound gateway and then the fetch
// loop. Starting jobs that already run is a no-op.
func (s *Session) StartBackgroundJobs(ctx context.Context) error {
	return s.onLoop(ctx, func() error {
		s.mu.Lock()
		closed, running := s.closed, s.running
		s.mu.Unlock()
		if closed {
			return domain.ErrSessionClosed
		}
		if running {
			s.logger.Info("background jobs already running")
			return nil
		}

		if err := s.parts.Gateway.EnsureRunning(); err != nil {
			return fmt.Errorf("start gateway: %w", err)
		}
		if err := s.parts.Fetcher.StartLoop(); err != nil {
			_ = s.parts.Gateway.Stop()
			return fmt.Errorf("start fetcher: %w", err)
		}

		s.mu.Lock()
		s.running = true
		s.mu.Unlock()
		s.logger.Info("background jobs started")
		return nil
	})
}

// StopBackgroundJobs stops the outbound gateway and then the fetch loop.
// Stopping jobs that never started is safe.
func (s *Session) StopBackgroundJobs(ctx context.Context) error {
	return s.onLoop(ctx, func() error {
		err := errors.Join(s.parts.Gateway.Stop(), s.parts.Fetcher.Stop())

		s.mu.Lock()
		wasRunning := s.running
		s.running = false
		s.mu.Unlock()
		if wasRunning {
			s.logger.Info("background jobs stopped")
		}
		return err
	})
}

// Sync runs one store synchronization pass. A failure is logged and returned
// as is; the session stays usable.
func (s *Session) Sync(ctx context.Context) error {
	if s.Closed() {
		return domain.ErrSessionClosed
	}
	err := s.parts.Store.Sync(ctx, domain.SyncOptions{DeferDecryption: true})
	if err != nil {
		s.logger.Error("sync failed", "error", err)
		return err
	}
	return nil
}

// Close stops the background jobs, removes the session from its registry and
// closes the store. Later calls return nil.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	reg := s.registry
	s.registry = nil
	s.mu.Unlock()

	stopErr := s.StopBackgroundJobs(ctx)

	if reg != nil {
		reg.drop(s.key, s)
	}
	storeErr := s.parts.Store.Close()
	s.logger.Info("session closed")
	return errors.Join(stopErr, storeErr)
}
