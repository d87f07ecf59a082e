package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"sealpost/internal/domain"
	"sealpost/internal/logging"
	"sealpost/internal/services/mailbox"
)

const defaultInterval = 60 * time.Second

// Service is the incoming mail fetcher of one account.
type Service struct {
	store    domain.StoreSession
	keys     domain.KeyManager
	account  domain.Account
	interval time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	scheduler gocron.Scheduler
	cancel    context.CancelFunc
}

// New returns a fetcher. interval <= 0 uses one minute.
func New(
	store domain.StoreSession,
	keys domain.KeyManager,
	account domain.Account,
	interval time.Duration,
	logger *slog.Logger,
) *Service {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		store:    store,
		keys:     keys,
		account:  account,
		interval: interval,
		logger:   logging.Default(logger).With("component", "fetch"),
	}
}

// StartLoop schedules FetchOnce every interval, starting now. Calling it
// while the loop runs does nothing.
func (s *Service) StartLoop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduler != nil {
		return nil
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("fetch: create scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	_, err = sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() { s.tick(ctx) }),
		gocron.WithName("fetch-incoming"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		cancel()
		_ = sched.Shutdown()
		return fmt.Errorf("fetch: create job: %w", err)
	}
	sched.Start()

	s.scheduler, s.cancel = sched, cancel
	s.logger.Info("fetch loop started", "interval", s.interval)
	return nil
}

// Stop cancels a running pass and shuts the scheduler down. Calling it
// while stopped does nothing.
func (s *Service) Stop() error {
	s.mu.Lock()
	sched, cancel := s.scheduler, s.cancel
	s.scheduler, s.cancel = nil, nil
	s.mu.Unlock()

	if sched == nil {
		return nil
	}
	cancel()
	if err := sched.Shutdown(); err != nil {
		return fmt.Errorf("fetch: stop scheduler: %w", err)
	}
	s.logger.Info("fetch loop stopped")
	return nil
}

// Running reports whether the loop is scheduled.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduler != nil
}

func (s *Service) tick(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()
	n, err := s.FetchOnce(ctx)
	if err != nil {
		s.logger.Warn("fetch failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("fetched mail", "count", n)
	}
}

// FetchOnce runs a single pass and returns how many messages reached INBOX.
// A message that cannot be opened or parsed is logged and left in place.
func (s *Service) FetchOnce(ctx context.Context) (int, error) {
	if err := s.store.Sync(ctx, domain.SyncOptions{DeferDecryption: true}); err != nil {
		return 0, fmt.Errorf("fetch: sync: %w", err)
	}
	docs, err := s.store.List(ctx, domain.DocIncoming)
	if err != nil {
		return 0, fmt.Errorf("fetch: list incoming: %w", err)
	}

	n := 0
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if err := s.process(ctx, doc); err != nil {
			s.logger.Warn("skipping incoming mail", "id", doc.ID, "error", err)
			continue
		}
		n++
	}
	return n, nil
}

func (s *Service) process(ctx context.Context, doc domain.Document) error {
	raw, err := s.keys.Decrypt(ctx, doc.Content)
	if err != nil {
		return err
	}
	msg, err := mailbox.ParseMail(raw)
	if err != nil {
		return err
	}
	if _, err := s.account.AddMessage(ctx, domain.MailboxInbox, msg); err != nil {
		return err
	}
	return s.store.Delete(ctx, doc.ID)
}

// Compile-time assertion that Service implements domain.Fetcher.
var _ domain.Fetcher = (*Service)(nil)
