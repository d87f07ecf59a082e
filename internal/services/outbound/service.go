package outbound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sealpost/internal/api"
	"sealpost/internal/domain"
	"sealpost/internal/logging"
)

const defaultQueueSize = 64

// ErrNoRecipients is returned by Send for a mail without recipients.
var ErrNoRecipients = errors.New("outbound: no recipients")

type submission struct {
	From   string              `json:"from"`
	Sealed []domain.SealedMail `json:"sealed"`
}

// Service is the outbound gateway of one account.
type Service struct {
	from    string
	keys    domain.KeyManager
	account domain.Account
	remote  *api.Client
	size    int
	logger  *slog.Logger

	mu     sync.Mutex
	queue  chan domain.OutgoingMail
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a stopped gateway sending as from. queueSize <= 0 uses 64.
func New(
	from string,
	keys domain.KeyManager,
	account domain.Account,
	remote *api.Client,
	queueSize int,
	logger *slog.Logger,
) *Service {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Service{
		from:    from,
		keys:    keys,
		account: account,
		remote:  remote,
		size:    queueSize,
		logger:  logging.Default(logger).With("component", "outbound", "from", from),
	}
}

// EnsureRunning starts the worker unless it already runs.
func (s *Service) EnsureRunning() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	queue := make(chan domain.OutgoingMail, s.size)
	done := make(chan struct{})
	s.queue, s.cancel, s.done = queue, cancel, done

	go s.work(ctx, queue, done)
	s.logger.Info("outbound gateway started")
	return nil
}

// Stop stops the worker and waits for it to exit. Mail still queued is
// dropped. Calling it while stopped does nothing.
func (s *Service) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.queue, s.cancel, s.done = nil, nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	s.logger.Info("outbound gateway stopped")
	return nil
}

// Running reports whether the worker is up.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue != nil
}

// Send queues mail for delivery. It blocks while the queue is full.
func (s *Service) Send(ctx context.Context, mail domain.OutgoingMail) error {
	if len(mail.To) == 0 {
		return ErrNoRecipients
	}
	if mail.From == "" {
		mail.From = s.from
	}

	s.mu.Lock()
	queue := s.queue
	s.mu.Unlock()
	if queue == nil {
		return domain.ErrGatewayStopped
	}

	select {
	case queue <- mail:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) work(ctx context.Context, queue <-chan domain.OutgoingMail, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			if n := len(queue); n > 0 {
				s.logger.Warn("dropping queued mail", "count", n)
			}
			return
		case mail := <-queue:
			if err := s.Deliver(ctx, mail); err != nil {
				s.logger.Error("delivery failed", "to", mail.To, "error", err)
			}
		}
	}
}

// Deliver seals and submits mail immediately, then files it in Sent.
func (s *Service) Deliver(ctx context.Context, mail domain.OutgoingMail) error {
	if mail.From == "" {
		mail.From = s.from
	}
	sub := submission{From: mail.From, Sealed: make([]domain.SealedMail, 0, len(mail.To))}
	body := []byte(mail.Body)
	for _, to := range mail.To {
		ct, err := s.keys.Encrypt(ctx, to, body)
		if err != nil {
			return fmt.Errorf("outbound: seal for %s: %w", to, err)
		}
		sub.Sealed = append(sub.Sealed, domain.SealedMail{To: to, Ciphertext: ct})
	}

	if s.remote != nil {
		if err := s.remote.PostJSON(ctx, "/1/smtp/messages", sub, nil); err != nil {
			return fmt.Errorf("outbound: submit: %w", err)
		}
	}

	_, err := s.account.AddMessage(ctx, domain.MailboxSent, domain.Message{
		From:    mail.From,
		To:      mail.To,
		Subject: mail.Subject,
		Date:    time.Now().UTC(),
		Body:    mail.Body,
	})
	if err != nil {
		return fmt.Errorf("outbound: save sent copy: %w", err)
	}
	s.logger.Debug("mail delivered", "recipients", len(mail.To))
	return nil
}

// Compile-time assertion that Service implements domain.Gateway.
var _ domain.Gateway = (*Service)(nil)
