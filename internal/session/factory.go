package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sealpost/internal/domain"
	"sealpost/internal/logging"
	"sealpost/internal/reactor"
)

// Creation steps, in order.
const (
	StepDataDir      = "datadir"
	StepCertificate  = "certificate"
	StepAuthenticate = "authenticate"
	StepStore        = "store"
	StepKeyManager   = "keymanager"
	StepAccount      = "account"
	StepFetcher      = "fetcher"
	StepGateway      = "gateway"
	StepSession      = "session"
)

// StepError reports which creation step failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("create session: %s: %v", e.Step, e.Err) }
func (e *StepError) Unwrap() error { return e.Err }

// FailedStep returns the step named by a *StepError in err's chain.
func FailedStep(err error) (string, bool) {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step, true
	}
	return "", false
}

// Builder constructs the collaborators of a new session. Each method gets
// the results of the earlier steps it depends on.
type Builder interface {
	Authenticate(ctx context.Context, username domain.Username, password string) (domain.Credentials, error)
	OpenStore(ctx context.Context, creds domain.Credentials, password string) (domain.StoreSession, error)
	KeyManager(ctx context.Context, creds domain.Credentials, email string, store domain.StoreSession) (domain.KeyManager, error)
	Account(ctx context.Context, creds domain.Credentials, store domain.StoreSession) (domain.Account, error)
	Fetcher(keys domain.KeyManager, store domain.StoreSession, account domain.Account, email string) (domain.Fetcher, error)
	Gateway(creds domain.Credentials, keys domain.KeyManager, account domain.Account) (domain.Gateway, error)
}

// FactoryConfig wires a Factory.
type FactoryConfig struct {
	Home                string // data directory, created on first use
	Provider            domain.Provider
	Builder             Builder
	Registry            *Registry // nil gets a fresh unbounded registry
	Loop                *reactor.Loop
	StartBackgroundJobs bool
	CreateTimeout       time.Duration
	Logger              *slog.Logger
}

// Factory resolves users to sessions, creating each at most once.
type Factory struct {
	cfg      FactoryConfig
	registry *Registry
	logger   *slog.Logger
}

// NewFactory returns a Factory for cfg.
func NewFactory(cfg FactoryConfig) (*Factory, error) {
	if cfg.Provider == nil {
		return nil, errors.New("session: provider is required")
	}
	if cfg.Builder == nil {
		return nil, errors.New("session: builder is required")
	}
	reg := cfg.Registry
	if reg == nil {
		reg = NewRegistry(0)
	}
	return &Factory{
		cfg:      cfg,
		registry: reg,
		logger:   logging.Default(cfg.Logger).With("component", "session-factory"),
	}, nil
}

// Registry returns the registry backing f.
func (f *Factory) Registry() *Registry { return f.registry }

// Key returns the identity key of username at f's provider.
func (f *Factory) Key(username domain.Username) domain.IdentityKey {
	return domain.NewIdentityKey(f.cfg.Provider.Domain(), username)
}

// Create returns the session of username, authenticating and building it on
// first use. A cached session is returned without checking password.
func (f *Factory) Create(ctx context.Context, username domain.Username, password string) (*Session, error) {
	key := f.Key(username)
	return f.registry.getOrCreate(ctx, key, f.cfg.CreateTimeout, func(ctx context.Context) (*Session, error) {
		return f.create(ctx, key, username, password)
	})
}

// create runs the creation protocol. On failure everything already built is
// released and the error names the failing step.
func (f *Factory) create(
	ctx context.Context,
	key domain.IdentityKey,
	username domain.Username,
	password string,
) (_ *Session, err error) {
	var parts Parts
	step := StepDataDir
	defer func() {
		if err == nil {
			return
		}
		if cerr := parts.close(); cerr != nil {
			f.logger.Warn("cleanup after failed creation", "step", step, "error", cerr)
		}
		f.logger.Warn("session creation failed", "user", username, "step", step, "error", err)
		err = &StepError{Step: step, Err: err}
	}()

	if err = ensureDir(f.cfg.Home); err != nil {
		return nil, err
	}

	step = StepCertificate
	if err = f.cfg.Provider.DownloadCertificate(ctx); err != nil {
		return nil, err
	}

	step = StepAuthenticate
	if parts.Credentials, err = f.cfg.Builder.Authenticate(ctx, username, password); err != nil {
		return nil, err
	}
	creds := parts.Credentials
	email := f.cfg.Provider.AddressFor(username.String())

	step = StepStore
	if parts.Store, err = f.cfg.Builder.OpenStore(ctx, creds, password); err != nil {
		return nil, err
	}

	step = StepKeyManager
	if parts.Keys, err = f.cfg.Builder.KeyManager(ctx, creds, email, parts.Store); err != nil {
		return nil, err
	}

	step = StepAccount
	if parts.Account, err = f.cfg.Builder.Account(ctx, creds, parts.Store); err != nil {
		return nil, err
	}

	step = StepFetcher
	if parts.Fetcher, err = f.cfg.Builder.Fetcher(parts.Keys, parts.Store, parts.Account, email); err != nil {
		return nil, err
	}

	step = StepGateway
	if parts.Gateway, err = f.cfg.Builder.Gateway(creds, parts.Keys, parts.Account); err != nil {
		return nil, err
	}

	step = StepSession
	s, err := newSession(ctx, parts, Options{
		Key:                 key,
		Provider:            f.cfg.Provider,
		Loop:                f.cfg.Loop,
		StartBackgroundJobs: f.cfg.StartBackgroundJobs,
		Logger:              f.cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	f.logger.Info("session created", "user", username, "uid", creds.UserID)
	return s, nil
}
