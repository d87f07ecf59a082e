package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"sealpost/internal/api"
	"sealpost/internal/config"
	"sealpost/internal/domain"
	"sealpost/internal/logging"
	"sealpost/internal/provider"
	"sealpost/internal/reactor"
	"sealpost/internal/session"
	"sealpost/internal/srp"
)

// Wire bundles the long-lived objects of a running sealpost process.
type Wire struct {
	Settings *config.Config
	Provider *provider.Provider
	Loop     *reactor.Loop
	Registry *session.Registry
	Sessions *session.Factory

	logger   *slog.Logger
	stopLoop context.CancelFunc
}

// NewWire constructs the dependency graph from cfg and starts the event loop.
func NewWire(cfg Config) (*Wire, error) {
	if cfg.Settings == nil {
		return nil, errors.New("app: settings are required")
	}
	s := cfg.Settings
	logger := logging.Default(cfg.Logger)

	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	prov := provider.New(provider.Config{
		Domain:            s.Provider.Domain,
		APIURI:            s.Provider.APIURI,
		CACertURI:         s.Provider.CACertURI,
		CACertFingerprint: s.Provider.CACertFingerprint,
		CACertFile:        s.Provider.CACertFile,
		AddressFormat:     s.Provider.AddressFormat,
		Home:              s.Home,
		Timeout:           s.Timeout,
	}, httpClient, logger)

	loop := reactor.New(logger)
	registry := session.NewRegistry(s.MaxSessions)
	factory, err := session.NewFactory(session.FactoryConfig{
		Home:                s.Home,
		Provider:            prov,
		Builder:             &collaborators{settings: s, provider: prov, logger: logger},
		Registry:            registry,
		Loop:                loop,
		StartBackgroundJobs: s.StartBackgroundJobs,
		CreateTimeout:       s.CreateTimeout,
		Logger:              logger,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)

	return &Wire{
		Settings: s,
		Provider: prov,
		Loop:     loop,
		Registry: registry,
		Sessions: factory,
		logger:   logger,
		stopLoop: cancel,
	}, nil
}

// Register creates a new account at the provider.
func (w *Wire) Register(ctx context.Context, username domain.Username, password string) error {
	if err := w.Provider.DownloadCertificate(ctx); err != nil {
		return err
	}
	httpClient, err := w.Provider.HTTPClient()
	if err != nil {
		return err
	}
	return srp.New(api.New(w.Provider.APIURI(), httpClient), w.logger).Register(ctx, username, password)
}

// Close closes every session, then stops the event loop and waits for it.
func (w *Wire) Close(ctx context.Context) error {
	err := w.Registry.CloseAll(ctx)
	w.stopLoop()
	select {
	case <-w.Loop.Done():
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
	return err
}
