package app

import (
	"context"
	"fmt"
	"log/slog"

	"sealpost/internal/api"
	"sealpost/internal/config"
	"sealpost/internal/domain"
	"sealpost/internal/provider"
	"sealpost/internal/services/fetch"
	"sealpost/internal/services/keymanager"
	"sealpost/internal/services/mailbox"
	"sealpost/internal/services/outbound"
	"sealpost/internal/session"
	"sealpost/internal/srp"
	"sealpost/internal/store"
)

// collaborators builds the concrete parts of a session.
type collaborators struct {
	settings *config.Config
	provider *provider.Provider
	logger   *slog.Logger
}

// api returns a client for the provider API, trusting the provider CA.
func (c *collaborators) api() (*api.Client, error) {
	httpClient, err := c.provider.HTTPClient()
	if err != nil {
		return nil, err
	}
	return api.New(c.provider.APIURI(), httpClient), nil
}

func (c *collaborators) remote(creds domain.Credentials) (*api.Client, error) {
	client, err := c.api()
	if err != nil {
		return nil, err
	}
	return client.WithToken(creds.Token), nil
}

func (c *collaborators) Authenticate(
	ctx context.Context,
	username domain.Username,
	password string,
) (domain.Credentials, error) {
	client, err := c.api()
	if err != nil {
		return domain.Credentials{}, err
	}
	return srp.New(client, c.logger).Authenticate(ctx, username, password)
}

func (c *collaborators) OpenStore(
	ctx context.Context,
	creds domain.Credentials,
	password string,
) (domain.StoreSession, error) {
	remote, err := c.remote(creds)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, store.Options{
		Dir:      c.settings.Home,
		UserID:   creds.UserID,
		Password: password,
		Remote:   remote,
		Logger:   c.logger,
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (c *collaborators) KeyManager(
	_ context.Context,
	creds domain.Credentials,
	email string,
	st domain.StoreSession,
) (domain.KeyManager, error) {
	remote, err := c.remote(creds)
	if err != nil {
		return nil, err
	}
	return keymanager.New(email, st, remote, c.logger), nil
}

func (c *collaborators) Account(
	_ context.Context,
	_ domain.Credentials,
	st domain.StoreSession,
) (domain.Account, error) {
	account, err := mailbox.NewAccount(st, c.settings.CacheSize, c.logger)
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (c *collaborators) Fetcher(
	keys domain.KeyManager,
	st domain.StoreSession,
	account domain.Account,
	email string,
) (domain.Fetcher, error) {
	return fetch.New(st, keys, account, c.settings.FetchInterval, c.logger.With("address", email)), nil
}

func (c *collaborators) Gateway(
	creds domain.Credentials,
	keys domain.KeyManager,
	account domain.Account,
) (domain.Gateway, error) {
	remote, err := c.remote(creds)
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}
	from := c.provider.AddressFor(creds.Username.String())
	return outbound.New(from, keys, account, remote, c.settings.OutboundQueue, c.logger), nil
}

// Compile-time assertion that collaborators implements session.Builder.
var _ session.Builder = (*collaborators)(nil)
