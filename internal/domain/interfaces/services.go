package interfaces

import (
	"context"

	domaintypes "sealpost/internal/domain/types"
)

// Authenticator logs a user in at the provider.
type Authenticator interface {
	Authenticate(
		ctx context.Context,
		username domaintypes.Username,
		password string,
	) (domaintypes.Credentials, error)
}

// KeyManager owns the user's key pair and seals/opens mail with it.
type KeyManager interface {
	GenerateKeyPairIfAbsent(ctx context.Context) error
	Encrypt(ctx context.Context, to string, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, sealed []byte) ([]byte, error)
	Fingerprint(ctx context.Context) (domaintypes.Fingerprint, error)
}

// Account is the user's set of mailboxes.
type Account interface {
	Mailboxes(ctx context.Context) ([]string, error)
	CreateMailbox(ctx context.Context, name string) error
	AddMessage(ctx context.Context, mailbox string, msg domaintypes.Message) (domaintypes.Message, error)
	Messages(ctx context.Context, mailbox string) ([]domaintypes.Message, error)
	DeleteMessage(ctx context.Context, id string) error
	Reset(ctx context.Context) error
}

// Fetcher is the background job that pulls incoming mail into the account.
// StartLoop and Stop are idempotent.
type Fetcher interface {
	StartLoop() error
	Stop() error
	FetchOnce(ctx context.Context) (int, error)
}

// Gateway delivers outgoing mail. EnsureRunning and Stop are idempotent.
type Gateway interface {
	EnsureRunning() error
	Stop() error
	Running() bool
	Send(ctx context.Context, mail domaintypes.OutgoingMail) error
}
