package domain

import "errors"

// Authentication and provider errors.
var (
	ErrAuthFailed          = errors.New("authentication failed")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrCertificateMismatch = errors.New("provider certificate fingerprint mismatch")
)

// Store and key errors.
var (
	ErrWrongPassphrase = errors.New("wrong passphrase or corrupted secret")
	ErrKeyNotFound     = errors.New("public key not found")
	ErrBadSignature    = errors.New("public key signature invalid")
	ErrDocumentType    = errors.New("document has another type")
)

// Mailbox errors.
var (
	ErrUnknownMailbox  = errors.New("unknown mailbox")
	ErrMailboxExists   = errors.New("mailbox already exists")
	ErrMessageNotFound = errors.New("message not found")
)

// Lifecycle errors.
var (
	ErrSessionClosed   = errors.New("session closed")
	ErrTooManySessions = errors.New("session limit reached")
	ErrGatewayStopped  = errors.New("outbound gateway not running")
	ErrLoopStopped     = errors.New("event loop stopped")
)
