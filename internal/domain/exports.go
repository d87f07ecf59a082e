package domain

import (
	interfaces "sealpost/internal/domain/interfaces"
	types "sealpost/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	Username           = types.Username
	UserID             = types.UserID
	Token              = types.Token
	Fingerprint        = types.Fingerprint
	IdentityKey        = types.IdentityKey
	Credentials        = types.Credentials
	ProviderDefinition = types.ProviderDefinition
	KeyPair            = types.KeyPair
	PublicKey          = types.PublicKey
	Message            = types.Message
	OutgoingMail       = types.OutgoingMail
	SealedMail         = types.SealedMail
	Document           = types.Document
	SyncOptions        = types.SyncOptions
	X25519Public       = types.X25519Public
	X25519Private      = types.X25519Private
	Ed25519Public      = types.Ed25519Public
	Ed25519Private     = types.Ed25519Private
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	Authenticator = interfaces.Authenticator
	KeyManager    = interfaces.KeyManager
	Account       = interfaces.Account
	Fetcher       = interfaces.Fetcher
	Gateway       = interfaces.Gateway
	DocumentStore = interfaces.DocumentStore
	StoreSession  = interfaces.StoreSession
	Provider      = interfaces.Provider
)

// Re-exported constants and helpers.
const (
	MailboxInbox  = types.MailboxInbox
	MailboxSent   = types.MailboxSent
	MailboxDrafts = types.MailboxDrafts
	MailboxTrash  = types.MailboxTrash

	DocKeyPair      = types.DocKeyPair
	DocMail         = types.DocMail
	DocMailboxIndex = types.DocMailboxIndex
	DocIncoming     = types.DocIncoming
)

// DefaultMailboxes lists the mailboxes created for a new account.
var DefaultMailboxes = types.DefaultMailboxes

// NewIdentityKey combines a provider domain and a username into a registry key.
func NewIdentityKey(providerDomain string, username Username) IdentityKey {
	return types.NewIdentityKey(providerDomain, username)
}
