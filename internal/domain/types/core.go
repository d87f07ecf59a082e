package types

import "strings"

// Username is the local part a user authenticates with at a provider.
type Username string

// String returns the string form of the username.
func (u Username) String() string { return string(u) }

// UserID is the stable identifier the provider assigns after authentication.
type UserID string

// String returns the string form of the user identifier.
func (id UserID) String() string { return string(id) }

// Token is the opaque API token returned by a successful SRP login.
type Token string

// String returns a redacted form so tokens never end up in logs.
func (t Token) String() string {
	if t == "" {
		return ""
	}
	return "<redacted>"
}

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }

// IdentityKey is the registry lookup key for a live session.
// It is never used as a credential.
type IdentityKey string

// String returns the string form of the key.
func (k IdentityKey) String() string { return string(k) }

// NewIdentityKey combines a provider domain and a username.
// Provider domains cannot contain '|', so distinct pairs never collide.
func NewIdentityKey(providerDomain string, username Username) IdentityKey {
	return IdentityKey(strings.ToLower(providerDomain) + "|" + username.String())
}
