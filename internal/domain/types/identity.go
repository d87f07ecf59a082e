package types

// KeyPair holds a user's long-term X25519 encryption and Ed25519 signing keys.
type KeyPair struct {
	Address string         `json:"address"`
	XPub    X25519Public   `json:"xpub"`
	XPriv   X25519Private  `json:"xpriv"`
	EdPub   Ed25519Public  `json:"edpub"`
	EdPriv  Ed25519Private `json:"edpriv"`
	Created int64          `json:"created"`
	// Published is set once the provider accepted the public key.
	Published bool `json:"published"`
}

// Public returns the shareable half of the key pair.
func (k KeyPair) Public() PublicKey {
	return PublicKey{Address: k.Address, XPub: k.XPub, EdPub: k.EdPub}
}

// PublicKey is what gets published to the provider's key directory.
// Sig is an Ed25519 signature by EdPub over Address and XPub.
type PublicKey struct {
	Address string        `json:"address"`
	XPub    X25519Public  `json:"xpub"`
	EdPub   Ed25519Public `json:"edpub"`
	Sig     []byte        `json:"sig"`
}

// SignedBytes returns the message covered by Sig.
func (p PublicKey) SignedBytes() []byte {
	out := make([]byte, 0, len(p.Address)+1+len(p.XPub))
	out = append(out, p.Address...)
	out = append(out, 0)
	return append(out, p.XPub[:]...)
}
