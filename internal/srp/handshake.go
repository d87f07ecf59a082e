package srp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"

	gosrp "github.com/1Password/srp"
)

// groupID is the RFC 5054 group shared with the provider.
const groupID = gosrp.RFC5054Group3072

var errBadServerValue = errors.New("srp: invalid server public value")

func group() *gosrp.Group { return gosrp.KnownGroups[groupID] }

func newSalt() ([]byte, error) {
	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// verifier computes the password verifier stored by the provider at signup.
func verifier(salt []byte, username, password string) (*big.Int, error) {
	c := gosrp.NewSRPClient(group(), gosrp.KDFRFC5054(salt, username, password), nil)
	if c == nil {
		return nil, errors.New("srp: unsupported group")
	}
	return c.Verifier()
}

func hashBytes(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// clientProof is M1 = H(A | B | K).
func clientProof(A, B *big.Int, key []byte) []byte {
	return hashBytes(A.Bytes(), B.Bytes(), key)
}

// serverProof is M2 = H(A | M1 | K).
func serverProof(A *big.Int, m1, key []byte) []byte {
	return hashBytes(A.Bytes(), m1, key)
}

// handshake is the client half of one SRP-6a exchange, built once the
// provider has sent the salt and its public value B.
type handshake struct {
	A   *big.Int
	B   *big.Int
	key []byte
}

func newHandshake(salt []byte, username, password string, B *big.Int) (*handshake, error) {
	if B == nil || B.Sign() <= 0 {
		return nil, errBadServerValue
	}
	c := gosrp.NewSRPClient(group(), gosrp.KDFRFC5054(salt, username, password), nil)
	if c == nil {
		return nil, errors.New("srp: unsupported group")
	}
	if err := c.SetOthersPublic(B); err != nil {
		return nil, fmt.Errorf("%w: %w", errBadServerValue, err)
	}
	key, err := c.Key()
	if err != nil {
		return nil, fmt.Errorf("srp: derive key: %w", err)
	}
	return &handshake{A: c.EphemeralPublic(), B: B, key: key}, nil
}

// proof returns M1 for the provider.
func (h *handshake) proof() []byte { return clientProof(h.A, h.B, h.key) }

// verify checks the provider's M2 in constant time.
func (h *handshake) verify(m1, m2 []byte) bool {
	return subtle.ConstantTimeCompare(m2, serverProof(h.A, m1, h.key)) == 1
}
