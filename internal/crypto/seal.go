package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"sealpost/internal/domain"
)

const (
	// SecretKeySize is the size of a document store key.
	SecretKeySize = chacha20poly1305.KeySize

	sealInfo = "sealpost mail v1"
)

// ErrOpen is returned when a sealed box or secret box fails to authenticate.
var ErrOpen = errors.New("crypto: message authentication failed")

// Seal encrypts plaintext to recipient using an ephemeral X25519 key.
//
// Layout: ephemeral public key (32) || ChaCha20-Poly1305 ciphertext.
// The nonce is all-zero because every ephemeral key derives a fresh AEAD key.
func Seal(recipient domain.X25519Public, plaintext []byte) ([]byte, error) {
	ephPriv, ephPub, err := GenerateX25519()
	if err != nil {
		return nil, err
	}
	defer Wipe(ephPriv[:])

	key, err := sealKey(ephPriv, recipient, ephPub, recipient)
	if err != nil {
		return nil, err
	}
	defer Wipe(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte
	out := make([]byte, 0, len(ephPub)+len(plaintext)+aead.Overhead())
	out = append(out, ephPub[:]...)
	return aead.Seal(out, nonce[:], plaintext, ephPub[:]), nil
}

// Open decrypts a box produced by Seal for the key pair (priv, pub).
func Open(priv domain.X25519Private, pub domain.X25519Public, sealed []byte) ([]byte, error) {
	if len(sealed) < 32+chacha20poly1305.Overhead {
		return nil, ErrOpen
	}
	var ephPub domain.X25519Public
	copy(ephPub[:], sealed[:32])

	key, err := sealKey(priv, ephPub, ephPub, pub)
	if err != nil {
		return nil, err
	}
	defer Wipe(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte
	pt, err := aead.Open(nil, nonce[:], sealed[32:], ephPub[:])
	if err != nil {
		return nil, ErrOpen
	}
	return pt, nil
}

func sealKey(
	priv domain.X25519Private,
	peer domain.X25519Public,
	ephPub domain.X25519Public,
	recipient domain.X25519Public,
) ([]byte, error) {
	shared, err := DH(priv, peer)
	if err != nil {
		return nil, err
	}
	defer Wipe(shared[:])

	salt := make([]byte, 0, 64)
	salt = append(salt, ephPub[:]...)
	salt = append(salt, recipient[:]...)

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared[:], salt, []byte(sealInfo)), key); err != nil {
		return nil, err
	}
	return key, nil
}

// NewSecretKey returns a random document store key.
func NewSecretKey() ([]byte, error) {
	key := make([]byte, SecretKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// SealSecret encrypts plaintext under key with XChaCha20-Poly1305.
// ad is bound to the ciphertext (e.g. the document ID).
func SealSecret(key, plaintext, ad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, ad), nil
}

// OpenSecret decrypts a value produced by SealSecret.
func OpenSecret(key, sealed, ad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrOpen
	}
	nonce, ct := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	pt, err := aead.Open(nil, nonce, ct, ad)
	if err != nil {
		return nil, ErrOpen
	}
	return pt, nil
}
