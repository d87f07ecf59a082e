package keymanager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"sealpost/internal/api"
	"sealpost/internal/crypto"
	"sealpost/internal/domain"
	"sealpost/internal/logging"
)

const keyPairDocID = "keypair"

// Service manages the key pair of one account address.
//
// The key pair is loaded lazily from the store and cached for the lifetime
// of the service. Recipient public keys are fetched from the provider on
// every Encrypt; the provider is the source of truth for key rotation.
type Service struct {
	address string
	store   domain.DocumentStore
	remote  *api.Client
	logger  *slog.Logger

	mu  sync.Mutex
	kp  *domain.KeyPair
	now func() time.Time
}

// New returns a key manager for address. remote must carry the session token;
// a nil remote keeps keys local (nothing is published, Encrypt only works to self).
func New(address string, store domain.DocumentStore, remote *api.Client, logger *slog.Logger) *Service {
	return &Service{
		address: address,
		store:   store,
		remote:  remote,
		logger:  logging.Default(logger).With("component", "keymanager", "address", address),
		now:     time.Now,
	}
}

// GenerateKeyPairIfAbsent makes sure the address has a key pair, generating
// and storing one when none exists yet. A stored pair the provider has not
// accepted yet is published again.
func (s *Service) GenerateKeyPairIfAbsent(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kp, ok, err := s.load(ctx)
	if err != nil {
		return err
	}
	if !ok {
		if kp, err = s.generate(); err != nil {
			return err
		}
		if err := s.save(ctx, kp); err != nil {
			return err
		}
		s.logger.Info("generated key pair", "fingerprint", crypto.Fingerprint(kp.XPub.Slice()))
	}
	s.kp = &kp

	if kp.Published || s.remote == nil {
		return nil
	}
	if err := s.publish(ctx, kp); err != nil {
		return err
	}
	kp.Published = true
	if err := s.save(ctx, kp); err != nil {
		return err
	}
	s.kp = &kp
	s.logger.Info("published public key")
	return nil
}

func (s *Service) generate() (domain.KeyPair, error) {
	xPriv, xPub, err := crypto.GenerateX25519()
	if err != nil {
		return domain.KeyPair{}, err
	}
	edPriv, edPub, err := crypto.GenerateEd25519()
	if err != nil {
		return domain.KeyPair{}, err
	}
	return domain.KeyPair{
		Address: s.address,
		XPub:    xPub,
		XPriv:   xPriv,
		EdPub:   edPub,
		EdPriv:  edPriv,
		Created: s.now().Unix(),
	}, nil
}

func (s *Service) save(ctx context.Context, kp domain.KeyPair) error {
	raw, err := json.Marshal(kp)
	if err != nil {
		return err
	}
	defer crypto.Wipe(raw)
	if _, err := s.store.Put(ctx, domain.Document{ID: keyPairDocID, Type: domain.DocKeyPair, Content: raw}); err != nil {
		return fmt.Errorf("keymanager: save key pair: %w", err)
	}
	return nil
}

func (s *Service) load(ctx context.Context) (domain.KeyPair, bool, error) {
	if s.kp != nil {
		return *s.kp, true, nil
	}
	doc, ok, err := s.store.Get(ctx, keyPairDocID)
	if err != nil || !ok {
		return domain.KeyPair{}, false, err
	}
	if doc.Type != domain.DocKeyPair {
		return domain.KeyPair{}, false, fmt.Errorf("keymanager: document %s has type %q", keyPairDocID, doc.Type)
	}
	var kp domain.KeyPair
	if err := json.Unmarshal(doc.Content, &kp); err != nil {
		return domain.KeyPair{}, false, fmt.Errorf("keymanager: decode key pair: %w", err)
	}
	return kp, true, nil
}

func (s *Service) keyPair(ctx context.Context) (domain.KeyPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kp, ok, err := s.load(ctx)
	if err != nil {
		return domain.KeyPair{}, err
	}
	if !ok {
		return domain.KeyPair{}, domain.ErrKeyNotFound
	}
	s.kp = &kp
	return kp, nil
}

// publish uploads the signed public key.
func (s *Service) publish(ctx context.Context, kp domain.KeyPair) error {
	if s.remote == nil {
		return nil
	}
	pub := kp.Public()
	pub.Sig = crypto.SignEd25519(kp.EdPriv, pub.SignedBytes())
	if err := s.remote.PutJSON(ctx, "/1/keys", pub, nil); err != nil {
		return fmt.Errorf("keymanager: publish key: %w", err)
	}
	return nil
}

// Lookup fetches and verifies the published key of address.
func (s *Service) Lookup(ctx context.Context, address string) (domain.PublicKey, error) {
	if address == s.address {
		kp, err := s.keyPair(ctx)
		if err != nil {
			return domain.PublicKey{}, err
		}
		return kp.Public(), nil
	}
	if s.remote == nil {
		return domain.PublicKey{}, domain.ErrKeyNotFound
	}

	var pub domain.PublicKey
	err := s.remote.GetJSON(ctx, "/1/keys?address="+url.QueryEscape(address), &pub)
	if api.IsNotFound(err) {
		return domain.PublicKey{}, fmt.Errorf("%w: %s", domain.ErrKeyNotFound, address)
	}
	if err != nil {
		return domain.PublicKey{}, err
	}
	if pub.Address != address || !crypto.VerifyEd25519(pub.EdPub, pub.SignedBytes(), pub.Sig) {
		return domain.PublicKey{}, fmt.Errorf("%w: %s", domain.ErrBadSignature, address)
	}
	return pub, nil
}

// Encrypt seals plaintext to the published key of to.
func (s *Service) Encrypt(ctx context.Context, to string, plaintext []byte) ([]byte, error) {
	pub, err := s.Lookup(ctx, to)
	if err != nil {
		return nil, err
	}
	return crypto.Seal(pub.XPub, plaintext)
}

// Decrypt opens a message sealed to this address.
func (s *Service) Decrypt(ctx context.Context, sealed []byte) ([]byte, error) {
	kp, err := s.keyPair(ctx)
	if err != nil {
		return nil, err
	}
	pt, err := crypto.Open(kp.XPriv, kp.XPub, sealed)
	if errors.Is(err, crypto.ErrOpen) {
		return nil, fmt.Errorf("keymanager: %w", err)
	}
	return pt, err
}

// Fingerprint returns a short fingerprint of the address's X25519 public key.
func (s *Service) Fingerprint(ctx context.Context) (domain.Fingerprint, error) {
	kp, err := s.keyPair(ctx)
	if err != nil {
		return "", err
	}
	return domain.Fingerprint(crypto.Fingerprint(kp.XPub.Slice())), nil
}

// Compile-time assertion that Service implements domain.KeyManager.
var _ domain.KeyManager = (*Service)(nil)
