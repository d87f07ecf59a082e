package store

import (
	"path/filepath"
	"sync"

	"sealpost/internal/crypto"
)

const secretFilename = "secret.json.enc"

// secretFileStore keeps the random document key, sealed with the user's password.
type secretFileStore struct {
	dir string
	mu  sync.Mutex
}

func newSecretFileStore(dir string) *secretFileStore {
	return &secretFileStore{dir: dir}
}

// loadOrCreate returns the document key, generating and storing one on first use.
func (s *secretFileStore) loadOrCreate(password string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, secretFilename)
	b, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if b != nil {
		return decrypt(password, b)
	}

	key, err := crypto.NewSecretKey()
	if err != nil {
		return nil, err
	}
	N, r, p := scryptParams()
	ct, err := encrypt(password, key, N, r, p)
	if err != nil {
		return nil, err
	}
	if err := writeFile(path, ct, 0o600); err != nil {
		return nil, err
	}
	return key, nil
}
