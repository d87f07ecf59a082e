package config

import (
	"errors"
	"fmt"

	"github.com/BurntSushi/toml"
)

// Credentials is the content of a credentials file (-c). Test setups only.
type Credentials struct {
	Provider string `toml:"provider"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// LoadCredentials reads a TOML credentials file.
func LoadCredentials(path string) (Credentials, error) {
	var creds Credentials
	if _, err := toml.DecodeFile(path, &creds); err != nil {
		return Credentials{}, fmt.Errorf("read credentials %s: %w", path, err)
	}
	if creds.Username == "" || creds.Password == "" {
		return Credentials{}, errors.New("credentials file needs username and password")
	}
	return creds, nil
}
