// Package config loads sealpost settings from defaults, an optional TOML
// file and SEALPOST_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const envPrefix = "SEALPOST_"

// Config holds the application configuration.
type Config struct {
	Home                string        `toml:"home"`                  // local data directory
	Debug               bool          `toml:"debug"`                 // debug logging
	FetchInterval       time.Duration `toml:"fetch_interval"`        // incoming mail poll interval
	StartBackgroundJobs bool          `toml:"start_background_jobs"` // start fetcher/gateway on session creation
	Timeout             time.Duration `toml:"timeout"`               // per network request
	CreateTimeout       time.Duration `toml:"create_timeout"`        // whole session creation protocol
	MaxSessions         int           `toml:"max_sessions"`          // 0 means unbounded
	OutboundQueue       int           `toml:"outbound_queue"`        // outbound gateway queue length
	CacheSize           int           `toml:"cache_size"`            // per-account message cache entries

	Provider Provider `toml:"provider"`
	Server   Server   `toml:"server"`
}

// Provider describes the mail provider users authenticate against.
type Provider struct {
	Domain            string `toml:"domain"`
	APIURI            string `toml:"api_uri"`
	CACertURI         string `toml:"ca_cert_uri"`
	CACertFingerprint string `toml:"ca_cert_fingerprint"` // hex SHA-256 of the CA file
	CACertFile        string `toml:"ca_cert_file"`        // pre-provisioned CA, skips download
	AddressFormat     string `toml:"address_format"`      // e.g. "{user}@{domain}"
}

// Server holds the HTTP surface settings used by the serve command.
type Server struct {
	Host             string `toml:"host"`
	Port             int    `toml:"port"`
	SSLKey           string `toml:"ssl_key"`
	SSLCert          string `toml:"ssl_cert"`
	OrganizationMode bool   `toml:"organization_mode"`
}

// Default returns the built-in settings.
func Default() *Config {
	home := ".sealpost"
	if dir, err := os.UserHomeDir(); err == nil {
		home = filepath.Join(dir, ".sealpost")
	}
	return &Config{
		Home:                home,
		FetchInterval:       60 * time.Second,
		StartBackgroundJobs: true,
		Timeout:             30 * time.Second,
		CreateTimeout:       2 * time.Minute,
		OutboundQueue:       64,
		CacheSize:           1024,
		Provider: Provider{
			AddressFormat: "{user}@{domain}",
		},
		Server: Server{
			Host: "127.0.0.1",
			Port: 3333,
		},
	}
}

// Load reads defaults, then the TOML file at path (if non-empty), then
// environment overrides. The result is not validated; callers merge CLI
// flags first and then call Validate.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("read settings %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Home = getEnv("HOME", c.Home)
	c.Provider.Domain = getEnv("PROVIDER", c.Provider.Domain)
	c.Provider.APIURI = getEnv("API_URI", c.Provider.APIURI)
	c.Provider.CACertFingerprint = getEnv("CA_CERT_FINGERPRINT", c.Provider.CACertFingerprint)
	c.Provider.CACertFile = getEnv("CA_CERT_FILE", c.Provider.CACertFile)

	if v := getEnv("FETCH_INTERVAL", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sFETCH_INTERVAL format: %w", envPrefix, err)
		}
		c.FetchInterval = d
	}
	if v := getEnv("START_BACKGROUND_JOBS", ""); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sSTART_BACKGROUND_JOBS: %w", envPrefix, err)
		}
		c.StartBackgroundJobs = b
	}
	if v := getEnv("MAX_SESSIONS", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sMAX_SESSIONS: %w", envPrefix, err)
		}
		c.MaxSessions = n
	}
	return nil
}

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if c.Home == "" {
		errs = append(errs, errors.New("home cannot be empty"))
	}
	if c.Provider.Domain == "" {
		errs = append(errs, errors.New("provider domain cannot be empty"))
	}
	if strings.Contains(c.Provider.Domain, "|") {
		errs = append(errs, errors.New("provider domain contains '|'"))
	}
	if c.FetchInterval <= 0 {
		errs = append(errs, errors.New("fetch_interval must be positive"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, errors.New("timeout must be positive"))
	}
	if c.CreateTimeout <= 0 {
		errs = append(errs, errors.New("create_timeout must be positive"))
	}
	if c.MaxSessions < 0 {
		errs = append(errs, errors.New("max_sessions cannot be negative"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Server.Port))
	}
	if (c.Server.SSLKey == "") != (c.Server.SSLCert == "") {
		errs = append(errs, errors.New("ssl_key and ssl_cert must be set together"))
	}
	return errors.Join(errs...)
}

// getEnv retrieves SEALPOST_<key> or returns fallback.
// A SEALPOST_<key>_FILE variable takes precedence and names a file to read.
func getEnv(key, fallback string) string {
	if fileValue := os.Getenv(envPrefix + key + "_FILE"); fileValue != "" {
		content, err := os.ReadFile(fileValue)
		if err == nil {
			return strings.TrimSpace(string(content))
		}
	}
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return fallback
}
