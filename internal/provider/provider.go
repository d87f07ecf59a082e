// Package provider models the mail provider a user belongs to: its domain,
// API endpoint, address format and the CA certificate used to reach it.
package provider

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"sealpost/internal/api"
	"sealpost/internal/crypto"
	"sealpost/internal/domain"
	"sealpost/internal/logging"
)

// Config describes one provider.
type Config struct {
	Domain            string
	APIURI            string // default https://api.<domain>:4430
	DefinitionURI     string // default https://<domain>/provider.json
	CACertURI         string // default https://<domain>/ca.crt
	CACertFingerprint string // hex SHA-256, optional "SHA256:" prefix
	CACertFile        string // pre-provisioned CA; no download when set
	AddressFormat     string // default {user}@{domain}
	Home              string
	Timeout           time.Duration
}

// Provider implements domain.Provider.
type Provider struct {
	cfg       Config
	bootstrap *http.Client
	logger    *slog.Logger
}

// New returns a Provider. bootstrap is used for provider.json and the CA
// download, before the provider's own CA is known; nil means http.DefaultClient.
func New(cfg Config, bootstrap *http.Client, logger *slog.Logger) *Provider {
	if bootstrap == nil {
		bootstrap = http.DefaultClient
	}
	if cfg.AddressFormat == "" {
		cfg.AddressFormat = "{user}@{domain}"
	}
	return &Provider{
		cfg:       cfg,
		bootstrap: bootstrap,
		logger:    logging.Default(logger).With("component", "provider", "domain", cfg.Domain),
	}
}

// Domain returns the provider's domain; it identifies the provider in session keys.
func (p *Provider) Domain() string { return p.cfg.Domain }

// APIURI returns the base URI of the provider API.
func (p *Provider) APIURI() string {
	if p.cfg.APIURI != "" {
		return strings.TrimRight(p.cfg.APIURI, "/")
	}
	return "https://api." + p.cfg.Domain + ":4430"
}

// LocalCACert returns the path of the provider CA certificate on disk.
func (p *Provider) LocalCACert() string {
	if p.cfg.CACertFile != "" {
		return p.cfg.CACertFile
	}
	return filepath.Join(p.cfg.Home, "providers", p.cfg.Domain, "keys", "ca", "cacert.pem")
}

// AddressFor returns the mail address of username at this provider.
func (p *Provider) AddressFor(username string) string {
	return strings.NewReplacer("{user}", username, "{domain}", p.cfg.Domain).Replace(p.cfg.AddressFormat)
}

// FetchDefinition downloads the provider's provider.json.
func (p *Provider) FetchDefinition(ctx context.Context) (domain.ProviderDefinition, error) {
	uri := p.cfg.DefinitionURI
	if uri == "" {
		uri = "https://" + p.cfg.Domain + "/provider.json"
	}
	var def domain.ProviderDefinition
	if err := api.New(uri, p.bootstrap).GetJSON(ctx, "", &def); err != nil {
		return domain.ProviderDefinition{}, fmt.Errorf("fetch provider definition: %w", err)
	}
	if def.Domain != "" && !strings.EqualFold(def.Domain, p.cfg.Domain) {
		return domain.ProviderDefinition{}, fmt.Errorf("provider definition is for %q, not %q", def.Domain, p.cfg.Domain)
	}
	return def, nil
}

// DownloadCertificate makes sure a CA certificate matching the configured
// fingerprint is present locally, downloading it when needed.
func (p *Provider) DownloadCertificate(ctx context.Context) error {
	path := p.LocalCACert()

	if p.cfg.CACertFile != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read provider certificate: %w", err)
		}
		return p.checkCertificate(raw, p.cfg.CACertFingerprint)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create certificate dir: %w", err)
	}
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock certificate: %w", err)
	}
	if !locked {
		return errors.New("lock certificate: not acquired")
	}
	defer func() { _ = lock.Unlock() }()

	if raw, err := os.ReadFile(path); err == nil {
		if p.checkCertificate(raw, p.cfg.CACertFingerprint) == nil {
			return nil
		}
		p.logger.Warn("local provider certificate does not match fingerprint, downloading again")
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read provider certificate: %w", err)
	}

	uri, want := p.cfg.CACertURI, p.cfg.CACertFingerprint
	if uri == "" {
		uri = "https://" + p.cfg.Domain + "/ca.crt"
		if def, err := p.FetchDefinition(ctx); err != nil {
			p.logger.Debug("provider definition unavailable, using default CA location", "error", err)
		} else {
			if def.CACertURI != "" {
				uri = def.CACertURI
			}
			if want == "" {
				want = def.CACertFingerprint
			}
		}
	}
	raw, err := api.New("", p.bootstrap).GetRaw(ctx, uri)
	if err != nil {
		return fmt.Errorf("download provider certificate: %w", err)
	}
	if err := p.checkCertificate(raw, want); err != nil {
		return err
	}
	if want == "" {
		p.logger.Warn("no certificate fingerprint configured, trusting downloaded CA")
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	p.logger.Info("provider certificate stored", "path", path)
	return nil
}

// HTTPClient returns a client trusting the provider CA, or the bootstrap
// client's roots when no CA has been stored.
func (p *Provider) HTTPClient() (*http.Client, error) {
	raw, err := os.ReadFile(p.LocalCACert())
	if errors.Is(err, os.ErrNotExist) {
		return &http.Client{Transport: p.bootstrap.Transport, Timeout: p.cfg.Timeout}, nil
	}
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(raw) {
		return nil, fmt.Errorf("%w: no PEM certificates in %s", domain.ErrCertificateMismatch, p.LocalCACert())
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	return &http.Client{Transport: transport, Timeout: p.cfg.Timeout}, nil
}

func (p *Provider) checkCertificate(raw []byte, fingerprint string) error {
	if !x509.NewCertPool().AppendCertsFromPEM(raw) {
		return fmt.Errorf("%w: not a PEM certificate", domain.ErrCertificateMismatch)
	}
	want := normalizeFingerprint(fingerprint)
	if want == "" {
		return nil
	}
	if got := crypto.CertificateFingerprint(raw); got != want {
		return fmt.Errorf("%w: got %s", domain.ErrCertificateMismatch, got)
	}
	return nil
}

// normalizeFingerprint accepts "SHA256: AB:CD..." style values.
func normalizeFingerprint(fp string) string {
	fp = strings.TrimSpace(fp)
	if i := strings.IndexByte(fp, ':'); i > 0 && strings.EqualFold(fp[:i], "sha256") {
		fp = fp[i+1:]
	}
	fp = strings.NewReplacer(" ", "", ":", "").Replace(fp)
	return strings.ToLower(fp)
}

// Compile-time assertion that Provider implements domain.Provider.
var _ domain.Provider = (*Provider)(nil)
