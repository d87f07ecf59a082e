package provider

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sealpost/internal/crypto"
	"sealpost/internal/domain"
)

func selfSignedPEM(t *testing.T) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "example.org CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func TestAddressFor(t *testing.T) {
	p := New(Config{Domain: "example.org"}, nil, nil)
	assert.Equal(t, "alice@example.org", p.AddressFor("alice"))

	custom := New(Config{Domain: "example.org", AddressFormat: "{user}+mail@{domain}"}, nil, nil)
	assert.Equal(t, "bob+mail@example.org", custom.AddressFor("bob"))
}

func TestAPIURI_Default(t *testing.T) {
	assert.Equal(t, "https://api.example.org:4430", New(Config{Domain: "example.org"}, nil, nil).APIURI())
	assert.Equal(t, "http://127.0.0.1:9", New(Config{Domain: "x", APIURI: "http://127.0.0.1:9/"}, nil, nil).APIURI())
}

func TestDownloadCertificate_VerifiesAndCaches(t *testing.T) {
	pemBytes := selfSignedPEM(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write(pemBytes)
	}))
	defer srv.Close()

	p := New(Config{
		Domain:            "example.org",
		Home:              t.TempDir(),
		CACertURI:         srv.URL + "/ca.crt",
		CACertFingerprint: "SHA256: " + strings.ToUpper(crypto.CertificateFingerprint(pemBytes)),
	}, srv.Client(), nil)

	require.NoError(t, p.DownloadCertificate(context.Background()))
	stored, err := os.ReadFile(p.LocalCACert())
	require.NoError(t, err)
	assert.Equal(t, pemBytes, stored)

	require.NoError(t, p.DownloadCertificate(context.Background()))
	assert.Equal(t, int32(1), hits.Load(), "matching local certificate is reused")

	client, err := p.HTTPClient()
	require.NoError(t, err)
	assert.NotNil(t, client.Transport)
}

func TestDownloadCertificate_FingerprintMismatch(t *testing.T) {
	pemBytes := selfSignedPEM(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(pemBytes)
	}))
	defer srv.Close()

	p := New(Config{
		Domain:            "example.org",
		Home:              t.TempDir(),
		CACertURI:         srv.URL,
		CACertFingerprint: strings.Repeat("0", 64),
	}, srv.Client(), nil)

	err := p.DownloadCertificate(context.Background())
	assert.ErrorIs(t, err, domain.ErrCertificateMismatch)
	_, statErr := os.Stat(p.LocalCACert())
	assert.True(t, os.IsNotExist(statErr))
}

// definitionServer serves provider.json pointing at its own /ca.crt with the
// given fingerprint.
func definitionServer(t *testing.T, pemBytes []byte, fingerprint string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/provider.json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(domain.ProviderDefinition{
			Domain:            "example.org",
			CACertURI:         srv.URL + "/ca.crt",
			CACertFingerprint: fingerprint,
		})
	})
	mux.HandleFunc("/ca.crt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(pemBytes)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDownloadCertificate_UsesDefinitionFingerprint(t *testing.T) {
	pemBytes := selfSignedPEM(t)
	srv := definitionServer(t, pemBytes, "SHA256: "+crypto.CertificateFingerprint(pemBytes))

	p := New(Config{Domain: "example.org", Home: t.TempDir(), DefinitionURI: srv.URL + "/provider.json"}, srv.Client(), nil)
	require.NoError(t, p.DownloadCertificate(context.Background()))
	stored, err := os.ReadFile(p.LocalCACert())
	require.NoError(t, err)
	assert.Equal(t, pemBytes, stored)
}

func TestDownloadCertificate_DefinitionFingerprintMismatch(t *testing.T) {
	srv := definitionServer(t, selfSignedPEM(t), strings.Repeat("ab", 32))

	p := New(Config{Domain: "example.org", Home: t.TempDir(), DefinitionURI: srv.URL + "/provider.json"}, srv.Client(), nil)
	err := p.DownloadCertificate(context.Background())
	assert.ErrorIs(t, err, domain.ErrCertificateMismatch)
	_, statErr := os.Stat(p.LocalCACert())
	assert.True(t, os.IsNotExist(statErr))
}

func TestDownloadCertificate_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := New(Config{Domain: "example.org", Home: t.TempDir(), CACertURI: url}, nil, nil)
	assert.ErrorIs(t, p.DownloadCertificate(context.Background()), domain.ErrProviderUnavailable)
}

func TestFetchDefinition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(domain.ProviderDefinition{
			Domain:     "example.org",
			APIURI:     "https://api.example.org:4430",
			APIVersion: "1",
		})
	}))
	defer srv.Close()

	p := New(Config{Domain: "example.org", DefinitionURI: srv.URL + "/provider.json"}, srv.Client(), nil)
	def, err := p.FetchDefinition(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.org:4430", def.APIURI)

	other := New(Config{Domain: "example.net", DefinitionURI: srv.URL}, srv.Client(), nil)
	_, err = other.FetchDefinition(context.Background())
	assert.Error(t, err)
}

func TestHTTPClient_WithoutCertificateUsesSystemRoots(t *testing.T) {
	p := New(Config{Domain: "example.org", Home: t.TempDir()}, nil, nil)
	client, err := p.HTTPClient()
	require.NoError(t, err)
	assert.NotNil(t, client)
}
