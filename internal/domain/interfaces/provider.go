package interfaces

import (
	"context"
	"net/http"
)

// Provider is the mail provider a user belongs to.
type Provider interface {
	Domain() string
	AddressFor(username string) string
	DownloadCertificate(ctx context.Context) error
	APIURI() string
	LocalCACert() string
	HTTPClient() (*http.Client, error)
}
