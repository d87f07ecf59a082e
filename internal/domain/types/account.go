package types

// Credentials is the result of authenticating a user against a provider.
type Credentials struct {
	Username Username `json:"username"`
	UserID   UserID   `json:"id"`
	Token    Token    `json:"token"`
}

// ProviderDefinition mirrors the subset of a provider's provider.json we use.
type ProviderDefinition struct {
	Domain            string `json:"domain"`
	APIURI            string `json:"api_uri"`
	APIVersion        string `json:"api_version"`
	CACertURI         string `json:"ca_cert_uri"`
	CACertFingerprint string `json:"ca_cert_fingerprint"`
}
