// Package api provides the JSON-over-HTTP client used to talk to a mail
// provider's API.
//
// The provider exposes the endpoints sealpost depends on: SRP sessions and
// user registration, the public key directory, document synchronization
// and the outbound mail relay. Every collaborator builds on one Client so
// authentication headers, error mapping and cancellation behave the same
// everywhere.
//
// All requests accept a context for cancellation and deadlines. Non-2xx
// statuses are returned as *StatusError with the HTTP method, path and
// status text to aid diagnostics; 401/403 also match domain.ErrAuthFailed and
// transport failures match domain.ErrProviderUnavailable.
package api
