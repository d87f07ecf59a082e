// Package server is the HTTP surface of the serve command.
//
// It exposes one user's session as a small JSON API on echo: account
// details, mailbox listings, sending mail and triggering a sync. Domain
// errors are translated to HTTP statuses in one place, mapDomainError.
package server
