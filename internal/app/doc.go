// Package app wires sealpost's dependencies for the CLI.
//
// It builds the provider, the event loop, the session registry and the
// session factory from the settings in config.Config, and binds the
// factory's creation steps to the concrete store, key manager, mailbox,
// fetcher and outbound packages.
package app
