// Package commands defines the sealpost CLI.
//
// Commands
//
//   - serve              Log in and serve the account over HTTP
//   - maintenance reset  Delete all mail and restore the default mailboxes
//   - maintenance load-mails FILE...  Import RFC 5322 files into INBOX
//   - maintenance dump   Print every stored document
//   - maintenance sync   Run one sync pass
//   - register PROVIDER USERNAME  Create an account at a provider
//
// # Implementation
//
// The root command loads settings (defaults, --settings TOML file,
// SEALPOST_* environment, then flags) and builds the process logger before
// any subcommand runs. Commands that need a session build the app wiring,
// create the session through the session factory and close everything on
// the way out.
package commands
