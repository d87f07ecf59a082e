// Package fetch moves incoming mail from the user's store into the INBOX.
//
// The provider delivers mail as incoming documents, each sealed to the
// user's public key. A fetch pass syncs the store, opens every incoming
// document, files the parsed message in INBOX and deletes the incoming
// document. The loop runs the pass on a gocron schedule.
package fetch
