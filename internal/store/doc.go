// Package store is the user's encrypted document store.
//
// Documents live in a bbolt database under <home>/<user-id>/documents.db as
// msgpack records. Every document body is sealed with XChaCha20-Poly1305
// under a random store key; that key is itself kept on disk sealed with a
// password-derived scrypt key (secret.json.enc). Nothing is written in clear.
//
// Sync exchanges sealed documents with the provider's sync API. Pulled
// documents are stored as ciphertext; unless decryption is deferred they are
// also opened during the sync so a bad document fails the pass early.
// Local edits are marked dirty and pushed on the next sync. A document that
// is dirty locally wins over a remote change to the same document.
package store
