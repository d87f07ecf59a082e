package types

import "time"

// Document is a decrypted record in the encrypted document store.
type Document struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Rev     int64     `json:"rev"`
	Content []byte    `json:"content"`
	Updated time.Time `json:"updated"`
}

// Document types used across the app.
const (
	DocKeyPair      = "keypair"
	DocMail         = "mail"
	DocMailboxIndex = "mailbox-index"
	DocIncoming     = "incoming"
)

// SyncOptions controls one synchronization pass of the document store.
type SyncOptions struct {
	// DeferDecryption keeps pulled documents as ciphertext until they are read.
	DeferDecryption bool
}
