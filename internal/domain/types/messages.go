package types

import "time"

// Default mailbox names every account starts with.
const (
	MailboxInbox  = "INBOX"
	MailboxSent   = "Sent"
	MailboxDrafts = "Drafts"
	MailboxTrash  = "Trash"
)

// DefaultMailboxes lists the mailboxes created for a new account.
var DefaultMailboxes = []string{MailboxInbox, MailboxSent, MailboxDrafts, MailboxTrash}

// Message is a stored mail in one of the account's mailboxes. ID is assigned
// by the account; MessageID is the sender's Message-Id header.
type Message struct {
	ID        string    `json:"id"`
	MessageID string    `json:"message_id,omitempty"`
	Mailbox   string    `json:"mailbox"`
	From      string    `json:"from"`
	To        []string  `json:"to"`
	Subject   string    `json:"subject"`
	Date      time.Time `json:"date"`
	Flags     []string  `json:"flags,omitempty"`
	Body      string    `json:"body"`
}

// OutgoingMail is what the outbound gateway accepts for delivery.
type OutgoingMail struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

// SealedMail is the wire format of a mail encrypted to one recipient.
type SealedMail struct {
	To         string `json:"to"`
	Ciphertext []byte `json:"ciphertext"`
}
