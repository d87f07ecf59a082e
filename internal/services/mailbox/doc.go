// Package mailbox implements the user's mail account on top of the
// encrypted document store.
//
// Messages are stored one per mail document. A MemoryStore keeps recently
// used messages in an LRU cache and writes through to the PermanentStore.
// The list of mailboxes lives in a single mailbox-index document that is
// seeded with the default mailboxes on first use.
package mailbox
