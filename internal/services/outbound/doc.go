// Package outbound delivers the user's outgoing mail.
//
// Send queues a mail for a single worker goroutine. The worker seals the
// body separately to every recipient's published key, hands the sealed
// copies to the provider's SMTP endpoint and files a copy in Sent.
package outbound
