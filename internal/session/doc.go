// Package session creates, caches and drives authenticated user sessions.
//
// A Factory turns (username, password) into a *Session. The first request for
// an identity authenticates at the provider and builds the session's
// collaborators in dependency order through a Builder; later requests for the
// same identity return the cached instance from the Registry without checking
// the password again. Concurrent first requests share one creation.
//
// A Session starts and stops its background jobs (outbound gateway and
// incoming-mail fetcher) by posting tasks to a reactor.Loop, so a stop never
// interleaves with a start in flight. Close stops the jobs, drops the session
// from its registry and closes the store.
package session
