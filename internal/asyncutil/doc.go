// Package asyncutil provides the small concurrency combinators used by the
// repository controller and the manager: a trailing-edge debouncer, a
// single-flight throttle (one run in flight plus one queued), a per-key mutex,
// and a FIFO sequence shared across goroutines.
package asyncutil
