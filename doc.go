// Package uev is a micro event loop core: it multiplexes file-descriptor
// I/O, millisecond timers, and software-posted events into one
// cooperative dispatch loop driven by a per-context wake-bit group.
//
// A foreground goroutine calls Context.Run to drive the loop; a
// process-global selector goroutine (started lazily by the first I/O
// watcher, or explicitly via StartIOThread) converts descriptor
// readiness into per-watcher event bits; event and timer watchers may be
// posted or rescheduled from any goroutine, simulated ISR included.
package uev
