// Package presence implements the connection registry and broadcast fan-out using the actor pattern.
//
// A single goroutine owns the connection table and assessment-group membership; all
// mutations and reads go through a command channel (no mutexes on hot state).
// Per-connection write goroutines isolate slow clients: a client whose send buffer
// fills up is evicted rather than allowed to stall a broadcast.
package presence
