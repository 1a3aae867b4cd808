// Package notify is the typed facade the application layer calls to push
// real-time events to dashboard clients.
//
// Every method is a thin wrapper over the registry's two generic primitives
// (broadcast to a group, broadcast to all); the methods exist for caller
// ergonomics and to pin down payload shapes, not because the fan-outs differ.
package notify
