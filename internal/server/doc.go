// Package server wires the HTTP and WebSocket surface of the notifier.
// It exposes the WebSocket endpoint clients connect to, REST triggers the
// application layer calls to push notifications, and the usual health and
// metrics endpoints.
package server
