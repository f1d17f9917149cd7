// Package server implements the WebSocket signaling relay: peer identity
// and registration, room-scoped roster broadcasts, verbatim signal
// forwarding, and one-shot numeric code pairing.
//
// The implementation is organized into specialized files for configuration,
// hub management, clients, pairing, routing, and HTTP handlers. All shared
// state lives on the Hub and is mutated only by its event loop goroutine.
package server
