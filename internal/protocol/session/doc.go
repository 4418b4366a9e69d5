// Package session owns one framed connection: receive reassembly, replay
// checks, the send pipeline, and the session lifecycle.
//
// Ownership boundary:
// - receive reassembly over an elastic buffer (Reassembler)
// - per-direction sequence counters
// - outbound queue with one transmit in flight
// - fault taxonomy and idempotent teardown
// - reconnect backoff for callers that retry above this layer
//
// Payload decoding and routing live in package dispatch.
package session
