// Package protocol groups the wire layers of a wirelink session.
//
// Ownership boundary:
// - frame: header layout and size checks
// - recvbuf: elastic receive buffer
// - secure: AES-CBC body encryption and HMAC tags
// - session: reassembly, replay checks, send queue, lifecycle
// - dispatch: opcode routing
// - tlv: typed payload fields
package protocol
