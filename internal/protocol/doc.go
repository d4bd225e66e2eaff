// Package protocol owns the peer wire contract and its parsing primitives.
//
// Ownership boundary:
// - message kinds and their fixed payload layouts
// - encode/decode of a single message buffer
// - color name mapping for SendColor
//
// Every message is [kind:1][payload]. Floats are 4-byte little-endian
// IEEE-754; names are prefixed by a single length byte and capped at 255
// bytes. Stream framing for byte-stream transports lives in protocol/frame.
package protocol
