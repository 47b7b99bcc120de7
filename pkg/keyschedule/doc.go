// Package keyschedule implements the TLS 1.3 key schedule (RFC 8446
// section 7.1) for a client connection.
//
// A KeySchedule evolves monotonically through the early, handshake and
// application stages, deriving traffic secrets with HKDF. It also owns the
// two per-direction record sequence counters that feed AEAD nonce
// derivation. Exactly one increment per direction per record transmitted or
// accepted is required; a missed or duplicated increment desynchronizes the
// connection from the peer and is unrecoverable.
package keyschedule
