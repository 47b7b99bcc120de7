// Package record implements the TLS 1.3 record codec over a caller-owned
// fixed-capacity buffer.
//
// Encoding writes one record — plaintext or AEAD-protected, depending on the
// key schedule state — in place into the shared buffer. Decoding reads
// exactly one record from the transport into the same buffer, and Decrypt
// turns it into one or more typed protocol messages in a bounded in-order
// queue (a single record may coalesce several handshake messages).
//
// The codec never allocates per-record storage beyond the derived message
// slices, which alias the shared buffer and are only valid until the next
// record is processed.
package record
