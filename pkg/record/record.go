package record

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/tinytls/tinytls-go/pkg/alert"
	"github.com/tinytls/tinytls-go/pkg/keyschedule"
	"github.com/tinytls/tinytls-go/pkg/transport"
)

// Record framing constants.
const (
	// HeaderSize is the record header size in bytes: type, legacy version,
	// length.
	HeaderSize = 5

	// handshakeHeaderSize is the handshake message header size: type plus
	// a 24-bit length.
	handshakeHeaderSize = 4

	// MaxCiphertextSize is the protocol bound on one record body
	// (RFC 8446 section 5.2).
	MaxCiphertextSize = 16384 + 256
)

// legacyVersion is the frozen record-layer version field.
const legacyVersion = 0x0303

// Record codec errors.
var (
	// ErrBufferTooSmall indicates the shared record buffer cannot hold the
	// record being encoded or decoded.
	ErrBufferTooSmall = errors.New("record buffer too small")

	// ErrDecode indicates a malformed record or handshake framing.
	ErrDecode = errors.New("record decode error")
)

// Raw is one wire record read into the shared buffer, not yet decrypted.
type Raw struct {
	// Type is the outer content type.
	Type ContentType

	// Header is the five-byte record header, kept for AEAD additional data.
	Header [HeaderSize]byte

	// Payload is the record body; it aliases the shared buffer.
	Payload []byte
}

// Encode writes one record carrying payload with the given content type into
// buf and returns the encoded length. When write-direction traffic keys are
// installed the record is AEAD-protected with the inner content type
// appended, otherwise it is written in the clear.
//
// The write sequence counter is consulted but not advanced; the caller
// increments it after the record is transmitted.
func Encode(buf []byte, keys *keyschedule.KeySchedule, typ ContentType, payload []byte) (int, error) {
	if keys.WriteProtected() {
		return encodeProtected(buf, keys, typ, payload)
	}
	return encodePlaintext(buf, typ, payload)
}

// EncodeAlert writes one record carrying a single alert. The encrypted flag
// selects protected or best-effort plaintext transmission; encrypted
// encoding requires installed write keys.
func EncodeAlert(buf []byte, keys *keyschedule.KeySchedule, a alert.Alert, encrypted bool) (int, error) {
	var body [alert.Size]byte
	a.Encode(body[:0])

	if encrypted {
		return encodeProtected(buf, keys, ContentTypeAlert, body[:])
	}
	return encodePlaintext(buf, ContentTypeAlert, body[:])
}

func putHeader(buf []byte, typ ContentType, length int) {
	buf[0] = byte(typ)
	binary.BigEndian.PutUint16(buf[1:3], legacyVersion)
	binary.BigEndian.PutUint16(buf[3:5], uint16(length))
}

func encodePlaintext(buf []byte, typ ContentType, payload []byte) (int, error) {
	total := HeaderSize + len(payload)
	if total > len(buf) {
		return 0, fmt.Errorf("%w: need %d, have %d", ErrBufferTooSmall, total, len(buf))
	}
	putHeader(buf, typ, len(payload))
	copy(buf[HeaderSize:], payload)
	return total, nil
}

func encodeProtected(buf []byte, keys *keyschedule.KeySchedule, typ ContentType, payload []byte) (int, error) {
	innerLen := len(payload) + 1 // inner content type byte
	total := HeaderSize + innerLen + keys.Overhead()
	if total > len(buf) {
		return 0, fmt.Errorf("%w: need %d, have %d", ErrBufferTooSmall, total, len(buf))
	}

	// The outer type of every protected record is application_data.
	putHeader(buf, ContentTypeApplicationData, innerLen+keys.Overhead())

	// Build the inner plaintext in place, then seal it in place; the AEAD
	// contract permits dst and plaintext to overlap exactly.
	copy(buf[HeaderSize:], payload)
	buf[HeaderSize+len(payload)] = byte(typ)
	inner := buf[HeaderSize : HeaderSize+innerLen]

	sealed, err := keys.Seal(inner[:0], inner, buf[:HeaderSize])
	if err != nil {
		return 0, err
	}
	if len(sealed) != innerLen+keys.Overhead() {
		return 0, fmt.Errorf("%w: unexpected sealed length %d", ErrDecode, len(sealed))
	}
	return total, nil
}

// DecodeBlocking reads exactly one record from the transport into buf.
// Gathering the header and body may take multiple transport reads; the call
// blocks until the record is complete or the transport fails.
func DecodeBlocking(t transport.Transport, buf []byte) (Raw, error) {
	if len(buf) < HeaderSize {
		return Raw{}, ErrBufferTooSmall
	}
	if _, err := io.ReadFull(t, buf[:HeaderSize]); err != nil {
		return Raw{}, fmt.Errorf("read record header: %w", err)
	}

	typ := ContentType(buf[0])
	if buf[1] != 0x03 {
		return Raw{}, fmt.Errorf("%w: bad record version %#02x%02x", ErrDecode, buf[1], buf[2])
	}
	length := int(binary.BigEndian.Uint16(buf[3:5]))
	if length == 0 || length > MaxCiphertextSize {
		return Raw{}, fmt.Errorf("%w: record length %d", ErrDecode, length)
	}
	if HeaderSize+length > len(buf) {
		return Raw{}, fmt.Errorf("%w: record length %d exceeds buffer", ErrBufferTooSmall, length)
	}

	if _, err := io.ReadFull(t, buf[HeaderSize:HeaderSize+length]); err != nil {
		return Raw{}, fmt.Errorf("read record body: %w", err)
	}

	raw := Raw{Type: typ, Payload: buf[HeaderSize : HeaderSize+length]}
	copy(raw.Header[:], buf[:HeaderSize])
	return raw, nil
}

// Decrypt turns one raw record into typed messages pushed onto q in order.
// Protected records are opened in place and the read counter is advanced
// exactly once per successfully decrypted record. Plaintext records pass
// through untouched.
func Decrypt(keys *keyschedule.KeySchedule, q *Queue, raw Raw) error {
	typ := raw.Type
	payload := raw.Payload

	if typ == ContentTypeApplicationData && keys.ReadProtected() {
		plain, err := keys.Open(payload[:0], payload, raw.Header[:])
		if err != nil {
			return fmt.Errorf("record decrypt: %w", err)
		}
		keys.IncrementReadCounter()

		// Strip zero padding, then the trailing inner content type.
		i := len(plain) - 1
		for i >= 0 && plain[i] == 0 {
			i--
		}
		if i < 0 {
			return fmt.Errorf("%w: protected record with no content type", ErrDecode)
		}
		typ = ContentType(plain[i])
		payload = plain[:i]
	}

	switch typ {
	case ContentTypeHandshake:
		return splitHandshake(q, payload)
	case ContentTypeAlert:
		a, err := alert.Parse(payload)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return q.Push(Message{Type: ContentTypeAlert, Alert: a})
	default:
		// ChangeCipherSpec, ApplicationData and unknown types are queued
		// as-is; the connection layer decides how to treat them.
		return q.Push(Message{Type: typ, Payload: payload})
	}
}

// splitHandshake splits possibly-coalesced handshake messages into
// individual queue entries.
func splitHandshake(q *Queue, payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty handshake record", ErrDecode)
	}
	for len(payload) > 0 {
		if len(payload) < handshakeHeaderSize {
			return fmt.Errorf("%w: handshake header truncated", ErrDecode)
		}
		typ := HandshakeType(payload[0])
		length := int(payload[1])<<16 | int(payload[2])<<8 | int(payload[3])
		if len(payload) < handshakeHeaderSize+length {
			return fmt.Errorf("%w: handshake body truncated", ErrDecode)
		}
		err := q.Push(Message{
			Type:      ContentTypeHandshake,
			Handshake: typ,
			Payload:   payload[handshakeHeaderSize : handshakeHeaderSize+length],
		})
		if err != nil {
			return err
		}
		payload = payload[handshakeHeaderSize+length:]
	}
	return nil
}
