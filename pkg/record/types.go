package record

import "github.com/tinytls/tinytls-go/pkg/alert"

// ContentType is the record-layer content type (RFC 8446 section 5.1).
type ContentType uint8

const (
	// ContentTypeChangeCipherSpec is a compatibility artifact; TLS 1.3
	// peers may send it mid-handshake and it carries no meaning.
	ContentTypeChangeCipherSpec ContentType = 20

	// ContentTypeAlert carries a two-byte alert.
	ContentTypeAlert ContentType = 21

	// ContentTypeHandshake carries one or more handshake messages.
	ContentTypeHandshake ContentType = 22

	// ContentTypeApplicationData carries application bytes, and is also the
	// outer type of every protected record.
	ContentTypeApplicationData ContentType = 23
)

// String returns the content type name.
func (c ContentType) String() string {
	switch c {
	case ContentTypeChangeCipherSpec:
		return "CHANGE_CIPHER_SPEC"
	case ContentTypeAlert:
		return "ALERT"
	case ContentTypeHandshake:
		return "HANDSHAKE"
	case ContentTypeApplicationData:
		return "APPLICATION_DATA"
	default:
		return "UNKNOWN"
	}
}

// HandshakeType identifies a handshake message (RFC 8446 section 4).
type HandshakeType uint8

const (
	HandshakeTypeClientHello         HandshakeType = 1
	HandshakeTypeServerHello         HandshakeType = 2
	HandshakeTypeNewSessionTicket    HandshakeType = 4
	HandshakeTypeEncryptedExtensions HandshakeType = 8
	HandshakeTypeCertificate         HandshakeType = 11
	HandshakeTypeCertificateRequest  HandshakeType = 13
	HandshakeTypeCertificateVerify   HandshakeType = 15
	HandshakeTypeFinished            HandshakeType = 20
	HandshakeTypeKeyUpdate           HandshakeType = 24
)

// String returns the handshake message name.
func (h HandshakeType) String() string {
	switch h {
	case HandshakeTypeClientHello:
		return "CLIENT_HELLO"
	case HandshakeTypeServerHello:
		return "SERVER_HELLO"
	case HandshakeTypeNewSessionTicket:
		return "NEW_SESSION_TICKET"
	case HandshakeTypeEncryptedExtensions:
		return "ENCRYPTED_EXTENSIONS"
	case HandshakeTypeCertificate:
		return "CERTIFICATE"
	case HandshakeTypeCertificateRequest:
		return "CERTIFICATE_REQUEST"
	case HandshakeTypeCertificateVerify:
		return "CERTIFICATE_VERIFY"
	case HandshakeTypeFinished:
		return "FINISHED"
	case HandshakeTypeKeyUpdate:
		return "KEY_UPDATE"
	default:
		return "UNKNOWN"
	}
}

// Message is one decrypted protocol message.
//
// Payload aliases the shared record buffer and is valid only until the next
// record is decoded into it.
type Message struct {
	// Type is the (inner) content type.
	Type ContentType

	// Handshake identifies the message when Type is ContentTypeHandshake.
	Handshake HandshakeType

	// Payload is the handshake message body (without its four-byte header)
	// or the application data.
	Payload []byte

	// Alert is set when Type is ContentTypeAlert.
	Alert alert.Alert
}
