// Package alert models TLS alert protocol signals (RFC 8446 section 6).
//
// Alerts are two-byte protocol messages carrying a level and a description.
// The only alert this client ever sends is a warning close_notify; received
// alerts are surfaced to the caller as errors.
package alert

import "errors"

// Alert errors.
var (
	// ErrTruncated indicates an alert body shorter than two bytes.
	ErrTruncated = errors.New("alert truncated")
)

// Size is the wire size of an alert body in bytes.
const Size = 2

// Level is the alert severity.
type Level uint8

const (
	// LevelWarning indicates a non-fatal condition such as close_notify.
	LevelWarning Level = 1

	// LevelFatal indicates the connection must be torn down.
	LevelFatal Level = 2
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "WARNING"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Description identifies the alert condition.
type Description uint8

// Alert descriptions defined by RFC 8446.
const (
	CloseNotify            Description = 0
	UnexpectedMessage      Description = 10
	BadRecordMAC           Description = 20
	RecordOverflow         Description = 22
	HandshakeFailure       Description = 40
	BadCertificate         Description = 42
	UnsupportedCertificate Description = 43
	CertificateExpired     Description = 45
	CertificateUnknown     Description = 46
	IllegalParameter       Description = 47
	UnknownCA              Description = 48
	DecodeError            Description = 50
	DecryptError           Description = 51
	ProtocolVersion        Description = 70
	InternalError          Description = 80
	UserCanceled           Description = 90
	MissingExtension       Description = 109
	UnsupportedExtension   Description = 110
	UnrecognizedName       Description = 112
	NoApplicationProtocol  Description = 120
)

// String returns the description name.
func (d Description) String() string {
	switch d {
	case CloseNotify:
		return "close_notify"
	case UnexpectedMessage:
		return "unexpected_message"
	case BadRecordMAC:
		return "bad_record_mac"
	case RecordOverflow:
		return "record_overflow"
	case HandshakeFailure:
		return "handshake_failure"
	case BadCertificate:
		return "bad_certificate"
	case UnsupportedCertificate:
		return "unsupported_certificate"
	case CertificateExpired:
		return "certificate_expired"
	case CertificateUnknown:
		return "certificate_unknown"
	case IllegalParameter:
		return "illegal_parameter"
	case UnknownCA:
		return "unknown_ca"
	case DecodeError:
		return "decode_error"
	case DecryptError:
		return "decrypt_error"
	case ProtocolVersion:
		return "protocol_version"
	case InternalError:
		return "internal_error"
	case UserCanceled:
		return "user_canceled"
	case MissingExtension:
		return "missing_extension"
	case UnsupportedExtension:
		return "unsupported_extension"
	case UnrecognizedName:
		return "unrecognized_name"
	case NoApplicationProtocol:
		return "no_application_protocol"
	default:
		return "unknown"
	}
}

// Alert is a protocol-level signal.
type Alert struct {
	Level       Level
	Description Description
}

// New constructs an alert.
func New(level Level, desc Description) Alert {
	return Alert{Level: level, Description: desc}
}

// String returns "level:description".
func (a Alert) String() string {
	return a.Level.String() + ":" + a.Description.String()
}

// Encode appends the two-byte wire form to dst.
func (a Alert) Encode(dst []byte) []byte {
	return append(dst, byte(a.Level), byte(a.Description))
}

// Parse decodes an alert body.
func Parse(body []byte) (Alert, error) {
	if len(body) < Size {
		return Alert{}, ErrTruncated
	}
	return Alert{Level: Level(body[0]), Description: Description(body[1])}, nil
}
