package log

import (
	"time"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the connection (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// RemoteAddr is the peer address (IP:port), when known.
	RemoteAddr string `cbor:"6,keyasint,omitempty"`

	// ServerName is the SNI hostname the connection was opened with.
	ServerName string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Record      *RecordEvent      `cbor:"8,keyasint,omitempty"`  // Record layer
	Handshake   *HandshakeEvent   `cbor:"9,keyasint,omitempty"`  // Handshake layer
	Alert       *AlertEvent       `cbor:"10,keyasint,omitempty"` // Alerts sent or received
	StateChange *StateChangeEvent `cbor:"11,keyasint,omitempty"` // Connection state
	Error       *ErrorEventData   `cbor:"12,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerRecord is the record layer (framing and protection).
	LayerRecord Layer = 0
	// LayerHandshake is the handshake layer (negotiation messages).
	LayerHandshake Layer = 1
	// LayerConnection is the connection driver layer.
	LayerConnection Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerRecord:
		return "RECORD"
	case LayerHandshake:
		return "HANDSHAKE"
	case LayerConnection:
		return "CONNECTION"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryRecord indicates a record crossing the wire.
	CategoryRecord Category = 0
	// CategoryHandshake indicates a handshake message processed.
	CategoryHandshake Category = 1
	// CategoryAlert indicates an alert sent or received.
	CategoryAlert Category = 2
	// CategoryState indicates a state change.
	CategoryState Category = 3
	// CategoryError indicates an error event.
	CategoryError Category = 4
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryRecord:
		return "RECORD"
	case CategoryHandshake:
		return "HANDSHAKE"
	case CategoryAlert:
		return "ALERT"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// RecordEvent captures one record at the record layer.
type RecordEvent struct {
	// ContentType is the record content type byte. For protected records
	// this is the inner type, not the application_data envelope.
	ContentType uint8 `cbor:"1,keyasint"`

	// Length is the record payload length in bytes.
	Length int `cbor:"2,keyasint"`

	// Sequence is the per-direction record sequence number.
	Sequence uint64 `cbor:"3,keyasint"`

	// Encrypted indicates whether the record was AEAD-protected.
	Encrypted bool `cbor:"4,keyasint,omitempty"`
}

// HandshakeEvent captures one handshake message.
type HandshakeEvent struct {
	// Type is the handshake message type byte.
	Type uint8 `cbor:"1,keyasint"`

	// Length is the handshake message body length in bytes.
	Length int `cbor:"2,keyasint"`
}

// AlertEvent captures an alert sent or received.
type AlertEvent struct {
	// Level is the alert level byte.
	Level uint8 `cbor:"1,keyasint"`

	// Description is the alert description byte.
	Description uint8 `cbor:"2,keyasint"`

	// Encrypted indicates whether the alert traveled protected.
	Encrypted bool `cbor:"3,keyasint,omitempty"`
}

// StateChangeEvent captures connection lifecycle events.
type StateChangeEvent struct {
	// OldState is the previous state (may be empty).
	OldState string `cbor:"1,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"2,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"3,keyasint,omitempty"`
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}
