package client

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/tinytls/tinytls-go/pkg/alert"
	"github.com/tinytls/tinytls-go/pkg/keyschedule"
	"github.com/tinytls/tinytls-go/pkg/log"
	"github.com/tinytls/tinytls-go/pkg/record"
	"github.com/tinytls/tinytls-go/pkg/transport"
)

// RecordOverhead is the per-record space reserved out of the record buffer
// for the header, the inner content type, the authentication tag, and slack
// for protected handshake framing. The usable application-data chunk per
// record is the buffer capacity minus this constant.
const RecordOverhead = 128

// Connection errors.
var (
	// ErrMissingHandshake indicates Write or Read was called before Open
	// completed. No transport I/O is performed.
	ErrMissingHandshake = errors.New("handshake not completed")

	// ErrConnectionClosed indicates the peer sent close_notify. Terminal.
	ErrConnectionClosed = errors.New("connection closed by peer")

	// ErrBufferTooSmall indicates a decrypted application-data message does
	// not fit the remaining space in the caller's read buffer.
	ErrBufferTooSmall = errors.New("application data exceeds read buffer")

	// ErrUnexpectedMessage indicates a protocol message that has no valid
	// interpretation in the current state.
	ErrUnexpectedMessage = errors.New("unexpected protocol message")
)

// Context bundles the caller-owned resources a Connection borrows: the
// configuration, the entropy source, and the record buffer. A successful
// Close returns the Context so the resources can back a new Connection.
// While a Connection holds a Context, the caller must not touch the buffer.
type Context struct {
	config *Config
	rand   io.Reader
	buf    []byte
}

// NewContext creates a Context around the caller's record buffer, using
// crypto/rand for entropy. The buffer capacity bounds both the maximum
// write chunk (capacity - RecordOverhead) and the maximum record that can
// be received.
func NewContext(config *Config, buf []byte) *Context {
	return NewContextWithRand(config, buf, rand.Reader)
}

// NewContextWithRand is NewContext with an explicit entropy source.
func NewContextWithRand(config *Config, buf []byte, entropy io.Reader) *Context {
	return &Context{config: config, rand: entropy, buf: buf}
}

// Config returns the configuration the Context carries.
func (c *Context) Config() *Config {
	return c.config
}

// Buffer returns the record buffer. Only valid while no Connection holds
// the Context.
func (c *Context) Buffer() []byte {
	return c.buf
}

// Connection is the blocking TLS 1.3 client driver. It owns the transport
// and the key schedule, and exclusively borrows the Context's record buffer
// until Close hands it back.
//
// A Connection is single-threaded: exactly one operation at a time, one
// logical caller. It is single-use per handshake; after any error or after
// Close it must be discarded.
type Connection struct {
	id        string
	transport transport.Transport
	rand      io.Reader
	config    *Config
	keys      *keyschedule.KeySchedule
	buf       []byte
	queue     record.Queue
	opened    bool
	logger    log.Logger
}

// New creates a Connection from a Context and a transport. No I/O is
// performed and no error is possible; the key schedule starts fresh at the
// early-secret stage.
func New(ctx *Context, t transport.Transport) *Connection {
	cfg := ctx.config
	return &Connection{
		id:        uuid.New().String(),
		transport: t,
		rand:      ctx.rand,
		config:    cfg,
		keys:      keyschedule.New(cfg.suiteOrDefault()),
		buf:       ctx.buf,
		logger:    cfg.logger(),
	}
}

// ID returns the connection's unique identifier, as used in log events.
func (c *Connection) ID() string {
	return c.id
}

// Open drives the handshake to completion. On success the connection is
// ready for Write and Read. On error the connection is unusable and must
// be discarded: the key schedule and buffer contents are unspecified.
func (c *Connection) Open() error {
	hs := newHandshake(c)
	state := stateClientHello

	c.logState("", state.String(), "open")
	for state != stateConnected {
		next, err := hs.process(state)
		if err != nil {
			c.logError(log.LayerHandshake, err, "Open")
			return err
		}
		c.logState(state.String(), next.String(), "")
		state = next
	}

	c.opened = true
	return nil
}

// Write encrypts and transmits p, chunking it into application-data records
// of at most len(buf)-RecordOverhead bytes each. On success it returns
// len(p); there is no short write. On error, chunks already transmitted
// stay transmitted and the byte count reflects them.
func (c *Connection) Write(p []byte) (int, error) {
	if !c.opened {
		return 0, ErrMissingHandshake
	}

	maxChunk := len(c.buf) - RecordOverhead
	if maxChunk <= 0 {
		return 0, fmt.Errorf("%w: record buffer smaller than overhead", record.ErrBufferTooSmall)
	}

	for off := 0; off < len(p); {
		end := off + maxChunk
		if end > len(p) {
			end = len(p)
		}

		n, err := record.Encode(c.buf, c.keys, record.ContentTypeApplicationData, p[off:end])
		if err != nil {
			return off, err
		}
		if err := c.transport.Write(c.buf[:n]); err != nil {
			return off, fmt.Errorf("write record: %w", err)
		}
		c.logRecord(log.DirectionOut, record.ContentTypeApplicationData, end-off, c.keys.WriteSequence(), true)
		c.keys.IncrementWriteCounter()
		off = end
	}
	return len(p), nil
}

// Read copies decrypted application data into p and returns the number of
// bytes copied. It decodes exactly one wire record per transport round and
// keeps reading only while nothing has been copied yet; once data has been
// copied it returns without touching the transport again.
//
// Handshake messages received here (NewSessionTicket, KeyUpdate) are
// consumed silently. close_notify returns ErrConnectionClosed; any other
// alert, a ChangeCipherSpec, or an unknown message kind returns
// ErrUnexpectedMessage.
func (c *Connection) Read(p []byte) (int, error) {
	if !c.opened {
		return 0, ErrMissingHandshake
	}

	copied := 0
	for copied == 0 {
		raw, err := record.DecodeBlocking(c.transport, c.buf)
		if err != nil {
			return 0, err
		}
		c.queue.Reset()
		if err := record.Decrypt(c.keys, &c.queue, raw); err != nil {
			c.logError(log.LayerRecord, err, "Read")
			return 0, err
		}

		for {
			m, ok := c.queue.Pop()
			if !ok {
				break
			}
			switch m.Type {
			case record.ContentTypeApplicationData:
				if len(m.Payload) > len(p)-copied {
					return copied, fmt.Errorf("%w: %d bytes into %d remaining",
						ErrBufferTooSmall, len(m.Payload), len(p)-copied)
				}
				copy(p[copied:], m.Payload)
				copied += len(m.Payload)
				c.logRecord(log.DirectionIn, record.ContentTypeApplicationData, len(m.Payload), c.keys.ReadSequence(), true)

			case record.ContentTypeAlert:
				c.logAlert(log.DirectionIn, m.Alert, true)
				if m.Alert.Description == alert.CloseNotify {
					return copied, ErrConnectionClosed
				}
				return copied, fmt.Errorf("%w: alert %s", ErrUnexpectedMessage, m.Alert)

			case record.ContentTypeHandshake:
				// Post-handshake messages carry nothing this driver acts
				// on. Tickets are discarded: no resumption.

			default:
				return copied, fmt.Errorf("%w: %s record after handshake", ErrUnexpectedMessage, m.Type)
			}
		}
	}
	return copied, nil
}

// Close consumes the Connection: it sends a close_notify alert, encrypted
// iff the handshake completed, and on success returns the Context and the
// transport for reuse. On failure nothing is returned; the resources go
// down with the Connection.
func (c *Connection) Close() (*Context, transport.Transport, error) {
	a := alert.New(alert.LevelWarning, alert.CloseNotify)
	encrypted := c.opened

	n, err := record.EncodeAlert(c.buf, c.keys, a, encrypted)
	if err != nil {
		return nil, nil, err
	}
	if err := c.transport.Write(c.buf[:n]); err != nil {
		return nil, nil, fmt.Errorf("write close_notify: %w", err)
	}
	c.keys.IncrementWriteCounter()
	c.logAlert(log.DirectionOut, a, encrypted)
	c.logState("open", "closed", "close_notify sent")

	ctx := &Context{config: c.config, rand: c.rand, buf: c.buf}
	t := c.transport
	c.transport = nil
	c.buf = nil
	c.opened = false
	return ctx, t, nil
}

func (c *Connection) event(layer log.Layer, cat log.Category, dir log.Direction) log.Event {
	return log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Direction:    dir,
		Layer:        layer,
		Category:     cat,
		ServerName:   c.config.ServerName,
	}
}

func (c *Connection) logRecord(dir log.Direction, typ record.ContentType, length int, seq uint64, encrypted bool) {
	e := c.event(log.LayerRecord, log.CategoryRecord, dir)
	e.Record = &log.RecordEvent{
		ContentType: uint8(typ),
		Length:      length,
		Sequence:    seq,
		Encrypted:   encrypted,
	}
	c.logger.Log(e)
}

func (c *Connection) logHandshakeMsg(dir log.Direction, typ record.HandshakeType, length int) {
	e := c.event(log.LayerHandshake, log.CategoryHandshake, dir)
	e.Handshake = &log.HandshakeEvent{Type: uint8(typ), Length: length}
	c.logger.Log(e)
}

func (c *Connection) logAlert(dir log.Direction, a alert.Alert, encrypted bool) {
	e := c.event(log.LayerConnection, log.CategoryAlert, dir)
	e.Alert = &log.AlertEvent{
		Level:       uint8(a.Level),
		Description: uint8(a.Description),
		Encrypted:   encrypted,
	}
	c.logger.Log(e)
}

func (c *Connection) logState(oldState, newState, reason string) {
	e := c.event(log.LayerConnection, log.CategoryState, log.DirectionOut)
	e.StateChange = &log.StateChangeEvent{OldState: oldState, NewState: newState, Reason: reason}
	c.logger.Log(e)
}

func (c *Connection) logError(layer log.Layer, err error, context string) {
	e := c.event(layer, log.CategoryError, log.DirectionIn)
	e.Error = &log.ErrorEventData{Layer: layer, Message: err.Error(), Context: context}
	c.logger.Log(e)
}
