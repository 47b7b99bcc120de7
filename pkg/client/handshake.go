package client

import (
	"crypto/hmac"
	"crypto/x509"
	"fmt"
	"hash"
	"io"
	"time"

	"golang.org/x/crypto/curve25519"

	"github.com/tinytls/tinytls-go/pkg/log"
	"github.com/tinytls/tinytls-go/pkg/record"
	"github.com/tinytls/tinytls-go/pkg/suite"
)

// handshakeState is one state of the client handshake machine. Open drives
// process from stateClientHello to stateConnected.
type handshakeState uint8

const (
	// stateClientHello sends the ClientHello.
	stateClientHello handshakeState = iota

	// stateServerHello awaits the ServerHello and derives handshake keys.
	stateServerHello

	// stateServerVerify consumes the encrypted server flight through
	// Finished and derives application secrets.
	stateServerVerify

	// stateClientFinished sends the client Finished and installs
	// application write keys.
	stateClientFinished

	// stateConnected is the terminal state: application data may flow.
	stateConnected
)

// String returns a human-readable state name.
func (s handshakeState) String() string {
	switch s {
	case stateClientHello:
		return "CLIENT_HELLO"
	case stateServerHello:
		return "SERVER_HELLO"
	case stateServerVerify:
		return "SERVER_VERIFY"
	case stateClientFinished:
		return "CLIENT_FINISHED"
	case stateConnected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}

// handshake carries the working state of one handshake: the transcript, the
// ephemeral key share, and the traffic secrets as they are derived.
type handshake struct {
	conn       *Connection
	suite      *suite.Suite
	transcript hash.Hash

	keyPriv [32]byte

	clientHsSecret  []byte
	serverHsSecret  []byte
	clientAppSecret []byte
}

func newHandshake(c *Connection) *handshake {
	s := c.config.suiteOrDefault()
	return &handshake{
		conn:       c,
		suite:      s,
		transcript: s.Hash(),
	}
}

// process runs one state transition and returns the next state.
func (hs *handshake) process(state handshakeState) (handshakeState, error) {
	switch state {
	case stateClientHello:
		return hs.sendClientHello()
	case stateServerHello:
		return hs.readServerHello()
	case stateServerVerify:
		return hs.readServerFlight()
	case stateClientFinished:
		return hs.sendFinished()
	default:
		return state, fmt.Errorf("%w: no transition from state %s", ErrUnexpectedMessage, state)
	}
}

// writeHandshakeRecord stages msg in the shared buffer, transmits it, and
// advances the write counter. Protection follows the installed write keys.
func (hs *handshake) writeHandshakeRecord(msg []byte) error {
	c := hs.conn
	n, err := record.Encode(c.buf, c.keys, record.ContentTypeHandshake, msg)
	if err != nil {
		return err
	}
	if err := c.transport.Write(c.buf[:n]); err != nil {
		return fmt.Errorf("write handshake record: %w", err)
	}
	c.keys.IncrementWriteCounter()
	return nil
}

// nextMessage returns the next handshake message, decoding records from the
// transport as needed. ChangeCipherSpec records are a middlebox
// compatibility artifact and are skipped. Alerts and anything else abort.
//
// The returned payload aliases the shared record buffer and is valid only
// until the next nextMessage or record encode.
func (hs *handshake) nextMessage() (record.Message, error) {
	c := hs.conn
	for {
		if m, ok := c.queue.Pop(); ok {
			switch m.Type {
			case record.ContentTypeChangeCipherSpec:
				continue
			case record.ContentTypeAlert:
				return m, fmt.Errorf("%w: alert %s during handshake", ErrUnexpectedMessage, m.Alert)
			case record.ContentTypeHandshake:
				c.logHandshakeMsg(log.DirectionIn, m.Handshake, len(m.Payload))
				return m, nil
			default:
				return m, fmt.Errorf("%w: %s record during handshake", ErrUnexpectedMessage, m.Type)
			}
		}

		raw, err := record.DecodeBlocking(c.transport, c.buf)
		if err != nil {
			return record.Message{}, err
		}
		if err := record.Decrypt(c.keys, &c.queue, raw); err != nil {
			return record.Message{}, err
		}
	}
}

// addToTranscript feeds a received handshake message, header included, into
// the transcript hash.
func (hs *handshake) addToTranscript(m record.Message) {
	l := len(m.Payload)
	hdr := [4]byte{byte(m.Handshake), byte(l >> 16), byte(l >> 8), byte(l)}
	hs.transcript.Write(hdr[:])
	hs.transcript.Write(m.Payload)
}

func (hs *handshake) sendClientHello() (handshakeState, error) {
	c := hs.conn

	var random, sessionID [32]byte
	if _, err := io.ReadFull(c.rand, random[:]); err != nil {
		return stateClientHello, fmt.Errorf("read entropy: %w", err)
	}
	if _, err := io.ReadFull(c.rand, sessionID[:]); err != nil {
		return stateClientHello, fmt.Errorf("read entropy: %w", err)
	}
	if _, err := io.ReadFull(c.rand, hs.keyPriv[:]); err != nil {
		return stateClientHello, fmt.Errorf("read entropy: %w", err)
	}

	pub, err := curve25519.X25519(hs.keyPriv[:], curve25519.Basepoint)
	if err != nil {
		return stateClientHello, fmt.Errorf("key share: %w", err)
	}

	msg, err := buildClientHello(clientHelloParams{
		random:     random,
		sessionID:  sessionID,
		suiteID:    hs.suite.ID,
		serverName: c.config.ServerName,
		keyShare:   pub,
	})
	if err != nil {
		return stateClientHello, err
	}

	hs.transcript.Write(msg)
	if err := hs.writeHandshakeRecord(msg); err != nil {
		return stateClientHello, err
	}
	c.logHandshakeMsg(log.DirectionOut, record.HandshakeTypeClientHello, len(msg)-4)

	return stateServerHello, nil
}

func (hs *handshake) readServerHello() (handshakeState, error) {
	c := hs.conn

	m, err := hs.nextMessage()
	if err != nil {
		return stateServerHello, err
	}
	if m.Handshake != record.HandshakeTypeServerHello {
		return stateServerHello, fmt.Errorf("%w: %s, want SERVER_HELLO", ErrUnexpectedMessage, m.Handshake)
	}

	sh, err := parseServerHello(m.Payload)
	if err != nil {
		return stateServerHello, err
	}
	if sh.isHelloRetryRequest {
		return stateServerHello, fmt.Errorf("%w: HelloRetryRequest not supported", ErrUnexpectedMessage)
	}
	if sh.selectedVersion != versionTLS13 {
		return stateServerHello, fmt.Errorf("%w: server selected version %#04x", ErrUnexpectedMessage, sh.selectedVersion)
	}
	if sh.suiteID != hs.suite.ID {
		return stateServerHello, fmt.Errorf("%w: server selected suite %#04x, offered %#04x",
			ErrUnexpectedMessage, sh.suiteID, hs.suite.ID)
	}
	hs.addToTranscript(m)

	shared, err := curve25519.X25519(hs.keyPriv[:], sh.keyShare)
	if err != nil {
		return stateServerHello, fmt.Errorf("key exchange: %w", err)
	}

	clientHS, serverHS, err := c.keys.DeriveHandshakeSecrets(shared, hs.transcript.Sum(nil))
	if err != nil {
		return stateServerHello, err
	}
	if err := c.keys.SetReadSecret(serverHS); err != nil {
		return stateServerHello, err
	}
	if err := c.keys.SetWriteSecret(clientHS); err != nil {
		return stateServerHello, err
	}
	hs.clientHsSecret = clientHS
	hs.serverHsSecret = serverHS

	return stateServerVerify, nil
}

func (hs *handshake) readServerFlight() (handshakeState, error) {
	c := hs.conn

	// EncryptedExtensions
	m, err := hs.nextMessage()
	if err != nil {
		return stateServerVerify, err
	}
	if m.Handshake != record.HandshakeTypeEncryptedExtensions {
		return stateServerVerify, fmt.Errorf("%w: %s, want ENCRYPTED_EXTENSIONS", ErrUnexpectedMessage, m.Handshake)
	}
	if err := parseEncryptedExtensions(m.Payload); err != nil {
		return stateServerVerify, err
	}
	hs.addToTranscript(m)

	// Certificate
	m, err = hs.nextMessage()
	if err != nil {
		return stateServerVerify, err
	}
	if m.Handshake == record.HandshakeTypeCertificateRequest {
		return stateServerVerify, fmt.Errorf("%w: client authentication not supported", ErrUnexpectedMessage)
	}
	if m.Handshake != record.HandshakeTypeCertificate {
		return stateServerVerify, fmt.Errorf("%w: %s, want CERTIFICATE", ErrUnexpectedMessage, m.Handshake)
	}
	rawCerts, err := parseCertificate(m.Payload)
	if err != nil {
		return stateServerVerify, err
	}
	hs.addToTranscript(m)

	leaf, err := hs.checkCertificate(rawCerts)
	if err != nil {
		return stateServerVerify, err
	}

	// CertificateVerify binds the certificate to the transcript so far.
	certTranscript := hs.transcript.Sum(nil)
	m, err = hs.nextMessage()
	if err != nil {
		return stateServerVerify, err
	}
	if m.Handshake != record.HandshakeTypeCertificateVerify {
		return stateServerVerify, fmt.Errorf("%w: %s, want CERTIFICATE_VERIFY", ErrUnexpectedMessage, m.Handshake)
	}
	scheme, sig, err := parseCertificateVerify(m.Payload)
	if err != nil {
		return stateServerVerify, err
	}
	if err := verifyHandshakeSignature(scheme, leaf.PublicKey, certTranscript, sig); err != nil {
		return stateServerVerify, err
	}
	hs.addToTranscript(m)

	// Finished
	expected, err := c.keys.FinishedVerifyData(hs.serverHsSecret, hs.transcript.Sum(nil))
	if err != nil {
		return stateServerVerify, err
	}
	m, err = hs.nextMessage()
	if err != nil {
		return stateServerVerify, err
	}
	if m.Handshake != record.HandshakeTypeFinished {
		return stateServerVerify, fmt.Errorf("%w: %s, want FINISHED", ErrUnexpectedMessage, m.Handshake)
	}
	if !hmac.Equal(m.Payload, expected) {
		return stateServerVerify, fmt.Errorf("%w: server Finished verification failed", ErrUnexpectedMessage)
	}
	hs.addToTranscript(m)

	// Application secrets are bound to the transcript through the server
	// Finished. The server switches its write keys here; ours switch after
	// our own Finished goes out.
	clientApp, serverApp, err := c.keys.DeriveApplicationSecrets(hs.transcript.Sum(nil))
	if err != nil {
		return stateServerVerify, err
	}
	if err := c.keys.SetReadSecret(serverApp); err != nil {
		return stateServerVerify, err
	}
	hs.clientAppSecret = clientApp

	return stateClientFinished, nil
}

func (hs *handshake) sendFinished() (handshakeState, error) {
	c := hs.conn

	verifyData, err := c.keys.FinishedVerifyData(hs.clientHsSecret, hs.transcript.Sum(nil))
	if err != nil {
		return stateClientFinished, err
	}

	msg := buildFinished(verifyData)
	hs.transcript.Write(msg)
	if err := hs.writeHandshakeRecord(msg); err != nil {
		return stateClientFinished, err
	}
	c.logHandshakeMsg(log.DirectionOut, record.HandshakeTypeFinished, len(msg)-4)

	if err := c.keys.SetWriteSecret(hs.clientAppSecret); err != nil {
		return stateClientFinished, err
	}

	return stateConnected, nil
}

// checkCertificate applies the configured certificate policy to the chain
// the server presented and returns the parsed leaf. The CertificateVerify
// signature is checked separately; this covers identity and caller policy.
func (hs *handshake) checkCertificate(rawCerts [][]byte) (*x509.Certificate, error) {
	if len(rawCerts) == 0 {
		return nil, fmt.Errorf("%w: server sent no certificate", ErrUnexpectedMessage)
	}
	leaf, err := x509.ParseCertificate(rawCerts[0])
	if err != nil {
		return nil, fmt.Errorf("parse server certificate: %w", err)
	}

	cfg := hs.conn.config
	if !cfg.InsecureSkipVerify {
		now := time.Now()
		if now.Before(leaf.NotBefore) || now.After(leaf.NotAfter) {
			return nil, fmt.Errorf("server certificate expired or not yet valid")
		}
		if err := leaf.VerifyHostname(cfg.ServerName); err != nil {
			return nil, fmt.Errorf("verify server name: %w", err)
		}
	}
	if cfg.VerifyPeerCertificate != nil {
		if err := cfg.VerifyPeerCertificate(rawCerts); err != nil {
			return nil, fmt.Errorf("peer certificate rejected: %w", err)
		}
	}
	return leaf, nil
}
