package client

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"hash"
	"math/big"
	"time"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/curve25519"

	"github.com/tinytls/tinytls-go/pkg/alert"
	"github.com/tinytls/tinytls-go/pkg/keyschedule"
	"github.com/tinytls/tinytls-go/pkg/record"
	"github.com/tinytls/tinytls-go/pkg/suite"
	"github.com/tinytls/tinytls-go/pkg/transport"
)

// testServer is a minimal TLS 1.3 server built from the same record and key
// schedule primitives as the client, used as the loopback peer in handshake
// tests. It supports exactly one connection: X25519, no HelloRetryRequest,
// no client auth, ECDSA P-256 certificate.
type testServer struct {
	transport transport.Transport
	suite     *suite.Suite
	keys      *keyschedule.KeySchedule
	transcript hash.Hash
	buf       []byte
	queue     record.Queue

	certDER []byte
	certKey *ecdsa.PrivateKey

	clientHsSecret  []byte
	clientAppSecret []byte

	// sendMidHandshakeCCS injects a plaintext ChangeCipherSpec record
	// after ServerHello, which the client must skip.
	sendMidHandshakeCCS bool

	// ticketsBeforeEcho is how many NewSessionTicket messages to send
	// before echoing application data.
	ticketsBeforeEcho int
}

// newTestServerCert generates a self-signed ECDSA P-256 certificate for the
// given hostname.
func newTestServerCert(hostname string) ([]byte, *ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: hostname},
		DNSNames:     []string{hostname},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, err
	}
	return der, key, nil
}

func newTestServer(tr transport.Transport, s *suite.Suite, hostname string) (*testServer, error) {
	der, key, err := newTestServerCert(hostname)
	if err != nil {
		return nil, err
	}
	return &testServer{
		transport:  tr,
		suite:      s,
		keys:       keyschedule.New(s),
		transcript: s.Hash(),
		buf:        make([]byte, 4096),
		certDER:    der,
		certKey:    key,
	}, nil
}

func (s *testServer) writeRecord(typ record.ContentType, payload []byte) error {
	n, err := record.Encode(s.buf, s.keys, typ, payload)
	if err != nil {
		return err
	}
	if err := s.transport.Write(s.buf[:n]); err != nil {
		return err
	}
	s.keys.IncrementWriteCounter()
	return nil
}

// sendHandshake adds msg to the transcript and transmits it in one record.
func (s *testServer) sendHandshake(msg []byte) error {
	s.transcript.Write(msg)
	return s.writeRecord(record.ContentTypeHandshake, msg)
}

func (s *testServer) nextMessage() (record.Message, error) {
	for {
		if m, ok := s.queue.Pop(); ok {
			if m.Type == record.ContentTypeChangeCipherSpec {
				continue
			}
			return m, nil
		}
		raw, err := record.DecodeBlocking(s.transport, s.buf)
		if err != nil {
			return record.Message{}, err
		}
		if err := record.Decrypt(s.keys, &s.queue, raw); err != nil {
			return record.Message{}, err
		}
	}
}

func (s *testServer) addToTranscript(m record.Message) {
	l := len(m.Payload)
	hdr := [4]byte{byte(m.Handshake), byte(l >> 16), byte(l >> 8), byte(l)}
	s.transcript.Write(hdr[:])
	s.transcript.Write(m.Payload)
}

// parseClientHelloKeyShare extracts the session ID and the X25519 key share
// from a ClientHello body.
func parseClientHelloKeyShare(body []byte) (sessionID, keyShare []byte, err error) {
	str := cryptobyte.String(body)

	var random []byte
	var sid, suites, comp, exts cryptobyte.String
	if !str.ReadUint16(new(uint16)) ||
		!str.ReadBytes(&random, 32) ||
		!str.ReadUint8LengthPrefixed(&sid) ||
		!str.ReadUint16LengthPrefixed(&suites) ||
		!str.ReadUint8LengthPrefixed(&comp) ||
		!str.ReadUint16LengthPrefixed(&exts) {
		return nil, nil, errors.New("malformed ClientHello")
	}
	sessionID = append([]byte(nil), sid...)

	for !exts.Empty() {
		var extType uint16
		var extData cryptobyte.String
		if !exts.ReadUint16(&extType) || !exts.ReadUint16LengthPrefixed(&extData) {
			return nil, nil, errors.New("malformed ClientHello extensions")
		}
		if extType != extKeyShare {
			continue
		}
		var shares cryptobyte.String
		if !extData.ReadUint16LengthPrefixed(&shares) {
			return nil, nil, errors.New("malformed key_share")
		}
		for !shares.Empty() {
			var group uint16
			var share cryptobyte.String
			if !shares.ReadUint16(&group) || !shares.ReadUint16LengthPrefixed(&share) {
				return nil, nil, errors.New("malformed key_share entry")
			}
			if group == groupX25519 {
				keyShare = append([]byte(nil), share...)
			}
		}
	}
	if keyShare == nil {
		return nil, nil, errors.New("ClientHello without x25519 key share")
	}
	return sessionID, keyShare, nil
}

func buildTestServerHello(random [32]byte, sessionID []byte, suiteID uint16, keyShare []byte) ([]byte, error) {
	var b cryptobyte.Builder
	b.AddUint8(uint8(record.HandshakeTypeServerHello))
	b.AddUint24LengthPrefixed(func(body *cryptobyte.Builder) {
		body.AddUint16(versionTLS12)
		body.AddBytes(random[:])
		body.AddUint8LengthPrefixed(func(sid *cryptobyte.Builder) {
			sid.AddBytes(sessionID)
		})
		body.AddUint16(suiteID)
		body.AddUint8(0) // null compression
		body.AddUint16LengthPrefixed(func(exts *cryptobyte.Builder) {
			exts.AddUint16(extSupportedVersions)
			exts.AddUint16LengthPrefixed(func(ext *cryptobyte.Builder) {
				ext.AddUint16(versionTLS13)
			})
			exts.AddUint16(extKeyShare)
			exts.AddUint16LengthPrefixed(func(ext *cryptobyte.Builder) {
				ext.AddUint16(groupX25519)
				ext.AddUint16LengthPrefixed(func(share *cryptobyte.Builder) {
					share.AddBytes(keyShare)
				})
			})
		})
	})
	return b.Bytes()
}

func buildTestCertificate(certDER []byte) ([]byte, error) {
	var b cryptobyte.Builder
	b.AddUint8(uint8(record.HandshakeTypeCertificate))
	b.AddUint24LengthPrefixed(func(body *cryptobyte.Builder) {
		body.AddUint8LengthPrefixed(func(*cryptobyte.Builder) {}) // empty context
		body.AddUint24LengthPrefixed(func(list *cryptobyte.Builder) {
			list.AddUint24LengthPrefixed(func(cert *cryptobyte.Builder) {
				cert.AddBytes(certDER)
			})
			list.AddUint16LengthPrefixed(func(*cryptobyte.Builder) {}) // no extensions
		})
	})
	return b.Bytes()
}

func buildTestCertificateVerify(sig []byte) ([]byte, error) {
	var b cryptobyte.Builder
	b.AddUint8(uint8(record.HandshakeTypeCertificateVerify))
	b.AddUint24LengthPrefixed(func(body *cryptobyte.Builder) {
		body.AddUint16(schemeECDSAP256SHA256)
		body.AddUint16LengthPrefixed(func(s *cryptobyte.Builder) {
			s.AddBytes(sig)
		})
	})
	return b.Bytes()
}

func buildTestHandshake(typ record.HandshakeType, body []byte) []byte {
	l := len(body)
	msg := make([]byte, 0, 4+l)
	msg = append(msg, byte(typ), byte(l>>16), byte(l>>8), byte(l))
	return append(msg, body...)
}

// handshake runs the server side of one full handshake.
func (s *testServer) handshake() error {
	// ClientHello
	m, err := s.nextMessage()
	if err != nil {
		return err
	}
	if m.Handshake != record.HandshakeTypeClientHello {
		return fmt.Errorf("expected ClientHello, got %s", m.Handshake)
	}
	sessionID, clientShare, err := parseClientHelloKeyShare(m.Payload)
	if err != nil {
		return err
	}
	s.addToTranscript(m)

	// ServerHello
	var priv [32]byte
	if _, err := rand.Read(priv[:]); err != nil {
		return err
	}
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return err
	}
	var random [32]byte
	if _, err := rand.Read(random[:]); err != nil {
		return err
	}
	sh, err := buildTestServerHello(random, sessionID, s.suite.ID, pub)
	if err != nil {
		return err
	}
	if err := s.sendHandshake(sh); err != nil {
		return err
	}

	if s.sendMidHandshakeCCS {
		if err := s.writeRecord(record.ContentTypeChangeCipherSpec, []byte{1}); err != nil {
			return err
		}
	}

	// Handshake secrets
	shared, err := curve25519.X25519(priv[:], clientShare)
	if err != nil {
		return err
	}
	clientHS, serverHS, err := s.keys.DeriveHandshakeSecrets(shared, s.transcript.Sum(nil))
	if err != nil {
		return err
	}
	if err := s.keys.SetWriteSecret(serverHS); err != nil {
		return err
	}
	if err := s.keys.SetReadSecret(clientHS); err != nil {
		return err
	}
	s.clientHsSecret = clientHS

	// EncryptedExtensions and Certificate coalesced into one record, so
	// the client's message splitting gets exercised.
	ee := buildTestHandshake(record.HandshakeTypeEncryptedExtensions, []byte{0, 0})
	cert, err := buildTestCertificate(s.certDER)
	if err != nil {
		return err
	}
	s.transcript.Write(ee)
	s.transcript.Write(cert)
	if err := s.writeRecord(record.ContentTypeHandshake, append(append([]byte(nil), ee...), cert...)); err != nil {
		return err
	}

	// CertificateVerify
	digest := sha256.Sum256(signedCertVerifyContent(s.transcript.Sum(nil)))
	sig, err := ecdsa.SignASN1(rand.Reader, s.certKey, digest[:])
	if err != nil {
		return err
	}
	cv, err := buildTestCertificateVerify(sig)
	if err != nil {
		return err
	}
	if err := s.sendHandshake(cv); err != nil {
		return err
	}

	// Finished
	verifyData, err := s.keys.FinishedVerifyData(serverHS, s.transcript.Sum(nil))
	if err != nil {
		return err
	}
	if err := s.sendHandshake(buildTestHandshake(record.HandshakeTypeFinished, verifyData)); err != nil {
		return err
	}

	// Application secrets; server writes switch immediately, reads stay on
	// handshake keys until the client Finished arrives.
	handshakeTranscript := s.transcript.Sum(nil)
	clientApp, serverApp, err := s.keys.DeriveApplicationSecrets(handshakeTranscript)
	if err != nil {
		return err
	}
	s.clientAppSecret = clientApp
	if err := s.keys.SetWriteSecret(serverApp); err != nil {
		return err
	}

	// Client Finished
	m, err = s.nextMessage()
	if err != nil {
		return err
	}
	if m.Handshake != record.HandshakeTypeFinished {
		return fmt.Errorf("expected client Finished, got %s", m.Handshake)
	}
	expected, err := s.keys.FinishedVerifyData(s.clientHsSecret, handshakeTranscript)
	if err != nil {
		return err
	}
	if !hmac.Equal(m.Payload, expected) {
		return errors.New("client Finished verification failed")
	}
	return s.keys.SetReadSecret(clientApp)
}

// serve runs the handshake and then echoes application data back to the
// client until it reads close_notify or the transport fails. Tickets, if
// configured, are sent before the first echo.
func (s *testServer) serve() error {
	if err := s.handshake(); err != nil {
		return err
	}

	for i := 0; i < s.ticketsBeforeEcho; i++ {
		// A minimal NewSessionTicket: lifetime, age_add, nonce, ticket,
		// extensions. The client is expected to discard it.
		body := []byte{
			0, 0, 0x0e, 0x10, // ticket_lifetime
			0, 0, 0, 0, // ticket_age_add
			1, 0xab, // nonce
			0, 4, 0xde, 0xad, 0xbe, 0xef, // ticket
			0, 0, // extensions
		}
		msg := buildTestHandshake(record.HandshakeTypeNewSessionTicket, body)
		if err := s.writeRecord(record.ContentTypeHandshake, msg); err != nil {
			return err
		}
	}

	for {
		m, err := s.nextMessage()
		if err != nil {
			return err
		}
		switch m.Type {
		case record.ContentTypeApplicationData:
			echo := append([]byte(nil), m.Payload...)
			if err := s.writeRecord(record.ContentTypeApplicationData, echo); err != nil {
				return err
			}
		case record.ContentTypeAlert:
			if m.Alert.Description == alert.CloseNotify {
				return nil
			}
			return fmt.Errorf("unexpected alert: %s", m.Alert)
		default:
			return fmt.Errorf("unexpected %s record", m.Type)
		}
	}
}
