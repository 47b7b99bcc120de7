package client

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"

	"golang.org/x/crypto/cryptobyte"

	"github.com/tinytls/tinytls-go/pkg/record"
)

// Protocol version constants.
const (
	versionTLS12 = 0x0303 // legacy_version on the wire
	versionTLS13 = 0x0304 // negotiated via supported_versions
)

// Extension codes used by the client (RFC 8446 section 4.2).
const (
	extServerName        = 0
	extSupportedGroups   = 10
	extSignatureAlgs     = 13
	extSupportedVersions = 43
	extKeyShare          = 51
)

// groupX25519 is the only key exchange group offered.
const groupX25519 = 0x001d

// Signature schemes accepted in CertificateVerify.
const (
	schemeECDSAP256SHA256 = 0x0403
	schemeECDSAP384SHA384 = 0x0503
	schemeRSAPSSSHA256    = 0x0804
	schemeRSAPSSSHA384    = 0x0805
	schemeEd25519         = 0x0807
)

// helloRetryRequestRandom is the fixed ServerHello.random value that marks a
// HelloRetryRequest (RFC 8446 section 4.1.3).
var helloRetryRequestRandom = []byte{
	0xcf, 0x21, 0xad, 0x74, 0xe5, 0x9a, 0x61, 0x11,
	0xbe, 0x1d, 0x8c, 0x02, 0x1e, 0x65, 0xb8, 0x91,
	0xc2, 0xa2, 0x11, 0x16, 0x7a, 0xbb, 0x8c, 0x5e,
	0x07, 0x9e, 0x09, 0xe2, 0xc8, 0xa8, 0x33, 0x9c,
}

type clientHelloParams struct {
	random     [32]byte
	sessionID  [32]byte
	suiteID    uint16
	serverName string
	keyShare   []byte
}

// buildClientHello serializes a complete ClientHello handshake message,
// four-byte message header included.
func buildClientHello(p clientHelloParams) ([]byte, error) {
	var b cryptobyte.Builder
	b.AddUint8(uint8(record.HandshakeTypeClientHello))
	b.AddUint24LengthPrefixed(func(body *cryptobyte.Builder) {
		body.AddUint16(versionTLS12)
		body.AddBytes(p.random[:])
		body.AddUint8LengthPrefixed(func(sid *cryptobyte.Builder) {
			sid.AddBytes(p.sessionID[:])
		})
		body.AddUint16LengthPrefixed(func(suites *cryptobyte.Builder) {
			suites.AddUint16(p.suiteID)
		})
		body.AddUint8LengthPrefixed(func(comp *cryptobyte.Builder) {
			comp.AddUint8(0) // null compression
		})
		body.AddUint16LengthPrefixed(func(exts *cryptobyte.Builder) {
			if p.serverName != "" {
				exts.AddUint16(extServerName)
				exts.AddUint16LengthPrefixed(func(ext *cryptobyte.Builder) {
					ext.AddUint16LengthPrefixed(func(list *cryptobyte.Builder) {
						list.AddUint8(0) // host_name
						list.AddUint16LengthPrefixed(func(name *cryptobyte.Builder) {
							name.AddBytes([]byte(p.serverName))
						})
					})
				})
			}

			exts.AddUint16(extSupportedGroups)
			exts.AddUint16LengthPrefixed(func(ext *cryptobyte.Builder) {
				ext.AddUint16LengthPrefixed(func(groups *cryptobyte.Builder) {
					groups.AddUint16(groupX25519)
				})
			})

			exts.AddUint16(extSignatureAlgs)
			exts.AddUint16LengthPrefixed(func(ext *cryptobyte.Builder) {
				ext.AddUint16LengthPrefixed(func(algs *cryptobyte.Builder) {
					algs.AddUint16(schemeECDSAP256SHA256)
					algs.AddUint16(schemeECDSAP384SHA384)
					algs.AddUint16(schemeRSAPSSSHA256)
					algs.AddUint16(schemeRSAPSSSHA384)
					algs.AddUint16(schemeEd25519)
				})
			})

			exts.AddUint16(extSupportedVersions)
			exts.AddUint16LengthPrefixed(func(ext *cryptobyte.Builder) {
				ext.AddUint8LengthPrefixed(func(versions *cryptobyte.Builder) {
					versions.AddUint16(versionTLS13)
				})
			})

			exts.AddUint16(extKeyShare)
			exts.AddUint16LengthPrefixed(func(ext *cryptobyte.Builder) {
				ext.AddUint16LengthPrefixed(func(shares *cryptobyte.Builder) {
					shares.AddUint16(groupX25519)
					shares.AddUint16LengthPrefixed(func(share *cryptobyte.Builder) {
						share.AddBytes(p.keyShare)
					})
				})
			})
		})
	})
	return b.Bytes()
}

// buildFinished serializes a Finished handshake message carrying verifyData.
func buildFinished(verifyData []byte) []byte {
	l := len(verifyData)
	msg := make([]byte, 0, 4+l)
	msg = append(msg, byte(record.HandshakeTypeFinished), byte(l>>16), byte(l>>8), byte(l))
	return append(msg, verifyData...)
}

type serverHello struct {
	suiteID             uint16
	selectedVersion     uint16
	keyShare            []byte
	isHelloRetryRequest bool
}

// parseServerHello parses a ServerHello body (message header already
// stripped). The key share bytes are copied out of the shared buffer.
func parseServerHello(body []byte) (serverHello, error) {
	var sh serverHello
	s := cryptobyte.String(body)

	var legacyVersion uint16
	var random []byte
	if !s.ReadUint16(&legacyVersion) || !s.ReadBytes(&random, 32) {
		return sh, fmt.Errorf("%w: ServerHello header", record.ErrDecode)
	}
	sh.isHelloRetryRequest = bytes.Equal(random, helloRetryRequestRandom)

	var sessionID cryptobyte.String
	var compression uint8
	if !s.ReadUint8LengthPrefixed(&sessionID) ||
		!s.ReadUint16(&sh.suiteID) ||
		!s.ReadUint8(&compression) {
		return sh, fmt.Errorf("%w: ServerHello body", record.ErrDecode)
	}

	var exts cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&exts) || !s.Empty() {
		return sh, fmt.Errorf("%w: ServerHello extensions", record.ErrDecode)
	}

	for !exts.Empty() {
		var extType uint16
		var extData cryptobyte.String
		if !exts.ReadUint16(&extType) || !exts.ReadUint16LengthPrefixed(&extData) {
			return sh, fmt.Errorf("%w: ServerHello extension framing", record.ErrDecode)
		}
		switch extType {
		case extSupportedVersions:
			if !extData.ReadUint16(&sh.selectedVersion) {
				return sh, fmt.Errorf("%w: supported_versions extension", record.ErrDecode)
			}
		case extKeyShare:
			var group uint16
			var share cryptobyte.String
			if !extData.ReadUint16(&group) || !extData.ReadUint16LengthPrefixed(&share) {
				return sh, fmt.Errorf("%w: key_share extension", record.ErrDecode)
			}
			if group != groupX25519 {
				return sh, fmt.Errorf("%w: server key share group %#04x", ErrUnexpectedMessage, group)
			}
			sh.keyShare = append([]byte(nil), share...)
		}
	}

	if !sh.isHelloRetryRequest && len(sh.keyShare) == 0 {
		return sh, fmt.Errorf("%w: ServerHello without key share", record.ErrDecode)
	}
	return sh, nil
}

// parseEncryptedExtensions validates the framing of an EncryptedExtensions
// body. The extensions themselves carry nothing this driver consumes.
func parseEncryptedExtensions(body []byte) error {
	s := cryptobyte.String(body)
	var exts cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&exts) || !s.Empty() {
		return fmt.Errorf("%w: EncryptedExtensions body", record.ErrDecode)
	}
	for !exts.Empty() {
		var extData cryptobyte.String
		if !exts.ReadUint16(new(uint16)) || !exts.ReadUint16LengthPrefixed(&extData) {
			return fmt.Errorf("%w: EncryptedExtensions framing", record.ErrDecode)
		}
	}
	return nil
}

// parseCertificate parses a Certificate body and returns the raw DER
// certificates in presentation order. The bytes are copied: the chain must
// outlive the shared record buffer.
func parseCertificate(body []byte) ([][]byte, error) {
	s := cryptobyte.String(body)

	var context cryptobyte.String
	var list cryptobyte.String
	if !s.ReadUint8LengthPrefixed(&context) || !s.ReadUint24LengthPrefixed(&list) || !s.Empty() {
		return nil, fmt.Errorf("%w: Certificate body", record.ErrDecode)
	}

	var certs [][]byte
	for !list.Empty() {
		var certData cryptobyte.String
		var certExts cryptobyte.String
		if !list.ReadUint24LengthPrefixed(&certData) || !list.ReadUint16LengthPrefixed(&certExts) {
			return nil, fmt.Errorf("%w: Certificate entry", record.ErrDecode)
		}
		certs = append(certs, append([]byte(nil), certData...))
	}
	return certs, nil
}

// parseCertificateVerify parses a CertificateVerify body into the signature
// scheme and the signature bytes. The signature aliases the shared buffer
// and must be verified before the next record is decoded.
func parseCertificateVerify(body []byte) (uint16, []byte, error) {
	s := cryptobyte.String(body)
	var scheme uint16
	var sig cryptobyte.String
	if !s.ReadUint16(&scheme) || !s.ReadUint16LengthPrefixed(&sig) || !s.Empty() {
		return 0, nil, fmt.Errorf("%w: CertificateVerify body", record.ErrDecode)
	}
	return scheme, sig, nil
}

// serverCertVerifyContext is the context string for the server's
// CertificateVerify signature (RFC 8446 section 4.4.3).
const serverCertVerifyContext = "TLS 1.3, server CertificateVerify"

// signedCertVerifyContent builds the bytes the server signed: 64 spaces,
// the context string, a zero byte, and the transcript hash.
func signedCertVerifyContent(transcriptHash []byte) []byte {
	content := make([]byte, 0, 64+len(serverCertVerifyContext)+1+len(transcriptHash))
	for i := 0; i < 64; i++ {
		content = append(content, ' ')
	}
	content = append(content, serverCertVerifyContext...)
	content = append(content, 0)
	return append(content, transcriptHash...)
}

// verifyHandshakeSignature checks a CertificateVerify signature against the
// leaf certificate's public key.
func verifyHandshakeSignature(scheme uint16, pub crypto.PublicKey, transcriptHash, sig []byte) error {
	content := signedCertVerifyContent(transcriptHash)

	switch scheme {
	case schemeECDSAP256SHA256:
		key, ok := pub.(*ecdsa.PublicKey)
		if !ok || key.Curve != elliptic.P256() {
			return fmt.Errorf("%w: certificate key does not match ecdsa_secp256r1_sha256", ErrUnexpectedMessage)
		}
		digest := sha256.Sum256(content)
		if !ecdsa.VerifyASN1(key, digest[:], sig) {
			return fmt.Errorf("%w: CertificateVerify signature invalid", ErrUnexpectedMessage)
		}

	case schemeECDSAP384SHA384:
		key, ok := pub.(*ecdsa.PublicKey)
		if !ok || key.Curve != elliptic.P384() {
			return fmt.Errorf("%w: certificate key does not match ecdsa_secp384r1_sha384", ErrUnexpectedMessage)
		}
		digest := sha512.Sum384(content)
		if !ecdsa.VerifyASN1(key, digest[:], sig) {
			return fmt.Errorf("%w: CertificateVerify signature invalid", ErrUnexpectedMessage)
		}

	case schemeRSAPSSSHA256:
		key, ok := pub.(*rsa.PublicKey)
		if !ok {
			return fmt.Errorf("%w: certificate key does not match rsa_pss_rsae_sha256", ErrUnexpectedMessage)
		}
		digest := sha256.Sum256(content)
		opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: crypto.SHA256}
		if err := rsa.VerifyPSS(key, crypto.SHA256, digest[:], sig, opts); err != nil {
			return fmt.Errorf("%w: CertificateVerify signature invalid", ErrUnexpectedMessage)
		}

	case schemeRSAPSSSHA384:
		key, ok := pub.(*rsa.PublicKey)
		if !ok {
			return fmt.Errorf("%w: certificate key does not match rsa_pss_rsae_sha384", ErrUnexpectedMessage)
		}
		digest := sha512.Sum384(content)
		opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: crypto.SHA384}
		if err := rsa.VerifyPSS(key, crypto.SHA384, digest[:], sig, opts); err != nil {
			return fmt.Errorf("%w: CertificateVerify signature invalid", ErrUnexpectedMessage)
		}

	case schemeEd25519:
		key, ok := pub.(ed25519.PublicKey)
		if !ok {
			return fmt.Errorf("%w: certificate key does not match ed25519", ErrUnexpectedMessage)
		}
		if !ed25519.Verify(key, content, sig) {
			return fmt.Errorf("%w: CertificateVerify signature invalid", ErrUnexpectedMessage)
		}

	default:
		return fmt.Errorf("%w: signature scheme %#04x", ErrUnexpectedMessage, scheme)
	}
	return nil
}
