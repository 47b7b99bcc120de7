// Package suite defines the TLS 1.3 cipher suites the client can negotiate.
//
// A Suite bundles everything the key schedule and record codec are
// parameterized by: the transcript/HKDF hash, the AEAD key and IV sizes, and
// the AEAD constructor. Suites are immutable values; a Config selects exactly
// one for the lifetime of a connection.
package suite

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"hash"

	"golang.org/x/crypto/chacha20poly1305"
)

// Suite lookup errors.
var (
	// ErrUnknownSuite indicates an unrecognized cipher suite identifier.
	ErrUnknownSuite = errors.New("unknown cipher suite")
)

// Suite describes one TLS 1.3 cipher suite.
type Suite struct {
	// ID is the IANA-assigned cipher suite value.
	ID uint16

	// Name is the IANA name, e.g. "TLS_AES_128_GCM_SHA256".
	Name string

	// Hash constructs the suite's hash, used for the transcript and HKDF.
	Hash func() hash.Hash

	// KeyLen is the AEAD key length in bytes.
	KeyLen int

	// IVLen is the AEAD static IV length in bytes.
	IVLen int

	// AEAD constructs the suite's AEAD from a traffic key.
	AEAD func(key []byte) (cipher.AEAD, error)
}

// String returns the suite name.
func (s *Suite) String() string {
	return s.Name
}

// HashLen returns the output size of the suite hash in bytes.
func (s *Suite) HashLen() int {
	return s.Hash().Size()
}

func aesGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// The supported cipher suites.
var (
	// TLSAes128GcmSha256 is TLS_AES_128_GCM_SHA256, the mandatory suite.
	TLSAes128GcmSha256 = &Suite{
		ID:     0x1301,
		Name:   "TLS_AES_128_GCM_SHA256",
		Hash:   sha256.New,
		KeyLen: 16,
		IVLen:  12,
		AEAD:   aesGCM,
	}

	// TLSAes256GcmSha384 is TLS_AES_256_GCM_SHA384.
	TLSAes256GcmSha384 = &Suite{
		ID:     0x1302,
		Name:   "TLS_AES_256_GCM_SHA384",
		Hash:   sha512.New384,
		KeyLen: 32,
		IVLen:  12,
		AEAD:   aesGCM,
	}

	// TLSChacha20Poly1305Sha256 is TLS_CHACHA20_POLY1305_SHA256.
	TLSChacha20Poly1305Sha256 = &Suite{
		ID:     0x1303,
		Name:   "TLS_CHACHA20_POLY1305_SHA256",
		Hash:   sha256.New,
		KeyLen: 32,
		IVLen:  12,
		AEAD:   chacha20poly1305.New,
	}
)

// all lists the supported suites in preference order.
var all = []*Suite{
	TLSAes128GcmSha256,
	TLSAes256GcmSha384,
	TLSChacha20Poly1305Sha256,
}

// ByID returns the suite with the given IANA value.
func ByID(id uint16) (*Suite, error) {
	for _, s := range all {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, ErrUnknownSuite
}

// ByName returns the suite with the given IANA name.
func ByName(name string) (*Suite, error) {
	for _, s := range all {
		if s.Name == name {
			return s, nil
		}
	}
	return nil, ErrUnknownSuite
}
