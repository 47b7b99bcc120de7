package keyschedule

import (
	"crypto/cipher"
	"crypto/hmac"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/tinytls/tinytls-go/pkg/suite"
)

// Key schedule errors.
var (
	// ErrNotProtected indicates a seal or open attempt before traffic keys
	// were installed for that direction.
	ErrNotProtected = errors.New("traffic keys not installed")
)

// directionState holds the installed traffic keys and the record sequence
// counter for one direction.
type directionState struct {
	aead   cipher.AEAD
	iv     []byte
	seq    uint64
	active bool
}

// KeySchedule holds the derived secrets and per-direction record counters of
// one connection. It is not safe for concurrent use; the connection driver
// is single-threaded by design.
type KeySchedule struct {
	suite *suite.Suite

	// secret is the current extraction secret. It starts as the early
	// secret and is replaced by the handshake and master secrets as the
	// schedule advances.
	secret []byte

	write directionState
	read  directionState
}

// New creates a key schedule initialized to the early secret for a
// connection without a pre-shared key.
func New(s *suite.Suite) *KeySchedule {
	zeros := make([]byte, s.HashLen())
	return &KeySchedule{
		suite:  s,
		secret: hkdf.Extract(s.Hash, zeros, nil),
	}
}

// Suite returns the cipher suite this schedule is parameterized by.
func (k *KeySchedule) Suite() *suite.Suite {
	return k.suite
}

// expandLabel implements HKDF-Expand-Label (RFC 8446 section 7.1).
func (k *KeySchedule) expandLabel(secret []byte, label string, context []byte, length int) ([]byte, error) {
	info := make([]byte, 0, 2+1+6+len(label)+1+len(context))
	info = binary.BigEndian.AppendUint16(info, uint16(length))
	info = append(info, byte(6+len(label)))
	info = append(info, "tls13 "...)
	info = append(info, label...)
	info = append(info, byte(len(context)))
	info = append(info, context...)

	out := make([]byte, length)
	if _, err := io.ReadFull(hkdf.Expand(k.suite.Hash, secret, info), out); err != nil {
		return nil, fmt.Errorf("hkdf expand %q: %w", label, err)
	}
	return out, nil
}

// deriveSecret implements Derive-Secret (RFC 8446 section 7.1).
func (k *KeySchedule) deriveSecret(secret []byte, label string, transcriptHash []byte) ([]byte, error) {
	return k.expandLabel(secret, label, transcriptHash, k.suite.HashLen())
}

// emptyHash is the suite hash of the empty string.
func (k *KeySchedule) emptyHash() []byte {
	h := k.suite.Hash()
	return h.Sum(nil)
}

// DeriveHandshakeSecrets advances the schedule from the early stage to the
// handshake stage using the (EC)DHE shared secret and the transcript hash
// through ServerHello. It returns the client and server handshake traffic
// secrets.
func (k *KeySchedule) DeriveHandshakeSecrets(sharedSecret, transcriptHash []byte) (client, server []byte, err error) {
	derived, err := k.deriveSecret(k.secret, "derived", k.emptyHash())
	if err != nil {
		return nil, nil, err
	}
	handshakeSecret := hkdf.Extract(k.suite.Hash, sharedSecret, derived)

	client, err = k.deriveSecret(handshakeSecret, "c hs traffic", transcriptHash)
	if err != nil {
		return nil, nil, err
	}
	server, err = k.deriveSecret(handshakeSecret, "s hs traffic", transcriptHash)
	if err != nil {
		return nil, nil, err
	}

	k.secret = handshakeSecret
	return client, server, nil
}

// DeriveApplicationSecrets advances the schedule from the handshake stage to
// the application stage using the transcript hash through the server
// Finished message. It returns the client and server application traffic
// secrets.
func (k *KeySchedule) DeriveApplicationSecrets(transcriptHash []byte) (client, server []byte, err error) {
	derived, err := k.deriveSecret(k.secret, "derived", k.emptyHash())
	if err != nil {
		return nil, nil, err
	}
	zeros := make([]byte, k.suite.HashLen())
	masterSecret := hkdf.Extract(k.suite.Hash, zeros, derived)

	client, err = k.deriveSecret(masterSecret, "c ap traffic", transcriptHash)
	if err != nil {
		return nil, nil, err
	}
	server, err = k.deriveSecret(masterSecret, "s ap traffic", transcriptHash)
	if err != nil {
		return nil, nil, err
	}

	k.secret = masterSecret
	return client, server, nil
}

// FinishedVerifyData computes the Finished verify_data for the given traffic
// secret over the given transcript hash (RFC 8446 section 4.4.4).
func (k *KeySchedule) FinishedVerifyData(trafficSecret, transcriptHash []byte) ([]byte, error) {
	finishedKey, err := k.expandLabel(trafficSecret, "finished", nil, k.suite.HashLen())
	if err != nil {
		return nil, err
	}
	mac := hmac.New(k.suite.Hash, finishedKey)
	mac.Write(transcriptHash)
	return mac.Sum(nil), nil
}

// trafficKeys derives the record key and IV from a traffic secret and
// constructs the AEAD.
func (k *KeySchedule) trafficKeys(secret []byte) (directionState, error) {
	key, err := k.expandLabel(secret, "key", nil, k.suite.KeyLen)
	if err != nil {
		return directionState{}, err
	}
	iv, err := k.expandLabel(secret, "iv", nil, k.suite.IVLen)
	if err != nil {
		return directionState{}, err
	}
	aead, err := k.suite.AEAD(key)
	if err != nil {
		return directionState{}, fmt.Errorf("aead init: %w", err)
	}
	return directionState{aead: aead, iv: iv, active: true}, nil
}

// SetWriteSecret installs traffic keys for the write direction and resets
// the write sequence counter.
func (k *KeySchedule) SetWriteSecret(secret []byte) error {
	state, err := k.trafficKeys(secret)
	if err != nil {
		return err
	}
	k.write = state
	return nil
}

// SetReadSecret installs traffic keys for the read direction and resets the
// read sequence counter.
func (k *KeySchedule) SetReadSecret(secret []byte) error {
	state, err := k.trafficKeys(secret)
	if err != nil {
		return err
	}
	k.read = state
	return nil
}

// WriteProtected reports whether write-direction traffic keys are installed.
func (k *KeySchedule) WriteProtected() bool {
	return k.write.active
}

// ReadProtected reports whether read-direction traffic keys are installed.
func (k *KeySchedule) ReadProtected() bool {
	return k.read.active
}

// nonce derives the per-record nonce: the static IV XORed with the sequence
// number in the low eight bytes (RFC 8446 section 5.3).
func (s *directionState) nonce() []byte {
	n := make([]byte, len(s.iv))
	copy(n, s.iv)
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], s.seq)
	for i := 0; i < 8; i++ {
		n[len(n)-8+i] ^= seq[i]
	}
	return n
}

// Seal encrypts plaintext under the current write keys and sequence number,
// appending to dst. It does not advance the counter; the caller increments
// it once the record is actually transmitted.
func (k *KeySchedule) Seal(dst, plaintext, additionalData []byte) ([]byte, error) {
	if !k.write.active {
		return nil, ErrNotProtected
	}
	return k.write.aead.Seal(dst, k.write.nonce(), plaintext, additionalData), nil
}

// Open decrypts ciphertext under the current read keys and sequence number,
// appending to dst. It does not advance the counter; the caller increments
// it once the record is accepted.
func (k *KeySchedule) Open(dst, ciphertext, additionalData []byte) ([]byte, error) {
	if !k.read.active {
		return nil, ErrNotProtected
	}
	return k.read.aead.Open(dst, k.read.nonce(), ciphertext, additionalData)
}

// Overhead returns the AEAD tag length added to each protected record.
func (k *KeySchedule) Overhead() int {
	if !k.write.active {
		return 0
	}
	return k.write.aead.Overhead()
}

// IncrementWriteCounter advances the write-direction record counter.
// Call exactly once per record transmitted.
func (k *KeySchedule) IncrementWriteCounter() {
	k.write.seq++
}

// IncrementReadCounter advances the read-direction record counter.
// Call exactly once per record accepted as decrypted.
func (k *KeySchedule) IncrementReadCounter() {
	k.read.seq++
}

// WriteSequence returns the current write-direction counter.
func (k *KeySchedule) WriteSequence() uint64 {
	return k.write.seq
}

// ReadSequence returns the current read-direction counter.
func (k *KeySchedule) ReadSequence() uint64 {
	return k.read.seq
}
