package suite

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"
)

func TestByID(t *testing.T) {
	tests := []struct {
		id   uint16
		want *Suite
	}{
		{0x1301, TLSAes128GcmSha256},
		{0x1302, TLSAes256GcmSha384},
		{0x1303, TLSChacha20Poly1305Sha256},
	}
	for _, tt := range tests {
		got, err := ByID(tt.id)
		if err != nil {
			t.Fatalf("ByID(%#04x) failed: %v", tt.id, err)
		}
		if got != tt.want {
			t.Errorf("ByID(%#04x) = %v, want %v", tt.id, got, tt.want)
		}
	}

	if _, err := ByID(0x1399); !errors.Is(err, ErrUnknownSuite) {
		t.Errorf("ByID(unknown) = %v, want ErrUnknownSuite", err)
	}
}

func TestByName(t *testing.T) {
	got, err := ByName("TLS_CHACHA20_POLY1305_SHA256")
	if err != nil {
		t.Fatalf("ByName failed: %v", err)
	}
	if got != TLSChacha20Poly1305Sha256 {
		t.Errorf("ByName returned %v", got)
	}

	if _, err := ByName("TLS_NULL_WITH_NULL_NULL"); !errors.Is(err, ErrUnknownSuite) {
		t.Errorf("ByName(unknown) = %v, want ErrUnknownSuite", err)
	}
}

func TestSuiteParameters(t *testing.T) {
	tests := []struct {
		s       *Suite
		keyLen  int
		hashLen int
	}{
		{TLSAes128GcmSha256, 16, 32},
		{TLSAes256GcmSha384, 32, 48},
		{TLSChacha20Poly1305Sha256, 32, 32},
	}
	for _, tt := range tests {
		t.Run(tt.s.Name, func(t *testing.T) {
			if tt.s.KeyLen != tt.keyLen {
				t.Errorf("KeyLen = %d, want %d", tt.s.KeyLen, tt.keyLen)
			}
			if tt.s.IVLen != 12 {
				t.Errorf("IVLen = %d, want 12", tt.s.IVLen)
			}
			if got := tt.s.HashLen(); got != tt.hashLen {
				t.Errorf("HashLen = %d, want %d", got, tt.hashLen)
			}
		})
	}
}

func TestAEADSealOpen(t *testing.T) {
	for _, s := range all {
		t.Run(s.Name, func(t *testing.T) {
			key := make([]byte, s.KeyLen)
			if _, err := rand.Read(key); err != nil {
				t.Fatal(err)
			}
			aead, err := s.AEAD(key)
			if err != nil {
				t.Fatalf("AEAD constructor failed: %v", err)
			}
			if aead.NonceSize() != s.IVLen {
				t.Errorf("nonce size = %d, want %d", aead.NonceSize(), s.IVLen)
			}

			nonce := make([]byte, aead.NonceSize())
			plaintext := []byte("attack at dawn")
			aad := []byte{23, 3, 3, 0, 0}

			sealed := aead.Seal(nil, nonce, plaintext, aad)
			opened, err := aead.Open(nil, nonce, sealed, aad)
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			if !bytes.Equal(opened, plaintext) {
				t.Errorf("Open = %q, want %q", opened, plaintext)
			}

			// Tampering must be detected.
			sealed[0] ^= 0xff
			if _, err := aead.Open(nil, nonce, sealed, aad); err == nil {
				t.Error("Open accepted tampered ciphertext")
			}
		})
	}
}
