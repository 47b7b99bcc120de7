package client

import (
	"github.com/tinytls/tinytls-go/pkg/log"
	"github.com/tinytls/tinytls-go/pkg/suite"
)

// Config holds the immutable parameters of a connection. A Config may be
// shared by any number of connections; the driver never mutates it.
type Config struct {
	// ServerName is the hostname sent in the server_name extension and,
	// when peer verification is enabled, checked against the certificate.
	ServerName string

	// Suite selects the cipher suite offered to the server. Defaults to
	// TLS_AES_128_GCM_SHA256.
	Suite *suite.Suite

	// InsecureSkipVerify disables hostname and validity checks on the
	// server certificate. The CertificateVerify signature and the server
	// Finished MAC are always verified regardless. Chain building against
	// a root store is out of scope for this driver; callers needing it
	// supply VerifyPeerCertificate.
	InsecureSkipVerify bool

	// VerifyPeerCertificate, if non-nil, is called with the raw DER
	// certificates presented by the server after the built-in checks.
	// Returning an error aborts the handshake.
	VerifyPeerCertificate func(rawCerts [][]byte) error

	// Logger receives protocol events. Nil disables protocol capture.
	Logger log.Logger
}

// suiteOrDefault returns the configured suite or the mandatory default.
func (c *Config) suiteOrDefault() *suite.Suite {
	if c.Suite != nil {
		return c.Suite
	}
	return suite.TLSAes128GcmSha256
}

// logger returns the configured logger or a no-op.
func (c *Config) logger() log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.NoopLogger{}
}
