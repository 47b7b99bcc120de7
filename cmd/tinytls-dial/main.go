// Command tinytls-dial opens a TLS 1.3 connection to a server, sends one
// payload, prints the response and closes the connection.
//
// It exercises the full client stack: handshake, record protection,
// chunked writes and the close_notify exchange, with an optional CBOR
// protocol log for later inspection.
//
// Usage:
//
//	tinytls-dial [flags]
//
// Flags:
//
//	-addr string          Server address, host:port (required)
//	-server-name string   Expected server name (defaults to the dialed host)
//	-suite string         Cipher suite IANA name (default "TLS_AES_128_GCM_SHA256")
//	-config string        YAML configuration file path
//	-insecure             Skip certificate validity and hostname checks
//	-send string          Payload to transmit (default "ping")
//	-buffer int           Record buffer size in bytes (default 16640)
//	-timeout duration     Dial and I/O timeout (default 10s)
//	-protocol-log string  Write a CBOR protocol log (.tlog) to this path
//
// Examples:
//
//	# Dial a local server and echo a payload
//	tinytls-dial -addr localhost:8443 -send "hello"
//
//	# Use a config file and capture a protocol log
//	tinytls-dial -config dial.yaml -protocol-log session.tlog
//
//	# ChaCha20 against a self-signed endpoint
//	tinytls-dial -addr 10.0.0.2:443 -suite TLS_CHACHA20_POLY1305_SHA256 -insecure
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tinytls/tinytls-go/pkg/client"
	tlslog "github.com/tinytls/tinytls-go/pkg/log"
	"github.com/tinytls/tinytls-go/pkg/suite"
	"github.com/tinytls/tinytls-go/pkg/transport"
)

// Config holds the dialer configuration. Fields map 1:1 to flags and to the
// YAML config file; flags set on the command line win over file values.
type Config struct {
	Addr        string        `yaml:"addr"`
	ServerName  string        `yaml:"server_name"`
	Suite       string        `yaml:"suite"`
	ConfigFile  string        `yaml:"-"`
	Insecure    bool          `yaml:"insecure"`
	Send        string        `yaml:"send"`
	BufferSize  int           `yaml:"buffer"`
	Timeout     time.Duration `yaml:"timeout"`
	ProtocolLog string        `yaml:"protocol_log"`
}

var config Config

func init() {
	flag.StringVar(&config.Addr, "addr", "", "Server address, host:port")
	flag.StringVar(&config.ServerName, "server-name", "", "Expected server name (defaults to the dialed host)")
	flag.StringVar(&config.Suite, "suite", "", "Cipher suite IANA name")
	flag.StringVar(&config.ConfigFile, "config", "", "YAML configuration file path")
	flag.BoolVar(&config.Insecure, "insecure", false, "Skip certificate validity and hostname checks")
	flag.StringVar(&config.Send, "send", "", "Payload to transmit")
	flag.IntVar(&config.BufferSize, "buffer", 0, "Record buffer size in bytes")
	flag.DurationVar(&config.Timeout, "timeout", 0, "Dial and I/O timeout")
	flag.StringVar(&config.ProtocolLog, "protocol-log", "", "Write a CBOR protocol log to this path")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	if config.ConfigFile != "" {
		if err := loadConfigFile(config.ConfigFile); err != nil {
			log.Fatalf("Invalid config file: %v", err)
		}
	}
	applyDefaults()
	if err := validateConfig(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := run(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

// loadConfigFile fills in config fields from a YAML file without overriding
// values already set on the command line.
func loadConfigFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if !set["addr"] {
		config.Addr = file.Addr
	}
	if !set["server-name"] {
		config.ServerName = file.ServerName
	}
	if !set["suite"] {
		config.Suite = file.Suite
	}
	if !set["insecure"] {
		config.Insecure = file.Insecure
	}
	if !set["send"] {
		config.Send = file.Send
	}
	if !set["buffer"] {
		config.BufferSize = file.BufferSize
	}
	if !set["timeout"] {
		config.Timeout = file.Timeout
	}
	if !set["protocol-log"] {
		config.ProtocolLog = file.ProtocolLog
	}
	return nil
}

func applyDefaults() {
	if config.Suite == "" {
		config.Suite = suite.TLSAes128GcmSha256.Name
	}
	if config.Send == "" {
		config.Send = "ping"
	}
	if config.BufferSize == 0 {
		// One maximum-size protected record plus header.
		config.BufferSize = 16640
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.ServerName == "" && config.Addr != "" {
		if host, _, err := net.SplitHostPort(config.Addr); err == nil {
			config.ServerName = host
		}
	}
}

func validateConfig() error {
	if config.Addr == "" {
		return fmt.Errorf("missing -addr")
	}
	if config.ServerName == "" {
		return fmt.Errorf("missing -server-name and none derivable from %q", config.Addr)
	}
	if _, err := suite.ByName(config.Suite); err != nil {
		return err
	}
	if config.BufferSize < client.RecordOverhead+1 {
		return fmt.Errorf("buffer size %d leaves no room for payload", config.BufferSize)
	}
	return nil
}

func run() error {
	s, err := suite.ByName(config.Suite)
	if err != nil {
		return err
	}

	clientCfg := &client.Config{
		ServerName:         config.ServerName,
		Suite:              s,
		InsecureSkipVerify: config.Insecure,
	}

	if config.ProtocolLog != "" {
		fl, err := tlslog.NewFileLogger(config.ProtocolLog)
		if err != nil {
			return fmt.Errorf("open protocol log: %w", err)
		}
		defer fl.Close()
		clientCfg.Logger = fl
		log.Printf("Protocol log: %s", config.ProtocolLog)
	}

	log.Printf("Dialing %s (server name %q, suite %s)", config.Addr, config.ServerName, s)
	netConn, err := net.DialTimeout("tcp", config.Addr, config.Timeout)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	if err := netConn.SetDeadline(time.Now().Add(config.Timeout)); err != nil {
		netConn.Close()
		return err
	}
	tc := transport.NewNetConn(netConn)

	ctx := client.NewContext(clientCfg, make([]byte, config.BufferSize))
	conn := client.New(ctx, tc)

	start := time.Now()
	if err := conn.Open(); err != nil {
		netConn.Close()
		return fmt.Errorf("handshake: %w", err)
	}
	log.Printf("Handshake complete in %s (connection %s)", time.Since(start).Round(time.Millisecond), conn.ID())

	if _, err := conn.Write([]byte(config.Send)); err != nil {
		netConn.Close()
		return fmt.Errorf("write: %w", err)
	}
	log.Printf("Sent %d bytes", len(config.Send))

	buf := make([]byte, config.BufferSize)
	n, err := conn.Read(buf)
	if err != nil {
		netConn.Close()
		return fmt.Errorf("read: %w", err)
	}
	log.Printf("Received %d bytes", n)
	fmt.Printf("%s\n", buf[:n])

	if _, _, err := conn.Close(); err != nil {
		netConn.Close()
		return fmt.Errorf("close: %w", err)
	}
	return netConn.Close()
}
