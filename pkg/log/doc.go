// Package log provides structured protocol logging for tinytls.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at multiple layers (record, handshake, connection).
// It is separate from operational logging (slog) - protocol capture provides
// a complete machine-readable event trace for debugging and analysis.
//
// # Basic Usage
//
// Applications configure logging by providing a Logger implementation:
//
//	// For development: log to console via slog
//	cfg.Logger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.Logger, _ = log.NewFileLogger("/var/log/tinytls/client.tlog")
//
//	// Both: use MultiLogger
//	cfg.Logger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    log.NewFileLogger("/var/log/tinytls/client.tlog"),
//	)
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Record: records crossing the wire (RecordEvent)
//   - Handshake: handshake messages processed (HandshakeEvent)
//   - Connection: lifecycle state changes (StateChangeEvent)
//
// Alerts and errors have dedicated event types.
//
// # File Format
//
// Log files use CBOR encoding with .tlog extension. Reader provides
// streaming decode with filtering.
package log
