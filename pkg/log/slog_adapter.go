package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes protocol events to an slog.Logger.
// Useful for development when you want to see protocol events in console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger at Debug level.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("conn_id", event.ConnectionID),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}

	// Add optional identifiers
	if event.RemoteAddr != "" {
		attrs = append(attrs, slog.String("remote_addr", event.RemoteAddr))
	}
	if event.ServerName != "" {
		attrs = append(attrs, slog.String("server_name", event.ServerName))
	}

	// Add type-specific attributes
	switch {
	case event.Record != nil:
		attrs = append(attrs,
			slog.Uint64("content_type", uint64(event.Record.ContentType)),
			slog.Int("length", event.Record.Length),
			slog.Uint64("sequence", event.Record.Sequence),
			slog.Bool("encrypted", event.Record.Encrypted),
		)
	case event.Handshake != nil:
		attrs = append(attrs,
			slog.Uint64("msg_type", uint64(event.Handshake.Type)),
			slog.Int("length", event.Handshake.Length),
		)
	case event.Alert != nil:
		attrs = append(attrs,
			slog.Uint64("alert_level", uint64(event.Alert.Level)),
			slog.Uint64("alert_description", uint64(event.Alert.Description)),
			slog.Bool("encrypted", event.Alert.Encrypted),
		)
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "protocol", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
