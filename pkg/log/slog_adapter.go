package log

import (
	"context"
	"log/slog"
)

// SlogAdapter mirrors capture events into an slog.Logger as "capture"
// records at debug level, one flat attribute set per event.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter wraps logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log implements Logger.
func (a *SlogAdapter) Log(event Event) {
	ctx := context.Background()
	if !a.logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	attrs := append(envelopeAttrs(event), payloadAttrs(event)...)
	a.logger.LogAttrs(ctx, slog.LevelDebug, "capture", attrs...)
}

func envelopeAttrs(e Event) []slog.Attr {
	attrs := make([]slog.Attr, 0, 12)
	attrs = append(attrs,
		slog.String("conn_id", e.ConnectionID),
		slog.String("direction", e.Direction.String()),
		slog.String("layer", e.Layer.String()),
		slog.String("category", e.Category.String()),
	)
	if e.DeviceID != "" {
		attrs = append(attrs, slog.String("device_id", e.DeviceID))
	}
	if e.PortID != "" {
		attrs = append(attrs, slog.String("port_id", e.PortID))
	}
	return attrs
}

func payloadAttrs(e Event) []slog.Attr {
	switch {
	case e.Frame != nil:
		return []slog.Attr{
			slog.Int("frame_size", e.Frame.Size),
			slog.String("frame_type", e.Frame.Type),
			slog.Bool("truncated", e.Frame.Truncated),
		}
	case e.Parameter != nil:
		attrs := []slog.Attr{
			slog.String("path", e.Parameter.Path),
			slog.Float64("value", float64(e.Parameter.Value)),
		}
		if e.Parameter.Latency != nil {
			attrs = append(attrs, slog.Duration("latency", *e.Parameter.Latency))
		}
		return attrs
	case e.StateChange != nil:
		attrs := []slog.Attr{
			slog.String("entity", e.StateChange.Entity.String()),
			slog.String("old_state", e.StateChange.OldState),
			slog.String("new_state", e.StateChange.NewState),
		}
		if e.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", e.StateChange.Reason))
		}
		return attrs
	case e.ControlMsg != nil:
		attrs := []slog.Attr{slog.String("ctrl_type", e.ControlMsg.Type.String())}
		if e.ControlMsg.Token != 0 {
			attrs = append(attrs, slog.Uint64("token", uint64(e.ControlMsg.Token)))
		}
		return attrs
	case e.Error != nil:
		return []slog.Attr{
			slog.String("error_layer", e.Error.Layer.String()),
			slog.String("error_msg", e.Error.Message),
			slog.String("error_context", e.Error.Context),
		}
	}
	return nil
}

var _ Logger = (*SlogAdapter)(nil)
