// Package commands implements the ucbridge-log CLI commands.
package commands

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ucbridge/ucbridge-go/pkg/log"
)

const timestampLayout = "2006-01-02T15:04:05.000000Z"

// eventKind names the payload an event carries.
func eventKind(event log.Event) string {
	switch {
	case event.Frame != nil:
		return "frame"
	case event.Parameter != nil:
		return "parameter"
	case event.StateChange != nil:
		return "state"
	case event.ControlMsg != nil:
		return event.ControlMsg.Type.String()
	case event.Error != nil:
		return "error"
	}
	return "unknown"
}

// formatEvent writes one event as a header line plus indented details.
//
//	2026-10-18T20:00:00.000000Z [dev:SL32R-1234] OUT SYNC parameter
//	  line/ch1/volume = 0.5500
func formatEvent(w io.Writer, event log.Event) {
	label := eventKind(event)
	if f := event.Frame; f != nil && f.Type != "" {
		label += " " + f.Type
	}
	layer := event.Layer.String()
	if event.Category == log.CategoryControl {
		layer = "CTRL"
	}
	fmt.Fprintf(w, "%s [%s] %-3s %s %s\n",
		event.Timestamp.UTC().Format(timestampLayout), source(event), event.Direction, layer, label)

	for _, line := range details(event) {
		fmt.Fprintf(w, "  %s\n", line)
	}
	fmt.Fprintln(w)
}

// source labels the event origin: a MIDI port, a device or a connection.
func source(event log.Event) string {
	switch {
	case event.PortID != "":
		return "port:" + event.PortID
	case event.DeviceID != "":
		return "dev:" + event.DeviceID
	}
	id := event.ConnectionID
	if len(id) > 8 {
		id = id[:8]
	}
	return "conn:" + id
}

func details(event log.Event) []string {
	var out []string
	switch {
	case event.Frame != nil:
		f := event.Frame
		out = append(out, fmt.Sprintf("Size: %d bytes", f.Size))
		if len(f.Data) > 0 {
			data := "Data: " + hex.EncodeToString(f.Data)
			if f.Truncated {
				data += " (truncated)"
			}
			out = append(out, data)
		}
	case event.Parameter != nil:
		p := event.Parameter
		out = append(out, fmt.Sprintf("%s = %.4f", p.Path, p.Value))
		if p.Latency != nil {
			out = append(out, "Latency: "+formatDuration(*p.Latency))
		}
	case event.StateChange != nil:
		sc := event.StateChange
		out = append(out, "Entity: "+sc.Entity.String())
		if sc.OldState != "" {
			out = append(out, sc.OldState+" -> "+sc.NewState)
		} else {
			out = append(out, "-> "+sc.NewState)
		}
		if sc.Reason != "" {
			out = append(out, "Reason: "+sc.Reason)
		}
	case event.ControlMsg != nil:
		if event.ControlMsg.Token != 0 {
			out = append(out, fmt.Sprintf("Token: 0x%08x", event.ControlMsg.Token))
		}
	case event.Error != nil:
		e := event.Error
		out = append(out, "Layer: "+e.Layer.String(), "Message: "+e.Message)
		if e.Context != "" {
			out = append(out, "Context: "+e.Context)
		}
	}
	return out
}

// formatDuration picks the unit that keeps three decimals readable.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1e3)
	case d < time.Second:
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1e3)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

var (
	layerNames = map[string]log.Layer{
		"transport": log.LayerTransport,
		"wire":      log.LayerWire,
		"sync":      log.LayerSync,
		"midi":      log.LayerMIDI,
	}
	directionNames = map[string]log.Direction{
		"in":  log.DirectionIn,
		"out": log.DirectionOut,
	}
	categoryNames = map[string]log.Category{
		"message": log.CategoryMessage,
		"control": log.CategoryControl,
		"state":   log.CategoryState,
		"error":   log.CategoryError,
	}
)

// ParseLayerFlag parses a layer name (case-insensitive).
func ParseLayerFlag(s string) (log.Layer, error) {
	if l, ok := layerNames[strings.ToLower(s)]; ok {
		return l, nil
	}
	return 0, fmt.Errorf("invalid layer: %s (must be transport, wire, sync, or midi)", s)
}

// ParseDirectionFlag parses a direction name (case-insensitive).
func ParseDirectionFlag(s string) (log.Direction, error) {
	if d, ok := directionNames[strings.ToLower(s)]; ok {
		return d, nil
	}
	return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
}

// ParseCategoryFlag parses a category name (case-insensitive).
func ParseCategoryFlag(s string) (log.Category, error) {
	if c, ok := categoryNames[strings.ToLower(s)]; ok {
		return c, nil
	}
	return 0, fmt.Errorf("invalid category: %s (must be message, control, state, or error)", s)
}

// RunView prints every event matching filter.
func RunView(path string, filter log.Filter, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	if err := reader.Each(func(event log.Event) error {
		formatEvent(output, event)
		return nil
	}); err != nil {
		return fmt.Errorf("failed to read event: %w", err)
	}
	return nil
}
