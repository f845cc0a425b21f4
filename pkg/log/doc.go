// Package log provides structured protocol capture for the bridge.
//
// This package defines the Logger interface and Event types for recording
// what crosses the device and MIDI boundaries: raw frames, decoded parameter
// values, session control messages, state changes and errors. It is separate
// from operational logging (slog). A capture file is a complete
// machine-readable trace for reverse-engineering and latency analysis.
//
// # Basic Usage
//
//	// Console output during development
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// Binary capture file
//	fl, _ := log.NewFileLogger("/tmp/session.uclog")
//	cfg.ProtocolLogger = fl
//
//	// Both, with the console restricted to parameter sync
//	layer := log.LayerSync
//	console := log.NewFilterLogger(log.NewSlogAdapter(slog.Default()), log.Filter{Layer: &layer})
//	cfg.ProtocolLogger = log.NewMultiLogger(fl, console)
//
// # Event Types
//
//   - Transport: raw frame bytes (FrameEvent)
//   - Wire: decoded parameter values (ParameterEvent) and session control
//     messages (ControlMsgEvent)
//   - Sync/MIDI: state changes (StateChangeEvent) and errors (ErrorEventData)
//
// # File Format
//
// A capture file starts with the six byte header "UCLOG" 0x01, followed by
// a stream of CBOR-encoded events with integer keys. Files are conventionally
// named *.uclog and are appended to across sessions. A partial trailing
// event reads as end of file. The ucbridge-log tool views and summarizes
// them.
package log
