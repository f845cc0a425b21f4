// Package midi is the controller side of the bridge.
//
// It decodes and encodes the channel messages the bridge understands
// (Control Change, Note On/Off, Pitch Bend, Program Change), enumerates
// input and output ports through a pluggable Backend, and keeps track of
// which ports are connected.
//
// # Ports
//
// Ports are identified by direction and name ("in:X-Touch", "out:X-Touch").
// Each enumeration pass is diffed against the previous one so hot-plug can
// be detected by polling:
//
//	change, err := mgr.Enumerate()
//	for _, p := range change.Added { ... }
//
// A port that disappears while connected is closed and reported as
// StatusDisconnected. Failures on one port are returned as a PortError and
// never affect other ports.
//
// # Backends
//
// GomidiBackend uses gitlab.com/gomidi/midi/v2 and whatever driver the
// program registered (normally rtmididrv). FakeBackend is a scripted
// backend for tests.
package midi
