// Package wire implements the framed binary control protocol spoken by the
// mixer/interface devices ("UCNet").
//
// Every frame has the same header:
//
//	┌──────────────┬──────────────┬──────────┬─────────────────┐
//	│ magic (4B)   │ length (2B)  │ type (2B)│ payload         │
//	│ 55 43 00 01  │ uint16 LE    │ ASCII    │ type specific   │
//	└──────────────┴──────────────┴──────────┴─────────────────┘
//
// The length counts from the first byte of the type tag through the end of
// the payload, so a frame with an empty payload has length 2.
//
// # Message Types
//
//   - UM Hello: capability exchange, carries the client's local port
//   - JM JSON message: Subscribe (client identity) and SubscriptionReply,
//     prefixed with a 4-byte session token
//   - PV ParameterValue: NUL-terminated parameter path, 2 bytes padding,
//     float32 little-endian value
//   - KA KeepAlive: liveness, no payload
//   - DQ / DA: discovery query and discovery advertisement (UDP)
//
// # Parameter Values
//
// Values on the wire are linear: gain/position in [0.0, 1.0], or [-1.0, 1.0]
// for bipolar parameters such as pan. The codec never converts to decibels;
// perceptual shaping belongs to the translation layer.
package wire
