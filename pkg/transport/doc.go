// Package transport drives a single device connection.
//
// The transport layer handles:
//   - Frame reassembly from a TCP or serial byte stream
//   - The Hello/Subscribe handshake
//   - Keep-alive emission and liveness detection
//   - Connection state management
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│  UM / JM / PV / KA messages    │
//	├────────────────────────────────┤
//	│ magic + length + type framing  │
//	├────────────────────────────────┤
//	│    TCP :53000  |  USB serial   │
//	└────────────────────────────────┘
//
// # Lifecycle
//
//	discovered -> connecting -> connected -> disconnected
//	                   |
//	                   +-> failed
//
// Entering connected starts a keep-alive every 5 seconds and a liveness
// checker; 15 seconds without inbound traffic moves the connection to
// disconnected. Malformed frames are reported and dropped. Stream errors
// disconnect. There is no automatic reconnect.
package transport
