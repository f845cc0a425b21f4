// Package discovery finds devices the bridge can connect to.
//
// Three mechanisms are provided behind the Discoverer interface:
//
// # Broadcast (UDP 47809)
//
// A DQ frame is broadcast and DA advertisements are collected for a fixed
// two-second window. Each advertisement carries the TCP control port and the
// device's model, firmware and serial strings. No replies is an empty result,
// not an error.
//
// # Serial bus
//
// Direct-attached devices are enumerated by USB vendor/product id. No
// handshake is needed to discover them, only to connect.
//
// # mDNS
//
// Devices that announce a DNS-SD service are browsed with zeroconf. TXT
// records supply model, serial and firmware where present.
//
// Multi combines discoverers and merges results by device id. Static is a
// scripted discoverer for tests.
package discovery
