// Package translate converts between MIDI values and normalized device
// parameter values.
//
// Forward maps one inbound MIDI message through a mapping to a device value;
// Inverse maps a device value back to the MIDI message(s) for a
// bidirectional mapping. Both assume the mapping passed Validate and never
// fail for well-formed input.
//
// Curves shape a normalized input x in [0,1]:
//
//	linear       y = x
//	logarithmic  y = ln(x(e-1)+1)
//	audio-taper  y = x^2.5
//
// 14-bit controller pairs combine as (MSB<<7 | LSB) / 16383. The MSB is held
// in an MSBCache until the LSB arrives.
package translate
