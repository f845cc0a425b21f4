// Package mapping defines ParameterMapping, the unit of translation
// configuration, and Set, the read-mostly collection the sync engine
// consults on every message.
//
// Mappings are validated before they enter a Set: channel 0-15, controller
// and note numbers 0-127 (PitchBendController for pitch bend sources),
// distinct MSB/LSB for 14-bit pairs, Min < Max and a non-empty target.
// Translation code relies on this and does not re-check.
//
// Mapping lists are persisted as YAML:
//
//	mappings:
//	  - channel: 0
//	    source: {kind: control, number: 7}
//	    target: {device: SL32-0001, path: line/ch1/volume}
//	    kind: volume
//	    curve: audio-taper
package mapping
