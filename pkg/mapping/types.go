package mapping

import (
	"fmt"
	"strings"
)

// PitchBendController is the synthetic controller number pitch bend maps to.
// It lies outside the 0-127 controller space so pitch bend can use the same
// Source representation as a Control Change.
const PitchBendController = 128

// SourceKind selects how a mapping's MIDI source is read.
type SourceKind uint8

const (
	// SourceControl is a single 7-bit controller (or PitchBendController).
	SourceControl SourceKind = iota

	// SourceNote is a note number.
	SourceNote

	// SourceControl14 is an MSB/LSB controller pair.
	SourceControl14
)

var sourceKindNames = map[SourceKind]string{
	SourceControl:   "control",
	SourceNote:      "note",
	SourceControl14: "control14",
}

// String returns the source kind name.
func (k SourceKind) String() string {
	if s, ok := sourceKindNames[k]; ok {
		return s
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (k SourceKind) MarshalText() ([]byte, error) {
	if _, ok := sourceKindNames[k]; !ok {
		return nil, fmt.Errorf("unknown source kind %d", k)
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *SourceKind) UnmarshalText(text []byte) error {
	v, err := parseEnum(sourceKindNames, string(text), "source kind")
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// ParamKind is the semantic kind of the target parameter.
type ParamKind uint8

const (
	// KindVolume is a continuous level in [Min, Max].
	KindVolume ParamKind = iota

	// KindMute is a boolean; curve and range are ignored.
	KindMute

	// KindPan is bipolar in [-1, 1].
	KindPan
)

var paramKindNames = map[ParamKind]string{
	KindVolume: "volume",
	KindMute:   "mute",
	KindPan:    "pan",
}

// String returns the parameter kind name.
func (k ParamKind) String() string {
	if s, ok := paramKindNames[k]; ok {
		return s
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (k ParamKind) MarshalText() ([]byte, error) {
	if _, ok := paramKindNames[k]; !ok {
		return nil, fmt.Errorf("unknown parameter kind %d", k)
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ParamKind) UnmarshalText(text []byte) error {
	v, err := parseEnum(paramKindNames, string(text), "parameter kind")
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Curve is a value-shaping curve.
type Curve uint8

const (
	// CurveLinear is y = x.
	CurveLinear Curve = iota

	// CurveLogarithmic is y = ln(x(e-1)+1).
	CurveLogarithmic

	// CurveAudioTaper is y = x^2.5.
	CurveAudioTaper
)

var curveNames = map[Curve]string{
	CurveLinear:      "linear",
	CurveLogarithmic: "logarithmic",
	CurveAudioTaper:  "audio-taper",
}

// String returns the curve name.
func (c Curve) String() string {
	if s, ok := curveNames[c]; ok {
		return s
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (c Curve) MarshalText() ([]byte, error) {
	if _, ok := curveNames[c]; !ok {
		return nil, fmt.Errorf("unknown curve %d", c)
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Curve) UnmarshalText(text []byte) error {
	v, err := parseEnum(curveNames, string(text), "curve")
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// DefaultCurve returns the curve used when none is chosen: audio-taper for
// volume, linear otherwise.
func DefaultCurve(kind ParamKind) Curve {
	if kind == KindVolume {
		return CurveAudioTaper
	}
	return CurveLinear
}

// ParseCurve parses a curve name.
func ParseCurve(s string) (Curve, error) {
	return parseEnum(curveNames, s, "curve")
}

// ParseParamKind parses a parameter kind name.
func ParseParamKind(s string) (ParamKind, error) {
	return parseEnum(paramKindNames, s, "parameter kind")
}

func parseEnum[T comparable](names map[T]string, s, what string) (T, error) {
	for v, name := range names {
		if strings.EqualFold(name, s) {
			return v, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("unknown %s %q", what, s)
}
