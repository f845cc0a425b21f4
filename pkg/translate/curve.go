package translate

import (
	"math"

	"github.com/ucbridge/ucbridge-go/pkg/mapping"
)

const audioTaperExponent = 2.5

// Shape applies curve c to x. x is clamped to [0,1].
func Shape(c mapping.Curve, x float64) float64 {
	x = clamp01(x)
	switch c {
	case mapping.CurveLogarithmic:
		return math.Log(x*(math.E-1) + 1)
	case mapping.CurveAudioTaper:
		return math.Pow(x, audioTaperExponent)
	default:
		return x
	}
}

// InverseCurve undoes Shape. y is clamped to [0,1].
func InverseCurve(c mapping.Curve, y float64) float64 {
	y = clamp01(y)
	switch c {
	case mapping.CurveLogarithmic:
		return clamp01((math.Exp(y) - 1) / (math.E - 1))
	case mapping.CurveAudioTaper:
		return math.Pow(y, 1/audioTaperExponent)
	default:
		return y
	}
}

func clamp01(x float64) float64 {
	switch {
	case math.IsNaN(x), x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}

func clamp(x, lo, hi float64) float64 {
	switch {
	case math.IsNaN(x), x < lo:
		return lo
	case x > hi:
		return hi
	default:
		return x
	}
}
