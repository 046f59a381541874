package dsp

import (
	"math"

	"github.com/cwbudde/algo-vecmath"
)

// RMS returns the root mean square of x, or 0 for an empty slice.
func RMS(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

// Energy computes block RMS with vectorized squaring into a scratch buffer
// sized once up front. It is not safe for concurrent use.
type Energy struct {
	squares []float64
}

// NewEnergy returns an Energy able to handle blocks of up to maxLen samples
// without allocating. Longer blocks fall back to RMS.
func NewEnergy(maxLen int) *Energy {
	return &Energy{squares: make([]float64, maxLen)}
}

// RMS returns the root mean square of x.
func (e *Energy) RMS(x []float64) float64 {
	n := len(x)
	if n == 0 {
		return 0
	}
	if n > len(e.squares) {
		return RMS(x)
	}

	sq := e.squares[:n]
	vecmath.MulBlock(sq, x, x)

	var sum float64
	for _, v := range sq {
		sum += v
	}
	return math.Sqrt(sum / float64(n))
}
