package dsp

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrStateMismatch = errors.New("filter state does not match the cascade")
	ErrShortOutput   = errors.New("output buffer is shorter than the input block")
)

// NonFiniteError reports a NaN or infinite sample on the input or output side
// of the cascade.
type NonFiniteError struct {
	Index  int
	Value  float64
	Output bool
}

func (e *NonFiniteError) Error() string {
	side := "input"
	if e.Output {
		side = "output"
	}
	return fmt.Sprintf("non-finite %s sample %g at index %d", side, e.Value, e.Index)
}

// State is the delay line of a cascade: two values per section.
type State struct {
	z [][2]float64
}

// NewState returns an all-zero state sized for d.
func NewState(d Description) State {
	return State{z: make([][2]float64, len(d.sections))}
}

// Len returns the number of section vectors.
func (s State) Len() int { return len(s.z) }

// Vector returns the delay values of section i.
func (s State) Vector(i int) [2]float64 { return s.z[i] }

// Clone returns an independent copy.
func (s State) Clone() State {
	return State{z: append([][2]float64(nil), s.z...)}
}

// Reset zeroes every vector.
func (s State) Reset() {
	clear(s.z)
}

// Process filters block starting from st and returns the filtered block and
// the state to pass to the next call. st itself is never modified. On error
// the returned state is st.
func (d Description) Process(block Block, st State) (Block, State, error) {
	out := block
	if len(block.Samples) == 0 {
		out.Samples = []float64{}
		if st.Len() != len(d.sections) {
			return out, st, ErrStateMismatch
		}
		return out, st, nil
	}

	out.Samples = make([]float64, len(block.Samples))
	next := State{z: make([][2]float64, len(d.sections))}
	if err := d.ProcessInto(out.Samples, block.Samples, st, next); err != nil {
		return Block{Channel: block.Channel, SampleRate: block.SampleRate}, st, err
	}
	return out, next, nil
}

// ProcessInto filters src into dst[:len(src)] starting from cur and writes the
// resulting delay line into next. It does not allocate. cur is only read, so
// a failed call leaves it intact; next is undefined after an error. dst may be
// src.
func (d Description) ProcessInto(dst, src []float64, cur, next State) error {
	if cur.Len() != len(d.sections) || next.Len() != len(d.sections) {
		return ErrStateMismatch
	}
	if len(dst) < len(src) {
		return ErrShortOutput
	}
	for i, x := range src {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return &NonFiniteError{Index: i, Value: x}
		}
	}

	dst = dst[:len(src)]
	copy(dst, src)

	// Running each section over the whole block performs the same arithmetic,
	// in the same order, as pushing every sample through the full cascade.
	for i := range d.sections {
		s := &d.sections[i]
		d0, d1 := cur.z[i][0], cur.z[i][1]
		for j, x := range dst {
			y := s.B0*x + d0
			d0 = s.B1*x - s.A1*y + d1
			d1 = s.B2*x - s.A2*y
			dst[j] = y
		}
		next.z[i] = [2]float64{d0, d1}
	}

	for j, y := range dst {
		if math.IsNaN(y) || math.IsInf(y, 0) {
			return &NonFiniteError{Index: j, Value: y, Output: true}
		}
	}
	return nil
}
