package dsp

import "math"

// DesignFIRLowPass creates a low-pass FIR filter using the windowed-sinc method.
// cutoff is given as a fraction of the sample rate (0 < cutoff < 0.5). The taps
// are Hamming windowed and normalized to unity DC gain.
func DesignFIRLowPass(numTaps int, cutoff float64) []float64 {
	if numTaps < 3 {
		numTaps = 3
	}
	taps := make([]float64, numTaps)
	M := float64(numTaps - 1)
	// Normalized to the Nyquist frequency (0.5 * sample_rate).
	fc := cutoff * 2
	for n := range taps {
		x := float64(n) - M/2
		if x == 0 {
			taps[n] = fc
		} else {
			taps[n] = fc * math.Sin(math.Pi*fc*x) / (math.Pi * fc * x)
		}
		taps[n] *= 0.54 - 0.46*math.Cos(2*math.Pi*float64(n)/M)
	}

	sum := 0.0
	for _, t := range taps {
		sum += t
	}
	for i := range taps {
		taps[i] /= sum
	}
	return taps
}

// Decimator low-pass filters a stream and keeps every factor-th sample. The
// filter history and the decimation phase carry over between calls, so a
// stream processed in pieces yields the same output as one processed whole.
type Decimator struct {
	taps   []float64
	factor int
	hist   []float64
	work   []float64
	phase  int
}

// NewDecimator creates a decimator reducing the rate by factor. The anti-alias
// cutoff sits just below the output Nyquist frequency.
func NewDecimator(factor, numTaps int) *Decimator {
	if factor < 1 {
		factor = 1
	}
	taps := DesignFIRLowPass(numTaps, 0.45/float64(factor))
	return &Decimator{
		taps:   taps,
		factor: factor,
		hist:   make([]float64, len(taps)-1),
	}
}

// Factor returns the decimation factor.
func (d *Decimator) Factor() int {
	return d.factor
}

// Process appends the decimated output for src to dst and returns it.
func (d *Decimator) Process(dst, src []float64) []float64 {
	if d.factor == 1 {
		return append(dst, src...)
	}

	h := len(d.hist)
	d.work = append(d.work[:0], d.hist...)
	d.work = append(d.work, src...)

	for k := h; k < len(d.work); k++ {
		if d.phase == 0 {
			// The taps are symmetric, so the window orientation does not matter.
			var acc float64
			window := d.work[k-h : k+1]
			for j, t := range d.taps {
				acc += window[j] * t
			}
			dst = append(dst, acc)
		}
		d.phase++
		if d.phase == d.factor {
			d.phase = 0
		}
	}

	copy(d.hist, d.work[len(d.work)-h:])
	return dst
}
