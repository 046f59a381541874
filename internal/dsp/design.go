package dsp

import (
	"fmt"
	"math"
	"math/cmplx"
	"sort"
)

// rootTol decides when a z-plane pole is treated as purely real.
const rootTol = 1e-12

// Section holds the coefficients of one second-order section. a0 is normalized
// to 1 and not stored. Processing uses Direct Form II Transposed:
//
//	y  = B0*x + d0
//	d0 = B1*x - A1*y + d1
//	d1 = B2*x - A2*y
type Section struct {
	B0, B1, B2 float64
	A1, A2     float64
}

// Response returns H(e^jw) of the section at the given frequency.
func (s Section) Response(freq, sampleRate float64) complex128 {
	w := 2 * math.Pi * freq / sampleRate
	e1 := cmplx.Exp(complex(0, -w))
	e2 := e1 * e1

	num := complex(s.B0, 0) + complex(s.B1, 0)*e1 + complex(s.B2, 0)*e2
	den := 1 + complex(s.A1, 0)*e1 + complex(s.A2, 0)*e2
	return num / den
}

// Poles returns the roots of 1 + A1*z^-1 + A2*z^-2.
func (s Section) Poles() [2]complex128 {
	disc := cmplx.Sqrt(complex(s.A1*s.A1-4*s.A2, 0))
	return [2]complex128{
		(complex(-s.A1, 0) + disc) / 2,
		(complex(-s.A1, 0) - disc) / 2,
	}
}

// Description is an immutable cascade of second-order sections approximating a
// band-pass response. The zero value has no sections and passes nothing useful;
// build one with DesignBandpass.
type Description struct {
	sections   []Section
	band       Band
	sampleRate float64
	order      int
}

// InvalidBandError reports band edges that cannot be realized at the sample rate.
type InvalidBandError struct {
	Band    Band
	Nyquist float64
	Reason  string
}

func (e *InvalidBandError) Error() string {
	return fmt.Sprintf("invalid band %v (nyquist %g Hz): %s", e.Band, e.Nyquist, e.Reason)
}

// InvalidOrderError reports a filter order that does not split into whole sections.
type InvalidOrderError struct {
	Order int
}

func (e *InvalidOrderError) Error() string {
	return fmt.Sprintf("invalid filter order %d: must be an even number >= 2", e.Order)
}

// ValidateBand checks 0 < low < high < nyquist.
func ValidateBand(band Band, sampleRate float64) error {
	nyq := 0.5 * sampleRate
	fail := func(reason string) error {
		return &InvalidBandError{Band: band, Nyquist: nyq, Reason: reason}
	}
	switch {
	case !(band.Low > 0):
		return fail("low edge must be above 0 Hz")
	case !(band.High < nyq):
		return fail("high edge must be below nyquist")
	case !(band.Low < band.High):
		return fail("low edge must be below high edge")
	}
	return nil
}

// ValidateOrder checks that order is even and at least 2.
func ValidateOrder(order int) error {
	if order < 2 || order%2 != 0 {
		return &InvalidOrderError{Order: order}
	}
	return nil
}

// DesignBandpass designs a Butterworth band-pass of the given total order as a
// cascade of order/2 second-order sections. The gain at the band centre is 1.
//
// The analog low-pass prototype of order/2 is shifted to the band with the
// low-pass to band-pass transform and mapped to the z-plane with a bilinear
// transform whose band edges are pre-warped.
func DesignBandpass(band Band, sampleRate float64, order int) (Description, error) {
	if err := ValidateBand(band, sampleRate); err != nil {
		return Description{}, err
	}
	if err := ValidateOrder(order); err != nil {
		return Description{}, err
	}

	n := order / 2
	fs := sampleRate
	wl := 2 * fs * math.Tan(math.Pi*band.Low/fs)
	wh := 2 * fs * math.Tan(math.Pi*band.High/fs)
	bw := wh - wl
	w0sq := wl * wh

	var sections []Section
	var reals []float64
	for k := range n {
		p := cmplx.Rect(1, math.Pi*float64(2*k+n+1)/float64(2*n))
		half := p * complex(bw/2, 0)
		root := cmplx.Sqrt(half*half - complex(w0sq, 0))

		for _, s := range [2]complex128{half + root, half - root} {
			z := (complex(2*fs, 0) + s) / (complex(2*fs, 0) - s)
			switch im := imag(z); {
			case math.Abs(im) <= rootTol:
				reals = append(reals, real(z))
			case im > 0:
				sections = append(sections, Section{
					B0: 1, B2: -1,
					A1: -2 * real(z),
					A2: real(z)*real(z) + imag(z)*imag(z),
				})
			}
		}
	}

	sort.Float64s(reals)
	for i := 0; i+1 < len(reals); i += 2 {
		sections = append(sections, Section{
			B0: 1, B2: -1,
			A1: -(reals[i] + reals[i+1]),
			A2: reals[i] * reals[i+1],
		})
	}
	if len(sections) != n {
		return Description{}, fmt.Errorf("band-pass design produced %d sections, expected %d", len(sections), n)
	}

	// Least resonant sections first keeps intermediate signal levels low.
	sort.SliceStable(sections, func(i, j int) bool { return sections[i].A2 < sections[j].A2 })

	d := Description{sections: sections, band: band, sampleRate: sampleRate, order: order}

	centre := fs / math.Pi * math.Atan(math.Sqrt(w0sq)/(2*fs))
	mag := cmplx.Abs(d.Response(centre))
	if mag == 0 || math.IsNaN(mag) || math.IsInf(mag, 0) {
		return Description{}, fmt.Errorf("band-pass design has degenerate gain %g at %g Hz", mag, centre)
	}
	g := math.Pow(1/mag, 1/float64(n))
	for i := range d.sections {
		d.sections[i].B0 *= g
		d.sections[i].B1 *= g
		d.sections[i].B2 *= g
	}

	return d, nil
}

// Len returns the number of sections.
func (d Description) Len() int { return len(d.sections) }

// Order returns the total filter order.
func (d Description) Order() int { return d.order }

// Band returns the band the cascade was designed for.
func (d Description) Band() Band { return d.band }

// SampleRate returns the sample rate the cascade was designed for.
func (d Description) SampleRate() float64 { return d.sampleRate }

// Sections returns a copy of the section coefficients.
func (d Description) Sections() []Section {
	return append([]Section(nil), d.sections...)
}

// Response returns the complex response of the whole cascade at freq Hz.
func (d Description) Response(freq float64) complex128 {
	h := complex(1, 0)
	for _, s := range d.sections {
		h *= s.Response(freq, d.sampleRate)
	}
	return h
}

// Magnitude returns |H| of the cascade at freq Hz.
func (d Description) Magnitude(freq float64) float64 {
	return cmplx.Abs(d.Response(freq))
}

// Poles returns every pole of the cascade, two per section.
func (d Description) Poles() []complex128 {
	out := make([]complex128, 0, 2*len(d.sections))
	for _, s := range d.sections {
		p := s.Poles()
		out = append(out, p[0], p[1])
	}
	return out
}

// Stable reports whether every pole lies strictly inside the unit circle.
func (d Description) Stable() bool {
	if len(d.sections) == 0 {
		return false
	}
	for _, p := range d.Poles() {
		if !(cmplx.Abs(p) < 1) {
			return false
		}
	}
	return true
}
