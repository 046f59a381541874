package main

import (
	"fmt"
	"io"
	"math"

	"github.com/charmbracelet/lipgloss"

	"bandwatch/internal/dsp"
)

var (
	headStyle = lipgloss.NewStyle().Bold(true)
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

func (this *app) design(w io.Writer) error {
	c, err := this.configuration()
	if err != nil {
		return err
	}

	d, err := dsp.DesignBandpass(c.Band, float64(c.SampleRate), c.Order)
	if err != nil {
		return err
	}
	return printDesign(w, d)
}

func printDesign(w io.Writer, d dsp.Description) error {
	var err error
	printf := func(format string, args ...any) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, args...)
		}
	}

	printf("%s\n", headStyle.Render(fmt.Sprintf("Butterworth band-pass %s, order %d at %g Hz", d.Band(), d.Order(), d.SampleRate())))
	printf("%s\n", dimStyle.Render("   b0              b1              b2              a1              a2"))
	for i, s := range d.Sections() {
		printf("%d  %+.8e %+.8e %+.8e %+.8e %+.8e\n", i, s.B0, s.B1, s.B2, s.A1, s.A2)
	}

	printf("\n%s\n", headStyle.Render("Response"))
	band := d.Band()
	for _, f := range []float64{band.Low / 2, band.Low, band.Center(), band.High, math.Min(band.High*2, d.SampleRate()/2*0.999)} {
		printf("%10.1f Hz  %7.2f dB\n", f, 20*math.Log10(d.Magnitude(f)))
	}

	stable := "stable"
	if !d.Stable() {
		stable = "UNSTABLE"
	}
	printf("\n%s\n", dimStyle.Render(stable))
	return err
}
