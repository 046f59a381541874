package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bandwatch/internal/dsp"
	"bandwatch/internal/engine"
)

func parseFlags(t *testing.T, args ...string) Config {
	t.Helper()
	var c Config
	app := kingpin.New("test", "")
	c.SetupConfiguration(app)
	_, err := app.Parse(args)
	require.NoError(t, err)
	return c
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	fn := filepath.Join(t.TempDir(), "bandwatch.yaml")
	require.NoError(t, os.WriteFile(fn, []byte(content), 0o600))
	return fn
}

func TestNew_IsValid(t *testing.T) {
	c := New()
	require.NoError(t, c.Validate())
	assert.Equal(t, 44100, c.SampleRate)
	assert.Equal(t, 2048, c.BlockSize)
	assert.Equal(t, dsp.Band{Low: 800, High: 2500}, c.Band)
	assert.Equal(t, 4, c.Order)
	assert.Equal(t, 0.01, c.Threshold)
	assert.Equal(t, 50*time.Millisecond, c.Debounce)
	assert.Equal(t, 10*time.Second, c.Display)
	assert.Equal(t, 200*time.Millisecond, c.Viewer.Refresh)
}

func TestFlags(t *testing.T) {
	c := parseFlags(t,
		"--sampleRate=48000",
		"--band.high=3000",
		"--order=6",
		"--debounce=120ms",
		"--historySource=raw",
		"--source.kind=wav",
		"--source.file=in.wav",
		"--viewer",
	)
	assert.Equal(t, 48000, c.SampleRate)
	assert.Equal(t, dsp.Band{High: 3000}, c.Band)
	assert.Equal(t, 6, c.Order)
	assert.Equal(t, 120*time.Millisecond, c.Debounce)
	assert.Equal(t, HistoryRaw, c.HistorySource)
	assert.Equal(t, SourceWAV, c.Source.Kind)
	assert.Equal(t, "in.wav", c.Source.File)
	assert.True(t, c.Viewer.Enabled)

	// Nothing given means nothing set.
	assert.Equal(t, Config{}, parseFlags(t))
}

func TestFlags_Envar(t *testing.T) {
	t.Setenv("BW_THRESHOLD", "0.25")
	t.Setenv("BW_SOURCE_TONE_OFF", "1s")
	c := parseFlags(t)
	assert.Equal(t, 0.25, c.Threshold)
	assert.Equal(t, time.Second, c.Source.Tone.Off)
}

func TestFlags_RejectsUnknownKinds(t *testing.T) {
	var c Config
	app := kingpin.New("test", "")
	c.SetupConfiguration(app)
	_, err := app.Parse([]string{"--source.kind=microphone"})
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	fn := writeFile(t, `
sampleRate: 48000
band:
  low: 300
threshold: 0.05
debounce: 80ms
historySource: raw
source:
  kind: tone
  tone:
    frequency: 1000
    on: 20ms
    off: 180ms
viewer:
  enabled: true
`)
	c, err := LoadFile(fn)
	require.NoError(t, err)
	assert.Equal(t, 48000, c.SampleRate)
	assert.Equal(t, dsp.Band{Low: 300}, c.Band)
	assert.Equal(t, 0.05, c.Threshold)
	assert.Equal(t, 80*time.Millisecond, c.Debounce)
	assert.Equal(t, HistoryRaw, c.HistorySource)
	assert.Equal(t, SourceTone, c.Source.Kind)
	assert.Equal(t, 1000.0, c.Source.Tone.Frequency)
	assert.Equal(t, 180*time.Millisecond, c.Source.Tone.Off)
	assert.True(t, c.Viewer.Enabled)
}

func TestLoadFile_Empty(t *testing.T) {
	c, err := LoadFile(writeFile(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Config{}, c)
}

func TestLoadFile_RejectsUnknownFields(t *testing.T) {
	_, err := LoadFile(writeFile(t, "sampleRate: 48000\nhold: 150ms\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hold")
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMerge_Precedence(t *testing.T) {
	flags := parseFlags(t, "--threshold=0.2", "--band.low=900")
	file, err := LoadFile(writeFile(t, "threshold: 0.05\norder: 8\nband:\n  high: 3000\n"))
	require.NoError(t, err)

	c, err := Merge(flags, file, New())
	require.NoError(t, err)

	assert.Equal(t, 0.2, c.Threshold, "flag beats file")
	assert.Equal(t, 8, c.Order, "file beats default")
	assert.Equal(t, dsp.Band{Low: 900, High: 3000}, c.Band)
	assert.Equal(t, 44100, c.SampleRate, "default fills the rest")
	assert.Equal(t, SourceTone, c.Source.Kind)
	require.NoError(t, c.Validate())
}

func TestSaveTo_LoadsBack(t *testing.T) {
	want := New()
	want.HistorySource = HistoryRaw
	want.Source.Tone.Off = 200 * time.Millisecond
	want.Source.Tone.On = 50 * time.Millisecond

	var buf bytes.Buffer
	require.NoError(t, want.SaveTo(&buf))
	assert.Contains(t, buf.String(), "debounce: 50ms")
	assert.Contains(t, buf.String(), "historySource: raw")

	var got Config
	require.NoError(t, got.loadFrom(&buf))
	assert.Equal(t, want, got)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		field  string
		mutate func(*Config)
	}{
		{"sampleRate", func(c *Config) { c.SampleRate = -1 }},
		{"blockSize", func(c *Config) { c.BlockSize = 0 }},
		{"channel", func(c *Config) { c.Channel = -1 }},
		{"band", func(c *Config) { c.Band.Low = 0 }},
		{"band", func(c *Config) { c.Band.High = 22050 }},
		{"band", func(c *Config) { c.Band = dsp.Band{Low: 2500, High: 800} }},
		{"order", func(c *Config) { c.Order = 5 }},
		{"threshold", func(c *Config) { c.Threshold = -0.1 }},
		{"debounce", func(c *Config) { c.Debounce = -time.Millisecond }},
		{"display", func(c *Config) { c.Display = 0 }},
		{"eventQueue", func(c *Config) { c.EventQueue = 0 }},
		{"source.kind", func(c *Config) { c.Source.Kind = 0 }},
		{"source.file", func(c *Config) { c.Source.Kind = SourceWAV }},
		{"source.tone.frequency", func(c *Config) { c.Source.Tone.Frequency = 30000 }},
		{"source.tone.on", func(c *Config) { c.Source.Tone.Off = time.Second }},
		{"viewer.refresh", func(c *Config) { c.Viewer = Viewer{Enabled: true} }},
		{"monitor.latency", func(c *Config) { c.Monitor = Monitor{Enabled: true} }},
	}

	for _, tc := range cases {
		t.Run(tc.field, func(t *testing.T) {
			c := New()
			tc.mutate(&c)
			err := c.Validate()
			require.Error(t, err)

			var ce *Error
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tc.field, ce.Field)
			assert.True(t, strings.HasPrefix(err.Error(), "invalid configuration "+tc.field))
		})
	}
}

func TestValidate_WrapsDesignErrors(t *testing.T) {
	c := New()
	c.Band.High = 30000
	c.Order = 3

	err := c.Validate()
	var bandErr *dsp.InvalidBandError
	var orderErr *dsp.InvalidOrderError
	assert.ErrorAs(t, err, &bandErr)
	assert.ErrorAs(t, err, &orderErr)
	assert.Len(t, err.(interface{ Unwrap() []error }).Unwrap(), 2)
	assert.False(t, errors.Is(err, os.ErrNotExist))
}

func TestEngine(t *testing.T) {
	c := New()
	c.HistorySource = HistoryRaw
	ec := c.Engine()
	assert.Equal(t, engine.HistoryRaw, ec.HistorySource)
	assert.Equal(t, c.Band, ec.Band)
	assert.Equal(t, c.Debounce, ec.Debounce)

	_, err := engine.New(ec)
	assert.NoError(t, err)

	tc := c.ToneSource()
	assert.Equal(t, 1500.0, tc.Frequency)
	assert.Equal(t, 44100, tc.SampleRate)
}

func TestKinds(t *testing.T) {
	var hs HistorySource
	require.NoError(t, hs.Set(" Filtered "))
	assert.Equal(t, HistoryFiltered, hs)
	assert.Error(t, hs.Set("cooked"))

	var sk SourceKind
	require.NoError(t, sk.Set("file"))
	assert.Equal(t, "wav", sk.String())
	assert.Equal(t, "illegal-source-kind-9", SourceKind(9).String())
}
