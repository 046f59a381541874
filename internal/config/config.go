package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/alecthomas/kingpin/v2"
	"gopkg.in/yaml.v3"

	"bandwatch/internal/detect"
	"bandwatch/internal/dsp"
	"bandwatch/internal/engine"
	"bandwatch/internal/source"
)

// FlagHolder is anything flags can be registered on, usually a
// *kingpin.Application or *kingpin.CmdClause.
type FlagHolder interface {
	Flag(name, help string) *kingpin.FlagClause
}

// Config holds all the configuration parameters of a run. Zero fields mean
// "not set" so that layers can be merged; New returns the defaults.
type Config struct {
	SampleRate    int           `yaml:"sampleRate,omitempty"`
	BlockSize     int           `yaml:"blockSize,omitempty"`
	Channel       int           `yaml:"channel,omitempty"`
	Band          dsp.Band      `yaml:"band,omitempty"`
	Order         int           `yaml:"order,omitempty"`
	Threshold     float64       `yaml:"threshold,omitempty"`
	Debounce      time.Duration `yaml:"debounce,omitempty"`
	Display       time.Duration `yaml:"display,omitempty"`
	HistorySource HistorySource `yaml:"historySource,omitempty"`
	EventQueue    int           `yaml:"eventQueue,omitempty"`

	Source  Source  `yaml:"source,omitempty"`
	Monitor Monitor `yaml:"monitor,omitempty"`
	Viewer  Viewer  `yaml:"viewer,omitempty"`
}

// Source selects and parameterizes the audio input.
type Source struct {
	Kind SourceKind `yaml:"kind,omitempty"`
	File string     `yaml:"file,omitempty"`
	Tone Tone       `yaml:"tone,omitempty"`
}

// Tone parameterizes the synthetic source.
type Tone struct {
	Frequency float64       `yaml:"frequency,omitempty"`
	Amplitude float64       `yaml:"amplitude,omitempty"`
	On        time.Duration `yaml:"on,omitempty"`
	Off       time.Duration `yaml:"off,omitempty"`
	Length    time.Duration `yaml:"length,omitempty"`
}

// Monitor controls playback of the filtered band.
type Monitor struct {
	Enabled bool          `yaml:"enabled,omitempty"`
	Latency time.Duration `yaml:"latency,omitempty"`
}

// Viewer controls the terminal visualization.
type Viewer struct {
	Enabled bool          `yaml:"enabled,omitempty"`
	Refresh time.Duration `yaml:"refresh,omitempty"`
}

// New returns a new Config with default values.
func New() Config {
	return Config{
		SampleRate:    44100,
		BlockSize:     2048,
		Channel:       0,
		Band:          dsp.Band{Low: 800, High: 2500},
		Order:         4,
		Threshold:     0.01,
		Debounce:      50 * time.Millisecond,
		Display:       10 * time.Second,
		HistorySource: HistoryFiltered,
		EventQueue:    256,
		Source: Source{
			Kind: SourceTone,
			Tone: Tone{
				Frequency: 1500,
				Amplitude: 1,
			},
		},
		Monitor: Monitor{Latency: 100 * time.Millisecond},
		Viewer:  Viewer{Refresh: 200 * time.Millisecond},
	}
}

// SetupConfiguration registers one flag per field. No flag has a default, so
// unset flags stay zero and lose against the file and the defaults in Merge.
func (this *Config) SetupConfiguration(using FlagHolder) {
	using.Flag("sampleRate", "Sample rate of the input stream in Hz.").
		Envar("BW_SAMPLE_RATE").
		IntVar(&this.SampleRate)
	using.Flag("blockSize", "Number of samples per processed block.").
		Envar("BW_BLOCK_SIZE").
		IntVar(&this.BlockSize)
	using.Flag("channel", "Input channel to monitor.").
		Envar("BW_CHANNEL").
		IntVar(&this.Channel)
	using.Flag("band.low", "Lower edge of the pass band in Hz.").
		Envar("BW_BAND_LOW").
		Float64Var(&this.Band.Low)
	using.Flag("band.high", "Upper edge of the pass band in Hz.").
		Envar("BW_BAND_HIGH").
		Float64Var(&this.Band.High)
	using.Flag("order", "Band-pass filter order, an even number.").
		Envar("BW_ORDER").
		IntVar(&this.Order)
	using.Flag("threshold", "RMS level of the band above which an event fires.").
		Envar("BW_THRESHOLD").
		Float64Var(&this.Threshold)
	using.Flag("debounce", "Minimum separation between two events.").
		Envar("BW_DEBOUNCE").
		DurationVar(&this.Debounce)
	using.Flag("display", "Duration of audio kept in the histories.").
		Envar("BW_DISPLAY").
		DurationVar(&this.Display)
	using.Flag("historySource", "Samples kept in the sample history. Possible values: "+AllHistorySources).
		Envar("BW_HISTORY_SOURCE").
		SetValue(&this.HistorySource)
	using.Flag("eventQueue", "Number of events buffered for the consumer.").
		Envar("BW_EVENT_QUEUE").
		IntVar(&this.EventQueue)

	using.Flag("source.kind", "Audio input. Possible values: "+AllSourceKinds).
		Envar("BW_SOURCE_KIND").
		SetValue(&this.Source.Kind)
	using.Flag("source.file", "WAV file to read when source.kind is wav.").
		Envar("BW_SOURCE_FILE").
		StringVar(&this.Source.File)
	using.Flag("source.tone.frequency", "Frequency of the synthetic tone in Hz.").
		Envar("BW_SOURCE_TONE_FREQUENCY").
		Float64Var(&this.Source.Tone.Frequency)
	using.Flag("source.tone.amplitude", "Amplitude of the synthetic tone.").
		Envar("BW_SOURCE_TONE_AMPLITUDE").
		Float64Var(&this.Source.Tone.Amplitude)
	using.Flag("source.tone.on", "Burst length of the synthetic tone.").
		Envar("BW_SOURCE_TONE_ON").
		DurationVar(&this.Source.Tone.On)
	using.Flag("source.tone.off", "Silence between bursts of the synthetic tone. Zero means continuous.").
		Envar("BW_SOURCE_TONE_OFF").
		DurationVar(&this.Source.Tone.Off)
	using.Flag("source.tone.length", "Stop the synthetic tone after this long. Zero runs until interrupted.").
		Envar("BW_SOURCE_TONE_LENGTH").
		DurationVar(&this.Source.Tone.Length)

	using.Flag("monitor", "Play the filtered band on the default audio output.").
		Envar("BW_MONITOR").
		BoolVar(&this.Monitor.Enabled)
	using.Flag("monitor.latency", "Output buffer of the monitor.").
		Envar("BW_MONITOR_LATENCY").
		DurationVar(&this.Monitor.Latency)
	using.Flag("viewer", "Show the terminal viewer.").
		Envar("BW_VIEWER").
		BoolVar(&this.Viewer.Enabled)
	using.Flag("viewer.refresh", "Refresh interval of the terminal viewer.").
		Envar("BW_VIEWER_REFRESH").
		DurationVar(&this.Viewer.Refresh)
}

// Merge fills every unset field of the first layer from the following ones,
// so earlier layers win.
func Merge(layers ...Config) (Config, error) {
	if len(layers) == 0 {
		return Config{}, nil
	}
	result := layers[0]
	for _, l := range layers[1:] {
		if err := mergo.Merge(&result, l); err != nil {
			return Config{}, fmt.Errorf("cannot merge configuration: %w", err)
		}
	}
	return result, nil
}

func (this *Config) loadFrom(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(this); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// LoadFile reads a YAML configuration. Unknown keys are an error.
func LoadFile(fn string) (Config, error) {
	var result Config
	f, err := os.Open(fn)
	if err != nil {
		return Config{}, fmt.Errorf("cannot open configuration file %q: %w", fn, err)
	}
	defer func() {
		_ = f.Close()
	}()

	if err := result.loadFrom(f); err != nil {
		return Config{}, fmt.Errorf("cannot load configuration file %q: %w", fn, err)
	}
	return result, nil
}

// SaveTo writes the configuration as YAML.
func (this Config) SaveTo(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(this); err != nil {
		return err
	}
	return enc.Close()
}

// Error reports one invalid field.
type Error struct {
	Field string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid configuration %s: %v", e.Field, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validate checks the whole configuration and returns every problem found,
// each as an *Error.
func (this Config) Validate() error {
	var errs []error
	fail := func(field string, err error) {
		errs = append(errs, &Error{Field: field, Err: err})
	}
	failf := func(field, format string, args ...any) {
		fail(field, fmt.Errorf(format, args...))
	}

	if this.SampleRate <= 0 {
		failf("sampleRate", "must be positive, got %d", this.SampleRate)
	}
	if this.BlockSize <= 0 {
		failf("blockSize", "must be positive, got %d", this.BlockSize)
	}
	if this.Channel < 0 {
		failf("channel", "must not be negative, got %d", this.Channel)
	}
	if this.SampleRate > 0 {
		if err := dsp.ValidateBand(this.Band, float64(this.SampleRate)); err != nil {
			fail("band", err)
		}
	}
	if err := dsp.ValidateOrder(this.Order); err != nil {
		fail("order", err)
	}
	dc := detect.Config{Band: this.Band, Threshold: this.Threshold, Debounce: this.Debounce}
	if err := dc.Validate(); err != nil {
		if errors.Is(err, detect.ErrInvalidThreshold) {
			fail("threshold", err)
		} else {
			fail("debounce", err)
		}
	}
	if this.Display <= 0 {
		failf("display", "must be positive, got %v", this.Display)
	}
	if this.EventQueue <= 0 {
		failf("eventQueue", "must be positive, got %d", this.EventQueue)
	}

	switch this.Source.Kind {
	case SourceWAV:
		if strings.TrimSpace(this.Source.File) == "" {
			failf("source.file", "required when source.kind is %v", SourceWAV)
		}
	case SourceTone:
		t := this.Source.Tone
		if nyq := float64(this.SampleRate) / 2; !(t.Frequency > 0) || t.Frequency >= nyq {
			failf("source.tone.frequency", "must be in (0, %g), got %g", nyq, t.Frequency)
		}
		if math.IsNaN(t.Amplitude) || math.IsInf(t.Amplitude, 0) {
			failf("source.tone.amplitude", "must be finite, got %g", t.Amplitude)
		}
		if t.On < 0 || t.Off < 0 || t.Length < 0 {
			failf("source.tone", "durations must not be negative")
		}
		if t.Off > 0 && t.On <= 0 {
			failf("source.tone.on", "must be positive when source.tone.off is set")
		}
	default:
		failf("source.kind", "must be one of %s", AllSourceKinds)
	}

	if this.Monitor.Enabled && this.Monitor.Latency <= 0 {
		failf("monitor.latency", "must be positive, got %v", this.Monitor.Latency)
	}
	if this.Viewer.Enabled && this.Viewer.Refresh <= 0 {
		failf("viewer.refresh", "must be positive, got %v", this.Viewer.Refresh)
	}

	return errors.Join(errs...)
}

// Engine returns the processing parameters.
func (this Config) Engine() engine.Config {
	hs := engine.HistoryFiltered
	if this.HistorySource == HistoryRaw {
		hs = engine.HistoryRaw
	}
	return engine.Config{
		SampleRate:    this.SampleRate,
		BlockSize:     this.BlockSize,
		Channel:       this.Channel,
		Band:          this.Band,
		Order:         this.Order,
		Threshold:     this.Threshold,
		Debounce:      this.Debounce,
		Display:       this.Display,
		HistorySource: hs,
		EventQueue:    this.EventQueue,
		NoticeQueue:   this.EventQueue,
	}
}

// ToneSource returns the parameters of the synthetic source.
func (this Config) ToneSource() source.ToneConfig {
	return source.ToneConfig{
		SampleRate: this.SampleRate,
		Channel:    this.Channel,
		Frequency:  this.Source.Tone.Frequency,
		Amplitude:  this.Source.Tone.Amplitude,
		On:         this.Source.Tone.On,
		Off:        this.Source.Tone.Off,
		Length:     this.Source.Tone.Length,
	}
}
