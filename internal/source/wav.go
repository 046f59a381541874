package source

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"bandwatch/internal/dsp"
)

var (
	ErrNotWAV             = errors.New("not a valid WAV file")
	ErrUnsupportedFormat  = errors.New("unsupported WAV sample format")
	ErrChannelOutOfRange  = errors.New("channel index out of range")
	ErrSampleRateMismatch = errors.New("file sample rate is not an integer multiple of the configured rate")
)

const (
	// wavChunkFrames is how many frames one decoder call reads.
	wavChunkFrames = 4096

	wavFormatPCM        = 1
	wavFormatExtensible = 0xfffe
)

// WAV streams one channel of a PCM WAV file as float samples at the
// configured rate, decimating by an integer factor when the file is faster.
type WAV struct {
	path     string
	file     *os.File
	dec      *wav.Decoder
	buf      *audio.IntBuffer
	decim    *dsp.Decimator
	channel  int
	numChans int
	rate     int
	fileRate int
	offset   float64
	scale    float64
	mono     []float64
	pending  []float64
	eof      bool
}

// OpenWAV opens path and prepares channel for reading at rate Hz.
func OpenWAV(path string, channel, rate int) (*WAV, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	w, err := newWAV(path, f, channel, rate)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return w, nil
}

func newWAV(path string, f *os.File, channel, rate int) (*WAV, error) {
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%s: %w", path, ErrNotWAV)
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("%s: seek to PCM data: %w", path, err)
	}

	w := &WAV{
		path:     path,
		file:     f,
		dec:      dec,
		channel:  channel,
		numChans: int(dec.NumChans),
		rate:     rate,
		fileRate: int(dec.SampleRate),
	}

	switch dec.BitDepth {
	case 8:
		w.offset, w.scale = 128, 128
	case 16:
		w.scale = 1 << 15
	case 24:
		w.scale = 1 << 23
	case 32:
		w.scale = 1 << 31
	default:
		return nil, fmt.Errorf("%s: %w: %d-bit", path, ErrUnsupportedFormat, dec.BitDepth)
	}
	if dec.WavAudioFormat != wavFormatPCM && dec.WavAudioFormat != wavFormatExtensible {
		return nil, fmt.Errorf("%s: %w: audio format %d", path, ErrUnsupportedFormat, dec.WavAudioFormat)
	}
	if channel < 0 || channel >= w.numChans {
		return nil, fmt.Errorf("%s: %w: %d of %d", path, ErrChannelOutOfRange, channel, w.numChans)
	}
	if rate <= 0 || w.fileRate < rate || w.fileRate%rate != 0 {
		return nil, fmt.Errorf("%s: %w: %d Hz vs %d Hz", path, ErrSampleRateMismatch, w.fileRate, rate)
	}

	factor := w.fileRate / rate
	w.decim = dsp.NewDecimator(factor, 32*factor+1)
	w.buf = &audio.IntBuffer{
		Format: dec.Format(),
		Data:   make([]int, wavChunkFrames*w.numChans),
	}
	w.mono = make([]float64, 0, wavChunkFrames)
	return w, nil
}

// SampleRate returns the rate of the produced blocks.
func (w *WAV) SampleRate() int {
	return w.rate
}

// FileSampleRate returns the rate stored in the file.
func (w *WAV) FileSampleRate() int {
	return w.fileRate
}

// Decimation returns the integer factor between file and block rate.
func (w *WAV) Decimation() int {
	return w.decim.Factor()
}

// Read fills dst with the next samples of the selected channel. Only the last
// block of the file may be short; after it Read returns io.EOF.
func (w *WAV) Read(dst []float64) (dsp.Block, error) {
	for len(w.pending) < len(dst) && !w.eof {
		if err := w.fill(); err != nil {
			return dsp.Block{}, err
		}
	}

	n := copy(dst, w.pending)
	if n == 0 && w.eof {
		return dsp.Block{}, io.EOF
	}
	w.pending = append(w.pending[:0], w.pending[n:]...)

	return dsp.Block{
		Samples:    dst[:n],
		Channel:    w.channel,
		SampleRate: w.rate,
	}, nil
}

func (w *WAV) fill() error {
	n, err := w.dec.PCMBuffer(w.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%s: decode: %w", w.path, err)
	}

	w.mono = w.mono[:0]
	for i := 0; i+w.numChans <= n; i += w.numChans {
		v := float64(w.buf.Data[i+w.channel])
		w.mono = append(w.mono, (v-w.offset)/w.scale)
	}
	w.pending = w.decim.Process(w.pending, w.mono)

	if n == 0 || err != nil {
		w.eof = true
	}
	return nil
}

// Close releases the file.
func (w *WAV) Close() error {
	return w.file.Close()
}
