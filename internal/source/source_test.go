package source

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bandwatch/internal/dsp"
)

func readAll(t *testing.T, read func([]float64) (dsp.Block, error), blockSize int) ([]float64, []dsp.Block) {
	t.Helper()
	var all []float64
	var blocks []dsp.Block
	for {
		buf := make([]float64, blockSize)
		b, err := read(buf)
		if err == io.EOF {
			return all, blocks
		}
		require.NoError(t, err)
		all = append(all, b.Samples...)
		blocks = append(blocks, b)
	}
}

func writeWAV(t *testing.T, rate, bitDepth, numChans int, data []int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(f, rate, bitDepth, numChans, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: numChans, SampleRate: rate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
	return path
}

func TestTone_Continuous(t *testing.T) {
	tone, err := NewTone(ToneConfig{SampleRate: 8000, Channel: 1, Frequency: 1000, Amplitude: 0.5, Length: time.Second})
	require.NoError(t, err)

	all, blocks := readAll(t, tone.Read, 300)
	require.Len(t, all, 8000)
	assert.Len(t, blocks, 27)
	assert.Equal(t, 200, blocks[len(blocks)-1].Len())
	for _, b := range blocks {
		assert.Equal(t, 1, b.Channel)
		assert.Equal(t, 8000, b.SampleRate)
	}

	for i, v := range all {
		want := 0.5 * math.Sin(2*math.Pi*1000*float64(i)/8000)
		require.InDelta(t, want, v, 1e-9, "sample %d", i)
	}
}

func TestTone_Bursts(t *testing.T) {
	tone, err := NewTone(ToneConfig{
		SampleRate: 1000,
		Frequency:  250,
		Amplitude:  1,
		On:         10 * time.Millisecond,
		Off:        20 * time.Millisecond,
		Length:     90 * time.Millisecond,
	})
	require.NoError(t, err)

	all, _ := readAll(t, tone.Read, 7)
	require.Len(t, all, 90)
	for i, v := range all {
		if i%30 >= 10 {
			assert.Equal(t, 0.0, v, "sample %d", i)
			continue
		}
		// The oscillator keeps running through the gaps.
		assert.InDelta(t, math.Sin(2*math.Pi*250*float64(i)/1000), v, 1e-9, "sample %d", i)
	}
}

func TestNewTone_Rejects(t *testing.T) {
	for _, cfg := range []ToneConfig{
		{SampleRate: 0, Frequency: 100},
		{SampleRate: 8000, Frequency: 4000},
		{SampleRate: 8000, Frequency: -1},
		{SampleRate: 8000, Frequency: 100, Amplitude: math.Inf(1)},
		{SampleRate: 8000, Frequency: 100, Off: -time.Second},
	} {
		_, err := NewTone(cfg)
		assert.Error(t, err, "%+v", cfg)
	}
}

func TestWAV_SelectsChannel(t *testing.T) {
	const frames = 10000
	data := make([]int, 2*frames)
	for i := range frames {
		data[2*i] = 1000
		data[2*i+1] = int(math.Round(16000 * math.Sin(2*math.Pi*440*float64(i)/44100)))
	}
	path := writeWAV(t, 44100, 16, 2, data)

	w, err := OpenWAV(path, 1, 44100)
	require.NoError(t, err)
	defer w.Close()
	assert.Equal(t, 1, w.Decimation())
	assert.Equal(t, 44100, w.FileSampleRate())

	all, blocks := readAll(t, w.Read, 2048)
	require.Len(t, all, frames)
	assert.Equal(t, 1, blocks[0].Channel)
	assert.Equal(t, 44100, blocks[0].SampleRate)
	for i := range frames {
		require.InDelta(t, float64(data[2*i+1])/32768, all[i], 1e-12, "frame %d", i)
	}

	// Exhausted sources keep reporting EOF.
	_, err = w.Read(make([]float64, 16))
	assert.Equal(t, io.EOF, err)
}

func TestWAV_24Bit(t *testing.T) {
	data := []int{0, 1 << 22, -(1 << 22), (1 << 23) - 1, -(1 << 23)}
	path := writeWAV(t, 8000, 24, 1, data)

	w, err := OpenWAV(path, 0, 8000)
	require.NoError(t, err)
	defer w.Close()

	all, _ := readAll(t, w.Read, 64)
	require.Len(t, all, len(data))
	assert.InDelta(t, 0.5, all[1], 1e-9)
	assert.InDelta(t, -0.5, all[2], 1e-9)
	assert.InDelta(t, -1, all[4], 1e-9)
}

func TestWAV_Decimates(t *testing.T) {
	const frames = 88200
	data := make([]int, frames)
	for i := range data {
		data[i] = int(math.Round(20000 * math.Sin(2*math.Pi*1500*float64(i)/88200)))
	}
	path := writeWAV(t, 88200, 16, 1, data)

	w, err := OpenWAV(path, 0, 44100)
	require.NoError(t, err)
	defer w.Close()
	assert.Equal(t, 2, w.Decimation())
	assert.Equal(t, 44100, w.SampleRate())

	all, _ := readAll(t, w.Read, 2048)
	require.Len(t, all, frames/2)

	// Past the filter delay the tone passes at its original level.
	assert.InDelta(t, 20000.0/32768/math.Sqrt2, dsp.RMS(all[1000:]), 0.01)
}

func TestOpenWAV_Rejects(t *testing.T) {
	path := writeWAV(t, 48000, 16, 1, make([]int, 100))

	_, err := OpenWAV(path, 0, 44100)
	assert.ErrorIs(t, err, ErrSampleRateMismatch)

	_, err = OpenWAV(path, 1, 48000)
	assert.ErrorIs(t, err, ErrChannelOutOfRange)

	_, err = OpenWAV(path, 0, 96000)
	assert.ErrorIs(t, err, ErrSampleRateMismatch)

	junk := filepath.Join(t.TempDir(), "junk.wav")
	require.NoError(t, os.WriteFile(junk, []byte("definitely not a riff file, just some text"), 0o600))
	_, err = OpenWAV(junk, 0, 44100)
	assert.ErrorIs(t, err, ErrNotWAV)

	_, err = OpenWAV(filepath.Join(t.TempDir(), "missing.wav"), 0, 44100)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
