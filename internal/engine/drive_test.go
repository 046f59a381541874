package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bandwatch/internal/dsp"
	"bandwatch/internal/source"
)

func toneSource(t *testing.T, rate int, length time.Duration) *source.Tone {
	t.Helper()
	tone, err := source.NewTone(source.ToneConfig{
		SampleRate: rate,
		Frequency:  1500,
		Amplitude:  1,
		Length:     length,
	})
	require.NoError(t, err)
	return tone
}

func TestDrive_Unpaced(t *testing.T) {
	e := newEngine(t)
	err := Drive(context.Background(), e, toneSource(t, rate, time.Second), Unpaced(), StartAt(epoch))
	require.NoError(t, err)

	st := e.Stats()
	assert.Equal(t, uint64(rate), st.Samples)
	assert.Equal(t, uint64(22), st.Blocks)
	assert.Zero(t, st.StreamFaults)

	events := drainEvents(e)
	require.NotEmpty(t, events)
	assert.Equal(t, epoch, events[0].Time)
	assert.Equal(t, epoch.Add(dsp.SamplesDuration(3*blockSize, rate)), events[1].Time)
}

func TestDrive_PacedFlagsLag(t *testing.T) {
	cfg := testConfig()
	cfg.SampleRate = 8000
	cfg.BlockSize = 80
	e, err := New(cfg)
	require.NoError(t, err)

	// Every reading after the first claims to be an hour late.
	first := true
	clock := func() time.Time {
		if first {
			first = false
			return epoch
		}
		return epoch.Add(time.Hour)
	}

	err = Drive(context.Background(), e, toneSource(t, 8000, 50*time.Millisecond), withClock(clock))
	require.NoError(t, err)

	st := e.Stats()
	assert.Equal(t, uint64(5), st.Blocks)
	assert.Equal(t, uint64(5), st.StreamFaults)
}

func TestDrive_CancelStopsPacedRun(t *testing.T) {
	cfg := testConfig()
	cfg.SampleRate = 8000
	cfg.BlockSize = 80
	e, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	began := time.Now()
	require.NoError(t, Drive(ctx, e, toneSource(t, 8000, 0)))
	assert.Less(t, time.Since(began), time.Second)
	assert.Positive(t, e.Stats().Blocks)
}

func TestDrive_StoppedEngine(t *testing.T) {
	e := newEngine(t)
	e.Stop()
	require.NoError(t, Drive(context.Background(), e, toneSource(t, rate, 0), Unpaced()))
	assert.Zero(t, e.Stats().Blocks)
}

type failingSource struct{}

var errDevice = errors.New("device gone")

func (failingSource) Read([]float64) (dsp.Block, error) {
	return dsp.Block{}, errDevice
}

func TestDrive_SourceError(t *testing.T) {
	e := newEngine(t)
	err := Drive(context.Background(), e, failingSource{}, Unpaced())
	assert.ErrorIs(t, err, errDevice)
}
