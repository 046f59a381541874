package dsp

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSignal(n int, rate float64) []float64 {
	rng := rand.New(rand.NewSource(1))
	out := make([]float64, n)
	for i := range out {
		t := float64(i) / rate
		out[i] = 0.6*math.Sin(2*math.Pi*1500*t) + 0.3*math.Sin(2*math.Pi*200*t) + 0.1*(rng.Float64()*2-1)
	}
	return out
}

func mustDesign(t *testing.T) Description {
	t.Helper()
	d, err := DesignBandpass(Band{Low: 800, High: 2500}, 44100, 4)
	require.NoError(t, err)
	return d
}

func TestProcess_ChunkedMatchesOnePass(t *testing.T) {
	d := mustDesign(t)
	signal := testSignal(20000, 44100)

	whole, _, err := d.Process(Block{Samples: signal, SampleRate: 44100}, NewState(d))
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(3))
	st := NewState(d)
	var chunked []float64
	for rest := signal; len(rest) > 0; {
		n := min(rng.Intn(3000), len(rest))
		var out Block
		out, st, err = d.Process(Block{Samples: rest[:n], SampleRate: 44100}, st)
		require.NoError(t, err)
		chunked = append(chunked, out.Samples...)
		rest = rest[n:]
	}

	require.Len(t, chunked, len(whole.Samples))
	for i := range chunked {
		assert.InDelta(t, whole.Samples[i], chunked[i], 1e-12, "sample %d", i)
	}
}

func TestProcessInto_DoubleBufferedStateMatchesOnePass(t *testing.T) {
	d := mustDesign(t)
	signal := testSignal(8192, 44100)

	whole, _, err := d.Process(Block{Samples: signal, SampleRate: 44100}, NewState(d))
	require.NoError(t, err)

	cur, next := NewState(d), NewState(d)
	out := make([]float64, 2048)
	var got []float64
	for i := 0; i < len(signal); i += 2048 {
		require.NoError(t, d.ProcessInto(out, signal[i:i+2048], cur, next))
		cur, next = next, cur
		got = append(got, out...)
	}

	for i := range got {
		assert.InDelta(t, whole.Samples[i], got[i], 1e-12, "sample %d", i)
	}
}

func TestProcess_DoesNotModifyInputState(t *testing.T) {
	d := mustDesign(t)
	st := NewState(d)
	_, next, err := d.Process(Block{Samples: testSignal(256, 44100), SampleRate: 44100}, st)
	require.NoError(t, err)

	for i := range st.Len() {
		assert.Equal(t, [2]float64{}, st.Vector(i))
	}
	assert.NotEqual(t, st.z, next.z)
}

func TestProcess_EmptyBlock(t *testing.T) {
	d := mustDesign(t)
	_, st, err := d.Process(Block{Samples: testSignal(100, 44100), SampleRate: 44100}, NewState(d))
	require.NoError(t, err)
	before := st.Clone()

	out, after, err := d.Process(Block{Channel: 2, SampleRate: 44100}, st)
	require.NoError(t, err)
	assert.Empty(t, out.Samples)
	assert.NotNil(t, out.Samples)
	assert.Equal(t, 2, out.Channel)
	assert.Equal(t, before.z, after.z)
}

func TestProcess_NonFiniteLeavesStateUntouched(t *testing.T) {
	d := mustDesign(t)
	_, st, err := d.Process(Block{Samples: testSignal(100, 44100), SampleRate: 44100}, NewState(d))
	require.NoError(t, err)
	before := st.Clone()

	bad := testSignal(64, 44100)
	bad[17] = math.NaN()
	_, after, err := d.Process(Block{Samples: bad, SampleRate: 44100}, st)

	var nf *NonFiniteError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, 17, nf.Index)
	assert.False(t, nf.Output)
	assert.Equal(t, before.z, after.z)
	assert.Equal(t, before.z, st.z)
}

func TestProcess_OverflowOnOutput(t *testing.T) {
	d := Description{sections: []Section{{B0: 1e10}}, sampleRate: 44100}
	_, _, err := d.Process(Block{Samples: []float64{1, 1e300}, SampleRate: 44100}, NewState(d))

	var nf *NonFiniteError
	require.ErrorAs(t, err, &nf)
	assert.True(t, nf.Output)
	assert.Equal(t, 1, nf.Index)
}

func TestProcessInto_Mismatch(t *testing.T) {
	d := mustDesign(t)
	other, err := DesignBandpass(Band{Low: 800, High: 2500}, 44100, 8)
	require.NoError(t, err)

	src := make([]float64, 16)
	assert.ErrorIs(t, d.ProcessInto(make([]float64, 16), src, NewState(other), NewState(d)), ErrStateMismatch)
	assert.ErrorIs(t, d.ProcessInto(make([]float64, 8), src, NewState(d), NewState(d)), ErrShortOutput)
}

func TestState_Reset(t *testing.T) {
	d := mustDesign(t)
	_, st, err := d.Process(Block{Samples: testSignal(100, 44100), SampleRate: 44100}, NewState(d))
	require.NoError(t, err)

	st.Reset()
	for i := range st.Len() {
		assert.Equal(t, [2]float64{}, st.Vector(i))
	}
}
