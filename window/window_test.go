package window

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sineSamples(n int, freq, sampleRate float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * freq * float64(i) / sampleRate)
	}
	return out
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{WindowSize: 1024, HopSize: 512, Downsampling: 1, SampleRate: 44100}, false},
		{"zero window", Config{WindowSize: 0, HopSize: 1, Downsampling: 1, SampleRate: 44100}, true},
		{"zero hop", Config{WindowSize: 1024, HopSize: 0, Downsampling: 1, SampleRate: 44100}, true},
		{"hop exceeds window", Config{WindowSize: 1024, HopSize: 2048, Downsampling: 1, SampleRate: 44100}, true},
		{"zero downsampling", Config{WindowSize: 1024, HopSize: 512, Downsampling: 0, SampleRate: 44100}, true},
		{"zero sample rate", Config{WindowSize: 1024, HopSize: 512, Downsampling: 1, SampleRate: 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

// S5 — overlap test: hop_size = window_size/2, feed 2*window_size samples.
// Expect exactly 3 readings at effective indices window_size, window_size+hop,
// window_size+2*hop.
func TestOverlapEmissionCount(t *testing.T) {
	const windowSize = 1024
	const hop = windowSize / 2

	d, err := New(Config{WindowSize: windowSize, HopSize: hop, Downsampling: 1, SampleRate: 44100})
	require.NoError(t, err)

	samples := sineSamples(2*windowSize, 220, 44100)

	var indices []int
	d.Process(samples, func(_ []float64, effIndex int) {
		indices = append(indices, effIndex)
	})

	assert.Equal(t, []int{windowSize, windowSize + hop, windowSize + 2*hop}, indices)
}

func TestNoOverlapSlidingBlock(t *testing.T) {
	const windowSize = 256
	d, err := New(Config{WindowSize: windowSize, HopSize: windowSize, Downsampling: 1, SampleRate: 8000})
	require.NoError(t, err)

	samples := make([]float64, windowSize*3)
	for i := range samples {
		samples[i] = float64(i)
	}

	var calls int
	var lastWindow []float64
	d.Process(samples, func(w []float64, _ int) {
		calls++
		lastWindow = append([]float64(nil), w...)
	})

	assert.Equal(t, 3, calls)
	require.Len(t, lastWindow, windowSize)
	assert.Equal(t, float64(2*windowSize), lastWindow[0])
}

func TestDownsamplingAveragesEffectiveSamples(t *testing.T) {
	d, err := New(Config{WindowSize: 4, HopSize: 4, Downsampling: 4, SampleRate: 48000})
	require.NoError(t, err)

	input := []float64{
		1, 1, 1, 1, // -> 1
		2, 2, 2, 2, // -> 2
		3, 3, 3, 3, // -> 3
		4, 4, 4, 4, // -> 4
	}

	var got []float64
	d.Process(input, func(w []float64, _ int) {
		got = append([]float64(nil), w...)
	})

	assert.Equal(t, []float64{1, 2, 3, 4}, got)
}

func TestPartialInputAcrossCalls(t *testing.T) {
	d, err := New(Config{WindowSize: 2, HopSize: 2, Downsampling: 3, SampleRate: 8000})
	require.NoError(t, err)

	var emitted bool
	d.Process([]float64{1, 1}, func(_ []float64, _ int) { emitted = true })
	assert.False(t, emitted, "decimation sum should carry across Process calls")

	d.Process([]float64{1}, func(_ []float64, _ int) { emitted = true })
	assert.False(t, emitted, "window not yet full after first effective sample")
}

func TestOrderingWithinOneProcessCall(t *testing.T) {
	const windowSize = 64
	const hop = 16
	d, err := New(Config{WindowSize: windowSize, HopSize: hop, Downsampling: 1, SampleRate: 16000})
	require.NoError(t, err)

	samples := sineSamples(windowSize+3*hop, 440, 16000)

	var indices []int
	d.Process(samples, func(_ []float64, effIndex int) {
		indices = append(indices, effIndex)
	})

	for i := 1; i < len(indices); i++ {
		assert.Greater(t, indices[i], indices[i-1])
	}
}

func TestRunningState(t *testing.T) {
	d, err := New(Config{WindowSize: 8, HopSize: 8, Downsampling: 1, SampleRate: 8000})
	require.NoError(t, err)

	assert.False(t, d.Running())
	d.Process(make([]float64, 7), nil)
	assert.False(t, d.Running())
	d.Process(make([]float64, 1), nil)
	assert.True(t, d.Running())
}
