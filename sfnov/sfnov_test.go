package sfnov

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
		{"valid", Config{WindowSize: 512, HopSize: 256, SampleRate: 44100}, false},
		{"window too small", Config{WindowSize: 1, HopSize: 1, SampleRate: 44100}, true},
		{"hop exceeds window", Config{WindowSize: 512, HopSize: 1024, SampleRate: 44100}, true},
		{"zero sample rate", Config{WindowSize: 512, HopSize: 256, SampleRate: 0}, true},
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

func TestFirstWindowHasZeroNovelty(t *testing.T) {
	d, err := New(Config{WindowSize: 256, HopSize: 256, SampleRate: 16000})
	require.NoError(t, err)

	samples := sineSamples(256, 440, 16000)

	var got float64
	var calls int
	d.Process(samples, func(_ *Detector, novelty, _ float64) {
		got = novelty
		calls++
	})

	require.Equal(t, 1, calls)
	assert.Equal(t, 0.0, got)
}

func TestSilenceToToneProducesPositiveNovelty(t *testing.T) {
	d, err := New(Config{WindowSize: 256, HopSize: 256, SampleRate: 16000})
	require.NoError(t, err)

	silence := make([]float64, 256)
	tone := sineSamples(256, 1000, 16000)

	var novelties []float64
	d.Process(silence, func(_ *Detector, n, _ float64) { novelties = append(novelties, n) })
	d.Process(tone, func(_ *Detector, n, _ float64) { novelties = append(novelties, n) })

	require.Len(t, novelties, 2)
	assert.Equal(t, 0.0, novelties[0])
	assert.Greater(t, novelties[1], 0.0)
}

func TestIdenticalConsecutiveWindowsHaveZeroNovelty(t *testing.T) {
	d, err := New(Config{WindowSize: 256, HopSize: 256, SampleRate: 16000})
	require.NoError(t, err)

	tone := sineSamples(256, 300, 16000)
	repeated := append(append([]float64(nil), tone...), tone...)

	var novelties []float64
	d.Process(repeated, func(_ *Detector, n, _ float64) { novelties = append(novelties, n) })

	require.Len(t, novelties, 2)
	assert.InDelta(t, 0.0, novelties[1], 1e-6)
}

func TestCompressedSpectrumAndDifferenceLengths(t *testing.T) {
	d, err := New(Config{WindowSize: 128, HopSize: 128, SampleRate: 8000})
	require.NoError(t, err)

	samples := sineSamples(256, 200, 8000)
	d.Process(samples, nil)

	nBins := 128/2 + 1
	spec := make([]float64, nBins)
	diff := make([]float64, nBins)

	n := d.CompressedSpectrum(spec)
	assert.Equal(t, nBins, n)

	n = d.SpectrumDifference(diff)
	assert.Equal(t, nBins, n)
}

func TestRunningState(t *testing.T) {
	d, err := New(Config{WindowSize: 64, HopSize: 64, SampleRate: 8000})
	require.NoError(t, err)

	assert.False(t, d.Running())
	d.Process(make([]float64, 63), nil)
	assert.False(t, d.Running())
	d.Process(make([]float64, 1), nil)
	assert.True(t, d.Running())
}
