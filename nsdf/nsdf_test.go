package nsdf

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func sineWindow(n int, freq, sampleRate float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * freq * float64(i) / sampleRate)
	}
	return out
}

func TestNewValidation(t *testing.T) {
	_, err := New(-1, 10)
	require.Error(t, err)

	_, err = New(10, 5)
	require.Error(t, err)

	e, err := New(5, 10)
	require.NoError(t, err)
	assert.Equal(t, 6, e.LagCount())
}

// Invariant 1: NSDF at lag 0 is exactly 1.0 for any non-zero window.
func TestAnchorAtLagZero(t *testing.T) {
	e, err := New(0, 50)
	require.NoError(t, err)

	win := sineWindow(256, 440, 44100)
	out := e.Compute(win)
	assert.InDelta(t, 1.0, out[0], 1e-9)
}

func TestAllZeroWindowProducesAllZeroNSDF(t *testing.T) {
	e, err := New(1, 100)
	require.NoError(t, err)

	win := make([]float64, 256)
	out := e.Compute(win)
	for i, v := range out {
		assert.Equalf(t, 0.0, v, "index %d", i)
	}
}

// Invariant 2: boundedness, |nsdf(tau)| <= 1 + epsilon for every tau.
func TestBoundedness(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(64, 512).Draw(rt, "n")
		lagMax := rapid.IntRange(1, n-1).Draw(rt, "lagMax")

		e, err := New(1, lagMax)
		require.NoError(t, err)

		win := make([]float64, n)
		for i := range win {
			win[i] = rapid.Float64Range(-1, 1).Draw(rt, "sample")
		}

		out := e.Compute(win)
		for _, v := range out {
			if math.IsNaN(v) {
				rt.Fatalf("nsdf produced NaN")
			}
			if math.Abs(v) > 1+1e-6 {
				rt.Fatalf("nsdf value %v exceeds bound", v)
			}
		}
	})
}

// Invariant 3: determinism — identical input produces identical output.
func TestDeterminism(t *testing.T) {
	e1, _ := New(1, 100)
	e2, _ := New(1, 100)

	win := sineWindow(512, 330, 44100)
	out1 := append([]float64(nil), e1.Compute(win)...)
	out2 := append([]float64(nil), e2.Compute(win)...)

	assert.Equal(t, out1, out2)
}

func TestValueAt(t *testing.T) {
	e, err := New(10, 20)
	require.NoError(t, err)
	win := sineWindow(128, 200, 8000)
	e.Compute(win)

	v, ok := e.ValueAt(15)
	assert.True(t, ok)
	assert.NotZero(t, v)

	_, ok = e.ValueAt(9)
	assert.False(t, ok)
	_, ok = e.ValueAt(21)
	assert.False(t, ok)
}
