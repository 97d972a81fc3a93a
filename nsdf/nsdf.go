// Package nsdf computes the Normalized Square Difference Function used by
// the McLeod Pitch Method: for a window x[0..N) and lag tau,
//
//	nsdf(tau) = 2*r(tau) / m(tau)
//	r(tau) = sum_{j=0..N-tau-1} x[j]*x[j+tau]
//	m(tau) = sum_{j=0..N-tau-1} x[j]^2 + x[j+tau]^2
//
// with nsdf(tau) = 0 when m(tau) == 0. Values lie in [-1, 1] by
// construction (spec component B).
package nsdf

import "github.com/stuffmatic/microdsp-go/internal/cfgerr"

// Engine computes the NSDF over a fixed lag range [LagMin, LagMax]. Its
// output buffer is allocated once at construction and reused on every
// Compute call — Compute performs no allocation.
type Engine struct {
	lagMin, lagMax int
	buf            []float64 // length lagMax-lagMin+1
}

// New allocates an Engine for the inclusive lag range [lagMin, lagMax].
func New(lagMin, lagMax int) (*Engine, error) {
	if lagMin < 0 {
		return nil, cfgerr.New("LagMin", "must be non-negative")
	}
	if lagMax < lagMin {
		return nil, cfgerr.New("LagMax", "must be >= LagMin")
	}
	return &Engine{
		lagMin: lagMin,
		lagMax: lagMax,
		buf:    make([]float64, lagMax-lagMin+1),
	}, nil
}

// LagMin returns the smallest lag this engine evaluates.
func (e *Engine) LagMin() int { return e.lagMin }

// LagMax returns the largest lag this engine evaluates.
func (e *Engine) LagMax() int { return e.lagMax }

// LagCount returns the number of lags evaluated (LagMax-LagMin+1).
func (e *Engine) LagCount() int { return len(e.buf) }

// Compute evaluates nsdf(tau) for every tau in [LagMin, LagMax] against
// window x, storing into and returning the engine's internal buffer. The
// caller must ensure len(x) > LagMax so every lag has at least one
// aligned sample pair; this precondition is enforced by detector
// construction (spec invariant: lag_max < window_size), not here, so the
// engine stays usable as a standalone component.
//
// The straightforward O(N*lagCount) formulation is used, matching the
// spec's reference algorithm. Inputs are assumed finite; if x is all
// zero, every output is zero.
func (e *Engine) Compute(x []float64) []float64 {
	n := len(x)
	for i, tau := 0, e.lagMin; tau <= e.lagMax; i, tau = i+1, tau+1 {
		limit := n - tau
		var r, m float64
		for j := 0; j < limit; j++ {
			xj := x[j]
			xjt := x[j+tau]
			r += xj * xjt
			m += xj*xj + xjt*xjt
		}
		if m == 0 {
			e.buf[i] = 0
		} else {
			e.buf[i] = 2 * r / m
		}
	}
	return e.buf
}

// Values returns a read-only view of the most recently computed NSDF
// buffer, indexed by tau-LagMin. The view is invalidated by the next
// Compute call.
func (e *Engine) Values() []float64 { return e.buf }

// ValueAt returns the most recently computed nsdf value at absolute lag
// tau, and whether tau fell within [LagMin, LagMax].
func (e *Engine) ValueAt(tau int) (float64, bool) {
	idx := tau - e.lagMin
	if idx < 0 || idx >= len(e.buf) {
		return 0, false
	}
	return e.buf[idx], true
}
