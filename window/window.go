// Package window implements the DownsampledWindow driver: it accumulates
// incoming PCM samples into a fixed-size analysis window with configurable
// hop and integer-factor decimation, and invokes a callback once per
// completed window.
//
// The driver is the component shared by the MPM pitch detector and the
// SFNov onset detector (spec component A). It never allocates once
// constructed, runs single-threaded, and is pull-free: the host pushes
// samples in, the driver pushes windows out synchronously.
package window

import "github.com/stuffmatic/microdsp-go/internal/cfgerr"

// Config configures a Driver.
type Config struct {
	// WindowSize is the number of effective samples per analysis frame.
	WindowSize int
	// HopSize is the number of effective samples between consecutive
	// emitted frames. HopSize == WindowSize means no overlap.
	HopSize int
	// Downsampling is the decimation factor: one effective sample is the
	// arithmetic mean of this many consecutive input samples. 1 disables
	// decimation.
	Downsampling int
	// SampleRate is the input sample rate in Hz. Informational only: it
	// flows through to downstream frequency calculations.
	SampleRate float64
}

func (c Config) validate() error {
	if c.WindowSize <= 0 {
		return cfgerr.New("WindowSize", "must be positive")
	}
	if c.HopSize <= 0 || c.HopSize > c.WindowSize {
		return cfgerr.New("HopSize", "must be positive and <= WindowSize")
	}
	if c.Downsampling <= 0 {
		return cfgerr.New("Downsampling", "must be positive")
	}
	if c.SampleRate <= 0 {
		return cfgerr.New("SampleRate", "must be positive")
	}
	return nil
}

// OnWindow is invoked once per completed analysis frame. samples is a
// read-only view valid only for the duration of the call — the driver
// reuses its backing array on the next emission. effectiveIndex is the
// 1-based count of effective samples ingested so far, i.e. the index of
// the last sample in the window.
type OnWindow func(samples []float64, effectiveIndex int)

// Driver accumulates samples into a ring buffer and fires OnWindow once
// per completed, sufficiently-hopped frame. All buffers are allocated at
// construction; Process never allocates.
type Driver struct {
	cfg Config

	ring     []float64 // length WindowSize, ring buffer of effective samples
	writeIdx int        // next slot to write (== index of oldest sample)
	filled   int        // number of valid samples in ring, saturates at WindowSize

	decimSum   float64
	decimCount int

	effIndex     int  // total effective samples ingested so far (1-based running count)
	sincePrevHop int  // effective samples ingested since the last emission
	emittedOnce  bool

	scratch []float64 // linearized view handed to OnWindow, length WindowSize
}

// New validates cfg and allocates a Driver. All memory is allocated here;
// Process performs no further allocation.
func New(cfg Config) (*Driver, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Driver{
		cfg:     cfg,
		ring:    make([]float64, cfg.WindowSize),
		scratch: make([]float64, cfg.WindowSize),
	}, nil
}

// Config returns the driver's configuration.
func (d *Driver) Config() Config { return d.cfg }

// Filled reports how many effective samples currently occupy the window
// (saturates at WindowSize).
func (d *Driver) Filled() int { return d.filled }

// Running reports whether the window has emitted at least once, i.e. the
// driver has left the Accumulating state (spec §4.4 state machine).
func (d *Driver) Running() bool { return d.emittedOnce }

// Process consumes input in order, accumulating decimated effective
// samples into the window and invoking onWindow synchronously for every
// frame that completes during this call, oldest to newest. It never
// allocates.
func (d *Driver) Process(input []float64, onWindow OnWindow) {
	for _, s := range input {
		d.decimSum += s
		d.decimCount++
		if d.decimCount < d.cfg.Downsampling {
			continue
		}
		eff := d.decimSum / float64(d.cfg.Downsampling)
		d.decimSum = 0
		d.decimCount = 0
		d.pushEffective(eff, onWindow)
	}
}

func (d *Driver) pushEffective(eff float64, onWindow OnWindow) {
	d.ring[d.writeIdx] = eff
	d.writeIdx++
	if d.writeIdx == len(d.ring) {
		d.writeIdx = 0
	}
	if d.filled < len(d.ring) {
		d.filled++
	}
	d.effIndex++
	d.sincePrevHop++

	if d.filled < len(d.ring) {
		return
	}
	if d.emittedOnce && d.sincePrevHop < d.cfg.HopSize {
		return
	}

	d.linearize()
	if onWindow != nil {
		onWindow(d.scratch, d.effIndex)
	}
	d.emittedOnce = true
	d.sincePrevHop = 0
}

// linearize copies the ring buffer into scratch in oldest-to-newest order.
func (d *Driver) linearize() {
	n := len(d.ring)
	idx := d.writeIdx // points one past the newest == the oldest sample
	for i := 0; i < n; i++ {
		d.scratch[i] = d.ring[idx]
		idx++
		if idx == n {
			idx = 0
		}
	}
}
