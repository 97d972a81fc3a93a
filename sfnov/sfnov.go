// Package sfnov implements the Spectral Flux Novelty onset detector: it
// shares the windowing driver with the MPM pitch detector, maintains a
// rolling Hann-windowed magnitude spectrum, and emits a half-wave
// rectified novelty scalar per hop (spec component E).
package sfnov

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"

	"github.com/stuffmatic/microdsp-go/internal/cfgerr"
	"github.com/stuffmatic/microdsp-go/internal/logger"
	"github.com/stuffmatic/microdsp-go/window"
)

// Config configures a Detector.
type Config struct {
	WindowSize   int
	HopSize      int
	SampleRate   float64
	Downsampling int
}

func (c *Config) setDefaults() {
	if c.Downsampling == 0 {
		c.Downsampling = 1
	}
}

func (c Config) validate() error {
	if c.WindowSize <= 1 {
		return cfgerr.New("WindowSize", "must be greater than 1")
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

// Option configures optional Detector wiring.
type Option func(*Detector)

// WithLogger attaches a logger. Detectors are silent (LevelOff) by
// default.
func WithLogger(l *logger.Logger) Option {
	return func(d *Detector) { d.log = l }
}

// OnNovelty is invoked once per completed analysis window with the
// detector, its novelty scalar, and the window's timestamp in seconds.
type OnNovelty func(d *Detector, novelty float64, timestamp float64)

// Detector maintains a rolling magnitude spectrum and reports
// half-wave-rectified spectral flux per hop. Not safe for concurrent use.
type Detector struct {
	cfg Config
	log *logger.Logger

	win  *window.Driver
	hann []float64 // precomputed Hann coefficients, length WindowSize

	fftIn        []complex128 // scratch FFT input, length WindowSize
	spectrum     []float64    // current magnitude spectrum (no compression applied), length nBins
	prevSpectrum []float64    // previous frame's magnitude spectrum, length nBins
	diff         []float64    // half-wave rectified difference, length nBins
	hasPrev      bool

	novelty   float64
	timestamp float64
}

// New validates cfg, precomputes the Hann window, and allocates all
// scratch buffers.
func New(cfg Config, opts ...Option) (*Detector, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	win, err := window.New(window.Config{
		WindowSize:   cfg.WindowSize,
		HopSize:      cfg.HopSize,
		Downsampling: cfg.Downsampling,
		SampleRate:   cfg.SampleRate,
	})
	if err != nil {
		return nil, err
	}

	nBins := cfg.WindowSize/2 + 1
	hann := make([]float64, cfg.WindowSize)
	for i := range hann {
		hann[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(cfg.WindowSize-1)))
	}

	d := &Detector{
		cfg:          cfg,
		log:          logger.New(logger.LevelOff, nil),
		win:          win,
		hann:         hann,
		fftIn:        make([]complex128, cfg.WindowSize),
		spectrum:     make([]float64, nBins),
		prevSpectrum: make([]float64, nBins),
		diff:         make([]float64, nBins),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d, nil
}

// Config returns the detector's configuration.
func (d *Detector) Config() Config { return d.cfg }

// Running reports whether the detector has completed at least one
// window.
func (d *Detector) Running() bool { return d.win.Running() }

// Process consumes samples in order, computing a novelty value for
// every window the underlying driver completes and invoking onNovelty
// synchronously, oldest to newest.
//
// Computing the magnitude spectrum delegates to go-dsp/fft, which
// allocates its output per call — the one place in this package that
// does not hold to the zero-allocation steady state the window driver
// and MPM path keep, a tradeoff of reusing a real FFT implementation
// instead of hand-rolling one.
func (d *Detector) Process(samples []float64, onNovelty OnNovelty) {
	d.win.Process(samples, func(frame []float64, effIndex int) {
		d.computeNovelty(frame)
		effRate := d.cfg.SampleRate / float64(d.cfg.Downsampling)
		d.timestamp = float64(effIndex) / effRate
		if onNovelty != nil {
			onNovelty(d, d.novelty, d.timestamp)
		}
	})
}

func (d *Detector) computeNovelty(frame []float64) {
	for i, s := range frame {
		d.fftIn[i] = complex(s*d.hann[i], 0)
	}

	spectrum := fft.FFT(d.fftIn)

	nBins := len(d.spectrum)
	for k := 0; k < nBins; k++ {
		d.spectrum[k] = cmplx.Abs(spectrum[k])
	}

	var novelty float64
	if d.hasPrev {
		for k := 0; k < nBins; k++ {
			delta := d.spectrum[k] - d.prevSpectrum[k]
			if delta < 0 {
				delta = 0
			}
			d.diff[k] = delta
			novelty += delta
		}
	} else {
		for k := range d.diff {
			d.diff[k] = 0
		}
	}

	copy(d.prevSpectrum, d.spectrum)
	d.hasPrev = true
	d.novelty = novelty

	d.log.Debug("sfnov: novelty=%.4f", novelty)
}

// Novelty returns the most recently computed novelty scalar.
func (d *Detector) Novelty() float64 { return d.novelty }

// CompressedSpectrum copies the current magnitude spectrum into out and
// returns the number of values written. The values are plain FFT bin
// magnitudes; no compression is applied to them.
func (d *Detector) CompressedSpectrum(out []float64) int {
	return copy(out, d.spectrum)
}

// SpectrumDifference copies the current half-wave-rectified spectral
// difference into out and returns the number of values written.
func (d *Detector) SpectrumDifference(out []float64) int {
	return copy(out, d.diff)
}
