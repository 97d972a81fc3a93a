// Package mpm implements the McLeod Pitch Method detector: it wires the
// windowing driver to the NSDF engine and the key-maxima selector, and
// derives frequency, MIDI note, clarity, and tone classification from
// the per-window pipeline (spec component D).
package mpm

import (
	"math"

	"github.com/stuffmatic/microdsp-go/internal/cfgerr"
	"github.com/stuffmatic/microdsp-go/internal/logger"
	"github.com/stuffmatic/microdsp-go/keymax"
	"github.com/stuffmatic/microdsp-go/nsdf"
	"github.com/stuffmatic/microdsp-go/window"
)

// Config configures a Detector. LagMin/LagMax are typically derived from
// the min/max detectable frequency at the effective sample rate.
type Config struct {
	WindowSize   int
	HopSize      int
	SampleRate   float64
	Downsampling int

	LagMin int
	LagMax int

	MaxKeyMaxima     int
	ClarityThreshold float64
	PeakThreshold    float64

	// SkipFirstLobeUnconditionally reserved for a future, less
	// conservative lag-0 lobe policy; always true today (see design
	// notes on the first-lobe open question).
	SkipFirstLobeUnconditionally bool
}

func (c *Config) setDefaults() {
	if c.Downsampling == 0 {
		c.Downsampling = 1
	}
	if c.MaxKeyMaxima == 0 {
		c.MaxKeyMaxima = 20
	}
	if c.ClarityThreshold == 0 {
		c.ClarityThreshold = 0.9
	}
	if c.PeakThreshold == 0 {
		c.PeakThreshold = 0.01
	}
	c.SkipFirstLobeUnconditionally = true
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
	if c.LagMin <= 0 {
		return cfgerr.New("LagMin", "must be positive")
	}
	if c.LagMax < c.LagMin {
		return cfgerr.New("LagMax", "must be >= LagMin")
	}
	if c.LagMax >= c.WindowSize {
		return cfgerr.New("LagMax", "must be < WindowSize")
	}
	if c.MaxKeyMaxima < 0 {
		return cfgerr.New("MaxKeyMaxima", "must be non-negative")
	}
	if c.ClarityThreshold <= 0 || c.ClarityThreshold > 1 {
		return cfgerr.New("ClarityThreshold", "must be in (0, 1]")
	}
	if c.PeakThreshold < 0 {
		return cfgerr.New("PeakThreshold", "must be non-negative")
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

// WithInstanceID tags this detector's log lines with id — useful when an
// adapter runs several detectors side by side (e.g. one per channel).
func WithInstanceID(id string) Option {
	return func(d *Detector) {
		d.instanceID = id
		d.log = d.log.With(id)
	}
}

// Reading is the per-window pitch reading produced by Process. When no
// fundamental was selected, Frequency/MIDINote/Clarity are zero,
// SelectedKeyMaxIndex is -1, and IsTone is false.
type Reading struct {
	Timestamp  float64
	Frequency  float64
	MIDINote   float64
	Clarity    float64
	WindowRMS  float64
	WindowPeak float64
	IsTone     bool

	SelectedKeyMaxIndex int

	ClarityAtDoublePeriod    float64
	HasClarityAtDoublePeriod bool
}

// OnReading is invoked once per completed analysis window with the
// detector that produced it and its reading.
type OnReading func(d *Detector, r Reading)

// Detector wires the window driver (A) to the NSDF engine (B) and the
// key-maxima selector (C), owning all scratch memory. It is not safe for
// concurrent use: one detector is meant to be pinned to one real-time
// producer (spec §5).
type Detector struct {
	cfg        Config
	log        *logger.Logger
	instanceID string

	win      *window.Driver
	nsdf     *nsdf.Engine
	keyTable *keymax.Table

	reading Reading
}

// New validates cfg, allocates all scratch buffers, and returns a
// Detector. No further allocation occurs in Process.
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

	nsdfEngine, err := nsdf.New(cfg.LagMin, cfg.LagMax)
	if err != nil {
		return nil, err
	}

	d := &Detector{
		cfg:      cfg,
		log:      logger.New(logger.LevelOff, nil),
		win:      win,
		nsdf:     nsdfEngine,
		keyTable: keymax.NewTable(cfg.MaxKeyMaxima),
		reading:  Reading{SelectedKeyMaxIndex: -1},
	}

	for _, opt := range opts {
		opt(d)
	}

	d.log.Debug("mpm: detector ready window=%d hop=%d lag=[%d,%d]", cfg.WindowSize, cfg.HopSize, cfg.LagMin, cfg.LagMax)
	return d, nil
}

// Config returns the detector's configuration.
func (d *Detector) Config() Config { return d.cfg }

// Running reports whether the detector has emitted at least one reading,
// i.e. has left the Accumulating state (spec §4.4 state machine).
func (d *Detector) Running() bool { return d.win.Running() }

// Process consumes samples in order, computing a Reading for every
// window the underlying driver completes and invoking onReading
// synchronously, oldest to newest.
func (d *Detector) Process(samples []float64, onReading OnReading) {
	d.win.Process(samples, func(frame []float64, effIndex int) {
		d.computeReading(frame, effIndex)
		if onReading != nil {
			onReading(d, d.reading)
		}
	})
}

func (d *Detector) computeReading(frame []float64, effIndex int) {
	rms, peak := windowStats(frame)
	d.reading.WindowRMS = rms
	d.reading.WindowPeak = peak

	effRate := d.cfg.SampleRate / float64(d.cfg.Downsampling)
	d.reading.Timestamp = float64(effIndex) / effRate

	nsdfBuf := d.nsdf.Compute(frame)
	keymax.FindAndRefine(nsdfBuf, d.cfg.LagMin, d.keyTable)

	idx, ok := keymax.SelectFundamental(d.keyTable, d.cfg.ClarityThreshold)
	d.reading.HasClarityAtDoublePeriod = false
	if !ok {
		d.reading.SelectedKeyMaxIndex = -1
		d.reading.Frequency = 0
		d.reading.MIDINote = 0
		d.reading.Clarity = 0
		d.reading.IsTone = false
		d.log.Debug("mpm: no fundamental selected at t=%.4f", d.reading.Timestamp)
		return
	}

	sel := d.keyTable.At(idx)
	frequency := effRate / sel.Lag

	d.reading.SelectedKeyMaxIndex = idx
	d.reading.Frequency = frequency
	d.reading.MIDINote = midiNote(frequency)
	d.reading.Clarity = clamp01(sel.Value)
	d.reading.IsTone = peak >= d.cfg.PeakThreshold

	if doubled := 2 * sel.LagIndex; doubled <= d.cfg.LagMax-d.cfg.LagMin {
		if v, ok := d.nsdf.ValueAt(doubled + d.cfg.LagMin); ok {
			d.reading.ClarityAtDoublePeriod = v
			d.reading.HasClarityAtDoublePeriod = true
		}
	}

	d.log.Debug("mpm: f=%.2f Hz clarity=%.3f tone=%v", frequency, d.reading.Clarity, d.reading.IsTone)
}

func windowStats(x []float64) (rms, peak float64) {
	var sumSq float64
	for _, v := range x {
		sumSq += v * v
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	if len(x) > 0 {
		rms = math.Sqrt(sumSq / float64(len(x)))
	}
	return rms, peak
}

func midiNote(frequency float64) float64 {
	if frequency <= 0 {
		return 0
	}
	return 69 + 12*math.Log2(frequency/440)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// LatestReading returns the reading produced by the most recent
// completed window.
func (d *Detector) LatestReading() Reading { return d.reading }

// NSDF copies the most recently computed NSDF into out and returns the
// number of values written (min(len(out), lag_count)).
func (d *Detector) NSDF(out []float64) int {
	return copy(out, d.nsdf.Values())
}

// KeyMaxima copies (lag, value) pairs for the current key-maxima table
// into out and returns the number of entries written.
func (d *Detector) KeyMaxima(out [][2]float64) int {
	n := d.keyTable.Len()
	if n > len(out) {
		n = len(out)
	}
	for i := 0; i < n; i++ {
		m := d.keyTable.At(i)
		out[i] = [2]float64{m.Lag, m.Value}
	}
	return n
}

// Frequency returns the latest reading's frequency in Hz, or 0 if no
// fundamental was selected.
func (d *Detector) Frequency() float64 { return d.reading.Frequency }

// MIDINote returns the latest reading's fractional MIDI note number.
func (d *Detector) MIDINote() float64 { return d.reading.MIDINote }

// Clarity returns the latest reading's clarity in [0, 1].
func (d *Detector) Clarity() float64 { return d.reading.Clarity }

// WindowRMS returns the latest reading's window RMS energy.
func (d *Detector) WindowRMS() float64 { return d.reading.WindowRMS }

// WindowPeak returns the latest reading's window peak amplitude.
func (d *Detector) WindowPeak() float64 { return d.reading.WindowPeak }

// IsTone returns the latest reading's tone gate result.
func (d *Detector) IsTone() bool { return d.reading.IsTone }

// SelectedKeyMaxIndex returns the index into the key-maxima table
// selected as the fundamental, or -1 if none was selected.
func (d *Detector) SelectedKeyMaxIndex() int { return d.reading.SelectedKeyMaxIndex }

// ClarityAtDoublePeriod returns the NSDF value at absolute lag
// 2*LagIndex + LagMin of the selected key maximum, and whether it was
// computed for the latest reading (spec §4.3 step 6, the octave-doubling
// diagnostic). That lag is twice the selected integer lag only when
// LagMin is 0.
func (d *Detector) ClarityAtDoublePeriod() (float64, bool) {
	return d.reading.ClarityAtDoublePeriod, d.reading.HasClarityAtDoublePeriod
}
