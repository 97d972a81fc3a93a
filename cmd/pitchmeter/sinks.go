package main

import (
	"encoding/json"

	"github.com/stuffmatic/microdsp-go/internal/domain"
)

// wireReading mirrors spec §6's wire JSON object verbatim.
type wireReading struct {
	Timestamp             float64      `json:"timestamp"`
	Frequency             float64      `json:"frequency"`
	NoteNumber            float64      `json:"note_number"`
	Clarity               float64      `json:"clarity"`
	WindowRMS             float64      `json:"window_rms"`
	IsTone                bool         `json:"is_tone"`
	LagCount              int          `json:"lag_count"`
	NSDF                  []float64    `json:"nsdf"`
	KeyMaximaCount        int          `json:"key_maxima_count"`
	KeyMaximaSer          []keyMaxWire `json:"key_maxima_ser"`
	SelectedKeyMaxIndex   int          `json:"selected_key_max_index"`
	ClarityAtDoublePeriod *float64     `json:"clarity_at_double_period,omitempty"`
}

type keyMaxWire struct {
	Lag   float64 `json:"lag"`
	Value float64 `json:"value"`
}

// jsonlSink writes one wire-format JSON reading per line.
type jsonlSink struct {
	enc *json.Encoder
}

func newJSONLSink(enc *json.Encoder) *jsonlSink {
	return &jsonlSink{enc: enc}
}

func (s *jsonlSink) OnReading(r domain.PitchReading) error {
	ser := make([]keyMaxWire, len(r.KeyMaxima))
	for i, m := range r.KeyMaxima {
		ser[i] = keyMaxWire{Lag: m[0], Value: m[1]}
	}

	wr := wireReading{
		Timestamp:           r.Timestamp,
		Frequency:           r.Frequency,
		NoteNumber:          r.MIDINote,
		Clarity:             r.Clarity,
		WindowRMS:           r.WindowRMS,
		IsTone:              r.IsTone,
		LagCount:            r.LagCount,
		NSDF:                r.NSDF,
		KeyMaximaCount:      len(r.KeyMaxima),
		KeyMaximaSer:        ser,
		SelectedKeyMaxIndex: r.SelectedKeyMaxIndex,
	}
	if r.HasClarityAtDoublePeriod {
		v := r.ClarityAtDoublePeriod
		wr.ClarityAtDoublePeriod = &v
	}

	return s.enc.Encode(wr)
}

// metricsSink updates the process-wide Prometheus counters for every
// reading it sees. It never errors.
type metricsSink struct{}

func (metricsSink) OnReading(r domain.PitchReading) error {
	windowsProcessed.Inc()
	if r.IsTone {
		tonesDetected.Inc()
	}
	return nil
}

// thresholdOnsetSink reports an onset (and increments a counter) for every
// novelty value at or above threshold, logging it for operator visibility.
type thresholdOnsetSink struct {
	threshold float64
	log       loggerFunc
}

// loggerFunc adapts logger.Logger.Info's variadic signature for use in
// this narrow seam without importing the logger package's concrete type
// here, keeping sinks.go decoupled from ambient wiring concerns.
type loggerFunc func(format string, args ...any)

func (s *thresholdOnsetSink) OnNovelty(novelty, timestamp float64) error {
	if novelty < s.threshold {
		return nil
	}
	onsetsDetected.Inc()
	if s.log != nil {
		s.log("pitchmeter: onset at t=%.4f novelty=%.3f", timestamp, novelty)
	}
	return nil
}
