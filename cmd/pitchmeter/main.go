// Command pitchmeter is a file-driven demo adapter around the mpm and
// sfnov detectors: it decodes a WAV file, pushes its samples through the
// pitch detector (and, with -onsets, the onset detector), and writes one
// JSON pitch reading per line to stdout (or a file). It is the boundary adapter the core library is meant to sit
// behind — no audio capture device, no UI, no persisted state.
//
// Usage:
//
//	pitchmeter -wav song.wav [-config tuning.yaml] [-out readings.jsonl]
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	stdlog "log"
	"net/http"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"

	"github.com/stuffmatic/microdsp-go/internal/domain"
	"github.com/stuffmatic/microdsp-go/internal/logger"
	"github.com/stuffmatic/microdsp-go/internal/storage"
	"github.com/stuffmatic/microdsp-go/mpm"
	"github.com/stuffmatic/microdsp-go/sfnov"
)

var (
	windowsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pitchmeter_windows_processed_total",
		Help: "Number of analysis windows processed by the pitch detector.",
	})
	tonesDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pitchmeter_tones_detected_total",
		Help: "Number of windows classified as a tone (is_tone = true).",
	})
	onsetsDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pitchmeter_onsets_detected_total",
		Help: "Number of onset events reported by the novelty detector.",
	})
)

// tuningFile overrides detector tuning without recompiling; the core
// forbids environment variables (spec §6), so overrides are file-based.
type tuningFile struct {
	WindowSize       int     `yaml:"window_size"`
	HopSize          int     `yaml:"hop_size"`
	Downsampling     int     `yaml:"downsampling"`
	LagMin           int     `yaml:"lag_min"`
	LagMax           int     `yaml:"lag_max"`
	MaxKeyMaxima     int     `yaml:"max_key_maxima"`
	ClarityThreshold float64 `yaml:"clarity_threshold"`
	PeakThreshold    float64 `yaml:"peak_threshold"`
	OnsetWindowSize  int     `yaml:"onset_window_size"`
	OnsetHopSize     int     `yaml:"onset_hop_size"`
	OnsetThreshold   float64 `yaml:"onset_threshold"`
}

func loadTuning(path string) (tuningFile, error) {
	var t tuningFile
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("read tuning file: %w", err)
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("parse tuning file: %w", err)
	}
	return t, nil
}

func main() {
	wavPath := flag.String("wav", "", "path to a mono or stereo WAV file to analyze (required)")
	configPath := flag.String("config", "", "optional YAML tuning file overriding detector defaults")
	outPath := flag.String("out", "", "file to write JSON readings to (default: stdout)")
	metricsAddr := flag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090)")
	onsets := flag.Bool("onsets", false, "also run the SFNov onset detector and emit onset events")
	historySize := flag.Int("history-size", 64, "number of recent readings to retain in memory for summary reporting")
	verbose := flag.Bool("verbose", false, "enable verbose/debug logging")
	quiet := flag.Bool("quiet", false, "disable all logging")
	flag.Parse()

	if *wavPath == "" {
		fmt.Fprintln(os.Stderr, "pitchmeter: -wav is required")
		flag.Usage()
		os.Exit(2)
	}

	logLevel := logger.LevelNormal
	if *verbose {
		logLevel = logger.LevelVerbose
	}
	if *quiet {
		logLevel = logger.LevelOff
	}
	log := logger.New(logLevel, os.Stderr)
	stdlog.SetOutput(os.Stderr)

	runID := uuid.New().String()
	log.Info("pitchmeter: run %s starting, wav=%s", runID, *wavPath)

	if *metricsAddr != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
				log.Error("pitchmeter: metrics server stopped: %v", err)
			}
		}()
		log.Info("pitchmeter: metrics listening on %s", *metricsAddr)
	}

	tuning, err := loadTuning(*configPath)
	if err != nil {
		log.Error("pitchmeter: %v", err)
		os.Exit(1)
	}

	samples, sampleRate, err := decodeWAV(*wavPath)
	if err != nil {
		log.Error("pitchmeter: failed to decode %s: %v", *wavPath, err)
		os.Exit(1)
	}
	log.Info("pitchmeter: decoded %d samples @ %.0f Hz", len(samples), sampleRate)

	pitchCfg := mpm.Config{
		WindowSize:       valueOr(tuning.WindowSize, 1024),
		HopSize:          valueOr(tuning.HopSize, 512),
		SampleRate:       sampleRate,
		Downsampling:     valueOr(tuning.Downsampling, 1),
		LagMin:           valueOr(tuning.LagMin, 40),
		LagMax:           valueOr(tuning.LagMax, 600),
		MaxKeyMaxima:     tuning.MaxKeyMaxima,
		ClarityThreshold: tuning.ClarityThreshold,
		PeakThreshold:    tuning.PeakThreshold,
	}
	detector, err := mpm.New(pitchCfg, mpm.WithLogger(log), mpm.WithInstanceID("pitch-"+runID[:8]))
	if err != nil {
		log.Error("pitchmeter: invalid pitch detector config: %v", err)
		os.Exit(1)
	}

	var onsetDetector *sfnov.Detector
	if *onsets {
		onsetDetector, err = sfnov.New(sfnov.Config{
			WindowSize:   valueOr(tuning.OnsetWindowSize, 1024),
			HopSize:      valueOr(tuning.OnsetHopSize, 512),
			SampleRate:   sampleRate,
			Downsampling: valueOr(tuning.Downsampling, 1),
		}, sfnov.WithLogger(log))
		if err != nil {
			log.Error("pitchmeter: invalid onset detector config: %v", err)
			os.Exit(1)
		}
	}

	out := os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			log.Error("pitchmeter: cannot create %s: %v", *outPath, err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}
	w := bufio.NewWriter(out)
	defer w.Flush()
	enc := json.NewEncoder(w)

	onsetThreshold := tuning.OnsetThreshold
	if onsetThreshold <= 0 {
		onsetThreshold = 1.0
	}

	history := storage.NewReadingHistory(*historySize, log)
	readingSink := domain.MultiReadingSink{newJSONLSink(enc), metricsSink{}, history}
	noveltySink := &thresholdOnsetSink{threshold: onsetThreshold, log: log.Info}

	nsdfBuf := make([]float64, pitchCfg.LagMax-pitchCfg.LagMin+1)
	keyMaxBuf := make([][2]float64, valueOr(tuning.MaxKeyMaxima, 20))

	detector.Process(samples, func(d *mpm.Detector, r mpm.Reading) {
		n := d.NSDF(nsdfBuf)
		km := d.KeyMaxima(keyMaxBuf)

		pr := domain.PitchReading{
			Timestamp:                r.Timestamp,
			Frequency:                r.Frequency,
			MIDINote:                 r.MIDINote,
			Clarity:                  r.Clarity,
			WindowRMS:                r.WindowRMS,
			WindowPeak:               r.WindowPeak,
			IsTone:                   r.IsTone,
			LagCount:                 n,
			NSDF:                     nsdfBuf[:n],
			KeyMaxima:                keyMaxBuf[:km],
			SelectedKeyMaxIndex:      r.SelectedKeyMaxIndex,
			ClarityAtDoublePeriod:    r.ClarityAtDoublePeriod,
			HasClarityAtDoublePeriod: r.HasClarityAtDoublePeriod,
		}

		if err := readingSink.OnReading(pr); err != nil {
			log.Error("pitchmeter: failed to write reading: %v", err)
		}
	})

	if onsetDetector != nil {
		onsetDetector.Process(samples, func(_ *sfnov.Detector, novelty, ts float64) {
			if err := noveltySink.OnNovelty(novelty, ts); err != nil {
				log.Error("pitchmeter: onset sink error: %v", err)
			}
		})
	}

	if latest, ok := history.LatestTone(); ok {
		log.Info("pitchmeter: last detected tone f=%.2f Hz clarity=%.3f at t=%.3f", latest.Frequency, latest.Clarity, latest.Timestamp)
	}
	log.Info("pitchmeter: run %s complete, %d readings retained in history", runID, history.Len())
}

func valueOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

// decodeWAV decodes a WAV file into mono float64 PCM samples normalized
// to [-1, 1], downmixing multi-channel files by averaging channels.
func decodeWAV(path string) ([]float64, float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, 0, fmt.Errorf("not a valid WAV file")
	}

	var buf *audio.IntBuffer
	buf, err = decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("read PCM data: %w", err)
	}

	numChannels := int(decoder.NumChans)
	if numChannels <= 0 {
		numChannels = 1
	}
	numFrames := len(buf.Data) / numChannels

	maxVal := fullScale(decoder.BitDepth)
	samples := make([]float64, numFrames)
	for i := 0; i < numFrames; i++ {
		var sum float64
		for c := 0; c < numChannels; c++ {
			sum += float64(buf.Data[i*numChannels+c])
		}
		samples[i] = (sum / float64(numChannels)) / maxVal
	}

	return samples, float64(decoder.SampleRate), nil
}

func fullScale(bitDepth uint16) float64 {
	switch bitDepth {
	case 8:
		return 128.0
	case 16:
		return 32768.0
	case 24:
		return 8388608.0
	case 32:
		return 2147483648.0
	default:
		return 32768.0
	}
}
