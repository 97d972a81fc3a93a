// Package storage provides in-memory history buffering for detector
// readings, for adapters that want to inspect recent results (e.g. an
// HTTP endpoint or a post-run summary) without re-reading the source
// audio.
package storage

import (
	"sync"

	"github.com/stuffmatic/microdsp-go/internal/domain"
	"github.com/stuffmatic/microdsp-go/internal/logger"
)

// Compile-time interface check.
var _ domain.ReadingSink = (*ReadingHistory)(nil)

// ReadingHistory is a fixed-capacity, in-memory ring buffer of the most
// recent pitch readings. Safe for concurrent use.
type ReadingHistory struct {
	mu       sync.RWMutex
	buf      []domain.PitchReading
	writeIdx int
	filled   int
	log      *logger.Logger
}

// NewReadingHistory creates a history buffer holding up to capacity
// readings. capacity <= 0 is treated as 1.
func NewReadingHistory(capacity int, log *logger.Logger) *ReadingHistory {
	if capacity <= 0 {
		capacity = 1
	}
	return &ReadingHistory{
		buf: make([]domain.PitchReading, capacity),
		log: log,
	}
}

// OnReading appends r, evicting the oldest entry once the buffer is
// full. Implements domain.ReadingSink.
func (h *ReadingHistory) OnReading(r domain.PitchReading) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.buf[h.writeIdx] = r
	h.writeIdx = (h.writeIdx + 1) % len(h.buf)
	if h.filled < len(h.buf) {
		h.filled++
	}
	if h.log != nil {
		h.log.Debug("storage: history now holds %d/%d readings", h.filled, len(h.buf))
	}
	return nil
}

// Len returns the number of readings currently stored.
func (h *ReadingHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.filled
}

// Recent returns up to n of the most recently appended readings, newest
// last.
func (h *ReadingHistory) Recent(n int) []domain.PitchReading {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n > h.filled {
		n = h.filled
	}
	out := make([]domain.PitchReading, n)
	start := h.writeIdx - n
	if start < 0 {
		start += len(h.buf)
	}
	for i := 0; i < n; i++ {
		out[i] = h.buf[(start+i)%len(h.buf)]
	}
	return out
}

// LatestTone reports the most recent reading with IsTone == true, and
// whether one exists in the current history.
func (h *ReadingHistory) LatestTone() (domain.PitchReading, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for i := 0; i < h.filled; i++ {
		idx := h.writeIdx - 1 - i
		if idx < 0 {
			idx += len(h.buf)
		}
		if h.buf[idx].IsTone {
			return h.buf[idx], true
		}
	}
	return domain.PitchReading{}, false
}
