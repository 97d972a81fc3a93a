// Package keymax locates and refines the NSDF's key maxima and selects
// the fundamental-period candidate among them (spec component C).
//
// A positive lobe is a maximal contiguous run of lag indices where
// nsdf(tau) > 0. The lobe touching tau_min (lag index 0) is always
// discarded — the trivial maximum around lag 0 must never be selected as
// a period (this is the "skip unconditionally" reading of the spec's
// open question, chosen as the simpler, more conservative behavior).
package keymax

// Maximum is a single entry in the key-maxima table: the parabolically
// refined lag and value of the largest raw NSDF sample within a retained
// positive lobe. LagIndex is the integer (unrefined) lag of that raw
// sample.
type Maximum struct {
	Lag      float64
	Value    float64
	LagIndex int
}

// Table is a fixed-capacity, ascending-by-lag sequence of key maxima.
// Entries beyond its capacity are discarded by design (spec §4.3 step 4:
// "choosing the earliest N is intentional — they bracket the
// fundamental").
type Table struct {
	entries []Maximum
	n       int
}

// NewTable allocates a Table holding up to capacity entries.
func NewTable(capacity int) *Table {
	return &Table{entries: make([]Maximum, capacity)}
}

// Cap returns the table's fixed capacity.
func (t *Table) Cap() int { return len(t.entries) }

// Len returns the number of entries currently stored.
func (t *Table) Len() int { return t.n }

// At returns the i-th entry (0-based, ascending lag).
func (t *Table) At(i int) Maximum { return t.entries[i] }

// Slice returns a read-only view of the stored entries, valid until the
// next FindAndRefine call.
func (t *Table) Slice() []Maximum { return t.entries[:t.n] }

func (t *Table) reset() { t.n = 0 }

// push appends an entry, returning false (and discarding it) if the
// table is already full.
func (t *Table) push(lag, value float64, lagIndex int) bool {
	if t.n >= len(t.entries) {
		return false
	}
	t.entries[t.n] = Maximum{Lag: lag, Value: value, LagIndex: lagIndex}
	t.n++
	return true
}

// FindAndRefine scans an NSDF buffer (values for absolute lags
// [lagMin, lagMin+len(buf)-1]) for positive lobes, locates each lobe's raw
// maximum, parabolically refines it, and pushes the result onto table —
// resetting table first. It performs no allocation.
func FindAndRefine(buf []float64, lagMin int, table *Table) {
	table.reset()

	n := len(buf)
	i := 0
	for i < n {
		if buf[i] <= 0 {
			i++
			continue
		}

		start := i
		for i < n && buf[i] > 0 {
			i++
		}
		end := i // exclusive

		if start == 0 {
			// The lobe touching tau_min is the trivial lag-0 lobe; discard
			// unconditionally regardless of its shape.
			continue
		}

		maxIdx := start
		for k := start + 1; k < end; k++ {
			if buf[k] > buf[maxIdx] {
				maxIdx = k
			}
		}

		lag := float64(maxIdx + lagMin)
		value := buf[maxIdx]

		if maxIdx > start && maxIdx < end-1 {
			ym1, y0, yp1 := buf[maxIdx-1], buf[maxIdx], buf[maxIdx+1]
			denom := ym1 - 2*y0 + yp1
			if denom != 0 {
				delta := 0.5 * (ym1 - yp1) / denom
				if delta >= -1 && delta <= 1 {
					lag = float64(maxIdx+lagMin) + delta
					value = y0 - 0.25*(ym1-yp1)*delta
				}
			}
		}

		if !table.push(lag, value, maxIdx+lagMin) {
			break // table full; remaining maxima (later, longer lags) are discarded
		}
	}
}

// SelectFundamental returns the index (within table) of the smallest-lag
// entry whose value is >= clarityThreshold * (the table's largest value),
// and true. It returns (-1, false) if table is empty.
func SelectFundamental(table *Table, clarityThreshold float64) (int, bool) {
	n := table.Len()
	if n == 0 {
		return -1, false
	}

	vmax := table.entries[0].Value
	for i := 1; i < n; i++ {
		if table.entries[i].Value > vmax {
			vmax = table.entries[i].Value
		}
	}

	threshold := clarityThreshold * vmax
	for i := 0; i < n; i++ {
		if table.entries[i].Value >= threshold {
			return i, true
		}
	}
	return -1, false
}
