// Package mi computes pointwise mutual information between paths and
// fillers from triple counts and their marginals.
package mi

import (
	"math"
	"strings"

	"github.com/bcongdon/dirt/internal/pkg/record"
)

// Marginal key prefixes. Each triple count contributes to one key of each
// kind.
const (
	pathSlotPrefix   = "PS:"
	slotFillerPrefix = "SW:"

	// TotalKey is the key of the global triple count.
	TotalKey = "TOTAL"
)

// PathSlotKey is the marginal key of the sum over all fillers of (path, slot).
func PathSlotKey(path string, slot record.Slot) string {
	return pathSlotPrefix + path + "\t" + string(slot)
}

// SlotFillerKey is the marginal key of the sum over all paths of (slot, filler).
func SlotFillerKey(slot record.Slot, filler string) string {
	return slotFillerPrefix + string(slot) + "\t" + filler
}

// MarginalKeys returns the three marginal keys t contributes to.
func MarginalKeys(t record.Triple) [3]string {
	return [3]string{
		PathSlotKey(t.Path, t.Slot),
		SlotFillerKey(t.Slot, t.Filler),
		TotalKey,
	}
}

// MI returns ln((c * total) / (ps * sw)). ok is false when any marginal is
// not positive, the ratio is not positive, or the result is not finite.
// The arithmetic is done in float64 so that large counts do not overflow.
func MI(c, ps, sw, total int64) (mi float64, ok bool) {
	if c <= 0 || ps <= 0 || sw <= 0 || total <= 0 {
		return 0, false
	}

	ratio := (float64(c) * float64(total)) / (float64(ps) * float64(sw))
	if !(ratio > 0) || math.IsInf(ratio, 0) {
		return 0, false
	}

	mi = math.Log(ratio)
	if math.IsNaN(mi) || math.IsInf(mi, 0) {
		return 0, false
	}
	return mi, true
}

// Marginals is the loaded output of the marginals stage. It is filled once
// and then only read.
type Marginals struct {
	pathSlot   map[string]int64
	slotFiller map[string]int64
	total      int64
	hasTotal   bool
	skipped    int
}

// NewMarginals returns an empty table.
func NewMarginals() *Marginals {
	return &Marginals{
		pathSlot:   make(map[string]int64),
		slotFiller: make(map[string]int64),
	}
}

// AddLine adds one "key\tsum" line of marginals output. Malformed lines
// are counted and skipped. Repeated keys are summed.
func (m *Marginals) AddLine(line string) {
	key, value, ok := record.ParseKeyValue(line)
	if !ok {
		m.skipped++
		return
	}
	n, ok := record.ParseInt(value)
	if !ok {
		m.skipped++
		return
	}
	m.Add(key, n)
}

// Add adds n to the marginal named key.
func (m *Marginals) Add(key string, n int64) {
	switch {
	case key == TotalKey:
		m.total += n
		m.hasTotal = true
	case strings.HasPrefix(key, pathSlotPrefix):
		m.pathSlot[key] += n
	case strings.HasPrefix(key, slotFillerPrefix):
		m.slotFiller[key] += n
	default:
		m.skipped++
	}
}

// Lookup returns the marginals of t. ok is false if any of them is
// missing.
func (m *Marginals) Lookup(t record.Triple) (ps, sw, total int64, ok bool) {
	ps, psOK := m.pathSlot[PathSlotKey(t.Path, t.Slot)]
	sw, swOK := m.slotFiller[SlotFillerKey(t.Slot, t.Filler)]
	return ps, sw, m.total, psOK && swOK && m.hasTotal
}

// Score returns the mutual information of a counted triple, or ok=false
// if it is undefined.
func (m *Marginals) Score(c record.Count) (float64, bool) {
	ps, sw, total, ok := m.Lookup(c.Triple)
	if !ok {
		return 0, false
	}
	return MI(c.N, ps, sw, total)
}

// Total returns the global triple count.
func (m *Marginals) Total() int64 {
	return m.total
}

// Len returns the number of distinct marginal keys loaded.
func (m *Marginals) Len() int {
	n := len(m.pathSlot) + len(m.slotFiller)
	if m.hasTotal {
		n++
	}
	return n
}

// Skipped returns the number of lines that could not be loaded.
func (m *Marginals) Skipped() int {
	return m.skipped
}
