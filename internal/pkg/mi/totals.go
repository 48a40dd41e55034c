package mi

import "github.com/bcongdon/dirt/internal/pkg/record"

// PathTotals maps a path to the sum of MI over all its triples.
type PathTotals struct {
	totals  map[string]float64
	skipped int
}

// NewPathTotals returns an empty table.
func NewPathTotals() *PathTotals {
	return &PathTotals{totals: make(map[string]float64)}
}

// AddLine adds one "path\ttotal" line. Malformed lines are skipped.
func (p *PathTotals) AddLine(line string) {
	path, value, ok := record.ParseKeyValue(line)
	if !ok {
		p.skipped++
		return
	}
	total, ok := record.ParseFloat(value)
	if !ok {
		p.skipped++
		return
	}
	p.totals[path] += total
}

// Get returns the total of path.
func (p *PathTotals) Get(path string) (float64, bool) {
	t, ok := p.totals[path]
	return t, ok
}

// Len returns the number of paths in the table.
func (p *PathTotals) Len() int {
	return len(p.totals)
}

// Skipped returns the number of lines that could not be loaded.
func (p *PathTotals) Skipped() int {
	return p.skipped
}

// Similarity divides the numerator n of the similarity of a and b by the
// sum of their totals. n is returned unchanged if p is nil or empty, if
// either path has no total, or if the sum is not positive.
func (p *PathTotals) Similarity(a, b string, n float64) float64 {
	if p == nil || len(p.totals) == 0 {
		return n
	}
	ta, okA := p.totals[a]
	tb, okB := p.totals[b]
	return Normalize(n, ta, tb, okA && okB)
}

// Normalize returns n/(ta+tb) if both totals are present and their sum is
// strictly positive, and n otherwise.
func Normalize(n, ta, tb float64, present bool) float64 {
	if !present || ta+tb <= 0 {
		return n
	}
	return n / (ta + tb)
}
