// Package record defines the tab-delimited records passed between
// pipeline stages.
package record

import (
	"math"
	"strconv"
	"strings"
)

// Slot is the role a filler plays relative to its verb.
type Slot string

// Slots
const (
	SlotX Slot = "X" // subject role
	SlotY Slot = "Y" // object role
)

// SubjectSlot maps a dependency relation to its slot. Nominal subjects
// (including passive and other nsubj variants) and clausal subjects fill
// X; everything else fills Y.
func SubjectSlot(relation string) Slot {
	r := strings.ToLower(relation)
	if strings.HasPrefix(r, "nsubj") || r == "csubj" || r == "csubjpass" {
		return SlotX
	}
	return SlotY
}

// Triple is a bare path, a slot and a filler.
type Triple struct {
	Path   string
	Slot   Slot
	Filler string
}

// Key joins the fields of t with tabs.
func (t Triple) Key() string {
	return t.Path + "\t" + string(t.Slot) + "\t" + t.Filler
}

// Feature returns the (slot, filler) key t contributes to.
func (t Triple) Feature() string {
	return string(t.Slot) + "\t" + t.Filler
}

// ParseTriple parses a Key.
func ParseTriple(s string) (Triple, bool) {
	fields := strings.Split(s, "\t")
	if len(fields) != 3 {
		return Triple{}, false
	}
	return tripleOf(fields)
}

func tripleOf(fields []string) (Triple, bool) {
	slot := Slot(fields[1])
	if fields[0] == "" || fields[2] == "" || (slot != SlotX && slot != SlotY) {
		return Triple{}, false
	}
	return Triple{Path: fields[0], Slot: slot, Filler: fields[2]}, true
}

// Count is a triple and its number of occurrences.
type Count struct {
	Triple
	N int64
}

// ParseCount parses a "path\tslot\tfiller\tcount" line.
func ParseCount(line string) (Count, bool) {
	fields := strings.Split(line, "\t")
	if len(fields) != 4 {
		return Count{}, false
	}
	t, ok := tripleOf(fields)
	if !ok {
		return Count{}, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(fields[3]), 10, 64)
	if err != nil || n < 0 {
		return Count{}, false
	}
	return Count{Triple: t, N: n}, true
}

// Scored is a triple and its mutual information.
type Scored struct {
	Triple
	MI float64
}

// ParseScored parses a "path\tslot\tfiller\tmi" line.
func ParseScored(line string) (Scored, bool) {
	fields := strings.Split(line, "\t")
	if len(fields) != 4 {
		return Scored{}, false
	}
	t, ok := tripleOf(fields)
	if !ok {
		return Scored{}, false
	}
	mi, ok := ParseFloat(fields[3])
	if !ok {
		return Scored{}, false
	}
	return Scored{Triple: t, MI: mi}, true
}

// Partial is one feature's contribution to the similarity of two paths.
// A and B are in canonical order.
type Partial struct {
	A, B  string
	Score float64
}

// ParsePartial parses an "a\tb\tscore" line. It is also used for final
// similarity rows, which share the layout.
func ParsePartial(line string) (Partial, bool) {
	fields := strings.Split(line, "\t")
	if len(fields) != 3 || fields[0] == "" || fields[1] == "" {
		return Partial{}, false
	}
	score, ok := ParseFloat(fields[2])
	if !ok {
		return Partial{}, false
	}
	return Partial{A: fields[0], B: fields[1], Score: score}, true
}

// ParseKeyValue splits a "key\tvalue" line on its last tab.
func ParseKeyValue(line string) (key, value string, ok bool) {
	i := strings.LastIndexByte(line, '\t')
	if i <= 0 {
		return "", "", false
	}
	return line[:i], line[i+1:], true
}

// Pair returns a and b in canonical (byte-wise) order, joined by a tab.
func Pair(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "\t" + b
}

// SplitPair undoes Pair.
func SplitPair(key string) (a, b string, ok bool) {
	parts := strings.Split(key, "\t")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// FormatFloat renders f in the shortest form that parses back to f.
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// FormatInt renders n in decimal.
func FormatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}

// ParseFloat parses a finite decimal number, ignoring surrounding
// whitespace.
func ParseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ParseInt parses a decimal integer, ignoring surrounding whitespace.
func ParseInt(s string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n, err == nil
}
