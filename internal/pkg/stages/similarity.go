package stages

import (
	"github.com/bcongdon/dirt"
	"github.com/bcongdon/dirt/internal/pkg/mi"
	"github.com/bcongdon/dirt/internal/pkg/record"
	log "github.com/sirupsen/logrus"
)

type pathScore struct {
	path string
	mi   float64
}

// invertedIndex groups scored triples by feature (slot, filler) and emits
// one partial similarity score per unordered pair of distinct paths that
// share the feature. Features shared by more than skewCap distinct paths
// are dropped whole.
type invertedIndex struct {
	skewCap int
}

func (ix invertedIndex) Map(key, value string, emitter dirt.Emitter) {
	s, ok := record.ParseScored(value)
	if !ok {
		return
	}
	emitter.Emit(s.Feature(), s.Path+"\t"+record.FormatFloat(s.MI))
}

func (ix invertedIndex) Reduce(key string, values dirt.ValueIterator, emitter dirt.Emitter) {
	seen := make(map[string]bool)
	paths := make([]pathScore, 0)
	skewed := false

	for value := range values.Iter() {
		if skewed {
			continue // drain
		}

		path, raw, ok := record.ParseKeyValue(value)
		if !ok || seen[path] {
			continue
		}
		score, ok := record.ParseFloat(raw)
		if !ok {
			continue
		}

		if ix.skewCap > 0 && len(paths) == ix.skewCap {
			skewed = true
			seen, paths = nil, nil
			continue
		}
		seen[path] = true
		paths = append(paths, pathScore{path: path, mi: score})
	}

	if skewed {
		log.Debugf("Feature %q has more than %d paths, skipping", key, ix.skewCap)
		return
	}

	for i := 0; i < len(paths); i++ {
		for j := i + 1; j < len(paths); j++ {
			a, b := paths[i], paths[j]
			emitter.Emit(record.Pair(a.path, b.path), record.FormatFloat(a.mi+b.mi))
		}
	}
}

// partialMapper re-keys partial scores by their canonical path pair.
type partialMapper struct{}

func (partialMapper) Map(key, value string, emitter dirt.Emitter) {
	p, ok := record.ParsePartial(value)
	if !ok || p.A == p.B {
		return
	}
	emitter.Emit(record.Pair(p.A, p.B), record.FormatFloat(p.Score))
}

// aggregator sums the partial scores of a path pair and, when path totals
// are available, divides by the pair's total informativeness. Pairs that
// sum to zero are not written.
type aggregator struct {
	totals *mi.PathTotals
}

func (a aggregator) WithTables(tables dirt.Tables) (dirt.Reducer, error) {
	totals, _ := tables[pathTotalsTable].(*mi.PathTotals)
	if totals != nil && totals.Len() == 0 {
		log.Debug("Path totals are empty, writing unnormalized scores")
	}
	return aggregator{totals: totals}, nil
}

func (a aggregator) Reduce(key string, values dirt.ValueIterator, emitter dirt.Emitter) {
	pathA, pathB, ok := record.SplitPair(key)
	if !ok {
		return
	}

	score := a.totals.Similarity(pathA, pathB, sumFloats(values))
	if score == 0 {
		return
	}
	emitter.Emit(key, record.FormatFloat(score))
}
