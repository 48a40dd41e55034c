// Package eval scores similarity output against labelled path pairs.
package eval

import (
	"sort"
	"strings"

	"github.com/bcongdon/dirt/internal/pkg/dirtfs"
	"github.com/bcongdon/dirt/internal/pkg/record"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
)

// DefaultThresholds are the fixed cut-offs reported alongside the best one.
var DefaultThresholds = []float64{0.0001, 0.001, 0.01, 0.05, 0.1}

// Example is a labelled path pair and the score the system gave it.
type Example struct {
	A, B     string
	Positive bool
	Score    float64
}

func pairKey(a, b string) string {
	return record.Pair(strings.TrimSpace(a), strings.TrimSpace(b))
}

// ReadGold reads "pathA\tpathB" lines from the files matching glob and
// labels them positive or negative. Lines without two paths are skipped.
func ReadGold(fs dirtfs.FileSystem, glob string, positive bool) ([]Example, error) {
	examples := make([]Example, 0)
	err := dirtfs.ReadLines(fs, glob, func(line string) error {
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			return nil
		}
		a, b := strings.TrimSpace(fields[0]), strings.TrimSpace(fields[1])
		if a == "" || b == "" {
			return nil
		}
		examples = append(examples, Example{A: a, B: b, Positive: positive})
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "read gold pairs %s", glob)
	}
	if len(examples) == 0 {
		return nil, errors.Errorf("no gold pairs in %s", glob)
	}
	return examples, nil
}

// ReadScores reads "pathA\tpathB\tscore" rows keyed by canonical pair.
// The first row of a pair wins, and a score that does not parse counts as
// 0.
func ReadScores(fs dirtfs.FileSystem, glob string) (map[string]float64, error) {
	scores := make(map[string]float64)
	err := dirtfs.ReadLines(fs, glob, func(line string) error {
		fields := strings.Split(line, "\t")
		if len(fields) < 3 {
			return nil
		}
		key := pairKey(fields[0], fields[1])
		if _, dup := scores[key]; dup {
			return nil
		}
		score, _ := record.ParseFloat(fields[2])
		scores[key] = score
		return nil
	})
	return scores, errors.Wrapf(err, "read system output %s", glob)
}

// Join copies each example's system score from scores. Pairs the system
// did not output score 0.
func Join(examples []Example, scores map[string]float64) []Example {
	joined := make([]Example, len(examples))
	for i, ex := range examples {
		ex.Score = scores[pairKey(ex.A, ex.B)]
		joined[i] = ex
	}
	return joined
}

// Metrics are the results of predicting "similar" for every example
// scoring at least Threshold.
type Metrics struct {
	Threshold float64
	Precision float64
	Recall    float64
	F1        float64

	TruePositives, FalsePositives int
	TrueNegatives, FalseNegatives int
}

// At computes Metrics at threshold. Undefined ratios are 0.
func At(examples []Example, threshold float64) Metrics {
	m := Metrics{Threshold: threshold}
	for _, ex := range examples {
		predicted := ex.Score >= threshold
		switch {
		case predicted && ex.Positive:
			m.TruePositives++
		case predicted:
			m.FalsePositives++
		case ex.Positive:
			m.FalseNegatives++
		default:
			m.TrueNegatives++
		}
	}

	if n := m.TruePositives + m.FalsePositives; n > 0 {
		m.Precision = float64(m.TruePositives) / float64(n)
	}
	if n := m.TruePositives + m.FalseNegatives; n > 0 {
		m.Recall = float64(m.TruePositives) / float64(n)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m
}

// BestF1 tries every distinct score as a threshold and returns the one
// with the highest F1. Ties go to the lowest threshold.
func BestF1(examples []Example) Metrics {
	thresholds := make([]float64, 0, len(examples))
	seen := make(map[float64]bool)
	for _, ex := range examples {
		if !seen[ex.Score] {
			seen[ex.Score] = true
			thresholds = append(thresholds, ex.Score)
		}
	}
	sort.Float64s(thresholds)

	var best Metrics
	for i, t := range thresholds {
		m := At(examples, t)
		if i == 0 || m.F1 > best.F1 {
			best = m
		}
	}
	return best
}

// Summary describes the scores of one class of examples.
type Summary struct {
	N      int
	Mean   float64
	Median float64
	P90    float64
	Zero   int // examples the system did not score
}

// Summarize describes the scores of the positive or negative examples.
func Summarize(examples []Example, positive bool) Summary {
	var s Summary
	scores := make(stats.Float64Data, 0, len(examples))
	for _, ex := range examples {
		if ex.Positive != positive {
			continue
		}
		scores = append(scores, ex.Score)
		if ex.Score == 0 {
			s.Zero++
		}
	}

	s.N = len(scores)
	if s.N == 0 {
		return s
	}
	s.Mean, _ = stats.Mean(scores)
	s.Median, _ = stats.Median(scores)
	s.P90, _ = stats.Percentile(scores, 90)
	return s
}

// Mistakes returns up to n false positives, highest score first, and up
// to n false negatives, lowest score first, at threshold.
func Mistakes(examples []Example, threshold float64, n int) (falsePositives, falseNegatives []Example) {
	for _, ex := range examples {
		predicted := ex.Score >= threshold
		if predicted && !ex.Positive {
			falsePositives = append(falsePositives, ex)
		}
		if !predicted && ex.Positive {
			falseNegatives = append(falseNegatives, ex)
		}
	}

	sort.SliceStable(falsePositives, func(i, j int) bool { return falsePositives[i].Score > falsePositives[j].Score })
	sort.SliceStable(falseNegatives, func(i, j int) bool { return falseNegatives[i].Score < falseNegatives[j].Score })
	if len(falsePositives) > n {
		falsePositives = falsePositives[:n]
	}
	if len(falseNegatives) > n {
		falseNegatives = falseNegatives[:n]
	}
	return falsePositives, falseNegatives
}
