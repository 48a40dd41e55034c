// Package stages defines the jobs of the DIRT pipeline: counting path
// triples, computing their mutual information, and deriving pairwise path
// similarity through an inverted index over shared features.
package stages

import (
	"github.com/bcongdon/dirt"
	"github.com/bcongdon/dirt/internal/pkg/mi"
	"github.com/bcongdon/dirt/internal/pkg/pathext"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Stage names. Each stage writes its output under a directory of the same
// name in the working location.
const (
	CountingStage    = "counting"
	MarginalsStage   = "marginals"
	ScoringStage     = "scoring"
	PathTotalsStage  = "path-totals"
	SimilarityStage  = "similarity"
	AggregationStage = "aggregation"
)

// Broadcast table names.
const (
	marginalsTable  = "marginals"
	pathTotalsTable = "path-totals"
)

// DefaultSkewCap is the largest number of distinct paths a feature may
// have and still be compared pairwise.
const DefaultSkewCap = 100

// Settings holds the pipeline's tunables.
type Settings struct {
	Stemmer        pathext.Stemmer
	PronounFillers bool
	// SkewCap bounds the distinct paths per feature. Zero or less disables
	// the guard.
	SkewCap   int
	Normalize bool
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		Stemmer:   pathext.Stem,
		SkewCap:   DefaultSkewCap,
		Normalize: true,
	}
}

// SettingsFromConfig reads Settings from the loaded configuration.
func SettingsFromConfig() (Settings, error) {
	name := viper.GetString("stemmer")
	stemmer, ok := pathext.StemmerByName(name)
	if !ok {
		return Settings{}, errors.Errorf("unknown stemmer %q", name)
	}

	return Settings{
		Stemmer:        stemmer,
		PronounFillers: viper.GetBool("pronoun_fillers"),
		SkewCap:        viper.GetInt("skew_cap"),
		Normalize:      viper.GetBool("normalize"),
	}, nil
}

// Pipeline returns the jobs of a full DIRT run. Raw input is read from the
// driver's inputs by the counting stage; every other stage reads upstream
// stage output. Without normalization the path-totals stage is left out.
func Pipeline(s Settings) []*dirt.Job {
	if s.Stemmer == nil {
		s.Stemmer = pathext.Stem
	}

	counting := dirt.NewJob(CountingStage, newCounter(s), sumCounts{})
	counting.Combine = sumCounts{}

	marginals := dirt.NewJob(MarginalsStage, marginalsMapper{}, sumCounts{})
	marginals.Combine = sumCounts{}
	marginals.InputStages = []string{CountingStage}

	scoring := dirt.NewJob(ScoringStage, scorer{}, nil)
	scoring.InputStages = []string{CountingStage}
	scoring.Broadcasts = []dirt.Broadcast{{
		Name:  marginalsTable,
		Stage: MarginalsStage,
		New:   func() dirt.Table { return mi.NewMarginals() },
	}}

	similarity := dirt.NewJob(SimilarityStage, invertedIndex{skewCap: s.SkewCap}, invertedIndex{skewCap: s.SkewCap})
	similarity.InputStages = []string{ScoringStage}

	aggregation := dirt.NewJob(AggregationStage, partialMapper{}, aggregator{})
	aggregation.Combine = sumScores{}
	aggregation.InputStages = []string{SimilarityStage}

	jobs := []*dirt.Job{counting, marginals, scoring, similarity, aggregation}
	if s.Normalize {
		pathTotals := dirt.NewJob(PathTotalsStage, pathTotalsMapper{}, sumScores{})
		pathTotals.Combine = sumScores{}
		pathTotals.InputStages = []string{ScoringStage}

		aggregation.Broadcasts = []dirt.Broadcast{{
			Name:     pathTotalsTable,
			Stage:    PathTotalsStage,
			Optional: true,
			New:      func() dirt.Table { return mi.NewPathTotals() },
		}}
		jobs = append(jobs, pathTotals)
	}
	return jobs
}
