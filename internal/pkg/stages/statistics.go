package stages

import (
	"github.com/bcongdon/dirt"
	"github.com/bcongdon/dirt/internal/pkg/mi"
	"github.com/bcongdon/dirt/internal/pkg/record"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// marginalsMapper spreads each triple count over its three marginal keys.
type marginalsMapper struct{}

func (marginalsMapper) Map(key, value string, emitter dirt.Emitter) {
	c, ok := record.ParseCount(value)
	if !ok {
		return
	}
	n := record.FormatInt(c.N)
	for _, k := range mi.MarginalKeys(c.Triple) {
		emitter.Emit(k, n)
	}
}

// scorer computes the mutual information of each counted triple against
// the broadcast marginals. Triples whose MI is undefined are dropped.
type scorer struct {
	marginals *mi.Marginals
}

func (s scorer) WithTables(tables dirt.Tables) (dirt.Mapper, error) {
	marginals, ok := tables[marginalsTable].(*mi.Marginals)
	if !ok {
		return nil, errors.Errorf("broadcast %s is not a marginals table", marginalsTable)
	}
	if marginals.Skipped() > 0 {
		log.Debugf("Skipped %d malformed marginals", marginals.Skipped())
	}
	return scorer{marginals: marginals}, nil
}

func (s scorer) Map(key, value string, emitter dirt.Emitter) {
	c, ok := record.ParseCount(value)
	if !ok {
		return
	}
	score, ok := s.marginals.Score(c)
	if !ok {
		return
	}
	emitter.Emit(c.Key(), record.FormatFloat(score))
}

// pathTotalsMapper keys each scored triple's MI by its path.
type pathTotalsMapper struct{}

func (pathTotalsMapper) Map(key, value string, emitter dirt.Emitter) {
	s, ok := record.ParseScored(value)
	if !ok {
		return
	}
	emitter.Emit(s.Path, record.FormatFloat(s.MI))
}

// sumScores adds up float values.
type sumScores struct{}

func (sumScores) Reduce(key string, values dirt.ValueIterator, emitter dirt.Emitter) {
	emitter.Emit(key, record.FormatFloat(sumFloats(values)))
}

func sumFloats(values dirt.ValueIterator) float64 {
	var sum float64
	for value := range values.Iter() {
		if f, ok := record.ParseFloat(value); ok {
			sum += f
		}
	}
	return sum
}
