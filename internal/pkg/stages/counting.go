package stages

import (
	"github.com/bcongdon/dirt"
	"github.com/bcongdon/dirt/internal/pkg/pathext"
	"github.com/bcongdon/dirt/internal/pkg/record"
)

// counter maps parsed sentence lines to unit counts of their path triples.
type counter struct {
	extractor *pathext.Extractor
}

func newCounter(s Settings) counter {
	return counter{
		extractor: pathext.NewExtractor(
			pathext.WithStemmer(s.Stemmer),
			pathext.WithPronounFillers(s.PronounFillers),
		),
	}
}

func (c counter) Map(key, value string, emitter dirt.Emitter) {
	for _, path := range c.extractor.Extract(value) {
		bare, relation, filler, ok := pathext.Split(path)
		if !ok {
			continue
		}
		t := record.Triple{Path: bare, Slot: record.SubjectSlot(relation), Filler: filler}
		emitter.Emit(t.Key(), "1")
	}
}

// sumCounts adds up integer values. It is associative, so it serves as
// both combiner and reducer.
type sumCounts struct{}

func (sumCounts) Reduce(key string, values dirt.ValueIterator, emitter dirt.Emitter) {
	var sum int64
	for value := range values.Iter() {
		if n, ok := record.ParseInt(value); ok {
			sum += n
		}
	}
	emitter.Emit(key, record.FormatInt(sum))
}
