package stages

import (
	"fmt"
	"math"
	"sort"
	"testing"

	"github.com/bcongdon/dirt"
	"github.com/bcongdon/dirt/internal/pkg/mi"
	"github.com/bcongdon/dirt/internal/pkg/pathext"
	"github.com/bcongdon/dirt/internal/pkg/record"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	rows []string
}

func (c *collector) Emit(key, value string) error {
	c.rows = append(c.rows, key+"\t"+value)
	return nil
}

func (c *collector) sorted() []string {
	rows := append([]string{}, c.rows...)
	sort.Strings(rows)
	return rows
}

func TestCounterMap(t *testing.T) {
	c := newCounter(DefaultSettings())
	out := &collector{}

	c.Map("", "John/NNP/nsubj/1 eats/VBZ/ROOT/0 apples/NNS/dobj/1", out)
	assert.Equal(t, []string{
		"eat -> nsubj\tX\tjohn\t1",
		"eat -> dobj\tY\tapple\t1",
	}, out.rows)

	out = &collector{}
	c.Map("", "waits/VBZ/ROOT/0\tfor/IN/prep/1\tMary/NNP/pobj/2\t153", out)
	assert.Equal(t, []string{"wait -> for\tY\tmary\t1"}, out.rows)

	out = &collector{}
	c.Map("", "not a parse", out)
	assert.Empty(t, out.rows)
}

func TestCounterPronounFillers(t *testing.T) {
	line := "He/PRP/nsubj/1 eats/VBZ/ROOT/0 it/PRP/dobj/1"

	out := &collector{}
	newCounter(DefaultSettings()).Map("", line, out)
	assert.Empty(t, out.rows)

	s := DefaultSettings()
	s.PronounFillers = true
	newCounter(s).Map("", line, out)
	assert.Equal(t, []string{"eat -> nsubj\tX\the\t1", "eat -> dobj\tY\tit\t1"}, out.rows)
}

func TestSumCounts(t *testing.T) {
	out := &collector{}
	sumCounts{}.Reduce("k", dirt.ValuesOf([]string{"1", "2", "bogus", "40"}), out)
	assert.Equal(t, []string{"k\t43"}, out.rows)
}

func TestMarginalsMapper(t *testing.T) {
	out := &collector{}
	marginalsMapper{}.Map("", "eat -> dobj\tY\tapple\t2", out)
	assert.Equal(t, []string{
		"PS:eat -> dobj\tY\t2",
		"SW:Y\tapple\t2",
		"TOTAL\t2",
	}, out.rows)

	out = &collector{}
	marginalsMapper{}.Map("", "eat -> dobj\tZ\tapple\t2", out)
	marginalsMapper{}.Map("", "eat -> dobj\tY\tapple", out)
	assert.Empty(t, out.rows)
}

func testMarginals(lines ...string) dirt.Tables {
	m := mi.NewMarginals()
	for _, line := range lines {
		m.AddLine(line)
	}
	return dirt.Tables{marginalsTable: m}
}

func TestScorer(t *testing.T) {
	mapper, err := scorer{}.WithTables(testMarginals(
		"PS:p\tY\t4",
		"SW:Y\tw\t2",
		"TOTAL\t8",
	))
	require.Nil(t, err)

	out := &collector{}
	mapper.Map("", "p\tY\tw\t2", out)
	require.Len(t, out.rows, 1)

	s, ok := record.ParseScored(out.rows[0])
	require.True(t, ok)
	assert.Equal(t, record.Triple{Path: "p", Slot: record.SlotY, Filler: "w"}, s.Triple)
	assert.InDelta(t, math.Log(2), s.MI, 1e-12)

	// Missing slot-filler marginal
	out = &collector{}
	mapper.Map("", "p\tY\tother\t2", out)
	assert.Empty(t, out.rows)
}

func TestScorerDropsUndefinedMI(t *testing.T) {
	mapper, err := scorer{}.WithTables(testMarginals(
		"PS:p\tY\t4",
		"SW:Y\tw\t0",
		"TOTAL\t8",
	))
	require.Nil(t, err)

	out := &collector{}
	mapper.Map("", "p\tY\tw\t2", out)
	mapper.Map("", "p\tY\tw\t0", out)
	assert.Empty(t, out.rows)
}

func TestScorerNeedsMarginals(t *testing.T) {
	_, err := scorer{}.WithTables(dirt.Tables{})
	assert.NotNil(t, err)
}

func TestPathTotalsMapper(t *testing.T) {
	out := &collector{}
	pathTotalsMapper{}.Map("", "eat -> dobj\tY\tapple\t0.5", out)
	pathTotalsMapper{}.Map("", "eat -> dobj\tY\tapple\tNaN", out)
	assert.Equal(t, []string{"eat -> dobj\t0.5"}, out.rows)

	out = &collector{}
	sumScores{}.Reduce("eat -> dobj", dirt.ValuesOf([]string{"0.5", "0.25", "x"}), out)
	assert.Equal(t, []string{"eat -> dobj\t0.75"}, out.rows)
}

func TestInvertedIndexMap(t *testing.T) {
	out := &collector{}
	invertedIndex{}.Map("", "eat -> dobj\tY\tapple\t0.5", out)
	assert.Equal(t, []string{"Y\tapple\teat -> dobj\t0.5"}, out.rows)
}

func TestInvertedIndexPairs(t *testing.T) {
	ix := invertedIndex{skewCap: DefaultSkewCap}

	out := &collector{}
	ix.Reduce("Y\tapple", dirt.ValuesOf([]string{"eat -> dobj\t1.5", "consume -> dobj\t0.5"}), out)
	assert.Equal(t, []string{"consume -> dobj\teat -> dobj\t2"}, out.rows)

	out = &collector{}
	ix.Reduce("Y\tapple", dirt.ValuesOf([]string{"c\t1", "a\t2", "b\t4", "a\t8"}), out)
	assert.Equal(t, []string{"a\tb\t6", "a\tc\t3", "b\tc\t5"}, out.sorted())
}

func TestInvertedIndexNoSelfPairs(t *testing.T) {
	out := &collector{}
	invertedIndex{skewCap: DefaultSkewCap}.Reduce("X\tjohn", dirt.ValuesOf([]string{"eat -> nsubj\t1", "eat -> nsubj\t1"}), out)
	assert.Empty(t, out.rows)

	out = &collector{}
	invertedIndex{skewCap: DefaultSkewCap}.Reduce("X\tjohn", dirt.ValuesOf([]string{"eat -> nsubj\t1"}), out)
	assert.Empty(t, out.rows)
}

func TestInvertedIndexPairsAreCanonical(t *testing.T) {
	values := make([]string, 0)
	for i := 0; i < 20; i++ {
		values = append(values, fmt.Sprintf("path-%02d\t1", 19-i))
	}

	out := &collector{}
	invertedIndex{skewCap: DefaultSkewCap}.Reduce("Y\tw", dirt.ValuesOf(values), out)
	require.Len(t, out.rows, 190)

	seen := make(map[string]bool)
	for _, row := range out.rows {
		p, ok := record.ParsePartial(row)
		require.True(t, ok)
		assert.True(t, p.A < p.B, row)
		assert.False(t, seen[p.A+"\t"+p.B], row)
		seen[p.A+"\t"+p.B] = true
	}
}

func skewValues(n int) []string {
	values := make([]string, n)
	for i := range values {
		values[i] = fmt.Sprintf("path-%03d\t1", i)
	}
	return values
}

func TestInvertedIndexSkewCap(t *testing.T) {
	out := &collector{}
	invertedIndex{skewCap: 100}.Reduce("Y\tit", dirt.ValuesOf(skewValues(101)), out)
	assert.Empty(t, out.rows)

	out = &collector{}
	invertedIndex{skewCap: 100}.Reduce("Y\tit", dirt.ValuesOf(skewValues(100)), out)
	assert.Len(t, out.rows, 100*99/2)

	// Duplicates of a kept path do not count towards the cap
	values := append(skewValues(100), "path-000\t1", "path-001\t1")
	out = &collector{}
	invertedIndex{skewCap: 100}.Reduce("Y\tit", dirt.ValuesOf(values), out)
	assert.Len(t, out.rows, 100*99/2)

	out = &collector{}
	invertedIndex{skewCap: 2}.Reduce("Y\tit", dirt.ValuesOf(skewValues(3)), out)
	assert.Empty(t, out.rows)

	out = &collector{}
	invertedIndex{skewCap: 0}.Reduce("Y\tit", dirt.ValuesOf(skewValues(150)), out)
	assert.Len(t, out.rows, 150*149/2)
}

func TestPartialMapper(t *testing.T) {
	out := &collector{}
	partialMapper{}.Map("", "b\ta\t0.5", out)
	partialMapper{}.Map("", "a\ta\t0.5", out)
	partialMapper{}.Map("", "a\tb", out)
	assert.Equal(t, []string{"a\tb\t0.5"}, out.rows)
}

func TestAggregator(t *testing.T) {
	reducer, err := aggregator{}.WithTables(dirt.Tables{})
	require.Nil(t, err)

	out := &collector{}
	reducer.Reduce("a\tb", dirt.ValuesOf([]string{"1", "0.5"}), out)
	reducer.Reduce("a\tc", dirt.ValuesOf([]string{"1", "-1"}), out)
	reducer.Reduce("malformed", dirt.ValuesOf([]string{"1"}), out)
	assert.Equal(t, []string{"a\tb\t1.5"}, out.rows)
}

func TestAggregatorNormalizes(t *testing.T) {
	totals := mi.NewPathTotals()
	totals.AddLine("a\t1")
	totals.AddLine("b\t2")
	totals.AddLine("z\t-2")

	reducer, err := aggregator{}.WithTables(dirt.Tables{pathTotalsTable: totals})
	require.Nil(t, err)

	out := &collector{}
	reducer.Reduce("a\tb", dirt.ValuesOf([]string{"1", "0.5"}), out)
	// c has no total, so the numerator is kept
	reducer.Reduce("a\tc", dirt.ValuesOf([]string{"3"}), out)
	// a non-positive denominator keeps the numerator too
	reducer.Reduce("a\tz", dirt.ValuesOf([]string{"3"}), out)
	assert.Equal(t, []string{"a\tb\t0.5", "a\tc\t3", "a\tz\t3"}, out.rows)
}

func TestAggregatorEmptyTotals(t *testing.T) {
	reducer, err := aggregator{}.WithTables(dirt.Tables{pathTotalsTable: mi.NewPathTotals()})
	require.Nil(t, err)

	out := &collector{}
	reducer.Reduce("a\tb", dirt.ValuesOf([]string{"1", "0.5"}), out)
	assert.Equal(t, []string{"a\tb\t1.5"}, out.rows)
}

func TestPipelineStages(t *testing.T) {
	names := func(jobs []*dirt.Job) []string {
		out := make([]string, len(jobs))
		for i, job := range jobs {
			out[i] = job.Name
		}
		return out
	}

	jobs := Pipeline(DefaultSettings())
	assert.ElementsMatch(t, []string{
		CountingStage, MarginalsStage, ScoringStage, PathTotalsStage, SimilarityStage, AggregationStage,
	}, names(jobs))

	s := DefaultSettings()
	s.Normalize = false
	jobs = Pipeline(s)
	assert.NotContains(t, names(jobs), PathTotalsStage)
	for _, job := range jobs {
		if job.Name == AggregationStage {
			assert.Empty(t, job.Broadcasts)
		}
		if job.Name == ScoringStage {
			assert.True(t, job.MapOnly())
			require.Len(t, job.Broadcasts, 1)
			assert.False(t, job.Broadcasts[0].Optional)
		}
	}
}

func TestSettingsFromConfig(t *testing.T) {
	viper.Set("stemmer", "porter")
	viper.Set("skew_cap", 7)
	viper.Set("pronoun_fillers", true)
	viper.Set("normalize", false)
	defer func() {
		viper.Set("stemmer", "heuristic")
		viper.Set("skew_cap", DefaultSkewCap)
		viper.Set("pronoun_fillers", false)
		viper.Set("normalize", true)
	}()

	s, err := SettingsFromConfig()
	require.Nil(t, err)
	assert.Equal(t, 7, s.SkewCap)
	assert.True(t, s.PronounFillers)
	assert.False(t, s.Normalize)
	assert.Equal(t, pathext.PorterStem("running"), s.Stemmer("running"))

	viper.Set("stemmer", "lancaster")
	_, err = SettingsFromConfig()
	assert.NotNil(t, err)
}
