package filter

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var refNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type item struct {
	id        string
	title     string
	desc      string
	impact    string
	symbols   []string
	score     *float64
	published time.Time
	starred   bool
}

func (i item) Key() string { return i.id }

func (i item) Field(name string) (Value, bool) {
	switch name {
	case "title":
		return String(i.title), true
	case "impact":
		if i.impact == "" {
			return Value{}, false
		}
		return String(i.impact), true
	case "symbols":
		return Set(i.symbols...), true
	case "score":
		if i.score == nil {
			return Value{}, false
		}
		return Number(*i.score), true
	case "publishedAt":
		if i.published.IsZero() {
			return Value{}, false
		}
		return Time(i.published), true
	case "starred":
		return Bool(i.starred), true
	}
	return Value{}, false
}

func (i item) Searchable() []string { return []string{i.title, i.desc} }

var itemSchema = Schema{
	Name: "items",
	Fields: map[string]Kind{
		"title":       KindString,
		"impact":      KindString,
		"symbols":     KindSet,
		"score":       KindNumber,
		"publishedAt": KindTime,
		"starred":     KindBool,
	},
	DefaultSort: SortSpec{Key: "score", Direction: Desc},
	Recency:     "publishedAt",
}

func num(f float64) *float64 { return &f }

func newTestPipeline(opts Options) *Pipeline[item] {
	opts.Clock = func() time.Time { return refNow }
	return New[item](itemSchema, opts)
}

func keys(items []item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.id
	}
	return out
}

func sampleItems() []item {
	return []item{
		{id: "a", title: "Fed holds rates", desc: "Macro update", impact: "high", symbols: []string{"SPY"}, score: num(80), published: refNow.Add(-2 * time.Hour)},
		{id: "b", title: "Bitcoin rallies", desc: "Crypto markets up", impact: "medium", symbols: []string{"BTC"}, score: num(60), published: refNow.Add(-30 * time.Minute)},
		{id: "c", title: "Earnings beat", desc: "AAPL beats estimates", impact: "low", symbols: []string{"AAPL"}, score: num(40), published: refNow.Add(-72 * time.Hour), starred: true},
		{id: "d", title: "CPI surprise", desc: "Inflation hotter than bitcoin bulls hoped", impact: "high", symbols: []string{"SPY", "QQQ"}, score: num(80), published: refNow.Add(-1 * time.Hour)},
	}
}

func TestEmptyStateKeepsEverything(t *testing.T) {
	p := newTestPipeline(Options{})
	records := sampleItems()

	got := p.FilterAndSort(records, NewState(), SortSpec{})

	assert.ElementsMatch(t, keys(records), keys(got))
	assert.Equal(t, []string{"d", "a", "b", "c"}, keys(got), "default order is score desc then recency desc")
}

func TestDefaultsDoNotChangeFiltering(t *testing.T) {
	defaults := Defaults{Window: "24h", Ranges: map[string]Range{"score": AtLeast(50)}}
	p := newTestPipeline(Options{Defaults: defaults})

	all := p.Filter(sampleItems(), NewState())
	assert.Len(t, all, 4)
	assert.Zero(t, CountActiveFilters(NewState(), "", defaults))

	state := NewState().
		With("publishedAt", DateWindow{Window: "24h"}).
		With("score", AtLeast(50)).
		With("impact", Inclusion{})
	got := p.Filter(sampleItems(), state)

	assert.ElementsMatch(t, []string{"a", "b", "d"}, keys(got), "default-valued criteria still filter")
	assert.Zero(t, CountActiveFilters(state, "", defaults))
}

func TestNarrowingNeverGrowsWithDefaults(t *testing.T) {
	defaults := Defaults{Window: "24h", Ranges: map[string]Range{"score": AtLeast(50)}}
	p := newTestPipeline(Options{Defaults: defaults})

	steps := []State{
		NewState(),
		NewState().With("publishedAt", DateWindow{Window: "7d"}).With("score", AtLeast(40)),
		NewState().With("publishedAt", DateWindow{Window: "24h"}).With("score", AtLeast(40)),
		NewState().With("publishedAt", DateWindow{Window: "24h"}).With("score", AtLeast(50)),
		NewState().With("publishedAt", DateWindow{Window: "24h"}).With("score", AtLeast(70)),
	}

	prev := keys(p.Filter(sampleItems(), steps[0]))
	for i, state := range steps[1:] {
		cur := keys(p.Filter(sampleItems(), state))
		assert.Subset(t, prev, cur, "step %d grew the result", i+1)
		assert.LessOrEqual(t, len(cur), len(prev), "step %d", i+1)
		prev = cur
	}
	assert.ElementsMatch(t, []string{"a", "d"}, prev)
}

func TestInclusionByImpactSortsByScoreThenRecency(t *testing.T) {
	p := newTestPipeline(Options{})
	state := NewState().With("impact", Inclusion{Values: []string{"high"}})

	got := p.FilterAndSort(sampleItems(), state, SortSpec{Key: "score", Direction: Desc})

	// a and d share score 80; d was published later
	assert.Equal(t, []string{"d", "a"}, keys(got))
}

func TestInclusionPredicate(t *testing.T) {
	p := newTestPipeline(Options{})
	for _, it := range sampleItems() {
		assert.True(t, p.Evaluate(it, "impact", Inclusion{}), "empty set is vacuously true")
		assert.Equal(t, it.impact == "high", p.Evaluate(it, "impact", Inclusion{Values: []string{"high"}}))
	}
	assert.False(t, p.Evaluate(item{id: "x"}, "impact", Inclusion{Values: []string{"high"}}))
}

func TestMembership(t *testing.T) {
	p := newTestPipeline(Options{})
	state := NewState().With("symbols", Membership{Values: []string{"qqq", "BTC"}})

	got := p.FilterAndSort(sampleItems(), state, SortSpec{Key: "title", Direction: Asc})

	assert.Equal(t, []string{"b", "d"}, keys(got))
}

func TestKeywordExcludeWinsOverIncludes(t *testing.T) {
	p := newTestPipeline(Options{})
	state := NewState().
		With("impact", Inclusion{Values: []string{"high", "medium"}}).
		With("excludeKeywords", Keyword{Terms: []string{"BITCOIN"}, Exclude: true})

	got := p.Filter(sampleItems(), state)

	assert.Equal(t, []string{"a"}, keys(got))
}

func TestKeywordIncludeMatchesAnyTerm(t *testing.T) {
	p := newTestPipeline(Options{})
	state := NewState().With("keywords", Keyword{Terms: []string{"earnings", " fed "}})

	got := p.Filter(sampleItems(), state)

	assert.Equal(t, []string{"a", "c"}, keys(got))
}

func TestKeywordOnNamedField(t *testing.T) {
	p := newTestPipeline(Options{})
	// "bitcoin" appears in d's description but only b's title
	state := NewState().With("title", Keyword{Terms: []string{"bitcoin"}})

	assert.Equal(t, []string{"b"}, keys(p.Filter(sampleItems(), state)))
}

func TestSearchIsCaseInsensitive(t *testing.T) {
	p := newTestPipeline(Options{})
	state := NewState()
	state.Search = "aapl"

	assert.Equal(t, []string{"c"}, keys(p.Filter(sampleItems(), state)))
}

func TestRangeMissingTreatedAsZero(t *testing.T) {
	p := newTestPipeline(Options{})
	records := []item{
		{id: "r1", score: num(1.5)},
		{id: "r2"},
		{id: "r3", score: num(3.0)},
	}
	state := NewState().With("score", AtLeast(2.0))

	assert.Equal(t, []string{"r3"}, keys(p.Filter(records, state)))
}

func TestRangeMissingPolicies(t *testing.T) {
	records := []item{{id: "r1", score: num(1.5)}, {id: "r2"}, {id: "r3", score: num(3.0)}}
	state := NewState().With("score", AtLeast(2.0))

	pass := newTestPipeline(Options{Missing: MissingPass})
	assert.Equal(t, []string{"r2", "r3"}, keys(pass.Filter(records, state)))

	fail := newTestPipeline(Options{Missing: MissingFail})
	assert.Equal(t, []string{"r3"}, keys(fail.Filter(records, state)))

	// with a negative lower bound, zero-coercion keeps the missing record
	zero := newTestPipeline(Options{Missing: MissingZero})
	assert.Equal(t, []string{"r1", "r2", "r3"}, keys(zero.Filter(records, NewState().With("score", AtLeast(-1)))))
}

func TestRangeBoundsInclusive(t *testing.T) {
	p := newTestPipeline(Options{})
	state := NewState().With("score", Between(60, 80))

	assert.Equal(t, []string{"a", "b", "d"}, keys(p.Filter(sampleItems(), state)))
}

func TestMalformedEntriesFailOpen(t *testing.T) {
	p := newTestPipeline(Options{})
	// range on a string field, inverted range, inclusion on a time field, window on a bool field
	state := NewState().
		With("title", Between(0, 1)).
		With("score", Between(10, 1)).
		With("publishedAt", Inclusion{Values: []string{"x"}}).
		With("starred", DateWindow{Window: "24h"})

	assert.Len(t, p.Filter(sampleItems(), state), 4)
}

func TestUnknownWindowDoesNotFilter(t *testing.T) {
	p := newTestPipeline(Options{})
	state := NewState().With("publishedAt", DateWindow{Window: "fortnight-ish"})

	assert.Len(t, p.Filter(sampleItems(), state), 4)
}

func TestRelativeWindow(t *testing.T) {
	p := newTestPipeline(Options{})
	state := NewState().With("publishedAt", DateWindow{Window: "24h"})

	assert.Equal(t, []string{"a", "b", "d"}, keys(p.Filter(sampleItems(), state)))
}

func TestCustomWindow(t *testing.T) {
	p := newTestPipeline(Options{})
	from := refNow.Add(-3 * time.Hour)
	to := refNow.Add(-45 * time.Minute)
	state := NewState().With("publishedAt", DateWindow{Window: WindowCustom, From: &from, To: &to})

	assert.Equal(t, []string{"a", "d"}, keys(p.Filter(sampleItems(), state)))
}

func TestFlag(t *testing.T) {
	p := newTestPipeline(Options{})

	assert.Equal(t, []string{"c"}, keys(p.Filter(sampleItems(), NewState().With("starred", Flag{Only: true}))))
	assert.Len(t, p.Filter(sampleItems(), NewState().With("starred", Flag{})), 4)
}

func TestIdempotent(t *testing.T) {
	p := newTestPipeline(Options{})
	state := NewState().
		With("symbols", Membership{Values: []string{"SPY", "BTC"}}).
		With("score", AtLeast(50))
	spec := SortSpec{Key: "title", Direction: Asc}

	once := p.FilterAndSort(sampleItems(), state, spec)
	twice := p.FilterAndSort(once, state, spec)

	assert.Equal(t, keys(once), keys(twice))
}

func TestNarrowingNeverGrows(t *testing.T) {
	p := newTestPipeline(Options{})
	steps := []State{
		NewState(),
		NewState().With("impact", Inclusion{Values: []string{"high", "medium", "low"}}),
		NewState().With("impact", Inclusion{Values: []string{"high", "medium"}}),
		NewState().With("impact", Inclusion{Values: []string{"high", "medium"}}).With("score", AtLeast(60)),
		NewState().With("impact", Inclusion{Values: []string{"high", "medium"}}).With("score", Between(60, 70)),
		NewState().With("impact", Inclusion{Values: []string{"high"}}).With("score", Between(60, 70)),
	}

	prev := len(sampleItems())
	for i, st := range steps {
		n := len(p.Filter(sampleItems(), st))
		assert.LessOrEqual(t, n, prev, "step %d", i)
		prev = n
	}
}

func TestEmptyInput(t *testing.T) {
	p := newTestPipeline(Options{})
	got := p.FilterAndSort(nil, NewState().With("impact", Inclusion{Values: []string{"high"}}), SortSpec{})

	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestInputNotMutated(t *testing.T) {
	p := newTestPipeline(Options{})
	records := sampleItems()
	before := keys(records)

	p.FilterAndSort(records, NewState(), SortSpec{Key: "title", Direction: Asc})

	assert.Equal(t, before, keys(records))
}

func TestUnknownSortKeyFallsBack(t *testing.T) {
	p := newTestPipeline(Options{})

	got := p.FilterAndSort(sampleItems(), NewState(), SortSpec{Key: "nope", Direction: Asc})

	assert.Equal(t, []string{"d", "a", "b", "c"}, keys(got))
}

func TestEmptySortKeyKeepsDirection(t *testing.T) {
	p := newTestPipeline(Options{})

	got := p.FilterAndSort(sampleItems(), NewState(), SortSpec{Direction: Asc})
	assert.Equal(t, []string{"c", "b", "d", "a"}, keys(got), "default key, ascending")

	got = p.FilterAndSort(sampleItems(), NewState(), SortSpec{Key: "title"})
	assert.Equal(t, []string{"a", "c", "d", "b"}, keys(got), "non-default key without direction sorts desc")
}

func TestTextSortIsCaseInsensitive(t *testing.T) {
	p := newTestPipeline(Options{})
	records := []item{{id: "1", title: "beta"}, {id: "2", title: "Alpha"}, {id: "3", title: "gamma"}}

	p.Sort(records, SortSpec{Key: "title", Direction: Asc})

	assert.Equal(t, []string{"2", "1", "3"}, keys(records))
}

func TestNumericSortTreatsMissingAsZero(t *testing.T) {
	p := newTestPipeline(Options{})
	records := []item{{id: "1", score: num(5)}, {id: "2"}, {id: "3", score: num(-1)}}

	p.Sort(records, SortSpec{Key: "score", Direction: Asc})

	assert.Equal(t, []string{"3", "2", "1"}, keys(records))
}

func TestCountActiveFilters(t *testing.T) {
	defaults := Defaults{Window: "7d", Ranges: map[string]Range{"score": AtLeast(0)}}

	assert.Zero(t, CountActiveFilters(NewState(), "", defaults))
	assert.Equal(t, 1, CountActiveFilters(NewState(), "fed", defaults))
	assert.Zero(t, CountActiveFilters(NewState(), "   ", defaults))

	state := NewState().
		With("impact", Inclusion{Values: []string{"high"}}).
		With("symbols", Membership{}).
		With("publishedAt", DateWindow{Window: "7d"}).
		With("score", AtLeast(0)).
		With("starred", Flag{Only: true})
	assert.Equal(t, 2, CountActiveFilters(state, "", defaults))

	state = state.With("publishedAt", DateWindow{Window: "24h"}).With("score", AtLeast(50))
	assert.Equal(t, 5, CountActiveFilters(state, "cpi", defaults))
}

func TestCountActiveFiltersComparesWithDefaults(t *testing.T) {
	defaults := Defaults{Window: "24h", Ranges: map[string]Range{"score": AtLeast(50)}}

	widened := NewState().With("publishedAt", DateWindow{Window: WindowAll})
	assert.Equal(t, 1, CountActiveFilters(widened, "", defaults), "all differs from a 24h default")

	upper := NewState().With("publishedAt", DateWindow{Window: "24H"})
	assert.Zero(t, CountActiveFilters(upper, "", defaults), "labels compare case-insensitively")

	cleared := NewState().With("score", Range{})
	assert.Equal(t, 1, CountActiveFilters(cleared, "", defaults), "cleared range differs from >=50")

	bogus := NewState().With("publishedAt", DateWindow{Window: "bogus"})
	assert.False(t, bogus.Criteria["publishedAt"].Active())
	assert.Zero(t, CountActiveFilters(bogus, "", defaults), "unknown label never filters")
	assert.Zero(t, CountActiveFilters(bogus, "", Defaults{}))

	noDefault := NewState().With("publishedAt", DateWindow{Window: WindowAll}).With("score", Range{})
	assert.Zero(t, CountActiveFilters(noDefault, "", Defaults{}))
}

func TestSummarizeAndFacets(t *testing.T) {
	p := newTestPipeline(Options{})
	state := NewState().With("impact", Inclusion{Values: []string{"high"}})
	records := sampleItems()
	matched := p.Filter(records, state)

	assert.Equal(t, Summary{Total: 4, Matched: 2, ActiveFilters: 1}, p.Summarize(records, matched, state))
	assert.Equal(t, map[string]int{"high": 2, "medium": 1, "low": 1}, Facets(records, "impact"))
	assert.Equal(t, map[string]int{"SPY": 2, "QQQ": 1, "BTC": 1, "AAPL": 1}, Facets(records, "symbols"))
}

func TestStateCloneIsIndependent(t *testing.T) {
	state := NewState().With("impact", Inclusion{Values: []string{"high"}})
	clone := state.Clone()

	clone.Criteria["impact"].(Inclusion).Values[0] = "low"

	assert.Equal(t, "high", state.Criteria["impact"].(Inclusion).Values[0])
}

func TestStateJSONRoundTrip(t *testing.T) {
	from := refNow.Add(-time.Hour)
	state := NewState().
		With("impact", Inclusion{Values: []string{"high"}}).
		With("symbols", Membership{Values: []string{"SPY"}}).
		With("exclude", Keyword{Terms: []string{"bitcoin"}, Exclude: true}).
		With("score", Between(1, 2)).
		With("publishedAt", DateWindow{Window: WindowCustom, From: &from}).
		With("starred", Flag{Only: true})
	state.Search = "fed"

	data, err := json.Marshal(state)
	require.NoError(t, err)

	var decoded State
	require.NoError(t, json.Unmarshal(data, &decoded))

	p := newTestPipeline(Options{})
	assert.Equal(t, keys(p.Filter(sampleItems(), state)), keys(p.Filter(sampleItems(), decoded)))
	assert.Equal(t, state.Fields(), decoded.Fields())
	assert.Equal(t, "fed", decoded.Search)
}

func TestStateJSONDropsUnknownKinds(t *testing.T) {
	var s State
	require.NoError(t, json.Unmarshal([]byte(`{"criteria":{"impact":{"kind":"regex","values":["x"]}}}`), &s))
	assert.Empty(t, s.Criteria)
}

func TestParsers(t *testing.T) {
	d, err := ParseDirection("ASC")
	require.NoError(t, err)
	assert.Equal(t, Asc, d)
	_, err = ParseDirection("sideways")
	assert.Error(t, err)
	d, err = ParseDirection("")
	require.NoError(t, err)
	assert.Equal(t, DirectionDefault, d)

	m, err := ParseMissingPolicy("pass")
	require.NoError(t, err)
	assert.Equal(t, MissingPass, m)
	_, err = ParseMissingPolicy("maybe")
	assert.Error(t, err)

	w, ok := LookupWindow("7D")
	assert.True(t, ok)
	assert.Equal(t, 7*24*time.Hour, w)
}
