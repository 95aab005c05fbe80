package filter

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

// Pipeline filters, sorts and summarises collections of one record family.
// It holds no per-run state; a single Pipeline may be shared.
type Pipeline[R Record] struct {
	schema Schema
	opts   Options
}

// New builds a pipeline for records described by schema.
func New[R Record](schema Schema, opts Options) *Pipeline[R] {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Pipeline[R]{schema: schema, opts: opts}
}

// Schema returns the schema the pipeline was built with.
func (p *Pipeline[R]) Schema() Schema { return p.schema }

// Defaults returns the documented filter defaults.
func (p *Pipeline[R]) Defaults() Defaults { return p.opts.Defaults }

type step struct {
	field     string
	criterion Criterion
}

// plan returns the active criteria of state in evaluation order.
func (p *Pipeline[R]) plan(state State) []step {
	steps := make([]step, 0, len(state.Criteria))
	for _, field := range state.Fields() {
		c := state.Criteria[field]
		if c == nil || !c.Active() {
			continue
		}
		steps = append(steps, step{field: field, criterion: c})
	}
	slices.SortStableFunc(steps, func(a, b step) int {
		return cmp.Compare(a.criterion.Stage(), b.criterion.Stage())
	})
	return steps
}

// Filter returns the records satisfying every active criterion of state,
// preserving input order. The input slice is not modified.
func (p *Pipeline[R]) Filter(records []R, state State) []R {
	steps := p.plan(state)
	search := strings.ToLower(strings.TrimSpace(state.Search))
	env := Env{Now: p.opts.Clock(), Missing: p.opts.Missing}

	out := make([]R, 0, len(records))
	for _, r := range records {
		if search != "" && !matchesAny(r.Searchable(), []string{search}) {
			continue
		}
		if keep(r, steps, env) {
			out = append(out, r)
		}
	}
	return out
}

func keep(r Record, steps []step, env Env) bool {
	for _, s := range steps {
		if !s.criterion.Match(r, s.field, env) {
			return false
		}
	}
	return true
}

// Evaluate runs a single criterion against one record.
func (p *Pipeline[R]) Evaluate(r R, field string, c Criterion) bool {
	if c == nil {
		return true
	}
	return c.Match(r, field, Env{Now: p.opts.Clock(), Missing: p.opts.Missing})
}

// FilterAndSort filters records by state and orders the result by spec.
func (p *Pipeline[R]) FilterAndSort(records []R, state State, spec SortSpec) []R {
	out := p.Filter(records, state)
	p.Sort(out, spec)
	return out
}

// Summary holds badge values for one pipeline run.
type Summary struct {
	Total         int
	Matched       int
	ActiveFilters int
}

// Summarize reports totals for a run that produced matched from records.
func (p *Pipeline[R]) Summarize(records, matched []R, state State) Summary {
	return Summary{
		Total:         len(records),
		Matched:       len(matched),
		ActiveFilters: CountActiveFilters(state, state.Search, p.opts.Defaults),
	}
}

// Facets counts records per value of field. Set fields count once per member.
// Missing and non-text fields are skipped.
func Facets[R Record](records []R, field string) map[string]int {
	counts := make(map[string]int)
	for _, r := range records {
		v, ok := r.Field(field)
		if !ok {
			continue
		}
		switch v.Kind() {
		case KindString:
			if v.Str() != "" {
				counts[v.Str()]++
			}
		case KindSet:
			for _, m := range v.Members() {
				counts[m]++
			}
		}
	}
	return counts
}
