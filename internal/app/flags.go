package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"trading-journal/internal/filter"
)

// Keys used for free-text keyword criteria. They name no record field, so the
// keyword criteria search every searchable text of a record.
const (
	KeywordsKey        = "keywords"
	ExcludeKeywordsKey = "excludeKeywords"
)

// FilterFlags is the command-line form of a filter state.
type FilterFlags struct {
	Search   string
	In       []string // field=a,b
	Any      []string // field=a,b
	Min      []string // field=value
	Max      []string // field=value
	Only     []string // boolean field names
	Keywords []string
	Exclude  []string
	Window   string
	From     string // RFC3339
	To       string // RFC3339
	SortKey  string
	SortDir  string
}

// State converts the flags into a filter state for schema. Field names are
// checked against the schema so typos fail loudly instead of matching nothing.
func (f FilterFlags) State(schema filter.Schema) (filter.State, error) {
	state := filter.NewState()
	state.Search = strings.TrimSpace(f.Search)

	for _, raw := range f.In {
		field, values, err := fieldValues(schema, raw)
		if err != nil {
			return filter.State{}, fmt.Errorf("--in: %w", err)
		}
		state = state.With(field, filter.Inclusion{Values: values})
	}
	for _, raw := range f.Any {
		field, values, err := fieldValues(schema, raw)
		if err != nil {
			return filter.State{}, fmt.Errorf("--any: %w", err)
		}
		state = state.With(field, filter.Membership{Values: values})
	}

	ranges := make(map[string]filter.Range)
	for _, raw := range f.Min {
		field, v, err := fieldNumber(schema, raw)
		if err != nil {
			return filter.State{}, fmt.Errorf("--min: %w", err)
		}
		r := ranges[field]
		r.Min = &v
		ranges[field] = r
	}
	for _, raw := range f.Max {
		field, v, err := fieldNumber(schema, raw)
		if err != nil {
			return filter.State{}, fmt.Errorf("--max: %w", err)
		}
		r := ranges[field]
		r.Max = &v
		ranges[field] = r
	}
	for field, r := range ranges {
		state = state.With(field, r)
	}

	for _, field := range f.Only {
		field = strings.TrimSpace(field)
		if schema.Fields[field] != filter.KindBool {
			return filter.State{}, fmt.Errorf("--only: %q is not a flag field of %s", field, schema.Name)
		}
		state = state.With(field, filter.Flag{Only: true})
	}

	if terms := splitList(strings.Join(f.Keywords, ",")); len(terms) > 0 {
		state = state.With(KeywordsKey, filter.Keyword{Terms: terms})
	}
	if terms := splitList(strings.Join(f.Exclude, ",")); len(terms) > 0 {
		state = state.With(ExcludeKeywordsKey, filter.Keyword{Terms: terms, Exclude: true})
	}

	window, err := f.window()
	if err != nil {
		return filter.State{}, err
	}
	if window != nil && schema.Recency != "" {
		state = state.With(schema.Recency, *window)
	}

	return state, nil
}

// Sort converts the sort flags. An empty key selects the schema default key
// and an empty --dir the default direction for the chosen key.
func (f FilterFlags) Sort() (filter.SortSpec, error) {
	dir, err := filter.ParseDirection(f.SortDir)
	if err != nil {
		return filter.SortSpec{}, fmt.Errorf("--dir: %w", err)
	}
	return filter.SortSpec{Key: strings.TrimSpace(f.SortKey), Direction: dir}, nil
}

func (f FilterFlags) window() (*filter.DateWindow, error) {
	if f.From == "" && f.To == "" {
		if f.Window == "" {
			return nil, nil
		}
		return &filter.DateWindow{Window: f.Window}, nil
	}
	w := filter.DateWindow{Window: filter.WindowCustom}
	if f.From != "" {
		from, err := time.Parse(time.RFC3339, f.From)
		if err != nil {
			return nil, fmt.Errorf("invalid --from value: %w", err)
		}
		w.From = &from
	}
	if f.To != "" {
		to, err := time.Parse(time.RFC3339, f.To)
		if err != nil {
			return nil, fmt.Errorf("invalid --to value: %w", err)
		}
		w.To = &to
	}
	return &w, nil
}

func fieldValues(schema filter.Schema, raw string) (string, []string, error) {
	field, rest, ok := strings.Cut(raw, "=")
	field = strings.TrimSpace(field)
	if !ok || field == "" {
		return "", nil, fmt.Errorf("expected field=value[,value], got %q", raw)
	}
	if !schema.Has(field) {
		return "", nil, fmt.Errorf("unknown %s field %q", schema.Name, field)
	}
	return field, splitList(rest), nil
}

func fieldNumber(schema filter.Schema, raw string) (string, float64, error) {
	field, rest, ok := strings.Cut(raw, "=")
	field = strings.TrimSpace(field)
	if !ok || field == "" {
		return "", 0, fmt.Errorf("expected field=number, got %q", raw)
	}
	if schema.Fields[field] != filter.KindNumber {
		return "", 0, fmt.Errorf("%q is not a numeric field of %s", field, schema.Name)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
	if err != nil {
		return "", 0, fmt.Errorf("parse %s: %w", field, err)
	}
	return field, v, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
