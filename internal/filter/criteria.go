package filter

import (
	"slices"
	"strings"
	"time"
)

// Stage fixes the evaluation order of criteria inside the pipeline.
// Cheap, selective checks run first.
type Stage int

const (
	StageSearch Stage = iota
	StageInclusion
	StageMembership
	StageKeywordInclude
	StageKeywordExclude
	StageRange
	StageDate
)

// Env carries the per-run context a predicate may need.
type Env struct {
	Now     time.Time
	Missing MissingPolicy
}

// Criterion is one constraint of a FilterState. The concrete types are
// Inclusion, Range, Keyword, Membership, DateWindow and Flag.
type Criterion interface {
	// Stage places the criterion in the pipeline.
	Stage() Stage
	// Active reports whether the criterion constrains anything at all.
	Active() bool
	// Match evaluates the criterion against the named field of r.
	Match(r Record, field string, env Env) bool
}

// Inclusion accepts records whose field value is one of Values.
type Inclusion struct {
	Values []string
}

func (Inclusion) Stage() Stage { return StageInclusion }
func (c Inclusion) Active() bool { return len(c.Values) > 0 }

func (c Inclusion) Match(r Record, field string, _ Env) bool {
	if len(c.Values) == 0 {
		return true
	}
	v, ok := r.Field(field)
	if !ok {
		return false
	}
	switch v.Kind() {
	case KindString:
		return containsFold(c.Values, v.Str())
	case KindSet:
		// a set-valued field under an inclusion filter behaves like membership
		return intersects(c.Values, v.Members())
	default:
		return true
	}
}

// Membership accepts records whose set field shares at least one value with Values.
type Membership struct {
	Values []string
}

func (Membership) Stage() Stage { return StageMembership }
func (c Membership) Active() bool { return len(c.Values) > 0 }

func (c Membership) Match(r Record, field string, _ Env) bool {
	if len(c.Values) == 0 {
		return true
	}
	v, ok := r.Field(field)
	if !ok {
		return false
	}
	switch v.Kind() {
	case KindSet:
		return intersects(c.Values, v.Members())
	case KindString:
		return containsFold(c.Values, v.Str())
	default:
		return true
	}
}

// Keyword matches case-insensitive substrings. With Exclude set a record is
// rejected when any term matches; otherwise it is kept when any term matches.
type Keyword struct {
	Terms   []string
	Exclude bool
}

func (c Keyword) Stage() Stage {
	if c.Exclude {
		return StageKeywordExclude
	}
	return StageKeywordInclude
}

func (c Keyword) Active() bool { return len(c.terms()) > 0 }

func (c Keyword) Match(r Record, field string, _ Env) bool {
	terms := c.terms()
	if len(terms) == 0 {
		return true
	}
	haystack := r.Searchable()
	if v, ok := r.Field(field); ok && v.Kind() == KindString {
		haystack = []string{v.Str()}
	}
	hit := matchesAny(haystack, terms)
	if c.Exclude {
		return !hit
	}
	return hit
}

func (c Keyword) terms() []string {
	out := make([]string, 0, len(c.Terms))
	for _, t := range c.Terms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Range accepts numeric values inside [Min, Max]. Either bound may be nil.
type Range struct {
	Min *float64
	Max *float64
}

// AtLeast builds a range with only a lower bound.
func AtLeast(min float64) Range { return Range{Min: &min} }

// Between builds a closed range.
func Between(min, max float64) Range { return Range{Min: &min, Max: &max} }

func (Range) Stage() Stage { return StageRange }

func (c Range) Active() bool { return c.Min != nil || c.Max != nil }

func (c Range) Match(r Record, field string, env Env) bool {
	if !c.Active() || c.inverted() {
		return true
	}
	v, ok := r.Field(field)
	if ok && v.Kind() != KindNumber {
		return true
	}
	n := v.Num()
	if !ok {
		switch env.Missing {
		case MissingPass:
			return true
		case MissingFail:
			return false
		}
		n = 0
	}
	if c.Min != nil && n < *c.Min {
		return false
	}
	if c.Max != nil && n > *c.Max {
		return false
	}
	return true
}

func (c Range) inverted() bool {
	return c.Min != nil && c.Max != nil && *c.Min > *c.Max
}

// Equal reports whether both ranges have the same bounds.
func (c Range) Equal(o Range) bool {
	return floatPtrEqual(c.Min, o.Min) && floatPtrEqual(c.Max, o.Max)
}

// WindowAll is the window label meaning "no time constraint".
const WindowAll = "all"

// WindowCustom labels a window defined by explicit From/To bounds.
const WindowCustom = "custom"

var relativeWindows = map[string]time.Duration{
	"1h":  time.Hour,
	"4h":  4 * time.Hour,
	"12h": 12 * time.Hour,
	"24h": 24 * time.Hour,
	"3d":  3 * 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
	"90d": 90 * 24 * time.Hour,
	"1y":  365 * 24 * time.Hour,
}

// LookupWindow resolves a relative window label such as "24h" or "7d".
func LookupWindow(label string) (time.Duration, bool) {
	d, ok := relativeWindows[strings.ToLower(strings.TrimSpace(label))]
	return d, ok
}

// DateWindow accepts timestamps within a named relative window ending now,
// or within [From, To] when either explicit bound is set.
type DateWindow struct {
	Window string
	From   *time.Time
	To     *time.Time
}

func (DateWindow) Stage() Stage { return StageDate }

func (c DateWindow) Active() bool {
	if c.custom() {
		return true
	}
	_, ok := LookupWindow(c.Window)
	return ok
}

func (c DateWindow) Match(r Record, field string, env Env) bool {
	if !c.Active() {
		return true
	}
	var from, to time.Time
	if c.custom() {
		if c.From != nil {
			from = *c.From
		}
		if c.To != nil {
			to = *c.To
		}
		if !from.IsZero() && !to.IsZero() && from.After(to) {
			return true
		}
	} else {
		d, ok := LookupWindow(c.Window)
		if !ok {
			return true
		}
		to = env.Now
		from = env.Now.Add(-d)
	}

	v, ok := r.Field(field)
	if ok && v.Kind() != KindTime {
		return true
	}
	if !ok || v.Timestamp().IsZero() {
		return env.Missing == MissingPass
	}
	ts := v.Timestamp()
	if !from.IsZero() && ts.Before(from) {
		return false
	}
	if !to.IsZero() && ts.After(to) {
		return false
	}
	return true
}

func (c DateWindow) custom() bool {
	return c.From != nil || c.To != nil
}

// Flag keeps only records whose boolean field is true. An unset flag is inactive.
type Flag struct {
	Only bool
}

func (Flag) Stage() Stage { return StageInclusion }
func (c Flag) Active() bool { return c.Only }

func (c Flag) Match(r Record, field string, _ Env) bool {
	if !c.Only {
		return true
	}
	v, ok := r.Field(field)
	if !ok {
		return false
	}
	if v.Kind() != KindBool {
		return true
	}
	return v.Truth()
}

func containsFold(values []string, s string) bool {
	return slices.ContainsFunc(values, func(v string) bool { return strings.EqualFold(v, s) })
}

func intersects(a, b []string) bool {
	for _, x := range b {
		if containsFold(a, x) {
			return true
		}
	}
	return false
}

func matchesAny(haystack, lowerTerms []string) bool {
	for _, h := range haystack {
		h = strings.ToLower(h)
		for _, t := range lowerTerms {
			if strings.Contains(h, t) {
				return true
			}
		}
	}
	return false
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
