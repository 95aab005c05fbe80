package filter

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// MissingPolicy decides how Range and DateWindow treat records lacking the field.
type MissingPolicy int

const (
	// MissingZero treats an absent number as 0 and an absent timestamp as out of window.
	MissingZero MissingPolicy = iota
	// MissingPass lets records without the field through.
	MissingPass
	// MissingFail rejects records without the field.
	MissingFail
)

func (p MissingPolicy) String() string {
	switch p {
	case MissingPass:
		return "pass"
	case MissingFail:
		return "fail"
	default:
		return "zero"
	}
}

// ParseMissingPolicy parses "zero", "pass" or "fail".
func ParseMissingPolicy(s string) (MissingPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "zero":
		return MissingZero, nil
	case "pass":
		return MissingPass, nil
	case "fail":
		return MissingFail, nil
	default:
		return MissingZero, fmt.Errorf("unknown missing policy %q", s)
	}
}

// State is the set of user-selected constraints, keyed by field name.
// A nil or inactive entry places no constraint on its field.
type State struct {
	Search   string
	Criteria map[string]Criterion
}

// NewState returns an empty state.
func NewState() State {
	return State{Criteria: make(map[string]Criterion)}
}

// With returns a copy of s with field set to c. The receiver is left untouched.
func (s State) With(field string, c Criterion) State {
	out := s.Clone()
	out.Criteria[field] = c
	return out
}

// Without returns a copy of s with field removed.
func (s State) Without(field string) State {
	out := s.Clone()
	delete(out.Criteria, field)
	return out
}

// Clone deep-copies the state so later edits cannot leak into snapshots.
func (s State) Clone() State {
	out := State{Search: s.Search, Criteria: make(map[string]Criterion, len(s.Criteria))}
	for field, c := range s.Criteria {
		out.Criteria[field] = cloneCriterion(c)
	}
	return out
}

// Fields returns the constrained field names in sorted order.
func (s State) Fields() []string {
	return slices.Sorted(maps.Keys(s.Criteria))
}

func cloneCriterion(c Criterion) Criterion {
	switch v := c.(type) {
	case Inclusion:
		return Inclusion{Values: slices.Clone(v.Values)}
	case Membership:
		return Membership{Values: slices.Clone(v.Values)}
	case Keyword:
		return Keyword{Terms: slices.Clone(v.Terms), Exclude: v.Exclude}
	case Range:
		return Range{Min: clonePtr(v.Min), Max: clonePtr(v.Max)}
	case DateWindow:
		return DateWindow{Window: v.Window, From: clonePtr(v.From), To: clonePtr(v.To)}
	default:
		return c
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Defaults documents the values a criterion starts from in the UI. They only
// drive the active-filter count; Filter applies every active criterion.
type Defaults struct {
	// Window is the default date window label for every DateWindow criterion.
	Window string
	// Ranges holds the default threshold per numeric field.
	Ranges map[string]Range
}

// IsDefault reports whether c equals the documented default for field.
// An unknown window label never filters and counts as default.
func (d Defaults) IsDefault(field string, c Criterion) bool {
	if c == nil {
		return true
	}
	switch v := c.(type) {
	case DateWindow:
		if v.custom() {
			return false
		}
		w := normalizeWindow(v.Window)
		if !knownWindow(w) {
			return true
		}
		return w == normalizeWindow(d.Window)
	case Range:
		def, ok := d.Ranges[field]
		if !ok {
			return !v.Active()
		}
		return v.Equal(def)
	default:
		return !c.Active()
	}
}

func normalizeWindow(label string) string {
	w := strings.ToLower(strings.TrimSpace(label))
	if w == "" {
		return WindowAll
	}
	return w
}

func knownWindow(w string) bool {
	if w == WindowAll {
		return true
	}
	_, ok := LookupWindow(w)
	return ok
}

// Options configures a Pipeline.
type Options struct {
	Defaults Defaults
	Missing  MissingPolicy
	// Clock returns the reference time for relative windows. Defaults to time.Now.
	Clock func() time.Time
}
