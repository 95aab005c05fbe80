package filter

import (
	"encoding/json"
	"fmt"
	"time"
)

type wireCriterion struct {
	Kind    string     `json:"kind"`
	Values  []string   `json:"values,omitempty"`
	Terms   []string   `json:"terms,omitempty"`
	Exclude bool       `json:"exclude,omitempty"`
	Min     *float64   `json:"min,omitempty"`
	Max     *float64   `json:"max,omitempty"`
	Window  string     `json:"window,omitempty"`
	From    *time.Time `json:"from,omitempty"`
	To      *time.Time `json:"to,omitempty"`
	Only    bool       `json:"only,omitempty"`
}

type wireState struct {
	Search   string                   `json:"search,omitempty"`
	Criteria map[string]wireCriterion `json:"criteria,omitempty"`
}

// MarshalJSON encodes the state with a kind tag per criterion.
func (s State) MarshalJSON() ([]byte, error) {
	w := wireState{Search: s.Search, Criteria: make(map[string]wireCriterion, len(s.Criteria))}
	for field, c := range s.Criteria {
		wc, err := encodeCriterion(c)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", field, err)
		}
		w.Criteria[field] = wc
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a state written by MarshalJSON. Entries with an
// unknown kind are dropped, which leaves their field unconstrained.
func (s *State) UnmarshalJSON(data []byte) error {
	var w wireState
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	out := State{Search: w.Search, Criteria: make(map[string]Criterion, len(w.Criteria))}
	for field, wc := range w.Criteria {
		if c, ok := decodeCriterion(wc); ok {
			out.Criteria[field] = c
		}
	}
	*s = out
	return nil
}

func encodeCriterion(c Criterion) (wireCriterion, error) {
	switch v := c.(type) {
	case Inclusion:
		return wireCriterion{Kind: "inclusion", Values: v.Values}, nil
	case Membership:
		return wireCriterion{Kind: "membership", Values: v.Values}, nil
	case Keyword:
		return wireCriterion{Kind: "keyword", Terms: v.Terms, Exclude: v.Exclude}, nil
	case Range:
		return wireCriterion{Kind: "range", Min: v.Min, Max: v.Max}, nil
	case DateWindow:
		return wireCriterion{Kind: "date", Window: v.Window, From: v.From, To: v.To}, nil
	case Flag:
		return wireCriterion{Kind: "flag", Only: v.Only}, nil
	default:
		return wireCriterion{}, fmt.Errorf("unsupported criterion %T", c)
	}
}

func decodeCriterion(w wireCriterion) (Criterion, bool) {
	switch w.Kind {
	case "inclusion":
		return Inclusion{Values: w.Values}, true
	case "membership":
		return Membership{Values: w.Values}, true
	case "keyword":
		return Keyword{Terms: w.Terms, Exclude: w.Exclude}, true
	case "range":
		return Range{Min: w.Min, Max: w.Max}, true
	case "date":
		return DateWindow{Window: w.Window, From: w.From, To: w.To}, true
	case "flag":
		return Flag{Only: w.Only}, true
	default:
		return nil, false
	}
}

type wireSort struct {
	Key       string `json:"key"`
	Direction string `json:"direction"`
}

// MarshalJSON encodes the direction as "asc", "desc" or "default".
func (s SortSpec) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireSort{Key: s.Key, Direction: s.Direction.String()})
}

// UnmarshalJSON accepts the MarshalJSON form; an unknown direction decodes as
// DirectionDefault.
func (s *SortSpec) UnmarshalJSON(data []byte) error {
	var w wireSort
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	dir, _ := ParseDirection(w.Direction)
	*s = SortSpec{Key: w.Key, Direction: dir}
	return nil
}
