package filter

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// Direction is the sort order. The zero value defers to the schema default.
type Direction int

const (
	DirectionDefault Direction = iota
	Desc
	Asc
)

func (d Direction) String() string {
	switch d {
	case Asc:
		return "asc"
	case Desc:
		return "desc"
	default:
		return "default"
	}
}

// ParseDirection parses "asc"/"ascending" or "desc"/"descending". An empty
// string or "default" yields DirectionDefault.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc", "ascending":
		return Asc, nil
	case "desc", "descending":
		return Desc, nil
	case "", "default":
		return DirectionDefault, nil
	default:
		return DirectionDefault, fmt.Errorf("unknown sort direction %q", s)
	}
}

// SortSpec selects the ordering key and direction.
type SortSpec struct {
	Key       string
	Direction Direction
}

// resolve fills what spec leaves unset from the schema default. An empty key
// keeps an explicit direction; an unknown key falls back entirely.
func (p *Pipeline[R]) resolve(spec SortSpec) SortSpec {
	def := p.schema.DefaultSort
	switch {
	case spec.Key == "":
		spec.Key = def.Key
	case !p.schema.Has(spec.Key):
		return def
	}
	if spec.Direction != Asc && spec.Direction != Desc {
		spec.Direction = Desc
		if spec.Key == def.Key {
			spec.Direction = def.Direction
		}
	}
	return spec
}

// Sort orders records in place. Ties on the key fall back to the schema's
// recency field (most recent first) and then to the record key, so the
// order is total and repeated sorts are stable.
func (p *Pipeline[R]) Sort(records []R, spec SortSpec) {
	spec = p.resolve(spec)
	recency := p.schema.Recency
	slices.SortStableFunc(records, func(a, b R) int {
		c := compareField(a, b, spec.Key)
		if spec.Direction == Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
		if recency != "" && recency != spec.Key {
			if c = compareField(b, a, recency); c != 0 {
				return c
			}
		}
		return cmp.Compare(a.Key(), b.Key())
	})
}

func compareField(a, b Record, field string) int {
	va, _ := a.Field(field)
	vb, _ := b.Field(field)
	kind := va.Kind()
	if kind == 0 {
		kind = vb.Kind()
	}
	switch kind {
	case KindNumber:
		// absent numbers order as zero
		return cmp.Compare(va.Num(), vb.Num())
	case KindTime:
		return va.Timestamp().Compare(vb.Timestamp())
	case KindBool:
		return cmp.Compare(boolRank(va.Truth()), boolRank(vb.Truth()))
	default:
		return cmp.Compare(va.sortText(), vb.sortText())
	}
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}
