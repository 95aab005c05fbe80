package filter

import (
	"strings"
	"time"
)

// Kind identifies the primitive type held by a Value.
type Kind uint8

const (
	KindString Kind = iota + 1
	KindNumber
	KindTime
	KindSet
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindTime:
		return "time"
	case KindSet:
		return "set"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// Value is a single field value read from a Record.
type Value struct {
	kind Kind
	str  string
	num  float64
	ts   time.Time
	set  []string
	flag bool
}

// String wraps a string field value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number wraps a numeric field value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Time wraps a timestamp field value.
func Time(t time.Time) Value { return Value{kind: KindTime, ts: t} }

// Set wraps a string-set field value such as tags or symbols.
func Set(values ...string) Value { return Value{kind: KindSet, set: values} }

// Bool wraps a boolean field value.
func Bool(b bool) Value { return Value{kind: KindBool, flag: b} }

// Kind reports the type of the value.
func (v Value) Kind() Kind { return v.kind }

// Str returns the string content, or "" for other kinds.
func (v Value) Str() string { return v.str }

// Num returns the numeric content, or 0 for other kinds.
func (v Value) Num() float64 { return v.num }

// Timestamp returns the time content, or the zero time for other kinds.
func (v Value) Timestamp() time.Time { return v.ts }

// Members returns the set content, or nil for other kinds.
func (v Value) Members() []string { return v.set }

// Truth returns the boolean content, or false for other kinds.
func (v Value) Truth() bool { return v.flag }

// sortText is the case-folded text used for ordering string and set values.
func (v Value) sortText() string {
	switch v.kind {
	case KindString:
		return strings.ToLower(v.str)
	case KindSet:
		return strings.ToLower(strings.Join(v.set, ","))
	default:
		return ""
	}
}

// Record is a read-only view of a journal item consumed by the pipeline.
type Record interface {
	// Key returns the stable unique identity of the record.
	Key() string
	// Field returns the named field. ok is false when the record has no such
	// field or the value is absent (e.g. an unset risk/reward ratio).
	Field(name string) (v Value, ok bool)
	// Searchable returns the text fields scanned by free-text search and keywords.
	Searchable() []string
}

// Schema describes the fields of one record family.
type Schema struct {
	Name        string
	Fields      map[string]Kind
	DefaultSort SortSpec
	// Recency names the timestamp field used to break ties, most recent first.
	Recency string
}

// Has reports whether the schema declares the field.
func (s Schema) Has(field string) bool {
	_, ok := s.Fields[field]
	return ok
}
