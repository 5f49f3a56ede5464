package query

import (
	"strings"

	"github.com/rs/zerolog"
)

// Record maps field names to values. Records produced by a subquery carry
// their child records, as a Record or Records, under the relation name.
type Record map[string]any

// Records is a list of records.
type Records []Record

// Get returns the value of a possibly dotted field name. Descending into a
// list of records returns the list of the sub-values found.
func (r Record) Get(name string) (any, bool) {
	head, rest, dotted := strings.Cut(name, FieldSeparator)
	value, ok := r[head]
	if !ok {
		return nil, false
	}
	if !dotted {
		return value, true
	}

	switch nested := value.(type) {
	case Record:
		return nested.Get(rest)
	case map[string]any:
		return Record(nested).Get(rest)
	case Records:
		out := make([]any, 0, len(nested))
		for _, child := range nested {
			if v, ok := child.Get(rest); ok {
				out = append(out, v)
			}
		}
		return out, true
	default:
		return nil, false
	}
}

// Has returns true if the possibly dotted field is present.
func (r Record) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case Record:
		return val.Clone()
	case Records:
		return val.Clone()
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// Merge returns a copy of r updated with the fields of other. Fields present
// in both take the value of other.
func (r Record) Merge(other Record) Record {
	out := r.Clone()
	if out == nil {
		out = Record{}
	}
	for k, v := range other {
		out[k] = cloneValue(v)
	}
	return out
}

// Project returns a copy of the record restricted to the given field names.
// Dotted names descend into nested records and lists of records.
func (r Record) Project(fields FieldNames) Record {
	if fields.IsStar() {
		return r.Clone()
	}

	top, subs := fields.SplitSubfields()
	out := make(Record, top.Len()+len(subs))
	for _, name := range top.Names() {
		if v, ok := r[name]; ok {
			out[name] = cloneValue(v)
		}
	}
	for head, sub := range subs {
		if top.Has(head) {
			continue
		}
		value, ok := r[head]
		if !ok {
			continue
		}
		switch nested := value.(type) {
		case Record:
			out[head] = nested.Project(sub)
		case map[string]any:
			out[head] = Record(nested).Project(sub)
		case Records:
			out[head] = nested.Project(sub)
		}
	}
	return out
}

// Rename returns a copy of the record with top-level fields renamed.
func (r Record) Rename(mapping map[string]string) Record {
	out := make(Record, len(r))
	for k, v := range r {
		if renamed, ok := mapping[k]; ok {
			out[renamed] = cloneValue(v)
			continue
		}
		out[k] = cloneValue(v)
	}
	return out
}

// KeyValue returns a canonical encoding of the values of the given fields,
// and false if one of them is missing.
func (r Record) KeyValue(fields []string) (string, bool) {
	var sb strings.Builder
	for i, field := range fields {
		value, ok := r.Get(field)
		if !ok || value == nil {
			return "", false
		}
		if i > 0 {
			sb.WriteByte('|')
		}
		writeCanonical(&sb, value)
	}
	return sb.String(), true
}

// Canonical returns a deterministic encoding of the whole record.
func (r Record) Canonical() string {
	return canonicalValue(r)
}

// Equal returns true if both records hold equal values.
func (r Record) Equal(other Record) bool {
	return r.Canonical() == other.Canonical()
}

func (r Record) MarshalZerologObject(e *zerolog.Event) {
	for k, v := range r {
		e.Interface(k, v)
	}
}

// Clone returns a deep copy of the records.
func (rs Records) Clone() Records {
	if rs == nil {
		return nil
	}
	out := make(Records, len(rs))
	for i, r := range rs {
		out[i] = r.Clone()
	}
	return out
}

// Project projects every record.
func (rs Records) Project(fields FieldNames) Records {
	out := make(Records, len(rs))
	for i, r := range rs {
		out[i] = r.Project(fields)
	}
	return out
}
