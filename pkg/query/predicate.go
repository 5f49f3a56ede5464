package query

import (
	"fmt"
	"strings"
)

// Op is the comparison operator of a Predicate.
type Op uint8

const (
	Eq Op = iota
	Neq
	Lt
	Le
	Gt
	Ge
	Included
	Contains
)

var opStrings = map[Op]string{
	Eq:       "=",
	Neq:      "!=",
	Lt:       "<",
	Le:       "<=",
	Gt:       ">",
	Ge:       ">=",
	Included: "INCLUDED",
	Contains: "CONTAINS",
}

var opAliases = map[string]Op{
	"=":        Eq,
	"==":       Eq,
	"!=":       Neq,
	"~":        Neq,
	"<":        Lt,
	"<=":       Le,
	"[":        Le,
	">":        Gt,
	">=":       Ge,
	"]":        Ge,
	"INCLUDED": Included,
	"{":        Included,
	"CONTAINS": Contains,
	"}":        Contains,
}

func (o Op) String() string {
	if s, ok := opStrings[o]; ok {
		return s
	}
	return fmt.Sprintf("Op(%d)", o)
}

// ParseOp parses the long or short form of an operator.
func ParseOp(s string) (Op, error) {
	op, ok := opAliases[strings.ToUpper(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown predicate operator %q", s)
	}
	return op, nil
}

// Predicate compares one field, or a tuple of fields, to a value.
//
// For a tuple key the value is a []any holding one value per key field, or,
// for Included, a []any of such tuples. Relations between tables use
// predicates whose value names the fields of the other side; see
// ValueNames.
type Predicate struct {
	Key   []string
	Op    Op
	Value any
}

// NewPredicate returns a predicate on a single field.
func NewPredicate(key string, op Op, value any) Predicate {
	return Predicate{Key: []string{key}, Op: op, Value: value}
}

// NewTuplePredicate returns a predicate on a tuple of fields.
func NewTuplePredicate(keys []string, op Op, value any) Predicate {
	k := make([]string, len(keys))
	copy(k, keys)
	return Predicate{Key: k, Op: op, Value: value}
}

// IsTuple returns true if the predicate compares more than one field.
func (p Predicate) IsTuple() bool { return len(p.Key) > 1 }

// FieldNames returns the fields the predicate reads.
func (p Predicate) FieldNames() FieldNames {
	return NewFieldNames(p.Key...)
}

// ValueNames returns the value interpreted as field names, as carried by
// relation predicates.
func (p Predicate) ValueNames() FieldNames {
	switch v := p.Value.(type) {
	case string:
		return NewFieldNames(v)
	case []string:
		return NewFieldNames(v...)
	case []any:
		names := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				names = append(names, s)
			}
		}
		return NewFieldNames(names...)
	default:
		return NewFieldNames()
	}
}

// ValueFields returns the value as an ordered list of field names.
func (p Predicate) ValueFields() []string {
	switch v := p.Value.(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		names := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				names = append(names, s)
			}
		}
		return names
	default:
		return nil
	}
}

// Match returns true if the record satisfies the predicate. A record missing
// the field does not match.
func (p Predicate) Match(r Record) bool {
	return p.match(r, false)
}

// MatchIgnoringMissing is Match, except that a record missing the field
// matches.
func (p Predicate) MatchIgnoringMissing(r Record) bool {
	return p.match(r, true)
}

func (p Predicate) match(r Record, ignoreMissing bool) bool {
	if len(p.Key) == 0 {
		return false
	}

	if p.IsTuple() {
		return p.matchTuple(r, ignoreMissing)
	}

	key := p.Key[0]
	if head, rest, dotted := strings.Cut(key, FieldSeparator); dotted {
		if nested, ok := r[head]; ok {
			sub := Predicate{Key: []string{rest}, Op: p.Op, Value: p.Value}
			switch child := nested.(type) {
			case Record:
				return sub.match(child, ignoreMissing)
			case Records:
				for _, c := range child {
					if sub.match(c, false) {
						return true
					}
				}
				return false
			}
		}
	}

	value, ok := r.Get(key)
	if !ok {
		return ignoreMissing
	}
	return matchValue(value, p.Op, p.Value)
}

func (p Predicate) matchTuple(r Record, ignoreMissing bool) bool {
	values := make([]any, len(p.Key))
	for i, k := range p.Key {
		v, ok := r.Get(k)
		if !ok {
			return ignoreMissing
		}
		values[i] = v
	}

	tupleEqual := func(candidate any) bool {
		list, ok := asList(candidate)
		if !ok || len(list) != len(values) {
			return false
		}
		for i := range values {
			if !ValuesEqual(values[i], list[i]) {
				return false
			}
		}
		return true
	}

	switch p.Op {
	case Eq:
		return tupleEqual(p.Value)
	case Neq:
		return !tupleEqual(p.Value)
	case Included:
		candidates, ok := asList(p.Value)
		if !ok {
			return false
		}
		for _, c := range candidates {
			if tupleEqual(c) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func matchValue(value any, op Op, expected any) bool {
	switch op {
	case Eq:
		if list, ok := asList(expected); ok {
			return containsValue(list, value)
		}
		return ValuesEqual(value, expected)

	case Neq:
		if list, ok := asList(expected); ok {
			return !containsValue(list, value)
		}
		return !ValuesEqual(value, expected)

	case Lt, Le, Gt, Ge:
		vs, vok := value.(string)
		es, eok := expected.(string)
		if vok && eok {
			return matchHierarchy(vs, op, es)
		}
		c, ok := compareValues(value, expected)
		if !ok {
			return false
		}
		switch op {
		case Lt:
			return c < 0
		case Le:
			return c <= 0
		case Gt:
			return c > 0
		default:
			return c >= 0
		}

	case Included:
		if list, ok := asList(expected); ok {
			return containsValue(list, value)
		}
		return ValuesEqual(value, expected)

	case Contains:
		if list, ok := asList(value); ok {
			return containsValue(list, expected)
		}
		if vs, ok := value.(string); ok {
			if es, ok := expected.(string); ok {
				return strings.HasPrefix(es, vs+FieldSeparator)
			}
		}
		return false

	default:
		return false
	}
}

// matchHierarchy compares dotted hierarchical names: `a.b` is below `a`.
func matchHierarchy(value string, op Op, expected string) bool {
	switch op {
	case Lt:
		return strings.HasPrefix(value, expected+FieldSeparator)
	case Le:
		return value == expected || strings.HasPrefix(value, expected+FieldSeparator)
	case Gt:
		return strings.HasPrefix(expected, value+FieldSeparator)
	default:
		return value == expected || strings.HasPrefix(expected, value+FieldSeparator)
	}
}

func containsValue(list []any, value any) bool {
	needle := canonicalValue(value)
	for _, item := range list {
		if canonicalValue(item) == needle {
			return true
		}
	}
	return false
}

// Rename returns the predicate with its key fields renamed.
func (p Predicate) Rename(mapping map[string]string) Predicate {
	keys := make([]string, len(p.Key))
	for i, k := range p.Key {
		if renamed, ok := mapping[k]; ok {
			keys[i] = renamed
			continue
		}
		keys[i] = k
	}
	return Predicate{Key: keys, Op: p.Op, Value: p.Value}
}

// Equal returns true if both predicates are the same condition.
func (p Predicate) Equal(other Predicate) bool {
	return p.canonical() == other.canonical()
}

func (p Predicate) canonical() string {
	return strings.Join(p.Key, ",") + " " + p.Op.String() + " " + canonicalValue(p.Value)
}

func (p Predicate) keyString() string {
	if p.IsTuple() {
		return "(" + strings.Join(p.Key, ", ") + ")"
	}
	return strings.Join(p.Key, "")
}

func (p Predicate) String() string {
	return fmt.Sprintf("%s %s %v", p.keyString(), p.Op, p.Value)
}
