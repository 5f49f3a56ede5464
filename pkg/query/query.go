package query

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
)

// Action is the operation a Query performs.
type Action string

const (
	ActionGet    Action = "get"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// ParseAction parses an action name.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(s)); a {
	case ActionGet, ActionCreate, ActionUpdate, ActionDelete:
		return a, nil
	default:
		return "", fmt.Errorf("unknown action %q", s)
	}
}

const (
	// Now is the timestamp of a query on the current state of the platforms.
	Now = "now"

	// NamespaceSeparator separates the namespace from the object name, as in
	// `ple:node` or `local:object`.
	NamespaceSeparator = ":"

	// LocalNamespace addresses objects served by the router itself.
	LocalNamespace = "local"
)

// Query is an immutable description of one request against the unified
// schema: what to do, on which object, for which fields and records.
type Query struct {
	Action    Action
	Object    string
	Fields    FieldNames
	Filter    Filter
	Params    map[string]any
	Timestamp string
}

// Get returns a query fetching every field of every record of the object.
func Get(object string) Query {
	return Query{
		Action:    ActionGet,
		Object:    object,
		Fields:    Star(),
		Timestamp: Now,
	}
}

// Select returns a copy of the query requesting the given fields.
func (q Query) Select(fields ...string) Query {
	q.Fields = NewFieldNames(fields...)
	return q
}

// Where returns a copy of the query with the predicates added to its filter.
func (q Query) Where(preds ...Predicate) Query {
	q.Filter = q.Filter.And(preds...)
	return q
}

// WithFields returns a copy of the query with the field set replaced.
func (q Query) WithFields(fields FieldNames) Query {
	q.Fields = fields
	return q
}

// WithFilter returns a copy of the query with the filter replaced.
func (q Query) WithFilter(filter Filter) Query {
	q.Filter = filter
	return q
}

// WithObject returns a copy of the query targeting another object.
func (q Query) WithObject(object string) Query {
	q.Object = object
	return q
}

// WithParams returns a copy of the query with the params replaced.
func (q Query) WithParams(params map[string]any) Query {
	q.Params = maps.Clone(params)
	return q
}

// At returns a copy of the query at the given timestamp.
func (q Query) At(timestamp string) Query {
	q.Timestamp = timestamp
	return q
}

// Namespace returns the namespace part of the object name, if any.
func (q Query) Namespace() string {
	ns, _, found := strings.Cut(q.Object, NamespaceSeparator)
	if !found {
		return ""
	}
	return ns
}

// ObjectName returns the object name without its namespace.
func (q Query) ObjectName() string {
	_, name, found := strings.Cut(q.Object, NamespaceSeparator)
	if !found {
		return q.Object
	}
	return name
}

func (q Query) timestamp() string {
	if q.Timestamp == "" {
		return Now
	}
	return q.Timestamp
}

func (q Query) paramsKey() string {
	keys := slices.Sorted(maps.Keys(q.Params))
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + canonicalValue(q.Params[k])
	}
	return strings.Join(parts, "&")
}

// Key returns the canonical text form of the query. Two queries with the same
// key are the same query.
func (q Query) Key() string {
	return strings.Join([]string{
		string(q.Action),
		q.Object,
		q.Filter.canonical(),
		q.paramsKey(),
		q.Fields.String(),
		q.timestamp(),
	}, "\x1f")
}

// Hash returns a hash of the query, for cache keys.
func (q Query) Hash() uint64 {
	return xxhash.Sum64String(q.Key())
}

// Equal returns true if both queries are the same.
func (q Query) Equal(other Query) bool {
	return q.Key() == other.Key()
}

// IsSubsumedBy returns true if every record the query returns can be derived
// from the records other returns, by filtering and projecting locally: same
// action, object, params and timestamp, no more fields than other, a filter
// holding every predicate of other, and extra predicates only on fields other
// returns.
func (q Query) IsSubsumedBy(other Query) bool {
	if q.Action != other.Action || q.Object != other.Object {
		return false
	}
	if q.timestamp() != other.timestamp() || q.paramsKey() != other.paramsKey() {
		return false
	}
	if !q.Fields.IsSubsetOf(other.Fields) {
		return false
	}
	if !other.Filter.SubsetOf(q.Filter) {
		return false
	}
	return q.Filter.Without(other.Filter).IsWithin(other.Fields)
}

func (q Query) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s [%s]", q.Action, q.Object, q.Fields)
	if !q.Filter.IsEmpty() {
		fmt.Fprintf(&sb, " WHERE %s", q.Filter)
	}
	if len(q.Params) > 0 {
		fmt.Fprintf(&sb, " PARAMS %s", q.paramsKey())
	}
	if ts := q.timestamp(); ts != Now {
		fmt.Fprintf(&sb, " AT %s", ts)
	}
	return sb.String()
}

func (q Query) MarshalZerologObject(e *zerolog.Event) {
	e.Str("action", string(q.Action)).
		Str("object", q.Object).
		Str("fields", q.Fields.String())
	if !q.Filter.IsEmpty() {
		e.Str("filter", q.Filter.String())
	}
}
