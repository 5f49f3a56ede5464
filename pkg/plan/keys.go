package plan

import (
	"github.com/manifoldrouter/manifold/pkg/query"
)

// keyOf returns the values of the key fields of the record and their
// canonical encoding, or false if one of them is missing.
func keyOf(r query.Record, fields []string) ([]any, string, bool) {
	key, ok := r.KeyValue(fields)
	if !ok {
		return nil, "", false
	}
	values := make([]any, len(fields))
	for i, f := range fields {
		values[i], _ = r.Get(f)
	}
	return values, key, true
}

// keyFilter returns the filter selecting the records whose fields hold one of
// the value tuples.
func keyFilter(fields []string, values [][]any) query.Filter {
	if len(fields) == 1 {
		flat := make([]any, len(values))
		for i, v := range values {
			flat[i] = v[0]
		}
		return query.NewFilter(query.NewPredicate(fields[0], query.Included, flat))
	}

	tuples := make([]any, len(values))
	for i, v := range values {
		tuples[i] = v
	}
	return query.NewFilter(query.NewTuplePredicate(fields, query.Included, tuples))
}
