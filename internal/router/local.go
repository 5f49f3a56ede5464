package router

import (
	"errors"

	"github.com/manifoldrouter/manifold/internal/normalizer"
	"github.com/manifoldrouter/manifold/pkg/query"
)

const localNamespace = query.LocalNamespace

// Objects served by the router itself, under the local namespace.
const (
	localObject   = "object"
	localPlatform = "platform"
)

// forwardLocal answers the queries on the local namespace: `local:object`
// describes the tables of the normalized schema and `local:platform` the
// configured platforms.
func (r *Router) forwardLocal(q query.Query, yield func(query.Record) bool) (*Result, error) {
	if q.Action != query.ActionGet {
		return nil, errors.New("local objects are read-only")
	}

	var records query.Records
	switch q.ObjectName() {
	case localObject:
		tables, err := r.Metadata()
		if err != nil {
			return nil, err
		}
		for _, t := range tables {
			records = append(records, t.AsRecord())
		}

	case localPlatform:
		records = r.platformRecords()

	default:
		return nil, normalizer.NewUnknownObjectErr(q.Object)
	}

	for _, record := range records {
		if !q.Filter.Match(record) {
			continue
		}
		if !yield(record.Project(q.Fields)) {
			break
		}
	}
	return &Result{}, nil
}

func (r *Router) platformRecords() query.Records {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make(query.Records, 0, len(r.order))
	for _, name := range r.order {
		state := r.platforms[name]

		objects := make([]any, 0, len(state.announced))
		for _, t := range state.announced {
			objects = append(objects, t.Name)
		}
		var announceErr any
		if state.err != nil {
			announceErr = state.err.Error()
		}

		records = append(records, query.Record{
			"platform": name,
			"type":     state.Type,
			"enabled":  !state.Disabled,
			"objects":  objects,
			"error":    announceErr,
		})
	}
	return records
}
