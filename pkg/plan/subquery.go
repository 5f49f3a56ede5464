package plan

import (
	"strings"

	log "github.com/manifoldrouter/manifold/internal/logging"
	"github.com/manifoldrouter/manifold/pkg/genutil/mapz"
	"github.com/manifoldrouter/manifold/pkg/query"
	"github.com/manifoldrouter/manifold/pkg/schema"
)

// SubQuery attaches to every record of Parent the records of each child that
// the matching relation links to it, as a list under the relation name.
// Children[i] is resolved through Relations[i].
type SubQuery struct {
	Parent    Node
	Children  []Node
	Relations []schema.Relation
}

var _ Node = &SubQuery{}

func (sq *SubQuery) Subnodes() []Node {
	return append([]Node{sq.Parent}, sq.Children...)
}

func (sq *SubQuery) ReplaceSubnodes(subs []Node) (Node, error) {
	if len(subs) != len(sq.Children)+1 {
		return nil, wrongSubnodes("SubQuery", len(sq.Children)+1, len(subs))
	}
	return &SubQuery{Parent: subs[0], Children: subs[1:], Relations: sq.Relations}, nil
}

func (sq *SubQuery) OutputFields() query.FieldNames {
	fields := sq.Parent.OutputFields()
	for i, c := range sq.Children {
		fields = fields.Union(c.OutputFields().Prefixed(sq.Relations[i].Name))
	}
	return fields
}

func (sq *SubQuery) Explain() Explain {
	names := make([]string, len(sq.Relations))
	for i, r := range sq.Relations {
		names[i] = r.Name
	}
	return explainAll("SubQuery("+strings.Join(names, ", ")+")", sq.Subnodes())
}

func (sq *SubQuery) pushSelection(filter query.Filter) Node {
	if filter.IsEmpty() {
		return sq
	}

	parentFilter, rest := filter.Split(sq.Parent.OutputFields())
	children := make([]Node, len(sq.Children))
	for i, c := range sq.Children {
		children[i] = c.pushSelection(rest.StripPrefix(sq.Relations[i].Name))
	}
	pushed := &SubQuery{Parent: sq.Parent.pushSelection(parentFilter), Children: children, Relations: sq.Relations}
	if rest.IsEmpty() {
		return pushed
	}
	return &Selection{Child: pushed, Filter: rest}
}

func (sq *SubQuery) pushProjection(fields query.FieldNames) Node {
	if fields.IsStar() {
		return sq
	}

	nested := map[string]struct{}{}
	for _, r := range sq.Relations {
		nested[r.Name] = struct{}{}
	}
	var parentNames []string
	for _, name := range fields.Names() {
		head, _, _ := strings.Cut(name, query.FieldSeparator)
		if _, ok := nested[head]; !ok {
			parentNames = append(parentNames, name)
		}
	}

	parentFields := query.NewFieldNames(parentNames...)
	retained := query.NewFieldNames()
	children := make([]Node, len(sq.Children))
	for i, c := range sq.Children {
		r := sq.Relations[i]
		keys := r.Predicate.FieldNames()
		parentFields = parentFields.Union(keys)
		retained = retained.Union(keys)

		childFields := fields.WithPrefix(r.Name)
		if !childFields.IsStar() {
			values := r.Predicate.ValueNames()
			childFields = childFields.Union(values)
			retained = retained.Union(values.Prefixed(r.Name))
		}
		children[i] = c.pushProjection(childFields)
	}

	pushed := &SubQuery{Parent: sq.Parent.pushProjection(parentFields), Children: children, Relations: sq.Relations}
	if retained.IsSubsetOf(fields) {
		return pushed
	}
	return &Projection{Child: pushed, Fields: fields}
}

func (sq *SubQuery) run(ctx *Context, id NodeID, extra query.Filter, out *emitter) {
	ids := ctx.children(id)
	parentExtra, local := extra.Split(sq.Parent.OutputFields())

	parents, terminal := collect(ctx, ctx.Start(ids[0], parentExtra))
	if terminal.Kind == query.ErrorPacket {
		out.Fail(terminal.Err)
		return
	}
	if len(parents) == 0 {
		out.Last()
		return
	}

	streams := make([]<-chan query.Packet, len(sq.Children))
	for i := range sq.Children {
		streams[i] = ctx.Start(ids[i+1], childFilter(sq.Relations[i], parents))
	}

	children := make([]query.Records, len(sq.Children))
	var failure error
	for i, stream := range streams {
		records, terminal := collect(ctx, stream)
		if terminal.Kind == query.ErrorPacket && failure == nil {
			failure = terminal.Err
		}
		children[i] = records
	}
	if failure != nil {
		out.Fail(failure)
		return
	}

	matchers := make([]func(query.Record) query.Records, len(sq.Children))
	for i, r := range sq.Relations {
		matchers[i] = matcher(ctx, r, children[i])
	}

	for _, parent := range parents {
		enriched := parent.Clone()
		for i, r := range sq.Relations {
			enriched[r.Name] = matchers[i](parent)
		}
		if !local.Match(enriched) {
			continue
		}
		if !out.Record(enriched) {
			return
		}
	}
	out.Last()
}

// childFilter returns the filter restricting the records of the target of the
// relation to those the parents reference.
func childFilter(r schema.Relation, parents query.Records) query.Filter {
	switch {
	case r.Type == schema.Link1NBackwards:
		// The target holds the list of references; it cannot be filtered on
		// the parent keys, so matching happens once its records are in.
		return query.Filter{}

	case r.Predicate.Op == query.Contains:
		targetKey := r.TargetFields()
		seen := map[string]struct{}{}
		var values [][]any
		for _, p := range parents {
			for _, ref := range references(p, r.SourceFields()[0], targetKey) {
				if _, ok := seen[ref.key]; ok {
					continue
				}
				seen[ref.key] = struct{}{}
				values = append(values, ref.values)
			}
		}
		if len(values) == 0 {
			return query.NewFilter(query.NewPredicate(targetKey[0], query.Included, []any{}))
		}
		return keyFilter(targetKey, values)

	default:
		seen := map[string]struct{}{}
		var values [][]any
		for _, p := range parents {
			v, key, ok := keyOf(p, r.SourceFields())
			if !ok {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			values = append(values, v)
		}
		if len(values) == 0 {
			return query.NewFilter(query.NewPredicate(r.TargetFields()[0], query.Included, []any{}))
		}
		return keyFilter(r.TargetFields(), values)
	}
}

type reference struct {
	values []any
	key    string
}

// references returns the target keys held by the list field of the record.
// Elements are either the key value itself or records carrying the key.
func references(r query.Record, field string, targetKey []string) []reference {
	value, ok := r.Get(field)
	if !ok {
		return nil
	}

	var elements []any
	switch list := value.(type) {
	case []any:
		elements = list
	case query.Records:
		elements = make([]any, len(list))
		for i, rec := range list {
			elements[i] = rec
		}
	default:
		elements = []any{value}
	}

	refs := make([]reference, 0, len(elements))
	for _, e := range elements {
		var rec query.Record
		switch el := e.(type) {
		case query.Record:
			rec = el
		case map[string]any:
			rec = query.Record(el)
		default:
			if len(targetKey) != 1 {
				continue
			}
			rec = query.Record{targetKey[0]: el}
		}
		values, key, ok := keyOf(rec, targetKey)
		if ok {
			refs = append(refs, reference{values: values, key: key})
		}
	}
	return refs
}

// matcher indexes the child records of a relation and returns the function
// finding those linked to a parent record. It never returns nil.
func matcher(ctx *Context, r schema.Relation, children query.Records) func(query.Record) query.Records {
	switch {
	case r.Type == schema.Link1NBackwards:
		pred := r.Predicate
		listField := r.TargetFields()[0]
		return func(parent query.Record) query.Records {
			matches := query.Records{}
			value, ok := parent.Get(pred.Key[0])
			if !ok {
				return matches
			}
			lookup := query.NewPredicate(listField, query.Contains, value)
			for _, c := range children {
				if lookup.Match(c) {
					matches = append(matches, c.Clone())
				}
			}
			return matches
		}

	case r.Predicate.Op == query.Contains:
		targetKey := r.TargetFields()
		index := indexRecords(ctx, children, targetKey)
		return func(parent query.Record) query.Records {
			matches := query.Records{}
			for _, ref := range references(parent, r.SourceFields()[0], targetKey) {
				found, _ := index.Get(ref.key)
				for _, c := range found {
					matches = append(matches, c.Clone())
				}
			}
			return matches
		}

	default:
		index := indexRecords(ctx, children, r.TargetFields())
		return func(parent query.Record) query.Records {
			matches := query.Records{}
			_, key, ok := keyOf(parent, r.SourceFields())
			if !ok {
				return matches
			}
			found, _ := index.Get(key)
			for _, c := range found {
				matches = append(matches, c.Clone())
			}
			return matches
		}
	}
}

func indexRecords(ctx *Context, records query.Records, fields []string) *mapz.MultiMap[string, query.Record] {
	index := mapz.NewMultiMap[string, query.Record]()
	for _, r := range records {
		key, ok := r.KeyValue(fields)
		if !ok {
			log.Ctx(ctx).Warn().Err(NewJoinKeyMissingErr("SubQuery", fields)).Msg("dropping child record")
			droppedRecords.WithLabelValues("join_key_missing").Inc()
			continue
		}
		index.Add(key, r)
	}
	return index
}
