package plan

import (
	"fmt"

	log "github.com/manifoldrouter/manifold/internal/logging"
	"github.com/manifoldrouter/manifold/pkg/genutil/mapz"
	"github.com/manifoldrouter/manifold/pkg/query"
)

// LeftJoin completes the records of Left with the records of Right matching
// the predicate. The predicate key names the fields of Left, its value the
// fields of Right. Matched right records are merged into the left record, or
// nested under Into when set. Left records without a match are kept.
type LeftJoin struct {
	Left      Node
	Right     Node
	Predicate query.Predicate
	Into      string
}

var _ Node = &LeftJoin{}

func (lj *LeftJoin) Subnodes() []Node { return []Node{lj.Left, lj.Right} }

func (lj *LeftJoin) ReplaceSubnodes(subs []Node) (Node, error) {
	if len(subs) != 2 {
		return nil, wrongSubnodes("LeftJoin", 2, len(subs))
	}
	return &LeftJoin{Left: subs[0], Right: subs[1], Predicate: lj.Predicate, Into: lj.Into}, nil
}

func (lj *LeftJoin) OutputFields() query.FieldNames {
	right := lj.Right.OutputFields()
	if lj.Into != "" {
		right = right.Prefixed(lj.Into)
	}
	return lj.Left.OutputFields().Union(right)
}

func (lj *LeftJoin) Explain() Explain {
	info := fmt.Sprintf("LeftJoin(%s)", lj.Predicate)
	if lj.Into != "" {
		info = fmt.Sprintf("LeftJoin(%s into %s)", lj.Predicate, lj.Into)
	}
	return explainAll(info, lj.Subnodes())
}

// rightFilter returns the part of the filter that applies to Right, relative
// to its own fields.
func (lj *LeftJoin) rightFilter(filter query.Filter) query.Filter {
	if lj.Into != "" {
		return filter.StripPrefix(lj.Into)
	}
	within, _ := filter.Split(lj.Right.OutputFields())
	return within
}

func (lj *LeftJoin) pushSelection(filter query.Filter) Node {
	if filter.IsEmpty() {
		return lj
	}

	leftFilter, rest := filter.Split(lj.Left.OutputFields())
	pushed := &LeftJoin{
		Left:      lj.Left.pushSelection(leftFilter),
		Right:     lj.Right.pushSelection(lj.rightFilter(rest)),
		Predicate: lj.Predicate,
		Into:      lj.Into,
	}
	if rest.IsEmpty() {
		return pushed
	}

	// Pushing into Right only trims the records that get merged; unmatched
	// left records must still be filtered above the join.
	return &Selection{Child: pushed, Filter: rest}
}

func (lj *LeftJoin) pushProjection(fields query.FieldNames) Node {
	if fields.IsStar() {
		return lj
	}

	keys := lj.Predicate.FieldNames()
	values := lj.Predicate.ValueNames()
	leftFields := fields.Intersect(lj.Left.OutputFields()).Union(keys)

	var rightFields, retained query.FieldNames
	if lj.Into != "" {
		rightFields = fields.WithPrefix(lj.Into).Union(values)
		retained = keys.Union(values.Prefixed(lj.Into))
	} else {
		rightFields = fields.Intersect(lj.Right.OutputFields()).Union(values)
		retained = keys.Union(values)
	}
	if rightFields.IsStar() {
		retained = keys
	}

	pushed := &LeftJoin{
		Left:      lj.Left.pushProjection(leftFields),
		Right:     lj.Right.pushProjection(rightFields),
		Predicate: lj.Predicate,
		Into:      lj.Into,
	}
	if retained.IsSubsetOf(fields) {
		return pushed
	}
	return &Projection{Child: pushed, Fields: fields}
}

func (lj *LeftJoin) merge(left, right query.Record) query.Record {
	if lj.Into == "" {
		return right.Merge(left)
	}
	merged := left.Clone()
	merged[lj.Into] = right.Clone()
	return merged
}

func (lj *LeftJoin) run(ctx *Context, id NodeID, extra query.Filter, out *emitter) {
	children := ctx.children(id)
	leftExtra, local := extra.Split(lj.Left.OutputFields())

	left, terminal := collect(ctx, ctx.Start(children[0], leftExtra))
	if terminal.Kind == query.ErrorPacket {
		out.Fail(terminal.Err)
		return
	}

	keyFields := lj.Predicate.Key
	index := mapz.NewMultiMap[string, int]()
	var keyValues [][]any
	for i, r := range left {
		values, key, ok := keyOf(r, keyFields)
		if !ok {
			continue
		}
		if !index.Has(key) {
			keyValues = append(keyValues, values)
		}
		index.Add(key, i)
	}

	matched := make([]bool, len(left))
	forwardUnmatched := func() bool {
		for i, r := range left {
			if matched[i] || !local.Match(r) {
				continue
			}
			if !out.Record(r) {
				return false
			}
		}
		return true
	}

	if index.IsEmpty() {
		if forwardUnmatched() {
			out.Last()
		}
		return
	}

	valueFields := lj.Predicate.ValueFields()
	right := ctx.Start(children[1], keyFilter(valueFields, keyValues))
	for p := range packets(ctx, right) {
		switch p.Kind {
		case query.RecordPacket:
			key, ok := p.Record.KeyValue(valueFields)
			if !ok {
				log.Ctx(ctx).Warn().Err(NewJoinKeyMissingErr("LeftJoin", valueFields)).Msg("dropping right record")
				droppedRecords.WithLabelValues("join_key_missing").Inc()
				continue
			}

			matches, _ := index.Get(key)
			for _, i := range matches {
				if matched[i] {
					continue
				}
				matched[i] = true

				merged := lj.merge(left[i], p.Record)
				if local.Match(merged) && !out.Record(merged) {
					return
				}
			}

		case query.LastPacket:
			if forwardUnmatched() {
				out.Last()
			}

		case query.ErrorPacket:
			out.Fail(p.Err)
		}
	}
}
