package plan

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"

	log "github.com/manifoldrouter/manifold/internal/logging"
	"github.com/manifoldrouter/manifold/pkg/query"
)

// Union streams the records of every child. With a Key, records sharing a
// key value are merged into one, the first value of each field winning. A
// keyed record is forwarded as soon as it holds every output field; the
// others wait for every child to finish, since another platform may complete
// them.
type Union struct {
	Children []Node
	Key      []string
}

var _ Node = &Union{}

func (u *Union) Subnodes() []Node { return u.Children }

func (u *Union) ReplaceSubnodes(subs []Node) (Node, error) {
	return &Union{Children: subs, Key: u.Key}, nil
}

func (u *Union) OutputFields() query.FieldNames {
	fields := query.NewFieldNames()
	for _, c := range u.Children {
		fields = fields.Union(c.OutputFields())
	}
	return fields
}

func (u *Union) Explain() Explain {
	info := "Union"
	if len(u.Key) > 0 {
		info = fmt.Sprintf("Union(distinct %s)", strings.Join(u.Key, ", "))
	}
	return explainAll(info, u.Children)
}

func (u *Union) pushSelection(filter query.Filter) Node {
	if filter.IsEmpty() {
		return u
	}
	children := make([]Node, len(u.Children))
	partial := false
	for i, c := range u.Children {
		within, rest := filter.Split(c.OutputFields())
		partial = partial || !rest.IsEmpty()
		children[i] = c.pushSelection(within)
	}
	pushed := &Union{Children: children, Key: u.Key}
	if !partial {
		return pushed
	}

	// A child missing some filtered field gets completed by the others, so the
	// whole filter applies to the merged records.
	return &Selection{Child: pushed, Filter: filter}
}

func (u *Union) pushProjection(fields query.FieldNames) Node {
	if fields.IsStar() {
		return u
	}
	withKey := fields.Add(u.Key...)
	children := make([]Node, len(u.Children))
	for i, c := range u.Children {
		children[i] = c.pushProjection(withKey)
	}
	pushed := &Union{Children: children, Key: u.Key}
	if withKey.Equal(fields) {
		return pushed
	}
	return &Projection{Child: pushed, Fields: fields}
}

type taggedPacket struct {
	child  int
	packet query.Packet
}

type mergedRecord struct {
	record    query.Record
	forwarded bool
}

// complete returns true if the record holds every field of the set.
func complete(r query.Record, fields query.FieldNames) bool {
	if fields.IsStar() {
		return true
	}
	for _, name := range fields.Names() {
		if !r.Has(name) {
			return false
		}
	}
	return true
}

// fillMissing returns r completed with the fields of other it lacks or holds
// as nil.
func fillMissing(r, other query.Record) query.Record {
	var out query.Record
	for k, v := range other {
		if existing, ok := r[k]; ok && existing != nil {
			continue
		}
		if out == nil {
			out = r.Clone()
		}
		out[k] = v
	}
	if out == nil {
		return r
	}
	return out
}

func (u *Union) run(ctx *Context, id NodeID, extra query.Filter, out *emitter) {
	children := ctx.children(id)
	if len(children) == 0 {
		out.Last()
		return
	}

	// Each child i accounts for i+1, so the union is done once the counter
	// drops back to zero whatever the order children finish in.
	remaining := 0
	var residual query.Filter
	merged := make(chan taggedPacket)
	for i, childID := range children {
		remaining += i + 1
		childExtra, rest := extra.Split(u.Children[i].OutputFields())
		if !rest.IsEmpty() {
			residual = extra
		}
		stream := ctx.Start(childID, childExtra)
		ctx.Go(func() {
			for p := range packets(ctx, stream) {
				select {
				case merged <- taggedPacket{child: i, packet: p}:
				case <-ctx.Done():
					return
				}
			}
		})
	}

	fields := u.OutputFields()
	byKey := map[string]*mergedRecord{}
	var pending []*mergedRecord
	forward := func(m *mergedRecord) bool {
		m.forwarded = true
		if !residual.Match(m.record) {
			return true
		}
		return out.Record(m.record)
	}

	var errs []error
	for remaining > 0 {
		var tp taggedPacket
		select {
		case tp = <-merged:
		case <-ctx.Done():
			return
		}

		switch tp.packet.Kind {
		case query.RecordPacket:
			record := tp.packet.Record
			if len(u.Key) == 0 {
				if residual.Match(record) && !out.Record(record) {
					return
				}
				continue
			}

			key, ok := record.KeyValue(u.Key)
			if !ok {
				err := NewJoinKeyMissingErr("Union", u.Key)
				log.Ctx(ctx).Warn().Err(err).Int("child", tp.child).Msg("dropping record")
				droppedRecords.WithLabelValues("union_key_missing").Inc()
				continue
			}

			m, seen := byKey[key]
			switch {
			case !seen:
				m = &mergedRecord{record: record}
				byKey[key] = m
			case m.forwarded:
				continue
			default:
				m.record = fillMissing(m.record, record)
			}
			if complete(m.record, fields) {
				if !forward(m) {
					return
				}
			} else if !seen {
				pending = append(pending, m)
			}

		case query.LastPacket:
			remaining -= tp.child + 1

		case query.ErrorPacket:
			remaining -= tp.child + 1
			errs = append(errs, tp.packet.Err)
		}
	}

	if len(errs) == len(children) {
		out.Fail(multierr.Combine(errs...))
		return
	}
	for _, m := range pending {
		if !m.forwarded && !forward(m) {
			return
		}
	}
	for _, err := range errs {
		log.Ctx(ctx).Warn().Err(err).Msg("union branch failed")
		ctx.Collect(err)
	}
	out.Last()
}
