package planner

import (
	"slices"
	"strings"

	log "github.com/manifoldrouter/manifold/internal/logging"
	"github.com/manifoldrouter/manifold/pkg/genutil/mapz"
	"github.com/manifoldrouter/manifold/pkg/query"
	"github.com/manifoldrouter/manifold/pkg/schema"
)

// task explores one table of the graph. The root task explores the object of
// the query; every other task was pushed by the task of the table its
// relation leaves.
type task struct {
	table *schema.Table

	// relation is the relation followed from the spawner, nil at the root.
	relation *schema.Relation
	spawner  *task
	children []*task

	// path holds the root object and the nested relations traversed.
	path []string

	// prefix is where the fields of the table are found in result records.
	prefix string
	depth  int

	explored bool

	// keep are the fields of the table the query needs.
	keep query.FieldNames
}

func joinField(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + query.FieldSeparator + name
}

// relativeTo returns the name relative to the prefix, or false when the name
// is not under it. A name equal to the prefix is returned empty.
func relativeTo(name, prefix string) (string, bool) {
	switch {
	case prefix == "":
		return name, true
	case name == prefix:
		return "", true
	default:
		return strings.CutPrefix(name, prefix+query.FieldSeparator)
	}
}

func (t *task) pathKey() string {
	return strings.Join(t.path, query.FieldSeparator)
}

// explore removes from the missing fields those the table serves, then pushes
// a task for every relation leaving the table that was not seen on the same
// path yet.
func (t *task) explore(e *explorer, seen mapz.Set[string]) {
	t.explored = true
	t.keep = query.NewFieldNames()
	t.expandBackwardLinks(e)

	key, _ := t.table.Key()
	onJoin := t.table.IsOnJoin()
	for _, missing := range e.missing.Sorted() {
		rel, ok := relativeTo(missing, t.prefix)
		if !ok {
			continue
		}
		if rel == "" {
			t.keep = t.keep.Union(t.table.FieldNames())
			e.missing.Delete(missing)
			continue
		}

		head, rest, _ := strings.Cut(rel, query.FieldSeparator)
		field, ok := t.table.GetField(head)
		if !ok {
			continue
		}
		t.keep = t.keep.Add(head)

		// Sub-fields of a reference are served by the referenced table; the
		// reference itself is kept for the join.
		if _, isTable := e.graph.Table(field.Type); rest != "" && isTable {
			continue
		}
		if onJoin && key.Contains(head) {
			continue
		}
		e.missing.Delete(missing)
	}

	log.Ctx(e.ctx).Trace().
		Str("table", t.table.Name).
		Str("prefix", t.prefix).
		Int("depth", t.depth).
		Stringer("keep", t.keep).
		Strs("missing", e.missing.Sorted()).
		Msg("explored table")

	for _, r := range e.graph.Relations(t.table.Name) {
		if slices.Contains(t.path, r.Name) {
			continue
		}
		id := r.Source + query.FieldSeparator + r.Name
		if seen.Has(id) {
			continue
		}
		target, ok := e.graph.Table(r.Target)
		if !ok || len(e.platformsOf(target, query.NewFieldNames())) == 0 {
			continue
		}

		child := &task{table: target, relation: &r, spawner: t}
		var priority Priority
		if r.RequiresSubquery() {
			if t.depth+1 > e.config.MaxDepth {
				continue
			}
			child.depth = t.depth + 1
			child.path = append(slices.Clone(t.path), r.Name)
			child.prefix = joinField(t.prefix, r.Name)
			priority = e.config.Priorities.SpeculativeSubquery
			if e.wants(child.prefix) {
				priority = e.config.Priorities.RequestedSubquery
			}
		} else {
			child.depth = t.depth
			child.path = t.path
			child.prefix = t.prefix
			if r.IsNested() {
				child.prefix = joinField(t.prefix, r.Name)
			}
			priority = e.config.Priorities.OneToOne
		}

		seen.Add(id)
		t.children = append(t.children, child)
		e.stack.Push(child, priority)
	}
}

// expandBackwardLinks replaces a request for a whole backward link by a
// request for the key of the records it holds.
func (t *task) expandBackwardLinks(e *explorer) {
	for _, r := range e.graph.Relations(t.table.Name) {
		if r.Type != schema.Link1NBackwards {
			continue
		}
		name := joinField(t.prefix, r.Name)
		if !e.missing.Has(name) {
			continue
		}
		target, ok := e.graph.Table(r.Target)
		if !ok {
			continue
		}
		key, ok := target.Key()
		if !ok {
			continue
		}

		e.missing.Delete(name)
		for _, k := range key.Names() {
			e.missing.Add(joinField(name, k))
		}
	}
}
