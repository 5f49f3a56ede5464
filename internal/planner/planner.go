// Package planner finds, for a query against the normalized schema, the
// tables and relations that serve its fields, and builds the plan tree
// fetching them.
//
// The exploration starts at the object of the query and walks the relations
// of the schema graph in priority order: one-to-one relations first, since
// they are resolved in place with a left join, then the relations needing a
// nested fetch, those leading to a requested field before the others. It
// stops as soon as every requested field is served.
package planner

import (
	"context"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	log "github.com/manifoldrouter/manifold/internal/logging"
	"github.com/manifoldrouter/manifold/internal/normalizer"
	"github.com/manifoldrouter/manifold/pkg/genutil/mapz"
	"github.com/manifoldrouter/manifold/pkg/plan"
	"github.com/manifoldrouter/manifold/pkg/query"
	"github.com/manifoldrouter/manifold/pkg/schema"
)

var tracer = otel.Tracer("manifold/internal/planner")

// Result is the plan tree of a query, before capability optimization.
type Result struct {
	Root plan.Node

	// Unresolved are the requested fields no allowed platform serves. The
	// plan returns records without them.
	Unresolved []string

	// Explored is the number of tables the exploration went through.
	Explored int

	object string
}

// Err returns an UnresolvableQueryError if some fields are unresolved.
func (r *Result) Err() error {
	if len(r.Unresolved) == 0 {
		return nil
	}
	return NewUnresolvableQueryErr(r.object, r.Unresolved)
}

// Planner builds the plan trees of queries.
type Planner struct {
	config Config
}

// New returns a planner with the configuration.
func New(config Config) (*Planner, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Planner{config: config}, nil
}

// Plan builds the plan tree of the query with the default configuration.
func Plan(ctx context.Context, q query.Query, graph *normalizer.Graph, allowed []string) (*Result, error) {
	return (&Planner{config: DefaultConfig()}).Plan(ctx, q, graph, allowed)
}

// Plan builds the plan tree of the query over the graph, fetching only from
// the allowed platforms, or from every platform when allowed is empty.
//
// Fields no allowed platform serves are listed in the result. If none of the
// requested fields can be served, an UnresolvableQueryError is returned.
func (p *Planner) Plan(ctx context.Context, q query.Query, graph *normalizer.Graph, allowed []string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Plan", trace.WithAttributes(
		attribute.String("object", q.Object),
	))
	defer span.End()

	root, err := graph.MustTable(q.ObjectName())
	if err != nil {
		return nil, err
	}

	if platform := q.Namespace(); platform != "" {
		return planNamespaced(q, root, platform, allowed)
	}

	e := &explorer{
		ctx:     ctx,
		config:  p.config,
		graph:   graph,
		query:   q,
		allowed: mapz.NewSet(allowed...),
		missing: mapz.NewSet[string](),
		stack:   NewStack[*task](),
		seen:    map[string]mapz.Set[string]{},
	}
	if q.Fields.IsStar() {
		e.missing.Add(root.FieldNames().Names()...)
	} else {
		e.missing.Add(q.Fields.Names()...)
	}
	e.missing.Add(q.Filter.FieldNames().Names()...)
	requested := e.missing.Sorted()

	e.stack.Push(&task{
		table: root,
		path:  []string{root.Name},
		depth: 1,
	}, p.config.Priorities.OneToOne)

	rootTask, explored := e.run()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{
		Root:       e.build(rootTask),
		Unresolved: e.missing.Sorted(),
		Explored:   explored,
		object:     q.Object,
	}
	span.SetAttributes(attribute.Int("explored", explored))

	if result.Root == nil {
		return nil, NewUnresolvableQueryErr(q.Object, requested)
	}
	if len(result.Unresolved) > 0 {
		log.Ctx(ctx).Warn().Strs("fields", result.Unresolved).Msg("query partially resolved")
	}
	return result, nil
}

func planNamespaced(q query.Query, table *schema.Table, platform string, allowed []string) (*Result, error) {
	if _, ok := table.NativePartition(platform); !ok || (len(allowed) > 0 && !slices.Contains(allowed, platform)) {
		return nil, normalizer.NewUnknownObjectErr(q.Object)
	}
	return &Result{Root: plan.NewSource(table, platform, q), Explored: 1, object: q.Object}, nil
}

type explorer struct {
	ctx     context.Context
	config  Config
	graph   *normalizer.Graph
	query   query.Query
	allowed mapz.Set[string]

	missing mapz.Set[string]
	stack   *Stack[*task]

	// seen holds, per path, the relations already pushed.
	seen map[string]mapz.Set[string]
}

// run explores the graph until every missing field is served or the stack is
// exhausted. It returns the root task and the number of explored tables.
func (e *explorer) run() (*task, int) {
	var root *task
	explored := 0
	for len(e.missing) > 0 {
		if e.ctx.Err() != nil {
			break
		}
		t, ok := e.stack.Pop()
		if !ok {
			break
		}
		if root == nil {
			root = t
		}

		seen, ok := e.seen[t.pathKey()]
		if !ok {
			seen = mapz.NewSet[string]()
			e.seen[t.pathKey()] = seen
		}
		t.explore(e, seen)
		explored++
	}

	if root == nil {
		// Nothing was requested; the root alone serves the query.
		root, _ = e.stack.Pop()
		root.explored = true
		root.keep = root.table.FieldNames()
	}
	return root, explored
}

// wants returns true if a missing field lies under the prefix.
func (e *explorer) wants(prefix string) bool {
	for missing := range e.missing {
		if _, ok := relativeTo(missing, prefix); ok {
			return true
		}
	}
	return false
}

// platformsOf returns the allowed platforms serving the table. When some of
// them serve one of the fields, only those are returned.
func (e *explorer) platformsOf(table *schema.Table, fields query.FieldNames) []string {
	var all, serving []string
	for _, platform := range table.Platforms() {
		if len(e.allowed) > 0 && !e.allowed.Has(platform) {
			continue
		}
		all = append(all, platform)
		if fields.IsEmpty() {
			continue
		}
		if !fields.Intersect(table.Partitions[platform].Fields).IsEmpty() {
			serving = append(serving, platform)
		}
	}
	if len(serving) > 0 {
		return serving
	}
	return all
}

// union returns the union of the Froms of the table on every platform
// serving the fields it keeps.
func (e *explorer) union(t *task) plan.Node {
	platforms := e.platformsOf(t.table, t.keep)
	froms := make([]plan.Node, len(platforms))
	for i, platform := range platforms {
		froms[i] = plan.NewSource(t.table, platform, e.query)
	}

	key, ok := t.table.Key()
	if !ok {
		return &plan.Dup{Child: &plan.Union{Children: froms}}
	}
	return &plan.Union{Children: froms, Key: key.Names()}
}

// build returns the plan tree of the task and its explored children, or nil
// if none of them keeps any field.
func (e *explorer) build(t *task) plan.Node {
	if t == nil || !t.explored {
		return nil
	}

	var node plan.Node
	if !t.keep.IsEmpty() {
		node = e.union(t)
	}

	var nested []plan.Node
	var relations []schema.Relation
	for _, c := range t.children {
		child := e.build(c)
		if child == nil {
			continue
		}
		if node == nil {
			node = e.union(t)
		}

		r := *c.relation
		if r.RequiresSubquery() {
			nested = append(nested, child)
			relations = append(relations, r)
			continue
		}

		var into string
		if r.IsNested() {
			into = r.Name
		}
		node = &plan.LeftJoin{Left: node, Right: child, Predicate: r.Predicate, Into: into}
	}

	if len(nested) > 0 {
		node = &plan.SubQuery{Parent: node, Children: nested, Relations: relations}
	}
	return node
}
