package normalizer

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/manifoldrouter/manifold/pkg/schema"
)

// Graph is the normalized schema: one canonical table per object, linked by
// the relations inferred between them.
type Graph struct {
	tables    map[string]*schema.Table
	names     []string
	relations map[string][]schema.Relation
	fds       Fds
}

func newGraph() *Graph {
	return &Graph{
		tables:    map[string]*schema.Table{},
		relations: map[string][]schema.Relation{},
	}
}

func (g *Graph) addTable(t *schema.Table) {
	if _, ok := g.tables[t.Name]; !ok {
		g.names = append(g.names, t.Name)
	}
	g.tables[t.Name] = t
}

func (g *Graph) addRelation(r schema.Relation) {
	if slices.ContainsFunc(g.relations[r.Source], func(existing schema.Relation) bool {
		return existing.Name == r.Name
	}) {
		return
	}
	g.relations[r.Source] = append(g.relations[r.Source], r)
}

// Table returns the canonical table of the object.
func (g *Graph) Table(name string) (*schema.Table, bool) {
	t, ok := g.tables[name]
	return t, ok
}

// MustTable returns the canonical table of the object, or an
// UnknownObjectError.
func (g *Graph) MustTable(name string) (*schema.Table, error) {
	t, ok := g.tables[name]
	if !ok {
		return nil, NewUnknownObjectErr(name)
	}
	return t, nil
}

// TableNames returns the object names in announcement order.
func (g *Graph) TableNames() []string {
	return slices.Clone(g.names)
}

// Tables returns the canonical tables in announcement order.
func (g *Graph) Tables() []*schema.Table {
	tables := make([]*schema.Table, len(g.names))
	for i, name := range g.names {
		tables[i] = g.tables[name]
	}
	return tables
}

// Relations returns the relations leaving the object.
func (g *Graph) Relations(source string) []schema.Relation {
	return g.relations[source]
}

// Relation returns the named relation leaving the object.
func (g *Graph) Relation(source, name string) (schema.Relation, bool) {
	for _, r := range g.relations[source] {
		if r.Name == name {
			return r, true
		}
	}
	return schema.Relation{}, false
}

// Fds returns the minimal cover of the functional dependencies of the
// schema.
func (g *Graph) Fds() Fds {
	return g.fds
}

func (g *Graph) String() string {
	var sb strings.Builder
	for _, name := range g.names {
		fmt.Fprintln(&sb, g.tables[name])
		for _, r := range g.relations[name] {
			fmt.Fprintf(&sb, "  %s\n", r)
		}
	}
	return sb.String()
}

// MarshalZerologObject implements zerolog object marshalling.
func (g *Graph) MarshalZerologObject(e *zerolog.Event) {
	relations := 0
	for _, rs := range g.relations {
		relations += len(rs)
	}
	e.Strs("tables", g.names).Int("relations", relations).Int("fds", len(g.fds))
}
