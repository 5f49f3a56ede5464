package normalizer

import (
	"maps"

	log "github.com/manifoldrouter/manifold/internal/logging"
	"github.com/manifoldrouter/manifold/pkg/schema"
)

// Normalize merges the tables announced by every platform into one canonical
// table per object, computes the minimal cover of their functional
// dependencies and infers the relations between the canonical tables.
//
// A table announced without a key is accepted with a warning: its records
// cannot be joined on a key and are deduplicated as whole records instead.
func Normalize(announced []*schema.Table) (*Graph, error) {
	g := newGraph()

	for _, t := range announced {
		if t.Name == "" {
			return nil, NewInvalidAnnouncementErr(t.Namespace, t.Name, "empty object name")
		}
		if t.Namespace == "" {
			return nil, NewInvalidAnnouncementErr(t.Namespace, t.Name, "no announcing platform")
		}

		canonical, ok := g.Table(t.Name)
		if !ok {
			canonical = schema.NewTable("", t.Name)
			canonical.Capabilities = t.Capabilities
			g.addTable(canonical)
		} else {
			canonical.Capabilities = canonical.Capabilities.Union(t.Capabilities)
		}
		mergeAnnouncement(canonical, t)
	}

	for _, t := range g.Tables() {
		if len(t.Keys) == 0 {
			log.Warn().Str("table", t.Name).Msg("table announced without a key")
		}
	}

	cover, removed := MinimalCover(makeFds(g.Tables()))
	Reinject(cover, removed)
	applyCover(g, cover, removed)
	g.fds = cover.Collapse()

	tables := g.Tables()
	for _, u := range tables {
		for _, v := range tables {
			for _, r := range InferRelations(u, v) {
				g.addRelation(r)
			}
		}
	}

	log.Debug().Object("graph", g).Msg("normalized schema")
	return g, nil
}

func mergeAnnouncement(canonical, t *schema.Table) {
	if canonical.Description == "" {
		canonical.Description = t.Description
	}

	for _, f := range t.SortedFields() {
		existing, ok := canonical.GetField(f.Name)
		switch {
		case !ok:
			canonical.AddField(f.Clone())
		case !existing.Equal(f):
			log.Warn().
				Str("table", t.Name).
				Str("platform", t.Namespace).
				Stringer("announced", f).
				Stringer("kept", existing).
				Msg("conflicting field announcement")
		}
	}

	for _, k := range t.Keys {
		fields := make([]*schema.Field, 0, len(k.Fields()))
		for _, f := range k.Fields() {
			if existing, ok := canonical.GetField(f.Name); ok && existing.Equal(f) {
				fields = append(fields, existing)
			}
		}
		if len(fields) != len(k.Fields()) {
			continue
		}
		if k.IsLocal() {
			canonical.Keys = canonical.Keys.Add(schema.NewLocalKey(fields...))
		} else {
			canonical.Keys = canonical.Keys.Add(schema.NewKey(fields...))
		}
	}

	partition, ok := canonical.Partition(t.Namespace)
	if !ok {
		canonical.Partitions[t.Namespace] = &schema.Partition{
			Method:       schema.Method{Platform: t.Namespace, Object: t.Name},
			Fields:       t.FieldNames(),
			Capabilities: t.Capabilities,
			Aliases:      maps.Clone(t.Aliases),
		}
		return
	}
	partition.Fields = partition.Fields.Union(t.FieldNames())
	partition.Capabilities = partition.Capabilities.Union(t.Capabilities)
	if len(t.Aliases) > 0 {
		if partition.Aliases == nil {
			partition.Aliases = map[string]string{}
		}
		maps.Copy(partition.Aliases, t.Aliases)
	}
}

// applyCover shapes the canonical tables after the minimal cover. An object
// lent a method by a redundant dependency gets a partition fetching its
// fields from the lending object. A field its table only reaches through the
// key of another object then moves to that object.
func applyCover(g *Graph, cover, removed Fds) {
	for _, fd := range cover {
		t, ok := g.Table(fd.Determinant.Object)
		if !ok {
			continue
		}
		fields := fd.KeyFieldNames().Add(fd.Field())
		for _, m := range fd.Fields[fd.Field()].Sorted() {
			if m.Object == t.Name {
				continue
			}
			source, ok := g.Table(m.Object)
			if !ok {
				continue
			}
			sp, ok := source.Partition(m.Platform)
			if !ok || !fields.IsSubsetOf(sp.Fields) {
				continue
			}

			p, ok := t.Partition(m.Platform)
			switch {
			case !ok:
				log.Debug().Str("table", t.Name).Stringer("method", m).Msg("object also supplied by another object")
				t.Partitions[m.Platform] = &schema.Partition{
					Method:       m,
					Fields:       fields,
					Capabilities: sp.Capabilities,
					Aliases:      maps.Clone(sp.Aliases),
				}
			case p.Method == m:
				p.Fields = p.Fields.Union(fields)
			}
		}
	}

	for _, fd := range removed {
		t, ok := g.Table(fd.Determinant.Object)
		if !ok {
			continue
		}
		name := fd.Field()
		f, ok := t.GetField(name)
		if !ok || f.IsReference() || t.Keys.HasField(name) || determines(cover, t.Name, name) {
			continue
		}

		path := closurePaths(fd.KeyFieldNames(), cover)[name]
		if len(path) == 0 {
			continue
		}
		owner, ok := g.Table(path[len(path)-1].Determinant.Object)
		if !ok || owner == t {
			continue
		}
		if of, ok := owner.GetField(name); !ok || !of.Equal(f) {
			continue
		}

		log.Debug().Str("field", name).Str("from", t.Name).Str("to", owner.Name).Msg("moving transitively determined field")
		delete(t.Fields, name)
		for _, p := range t.Partitions {
			p.Fields = p.Fields.Remove(name)
		}
	}
}

// determines returns true if a dependency of the cover gives the field from
// a key of the object.
func determines(cover Fds, object, field string) bool {
	for _, fd := range cover {
		if fd.Determinant.Object == object {
			if _, ok := fd.Fields[field]; ok {
				return true
			}
		}
	}
	return false
}

func makeFds(tables []*schema.Table) Fds {
	var fds Fds
	for _, t := range tables {
		for _, k := range t.Keys {
			if k.IsLocal() {
				continue
			}

			keyFields := k.FieldNames()
			for _, f := range t.SortedFields() {
				if k.Contains(f.Name) {
					continue
				}

				var methods []schema.Method
				for _, platform := range t.Platforms() {
					p := t.Partitions[platform]
					if p.Fields.Has(f.Name) && keyFields.IsSubsetOf(p.Fields) {
						methods = append(methods, p.Method)
					}
				}
				if len(methods) > 0 {
					fds = append(fds, NewFd(Determinant{Object: t.Name, Key: k}, f.Name, methods...))
				}
			}
		}
	}
	return fds
}
