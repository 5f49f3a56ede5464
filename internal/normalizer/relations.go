package normalizer

import (
	"github.com/manifoldrouter/manifold/pkg/query"
	"github.com/manifoldrouter/manifold/pkg/schema"
)

// isChildOf returns true if the key of u is a single field referencing v:
// every record of u extends one record of v.
func isChildOf(u, v *schema.Table) bool {
	key, ok := u.Key()
	if !ok || key.IsComposite() {
		return false
	}
	return key.Fields()[0].Type == v.Name
}

// hasFields returns true if u has every field of the key, with the same
// identity.
func hasFields(u *schema.Table, key schema.Key) bool {
	for _, f := range key.Fields() {
		uf, ok := u.GetField(f.Name)
		if !ok || !uf.Equal(f) {
			return false
		}
	}
	return true
}

// InferRelations returns the relations from u to v.
//
// Reference fields of u typed v come first. When there is none, shared key
// fields are considered, then fields of v referencing u.
func InferRelations(u, v *schema.Table) []schema.Relation {
	if u.Name == v.Name {
		return nil
	}

	relations := forwardRelations(u, v)
	if len(relations) > 0 {
		return relations
	}

	if r, ok := sharedKeyRelation(u, v); ok {
		return []schema.Relation{r}
	}

	return backwardRelations(u, v)
}

func forwardRelations(u, v *schema.Table) []schema.Relation {
	vKey, ok := v.Key()
	if !ok {
		return nil
	}

	var relations []schema.Relation
	for _, f := range u.SortedFields() {
		if f.Type != v.Name {
			continue
		}

		r := schema.Relation{
			Name:      f.Name,
			Source:    u.Name,
			Target:    v.Name,
			Predicate: referencePredicate(f, vKey),
		}

		switch {
		case f.IsArray:
			r.Type = schema.Link1N
		case f.IsLocal:
			r.Type = schema.Link
		case isChildOf(v, u):
			r.Type = schema.Child
		case isChildOf(u, v):
			r.Type = schema.Parent
		default:
			r.Type = schema.Link11
		}
		relations = append(relations, r)
	}
	return relations
}

// referencePredicate joins a reference field of the source with the key of
// the target. A composite key is carried as a nested record under the field.
func referencePredicate(f *schema.Field, vKey schema.Key) query.Predicate {
	vNames := toAny(vKey.Names())
	if !vKey.IsComposite() {
		op := query.Eq
		if f.IsArray {
			op = query.Contains
		}
		return query.NewPredicate(f.Name, op, vNames[0])
	}

	keys := make([]string, len(vKey.Names()))
	for i, name := range vKey.Names() {
		keys[i] = f.Name + query.FieldSeparator + name
	}
	return query.NewTuplePredicate(keys, query.Eq, vNames)
}

func sharedKeyRelation(u, v *schema.Table) (schema.Relation, bool) {
	uKey, uok := u.Key()
	vKey, vok := v.Key()
	if !uok || !vok {
		return schema.Relation{}, false
	}

	if hasFields(u, vKey) {
		r := schema.Relation{
			Type:      schema.Link11,
			Name:      v.Name,
			Source:    u.Name,
			Target:    v.Name,
			Predicate: keyPredicate(vKey.Names(), vKey.Names()),
		}
		if uKey.Equal(vKey) {
			r.Type = schema.Sibling
		}
		return r, true
	}

	// Every record of v belongs to the u record whose key it holds.
	if vKey.IsComposite() && hasFields(v, uKey) && uKey.FieldNames().IsSubsetOf(vKey.FieldNames()) {
		return schema.Relation{
			Type:      schema.Link1N,
			Name:      v.Name,
			Source:    u.Name,
			Target:    v.Name,
			Predicate: keyPredicate(uKey.Names(), uKey.Names()),
		}, true
	}

	return schema.Relation{}, false
}

func backwardRelations(u, v *schema.Table) []schema.Relation {
	uKey, ok := u.Key()
	if !ok || uKey.IsComposite() {
		return nil
	}
	uField := uKey.Names()[0]

	var relations []schema.Relation
	for _, g := range v.SortedFields() {
		if g.Type != u.Name {
			continue
		}

		r := schema.Relation{
			Name:   v.Name,
			Source: u.Name,
			Target: v.Name,
		}
		switch {
		case g.IsArray:
			r.Type = schema.Link1NBackwards
			r.Predicate = query.NewPredicate(uField, query.Contains, g.Name)
		case isChildOf(v, u):
			r.Type = schema.Child
			r.Predicate = query.NewPredicate(uField, query.Eq, g.Name)
		default:
			r.Type = schema.Link1N
			r.Predicate = query.NewPredicate(uField, query.Eq, g.Name)
		}
		relations = append(relations, r)
	}
	return relations
}

func keyPredicate(uFields, vFields []string) query.Predicate {
	if len(uFields) == 1 {
		return query.NewPredicate(uFields[0], query.Eq, vFields[0])
	}
	return query.NewTuplePredicate(uFields, query.Eq, toAny(vFields))
}

func toAny(names []string) []any {
	out := make([]any, len(names))
	for i, n := range names {
		out[i] = n
	}
	return out
}
