package sqlgw

import (
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/manifoldrouter/manifold/pkg/query"
	"github.com/manifoldrouter/manifold/pkg/schema"
)

// translate splits a filter into the conditions SQL evaluates with the same
// meaning and the predicates that must be matched on the rows. The condition
// is nil when nothing is pushed.
func translate(filter query.Filter, t *schema.Table) (sq.Sqlizer, query.Filter) {
	var pushed sq.And
	var local []query.Predicate
	for _, p := range filter.Predicates() {
		if cond, ok := condition(p, t); ok {
			pushed = append(pushed, cond)
			continue
		}
		local = append(local, p)
	}

	if len(pushed) == 0 {
		return nil, query.NewFilter(local...)
	}
	return pushed, query.NewFilter(local...)
}

func condition(p query.Predicate, t *schema.Table) (sq.Sqlizer, bool) {
	if p.IsTuple() || p.Value == nil {
		return nil, false
	}
	column := p.Key[0]
	if strings.Contains(column, query.FieldSeparator) || !isColumn(t, column) {
		return nil, false
	}

	switch p.Op {
	case query.Eq, query.Included:
		if list, ok := p.Value.([]any); ok {
			return sq.Eq{column: list}, true
		}
		if p.Op == query.Eq && isScalar(p.Value) {
			return sq.Eq{column: p.Value}, true
		}

	// Strings order as dotted hierarchies, which SQL cannot express.
	case query.Lt:
		if isNumber(p.Value) {
			return sq.Lt{column: p.Value}, true
		}
	case query.Le:
		if isNumber(p.Value) {
			return sq.LtOrEq{column: p.Value}, true
		}
	case query.Gt:
		if isNumber(p.Value) {
			return sq.Gt{column: p.Value}, true
		}
	case query.Ge:
		if isNumber(p.Value) {
			return sq.GtOrEq{column: p.Value}, true
		}
	}
	return nil, false
}

// columnsOf returns the columns holding the fields, in order. Array fields
// have no column.
func columnsOf(t *schema.Table, fields query.FieldNames) []string {
	top := fields.TopLevel()
	var columns []string
	for _, f := range t.SortedFields() {
		if f.IsArray {
			continue
		}
		if top.Has(f.Name) {
			columns = append(columns, f.Name)
		}
	}
	return columns
}

func isColumn(t *schema.Table, name string) bool {
	f, ok := t.GetField(name)
	return ok && !f.IsArray
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	default:
		return false
	}
}

func isScalar(v any) bool {
	if isNumber(v) {
		return true
	}
	switch v.(type) {
	case string, bool:
		return true
	default:
		return false
	}
}
