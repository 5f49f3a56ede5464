// Package sqlgw implements a gateway over a SQL database. Each announced
// object maps to a table whose columns are named after its fields.
// Statements are built with squirrel; the predicates SQL can express are
// pushed into the WHERE clause and the others are evaluated on the rows.
package sqlgw

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/prometheus/client_golang/prometheus"

	log "github.com/manifoldrouter/manifold/internal/logging"
	"github.com/manifoldrouter/manifold/pkg/gateway"
	"github.com/manifoldrouter/manifold/pkg/query"
	"github.com/manifoldrouter/manifold/pkg/schema"
)

// Type is the gateway type of SQL platforms in the configuration.
const Type = "sql"

// Gateway serves the records of a SQL database.
type Gateway struct {
	platform string
	db       *sql.DB
	builder  sq.StatementBuilderType

	tables map[string]*schema.Table
	order  []string

	// sqlTables maps objects to the name of their table.
	sqlTables map[string]string

	collector prometheus.Collector
}

var _ gateway.Gateway = &Gateway{}

// New returns a gateway serving the tables announced by the platform from
// the database. renames maps objects whose table is named differently.
func New(platform string, db *sql.DB, driver string, tables []*schema.Table, renames map[string]string) (*Gateway, error) {
	g := &Gateway{
		platform:  platform,
		db:        db,
		builder:   sq.StatementBuilder.PlaceholderFormat(placeholderFormat(driver)),
		tables:    map[string]*schema.Table{},
		sqlTables: map[string]string{},
	}
	for _, t := range tables {
		if _, ok := g.tables[t.Name]; ok {
			return nil, schema.NewInvalidTableErr(t.Name, "announced twice")
		}
		g.tables[t.Name] = t
		g.order = append(g.order, t.Name)
		g.sqlTables[t.Name] = t.Name
		if renamed, ok := renames[t.Name]; ok {
			g.sqlTables[t.Name] = renamed
		}
	}
	return g, nil
}

func placeholderFormat(driver string) sq.PlaceholderFormat {
	if driver == "pgx" || driver == "postgres" {
		return sq.Dollar
	}
	return sq.Question
}

// Close closes the database.
func (g *Gateway) Close() error {
	if g.collector != nil {
		prometheus.Unregister(g.collector)
	}
	return g.db.Close()
}

// Metadata returns the announced tables, in announcement order.
func (g *Gateway) Metadata(_ context.Context) ([]*schema.Table, error) {
	tables := make([]*schema.Table, 0, len(g.order))
	for _, name := range g.order {
		tables = append(tables, g.tables[name].Clone())
	}
	return tables, nil
}

// Start runs the query on the database.
func (g *Gateway) Start(ctx context.Context, q query.Query, out chan<- query.Packet) {
	fail := func(err error) {
		gateway.Send(ctx, out, query.NewErrorPacket(gateway.NewError(g.platform, q, err)))
	}

	t, ok := g.tables[q.ObjectName()]
	if !ok {
		fail(fmt.Errorf("platform `%s` does not announce object `%s`", g.platform, q.ObjectName()))
		return
	}

	switch q.Action {
	case query.ActionGet:
		if err := g.get(ctx, t, q, out); err != nil {
			fail(err)
			return
		}

	case query.ActionCreate, query.ActionUpdate, query.ActionDelete:
		records, err := g.write(ctx, t, q)
		if err != nil {
			fail(err)
			return
		}
		for _, r := range records {
			if !gateway.Send(ctx, out, query.NewRecordPacket(r.Project(q.Fields))) {
				return
			}
		}

	default:
		fail(fmt.Errorf("unsupported action `%s`", q.Action))
		return
	}
	gateway.Send(ctx, out, query.NewLastPacket())
}

func (g *Gateway) get(ctx context.Context, t *schema.Table, q query.Query, out chan<- query.Packet) error {
	where, local := translate(q.Filter, t)

	// Rows matched locally need the columns of the local predicates.
	columns := columnsOf(t, q.Fields.Union(local.FieldNames()))
	if len(columns) == 0 {
		return errors.New("no column to select")
	}

	statement, args, err := g.builder.Select(columns...).From(g.sqlTables[t.Name]).Where(where).ToSql()
	if err != nil {
		return err
	}
	log.Ctx(ctx).Trace().Str("sql", statement).Msg("sql query")

	rows, err := g.db.QueryContext(ctx, statement, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	return scan(rows, func(r query.Record) bool {
		if !local.Match(r) {
			return true
		}
		return gateway.Send(ctx, out, query.NewRecordPacket(r.Project(q.Fields)))
	})
}

// write applies a create, update or delete in a transaction, returning the
// records it created, updated or deleted.
func (g *Gateway) write(ctx context.Context, t *schema.Table, q query.Query) (query.Records, error) {
	key, ok := t.Key()
	if !ok {
		return nil, schema.NewInvalidTableErr(t.Name, "no key")
	}
	for name := range q.Params {
		if _, ok := t.GetField(name); !ok {
			return nil, schema.NewFieldNotFoundErr(t.Name, name)
		}
		if q.Action == query.ActionUpdate && key.Contains(name) {
			return nil, fmt.Errorf("cannot update key field `%s` of `%s`", name, t.Name)
		}
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var records query.Records
	switch q.Action {
	case query.ActionCreate:
		if len(q.Params) == 0 {
			return nil, fmt.Errorf("create on `%s` without values", t.Name)
		}
		if err := g.exec(ctx, tx, g.builder.Insert(g.sqlTables[t.Name]).SetMap(q.Params)); err != nil {
			return nil, err
		}
		records = query.Records{query.Record(q.Params).Clone()}

	default:
		matched, err := g.matching(ctx, tx, t, q.Filter)
		if err != nil {
			return nil, err
		}
		for _, r := range matched {
			byKey := sq.Eq{}
			for _, name := range key.Names() {
				byKey[name] = r[name]
			}

			if q.Action == query.ActionDelete {
				err = g.exec(ctx, tx, g.builder.Delete(g.sqlTables[t.Name]).Where(byKey))
				records = append(records, r)
			} else {
				err = g.exec(ctx, tx, g.builder.Update(g.sqlTables[t.Name]).SetMap(q.Params).Where(byKey))
				records = append(records, r.Merge(query.Record(q.Params)))
			}
			if err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return records, nil
}

func (g *Gateway) matching(ctx context.Context, tx *sql.Tx, t *schema.Table, filter query.Filter) (query.Records, error) {
	where, local := translate(filter, t)
	statement, args, err := g.builder.Select(columnsOf(t, query.Star())...).From(g.sqlTables[t.Name]).Where(where).ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matched query.Records
	err = scan(rows, func(r query.Record) bool {
		if local.Match(r) {
			matched = append(matched, r)
		}
		return true
	})
	return matched, err
}

func (g *Gateway) exec(ctx context.Context, tx *sql.Tx, statement sq.Sqlizer) error {
	text, args, err := statement.ToSql()
	if err != nil {
		return err
	}
	log.Ctx(ctx).Trace().Str("sql", text).Msg("sql statement")
	_, err = tx.ExecContext(ctx, text, args...)
	return err
}

// scan calls fn with every row until it returns false.
func scan(rows *sql.Rows, fn func(query.Record) bool) error {
	columns, err := rows.Columns()
	if err != nil {
		return err
	}

	values := make([]any, len(columns))
	pointers := make([]any, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(pointers...); err != nil {
			return err
		}
		r := make(query.Record, len(columns))
		for i, column := range columns {
			r[column] = normalizeValue(values[i])
		}
		if !fn(r) {
			return nil
		}
	}
	return rows.Err()
}

func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
