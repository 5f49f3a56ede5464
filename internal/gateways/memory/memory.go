// Package memory implements a gateway holding its records in an in-memory
// go-memdb database. It serves the announced objects with every selection
// and projection it is asked for, and applies create, update and delete
// queries transactionally.
package memory

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/hashicorp/go-memdb"

	log "github.com/manifoldrouter/manifold/internal/logging"
	"github.com/manifoldrouter/manifold/pkg/gateway"
	"github.com/manifoldrouter/manifold/pkg/query"
	"github.com/manifoldrouter/manifold/pkg/schema"
)

// Type is the gateway type of memory platforms in the configuration.
const Type = "memory"

const idIndex = "id"

type row struct {
	ID     string
	Record query.Record
}

// Gateway serves records held in memory.
type Gateway struct {
	platform string
	tables   map[string]*schema.Table
	order    []string
	db       *memdb.MemDB
	seq      atomic.Uint64
}

var _ gateway.Gateway = &Gateway{}

// New returns an empty gateway serving the tables announced by the platform.
func New(platform string, tables []*schema.Table) (*Gateway, error) {
	dbSchema := &memdb.DBSchema{Tables: map[string]*memdb.TableSchema{}}
	g := &Gateway{platform: platform, tables: map[string]*schema.Table{}}
	for _, t := range tables {
		if _, ok := g.tables[t.Name]; ok {
			return nil, schema.NewInvalidTableErr(t.Name, "announced twice")
		}
		g.tables[t.Name] = t
		g.order = append(g.order, t.Name)
		dbSchema.Tables[t.Name] = &memdb.TableSchema{
			Name: t.Name,
			Indexes: map[string]*memdb.IndexSchema{
				idIndex: {
					Name:    idIndex,
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
			},
		}
	}

	db, err := memdb.NewMemDB(dbSchema)
	if err != nil {
		return nil, fmt.Errorf("building the memory database of platform `%s`: %w", platform, err)
	}
	g.db = db
	return g, nil
}

// Load inserts the records of the object. A record with the same key as a
// stored one replaces it.
func (g *Gateway) Load(object string, records query.Records) error {
	t, ok := g.tables[object]
	if !ok {
		return NewUnknownObjectErr(g.platform, object)
	}

	txn := g.db.Txn(true)
	defer txn.Abort()
	for _, r := range records {
		if err := g.insert(txn, t, r.Clone()); err != nil {
			return err
		}
	}
	txn.Commit()
	return nil
}

// Metadata returns the announced tables, in announcement order.
func (g *Gateway) Metadata(_ context.Context) ([]*schema.Table, error) {
	tables := make([]*schema.Table, 0, len(g.order))
	for _, name := range g.order {
		tables = append(tables, g.tables[name].Clone())
	}
	return tables, nil
}

// Start runs the query on the stored records.
func (g *Gateway) Start(ctx context.Context, q query.Query, out chan<- query.Packet) {
	records, err := g.run(q)
	if err != nil {
		gateway.Send(ctx, out, query.NewErrorPacket(gateway.NewError(g.platform, q, err)))
		return
	}

	log.Ctx(ctx).Trace().Object("query", q).Int("records", len(records)).Msg("memory query")
	for _, r := range records {
		if !gateway.Send(ctx, out, query.NewRecordPacket(r.Project(q.Fields))) {
			return
		}
	}
	gateway.Send(ctx, out, query.NewLastPacket())
}

func (g *Gateway) run(q query.Query) (query.Records, error) {
	t, ok := g.tables[q.ObjectName()]
	if !ok {
		return nil, NewUnknownObjectErr(g.platform, q.ObjectName())
	}

	switch q.Action {
	case query.ActionGet:
		txn := g.db.Txn(false)
		defer txn.Abort()
		rows, err := matching(txn, t.Name, q.Filter)
		if err != nil {
			return nil, err
		}
		records := make(query.Records, 0, len(rows))
		for _, r := range rows {
			records = append(records, r.Record)
		}
		return records, nil

	case query.ActionCreate:
		return g.create(t, q)

	case query.ActionUpdate:
		return g.update(t, q)

	case query.ActionDelete:
		return g.delete(t, q)

	default:
		return nil, fmt.Errorf("unsupported action `%s`", q.Action)
	}
}

func (g *Gateway) create(t *schema.Table, q query.Query) (query.Records, error) {
	if len(q.Params) == 0 {
		return nil, fmt.Errorf("create on `%s` without values", t.Name)
	}
	r := query.Record(q.Params).Clone()

	txn := g.db.Txn(true)
	defer txn.Abort()
	if err := g.insert(txn, t, r); err != nil {
		return nil, err
	}
	txn.Commit()
	return query.Records{r}, nil
}

func (g *Gateway) update(t *schema.Table, q query.Query) (query.Records, error) {
	for name := range q.Params {
		if _, ok := t.GetField(name); !ok {
			return nil, schema.NewFieldNotFoundErr(t.Name, name)
		}
		if key, ok := t.Key(); ok && key.Contains(name) {
			return nil, fmt.Errorf("cannot update key field `%s` of `%s`", name, t.Name)
		}
	}

	txn := g.db.Txn(true)
	defer txn.Abort()
	rows, err := matching(txn, t.Name, q.Filter)
	if err != nil {
		return nil, err
	}

	updated := make(query.Records, 0, len(rows))
	for _, r := range rows {
		merged := r.Record.Merge(query.Record(q.Params).Clone())
		if err := txn.Insert(t.Name, &row{ID: r.ID, Record: merged}); err != nil {
			return nil, err
		}
		updated = append(updated, merged)
	}
	txn.Commit()
	return updated, nil
}

func (g *Gateway) delete(t *schema.Table, q query.Query) (query.Records, error) {
	txn := g.db.Txn(true)
	defer txn.Abort()
	rows, err := matching(txn, t.Name, q.Filter)
	if err != nil {
		return nil, err
	}

	deleted := make(query.Records, 0, len(rows))
	for _, r := range rows {
		if err := txn.Delete(t.Name, r); err != nil {
			return nil, err
		}
		deleted = append(deleted, r.Record)
	}
	txn.Commit()
	return deleted, nil
}

func (g *Gateway) insert(txn *memdb.Txn, t *schema.Table, r query.Record) error {
	for name := range r {
		if _, ok := t.GetField(name); !ok {
			return schema.NewFieldNotFoundErr(t.Name, name)
		}
	}
	return txn.Insert(t.Name, &row{ID: g.rowID(t, r), Record: r})
}

// rowID identifies a record by its key, or by insertion order when the table
// has no key or the record lacks some key field.
func (g *Gateway) rowID(t *schema.Table, r query.Record) string {
	if key, ok := t.Key(); ok {
		if id, ok := r.KeyValue(key.Names()); ok {
			return "k:" + id
		}
	}
	return fmt.Sprintf("s:%020d", g.seq.Add(1))
}

func matching(txn *memdb.Txn, table string, filter query.Filter) ([]*row, error) {
	it, err := txn.Get(table, idIndex)
	if err != nil {
		return nil, err
	}
	var rows []*row
	for obj := it.Next(); obj != nil; obj = it.Next() {
		r := obj.(*row)
		if filter.Match(r.Record) {
			rows = append(rows, r)
		}
	}
	return rows, nil
}
