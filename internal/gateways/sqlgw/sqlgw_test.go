package sqlgw

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/manifoldrouter/manifold/pkg/announce"
	"github.com/manifoldrouter/manifold/pkg/gateway"
	"github.com/manifoldrouter/manifold/pkg/query"
	"github.com/manifoldrouter/manifold/pkg/testutil"
)

const announcement = `
class node {
    unsigned node_id;
    string   hostname;
    string   arch;
    double   cpu_load;
    string   tags[];
    KEY(node_id);
    CAPABILITY(retrieve, join, selection, projection);
};
`

func newGateway(t *testing.T) *Gateway {
	t.Helper()
	require := require.New(t)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	g, err := Open("ple", Config{
		Driver:       "sqlite3",
		DSN:          fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
		MaxOpenConns: 1,
		Announcement: announcement,
		Tables:       map[string]string{"node": "nodes"},
	})
	require.NoError(err)
	t.Cleanup(func() { require.NoError(g.Close()) })

	for _, statement := range []string{
		`CREATE TABLE nodes (node_id INTEGER PRIMARY KEY, hostname TEXT, arch TEXT, cpu_load REAL)`,
		`INSERT INTO nodes VALUES (1, 'planetlab1.inria.fr', 'x86', 0.5)`,
		`INSERT INTO nodes VALUES (2, 'planetlab2.inria.fr', 'arm', 1.5)`,
		`INSERT INTO nodes VALUES (3, 'node.upmc.fr', 'x86', 2.5)`,
	} {
		_, err := g.db.Exec(statement)
		require.NoError(err)
	}
	return g
}

func run(t *testing.T, gw gateway.Gateway, q query.Query) (query.Records, error) {
	t.Helper()

	out := make(chan query.Packet)
	go gw.Start(context.Background(), q, out)

	var records query.Records
	for p := range out {
		switch p.Kind {
		case query.RecordPacket:
			records = append(records, p.Record)
		case query.LastPacket:
			return records, nil
		case query.ErrorPacket:
			return records, p.Err
		}
	}
	return records, nil
}

func TestTranslate(t *testing.T) {
	t.Parallel()

	parsed, err := announce.ParseString(announcement, "ple")
	require.NoError(t, err)
	table := parsed.Tables[0]

	tcs := []struct {
		name      string
		predicate query.Predicate
		sql       string
	}{
		{"equality", query.NewPredicate("node_id", query.Eq, 1), "(node_id = ?)"},
		{"inclusion", query.NewPredicate("arch", query.Included, []any{"x86", "arm"}), "(arch IN (?,?))"},
		{"numeric order", query.NewPredicate("cpu_load", query.Gt, 1.0), "(cpu_load > ?)"},
		{"numeric lower bound", query.NewPredicate("cpu_load", query.Ge, 1), "(cpu_load >= ?)"},
		{"hierarchical order", query.NewPredicate("hostname", query.Lt, "inria.fr"), ""},
		{"contains", query.NewPredicate("tags", query.Contains, "a"), ""},
		{"array field", query.NewPredicate("tags", query.Eq, "a"), ""},
		{"unknown field", query.NewPredicate("site", query.Eq, "a"), ""},
		{"nested field", query.NewPredicate("site.name", query.Eq, "a"), ""},
		{"tuple", query.NewTuplePredicate([]string{"node_id", "arch"}, query.Eq, []any{1, "x86"}), ""},
		{"inequality", query.NewPredicate("arch", query.Neq, "x86"), ""},
		{"null", query.NewPredicate("arch", query.Eq, nil), ""},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require := require.New(t)

			where, local := translate(query.NewFilter(tc.predicate), table)
			if tc.sql == "" {
				require.Nil(where)
				require.Equal(1, local.Len())
				return
			}

			require.True(local.IsEmpty())
			text, args, err := where.ToSql()
			require.NoError(err)
			require.Equal(tc.sql, text)
			require.NotEmpty(args)
		})
	}
}

func TestGet(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t, testutil.GoLeakIgnores()...) })

	tcs := []struct {
		name     string
		query    query.Query
		expected query.Records
	}{
		{
			"projection",
			query.Get("node").Select("hostname"),
			query.Records{
				{"hostname": "planetlab1.inria.fr"},
				{"hostname": "planetlab2.inria.fr"},
				{"hostname": "node.upmc.fr"},
			},
		},
		{
			"pushed selection",
			query.Get("node").Select("node_id").Where(
				query.NewPredicate("arch", query.Eq, "x86"),
				query.NewPredicate("cpu_load", query.Gt, 1),
			),
			query.Records{{"node_id": 3}},
		},
		{
			"local selection",
			query.Get("node").Select("node_id").Where(query.NewPredicate("hostname", query.Lt, "planetlab1")),
			query.Records{{"node_id": 1}},
		},
		{
			"every column",
			query.Get("node").Where(query.NewPredicate("node_id", query.Eq, 2)),
			query.Records{{"node_id": 2, "hostname": "planetlab2.inria.fr", "arch": "arm", "cpu_load": 1.5}},
		},
	}

	g := newGateway(t)
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			records, err := run(t, g, tc.query)
			require.NoError(t, err)
			testutil.RequireRecordsMatch(t, tc.expected, records)
		})
	}
}

func TestWrites(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t, testutil.GoLeakIgnores()...) })
	require := require.New(t)

	g := newGateway(t)

	created, err := run(t, g, query.Query{
		Action: query.ActionCreate,
		Object: "node",
		Fields: query.Star(),
		Params: map[string]any{"node_id": 4, "hostname": "node.lip6.fr", "arch": "arm", "cpu_load": 0.0},
	})
	require.NoError(err)
	require.Len(created, 1)

	updated, err := run(t, g, query.Query{
		Action: query.ActionUpdate,
		Object: "node",
		Fields: query.NewFieldNames("node_id", "arch"),
		Filter: query.NewFilter(query.NewPredicate("hostname", query.Lt, "node")),
		Params: map[string]any{"arch": "riscv"},
	})
	require.NoError(err)
	testutil.RequireRecordsMatch(t, query.Records{{"node_id": 3, "arch": "riscv"}, {"node_id": 4, "arch": "riscv"}}, updated)

	deleted, err := run(t, g, query.Query{
		Action: query.ActionDelete,
		Object: "node",
		Fields: query.NewFieldNames("node_id"),
		Filter: query.NewFilter(query.NewPredicate("arch", query.Eq, "arm")),
	})
	require.NoError(err)
	testutil.RequireRecordsMatch(t, query.Records{{"node_id": 2}}, deleted)

	remaining, err := run(t, g, query.Get("node").Select("node_id", "arch"))
	require.NoError(err)
	testutil.RequireRecordsMatch(t, query.Records{
		{"node_id": 1, "arch": "x86"},
		{"node_id": 3, "arch": "riscv"},
		{"node_id": 4, "arch": "riscv"},
	}, remaining)
}

func TestErrors(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t, testutil.GoLeakIgnores()...) })
	require := require.New(t)

	g := newGateway(t)

	_, err := run(t, g, query.Get("site"))
	var gwErr gateway.Error
	require.True(errors.As(err, &gwErr))
	require.Equal("ple", gwErr.Platform())

	_, err = run(t, g, query.Query{
		Action: query.ActionUpdate,
		Object: "node",
		Fields: query.Star(),
		Params: map[string]any{"node_id": 9},
	})
	require.ErrorContains(err, "cannot update key field `node_id`")

	_, err = run(t, g, query.Query{
		Action: query.ActionCreate,
		Object: "node",
		Fields: query.Star(),
		Params: map[string]any{"color": "red"},
	})
	require.ErrorContains(err, "color")

	_, err = g.db.Exec(`DROP TABLE nodes`)
	require.NoError(err)
	_, err = run(t, g, query.Get("node"))
	require.True(errors.As(err, &gwErr))

	_, err = Open("ple", Config{Driver: "sqlite3"})
	require.ErrorContains(err, "needs a driver and a dsn")

	registry := gateway.Registry{}
	Register(registry)
	_, err = registry.New(Type, "ple", map[string]any{"driver": "sqlite3", "dsn": ":memory:"})
	require.ErrorContains(err, "no announcement")
}

func TestOpenPgx(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	// Opening does not connect.
	db, err := openDB("pgx", "postgres://manifold@localhost:5432/ple")
	require.NoError(err)
	require.NoError(db.Close())

	_, err = openDB("pgx", "postgres://manifold@localhost:port/ple")
	require.Error(err)
}

func TestMetrics(t *testing.T) {
	require := require.New(t)

	config := Config{
		Driver:       "sqlite3",
		DSN:          "file:metrics?mode=memory&cache=shared",
		Announcement: announcement,
		Metrics:      true,
	}
	g, err := Open("metrics", config)
	require.NoError(err)

	_, err = Open("metrics", config)
	require.ErrorContains(err, "registering the metrics of platform `metrics`")

	require.NoError(g.Close())
	g, err = Open("metrics", config)
	require.NoError(err)
	require.NoError(g.Close())
}
