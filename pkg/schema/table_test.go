package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/manifoldrouter/manifold/pkg/query"
)

func nodeTable(t *testing.T) *Table {
	t.Helper()

	table := NewTable("ple", "node")
	table.AddField(&Field{Name: "node_id", Type: "int"})
	table.AddField(&Field{Name: "hostname", Type: "hostname"})
	table.AddField(&Field{Name: "site", Type: "site"})
	table.AddField(&Field{Name: "interfaces", Type: "interface", IsArray: true})
	require.NoError(t, table.InsertKey("node_id"))
	return table
}

func TestInsertKey(t *testing.T) {
	t.Parallel()

	table := nodeTable(t)
	require.NoError(t, table.InsertKey("node_id"))
	require.Len(t, table.Keys, 1)

	require.NoError(t, table.InsertKey("hostname"))
	require.Len(t, table.Keys, 2)
	require.True(t, table.Keys.HasField("hostname"))

	err := table.InsertKey("missing")
	var notFound FieldNotFoundError
	require.True(t, errors.As(err, &notFound))
	require.Equal(t, "missing", notFound.NotFoundFieldName())

	err = table.InsertKey()
	var invalid InvalidTableError
	require.True(t, errors.As(err, &invalid))
}

func TestTableClone(t *testing.T) {
	t.Parallel()

	table := nodeTable(t)
	table.Partitions["ple"] = &Partition{
		Method: Method{Platform: "ple", Object: "node"},
		Fields: table.FieldNames(),
	}

	cloned := table.Clone()
	cloned.Fields["hostname"].Type = "string"
	cloned.Partitions["ple"].Method.Object = "nodes"

	require.Equal(t, "hostname", table.Fields["hostname"].Type)
	require.Equal(t, "node", table.Partitions["ple"].Method.Object)

	key, ok := cloned.Key()
	require.True(t, ok)
	require.Same(t, cloned.Fields["node_id"], key.Fields()[0])
}

func TestFieldIsReference(t *testing.T) {
	t.Parallel()

	table := nodeTable(t)
	require.False(t, table.Fields["node_id"].IsReference())
	require.True(t, table.Fields["site"].IsReference())
	require.True(t, table.Fields["interfaces"].IsReference())
}

func TestTableIsSubsetOf(t *testing.T) {
	t.Parallel()

	small := NewTable("ple", "node")
	small.AddField(&Field{Name: "node_id", Type: "int"})

	require.True(t, small.IsSubsetOf(nodeTable(t)))
	require.False(t, nodeTable(t).IsSubsetOf(small))

	small.AddField(&Field{Name: "hostname", Type: "string"})
	require.False(t, small.IsSubsetOf(nodeTable(t)))
}

func TestParseCapabilities(t *testing.T) {
	t.Parallel()

	c, err := ParseCapabilities("retrieve", " Join", "selection", "")
	require.NoError(t, err)
	require.Equal(t, []string{"retrieve", "join", "selection"}, c.Names())
	require.False(t, c.IsOnJoin())

	_, err = ParseCapabilities("teleport")
	require.Error(t, err)

	onjoin := Capabilities{OnJoin: true}
	require.True(t, onjoin.Union(Capabilities{OnJoin: true}).IsOnJoin())
	require.False(t, onjoin.Union(Capabilities{Retrieve: true}).IsOnJoin())
}

func TestRelation(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		relationType RelationType
		subquery     bool
		nested       bool
	}{
		{Sibling, false, false},
		{Parent, false, false},
		{Child, false, false},
		{Link, false, false},
		{Link11, false, true},
		{Link1N, true, true},
		{Link1NBackwards, true, true},
	}

	for _, tc := range tcs {
		t.Run(tc.relationType.String(), func(t *testing.T) {
			t.Parallel()

			r := Relation{
				Type:      tc.relationType,
				Name:      "agent",
				Source:    "traceroute",
				Target:    "agent",
				Predicate: query.NewPredicate("agent_id", query.Eq, "agent_id"),
			}
			require.Equal(t, tc.subquery, r.RequiresSubquery())
			require.Equal(t, tc.nested, r.IsNested())
			require.Equal(t, []string{"agent_id"}, r.TargetFields())
		})
	}
}

func TestAsRecord(t *testing.T) {
	t.Parallel()

	record := nodeTable(t).AsRecord()
	require.Equal(t, "node", record["table"])
	require.Equal(t, []any{"ple"}, record["platforms"])
	require.Equal(t, []any{[]any{"node_id"}}, record["key"])

	columns, ok := record["columns"].(query.Records)
	require.True(t, ok)
	require.Len(t, columns, 4)
	require.Equal(t, "hostname", columns[0]["name"])
}

func TestApplyAliases(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		name    string
		aliases map[string]string
		fields  []string
		err     string
	}{
		{"none", nil, []string{"hostname", "interfaces", "node_id", "site"}, ""},
		{"renamed", map[string]string{"hostname": "name", "site": "site_id"}, []string{"interfaces", "name", "node_id", "site_id"}, ""},
		{"unknown field", map[string]string{"arch": "architecture"}, nil, "arch"},
		{"taken", map[string]string{"hostname": "site"}, nil, "already a field"},
		{"collision", map[string]string{"hostname": "name", "site": "name"}, nil, "two fields aliased"},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require := require.New(t)

			table := nodeTable(t)
			key := table.Fields["node_id"]
			err := table.ApplyAliases(tc.aliases)
			if tc.err != "" {
				require.ErrorContains(err, tc.err)
				return
			}
			require.NoError(err)
			require.Equal(tc.fields, table.FieldNames().Names())
			if len(tc.aliases) > 0 {
				require.Equal(tc.aliases, table.Aliases)
			}

			k, ok := table.Key()
			require.True(ok)
			require.Same(key, k.Fields()[0])
		})
	}
}

func TestPartitionPlatformNames(t *testing.T) {
	t.Parallel()

	p := &Partition{Aliases: map[string]string{"name": "hostname"}}
	require.Equal(t, map[string]string{"hostname": "name"}, p.PlatformNames())
	require.Empty(t, (&Partition{}).PlatformNames())
}
