package normalizer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/manifoldrouter/manifold/pkg/query"
	"github.com/manifoldrouter/manifold/pkg/schema"
)

var universe = []string{"a", "b", "c", "d", "e", "f"}

func fieldsGen() *rapid.Generator[[]string] {
	return rapid.SliceOfNDistinct(rapid.SampledFrom(universe), 1, 3, rapid.ID)
}

func fdsGen() *rapid.Generator[Fds] {
	return rapid.Custom(func(t *rapid.T) Fds {
		count := rapid.IntRange(0, 8).Draw(t, "count")
		fds := make(Fds, 0, count)
		for i := 0; i < count; i++ {
			keyNames := fieldsGen().Draw(t, "key")
			keyFields := make([]*schema.Field, len(keyNames))
			for j, name := range keyNames {
				keyFields[j] = &schema.Field{Name: name, Type: "int"}
			}

			field := rapid.SampledFrom(universe).Draw(t, "field")
			if query.NewFieldNames(keyNames...).Has(field) {
				continue
			}
			object := rapid.SampledFrom([]string{"x", "y"}).Draw(t, "object")
			platform := rapid.SampledFrom([]string{"p1", "p2"}).Draw(t, "platform")
			fds = append(fds, NewFd(
				Determinant{Object: object, Key: schema.NewKey(keyFields...)},
				field,
				schema.Method{Platform: platform, Object: object},
			))
		}
		return fds
	})
}

func TestClosureProperties(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		x := query.NewFieldNames(fieldsGen().Draw(t, "x")...)
		fds := fdsGen().Draw(t, "fds")

		closure := Closure(x, fds)
		if !x.IsSubsetOf(closure) {
			t.Fatalf("closure %s does not contain %s", closure, x)
		}
		if again := Closure(closure, fds); !again.Equal(closure) {
			t.Fatalf("closure is not idempotent: %s then %s", closure, again)
		}
	})
}

func TestMinimalCoverProperties(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		fds := fdsGen().Draw(t, "fds")
		cover, _ := MinimalCover(fds)

		for _, fd := range cover {
			keyFields := fd.Determinant.Key.Fields()
			if len(keyFields) < 2 {
				continue
			}
			for i := range keyFields {
				var sub []string
				for j, f := range keyFields {
					if j != i {
						sub = append(sub, f.Name)
					}
				}
				if Closure(query.NewFieldNames(sub...), cover).Has(fd.Field()) {
					t.Fatalf("redundant determinant field %s in %s", keyFields[i].Name, fd)
				}
			}
		}

		// The cover is equivalent to the original dependencies.
		for _, names := range [][]string{{"a"}, {"b", "c"}, {"d", "e", "f"}} {
			x := query.NewFieldNames(names...)
			if !Closure(x, fds).Equal(Closure(x, cover)) {
				t.Fatalf("cover changes the closure of %s", x)
			}
		}
	})
}

func TestMinimalCoverReinjectsMethods(t *testing.T) {
	t.Parallel()

	id := &schema.Field{Name: "node_id", Type: "int"}
	det := Determinant{Object: "node", Key: schema.NewKey(id)}
	fds := Fds{
		NewFd(det, "hostname", schema.Method{Platform: "p1", Object: "node"}),
		NewFd(det, "hostname", schema.Method{Platform: "p2", Object: "node"}),
	}

	cover, removed := MinimalCover(fds)
	require.Len(t, cover, 1)
	require.Len(t, removed, 1)

	Reinject(cover, removed)
	require.Equal(t, []string{"p1", "p2"}, cover[0].Methods().Platforms())
	require.Len(t, fds[0].Fields["hostname"], 1)
}

func announce(t *testing.T, platform, name string, fields []*schema.Field, key ...string) *schema.Table {
	t.Helper()

	table := schema.NewTable(platform, name)
	for _, f := range fields {
		table.AddField(f)
	}
	table.Capabilities = schema.Capabilities{Retrieve: true, Selection: true, Projection: true}
	if len(key) > 0 {
		require.NoError(t, table.InsertKey(key...))
	}
	return table
}

func TestNormalizeMergesPlatforms(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	g, err := Normalize([]*schema.Table{
		announce(t, "p1", "node", []*schema.Field{
			{Name: "node_id", Type: "int"},
			{Name: "hostname", Type: "string"},
		}, "node_id"),
		announce(t, "p2", "node", []*schema.Field{
			{Name: "node_id", Type: "int"},
			{Name: "hostname", Type: "string"},
			{Name: "arch", Type: "string"},
		}, "node_id"),
	})
	require.NoError(err)

	node, ok := g.Table("node")
	require.True(ok)
	require.Equal([]string{"p1", "p2"}, node.Platforms())
	require.Equal([]string{"arch", "hostname", "node_id"}, node.FieldNames().Names())
	require.Equal([]string{"hostname", "node_id"}, node.Partitions["p1"].Fields.Names())
	require.Len(node.Keys, 1)

	require.Len(g.Fds(), 1)
	require.Equal([]string{"p1", "p2"}, g.Fds()[0].Fields["hostname"].Platforms())
	require.Equal([]string{"p2"}, g.Fds()[0].Fields["arch"].Platforms())

	_, err = g.MustTable("site")
	var unknown UnknownObjectError
	require.True(errors.As(err, &unknown))
}

func TestNormalizeMovesTransitiveFields(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	g, err := Normalize([]*schema.Table{
		announce(t, "p1", "agent", []*schema.Field{
			{Name: "agent_id", Type: "int"},
			{Name: "agent_name", Type: "string"},
		}, "agent_id"),
		announce(t, "p2", "measurement", []*schema.Field{
			{Name: "measurement_id", Type: "int"},
			{Name: "agent_id", Type: "int"},
			{Name: "agent_name", Type: "string"},
		}, "measurement_id"),
	})
	require.NoError(err)

	measurement, err := g.MustTable("measurement")
	require.NoError(err)
	require.Equal([]string{"agent_id", "measurement_id"}, measurement.FieldNames().Names())
	require.Equal([]string{"agent_id", "measurement_id"}, measurement.Partitions["p2"].Fields.Names())

	agent, err := g.MustTable("agent")
	require.NoError(err)
	require.Equal([]string{"agent_id", "agent_name"}, agent.FieldNames().Names())
	require.Equal([]string{"p1", "p2"}, agent.Platforms())
	lent := agent.Partitions["p2"]
	require.Equal(schema.Method{Platform: "p2", Object: "measurement"}, lent.Method)
	require.Equal([]string{"agent_id", "agent_name"}, lent.Fields.Names())

	_, native := agent.NativePartition("p2")
	require.False(native)
	_, native = agent.NativePartition("p1")
	require.True(native)

	var relations []string
	for _, r := range g.Relations("measurement") {
		relations = append(relations, r.Target)
	}
	require.Contains(relations, "agent")
}

func TestNormalizeRejectsEmptyName(t *testing.T) {
	t.Parallel()

	_, err := Normalize([]*schema.Table{schema.NewTable("p1", "")})
	var invalid InvalidAnnouncementError
	require.True(t, errors.As(err, &invalid))
	require.Equal(t, "p1", invalid.Platform())
}

func TestInferRelations(t *testing.T) {
	t.Parallel()

	agent := announce(t, "p", "agent", []*schema.Field{
		{Name: "agent_id", Type: "int"},
		{Name: "name", Type: "string"},
	}, "agent_id")
	destination := announce(t, "p", "destination", []*schema.Field{
		{Name: "dest_id", Type: "int"},
		{Name: "ip", Type: "inet"},
	}, "dest_id")
	traceroute := announce(t, "p", "traceroute", []*schema.Field{
		{Name: "agent_id", Type: "int"},
		{Name: "dest_id", Type: "int"},
		{Name: "hops", Type: "hop", IsArray: true},
	}, "agent_id", "dest_id")
	slice := announce(t, "p", "slice", []*schema.Field{
		{Name: "slice_hrn", Type: "string"},
		{Name: "nodes", Type: "node", IsArray: true},
	}, "slice_hrn")
	user := announce(t, "p", "user", []*schema.Field{
		{Name: "user_hrn", Type: "string"},
		{Name: "email", Type: "string"},
		{Name: "slice", Type: "slice"},
	}, "user_hrn")
	node := announce(t, "p", "node", []*schema.Field{
		{Name: "node_id", Type: "int"},
		{Name: "site", Type: "site", IsLocal: true},
	}, "node_id")
	nodeExt := announce(t, "p", "node_ext", []*schema.Field{
		{Name: "node", Type: "node"},
		{Name: "load", Type: "double"},
	}, "node")
	site := announce(t, "p", "site", []*schema.Field{
		{Name: "site_id", Type: "int"},
	}, "site_id")

	tcs := []struct {
		name     string
		u        *schema.Table
		v        *schema.Table
		expected []schema.Relation
	}{
		{
			"shared key fields give a nested one-to-one link",
			traceroute, agent,
			[]schema.Relation{{
				Type: schema.Link11, Name: "agent", Source: "traceroute", Target: "agent",
				Predicate: query.NewPredicate("agent_id", query.Eq, "agent_id"),
			}},
		},
		{
			"key included in a composite key gives a one-to-many link",
			agent, traceroute,
			[]schema.Relation{{
				Type: schema.Link1N, Name: "traceroute", Source: "agent", Target: "traceroute",
				Predicate: query.NewPredicate("agent_id", query.Eq, "agent_id"),
			}},
		},
		{
			"reverse scalar reference gives a one-to-many link",
			slice, user,
			[]schema.Relation{{
				Type: schema.Link1N, Name: "user", Source: "slice", Target: "user",
				Predicate: query.NewPredicate("slice_hrn", query.Eq, "slice"),
			}},
		},
		{
			"scalar reference gives a nested one-to-one link",
			user, slice,
			[]schema.Relation{{
				Type: schema.Link11, Name: "slice", Source: "user", Target: "slice",
				Predicate: query.NewPredicate("slice", query.Eq, "slice_hrn"),
			}},
		},
		{
			"array reference gives a one-to-many link",
			slice, node,
			[]schema.Relation{{
				Type: schema.Link1N, Name: "nodes", Source: "slice", Target: "node",
				Predicate: query.NewPredicate("nodes", query.Contains, "node_id"),
			}},
		},
		{
			"reverse array reference gives a backwards link",
			node, slice,
			[]schema.Relation{{
				Type: schema.Link1NBackwards, Name: "slice", Source: "node", Target: "slice",
				Predicate: query.NewPredicate("node_id", query.Contains, "nodes"),
			}},
		},
		{
			"local reference is joined flat",
			node, site,
			[]schema.Relation{{
				Type: schema.Link, Name: "site", Source: "node", Target: "site",
				Predicate: query.NewPredicate("site", query.Eq, "site_id"),
			}},
		},
		{
			"key referencing another table is a parent",
			nodeExt, node,
			[]schema.Relation{{
				Type: schema.Parent, Name: "node", Source: "node_ext", Target: "node",
				Predicate: query.NewPredicate("node", query.Eq, "node_id"),
			}},
		},
		{
			"table whose key references this one is a child",
			node, nodeExt,
			[]schema.Relation{{
				Type: schema.Child, Name: "node_ext", Source: "node", Target: "node_ext",
				Predicate: query.NewPredicate("node_id", query.Eq, "node"),
			}},
		},
		{"unrelated", agent, destination, nil},
		{"self", agent, agent, nil},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			relations := InferRelations(tc.u, tc.v)
			require.Len(t, relations, len(tc.expected))
			for i, r := range relations {
				require.Equal(t, tc.expected[i].Type, r.Type)
				require.Equal(t, tc.expected[i].Name, r.Name)
				require.Equal(t, tc.expected[i].Source, r.Source)
				require.Equal(t, tc.expected[i].Target, r.Target)
				require.True(t, tc.expected[i].Predicate.Equal(r.Predicate), "%s != %s", tc.expected[i].Predicate, r.Predicate)
			}
		})
	}
}
