package query_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/manifoldrouter/manifold/pkg/query"
)

func TestRecordGet(t *testing.T) {
	t.Parallel()

	r := query.Record{
		"hrn":   "ple.upmc.slice",
		"agent": query.Record{"agent_id": 1, "name": "a1"},
		"user": query.Records{
			{"email": "x@upmc.fr"},
			{"email": "y@upmc.fr"},
		},
	}

	tcs := []struct {
		name     string
		field    string
		expected any
		found    bool
	}{
		{"top level", "hrn", "ple.upmc.slice", true},
		{"nested record", "agent.name", "a1", true},
		{"nested list", "user.email", []any{"x@upmc.fr", "y@upmc.fr"}, true},
		{"missing", "nope", nil, false},
		{"missing nested", "agent.nope", nil, false},
		{"scalar has no subfield", "hrn.x", nil, false},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			v, ok := r.Get(tc.field)
			require.Equal(t, tc.found, ok)
			require.Equal(t, tc.expected, v)
		})
	}
}

func TestRecordProject(t *testing.T) {
	t.Parallel()

	r := query.Record{
		"traceroute_id": 7,
		"agent_id":      1,
		"agent":         query.Record{"agent_id": 1, "name": "a1", "ip": "10.0.0.1"},
		"user":          query.Records{{"email": "x", "hrn": "h"}, {"hrn": "k"}},
	}

	projected := r.Project(query.NewFieldNames("agent.name", "user.email", "traceroute_id"))
	expected := query.Record{
		"traceroute_id": 7,
		"agent":         query.Record{"name": "a1"},
		"user":          query.Records{{"email": "x"}, {}},
	}
	if diff := cmp.Diff(expected, projected); diff != "" {
		t.Fatalf("unexpected projection (-want +got):\n%s", diff)
	}

	require.Equal(t, r, r.Project(query.Star()))
	require.Empty(t, r.Project(query.NewFieldNames()))
}

func TestRecordMergeDoesNotAlias(t *testing.T) {
	t.Parallel()

	left := query.Record{"id": 1, "nested": query.Record{"x": 1}}
	right := query.Record{"name": "n"}

	merged := left.Merge(right)
	merged["nested"].(query.Record)["x"] = 2

	require.Equal(t, 1, left["nested"].(query.Record)["x"])
	require.Equal(t, "n", merged["name"])
}

func TestRecordKeyValue(t *testing.T) {
	t.Parallel()

	a := query.Record{"id": int64(1), "platform": "ple"}
	b := query.Record{"id": 1.0, "platform": "ple"}

	ka, ok := a.KeyValue([]string{"id", "platform"})
	require.True(t, ok)
	kb, ok := b.KeyValue([]string{"id", "platform"})
	require.True(t, ok)
	require.Equal(t, ka, kb)

	_, ok = a.KeyValue([]string{"id", "missing"})
	require.False(t, ok)
}

var fieldNameGen = rapid.SampledFrom([]string{"a", "b", "c", "a.x", "a.y", "b.x", "c.x.y", "a.x.z"})

func recordGen(depth int) *rapid.Generator[query.Record] {
	return rapid.Custom(func(t *rapid.T) query.Record {
		r := query.Record{}
		for _, name := range []string{"a", "b", "c", "x", "y", "z"} {
			if !rapid.Bool().Draw(t, "present_"+name) {
				continue
			}
			kind := rapid.IntRange(0, 2).Draw(t, "kind_"+name)
			switch {
			case kind == 1 && depth > 0:
				r[name] = recordGen(depth-1).Draw(t, "nested_"+name)
			case kind == 2 && depth > 0:
				r[name] = query.Records(rapid.SliceOfN(recordGen(depth-1), 0, 2).Draw(t, "list_"+name))
			default:
				r[name] = rapid.IntRange(0, 5).Draw(t, "value_"+name)
			}
		}
		return r
	})
}

func fieldsGen() *rapid.Generator[query.FieldNames] {
	return rapid.Custom(func(t *rapid.T) query.FieldNames {
		if rapid.IntRange(0, 9).Draw(t, "star") == 0 {
			return query.Star()
		}
		return query.NewFieldNames(rapid.SliceOfN(fieldNameGen, 0, 4).Draw(t, "names")...)
	})
}

func TestProjectionRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := recordGen(2).Draw(t, "record")
		f1 := fieldsGen().Draw(t, "f1")
		f2 := fieldsGen().Draw(t, "f2")

		twice := r.Project(f1).Project(f2)
		once := r.Project(f1.Intersect(f2))
		if !twice.Equal(once) {
			t.Fatalf("project(project(r, %s), %s) = %v, project(r, %s) = %v",
				f1, f2, twice, f1.Intersect(f2), once)
		}
	})
}
