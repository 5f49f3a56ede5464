package query_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/manifoldrouter/manifold/pkg/query"
)

func TestQueryNamespace(t *testing.T) {
	t.Parallel()

	q := query.Get("ple:node")
	require.Equal(t, "ple", q.Namespace())
	require.Equal(t, "node", q.ObjectName())

	q = query.Get("node")
	require.Empty(t, q.Namespace())
	require.Equal(t, "node", q.ObjectName())
}

func TestQueryKeyIgnoresPredicateOrder(t *testing.T) {
	t.Parallel()

	p1 := query.NewPredicate("a", query.Eq, 1)
	p2 := query.NewPredicate("b", query.Eq, "x")
	q1 := query.Get("node").Select("a", "b").Where(p1, p2)
	q2 := query.Get("node").Select("b", "a").Where(p2, p1)
	require.Equal(t, q1.Key(), q2.Key())
	require.Equal(t, q1.Hash(), q2.Hash())
	require.NotEqual(t, q1.Hash(), q1.At("2026-01-01").Hash())
}

func TestIsSubsumedBy(t *testing.T) {
	t.Parallel()

	p1 := query.NewPredicate("country", query.Eq, "FR")
	p2 := query.NewPredicate("hostname", query.Neq, "x")
	broad := query.Get("node").Select("hostname", "country").Where(p1)

	tcs := []struct {
		name     string
		q        query.Query
		expected bool
	}{
		{"same", broad, true},
		{"fewer fields", broad.Select("hostname"), true},
		{"more fields", broad.Select("hostname", "country", "arch"), false},
		{"extra predicate on returned field", broad.Where(p2), true},
		{"extra predicate on absent field", broad.Where(query.NewPredicate("arch", query.Eq, "x86")), false},
		{"missing predicate", broad.WithFilter(query.NewFilter()), false},
		{"other object", broad.WithObject("site"), false},
		{"other timestamp", broad.At("2026-01-01"), false},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.expected, tc.q.IsSubsumedBy(broad))
		})
	}

	require.True(t, broad.IsSubsumedBy(broad.WithFields(query.Star())))
}

func queryGen() *rapid.Generator[query.Query] {
	fieldPool := []string{"a", "b", "c", "a.x", "a.y"}
	predPool := []query.Predicate{
		query.NewPredicate("a", query.Eq, 1),
		query.NewPredicate("b", query.Neq, "z"),
		query.NewPredicate("c", query.Gt, 3),
	}

	return rapid.Custom(func(t *rapid.T) query.Query {
		q := query.Get("node")
		if !rapid.Bool().Draw(t, "star") {
			q = q.Select(rapid.SliceOfDistinct(rapid.SampledFrom(fieldPool), rapid.ID).Draw(t, "fields")...)
		}
		return q.Where(rapid.SliceOfDistinct(rapid.SampledFrom(predPool), func(p query.Predicate) string {
			return p.String()
		}).Draw(t, "preds")...)
	})
}

func TestSubsumptionIsPartialOrder(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		a := queryGen().Draw(t, "a")
		b := queryGen().Draw(t, "b")
		c := queryGen().Draw(t, "c")

		if !a.IsSubsumedBy(a) {
			t.Fatalf("not reflexive: %s", a)
		}
		if a.IsSubsumedBy(b) && b.IsSubsumedBy(a) && !a.Equal(b) {
			t.Fatalf("not antisymmetric: %s / %s", a, b)
		}
		if a.IsSubsumedBy(b) && b.IsSubsumedBy(c) && !a.IsSubsumedBy(c) {
			t.Fatalf("not transitive: %s / %s / %s", a, b, c)
		}
	})
}
