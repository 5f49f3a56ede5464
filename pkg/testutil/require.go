// Package testutil implements various utilities to reduce boilerplate in unit
// tests a la testify.
package testutil

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/manifoldrouter/manifold/pkg/query"
)

// RequireEqualEmptyNil is a version of require.Equal, but considers nil
// slices/maps to be equal to empty slices/maps.
func RequireEqualEmptyNil(t *testing.T, expected, actual interface{}, msgAndArgs ...interface{}) {
	opts := []cmp.Option{cmpopts.EquateEmpty()}
	msgAndArgs = append(msgAndArgs, cmp.Diff(expected, actual, opts...))
	require.Truef(t, cmp.Equal(expected, actual, opts...), "Should be equal", msgAndArgs...)
}

// RequireRecordsMatch requires both lists to hold the same records, in any
// order. Numbers compare by value, whatever their Go type.
func RequireRecordsMatch(t *testing.T, expected, actual query.Records, msgAndArgs ...interface{}) {
	t.Helper()

	canonical := func(rs query.Records) []string {
		out := make([]string, len(rs))
		for i, r := range rs {
			out[i] = r.Canonical()
		}
		return out
	}
	opts := []cmp.Option{
		cmpopts.SortSlices(func(a, b string) bool { return a < b }),
		cmpopts.EquateEmpty(),
	}
	want, got := canonical(expected), canonical(actual)
	msgAndArgs = append(msgAndArgs, cmp.Diff(want, got, opts...))
	require.Truef(t, cmp.Equal(want, got, opts...), "Records should match", msgAndArgs...)
}
