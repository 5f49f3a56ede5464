package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/manifoldrouter/manifold/internal/gateways/memory"
	"github.com/manifoldrouter/manifold/internal/planner"
	"github.com/manifoldrouter/manifold/internal/testutil"
	"github.com/manifoldrouter/manifold/pkg/gateway"
	"github.com/manifoldrouter/manifold/pkg/query"
	"github.com/manifoldrouter/manifold/pkg/schema"
	pkgtestutil "github.com/manifoldrouter/manifold/pkg/testutil"
)

func nodeTable(t *testing.T, platform string) *schema.Table {
	t.Helper()

	table := schema.NewTable(platform, "node")
	table.AddField(&schema.Field{Name: "node_id", Type: "int"})
	table.AddField(&schema.Field{Name: "hostname", Type: "string"})
	table.Capabilities = schema.Capabilities{Retrieve: true, Selection: true, Projection: true}
	require.NoError(t, table.InsertKey("node_id"))
	return table
}

func stub(t *testing.T, platform string, records ...query.Record) *testutil.StubGateway {
	return &testutil.StubGateway{
		Tables:  []*schema.Table{nodeTable(t, platform)},
		Records: map[string]query.Records{"node": records},
	}
}

// verifyNoLeaks checks for leaked goroutines once the test and every cleanup
// registered after it, such as closing the router, are done.
func verifyNoLeaks(t *testing.T) {
	t.Helper()
	t.Cleanup(func() { goleak.VerifyNone(t, pkgtestutil.GoLeakIgnores()...) })
}

func newRouter(t *testing.T, config *Config, platforms ...Platform) *Router {
	t.Helper()
	require := require.New(t)

	r, err := New(config, platforms...)
	require.NoError(err)
	t.Cleanup(r.Close)
	require.NoError(r.Refresh(context.Background()))
	return r
}

var (
	p1Nodes = []query.Record{
		{"node_id": 1, "hostname": "a"},
		{"node_id": 2, "hostname": "b"},
		{"node_id": 3, "hostname": "c"},
	}
	p2Nodes = []query.Record{
		{"node_id": 3, "hostname": "c"},
		{"node_id": 4, "hostname": "d"},
	}
)

func TestForwardAcrossPlatforms(t *testing.T) {
	verifyNoLeaks(t)

	r := newRouter(t, nil,
		Platform{Name: "p1", Gateway: stub(t, "p1", p1Nodes...)},
		Platform{Name: "p2", Gateway: stub(t, "p2", p2Nodes...)},
	)

	tcs := []struct {
		name     string
		query    query.Query
		opts     []ForwardOption
		expected query.Records
	}{
		{
			"union",
			query.Get("node").Select("hostname"),
			nil,
			query.Records{{"hostname": "a"}, {"hostname": "b"}, {"hostname": "c"}, {"hostname": "d"}},
		},
		{
			"selection",
			query.Get("node").Select("node_id").Where(query.NewPredicate("hostname", query.Eq, "d")),
			nil,
			query.Records{{"node_id": 4}},
		},
		{
			"restricted to one platform",
			query.Get("node").Select("hostname"),
			[]ForwardOption{WithPlatforms("p2")},
			query.Records{{"hostname": "c"}, {"hostname": "d"}},
		},
		{
			"namespaced object",
			query.Get("p1:node").Select("hostname"),
			nil,
			query.Records{{"hostname": "a"}, {"hostname": "b"}, {"hostname": "c"}},
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			require := require.New(t)

			result, err := r.Forward(context.Background(), tc.query, tc.opts...)
			require.NoError(err)
			require.Empty(result.Errors)
			pkgtestutil.RequireRecordsMatch(t, tc.expected, result.Records)
		})
	}
}

func TestResultCacheSharesFetches(t *testing.T) {
	verifyNoLeaks(t)
	require := require.New(t)

	p1 := stub(t, "p1", p1Nodes...)
	r := newRouter(t, nil, Platform{Name: "p1", Gateway: p1})
	ctx := context.Background()

	_, err := r.Forward(ctx, query.Get("node"))
	require.NoError(err)
	require.Len(p1.Queries(), 1)

	// Answered from the cached records of the broader query.
	result, err := r.Forward(ctx, query.Get("node").Select("hostname").Where(query.NewPredicate("node_id", query.Eq, 2)))
	require.NoError(err)
	pkgtestutil.RequireRecordsMatch(t, query.Records{{"hostname": "b"}}, result.Records)
	require.Len(p1.Queries(), 1)

	_, err = r.Forward(ctx, query.Get("node"), WithoutResultCache())
	require.NoError(err)
	require.Len(p1.Queries(), 2)
}

func TestDisabledResultCache(t *testing.T) {
	verifyNoLeaks(t)
	require := require.New(t)

	p1 := stub(t, "p1", p1Nodes...)
	r := newRouter(t, NewConfigWithOptionsAndDefaults(WithDisableResultCache(true)), Platform{Name: "p1", Gateway: p1})

	for range 2 {
		_, err := r.Forward(context.Background(), query.Get("node"))
		require.NoError(err)
	}
	require.Len(p1.Queries(), 2)
}

func TestResultCacheExpires(t *testing.T) {
	verifyNoLeaks(t)
	require := require.New(t)

	mock := clock.NewMock()
	p1 := stub(t, "p1", p1Nodes...)
	r := newRouter(t, NewConfigWithOptionsAndDefaults(
		WithClock(mock),
		WithResultCacheTTL(time.Minute),
		WithResultCacheExpiryInterval(time.Minute),
	), Platform{Name: "p1", Gateway: p1})

	_, err := r.Forward(context.Background(), query.Get("node"))
	require.NoError(err)
	require.Equal(1, r.results.Len())

	mock.Add(2 * time.Minute)
	require.Eventually(func() bool { return r.results.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestPartialFailure(t *testing.T) {
	verifyNoLeaks(t)
	require := require.New(t)

	failing := stub(t, "p2", p2Nodes...)
	failing.Err = errors.New("platform down")

	r := newRouter(t, nil,
		Platform{Name: "p1", Gateway: stub(t, "p1", p1Nodes...)},
		Platform{Name: "p2", Gateway: failing},
	)

	result, err := r.Forward(context.Background(), query.Get("node").Select("node_id"))
	require.NoError(err)
	require.NotEmpty(result.Errors)
	pkgtestutil.RequireRecordsMatch(t, query.Records{{"node_id": 1}, {"node_id": 2}, {"node_id": 3}}, result.Records)

	// Only the records of p1 are cached.
	require.Equal(1, r.results.Len())
}

func TestUnresolvedFields(t *testing.T) {
	verifyNoLeaks(t)
	require := require.New(t)

	r := newRouter(t, nil, Platform{Name: "p1", Gateway: stub(t, "p1", p1Nodes...)})

	result, err := r.Forward(context.Background(), query.Get("node").Select("hostname", "arch"))
	require.NoError(err)
	require.Equal([]string{"arch"}, result.Unresolved)
	require.Len(result.Errors, 1)

	var unresolved planner.UnresolvableQueryError
	require.True(errors.As(result.Errors[0], &unresolved))
	require.Equal([]string{"arch"}, unresolved.Fields())
	require.Len(result.Records, 3)
}

func TestQueryErrors(t *testing.T) {
	verifyNoLeaks(t)
	ctx := context.Background()

	t.Run("not ready", func(t *testing.T) {
		require := require.New(t)

		r, err := New(nil, Platform{Name: "p1", Gateway: stub(t, "p1")})
		require.NoError(err)
		defer r.Close()

		_, err = r.Forward(ctx, query.Get("node"))
		require.ErrorIs(err, ErrNotReady)

		var queryErr QueryError
		require.True(errors.As(err, &queryErr))
		require.Equal("node", queryErr.Query().Object)
	})

	r := newRouter(t, nil,
		Platform{Name: "p1", Gateway: stub(t, "p1", p1Nodes...)},
		Platform{Name: "p2", Gateway: stub(t, "p2", p2Nodes...)},
	)

	t.Run("unknown object", func(t *testing.T) {
		_, err := r.Forward(ctx, query.Get("site"))
		require.ErrorContains(t, err, "site")
	})

	t.Run("unknown platform", func(t *testing.T) {
		_, err := r.Forward(ctx, query.Get("node"), WithPlatforms("p3"))
		var unknown UnknownPlatformError
		require.True(t, errors.As(err, &unknown))
		require.Equal(t, "p3", unknown.Platform())
	})

	t.Run("invalid query", func(t *testing.T) {
		_, err := r.Forward(ctx, query.Query{Action: "merge", Object: "node"})
		require.ErrorContains(t, err, "unknown action")
	})

	t.Run("every platform disabled", func(t *testing.T) {
		require := require.New(t)

		require.NoError(r.DisablePlatform("p1"))
		require.NoError(r.DisablePlatform("p2"))
		_, err := r.Forward(ctx, query.Get("node"))
		require.ErrorIs(err, ErrNoPlatform)

		require.NoError(r.EnablePlatform("p2"))
		result, err := r.Forward(ctx, query.Get("node"))
		require.NoError(err)
		require.Len(result.Records, 2)

		require.NoError(r.EnablePlatform("p1"))
		require.Error(r.EnablePlatform("p3"))
	})
}

func TestWrites(t *testing.T) {
	verifyNoLeaks(t)
	require := require.New(t)
	ctx := context.Background()

	const announcement = `
class node {
    unsigned node_id;
    string   hostname;
    KEY(node_id);
    CAPABILITY(retrieve, join, selection, projection);
};
`
	p1, err := memory.NewFromConfig("p1", memory.Config{
		Announcement: announcement,
		Records:      map[string][]map[string]any{"node": {{"node_id": 1, "hostname": "a"}}},
	})
	require.NoError(err)
	p2, err := memory.NewFromConfig("p2", memory.Config{Announcement: announcement})
	require.NoError(err)

	r := newRouter(t, nil, Platform{Name: "p1", Gateway: p1}, Platform{Name: "p2", Gateway: p2})

	result, err := r.Forward(ctx, query.Get("node"))
	require.NoError(err)
	require.Len(result.Records, 1)

	create := query.Query{
		Action: query.ActionCreate,
		Object: "node",
		Fields: query.Star(),
		Params: map[string]any{"node_id": 2, "hostname": "b"},
	}
	_, err = r.Forward(ctx, create)
	var ambiguous AmbiguousWriteError
	require.True(errors.As(err, &ambiguous))
	require.Equal([]string{"p1", "p2"}, ambiguous.Platforms())

	create.Object = "p1:node"
	_, err = r.Forward(ctx, create)
	require.NoError(err)

	// The write dropped the cached records of p1.
	result, err = r.Forward(ctx, query.Get("node").Select("hostname"))
	require.NoError(err)
	pkgtestutil.RequireRecordsMatch(t, query.Records{{"hostname": "a"}, {"hostname": "b"}}, result.Records)

	// With p1 disabled, p2 is the only platform serving nodes.
	require.NoError(r.DisablePlatform("p1"))
	create.Object = "node"
	create.Params = map[string]any{"node_id": 3, "hostname": "c"}
	_, err = r.Forward(ctx, create)
	require.NoError(err)

	result, err = r.Forward(ctx, query.Get("node").Select("hostname"))
	require.NoError(err)
	pkgtestutil.RequireRecordsMatch(t, query.Records{{"hostname": "c"}}, result.Records)
}

func TestLocalObjects(t *testing.T) {
	verifyNoLeaks(t)
	require := require.New(t)
	ctx := context.Background()

	r := newRouter(t, nil,
		Platform{Name: "p1", Type: "stub", Gateway: stub(t, "p1", p1Nodes...)},
		Platform{Name: "p2", Type: "stub", Gateway: stub(t, "p2", p2Nodes...), Disabled: true},
	)

	result, err := r.Forward(ctx, query.Get("local:platform").Select("platform", "enabled"))
	require.NoError(err)
	pkgtestutil.RequireRecordsMatch(t, query.Records{
		{"platform": "p1", "enabled": true},
		{"platform": "p2", "enabled": false},
	}, result.Records)

	result, err = r.Forward(ctx, query.Get("local:object").Select("table").Where(query.NewPredicate("table", query.Eq, "node")))
	require.NoError(err)
	pkgtestutil.RequireRecordsMatch(t, query.Records{{"table": "node"}}, result.Records)

	_, err = r.Forward(ctx, query.Get("local:session"))
	require.Error(err)

	_, err = r.Forward(ctx, query.Query{Action: query.ActionDelete, Object: "local:platform", Fields: query.Star()})
	require.ErrorContains(err, "read-only")
}

func TestStreamStopsEarly(t *testing.T) {
	verifyNoLeaks(t)
	require := require.New(t)

	p1 := stub(t, "p1", p1Nodes...)
	p1.Delay = time.Millisecond
	r := newRouter(t, NewConfigWithOptionsAndDefaults(WithDisableResultCache(true)), Platform{Name: "p1", Gateway: p1})

	seen := 0
	_, err := r.ForwardStream(context.Background(), query.Get("node"), func(query.Record) bool {
		seen++
		return false
	})
	require.NoError(err)
	require.Equal(1, seen)
}

func TestExplain(t *testing.T) {
	verifyNoLeaks(t)
	require := require.New(t)

	r := newRouter(t, nil,
		Platform{Name: "p1", Gateway: stub(t, "p1", p1Nodes...)},
		Platform{Name: "p2", Gateway: stub(t, "p2", p2Nodes...)},
	)

	explain, err := r.Explain(context.Background(), query.Get("node"))
	require.NoError(err)
	require.Contains(explain, "From(p1")
	require.Contains(explain, "From(p2")

	explain, err = r.Explain(context.Background(), query.Get("node"), WithPlatforms("p1"))
	require.NoError(err)
	require.NotContains(explain, "From(p2")

	_, err = r.Explain(context.Background(), query.Get("local:object"))
	require.Error(err)
}

func TestPlanKey(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	q := query.Get("node").Select("hostname")
	key := newPlanKey(1, q, []string{"p1", "p2"})

	require.Equal(key, newPlanKey(1, query.Get("node").Select("hostname"), []string{"p1", "p2"}))
	require.NotEqual(key, newPlanKey(2, q, []string{"p1", "p2"}))
	require.NotEqual(key, newPlanKey(1, q, []string{"p1"}))
	require.NotEqual(key, newPlanKey(1, q.Select("node_id"), []string{"p1", "p2"}))
	require.NotEmpty(key.KeyString())
}

func TestNew(t *testing.T) {
	verifyNoLeaks(t)

	gw := stub(t, "p1")
	tcs := []struct {
		name      string
		config    *Config
		platforms []Platform
		err       string
	}{
		{"duplicate platform", nil, []Platform{{Name: "p1", Gateway: gw}, {Name: "p1", Gateway: gw}}, "configured twice"},
		{"reserved name", nil, []Platform{{Name: "local", Gateway: gw}}, "invalid platform name"},
		{"no gateway", nil, []Platform{{Name: "p1"}}, "has no gateway"},
		{"invalid planner", NewConfigWithOptionsAndDefaults(WithPlanner(planner.Config{})), nil, "max depth"},
		{"invalid timeout", NewConfigWithOptionsAndDefaults(WithMetadataTimeout(0)), nil, "metadata timeout"},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.config, tc.platforms...)
			require.ErrorContains(t, err, tc.err)
		})
	}
}

var _ gateway.Gateway = &cachedGateway{}

func TestCloseStopsBackgroundWork(t *testing.T) {
	require := require.New(t)

	r, err := New(NewConfigWithOptionsAndDefaults(
		WithResultCacheTTL(time.Minute),
		WithResultCacheExpiryInterval(time.Millisecond),
	), Platform{Name: "p1", Gateway: stub(t, "p1", p1Nodes...)})
	require.NoError(err)
	require.NoError(r.Refresh(context.Background()))
	_, err = r.Forward(context.Background(), query.Get("node"))
	require.NoError(err)

	r.Close()
	goleak.VerifyNone(t, pkgtestutil.GoLeakIgnores()...)
}

func TestPlatformAliases(t *testing.T) {
	verifyNoLeaks(t)
	require := require.New(t)
	ctx := context.Background()

	p2, err := memory.NewFromConfig("p2", memory.Config{
		Announcement: `
class node {
    unsigned node_id;
    string   name;
    KEY(node_id);
    CAPABILITY(retrieve, join, selection, projection);
};
`,
		Records: map[string][]map[string]any{"node": {{"node_id": 4, "name": "d"}}},
	})
	require.NoError(err)

	r := newRouter(t, nil,
		Platform{Name: "p1", Gateway: stub(t, "p1", p1Nodes...)},
		Platform{Name: "p2", Gateway: p2, Aliases: map[string]map[string]string{"node": {"name": "hostname"}}},
	)

	result, err := r.Forward(ctx, query.Get("node").Select("hostname").Where(query.NewPredicate("hostname", query.Eq, "d")))
	require.NoError(err)
	pkgtestutil.RequireRecordsMatch(t, query.Records{{"hostname": "d"}}, result.Records)

	created, err := r.Forward(ctx, query.Query{
		Action: query.ActionCreate,
		Object: "p2:node",
		Fields: query.Star(),
		Params: map[string]any{"node_id": 5, "hostname": "e"},
	})
	require.NoError(err)
	pkgtestutil.RequireRecordsMatch(t, query.Records{{"node_id": 5, "hostname": "e"}}, created.Records)

	// The memory platform rejects updates of fields it does not announce.
	_, err = r.Forward(ctx, query.Query{
		Action: query.ActionUpdate,
		Object: "p2:node",
		Fields: query.Star(),
		Filter: query.NewFilter(query.NewPredicate("hostname", query.Eq, "e")),
		Params: map[string]any{"hostname": "f"},
	})
	require.NoError(err)

	result, err = r.Forward(ctx, query.Get("p2:node").Select("node_id", "hostname"))
	require.NoError(err)
	pkgtestutil.RequireRecordsMatch(t, query.Records{
		{"node_id": 4, "hostname": "d"},
		{"node_id": 5, "hostname": "f"},
	}, result.Records)
}

func TestInvalidPlatformAliases(t *testing.T) {
	verifyNoLeaks(t)
	require := require.New(t)

	r, err := New(nil,
		Platform{Name: "p1", Gateway: stub(t, "p1", p1Nodes...)},
		Platform{Name: "p2", Gateway: stub(t, "p2", p2Nodes...), Aliases: map[string]map[string]string{"node": {"arch": "architecture"}}},
	)
	require.NoError(err)
	t.Cleanup(r.Close)

	// The platform is reported broken and the others keep serving.
	require.NoError(r.Refresh(context.Background()))
	result, err := r.Forward(context.Background(), query.Get("node").Select("hostname"))
	require.NoError(err)
	pkgtestutil.RequireRecordsMatch(t, query.Records{{"hostname": "a"}, {"hostname": "b"}, {"hostname": "c"}}, result.Records)

	platforms, err := r.Forward(context.Background(), query.Get("local:platform").Select("platform", "error"))
	require.NoError(err)
	require.Len(platforms.Records, 2)
	require.Nil(platforms.Records[0]["error"])
	require.Contains(platforms.Records[1]["error"], "arch")
}
