package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/manifoldrouter/manifold/pkg/cache"
	"github.com/manifoldrouter/manifold/pkg/query"
	"github.com/manifoldrouter/manifold/pkg/testutil"
)

const memoryPlatforms = `
router:
  planner:
    max_depth: 2
  result_cache:
    ttl: 30s
  plan_cache:
    kind: otter
    max_cost: 1MiB
platforms:
  - name: ple
    type: memory
    retries: 2
    rate_limit: 100
    burst: 4
    config:
      announcement: |
        class node {
            unsigned node_id;
            string   hostname;
            KEY(node_id);
            CAPABILITY(retrieve, join, selection, projection);
        };
      records:
        node:
          - {node_id: 1, hostname: planetlab1.inria.fr}
          - {node_id: 2, hostname: planetlab2.inria.fr}
  - name: omf
    type: memory
    disabled: true
    config:
      announcement: |
        class node {
            unsigned node_id;
            string   hostname;
            KEY(node_id);
            CAPABILITY(retrieve, join, selection, projection);
        };
`

func TestParse(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	f, err := Parse([]byte(memoryPlatforms))
	require.NoError(err)

	require.Equal(2, f.Router.Planner.MaxDepth)
	require.Equal(2, int(f.Router.Planner.Priorities.SpeculativeSubquery))
	require.Equal(30*time.Second, f.Router.ResultCache.TTL)
	require.Equal(time.Minute, f.Router.ResultCache.ExpiryInterval)
	require.Equal(ByteSize(1<<20), f.Router.PlanCache.MaxCost)
	require.Equal("1.0 MiB", f.Router.PlanCache.MaxCost.String())
	require.Equal(10*time.Second, f.Router.MetadataTimeout)
	require.Len(f.Platforms, 2)
	require.Equal(uint64(2), f.Platforms[0].Retries)
	require.InDelta(100.0, f.Platforms[0].RateLimit, 0.001)
	require.Equal(4, f.Platforms[0].Burst)
	require.True(f.Platforms[1].Disabled)

	rc, err := f.RouterConfig()
	require.NoError(err)
	require.Equal(cache.Otter, rc.PlanCache.Kind)
	require.Equal(int64(1<<20), rc.PlanCache.MaxCost)
	require.Equal(10*time.Minute, rc.PlanCache.DefaultTTL)
}

func TestDefaults(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	f, err := Parse([]byte("platforms: []\n"))
	require.NoError(err)
	require.Equal(3, f.Router.Planner.MaxDepth)
	require.Equal(5*time.Minute, f.Router.ResultCache.TTL)
	require.Equal("theine", f.Router.PlanCache.Kind)
	require.Equal(ByteSize(16<<20), f.Router.PlanCache.MaxCost)
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("MANIFOLD_TEST_DSN", "file:test.db")
	require := require.New(t)

	f, err := Parse([]byte(`
platforms:
  - name: ple
    type: sql
    config:
      dsn: ${MANIFOLD_TEST_DSN}
`))
	require.NoError(err)
	require.Equal("file:test.db", f.Platforms[0].Config["dsn"])
}

func TestInvalid(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		name     string
		contents string
		err      string
	}{
		{"unnamed platform", "platforms: [{type: memory}]", "has no name"},
		{"untyped platform", "platforms: [{name: ple}]", "has no type"},
		{"reserved name", "platforms: [{name: local, type: memory}]", "reserved"},
		{"duplicate platform", "platforms: [{name: ple, type: memory}, {name: ple, type: sql}]", "configured twice"},
		{"planner depth", "router: {planner: {max_depth: 0}}", "max depth"},
		{"cache kind", "router: {plan_cache: {kind: lru}}", "unknown plan cache kind"},
		{"cache size", "router: {plan_cache: {max_cost: lots}}", "line 1"},
		{"rate limit", "platforms: [{name: ple, type: memory, rate_limit: -1}]", "negative rate limit"},
		{"not yaml", "router: [", "yaml"},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tc.contents))
			require.ErrorContains(t, err, tc.err)
		})
	}
}

func TestNewRouter(t *testing.T) {
	defer goleak.VerifyNone(t, testutil.GoLeakIgnores()...)
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "manifold.yaml")
	require.NoError(os.WriteFile(path, []byte(memoryPlatforms), 0o600))

	f, err := Load(path)
	require.NoError(err)

	r, stack, err := f.NewRouter(DefaultRegistry())
	require.NoError(err)
	defer func() { require.NoError(stack.Close()) }()

	require.NoError(r.Refresh(context.Background()))
	require.Equal([]string{"ple", "omf"}, r.Platforms())

	result, err := r.Forward(context.Background(), query.Get("node").Select("hostname"))
	require.NoError(err)
	testutil.RequireRecordsMatch(t, query.Records{
		{"hostname": "planetlab1.inria.fr"},
		{"hostname": "planetlab2.inria.fr"},
	}, result.Records)

	_, _, err = (&File{Platforms: []Platform{{Name: "x", Type: "ldap"}}}).NewRouter(DefaultRegistry())
	require.Error(err)
}

func TestNewRouterAliases(t *testing.T) {
	defer goleak.VerifyNone(t, testutil.GoLeakIgnores()...)
	require := require.New(t)

	f, err := Parse([]byte(`
platforms:
  - name: ple
    type: memory
    aliases:
      node: {name: hostname}
    config:
      announcement: |
        class node {
            unsigned node_id;
            string   name;
            KEY(node_id);
            CAPABILITY(retrieve, join, selection, projection);
        };
      records:
        node:
          - {node_id: 1, name: planetlab1.inria.fr}
`))
	require.NoError(err)
	require.Equal(map[string]map[string]string{"node": {"name": "hostname"}}, f.Platforms[0].Aliases)

	r, stack, err := f.NewRouter(DefaultRegistry())
	require.NoError(err)
	defer func() { require.NoError(stack.Close()) }()

	require.NoError(r.Refresh(context.Background()))
	result, err := r.Forward(context.Background(), query.Get("node").Select("hostname"))
	require.NoError(err)
	testutil.RequireRecordsMatch(t, query.Records{{"hostname": "planetlab1.inria.fr"}}, result.Records)
}
