package gateway_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/time/rate"

	"github.com/manifoldrouter/manifold/internal/testutil"
	"github.com/manifoldrouter/manifold/pkg/gateway"
	"github.com/manifoldrouter/manifold/pkg/query"
)

func drain(t *testing.T, gw gateway.Gateway, q query.Query) (query.Records, query.Packet) {
	t.Helper()

	out := make(chan query.Packet, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		gw.Start(context.Background(), q, out)
	}()

	var records query.Records
	for p := range out {
		if p.IsTerminal() {
			<-done
			return records, p
		}
		records = append(records, p.Record)
	}
	t.Fatal("unreachable")
	return nil, query.Packet{}
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	registry := gateway.Registry{}
	registry.Register("stub", func(platform string, config map[string]any) (gateway.Gateway, error) {
		if platform == "" {
			return nil, errors.New("no platform")
		}
		return &testutil.StubGateway{}, nil
	})
	require.Equal([]string{"stub"}, registry.Types())

	gw, err := registry.New("stub", "ple", nil)
	require.NoError(err)
	require.NotNil(gw)

	_, err = registry.New("stub", "", nil)
	require.Error(err)

	_, err = registry.New("xmlrpc", "ple", nil)
	require.ErrorContains(err, "unknown gateway type `xmlrpc`")

	set := gateway.Set{"ple": gw}
	_, ok := set.Gateway("ple")
	require.True(ok)
	_, ok = set.Gateway("omf")
	require.False(ok)
}

func TestNewError(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	q := query.Get("node")
	err := gateway.NewError("ple", q, cause)

	var gwErr gateway.Error
	require.True(t, errors.As(err, &gwErr))
	require.Equal(t, "ple", gwErr.Platform())
	require.True(t, q.Equal(gwErr.Query()))
	require.ErrorIs(t, err, cause)
	require.Equal(t, "ple", gwErr.DetailsMetadata()["platform"])

	require.Equal(t, err, gateway.NewError("omf", q, err))
}

func constantBackOff(retries uint64) func() backoff.BackOff {
	return func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), retries)
	}
}

func TestWithRetry(t *testing.T) {
	defer goleak.VerifyNone(t)

	records := map[string]query.Records{"node": {{"node_id": 1}, {"node_id": 2}}}
	errDown := errors.New("platform down")

	tcs := []struct {
		name             string
		failures         int
		retries          uint64
		expectedRecords  int
		expectedKind     query.PacketKind
		expectedAttempts int
	}{
		{"no failure", 0, 3, 2, query.LastPacket, 1},
		{"recovers", 2, 3, 2, query.LastPacket, 3},
		{"gives up", 5, 2, 0, query.ErrorPacket, 3},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			failing := &testutil.FailingGateway{
				Gateway:  &testutil.StubGateway{Records: records},
				Failures: tc.failures,
				Err:      errDown,
			}

			got, terminal := drain(t, gateway.WithRetry(failing, constantBackOff(tc.retries)), query.Get("node"))
			require.Len(t, got, tc.expectedRecords)
			require.Equal(t, tc.expectedKind, terminal.Kind)
			require.Equal(t, tc.expectedAttempts, failing.Attempts())
			if tc.expectedKind == query.ErrorPacket {
				require.ErrorIs(t, terminal.Err, errDown)
			}
		})
	}
}

func TestWithRetryKeepsPartialFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	stub := &testutil.StubGateway{
		Records:   map[string]query.Records{"node": {{"node_id": 1}, {"node_id": 2}}},
		Err:       errors.New("timeout"),
		FailAfter: 1,
	}

	got, terminal := drain(t, gateway.WithRetry(stub, constantBackOff(3)), query.Get("node"))
	require.Len(t, got, 1)
	require.Equal(t, query.ErrorPacket, terminal.Kind)
	require.Len(t, stub.Queries(), 1)
}

func TestWithRateLimit(t *testing.T) {
	defer goleak.VerifyNone(t)
	require := require.New(t)

	stub := &testutil.StubGateway{Records: map[string]query.Records{"node": {{"node_id": 1}}}}
	limited := gateway.WithRateLimit(stub, "ple", rate.NewLimiter(rate.Every(time.Hour), 1))

	got, terminal := drain(t, limited, query.Get("node"))
	require.Len(got, 1)
	require.Equal(query.LastPacket, terminal.Kind)

	// The burst is spent: the next query cannot start before its deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	out := make(chan query.Packet, 1)
	limited.Start(ctx, query.Get("node"), out)
	p := <-out
	require.Equal(query.ErrorPacket, p.Kind)

	var gwErr gateway.Error
	require.ErrorAs(p.Err, &gwErr)
	require.Equal("ple", gwErr.Platform())
	require.Len(stub.Queries(), 1)
}
