package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestContextLoggers(t *testing.T) {
	var buf bytes.Buffer
	SetGlobalLogger(zerolog.New(&buf))
	t.Cleanup(func() { SetGlobalLogger(zerolog.Nop()) })

	t.Run("request id", func(t *testing.T) {
		buf.Reset()
		ctx := WithRequestID(context.Background(), "abc")
		Ctx(ctx).Info().Msg("hello")
		require.Contains(t, buf.String(), `"requestID":"abc"`)
	})

	t.Run("platform nested in request", func(t *testing.T) {
		buf.Reset()
		ctx := WithPlatform(WithRequestID(context.Background(), "abc"), "ple")
		Ctx(ctx).Warn().Msg("slow gateway")
		require.Contains(t, buf.String(), `"requestID":"abc"`)
		require.Contains(t, buf.String(), `"platform":"ple"`)
	})

	t.Run("object of the query", func(t *testing.T) {
		buf.Reset()
		ctx := WithPlatform(WithObject(context.Background(), "node"), "ple")
		Ctx(ctx).Debug().Msg("forwarding")
		require.Contains(t, buf.String(), `"object":"node"`)
		require.Contains(t, buf.String(), `"platform":"ple"`)
	})

	t.Run("falls back to global logger", func(t *testing.T) {
		buf.Reset()
		Ctx(context.Background()).Info().Msg("global")
		require.Contains(t, buf.String(), "global")
	})
}
