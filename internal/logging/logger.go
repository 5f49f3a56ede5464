package logging

import (
	"context"

	"github.com/rs/zerolog"
)

var Logger zerolog.Logger

func init() {
	SetGlobalLogger(zerolog.Nop())
}

func SetGlobalLogger(logger zerolog.Logger) {
	Logger = logger
	zerolog.DefaultContextLogger = &Logger
}

func With() zerolog.Context { return Logger.With() }

func Err(err error) *zerolog.Event { return Logger.Err(err) }

func Trace() *zerolog.Event { return Logger.Trace() }

func Debug() *zerolog.Event { return Logger.Debug() }

func Info() *zerolog.Event { return Logger.Info() }

func Warn() *zerolog.Event { return Logger.Warn() }

func Error() *zerolog.Event { return Logger.Error() }

func WithLevel(level zerolog.Level) *zerolog.Event { return Logger.WithLevel(level) }

func Ctx(ctx context.Context) *zerolog.Logger { return zerolog.Ctx(ctx) }

// WithRequestID returns a context whose logger tags every event with the
// given request id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	logger := Ctx(ctx).With().Str("requestID", requestID).Logger()
	return logger.WithContext(ctx)
}

// WithObject returns a context whose logger tags every event with the object
// a query is about.
func WithObject(ctx context.Context, object string) context.Context {
	logger := Ctx(ctx).With().Str("object", object).Logger()
	return logger.WithContext(ctx)
}

// WithPlatform returns a context whose logger tags every event with the
// platform being queried.
func WithPlatform(ctx context.Context, platform string) context.Context {
	logger := Ctx(ctx).With().Str("platform", platform).Logger()
	return logger.WithContext(ctx)
}
