package cmd

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/lthibault/jitterbug"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	log "github.com/manifoldrouter/manifold/internal/logging"
	"github.com/manifoldrouter/manifold/internal/router"
	"github.com/manifoldrouter/manifold/pkg/cmd/termination"
)

// ServeExample creates an example usage string with the provided program
// name.
func ServeExample(programName string) string {
	return fmt.Sprintf(`	%[1]s:
		%[3]s serve --config manifold.yaml --http-addr :8080

	%[2]s:
		curl -d '{"object": "node", "fields": ["hostname"]}' localhost:8080/v1/query
`,
		color.YellowString("Serve the platforms of a configuration"),
		color.GreenString("Forward a query"),
		programName,
	)
}

// ServeConfig holds the flags of the serve command.
type ServeConfig struct {
	HTTP            HTTPServerConfig
	Metrics         HTTPServerConfig
	RefreshInterval time.Duration

	// CorsAllowedOrigins enables CORS on the query server when not empty.
	CorsAllowedOrigins []string
}

// NewServeCommand returns the command serving the router over HTTP until
// its context is done.
func NewServeCommand(programName string) *cobra.Command {
	config := &ServeConfig{}
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "serve queries over HTTP",
		Example: ServeExample(programName),
		Args:    cobra.NoArgs,
		RunE: termination.PublishError(func(cmd *cobra.Command, _ []string) error {
			return withRouter(cmd, func(ctx context.Context, r *router.Router) error {
				return config.Run(ctx, r)
			})
		}),
	}

	RegisterHTTPServerFlags(cmd.Flags(), &config.HTTP, "http", "query", ":8080", true)
	RegisterHTTPServerFlags(cmd.Flags(), &config.Metrics, "metrics", "metrics", ":9090", true)
	cmd.Flags().DurationVar(&config.RefreshInterval, "refresh-interval", 0, "interval between announcement fetches; never refetched when 0")
	cmd.Flags().StringSliceVar(&config.CorsAllowedOrigins, "http-cors-allowed-origins", nil, "origins allowed to query the router from a browser")
	return cmd
}

// Run serves the router until the context is done.
func (c *ServeConfig) Run(ctx context.Context, r *router.Router) error {
	handler := QueryHandler(r)
	if len(c.CorsAllowedOrigins) > 0 {
		log.Info().Strs("origins", c.CorsAllowedOrigins).Msg("setting query server CORS policy")
		handler = cors.New(cors.Options{
			AllowedOrigins: c.CorsAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Content-Type"},
			Debug:          log.Debug().Enabled(),
		}).Handler(handler)
	}

	httpServer, err := c.HTTP.Complete(zerolog.InfoLevel, handler)
	if err != nil {
		return err
	}
	metricsServer, err := c.Metrics.Complete(zerolog.InfoLevel, MetricsHandler())
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(httpServer.ListenAndServe)
	g.Go(metricsServer.ListenAndServe)
	g.Go(func() error {
		<-ctx.Done()
		httpServer.Close()
		metricsServer.Close()
		return nil
	})
	if c.RefreshInterval > 0 {
		g.Go(func() error {
			refreshLoop(ctx, r, c.RefreshInterval)
			return nil
		})
	}

	return g.Wait()
}

// refreshLoop refetches the announcements every interval, plus up to as
// much jitter so that routers started together do not poll in step.
func refreshLoop(ctx context.Context, r *router.Router, interval time.Duration) {
	ticker := jitterbug.New(interval, jitterbug.Uniform{
		Source: rand.New(rand.NewSource(time.Now().UnixNano())),
		Min:    interval,
	})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				log.Ctx(ctx).Warn().Err(err).Msg("failed to refresh announcements")
			}
		}
	}
}
