// Package cmd holds the commands of the manifold command line.
package cmd

import (
	"context"
	"fmt"

	"github.com/go-logr/zerologr"
	"github.com/jzelinskie/cobrautil/v2"
	"github.com/jzelinskie/cobrautil/v2/cobraotel"
	"github.com/jzelinskie/cobrautil/v2/cobrazerolog"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	log "github.com/manifoldrouter/manifold/internal/logging"
	"github.com/manifoldrouter/manifold/internal/router"
	"github.com/manifoldrouter/manifold/pkg/cmd/termination"
	"github.com/manifoldrouter/manifold/pkg/config"
)

const (
	configFlag = "config"
	outputFlag = "output"
)

// RegisterRootFlags registers the flags every command shares.
func RegisterRootFlags(cmd *cobra.Command) {
	cobrazerolog.New().RegisterFlags(cmd.PersistentFlags())
	cobraotel.New(cmd.Use).RegisterFlags(cmd.PersistentFlags())
	termination.RegisterFlags(cmd.PersistentFlags())

	cmd.PersistentFlags().StringP(configFlag, "c", "manifold.yaml", "path of the configuration file of the router and its platforms")
	cmd.PersistentFlags().StringP(outputFlag, "o", OutputText, `format of the records ("text", "yaml")`)
}

// DefaultPreRunE sets up zerolog and OpenTelemetry flag handling for a
// command.
func DefaultPreRunE(programName string) cobrautil.CobraRunFunc {
	return cobrautil.CommandStack(
		cobrazerolog.New(
			cobrazerolog.WithTarget(func(logger zerolog.Logger) {
				log.SetGlobalLogger(logger)
			}),
		).RunE(),
		cobraotel.New(programName,
			cobraotel.WithLogger(zerologr.New(&log.Logger)),
		).RunE(),
	)
}

func NewRootCommand(programName string) *cobra.Command {
	return &cobra.Command{
		Use:   programName,
		Short: "A router federating the objects of several platforms",
		Long: "A router that answers queries on the objects announced by several platforms, " +
			"joining and merging their records",
		Example:           QueryExample(programName),
		PersistentPreRunE: DefaultPreRunE(programName),
		SilenceErrors:     true,
		SilenceUsage:      true,
	}
}

// withRouter loads the configuration, builds the router, fetches the
// announcements of its platforms and runs fn.
func withRouter(cmd *cobra.Command, fn func(ctx context.Context, r *router.Router) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	f, err := config.Load(cobrautil.MustGetString(cmd, configFlag))
	if err != nil {
		return err
	}
	r, stack, err := f.NewRouter(config.DefaultRegistry())
	if err != nil {
		return err
	}
	defer func() {
		if err := stack.Close(); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("failed to close platforms")
		}
	}()

	if err := r.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to fetch the announcements of the platforms: %w", err)
	}
	return fn(ctx, r)
}
