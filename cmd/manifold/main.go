package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	log "github.com/manifoldrouter/manifold/internal/logging"
	"github.com/manifoldrouter/manifold/pkg/cmd"
)

func main() {
	rootCmd := cmd.NewRootCommand("manifold")
	cmd.RegisterRootFlags(rootCmd)

	rootCmd.AddCommand(
		cmd.NewQueryCommand(rootCmd.Use),
		cmd.NewExplainCommand(),
		cmd.NewMetadataCommand(),
		cmd.NewPlatformsCommand(),
		cmd.NewServeCommand(rootCmd.Use),
		cmd.NewManCommand(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("terminated with errors")
		}
		color.New(color.FgRed).Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
