// Package termination reports the error that stopped a command in a file,
// for supervisors such as Kubernetes that surface it as the reason of the
// termination.
package termination

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jzelinskie/cobrautil/v2"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"

	log "github.com/manifoldrouter/manifold/internal/logging"
	"github.com/manifoldrouter/manifold/pkg/routererrors"
)

const (
	terminationLogFlagName  = "termination-log-path"
	kubeTerminationLogLimit = 4096
)

// Report is the content of the termination log.
type Report struct {
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// PublishError wraps runFunc so that the error it returns is written to the
// termination log, when its path is set.
func PublishError(runFunc cobrautil.CobraRunFunc) cobrautil.CobraRunFunc {
	return func(cmd *cobra.Command, args []string) error {
		runFuncErr := runFunc(cmd, args)
		if runFuncErr == nil {
			return nil
		}

		ctx := context.Background()
		if cmd.Context() != nil {
			ctx = cmd.Context()
		}
		path := cobrautil.MustGetString(cmd, terminationLogFlagName)
		if path == "" {
			return runFuncErr
		}
		if err := Write(path, runFuncErr, time.Now()); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to report termination log")
		}
		return runFuncErr
	}
}

// Write writes the report of err to path. Details are dropped when the
// report would exceed the size Kubernetes keeps.
func Write(path string, err error, now time.Time) error {
	report := Report{
		Message:   err.Error(),
		Details:   routererrors.Details(err),
		Timestamp: now.UTC(),
	}
	delete(report.Details, "error")

	bytes, marshalErr := json.Marshal(report)
	if marshalErr != nil {
		return fmt.Errorf("unable to marshal termination log: %w", marshalErr)
	}
	if len(bytes) > kubeTerminationLogLimit {
		report.Details = nil
		if bytes, marshalErr = json.Marshal(report); marshalErr != nil {
			return fmt.Errorf("unable to marshal termination log: %w", marshalErr)
		}
	}

	if mkdirErr := os.MkdirAll(filepath.Dir(path), 0o700); mkdirErr != nil {
		return fmt.Errorf("unable to create directory for termination log: %w", mkdirErr)
	}
	if writeErr := os.WriteFile(path, bytes, 0o600); writeErr != nil {
		return fmt.Errorf("unable to write termination log: %w", writeErr)
	}
	return nil
}

// RegisterFlags registers the termination log flag.
func RegisterFlags(flagset *flag.FlagSet) {
	flagset.String(terminationLogFlagName,
		"",
		"path of the file receiving a JSON report of the error that stopped the command - disabled by default",
	)
}
