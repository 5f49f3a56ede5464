package cmd

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/jzelinskie/cobrautil/v2"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"

	"github.com/manifoldrouter/manifold/internal/router"
	"github.com/manifoldrouter/manifold/pkg/cmd/termination"
	"github.com/manifoldrouter/manifold/pkg/query"
)

// QueryExample creates an example usage string with the provided program
// name.
func QueryExample(programName string) string {
	return fmt.Sprintf(`	%[1]s:
		%[3]s query get node --select hostname,arch --where "arch == x86"

	%[2]s:
		%[3]s query update ple:node --where "node_id == 12" --set "arch=arm"
`,
		color.YellowString("Fetch records"),
		color.GreenString("Write to one platform"),
		programName,
	)
}

func registerQueryFlags(flags *flag.FlagSet) {
	flags.StringSlice("select", nil, "fields to return, every field when empty")
	flags.StringArray("where", nil, `predicate the records must match, as in "hostname == planetlab1.inria.fr"; repeatable`)
	flags.StringSlice("platform", nil, "platforms the query may be forwarded to, every enabled platform when empty")
	flags.Bool("no-cache", false, "fetch every record from the platforms")
	flags.String("at", "", "timestamp of the records")
}

func specFromFlags(cmd *cobra.Command, action, object string) QuerySpec {
	spec := QuerySpec{
		Action:    action,
		Object:    object,
		Fields:    cobrautil.MustGetStringSlice(cmd, "select"),
		Where:     mustGetStringArray(cmd, "where"),
		Timestamp: cobrautil.MustGetString(cmd, "at"),
	}
	if cmd.Flags().Lookup("set") != nil {
		spec.Set = mustGetStringArray(cmd, "set")
	}
	return spec
}

func mustGetStringArray(cmd *cobra.Command, name string) []string {
	values, err := cmd.Flags().GetStringArray(name)
	if err != nil {
		panic("failed to find cobra flag: " + name)
	}
	return values
}

func forwardOptions(cmd *cobra.Command) []router.ForwardOption {
	var opts []router.ForwardOption
	if platforms := cobrautil.MustGetStringSlice(cmd, "platform"); len(platforms) > 0 {
		opts = append(opts, router.WithPlatforms(platforms...))
	}
	if cobrautil.MustGetBool(cmd, "no-cache") {
		opts = append(opts, router.WithoutResultCache())
	}
	return opts
}

// NewQueryCommand returns the command forwarding one query.
func NewQueryCommand(programName string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "query <action> <object>",
		Short:   "forward a query to the platforms and print its records",
		Example: QueryExample(programName),
		Args:    cobra.ExactArgs(2),
		RunE: termination.PublishError(func(cmd *cobra.Command, args []string) error {
			q, err := specFromFlags(cmd, args[0], args[1]).Build()
			if err != nil {
				return err
			}
			return withRouter(cmd, func(ctx context.Context, r *router.Router) error {
				result, err := r.Forward(ctx, q, forwardOptions(cmd)...)
				if err != nil {
					return err
				}
				PrintWarnings(cmd.ErrOrStderr(), result.Errors)
				return PrintRecords(cmd.OutOrStdout(), result.Records, cobrautil.MustGetString(cmd, outputFlag))
			})
		}),
	}
	registerQueryFlags(cmd.Flags())
	cmd.Flags().StringArray("set", nil, `value written by create and update, as in "arch=arm"; repeatable`)
	return cmd
}

// NewExplainCommand returns the command printing the plan of a query.
func NewExplainCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "explain <object>",
		Short: "print the plan fetching the records of a query",
		Args:  cobra.ExactArgs(1),
		RunE: termination.PublishError(func(cmd *cobra.Command, args []string) error {
			q, err := specFromFlags(cmd, string(query.ActionGet), args[0]).Build()
			if err != nil {
				return err
			}
			return withRouter(cmd, func(ctx context.Context, r *router.Router) error {
				explain, err := r.Explain(ctx, q, forwardOptions(cmd)...)
				if err != nil {
					return err
				}
				_, err = fmt.Fprint(cmd.OutOrStdout(), explain)
				return err
			})
		}),
	}
	registerQueryFlags(cmd.Flags())
	return cmd
}

// NewMetadataCommand returns the command printing the normalized schema.
func NewMetadataCommand() *cobra.Command {
	return newLocalCommand("metadata", "print the objects of the normalized schema", "local:object")
}

// NewPlatformsCommand returns the command printing the configured
// platforms.
func NewPlatformsCommand() *cobra.Command {
	return newLocalCommand("platforms", "print the configured platforms and their objects", "local:platform")
}

func newLocalCommand(use, short, object string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: termination.PublishError(func(cmd *cobra.Command, _ []string) error {
			return withRouter(cmd, func(ctx context.Context, r *router.Router) error {
				result, err := r.Forward(ctx, query.Get(object))
				if err != nil {
					return err
				}
				return PrintRecords(cmd.OutOrStdout(), result.Records, cobrautil.MustGetString(cmd, outputFlag))
			})
		}),
	}
}
