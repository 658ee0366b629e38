// Command sourcebook publishes sources, imports characters and migrates
// them between source versions.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dan-solli/sourcebook/pkg/sourcebook"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:     "sourcebook",
		Short:   "Manage versioned content sources and the characters built on them",
		Version: version,
		Long: `sourcebook stores immutable source snapshots (id@version) and characters
that point into them. Storage is configured through SOURCEBOOK_* environment
variables; see SOURCEBOOK_STORAGE_DRIVER and SOURCEBOOK_DB_PATH.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log operations to stderr")

	open := func(cmd *cobra.Command) (*sourcebook.Sourcebook, error) {
		cfg, err := sourcebook.LoadConfig()
		if err != nil {
			return nil, err
		}
		sb, err := sourcebook.New(cmd.Context(), cfg)
		if err != nil {
			return nil, err
		}
		if verbose {
			sb.WithLogger(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug})))
		}
		return sb, nil
	}

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "publish FILE",
			Short: "Publish a source snapshot from a JSON or YAML file",
			Args:  cobra.ExactArgs(1),
			RunE:  withSourcebook(open, runPublish),
		},
		&cobra.Command{
			Use:   "import FILE",
			Short: "Import a character from a JSON or YAML file",
			Args:  cobra.ExactArgs(1),
			RunE:  withSourcebook(open, runImport),
		},
		&cobra.Command{
			Use:   "characters",
			Short: "List stored characters",
			Args:  cobra.NoArgs,
			RunE:  withSourcebook(open, runCharacters),
		},
		&cobra.Command{
			Use:   "show ID",
			Short: "Print a stored character as YAML",
			Args:  cobra.ExactArgs(1),
			RunE:  withSourcebook(open, runShow),
		},
		&cobra.Command{
			Use:   "check ID",
			Short: "List references of a character that do not resolve",
			Args:  cobra.ExactArgs(1),
			RunE:  withSourcebook(open, runCheck),
		},
		&cobra.Command{
			Use:   "migrate ID OLD NEW",
			Short: "Move a character from source key OLD to NEW",
			Args:  cobra.ExactArgs(3),
			RunE:  withSourcebook(open, runMigrate),
		},
		&cobra.Command{
			Use:   "updates ID",
			Short: "Report newer versions of a character's dependencies",
			Args:  cobra.ExactArgs(1),
			RunE:  withSourcebook(open, runUpdates),
		},
		&cobra.Command{
			Use:   "groups",
			Short: "List known sources grouped into core and extra",
			Args:  cobra.NoArgs,
			RunE:  withSourcebook(open, runGroups),
		},
		&cobra.Command{
			Use:   "resolve REF CATEGORY",
			Short: "Resolve a qualified reference such as core@1.0.0:climb",
			Args:  cobra.ExactArgs(2),
			RunE:  withSourcebook(open, runResolve),
		},
	)
	return rootCmd
}

type runFunc func(ctx context.Context, cmd *cobra.Command, sb *sourcebook.Sourcebook, args []string) error

// withSourcebook opens a Sourcebook for the duration of one command.
func withSourcebook(open func(*cobra.Command) (*sourcebook.Sourcebook, error), run runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		sb, err := open(cmd)
		if err != nil {
			return err
		}
		runErr := run(cmd.Context(), cmd, sb, args)
		if err := sb.Close(); err != nil && runErr == nil {
			return fmt.Errorf("close: %w", err)
		}
		return runErr
	}
}
