// Package commands is the ticktack command line: the TUI by default, plus
// one subcommand per tracker action for scripted use.
package commands

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Timborini/ticktacktoto-sub000/internal/errors"
	"github.com/Timborini/ticktacktoto-sub000/internal/tui"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// SetVersion sets the version information
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// options are the global flags shared by every command.
type options struct {
	configDir string
	shareID   string
	envFile   string
}

// NewRootCmd builds the full command tree.
func NewRootCmd() *cobra.Command {
	o := &options{}

	root := &cobra.Command{
		Use:   "ticktack",
		Short: "A ticket time tracker",
		Long: `ticktack tracks time against ticket ids. Start, pause and stop a timer,
annotate sessions with notes, filter and export your logs, and mark them
submitted once they are reported.

Run without a command to open the interactive terminal UI.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, o)
		},
	}

	root.PersistentFlags().StringVar(&o.configDir, "config", "", "config directory (default: the user config dir)")
	root.PersistentFlags().StringVar(&o.shareID, "share", "", "work on the shared log with this id")
	root.PersistentFlags().StringVar(&o.envFile, "env-file", ".env", "dotenv file with TICKTACK_* overrides")

	root.AddCommand(
		newStartCmd(o),
		newPauseCmd(o),
		newResumeCmd(o),
		newStopCmd(o),
		newStatusCmd(o),
		newLogsCmd(o),
		newEditCmd(o),
		newCloseCmd(o),
		newReopenCmd(o),
		newRenameCmd(o),
		newSubmitCmd(o, true),
		newSubmitCmd(o, false),
		newDeleteCmd(o),
		newExportCmd(o),
		newReportCmd(o),
		newShareCmd(o),
		newServeCmd(o),
	)
	return root
}

// Execute runs the root command and prints a readable error.
func Execute() error {
	return execute(context.Background(), NewRootCmd(), os.Stderr)
}

func execute(ctx context.Context, root *cobra.Command, stderr io.Writer) error {
	err := root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	var tErr *errors.TrackerError
	if stderrors.As(err, &tErr) {
		fmt.Fprintln(stderr, "Error:", errors.UserMessage(err))
	} else {
		fmt.Fprintln(stderr, "Error:", err)
	}
	return err
}

func runTUI(cmd *cobra.Command, o *options) error {
	e, err := openEnv(cmd, o, envOptions{tui: true, tolerant: true})
	if err != nil {
		return err
	}
	defer e.Close()
	return tui.Run(cmd.Context(), e.tr, e.prefs, e.exportDir())
}
