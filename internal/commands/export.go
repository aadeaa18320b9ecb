package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/Timborini/ticktacktoto-sub000/internal/errors"
	"github.com/Timborini/ticktacktoto-sub000/internal/export"
	"github.com/Timborini/ticktacktoto-sub000/internal/sanitize"
)

var writeClipboard = clipboard.WriteAll

func newExportCmd(o *options) *cobra.Command {
	var (
		filters   filterFlags
		sel       selectFlags
		sessions  []string
		scopeArg  string
		formatArg string
		decision  string
		outDir    string
		stdout    bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export finished sessions as CSV or JSON",
		Long: `Export finished sessions as CSV or JSON. The scope is the filtered view
(default), every finished session, or the sessions and tickets you select.

When the export contains unsubmitted sessions you are asked whether to mark
them submitted. Pass --decision to answer up front:
  submit   export and mark the exported sessions submitted
  export   export only
  cancel   do nothing

Examples:
  ticktack export --scope all --format json --decision export
  ticktack export --scope selected --ticket PROJ-1 --decision submit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := export.ParseScope(scopeArg)
			if err != nil {
				return err
			}
			f, err := export.ParseFormat(formatArg)
			if err != nil {
				return err
			}
			var d export.Decision
			if decision != "" {
				if d, err = export.ParseDecision(decision); err != nil {
					return err
				}
			}

			e, err := openEnv(cmd, o, envOptions{})
			if err != nil {
				return err
			}
			defer e.Close()

			selection := sel.selection(sessions)
			if scope == export.ScopeSelected && selection.Empty() {
				return errors.NewInvalidRequest("nothing selected; pass --ticket or --session")
			}
			vs := filters.view(cmd.ErrOrStderr())
			plan := e.tr.PlanExport(scope, f, vs.Criteria(e.tr.Location()), selection)
			if len(plan.Sessions) == 0 {
				return errors.NewInvalidRequest("no finished sessions to export")
			}

			if d == "" {
				d = export.ExportOnly
				if plan.NeedsConfirmation() {
					if d, err = confirmSubmit(cmd, plan); err != nil {
						return err
					}
				}
			}
			if d == export.Cancel {
				fmt.Fprintln(cmd.ErrOrStderr(), "Export cancelled")
				return nil
			}

			if stdout {
				return e.tr.Export(cmd.Context(), plan, d, cmd.OutOrStdout())
			}
			if outDir == "" {
				outDir = e.exportDir()
			}
			path, err := e.tr.SaveExport(cmd.Context(), plan, d, outDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %s to %s\n", plural(len(plan.Sessions), "session"), path)
			return nil
		},
	}
	filters.bind(cmd)
	sel.bind(cmd)
	cmd.Flags().StringSliceVar(&sessions, "session", nil, "a session id (repeatable)")
	cmd.Flags().StringVar(&scopeArg, "scope", string(export.ScopeFiltered), "selected, filtered or all")
	cmd.Flags().StringVarP(&formatArg, "format", "f", string(export.FormatCSV), "csv or json")
	cmd.Flags().StringVar(&decision, "decision", "", "submit, export or cancel")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "directory for the export file")
	cmd.Flags().BoolVar(&stdout, "stdout", false, "write the export to stdout instead of a file")
	return cmd
}

// confirmSubmit asks what to do with the unsubmitted sessions of plan. It
// needs a terminal; otherwise --decision is required.
func confirmSubmit(cmd *cobra.Command, plan export.Plan) (export.Decision, error) {
	if !isTerminal(cmd.InOrStdin()) {
		return "", errors.NewInvalidRequest(fmt.Sprintf(
			"%d of %d sessions are not submitted; pass --decision submit, export or cancel",
			plan.Unsubmitted(), len(plan.Sessions)))
	}

	choice := string(export.ExportOnly)
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(fmt.Sprintf("%d of %s not submitted yet", plan.Unsubmitted(), plural(len(plan.Sessions), "session"))).
				Options(
					huh.NewOption("Export & mark submitted", string(export.ExportAndSubmit)),
					huh.NewOption("Export only", string(export.ExportOnly)),
					huh.NewOption("Cancel", string(export.Cancel)),
				).
				Value(&choice),
		),
	)
	if err := form.Run(); err != nil {
		if err == huh.ErrUserAborted {
			return export.Cancel, nil
		}
		return "", err
	}
	return export.ParseDecision(choice)
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func newReportCmd(o *options) *cobra.Command {
	var (
		filters filterFlags
		tickets []string
		title   string
		role    string
		copyOut bool
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Draft a work summary prompt from your notes",
		Long: `Draft a work summary prompt from the notes of the filtered sessions. The
prompt names your job title and the audience from your profile; override
them with --title and --role.

Examples:
  ticktack report --from 2024-03-04 --to 2024-03-08 --copy
  ticktack report --ticket PROJ-1 --ticket PROJ-2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, o, envOptions{})
			if err != nil {
				return err
			}
			defer e.Close()

			profile := e.prefs.Profile()
			if t := sanitize.Title(title); t != "" {
				profile.Title = t
			}
			if r := sanitize.Title(role); r != "" {
				profile.Role = r
			}

			var ids []string
			for _, t := range tickets {
				if id := sanitize.TicketID(t); id != "" {
					ids = append(ids, id)
				}
			}

			vs := filters.view(cmd.ErrOrStderr())
			draft, err := e.tr.Report(vs.Criteria(e.tr.Location()), ids, profile)
			if err != nil {
				return err
			}

			if copyOut {
				if err := writeClipboard(draft); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Warning: could not copy to clipboard: %v\n", err)
				} else {
					fmt.Fprintln(cmd.ErrOrStderr(), "Report copied to clipboard!")
					return nil
				}
			}
			fmt.Fprint(cmd.OutOrStdout(), strings.TrimRight(draft, "\n")+"\n")
			return nil
		},
	}
	filters.bind(cmd)
	cmd.Flags().StringSliceVarP(&tickets, "ticket", "t", nil, "limit the report to this ticket (repeatable)")
	cmd.Flags().StringVar(&title, "title", "", "your job title")
	cmd.Flags().StringVar(&role, "role", "", "who the summary is for")
	cmd.Flags().BoolVar(&copyOut, "copy", false, "copy the report to the clipboard")
	return cmd
}
