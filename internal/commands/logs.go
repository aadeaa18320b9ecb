package commands

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/Timborini/ticktacktoto-sub000/internal/errors"
	"github.com/Timborini/ticktacktoto-sub000/internal/export"
	"github.com/Timborini/ticktacktoto-sub000/internal/format"
	"github.com/Timborini/ticktacktoto-sub000/internal/logs"
	"github.com/Timborini/ticktacktoto-sub000/internal/tracker"
	"github.com/Timborini/ticktacktoto-sub000/internal/viewstate"
)

// filterFlags are the history filters, spelled like the view query.
type filterFlags struct {
	status string
	search string
	from   string
	to     string
	date   string
}

func (f *filterFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.status, "status", "", "All, Open, Closed or Submitted")
	cmd.Flags().StringVarP(&f.search, "search", "s", "", "ticket id substring")
	cmd.Flags().StringVar(&f.from, "from", "", "first day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.to, "to", "", "last day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.date, "date", "", "a single day (YYYY-MM-DD)")
}

// view parses the flags through the query parser so the CLI and the web
// accept the same values. Invalid filters are dropped with a warning.
func (f *filterFlags) view(stderr io.Writer) viewstate.State {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set(viewstate.ParamStatus, f.status)
	set(viewstate.ParamSearch, f.search)
	set(viewstate.ParamDateStart, f.from)
	set(viewstate.ParamDateEnd, f.to)
	set(viewstate.ParamDate, f.date)

	vs, errs := viewstate.Parse(q)
	for _, err := range errs {
		fmt.Fprintln(stderr, "Warning:", errors.UserMessage(err))
	}
	return vs
}

// selectFlags name the sessions a bulk command acts on.
type selectFlags struct {
	tickets []string
}

func (s *selectFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&s.tickets, "ticket", "t", nil, "every finished session of this ticket (repeatable)")
}

func (s *selectFlags) selection(sessionIDs []string) export.Selection {
	sel := export.Selection{}
	if len(s.tickets) > 0 {
		sel.Tickets = make(map[string]bool, len(s.tickets))
		for _, t := range s.tickets {
			sel.Tickets[strings.TrimSpace(t)] = true
		}
	}
	if len(sessionIDs) > 0 {
		sel.Sessions = make(map[string]bool, len(sessionIDs))
		for _, id := range sessionIDs {
			sel.Sessions[id] = true
		}
	}
	return sel
}

func newLogsCmd(o *options) *cobra.Command {
	var (
		filters  filterFlags
		sessions bool
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "List finished sessions grouped by ticket",
		Long: `List finished sessions grouped by ticket, most recent first. By default
tickets whose every session is submitted are hidden; use --status Submitted
to see them.

Examples:
  ticktack logs
  ticktack logs --search proj --from 2024-03-01 --to 2024-03-31 --sessions`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, o, envOptions{})
			if err != nil {
				return err
			}
			defer e.Close()

			vs := filters.view(cmd.ErrOrStderr())
			result := e.tr.View(vs.Criteria(e.tr.Location()))
			printLogs(cmd.OutOrStdout(), result, e.tr.Location(), sessions)
			return nil
		},
	}
	filters.bind(cmd)
	cmd.Flags().BoolVar(&sessions, "sessions", false, "list the sessions of each ticket")
	return cmd
}

func printLogs(w io.Writer, result logs.Result, loc *time.Location, sessions bool) {
	if len(result.Groups) == 0 {
		fmt.Fprintln(w, "No sessions match these filters")
		return
	}

	t := table.New().
		Border(lipgloss.HiddenBorder()).
		Headers("TICKET", "TIME", "SESSIONS", "STATE")
	for _, g := range result.Groups {
		t.Row(g.TicketID, format.Duration(g.TotalMs), fmt.Sprint(len(g.Sessions)), groupState(g))
		if !sessions {
			continue
		}
		for _, s := range g.Sessions {
			t.Row("  "+s.ID, format.Duration(s.AccumulatedMs), format.DateTime(s.EndTime, loc), string(s.Status)+" "+clip(s.Note, 40))
		}
	}
	fmt.Fprintln(w, t.String())
	fmt.Fprintf(w, "Total: %s\n", format.Duration(result.TotalMs))
}

func groupState(g logs.Group) string {
	var parts []string
	if g.Closed {
		parts = append(parts, "closed")
	} else {
		parts = append(parts, "open")
	}
	if g.AllSubmitted() {
		parts = append(parts, "submitted")
	}
	return strings.Join(parts, ", ")
}

func clip(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func newEditCmd(o *options) *cobra.Command {
	var ticket, note, duration string
	cmd := &cobra.Command{
		Use:   "edit <session-id>",
		Short: "Change the ticket, note or duration of a session",
		Long: `Change the ticket, note or duration of a session. Only the flags given are
changed. Durations use HH:MM:SS.

Example:
  ticktack edit 01HV3K... --ticket PROJ-2 --duration 01:15:00`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var edit tracker.Edit
			if cmd.Flags().Changed("ticket") {
				edit.TicketID = &ticket
			}
			if cmd.Flags().Changed("note") {
				edit.Note = &note
			}
			if cmd.Flags().Changed("duration") {
				ms, err := format.ParseDuration(duration)
				if err != nil {
					return errors.NewInvalidRequest(fmt.Sprintf("invalid duration %q (want HH:MM:SS)", duration))
				}
				d := time.Duration(ms) * time.Millisecond
				edit.Duration = &d
			}
			if edit.TicketID == nil && edit.Note == nil && edit.Duration == nil {
				return errors.NewInvalidRequest("nothing to change; pass --ticket, --note or --duration")
			}

			e, err := openEnv(cmd, o, envOptions{})
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.tr.EditSession(cmd.Context(), args[0], edit); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated session %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&ticket, "ticket", "", "move the session to this ticket")
	cmd.Flags().StringVarP(&note, "note", "n", "", "replace the note")
	cmd.Flags().StringVarP(&duration, "duration", "d", "", "replace the duration (HH:MM:SS)")
	return cmd
}

func newCloseCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "close <ticket>",
		Short: "Close a ticket so no new time can be tracked on it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, o, envOptions{})
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.tr.CloseTicket(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Closed %s\n", args[0])
			return nil
		},
	}
}

func newReopenCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reopen <ticket>",
		Short: "Reopen a closed ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, o, envOptions{})
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.tr.ReopenTicket(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reopened %s\n", args[0])
			return nil
		},
	}
}

func newRenameCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <from> <to>",
		Short: "Move every session of a ticket to another ticket id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, o, envOptions{})
			if err != nil {
				return err
			}
			defer e.Close()

			n, err := e.tr.RenameTicket(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %s (%s)\n", args[0], args[1], plural(n, "session"))
			return nil
		},
	}
}

// newSubmitCmd builds submit, or unsubmit when submitted is false.
func newSubmitCmd(o *options, submitted bool) *cobra.Command {
	var sel selectFlags
	use, short, verb := "submit", "Mark finished sessions submitted", "Submitted"
	if !submitted {
		use, short, verb = "unsubmit", "Revert finished sessions to unsubmitted", "Unsubmitted"
	}
	cmd := &cobra.Command{
		Use:   use + " [session-id...]",
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, o, envOptions{})
			if err != nil {
				return err
			}
			defer e.Close()

			ids, err := selectedIDs(e, sel.selection(args))
			if err != nil {
				return err
			}
			n, err := e.tr.SetSubmitted(cmd.Context(), ids, submitted)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, plural(n, "session"))
			return nil
		},
	}
	sel.bind(cmd)
	return cmd
}

func newDeleteCmd(o *options) *cobra.Command {
	var sel selectFlags
	cmd := &cobra.Command{
		Use:   "delete [session-id...]",
		Short: "Delete finished sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, o, envOptions{})
			if err != nil {
				return err
			}
			defer e.Close()

			ids, err := selectedIDs(e, sel.selection(args))
			if err != nil {
				return err
			}
			n, err := e.tr.DeleteSessions(cmd.Context(), ids)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", plural(n, "session"))
			return nil
		},
	}
	sel.bind(cmd)
	return cmd
}

func selectedIDs(e *env, sel export.Selection) ([]string, error) {
	if sel.Empty() {
		return nil, errors.NewInvalidRequest("nothing selected; pass session ids or --ticket")
	}
	ids := e.tr.SelectedIDs(sel)
	if len(ids) == 0 {
		return nil, errors.NewInvalidRequest("no finished sessions match the selection")
	}
	return ids, nil
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
