package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Timborini/ticktacktoto-sub000/internal/format"
	"github.com/Timborini/ticktacktoto-sub000/internal/timer"
)

func newStartCmd(o *options) *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "start <ticket>",
		Short: "Start timing a ticket",
		Long: `Start timing a ticket. A session running on another ticket is stopped
first; a paused session on the same ticket is resumed.

Examples:
  ticktack start PROJ-1
  ticktack start PROJ-1 --note "pairing on the login bug"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, o, envOptions{})
			if err != nil {
				return err
			}
			defer e.Close()

			id, err := e.tr.Start(cmd.Context(), args[0], note)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Started %s (session %s)\n", args[0], id)
			return nil
		},
	}
	cmd.Flags().StringVarP(&note, "note", "n", "", "note for the session")
	return cmd
}

func newPauseCmd(o *options) *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "pause",
		Short: "Pause the running timer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, o, envOptions{})
			if err != nil {
				return err
			}
			defer e.Close()

			st := e.tr.Status()
			if err := e.tr.Pause(cmd.Context(), note); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Paused %s at %s\n", ticketOf(st), format.Duration(st.Elapsed.Milliseconds()))
			return nil
		},
	}
	cmd.Flags().StringVarP(&note, "note", "n", "", "update the session note")
	return cmd
}

func newResumeCmd(o *options) *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "resume [ticket]",
		Short: "Resume the paused timer",
		Long: `Resume the paused session. Naming a different ticket stops the paused
session and starts the new ticket instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, o, envOptions{})
			if err != nil {
				return err
			}
			defer e.Close()

			var ticket string
			if len(args) == 1 {
				ticket = args[0]
			} else {
				ticket = ticketOf(e.tr.Status())
			}
			if _, err := e.tr.Resume(cmd.Context(), ticket, note); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Resumed %s\n", ticket)
			return nil
		},
	}
	cmd.Flags().StringVarP(&note, "note", "n", "", "update the session note")
	return cmd
}

func newStopCmd(o *options) *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the timer and finalize the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, o, envOptions{})
			if err != nil {
				return err
			}
			defer e.Close()

			st := e.tr.Status()
			id, err := e.tr.Stop(cmd.Context(), note)
			if err != nil {
				return err
			}
			if id == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "No active session")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stopped %s after %s\n", ticketOf(st), format.Duration(st.Elapsed.Milliseconds()))
			return nil
		},
	}
	cmd.Flags().StringVarP(&note, "note", "n", "", "final note for the session")
	return cmd
}

func newStatusCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the timer state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, o, envOptions{})
			if err != nil {
				return err
			}
			defer e.Close()

			out := cmd.OutOrStdout()
			st := e.tr.Status()
			if st.State == timer.Idle || st.Session == nil {
				fmt.Fprintln(out, "No active session")
				return nil
			}
			fmt.Fprintf(out, "%s %s %s\n", st.State, st.Session.TicketID, format.Duration(st.Elapsed.Milliseconds()))
			if st.Session.Note != "" {
				fmt.Fprintf(out, "Note: %s\n", st.Session.Note)
			}
			return nil
		},
	}
}

func ticketOf(st timer.Status) string {
	if st.Session == nil {
		return ""
	}
	return st.Session.TicketID
}
