package commands

import (
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Timborini/ticktacktoto-sub000/internal/identity"
	"github.com/Timborini/ticktacktoto-sub000/internal/viewstate"
	"github.com/Timborini/ticktacktoto-sub000/internal/web"
)

func newShareCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "share",
		Short: "Create an id for a shared log",
		Long: `Create an id for a shared log. Everyone who runs ticktack with
--share <id> against the same store reads and writes the same log.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id := identity.NewShareID()
			q := url.Values{}
			q.Set(viewstate.ParamShareID, id)

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, id)
			fmt.Fprintf(out, "Open it with: ticktack --share %s\n", id)
			fmt.Fprintf(out, "Web view query: ?%s\n", q.Encode())
			return nil
		},
	}
}

func newServeCmd(o *options) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the log view, exports and report preview over HTTP",
		Long: `Serve the log view, timer control, exports, a live event stream and the
report preview over HTTP until interrupted.

Routes:
  GET  /api/view            log groups for the view query
  GET  /api/timer           timer state
  POST /api/timer/{action}  start, pause, resume or stop
  GET  /api/export          CSV or JSON download
  GET  /api/events          server-sent updates
  GET  /report              report preview`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			e, err := openEnv(cmd, o, envOptions{tolerant: true})
			if err != nil {
				return err
			}
			defer e.Close()

			if listen == "" {
				listen = e.cfg.Listen
			}
			srv := web.NewServer(e.tr, web.Options{
				Addr:    listen,
				Version: version,
				Logger:  e.log,
				Profile: e.prefs.Profile,
			})
			return web.Run(ctx, srv, e.log)
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "address to listen on (default from config)")
	return cmd
}
