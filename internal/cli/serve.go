package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dyike/CortexReport/internal/models"
	"github.com/dyike/CortexReport/internal/scheduler"
	"github.com/dyike/CortexReport/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve reports, price history and charts over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = a.cfg.ServerAddr
			}
			srv, err := server.NewServer(server.Config{Addr: addr, Svc: svc, Logger: a.logger.Named("http")})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), headerStyle.Render("Listening on "+srv.Addr()))
			return srv.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to server_addr from config)")
	return cmd
}

func newScheduleCmd(a *app) *cobra.Command {
	var (
		spec   string
		runNow bool
	)
	cmd := &cobra.Command{
		Use:   "schedule SYMBOLS",
		Short: "Generate and archive reports on a cron schedule",
		Long: `Generate and archive a report on a cron schedule with a seconds field.
Example: cortexreport schedule --cron "0 30 16 * * 1-5" AAPL,MSFT`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbols := models.ParseSymbols(strings.Join(args, ","))
			if len(symbols) == 0 {
				return models.ErrNoSymbols
			}
			svc, err := a.service(cmd)
			if err != nil {
				return err
			}

			sched := scheduler.NewScheduler(cmd.Context(), svc, svc.Archive(), symbols, a.logger.Named("scheduler"))
			if err := sched.Register(spec); err != nil {
				return err
			}
			if runNow {
				path, err := sched.RunNow(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), completedStyle.Render("Saved "+path))
			}

			sched.Start()
			fmt.Fprintln(cmd.OutOrStdout(), headerStyle.Render(fmt.Sprintf("Scheduled %s on %q; press Ctrl+C to stop", strings.Join(symbols, ", "), spec)))
			<-cmd.Context().Done()
			sched.Stop()
			return nil
		},
	}
	cmd.Flags().StringVar(&spec, "cron", "", "Cron spec with seconds, e.g. \"0 30 16 * * 1-5\"")
	cmd.Flags().BoolVar(&runNow, "run-now", false, "Also generate a report immediately")
	_ = cmd.MarkFlagRequired("cron")
	return cmd
}
