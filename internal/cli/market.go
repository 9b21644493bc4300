package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dyike/CortexReport/internal/chart"
	"github.com/dyike/CortexReport/internal/models"
	"github.com/dyike/CortexReport/internal/service"
)

func newHistoryCmd(a *app) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "history SYMBOL",
		Short: "Show recent daily prices for a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.ValidateMarketKey(); err != nil {
				return err
			}
			svc, err := a.service(cmd, service.WithoutReports())
			if err != nil {
				return err
			}
			h, err := svc.History(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, models.ErrNoData) {
					return fmt.Errorf("no price data for %s", models.NormalizeSymbol(args[0]))
				}
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), RenderHistory(h, days))
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 10, "Number of most recent trading days to show")
	return cmd
}

func newChartCmd(a *app) *cobra.Command {
	var (
		out    string
		sma    int
		source string
	)
	cmd := &cobra.Command{
		Use:   "chart SYMBOLS",
		Short: "Render an HTML line chart of closing prices",
		Long: `Render closing prices for one or more symbols as an interactive HTML chart.
Example: cortexreport chart AAPL,MSFT --sma 20 --out chart.html`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbols := models.ParseSymbols(strings.Join(args, ","))
			if len(symbols) == 0 {
				return models.ErrNoSymbols
			}
			svc, err := a.service(cmd, service.WithoutReports())
			if err != nil {
				return err
			}
			src, err := svc.HistorySource(source)
			if err != nil {
				return err
			}

			histories, warnings := service.Histories(cmd.Context(), src, symbols)
			for _, w := range warnings {
				a.logger.Warn("chart symbol skipped", zap.String("symbol", w.Symbol), zap.String("reason", w.Message))
				fmt.Fprintln(cmd.ErrOrStderr(), warningStyle.Render(w.String()))
			}
			if err := cmd.Context().Err(); err != nil {
				return err
			}
			if len(histories) == 0 {
				return fmt.Errorf("no price data for %s", strings.Join(symbols, ", "))
			}

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create %s: %w", out, err)
			}
			defer f.Close()

			err = chart.RenderLine(f, histories, chart.Options{
				Title:     "Closing prices",
				Subtitle:  strings.Join(symbols, ", "),
				SMAPeriod: sma,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), completedStyle.Render("Chart written to "+out))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "chart.html", "Output HTML file")
	cmd.Flags().IntVar(&sma, "sma", 0, "Overlay a simple moving average of N days")
	cmd.Flags().StringVar(&source, "source", service.SourceAlphaVantage, "History source: alphavantage or yahoo")
	return cmd
}
