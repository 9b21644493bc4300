package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dyike/CortexReport/config"
	"github.com/dyike/CortexReport/internal/models"
	"github.com/dyike/CortexReport/internal/utils"
)

const (
	version = "v1.0.0"

	defaultSymbols = "AAPL, MSFT, GOOGL"

	msgNoMarketData = "Could not fetch data for any of the provided symbols. Please try again later."
	msgReportFailed = "Error generating report. Please try again with different symbols or wait a few minutes before retrying."
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	return newRootCmd(newApp())
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cortexreport",
		Short: "CortexReport - AI-Powered Investment Reports",
		Long: `CortexReport compares recent stock performance, researches each company
and asks a team of LLM analysts for a ranked buy list.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown(cmd)
		},
	}

	rootCmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug mode")
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Configuration file path (YAML)")

	rootCmd.AddCommand(
		newReportCmd(a),
		newHistoryCmd(a),
		newChartCmd(a),
		newServeCmd(a),
		newScheduleCmd(a),
		newReportsCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

// newReportCmd creates the report command
func newReportCmd(a *app) *cobra.Command {
	var (
		out         string
		save        bool
		interactive bool
	)
	cmd := &cobra.Command{
		Use:   "report [SYMBOLS]",
		Short: "Generate an investment report for a list of symbols",
		Long: `Generate an investment report for comma or space separated ticker symbols.
Example: cortexreport report AAPL,MSFT,GOOGL --save`,
		RunE: func(cmd *cobra.Command, args []string) error {
			symbols := models.ParseSymbols(strings.Join(args, ","))
			if len(symbols) == 0 {
				if !interactive {
					symbols = models.ParseSymbols(defaultSymbols)
				} else {
					input, err := PromptForSymbols(defaultSymbols)
					if err != nil {
						return err
					}
					symbols = models.ParseSymbols(input)
				}
			}
			if len(symbols) == 0 {
				return models.ErrNoSymbols
			}

			if err := a.ensureMarketKey(interactive); err != nil {
				return err
			}
			return runReport(cmd, a, symbols, out, save)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "Directory to write the markdown report to")
	cmd.Flags().BoolVar(&save, "save", false, "Archive the report under the results directory")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", true, "Prompt for symbols and the API key when missing")
	return cmd
}

// ensureMarketKey asks for the Alpha Vantage key when none is configured.
func (a *app) ensureMarketKey(interactive bool) error {
	err := a.cfg.ValidateMarketKey()
	if !errors.Is(err, config.ErrMissingMarketAPIKey) || !interactive {
		return err
	}
	key, perr := PromptForAPIKey()
	if perr != nil {
		return perr
	}
	a.cfg.AlphaVantageAPIKey = strings.TrimSpace(key)
	return a.cfg.ValidateMarketKey()
}

func runReport(cmd *cobra.Command, a *app, symbols []string, out string, save bool) error {
	svc, err := a.service(cmd)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, headerStyle.Render("Generating report for "+strings.Join(symbols, ", ")))
	fmt.Fprintln(w, mutedStyle.Render("Market data calls are spaced to respect the API limits; this can take a few minutes."))

	report, err := svc.Generate(cmd.Context(), symbols)
	if err != nil {
		a.logger.Error("report failed", zap.Strings("symbols", symbols), zap.Error(err))
		msg := msgReportFailed
		if errors.Is(err, models.ErrNoMarketData) {
			msg = msgNoMarketData
		}
		fmt.Fprintln(cmd.ErrOrStderr(), errorStyle.Render(msg))
		return errReported
	}

	fmt.Fprintln(w, RenderReport(report))

	if save {
		path, err := svc.Archive().Save(report)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, completedStyle.Render("Saved "+path))
	}
	if out != "" {
		name := fmt.Sprintf("%s_%s.md", utils.SafeFileName(strings.Join(report.Symbols, "_")), report.StartedAt.UTC().Format("20060102T150405Z"))
		path, err := utils.WriteMarkdown(out, name, report.Markdown())
		if err != nil {
			return err
		}
		fmt.Fprintln(w, completedStyle.Render("Saved "+path))
	}
	return nil
}

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "CortexReport %s\n", version)
			fmt.Fprintln(cmd.OutOrStdout(), "AI-Powered Investment Reports")
		},
	}
}

// newConfigCmd creates the config command
func newConfigCmd(a *app) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), RenderConfig(a.cfg))
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.ValidateMarketKey(); err != nil {
				return err
			}
			if a.cfg.LLMAPIKey() == "" {
				return fmt.Errorf("no API key configured for LLM provider %q", a.cfg.LLMProvider)
			}
			fmt.Fprintln(cmd.OutOrStdout(), completedStyle.Render("Configuration is valid"))
			return nil
		},
	})

	return configCmd
}
