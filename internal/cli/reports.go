package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newReportsCmd(a *app) *cobra.Command {
	reportsCmd := &cobra.Command{
		Use:   "reports",
		Short: "Browse archived reports",
	}

	var (
		cursor string
		limit  int
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List archived reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := a.archive()
			if err != nil {
				return err
			}
			page, err := archive.List(cursor, limit)
			if err != nil {
				return err
			}
			if len(page.Items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("No archived reports"))
				return nil
			}
			for _, item := range page.Items {
				fmt.Fprintln(cmd.OutOrStdout(), item.Path)
			}
			if page.HasMore {
				fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("more: --cursor "+page.NextCursor))
			}
			return nil
		},
	}
	listCmd.Flags().StringVar(&cursor, "cursor", "", "Resume listing after this path")
	listCmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of reports to list")

	showCmd := &cobra.Command{
		Use:   "show PATH",
		Short: "Print an archived report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := a.archive()
			if err != nil {
				return err
			}
			r, err := archive.Read(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), r.Content)
			return nil
		},
	}

	reportsCmd.AddCommand(listCmd, showCmd)
	return reportsCmd
}
