package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/qbank-cli/internal/monitoring"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report document, question and embedding consistency",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("check"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		report := monitoring.NewChecker(st).Check(ctx)
		if jsonOutput {
			return printJSON(os.Stdout, report)
		}
		fmt.Fprintln(os.Stdout, reportTable(report))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
