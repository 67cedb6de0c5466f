package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/qbank-cli/internal/model"
	"github.com/sells-group/qbank-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect import and audit run history",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		kind, _ := cmd.Flags().GetString("kind")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status: model.RunStatus(status),
			Kind:   model.RunKind(kind),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if jsonOutput {
			return printJSON(os.Stdout, runs)
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}
		fmt.Fprintln(os.Stdout, runsTable(runs))
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a run and its summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		if jsonOutput || run.Summary == nil {
			return printJSON(os.Stdout, run)
		}
		fmt.Fprintf(os.Stdout, "%s run %s: %s\n", run.Kind, run.ID, run.Status)
		if run.Error != "" {
			fmt.Fprintf(os.Stdout, "error: %s\n", run.Error)
		}
		fmt.Fprintln(os.Stdout, summaryTable(run.Summary))
		return nil
	},
}

var runsRejectionsCmd = &cobra.Command{
	Use:   "rejections <run-id>",
	Short: "List the candidates a run rejected",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		recs, err := st.ListRejections(ctx, store.RejectionFilter{RunID: args[0], Limit: limit})
		if err != nil {
			return eris.Wrap(err, "runs rejections")
		}
		if jsonOutput {
			return printJSON(os.Stdout, recs)
		}
		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "No rejections recorded.")
			return nil
		}
		fmt.Fprintln(os.Stdout, rejectionsTable(recs))
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by status (running, complete, failed, cancelled)")
	runsListCmd.Flags().String("kind", "", "filter by kind (import, audit)")
	runsListCmd.Flags().Int("limit", 20, "max runs to show")
	runsRejectionsCmd.Flags().Int("limit", 200, "max rejections to show")

	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsRejectionsCmd)
	rootCmd.AddCommand(runsCmd)
}
