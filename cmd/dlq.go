package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/qbank-cli/internal/model"
	"github.com/sells-group/qbank-cli/internal/resilience"
	"github.com/sells-group/qbank-cli/internal/store"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect and replay dead-lettered documents",
}

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead-lettered documents",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		retryable, _ := cmd.Flags().GetBool("retryable")
		limit, _ := cmd.Flags().GetInt("limit")
		entries, err := st.ListDLQ(ctx, resilience.DLQFilter{RetryableOnly: retryable, Limit: limit})
		if err != nil {
			return eris.Wrap(err, "dlq list")
		}
		if jsonOutput {
			return printJSON(os.Stdout, entries)
		}
		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "Dead-letter queue is empty.")
			return nil
		}
		fmt.Fprintln(os.Stdout, dlqTable(entries))
		return nil
	},
}

var dlqRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Replay retryable dead-lettered documents",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "import")
		if err != nil {
			return err
		}
		defer env.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		sum, err := retryDLQ(ctx, env.Store, newSourceLoader(false), limit, env.Runner.Import)
		if sum != nil {
			if pErr := printSummary(os.Stdout, sum); pErr != nil {
				return pErr
			}
		}
		return err
	},
}

func init() {
	dlqListCmd.Flags().Bool("retryable", false, "only entries with attempts left")
	dlqListCmd.Flags().Int("limit", 100, "max entries to show")
	dlqRetryCmd.Flags().Int("limit", 100, "max entries to replay")

	dlqCmd.AddCommand(dlqListCmd, dlqRetryCmd)
	rootCmd.AddCommand(dlqCmd)
}

// retryDLQ reloads retryable entries from their source reference and
// imports them again. Entries whose source is gone stay queued.
func retryDLQ(ctx context.Context, st store.Store, loader *sourceLoader, limit int, run importFunc) (*model.RunSummary, error) {
	entries, err := st.ListDLQ(ctx, resilience.DLQFilter{RetryableOnly: true, Limit: limit})
	if err != nil {
		return nil, eris.Wrap(err, "dlq: list retryable")
	}

	var sources []model.Source
	for _, e := range entries {
		if e.Path == "" {
			zap.L().Warn("dlq: entry has no source path, skipping", zap.String("dlq_id", e.ID), zap.String("file", e.Filename))
			continue
		}
		srcs, err := loader.load(ctx, e.Path)
		if err != nil {
			zap.L().Warn("dlq: source unreadable, skipping", zap.String("dlq_id", e.ID), zap.Error(err))
			continue
		}
		for _, src := range srcs {
			src.Filename = e.Filename
			src.DLQID = e.ID
			sources = append(sources, src)
		}
	}
	if len(sources) == 0 {
		zap.L().Info("dlq: nothing to replay")
		return nil, nil
	}
	return run(ctx, sources)
}
