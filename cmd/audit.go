package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/qbank-cli/internal/store"
)

var (
	auditDocuments []string
	auditPending   bool
)

// auditScanLimit bounds how many documents a full audit walks.
const auditScanLimit = 100000

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit stored questions and repair defects",
	Long:  "Re-applies the quality gate to stored questions, flags defective rows, and repairs them when auto-fix is enabled. --pending re-drives open flags only.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "audit")
		if err != nil {
			return err
		}
		defer env.Close()

		if auditPending {
			sum, err := env.Runner.RepairPending(ctx)
			if sum != nil {
				if pErr := printSummary(os.Stdout, sum); pErr != nil {
					return pErr
				}
			}
			return err
		}

		ids, err := auditTargets(ctx, env.Store, auditDocuments)
		if err != nil {
			return err
		}
		sum, err := env.Runner.Audit(ctx, ids)
		if sum != nil {
			if pErr := printSummary(os.Stdout, sum); pErr != nil {
				return pErr
			}
		}
		return err
	},
}

func init() {
	auditCmd.Flags().StringSliceVar(&auditDocuments, "document", nil, "document id to audit (repeatable, default all)")
	auditCmd.Flags().BoolVar(&auditPending, "pending", false, "repair open audit flags instead of re-auditing")
	rootCmd.AddCommand(auditCmd)
}

// auditTargets returns the requested document ids, or every stored
// document when none were given.
func auditTargets(ctx context.Context, st store.Store, requested []string) ([]string, error) {
	if len(requested) > 0 {
		for _, id := range requested {
			if _, err := st.GetDocument(ctx, id); err != nil {
				return nil, eris.Wrapf(err, "audit: document %s", id)
			}
		}
		return requested, nil
	}
	docs, err := st.ListDocuments(ctx, auditScanLimit)
	if err != nil {
		return nil, eris.Wrap(err, "audit: list documents")
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids, nil
}
