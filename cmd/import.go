package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/qbank-cli/internal/answerkey"
	"github.com/sells-group/qbank-cli/internal/model"
)

var (
	importAsText    bool
	importAnswerKey string
)

var importCmd = &cobra.Command{
	Use:   "import <file|url>...",
	Short: "Import exam documents",
	Long:  "Imports local files, http(s) or ftp URLs and zip bundles of exam PDFs. Each document is extracted, structured, gated, deduplicated and persisted, then audited.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sources, err := newSourceLoader(importAsText).loadAll(ctx, args)
		if err != nil {
			return err
		}
		if err := applyAnswerKeyFlag(sources, importAnswerKey); err != nil {
			return err
		}

		env, err := initPipeline(ctx, "import")
		if err != nil {
			return err
		}
		defer env.Close()

		sum, err := env.Runner.Import(ctx, sources)
		if sum != nil {
			if pErr := printSummary(os.Stdout, sum); pErr != nil {
				return pErr
			}
		}
		return err
	},
}

func init() {
	importCmd.Flags().BoolVar(&importAsText, "text", false, "treat every file as pre-extracted text")
	importCmd.Flags().StringVar(&importAnswerKey, "answer-key", "", "official answer sheet (xlsx or csv) for a single document")
	rootCmd.AddCommand(importCmd)
}

// applyAnswerKeyFlag attaches an explicit answer sheet. It only applies to
// an import that resolves to exactly one document.
func applyAnswerKeyFlag(sources []model.Source, path string) error {
	if path == "" {
		return nil
	}
	if len(sources) != 1 {
		return eris.Errorf("--answer-key needs exactly one document, got %d", len(sources))
	}
	key, err := answerkey.Load(path)
	if err != nil {
		return err
	}
	sources[0].AnswerKey = key
	return nil
}
