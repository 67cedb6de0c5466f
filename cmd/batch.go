package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/qbank-cli/internal/model"
)

var batchLimit int

var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Import every document in a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		unlock, err := acquireBatchLock(cfg.Batch.LockPath)
		if err != nil {
			return err
		}
		defer unlock()

		env, err := initPipeline(ctx, "import")
		if err != nil {
			return err
		}
		defer env.Close()

		sum, err := processBatch(ctx, args[0], batchLimit, env.Runner.Import)
		if sum != nil {
			if pErr := printSummary(os.Stdout, sum); pErr != nil {
				return pErr
			}
		}
		return err
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of documents to import (0 = all)")
	rootCmd.AddCommand(batchCmd)
}

// acquireBatchLock takes the single-instance batch lock.
func acquireBatchLock(path string) (func(), error) {
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, eris.Wrapf(err, "batch: acquire lock %s", path)
	}
	if !ok {
		return nil, eris.Errorf("batch: another batch holds %s", path)
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			zap.L().Warn("batch: failed to release lock", zap.Error(err))
		}
	}, nil
}

// importFunc runs one import over a set of sources.
type importFunc func(ctx context.Context, sources []model.Source) (*model.RunSummary, error)

// processBatch scans dir, applies limit, and imports the files as one run.
func processBatch(ctx context.Context, dir string, limit int, run importFunc) (*model.RunSummary, error) {
	paths, err := scanDir(dir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		zap.L().Info("no importable documents found", zap.String("dir", dir))
		return nil, nil
	}
	if limit > 0 && len(paths) > limit {
		paths = paths[:limit]
	}

	sources, err := newSourceLoader(false).loadAll(ctx, paths)
	if err != nil {
		return nil, err
	}

	zap.L().Info("processing batch", zap.String("dir", dir), zap.Int("documents", len(sources)))
	return run(ctx, sources)
}
