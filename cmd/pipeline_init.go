package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/qbank-cli/internal/ocr"
	"github.com/sells-group/qbank-cli/internal/pipeline"
	"github.com/sells-group/qbank-cli/internal/segment"
	"github.com/sells-group/qbank-cli/internal/store"
	"github.com/sells-group/qbank-cli/internal/structure"
	anthropicpkg "github.com/sells-group/qbank-cli/pkg/anthropic"
)

// newAnthropicClient is swapped in tests.
var newAnthropicClient = func(key string) anthropicpkg.Client {
	return anthropicpkg.NewClient(key)
}

// pipelineEnv holds the store, pipeline and runner needed by the import,
// batch, audit, dlq and serve commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Runner   *pipeline.Runner
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline validates config for mode, opens the store, and wires the
// extractor, strategies, repairer and catalog into a Pipeline. Callers
// should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	env, err := buildPipeline(st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return env, nil
}

func buildPipeline(st store.Store) (*pipelineEnv, error) {
	extractor, err := ocr.NewExtractor(cfg.OCR)
	if err != nil {
		return nil, eris.Wrap(err, "init text extractor")
	}

	catalog, err := pipeline.LoadCatalog(cfg.Metadata.InstitutionsFile)
	if err != nil {
		return nil, eris.Wrap(err, "load institution catalog")
	}

	registry := map[string]structure.Strategy{
		"regex": structure.NewRegexStrategy(segment.New(cfg.Segment.MinQuestions, cfg.Quality.MinStemLength)),
		"llm":   nil,
	}
	var repairer structure.Repairer
	if cfg.Anthropic.Key != "" {
		llm := structure.NewLLMStrategy(newAnthropicClient(cfg.Anthropic.Key), cfg)
		registry["llm"] = llm
		repairer = llm
		zap.L().Info("llm strategy enabled", zap.String("model", cfg.Anthropic.Model))
	} else {
		zap.L().Debug("QBANK_ANTHROPIC_KEY not set, llm strategy and auto-fix disabled")
	}

	chain, err := structure.Build(cfg.Structure.Strategies, registry)
	if err != nil {
		return nil, eris.Wrap(err, "build structuring chain")
	}

	p := pipeline.New(cfg, st, extractor, chain, repairer, catalog)
	return &pipelineEnv{
		Store:    st,
		Pipeline: p,
		Runner:   pipeline.NewRunner(st, p, cfg.Batch.MaxConcurrentDocuments),
	}, nil
}
