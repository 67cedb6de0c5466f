// Package structure turns document text (or PDF bytes) into candidate
// questions. Strategies are interchangeable and composed with a Chain.
package structure

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/qbank-cli/internal/model"
)

// ErrRetryable marks a structuring run paused by provider quota or rate
// limiting. The document should be retried later.
var ErrRetryable = eris.New("structure: provider quota exhausted, retry later")

// Input is one document handed to a strategy.
type Input struct {
	Title string
	Text  string
	PDF   []byte
}

// HasText reports whether the input carries usable text.
func (in Input) HasText() bool {
	return strings.TrimSpace(in.Text) != ""
}

// Result is the output of one structuring pass.
type Result struct {
	Strategy     string
	Candidates   []model.CandidateQuestion
	FailedChunks int
	Usage        model.TokenUsage
	Retryable    bool
}

// Strategy extracts candidate questions from an input.
type Strategy interface {
	Name() string
	Available(in Input) bool
	Structure(ctx context.Context, in Input) (*Result, error)
}

// Chain tries strategies in order and returns the first non-empty result.
type Chain struct {
	strategies []Strategy
}

// NewChain creates a Chain. Strategies are tried in the order given.
func NewChain(strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies}
}

// Build assembles a Chain from strategy names. Unknown names are an error;
// names whose strategy is nil (not configured) are skipped.
func Build(names []string, registry map[string]Strategy) (*Chain, error) {
	var out []Strategy
	for _, n := range names {
		s, ok := registry[n]
		if !ok {
			return nil, eris.Errorf("structure: unknown strategy %q", n)
		}
		if s == nil {
			zap.L().Warn("structure: strategy not configured, skipping", zap.String("strategy", n))
			continue
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, eris.New("structure: no strategies configured")
	}
	return NewChain(out...), nil
}

// Name implements Strategy.
func (c *Chain) Name() string { return "chain" }

// Available reports whether any strategy can handle the input.
func (c *Chain) Available(in Input) bool {
	for _, s := range c.strategies {
		if s.Available(in) {
			return true
		}
	}
	return false
}

// Structure runs each available strategy until one yields candidates.
// A retryable failure stops the chain and is returned with whatever the
// strategy produced before pausing.
func (c *Chain) Structure(ctx context.Context, in Input) (*Result, error) {
	agg := &Result{Strategy: c.Name()}
	var lastErr error

	for _, s := range c.strategies {
		if !s.Available(in) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return agg, eris.Wrap(err, "structure: cancelled")
		}

		res, err := s.Structure(ctx, in)
		if res != nil {
			agg.Usage.Add(res.Usage)
			agg.FailedChunks += res.FailedChunks
		}

		if errors.Is(err, ErrRetryable) {
			agg.Retryable = true
			if res != nil {
				agg.Strategy = res.Strategy
				agg.Candidates = res.Candidates
			}
			return agg, err
		}
		if err == nil && res != nil && len(res.Candidates) > 0 {
			agg.Strategy = res.Strategy
			agg.Candidates = res.Candidates
			return agg, nil
		}

		if err != nil {
			lastErr = err
		}
		zap.L().Debug("structure: strategy yielded nothing, trying next",
			zap.String("strategy", s.Name()),
			zap.String("document", in.Title),
			zap.Error(err),
		)
	}

	if lastErr != nil {
		return agg, eris.Wrap(lastErr, "structure: all strategies failed")
	}
	return agg, nil
}
