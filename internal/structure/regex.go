package structure

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/qbank-cli/internal/segment"
)

// RegexStrategy is the deterministic strategy built on the Segmenter.
type RegexStrategy struct {
	seg *segment.Segmenter
}

// NewRegexStrategy wraps a segmenter.
func NewRegexStrategy(seg *segment.Segmenter) *RegexStrategy {
	return &RegexStrategy{seg: seg}
}

// Name implements Strategy.
func (r *RegexStrategy) Name() string { return segment.SourceName }

// Available implements Strategy. Regex needs text.
func (r *RegexStrategy) Available(in Input) bool { return in.HasText() }

// Structure implements Strategy. It never fails; an unstructured text
// yields an empty result.
func (r *RegexStrategy) Structure(_ context.Context, in Input) (*Result, error) {
	out := r.seg.Run(in.Text)
	zap.L().Debug("structure: regex segmentation",
		zap.String("document", in.Title),
		zap.String("pattern", out.Pattern),
		zap.Int("blocks", out.Blocks),
		zap.Int("candidates", len(out.Candidates)),
		zap.Int("discarded_short", out.DiscardedShort),
		zap.Int("discarded_options", out.DiscardedOptions),
	)
	return &Result{Strategy: r.Name(), Candidates: out.Candidates}, nil
}
