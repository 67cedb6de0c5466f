// Package ocr turns raw PDF bytes into plain text.
package ocr

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/qbank-cli/internal/config"
)

// ErrNoText is returned when a document yields no readable text.
var ErrNoText = eris.New("ocr: no text extracted")

// Extractor extracts text content from a PDF.
type Extractor interface {
	Name() string
	ExtractText(ctx context.Context, pdf []byte) (string, error)
}

// NewExtractor creates an Extractor based on config.
func NewExtractor(cfg config.OCRConfig) (Extractor, error) {
	switch cfg.Provider {
	case "native":
		return NewNative(), nil
	case "local":
		return NewPdfToText(cfg.PdfToTextPath), nil
	case "mistral":
		if cfg.MistralKey == "" {
			return nil, eris.New("ocr: mistral provider requires ocr.mistral_api_key")
		}
		return NewMistralOCR(cfg.MistralKey, cfg.MistralModel), nil
	case "chain", "":
		extractors := []Extractor{NewNative(), NewPdfToText(cfg.PdfToTextPath)}
		if cfg.MistralKey != "" {
			extractors = append(extractors, NewMistralOCR(cfg.MistralKey, cfg.MistralModel))
		}
		return NewChain(extractors...), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}

// Chain tries extractors in order and returns the first non-blank text.
type Chain struct {
	extractors []Extractor
}

// NewChain creates a Chain over the given extractors.
func NewChain(extractors ...Extractor) *Chain {
	return &Chain{extractors: extractors}
}

// Name implements Extractor.
func (c *Chain) Name() string { return "chain" }

// ExtractText implements Extractor.
func (c *Chain) ExtractText(ctx context.Context, pdf []byte) (string, error) {
	var lastErr error
	for _, e := range c.extractors {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := e.ExtractText(ctx, pdf)
		if err == nil && strings.TrimSpace(text) != "" {
			return text, nil
		}
		if err == nil {
			err = ErrNoText
		}
		zap.L().Debug("ocr: extractor failed, trying next",
			zap.String("extractor", e.Name()),
			zap.Error(err),
		)
		lastErr = err
	}
	if lastErr == nil {
		return "", eris.New("ocr: no extractors configured")
	}
	return "", eris.Wrap(lastErr, "ocr: all extractors failed")
}
