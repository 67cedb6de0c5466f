// Package quality holds the validation rules that decide whether a question
// is fit to store. The import gate and the auditor share them.
package quality

import (
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/qbank-cli/internal/config"
	"github.com/sells-group/qbank-cli/internal/model"
)

// Gate applies the rule set in a fixed order; the first failing rule wins.
type Gate struct {
	minStemLength    int
	similarityRatio  float64
	similarityMinLen int
	strictAnswerKey  bool
	defaultAnswer    string
}

// NewGate builds a Gate from the quality config. Zero values take the
// standard thresholds (30 runes, 80%, 10 runes, answer "A").
func NewGate(cfg config.QualityConfig) *Gate {
	g := &Gate{
		minStemLength:    cfg.MinStemLength,
		similarityRatio:  cfg.SimilarityRatio,
		similarityMinLen: cfg.SimilarityMinLen,
		strictAnswerKey:  cfg.StrictAnswerKey,
		defaultAnswer:    strings.ToUpper(strings.TrimSpace(cfg.DefaultAnswer)),
	}
	if g.minStemLength <= 0 {
		g.minStemLength = 30
	}
	if g.similarityRatio <= 0 || g.similarityRatio > 1 {
		g.similarityRatio = 0.8
	}
	if g.similarityMinLen <= 0 {
		g.similarityMinLen = 10
	}
	if model.LetterIndex(g.defaultAnswer) < 0 {
		g.defaultAnswer = "A"
	}
	return g
}

// Verdict is the gate's decision for one candidate.
type Verdict struct {
	Accepted bool
	Reason   model.ReasonCode
	// Candidate is the input with its answer key normalized when accepted.
	Candidate           model.CandidateQuestion
	AnswerKeyNormalized bool
}

// State maps the verdict onto the question lifecycle.
func (v Verdict) State() model.QuestionState {
	if v.Accepted {
		return model.StateAccepted
	}
	return model.StateRejected
}

// Evaluate runs every rule against a candidate.
func (g *Gate) Evaluate(c model.CandidateQuestion) Verdict {
	if reason, ok := g.Check(c.Stem, c.Options); !ok {
		return Verdict{Reason: reason, Candidate: c}
	}

	v := Verdict{Accepted: true, Candidate: c}
	letter := strings.ToUpper(strings.TrimSpace(c.CorrectOption))
	if idx := model.LetterIndex(letter); idx >= 0 && c.HasOption(idx) {
		v.Candidate.CorrectOption = letter
		return v
	}

	if g.strictAnswerKey {
		return Verdict{Reason: model.ReasonAnswerKeyInvalid, Candidate: c}
	}
	v.Candidate.CorrectOption = g.defaultAnswer
	v.AnswerKeyNormalized = true
	return v
}

// Check applies the structural rules (stem length, truncation, missing and
// similar alternatives). It returns the failing reason, or ok.
func (g *Gate) Check(stem string, options [5]string) (model.ReasonCode, bool) {
	stem = strings.TrimSpace(stem)
	if stem == "" || len([]rune(stem)) < g.minStemLength {
		return model.ReasonStemTooShort, false
	}
	if truncated(stem) {
		return model.ReasonStemTruncated, false
	}
	for i := 0; i < model.MandatoryOptions; i++ {
		if strings.TrimSpace(options[i]) == "" {
			return model.ReasonAlternativesMissing, false
		}
	}
	if g.anySimilar(options) {
		return model.ReasonAlternativesSimilar, false
	}
	return "", true
}

// truncated reports whether the stem starts mid-sentence. Leading
// punctuation, symbols and spaces are skipped ("...paciente", "– e o"), so
// the first letter or digit decides; a letter must be upper-case.
func truncated(stem string) bool {
	for _, r := range stem {
		switch {
		case unicode.IsDigit(r):
			return false
		case unicode.IsLetter(r):
			return !unicode.IsUpper(r) && !unicode.IsTitle(r)
		}
	}
	return true
}

// CheckFields applies Check to a stored row.
func (g *Gate) CheckFields(f model.QuestionFields) (model.ReasonCode, bool) {
	return g.Check(f.Stem, f.Options())
}

func (g *Gate) anySimilar(options [5]string) bool {
	normalized := make([]string, 0, len(options))
	for _, o := range options {
		if n := NormalizeOption(o); n != "" {
			normalized = append(normalized, n)
		}
	}
	for i := 0; i < len(normalized); i++ {
		for j := i + 1; j < len(normalized); j++ {
			if g.Similar(normalized[i], normalized[j]) {
				return true
			}
		}
	}
	return false
}

// Similar reports whether two normalized alternatives are too alike: equal,
// or the shorter one (longer than the minimum length) has its leading
// similarity-ratio share as a prefix of the longer.
func (g *Gate) Similar(a, b string) bool {
	if a == b {
		return true
	}
	short, long := []rune(a), []rune(b)
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) <= g.similarityMinLen {
		return false
	}
	n := int(math.Ceil(g.similarityRatio * float64(len(short))))
	return strings.HasPrefix(string(long), string(short[:n]))
}

// NormalizeOption lower-cases an alternative and strips surrounding space
// and trailing punctuation.
func NormalizeOption(s string) string {
	s = strings.ToLower(norm.NFC.String(s))
	return strings.TrimRightFunc(strings.TrimSpace(s), func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
}
