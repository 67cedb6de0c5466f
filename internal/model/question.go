package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// OptionLetters are the answer letters in positional order.
var OptionLetters = [5]string{"A", "B", "C", "D", "E"}

// MandatoryOptions is the number of alternatives every question must carry.
const MandatoryOptions = 4

// LetterIndex returns the 0-based position of an option letter, or -1.
func LetterIndex(letter string) int {
	l := strings.ToUpper(strings.TrimSpace(letter))
	for i, o := range OptionLetters {
		if o == l {
			return i
		}
	}
	return -1
}

// CandidateQuestion is an extracted, not yet validated question. It only
// lives in pipeline memory.
type CandidateQuestion struct {
	Number        int       `json:"number"`
	Stem          string    `json:"stem"`
	Options       [5]string `json:"options"`
	CorrectOption string    `json:"correct_option"`
	Area          string    `json:"area,omitempty"`
	Subarea       string    `json:"subarea,omitempty"`
	Topic         string    `json:"topic,omitempty"`
	Explanation   string    `json:"explanation,omitempty"`
	Source        string    `json:"source,omitempty"`
}

// HasOption reports whether the option at index i is non-blank.
func (c CandidateQuestion) HasOption(i int) bool {
	return i >= 0 && i < len(c.Options) && strings.TrimSpace(c.Options[i]) != ""
}

// Fields converts an accepted candidate into the persisted field set.
func (c CandidateQuestion) Fields() QuestionFields {
	f := QuestionFields{
		Stem:          strings.TrimSpace(c.Stem),
		OptionA:       strings.TrimSpace(c.Options[0]),
		OptionB:       strings.TrimSpace(c.Options[1]),
		OptionC:       strings.TrimSpace(c.Options[2]),
		OptionD:       strings.TrimSpace(c.Options[3]),
		CorrectOption: strings.ToUpper(strings.TrimSpace(c.CorrectOption)),
		Explanation:   strings.TrimSpace(c.Explanation),
		Area:          strings.TrimSpace(c.Area),
		Subarea:       strings.TrimSpace(c.Subarea),
		Topic:         strings.TrimSpace(c.Topic),
	}
	if e := strings.TrimSpace(c.Options[4]); e != "" {
		f.OptionE = &e
	}
	return f
}

// QuestionFields is the column set written for a stored question.
type QuestionFields struct {
	Stem          string  `json:"stem"`
	OptionA       string  `json:"option_a"`
	OptionB       string  `json:"option_b"`
	OptionC       string  `json:"option_c"`
	OptionD       string  `json:"option_d"`
	OptionE       *string `json:"option_e"`
	CorrectOption string  `json:"correct_option"`
	Explanation   string  `json:"explanation,omitempty"`
	Area          string  `json:"area,omitempty"`
	Subarea       string  `json:"subarea,omitempty"`
	Topic         string  `json:"topic,omitempty"`
}

// Options returns the alternatives in letter order; a nil option E is "".
func (f QuestionFields) Options() [5]string {
	var e string
	if f.OptionE != nil {
		e = *f.OptionE
	}
	return [5]string{f.OptionA, f.OptionB, f.OptionC, f.OptionD, e}
}

// StoredQuestion is a persisted question row.
type StoredQuestion struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	StemHash   string `json:"stem_hash"`
	QuestionFields
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// QuestionPatch is a partial update. Nil fields keep their stored value.
type QuestionPatch struct {
	Stem        *string `json:"stem,omitempty"`
	OptionA     *string `json:"option_a,omitempty"`
	OptionB     *string `json:"option_b,omitempty"`
	OptionC     *string `json:"option_c,omitempty"`
	OptionD     *string `json:"option_d,omitempty"`
	OptionE     *string `json:"option_e,omitempty"`
	Explanation *string `json:"explanation,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p QuestionPatch) Empty() bool {
	return p.Stem == nil && p.OptionA == nil && p.OptionB == nil && p.OptionC == nil &&
		p.OptionD == nil && p.OptionE == nil && p.Explanation == nil
}

// Apply returns a copy of f with the patch applied.
func (p QuestionPatch) Apply(f QuestionFields) QuestionFields {
	out := f
	if p.Stem != nil {
		out.Stem = *p.Stem
	}
	if p.OptionA != nil {
		out.OptionA = *p.OptionA
	}
	if p.OptionB != nil {
		out.OptionB = *p.OptionB
	}
	if p.OptionC != nil {
		out.OptionC = *p.OptionC
	}
	if p.OptionD != nil {
		out.OptionD = *p.OptionD
	}
	if p.OptionE != nil {
		e := *p.OptionE
		out.OptionE = &e
	}
	if p.Explanation != nil {
		out.Explanation = *p.Explanation
	}
	return out
}

var folder = cases.Fold()

// NormalizeStem produces the dedup form of a stem: NFKC, case-folded and
// with every whitespace run collapsed to a single space.
func NormalizeStem(stem string) string {
	s := folder.String(norm.NFKC.String(stem))
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// StemHash is the dedup key for a stem.
func StemHash(stem string) string {
	sum := sha256.Sum256([]byte(NormalizeStem(stem)))
	return hex.EncodeToString(sum[:])
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	InputTokens         int     `json:"input_tokens"`
	OutputTokens        int     `json:"output_tokens"`
	CacheCreationTokens int     `json:"cache_creation_tokens"`
	CacheReadTokens     int     `json:"cache_read_tokens"`
	Cost                float64 `json:"cost"`
}

// Add merges token usage from another instance.
func (t *TokenUsage) Add(other TokenUsage) {
	t.InputTokens += other.InputTokens
	t.OutputTokens += other.OutputTokens
	t.CacheCreationTokens += other.CacheCreationTokens
	t.CacheReadTokens += other.CacheReadTokens
	t.Cost += other.Cost
}
