// Package segment splits exam text into candidate questions using ordered
// regular-expression strategies. It is pure and deterministic.
package segment

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/qbank-cli/internal/model"
)

// SourceName tags candidates produced by the segmenter.
const SourceName = "regex"

type pattern struct {
	name string
	re   *regexp.Regexp
}

// questionPatterns are tried in order. Group 1 is the question number.
var questionPatterns = []pattern{
	// "Questão 12", "QUESTAO 12:", "Question 12 -"
	{"marker", regexp.MustCompile(`(?im)^[ \t]*(?:quest[ãa]o|question)[ \t]*(?:n[º°o.]*[ \t]*)?(\d{1,3})\b[ \t]*[:.)\-–]?`)},
	// "12. Paciente..."
	{"number-dot", regexp.MustCompile(`(?m)^[ \t]*(\d{1,3})[ \t]*\.[ \t]+`)},
	// "12) Paciente..." or "12 - Paciente..."
	{"number-paren", regexp.MustCompile(`(?m)^[ \t]*(\d{1,3})[ \t]*(?:\)|-|–)[ \t]+`)},
}

// optionPatterns are tried in order within a block. Group 1 is the letter.
var optionPatterns = []pattern{
	// "(A) texto", inline or at line start
	{"paren-letter", regexp.MustCompile(`(?:^|\s)\(([A-Ea-e])\)[ \t]*`)},
	// "A) texto"
	{"letter-paren", regexp.MustCompile(`(?m)^[ \t]*([A-Ea-e])\)[ \t]*`)},
	// "A. texto"
	{"letter-period", regexp.MustCompile(`(?m)^[ \t]*([A-Ea-e])\.[ \t]+`)},
}

// answerKeyPattern picks up an inline key such as "Gabarito: C".
var answerKeyPattern = regexp.MustCompile(`(?i:gabarito|resposta(?:[ \t]+correta)?)[ \t]*[:\-–][ \t]*\(?([A-E])\)?`)

// Segmenter holds the match thresholds.
type Segmenter struct {
	// MinQuestions is how many boundaries a question pattern must find
	// before it is trusted.
	MinQuestions int
	// MinStemLength discards blocks too short to hold a real question.
	MinStemLength int
}

// New creates a Segmenter. Non-positive values fall back to 3 and 30.
func New(minQuestions, minStemLength int) *Segmenter {
	if minQuestions <= 0 {
		minQuestions = 3
	}
	if minStemLength <= 0 {
		minStemLength = 30
	}
	return &Segmenter{MinQuestions: minQuestions, MinStemLength: minStemLength}
}

// Result describes one segmentation pass.
type Result struct {
	Candidates []model.CandidateQuestion
	// Pattern is the question pattern that matched, empty when none did.
	Pattern          string
	Blocks           int
	DiscardedShort   int
	DiscardedOptions int
}

// Segment returns the candidate questions found in text, or an empty slice.
func (s *Segmenter) Segment(text string) []model.CandidateQuestion {
	return s.Run(text).Candidates
}

// Run segments text and reports how it got there.
func (s *Segmenter) Run(text string) Result {
	var res Result
	if strings.TrimSpace(text) == "" {
		return res
	}

	var bounds [][]int
	for _, p := range questionPatterns {
		m := p.re.FindAllStringSubmatchIndex(text, -1)
		if len(m) >= s.MinQuestions {
			bounds = m
			res.Pattern = p.name
			break
		}
	}
	if bounds == nil {
		return res
	}

	res.Blocks = len(bounds)
	for i, m := range bounds {
		end := len(text)
		if i+1 < len(bounds) {
			end = bounds[i+1][0]
		}
		number, _ := strconv.Atoi(text[m[2]:m[3]])
		block := text[m[1]:end]

		if len([]rune(strings.TrimSpace(block))) < s.MinStemLength {
			res.DiscardedShort++
			continue
		}
		c, ok := splitBlock(block)
		if !ok {
			res.DiscardedOptions++
			continue
		}
		c.Number = number
		res.Candidates = append(res.Candidates, c)
	}
	return res
}

// splitBlock separates the stem from the alternatives of one block.
func splitBlock(block string) (model.CandidateQuestion, bool) {
	var c model.CandidateQuestion

	key := answerKeyPattern.FindStringSubmatchIndex(block)
	body := block
	if key != nil {
		c.CorrectOption = strings.ToUpper(block[key[2]:key[3]])
		body = block[:key[0]]
	}

	for _, p := range optionPatterns {
		opts := pickOptions(p.re.FindAllStringSubmatchIndex(body, -1), body)
		if len(opts) < model.MandatoryOptions {
			continue
		}
		c.Stem = collapse(body[:opts[0].start])
		for i, o := range opts {
			end := len(body)
			if i+1 < len(opts) {
				end = opts[i+1].start
			}
			c.Options[i] = collapse(body[o.textStart:end])
		}
		c.Source = SourceName
		return c, true
	}
	return c, false
}

type optionMatch struct {
	start     int
	textStart int
}

// pickOptions prefers an upper-case A, B, C... run, so a stem that lists
// its own items as "a) ... b) ..." keeps them and the real alternatives
// are found after it. Lower-case letters are used when no upper-case run
// is long enough.
func pickOptions(matches [][]int, body string) []optionMatch {
	var upper [][]int
	for _, m := range matches {
		if l := body[m[2]]; l >= 'A' && l <= 'E' {
			upper = append(upper, m)
		}
	}
	if opts := sequentialOptions(upper, body); len(opts) >= model.MandatoryOptions {
		return opts
	}
	return sequentialOptions(matches, body)
}

// sequentialOptions keeps matches whose letters run A, B, C... in order,
// skipping stray letters that appear inside stem or option text.
func sequentialOptions(matches [][]int, body string) []optionMatch {
	var out []optionMatch
	for _, m := range matches {
		if len(out) == len(model.OptionLetters) {
			break
		}
		letter := strings.ToUpper(body[m[2]:m[3]])
		if letter != model.OptionLetters[len(out)] {
			continue
		}
		out = append(out, optionMatch{start: m[0], textStart: m[1]})
	}
	return out
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
