package structure

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"github.com/sells-group/qbank-cli/internal/model"
)

const questionSchemaJSON = `{
  "type": "object",
  "required": ["number", "stem", "option_a", "option_b", "option_c", "option_d"],
  "properties": {
    "number": {"type": "integer", "minimum": 0},
    "stem": {"type": "string"},
    "option_a": {"type": "string"},
    "option_b": {"type": "string"},
    "option_c": {"type": "string"},
    "option_d": {"type": "string"},
    "option_e": {"type": ["string", "null"]},
    "correct_option": {"type": ["string", "null"]},
    "area": {"type": ["string", "null"]},
    "subarea": {"type": ["string", "null"]},
    "topic": {"type": ["string", "null"]},
    "explanation": {"type": ["string", "null"]}
  }
}`

const repairSchemaJSON = `{
  "type": "object",
  "required": ["index"],
  "properties": {
    "index": {"type": "integer", "minimum": 0},
    "stem": {"type": ["string", "null"]},
    "option_a": {"type": ["string", "null"]},
    "option_b": {"type": ["string", "null"]},
    "option_c": {"type": ["string", "null"]},
    "option_d": {"type": ["string", "null"]},
    "option_e": {"type": ["string", "null"]},
    "correct_option": {"type": ["string", "null"]},
    "explanation": {"type": ["string", "null"]}
  }
}`

var (
	questionSchema = mustCompile("question.json", questionSchemaJSON)
	repairSchema   = mustCompile("repair.json", repairSchemaJSON)
)

func mustCompile(name, schema string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(schema)); err != nil {
		panic(err)
	}
	return compiler.MustCompile(name)
}

// llmQuestion is the item shape the extraction prompt asks for.
type llmQuestion struct {
	Number        int     `json:"number"`
	Stem          string  `json:"stem"`
	OptionA       string  `json:"option_a"`
	OptionB       string  `json:"option_b"`
	OptionC       string  `json:"option_c"`
	OptionD       string  `json:"option_d"`
	OptionE       *string `json:"option_e"`
	CorrectOption *string `json:"correct_option"`
	Area          *string `json:"area"`
	Subarea       *string `json:"subarea"`
	Topic         *string `json:"topic"`
	Explanation   *string `json:"explanation"`
}

func (q llmQuestion) candidate(source string) model.CandidateQuestion {
	return model.CandidateQuestion{
		Number:        q.Number,
		Stem:          strings.TrimSpace(q.Stem),
		Options:       [5]string{q.OptionA, q.OptionB, q.OptionC, q.OptionD, deref(q.OptionE)},
		CorrectOption: strings.ToUpper(strings.TrimSpace(deref(q.CorrectOption))),
		Area:          deref(q.Area),
		Subarea:       deref(q.Subarea),
		Topic:         deref(q.Topic),
		Explanation:   deref(q.Explanation),
		Source:        source,
	}
}

// llmFix is one item of a repair response. Absent or blank fields keep the
// stored value.
type llmFix struct {
	Index         int     `json:"index"`
	Stem          *string `json:"stem"`
	OptionA       *string `json:"option_a"`
	OptionB       *string `json:"option_b"`
	OptionC       *string `json:"option_c"`
	OptionD       *string `json:"option_d"`
	OptionE       *string `json:"option_e"`
	CorrectOption *string `json:"correct_option"`
	Explanation   *string `json:"explanation"`
}

// patch converts the fix into a partial update. The answer key is never
// part of the patch.
func (f llmFix) patch() model.QuestionPatch {
	return model.QuestionPatch{
		Stem:        nonBlank(f.Stem),
		OptionA:     nonBlank(f.OptionA),
		OptionB:     nonBlank(f.OptionB),
		OptionC:     nonBlank(f.OptionC),
		OptionD:     nonBlank(f.OptionD),
		OptionE:     nonBlank(f.OptionE),
		Explanation: nonBlank(f.Explanation),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func nonBlank(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// parseQuestions decodes an extraction response. Items failing the schema
// are dropped; the count is returned.
func parseQuestions(text, source string) ([]model.CandidateQuestion, int, error) {
	raws, err := decodeArray(text)
	if err != nil {
		return nil, 0, err
	}

	out := make([]model.CandidateQuestion, 0, len(raws))
	dropped := 0
	for i, raw := range raws {
		if err := validateItem(questionSchema, raw); err != nil {
			zap.L().Debug("structure: dropping invalid item", zap.Int("item", i), zap.Error(err))
			dropped++
			continue
		}
		var q llmQuestion
		if err := json.Unmarshal(raw, &q); err != nil {
			dropped++
			continue
		}
		out = append(out, q.candidate(source))
	}
	return out, dropped, nil
}

// parseFixes decodes a repair response.
func parseFixes(text string) ([]llmFix, error) {
	raws, err := decodeArray(text)
	if err != nil {
		return nil, err
	}

	out := make([]llmFix, 0, len(raws))
	for i, raw := range raws {
		if err := validateItem(repairSchema, raw); err != nil {
			zap.L().Debug("structure: dropping invalid fix", zap.Int("item", i), zap.Error(err))
			continue
		}
		var f llmFix
		if err := json.Unmarshal(raw, &f); err != nil {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

func validateItem(schema *jsonschema.Schema, raw json.RawMessage) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return eris.Wrap(err, "structure: unmarshal item")
	}
	if err := schema.Validate(v); err != nil {
		return eris.Wrap(err, "structure: item does not match schema")
	}
	return nil
}

// decodeArray locates the JSON array in an LLM response and decodes its
// elements. A truncated array is cut back to its last complete element.
func decodeArray(text string) ([]json.RawMessage, error) {
	body := stripFences(text)
	start := strings.IndexByte(body, '[')
	if start < 0 {
		return nil, eris.New("structure: no JSON array in response")
	}
	body = body[start:]

	var raws []json.RawMessage
	if err := json.NewDecoder(strings.NewReader(body)).Decode(&raws); err == nil {
		return raws, nil
	}

	repaired, ok := repairArray(body)
	if !ok {
		return nil, eris.New("structure: unparseable JSON array")
	}
	if err := json.NewDecoder(strings.NewReader(repaired)).Decode(&raws); err != nil {
		return nil, eris.Wrap(err, "structure: decode repaired array")
	}
	zap.L().Debug("structure: repaired truncated response", zap.Int("items", len(raws)))
	return raws, nil
}

// repairArray truncates s after the last complete top-level element of
// the array it starts with, then closes the array.
func repairArray(s string) (string, bool) {
	depth := 0
	inString, escaped := false, false
	lastEnd := -1

loop:
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 1 {
				lastEnd = i + 1
			}
			if depth <= 0 {
				break loop
			}
		}
	}

	if lastEnd < 0 {
		return "", false
	}
	var b bytes.Buffer
	b.WriteString(s[:lastEnd])
	b.WriteByte(']')
	return b.String(), true
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

// mergeByOrdinal de-duplicates candidates by question number. The first
// occurrence wins unless its stem is blank and a later one is not.
// Candidates without a number are kept as-is.
func mergeByOrdinal(in []model.CandidateQuestion) []model.CandidateQuestion {
	seen := make(map[int]int, len(in))
	out := make([]model.CandidateQuestion, 0, len(in))
	for _, c := range in {
		if c.Number <= 0 {
			out = append(out, c)
			continue
		}
		if i, ok := seen[c.Number]; ok {
			if strings.TrimSpace(out[i].Stem) == "" && strings.TrimSpace(c.Stem) != "" {
				out[i] = c
			}
			continue
		}
		seen[c.Number] = len(out)
		out = append(out, c)
	}
	return out
}
