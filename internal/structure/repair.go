package structure

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/qbank-cli/internal/model"
	"github.com/sells-group/qbank-cli/pkg/anthropic"
)

// RepairItem is one defective stored question sent for repair. Index is
// its position in the batch and keys the fix in the response.
type RepairItem struct {
	Index      int
	QuestionID string
	Reason     model.ReasonCode
	Fields     model.QuestionFields
}

// RepairResult maps batch indices to partial updates.
type RepairResult struct {
	Fixes map[int]model.QuestionPatch
	Usage model.TokenUsage
}

// Repairer fixes batches of defective questions.
type Repairer interface {
	Repair(ctx context.Context, items []RepairItem) (*RepairResult, error)
}

type repairRecord struct {
	Index         int              `json:"index"`
	Reason        model.ReasonCode `json:"reason"`
	Stem          string           `json:"stem"`
	OptionA       string           `json:"option_a"`
	OptionB       string           `json:"option_b"`
	OptionC       string           `json:"option_c"`
	OptionD       string           `json:"option_d"`
	OptionE       *string          `json:"option_e"`
	CorrectOption string           `json:"correct_option"`
}

// Repair sends a batch to the repair model. Fixes whose index is not in
// the batch are ignored, and so is any correct_option in a fix.
func (s *LLMStrategy) Repair(ctx context.Context, items []RepairItem) (*RepairResult, error) {
	if len(items) == 0 {
		return &RepairResult{Fixes: map[int]model.QuestionPatch{}}, nil
	}

	records := make([]repairRecord, len(items))
	valid := make(map[int]bool, len(items))
	for i, it := range items {
		f := it.Fields
		records[i] = repairRecord{
			Index:         it.Index,
			Reason:        it.Reason,
			Stem:          f.Stem,
			OptionA:       f.OptionA,
			OptionB:       f.OptionB,
			OptionC:       f.OptionC,
			OptionD:       f.OptionD,
			OptionE:       f.OptionE,
			CorrectOption: f.CorrectOption,
		}
		valid[it.Index] = true
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return nil, eris.Wrap(err, "structure: marshal repair payload")
	}

	resp, err := s.call(ctx, anthropic.MessageRequest{
		Model:     s.repairModel,
		MaxTokens: s.maxTokens,
		System:    anthropic.BuildCachedSystemBlocks(repairPrompt),
		Messages:  []anthropic.Message{{Role: "user", Content: string(payload)}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "structure: repair call")
	}

	out := &RepairResult{
		Fixes: make(map[int]model.QuestionPatch, len(items)),
		Usage: s.usage(s.repairModel, resp),
	}
	fixes, err := parseFixes(resp.Text())
	if err != nil {
		return out, eris.Wrap(err, "structure: parse repair response")
	}
	for _, f := range fixes {
		if !valid[f.Index] {
			zap.L().Debug("structure: ignoring fix for unknown index", zap.Int("index", f.Index))
			continue
		}
		if _, dup := out.Fixes[f.Index]; dup {
			continue
		}
		out.Fixes[f.Index] = f.patch()
	}
	return out, nil
}
