package structure

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/sells-group/qbank-cli/internal/config"
	"github.com/sells-group/qbank-cli/internal/cost"
	"github.com/sells-group/qbank-cli/internal/model"
	"github.com/sells-group/qbank-cli/internal/resilience"
	"github.com/sells-group/qbank-cli/pkg/anthropic"
)

// LLMSourceName tags candidates produced by the LLM strategy.
const LLMSourceName = "llm"

const extractPrompt = `You extract multiple-choice questions from Brazilian medical-residency exam papers.

Return ONLY a JSON array. Each element is one question with this shape:
{"number": <ordinal as printed>, "stem": "<full question text>",
 "option_a": "...", "option_b": "...", "option_c": "...", "option_d": "...",
 "option_e": "<text or null>", "correct_option": "<A-E or null>",
 "area": "<medical area or null>", "subarea": "<or null>", "topic": "<or null>",
 "explanation": "<or null>"}

Rules:
- Copy stem and alternatives verbatim; do not translate, summarize or invent content.
- Omit the alternative letters from the alternative text.
- Use null for a missing fifth alternative and for an unknown answer key.
- Skip fragments that are not complete questions.
- If there are no questions, return [].`

const repairPrompt = `You repair defective multiple-choice questions from medical-residency exams.

You receive a JSON array of records, each with an "index" and a "reason" code.
Return ONLY a JSON array of fixes: {"index": <same index>, "stem": ..., "option_a": ..., ...}.
Include only the fields you changed. Rules:
- Preserve the answer key. Never change which alternative is correct.
- Make the stem start with a capital letter and read as a complete question.
- Make the alternatives pairwise distinct.
- Keep the original language and clinical content.`

// LLMStrategy structures documents by asking the LLM for a JSON array of
// questions. It also serves repair requests from the AutoFixer.
type LLMStrategy struct {
	client      anthropic.Client
	model       string
	repairModel string
	maxTokens   int64
	chunkChars  int
	pageSize    int
	maxPages    int

	sem     *semaphore.Weighted
	limiter *rate.Limiter
	policy  resilience.Policy
	breaker *resilience.Breaker
	costs   *cost.Calculator
}

// NewLLMStrategy builds the LLM strategy from configuration. The returned
// strategy bounds its own concurrency, so one instance should be shared by
// every worker.
func NewLLMStrategy(client anthropic.Client, cfg *config.Config) *LLMStrategy {
	sc := cfg.Structure
	calls := sc.MaxConcurrentCalls
	if calls < 1 {
		calls = 1
	}
	limit := rate.Inf
	if sc.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(sc.RequestsPerMinute))
	}

	s := &LLMStrategy{
		client:      client,
		model:       cfg.Anthropic.Model,
		repairModel: cfg.Anthropic.RepairModel,
		maxTokens:   cfg.Anthropic.MaxTokens,
		chunkChars:  sc.ChunkChars,
		pageSize:    sc.PageSize,
		maxPages:    sc.MaxPages,
		sem:         semaphore.NewWeighted(int64(calls)),
		limiter:     rate.NewLimiter(limit, calls),
		policy:      resilience.NewPolicy(cfg.Retry, IsRetryableLLMError),
		breaker:     resilience.BreakerFromConfig("anthropic", cfg.Circuit),
		costs:       cost.NewCalculator(cfg.Pricing),
	}
	s.policy.OnRetry = resilience.LogRetries("anthropic", "create_message")
	s.breaker.Trips = IsRetryableLLMError

	if s.repairModel == "" {
		s.repairModel = s.model
	}
	if s.maxTokens <= 0 {
		s.maxTokens = 16000
	}
	if s.chunkChars <= 0 {
		s.chunkChars = 12000
	}
	if s.pageSize <= 0 {
		s.pageSize = 25
	}
	if s.maxPages <= 0 {
		s.maxPages = 8
	}
	return s
}

// Name implements Strategy.
func (s *LLMStrategy) Name() string { return LLMSourceName }

// Available implements Strategy. The LLM reads text or the raw PDF.
func (s *LLMStrategy) Available(in Input) bool {
	return s.client != nil && (in.HasText() || len(in.PDF) > 0)
}

// Structure implements Strategy. Text is sent in line-aligned chunks; a
// PDF without usable text is sent whole with paginated item ranges.
// A chunk that fails after retries is counted and skipped; when every
// chunk fails the last error is returned. Quota exhaustion stops the
// document and returns ErrRetryable.
func (s *LLMStrategy) Structure(ctx context.Context, in Input) (*Result, error) {
	res := &Result{Strategy: s.Name()}
	var all []model.CandidateQuestion

	var (
		attempted int
		lastErr   error
	)
	requests := s.requests(in)
	for i, msg := range requests.messages {
		if err := ctx.Err(); err != nil {
			return res, eris.Wrap(err, "structure: cancelled between chunks")
		}

		items, usage, err := s.extract(ctx, msg)
		res.Usage.Add(usage)
		attempted++

		if err != nil {
			if isQuotaError(err) {
				zap.L().Warn("structure: provider quota exhausted, pausing document",
					zap.String("document", in.Title),
					zap.Int("chunk", i),
					zap.Error(err),
				)
				res.Retryable = true
				res.Candidates = mergeByOrdinal(all)
				return res, eris.Wrapf(ErrRetryable, "structure: %s chunk %d: %v", in.Title, i, err)
			}
			res.FailedChunks++
			lastErr = err
			zap.L().Warn("structure: chunk failed",
				zap.String("document", in.Title),
				zap.Int("chunk", i),
				zap.String("error_kind", string(model.ErrStructuring)),
				zap.Error(err),
			)
			continue
		}

		if requests.paginated && len(items) == 0 {
			break
		}
		all = append(all, items...)
	}

	res.Candidates = mergeByOrdinal(all)
	if attempted > 0 && res.FailedChunks == attempted {
		return res, eris.Wrapf(lastErr, "structure: %s: all %d chunks failed", in.Title, attempted)
	}
	zap.L().Debug("structure: llm extraction complete",
		zap.String("document", in.Title),
		zap.Int("chunks", len(requests.messages)),
		zap.Int("failed_chunks", res.FailedChunks),
		zap.Int("candidates", len(res.Candidates)),
	)
	return res, nil
}

type requestPlan struct {
	messages  []anthropic.Message
	paginated bool
}

func (s *LLMStrategy) requests(in Input) requestPlan {
	if in.HasText() {
		chunks := chunkText(in.Text, s.chunkChars)
		msgs := make([]anthropic.Message, len(chunks))
		for i, c := range chunks {
			msgs[i] = anthropic.Message{
				Role:    "user",
				Content: fmt.Sprintf("Document: %s\nPart %d of %d.\n\n%s", in.Title, i+1, len(chunks), c),
			}
		}
		return requestPlan{messages: msgs}
	}

	msgs := make([]anthropic.Message, s.maxPages)
	for p := range msgs {
		from := p*s.pageSize + 1
		to := from + s.pageSize - 1
		msgs[p] = anthropic.Message{
			Role:    "user",
			Content: fmt.Sprintf("Document: %s\nExtract items %d..%d from the attached document. Return [] if there are none.", in.Title, from, to),
			PDF:     in.PDF,
		}
	}
	return requestPlan{messages: msgs, paginated: true}
}

func (s *LLMStrategy) extract(ctx context.Context, msg anthropic.Message) ([]model.CandidateQuestion, model.TokenUsage, error) {
	resp, err := s.call(ctx, anthropic.MessageRequest{
		Model:     s.model,
		MaxTokens: s.maxTokens,
		System:    anthropic.BuildCachedSystemBlocks(extractPrompt),
		Messages:  []anthropic.Message{msg},
	})
	if err != nil {
		return nil, model.TokenUsage{}, err
	}
	usage := s.usage(s.model, resp)
	if resp.Truncated() {
		zap.L().Debug("structure: response hit max tokens, repairing")
	}

	items, dropped, err := parseQuestions(resp.Text(), s.Name())
	if err != nil {
		return nil, usage, err
	}
	if dropped > 0 {
		zap.L().Warn("structure: dropped items failing schema", zap.Int("dropped", dropped))
	}
	return items, usage, nil
}

// call sends one request through the limiter, the retry policy and the
// circuit breaker.
func (s *LLMStrategy) call(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	return resilience.Retry(ctx, s.policy, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return resilience.Guard(ctx, s.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			if err := s.sem.Acquire(ctx, 1); err != nil {
				return nil, eris.Wrap(err, "structure: acquire call slot")
			}
			defer s.sem.Release(1)

			if err := s.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "structure: rate limiter")
			}
			resp, err := s.client.CreateMessage(ctx, req)
			if err != nil {
				return nil, classifyLLMError(err)
			}
			return resp, nil
		})
	})
}

func (s *LLMStrategy) usage(modelName string, resp *anthropic.MessageResponse) model.TokenUsage {
	return s.costs.Price(modelName, model.TokenUsage{
		InputTokens:         int(resp.Usage.InputTokens),
		OutputTokens:        int(resp.Usage.OutputTokens),
		CacheCreationTokens: int(resp.Usage.CacheCreationInputTokens),
		CacheReadTokens:     int(resp.Usage.CacheReadInputTokens),
	})
}

// classifyLLMError marks retryable provider statuses as transient.
func classifyLLMError(err error) error {
	if code := anthropic.StatusCode(err); resilience.IsTransientHTTPStatus(code) {
		return resilience.NewTransientError(err, code)
	}
	return err
}

// IsRetryableLLMError reports whether an LLM call error is worth another
// attempt: 429, 5xx, 529 and network failures.
func IsRetryableLLMError(err error) bool {
	return resilience.IsTransient(err)
}

func isQuotaError(err error) bool {
	if resilience.IsRateLimited(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "quota") || strings.Contains(msg, "rate_limit")
}

// chunkText splits text into pieces of at most size bytes, cutting on
// line boundaries. A single line longer than size is cut on a rune
// boundary.
func chunkText(text string, size int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if size <= 0 || len(text) <= size {
		return []string{text}
	}

	var chunks []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		for len(line) > size {
			flush()
			cut := size
			for cut > 0 && !isRuneStart(line[cut]) {
				cut--
			}
			if cut == 0 {
				cut = size
			}
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}
		if cur.Len()+len(line) > size {
			flush()
		}
		cur.WriteString(line)
	}
	flush()
	return chunks
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
