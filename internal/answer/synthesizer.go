package answer

import (
	"context"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/tiagosan44/simple-rag/internal/ragerr"
	"github.com/tiagosan44/simple-rag/internal/retry"
	"github.com/tiagosan44/simple-rag/internal/vectorstore"
)

// Usage is the token accounting reported by the chat provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is the outcome of one synthesis call. Model and Usage are
// empty when the extractive fallback produced the answer.
type Result struct {
	// Answer is the final answer text.
	Answer string
	// RawOutput is the provider's unmodified generated text, empty on
	// the fallback path.
	RawOutput string
	// Model is the model that generated the answer.
	Model string
	// Usage is the provider's token accounting when reported.
	Usage *Usage
}

// Synthesizer turns a question plus retrieved chunks into an answer.
// A nil chat model is a supported degraded mode: every request takes
// the extractive path.
type Synthesizer struct {
	model     model.ToolCallingChatModel
	modelName string
	policy    retry.Policy
	log       *slog.Logger
}

// New builds a Synthesizer. model may be nil when no chat provider is
// configured; modelName is the configured identifier reported in
// results since the chat API does not echo one back.
func New(m model.ToolCallingChatModel, modelName string, log *slog.Logger) *Synthesizer {
	if log == nil {
		log = slog.Default()
	}
	return &Synthesizer{
		model:     m,
		modelName: modelName,
		policy:    retry.DefaultPolicy(),
		log:       log,
	}
}

// Synthesize builds the grounded prompt and produces an answer.
//
// An unconfigured model or a response with no usable text degrades to
// the extractive answer. An explicit provider error that survives the
// retry policy is a hard failure returned as
// *ragerr.LLMProviderUnavailableError.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, chunks []vectorstore.Chunk, temperature float32) (Result, string, error) {
	prompt := BuildPrompt(question, chunks)

	if s.model == nil {
		s.log.Debug("chat model unconfigured, using extractive answer")
		return Result{Answer: extractiveAnswer(chunks)}, prompt, nil
	}

	messages := []*schema.Message{schema.UserMessage(prompt)}
	resp, err := retry.Do(ctx, s.policy, func() (*schema.Message, error) {
		return s.model.Generate(ctx, messages, model.WithTemperature(temperature))
	})
	if err != nil {
		return Result{}, prompt, &ragerr.LLMProviderUnavailableError{
			Reason: "chat completion failed after retries",
			Err:    err,
		}
	}

	content := strings.TrimSpace(resp.Content)
	if content == "" {
		s.log.Warn("chat model returned no content, using extractive answer")
		return Result{Answer: extractiveAnswer(chunks)}, prompt, nil
	}

	out := Result{
		Answer:    content,
		RawOutput: resp.Content,
		Model:     s.modelName,
	}
	if meta := resp.ResponseMeta; meta != nil && meta.Usage != nil {
		out.Usage = &Usage{
			PromptTokens:     meta.Usage.PromptTokens,
			CompletionTokens: meta.Usage.CompletionTokens,
			TotalTokens:      meta.Usage.TotalTokens,
		}
	}
	return out, prompt, nil
}
