package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agenthands/ftmresolve/internal/config"
	"github.com/agenthands/ftmresolve/internal/core/common"
	"github.com/agenthands/ftmresolve/internal/core/model"
	"github.com/agenthands/ftmresolve/internal/llm"
)

// maxLoggedResponse bounds raw oracle responses written to the debug log.
const maxLoggedResponse = 20000

type Extractor struct {
	LLM      llm.LLMClient
	Prompt   string
	Schemata []string
	Logger   *slog.Logger
}

func NewExtractor(llmClient llm.LLMClient, prompt string, schemata []string) *Extractor {
	if prompt == "" {
		prompt = config.DefaultInferencePrompt
	}
	return &Extractor{
		LLM:      llmClient,
		Prompt:   prompt,
		Schemata: schemata,
		Logger:   slog.Default(),
	}
}

// Extract asks the oracle for candidate items found in one evidence unit.
// An error means the unit yields nothing; callers carry on with the next.
func (e *Extractor) Extract(ctx context.Context, ev model.Evidence) ([]model.CandidateItem, error) {
	prompt := fmt.Sprintf(e.Prompt, strings.Join(e.Schemata, ", "), ev.Kind, ev.Text)

	logger := e.logger().With("proof", ev.ProofID, "kind", ev.Kind)
	logger.Debug("Generating candidate items", "chars", len(ev.Text))

	response, err := e.LLM.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate candidate items: %w", err)
	}
	logger.Debug("Oracle response", "chars", len(response), "response", truncate(response, maxLoggedResponse))

	items, skipped, err := common.ParseJSONArray[model.CandidateItem](response)
	if err != nil {
		return nil, fmt.Errorf("failed to extract candidate items: %w", err)
	}
	if skipped > 0 {
		logger.Debug("Skipped undecodable candidate items", "skipped", skipped)
	}
	return items, nil
}

func (e *Extractor) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// truncate keeps the first n runes of s.
func truncate(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i] + "\n... [truncated]"
		}
		count++
	}
	return s
}
