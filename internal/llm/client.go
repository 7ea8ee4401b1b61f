package llm

import (
	"context"
)

// LLMClient is the extraction oracle: a prompt in, free-form text out.
type LLMClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
