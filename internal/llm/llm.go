package llm

import "context"

// Package llm provides the text-generation client used by the insight
// composer, query classifier, and chat service. The only contract the rest
// of the service depends on is TextGenerator; the HTTP client below speaks
// the OpenAI-compatible chat completions API so any conforming endpoint
// (vLLM, LocalAI, LM Studio, hosted gateways) can back it.

// TextGenerator produces a completion for a prompt. Implementations must
// honor ctx cancellation and bound their own request timeout.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
