// Package llm abstracts the text-generation backend. The assistants only
// need prompt-in, text-out; everything about the provider is behind the
// Generator interface.
package llm

import "context"

// Generator produces a text completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
