// Package llm defines the interface the memory engine uses to talk to large
// language models. The engine treats every provider as a fallible, possibly
// slow black box: extraction and query planning degrade gracefully when a
// provider misbehaves, so implementations only need to surface errors, never
// to retry internally.
package llm

import "context"

// Provider is the interface for LLM backends used by the fact extractor and
// the query planner.
type Provider interface {
	// Generate generates text from a single prompt.
	Generate(ctx context.Context, prompt string, opts ...GenerateOption) (string, error)

	// GenerateWithMessages generates text from a conversation history.
	GenerateWithMessages(ctx context.Context, messages []Message, opts ...GenerateOption) (string, error)

	// Close releases provider resources.
	Close() error
}

// Message is a single message in a conversation.
type Message struct {
	// Role is "system", "user" or "assistant".
	Role string `json:"role"`

	// Content is the message text.
	Content string `json:"content"`
}

// GenerateOptions contains generation parameters.
type GenerateOptions struct {
	// Temperature controls randomness (0.0-2.0).
	Temperature float64

	// MaxTokens limits the response length.
	MaxTokens int

	// TopP controls nucleus sampling (0.0-1.0).
	TopP float64

	// Stop contains sequences that end generation.
	Stop []string
}

// GenerateOption configures generation parameters.
type GenerateOption func(*GenerateOptions)

// WithTemperature sets the sampling temperature.
func WithTemperature(temp float64) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.Temperature = temp
	}
}

// WithMaxTokens sets the maximum number of response tokens.
func WithMaxTokens(max int) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.MaxTokens = max
	}
}

// WithTopP sets the top-p (nucleus sampling) parameter.
func WithTopP(topP float64) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.TopP = topP
	}
}

// ApplyGenerateOptions folds a slice of options over the defaults
// (Temperature=0.2, MaxTokens=1024, TopP=1.0). Extraction and planning want
// near-deterministic output, hence the low default temperature.
func ApplyGenerateOptions(opts []GenerateOption) *GenerateOptions {
	options := &GenerateOptions{
		Temperature: 0.2,
		MaxTokens:   1024,
		TopP:        1.0,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}
