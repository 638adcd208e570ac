// Package llm defines the language-model provider contract used by the turn
// pipeline. A request carries the system prompt, recent scene observations,
// and the user's transcribed utterance; the reply is a single assistant
// message destined for speech synthesis. Tool calling and streaming are
// deliberately absent: replies are short, spoken aloud in full, and nothing
// downstream can consume partial text.
package llm

import "context"

// Message is one entry in a conversation.
type Message struct {
	// Role is "system", "user", or "assistant".
	Role string

	// Content is the message text.
	Content string
}

// Request is a single completion request.
type Request struct {
	// SystemPrompt is prepended as the system message when non-empty.
	SystemPrompt string

	// Messages is the conversation in chronological order.
	Messages []Message

	// Temperature, when non-zero, overrides the provider default.
	Temperature float64

	// MaxTokens, when positive, caps the reply length.
	MaxTokens int
}

// Usage reports token accounting for one completion, when the backend
// provides it.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is the assistant's reply.
type Response struct {
	// Content is the reply text.
	Content string

	// Usage is zero-valued when the backend reports no accounting.
	Usage Usage
}

// Responder produces one assistant reply per request.
type Responder interface {
	// Respond blocks until the model replies or ctx is done.
	Respond(ctx context.Context, req Request) (*Response, error)
}
