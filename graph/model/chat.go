// Package model provides the language model abstraction used by workflow
// steps that draft or analyze documents.
//
// Providers (anthropic, openai, google) implement ChatModel. Steps do not talk
// to a ChatModel directly; they depend on the narrower Caller contract, which
// Client implements on top of any ChatModel with retries and cost tracking.
package model

import (
	"context"
	"errors"
)

// ChatModel is a chat-completion provider.
//
// Implementations must honor ctx cancellation and must be safe for concurrent
// use, since several work units may draft documents at once.
type ChatModel interface {
	Chat(ctx context.Context, messages []Message, params Params) (ChatOut, error)
}

// Message is a single chat message.
type Message struct {
	// Role is one of RoleSystem, RoleUser or RoleAssistant.
	Role string

	Content string
}

// Standard message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Params tunes a single completion. Zero values select the provider default.
type Params struct {
	Temperature float64
	MaxTokens   int
}

// Usage reports the tokens consumed by one completion.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ChatOut is the provider response.
type ChatOut struct {
	Text string

	// Model is the model that produced the response, as reported by the
	// provider. It may differ from the requested name (dated aliases).
	Model string

	Usage Usage
}

// ErrEmptyResponse is returned by providers when the completion carried no
// text content.
var ErrEmptyResponse = errors.New("model returned no text content")

// ErrMissingAPIKey is returned by providers constructed without credentials.
var ErrMissingAPIKey = errors.New("model API key is required")

// Split separates system messages from the conversation. Providers whose API
// takes the system prompt as a separate parameter use it.
func Split(messages []Message) (system string, conversation []Message) {
	for _, msg := range messages {
		if msg.Role != RoleSystem {
			conversation = append(conversation, msg)
			continue
		}
		if system != "" {
			system += "\n\n"
		}
		system += msg.Content
	}
	return system, conversation
}
