// Package anthropic implements model.ChatModel on top of the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dshills/lexgraph/graph/model"
)

// DefaultModel is used when NewChatModel is given an empty model name.
const DefaultModel = "claude-sonnet-4-5"

// defaultMaxTokens is sent when the caller leaves Params.MaxTokens at zero;
// the Messages API requires a value.
const defaultMaxTokens = 4096

// ChatModel implements model.ChatModel for Claude.
//
// Example usage:
//
//	m := anthropic.NewChatModel(os.Getenv("ANTHROPIC_API_KEY"), "")
//	caller := model.NewClient(m, model.WithCostTracker(costs))
type ChatModel struct {
	modelName string
	messages  messagesAPI
}

// messagesAPI is the part of the SDK client we use. Tests substitute it.
type messagesAPI interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// NewChatModel creates a ChatModel. An empty modelName selects DefaultModel.
// An empty apiKey yields a model whose calls fail with model.ErrMissingAPIKey.
func NewChatModel(apiKey, modelName string) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}
	m := &ChatModel{modelName: modelName}
	if apiKey != "" {
		client := anthropic.NewClient(option.WithAPIKey(apiKey))
		m.messages = &client.Messages
	}
	return m
}

// ModelName returns the configured model.
func (m *ChatModel) ModelName() string { return m.modelName }

// Chat implements model.ChatModel. System messages are sent as the separate
// system parameter the Messages API expects.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, params model.Params) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}
	if m.messages == nil {
		return model.ChatOut{}, model.ErrMissingAPIKey
	}

	body := m.buildParams(messages, params)
	msg, err := m.messages.New(ctx, body)
	if err != nil {
		return model.ChatOut{}, translateError(err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return model.ChatOut{}, model.ErrEmptyResponse
	}

	return model.ChatOut{
		Text:  text,
		Model: string(msg.Model),
		Usage: model.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}

func (m *ChatModel) buildParams(messages []model.Message, params model.Params) anthropic.MessageNewParams {
	system, conversation := model.Split(messages)

	maxTokens := int64(params.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	body := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.modelName),
		MaxTokens: maxTokens,
		Messages:  make([]anthropic.MessageParam, 0, len(conversation)),
	}
	for _, msg := range conversation {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == model.RoleAssistant {
			body.Messages = append(body.Messages, anthropic.NewAssistantMessage(block))
		} else {
			body.Messages = append(body.Messages, anthropic.NewUserMessage(block))
		}
	}
	if system != "" {
		body.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if params.Temperature > 0 {
		body.Temperature = anthropic.Float(params.Temperature)
	}
	return body
}

// translateError prefixes API errors with their HTTP status so
// model.IsTransient can classify rate limiting and overload.
func translateError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("anthropic: status %d: %w", apiErr.StatusCode, err)
	}
	return fmt.Errorf("anthropic: %w", err)
}
