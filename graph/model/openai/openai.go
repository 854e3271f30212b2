// Package openai implements model.ChatModel on top of the OpenAI chat
// completions API.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/dshills/lexgraph/graph/model"
)

// DefaultModel is used when NewChatModel is given an empty model name.
const DefaultModel = "gpt-4o"

// ChatModel implements model.ChatModel for OpenAI models.
type ChatModel struct {
	modelName   string
	completions completionsAPI
}

type completionsAPI interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// NewChatModel creates a ChatModel. An empty modelName selects DefaultModel.
func NewChatModel(apiKey, modelName string) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}
	m := &ChatModel{modelName: modelName}
	if apiKey != "" {
		client := openai.NewClient(option.WithAPIKey(apiKey))
		m.completions = &client.Chat.Completions
	}
	return m
}

// ModelName returns the configured model.
func (m *ChatModel) ModelName() string { return m.modelName }

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, params model.Params) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}
	if m.completions == nil {
		return model.ChatOut{}, model.ErrMissingAPIKey
	}

	completion, err := m.completions.New(ctx, m.buildParams(messages, params))
	if err != nil {
		return model.ChatOut{}, translateError(err)
	}
	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return model.ChatOut{}, model.ErrEmptyResponse
	}

	return model.ChatOut{
		Text:  completion.Choices[0].Message.Content,
		Model: completion.Model,
		Usage: model.Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
		},
	}, nil
}

func (m *ChatModel) buildParams(messages []model.Message, params model.Params) openai.ChatCompletionNewParams {
	body := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(m.modelName),
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
	}
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			body.Messages = append(body.Messages, openai.SystemMessage(msg.Content))
		case model.RoleAssistant:
			body.Messages = append(body.Messages, openai.AssistantMessage(msg.Content))
		default:
			body.Messages = append(body.Messages, openai.UserMessage(msg.Content))
		}
	}
	if params.Temperature > 0 {
		body.Temperature = openai.Float(params.Temperature)
	}
	if params.MaxTokens > 0 {
		body.MaxCompletionTokens = openai.Int(int64(params.MaxTokens))
	}
	return body
}

func translateError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("openai: status %d: %w", apiErr.StatusCode, err)
	}
	return fmt.Errorf("openai: %w", err)
}
