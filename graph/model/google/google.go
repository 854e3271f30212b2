// Package google implements model.ChatModel for Gemini models.
package google

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/dshills/lexgraph/graph/model"
)

// DefaultModel is used when New is given an empty model name.
const DefaultModel = "gemini-2.0-flash"

// ChatModel implements model.ChatModel for Gemini.
//
// Unlike the other providers it holds a network client that must be closed.
type ChatModel struct {
	modelName string
	gen       generator
	closer    func() error
}

// generator sends one conversation turn. history holds earlier turns; the
// final user message is sent as parts.
type generator interface {
	generate(ctx context.Context, modelName, system string, params model.Params, history []*genai.Content, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// New creates a ChatModel. An empty modelName selects DefaultModel.
func New(ctx context.Context, apiKey, modelName string) (*ChatModel, error) {
	if apiKey == "" {
		return nil, model.ErrMissingAPIKey
	}
	if modelName == "" {
		modelName = DefaultModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &ChatModel{
		modelName: modelName,
		gen:       &sdkGenerator{client: client},
		closer:    client.Close,
	}, nil
}

// ModelName returns the configured model.
func (m *ChatModel) ModelName() string { return m.modelName }

// Close releases the underlying client.
func (m *ChatModel) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer()
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, params model.Params) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}

	system, conversation := model.Split(messages)
	if len(conversation) == 0 {
		return model.ChatOut{}, errors.New("gemini: no user message")
	}
	last := conversation[len(conversation)-1]
	history := make([]*genai.Content, 0, len(conversation)-1)
	for _, msg := range conversation[:len(conversation)-1] {
		role := "user"
		if msg.Role == model.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(msg.Content)}})
	}

	resp, err := m.gen.generate(ctx, m.modelName, system, params, history, genai.Text(last.Content))
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("gemini: %w", err)
	}

	text := extractText(resp)
	if text == "" {
		return model.ChatOut{}, model.ErrEmptyResponse
	}

	out := model.ChatOut{Text: text, Model: m.modelName}
	if resp.UsageMetadata != nil {
		out.Usage = model.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return out, nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text += string(t)
		}
	}
	return text
}

type sdkGenerator struct {
	client *genai.Client
}

func (g *sdkGenerator) generate(ctx context.Context, modelName, system string, params model.Params, history []*genai.Content, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	gm := g.client.GenerativeModel(modelName)
	if system != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	if params.Temperature > 0 {
		gm.SetTemperature(float32(params.Temperature))
	}
	if params.MaxTokens > 0 {
		gm.SetMaxOutputTokens(int32(params.MaxTokens))
	}
	if len(history) == 0 {
		return gm.GenerateContent(ctx, parts...)
	}
	cs := gm.StartChat()
	cs.History = history
	return cs.SendMessage(ctx, parts...)
}
