package openai

import (
	"context"
	"errors"
	"log/slog"

	"github.com/poiesic/kbassist/ai"
	"github.com/poiesic/kbassist/core"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ContextPrefix introduces the knowledge block in the prompt.
const ContextPrefix = "Context information:\n"

var errNoChoices = errors.New("model returned no choices")

// Completer implements ai.Completer using OpenAI-compatible chat APIs.
type Completer struct {
	client      llms.Model
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

func newCompleter(config *ai.Config) (*Completer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.ChatHost),
		openai.WithToken(config.APIKey),
		openai.WithModel(config.ChatModel),
	)
	if err != nil {
		return nil, err
	}

	return newCompleterWithModel(client, config), nil
}

func newCompleterWithModel(model llms.Model, config *ai.Config) *Completer {
	return &Completer{
		client:      model,
		temperature: config.Temperature,
		maxTokens:   config.MaxTokens,
		logger:      slog.Default().With("component", "openai-completer"),
	}
}

// NewCompleter creates a new completer using the provided configuration.
//
// Returns ai.Completer interface to enforce abstraction.
func NewCompleter(config *ai.Config) (ai.Completer, error) {
	return newCompleter(config)
}

// Complete sends the system instruction, the knowledge context, prior turns and
// the utterance as one chat request.
func (c *Completer) Complete(ctx context.Context, req ai.CompletionRequest) (*ai.Completion, error) {
	content := buildMessages(req)

	response, err := c.client.GenerateContent(ctx, content,
		llms.WithTemperature(c.temperature),
		llms.WithMaxTokens(c.maxTokens),
	)
	if err != nil {
		c.logger.Error("failed to generate content", "err", err)
		return nil, err
	}

	if len(response.Choices) < 1 {
		c.logger.Debug("no choices returned from model")
		return nil, errNoChoices
	}

	choice := response.Choices[0]
	return &ai.Completion{
		Text:  choice.Content,
		Usage: usageFrom(choice.GenerationInfo),
	}, nil
}

func buildMessages(req ai.CompletionRequest) []llms.MessageContent {
	content := make([]llms.MessageContent, 0, len(req.History)+3)
	content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	if req.Context != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, ContextPrefix+req.Context))
	}
	for _, entry := range req.History {
		role := llms.ChatMessageTypeHuman
		if entry.Role == core.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		content = append(content, llms.TextParts(role, entry.Content))
	}
	return append(content, llms.TextParts(llms.ChatMessageTypeHuman, req.Utterance))
}

func usageFrom(info map[string]any) ai.Usage {
	return ai.Usage{
		PromptTokens:     intValue(info["PromptTokens"]),
		CompletionTokens: intValue(info["CompletionTokens"]),
		TotalTokens:      intValue(info["TotalTokens"]),
	}
}

func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
