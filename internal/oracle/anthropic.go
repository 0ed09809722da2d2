package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/dvloznov/bookkeeper/internal/coa"
	"github.com/dvloznov/bookkeeper/internal/domain"
	"github.com/dvloznov/bookkeeper/internal/logger"
)

// messageCreator is the subset of the Anthropic messages service used here.
type messageCreator interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AnthropicOracle categorizes transactions with a Claude model.
type AnthropicOracle struct {
	messages  messageCreator
	model     string
	maxTokens int64
}

// NewAnthropicOracle creates a Claude-backed oracle.
func NewAnthropicOracle(model, apiKey string) (*AnthropicOracle, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("NewAnthropicOracle: API key is required (set ANTHROPIC_API_KEY or oracle.apiKey)")
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicOracle{messages: &client.Messages, model: model, maxTokens: 8192}, nil
}

// Categorize sends one chunk to the model.
func (a *AnthropicOracle) Categorize(ctx context.Context, txns []domain.Transaction, idx *coa.Index) ([]domain.Suggestion, error) {
	message, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(txns, idx))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("AnthropicOracle.Categorize: messages.New: %w", err)
	}
	if len(message.Content) == 0 {
		return nil, fmt.Errorf("AnthropicOracle.Categorize: empty response from model")
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	log := logger.FromContext(ctx)
	log.Debug().Int("response_bytes", text.Len()).Str("model", a.model).Msg("Claude response received")

	return parseSuggestions(text.String())
}
