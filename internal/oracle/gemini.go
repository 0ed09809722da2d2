package oracle

import (
	"context"
	"fmt"

	"github.com/dvloznov/bookkeeper/internal/coa"
	"github.com/dvloznov/bookkeeper/internal/domain"
	"github.com/dvloznov/bookkeeper/internal/logger"
	"google.golang.org/genai"
)

// contentGenerator is the subset of the genai models service used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiOracle categorizes transactions with a Gemini model.
type GeminiOracle struct {
	models contentGenerator
	model  string
}

// NewGeminiOracle creates a Gemini-backed oracle. With an empty apiKey the
// client falls back to Application Default Credentials.
func NewGeminiOracle(ctx context.Context, model, apiKey string) (*GeminiOracle, error) {
	cc := &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	}
	if apiKey != "" {
		cc.APIKey = apiKey
		cc.Backend = genai.BackendGeminiAPI
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("NewGeminiOracle: create genai client: %w", err)
	}
	return &GeminiOracle{models: client.Models, model: model}, nil
}

// Categorize sends one chunk to the model.
func (g *GeminiOracle) Categorize(ctx context.Context, txns []domain.Transaction, idx *coa.Index) ([]domain.Suggestion, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: buildPrompt(txns, idx)}},
		},
	}

	resp, err := g.models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("GeminiOracle.Categorize: generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return nil, fmt.Errorf("GeminiOracle.Categorize: empty response from model")
	}
	log := logger.FromContext(ctx)
	log.Debug().Int("response_bytes", len(rawText)).Str("model", g.model).Msg("Gemini response received")

	return parseSuggestions(rawText)
}
