package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/bookkeeper/internal/config"
	"github.com/dvloznov/bookkeeper/internal/domain"
)

// Deps carries inputs some providers need beyond configuration.
type Deps struct {
	// Training is the result history used by the bayes provider.
	Training []domain.CategorizationResult
}

// New builds the oracle selected by cfg.Provider, wrapped in a retry
// decorator when cfg.Retries is positive.
func New(ctx context.Context, cfg config.OracleConfig, defaultCode string, deps Deps) (Oracle, error) {
	var (
		o   Oracle
		err error
	)
	switch cfg.Provider {
	case "gemini":
		o, err = NewGeminiOracle(ctx, modelOr(cfg.Model, config.DefaultGeminiModel), cfg.APIKey)
	case "anthropic":
		o, err = NewAnthropicOracle(modelOr(cfg.Model, config.DefaultAnthropicModel), cfg.APIKey)
	case "rules":
		if cfg.RulesPath == "" {
			return nil, fmt.Errorf("New: oracle.rulesPath is required for the rules provider")
		}
		o, err = LoadRules(cfg.RulesPath, defaultCode)
	case "bayes":
		o, err = NewBayesOracle(deps.Training)
	default:
		return nil, fmt.Errorf("New: unknown oracle provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("New: %w", err)
	}

	if cfg.Retries > 0 {
		backoff := cfg.RetryBackoff
		if backoff <= 0 {
			backoff = time.Second
		}
		o = &Retrying{Next: o, Attempts: cfg.Retries, Backoff: backoff}
	}
	return o, nil
}

func modelOr(model, fallback string) string {
	if model == "" {
		return fallback
	}
	return model
}
