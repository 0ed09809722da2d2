package oracle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/dvloznov/bookkeeper/internal/coa"
	"github.com/dvloznov/bookkeeper/internal/config"
	"github.com/dvloznov/bookkeeper/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func testIndex(t *testing.T) *coa.Index {
	t.Helper()
	idx, err := coa.New([]domain.AccountEntry{
		{Code: "1000", Name: "Cash"},
		{Code: "4000", Name: "Sales Revenue"},
		{Code: "5100", Name: "Rent Expense"},
		{Code: "6900", Name: "Other Expenses"},
	})
	require.NoError(t, err)
	return idx
}

func txn(id, desc, amount string) domain.Transaction {
	return domain.Transaction{ID: id, Date: "2024-01-01", Description: desc, Amount: decimal.RequireFromString(amount)}
}

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", `[{"a":1}]`, `[{"a":1}]`},
		{"fenced json", "```json\n[{\"a\":1}]\n```", `[{"a":1}]`},
		{"fenced bare", "```\n[]\n```", `[]`},
		{"chatter", "Here you go:\n[{\"a\":1}]\nThanks", `[{"a":1}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanModelJSON(tt.raw))
		})
	}
}

func TestParseSuggestions(t *testing.T) {
	out, err := parseSuggestions("```json\n[{\"transaction_id\":\"trans_0\",\"account_code\":\"5100\",\"account_name\":\"Rent Expense\",\"confidence\":0.92,\"reasoning\":\"rent\"}]\n```")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "5100", out[0].AccountCode)
	assert.InDelta(t, 0.92, out[0].Confidence, 1e-9)

	_, err = parseSuggestions("not json")
	assert.Error(t, err)
}

func TestBuildPrompt(t *testing.T) {
	p := buildPrompt([]domain.Transaction{txn("trans_3", "Office rent", "-18550.75")}, testIndex(t))
	assert.Contains(t, p, "5100: Rent Expense")
	assert.Contains(t, p, "trans_3 | 2024-01-01 | -18550.75 | Office rent")
}

type fakeGenerator struct {
	text  string
	err   error
	model string
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: f.text}}},
		}},
	}, nil
}

func TestGeminiOracle(t *testing.T) {
	gen := &fakeGenerator{text: `[{"transaction_id":"trans_0","account_code":"4000","confidence":0.8,"reasoning":"sale"}]`}
	o := &GeminiOracle{models: gen, model: "gemini-test"}

	out, err := o.Categorize(context.Background(), []domain.Transaction{txn("trans_0", "Invoice 12", "100")}, testIndex(t))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "4000", out[0].AccountCode)
	assert.Equal(t, "gemini-test", gen.model)

	o.models = &fakeGenerator{err: errors.New("quota")}
	_, err = o.Categorize(context.Background(), nil, testIndex(t))
	assert.ErrorContains(t, err, "quota")

	o.models = &fakeGenerator{text: ""}
	_, err = o.Categorize(context.Background(), nil, testIndex(t))
	assert.ErrorContains(t, err, "empty response")
}

type fakeMessages struct {
	msg    *anthropic.Message
	err    error
	params anthropic.MessageNewParams
}

func (f *fakeMessages) New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error) {
	f.params = body
	return f.msg, f.err
}

func TestAnthropicOracle(t *testing.T) {
	fm := &fakeMessages{msg: &anthropic.Message{Content: []anthropic.ContentBlockUnion{
		{Type: "text", Text: `[{"transaction_id":"trans_0",`},
		{Type: "text", Text: `"account_code":"5100","confidence":0.9,"reasoning":"rent"}]`},
	}}}
	o := &AnthropicOracle{messages: fm, model: "claude-test", maxTokens: 1024}

	out, err := o.Categorize(context.Background(), []domain.Transaction{txn("trans_0", "Rent", "-10")}, testIndex(t))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "5100", out[0].AccountCode)
	assert.Equal(t, anthropic.Model("claude-test"), fm.params.Model)

	fm.msg = &anthropic.Message{}
	_, err = o.Categorize(context.Background(), nil, testIndex(t))
	assert.ErrorContains(t, err, "empty response")
}

func TestNewAnthropicOracle_RequiresKey(t *testing.T) {
	_, err := NewAnthropicOracle("claude", "")
	assert.Error(t, err)
}

func TestRulesOracle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rules:
  - account: "5100"
    patterns: ["(?i)\\brent\\b", "(?i)landlord"]
  - account: "4000"
    patterns: ["(?i)invoice"]
    confidence: 0.8
`), 0o600))

	o, err := LoadRules(path, "6900")
	require.NoError(t, err)

	out, err := o.Categorize(context.Background(), []domain.Transaction{
		txn("trans_0", "Office RENT January", "-1000"),
		txn("trans_1", "Invoice 44 paid", "500"),
		txn("trans_2", "Mystery", "-3"),
	}, testIndex(t))
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, "5100", out[0].AccountCode)
	assert.Equal(t, "Rent Expense", out[0].AccountName)
	assert.Equal(t, 0.95, out[0].Confidence)
	assert.Equal(t, "4000", out[1].AccountCode)
	assert.Equal(t, 0.8, out[1].Confidence)
	assert.Equal(t, "6900", out[2].AccountCode)
	assert.Zero(t, out[2].Confidence)
}

func TestNewRulesOracle_BadPattern(t *testing.T) {
	_, err := NewRulesOracle(RuleSet{Rules: []Rule{{Account: "1", Patterns: []string{"("}}}}, "6900")
	assert.Error(t, err)
}

func history(code, desc string, n int) []domain.CategorizationResult {
	var out []domain.CategorizationResult
	for i := 0; i < n; i++ {
		out = append(out, domain.CategorizationResult{AccountCode: code, Description: desc, Confidence: 0.95, Source: domain.SourceOracle})
	}
	return out
}

func TestBayesOracle(t *testing.T) {
	h := append(history("5100", "Monthly office rent payment landlord", 5), history("4000", "Customer invoice payment received", 5)...)
	h = append(h, domain.CategorizationResult{AccountCode: "6900", Description: "ignored fallback", Source: domain.SourceFallback})

	o, err := NewBayesOracle(h)
	require.NoError(t, err)
	assert.Len(t, o.classes, 2)

	out, err := o.Categorize(context.Background(), []domain.Transaction{
		txn("trans_0", "Rent to landlord", "-900"),
		txn("trans_1", "Invoice received from customer", "300"),
	}, testIndex(t))
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "5100", out[0].AccountCode)
	assert.Equal(t, "4000", out[1].AccountCode)
	for _, s := range out {
		assert.GreaterOrEqual(t, s.Confidence, 0.0)
		assert.LessOrEqual(t, s.Confidence, 1.0)
	}
}

func TestBayesOracle_NeedsTwoClasses(t *testing.T) {
	_, err := NewBayesOracle(history("5100", "rent", 3))
	assert.Error(t, err)
}

func TestSoftmaxAt(t *testing.T) {
	assert.InDelta(t, 0.5, softmaxAt([]float64{-3, -3}, 0), 1e-9)
	assert.Greater(t, softmaxAt([]float64{-1, -10}, 0), 0.99)
}

func TestRetrying(t *testing.T) {
	calls := 0
	flaky := Func(func(ctx context.Context, txns []domain.Transaction, idx *coa.Index) ([]domain.Suggestion, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("transient")
		}
		return []domain.Suggestion{{TransactionID: "trans_0"}}, nil
	})

	r := &Retrying{Next: flaky, Attempts: 2, Backoff: time.Millisecond}
	out, err := r.Categorize(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Equal(t, 3, calls)
}

func TestRetrying_GivesUp(t *testing.T) {
	calls := 0
	broken := Func(func(ctx context.Context, txns []domain.Transaction, idx *coa.Index) ([]domain.Suggestion, error) {
		calls++
		return nil, errors.New("down")
	})

	r := &Retrying{Next: broken, Attempts: 1, Backoff: time.Millisecond}
	_, err := r.Categorize(context.Background(), nil, nil)
	assert.ErrorContains(t, err, "down")
	assert.Equal(t, 2, calls)
}

func TestRetrying_StopsOnDeadline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	r := &Retrying{Next: Func(func(ctx context.Context, txns []domain.Transaction, idx *coa.Index) ([]domain.Suggestion, error) {
		calls++
		return nil, ctx.Err()
	}), Attempts: 5, Backoff: time.Hour}

	_, err := r.Categorize(ctx, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestOracleFailure(t *testing.T) {
	f := &OracleFailure{Chunk: 2, Err: context.DeadlineExceeded}
	assert.True(t, f.Timeout())
	assert.ErrorIs(t, f, context.DeadlineExceeded)
	assert.Contains(t, f.Error(), "timed out")

	f = &OracleFailure{Chunk: 1, Err: errors.New("503")}
	assert.False(t, f.Timeout())
}

func TestNew_Factory(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, config.OracleConfig{Provider: "rules"}, "6900", Deps{})
	assert.Error(t, err)

	_, err = New(ctx, config.OracleConfig{Provider: "anthropic"}, "6900", Deps{})
	assert.Error(t, err)

	_, err = New(ctx, config.OracleConfig{Provider: "nope"}, "6900", Deps{})
	assert.Error(t, err)

	h := append(history("5100", "rent landlord", 2), history("4000", "invoice customer", 2)...)
	o, err := New(ctx, config.OracleConfig{Provider: "bayes", Retries: 1}, "6900", Deps{Training: h})
	require.NoError(t, err)
	_, ok := o.(*Retrying)
	assert.True(t, ok)
}
