package oracle

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dvloznov/bookkeeper/internal/coa"
	"github.com/dvloznov/bookkeeper/internal/domain"
)

// buildPrompt renders the categorization request shared by the LLM oracles.
func buildPrompt(txns []domain.Transaction, idx *coa.Index) string {
	var b strings.Builder
	b.WriteString("You are a bookkeeper assigning bank transactions to accounts.\n\n")
	b.WriteString("Chart of accounts (code: name):\n")
	b.WriteString(idx.PromptText())
	b.WriteString("\nTransactions (id | date | amount | description):\n")
	for _, t := range txns {
		fmt.Fprintf(&b, "%s | %s | %s | %s\n", t.ID, t.Date, t.Amount.StringFixed(2), t.Description)
	}
	b.WriteString("\nRules:\n" +
		"- Positive amounts are money IN, negative amounts are money OUT.\n" +
		"- Use only account codes from the chart above.\n" +
		"- confidence is a number between 0 and 1.\n\n" +
		"Return ONLY a JSON array, one object per transaction, with fields:\n" +
		"\"transaction_id\", \"account_code\", \"account_name\", \"confidence\", \"reasoning\".\n" +
		"Do NOT wrap the response in code fences.\n" +
		"Output must begin with \"[\" and end with \"]\".\n")
	return b.String()
}

// parseSuggestions decodes a model reply into suggestions.
func parseSuggestions(raw string) ([]domain.Suggestion, error) {
	clean := cleanModelJSON(raw)
	if clean == "" {
		return nil, fmt.Errorf("parseSuggestions: empty response from model")
	}
	var out []domain.Suggestion
	if err := json.Unmarshal([]byte(clean), &out); err != nil {
		return nil, fmt.Errorf("parseSuggestions: unmarshal JSON: %w\nraw response: %s", err, raw)
	}
	return out, nil
}

// cleanModelJSON strips Markdown fences and any text around the JSON array.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		// drop the ``` or ```json line
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return s
		}
		s = strings.TrimSpace(s[idx+1:])
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
