package oracle

import (
	"context"
	"fmt"
	"os"
	"regexp"

	"github.com/dvloznov/bookkeeper/internal/coa"
	"github.com/dvloznov/bookkeeper/internal/domain"
	"gopkg.in/yaml.v3"
)

const defaultRuleConfidence = 0.95

// RuleSet is the YAML form of a rules file:
//
//	rules:
//	  - account: "5100"
//	    patterns: ["(?i)rent", "(?i)landlord"]
type RuleSet struct {
	Rules []Rule `yaml:"rules"`
}

// Rule maps description patterns to an account.
type Rule struct {
	Account    string   `yaml:"account"`
	Patterns   []string `yaml:"patterns"`
	Confidence float64  `yaml:"confidence"`
}

type compiledRule struct {
	account    string
	confidence float64
	patterns   []*regexp.Regexp
}

// RulesOracle assigns accounts by matching descriptions against regular
// expressions. The first matching rule wins; unmatched transactions get the
// default account with zero confidence.
type RulesOracle struct {
	rules       []compiledRule
	defaultCode string
}

// LoadRules reads a rules file from disk.
func LoadRules(path, defaultCode string) (*RulesOracle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadRules: %w", err)
	}
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("LoadRules: parsing %s: %w", path, err)
	}
	return NewRulesOracle(rs, defaultCode)
}

// NewRulesOracle compiles the rule set.
func NewRulesOracle(rs RuleSet, defaultCode string) (*RulesOracle, error) {
	o := &RulesOracle{defaultCode: defaultCode}
	for i, r := range rs.Rules {
		if r.Account == "" {
			return nil, fmt.Errorf("NewRulesOracle: rule %d has no account", i)
		}
		cr := compiledRule{account: r.Account, confidence: r.Confidence}
		if cr.confidence <= 0 || cr.confidence > 1 {
			cr.confidence = defaultRuleConfidence
		}
		for _, p := range r.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("NewRulesOracle: rule %d: %w", i, err)
			}
			cr.patterns = append(cr.patterns, re)
		}
		o.rules = append(o.rules, cr)
	}
	return o, nil
}

// Categorize matches every transaction of the chunk.
func (o *RulesOracle) Categorize(ctx context.Context, txns []domain.Transaction, idx *coa.Index) ([]domain.Suggestion, error) {
	out := make([]domain.Suggestion, 0, len(txns))
	for _, t := range txns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, o.match(t, idx))
	}
	return out, nil
}

func (o *RulesOracle) match(t domain.Transaction, idx *coa.Index) domain.Suggestion {
	for _, r := range o.rules {
		for _, re := range r.patterns {
			if re.MatchString(t.Description) {
				return domain.Suggestion{
					TransactionID: t.ID,
					AccountCode:   r.account,
					AccountName:   idx.Name(r.account),
					Confidence:    r.confidence,
					Reasoning:     fmt.Sprintf("matched rule %q", re.String()),
				}
			}
		}
	}
	return domain.Suggestion{
		TransactionID: t.ID,
		AccountCode:   o.defaultCode,
		AccountName:   idx.Name(o.defaultCode),
		Confidence:    0,
		Reasoning:     "no rule matched",
	}
}
