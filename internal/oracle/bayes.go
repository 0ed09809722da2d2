package oracle

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/dvloznov/bookkeeper/internal/coa"
	"github.com/dvloznov/bookkeeper/internal/domain"
	"github.com/jbrukh/bayesian"
)

// minTrainingConfidence is the confidence a prior result needs to be used
// as a training example. Corrections are always used.
const minTrainingConfidence = 0.9

var nonLetters = regexp.MustCompile("[^a-zA-Z]+")

// BayesOracle classifies descriptions with a TF-IDF naive Bayes model trained
// on earlier categorization sessions.
type BayesOracle struct {
	cl      *bayesian.Classifier
	classes []bayesian.Class
}

// NewBayesOracle trains a classifier from prior results. It needs examples for
// at least two distinct accounts.
func NewBayesOracle(history []domain.CategorizationResult) (*BayesOracle, error) {
	type example struct {
		terms []string
		class bayesian.Class
	}
	var examples []example
	seen := make(map[bayesian.Class]bool)
	var classes []bayesian.Class

	for _, r := range history {
		if r.Source == domain.SourceFallback {
			continue
		}
		if !r.IsCorrection() && r.Confidence < minTrainingConfidence {
			continue
		}
		terms := descriptionTerms(r.Description)
		if len(terms) == 0 {
			continue
		}
		class := bayesian.Class(r.AccountCode)
		if !seen[class] {
			seen[class] = true
			classes = append(classes, class)
		}
		examples = append(examples, example{terms: terms, class: class})
	}
	if len(classes) < 2 {
		return nil, fmt.Errorf("NewBayesOracle: need training data for at least 2 accounts, found %d", len(classes))
	}

	cl := bayesian.NewClassifierTfIdf(classes...)
	for _, ex := range examples {
		cl.Learn(ex.terms, ex.class)
	}
	cl.ConvertTermsFreqToTfIdf()

	return &BayesOracle{cl: cl, classes: classes}, nil
}

// Categorize scores every transaction of the chunk.
func (b *BayesOracle) Categorize(ctx context.Context, txns []domain.Transaction, idx *coa.Index) ([]domain.Suggestion, error) {
	out := make([]domain.Suggestion, 0, len(txns))
	for _, t := range txns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		code, conf := b.classify(t.Description)
		out = append(out, domain.Suggestion{
			TransactionID: t.ID,
			AccountCode:   code,
			AccountName:   idx.Name(code),
			Confidence:    conf,
			Reasoning:     fmt.Sprintf("naive Bayes match over %d trained accounts", len(b.classes)),
		})
	}
	return out, nil
}

// classify returns the best class and a softmax-normalized confidence.
func (b *BayesOracle) classify(desc string) (string, float64) {
	terms := descriptionTerms(desc)
	if len(terms) == 0 {
		return string(b.classes[0]), 0
	}
	scores, best, _ := b.cl.LogScores(terms)
	return string(b.classes[best]), softmaxAt(scores, best)
}

func softmaxAt(scores []float64, pos int) float64 {
	maxScore := math.Inf(-1)
	for _, s := range scores {
		maxScore = math.Max(maxScore, s)
	}
	var sum float64
	for _, s := range scores {
		sum += math.Exp(s - maxScore)
	}
	if sum == 0 || math.IsNaN(sum) {
		return 0
	}
	return math.Exp(scores[pos]-maxScore) / sum
}

func descriptionTerms(desc string) []string {
	return strings.Fields(strings.ToLower(nonLetters.ReplaceAllString(desc, " ")))
}
