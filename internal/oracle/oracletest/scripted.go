// Package oracletest provides a programmable oracle for tests.
package oracletest

import (
	"context"
	"sort"
	"sync"

	"github.com/dvloznov/bookkeeper/internal/coa"
	"github.com/dvloznov/bookkeeper/internal/domain"
)

// Scripted answers every transaction with a fixed or per-id account and can be
// told to fail or hang on chunks containing particular transactions.
type Scripted struct {
	Code       string
	Confidence float64
	ByID       map[string]domain.Suggestion

	mu    sync.Mutex
	fail  map[string]error
	hang  map[string]bool
	skip  map[string]bool
	calls [][]string
}

// New returns a Scripted oracle answering code at the given confidence.
func New(code string, confidence float64) *Scripted {
	return &Scripted{
		Code:       code,
		Confidence: confidence,
		ByID:       map[string]domain.Suggestion{},
		fail:       map[string]error{},
		hang:       map[string]bool{},
		skip:       map[string]bool{},
	}
}

// Answer sets the suggestion for one transaction.
func (s *Scripted) Answer(txnID, code string, confidence float64) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ByID[txnID] = domain.Suggestion{TransactionID: txnID, AccountCode: code, Confidence: confidence, Reasoning: "scripted"}
	return s
}

// FailWhen makes any chunk containing txnID return err.
func (s *Scripted) FailWhen(txnID string, err error) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[txnID] = err
	return s
}

// HangWhen makes any chunk containing txnID block until its context is done.
func (s *Scripted) HangWhen(txnID string) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hang[txnID] = true
	return s
}

// Omit drops txnID from the answers of an otherwise successful chunk.
func (s *Scripted) Omit(txnID string) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skip[txnID] = true
	return s
}

// Categorize implements oracle.Oracle.
func (s *Scripted) Categorize(ctx context.Context, txns []domain.Transaction, idx *coa.Index) ([]domain.Suggestion, error) {
	ids := make([]string, len(txns))
	for i, t := range txns {
		ids[i] = t.ID
	}

	s.mu.Lock()
	s.calls = append(s.calls, ids)
	var (
		failErr error
		hang    bool
	)
	for _, id := range ids {
		if err, ok := s.fail[id]; ok {
			failErr = err
		}
		hang = hang || s.hang[id]
	}
	s.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if failErr != nil {
		return nil, failErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Suggestion, 0, len(txns))
	for _, t := range txns {
		if s.skip[t.ID] {
			continue
		}
		sg, ok := s.ByID[t.ID]
		if !ok {
			sg = domain.Suggestion{TransactionID: t.ID, AccountCode: s.Code, Confidence: s.Confidence, Reasoning: "scripted"}
		}
		if sg.AccountName == "" && idx != nil {
			sg.AccountName = idx.Name(sg.AccountCode)
		}
		out = append(out, sg)
	}
	return out, nil
}

// Calls returns the transaction ids of every call, in call order.
func (s *Scripted) Calls() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.calls))
	copy(out, s.calls)
	return out
}

// Dispatched returns every transaction id sent to the oracle, sorted.
func (s *Scripted) Dispatched() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, c := range s.calls {
		ids = append(ids, c...)
	}
	sort.Strings(ids)
	return ids
}
