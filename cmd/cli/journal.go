package main

import (
	"fmt"

	"github.com/dvloznov/bookkeeper/internal/pipeline"
	"github.com/dvloznov/bookkeeper/internal/report"
	"github.com/fatih/color"
	"github.com/shopspring/decimal"
)

func runJournal(args []string) {
	fs, configPath := newFlagSet("journal")
	sessionID := fs.String("session", "", "Session id (default: latest)")
	out := fs.String("out", "", "Output directory (default: journal.outputDir)")
	strict := fs.Bool("strict", false, "Leave out flagged results that were not corrected")
	allowImbalance := fs.Bool("allow-imbalance", false, "Write outputs even when the journal does not balance")
	allowIncomplete := fs.Bool("allow-incomplete", false, "Journal a session that is missing transactions (resume it with categorize first)")
	fs.Parse(args)

	rt, ctx, cancel := open(*configPath)
	defer cancel()
	defer closeRuntime(rt, rt.Log)
	log := rt.Log

	deps, err := rt.Deps(ctx, false)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build dependencies")
	}

	state := &pipeline.RunState{
		SessionID:       *sessionID,
		Strict:          *strict,
		AllowImbalance:  *allowImbalance,
		AllowIncomplete: *allowIncomplete,
		OutputDir:       *out,
	}
	if state.OutputDir == "" {
		state.OutputDir = rt.Config.Journal.OutputDir
	}
	if err := pipeline.RunJournal(ctx, deps, state); err != nil {
		log.Fatal().Err(err).Msg("Journal generation failed")
	}

	s := state.Report.Summary
	color.New(color.Bold).Printf("Journal %s (session %s)\n", state.JournalID, state.SessionID)
	fmt.Printf("  entries: %d, skipped: %d, policy: %s\n", len(state.Entries)/2, len(state.Skipped), state.Report.Metadata.Policy)
	balance := color.GreenString("%s", s.BalanceCheck)
	if s.BalanceCheck != report.Balanced {
		balance = color.RedString("%s", s.BalanceCheck)
	}
	fmt.Printf("  debits %s, credits %s: %s\n", amount(s.TotalDebits), amount(s.TotalCredits), balance)
	if md := state.Report.Metadata; md.CategorizedTransactions < md.TotalTransactions {
		color.Yellow("  incomplete session: %d of %d transactions categorized\n", md.CategorizedTransactions, md.TotalTransactions)
	}
	for _, sk := range state.Skipped {
		color.Yellow("  skipped %s: %s\n", sk.TransactionID, sk.Reason)
	}
	if state.Paths.CSV != "" {
		fmt.Printf("  wrote %s\n  wrote %s\n", state.Paths.CSV, state.Paths.JSON)
	}
	for _, uri := range state.URIs {
		fmt.Printf("  uploaded %s\n", uri)
	}
}

func amount(a report.Amount) string {
	return decimal.Decimal(a).StringFixed(2)
}
