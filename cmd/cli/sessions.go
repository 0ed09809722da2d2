package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dvloznov/bookkeeper/internal/app"
	"github.com/dvloznov/bookkeeper/internal/pipeline"
	"github.com/dvloznov/bookkeeper/internal/triage"
	"github.com/fatih/color"
)

// resolveSession returns id, or the latest session when id is empty.
func resolveSession(ctx context.Context, rt *app.Runtime, id string) string {
	if id != "" && id != pipeline.ResumeLatest {
		return id
	}
	latest, err := rt.Store.DiscoverLatest(ctx)
	if err != nil {
		rt.Log.Fatal().Err(err).Msg("Failed to find the latest session")
	}
	return latest
}

func runCorrect(args []string) {
	fs, configPath := newFlagSet("correct")
	sessionID := fs.String("session", "", "Session id (default: latest)")
	txnID := fs.String("txn", "", "Transaction id, e.g. trans_12")
	code := fs.String("code", "", "Correct account code")
	confidence := fs.Float64("confidence", triage.DefaultCorrectionConfidence, "Confidence of the correction")
	reason := fs.String("reason", "", "Why the account was changed")
	chart := fs.String("chart", "", "Chart of accounts (default: the one recorded on the session)")
	fs.Parse(args)

	if *txnID == "" || *code == "" {
		fmt.Println("Usage: cli correct -txn ID -code CODE [-session ID] [-confidence N] [-reason TEXT]")
		fs.PrintDefaults()
		return
	}

	rt, ctx, cancel := open(*configPath)
	defer cancel()
	defer closeRuntime(rt, rt.Log)
	log := rt.Log

	id := resolveSession(ctx, rt, *sessionID)
	meta, _, err := rt.Store.ReadAll(ctx, id)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read session")
	}
	chartPath := *chart
	if chartPath == "" {
		chartPath = meta.ChartPath
	}
	deps, err := rt.Deps(ctx, false, chartPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build dependencies")
	}
	idx, err := pipeline.LoadIndex(ctx, deps, chartPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load chart of accounts")
	}

	result, err := pipeline.ApplyCorrection(ctx, rt.Store, idx, id, *txnID, *code, *confidence, *reason, time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("Correction failed")
	}
	color.Green("%s -> %s %s (version %d)\n", result.TransactionID, result.AccountCode, result.AccountName, result.Version)
}

func runFlagged(args []string) {
	fs, configPath := newFlagSet("flagged")
	sessionID := fs.String("session", "", "Session id (default: latest)")
	fs.Parse(args)

	rt, ctx, cancel := open(*configPath)
	defer cancel()
	defer closeRuntime(rt, rt.Log)

	id := resolveSession(ctx, rt, *sessionID)
	_, records, err := rt.Store.ReadAll(ctx, id)
	if err != nil {
		rt.Log.Fatal().Err(err).Msg("Failed to read session")
	}
	outcome := triage.Triage(triage.MergeLatest(records), rt.Config.Categorize.ConfidenceThreshold)

	color.New(color.Bold).Printf("Session %s: %d flagged below %.2f\n", id, len(outcome.Flagged), outcome.Threshold)
	if len(outcome.Flagged) == 0 {
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tAMOUNT\tACCOUNT\tCONF\tDESCRIPTION")
	for _, r := range outcome.Flagged {
		conf := color.YellowString("%.2f", r.Confidence)
		if r.Confidence == 0 {
			conf = color.RedString("%.2f", r.Confidence)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s %s\t%s\t%s\n",
			r.TransactionID, r.Date, r.Amount.StringFixed(2), r.AccountCode, r.AccountName, conf, r.Description)
	}
	tw.Flush()
	fmt.Printf("\nCorrect with: cli correct -session %s -txn ID -code CODE\n", id)
}

func runSessions(args []string) {
	fs, configPath := newFlagSet("sessions")
	fs.Parse(args)

	rt, ctx, cancel := open(*configPath)
	defer cancel()
	defer closeRuntime(rt, rt.Log)

	metas, err := rt.Store.List(ctx)
	if err != nil {
		rt.Log.Fatal().Err(err).Msg("Failed to list sessions")
	}
	if len(metas) == 0 {
		fmt.Println("No sessions found.")
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tCREATED\tTRANSACTIONS\tCHUNKS\tEXPORT")
	for i, m := range metas {
		id := m.SessionID
		if i == 0 {
			id = color.CyanString(id)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", id, m.CreatedAt.Format(time.RFC3339), m.TotalTransactions, m.TotalChunks, m.SourcePath)
	}
	tw.Flush()
}
