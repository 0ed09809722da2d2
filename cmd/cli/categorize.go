package main

import (
	"fmt"
	"time"

	"github.com/dvloznov/bookkeeper/internal/pipeline"
	"github.com/fatih/color"
)

func runCategorize(args []string) {
	fs, configPath := newFlagSet("categorize")
	export := fs.String("export", "", "Bank export CSV (path or gs:// URI)")
	chart := fs.String("chart", "", "Chart of accounts (path or gs:// URI)")
	resume := fs.String("resume", "", "Session id to resume, or \"latest\"")
	fs.Parse(args)

	if *export == "" || *chart == "" {
		fmt.Println("Usage: cli categorize -export FILE -chart FILE [-resume ID|latest]")
		fs.PrintDefaults()
		return
	}

	rt, ctx, cancel := open(*configPath)
	defer cancel()
	defer closeRuntime(rt, rt.Log)
	log := rt.Log

	deps, err := rt.Deps(ctx, true, *export, *chart)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build dependencies")
	}

	start := time.Now()
	state := &pipeline.RunState{ExportPath: *export, ChartPath: *chart, ResumeID: *resume}
	if err := pipeline.RunCategorize(ctx, deps, state); err != nil {
		if state.SessionID != "" {
			log.Error().Str("session_id", state.SessionID).Msg("Run interrupted; resume with -resume " + state.SessionID)
		}
		log.Fatal().Err(err).Msg("Categorization failed")
	}

	bold := color.New(color.Bold)
	bold.Printf("Session %s\n", state.SessionID)
	fmt.Printf("  transactions: %d (new this run: %d)\n", len(state.Results), len(state.New))
	fmt.Printf("  average confidence: %.2f\n", state.Stats.AverageConfidence)
	b := state.Stats.Bands
	fmt.Printf("  bands: %s %s %s %s\n",
		color.GreenString("high=%d", b.High),
		color.YellowString("medium=%d", b.Medium),
		color.RedString("low=%d", b.Low),
		color.MagentaString("errors=%d", b.Errors))
	if n := len(state.Unknown); n > 0 {
		color.Yellow("  %d unknown account codes were defaulted to %s\n", n, rt.Config.Categorize.DefaultAccountCode)
	}
	if n := len(state.Outcome.Flagged); n > 0 {
		fmt.Printf("  flagged for review: %d (run 'cli flagged -session %s')\n", n, state.SessionID)
	}
	fmt.Printf("  took %s\n", time.Since(start).Round(time.Millisecond))
}
