package main

import (
	"fmt"
	"time"

	"github.com/dvloznov/bookkeeper/internal/artifacts"
	"github.com/dvloznov/bookkeeper/internal/pipeline"
	"github.com/dvloznov/bookkeeper/internal/review"
	"github.com/dvloznov/bookkeeper/internal/triage"
	"github.com/fatih/color"
)

func runReviewExport(args []string) {
	fs, configPath := newFlagSet("review-export")
	sessionID := fs.String("session", "", "Session id (default: latest)")
	dryRun := fs.Bool("dry-run", false, "Preview what would be created without writing to Notion")
	fs.Parse(args)

	rt, ctx, cancel := open(*configPath)
	defer cancel()
	defer closeRuntime(rt, rt.Log)
	log := rt.Log

	db, err := review.NewNotionDatabase(rt.Config.Notion.Token, rt.Config.Notion.ReviewDatabaseID)
	if err != nil {
		log.Fatal().Err(err).Msg("Review database is not configured")
	}

	id := resolveSession(ctx, rt, *sessionID)
	_, records, err := rt.Store.ReadAll(ctx, id)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read session")
	}
	outcome := triage.Triage(triage.MergeLatest(records), rt.Config.Categorize.ConfidenceThreshold)

	stats, err := review.Export(ctx, db, id, outcome.Flagged, *dryRun)
	if err != nil {
		log.Fatal().Err(err).Msg("Review export failed")
	}
	fmt.Printf("Exported %d, skipped %d, failed %d\n", stats.Created, stats.Skipped, stats.Failed)
}

func runReviewImport(args []string) {
	fs, configPath := newFlagSet("review-import")
	sessionID := fs.String("session", "", "Session id (default: latest)")
	chart := fs.String("chart", "", "Chart of accounts (default: the one recorded on the session)")
	dryRun := fs.Bool("dry-run", false, "List corrections without applying them")
	fs.Parse(args)

	rt, ctx, cancel := open(*configPath)
	defer cancel()
	defer closeRuntime(rt, rt.Log)
	log := rt.Log

	db, err := review.NewNotionDatabase(rt.Config.Notion.Token, rt.Config.Notion.ReviewDatabaseID)
	if err != nil {
		log.Fatal().Err(err).Msg("Review database is not configured")
	}

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

	corrections, err := review.Import(ctx, db, id)
	if err != nil {
		log.Fatal().Err(err).Msg("Review import failed")
	}

	var applied, failed int
	for _, c := range corrections {
		if *dryRun {
			fmt.Printf("[DRY RUN] %s -> %s\n", c.TransactionID, c.AccountCode)
			continue
		}
		result, err := pipeline.ApplyCorrection(ctx, rt.Store, idx, id, c.TransactionID, c.AccountCode, c.Confidence, c.Reason, time.Now())
		if err != nil {
			log.Warn().Err(err).Str("txn_id", c.TransactionID).Str("page_id", c.PageID).Msg("Correction rejected")
			failed++
			continue
		}
		if err := review.MarkApplied(ctx, db, c); err != nil {
			// the correction is stored; a later import applies it again as a new version
			log.Warn().Err(err).Str("page_id", c.PageID).Msg("Failed to mark review page applied")
		}
		color.Green("%s -> %s %s\n", result.TransactionID, result.AccountCode, result.AccountName)
		applied++
	}
	fmt.Printf("Corrections: %d found, %d applied, %d rejected\n", len(corrections), applied, failed)
}

func runUpload(args []string) {
	fs, configPath := newFlagSet("upload")
	file := fs.String("file", "", "Local file to upload")
	bucket := fs.String("bucket", "", "Bucket (default: artifacts.bucket)")
	prefix := fs.String("prefix", "", "Object prefix (default: artifacts.prefix)")
	fs.Parse(args)

	if *file == "" {
		fmt.Println("Usage: cli upload -file PATH [-bucket NAME] [-prefix PREFIX]")
		fs.PrintDefaults()
		return
	}

	rt, ctx, cancel := open(*configPath)
	defer cancel()
	defer closeRuntime(rt, rt.Log)
	log := rt.Log

	if *bucket == "" {
		*bucket = rt.Config.Artifacts.Bucket
	}
	if *prefix == "" {
		*prefix = rt.Config.Artifacts.Prefix
	}
	if *bucket == "" {
		log.Fatal().Msg("A bucket is required: pass -bucket or set artifacts.bucket")
	}

	gcs, err := rt.Storage(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Cloud Storage")
	}
	uris, err := artifacts.Publish(ctx, gcs, *bucket, *prefix, *file)
	if err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}
	fmt.Printf("Uploaded %s to %s\n", *file, uris[0])
}
