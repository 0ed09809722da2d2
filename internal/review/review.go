package review

import (
	"context"
	"fmt"

	"github.com/dvloznov/bookkeeper/internal/domain"
	"github.com/dvloznov/bookkeeper/internal/logger"
	"github.com/jomei/notionapi"
)

// Correction is a reviewer's decision read back from the review database.
// A zero Confidence means the caller's default applies.
type Correction struct {
	PageID        string
	TransactionID string
	AccountCode   string
	Confidence    float64
	Reason        string
}

// ExportStats counts what Export did.
type ExportStats struct {
	Created int
	Skipped int
	Failed  int
}

// Export creates one review page per flagged result. Results that already
// have a page for the same session are skipped, so exporting twice is safe.
// Individual page failures are logged and counted; the export continues.
func Export(ctx context.Context, db ReviewDatabase, sessionID string, flagged []domain.CategorizationResult, dryRun bool) (ExportStats, error) {
	log := logger.FromContext(ctx)
	var stats ExportStats

	pages, err := querySessionPages(ctx, db, sessionID)
	if err != nil {
		return stats, fmt.Errorf("Export: %w", err)
	}
	existing := make(map[string]bool, len(pages))
	for _, p := range pages {
		existing[plainText(p, PropTransactionID)] = true
	}

	for _, r := range flagged {
		if existing[r.TransactionID] {
			stats.Skipped++
			continue
		}
		if dryRun {
			log.Info().Str("txn_id", r.TransactionID).Msg("[DRY RUN] Would create review page")
			stats.Created++
			continue
		}
		page, err := db.AddPage(ctx, ResultToNotionProperties(sessionID, r))
		if err != nil {
			log.Warn().Err(err).Str("txn_id", r.TransactionID).Msg("Failed to create review page")
			stats.Failed++
			continue
		}
		log.Debug().Str("txn_id", r.TransactionID).Str("page_id", string(page.ID)).Msg("Created review page")
		existing[r.TransactionID] = true
		stats.Created++
	}

	log.Info().
		Int("created", stats.Created).
		Int("skipped", stats.Skipped).
		Int("failed", stats.Failed).
		Bool("dry_run", dryRun).
		Msg("Review export completed")
	return stats, nil
}

// Import returns the corrections entered for a session: pages with a
// Corrected Account that have not been applied yet.
func Import(ctx context.Context, db ReviewDatabase, sessionID string) ([]Correction, error) {
	pages, err := querySessionPages(ctx, db, sessionID)
	if err != nil {
		return nil, fmt.Errorf("Import: %w", err)
	}

	var out []Correction
	for _, p := range pages {
		if selectName(p, PropStatus) == StatusApplied {
			continue
		}
		code := accountCode(plainText(p, PropCorrectedAccount))
		txnID := plainText(p, PropTransactionID)
		if code == "" || txnID == "" {
			continue
		}
		out = append(out, Correction{
			PageID:        string(p.ID),
			TransactionID: txnID,
			AccountCode:   code,
			Reason:        plainText(p, PropNote),
		})
	}
	log := logger.FromContext(ctx)
	log.Info().Int("pages", len(pages)).Int("corrections", len(out)).Msg("Review import completed")
	return out, nil
}

// MarkApplied sets the status of a review page to Applied so later imports
// skip it.
func MarkApplied(ctx context.Context, db ReviewDatabase, c Correction) error {
	props := notionapi.Properties{PropStatus: selectOption(StatusApplied)}
	if _, err := db.SetProperties(ctx, c.PageID, props); err != nil {
		return fmt.Errorf("MarkApplied: %s: %w", c.TransactionID, err)
	}
	return nil
}

// querySessionPages returns every review page of a session, following the
// pagination cursor.
func querySessionPages(ctx context.Context, db ReviewDatabase, sessionID string) ([]notionapi.Page, error) {
	var pages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		resp, err := db.QuerySession(ctx, sessionID, cursor)
		if err != nil {
			return nil, fmt.Errorf("querySessionPages: %w", err)
		}
		for _, p := range resp.Results {
			// the filter is applied again locally for stores that ignore it
			if plainText(p, PropSession) == sessionID {
				pages = append(pages, p)
			}
		}

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}
	return pages, nil
}
