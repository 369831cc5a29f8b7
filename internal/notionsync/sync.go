package notionsync

import (
	"context"
	"fmt"

	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/dvloznov/expense-tracker/internal/logger"
	"github.com/jomei/notionapi"
)

const (
	// BatchSize defines the number of records processed between progress logs
	// and the page size of database queries.
	BatchSize = 100
)

// Options control a sync run.
type Options struct {
	DryRun bool
	// Prune archives pages whose Transaction ID is no longer in the record set.
	Prune bool
}

// Stats summarises a sync run.
type Stats struct {
	Created  int `json:"created" yaml:"created"`
	Skipped  int `json:"skipped" yaml:"skipped"`
	Archived int `json:"archived" yaml:"archived"`
	Failed   int `json:"failed" yaml:"failed"`
}

// SyncTransactions creates a page in the Notion database for every record
// that has no page yet, keyed by the Transaction ID property. Unsynced local
// records are skipped since their ids are provisional. Individual page
// failures are logged and counted; only a failed database query aborts the run.
func SyncTransactions(ctx context.Context, notionClient NotionService, notionDBID string, txs []domain.Transaction, opts Options) (Stats, error) {
	log := logger.FromContext(ctx)
	var stats Stats

	log.Info().
		Int("transaction_count", len(txs)).
		Bool("dry_run", opts.DryRun).
		Bool("prune", opts.Prune).
		Msg("Starting transaction sync to Notion")

	pages, err := queryAllNotionPages(ctx, notionClient, notionDBID)
	if err != nil {
		return stats, fmt.Errorf("SyncTransactions: %w", err)
	}

	existing := make(map[string]bool, len(pages))
	for _, page := range pages {
		if id := extractTransactionID(page); id != "" {
			existing[id] = true
		}
	}

	valid := make(map[string]bool, len(txs))
	for i, tx := range txs {
		if i > 0 && i%BatchSize == 0 {
			log.Info().Int("processed", i).Int("total", len(txs)).Msg("Processing batch")
		}

		if tx.ID == "" || domain.IsLocalID(tx.ID) {
			stats.Skipped++
			continue
		}
		valid[tx.ID] = true

		if existing[tx.ID] {
			stats.Skipped++
			continue
		}

		if opts.DryRun {
			log.Info().Str("transaction_id", tx.ID).Msg("[DRY RUN] Would create new Notion page")
			stats.Created++
			continue
		}

		page, err := notionClient.CreatePage(ctx, notionDBID, TransactionToNotionProperties(tx))
		if err != nil {
			log.Warn().Err(err).Str("transaction_id", tx.ID).Msg("Failed to create Notion page")
			stats.Failed++
			continue
		}
		existing[tx.ID] = true
		log.Debug().Str("transaction_id", tx.ID).Str("page_id", string(page.ID)).Msg("Created Notion page")
		stats.Created++
	}

	if opts.Prune {
		for _, page := range pages {
			id := extractTransactionID(page)
			if id == "" || valid[id] {
				continue
			}
			if opts.DryRun {
				log.Info().Str("transaction_id", id).Str("page_id", string(page.ID)).Msg("[DRY RUN] Would archive stale Notion page")
				stats.Archived++
				continue
			}
			if err := notionClient.ArchivePage(ctx, string(page.ID)); err != nil {
				log.Warn().Err(err).Str("transaction_id", id).Str("page_id", string(page.ID)).Msg("Failed to archive stale Notion page")
				stats.Failed++
				continue
			}
			stats.Archived++
		}
	}

	log.Info().
		Int("created", stats.Created).
		Int("skipped", stats.Skipped).
		Int("archived", stats.Archived).
		Int("failed", stats.Failed).
		Msg("Transaction sync completed")

	return stats, nil
}

// queryAllNotionPages follows the pagination cursor until the database is exhausted.
func queryAllNotionPages(ctx context.Context, notionClient NotionService, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			PageSize: BatchSize,
		}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notionClient.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}
