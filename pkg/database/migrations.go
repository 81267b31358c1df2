package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CreateGINIndexes creates full-text search GIN indexes that are awkward to
// express through the migration files directly (kept separate so they can be
// rebuilt with CONCURRENTLY outside of a migration transaction in the future).
func CreateGINIndexes(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx,
		`CREATE INDEX IF NOT EXISTS idx_change_log_entries_description_gin
		ON change_log_entries USING gin(to_tsvector('english', description))`)
	if err != nil {
		return fmt.Errorf("failed to create change_log_entries description GIN index: %w", err)
	}

	_, err = pool.Exec(ctx,
		`CREATE INDEX IF NOT EXISTS idx_approval_requests_content_summary_gin
		ON approval_requests USING gin(to_tsvector('english', content_summary))`)
	if err != nil {
		return fmt.Errorf("failed to create approval_requests content_summary GIN index: %w", err)
	}

	return nil
}
