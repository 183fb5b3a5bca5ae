package chat

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DocumentLister enumerates indexed documents grouped by filename.
type DocumentLister interface {
	ListDocuments(ctx context.Context) ([]DocumentSummary, error)
}

type PostgresDocumentLister struct {
	pool *pgxpool.Pool
}

func NewPostgresDocumentLister(pool *pgxpool.Pool) *PostgresDocumentLister {
	return &PostgresDocumentLister{pool: pool}
}

func (s *PostgresDocumentLister) ListDocuments(ctx context.Context) ([]DocumentSummary, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	rows, err := s.pool.Query(ctx, `
		SELECT filename, COUNT(DISTINCT document_id) AS uploads, MAX(created_at) AS last_upload
		FROM documents
		GROUP BY filename
		ORDER BY last_upload DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	summaries := make([]DocumentSummary, 0)
	for rows.Next() {
		var summary DocumentSummary
		if err := rows.Scan(&summary.Filename, &summary.Uploads, &summary.LastUpload); err != nil {
			return nil, fmt.Errorf("scan document summary: %w", err)
		}
		summaries = append(summaries, summary)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return summaries, nil
}

var _ DocumentLister = (*PostgresDocumentLister)(nil)
