package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ConversationStore is the insert-only conversation log plus the filtered
// reads the reporting surface needs. Records are never updated or deleted.
type ConversationStore interface {
	Insert(ctx context.Context, record ConversationRecord) error
	Analytics(ctx context.Context) (AnalyticsReport, error)
}

type PostgresConversationStore struct {
	pool *pgxpool.Pool
}

func NewPostgresConversationStore(pool *pgxpool.Pool) *PostgresConversationStore {
	return &PostgresConversationStore{pool: pool}
}

func (s *PostgresConversationStore) Insert(ctx context.Context, record ConversationRecord) error {
	if s.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	sources := record.Sources
	if sources == nil {
		sources = []SourceCitation{}
	}
	payload, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}

	if _, err := s.pool.Exec(ctx, `
		INSERT INTO conversations (id, question, answer, confidence, sources, user_id)
		VALUES ($1, $2, $3, $4, $5::jsonb, NULLIF($6, ''))
	`, record.ID, record.Question, record.Answer, record.Confidence, payload, record.UserID); err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}

	return nil
}

func (s *PostgresConversationStore) Analytics(ctx context.Context) (AnalyticsReport, error) {
	if s.pool == nil {
		return AnalyticsReport{}, fmt.Errorf("postgres pool is nil")
	}

	var report AnalyticsReport

	if err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(AVG(confidence), 0) FROM conversations
	`).Scan(&report.TotalConversations, &report.AverageConfidence); err != nil {
		return AnalyticsReport{}, fmt.Errorf("count conversations: %w", err)
	}

	if err := s.pool.QueryRow(ctx, `
		SELECT COUNT(DISTINCT filename) FROM documents
	`).Scan(&report.TotalDocuments); err != nil {
		return AnalyticsReport{}, fmt.Errorf("count documents: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT src->>'filename' AS filename, COUNT(*) AS queries
		FROM conversations, jsonb_array_elements(sources) AS src
		GROUP BY 1
		ORDER BY 2 DESC, 1
		LIMIT 5
	`)
	if err != nil {
		return AnalyticsReport{}, fmt.Errorf("query top documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var top TopDocument
		if err := rows.Scan(&top.Filename, &top.Queries); err != nil {
			return AnalyticsReport{}, fmt.Errorf("scan top document: %w", err)
		}
		report.TopDocuments = append(report.TopDocuments, top)
	}
	if rows.Err() != nil {
		return AnalyticsReport{}, rows.Err()
	}

	recent, err := s.pool.Query(ctx, `
		SELECT question, created_at
		FROM conversations
		ORDER BY created_at DESC
		LIMIT 10
	`)
	if err != nil {
		return AnalyticsReport{}, fmt.Errorf("query recent questions: %w", err)
	}
	defer recent.Close()

	for recent.Next() {
		var q RecentQuestion
		if err := recent.Scan(&q.Question, &q.AskedAt); err != nil {
			return AnalyticsReport{}, fmt.Errorf("scan recent question: %w", err)
		}
		report.RecentQuestions = append(report.RecentQuestions, q)
	}
	if recent.Err() != nil {
		return AnalyticsReport{}, recent.Err()
	}

	return report, nil
}

var _ ConversationStore = (*PostgresConversationStore)(nil)
