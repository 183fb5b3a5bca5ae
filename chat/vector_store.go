package chat

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

const (
	DefaultNumCandidates = 200
	DefaultLimit         = 8
)

// VectorStore performs approximate nearest-neighbor search over the chunk
// index. numCandidates bounds the search breadth, limit the result count.
// An empty index yields an empty slice, not an error.
type VectorStore interface {
	Search(ctx context.Context, embedding []float32, numCandidates, limit int) ([]ChunkResult, error)
}

type PostgresVectorStore struct {
	pool *pgxpool.Pool
}

func NewPostgresVectorStore(pool *pgxpool.Pool) *PostgresVectorStore {
	return &PostgresVectorStore{pool: pool}
}

func (s *PostgresVectorStore) Search(ctx context.Context, embedding []float32, numCandidates, limit int) ([]ChunkResult, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("embedding is empty")
	}
	if numCandidates <= 0 {
		numCandidates = DefaultNumCandidates
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	// Search breadth maps onto ivfflat probes; the result limit stays a
	// plain LIMIT.
	probes := numCandidates / 20
	if probes < 10 {
		probes = 10
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf("SET ivfflat.probes = %d", probes)); err != nil {
		return nil, fmt.Errorf("set ivfflat probes: %w", err)
	}

	rows, err := conn.Query(ctx, `
        SELECT
            filename,
            page_number,
            content,
            (embedding <=> $1::vector) AS distance
        FROM chunks
        ORDER BY embedding <=> $1::vector
        LIMIT $2
    `, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("query similar chunks: %w", err)
	}
	defer rows.Close()

	results := make([]ChunkResult, 0, limit)
	for rows.Next() {
		var item ChunkResult
		var distance float64
		if scanErr := rows.Scan(&item.Filename, &item.PageNumber, &item.Content, &distance); scanErr != nil {
			return nil, fmt.Errorf("scan similar chunk: %w", scanErr)
		}
		item.Score = cosineScore(distance)
		results = append(results, item)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return results, nil
}

// cosineScore maps pgvector's cosine distance (0..2) onto the 0..1
// similarity the confidence gate compares against its threshold.
func cosineScore(distance float64) float64 {
	score := 1 - distance
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

var _ VectorStore = (*PostgresVectorStore)(nil)
