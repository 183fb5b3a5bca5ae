package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the chunk index and conversation log tables if they
// do not exist. The embedding column dimension is fixed at creation time and
// must match the configured embedding model.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}

	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		`CREATE TABLE IF NOT EXISTS documents (
			id UUID PRIMARY KEY,
			document_id UUID NOT NULL,
			filename TEXT NOT NULL,
			pages INT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id UUID PRIMARY KEY,
			document_id UUID NOT NULL,
			filename TEXT NOT NULL,
			page_number INT NOT NULL,
			content TEXT NOT NULL,
			embedding VECTOR(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, dimension),
		"CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id)",
		"CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks USING ivfflat (embedding vector_cosine_ops)",
		`CREATE TABLE IF NOT EXISTS conversations (
			id UUID PRIMARY KEY,
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			sources JSONB NOT NULL DEFAULT '[]'::jsonb,
			user_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		"CREATE INDEX IF NOT EXISTS idx_conversations_created ON conversations(created_at DESC)",
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}

	return nil
}
