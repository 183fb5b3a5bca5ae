package ingestion

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/pgvector/pgvector-go"
	"golang.org/x/sync/errgroup"

	"github.com/tanmaypaliwal576/OpsMind/embeddings"
	"github.com/tanmaypaliwal576/OpsMind/knowledge"
)

// maxEmbedConcurrency bounds the per-page embedding fan-out so a large
// document cannot flood the embedding service.
const maxEmbedConcurrency = 4

const asyncIngestTimeout = 10 * time.Minute

type Service struct {
	pool         *pgxpool.Pool
	driver       neo4j.DriverWithContext
	embedder     embeddings.Embedder
	logger       *log.Logger
	chunkSize    int
	chunkOverlap int
}

func NewService(pool *pgxpool.Pool, driver neo4j.DriverWithContext, embedder embeddings.Embedder, logger *log.Logger, chunkSize, chunkOverlap int) *Service {
	if logger == nil {
		logger = log.Default()
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = DefaultChunkOverlap
	}

	return &Service{
		pool:         pool,
		driver:       driver,
		embedder:     embedder,
		logger:       logger,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// IngestAsync runs IngestFile on its own goroutine, decoupled from the
// caller's request lifetime. Failures are observable only in the log.
func (s *Service) IngestAsync(filename string, data []byte) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), asyncIngestTimeout)
		defer cancel()

		if err := s.IngestFile(ctx, filename, data); err != nil {
			s.logger.Printf("ingest failed for %s: %v", filename, err)
		}
	}()
}

// IngestFile extracts a PDF page by page, chunks each page, embeds every
// chunk and writes all rows in one batch. If any embedding fails the whole
// document is abandoned; no partial index is left behind. Repeated uploads
// of the same filename append under a fresh document id.
func (s *Service) IngestFile(ctx context.Context, filename string, data []byte) error {
	if s.embedder == nil {
		return fmt.Errorf("embedder not configured")
	}
	if len(data) == 0 {
		return fmt.Errorf("empty file")
	}

	pages, err := ExtractPages(data)
	if err != nil {
		return fmt.Errorf("parse %s: %w", filename, err)
	}

	pageChunks := make([][]string, len(pages))
	for i, pageText := range pages {
		pageChunks[i] = Chunk(pageText, s.chunkSize, s.chunkOverlap)
	}

	vectors, err := s.embedPages(ctx, pageChunks)
	if err != nil {
		return fmt.Errorf("embed %s: %w", filename, err)
	}

	docID := uuid.New()
	batch := &pgx.Batch{}
	chunkCount := 0
	for i := range pageChunks {
		for j, content := range pageChunks[i] {
			batch.Queue(`
				INSERT INTO chunks (id, document_id, filename, page_number, content, embedding)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, uuid.New(), docID, filename, i+1, content, pgvector.NewVector(vectors[i][j]))
			chunkCount++
		}
	}

	if chunkCount == 0 {
		s.logger.Printf("no indexable text in %s (%d pages)", filename, len(pages))
		return nil
	}

	batch.Queue(`
		INSERT INTO documents (id, document_id, filename, pages)
		VALUES ($1, $2, $3, $4)
	`, uuid.New(), docID, filename, len(pages))

	if err := s.flushBatch(ctx, batch); err != nil {
		return fmt.Errorf("index %s: %w", filename, err)
	}

	if s.driver != nil {
		if err := knowledge.SyncDocument(ctx, s.driver, graphDocument(docID.String(), filename, pageChunks)); err != nil {
			// The chunk index is already committed; the graph mirror is
			// best-effort enrichment only.
			s.logger.Printf("graph sync failed for %s: %v", filename, err)
		}
	}

	s.logger.Printf("ingested %s (%d pages, %d chunks)", filename, len(pages), chunkCount)
	return nil
}

// IngestDirectory ingests every PDF under dir. A failure in one document
// does not stop the others.
func (s *Service) IngestDirectory(ctx context.Context, dir string) error {
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("data directory: %w", err)
	}

	entries := make([]string, 0)
	if err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(strings.ToLower(d.Name()), ".pdf") {
			entries = append(entries, path)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("walk data directory: %w", err)
	}

	if len(entries) == 0 {
		s.logger.Printf("no pdf files found in %s", dir)
		return nil
	}

	for _, path := range entries {
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Printf("read %s: %v", path, err)
			continue
		}
		if err := s.IngestFile(ctx, filepath.Base(path), data); err != nil {
			s.logger.Printf("ingest failed for %s: %v", path, err)
		}
	}

	return nil
}

// embedPages fans out one embedding call per non-empty page and gathers the
// vectors back into page order. The first failure cancels the remaining
// calls and fails the whole document.
func (s *Service) embedPages(ctx context.Context, pageChunks [][]string) ([][][]float32, error) {
	vectors := make([][][]float32, len(pageChunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxEmbedConcurrency)

	for i := range pageChunks {
		if len(pageChunks[i]) == 0 {
			continue
		}
		i := i
		g.Go(func() error {
			vecs, err := s.embedder.Embed(gctx, pageChunks[i])
			if err != nil {
				return fmt.Errorf("page %d: %w", i+1, err)
			}
			if len(vecs) != len(pageChunks[i]) {
				return fmt.Errorf("page %d: have %d chunks, %d vectors", i+1, len(pageChunks[i]), len(vecs))
			}
			for j, vec := range vecs {
				if len(vec) == 0 {
					return fmt.Errorf("page %d chunk %d: empty embedding", i+1, j)
				}
			}
			vectors[i] = vecs
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (s *Service) flushBatch(ctx context.Context, batch *pgx.Batch) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && rbErr != pgx.ErrTxClosed {
				s.logger.Printf("rollback error: %v", rbErr)
			}
		}
	}()

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, execErr := br.Exec(); execErr != nil {
			br.Close()
			err = fmt.Errorf("insert row %d: %w", i, execErr)
			return err
		}
	}
	if err = br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func graphDocument(docID, filename string, pageChunks [][]string) knowledge.Document {
	doc := knowledge.Document{
		DocumentID: docID,
		Filename:   filename,
	}
	for i, chunks := range pageChunks {
		if len(chunks) == 0 {
			continue
		}
		doc.Pages = append(doc.Pages, knowledge.Page{
			Number:     i + 1,
			ChunkCount: len(chunks),
		})
	}
	return doc
}
