package knowledge

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Document is one uploaded PDF as mirrored into the graph. Repeated uploads
// of the same filename become separate Document nodes grouped under a
// shared File node.
type Document struct {
	DocumentID string
	Filename   string
	Pages      []Page
}

type Page struct {
	Number     int
	ChunkCount int
}

// SyncDocument mirrors one ingested document into neo4j:
// (:File {name})<-[:UPLOAD_OF]-(:Document {documentId})-[:HAS_PAGE]->(:Page).
// The mirror only enriches reporting; the chunk index in Postgres remains
// the source of truth.
func SyncDocument(ctx context.Context, driver neo4j.DriverWithContext, doc Document) error {
	if driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}

	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
			MERGE (f:File {name: $filename})
			MERGE (d:Document {documentId: $documentId})
			SET d.filename = $filename,
			    d.pages = $pages,
			    d.ingested_at = datetime()
			MERGE (d)-[:UPLOAD_OF]->(f)
		`, map[string]any{
			"documentId": doc.DocumentID,
			"filename":   doc.Filename,
			"pages":      len(doc.Pages),
		}); err != nil {
			return nil, fmt.Errorf("upsert document node: %w", err)
		}

		for _, page := range doc.Pages {
			if _, err := tx.Run(ctx, `
				MATCH (d:Document {documentId: $documentId})
				MERGE (p:Page {id: $pageId})
				SET p.number = $number,
				    p.chunkCount = $chunkCount
				MERGE (d)-[:HAS_PAGE]->(p)
			`, map[string]any{
				"documentId": doc.DocumentID,
				"pageId":     fmt.Sprintf("%s-%d", doc.DocumentID, page.Number),
				"number":     page.Number,
				"chunkCount": page.ChunkCount,
			}); err != nil {
				return nil, fmt.Errorf("upsert page node: %w", err)
			}
		}

		return nil, nil
	})
	if err != nil {
		return err
	}

	return nil
}

// Purge removes every mirrored node. Used by the clear command.
func Purge(ctx context.Context, driver neo4j.DriverWithContext) error {
	if driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}

	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	queries := []string{
		"MATCH (p:Page) DETACH DELETE p",
		"MATCH (d:Document) DETACH DELETE d",
		"MATCH (f:File) DETACH DELETE f",
	}

	for _, query := range queries {
		result, err := session.Run(ctx, query, nil)
		if err != nil {
			return fmt.Errorf("purge graph: %w", err)
		}
		if _, err := result.Consume(ctx); err != nil {
			return fmt.Errorf("consume purge result: %w", err)
		}
	}

	return nil
}
