package chat

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// GraphStore answers per-filename questions against the optional document
// mirror. It only enriches reporting; every caller must tolerate its
// absence or failure.
type GraphStore interface {
	DocumentInsights(ctx context.Context, filenames []string) (map[string]DocumentInsight, error)
}

type Neo4jGraphStore struct {
	driver neo4j.DriverWithContext
}

func NewNeo4jGraphStore(driver neo4j.DriverWithContext) *Neo4jGraphStore {
	return &Neo4jGraphStore{driver: driver}
}

func (s *Neo4jGraphStore) DocumentInsights(ctx context.Context, filenames []string) (map[string]DocumentInsight, error) {
	if s.driver == nil {
		return nil, fmt.Errorf("neo4j driver is nil")
	}
	if len(filenames) == 0 {
		return map[string]DocumentInsight{}, nil
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (f:File)<-[:UPLOAD_OF]-(d:Document)
		WHERE f.name IN $names
		OPTIONAL MATCH (d)-[:HAS_PAGE]->(p:Page)
		RETURN f.name AS name,
		       count(DISTINCT d) AS uploads,
		       count(p) AS pages,
		       coalesce(sum(p.chunkCount), 0) AS chunks
	`, map[string]any{"names": filenames})
	if err != nil {
		return nil, fmt.Errorf("run neo4j insights query: %w", err)
	}

	insights := make(map[string]DocumentInsight, len(filenames))
	for result.Next(ctx) {
		record := result.Record()
		name, _ := record.Get("name")
		uploads, _ := record.Get("uploads")
		pages, _ := record.Get("pages")
		chunks, _ := record.Get("chunks")

		filename, ok := name.(string)
		if !ok {
			continue
		}
		insights[filename] = DocumentInsight{
			Uploads: int(asInt64(uploads)),
			Pages:   int(asInt64(pages)),
			Chunks:  int(asInt64(chunks)),
		}
	}

	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("neo4j insights result error: %w", err)
	}

	return insights, nil
}

func asInt64(value any) int64 {
	switch v := value.(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

var _ GraphStore = (*Neo4jGraphStore)(nil)
