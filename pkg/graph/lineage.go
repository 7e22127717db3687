package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/8arr3tt/have-we-met-sub007/pkg/models"
	"github.com/8arr3tt/have-we-met-sub007/pkg/tracing"
)

const timeLayout = "2006-01-02T15:04:05Z"

// Lineage maintains the merge ancestry projection:
// (:GoldenRecord)-[:MERGED_FROM]->(:SourceRecord). Every write uses MERGE
// so replays are idempotent.
type Lineage struct {
	client *Client
	logger ectologger.Logger
}

// NewLineage creates a lineage projection over the graph client.
func NewLineage(client *Client, logger ectologger.Logger) *Lineage {
	return &Lineage{
		client: client,
		logger: logger,
	}
}

// LineageEdge is one MERGED_FROM edge in an ancestry walk. Depth 1 edges
// leave the requested golden record; deeper edges belong to earlier merges
// whose golden records were later absorbed.
type LineageEdge struct {
	GoldenRecordID string `json:"golden_record_id"`
	SourceRecordID string `json:"source_record_id"`
	MergedAt       string `json:"merged_at,omitempty"`
	Depth          int    `json:"depth"`
}

// LineageResult is the ancestry neighborhood of one golden record.
type LineageResult struct {
	GoldenRecordID string `json:"golden_record_id"`
	Found          bool   `json:"found"`
	// SourceRecordIDs lists the direct (depth 1) sources.
	SourceRecordIDs []string      `json:"source_record_ids"`
	Edges           []LineageEdge `json:"edges"`
}

// RecordMerge upserts the golden record node and one MERGED_FROM edge per
// source record.
func (l *Lineage) RecordMerge(ctx context.Context, result *models.MergeResult) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Lineage.RecordMerge")
	defer span.End()

	log := l.logger.WithContext(ctx).WithFields(map[string]any{
		"golden_record_id": result.GoldenRecordID,
		"source_count":     len(result.SourceRecords),
	})

	mergedAt := result.MergedAt.UTC().Format(timeLayout)
	sources := make([]map[string]any, len(result.SourceRecords))
	for i, src := range result.SourceRecords {
		sources[i] = map[string]any{"id": src.ID}
	}

	cypher := `
		MERGE (g:GoldenRecord {id: $golden_id})
		SET g.merged_at = $merged_at, g.source_count = $source_count
		WITH g
		UNWIND $sources AS src
		MERGE (s:SourceRecord {id: src.id})
		MERGE (g)-[r:MERGED_FROM]->(s)
		SET r.merged_at = $merged_at
	`

	_, err := l.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"golden_id":    result.GoldenRecordID,
			"merged_at":    mergedAt,
			"source_count": len(result.SourceRecords),
			"sources":      sources,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})

	if err != nil {
		log.WithError(err).Error("Failed to project merge into graph")
		return fmt.Errorf("failed to project merge into graph: %w", err)
	}

	log.Debug("Projected merge into graph")
	return nil
}

// RemoveMerge rolls the projection back after an unmerge. Full and split
// modes detach and delete the golden record node (a split's replacement
// goldens are projected by RecordMerge calls); partial mode removes only
// the restored sources' edges.
func (l *Lineage) RemoveMerge(ctx context.Context, result *models.UnmergeResult) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Lineage.RemoveMerge")
	defer span.End()

	log := l.logger.WithContext(ctx).WithFields(map[string]any{
		"golden_record_id": result.GoldenRecordID,
		"mode":             result.Mode,
	})

	var cypher string
	params := map[string]any{"golden_id": result.GoldenRecordID}

	if result.Mode == models.UnmergePartial {
		restored := make([]string, len(result.RestoredRecords))
		for i, rec := range result.RestoredRecords {
			restored[i] = rec.ID
		}
		params["source_ids"] = restored
		cypher = `
			MATCH (g:GoldenRecord {id: $golden_id})-[r:MERGED_FROM]->(s:SourceRecord)
			WHERE s.id IN $source_ids
			DELETE r
		`
	} else {
		cypher = `
			MATCH (g:GoldenRecord {id: $golden_id})
			DETACH DELETE g
		`
	}

	_, err := l.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})

	if err != nil {
		log.WithError(err).Error("Failed to remove merge from graph")
		return fmt.Errorf("failed to remove merge from graph: %w", err)
	}

	log.Debug("Removed merge from graph")
	return nil
}

// GetLineage reads the ancestry neighborhood of a golden record down to
// maxDepth MERGED_FROM hops. A non-positive depth defaults to 1 (direct
// sources only).
func (l *Lineage) GetLineage(ctx context.Context, goldenRecordID string, maxDepth int) (*LineageResult, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.Lineage.GetLineage")
	defer span.End()

	if maxDepth <= 0 {
		maxDepth = 1
	}

	existsCypher := `
		MATCH (g:GoldenRecord {id: $golden_id})
		RETURN g.id AS id
	`
	edgesCypher := fmt.Sprintf(`
		MATCH (g:GoldenRecord {id: $golden_id})
		MATCH p = (g)-[:MERGED_FROM*1..%d]->(:SourceRecord)
		WITH relationships(p)[-1] AS r, nodes(p)[-2] AS parent, nodes(p)[-1] AS child, length(p) AS depth
		RETURN DISTINCT parent.id AS golden_id, child.id AS source_id, r.merged_at AS merged_at, depth
		ORDER BY depth, source_id
	`, maxDepth)

	params := map[string]any{"golden_id": goldenRecordID}

	result, err := l.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		out := &LineageResult{
			GoldenRecordID:  goldenRecordID,
			SourceRecordIDs: make([]string, 0),
			Edges:           make([]LineageEdge, 0),
		}

		exists, err := tx.Run(ctx, existsCypher, params)
		if err != nil {
			return nil, err
		}
		out.Found = exists.Next(ctx)
		if !out.Found {
			return out, nil
		}

		edges, err := tx.Run(ctx, edgesCypher, params)
		if err != nil {
			return nil, err
		}
		for edges.Next(ctx) {
			record := edges.Record()
			edge := LineageEdge{
				GoldenRecordID: stringValue(record, "golden_id"),
				SourceRecordID: stringValue(record, "source_id"),
				MergedAt:       stringValue(record, "merged_at"),
				Depth:          intValue(record, "depth"),
			}
			out.Edges = append(out.Edges, edge)
			if edge.Depth == 1 {
				out.SourceRecordIDs = append(out.SourceRecordIDs, edge.SourceRecordID)
			}
		}
		sort.Strings(out.SourceRecordIDs)
		return out, nil
	})

	if err != nil {
		l.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"golden_record_id": goldenRecordID,
		}).Error("Failed to read lineage from graph")
		return nil, fmt.Errorf("failed to read lineage from graph: %w", err)
	}

	return result.(*LineageResult), nil
}

// stringValue reads a string column, tolerating nulls
func stringValue(record *neo4j.Record, key string) string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return ""
	}
	if s, ok := val.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", val)
}

// intValue reads an integer column; the driver returns int64
func intValue(record *neo4j.Record, key string) int {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return 0
	}
	if n, ok := val.(int64); ok {
		return int(n)
	}
	return 0
}
