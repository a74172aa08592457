package knowledge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// VectorRecord is the unit stored in the vector database. The ID is derived
// deterministically from (documentID, chunkIndex) so re-upserting the same
// document overwrites rather than duplicates.
type VectorRecord struct {
	ID        string
	Embedding []float32
	Metadata  map[string]any
}

// Match is one similarity-search hit.
type Match struct {
	ID       string
	Score    float64
	Metadata map[string]any
}

// IndexHandle is a usable connection to the vector index. The Store hands
// out either a liveHandle or, when the service is unreachable, a
// degradedHandle that absorbs operations as successful no-ops.
type IndexHandle interface {
	Upsert(ctx context.Context, records []VectorRecord, namespace string) error
	Query(ctx context.Context, embedding []float32, topK int, namespace string, filter map[string]any) ([]Match, error)
	Delete(ctx context.Context, filter map[string]any, namespace string) error
}

// liveHandle talks to the real pgvector-backed index.
type liveHandle struct {
	pool  *pgxpool.Pool
	table string
}

func (h *liveHandle) Upsert(ctx context.Context, records []VectorRecord, namespace string) error {
	if len(records) == 0 {
		return nil
	}
	q := fmt.Sprintf(`
		INSERT INTO %s (id, namespace, embedding, metadata)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET namespace = EXCLUDED.namespace,
		    embedding = EXCLUDED.embedding,
		    metadata  = EXCLUDED.metadata
	`, pgx.Identifier{h.table}.Sanitize())

	batch := &pgx.Batch{}
	for _, rec := range records {
		meta, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", rec.ID, err)
		}
		batch.Queue(q, rec.ID, namespace, pgvector.NewVector(rec.Embedding), meta)
	}

	br := h.pool.SendBatch(ctx, batch)
	for range records {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("upsert vectors: %w", err)
		}
	}
	return br.Close()
}

func (h *liveHandle) Query(ctx context.Context, embedding []float32, topK int, namespace string, filter map[string]any) ([]Match, error) {
	if filter == nil {
		filter = map[string]any{}
	}
	filterJSON, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("marshal filter: %w", err)
	}

	// Cosine distance; score is the corresponding similarity.
	q := fmt.Sprintf(`
		SELECT id, metadata, 1 - (embedding <=> $1) AS score
		FROM %s
		WHERE namespace = $2 AND metadata @> $3
		ORDER BY embedding <=> $1
		LIMIT $4
	`, pgx.Identifier{h.table}.Sanitize())

	rows, err := h.pool.Query(ctx, q, pgvector.NewVector(embedding), namespace, filterJSON, topK)
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			m    Match
			meta []byte
		)
		if err := rows.Scan(&m.ID, &meta, &m.Score); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &m.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata for %s: %w", m.ID, err)
			}
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (h *liveHandle) Delete(ctx context.Context, filter map[string]any, namespace string) error {
	if len(filter) == 0 {
		return fmt.Errorf("refusing to delete without a metadata filter")
	}
	filterJSON, err := json.Marshal(filter)
	if err != nil {
		return fmt.Errorf("marshal filter: %w", err)
	}
	q := fmt.Sprintf(`DELETE FROM %s WHERE namespace = $1 AND metadata @> $2`,
		pgx.Identifier{h.table}.Sanitize())
	if _, err := h.pool.Exec(ctx, q, namespace, filterJSON); err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	return nil
}

// degradedHandle is the stand-in returned when the vector database is
// unreachable. Writes succeed as no-ops and queries return no matches, so
// the surrounding chat feature keeps working; callers must consult the
// cached status before trusting an absence of results.
type degradedHandle struct{}

func (degradedHandle) Upsert(context.Context, []VectorRecord, string) error { return nil }

func (degradedHandle) Query(context.Context, []float32, int, string, map[string]any) ([]Match, error) {
	return nil, nil
}

func (degradedHandle) Delete(context.Context, map[string]any, string) error { return nil }
