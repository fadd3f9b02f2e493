// Package pgvector is the Postgres-backed vector index, for deployments
// that already run Postgres and would rather not operate a separate Qdrant.
// Passages live in one table keyed by a collection name; similarity is
// cosine, converted to a [0,1] confidence at this boundary.
package pgvector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"

	"github.com/s3ev/evcharge-rag/internal/rag"
)

var ErrCollectionNotFound = errors.New("pgvector: collection has no documents")

type Config struct {
	DatabaseURL string
	Collection  string

	// CreateMissing provisions the schema and accepts an empty collection.
	// Only the importer sets this.
	CreateMissing bool
	Dimension     int
}

type Repository struct {
	db         *pgxpool.Pool
	collection string
}

// NewRepository connects and verifies the collection is populated, failing
// at startup rather than on the first query.
func NewRepository(ctx context.Context, cfg Config) (*Repository, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgvector: parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pgvector: connect: %w", err)
	}

	r := &Repository{db: pool, collection: cfg.Collection}

	if cfg.CreateMissing {
		if err := r.ensureSchema(ctx, cfg.Dimension); err != nil {
			pool.Close()
			return nil, err
		}
		return r, nil
	}

	var exists bool
	err = pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM document WHERE collection = $1)`,
		cfg.Collection,
	).Scan(&exists)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector: check collection %s: %w", cfg.Collection, err)
	}
	if !exists {
		pool.Close()
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, cfg.Collection)
	}

	return r, nil
}

func (r *Repository) Close() {
	r.db.Close()
}

func (r *Repository) ensureSchema(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("pgvector: invalid dimension")
	}
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS document (
			id bigserial PRIMARY KEY,
			collection text NOT NULL,
			content_key text NOT NULL,
			content text NOT NULL,
			metadata jsonb NOT NULL DEFAULT '{}',
			embedding vector(%d)
		)`, dimension),
		`CREATE UNIQUE INDEX IF NOT EXISTS document_collection_key ON document (collection, content_key)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("pgvector: ensure schema: %w", err)
		}
	}
	return nil
}

// Search orders by cosine distance and converts it to a similarity score.
// Thresholding and the limit are applied in SQL; order comes back
// score-descending by construction.
func (r *Repository) Search(ctx context.Context, vector []float32, limit int, scoreThreshold float64) ([]rag.Document, error) {
	if limit <= 0 {
		limit = 5
	}
	vec := pgv.NewVector(vector)

	rows, err := r.db.Query(ctx, `
		SELECT content, metadata, 1 - (embedding <=> $2) AS score
		FROM document
		WHERE collection = $1
		  AND 1 - (embedding <=> $2) >= $3
		ORDER BY embedding <=> $2
		LIMIT $4
	`, r.collection, vec, scoreThreshold, limit)
	if err != nil {
		return nil, fmt.Errorf("pgvector: search: %w", err)
	}
	defer rows.Close()

	var docs []rag.Document
	for rows.Next() {
		var (
			content  string
			metaJSON []byte
			score    float64
		)
		if err := rows.Scan(&content, &metaJSON, &score); err != nil {
			return nil, fmt.Errorf("pgvector: scan: %w", err)
		}

		meta := map[string]string{}
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &meta)
		}

		docs = append(docs, rag.Document{
			Content:       content,
			Confidence:    clamp01(score),
			Metadata:      meta,
			IsProductInfo: meta["type"] == "product",
		})
	}
	return docs, rows.Err()
}

// Upsert keys rows by a content hash so re-imports overwrite in place.
func (r *Repository) Upsert(ctx context.Context, entries []rag.Entry) error {
	for _, e := range entries {
		metaJSON, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("pgvector: marshal metadata: %w", err)
		}
		vec := pgv.NewVector(e.Vector)

		_, err = r.db.Exec(ctx, `
			INSERT INTO document (collection, content_key, content, metadata, embedding)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (collection, content_key)
			DO UPDATE SET content = EXCLUDED.content,
			              metadata = EXCLUDED.metadata,
			              embedding = EXCLUDED.embedding
		`, r.collection, contentKey(e.Text), e.Text, metaJSON, vec)
		if err != nil {
			return fmt.Errorf("pgvector: upsert: %w", err)
		}
	}
	return nil
}

func contentKey(text string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	return fmt.Sprintf("%016x", h.Sum64())
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

var _ rag.SearchIndex = (*Repository)(nil)
var _ rag.IndexWriter = (*Repository)(nil)
