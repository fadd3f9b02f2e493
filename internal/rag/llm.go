package rag

import "context"

type EmbeddingsClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type LLMClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// SearchIndex is the read side of the vector index. Implementations filter
// by score threshold, cap results at limit and return them in descending
// confidence order.
type SearchIndex interface {
	Search(ctx context.Context, vector []float32, limit int, scoreThreshold float64) ([]Document, error)
}

// IndexWriter is the write side, used only by the importer.
type IndexWriter interface {
	Upsert(ctx context.Context, entries []Entry) error
}
