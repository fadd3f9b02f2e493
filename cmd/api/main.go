package main

import (
	"context"
	"log"
	"net/http"

	"github.com/s3ev/evcharge-rag/internal/config"
	apphttp "github.com/s3ev/evcharge-rag/internal/http"
	"github.com/s3ev/evcharge-rag/internal/llm"
	"github.com/s3ev/evcharge-rag/internal/rag"
	"github.com/s3ev/evcharge-rag/internal/vectorindex/pgvector"
	"github.com/s3ev/evcharge-rag/internal/vectorindex/qdrant"
	"github.com/s3ev/evcharge-rag/internal/workerpool"
)

func main() {
	ctx := context.Background()

	cfg := config.Load()

	index, cleanup, err := newSearchIndex(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to init vector index: %v", err)
	}
	defer cleanup()

	geminiClient, err := llm.NewGeminiClient(ctx)
	if err != nil {
		log.Fatalf("failed to init Gemini client: %v", err)
	}

	pool := workerpool.New(cfg.EmbedWorkers)
	defer pool.Close()

	ragService := rag.NewService(geminiClient, index, geminiClient, pool, cfg.SearchLimit, cfg.ScoreThreshold)
	streamer := rag.NewStreamer(cfg.ChunkWords, cfg.ChunkDelay)

	h := apphttp.NewHandler(ragService, streamer)
	router := apphttp.NewRouter(h)

	handler := corsMiddleware(router)

	addr := ":" + cfg.Port
	log.Printf("API listening on %s (backend=%s collection=%s)", addr, cfg.VectorBackend, cfg.CollectionName)
	log.Fatal(http.ListenAndServe(addr, handler))
}

func newSearchIndex(ctx context.Context, cfg *config.Config) (rag.SearchIndex, func(), error) {
	switch cfg.VectorBackend {
	case "pgvector":
		repo, err := pgvector.NewRepository(ctx, pgvector.Config{
			DatabaseURL: cfg.DatabaseURL,
			Collection:  cfg.CollectionName,
		})
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil
	default:
		client, err := qdrant.NewClient(ctx, qdrant.Config{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.CollectionName,
		})
		if err != nil {
			return nil, nil, err
		}
		return client, func() {}, nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
