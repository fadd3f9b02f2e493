package rag

import (
	"context"
	"fmt"
	"log"
	"strings"

	wl "github.com/abadojack/whatlanggo"

	"github.com/s3ev/evcharge-rag/internal/workerpool"
)

// Service wires the query pipeline: classify, embed, search, assemble,
// prompt, generate. The embeddings client, the index handle and the worker
// pool are constructed once at startup and never mutated afterwards, so the
// service is safe for concurrent use.
type Service struct {
	embeddings EmbeddingsClient
	index      SearchIndex
	llm        LLMClient
	pool       *workerpool.Pool

	searchLimit    int
	scoreThreshold float64
}

func NewService(embeddings EmbeddingsClient, index SearchIndex, llm LLMClient, pool *workerpool.Pool, searchLimit int, scoreThreshold float64) *Service {
	if searchLimit <= 0 {
		searchLimit = 5
	}
	return &Service{
		embeddings:     embeddings,
		index:          index,
		llm:            llm,
		pool:           pool,
		searchLimit:    searchLimit,
		scoreThreshold: scoreThreshold,
	}
}

// Ask runs the full pipeline for one question.
//
// Greetings short-circuit before any embedding or index work. Embedding and
// search failures degrade to an empty context and the query still gets an
// answer; a generation failure is returned to the caller, since without the
// model there is nothing useful to say.
func (s *Service) Ask(ctx context.Context, question string) (*Answer, error) {
	question = strings.TrimSpace(question)

	category := Classify(question)
	if category == CategoryGreeting {
		return &Answer{Text: GreetingResponse, Category: category}, nil
	}

	docs := s.retrieve(ctx, question)
	contextText := AssembleContext(docs)

	if contextText == "" && category == CategoryTechnical {
		// Technical questions with nothing above threshold get the canned
		// expert fallback instead of an ungrounded model answer.
		return &Answer{Text: TechnicalFallback(question), Category: category}, nil
	}

	prompt := BuildPrompt(contextText, question, detectLanguage(question))

	answer, err := s.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	return &Answer{Text: answer, Category: category, Documents: docs}, nil
}

// retrieve embeds the question on the worker pool and searches the index.
// Any failure on this path is logged and degrades to no documents; a single
// failure is not retried before degrading.
func (s *Service) retrieve(ctx context.Context, question string) []Document {
	var vec []float32
	err := s.pool.Do(ctx, func() error {
		var embedErr error
		vec, embedErr = s.embeddings.Embed(ctx, question)
		return embedErr
	})
	if err != nil {
		log.Printf("rag: embedding failed for query %q: %v", question, err)
		return nil
	}

	docs, err := s.index.Search(ctx, vec, s.searchLimit, s.scoreThreshold)
	if err != nil {
		log.Printf("rag: search failed for query %q: %v", question, err)
		return nil
	}
	return docs
}

// langNames covers the languages the support team can actually handle;
// anything else answers in English.
var langNames = map[string]string{
	"eng": "English",
	"hin": "Hindi",
	"kan": "Kannada",
	"tam": "Tamil",
	"tel": "Telugu",
	"mar": "Marathi",
}

// detectLanguage names the question's language so the prompt can ask for an
// answer in kind. Unreliable detections fall back to English rather than
// surprising the caller.
func detectLanguage(question string) string {
	info := wl.Detect(question)
	if !info.IsReliable() {
		return "English"
	}
	if name, ok := langNames[wl.LangToString(info.Lang)]; ok {
		return name
	}
	return "English"
}
