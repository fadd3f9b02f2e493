package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s3ev/evcharge-rag/internal/workerpool"
)

type fakeEmbedder struct {
	calls int
	vec   []float32
	err   error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	return f.vec, f.err
}

type fakeIndex struct {
	calls        int
	docs         []Document
	err          error
	gotLimit     int
	gotThreshold float64
}

func (f *fakeIndex) Search(ctx context.Context, vector []float32, limit int, scoreThreshold float64) ([]Document, error) {
	f.calls++
	f.gotLimit = limit
	f.gotThreshold = scoreThreshold
	return f.docs, f.err
}

type fakeLLM struct {
	calls      int
	answer     string
	err        error
	lastPrompt string
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string) (string, error) {
	f.calls++
	f.lastPrompt = prompt
	return f.answer, f.err
}

func newTestService(t *testing.T, emb *fakeEmbedder, idx *fakeIndex, llm *fakeLLM) *Service {
	t.Helper()
	pool := workerpool.New(2)
	t.Cleanup(pool.Close)
	return NewService(emb, idx, llm, pool, 5, 0.4)
}

func TestAskGreetingShortCircuits(t *testing.T) {
	emb := &fakeEmbedder{}
	idx := &fakeIndex{}
	llm := &fakeLLM{}
	svc := newTestService(t, emb, idx, llm)

	a, err := svc.Ask(context.Background(), "hello there")

	require.NoError(t, err)
	assert.Equal(t, CategoryGreeting, a.Category)
	assert.Equal(t, GreetingResponse, a.Text)
	assert.Zero(t, emb.calls, "greetings must not consume the embedder")
	assert.Zero(t, idx.calls, "greetings must not consume the index")
	assert.Zero(t, llm.calls, "greetings must not consume the model")
}

func TestAskTechnicalWithDocuments(t *testing.T) {
	docs := []Document{
		{Content: "CCS2 delivers up to 350 kW.", Confidence: 0.91},
		{Content: "Cable must be liquid cooled above 200 kW.", Confidence: 0.77},
	}
	emb := &fakeEmbedder{vec: []float32{0.1, 0.2}}
	idx := &fakeIndex{docs: docs}
	llm := &fakeLLM{answer: "CCS2 tops out at 350 kW."}
	svc := newTestService(t, emb, idx, llm)

	a, err := svc.Ask(context.Background(), "what is the max power output of CCS?")

	require.NoError(t, err)
	assert.Equal(t, CategoryTechnical, a.Category)
	assert.Equal(t, "CCS2 tops out at 350 kW.", a.Text)
	assert.Equal(t, docs, a.Documents)
	assert.Equal(t, 5, idx.gotLimit)
	assert.InDelta(t, 0.4, idx.gotThreshold, 1e-9)
	assert.Contains(t, llm.lastPrompt, "CCS2 delivers up to 350 kW.")
	assert.Contains(t, llm.lastPrompt, "Reference documentation:")
}

func TestAskTechnicalNoDocumentsUsesFallback(t *testing.T) {
	emb := &fakeEmbedder{vec: []float32{0.1}}
	idx := &fakeIndex{} // nothing above threshold
	llm := &fakeLLM{}
	svc := newTestService(t, emb, idx, llm)

	a, err := svc.Ask(context.Background(), "ocpp load balancing setup")

	require.NoError(t, err)
	assert.Equal(t, CategoryTechnical, a.Category)
	assert.Contains(t, a.Text, SupportEmail)
	assert.Zero(t, llm.calls, "technical fallback is canned, not generated")
}

func TestAskGeneralNoDocumentsStillGenerates(t *testing.T) {
	emb := &fakeEmbedder{vec: []float32{0.1}}
	idx := &fakeIndex{}
	llm := &fakeLLM{answer: "Home charging usually happens overnight."}
	svc := newTestService(t, emb, idx, llm)

	a, err := svc.Ask(context.Background(), "when should I charge at home?")

	require.NoError(t, err)
	assert.Equal(t, CategoryGeneral, a.Category)
	assert.Equal(t, "Home charging usually happens overnight.", a.Text)
	assert.Contains(t, llm.lastPrompt, "Use general knowledge")
}

func TestAskSearchFailureDegrades(t *testing.T) {
	emb := &fakeEmbedder{vec: []float32{0.1}}
	idx := &fakeIndex{err: errors.New("backend timeout")}
	llm := &fakeLLM{answer: "answered without documentation"}
	svc := newTestService(t, emb, idx, llm)

	a, err := svc.Ask(context.Background(), "how do I pick a home charger?")

	require.NoError(t, err, "retrieval failures must not fail the request")
	assert.Equal(t, "answered without documentation", a.Text)
	assert.Empty(t, a.Documents)
	assert.Contains(t, llm.lastPrompt, "Use general knowledge")
}

func TestAskEmbeddingFailureDegrades(t *testing.T) {
	emb := &fakeEmbedder{err: errors.New("model unavailable")}
	idx := &fakeIndex{}
	llm := &fakeLLM{answer: "still answered"}
	svc := newTestService(t, emb, idx, llm)

	a, err := svc.Ask(context.Background(), "how do I pick a home charger?")

	require.NoError(t, err)
	assert.Equal(t, "still answered", a.Text)
	assert.Zero(t, idx.calls, "no search without an embedding")
}

func TestAskGenerationFailurePropagates(t *testing.T) {
	emb := &fakeEmbedder{vec: []float32{0.1}}
	idx := &fakeIndex{docs: []Document{{Content: "doc", Confidence: 0.8}}}
	llm := &fakeLLM{err: errors.New("quota exceeded")}
	svc := newTestService(t, emb, idx, llm)

	_, err := svc.Ask(context.Background(), "what connector do I need?")

	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "quota exceeded"))
}

func TestAskEmptyQuestionIsNotRejected(t *testing.T) {
	emb := &fakeEmbedder{err: errors.New("empty text for embedding")}
	idx := &fakeIndex{}
	llm := &fakeLLM{answer: "please ask about EV charging"}
	svc := newTestService(t, emb, idx, llm)

	a, err := svc.Ask(context.Background(), "   ")

	require.NoError(t, err)
	assert.Equal(t, "please ask about EV charging", a.Text)
}
