package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s3ev/evcharge-rag/internal/rag"
	"github.com/s3ev/evcharge-rag/internal/workerpool"
)

type stubEmbedder struct{ err error }

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []float32{0.1}, nil
}

type stubIndex struct{ docs []rag.Document }

func (s *stubIndex) Search(ctx context.Context, vector []float32, limit int, scoreThreshold float64) ([]rag.Document, error) {
	return s.docs, nil
}

type stubLLM struct {
	answer string
	err    error
}

func (s *stubLLM) Generate(ctx context.Context, prompt string) (string, error) {
	return s.answer, s.err
}

func newTestHandler(t *testing.T, idx rag.SearchIndex, llm rag.LLMClient) http.Handler {
	t.Helper()
	pool := workerpool.New(1)
	t.Cleanup(pool.Close)
	svc := rag.NewService(&stubEmbedder{}, idx, llm, pool, 5, 0.4)
	streamer := rag.NewStreamer(5, time.Millisecond)
	return NewRouter(NewHandler(svc, streamer))
}

func decodeEvents(t *testing.T, body string) []rag.StreamEvent {
	t.Helper()
	var events []rag.StreamEvent
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev rag.StreamEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	return events
}

func TestAskStreamTokens(t *testing.T) {
	h := newTestHandler(t, &stubIndex{}, &stubLLM{answer: "one two three four five six seven"})

	req := httptest.NewRequest(http.MethodPost, "/ask/stream", strings.NewReader(`{"question":"how do I charge at home"}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	resp := w.Result()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := decodeEvents(t, w.Body.String())
	require.Len(t, events, 2)
	assert.Equal(t, "one two three four five ", events[0].Token)
	assert.Equal(t, "six seven ", events[1].Token)
	for _, ev := range events {
		assert.Empty(t, ev.Error)
	}
}

func TestAskStreamGreeting(t *testing.T) {
	h := newTestHandler(t, &stubIndex{}, &stubLLM{err: errors.New("must not be called")})

	req := httptest.NewRequest(http.MethodPost, "/ask/stream", strings.NewReader(`{"question":"hello"}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	events := decodeEvents(t, w.Body.String())
	require.NotEmpty(t, events)

	var full strings.Builder
	for _, ev := range events {
		full.WriteString(ev.Token)
	}
	assert.Equal(t, rag.GreetingResponse, strings.TrimSpace(full.String()))
}

func TestAskStreamGenerationFailure(t *testing.T) {
	idx := &stubIndex{docs: []rag.Document{{Content: "doc", Confidence: 0.9}}}
	h := newTestHandler(t, idx, &stubLLM{err: errors.New("quota exceeded")})

	req := httptest.NewRequest(http.MethodPost, "/ask/stream", strings.NewReader(`{"question":"what connector fits my car"}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	events := decodeEvents(t, w.Body.String())
	require.Len(t, events, 1, "a failure produces exactly one terminal error event")
	assert.NotEmpty(t, events[0].Error)
	assert.Empty(t, events[0].Token)
	assert.NotContains(t, events[0].Error, "quota", "internal detail must not leak to the caller")
}

func TestAskJSON(t *testing.T) {
	idx := &stubIndex{docs: []rag.Document{
		{Content: "CCS2 supports 350 kW.", Confidence: 0.9, Metadata: map[string]string{"title": "datasheet"}},
	}}
	h := newTestHandler(t, idx, &stubLLM{answer: "350 kW via CCS2."})

	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"question":"max charging speed of ccs?"}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp rag.AskResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "350 kW via CCS2.", resp.Answer)
	assert.Equal(t, rag.CategoryTechnical, resp.Category)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "datasheet", resp.Sources[0].Title)
}

func TestAskInvalidBody(t *testing.T) {
	h := newTestHandler(t, &stubIndex{}, &stubLLM{})

	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	h := newTestHandler(t, &stubIndex{}, &stubLLM{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}
