package http

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/s3ev/evcharge-rag/internal/rag"
)

type Handler struct {
	ragService *rag.Service
	streamer   *rag.Streamer
}

func NewHandler(ragService *rag.Service, streamer *rag.Streamer) *Handler {
	return &Handler{ragService: ragService, streamer: streamer}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ask is the non-streaming variant: the full answer plus source references
// in one JSON document.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	var req rag.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	answer, err := h.ragService.Ask(r.Context(), req.Question)
	if err != nil {
		log.Printf("http: ask failed for query %q: %v", req.Question, err)
		http.Error(w, "failed to answer question", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rag.AskResponse{
		Answer:   answer.Text,
		Category: answer.Category,
		Sources:  answer.Sources(),
	})
}

// AskStream answers over server-sent events. Each event is one JSON object
// with either a token or an error; an error event terminates the stream. A
// client disconnect cancels the request context and stops emission.
func (h *Handler) AskStream(w http.ResponseWriter, r *http.Request) {
	var req rag.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx := r.Context()

	answer, err := h.ragService.Ask(ctx, req.Question)
	if err != nil {
		log.Printf("http: ask failed for query %q: %v", req.Question, err)
		writeEvent(w, rag.StreamEvent{Error: "Error processing query"})
		return
	}

	for token := range h.streamer.Stream(ctx, answer.Text) {
		if !writeEvent(w, rag.StreamEvent{Token: token}) {
			return
		}
	}
}

// writeEvent frames one SSE event and flushes it so the client sees tokens
// as they are produced. Returns false once the connection is unwritable.
func writeEvent(w http.ResponseWriter, ev rag.StreamEvent) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		return false
	}
	if _, err := w.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
		return false
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return true
}
