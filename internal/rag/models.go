package rag

// Category is the routing class assigned to an incoming question.
type Category string

const (
	CategoryGreeting  Category = "greeting"
	CategoryTechnical Category = "technical"
	CategoryGeneral   Category = "general"
)

// Document is one retrieved passage, already validated and typed at the
// vector-index boundary. Result lists are always sorted by descending
// confidence; confidence is clamped to [0,1].
type Document struct {
	Content       string            `json:"content"`
	Confidence    float64           `json:"confidence"`
	Metadata      map[string]string `json:"metadata"`
	IsProductInfo bool              `json:"isProductInfo"`
}

// Entry is a passage to be written into the vector index by the importer.
type Entry struct {
	Text     string
	Metadata map[string]string
	Vector   []float32
}

// AskRequest is the payload of both /ask and /ask/stream.
type AskRequest struct {
	Question string `json:"question"`
}

// SourceRef points at a passage that grounded the answer.
type SourceRef struct {
	Title      string  `json:"title"`
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
}

// AskResponse is the non-streaming answer shape.
type AskResponse struct {
	Answer   string      `json:"answer"`
	Category Category    `json:"category"`
	Sources  []SourceRef `json:"sources"`
}

// Answer is what the pipeline produces before streaming.
type Answer struct {
	Text      string
	Category  Category
	Documents []Document
}

// StreamEvent is one unit of the chunked response. Exactly one of Token or
// Error is set; an Error event terminates the stream.
type StreamEvent struct {
	Token string `json:"token,omitempty"`
	Error string `json:"error,omitempty"`
}

// Sources extracts the reference list for the non-streaming response.
func (a *Answer) Sources() []SourceRef {
	refs := make([]SourceRef, 0, len(a.Documents))
	for _, d := range a.Documents {
		refs = append(refs, SourceRef{
			Title:      d.Metadata["title"],
			Source:     d.Metadata["source"],
			Confidence: d.Confidence,
		})
	}
	return refs
}
