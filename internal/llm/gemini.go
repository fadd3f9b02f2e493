package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"

	"github.com/s3ev/evcharge-rag/internal/rag"
)

const (
	embeddingModel = "models/text-embedding-004"
	chatModel      = "gemini-2.5-flash"
)

// EmbedDim is the fixed dimensionality of produced vectors; the index
// collection must be created with the same size.
const EmbedDim = 768

// systemInstruction is the fixed assistant persona; everything query-specific
// lives in the prompt built by the rag package.
const systemInstruction = "You are an EV charging solutions expert. " +
	"Provide detailed technical information about EV charging infrastructure. " +
	"Explain charging standards (CCS, CHAdeMO, Tesla), power levels and compatibility. " +
	"Discuss installation requirements and grid connectivity. " +
	"Offer troubleshooting for common charging issues. " +
	"Explain payment systems and roaming agreements. " +
	"Differentiate between documentation content and general knowledge."

// GeminiClient serves both roles of the pipeline: the embedding encoder and
// the generative model. It is constructed once at startup and shared by all
// in-flight requests.
type GeminiClient struct {
	client *genai.Client
}

func NewGeminiClient(ctx context.Context) (*GeminiClient, error) {
	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("missing GOOGLE_API_KEY or GEMINI_API_KEY")
	}

	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiClient{client: c}, nil
}

// Embed encodes text into a fixed 768-dim vector. Deterministic for a fixed
// model version.
func (g *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	clean := normalizeWhitespace(text)
	if clean == "" {
		return nil, fmt.Errorf("empty text for embedding")
	}

	resp, err := g.client.Models.EmbedContent(
		ctx,
		embeddingModel,
		genai.Text(clean),
		&genai.EmbedContentConfig{
			OutputDimensionality: genai.Ptr(int32(EmbedDim)),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("gemini embed error: %w", err)
	}

	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}

	values := resp.Embeddings[0].Values
	if len(values) != EmbedDim {
		return nil, fmt.Errorf("unexpected embedding size %d (expected %d)", len(values), EmbedDim)
	}

	out := make([]float32, EmbedDim)
	for i, v := range values {
		out[i] = float32(v)
	}
	return out, nil
}

// Generate runs a single round trip against the chat model.
func (g *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.Text(systemInstruction)[0],
	}

	resp, err := g.client.Models.GenerateContent(
		ctx,
		chatModel,
		genai.Text(prompt),
		cfg,
	)
	if err != nil {
		return "", fmt.Errorf("gemini generateContent error: %w", err)
	}

	if resp == nil {
		return "", fmt.Errorf("empty response from gemini")
	}

	txt := strings.TrimSpace(resp.Text())
	if txt == "" {
		return "", fmt.Errorf("model returned empty text")
	}

	return txt, nil
}

func normalizeWhitespace(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if r == ' ' || r == '\n' || r == '\r' || r == '\t' {
			if !space {
				b.WriteRune(' ')
				space = true
			}
		} else {
			b.WriteRune(r)
			space = false
		}
	}
	return b.String()
}

var _ rag.EmbeddingsClient = (*GeminiClient)(nil)
var _ rag.LLMClient = (*GeminiClient)(nil)
