package rag

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Support contact constants, included in every prompt and fallback.
const (
	SupportEmail = "info@s3ev.com"
	SupportPhone = "+91 63640 46550"
)

// GreetingResponse is returned for greeting queries without touching the
// embedding model or the index.
const GreetingResponse = "Hello! I'm EVCharge Assistant. How can I help with EV charging today?"

// AssembleContext joins retrieved passages into a single grounding block,
// preserving the given (confidence-descending) order. Empty input yields
// an empty string; callers then take the general-knowledge prompt branch.
func AssembleContext(docs []Document) string {
	if len(docs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		parts = append(parts, d.Content)
	}
	return strings.Join(parts, "\n")
}

// BuildPrompt renders the model prompt from the assembled context, the raw
// question and a target response language. It is deterministic and has no
// side effects. With no context it instructs the model to fall back to
// general domain knowledge instead of citing documentation.
func BuildPrompt(context, question, language string) string {
	var b strings.Builder

	b.WriteString("You are an expert EV charging solutions assistant.\n")
	if context != "" {
		b.WriteString("Reference documentation:\n")
		b.WriteString(context)
		b.WriteString("\n")
	} else {
		b.WriteString("No documentation matched this query. Use general knowledge about EV charging.\n")
	}
	b.WriteString("Current query: ")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n\nResponse requirements:\n")
	b.WriteString("- Be technically accurate but understandable\n")
	b.WriteString("- Include specifications when available\n")
	b.WriteString("- Mention compatibility considerations\n")
	b.WriteString("- Add safety recommendations where applicable\n")
	b.WriteString("- Conclude with support contact if technical\n")
	if language != "" && language != "English" {
		b.WriteString("- Respond in ")
		b.WriteString(language)
		b.WriteString("\n")
	}
	b.WriteString("\nSupport contacts:\nEmail: ")
	b.WriteString(SupportEmail)
	b.WriteString("\nPhone: ")
	b.WriteString(SupportPhone)
	b.WriteString("\n")

	return b.String()
}

// TechnicalFallback is the canned reply for a technical question with no
// passages above the score threshold. The model is not invoked.
func TechnicalFallback(question string) string {
	var b strings.Builder
	b.WriteString("I'm an EV charging expert. While I don't have specific documentation on this, here's what I know: ")
	b.WriteString(capitalize(strings.TrimSpace(question)))
	b.WriteString(" in the context of EV charging typically involves site assessment, hardware selection and grid capacity planning. ")
	b.WriteString("For detailed technical support, contact ")
	b.WriteString(SupportEmail)
	b.WriteString(" or ")
	b.WriteString(SupportPhone)
	b.WriteString(".")
	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
