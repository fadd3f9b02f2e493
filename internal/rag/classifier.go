package rag

import "strings"

// Keyword tables for query routing. Order matters: greetings are checked
// before technical terms, and a greeting short-circuits the whole pipeline.
var (
	GreetingKeywords = []string{
		"hi", "hello", "hey", "greetings",
		"good morning", "good afternoon", "good evening",
	}

	TechnicalKeywords = []string{
		"charging station", "connector", "kw", "charging speed",
		"installation", "ccs", "chademo", "tesla", "ocpp", "power output",
		"load balancing", "dynamic pricing", "roaming",
	}
)

// Classify assigns a routing category to a question. Matching is
// case-insensitive. Greeting keywords match on word boundaries so that
// short tokens like "hi" cannot fire inside words such as "charging";
// technical keywords are multiword domain phrases and match as substrings.
func Classify(question string) Category {
	q := strings.ToLower(question)

	if containsWord(q, GreetingKeywords) {
		return CategoryGreeting
	}
	for _, kw := range TechnicalKeywords {
		if strings.Contains(q, kw) {
			return CategoryTechnical
		}
	}
	return CategoryGeneral
}

func containsWord(q string, keywords []string) bool {
	words := strings.FieldsFunc(q, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '\'')
	})
	joined := " " + strings.Join(words, " ") + " "
	for _, kw := range keywords {
		if strings.Contains(joined, " "+kw+" ") {
			return true
		}
	}
	return false
}
