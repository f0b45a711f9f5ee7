package search

import "strings"

// punctuation trimmed from both ends of every term
const punctuation = ".,!?;:'\"-()[]{}"

// Terms splits text on whitespace, lowercases, and trims surrounding punctuation.
// Empty terms are dropped; duplicates are kept.
func Terms(text string) []string {
	words := strings.Fields(text)
	terms := make([]string, 0, len(words))

	for _, word := range words {
		cleaned := strings.ToLower(strings.Trim(word, punctuation))
		if cleaned != "" {
			terms = append(terms, cleaned)
		}
	}

	return terms
}

// termSet returns the distinct terms of text.
func termSet(text string) map[string]struct{} {
	terms := Terms(text)
	set := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		set[term] = struct{}{}
	}
	return set
}
