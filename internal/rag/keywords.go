package rag

import (
	"regexp"
	"sort"
	"strings"
)

var (
	capitalizedRe = regexp.MustCompile(`\b[A-Z][\p{L}0-9]*(?:\s+[A-Z][\p{L}0-9]*)+\b`)
	wordRe        = regexp.MustCompile(`[\p{L}0-9]+`)
)

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true, "this": true,
	"from": true, "into": true, "are": true, "was": true, "were": true, "has": true,
	"have": true, "not": true, "but": true, "its": true, "can": true, "used": true,
	"use": true, "which": true, "when": true, "what": true, "how": true, "who": true,
	"you": true, "your": true, "all": true, "any": true, "one": true, "each": true,
	"also": true, "than": true, "then": true, "them": true, "they": true, "their": true,
	"there": true, "been": true, "being": true, "more": true, "most": true, "such": true,
	"about": true, "over": true, "under": true, "between": true, "other": true,
}

const minKeywordLen = 3

// ExtractKeywords extrai frases com iniciais maiúsculas e palavras relevantes do texto.
func ExtractKeywords(texts ...string) []string {
	seen := make(map[string]bool)
	for _, text := range texts {
		for _, phrase := range capitalizedRe.FindAllString(text, -1) {
			seen[strings.ToLower(strings.Join(strings.Fields(phrase), " "))] = true
		}
		for _, w := range QueryTokens(text) {
			seen[w] = true
		}
	}

	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// QueryTokens quebra o texto em palavras minúsculas, sem stopwords e sem palavras curtas.
func QueryTokens(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, w := range wordRe.FindAllString(strings.ToLower(text), -1) {
		if len([]rune(w)) < minKeywordLen || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// keywordOverlap calcula a fração dos tokens da busca presentes nas palavras-chave.
func keywordOverlap(queryTokens, keywords []string) float64 {
	if len(queryTokens) == 0 || len(keywords) == 0 {
		return 0
	}
	set := make(map[string]bool, len(keywords))
	for _, k := range keywords {
		set[k] = true
		for _, part := range strings.Fields(k) {
			set[part] = true
		}
	}
	hits := 0
	for _, t := range queryTokens {
		if set[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(queryTokens))
}
