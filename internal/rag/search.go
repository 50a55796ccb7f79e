package rag

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"studybot/internal/domain"
	"studybot/internal/parser"
)

// Pontuação de cada faixa da busca.
const (
	ScoreExact      = 1.0
	ScoreSubstring  = 0.8
	ScoreFuzzy      = 0.6
	ScoreKeywordMin = 0.5
	ScoreKeywordMax = 0.75
)

const (
	DefaultMaxResults  = 5
	DefaultFuzzyCutoff = 0.6
	DefaultFuzzyLimit  = 3
)

// Searcher ordena os registros de uma base por relevância para uma consulta.
type Searcher struct {
	MaxResults  int
	FuzzyCutoff float64
	FuzzyLimit  int
}

// NewSearcher cria um Searcher com os limites padrão.
func NewSearcher() *Searcher {
	return &Searcher{
		MaxResults:  DefaultMaxResults,
		FuzzyCutoff: DefaultFuzzyCutoff,
		FuzzyLimit:  DefaultFuzzyLimit,
	}
}

// Search busca na base em quatro faixas: exata, substring, aproximada e por palavra-chave.
func (s *Searcher) Search(query string, p domain.Partition) []domain.SearchResult {
	q := parser.Normalize(query)
	if q == "" || len(p) == 0 {
		return nil
	}

	var results []domain.SearchResult
	seen := make(map[string]bool)
	add := func(key string, score float64) {
		seen[key] = true
		results = append(results, domain.SearchResult{Key: key, Record: p[key], Score: score})
	}

	if _, ok := p[q]; ok {
		add(q, ScoreExact)
	}

	keys := p.Keys()
	for _, key := range keys {
		if seen[key] {
			continue
		}
		if containsEither(q, key) {
			add(key, ScoreSubstring)
		}
	}

	for _, key := range s.closeMatches(q, keys, seen) {
		add(key, ScoreFuzzy)
	}

	tokens := QueryTokens(query)
	type kwHit struct {
		key   string
		score float64
	}
	var hits []kwHit
	for _, key := range keys {
		if seen[key] {
			continue
		}
		overlap := keywordOverlap(tokens, recordKeywords(p[key]))
		if overlap > 0 {
			hits = append(hits, kwHit{key, ScoreKeywordMin + (ScoreKeywordMax-ScoreKeywordMin)*overlap})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	for _, h := range hits {
		add(h.key, h.score)
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return capResults(results, s.limit())
}

// closeMatches escolhe as FuzzyLimit chaves mais parecidas entre todas as chaves
// e só depois descarta as que já entraram por outra faixa.
func (s *Searcher) closeMatches(q string, keys []string, seen map[string]bool) []string {
	type candidate struct {
		key string
		sim float64
	}
	var cands []candidate
	for _, key := range keys {
		if sim := Similarity(q, key); sim >= s.FuzzyCutoff {
			cands = append(cands, candidate{key, sim})
		}
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].sim > cands[j].sim })

	limit := s.FuzzyLimit
	if limit <= 0 {
		limit = DefaultFuzzyLimit
	}
	var out []string
	for i := 0; i < len(cands) && i < limit; i++ {
		if !seen[cands[i].key] {
			out = append(out, cands[i].key)
		}
	}
	return out
}

func (s *Searcher) limit() int {
	if s.MaxResults <= 0 {
		return DefaultMaxResults
	}
	return s.MaxResults
}

// Merge junta resultados de várias bases. Em empate, resultado de canal vence o manual.
func (s *Searcher) Merge(lists ...[]domain.SearchResult) []domain.SearchResult {
	var all []domain.SearchResult
	for _, l := range lists {
		all = append(all, l...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		ci, cj := all[i].ChannelSourced(), all[j].ChannelSourced()
		if ci != cj {
			return ci
		}
		return all[i].Key < all[j].Key
	})

	seen := make(map[string]bool)
	unique := make([]domain.SearchResult, 0, len(all))
	for _, r := range all {
		if seen[r.Key] {
			continue
		}
		seen[r.Key] = true
		unique = append(unique, r)
	}
	return capResults(unique, s.limit())
}

// Similarity retorna 1 - distância de edição / tamanho da maior string.
func Similarity(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

func containsEither(q, key string) bool {
	return key != "" && (strings.Contains(key, q) || strings.Contains(q, key))
}

func recordKeywords(r *domain.Record) []string {
	if r == nil {
		return nil
	}
	if len(r.Keywords) > 0 {
		return r.Keywords
	}
	texts := []string{r.OriginalTerm}
	for _, d := range r.Definitions {
		texts = append(texts, d.Text)
	}
	return ExtractKeywords(texts...)
}

func capResults(results []domain.SearchResult, n int) []domain.SearchResult {
	if len(results) > n {
		return results[:n]
	}
	return results
}
