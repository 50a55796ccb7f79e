package parser

import (
	"strings"
	"unicode/utf8"
)

// ContentKind é a classificação de um post recebido de um canal.
type ContentKind int

const (
	Ignored ContentKind = iota
	DefinitionContent
	NoteContent
)

// MinNoteWords é o mínimo de palavras para um texto sem separador virar nota.
const MinNoteWords = 5

const maxTitleRunes = 60

// Classification descreve o conteúdo de um post.
type Classification struct {
	Kind    ContentKind
	Results []Result
	Title   string
	Body    string
}

// Classify decide se o texto traz definições, uma nota livre ou nada aproveitável.
func (p *Parser) Classify(text string) Classification {
	text = strings.TrimSpace(text)
	if text == "" || strings.HasPrefix(text, "/") {
		return Classification{Kind: Ignored}
	}

	if results := p.ParseLines(text); len(results) > 0 {
		return Classification{Kind: DefinitionContent, Results: results}
	}

	if len(strings.Fields(text)) < MinNoteWords {
		return Classification{Kind: Ignored}
	}

	title, body, _ := strings.Cut(text, "\n")
	title = truncateRunes(strings.TrimSpace(StripEmphasis(title)), maxTitleRunes)
	body = strings.TrimSpace(body)
	if body == "" {
		body = text
	}
	return Classification{Kind: NoteContent, Title: title, Body: body}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n])) + "…"
}
