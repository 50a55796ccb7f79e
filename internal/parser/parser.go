// Package parser extrai pares termo/definição de linhas de texto livre.
package parser

import (
	"regexp"
	"strings"
)

// ResultKind diz se a linha pôde ser separada em termo e definição.
type ResultKind int

const (
	Unparsed ResultKind = iota
	Parsed
)

// Result é o resultado de uma tentativa de parse.
type Result struct {
	Kind       ResultKind
	Term       string
	Definition string
	Separator  string
}

// Ok informa se o parse produziu um termo e uma definição.
func (r Result) Ok() bool {
	return r.Kind == Parsed
}

// Matcher tenta separar o texto em termo e definição.
type Matcher interface {
	Match(text string) (Result, bool)
}

// separatorMatcher divide o texto uma única vez na primeira ocorrência do separador.
type separatorMatcher struct {
	sep string
}

func (m separatorMatcher) Match(text string) (Result, bool) {
	left, right, found := strings.Cut(text, m.sep)
	if !found {
		return Result{}, false
	}
	term := strings.TrimSpace(left)
	definition := strings.TrimSpace(right)
	if term == "" || definition == "" {
		return Result{}, false
	}
	return Result{Kind: Parsed, Term: term, Definition: definition, Separator: m.sep}, true
}

// Separadores na ordem de prioridade.
var defaultSeparators = []string{" - ", ": ", " = ", " – ", " — "}

// Separadores sem espaço, usados só com WithLooseSeparators.
var looseSeparators = []string{"—", "–", "|", ":", "-"}

var (
	boldRe      = regexp.MustCompile(`\*\*(.+?)\*\*`)
	underlineRe = regexp.MustCompile(`__(.+?)__`)
)

// Parser tenta uma lista ordenada de matchers.
type Parser struct {
	matchers []Matcher
}

// Option configura o Parser.
type Option func(*Parser)

// WithLooseSeparators acrescenta os separadores sem espaço ao final da lista.
func WithLooseSeparators() Option {
	return func(p *Parser) {
		for _, sep := range looseSeparators {
			p.matchers = append(p.matchers, separatorMatcher{sep: sep})
		}
	}
}

// WithMatchers acrescenta matchers personalizados ao final da lista.
func WithMatchers(ms ...Matcher) Option {
	return func(p *Parser) {
		p.matchers = append(p.matchers, ms...)
	}
}

// New cria um Parser com os separadores padrão.
func New(opts ...Option) *Parser {
	p := &Parser{}
	for _, sep := range defaultSeparators {
		p.matchers = append(p.matchers, separatorMatcher{sep: sep})
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse separa uma linha em termo e definição.
func (p *Parser) Parse(text string) Result {
	cleaned := StripEmphasis(text)
	for _, m := range p.matchers {
		if res, ok := m.Match(cleaned); ok {
			return res
		}
	}
	return Result{Kind: Unparsed}
}

// ParseLines aplica Parse em cada linha não vazia e devolve só as que foram separadas.
func (p *Parser) ParseLines(text string) []Result {
	var out []Result
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if res := p.Parse(line); res.Ok() {
			out = append(out, res)
		}
	}
	return out
}

// StripEmphasis remove **negrito** e __sublinhado__ do Markdown.
func StripEmphasis(text string) string {
	text = boldRe.ReplaceAllString(text, "$1")
	return underlineRe.ReplaceAllString(text, "$1")
}

// Normalize gera a chave de busca de um termo.
func Normalize(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}
