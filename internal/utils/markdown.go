package utils

import "strings"

// SegmentKind separa texto comum de trechos de código.
type SegmentKind int

const (
	Literal SegmentKind = iota
	CodeSpan
)

// Segment é um pedaço do texto. CodeSpan guarda os acentos graves originais.
type Segment struct {
	Kind SegmentKind
	Text string
}

const fence = "```"

// reservados do MarkdownV2 do Telegram
const markdownReserved = "_*[]()~`>#+-=|{}.!\\"

// Tokenize divide o texto em trechos literais e de código.
// Blocos ``` ... ``` e `inline` viram CodeSpan; crase sem par fica literal.
func Tokenize(s string) []Segment {
	var segs []Segment
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			segs = append(segs, Segment{Kind: Literal, Text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(s); {
		if s[i] != '`' {
			lit.WriteByte(s[i])
			i++
			continue
		}

		if strings.HasPrefix(s[i:], fence) {
			if end := strings.Index(s[i+len(fence):], fence); end >= 0 {
				stop := i + len(fence) + end + len(fence)
				flush()
				segs = append(segs, Segment{Kind: CodeSpan, Text: s[i:stop]})
				i = stop
				continue
			}
			lit.WriteString(fence)
			i += len(fence)
			continue
		}

		if end := strings.IndexByte(s[i+1:], '`'); end > 0 {
			stop := i + 1 + end + 1
			flush()
			segs = append(segs, Segment{Kind: CodeSpan, Text: s[i:stop]})
			i = stop
			continue
		}
		lit.WriteByte('`')
		i++
	}
	flush()
	return segs
}

// EscapeMarkdown escapa o texto para MarkdownV2, deixando os trechos de código intactos.
func EscapeMarkdown(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/8)
	for _, seg := range Tokenize(s) {
		if seg.Kind == CodeSpan {
			b.WriteString(seg.Text)
			continue
		}
		escapeInto(&b, seg.Text)
	}
	return b.String()
}

// EscapeLiteral escapa tudo, inclusive acentos graves.
func EscapeLiteral(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/8)
	escapeInto(&b, s)
	return b.String()
}

func escapeInto(b *strings.Builder, s string) {
	for _, r := range s {
		if strings.ContainsRune(markdownReserved, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
}

// escapeCode escapa o conteúdo de um trecho `code` montado pelo bot.
func escapeCode(s string) string {
	r := strings.NewReplacer("\\", "\\\\", "`", "\\`")
	return r.Replace(s)
}
