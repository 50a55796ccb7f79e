package utils

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"studybot/internal/domain"
)

// Botões do teclado principal.
const (
	ButtonSearch   = "🔍 Search"
	ButtonList     = "📚 List All"
	ButtonChannels = "📺 Channels"
	ButtonStats    = "📊 Statistics"
	ButtonAdd      = "➕ Add Term"
	ButtonDelete   = "🗑️ Delete Term"
	ButtonHelp     = "ℹ️ Help"
	ButtonCancel   = "❌ Cancel"
)

const (
	// MaxMessageLength fica abaixo do limite de 4096 do Telegram.
	MaxMessageLength = 4000
	ListChunkSize    = 50
)

// MainMenu devolve as linhas do teclado de resposta.
func MainMenu() [][]string {
	return [][]string{
		{ButtonSearch, ButtonList},
		{ButtonChannels, ButtonStats},
		{ButtonAdd, ButtonDelete},
		{ButtonHelp, ButtonCancel},
	}
}

// Builder monta as respostas em MarkdownV2 ou em texto puro (CLI, logs).
type Builder struct {
	markdown bool
}

// NewBuilder cria o montador. markdown=false gera texto sem marcação.
func NewBuilder(markdown bool) Builder {
	return Builder{markdown: markdown}
}

// Markdown informa se as mensagens saem em MarkdownV2.
func (b Builder) Markdown() bool {
	return b.markdown
}

func (b Builder) bold(s string) string {
	if !b.markdown {
		return s
	}
	return "*" + EscapeLiteral(s) + "*"
}

// t escapa texto fixo do bot.
func (b Builder) t(s string) string {
	if !b.markdown {
		return s
	}
	return EscapeLiteral(s)
}

// u escapa texto do usuário, preservando `código`.
func (b Builder) u(s string) string {
	if !b.markdown {
		return s
	}
	return EscapeMarkdown(s)
}

func (b Builder) code(s string) string {
	if !b.markdown {
		return s
	}
	return "`" + escapeCode(s) + "`"
}

// BuildStart gera a mensagem de boas-vindas.
func (b Builder) BuildStart(name string) string {
	var sb strings.Builder
	sb.WriteString(b.bold("📚 Multi-Channel Study Bot") + "\n\n")
	if name != "" {
		sb.WriteString(b.t(fmt.Sprintf("Hi %s! ", name)))
	}
	sb.WriteString(b.t("I help you learn and organize terms and definitions from multiple channels.") + "\n\n")
	sb.WriteString(b.bold("🎯 Quick Start:") + "\n")
	sb.WriteString(b.t("• Use the menu buttons below to navigate") + "\n")
	sb.WriteString(b.t("• Or just type any term to search for it!") + "\n\n")
	sb.WriteString(b.bold("📺 In Channels:") + "\n")
	sb.WriteString(b.t("Add me to a channel and post messages like:") + "\n")
	sb.WriteString(b.t("• ") + b.code("Term - Definition") + "\n")
	sb.WriteString(b.t("• ") + b.code("Term: Definition") + "\n")
	sb.WriteString(b.t("• ") + b.code("Term = Definition") + "\n\n")
	sb.WriteString(b.t("👇 Use the menu below or type /help for more info"))
	return sb.String()
}

// BuildHelp gera a ajuda detalhada.
func (b Builder) BuildHelp() string {
	var sb strings.Builder
	sb.WriteString(b.bold("📖 How to Use This Bot") + "\n\n")

	sb.WriteString(b.bold("🔍 Searching:") + "\n")
	sb.WriteString(b.t("• Click 'Search' or type ") + b.code("/search Term") + "\n")
	sb.WriteString(b.t("• Or just type any term directly!") + "\n\n")

	sb.WriteString(b.bold("➕ Adding Terms:") + "\n")
	sb.WriteString(b.t("• Click 'Add Term' and send ") + b.code("Term - Definition") + "\n")
	sb.WriteString(b.t("• Or use ") + b.code("/add Term - Definition") + "\n\n")

	sb.WriteString(b.bold("📚 Viewing Terms:") + "\n")
	sb.WriteString(b.t("• 'List All' shows every term") + "\n")
	sb.WriteString(b.t("• 'Channels' shows active channels, ") + b.code("/channel_stats") + b.t(" the details") + "\n")
	sb.WriteString(b.t("• 'Statistics' shows the totals") + "\n\n")

	sb.WriteString(b.bold("🗑️ Deleting:") + "\n")
	sb.WriteString(b.t("• Click 'Delete Term' or use ") + b.code("/delete Term") + "\n\n")

	sb.WriteString(b.bold("📺 Channel Learning:") + "\n")
	sb.WriteString(b.t("Add me as admin to any channel and I'll learn terms from posts like:") + "\n")
	sb.WriteString(b.t("• ") + b.code("Term - Definition") + "\n")
	sb.WriteString(b.t("• ") + b.code("Term: Definition") + "\n")
	sb.WriteString(b.t("• ") + b.code("Term = Definition") + "\n\n")

	sb.WriteString(b.t("Use ") + b.code("/cancel") + b.t(" to abort an add or delete in progress.") + "\n")
	sb.WriteString(b.bold("💡 Tip:") + b.t(" searches cover every channel at once!"))
	return sb.String()
}

// BuildSearchPrompt pede o termo a buscar.
func (b Builder) BuildSearchPrompt() string {
	return b.bold("🔍 Search for a Term") + "\n\n" +
		b.t("Please type the term you want to search for.") + "\n\n" +
		b.bold("Example:") + " " + b.code("Algorithm")
}

// BuildAddPrompt pede o termo e a definição.
func (b Builder) BuildAddPrompt() string {
	return b.bold("📝 Add a New Term") + "\n\n" +
		b.bold("Format:") + " " + b.code("Term - Definition") + "\n\n" +
		b.bold("Example:") + "\n" + b.code("Algorithm - A step-by-step procedure for solving a problem") + "\n\n" +
		b.t("Send your term now, or /cancel.")
}

// BuildDeletePrompt pede o termo a remover.
func (b Builder) BuildDeletePrompt() string {
	return b.bold("🗑️ Delete a Term") + "\n\n" +
		b.t("Please type the term you want to delete.") + "\n\n" +
		b.bold("Example:") + " " + b.code("Algorithm") + "\n\n" +
		b.t("Or /cancel.")
}

// BuildParseFailure explica o formato esperado.
func (b Builder) BuildParseFailure() string {
	return b.t("❌ Could not parse term and definition.") + "\n\n" +
		b.t("Please use the format ") + b.code("Term - Definition") + b.t(", or /cancel.")
}

// BuildAdded confirma a gravação.
func (b Builder) BuildAdded(res domain.AddResult) string {
	switch res.Outcome {
	case domain.Appended:
		return b.t("✅ Added another definition for: ") + b.bold(res.Term) + "\n\n" +
			b.t(fmt.Sprintf("📊 Total definitions: %d", res.Definitions))
	case domain.Duplicate:
		return b.t("ℹ️ That definition is already saved for: ") + b.bold(res.Term) + "\n\n" +
			b.t(fmt.Sprintf("📊 Total definitions: %d", res.Definitions))
	default:
		return b.bold("✅ Term Added Successfully!") + "\n\n" +
			b.t("📚 ") + b.bold(res.Term) + "\n" +
			b.t("📝 ") + b.u(res.Definition)
	}
}

// BuildNoResults informa que a busca não achou nada.
func (b Builder) BuildNoResults(query string) string {
	return b.bold("❌ No Results Found") + "\n\n" +
		b.t("No matches for: ") + b.bold(query) + "\n\n" +
		b.t("Try a different search term or add it using 'Add Term'.")
}

// BuildSearchResults lista os resultados. Corta em MaxMessageLength sem quebrar um resultado.
func (b Builder) BuildSearchResults(query string, results []domain.SearchResult) string {
	if len(results) == 0 {
		return b.BuildNoResults(query)
	}

	header := b.bold(fmt.Sprintf("🔍 Search Results for '%s'", query)) + "\n\n"
	truncated := "\n" + b.t("⚠️ (Results truncated)")

	var sb strings.Builder
	sb.WriteString(header)
	for i, r := range results {
		block := b.resultBlock(i+1, r)
		if sb.Len()+len(block) > MaxMessageLength-len(truncated) {
			if i == 0 {
				block = b.truncate(block, MaxMessageLength-len(truncated)-sb.Len())
				sb.WriteString(block)
			}
			sb.WriteString(truncated)
			return sb.String()
		}
		sb.WriteString(block)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b Builder) resultBlock(n int, r domain.SearchResult) string {
	var sb strings.Builder
	term := r.Key
	if r.Record != nil && r.Record.OriginalTerm != "" {
		term = r.Record.OriginalTerm
	}
	sb.WriteString(b.bold(fmt.Sprintf("%d. %s", n, term)))
	if r.ChannelSourced() && r.Source != "" {
		sb.WriteString(b.t(" 📺 " + r.Source))
	}
	if r.Record != nil && r.Record.Kind == domain.KindNote {
		sb.WriteString(b.t(" 🗒️"))
	}
	sb.WriteString("\n")

	if r.Record != nil {
		defs := r.Record.Definitions
		switch {
		case len(defs) == 0:
			sb.WriteString(b.t("   📝 No definition") + "\n")
		case len(defs) == 1:
			sb.WriteString(b.t("   📝 ") + b.u(defs[0].Text) + "\n")
		default:
			for j, d := range defs {
				sb.WriteString(b.t(fmt.Sprintf("   %d. ", j+1)) + b.u(d.Text) + "\n")
			}
		}
		if len(r.Record.Related) > 0 {
			sb.WriteString(b.t("   🔗 Related: "+strings.Join(r.Record.Related, ", ")) + "\n")
		}
	}
	sb.WriteString("\n")
	return sb.String()
}

func (b Builder) truncate(s string, n int) string {
	if b.markdown {
		return truncateMarkdown(s, n)
	}
	return truncateRunes(s, n)
}

// truncateMarkdown corta texto MarkdownV2 em até n bytes. Pares de escape não
// são partidos e entidades abertas (código, negrito) são fechadas no corte.
func truncateMarkdown(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}

	var (
		code   string // delimitador do trecho de código aberto
		bold   bool
		openAt = -1 // início da entidade aberta mais recente
		openTo int
		cut    int
		closer string
	)
	for i := 0; i < len(s); {
		size := 1
		switch {
		case s[i] == '\\' && i+1 < len(s):
			_, w := utf8.DecodeRuneInString(s[i+1:])
			size = 1 + w
		case strings.HasPrefix(s[i:], fence) && code != "`":
			size = len(fence)
		default:
			_, size = utf8.DecodeRuneInString(s[i:])
		}

		tok := s[i : i+size]
		nextCode, nextBold := code, bold
		opened := false
		switch {
		case tok == fence:
			if code == "" {
				nextCode, opened = fence, true
			} else {
				nextCode = ""
			}
		case tok == "`" && code != fence:
			if code == "" {
				nextCode, opened = "`", true
			} else {
				nextCode = ""
			}
		case tok == "*" && code == "":
			nextBold = !bold
			opened = nextBold
		}

		closing := nextCode
		if nextBold {
			closing += "*"
		}
		if i+size+len(closing) > n {
			break
		}
		if opened {
			openAt, openTo = i, i+size
		}
		i += size
		code, bold = nextCode, nextBold
		cut, closer = i, closing
	}

	// entidade vazia é rejeitada pelo Telegram: descarta o delimitador recém-aberto
	if closer != "" && cut == openTo && openAt >= 0 {
		cut = openAt
		closer = ""
		if code != "" && bold {
			closer = "*"
		}
	}
	return s[:cut] + closer
}

// truncateRunes corta s em até n bytes sem partir um caractere nem deixar uma barra de escape solta.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	out := s[:cut]
	trailing := len(out) - len(strings.TrimRight(out, "\\"))
	if trailing%2 == 1 {
		out = out[:len(out)-1]
	}
	return out
}

func isRuneStart(c byte) bool {
	return c&0xC0 != 0x80
}

// BuildList lista todos os termos em blocos de ListChunkSize.
func (b Builder) BuildList(terms []domain.TermListing) []string {
	if len(terms) == 0 {
		return []string{b.bold("📭 Knowledge Base is Empty") + "\n\n" +
			b.t("No terms found. Start adding terms or add me to a channel!")}
	}

	chunks := (len(terms) + ListChunkSize - 1) / ListChunkSize
	out := make([]string, 0, chunks)
	for c := 0; c < chunks; c++ {
		start := c * ListChunkSize
		end := min(start+ListChunkSize, len(terms))

		var sb strings.Builder
		if chunks == 1 {
			sb.WriteString(b.bold(fmt.Sprintf("📚 All Terms (%d total)", len(terms))) + "\n\n")
		} else {
			sb.WriteString(b.bold(fmt.Sprintf("📚 All Terms (Part %d/%d)", c+1, chunks)) + "\n\n")
		}
		for i := start; i < end; i++ {
			line := fmt.Sprintf("%d. %s 📺 %s", i+1, terms[i].Term, strings.Join(terms[i].Sources, ", "))
			sb.WriteString(b.t(line) + "\n")
		}
		out = append(out, strings.TrimRight(sb.String(), "\n"))
	}
	return out
}

// BuildChannels lista os canais ativos.
func (b Builder) BuildChannels(channels []domain.ChannelSummary) string {
	if len(channels) == 0 {
		return b.bold("📭 No Active Channels") + "\n\n" +
			b.t("Add me to a channel as an admin to start learning!") + "\n\n" +
			b.bold("📌 How to add me:") + "\n" +
			b.t("1. Go to your channel settings") + "\n" +
			b.t("2. Add administrators") + "\n" +
			b.t("3. Search for this bot and add it") + "\n" +
			b.t("4. Post terms in format: ") + b.code("Term - Definition")
	}

	var sb strings.Builder
	sb.WriteString(b.bold(fmt.Sprintf("📺 Active Channels (%d)", len(channels))) + "\n\n")
	for i, c := range channels {
		sb.WriteString(b.bold(fmt.Sprintf("%d. %s", i+1, c.Name)) + "\n")
		sb.WriteString(b.t(fmt.Sprintf("   📊 Terms: %d", c.Terms)) + "\n")
		sb.WriteString(b.t("   🆔 ID: ") + b.code(fmt.Sprint(c.ID)) + "\n\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// BuildChannelStats detalha termos e definições por canal.
func (b Builder) BuildChannelStats(channels []domain.ChannelSummary) string {
	if len(channels) == 0 {
		return b.t("📭 No channels found")
	}

	var sb strings.Builder
	sb.WriteString(b.bold("📊 Detailed Channel Statistics") + "\n\n")
	terms, defs := 0, 0
	for i, c := range channels {
		terms += c.Terms
		defs += c.Definitions
		avg := 0.0
		if c.Terms > 0 {
			avg = float64(c.Definitions) / float64(c.Terms)
		}
		sb.WriteString(b.bold(fmt.Sprintf("%d. %s", i+1, c.Name)) + "\n")
		sb.WriteString(b.t(fmt.Sprintf("   📚 Terms: %d", c.Terms)) + "\n")
		sb.WriteString(b.t(fmt.Sprintf("   📝 Definitions: %d", c.Definitions)) + "\n")
		sb.WriteString(b.t(fmt.Sprintf("   📈 Avg: %.1f def/term", avg)) + "\n\n")
	}
	sb.WriteString(b.bold("📊 Overall Total:") + "\n")
	sb.WriteString(b.t(fmt.Sprintf("   📚 Terms: %d", terms)) + "\n")
	sb.WriteString(b.t(fmt.Sprintf("   📝 Definitions: %d", defs)))
	return sb.String()
}

// BuildStats mostra os totais gerais.
func (b Builder) BuildStats(s domain.Stats) string {
	var sb strings.Builder
	sb.WriteString(b.bold("📊 Knowledge Base Statistics") + "\n\n")
	sb.WriteString(b.t("📺 Active Channels: ") + b.bold(fmt.Sprint(s.Channels)) + "\n")
	sb.WriteString(b.t("📚 Total Terms: ") + b.bold(fmt.Sprint(s.Terms)) + "\n")
	sb.WriteString(b.t("📝 Total Definitions: ") + b.bold(fmt.Sprint(s.Definitions)) + "\n")
	if s.Notes > 0 {
		sb.WriteString(b.t("🗒️ Notes: ") + b.bold(fmt.Sprint(s.Notes)) + "\n")
	}
	if s.Terms > 0 {
		sb.WriteString(b.t("📈 Avg Definitions/Term: ") + b.bold(fmt.Sprintf("%.1f", s.AvgDefinitions())) + "\n")
	}
	sb.WriteString("\n" + b.t("💡 Keep learning! Add more channels or terms."))
	return sb.String()
}

// BuildDeleted confirma a remoção e lista as bases afetadas.
func (b Builder) BuildDeleted(term string, sources []string) string {
	var sb strings.Builder
	sb.WriteString(b.bold("✅ Term Deleted Successfully!") + "\n\n")
	sb.WriteString(b.t("🗑️ Deleted ") + b.bold(term) + b.t(" from:"))
	for _, s := range sources {
		sb.WriteString("\n" + b.t("   • "+s))
	}
	return sb.String()
}

// BuildNotFound informa que o termo não existe em nenhuma base.
func (b Builder) BuildNotFound(term string) string {
	return b.bold("❌ Term Not Found") + "\n\n" + b.t("No matches for: ") + b.bold(term)
}

// BuildCancelled confirma o cancelamento.
func (b Builder) BuildCancelled(hadPending bool) string {
	if !hadPending {
		return b.t("Nothing to cancel. 👇 Pick an option from the menu.")
	}
	return b.t("❎ Cancelled.")
}

// BuildGenericFailure é a resposta para erros inesperados.
func (b Builder) BuildGenericFailure() string {
	return b.t("❌ An error occurred. Please try again.")
}

// BuildUnknownCommand responde a um comando desconhecido.
func (b Builder) BuildUnknownCommand(cmd string) string {
	return b.t(fmt.Sprintf("Unknown command %s. Type /help to see what I can do.", cmd))
}
