package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// SourceManual identifica registros adicionados manualmente no chat privado.
const SourceManual = "manual"

// RecordKind diferencia termos com definição de notas livres.
type RecordKind string

const (
	KindTerm RecordKind = "term"
	KindNote RecordKind = "note"
)

// Definition é uma definição de um termo, com a sua procedência.
type Definition struct {
	ID     string `json:"id,omitempty"`
	Text   string `json:"text"`
	Added  string `json:"added"`
	Source string `json:"source,omitempty"`
}

// Record representa um termo salvo numa base de conhecimento.
type Record struct {
	OriginalTerm string       `json:"original_term"`
	Definitions  []Definition `json:"definitions"`
	Added        string       `json:"added"`
	Source       string       `json:"source"`
	Kind         RecordKind   `json:"kind,omitempty"`
	Related      []string     `json:"related,omitempty"`
	Keywords     []string     `json:"keywords,omitempty"`
}

// legacyRecord cobre o formato antigo dos arquivos, com "definition" e "channel".
type legacyRecord struct {
	OriginalTerm string          `json:"original_term"`
	Definitions  json.RawMessage `json:"definitions"`
	Definition   string          `json:"definition"`
	Added        string          `json:"added"`
	Source       string          `json:"source"`
	Channel      string          `json:"channel"`
	Kind         RecordKind      `json:"kind"`
	Related      []string        `json:"related"`
	Keywords     []string        `json:"keywords"`
}

// UnmarshalJSON aceita tanto o formato atual quanto o legado.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw legacyRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	defs, err := decodeDefinitions(raw.Definitions)
	if err != nil {
		return err
	}
	if len(defs) == 0 && raw.Definition != "" {
		defs = []Definition{{Text: raw.Definition, Added: raw.Added}}
	}

	source := raw.Source
	if source == "" {
		source = raw.Channel
	}
	if source == "" {
		source = SourceManual
	}

	*r = Record{
		OriginalTerm: raw.OriginalTerm,
		Definitions:  defs,
		Added:        raw.Added,
		Source:       source,
		Kind:         raw.Kind,
		Related:      raw.Related,
		Keywords:     raw.Keywords,
	}
	return nil
}

// decodeDefinitions aceita uma lista de objetos ou de strings simples.
func decodeDefinitions(raw json.RawMessage) ([]Definition, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("definitions invalidas: %w", err)
	}

	defs := make([]Definition, 0, len(items))
	for _, item := range items {
		var text string
		if err := json.Unmarshal(item, &text); err == nil {
			defs = append(defs, Definition{Text: text})
			continue
		}
		var d struct {
			Definition
			Channel string `json:"channel"`
		}
		if err := json.Unmarshal(item, &d); err != nil {
			return nil, fmt.Errorf("definicao invalida: %w", err)
		}
		if d.Source == "" {
			d.Source = d.Channel
		}
		defs = append(defs, d.Definition)
	}
	return defs, nil
}

// IsChannel informa se o registro veio de um canal.
func (r *Record) IsChannel() bool {
	return r.Source != "" && r.Source != SourceManual
}

// HasDefinition verifica se o texto já existe entre as definições, sem diferenciar maiúsculas.
func (r *Record) HasDefinition(text string) bool {
	for _, d := range r.Definitions {
		if strings.EqualFold(strings.TrimSpace(d.Text), strings.TrimSpace(text)) {
			return true
		}
	}
	return false
}

// Partition é uma base de conhecimento: chave normalizada -> registro.
type Partition map[string]*Record

// Prune descarta entradas nulas ("termo": null) vindas de arquivos editados à mão.
func (p Partition) Prune() Partition {
	for k, r := range p {
		if r == nil {
			delete(p, k)
		}
	}
	return p
}

// Keys retorna as chaves em ordem alfabética.
func (p Partition) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DefinitionCount soma as definições de todos os registros.
func (p Partition) DefinitionCount() int {
	total := 0
	for _, r := range p {
		if len(r.Definitions) == 0 {
			total++
			continue
		}
		total += len(r.Definitions)
	}
	return total
}

// ChannelName devolve o nome do canal registrado no primeiro termo (ordem alfabética).
func (p Partition) ChannelName() string {
	for _, k := range p.Keys() {
		if p[k].IsChannel() {
			return p[k].Source
		}
	}
	return ""
}

// PartitionID identifica uma base: "global" ou "channel:<id>".
type PartitionID string

// GlobalPartition guarda os termos adicionados manualmente.
const GlobalPartition PartitionID = "global"

const channelPrefix = "channel:"

// ChannelPartition monta o id da base de um canal. O sinal do id do chat é descartado.
func ChannelPartition(chatID int64) PartitionID {
	if chatID < 0 {
		chatID = -chatID
	}
	return PartitionID(channelPrefix + strconv.FormatInt(chatID, 10))
}

// ChannelID extrai o id numérico de uma base de canal.
func (id PartitionID) ChannelID() (int64, bool) {
	s, ok := strings.CutPrefix(string(id), channelPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// IsGlobal informa se é a base manual.
func (id PartitionID) IsGlobal() bool {
	return id == GlobalPartition
}

// ParsePartitionID valida um id vindo de fora (arquivo, banco, CLI).
func ParsePartitionID(s string) (PartitionID, error) {
	id := PartitionID(s)
	if id.IsGlobal() {
		return id, nil
	}
	if _, ok := id.ChannelID(); ok {
		return id, nil
	}
	return "", fmt.Errorf("id de base invalido: %q", s)
}

// SearchResult é um candidato retornado pela busca.
type SearchResult struct {
	Key       string
	Record    *Record
	Score     float64
	Partition PartitionID
	Source    string
}

// ChannelSourced informa se o resultado veio de uma base de canal.
func (r SearchResult) ChannelSourced() bool {
	return !r.Partition.IsGlobal()
}
