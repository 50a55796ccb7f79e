package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"studybot/internal/domain"
	"studybot/internal/parser"
	"studybot/internal/rag"
)

var (
	ErrNotFound   = errors.New("termo não encontrado")
	ErrEmptyQuery = errors.New("consulta vazia")
	ErrUnparsed   = errors.New("não foi possível separar termo e definição")
)

// ManualSourceLabel é o nome da base manual nas listagens.
const ManualSourceLabel = "Manual"

// KnowledgeService é a camada de regras sobre as bases de conhecimento.
// Toda leitura-modificação-escrita passa pelo mesmo mutex.
type KnowledgeService struct {
	repo     rag.KnowledgeRepository
	searcher *rag.Searcher
	parser   *parser.Parser
	log      *zap.Logger
	notes    bool

	mu    sync.Mutex
	newID func() string
}

// KnowledgeOption configura o KnowledgeService.
type KnowledgeOption func(*KnowledgeService)

// WithNotes liga a gravação de notas livres vindas de canais.
func WithNotes(enabled bool) KnowledgeOption {
	return func(s *KnowledgeService) { s.notes = enabled }
}

// WithSearcher troca os limites da busca.
func WithSearcher(searcher *rag.Searcher) KnowledgeOption {
	return func(s *KnowledgeService) { s.searcher = searcher }
}

// WithParser troca o parser de termos.
func WithParser(p *parser.Parser) KnowledgeOption {
	return func(s *KnowledgeService) { s.parser = p }
}

// NewKnowledgeService cria o serviço sobre o repositório informado.
func NewKnowledgeService(repo rag.KnowledgeRepository, log *zap.Logger, opts ...KnowledgeOption) *KnowledgeService {
	s := &KnowledgeService{
		repo:     repo,
		searcher: rag.NewSearcher(),
		parser:   parser.New(),
		log:      log.Named("knowledge"),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddManualText separa "Termo - Definição" e grava na base manual.
func (s *KnowledgeService) AddManualText(ctx context.Context, text string, at time.Time) (domain.AddResult, error) {
	res := s.parser.Parse(text)
	if !res.Ok() {
		return domain.AddResult{}, ErrUnparsed
	}
	return s.AddManual(ctx, res.Term, res.Definition, at)
}

// AddManual grava um termo na base manual.
func (s *KnowledgeService) AddManual(ctx context.Context, term, definition string, at time.Time) (domain.AddResult, error) {
	term, definition = strings.TrimSpace(term), strings.TrimSpace(definition)
	if term == "" || definition == "" {
		return domain.AddResult{}, ErrUnparsed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.repo.Load(ctx, domain.GlobalPartition)
	if err != nil {
		return domain.AddResult{}, err
	}
	res := s.addTo(p, term, definition, domain.SourceManual, domain.KindTerm, at)
	if res.Outcome != domain.Duplicate {
		if err := s.repo.Save(ctx, domain.GlobalPartition, p); err != nil {
			return domain.AddResult{}, err
		}
	}

	s.log.Info("termo manual gravado",
		zap.String("term", term), zap.Stringer("outcome", res.Outcome), zap.Int("definitions", res.Definitions))
	return res, nil
}

// Ingest aprende com um post de canal. Cada linha "Termo - Definição" vira uma
// definição; sem nenhuma, o texto pode virar nota se as notas estiverem ligadas.
func (s *KnowledgeService) Ingest(ctx context.Context, channelID int64, channelName, text string, at time.Time) ([]domain.AddResult, error) {
	c := s.parser.Classify(text)
	if c.Kind == parser.Ignored || (c.Kind == parser.NoteContent && !s.notes) {
		return nil, nil
	}

	id := domain.ChannelPartition(channelID)
	if channelName == "" {
		channelName = channelLabel(id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.repo.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	var results []domain.AddResult
	switch c.Kind {
	case parser.DefinitionContent:
		for _, r := range c.Results {
			results = append(results, s.addTo(p, r.Term, r.Definition, channelName, domain.KindTerm, at))
		}
	case parser.NoteContent:
		results = append(results, s.addTo(p, c.Title, c.Body, channelName, domain.KindNote, at))
	}

	changed := false
	for _, r := range results {
		if r.Outcome != domain.Duplicate {
			changed = true
		}
		s.log.Info("aprendido do canal",
			zap.String("channel", channelName), zap.String("term", r.Term),
			zap.Stringer("outcome", r.Outcome), zap.String("kind", string(r.Kind)))
	}
	if changed {
		if err := s.repo.Save(ctx, id, p); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// addTo aplica a política de duplicatas: definição nova é acrescentada,
// texto igual (sem diferenciar maiúsculas) é ignorado.
func (s *KnowledgeService) addTo(p domain.Partition, term, definition, source string, kind domain.RecordKind, at time.Time) domain.AddResult {
	key := parser.Normalize(term)
	stamp := at.Format(time.DateTime)
	def := domain.Definition{ID: s.newID(), Text: definition, Added: stamp, Source: source}

	rec, ok := p[key]
	if !ok || rec == nil {
		rec = &domain.Record{
			OriginalTerm: term,
			Definitions:  []domain.Definition{def},
			Added:        stamp,
			Source:       source,
			Kind:         kind,
		}
		rec.Keywords = keywordsFor(rec)
		p[key] = rec
		return domain.AddResult{Outcome: domain.Added, Key: key, Term: term, Definition: definition, Definitions: 1, Kind: kind}
	}

	if rec.Kind == "" {
		rec.Kind = domain.KindTerm
	}
	if rec.HasDefinition(definition) {
		return domain.AddResult{Outcome: domain.Duplicate, Key: key, Term: rec.OriginalTerm, Definition: definition,
			Definitions: len(rec.Definitions), Kind: rec.Kind}
	}
	rec.Definitions = append(rec.Definitions, def)
	rec.Keywords = keywordsFor(rec)
	return domain.AddResult{Outcome: domain.Appended, Key: key, Term: rec.OriginalTerm, Definition: definition,
		Definitions: len(rec.Definitions), Kind: rec.Kind}
}

func keywordsFor(r *domain.Record) []string {
	texts := []string{r.OriginalTerm}
	for _, d := range r.Definitions {
		texts = append(texts, d.Text)
	}
	return rag.ExtractKeywords(texts...)
}

// Search busca em todas as bases e junta os resultados.
func (s *KnowledgeService) Search(ctx context.Context, query string) ([]domain.SearchResult, error) {
	if parser.Normalize(query) == "" {
		return nil, ErrEmptyQuery
	}

	ids, err := s.repo.Partitions(ctx)
	if err != nil {
		return nil, err
	}

	lists := make([][]domain.SearchResult, 0, len(ids))
	for _, id := range ids {
		p := s.loadForRead(ctx, id)
		results := s.searcher.Search(query, p)
		source := domain.SourceManual
		if !id.IsGlobal() {
			source = partitionLabel(id, p)
		}
		for i := range results {
			results[i].Partition = id
			results[i].Source = source
		}
		lists = append(lists, results)
	}

	merged := s.searcher.Merge(lists...)
	s.log.Debug("busca", zap.String("query", query), zap.Int("partitions", len(ids)), zap.Int("results", len(merged)))
	return merged, nil
}

// Delete remove o termo de todas as bases e devolve o nome de cada base afetada.
func (s *KnowledgeService) Delete(ctx context.Context, term string) ([]string, error) {
	key := parser.Normalize(term)
	if key == "" {
		return nil, ErrEmptyQuery
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.repo.Partitions(ctx)
	if err != nil {
		return nil, err
	}

	var sources []string
	for _, id := range ids {
		p, err := s.repo.Load(ctx, id)
		if err != nil {
			s.log.Error("erro ao carregar base para remoção", zap.String("partition", string(id)), zap.Error(err))
			continue
		}
		if _, ok := p[key]; !ok {
			continue
		}
		label := partitionLabel(id, p)
		delete(p, key)
		if err := s.repo.Save(ctx, id, p); err != nil {
			return sources, fmt.Errorf("erro ao remover %q de %s: %w", term, id, err)
		}
		sources = append(sources, label)
	}

	if len(sources) == 0 {
		return nil, ErrNotFound
	}
	s.log.Info("termo removido", zap.String("term", term), zap.Strings("from", sources))
	return sources, nil
}

// List devolve todos os termos, em ordem alfabética, com as bases onde aparecem.
func (s *KnowledgeService) List(ctx context.Context) ([]domain.TermListing, error) {
	ids, err := s.repo.Partitions(ctx)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int)
	var out []domain.TermListing
	for _, id := range ids {
		p := s.loadForRead(ctx, id)
		label := partitionLabel(id, p)
		for _, key := range p.Keys() {
			term := p[key].OriginalTerm
			if term == "" {
				term = key
			}
			if i, ok := index[term]; ok {
				out[i].Sources = append(out[i].Sources, label)
				continue
			}
			index[term] = len(out)
			out = append(out, domain.TermListing{Term: term, Sources: []string{label}})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Term < out[j].Term })
	return out, nil
}

// Channels resume as bases de canal, da maior para a menor.
func (s *KnowledgeService) Channels(ctx context.Context) ([]domain.ChannelSummary, error) {
	ids, err := s.repo.Partitions(ctx)
	if err != nil {
		return nil, err
	}

	var out []domain.ChannelSummary
	for _, id := range ids {
		n, ok := id.ChannelID()
		if !ok {
			continue
		}
		p := s.loadForRead(ctx, id)
		out = append(out, domain.ChannelSummary{
			ID:          n,
			Name:        partitionLabel(id, p),
			Terms:       len(p),
			Definitions: p.DefinitionCount(),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Terms != out[j].Terms {
			return out[i].Terms > out[j].Terms
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Stats soma termos, definições e notas de todas as bases.
func (s *KnowledgeService) Stats(ctx context.Context) (domain.Stats, error) {
	ids, err := s.repo.Partitions(ctx)
	if err != nil {
		return domain.Stats{}, err
	}

	var st domain.Stats
	for _, id := range ids {
		p := s.loadForRead(ctx, id)
		if !id.IsGlobal() {
			st.Channels++
		}
		st.Terms += len(p)
		st.Definitions += p.DefinitionCount()
		for _, r := range p {
			if r.Kind == domain.KindNote {
				st.Notes++
			}
		}
	}
	return st, nil
}

// loadForRead carrega a base para consultas. Falha de leitura é registrada e a
// base entra vazia; quem grava usa repo.Load direto e aborta no erro.
func (s *KnowledgeService) loadForRead(ctx context.Context, id domain.PartitionID) domain.Partition {
	p, err := s.repo.Load(ctx, id)
	if err != nil {
		s.log.Error("erro ao carregar base, usando base vazia", zap.String("partition", string(id)), zap.Error(err))
		return domain.Partition{}
	}
	return p
}

func partitionLabel(id domain.PartitionID, p domain.Partition) string {
	if id.IsGlobal() {
		return ManualSourceLabel
	}
	if name := p.ChannelName(); name != "" {
		return name
	}
	return channelLabel(id)
}

func channelLabel(id domain.PartitionID) string {
	n, _ := id.ChannelID()
	return fmt.Sprintf("Channel %d", n)
}
