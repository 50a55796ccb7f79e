package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"studybot/internal/domain"
	"studybot/internal/rag"
)

var testTime = time.Date(2024, 3, 10, 14, 30, 0, 0, time.UTC)

func newTestKnowledge(t *testing.T, opts ...KnowledgeOption) (*KnowledgeService, *rag.FileStore) {
	t.Helper()
	log := zaptest.NewLogger(t)
	store, err := rag.NewFileStore(t.TempDir(), log)
	require.NoError(t, err)

	n := 0
	svc := NewKnowledgeService(store, log, opts...)
	svc.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return svc, store
}

func TestAddManual_NewTerm(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestKnowledge(t)

	res, err := svc.AddManualText(ctx, "Algorithm - A step-by-step procedure", testTime)
	require.NoError(t, err)
	assert.Equal(t, domain.Added, res.Outcome)
	assert.Equal(t, "algorithm", res.Key)
	assert.Equal(t, "Algorithm", res.Term)
	assert.Equal(t, 1, res.Definitions)

	p, err := store.Load(ctx, domain.GlobalPartition)
	require.NoError(t, err)
	require.Contains(t, p, "algorithm")
	rec := p["algorithm"]
	assert.Equal(t, "Algorithm", rec.OriginalTerm)
	assert.Equal(t, domain.SourceManual, rec.Source)
	assert.Equal(t, domain.KindTerm, rec.Kind)
	assert.Equal(t, "2024-03-10 14:30:00", rec.Added)
	assert.Equal(t, []domain.Definition{
		{ID: "id-1", Text: "A step-by-step procedure", Added: "2024-03-10 14:30:00", Source: domain.SourceManual},
	}, rec.Definitions)
	assert.Contains(t, rec.Keywords, "procedure")
}

func TestAddManual_DuplicatePolicy(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestKnowledge(t)

	_, err := svc.AddManual(ctx, "Stack", "LIFO structure", testTime)
	require.NoError(t, err)

	res, err := svc.AddManual(ctx, "  STACK ", "Region of memory for call frames", testTime)
	require.NoError(t, err)
	assert.Equal(t, domain.Appended, res.Outcome)
	assert.Equal(t, "Stack", res.Term)
	assert.Equal(t, 2, res.Definitions)

	res, err = svc.AddManual(ctx, "stack", "lifo STRUCTURE", testTime)
	require.NoError(t, err)
	assert.Equal(t, domain.Duplicate, res.Outcome)
	assert.Equal(t, 2, res.Definitions)

	p, err := store.Load(ctx, domain.GlobalPartition)
	require.NoError(t, err)
	assert.Len(t, p["stack"].Definitions, 2)
	assert.Equal(t, "Stack", p["stack"].OriginalTerm)
}

func TestAddManual_Unparsed(t *testing.T) {
	svc, _ := newTestKnowledge(t)

	_, err := svc.AddManualText(context.Background(), "just some words", testTime)
	assert.ErrorIs(t, err, ErrUnparsed)

	_, err = svc.AddManual(context.Background(), " ", "def", testTime)
	assert.ErrorIs(t, err, ErrUnparsed)
}

func TestIngest_Definitions(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestKnowledge(t)

	post := "**Queue** - FIFO structure\nnot a definition\nHeap: Tree with the heap property"
	results, err := svc.Ingest(ctx, -1001234, "CS Notes", post, testTime)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Queue", results[0].Term)
	assert.Equal(t, "Heap", results[1].Term)

	p, err := store.Load(ctx, domain.ChannelPartition(1001234))
	require.NoError(t, err)
	require.Len(t, p, 2)
	assert.Equal(t, "CS Notes", p["queue"].Source)
	assert.Equal(t, "CS Notes", p["queue"].Definitions[0].Source)
	assert.Equal(t, "CS Notes", p.ChannelName())
}

func TestIngest_Notes(t *testing.T) {
	ctx := context.Background()
	text := "Caching strategies\nWrite-through caches update the store on every write operation"

	off, _ := newTestKnowledge(t)
	results, err := off.Ingest(ctx, 55, "Ops", text, testTime)
	require.NoError(t, err)
	assert.Empty(t, results)

	on, store := newTestKnowledge(t, WithNotes(true))
	results, err = on.Ingest(ctx, 55, "Ops", text, testTime)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, domain.KindNote, results[0].Kind)
	assert.Equal(t, "Caching strategies", results[0].Term)

	p, err := store.Load(ctx, domain.ChannelPartition(55))
	require.NoError(t, err)
	require.Contains(t, p, "caching strategies")
	assert.Equal(t, domain.KindNote, p["caching strategies"].Kind)
}

func TestIngest_IgnoredAndDefaultName(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestKnowledge(t)

	results, err := svc.Ingest(ctx, 9, "", "/start", testTime)
	require.NoError(t, err)
	assert.Nil(t, results)

	_, err = svc.Ingest(ctx, 9, "", "DNS - Maps names to addresses", testTime)
	require.NoError(t, err)
	p, err := store.Load(ctx, domain.ChannelPartition(9))
	require.NoError(t, err)
	assert.Equal(t, "Channel 9", p["dns"].Source)
}

func TestSearch_CrossPartition(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestKnowledge(t)

	_, err := svc.AddManual(ctx, "Algorithm", "A step-by-step procedure", testTime)
	require.NoError(t, err)
	_, err = svc.Ingest(ctx, -100, "Bio", "Algae - Simple aquatic organisms", testTime)
	require.NoError(t, err)

	results, err := svc.Search(ctx, "algo")
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "algorithm", results[0].Key)
	assert.Equal(t, rag.ScoreSubstring, results[0].Score)
	assert.Equal(t, domain.GlobalPartition, results[0].Partition)
	assert.Equal(t, domain.SourceManual, results[0].Source)

	assert.Equal(t, "algae", results[1].Key)
	assert.Equal(t, rag.ScoreFuzzy, results[1].Score)
	assert.Equal(t, "Bio", results[1].Source)
	assert.True(t, results[1].ChannelSourced())
}

func TestSearch_TiePrefersChannel(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestKnowledge(t)

	_, err := svc.AddManual(ctx, "Graph", "Manual definition", testTime)
	require.NoError(t, err)
	_, err = svc.Ingest(ctx, 77, "Maths", "Graph - Channel definition", testTime)
	require.NoError(t, err)

	results, err := svc.Search(ctx, "graph")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Maths", results[0].Source)
	assert.Equal(t, "Channel definition", results[0].Record.Definitions[0].Text)
}

func TestSearch_EmptyQuery(t *testing.T) {
	svc, _ := newTestKnowledge(t)
	_, err := svc.Search(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestKnowledge(t)

	_, err := svc.AddManual(ctx, "Stack", "LIFO", testTime)
	require.NoError(t, err)
	_, err = svc.Ingest(ctx, 3, "CS", "Stack - Call frames", testTime)
	require.NoError(t, err)
	_, err = svc.AddManual(ctx, "Queue", "FIFO", testTime)
	require.NoError(t, err)

	sources, err := svc.Delete(ctx, "STACK")
	require.NoError(t, err)
	assert.Equal(t, []string{ManualSourceLabel, "CS"}, sources)

	p, err := store.Load(ctx, domain.GlobalPartition)
	require.NoError(t, err)
	assert.NotContains(t, p, "stack")
	assert.Contains(t, p, "queue")

	_, err = svc.Delete(ctx, "stack")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Delete(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestListChannelsStats(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestKnowledge(t, WithNotes(true))

	_, err := svc.AddManual(ctx, "Stack", "LIFO", testTime)
	require.NoError(t, err)
	_, err = svc.AddManual(ctx, "Stack", "Call frames", testTime)
	require.NoError(t, err)
	_, err = svc.Ingest(ctx, 1, "Small", "Stack - Memory region", testTime)
	require.NoError(t, err)
	_, err = svc.Ingest(ctx, 2, "Big", "Heap - Priority tree\nTrie - Prefix tree", testTime)
	require.NoError(t, err)
	_, err = svc.Ingest(ctx, 2, "Big", "Weekly recap\nwe covered heaps tries and graphs this week", testTime)
	require.NoError(t, err)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.TermListing{
		{Term: "Heap", Sources: []string{"Big"}},
		{Term: "Stack", Sources: []string{ManualSourceLabel, "Small"}},
		{Term: "Trie", Sources: []string{"Big"}},
		{Term: "Weekly recap", Sources: []string{"Big"}},
	}, list)

	channels, err := svc.Channels(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.ChannelSummary{
		{ID: 2, Name: "Big", Terms: 3, Definitions: 3},
		{ID: 1, Name: "Small", Terms: 1, Definitions: 1},
	}, channels)

	st, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Stats{Channels: 2, Terms: 5, Definitions: 6, Notes: 1}, st)
}

// unreadableRepo falha a leitura de uma base específica.
type unreadableRepo struct {
	rag.KnowledgeRepository
	broken domain.PartitionID
}

func (r unreadableRepo) Load(ctx context.Context, id domain.PartitionID) (domain.Partition, error) {
	if id == r.broken {
		return nil, errors.New("permission denied")
	}
	return r.KnowledgeRepository.Load(ctx, id)
}

func TestReads_UnreadablePartitionIsEmpty(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestKnowledge(t)

	_, err := svc.AddManual(ctx, "Stack", "LIFO", testTime)
	require.NoError(t, err)
	_, err = svc.Ingest(ctx, 7, "Broken", "Heap - Priority tree", testTime)
	require.NoError(t, err)

	svc.repo = unreadableRepo{KnowledgeRepository: store, broken: domain.ChannelPartition(7)}

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.TermListing{{Term: "Stack", Sources: []string{ManualSourceLabel}}}, list)

	st, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Stats{Channels: 1, Terms: 1, Definitions: 1}, st)

	channels, err := svc.Channels(ctx)
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.Zero(t, channels[0].Terms)

	results, err := svc.Search(ctx, "stack")
	require.NoError(t, err)
	require.Len(t, results, 1)

	// gravar numa base ilegível aborta em vez de sobrescrevê-la
	_, err = svc.Ingest(ctx, 7, "Broken", "Trie - Prefix tree", testTime)
	assert.Error(t, err)
}

func TestAddManual_ConcurrentWritersDoNotLoseUpdates(t *testing.T) {
	ctx := context.Background()
	log := zaptest.NewLogger(t)
	store, err := rag.NewFileStore(t.TempDir(), log)
	require.NoError(t, err)
	svc := NewKnowledgeService(store, log)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.AddManual(ctx, fmt.Sprintf("term %d", i), "definition", testTime)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	p, err := store.Load(ctx, domain.GlobalPartition)
	require.NoError(t, err)
	assert.Len(t, p, 20)
}
