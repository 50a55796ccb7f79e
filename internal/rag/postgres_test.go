package rag

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"studybot/internal/database"
	"studybot/internal/domain"
)

// Precisa de um PostgreSQL de verdade; defina STUDYBOT_TEST_DATABASE_URL para rodar.
func TestPostgresKnowledgeRepository(t *testing.T) {
	url := os.Getenv("STUDYBOT_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("STUDYBOT_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	log := zaptest.NewLogger(t)
	db, err := database.Open(ctx, url, log)
	require.NoError(t, err)

	repo := NewPostgresKnowledgeRepository(db, log)
	t.Cleanup(func() { _ = repo.Close() })

	id := domain.ChannelPartition(-999000111)
	t.Cleanup(func() { _ = repo.Delete(context.Background(), id) })

	empty, err := repo.Load(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, empty)

	want := samplePartition()
	require.NoError(t, repo.Save(ctx, id, want))
	require.NoError(t, repo.Save(ctx, id, want))

	got, err := repo.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	ids, err := repo.Partitions(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, id)

	require.NoError(t, repo.Delete(ctx, id))
	got, err = repo.Load(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, got)
}
