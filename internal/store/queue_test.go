package store_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/readingpal/readingpal/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueBookDeletionIdempotent(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, s.EnqueueBookDeletion(ctx, "Dune"))
	require.NoError(t, s.EnqueueBookDeletion(ctx, "Dune"))
	require.NoError(t, s.EnqueueBookDeletion(ctx, "Hyperion"))

	dels, err := s.PendingBookDeletions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Dune", "Hyperion"}, dels)
}

func TestEnqueueSessionDeletionIdempotent(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, s.EnqueueSessionDeletion(ctx, store.SessionDeletion{ID: "sess-1", BookTitle: "Dune"}))
	require.NoError(t, s.EnqueueSessionDeletion(ctx, store.SessionDeletion{ID: "sess-1", BookTitle: "Dune"}))

	dels, err := s.PendingSessionDeletions(ctx)
	require.NoError(t, err)
	require.Len(t, dels, 1)
	assert.Equal(t, "sess-1", dels[0].ID)
}

func TestAckRemovesSingleEntry(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, s.EnqueueBookDeletion(ctx, "Dune"))
	require.NoError(t, s.EnqueueBookDeletion(ctx, "Hyperion"))
	require.NoError(t, s.EnqueueSessionDeletion(ctx, store.SessionDeletion{ID: "sess-1", BookTitle: "Dune"}))
	require.NoError(t, s.EnqueueSessionDeletion(ctx, store.SessionDeletion{ID: "sess-2", BookTitle: "Dune"}))

	require.NoError(t, s.AckBookDeletion(ctx, "Dune"))
	require.NoError(t, s.AckSessionDeletion(ctx, "sess-1"))

	books, err := s.PendingBookDeletions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hyperion"}, books)

	sessions, err := s.PendingSessionDeletions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "sess-2", sessions[0].ID)
}

func TestAckMissingEntryIsNoop(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, s.AckBookDeletion(ctx, "never-queued"))
	require.NoError(t, s.AckSessionDeletion(ctx, "never-queued"))
}

func TestQueueSurvivesReopen(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "readingpal-store-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	dbPath := filepath.Join(tmpDir, "test.db")
	ctx := context.Background()

	s, err := store.New(dbPath, nil)
	require.NoError(t, err)
	require.NoError(t, s.EnqueueBookDeletion(ctx, "Dune"))
	require.NoError(t, s.EnqueueSessionDeletion(ctx, store.SessionDeletion{ID: "sess-1", BookTitle: "Dune"}))
	require.NoError(t, s.Close())

	s, err = store.New(dbPath, nil)
	require.NoError(t, err)
	defer s.Close()

	books, err := s.PendingBookDeletions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Dune"}, books)

	sessions, err := s.PendingSessionDeletions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "sess-1", sessions[0].ID)
}

func TestFinishedMarks(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	date := time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.SetFinished(ctx, "Dune", date))

	got, err := s.FinishedDate(ctx, "Dune")
	require.NoError(t, err)
	assert.True(t, got.Equal(date))

	marks, err := s.FinishedMarks(ctx)
	require.NoError(t, err)
	require.Len(t, marks, 1)
	assert.True(t, marks["Dune"].Equal(date))

	require.NoError(t, s.ClearFinished(ctx, "Dune"))
	_, err = s.FinishedDate(ctx, "Dune")
	assert.ErrorIs(t, err, store.ErrFinishedMarkMissing)

	// Clearing again stays a no-op.
	require.NoError(t, s.ClearFinished(ctx, "Dune"))
}
