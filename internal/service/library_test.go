package service_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/readingpal/readingpal/internal/domain"
	"github.com/readingpal/readingpal/internal/errors"
	"github.com/readingpal/readingpal/internal/service"
	"github.com/readingpal/readingpal/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLibrary(t *testing.T) (*service.LibraryService, *store.Store) {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "readingpal-service-test-*")
	require.NoError(t, err)

	s, err := store.New(filepath.Join(tmpDir, "test.db"), nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		s.Close()
		os.RemoveAll(tmpDir)
	})

	logger := slog.New(slog.DiscardHandler)
	return service.NewLibraryService(s, &sync.Mutex{}, logger), s
}

func TestAddBook(t *testing.T) {
	svc, _ := setupLibrary(t)
	ctx := context.Background()

	book, err := svc.AddBook(ctx, "Dune")
	require.NoError(t, err)
	assert.Equal(t, "Dune", book.Title)
	assert.Equal(t, 1, book.OrderIndex)
	assert.True(t, book.Dirty)
	assert.False(t, book.LastUpdated.IsZero())

	second, err := svc.AddBook(ctx, "Hyperion")
	require.NoError(t, err)
	assert.Equal(t, 2, second.OrderIndex)

	// Newest book sits at the top of the visible order.
	books, err := svc.ListBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, "Hyperion", books[0].Title)
}

func TestAddBookValidation(t *testing.T) {
	svc, _ := setupLibrary(t)
	ctx := context.Background()

	_, err := svc.AddBook(ctx, "   ")
	assert.ErrorIs(t, err, errors.ErrValidation)

	_, err = svc.AddBook(ctx, "Dune")
	require.NoError(t, err)
	_, err = svc.AddBook(ctx, "Dune")
	assert.ErrorIs(t, err, errors.ErrAlreadyExists)
}

func TestRemoveBook(t *testing.T) {
	svc, s := setupLibrary(t)
	ctx := context.Background()

	_, err := svc.AddBook(ctx, "Dune")
	require.NoError(t, err)
	_, err = svc.AddSession(ctx, service.SessionInput{
		BookTitle: "Dune", StartPage: "10", EndPage: "40", Duration: "30:00",
	})
	require.NoError(t, err)

	require.NoError(t, svc.RemoveBook(ctx, "Dune"))

	books, err := svc.ListBooks(ctx)
	require.NoError(t, err)
	assert.Empty(t, books)

	queued, err := s.PendingBookDeletions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Dune"}, queued)

	err = svc.RemoveBook(ctx, "Dune")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestReorderBooks(t *testing.T) {
	svc, _ := setupLibrary(t)
	ctx := context.Background()

	for _, title := range []string{"A", "B", "C"} {
		_, err := svc.AddBook(ctx, title)
		require.NoError(t, err)
	}

	require.NoError(t, svc.ReorderBooks(ctx, []string{"A", "C", "B"}))

	books, err := svc.ListBooks(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A", books[0].Title)
	assert.Equal(t, "C", books[1].Title)

	// Reordering must not dirty anything.
	for _, b := range books {
		assert.True(t, b.Dirty) // still dirty from AddBook, not re-touched
	}

	assert.ErrorIs(t, svc.ReorderBooks(ctx, []string{"A", "B"}), errors.ErrValidation)
	assert.ErrorIs(t, svc.ReorderBooks(ctx, []string{"A", "B", "X"}), errors.ErrValidation)
	assert.ErrorIs(t, svc.ReorderBooks(ctx, []string{"A", "B", "B"}), errors.ErrValidation)
}

func TestAddSession(t *testing.T) {
	svc, _ := setupLibrary(t)
	ctx := context.Background()

	_, err := svc.AddBook(ctx, "Dune")
	require.NoError(t, err)

	sess, err := svc.AddSession(ctx, service.SessionInput{
		BookTitle: "Dune",
		StartPage: "50",
		EndPage:   "80",
		Duration:  "45:30",
		Summary:   "Arrakis",
	})
	require.NoError(t, err)
	assert.Equal(t, "Session 1", sess.Name)
	assert.Equal(t, 30, sess.PagesRead)
	assert.True(t, sess.Dirty)
	assert.NotEmpty(t, sess.ID)

	// The owning book is re-touched so it rides along on the next push.
	book, err := svc.ListBooks(ctx)
	require.NoError(t, err)
	assert.True(t, book[0].Dirty)
}

func TestAddSessionCreatesBook(t *testing.T) {
	svc, _ := setupLibrary(t)
	ctx := context.Background()

	_, err := svc.AddSession(ctx, service.SessionInput{
		BookTitle: "Hyperion", StartPage: "1", EndPage: "20", Duration: "10:00",
	})
	require.NoError(t, err)

	books, err := svc.ListBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, "Hyperion", books[0].Title)
}

func TestAddSessionUniqueNaming(t *testing.T) {
	svc, _ := setupLibrary(t)
	ctx := context.Background()

	_, err := svc.AddSession(ctx, service.SessionInput{
		BookTitle: "Dune", Name: "Session 2", StartPage: "1", EndPage: "2", Duration: "01:00",
	})
	require.NoError(t, err)

	sess, err := svc.AddSession(ctx, service.SessionInput{
		BookTitle: "Dune", StartPage: "2", EndPage: "3", Duration: "01:00",
	})
	require.NoError(t, err)
	// "Session 2" is taken, the counter skips past it.
	assert.Equal(t, "Session 3", sess.Name)

	_, err = svc.AddSession(ctx, service.SessionInput{
		BookTitle: "Dune", Name: "Session 2", StartPage: "3", EndPage: "4", Duration: "01:00",
	})
	assert.ErrorIs(t, err, errors.ErrAlreadyExists)
}

func TestAddSessionValidation(t *testing.T) {
	svc, _ := setupLibrary(t)
	ctx := context.Background()

	_, err := svc.AddSession(ctx, service.SessionInput{
		BookTitle: "", StartPage: "1", EndPage: "2", Duration: "01:00",
	})
	assert.ErrorIs(t, err, errors.ErrValidation)

	_, err = svc.AddSession(ctx, service.SessionInput{
		BookTitle: "Dune", StartPage: "one", EndPage: "2", Duration: "01:00",
	})
	assert.ErrorIs(t, err, errors.ErrValidation)

	_, err = svc.AddSession(ctx, service.SessionInput{
		BookTitle: "Dune", StartPage: "1", EndPage: "2", Duration: "90 seconds",
	})
	assert.ErrorIs(t, err, errors.ErrValidation)

	// Nothing was created by the rejected inputs.
	books, err := svc.ListBooks(ctx)
	require.NoError(t, err)
	assert.Empty(t, books)
}

func TestAddSessionBackwardsPagesClampToZero(t *testing.T) {
	svc, _ := setupLibrary(t)

	sess, err := svc.AddSession(context.Background(), service.SessionInput{
		BookTitle: "Dune", StartPage: "80", EndPage: "50", Duration: "10:00",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, sess.PagesRead)
}

func TestUpdateSessionSummary(t *testing.T) {
	svc, s := setupLibrary(t)
	ctx := context.Background()

	sess, err := svc.AddSession(ctx, service.SessionInput{
		BookTitle: "Dune", StartPage: "1", EndPage: "2", Duration: "01:00",
	})
	require.NoError(t, err)
	before := sess.LastUpdated

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, svc.UpdateSessionSummary(ctx, sess.ID, "revised"))

	updated, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "revised", updated.Summary)
	assert.True(t, updated.LastUpdated.After(before))
	assert.True(t, updated.Dirty)

	err = svc.UpdateSessionSummary(ctx, "sess-missing", "x")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestRemoveSession(t *testing.T) {
	svc, s := setupLibrary(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	older, err := svc.AddSession(ctx, service.SessionInput{
		BookTitle: "Dune", Date: base, StartPage: "1", EndPage: "2", Duration: "01:00",
	})
	require.NoError(t, err)
	newer, err := svc.AddSession(ctx, service.SessionInput{
		BookTitle: "Dune", Date: base.Add(24 * time.Hour), StartPage: "2", EndPage: "3", Duration: "01:00",
	})
	require.NoError(t, err)

	// Index 0 is the newest session.
	require.NoError(t, svc.RemoveSession(ctx, "Dune", 0))

	remaining, err := svc.Sessions(ctx, "Dune")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, older.ID, remaining[0].ID)

	queued, err := s.PendingSessionDeletions(ctx)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, newer.ID, queued[0].ID)

	// Out-of-range indexes are silent no-ops.
	require.NoError(t, svc.RemoveSession(ctx, "Dune", 5))
	require.NoError(t, svc.RemoveSession(ctx, "Dune", -1))
	require.NoError(t, svc.RemoveSession(ctx, "Empty", 0))
}

func TestFinishedMarks(t *testing.T) {
	svc, _ := setupLibrary(t)
	ctx := context.Background()

	_, err := svc.AddBook(ctx, "Dune")
	require.NoError(t, err)

	finished, err := svc.IsFinished(ctx, "Dune")
	require.NoError(t, err)
	assert.False(t, finished)

	date := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, svc.MarkFinished(ctx, "Dune", date))

	finished, err = svc.IsFinished(ctx, "Dune")
	require.NoError(t, err)
	assert.True(t, finished)

	got, err := svc.FinishedDate(ctx, "Dune")
	require.NoError(t, err)
	assert.True(t, got.Equal(date))

	require.NoError(t, svc.Reopen(ctx, "Dune"))
	finished, err = svc.IsFinished(ctx, "Dune")
	require.NoError(t, err)
	assert.False(t, finished)

	assert.ErrorIs(t, svc.MarkFinished(ctx, "missing", date), errors.ErrNotFound)
	_, err = svc.FinishedDate(ctx, "Dune")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestClearLibrary(t *testing.T) {
	svc, s := setupLibrary(t)
	ctx := context.Background()

	_, err := svc.AddBook(ctx, "Dune")
	require.NoError(t, err)
	require.NoError(t, svc.RemoveBook(ctx, "Dune"))

	require.NoError(t, svc.ClearLibrary(ctx))

	books, err := svc.ListBooks(ctx)
	require.NoError(t, err)
	assert.Empty(t, books)

	// Pending deletions from the previous account must not survive.
	queued, err := s.PendingBookDeletions(ctx)
	require.NoError(t, err)
	assert.Empty(t, queued)
}

func TestRemoveSessionIgnoresRecordWithoutID(t *testing.T) {
	svc, s := setupLibrary(t)
	ctx := context.Background()

	require.NoError(t, s.CreateBook(ctx, &domain.Book{Title: "Dune"}))
	require.NoError(t, s.PutSession(ctx, &domain.Session{
		BookTitle: "Dune",
		Date:      time.Now(),
	}))

	require.NoError(t, svc.RemoveSession(ctx, "Dune", 0))

	// The malformed record stays put and nothing is queued.
	sessions, err := s.SessionsForBook(ctx, "Dune")
	require.NoError(t, err)
	assert.Len(t, sessions, 1)

	queued, err := s.PendingSessionDeletions(ctx)
	require.NoError(t, err)
	assert.Empty(t, queued)
}
