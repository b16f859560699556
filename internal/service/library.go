// Package service provides the business logic layer for the reading log:
// validated library mutations, finished marks, and read-side statistics.
package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/readingpal/readingpal/internal/domain"
	"github.com/readingpal/readingpal/internal/errors"
	"github.com/readingpal/readingpal/internal/id"
	"github.com/readingpal/readingpal/internal/store"
)

// LibraryService orchestrates user-facing library mutations. All
// mutations take the writer gate shared with the sync engine, so a
// mutation never interleaves with a pass applying remote state.
type LibraryService struct {
	store  *store.Store
	gate   *sync.Mutex
	logger *slog.Logger
}

// NewLibraryService creates a new library service. gate is the shared
// single-writer mutex.
func NewLibraryService(store *store.Store, gate *sync.Mutex, logger *slog.Logger) *LibraryService {
	return &LibraryService{
		store:  store,
		gate:   gate,
		logger: logger,
	}
}

// AddBook creates a new book at the top of the visible order.
func (s *LibraryService) AddBook(ctx context.Context, title string) (*domain.Book, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, errors.Validation("book title cannot be empty")
	}

	s.gate.Lock()
	defer s.gate.Unlock()

	maxIdx, err := s.store.MaxOrderIndex(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodePersistence, "read book order")
	}

	book := &domain.Book{
		Title:      title,
		OrderIndex: maxIdx + 1,
	}
	book.Touch()

	if err := s.store.CreateBook(ctx, book); err != nil {
		if errors.Is(err, store.ErrBookExists) {
			return nil, errors.AlreadyExists("a book with this title already exists")
		}
		return nil, errors.Wrap(err, errors.CodePersistence, "create book")
	}

	s.logger.Info("book added", "title", title, "order_index", book.OrderIndex)
	return book, nil
}

// RemoveBook deletes a book with all its sessions and queues the remote
// deletions.
func (s *LibraryService) RemoveBook(ctx context.Context, title string) error {
	s.gate.Lock()
	defer s.gate.Unlock()

	sessionIDs, err := s.store.DeleteBookCascade(ctx, title)
	if err != nil {
		if errors.Is(err, store.ErrBookNotFound) {
			return errors.NotFoundf("book %q not found", title)
		}
		return errors.Wrap(err, errors.CodePersistence, "delete book")
	}

	s.logger.Info("book removed", "title", title, "sessions", len(sessionIDs))
	return nil
}

// ListBooks returns all books in visible order.
func (s *LibraryService) ListBooks(ctx context.Context) ([]*domain.Book, error) {
	return s.store.ListBooks(ctx)
}

// Sessions returns a book's sessions, newest first.
func (s *LibraryService) Sessions(ctx context.Context, title string) ([]*domain.Session, error) {
	return s.store.SessionsForBook(ctx, title)
}

// ReorderBooks persists a new visible order. The new order must be a
// permutation of the current titles. Reordering alone does not dirty
// any book; the order rides along on the next user-document push.
func (s *LibraryService) ReorderBooks(ctx context.Context, titles []string) error {
	s.gate.Lock()
	defer s.gate.Unlock()

	books, err := s.store.ListBooks(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CodePersistence, "list books")
	}
	if len(titles) != len(books) {
		return errors.Validationf("order has %d titles, library has %d books", len(titles), len(books))
	}

	current := make(map[string]bool, len(books))
	for _, b := range books {
		current[b.Title] = true
	}
	seen := make(map[string]bool, len(titles))
	for _, title := range titles {
		if !current[title] {
			return errors.Validationf("unknown book %q in new order", title)
		}
		if seen[title] {
			return errors.Validationf("duplicate book %q in new order", title)
		}
		seen[title] = true
	}

	if err := s.store.SetBookOrder(ctx, titles); err != nil {
		return errors.Wrap(err, errors.CodePersistence, "set book order")
	}
	return nil
}

// SessionInput carries the fields of a new reading session. Name may be
// empty, in which case a unique "Session N" name is assigned. A zero
// Date means now.
type SessionInput struct {
	BookTitle string
	Name      string
	Date      time.Time
	StartPage string
	EndPage   string
	Duration  string // MM:SS
	Summary   string
}

// AddSession validates and records a reading session. The owning book
// is created on the fly if the title is new.
func (s *LibraryService) AddSession(ctx context.Context, in SessionInput) (*domain.Session, error) {
	in.BookTitle = strings.TrimSpace(in.BookTitle)
	if in.BookTitle == "" {
		return nil, errors.Validation("book title cannot be empty")
	}
	if _, err := domain.ParseSessionDuration(in.Duration); err != nil {
		return nil, errors.Validationf("invalid duration: %v", err)
	}
	pagesRead, err := domain.PagesRead(in.StartPage, in.EndPage)
	if err != nil {
		return nil, errors.Validationf("invalid page input: %v", err)
	}

	s.gate.Lock()
	defer s.gate.Unlock()

	if _, err := s.store.GetBook(ctx, in.BookTitle); errors.Is(err, store.ErrBookNotFound) {
		maxIdx, err := s.store.MaxOrderIndex(ctx)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodePersistence, "read book order")
		}
		book := &domain.Book{Title: in.BookTitle, OrderIndex: maxIdx + 1}
		book.Touch()
		if err := s.store.CreateBook(ctx, book); err != nil {
			return nil, errors.Wrap(err, errors.CodePersistence, "create book")
		}
	} else if err != nil {
		return nil, errors.Wrap(err, errors.CodePersistence, "get book")
	}

	existing, err := s.store.SessionsForBook(ctx, in.BookTitle)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodePersistence, "list sessions")
	}
	names := make([]string, 0, len(existing))
	for _, sess := range existing {
		names = append(names, sess.Name)
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = domain.NextSessionName(names)
	} else {
		for _, taken := range names {
			if taken == name {
				return nil, errors.AlreadyExists("a session with this name already exists")
			}
		}
	}

	sessionID, err := id.Generate("sess")
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "generate session id")
	}

	date := in.Date
	if date.IsZero() {
		date = time.Now()
	}

	sess := &domain.Session{
		ID:        sessionID,
		BookTitle: in.BookTitle,
		Name:      name,
		Date:      date,
		StartPage: in.StartPage,
		EndPage:   in.EndPage,
		PagesRead: pagesRead,
		Duration:  in.Duration,
		Summary:   in.Summary,
	}
	sess.Touch()

	if err := s.store.PutSession(ctx, sess); err != nil {
		return nil, errors.Wrap(err, errors.CodePersistence, "put session")
	}
	// The book rides along on the next push so its timestamp reflects
	// the new session.
	if err := s.store.TouchBook(ctx, in.BookTitle, sess.LastUpdated); err != nil {
		return nil, errors.Wrap(err, errors.CodePersistence, "touch book")
	}

	s.logger.Info("session added",
		"book", in.BookTitle,
		"session_id", sess.ID,
		"name", name,
		"pages_read", pagesRead)
	return sess, nil
}

// UpdateSessionSummary replaces a session's summary. Summary is the only
// session field mutable after creation.
func (s *LibraryService) UpdateSessionSummary(ctx context.Context, sessionID, summary string) error {
	s.gate.Lock()
	defer s.gate.Unlock()

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return errors.NotFoundf("session %q not found", sessionID)
		}
		return errors.Wrap(err, errors.CodePersistence, "get session")
	}

	sess.Summary = summary
	sess.Touch()

	if err := s.store.PutSession(ctx, sess); err != nil {
		return errors.Wrap(err, errors.CodePersistence, "put session")
	}
	return s.store.TouchBook(ctx, sess.BookTitle, sess.LastUpdated)
}

// RemoveSession deletes the session at the given position in a book's
// visible session list (newest first) and queues its remote deletion.
// An out-of-range index is a silent no-op.
func (s *LibraryService) RemoveSession(ctx context.Context, bookTitle string, index int) error {
	s.gate.Lock()
	defer s.gate.Unlock()

	sessions, err := s.store.SessionsForBook(ctx, bookTitle)
	if err != nil {
		return errors.Wrap(err, errors.CodePersistence, "list sessions")
	}
	if index < 0 || index >= len(sessions) {
		return nil
	}

	sess := sessions[index]
	// A record without an id has nothing to queue for remote deletion.
	if sess.ID == "" {
		return nil
	}
	if err := s.store.DeleteSessionWithQueue(ctx, sess); err != nil {
		return errors.Wrap(err, errors.CodePersistence, "delete session")
	}

	s.logger.Info("session removed", "book", bookTitle, "session_id", sess.ID)
	return nil
}

// MarkFinished records that a book was finished on the given date. A
// zero date means today. The book must exist.
func (s *LibraryService) MarkFinished(ctx context.Context, title string, date time.Time) error {
	s.gate.Lock()
	defer s.gate.Unlock()

	if _, err := s.store.GetBook(ctx, title); err != nil {
		if errors.Is(err, store.ErrBookNotFound) {
			return errors.NotFoundf("book %q not found", title)
		}
		return errors.Wrap(err, errors.CodePersistence, "get book")
	}

	if date.IsZero() {
		date = time.Now()
	}
	if err := s.store.SetFinished(ctx, title, date); err != nil {
		return errors.Wrap(err, errors.CodePersistence, "set finished mark")
	}
	return nil
}

// Reopen clears a book's finished mark. Idempotent.
func (s *LibraryService) Reopen(ctx context.Context, title string) error {
	s.gate.Lock()
	defer s.gate.Unlock()

	if err := s.store.ClearFinished(ctx, title); err != nil {
		return errors.Wrap(err, errors.CodePersistence, "clear finished mark")
	}
	return nil
}

// IsFinished reports whether a book carries a finished mark. Finished
// state is independent data, never derived from sessions.
func (s *LibraryService) IsFinished(ctx context.Context, title string) (bool, error) {
	_, err := s.store.FinishedDate(ctx, title)
	if errors.Is(err, store.ErrFinishedMarkMissing) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, errors.CodePersistence, "get finished mark")
	}
	return true, nil
}

// FinishedDate returns when a book was finished.
func (s *LibraryService) FinishedDate(ctx context.Context, title string) (time.Time, error) {
	date, err := s.store.FinishedDate(ctx, title)
	if errors.Is(err, store.ErrFinishedMarkMissing) {
		return time.Time{}, errors.NotFoundf("book %q is not finished", title)
	}
	if err != nil {
		return time.Time{}, errors.Wrap(err, errors.CodePersistence, "get finished mark")
	}
	return date, nil
}

// ClearLibrary wipes the whole local store, pending deletions included.
// Used on sign-out and account switch; the next account must not replay
// the previous account's queue.
func (s *LibraryService) ClearLibrary(ctx context.Context) error {
	s.gate.Lock()
	defer s.gate.Unlock()

	if err := s.store.ClearAll(); err != nil {
		return errors.Wrap(err, errors.CodePersistence, "clear library")
	}
	s.logger.Info("library cleared")
	return nil
}
