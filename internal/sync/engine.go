// Package sync implements the reconciliation pass between the local
// store and the remote document store, plus its periodic scheduler.
package sync

import (
	"context"
	"errors"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/readingpal/readingpal/internal/domain"
	"github.com/readingpal/readingpal/internal/id"
	"github.com/readingpal/readingpal/internal/netmon"
	"github.com/readingpal/readingpal/internal/remote"
	"github.com/readingpal/readingpal/internal/store"
)

// Sentinel results of a sync trigger. Both mean the trigger was a clean
// no-op: nothing local was touched.
var (
	ErrOffline        = errors.New("sync: not connected")
	ErrSyncInProgress = errors.New("sync: pass already running")
)

// PassReport summarizes one completed sync pass.
type PassReport struct {
	ID             string    `json:"id"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	BooksPushed    int       `json:"books_pushed"`
	BooksPulled    int       `json:"books_pulled"`
	SessionsPushed int       `json:"sessions_pushed"`
	SessionsPulled int       `json:"sessions_pulled"`
	DeletionsAcked int       `json:"deletions_acked"`
	Failures       int       `json:"failures"`
}

// Config carries the engine's identity and tuning.
type Config struct {
	UserID      string
	FullName    string
	Email       string
	CallTimeout time.Duration // per remote call; default 15s
}

// Engine reconciles local and remote state. At most one pass runs at a
// time; a trigger while a pass is in flight returns ErrSyncInProgress.
// Local writes during a pass take the writer gate shared with the
// library service, so a pass never interleaves with a user mutation on
// the same record.
type Engine struct {
	cfg    Config
	store  *store.Store
	remote remote.Store
	net    netmon.Connectivity
	gate   *stdsync.Mutex
	logger *slog.Logger

	passMu stdsync.Mutex

	mu         stdsync.Mutex
	lastReport *PassReport
}

// NewEngine creates a sync engine. gate is the single-writer mutex
// shared with the library service.
func NewEngine(cfg Config, st *store.Store, rs remote.Store, conn netmon.Connectivity, gate *stdsync.Mutex, logger *slog.Logger) *Engine {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 15 * time.Second
	}
	return &Engine{
		cfg:    cfg,
		store:  st,
		remote: rs,
		net:    conn,
		gate:   gate,
		logger: logger,
	}
}

// LastReport returns the report of the most recent completed pass, or
// nil if none has run.
func (e *Engine) LastReport() *PassReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastReport
}

// remoteCtx bounds one remote call. A timed-out call counts as a
// per-record failure, never a hung pass.
func (e *Engine) remoteCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.cfg.CallTimeout)
}

// Sync runs one full pass: reconcile every book and its sessions, push
// the library order, then replay the deletion queue. Individual remote
// failures are logged and skipped; the affected record stays dirty or
// queued for the next pass.
func (e *Engine) Sync(ctx context.Context) (*PassReport, error) {
	if !e.passMu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer e.passMu.Unlock()

	if !e.net.Connected() {
		return nil, ErrOffline
	}

	report := &PassReport{
		ID:        id.MustGenerate("pass"),
		StartedAt: time.Now(),
	}
	log := e.logger.With("pass_id", report.ID)
	log.Info("sync pass started", "user_id", e.cfg.UserID)

	books, sessionsByBook, queuedBooks, queuedSessions, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	remoteLib := e.fetchRemoteLibrary(ctx, log)

	queuedBookSet := make(map[string]bool, len(queuedBooks))
	for _, title := range queuedBooks {
		queuedBookSet[title] = true
	}
	queuedSessionSet := make(map[string]bool, len(queuedSessions))
	for _, del := range queuedSessions {
		queuedSessionSet[del.ID] = true
	}

	// Union of local and remote book sets, minus books whose deletion
	// is still pending. Reconciling those would resurrect them right
	// before the replay deletes them again.
	titles := make([]string, 0, len(books))
	seen := make(map[string]bool, len(books))
	for _, b := range books {
		titles = append(titles, b.Title)
		seen[b.Title] = true
	}
	for _, title := range remoteLib {
		if !seen[title] {
			titles = append(titles, title)
			seen[title] = true
		}
	}

	localBooks := make(map[string]*domain.Book, len(books))
	for _, b := range books {
		localBooks[b.Title] = b
	}

	for _, title := range titles {
		if queuedBookSet[title] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e.reconcileBook(ctx, log, report, title, localBooks[title])
		e.reconcileSessions(ctx, log, report, title, sessionsByBook[title], queuedSessionSet)
	}

	e.pushLibraryOrder(ctx, log, report)
	e.replayDeletions(ctx, log, report, queuedBooks, queuedSessions)

	report.FinishedAt = time.Now()
	e.mu.Lock()
	e.lastReport = report
	e.mu.Unlock()

	log.Info("sync pass finished",
		"books_pushed", report.BooksPushed,
		"books_pulled", report.BooksPulled,
		"sessions_pushed", report.SessionsPushed,
		"sessions_pulled", report.SessionsPulled,
		"deletions_acked", report.DeletionsAcked,
		"failures", report.Failures,
		"elapsed", report.FinishedAt.Sub(report.StartedAt))
	return report, nil
}

// snapshot reads a consistent local baseline under the writer gate.
// Order entries without a book record are materialized first as dirty
// zero-timestamp books; they appear when a previous run tore between
// the order write and the record write.
func (e *Engine) snapshot(ctx context.Context) ([]*domain.Book, map[string][]*domain.Session, []string, []store.SessionDeletion, error) {
	e.gate.Lock()
	defer e.gate.Unlock()

	order, err := e.store.BookOrder(ctx)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	for _, title := range order {
		_, err := e.store.GetBook(ctx, title)
		if errors.Is(err, store.ErrBookNotFound) {
			recovered := &domain.Book{Title: title, Dirty: true}
			if err := e.store.PutBook(ctx, recovered); err != nil {
				return nil, nil, nil, nil, err
			}
			e.logger.Warn("materialized book record from order list", "title", title)
		} else if err != nil {
			return nil, nil, nil, nil, err
		}
	}

	books, err := e.store.ListBooks(ctx)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	sessionsByBook := make(map[string][]*domain.Session, len(books))
	for _, b := range books {
		sessions, err := e.store.SessionsForBook(ctx, b.Title)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		sessionsByBook[b.Title] = sessions
	}

	queuedBooks, err := e.store.PendingBookDeletions(ctx)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	queuedSessions, err := e.store.PendingSessionDeletions(ctx)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return books, sessionsByBook, queuedBooks, queuedSessions, nil
}

// fetchRemoteLibrary reads the remote book-title list. Degrades to
// empty on failure; reconciliation then covers local titles only and
// the remote-only ones wait for the next pass.
func (e *Engine) fetchRemoteLibrary(ctx context.Context, log *slog.Logger) []string {
	callCtx, cancel := e.remoteCtx(ctx)
	defer cancel()

	doc, err := e.remote.GetUserDocument(callCtx, e.cfg.UserID)
	if errors.Is(err, remote.ErrNotFound) {
		return nil
	}
	if err != nil {
		log.Warn("fetch user document failed", "error", err)
		return nil
	}
	return doc.Library
}

func bookFields(b *domain.Book) map[string]any {
	return map[string]any{
		"title":       b.Title,
		"lastUpdated": b.LastUpdated,
		"orderIndex":  b.OrderIndex,
	}
}

func sessionFields(s *domain.Session) map[string]any {
	return map[string]any{
		"id":          s.ID,
		"name":        s.Name,
		"date":        s.Date,
		"lastUpdated": s.LastUpdated,
		"pagesRead":   s.PagesRead,
		"summary":     s.Summary,
		"startPage":   s.StartPage,
		"endPage":     s.EndPage,
		"duration":    s.Duration,
	}
}

// reconcileBook settles one title between local and remote. Remote wins
// only when strictly newer; a remote document without a timestamp
// always loses.
func (e *Engine) reconcileBook(ctx context.Context, log *slog.Logger, report *PassReport, title string, local *domain.Book) {
	callCtx, cancel := e.remoteCtx(ctx)
	remoteDoc, err := e.remote.GetBookDocument(callCtx, e.cfg.UserID, title)
	cancel()

	if err != nil && !errors.Is(err, remote.ErrNotFound) {
		log.Warn("fetch book document failed", "title", title, "error", err)
		report.Failures++
		return
	}

	switch {
	case local == nil:
		// Remote-only: pull. The record lands clean; it is synced by
		// definition.
		pulled := &domain.Book{Title: title}
		if remoteDoc != nil {
			pulled.OrderIndex = remoteDoc.OrderIndex
			if remoteDoc.LastUpdated != nil {
				pulled.LastUpdated = *remoteDoc.LastUpdated
			}
		}
		e.gate.Lock()
		err := e.store.PutBook(ctx, pulled)
		e.gate.Unlock()
		if err != nil {
			log.Warn("pull book failed", "title", title, "error", err)
			report.Failures++
			return
		}
		report.BooksPulled++

	case remoteDoc == nil || remoteDoc.LastUpdated == nil || remoteDoc.LastUpdated.Before(local.LastUpdated):
		// Merge over an existing document so unrelated remote fields
		// survive; an absent document needs a replace write to exist.
		callCtx, cancel := e.remoteCtx(ctx)
		err := e.remote.SetBookDocument(callCtx, e.cfg.UserID, title, bookFields(local), remoteDoc != nil)
		cancel()
		if err != nil {
			log.Warn("push book failed", "title", title, "error", err)
			report.Failures++
			return
		}
		e.clearBookDirty(ctx, log, local)
		report.BooksPushed++

	case remoteDoc.LastUpdated.After(local.LastUpdated):
		pulled := &domain.Book{
			Title:       title,
			OrderIndex:  remoteDoc.OrderIndex,
			LastUpdated: *remoteDoc.LastUpdated,
		}
		e.gate.Lock()
		err := e.store.PutBook(ctx, pulled)
		e.gate.Unlock()
		if err != nil {
			log.Warn("pull book failed", "title", title, "error", err)
			report.Failures++
			return
		}
		report.BooksPulled++

	default:
		// Timestamps equal: local stays authoritative, nothing moves.
	}
}

// clearBookDirty marks a pushed book clean, unless it mutated after the
// snapshot; then it stays dirty for the next pass.
func (e *Engine) clearBookDirty(ctx context.Context, log *slog.Logger, snapshot *domain.Book) {
	e.gate.Lock()
	defer e.gate.Unlock()

	current, err := e.store.GetBook(ctx, snapshot.Title)
	if err != nil {
		log.Warn("clear book dirty flag failed", "title", snapshot.Title, "error", err)
		return
	}
	if !current.LastUpdated.Equal(snapshot.LastUpdated) {
		return
	}
	current.Dirty = false
	if err := e.store.PutBook(ctx, current); err != nil {
		log.Warn("clear book dirty flag failed", "title", snapshot.Title, "error", err)
	}
}

// reconcileSessions settles the session set of one book. Queued ids are
// excluded from the union so a stale remote copy of a deleted session
// is not resurrected before the replay removes it.
func (e *Engine) reconcileSessions(ctx context.Context, log *slog.Logger, report *PassReport, title string, local []*domain.Session, queued map[string]bool) {
	callCtx, cancel := e.remoteCtx(ctx)
	remoteDocs, err := e.remote.ListSessionDocuments(callCtx, e.cfg.UserID, title)
	cancel()
	if err != nil {
		log.Warn("list session documents failed", "title", title, "error", err)
		report.Failures++
		return
	}

	remoteByID := make(map[string]*remote.SessionDocument, len(remoteDocs))
	for _, doc := range remoteDocs {
		// A session without an id cannot be stored or deleted later.
		if doc.ID == "" {
			log.Warn("skipping remote session without id", "title", title)
			continue
		}
		remoteByID[doc.ID] = doc
	}
	localByID := make(map[string]*domain.Session, len(local))
	ids := make([]string, 0, len(local)+len(remoteDocs))
	for _, sess := range local {
		localByID[sess.ID] = sess
		ids = append(ids, sess.ID)
	}
	for _, doc := range remoteDocs {
		if _, ok := remoteByID[doc.ID]; !ok {
			continue
		}
		if _, ok := localByID[doc.ID]; !ok {
			ids = append(ids, doc.ID)
		}
	}

	for _, sid := range ids {
		if queued[sid] {
			continue
		}
		loc, rem := localByID[sid], remoteByID[sid]

		switch {
		case loc == nil:
			pulled := &domain.Session{
				ID:          rem.ID,
				BookTitle:   title,
				Name:        rem.Name,
				Date:        rem.Date,
				StartPage:   rem.StartPage,
				EndPage:     rem.EndPage,
				PagesRead:   rem.PagesRead,
				Duration:    rem.Duration,
				Summary:     rem.Summary,
				LastUpdated: rem.LastUpdated,
			}
			e.gate.Lock()
			err := e.store.PutSession(ctx, pulled)
			e.gate.Unlock()
			if err != nil {
				log.Warn("pull session failed", "session_id", sid, "error", err)
				report.Failures++
				continue
			}
			report.SessionsPulled++

		case rem == nil || loc.LastUpdated.After(rem.LastUpdated):
			callCtx, cancel := e.remoteCtx(ctx)
			err := e.remote.SetSessionDocument(callCtx, e.cfg.UserID, title, sid, sessionFields(loc), rem != nil)
			cancel()
			if err != nil {
				log.Warn("push session failed", "session_id", sid, "error", err)
				report.Failures++
				continue
			}
			e.clearSessionDirty(ctx, log, loc)
			report.SessionsPushed++

		case rem.LastUpdated.After(loc.LastUpdated):
			pulled := &domain.Session{
				ID:          rem.ID,
				BookTitle:   title,
				Name:        rem.Name,
				Date:        rem.Date,
				StartPage:   rem.StartPage,
				EndPage:     rem.EndPage,
				PagesRead:   rem.PagesRead,
				Duration:    rem.Duration,
				Summary:     rem.Summary,
				LastUpdated: rem.LastUpdated,
			}
			e.gate.Lock()
			err := e.store.PutSession(ctx, pulled)
			e.gate.Unlock()
			if err != nil {
				log.Warn("pull session failed", "session_id", sid, "error", err)
				report.Failures++
				continue
			}
			report.SessionsPulled++

		default:
			// Timestamps equal: local stays authoritative.
		}
	}
}

// clearSessionDirty marks a pushed session clean, unless it mutated
// after the snapshot.
func (e *Engine) clearSessionDirty(ctx context.Context, log *slog.Logger, snapshot *domain.Session) {
	e.gate.Lock()
	defer e.gate.Unlock()

	current, err := e.store.GetSession(ctx, snapshot.ID)
	if err != nil {
		log.Warn("clear session dirty flag failed", "session_id", snapshot.ID, "error", err)
		return
	}
	if !current.LastUpdated.Equal(snapshot.LastUpdated) {
		return
	}
	current.Dirty = false
	if err := e.store.PutSession(ctx, current); err != nil {
		log.Warn("clear session dirty flag failed", "session_id", snapshot.ID, "error", err)
	}
}

// pushLibraryOrder merges the current visible order and the signed-in
// identity into the remote user document. Order is re-read after
// reconciliation so pulled books are included.
func (e *Engine) pushLibraryOrder(ctx context.Context, log *slog.Logger, report *PassReport) {
	e.gate.Lock()
	order, err := e.store.BookOrder(ctx)
	e.gate.Unlock()
	if err != nil {
		log.Warn("read book order failed", "error", err)
		report.Failures++
		return
	}
	if order == nil {
		order = []string{}
	}

	fields := map[string]any{"library": order}
	if e.cfg.FullName != "" {
		fields["fullName"] = e.cfg.FullName
	}
	if e.cfg.Email != "" {
		fields["email"] = e.cfg.Email
	}

	callCtx, cancel := e.remoteCtx(ctx)
	defer cancel()
	if err := e.remote.SetUserDocument(callCtx, e.cfg.UserID, fields, true); err != nil {
		log.Warn("push library order failed", "error", err)
		report.Failures++
	}
}

// replayDeletions issues the queued remote deletes. Each entry is acked
// only on confirmed success; a failed delete stays queued for the next
// pass without blocking the others.
func (e *Engine) replayDeletions(ctx context.Context, log *slog.Logger, report *PassReport, queuedBooks []string, queuedSessions []store.SessionDeletion) {
	for _, title := range queuedBooks {
		callCtx, cancel := e.remoteCtx(ctx)
		err := e.remote.DeleteBookDocument(callCtx, e.cfg.UserID, title)
		cancel()
		if err != nil {
			log.Warn("replay book deletion failed", "title", title, "error", err)
			report.Failures++
			continue
		}
		e.gate.Lock()
		err = e.store.AckBookDeletion(ctx, title)
		e.gate.Unlock()
		if err != nil {
			log.Warn("ack book deletion failed", "title", title, "error", err)
			report.Failures++
			continue
		}
		report.DeletionsAcked++
	}

	for _, del := range queuedSessions {
		callCtx, cancel := e.remoteCtx(ctx)
		err := e.remote.DeleteSessionDocument(callCtx, e.cfg.UserID, del.BookTitle, del.ID)
		cancel()
		if err != nil {
			log.Warn("replay session deletion failed", "session_id", del.ID, "error", err)
			report.Failures++
			continue
		}
		e.gate.Lock()
		err = e.store.AckSessionDeletion(ctx, del.ID)
		e.gate.Unlock()
		if err != nil {
			log.Warn("ack session deletion failed", "session_id", del.ID, "error", err)
			report.Failures++
			continue
		}
		report.DeletionsAcked++
	}
}
