package api

import (
	"encoding/json/v2"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/readingpal/readingpal/internal/errors"
	"github.com/readingpal/readingpal/internal/http/response"
	"github.com/readingpal/readingpal/internal/service"
	"github.com/readingpal/readingpal/internal/sync"
)

// titleParam returns the {title} route parameter. Titles are arbitrary
// user strings, so they arrive percent-encoded.
func titleParam(r *http.Request) string {
	raw := chi.URLParam(r, "title")
	if title, err := url.PathUnescape(raw); err == nil {
		return title
	}
	return raw
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := s.library.ListBooks(r.Context())
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, books, s.logger)
}

func (s *Server) handleAddBook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := json.UnmarshalRead(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid request body", s.logger)
		return
	}

	book, err := s.library.AddBook(r.Context(), req.Title)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Created(w, book, s.logger)
}

func (s *Server) handleRemoveBook(w http.ResponseWriter, r *http.Request) {
	if err := s.library.RemoveBook(r.Context(), titleParam(r)); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.NoContent(w)
}

func (s *Server) handleReorderBooks(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Titles []string `json:"titles"`
	}
	if err := json.UnmarshalRead(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid request body", s.logger)
		return
	}

	if err := s.library.ReorderBooks(r.Context(), req.Titles); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, req.Titles, s.logger)
}

func (s *Server) handleBookStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.Aggregate(r.Context(), titleParam(r))
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, stats, s.logger)
}

func (s *Server) handleMarkFinished(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date time.Time `json:"date"`
	}
	// An empty body means "finished today".
	_ = json.UnmarshalRead(r.Body, &req)

	if err := s.library.MarkFinished(r.Context(), titleParam(r), req.Date); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.NoContent(w)
}

func (s *Server) handleReopen(w http.ResponseWriter, r *http.Request) {
	if err := s.library.Reopen(r.Context(), titleParam(r)); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.NoContent(w)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.library.Sessions(r.Context(), titleParam(r))
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, sessions, s.logger)
}

func (s *Server) handleAddSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string    `json:"name"`
		Date      time.Time `json:"date"`
		StartPage string    `json:"start_page"`
		EndPage   string    `json:"end_page"`
		Duration  string    `json:"duration"`
		Summary   string    `json:"summary"`
	}
	if err := json.UnmarshalRead(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid request body", s.logger)
		return
	}

	sess, err := s.library.AddSession(r.Context(), service.SessionInput{
		BookTitle: titleParam(r),
		Name:      req.Name,
		Date:      req.Date,
		StartPage: req.StartPage,
		EndPage:   req.EndPage,
		Duration:  req.Duration,
		Summary:   req.Summary,
	})
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Created(w, sess, s.logger)
}

func (s *Server) handleRemoveSession(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		response.BadRequest(w, "invalid session index", s.logger)
		return
	}

	if err := s.library.RemoveSession(r.Context(), titleParam(r), index); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.NoContent(w)
}

func (s *Server) handleUpdateSummary(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Summary string `json:"summary"`
	}
	if err := json.UnmarshalRead(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid request body", s.logger)
		return
	}

	sessionID := chi.URLParam(r, "id")
	if err := s.library.UpdateSessionSummary(r.Context(), sessionID, req.Summary); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.NoContent(w)
}

func (s *Server) handleSyncNow(w http.ResponseWriter, r *http.Request) {
	report, err := s.scheduler.SyncNow(r.Context())
	switch {
	case err == nil:
		response.Success(w, report, s.logger)
	case errors.Is(err, sync.ErrOffline):
		response.Error(w, http.StatusServiceUnavailable, "not connected", s.logger)
	case errors.Is(err, sync.ErrSyncInProgress):
		response.Conflict(w, "a sync pass is already running", s.logger)
	default:
		response.HandleError(w, err, s.logger)
	}
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	report := s.engine.LastReport()
	if report == nil {
		response.Success(w, map[string]any{"synced": false}, s.logger)
		return
	}
	response.Success(w, map[string]any{"synced": true, "last_pass": report}, s.logger)
}
