package api_test

import (
	"encoding/json/v2"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	stdsync "sync"
	"testing"

	"github.com/readingpal/readingpal/internal/api"
	"github.com/readingpal/readingpal/internal/netmon"
	"github.com/readingpal/readingpal/internal/remote"
	"github.com/readingpal/readingpal/internal/service"
	"github.com/readingpal/readingpal/internal/store"
	"github.com/readingpal/readingpal/internal/sync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupServer(t *testing.T, conn netmon.Connectivity) *api.Server {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "readingpal-api-test-*")
	require.NoError(t, err)

	s, err := store.New(filepath.Join(tmpDir, "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		s.Close()
		os.RemoveAll(tmpDir)
	})

	gate := &stdsync.Mutex{}
	logger := slog.New(slog.DiscardHandler)
	library := service.NewLibraryService(s, gate, logger)
	stats := service.NewStatsService(s)
	engine := sync.NewEngine(sync.Config{UserID: "user-1"}, s, remote.NewMemory(), conn, gate, logger)
	scheduler := sync.NewScheduler(engine, 0, logger)

	return api.NewServer(library, stats, scheduler, engine, logger)
}

func doRequest(t *testing.T, srv *api.Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

// decodeBody unmarshals a response body into a typed envelope.
func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dest))
}

func TestHealthCheck(t *testing.T) {
	srv := setupServer(t, netmon.Static(true))
	rec := doRequest(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBookLifecycle(t *testing.T) {
	srv := setupServer(t, netmon.Static(true))

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/books", `{"title":"Dune"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Duplicate title conflicts.
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/books", `{"title":"Dune"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	var conflict struct {
		Success bool   `json:"success"`
		Code    string `json:"code"`
	}
	decodeBody(t, rec, &conflict)
	assert.False(t, conflict.Success)
	assert.Equal(t, "ALREADY_EXISTS", conflict.Code)

	// Empty title is rejected.
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/books", `{"title":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/books", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Data []struct {
			Title string `json:"title"`
		} `json:"data"`
	}
	decodeBody(t, rec, &list)
	require.Len(t, list.Data, 1)
	assert.Equal(t, "Dune", list.Data[0].Title)

	rec = doRequest(t, srv, http.MethodDelete, "/api/v1/books/Dune", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, srv, http.MethodDelete, "/api/v1/books/Dune", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionRoutes(t *testing.T) {
	srv := setupServer(t, netmon.Static(true))

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/books/Dune/sessions",
		`{"start_page":"10","end_page":"40","duration":"30:00","summary":"Arrakis"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Data struct {
			ID        string `json:"id"`
			Name      string `json:"name"`
			PagesRead int    `json:"pages_read"`
		} `json:"data"`
	}
	decodeBody(t, rec, &created)
	assert.Equal(t, "Session 1", created.Data.Name)
	assert.Equal(t, 30, created.Data.PagesRead)

	rec = doRequest(t, srv, http.MethodPatch, "/api/v1/sessions/"+created.Data.ID+"/summary",
		`{"summary":"revised"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/books/Dune/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats struct {
		Data struct {
			TotalPages    int    `json:"total_pages"`
			TotalDuration string `json:"total_duration"`
		} `json:"data"`
	}
	decodeBody(t, rec, &stats)
	assert.Equal(t, 30, stats.Data.TotalPages)
	assert.Equal(t, "30 minutes", stats.Data.TotalDuration)

	rec = doRequest(t, srv, http.MethodDelete, "/api/v1/books/Dune/sessions/0", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, srv, http.MethodDelete, "/api/v1/books/Dune/sessions/notanumber", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFinishedRoutes(t *testing.T) {
	srv := setupServer(t, netmon.Static(true))

	doRequest(t, srv, http.MethodPost, "/api/v1/books", `{"title":"Dune"}`)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/books/Dune/finished",
		`{"date":"2026-06-01T00:00:00Z"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, srv, http.MethodDelete, "/api/v1/books/Dune/finished", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/books/Missing/finished", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReorderRoute(t *testing.T) {
	srv := setupServer(t, netmon.Static(true))

	doRequest(t, srv, http.MethodPost, "/api/v1/books", `{"title":"A"}`)
	doRequest(t, srv, http.MethodPost, "/api/v1/books", `{"title":"B"}`)

	rec := doRequest(t, srv, http.MethodPut, "/api/v1/books/order", `{"titles":["A","B"]}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodPut, "/api/v1/books/order", `{"titles":["A"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSyncRoutes(t *testing.T) {
	srv := setupServer(t, netmon.Static(true))

	var status struct {
		Data struct {
			Synced bool `json:"synced"`
		} `json:"data"`
	}

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/sync/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &status)
	assert.False(t, status.Data.Synced)

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/sync", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/sync/status", "")
	decodeBody(t, rec, &status)
	assert.True(t, status.Data.Synced)
}

func TestSyncOfflineRoute(t *testing.T) {
	srv := setupServer(t, netmon.Static(false))

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/sync", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
