package remote_test

import (
	"context"
	"encoding/json/v2"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/readingpal/readingpal/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]any
}

func newTestServer(t *testing.T, status int, response string) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var requests []recordedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{
			Method: r.Method,
			Path:   r.URL.EscapedPath(),
			Auth:   r.Header.Get("Authorization"),
		}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &rec.Body)
		}
		requests = append(requests, rec)

		w.WriteHeader(status)
		if response != "" {
			_, _ = w.Write([]byte(response))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func TestClientGetBookDocument(t *testing.T) {
	srv, reqs := newTestServer(t, http.StatusOK,
		`{"title":"Dune","lastUpdated":"2026-05-01T00:00:00Z","orderIndex":2}`)
	c := remote.NewClient(srv.URL, "secret-token", 100, nil)

	doc, err := c.GetBookDocument(context.Background(), "user-1", "Dune")
	require.NoError(t, err)
	assert.Equal(t, "Dune", doc.Title)
	assert.Equal(t, 2, doc.OrderIndex)
	require.NotNil(t, doc.LastUpdated)
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), doc.LastUpdated.UTC())

	require.Len(t, *reqs, 1)
	assert.Equal(t, http.MethodGet, (*reqs)[0].Method)
	assert.Equal(t, "/users/user-1/books/Dune", (*reqs)[0].Path)
	assert.Equal(t, "Bearer secret-token", (*reqs)[0].Auth)
}

func TestClientEscapesTitles(t *testing.T) {
	srv, reqs := newTestServer(t, http.StatusOK, `{}`)
	c := remote.NewClient(srv.URL, "", 100, nil)

	err := c.SetBookDocument(context.Background(), "user-1", "War & Peace", map[string]any{"title": "War & Peace"}, false)
	require.NoError(t, err)

	require.Len(t, *reqs, 1)
	assert.Equal(t, "/users/user-1/books/War%20&%20Peace", (*reqs)[0].Path)
	assert.Empty(t, (*reqs)[0].Auth)
}

func TestClientMergeUsesPatch(t *testing.T) {
	srv, reqs := newTestServer(t, http.StatusOK, `{}`)
	c := remote.NewClient(srv.URL, "", 100, nil)
	ctx := context.Background()

	require.NoError(t, c.SetUserDocument(ctx, "user-1", map[string]any{"library": []string{"Dune"}}, true))
	require.NoError(t, c.SetUserDocument(ctx, "user-1", map[string]any{"library": []string{"Dune"}}, false))

	require.Len(t, *reqs, 2)
	assert.Equal(t, http.MethodPatch, (*reqs)[0].Method)
	assert.Equal(t, http.MethodPut, (*reqs)[1].Method)
	assert.Equal(t, "/users/user-1", (*reqs)[0].Path)
}

func TestClientNotFound(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusNotFound, "")
	c := remote.NewClient(srv.URL, "", 100, nil)
	ctx := context.Background()

	_, err := c.GetBookDocument(ctx, "user-1", "missing")
	assert.ErrorIs(t, err, remote.ErrNotFound)

	// Deletes and session listings treat 404 as a clean outcome.
	assert.NoError(t, c.DeleteBookDocument(ctx, "user-1", "missing"))
	assert.NoError(t, c.DeleteSessionDocument(ctx, "user-1", "missing", "sess-1"))

	docs, err := c.ListSessionDocuments(ctx, "user-1", "missing")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestClientServerErrorIsUnavailable(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusInternalServerError, "")
	c := remote.NewClient(srv.URL, "", 100, nil)

	_, err := c.GetUserDocument(context.Background(), "user-1")
	assert.ErrorIs(t, err, remote.ErrUnavailable)

	err = c.SetBookDocument(context.Background(), "user-1", "Dune", map[string]any{"title": "Dune"}, true)
	assert.ErrorIs(t, err, remote.ErrUnavailable)
}

func TestClientConnectionRefusedIsUnavailable(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, "")
	srv.Close()
	c := remote.NewClient(srv.URL, "", 100, nil)

	_, err := c.GetUserDocument(context.Background(), "user-1")
	assert.ErrorIs(t, err, remote.ErrUnavailable)
}

func TestClientListSessionDocuments(t *testing.T) {
	srv, reqs := newTestServer(t, http.StatusOK,
		`[{"id":"sess-1","name":"Session 1","pagesRead":30,"duration":"30:00"}]`)
	c := remote.NewClient(srv.URL, "", 100, nil)

	docs, err := c.ListSessionDocuments(context.Background(), "user-1", "Dune")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "sess-1", docs[0].ID)
	assert.Equal(t, 30, docs[0].PagesRead)

	require.Len(t, *reqs, 1)
	assert.Equal(t, "/users/user-1/books/Dune/sessions", (*reqs)[0].Path)
}
