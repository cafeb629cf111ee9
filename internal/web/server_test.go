package web

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pressarc/wp-archive/internal/storage"
)

func testServer(t *testing.T) (*httptest.Server, *storage.Store) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(NewServer(store, nil, logger).Handler())
	t.Cleanup(srv.Close)
	return srv, store
}

func getJSON(t *testing.T, url string, wantStatus int) map[string]any {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, wantStatus, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func seedVersion(t *testing.T, store *storage.Store, id int64, number int, title string, edges []storage.Edge) {
	t.Helper()
	err := store.InsertVersion(context.Background(), &storage.Version{
		ContentType: "posts",
		RemoteID:    id,
		Number:      number,
		ContentHash: title,
		Title:       title,
	}, edges)
	require.NoError(t, err)
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)
	body := getJSON(t, srv.URL+"/health", http.StatusOK)
	assert.Equal(t, "ok", body["status"])
}

func TestVersionsEndpoint(t *testing.T) {
	srv, store := testServer(t)
	seedVersion(t, store, 1, 1, "First", nil)
	seedVersion(t, store, 1, 2, "Second", nil)

	body := getJSON(t, srv.URL+"/api/versions?type=posts&id=1", http.StatusOK)
	assert.Equal(t, "posts", body["content_type"])
	versions := body["versions"].([]any)
	require.Len(t, versions, 2)
	first := versions[0].(map[string]any)
	assert.Equal(t, float64(1), first["version"])
	assert.Equal(t, "First", first["title"])

	getJSON(t, srv.URL+"/api/versions?type=posts&id=99", http.StatusNotFound)
	getJSON(t, srv.URL+"/api/versions?type=bogus&id=1", http.StatusBadRequest)
	getJSON(t, srv.URL+"/api/versions?type=posts", http.StatusBadRequest)
}

func TestEdgesEndpoint(t *testing.T) {
	srv, store := testServer(t)
	seedVersion(t, store, 1, 1, "Post", []storage.Edge{
		{RelatedType: storage.RelatedCategory, RelatedID: 3},
		{RelatedType: storage.RelatedTag, RelatedID: 4},
	})

	body := getJSON(t, srv.URL+"/api/edges?post=1&version=1", http.StatusOK)
	edges := body["edges"].([]any)
	require.Len(t, edges, 2)
	cat := edges[0].(map[string]any)
	assert.Equal(t, "category", cat["related_type"])
	assert.Equal(t, float64(3), cat["related_id"])

	getJSON(t, srv.URL+"/api/edges?post=1", http.StatusBadRequest)
}

func TestPostsForEndpoint(t *testing.T) {
	srv, store := testServer(t)
	seedVersion(t, store, 1, 1, "Tagged", []storage.Edge{
		{RelatedType: storage.RelatedTag, RelatedID: 9},
	})
	seedVersion(t, store, 2, 1, "Untagged", nil)

	body := getJSON(t, srv.URL+"/api/posts?related_type=tag&related_id=9", http.StatusOK)
	posts := body["posts"].([]any)
	require.Len(t, posts, 1)
	assert.Equal(t, float64(1), posts[0].(float64))

	getJSON(t, srv.URL+"/api/posts?related_type=author&related_id=9", http.StatusBadRequest)
}

func TestStatsEndpoint(t *testing.T) {
	srv, store := testServer(t)
	seedVersion(t, store, 1, 1, "One", nil)
	seedVersion(t, store, 1, 2, "One b", nil)

	sess, err := store.BeginSession(context.Background(), "posts")
	require.NoError(t, err)
	sess.Status = storage.StatusCompleted
	sess.ItemsProcessed = 1
	require.NoError(t, store.FinalizeSession(context.Background(), sess))

	body := getJSON(t, srv.URL+"/api/stats", http.StatusOK)
	counts := body["content_types"].(map[string]any)
	posts := counts["posts"].(map[string]any)
	assert.Equal(t, float64(1), posts["items"])
	assert.Equal(t, float64(2), posts["versions"])

	latest := body["latest_session"].(map[string]any)
	assert.Equal(t, sess.ID, latest["id"])
	assert.Equal(t, "completed", latest["status"])
}

func TestSessionsEndpoint(t *testing.T) {
	srv, store := testServer(t)
	for i := 0; i < 3; i++ {
		sess, err := store.BeginSession(context.Background(), "all")
		require.NoError(t, err)
		sess.Status = storage.StatusCompleted
		require.NoError(t, store.FinalizeSession(context.Background(), sess))
	}

	body := getJSON(t, srv.URL+"/api/sessions?limit=2", http.StatusOK)
	sessions := body["sessions"].([]any)
	assert.Len(t, sessions, 2)
}

func TestSearchEndpoint_NoIndex(t *testing.T) {
	srv, _ := testServer(t)
	getJSON(t, srv.URL+"/api/search?q=x", http.StatusServiceUnavailable)
}
