package wordpress

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchPage_PaginationHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wp-json/wp/v2/posts", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "10", r.URL.Query().Get("per_page"))

		w.Header().Set("X-WP-TotalPages", "3")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]any{{"id": 1}, {"id": 2}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	page, err := c.FetchPage(context.Background(), TypePosts, 2, 10, nil)
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 3, page.TotalPages)
	assert.True(t, page.HasMore)

	page, err = c.FetchPage(context.Background(), TypePosts, 3, 10, nil)
	require.NoError(t, err)
	assert.False(t, page.HasMore, "last page per the total-pages header")
}

func TestFetchPage_NoHeaderFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{{"id": 1}, {"id": 2}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)

	// A full page without the header means there may be more.
	page, err := c.FetchPage(context.Background(), TypePosts, 1, 2, nil)
	require.NoError(t, err)
	assert.True(t, page.HasMore)

	// A short page means the collection is exhausted.
	page, err = c.FetchPage(context.Background(), TypePosts, 1, 10, nil)
	require.NoError(t, err)
	assert.False(t, page.HasMore)
}

func TestFetchPage_PastEndReturns400(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":"rest_post_invalid_page_number"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	page, err := c.FetchPage(context.Background(), TypePosts, 99, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.False(t, page.HasMore)
}

func TestFetchPage_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	_, err := c.FetchPage(context.Background(), TypeComments, 1, 10, nil)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, TypeComments, notFound.ContentType)
}

func TestFetchPage_ModifiedAfterParam(t *testing.T) {
	var gotParam string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotParam = r.URL.Query().Get("modified_after")
		json.NewEncoder(w).Encode([]map[string]any{})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	after := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	_, err := c.FetchPage(context.Background(), TypePosts, 1, 10, &after)
	require.NoError(t, err)
	assert.Equal(t, "2024-06-01T00:00:00Z", gotParam)
}

func TestDo_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode([]map[string]any{{"id": 1}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	page, err := c.FetchPage(context.Background(), TypePosts, 1, 10, nil)
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDo_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	c.maxRetries = 1

	_, err := c.FetchPage(context.Background(), TypePosts, 1, 10, nil)
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, http.StatusServiceUnavailable, terr.Status)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchItem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/wp-json/wp/v2/categories/7":
			json.NewEncoder(w).Encode(map[string]any{"id": 7, "name": "news"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)

	raw, err := c.FetchItem(context.Background(), TypeCategories, 7)
	require.NoError(t, err)
	item, err := DecodeItem(TypeCategories, raw)
	require.NoError(t, err)
	assert.Equal(t, int64(7), item.RemoteID())

	_, err = c.FetchItem(context.Background(), TypeCategories, 8)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestVerify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wp-json/", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"name":       "Example",
			"namespaces": []string{"oembed/1.0", "wp/v2"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	require.NoError(t, c.Verify(context.Background()))
}

func TestVerify_NotWordPress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"namespaces": []string{"custom/v1"}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	err := c.Verify(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wp/v2")
}

func TestDecodeItem(t *testing.T) {
	raw := json.RawMessage(`{
		"id": 42,
		"date": "2024-03-04T10:00:00",
		"modified": "2024-03-05T11:30:00",
		"slug": "hello-world",
		"status": "publish",
		"title": {"rendered": "Hello World"},
		"content": {"rendered": "<p>Welcome</p>"},
		"excerpt": {"rendered": ""},
		"author": 3,
		"categories": [1, 5],
		"tags": []
	}`)

	item, err := DecodeItem(TypePosts, raw)
	require.NoError(t, err)
	post, ok := item.(*Post)
	require.True(t, ok)
	assert.Equal(t, int64(42), post.ID)
	assert.Equal(t, "Hello World", post.Title.Rendered)
	assert.Equal(t, []int64{1, 5}, post.Categories)

	mod, ok := item.ModifiedAt()
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 5, 11, 30, 0, 0, time.UTC), mod)
}

func TestDecodeItem_Invalid(t *testing.T) {
	_, err := DecodeItem(TypePosts, json.RawMessage(`{"id": "nope"}`))
	require.Error(t, err)

	_, err = DecodeItem(TypePosts, json.RawMessage(`{"title": {"rendered": "no id"}}`))
	require.Error(t, err)

	_, err = DecodeItem(TypePosts, json.RawMessage(`{"id": -3}`))
	require.Error(t, err, "non-positive ids are malformed")

	_, err = DecodeItem(ContentType("attachments"), json.RawMessage(`{"id": 1}`))
	require.Error(t, err)
}

func TestModifiedAt_UndatedTypes(t *testing.T) {
	for _, item := range []Item{
		&User{ID: 1, Name: "x"},
		&Category{ID: 1, Name: "x"},
		&Tag{ID: 1, Name: "x"},
	} {
		_, ok := item.ModifiedAt()
		assert.False(t, ok)
	}
}
