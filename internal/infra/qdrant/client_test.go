package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jinford/rag-studio/internal/core/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_EnsureCollectionCreatesWhenMissing(t *testing.T) {
	var created map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/collections/docs":
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
			w.Write([]byte(`{"result": true}`))
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	store := NewStore(Config{URL: server.URL})

	res, err := store.EnsureCollection(context.Background(), "docs", 1536, vectorstore.DistanceCosine)
	require.NoError(t, err)

	assert.True(t, res.Created)
	assert.Equal(t, 1536, res.Info.Size)

	vectors := created["vectors"].(map[string]any)
	assert.Equal(t, float64(1536), vectors["size"])
	assert.Equal(t, "Cosine", vectors["distance"])
}

func TestStore_EnsureCollectionExistingWarnsOnSizeMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		w.Write([]byte(`{"result":{"config":{"params":{"vectors":{"size":768,"distance":"Cosine"}}}}}`))
	}))
	defer server.Close()

	store := NewStore(Config{URL: server.URL})

	res, err := store.EnsureCollection(context.Background(), "docs", 1536, vectorstore.DistanceCosine)
	require.NoError(t, err)

	assert.False(t, res.Created)
	assert.Equal(t, 768, res.Info.Size)
	assert.Contains(t, res.DimensionWarning, "768")
	assert.Contains(t, res.DimensionWarning, "1536")
}

func TestStore_UpsertAutoCreatesCollection(t *testing.T) {
	var putCollection, putPoints bool

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/collections/docs":
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs":
			putCollection = true

			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			vectors := body["vectors"].(map[string]any)
			// 次元は挿入するポイントのベクトル長に合わせる
			assert.Equal(t, float64(3), vectors["size"])

			w.Write([]byte(`{"result": true}`))
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs/points":
			putPoints = true
			assert.Equal(t, "true", r.URL.Query().Get("wait"))
			w.Write([]byte(`{"result": {"status": "completed"}}`))
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	store := NewStore(Config{URL: server.URL})

	err := store.Upsert(context.Background(), "docs", []vectorstore.Point{
		{ID: "1", Vector: []float32{1, 2, 3}, Payload: vectorstore.Payload{PageContent: "x"}},
	})
	require.NoError(t, err)

	assert.True(t, putCollection)
	assert.True(t, putPoints)
}

func TestStore_SearchMissingCollectionReturnsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"status":{"error":"Not found: Collection doesn't exist"}}`))
	}))
	defer server.Close()

	store := NewStore(Config{URL: server.URL})

	results, err := store.Search(context.Background(), "nope", []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStore_SearchParsesScoredPoints(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections/docs/points/search", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(5), body["limit"])
		assert.Equal(t, true, body["with_payload"])

		w.Write([]byte(`{"result":[
			{"id":"aaa","score":0.92,"payload":{"pageContent":"first","source":"s1"}},
			{"id":"bbb","score":0.81,"payload":{"pageContent":"second","url":"https://x"}}
		]}`))
	}))
	defer server.Close()

	store := NewStore(Config{URL: server.URL})

	results, err := store.Search(context.Background(), "docs", []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "aaa", results[0].ID)
	assert.InDelta(t, 0.92, results[0].Score, 1e-9)
	assert.Equal(t, "first", results[0].Payload.PageContent)
	assert.Equal(t, "s1", results[0].Payload.Source)
	assert.Equal(t, "https://x", results[1].Payload.URL)
}

func TestStore_ScrollFollowsNextPageOffset(t *testing.T) {
	call := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections/docs/points/scroll", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		call++
		switch call {
		case 1:
			assert.Nil(t, body["offset"])
			w.Write([]byte(`{"result":{"points":[{"payload":{"source":"a"}},{"payload":{"source":"b"}}],"next_page_offset":"cursor-1"}}`))
		case 2:
			// 前回返した不透明カーソルがそのまま送り返される
			assert.Equal(t, "cursor-1", body["offset"])
			w.Write([]byte(`{"result":{"points":[{"payload":{"source":"c"}}],"next_page_offset":null}}`))
		default:
			t.Errorf("unexpected extra scroll call %d", call)
		}
	}))
	defer server.Close()

	store := NewStore(Config{URL: server.URL})
	ctx := context.Background()

	payloads, next, err := store.Scroll(ctx, "docs", 2, nil)
	require.NoError(t, err)
	require.Len(t, payloads, 2)
	require.NotNil(t, next)

	payloads, next, err = store.Scroll(ctx, "docs", 2, next)
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	assert.Equal(t, "c", payloads[0].Source)
	assert.Nil(t, next)
}

func TestStore_ClearSendsEmptyFilterDelete(t *testing.T) {
	var body map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/collections/docs/points/delete", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("wait"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Write([]byte(`{"result": {"status": "completed"}}`))
	}))
	defer server.Close()

	store := NewStore(Config{URL: server.URL})

	require.NoError(t, store.Clear(context.Background(), "docs"))

	filter := body["filter"].(map[string]any)
	assert.Empty(t, filter["must"])
}

func TestStore_Drop(t *testing.T) {
	var method, path string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path
		w.Write([]byte(`{"result": true}`))
	}))
	defer server.Close()

	store := NewStore(Config{URL: server.URL})

	require.NoError(t, store.Drop(context.Background(), "docs"))
	assert.Equal(t, http.MethodDelete, method)
	assert.Equal(t, "/collections/docs", path)
}

func TestStore_SendsAPIKeyHeader(t *testing.T) {
	var gotKey string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("api-key")
		w.Write([]byte(`{"result":{"config":{"params":{"vectors":{"size":3,"distance":"Cosine"}}}}}`))
	}))
	defer server.Close()

	store := NewStore(Config{URL: server.URL, APIKey: "secret"})

	_, err := store.EnsureCollection(context.Background(), "docs", 3, vectorstore.DistanceCosine)
	require.NoError(t, err)
	assert.Equal(t, "secret", gotKey)
}

func TestStore_ConnectionFailureIsStoreUnavailable(t *testing.T) {
	// 閉じたサーバへの接続は ErrStoreUnavailable に写像される
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	store := NewStore(Config{URL: server.URL})

	_, err := store.Search(context.Background(), "docs", []float32{1}, 5)
	assert.ErrorIs(t, err, vectorstore.ErrStoreUnavailable)
}
