package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jinford/rag-studio/internal/core/chat"
	"github.com/jinford/rag-studio/internal/core/collection"
	"github.com/jinford/rag-studio/internal/core/ingestion"
	"github.com/jinford/rag-studio/internal/infra/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEmbedder は全テキストを同一ベクトルに写像する
// 取り込んだチャンクは必ず検索にヒットする
type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (stubEmbedder) BatchEmbed(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0, 0}
	}
	return vectors, nil
}

func (stubEmbedder) Dimension() int    { return 3 }
func (stubEmbedder) MaxBatchSize() int { return 100 }

type stubCompleter struct{ answer string }

func (c *stubCompleter) Complete(_ context.Context, _ string) (string, error) {
	return c.answer, nil
}

func newTestServer(t *testing.T, completer *stubCompleter) *httptest.Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memstore.NewStore()
	embedder := stubEmbedder{}

	ingestSvc := ingestion.NewIngestService(embedder, store, nil, nil, nil, logger)
	chatSvc := chat.NewService(embedder, store, completer, logger)
	collectionSvc := collection.NewService(store, logger)

	handler := NewHandler(ingestSvc, chatSvc, collectionSvc)
	server := httptest.NewServer(NewServer(handler, logger).Routes())
	t.Cleanup(server.Close)
	return server
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func postMultipartText(t *testing.T, url string, fields map[string]string) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	require.NoError(t, writer.Close())

	resp, err := http.Post(url, writer.FormDataContentType(), &buf)
	require.NoError(t, err)
	return resp
}

func TestHandler_Health(t *testing.T) {
	server := newTestServer(t, &stubCompleter{})

	resp, err := http.Get(server.URL + "/api/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, true, body["ok"])
}

func TestHandler_IndexChatSourcesFlow(t *testing.T) {
	server := newTestServer(t, &stubCompleter{answer: "Mangoes ripen in summer."})

	// コレクション作成（次元はstubEmbedderの出力に合わせる）
	resp := postJSON(t, server.URL+"/api/createCollection", map[string]any{
		"collectionName": "Test Col",
		"size":           3,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "Collection created successfully.", body["message"])
	assert.Equal(t, "test-col", body["collectionName"])
	assert.Equal(t, float64(3), body["size"])

	// テキスト取り込み
	resp = postMultipartText(t, server.URL+"/api/index", map[string]string{
		"sourceType":     "text",
		"collectionName": "test-col",
		"sourceName":     "fruit-note",
		"text":           "Mangoes ripen in summer.",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Indexing of fruit-note done.", body["message"])
	assert.Equal(t, float64(1), body["inserted"])

	// 質問応答
	resp = postJSON(t, server.URL+"/api/chat", map[string]any{
		"userQuery":      "When do mangoes ripen?",
		"collectionName": "test-col",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	assert.Equal(t, "Mangoes ripen in summer.", body["response"])
	assert.Equal(t, []any{"fruit-note"}, body["sources"])

	// 出典集計
	resp2, err := http.Get(server.URL + "/api/sources?collectionName=test-col")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp2.StatusCode)
	body = decodeBody(t, resp2)
	assert.Equal(t, float64(1), body["totalPoints"])

	items := body["items"].([]any)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, "fruit-note", item["source"])
	assert.Equal(t, float64(1), item["count"])
}

func TestHandler_ChatEmptyCollectionRefuses(t *testing.T) {
	server := newTestServer(t, &stubCompleter{answer: "unused"})

	resp := postJSON(t, server.URL+"/api/chat", map[string]any{
		"userQuery":      "Anything?",
		"collectionName": "missing",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, chat.RefusalAnswer, body["response"])
	assert.Equal(t, []any{}, body["sources"])
}

func TestHandler_IndexValidation(t *testing.T) {
	server := newTestServer(t, &stubCompleter{})

	t.Run("missing sourceType", func(t *testing.T) {
		resp := postMultipartText(t, server.URL+"/api/index", map[string]string{
			"collectionName": "docs",
			"text":           "hello",
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("text kind without text", func(t *testing.T) {
		resp := postMultipartText(t, server.URL+"/api/index", map[string]string{
			"sourceType":     "text",
			"collectionName": "docs",
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown sourceType", func(t *testing.T) {
		resp := postMultipartText(t, server.URL+"/api/index", map[string]string{
			"sourceType":     "rss",
			"collectionName": "docs",
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestHandler_ChatValidation(t *testing.T) {
	server := newTestServer(t, &stubCompleter{})

	resp := postJSON(t, server.URL+"/api/chat", map[string]any{
		"collectionName": "docs",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, server.URL+"/api/chat", map[string]any{
		"userQuery": "hello?",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp2, err := http.Post(server.URL+"/api/chat", "application/json", strings.NewReader("{broken"))
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestHandler_ClearIndex(t *testing.T) {
	server := newTestServer(t, &stubCompleter{answer: "unused"})

	resp := postMultipartText(t, server.URL+"/api/index", map[string]string{
		"sourceType":     "text",
		"collectionName": "docs",
		"text":           "ephemeral note",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, server.URL+"/api/clearIndex", map[string]any{
		"collectionName": "docs",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, true, body["success"])

	resp2, err := http.Get(server.URL + "/api/sources?collectionName=docs")
	require.NoError(t, err)
	body = decodeBody(t, resp2)
	assert.Equal(t, float64(0), body["totalPoints"])
}

func TestHandler_DropCollectionRequiresConfirmation(t *testing.T) {
	server := newTestServer(t, &stubCompleter{})

	resp := postJSON(t, server.URL+"/api/dropCollection", map[string]any{
		"collectionName": "docs",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp2 := postJSON(t, server.URL+"/api/dropCollection", map[string]any{
		"collectionName": "docs",
		"confirm":        "DROP",
	})
	require.Equal(t, http.StatusOK, resp2.StatusCode)
	body := decodeBody(t, resp2)
	assert.Equal(t, true, body["success"])
}
