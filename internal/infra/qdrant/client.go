// Package qdrant はQdrantのREST APIに対するベクトルストアアダプター
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jinford/rag-studio/internal/core/vectorstore"
)

// DefaultTimeout はQdrantへのHTTPリクエストのタイムアウト
const DefaultTimeout = 30 * time.Second

// Store はQdrantに対する vectorstore.Store 実装
type Store struct {
	baseURL string
	apiKey  string
	client  *http.Client

	// defaultSize / defaultDistance はUpsert時の自動作成に使う既定設定
	defaultSize     int
	defaultDistance vectorstore.Distance
}

// Config はQdrant接続設定
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration

	// DefaultVectorSize はコレクション自動作成時の次元数（0なら1536）
	DefaultVectorSize int
}

// NewStore は新しいQdrantアダプターを作成する
func NewStore(cfg Config) *Store {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	size := cfg.DefaultVectorSize
	if size <= 0 {
		size = 1536
	}
	return &Store{
		baseURL:         strings.TrimRight(cfg.URL, "/"),
		apiKey:          cfg.APIKey,
		client:          &http.Client{Timeout: timeout},
		defaultSize:     size,
		defaultDistance: vectorstore.DistanceCosine,
	}
}

var _ vectorstore.Store = (*Store)(nil)

// collectionInfoResponse はGET /collections/{name}のレスポンスの必要部分
type collectionInfoResponse struct {
	Result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

// EnsureCollection はコレクションを冪等に作成する
func (s *Store) EnsureCollection(ctx context.Context, name string, size int, distance vectorstore.Distance) (*vectorstore.EnsureResult, error) {
	existing, found, err := s.getCollection(ctx, name)
	if err != nil {
		return nil, err
	}
	if found {
		res := &vectorstore.EnsureResult{
			Created: false,
			Info:    *existing,
		}
		if existing.Size != 0 && existing.Size != size {
			res.DimensionWarning = fmt.Sprintf(
				"existing vector size is %d, but you requested %d", existing.Size, size)
		}
		return res, nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     size,
			"distance": string(distance),
		},
	}
	if err := s.doJSON(ctx, http.MethodPut, s.collectionURL(name), body, nil); err != nil {
		return nil, err
	}

	return &vectorstore.EnsureResult{
		Created: true,
		Info: vectorstore.CollectionInfo{
			Name:     name,
			Size:     size,
			Distance: distance,
		},
	}, nil
}

// Upsert はポイント群を挿入する
// コレクションが存在しない場合はデフォルト設定（Cosine）で自動作成する
func (s *Store) Upsert(ctx context.Context, name string, points []vectorstore.Point) error {
	if len(points) == 0 {
		return nil
	}

	if _, found, err := s.getCollection(ctx, name); err != nil {
		return err
	} else if !found {
		size := s.defaultSize
		if len(points[0].Vector) > 0 {
			size = len(points[0].Vector)
		}
		if _, err := s.EnsureCollection(ctx, name, size, s.defaultDistance); err != nil {
			return err
		}
	}

	type qdrantPoint struct {
		ID      string              `json:"id"`
		Vector  []float32           `json:"vector"`
		Payload vectorstore.Payload `json:"payload"`
	}

	qpoints := make([]qdrantPoint, len(points))
	for i, p := range points {
		qpoints[i] = qdrantPoint{ID: p.ID, Vector: p.Vector, Payload: p.Payload}
	}

	// wait=true: 書き込みの永続化を待ってから応答させる
	return s.doJSON(ctx, http.MethodPut, s.collectionURL(name)+"/points?wait=true",
		map[string]any{"points": qpoints}, nil)
}

// Search はクエリベクトルに最も近いk件をスコア降順で返す
// 存在しないコレクションはエラーではなく空結果として扱う
// （インデックス作成前に質問するユーザーフローを許容する）
func (s *Store) Search(ctx context.Context, name string, vector []float32, k int) ([]vectorstore.ScoredPoint, error) {
	if k <= 0 {
		k = 5
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}

	var resp struct {
		Result []struct {
			ID      any                 `json:"id"`
			Score   float64             `json:"score"`
			Payload vectorstore.Payload `json:"payload"`
		} `json:"result"`
	}

	err := s.doJSON(ctx, http.MethodPost, s.collectionURL(name)+"/points/search", req, &resp)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	results := make([]vectorstore.ScoredPoint, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, vectorstore.ScoredPoint{
			Point: vectorstore.Point{
				ID:      fmt.Sprint(r.ID),
				Payload: r.Payload,
			},
			Score: r.Score,
		})
	}
	return results, nil
}

// Scroll は全ポイントのペイロードをページ単位で列挙する
// next_page_offsetをそのまま不透明なカーソルとして返し、次回のoffsetに渡す
func (s *Store) Scroll(ctx context.Context, name string, limit int, offset vectorstore.ScrollOffset) ([]vectorstore.Payload, vectorstore.ScrollOffset, error) {
	if limit <= 0 {
		limit = 1000
	}

	req := map[string]any{
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
	}
	if offset != nil {
		req["offset"] = offset
	}

	var resp struct {
		Result struct {
			Points []struct {
				Payload vectorstore.Payload `json:"payload"`
			} `json:"points"`
			NextPageOffset json.RawMessage `json:"next_page_offset"`
		} `json:"result"`
	}

	err := s.doJSON(ctx, http.MethodPost, s.collectionURL(name)+"/points/scroll", req, &resp)
	if err != nil {
		if isNotFound(err) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	payloads := make([]vectorstore.Payload, 0, len(resp.Result.Points))
	for _, p := range resp.Result.Points {
		payloads = append(payloads, p.Payload)
	}

	var next vectorstore.ScrollOffset
	if len(resp.Result.NextPageOffset) > 0 && string(resp.Result.NextPageOffset) != "null" {
		next = resp.Result.NextPageOffset
	}
	return payloads, next, nil
}

// Clear は空フィルタで全ポイントを削除する（コレクション定義は保持）
func (s *Store) Clear(ctx context.Context, name string) error {
	body := map[string]any{
		"filter": map[string]any{"must": []any{}},
	}
	return s.doJSON(ctx, http.MethodPost, s.collectionURL(name)+"/points/delete?wait=true", body, nil)
}

// Drop はコレクションを完全に削除する
func (s *Store) Drop(ctx context.Context, name string) error {
	return s.doJSON(ctx, http.MethodDelete, s.collectionURL(name), nil, nil)
}

// getCollection はコレクション設定を取得する（存在しない場合はfound=false）
func (s *Store) getCollection(ctx context.Context, name string) (*vectorstore.CollectionInfo, bool, error) {
	var resp collectionInfoResponse
	err := s.doJSON(ctx, http.MethodGet, s.collectionURL(name), nil, &resp)
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	vectors := resp.Result.Config.Params.Vectors
	return &vectorstore.CollectionInfo{
		Name:     name,
		Size:     vectors.Size,
		Distance: vectorstore.Distance(vectors.Distance),
	}, true, nil
}

func (s *Store) collectionURL(name string) string {
	return s.baseURL + "/collections/" + url.PathEscape(name)
}

// statusError はQdrantが2xx以外を返した場合のエラー
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant returned status %d: %s", e.status, e.body)
}

func isNotFound(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.status == http.StatusNotFound
}

// doJSON はJSONボディを送信し、レスポンスをoutへデコードする
func (s *Store) doJSON(ctx context.Context, method, rawURL string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s", vectorstore.ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		preview := string(data)
		if len(preview) > 200 {
			preview = preview[:200]
		}
		if resp.StatusCode == http.StatusBadRequest && strings.Contains(preview, "dim") {
			return fmt.Errorf("%w: %s", vectorstore.ErrDimensionMismatch, preview)
		}
		return &statusError{status: resp.StatusCode, body: preview}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}
