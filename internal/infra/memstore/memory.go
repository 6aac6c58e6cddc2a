// Package memstore はテスト・オフライン開発向けのインメモリベクトルストア
package memstore

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/jinford/rag-studio/internal/core/vectorstore"
)

type memCollection struct {
	info   vectorstore.CollectionInfo
	points []vectorstore.Point
}

// Store は総当たりのコサイン類似度検索を行う vectorstore.Store 実装
type Store struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

// NewStore は新しいインメモリストアを作成する
func NewStore() *Store {
	return &Store{collections: make(map[string]*memCollection)}
}

var _ vectorstore.Store = (*Store)(nil)

// EnsureCollection はコレクションを冪等に作成する
func (s *Store) EnsureCollection(_ context.Context, name string, size int, distance vectorstore.Distance) (*vectorstore.EnsureResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if col, ok := s.collections[name]; ok {
		res := &vectorstore.EnsureResult{Created: false, Info: col.info}
		if col.info.Size != size {
			res.DimensionWarning = "existing vector size differs from requested size"
		}
		return res, nil
	}

	info := vectorstore.CollectionInfo{Name: name, Size: size, Distance: distance}
	s.collections[name] = &memCollection{info: info}
	return &vectorstore.EnsureResult{Created: true, Info: info}, nil
}

// Upsert はポイントを追加する（コレクションがなければ自動作成）
func (s *Store) Upsert(_ context.Context, name string, points []vectorstore.Point) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.collections[name]
	if !ok {
		col = &memCollection{info: vectorstore.CollectionInfo{
			Name:     name,
			Size:     len(points[0].Vector),
			Distance: vectorstore.DistanceCosine,
		}}
		s.collections[name] = col
	}

	for _, p := range points {
		if col.info.Size > 0 && len(p.Vector) != col.info.Size {
			return vectorstore.ErrDimensionMismatch
		}
	}

	col.points = append(col.points, points...)
	return nil
}

// Search はコサイン類似度の降順で上位k件を返す
// 存在しないコレクションは空結果
func (s *Store) Search(_ context.Context, name string, vector []float32, k int) ([]vectorstore.ScoredPoint, error) {
	if k <= 0 {
		k = 5
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	col, ok := s.collections[name]
	if !ok {
		return nil, nil
	}

	scored := make([]vectorstore.ScoredPoint, 0, len(col.points))
	for _, p := range col.points {
		scored = append(scored, vectorstore.ScoredPoint{
			Point: p,
			Score: cosineSimilarity(p.Vector, vector),
		})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k], nil
}

// Scroll はint型のオフセットをカーソルとして全ペイロードをページ列挙する
func (s *Store) Scroll(_ context.Context, name string, limit int, offset vectorstore.ScrollOffset) ([]vectorstore.Payload, vectorstore.ScrollOffset, error) {
	if limit <= 0 {
		limit = 1000
	}

	start := 0
	if offset != nil {
		if n, ok := offset.(int); ok {
			start = n
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	col, ok := s.collections[name]
	if !ok || start >= len(col.points) {
		return nil, nil, nil
	}

	end := start + limit
	if end > len(col.points) {
		end = len(col.points)
	}

	payloads := make([]vectorstore.Payload, 0, end-start)
	for _, p := range col.points[start:end] {
		payloads = append(payloads, p.Payload)
	}

	var next vectorstore.ScrollOffset
	if end < len(col.points) {
		next = end
	}
	return payloads, next, nil
}

// Clear は全ポイントを削除する（コレクション定義は保持）
func (s *Store) Clear(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if col, ok := s.collections[name]; ok {
		col.points = nil
	}
	return nil
}

// Drop はコレクション自体を削除する
func (s *Store) Drop(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections, name)
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
