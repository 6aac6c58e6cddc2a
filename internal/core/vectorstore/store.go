package vectorstore

import (
	"context"
	"errors"
)

// Distance はコレクションの距離メトリックを表す
type Distance string

const (
	DistanceCosine Distance = "Cosine"
	DistanceEuclid Distance = "Euclid"
	DistanceDot    Distance = "Dot"
)

var (
	// ErrStoreUnavailable はベクトルデータベースへの接続失敗を表す
	ErrStoreUnavailable = errors.New("vector store unavailable")

	// ErrDimensionMismatch は挿入・検索ベクトルの次元がコレクション定義と一致しない場合のエラー
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Payload はポイントに保存するチャンク本文と出典メタデータ
type Payload struct {
	PageContent string `json:"pageContent"`
	Source      string `json:"source,omitempty"`
	URL         string `json:"url,omitempty"`
	Title       string `json:"title,omitempty"`
}

// Identity は出典表示用のラベルを source > url > title の優先順で返す
// いずれも空の場合は fallback を返す
func (p Payload) Identity(fallback string) string {
	switch {
	case p.Source != "":
		return p.Source
	case p.URL != "":
		return p.URL
	case p.Title != "":
		return p.Title
	default:
		return fallback
	}
}

// Point はコレクションに挿入する1件のベクトル付きチャンク
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// ScoredPoint は類似度検索の結果1件（スコアの降順で返される）
type ScoredPoint struct {
	Point
	Score float64
}

// CollectionInfo はコレクションのベクトル空間設定
type CollectionInfo struct {
	Name     string
	Size     int
	Distance Distance
}

// EnsureResult はEnsureCollectionの結果
// Created が false の場合、Info には既存コレクションの設定が入る
// 既存コレクションの次元が要求と異なる場合は DimensionWarning に警告文が入る（致命的エラーにはしない）
type EnsureResult struct {
	Created          bool
	Info             CollectionInfo
	DimensionWarning string
}

// ScrollOffset は全件列挙の継続位置を表す不透明なカーソル
// nil は先頭から、Scroll の戻り値 nil は末尾到達を意味する
type ScrollOffset any

// Store はベクトルデータベースへのアダプターインターフェース
//
// Search と Scroll は存在しないコレクションに対してエラーではなく空結果を返すか、
// ErrStoreUnavailable を返すかのどちらかをバックエンドごとに一貫して選ぶ
// （qdrant / memory は空結果、postgres は ErrStoreUnavailable）
type Store interface {
	// EnsureCollection はコレクションを冪等に作成する
	EnsureCollection(ctx context.Context, name string, size int, distance Distance) (*EnsureResult, error)

	// Upsert はポイント群を挿入する
	// コレクションが存在しない場合はデフォルト設定で自動作成する
	Upsert(ctx context.Context, name string, points []Point) error

	// Search はクエリベクトルに最も近いk件を近い順で返す
	// 登録件数がkに満たない場合はその件数分、空コレクションは空スライスを返す
	Search(ctx context.Context, name string, vector []float32, k int) ([]ScoredPoint, error)

	// Scroll は全ポイントのペイロードをページ単位で列挙する
	// 返却した nextOffset を次回の offset に渡すことで続きから再開できる
	Scroll(ctx context.Context, name string, limit int, offset ScrollOffset) ([]Payload, ScrollOffset, error)

	// Clear は全ポイントを削除し、コレクション定義は保持する
	Clear(ctx context.Context, name string) error

	// Drop はコレクション自体を削除する（復元不可）
	Drop(ctx context.Context, name string) error
}
