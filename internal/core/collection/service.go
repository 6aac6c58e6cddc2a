package collection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/jinford/rag-studio/internal/core/vectorstore"
)

const (
	// DefaultVectorSize はtext-embedding-3-smallに合わせた既定の次元数
	DefaultVectorSize = 1536

	// ScrollPageSize は出典集計時に1回のスクロールで取得するポイント数
	ScrollPageSize = 1000

	// DropConfirmToken はコレクション削除に必要な確認トークン
	DropConfirmToken = "DROP"

	// fallbackSourceLabel は出典メタデータを持たないポイントの集計ラベル
	fallbackSourceLabel = "pasted-text"
)

// ErrConfirmationRequired は確認トークンなしの削除要求を表す
var ErrConfirmationRequired = errors.New(`set "confirm":"DROP" to delete the collection`)

// SourceCount は出典ラベルごとのポイント数
type SourceCount struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

// SourceReport はコレクション全体の出典集計
type SourceReport struct {
	CollectionName string        `json:"collectionName"`
	TotalPoints    int           `json:"totalPoints"`
	Items          []SourceCount `json:"items"`
}

// CreateResult はコレクション作成の結果
// 既存コレクションと次元が食い違う場合はWarningに警告文が入る
type CreateResult struct {
	Message        string `json:"message"`
	CollectionName string `json:"collectionName"`
	Size           int    `json:"size"`
	Distance       string `json:"distance"`
	Warning        string `json:"warning,omitempty"`
}

// Service はコレクションのライフサイクル管理と出典集計を提供する
type Service struct {
	store  vectorstore.Store
	logger *slog.Logger
}

// NewService は新しいコレクションServiceを作成する
func NewService(store vectorstore.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

var slugStripPattern = regexp.MustCompile(`[^\w\-]+`)
var slugDashPattern = regexp.MustCompile(`\-\-+`)

// Slugify はコレクション名をストレージで安全に使える形へ正規化する
// 小文字化・空白のハイフン置換・記号除去を行う
func Slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.Join(strings.Fields(s), "-")
	s = slugStripPattern.ReplaceAllString(s, "")
	s = slugDashPattern.ReplaceAllString(s, "-")
	return s
}

// Create はコレクションを冪等に作成する
// 同名のコレクションが既にある場合はその設定を返し、
// 次元が要求と異なるときは警告を付ける（エラーにはしない）
func (s *Service) Create(ctx context.Context, name string, size int, distance vectorstore.Distance) (*CreateResult, error) {
	if name == "" {
		return nil, fmt.Errorf("collectionName is required")
	}
	slug := Slugify(name)
	if slug == "" {
		return nil, fmt.Errorf("collectionName slug resolved to empty")
	}

	if size <= 0 {
		size = DefaultVectorSize
	}
	if distance == "" {
		distance = vectorstore.DistanceCosine
	}

	res, err := s.store.EnsureCollection(ctx, slug, size, distance)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection %q: %w", slug, err)
	}

	out := &CreateResult{
		CollectionName: slug,
		Size:           res.Info.Size,
		Distance:       string(res.Info.Distance),
		Warning:        res.DimensionWarning,
	}
	if res.Created {
		out.Message = "Collection created successfully."
	} else {
		out.Message = "Collection already exists."
	}
	return out, nil
}

// Clear は全ポイントを削除し、コレクション定義は残す
func (s *Service) Clear(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("collectionName is required")
	}
	if err := s.store.Clear(ctx, name); err != nil {
		return fmt.Errorf("failed to clear collection %q: %w", name, err)
	}
	s.logger.Info("collection cleared", slog.String("collection", name))
	return nil
}

// Drop はコレクションを完全に削除する
// 不可逆な操作のため、confirmに確認トークン "DROP" が必要
func (s *Service) Drop(ctx context.Context, name, confirm string) error {
	if name == "" {
		return fmt.Errorf("collectionName is required")
	}
	if confirm != DropConfirmToken {
		return ErrConfirmationRequired
	}
	if err := s.store.Drop(ctx, name); err != nil {
		return fmt.Errorf("failed to drop collection %q: %w", name, err)
	}
	s.logger.Info("collection dropped", slog.String("collection", name))
	return nil
}

// ListSources はコレクション全体をスクロールし、出典ラベルごとの件数を集計する
// 件数の降順に並べた一覧と総ポイント数を返す
// 全件を一度にメモリへ載せず、ScrollPageSize件ずつカーソルで読み進める
func (s *Service) ListSources(ctx context.Context, name string) (*SourceReport, error) {
	if name == "" {
		return nil, fmt.Errorf("collectionName is required")
	}

	counts := make(map[string]int)
	total := 0

	var offset vectorstore.ScrollOffset
	for {
		payloads, next, err := s.store.Scroll(ctx, name, ScrollPageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("failed to scroll collection %q: %w", name, err)
		}

		total += len(payloads)
		for _, p := range payloads {
			counts[p.Identity(fallbackSourceLabel)]++
		}

		if next == nil {
			break
		}
		offset = next
	}

	items := make([]SourceCount, 0, len(counts))
	for source, count := range counts {
		items = append(items, SourceCount{Source: source, Count: count})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Count != items[j].Count {
			return items[i].Count > items[j].Count
		}
		return items[i].Source < items[j].Source
	})

	return &SourceReport{
		CollectionName: name,
		TotalPoints:    total,
		Items:          items,
	}, nil
}
