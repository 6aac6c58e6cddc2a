package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jinford/rag-studio/internal/core/vectorstore"
)

// DefaultTopK は1回の質問で取得するチャンク数
const DefaultTopK = 5

// ErrCompletionFailure はチャットモデル呼び出しの失敗を表す
// タイムアウト・クォータ超過・不正応答を含み、内部でリトライしない
var ErrCompletionFailure = errors.New("completion failed")

// Embedder はクエリのEmbedding生成インターフェース
// 取り込み時と同一モデルで呼び出すこと（ベクトル空間の互換性は運用上の契約）
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Completer はチャットモデルへの単発・非ストリーミングの補完呼び出し
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Result はチャット1回の応答
type Result struct {
	Response string   `json:"response"`
	Sources  []string `json:"sources"`
}

// Service は接地付き質問応答（検索→プロンプト構築→補完）を実行する
type Service struct {
	embedder  Embedder
	store     vectorstore.Store
	completer Completer
	topK      int
	logger    *slog.Logger
}

// NewService は新しいチャットServiceを作成する
func NewService(embedder Embedder, store vectorstore.Store, completer Completer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		embedder:  embedder,
		store:     store,
		completer: completer,
		topK:      DefaultTopK,
		logger:    logger,
	}
}

// Ask は質問に対する接地付き回答と出典リストを返す
//
// 検索結果が0件の場合はモデルを呼ばずにRefusalAnswerを返す
// （空コレクションへの質問は正常系として扱う）
func (s *Service) Ask(ctx context.Context, query, collectionName string) (*Result, error) {
	if query == "" {
		return nil, fmt.Errorf("userQuery is required")
	}
	if collectionName == "" {
		return nil, fmt.Errorf("collectionName is required")
	}

	points, err := s.Retrieve(ctx, query, collectionName)
	if err != nil {
		return nil, err
	}

	if len(points) == 0 {
		return &Result{Response: RefusalAnswer, Sources: []string{}}, nil
	}

	prompt := BuildGroundedPrompt(query, points)

	answer, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCompletionFailure, err)
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		answer = RefusalAnswer
	}

	s.logger.Info("chat answered",
		slog.String("collection", collectionName),
		slog.Int("chunks", len(points)),
	)

	return &Result{
		Response: answer,
		Sources:  UniqueSources(points),
	}, nil
}

// Retrieve はクエリをEmbeddingに変換し、コレクションから上位topK件を取得する
func (s *Service) Retrieve(ctx context.Context, query, collectionName string) ([]vectorstore.ScoredPoint, error) {
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	points, err := s.store.Search(ctx, collectionName, vector, s.topK)
	if err != nil {
		return nil, fmt.Errorf("search in %q failed: %w", collectionName, err)
	}
	return points, nil
}
