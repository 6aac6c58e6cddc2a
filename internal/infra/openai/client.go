package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jinford/rag-studio/internal/core/chat"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const (
	// DefaultChatModel はデフォルトで使用するチャットモデル
	DefaultChatModel = "gpt-4o-mini"

	// DefaultTemperature は接地付きQ&A向けの低いサンプリング温度
	// 創造性より決定性を優先する
	DefaultTemperature = 0.2

	// DefaultTimeout はAPI呼び出しのデフォルトタイムアウト
	DefaultTimeout = 60 * time.Second
)

// ErrAPIKeyNotSet はAPIキーが設定されていない場合のエラー
var ErrAPIKeyNotSet = errors.New("OpenAI API key not set: please set OPENAI_API_KEY environment variable")

// ChatClient は OpenAI Chat Completions API への単発・非ストリーミングのクライアント
// 失敗時のリトライは行わず、エラーをそのまま呼び出し元へ返す
type ChatClient struct {
	client      openai.Client
	model       string
	temperature float64
	timeout     time.Duration
}

// NewChatClient は新しい ChatClient を作成する
func NewChatClient(apiKey, model string) (*ChatClient, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	if model == "" {
		model = DefaultChatModel
	}

	return &ChatClient{
		client:      openai.NewClient(option.WithAPIKey(apiKey)),
		model:       model,
		temperature: DefaultTemperature,
		timeout:     DefaultTimeout,
	}, nil
}

// SetTimeout はAPIコールのタイムアウトを設定する
func (c *ChatClient) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// ModelName はモデル名を返す
func (c *ChatClient) ModelName() string {
	return c.model
}

// Complete はプロンプトを送信し、生成されたテキストを返す
func (c *ChatClient) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(c.temperature),
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}

	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no completion choices returned")
	}

	return completion.Choices[0].Message.Content, nil
}

// インターフェース実装の確認
var _ chat.Completer = (*ChatClient)(nil)
