package ingestion

import (
	"errors"
	"io"
	"net/url"
	"strings"
)

const (
	// DefaultSourceName は貼り付けテキストに付与する既定の出典ラベル
	DefaultSourceName = "pasted-text"

	// ChunkSize はチャンク1件の最大文字数（rune単位）
	ChunkSize = 1000

	// ChunkOverlap は隣接チャンク間で重複させる文字数（rune単位）
	ChunkOverlap = 200

	// UpsertBatchSize はベクトルストアへの挿入バッチサイズ
	// 1リクエストあたりのペイロードサイズと所要時間を抑えるための上限
	UpsertBatchSize = 100
)

var (
	// ErrMissingField は宣言されたソース種別に必要なフィールドが欠けている場合のエラー
	ErrMissingField = errors.New("missing required field")

	// ErrUnsupportedSourceKind は対応していないソース種別・ファイル形式のエラー
	ErrUnsupportedSourceKind = errors.New("unsupported source kind")

	// ErrEmptyDocument は抽出テキストが空でチャンクが1件も生成されなかった場合のエラー
	ErrEmptyDocument = errors.New("no documents to insert")

	// ErrLoadFailure はローダー・ネットワーク・ファイルI/Oの失敗を表す
	// 内部でリトライせず、そのまま呼び出し元に伝播する
	ErrLoadFailure = errors.New("failed to load source")
)

// Metadata はチャンクに残す最小限の出典メタデータ
// ローダー固有の雑多なメタデータは取り込み時にこの3フィールドへ正規化される
type Metadata struct {
	Source string `json:"source,omitempty"`
	URL    string `json:"url,omitempty"`
	Title  string `json:"title,omitempty"`
}

// Document は取り込みパイプラインを流れる1件のテキスト断片
// ローダーの生出力とチャンク分割後の両方をこの型で表す
type Document struct {
	PageContent string
	Metadata    Metadata
}

// SourceKind は取り込みソースの種別
type SourceKind string

const (
	SourceKindText SourceKind = "text"
	SourceKindFile SourceKind = "file"
	SourceKindURL  SourceKind = "url"
)

// FileInput はアップロードされたファイルの内容と宣言された形式
type FileInput struct {
	Name        string
	ContentType string
	Reader      io.Reader
}

// SourceInput は1回の取り込みリクエストを表す閉じたタグ付きバリアント
// Kind に応じて Text / File / URL のいずれかが使われる
type SourceInput struct {
	Kind           SourceKind
	CollectionName string

	// SourceName は出典ラベルの明示的な上書き（空なら種別ごとの既定値）
	SourceName string

	Text string
	File *FileInput
	URL  string
}

// Validate は宣言された種別に必要なフィールドが揃っているか検証する
func (in SourceInput) Validate() error {
	if in.CollectionName == "" {
		return errors.New("collectionName is required")
	}
	switch in.Kind {
	case SourceKindText:
		if in.Text == "" {
			return errors.New(`text content is required for sourceType "text"`)
		}
	case SourceKindFile:
		if in.File == nil || in.File.Reader == nil {
			return errors.New(`a file is required for sourceType "file"`)
		}
	case SourceKindURL:
		if in.URL == "" {
			return errors.New(`a URL is required for sourceType "url"`)
		}
	default:
		return errors.New("invalid sourceType: use 'text', 'file', or 'url'")
	}
	return nil
}

// Identity は取り込み結果に記録する出典ラベルを決定する
// 優先順: 明示的な SourceName > ファイル名 > URLホスト名 > "pasted-text"
func (in SourceInput) Identity() string {
	if name := strings.TrimSpace(in.SourceName); name != "" {
		return name
	}
	switch in.Kind {
	case SourceKindFile:
		if in.File != nil && in.File.Name != "" {
			return in.File.Name
		}
	case SourceKindURL:
		return nameFromURL(in.URL)
	}
	return DefaultSourceName
}

// nameFromURL はURLのホスト名を返す
// パースに失敗した場合は与えられた文字列をそのまま返す
func nameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return u.Hostname()
}
