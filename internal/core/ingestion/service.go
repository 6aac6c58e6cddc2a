package ingestion

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jinford/rag-studio/internal/core/vectorstore"
)

// Embedder はテキストのEmbedding生成インターフェース
type Embedder interface {
	// BatchEmbed は複数テキストのEmbeddingをまとめて生成する
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension はベクトル次元数を返す
	Dimension() int

	// MaxBatchSize は1回のBatchEmbedに渡せる最大件数を返す
	MaxBatchSize() int
}

// FileLoader はファイル内容をDocument群に展開するローダー
// PDFはページ単位、CSVは行単位で1件以上のDocumentを生成する
type FileLoader interface {
	Load(ctx context.Context, file *FileInput) ([]Document, error)
}

// WebLoader は起点URLから到達可能なページをDocument群として収集するクローラー
type WebLoader interface {
	Crawl(ctx context.Context, rawURL string) ([]Document, error)
}

// IngestResult は1回の取り込みの結果
type IngestResult struct {
	Inserted       int
	Identity       string
	CollectionName string
}

// IngestService は取り込みパイプライン（正規化→分割→Embedding→挿入）を実行する
type IngestService struct {
	splitter  *Splitter
	embedder  Embedder
	store     vectorstore.Store
	pdfLoader FileLoader
	csvLoader FileLoader
	webLoader WebLoader
	logger    *slog.Logger
}

// NewIngestService は新しいIngestServiceを作成する
func NewIngestService(
	embedder Embedder,
	store vectorstore.Store,
	pdfLoader FileLoader,
	csvLoader FileLoader,
	webLoader WebLoader,
	logger *slog.Logger,
) *IngestService {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestService{
		splitter:  NewSplitter(),
		embedder:  embedder,
		store:     store,
		pdfLoader: pdfLoader,
		csvLoader: csvLoader,
		webLoader: webLoader,
		logger:    logger,
	}
}

// Ingest はソースを取り込み、チャンクをEmbeddingとともにコレクションへ挿入する
//
// 挿入はUpsertBatchSize件ずつ順次実行され、途中で失敗した場合でも
// 先行バッチの挿入結果はそのまま残る（全体のロールバックは行わない）
func (s *IngestService) Ingest(ctx context.Context, in SourceInput) (*IngestResult, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingField, err)
	}

	identity := in.Identity()

	docs, err := s.normalize(ctx, in, identity)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrEmptyDocument
	}

	s.logger.Info("documents normalized",
		slog.String("identity", identity),
		slog.String("collection", in.CollectionName),
		slog.Int("chunks", len(docs)),
	)

	vectors, err := s.embedAll(ctx, docs)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks for %q: %w", identity, err)
	}

	if err := s.insertInBatches(ctx, in.CollectionName, docs, vectors); err != nil {
		return nil, err
	}

	return &IngestResult{
		Inserted:       len(docs),
		Identity:       identity,
		CollectionName: in.CollectionName,
	}, nil
}

// normalize はソース種別ごとの読み込み・分割・メタデータ正規化を行う
func (s *IngestService) normalize(ctx context.Context, in SourceInput, identity string) ([]Document, error) {
	switch in.Kind {
	case SourceKindText:
		doc := Document{
			PageContent: in.Text,
			Metadata:    Metadata{Source: identity},
		}
		return s.splitter.SplitDocuments([]Document{doc}), nil

	case SourceKindFile:
		return s.normalizeFile(ctx, in, identity)

	case SourceKindURL:
		raw, err := s.webLoader.Crawl(ctx, in.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: crawl %s: %s", ErrLoadFailure, in.URL, err)
		}
		split := s.splitter.SplitDocuments(raw)
		return CleanDocuments(split, identity), nil

	default:
		return nil, ErrUnsupportedSourceKind
	}
}

func (s *IngestService) normalizeFile(ctx context.Context, in SourceInput, identity string) ([]Document, error) {
	switch in.File.ContentType {
	case "application/pdf":
		raw, err := s.pdfLoader.Load(ctx, in.File)
		if err != nil {
			return nil, fmt.Errorf("%w: pdf %s: %s", ErrLoadFailure, in.File.Name, err)
		}
		// PDF/CSVのローダーはページ・行ごとに雑多なメタデータを持つため、
		// 分割してから出典情報を1つに正規化する
		return CleanDocuments(s.splitter.SplitDocuments(raw), identity), nil

	case "text/csv":
		raw, err := s.csvLoader.Load(ctx, in.File)
		if err != nil {
			return nil, fmt.Errorf("%w: csv %s: %s", ErrLoadFailure, in.File.Name, err)
		}
		return CleanDocuments(s.splitter.SplitDocuments(raw), identity), nil

	case "text/plain":
		data, err := io.ReadAll(in.File.Reader)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %s", ErrLoadFailure, in.File.Name, err)
		}
		doc := Document{
			PageContent: string(data),
			Metadata:    Metadata{Source: identity},
		}
		return s.splitter.SplitDocuments([]Document{doc}), nil

	default:
		return nil, fmt.Errorf("%w: %s (use PDF, CSV, or TXT)", ErrUnsupportedSourceKind, in.File.ContentType)
	}
}

// embedAll は全チャンクのEmbeddingをEmbedderの上限に収まるバッチで生成する
func (s *IngestService) embedAll(ctx context.Context, docs []Document) ([][]float32, error) {
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.PageContent
	}

	batchSize := s.embedder.MaxBatchSize()
	if batchSize <= 0 {
		batchSize = UpsertBatchSize
	}

	vectors := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += batchSize {
		end := min(i+batchSize, len(texts))
		batch, err := s.embedder.BatchEmbed(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// insertInBatches はチャンクをUpsertBatchSize件ずつ順次挿入する
func (s *IngestService) insertInBatches(ctx context.Context, collection string, docs []Document, vectors [][]float32) error {
	if len(docs) != len(vectors) {
		return fmt.Errorf("documents and vectors length mismatch: %d != %d", len(docs), len(vectors))
	}

	for i := 0; i < len(docs); i += UpsertBatchSize {
		end := min(i+UpsertBatchSize, len(docs))

		points := make([]vectorstore.Point, 0, end-i)
		for j := i; j < end; j++ {
			points = append(points, vectorstore.Point{
				ID:     uuid.NewString(),
				Vector: vectors[j],
				Payload: vectorstore.Payload{
					PageContent: docs[j].PageContent,
					Source:      docs[j].Metadata.Source,
					URL:         docs[j].Metadata.URL,
					Title:       docs[j].Metadata.Title,
				},
			})
		}

		if err := s.store.Upsert(ctx, collection, points); err != nil {
			return fmt.Errorf("failed to insert batch %d into %q (%d points already inserted): %w",
				i/UpsertBatchSize+1, collection, i, err)
		}

		s.logger.Info("inserted batch",
			slog.String("collection", collection),
			slog.Int("batch", i/UpsertBatchSize+1),
			slog.Int("points", end-i),
		)
	}
	return nil
}
