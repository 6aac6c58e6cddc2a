// Package postgres はpgvector拡張を使ったPostgreSQLベクトルストアアダプター
// コレクションごとに1テーブル（rag_<slug>）を割り当てる
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jinford/rag-studio/internal/core/vectorstore"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// ConnectionParams はデータベース接続パラメータ
type ConnectionParams struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// Store はPostgreSQL + pgvectorに対する vectorstore.Store 実装
// 距離メトリックはコサイン距離（<=>演算子）に固定される
type Store struct {
	pool        *pgxpool.Pool
	defaultSize int
}

// NewStore は接続プールを作成し、pgvector型を登録したStoreを返す
func NewStore(ctx context.Context, params ConnectionParams, defaultSize int) (*Store, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		params.Host, params.Port, params.User, params.Password, params.DBName, params.SSLMode,
	)

	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection config: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %s", vectorstore.ErrStoreUnavailable, err)
	}

	if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to enable pgvector extension: %w", err)
	}

	if defaultSize <= 0 {
		defaultSize = 1536
	}
	return &Store{pool: pool, defaultSize: defaultSize}, nil
}

// Close は接続プールを閉じる
func (s *Store) Close() {
	s.pool.Close()
}

var _ vectorstore.Store = (*Store)(nil)

var tableNamePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// tableName はコレクション名をテーブル識別子へ変換する
// SQLに直接埋め込むため、変換後の形式を厳密に検証する
func tableName(collection string) (string, error) {
	slug := strings.ToLower(strings.TrimSpace(collection))
	slug = strings.ReplaceAll(slug, "-", "_")
	slug = strings.ReplaceAll(slug, " ", "_")
	if slug == "" || !tableNamePattern.MatchString(slug) {
		return "", fmt.Errorf("invalid collection name: %q", collection)
	}
	return "rag_" + slug, nil
}

// EnsureCollection はコレクション用のテーブルを冪等に作成する
func (s *Store) EnsureCollection(ctx context.Context, name string, size int, distance vectorstore.Distance) (*vectorstore.EnsureResult, error) {
	table, err := tableName(name)
	if err != nil {
		return nil, err
	}

	existingSize, found, err := s.embeddingDimension(ctx, table)
	if err != nil {
		return nil, err
	}
	if found {
		res := &vectorstore.EnsureResult{
			Created: false,
			Info: vectorstore.CollectionInfo{
				Name:     name,
				Size:     existingSize,
				Distance: vectorstore.DistanceCosine,
			},
		}
		if existingSize != size {
			res.DimensionWarning = fmt.Sprintf(
				"existing vector size is %d, but you requested %d", existingSize, size)
		}
		return res, nil
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id uuid PRIMARY KEY,
		embedding vector(%d) NOT NULL,
		page_content text NOT NULL DEFAULT '',
		source text NOT NULL DEFAULT '',
		url text NOT NULL DEFAULT '',
		title text NOT NULL DEFAULT ''
	)`, table, size)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("failed to create collection table %s: %w", table, err)
	}

	return &vectorstore.EnsureResult{
		Created: true,
		Info: vectorstore.CollectionInfo{
			Name:     name,
			Size:     size,
			Distance: vectorstore.DistanceCosine,
		},
	}, nil
}

// Upsert はポイント群を挿入する（テーブルがなければ自動作成）
func (s *Store) Upsert(ctx context.Context, name string, points []vectorstore.Point) error {
	if len(points) == 0 {
		return nil
	}

	table, err := tableName(name)
	if err != nil {
		return err
	}

	if _, found, err := s.embeddingDimension(ctx, table); err != nil {
		return err
	} else if !found {
		size := s.defaultSize
		if len(points[0].Vector) > 0 {
			size = len(points[0].Vector)
		}
		if _, err := s.EnsureCollection(ctx, name, size, vectorstore.DistanceCosine); err != nil {
			return err
		}
	}

	sql := fmt.Sprintf(`INSERT INTO %s (id, embedding, page_content, source, url, title)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			page_content = EXCLUDED.page_content,
			source = EXCLUDED.source,
			url = EXCLUDED.url,
			title = EXCLUDED.title`, table)

	batch := &pgx.Batch{}
	for _, p := range points {
		id := p.ID
		if id == "" {
			id = uuid.NewString()
		}
		batch.Queue(sql, id, pgvector.NewVector(p.Vector),
			p.Payload.PageContent, p.Payload.Source, p.Payload.URL, p.Payload.Title)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range points {
		if _, err := results.Exec(); err != nil {
			return wrapPgError(err)
		}
	}
	return nil
}

// Search はコサイン類似度の降順で上位k件を返す
// テーブルが存在しない場合は ErrStoreUnavailable を返す
// （qdrantバックエンドと異なり、削除済みコレクションへの検索はエラーとして扱う）
func (s *Store) Search(ctx context.Context, name string, vector []float32, k int) ([]vectorstore.ScoredPoint, error) {
	if k <= 0 {
		k = 5
	}

	table, err := tableName(name)
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf(`SELECT id, page_content, source, url, title,
		1 - (embedding <=> $1) AS score
		FROM %s ORDER BY embedding <=> $1 LIMIT $2`, table)

	rows, err := s.pool.Query(ctx, sql, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, wrapPgError(err)
	}
	defer rows.Close()

	var results []vectorstore.ScoredPoint
	for rows.Next() {
		var (
			id      uuid.UUID
			payload vectorstore.Payload
			score   float64
		)
		if err := rows.Scan(&id, &payload.PageContent, &payload.Source, &payload.URL, &payload.Title, &score); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		results = append(results, vectorstore.ScoredPoint{
			Point: vectorstore.Point{ID: id.String(), Payload: payload},
			Score: score,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapPgError(err)
	}
	return results, nil
}

// Scroll はid昇順のキーセットページングで全ペイロードを列挙する
// カーソルは最後に読んだ行のid文字列
func (s *Store) Scroll(ctx context.Context, name string, limit int, offset vectorstore.ScrollOffset) ([]vectorstore.Payload, vectorstore.ScrollOffset, error) {
	if limit <= 0 {
		limit = 1000
	}

	table, err := tableName(name)
	if err != nil {
		return nil, nil, err
	}

	var (
		rows pgx.Rows
	)
	if offset == nil {
		sql := fmt.Sprintf(`SELECT id, page_content, source, url, title FROM %s ORDER BY id LIMIT $1`, table)
		rows, err = s.pool.Query(ctx, sql, limit)
	} else {
		last, ok := offset.(string)
		if !ok {
			return nil, nil, fmt.Errorf("invalid scroll offset type %T", offset)
		}
		sql := fmt.Sprintf(`SELECT id, page_content, source, url, title FROM %s WHERE id > $1 ORDER BY id LIMIT $2`, table)
		rows, err = s.pool.Query(ctx, sql, last, limit)
	}
	if err != nil {
		return nil, nil, wrapPgError(err)
	}
	defer rows.Close()

	var (
		payloads []vectorstore.Payload
		lastID   uuid.UUID
	)
	for rows.Next() {
		var (
			id      uuid.UUID
			payload vectorstore.Payload
		)
		if err := rows.Scan(&id, &payload.PageContent, &payload.Source, &payload.URL, &payload.Title); err != nil {
			return nil, nil, fmt.Errorf("failed to scan scroll row: %w", err)
		}
		payloads = append(payloads, payload)
		lastID = id
	}
	if err := rows.Err(); err != nil {
		return nil, nil, wrapPgError(err)
	}

	var next vectorstore.ScrollOffset
	if len(payloads) == limit {
		next = lastID.String()
	}
	return payloads, next, nil
}

// Clear は全行を削除する（テーブルは保持）
func (s *Store) Clear(ctx context.Context, name string) error {
	table, err := tableName(name)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
		return wrapPgError(err)
	}
	return nil
}

// Drop はテーブルごと削除する
func (s *Store) Drop(ctx context.Context, name string) error {
	table, err := tableName(name)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
		return wrapPgError(err)
	}
	return nil
}

// embeddingDimension はembedding列のvector型typmodから次元数を取得する
func (s *Store) embeddingDimension(ctx context.Context, table string) (int, bool, error) {
	var dim int
	err := s.pool.QueryRow(ctx,
		`SELECT atttypmod FROM pg_attribute
		 WHERE attrelid = to_regclass($1) AND attname = 'embedding'`,
		table,
	).Scan(&dim)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, wrapPgError(err)
	}
	return dim, true, nil
}

// wrapPgError はPostgreSQLのエラーをストアのエラー分類へ写像する
// 42P01 (undefined_table) は接続可能だがコレクションが存在しない状態を含むため
// ErrStoreUnavailable として扱う
func wrapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "42P01" {
			return fmt.Errorf("%w: %s", vectorstore.ErrStoreUnavailable, pgErr.Message)
		}
		if strings.Contains(pgErr.Message, "dimensions") {
			return fmt.Errorf("%w: %s", vectorstore.ErrDimensionMismatch, pgErr.Message)
		}
	}
	return err
}
