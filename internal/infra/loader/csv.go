package loader

import (
	"context"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/jinford/rag-studio/internal/core/ingestion"
)

// CSVLoader はCSVファイルをデータ行単位のDocumentへ展開する
// 各行は「列名: 値」を改行で連結したテキストになる（1行目はヘッダーとして扱う）
type CSVLoader struct{}

// NewCSVLoader は新しいCSVLoaderを作成する
func NewCSVLoader() *CSVLoader {
	return &CSVLoader{}
}

var _ ingestion.FileLoader = (*CSVLoader)(nil)

// Load はヘッダー行を除く各行を1件のDocumentとして返す
func (l *CSVLoader) Load(_ context.Context, file *ingestion.FileInput) ([]ingestion.Document, error) {
	reader := csv.NewReader(file.Reader)
	reader.FieldsPerRecord = -1 // 行ごとの列数の揺れを許容する

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := records[0]

	var docs []ingestion.Document
	for _, row := range records[1:] {
		var sb strings.Builder
		for i, value := range row {
			if i > 0 {
				sb.WriteString("\n")
			}
			if i < len(header) {
				sb.WriteString(header[i])
			} else {
				sb.WriteString(fmt.Sprintf("column%d", i+1))
			}
			sb.WriteString(": ")
			sb.WriteString(value)
		}

		docs = append(docs, ingestion.Document{
			PageContent: sb.String(),
			Metadata: ingestion.Metadata{
				Source: file.Name,
			},
		})
	}
	return docs, nil
}
