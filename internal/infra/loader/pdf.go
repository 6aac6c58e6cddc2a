// Package loader はファイル・Webソースを ingestion.Document 群へ展開するローダー実装
package loader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jinford/rag-studio/internal/core/ingestion"
	"github.com/ledongthuc/pdf"
)

// PDFLoader はPDFファイルをページ単位のDocumentへ展開する
type PDFLoader struct{}

// NewPDFLoader は新しいPDFLoaderを作成する
func NewPDFLoader() *PDFLoader {
	return &PDFLoader{}
}

var _ ingestion.FileLoader = (*PDFLoader)(nil)

// Load はPDFの各ページを1件のDocumentとして返す
// テキストを持たないページは読み飛ばす
func (l *PDFLoader) Load(_ context.Context, file *ingestion.FileInput) ([]ingestion.Document, error) {
	data, err := io.ReadAll(file.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf: %w", err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pdf: %w", err)
	}

	var docs []ingestion.Document
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to extract text from page %d: %w", i, err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		docs = append(docs, ingestion.Document{
			PageContent: text,
			Metadata: ingestion.Metadata{
				Source: file.Name,
			},
		})
	}
	return docs, nil
}
