package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jinford/rag-studio/internal/core/ingestion"
	"github.com/urfave/cli/v3"
)

// IngestAction はローカルからソースを取り込むコマンドのアクション
// --text / --file / --url のいずれか1つを指定する
func IngestAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	in := ingestion.SourceInput{
		CollectionName: cmd.String("collection"),
		SourceName:     cmd.String("name"),
	}

	switch {
	case cmd.String("text") != "":
		in.Kind = ingestion.SourceKindText
		in.Text = cmd.String("text")

	case cmd.String("file") != "":
		path := cmd.String("file")
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()

		in.Kind = ingestion.SourceKindFile
		in.File = &ingestion.FileInput{
			Name:        filepath.Base(path),
			ContentType: contentTypeFromExt(path),
			Reader:      f,
		}

	case cmd.String("url") != "":
		in.Kind = ingestion.SourceKindURL
		in.URL = cmd.String("url")

	default:
		return fmt.Errorf("one of --text, --file, or --url is required")
	}

	result, err := appCtx.Ingest.Ingest(ctx, in)
	if err != nil {
		return err
	}

	fmt.Printf("Indexing of %s done. (%d chunks inserted into %s)\n",
		result.Identity, result.Inserted, result.CollectionName)
	return nil
}

// contentTypeFromExt は拡張子から宣言MIMEタイプを決める
func contentTypeFromExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "application/pdf"
	case ".csv":
		return "text/csv"
	default:
		return "text/plain"
	}
}
