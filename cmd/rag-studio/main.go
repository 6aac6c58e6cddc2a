package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jinford/rag-studio/cmd/rag-studio/commands"
	"github.com/urfave/cli/v3"
)

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 構造化ログの設定
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	app := &cli.Command{
		Name:  "rag-studio",
		Usage: "ドキュメント取り込みと接地付き質問応答のためのRAGアプリケーション",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "HTTP APIサーバを起動",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:  "addr",
						Usage: "リッスンアドレス（未指定時はHTTP_ADDR）",
					},
				},
				Action: commands.ServeAction,
			},
			{
				Name:  "ingest",
				Usage: "テキスト・ファイル・URLをコレクションへ取り込む",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:     "collection",
						Usage:    "コレクション名",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "name",
						Usage: "出典ラベルの上書き",
					},
					&cli.StringFlag{
						Name:  "text",
						Usage: "取り込むテキスト",
					},
					&cli.StringFlag{
						Name:  "file",
						Usage: "取り込むファイルパス（PDF/CSV/TXT）",
					},
					&cli.StringFlag{
						Name:  "url",
						Usage: "クロールする起点URL",
					},
				},
				Action: commands.IngestAction,
			},
			{
				Name:      "ask",
				Usage:     "コレクションに対して質問する",
				ArgsUsage: "<question>",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:     "collection",
						Usage:    "コレクション名",
						Required: true,
					},
				},
				Action: commands.AskAction,
			},
			{
				Name:  "collection",
				Usage: "コレクション管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "create",
						Usage: "コレクションを作成",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "name",
								Usage:    "コレクション名",
								Required: true,
							},
							&cli.IntFlag{
								Name:  "size",
								Usage: "ベクトル次元数",
								Value: 1536,
							},
							&cli.StringFlag{
								Name:  "distance",
								Usage: "距離メトリック（Cosine/Euclid/Dot）",
								Value: "Cosine",
							},
						},
						Action: commands.CollectionCreateAction,
					},
					{
						Name:  "clear",
						Usage: "全ポイントを削除（定義は保持）",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "name",
								Usage:    "コレクション名",
								Required: true,
							},
						},
						Action: commands.CollectionClearAction,
					},
					{
						Name:  "drop",
						Usage: "コレクションを完全に削除",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "name",
								Usage:    "コレクション名",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "confirm",
								Usage: `削除を確定するには "DROP" を指定`,
							},
						},
						Action: commands.CollectionDropAction,
					},
					{
						Name:  "sources",
						Usage: "出典ごとのポイント数を表示",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "name",
								Usage:    "コレクション名",
								Required: true,
							},
						},
						Action: commands.CollectionSourcesAction,
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
