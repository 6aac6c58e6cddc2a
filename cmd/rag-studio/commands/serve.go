package commands

import (
	"context"

	"github.com/jinford/rag-studio/internal/interface/httpapi"
	"github.com/urfave/cli/v3"
)

// ServeAction はHTTP APIサーバを起動するコマンドのアクション
func ServeAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	addr := cmd.String("addr")
	if addr == "" {
		addr = appCtx.Config.HTTPAddr
	}

	handler := httpapi.NewHandler(appCtx.Ingest, appCtx.Chat, appCtx.Collections)
	server := httpapi.NewServer(handler, appCtx.Logger)

	return server.ListenAndServe(ctx, addr)
}
