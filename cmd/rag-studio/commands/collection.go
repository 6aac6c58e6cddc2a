package commands

import (
	"context"
	"fmt"

	"github.com/jinford/rag-studio/internal/core/vectorstore"
	"github.com/urfave/cli/v3"
)

// CollectionCreateAction はコレクションを作成するコマンドのアクション
func CollectionCreateAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	result, err := appCtx.Collections.Create(ctx,
		cmd.String("name"),
		cmd.Int("size"),
		vectorstore.Distance(cmd.String("distance")),
	)
	if err != nil {
		return err
	}

	fmt.Printf("%s (collection=%s size=%d distance=%s)\n",
		result.Message, result.CollectionName, result.Size, result.Distance)
	if result.Warning != "" {
		fmt.Printf("warning: %s\n", result.Warning)
	}
	return nil
}

// CollectionClearAction は全ポイントを削除するコマンドのアクション
func CollectionClearAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	name := cmd.String("name")
	if err := appCtx.Collections.Clear(ctx, name); err != nil {
		return err
	}

	fmt.Printf("All points deleted from %q.\n", name)
	return nil
}

// CollectionDropAction はコレクションを削除するコマンドのアクション
// --confirm DROP が必要
func CollectionDropAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	name := cmd.String("name")
	if err := appCtx.Collections.Drop(ctx, name, cmd.String("confirm")); err != nil {
		return err
	}

	fmt.Printf("Collection %q deleted.\n", name)
	return nil
}

// CollectionSourcesAction は出典集計を表示するコマンドのアクション
func CollectionSourcesAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	report, err := appCtx.Collections.ListSources(ctx, cmd.String("name"))
	if err != nil {
		return err
	}

	fmt.Printf("collection %s: %d points\n", report.CollectionName, report.TotalPoints)
	for _, item := range report.Items {
		fmt.Printf("  %6d  %s\n", item.Count, item.Source)
	}
	return nil
}
