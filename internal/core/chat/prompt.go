package chat

import (
	"fmt"
	"strings"

	"github.com/jinford/rag-studio/internal/core/vectorstore"
)

// RefusalAnswer はコンテキストから回答できない場合にモデルへ返させる定型文
// この文はエラーではなく正常応答として扱われる（「知らない」と「壊れている」の区別）
const RefusalAnswer = "I do not have enough information to answer this question."

// BuildGroundedPrompt は検索済みチャンクと質問から接地プロンプトを構築する
//
// 各チャンクを番号付きのSnippetヘッダーの下に連結し、
// コンテキスト外の知識を使わないこと・不足時はRefusalAnswerを返すことを指示する
// この指示がgroundingの唯一の強制手段であり、遵守はモデル側に依存する
func BuildGroundedPrompt(query string, points []vectorstore.ScoredPoint) string {
	var ctx strings.Builder
	for i, p := range points {
		if i > 0 {
			ctx.WriteString("\n\n")
		}
		ctx.WriteString(fmt.Sprintf("--- Snippet %d ---\n", i+1))
		ctx.WriteString(p.Payload.PageContent)
	}

	var sb strings.Builder
	sb.WriteString("You are a retrieval-augmented assistant. Answer ONLY using the provided CONTEXT.\n")
	sb.WriteString(fmt.Sprintf("If the answer is not in the context, reply: %q\n\n", RefusalAnswer))
	sb.WriteString("CONTEXT:\n")
	sb.WriteString(ctx.String())
	sb.WriteString("\n\nQUESTION: ")
	sb.WriteString(query)
	sb.WriteString("\nANSWER:")

	return sb.String()
}
