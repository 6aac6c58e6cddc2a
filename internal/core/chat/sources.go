package chat

import "github.com/jinford/rag-studio/internal/core/vectorstore"

// UniqueSources は検索結果から出典ラベルを重複排除して返す
// ラベルは source > url > title > "unknown" の優先順で決まり、初出順を保つ
// これがチャット回答に添付される引用リストになる
func UniqueSources(points []vectorstore.ScoredPoint) []string {
	seen := make(map[string]struct{}, len(points))
	out := make([]string, 0, len(points))
	for _, p := range points {
		label := p.Payload.Identity("unknown")
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, label)
	}
	return out
}
