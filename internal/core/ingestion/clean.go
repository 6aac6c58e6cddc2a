package ingestion

// CleanDocuments はローダー固有のメタデータを最小限の出典情報へ正規化する
//
// 各チャンクについて source / url / title の3フィールドのみを残し、
// いずれも空の場合は fallback を source に刻印する
// ローダーごとに異なる雑多なメタデータをここで統一しておくことで、
// 後段の出典集計が一貫したキーで動作する
func CleanDocuments(docs []Document, fallback string) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		meta := Metadata{
			Source: d.Metadata.Source,
			URL:    d.Metadata.URL,
			Title:  d.Metadata.Title,
		}
		if meta.Source == "" && fallback != "" {
			meta.Source = fallback
		}
		out = append(out, Document{
			PageContent: d.PageContent,
			Metadata:    meta,
		})
	}
	return out
}
