package ingestion

import (
	"strings"
	"unicode/utf8"
)

// Splitter は再帰的文字分割によるチャンカー
// 段落 → 行 → 単語 → 文字の順に、より大きな意味境界での分割を優先しながら
// 各チャンクが chunkSize 文字以下になるまで分割する
// 隣接チャンクは overlap 文字分の末尾テキストを共有する
type Splitter struct {
	chunkSize  int
	overlap    int
	separators []string
}

// NewSplitter は既定設定（ChunkSize / ChunkOverlap）のSplitterを作成する
func NewSplitter() *Splitter {
	return NewSplitterWithSize(ChunkSize, ChunkOverlap)
}

// NewSplitterWithSize はチャンクサイズとオーバーラップを指定してSplitterを作成する
func NewSplitterWithSize(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = ChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = chunkSize / 5
	}
	return &Splitter{
		chunkSize:  chunkSize,
		overlap:    overlap,
		separators: []string{"\n\n", "\n", " ", ""},
	}
}

// SplitDocuments は各Documentをチャンク群に分割する
// メタデータは分割元のDocumentから全チャンクへそのままコピーされる
// chunkSize以下のDocumentはそのまま1チャンクになる
func (s *Splitter) SplitDocuments(docs []Document) []Document {
	var out []Document
	for _, doc := range docs {
		for _, piece := range s.SplitText(doc.PageContent) {
			out = append(out, Document{
				PageContent: piece,
				Metadata:    doc.Metadata,
			})
		}
	}
	return out
}

// SplitText はテキストをchunkSize以下の断片に分割する
// テキストを欠落させない: オーバーラップの重複を除いた全断片の被覆は元テキスト全体に等しい
func (s *Splitter) SplitText(text string) []string {
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= s.chunkSize {
		return []string{text}
	}
	return s.splitRecursive(text, s.separators)
}

func (s *Splitter) splitRecursive(text string, separators []string) []string {
	// このテキストに実際に含まれる最も大きな境界を選ぶ
	separator := separators[len(separators)-1]
	var next []string
	for i, sep := range separators {
		if sep == "" || strings.Contains(text, sep) {
			separator = sep
			next = separators[i+1:]
			break
		}
	}

	splits := splitOn(text, separator)

	var final []string
	var good []string
	for _, piece := range splits {
		if utf8.RuneCountInString(piece) <= s.chunkSize {
			good = append(good, piece)
			continue
		}
		// chunkSizeを超える断片は、まず溜まっている断片を確定してから
		// 一段細かい境界で再帰的に分割する
		if len(good) > 0 {
			final = append(final, s.merge(good, separator)...)
			good = nil
		}
		if len(next) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, s.splitRecursive(piece, next)...)
		}
	}
	if len(good) > 0 {
		final = append(final, s.merge(good, separator)...)
	}
	return final
}

// merge は分割済みの断片列をchunkSize以下のチャンクへ貪欲に詰める
// チャンク確定後は合計がoverlap以下になるまで先頭の断片を落とし、
// 残りを次チャンクの先頭（オーバーラップ部分）として引き継ぐ
func (s *Splitter) merge(splits []string, separator string) []string {
	sepLen := utf8.RuneCountInString(separator)

	var out []string
	var current []string
	total := 0

	for _, piece := range splits {
		pieceLen := utf8.RuneCountInString(piece)

		if len(current) > 0 && total+sepLen+pieceLen > s.chunkSize {
			out = append(out, strings.Join(current, separator))

			// オーバーラップ分を残して先頭から捨てる
			for len(current) > 0 && (total > s.overlap || total+sepLen+pieceLen > s.chunkSize) {
				head := utf8.RuneCountInString(current[0])
				total -= head
				if len(current) > 1 {
					total -= sepLen
				}
				current = current[1:]
			}
		}

		if len(current) > 0 {
			total += sepLen
		}
		current = append(current, piece)
		total += pieceLen
	}

	if len(current) > 0 {
		out = append(out, strings.Join(current, separator))
	}
	return out
}

// splitOn はテキストを境界文字列で分割する
// 空の境界は1文字ずつの分割を意味する
func splitOn(text, separator string) []string {
	if separator == "" {
		runes := []rune(text)
		out := make([]string, len(runes))
		for i, r := range runes {
			out[i] = string(r)
		}
		return out
	}
	parts := strings.Split(text, separator)
	// 連続する境界による空断片はチャンクに寄与しないため除く
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
