package ingestion

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitter_SplitTextShortTextSingleChunk(t *testing.T) {
	s := NewSplitter()

	chunks := s.SplitText("hello world")
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello world", chunks[0])
}

func TestSplitter_SplitTextEmpty(t *testing.T) {
	s := NewSplitter()

	assert.Nil(t, s.SplitText(""))
}

func TestSplitter_SplitTextWordBoundaryWithOverlap(t *testing.T) {
	s := NewSplitterWithSize(10, 3)

	chunks := s.SplitText("aa bb cc dd ee")
	require.Equal(t, []string{"aa bb cc", "cc dd ee"}, chunks)

	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 10)
	}
}

func TestSplitter_SplitTextPrefersParagraphBoundary(t *testing.T) {
	s := NewSplitterWithSize(10, 0)

	chunks := s.SplitText("para1\n\npara2")
	assert.Equal(t, []string{"para1", "para2"}, chunks)
}

func TestSplitter_SplitTextCountsRunesNotBytes(t *testing.T) {
	// 境界文字を含まないテキストは1文字ずつに分解されてから詰め直される
	s := NewSplitterWithSize(5, 2)

	chunks := s.SplitText("あいうえおかきくけこさし")
	require.Equal(t, []string{"あいうえお", "えおかきく", "きくけこさ", "こさし"}, chunks)

	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 5)
	}
}

func TestSplitter_SplitTextEveryChunkWithinLimit(t *testing.T) {
	s := NewSplitter()

	var sb strings.Builder
	for i := 0; i < 200; i++ {
		sb.WriteString("The quick brown fox jumps over the lazy dog. ")
		if i%10 == 9 {
			sb.WriteString("\n\n")
		}
	}

	chunks := s.SplitText(sb.String())
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), ChunkSize)
	}
}

// joinChunks は隣接チャンク間の最長のオーバーラップを取り除きながら連結する
func joinChunks(chunks []string) string {
	out := []rune(chunks[0])
	for _, chunk := range chunks[1:] {
		next := []rune(chunk)

		limit := len(next)
		if len(out) < limit {
			limit = len(out)
		}
		skip := 0
		for k := limit; k > 0; k-- {
			if string(out[len(out)-k:]) == string(next[:k]) {
				skip = k
				break
			}
		}
		out = append(out, next[skip:]...)
	}
	return string(out)
}

func TestSplitter_SplitTextReconstructsOriginal(t *testing.T) {
	// オーバーラップを除いた連結が元テキストに等しいこと
	// （連続する境界文字は分割時に1つへ正規化されるため、入力は境界の重複なしで選ぶ）
	tests := []struct {
		name      string
		chunkSize int
		overlap   int
		text      string
	}{
		{name: "word separated", chunkSize: 10, overlap: 3, text: "aa bb cc dd ee"},
		{name: "multibyte runes", chunkSize: 5, overlap: 2, text: "あいうえおかきくけこさし"},
		{name: "longer word run", chunkSize: 11, overlap: 4, text: "one two six ten ace sky fox"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSplitterWithSize(tt.chunkSize, tt.overlap)

			chunks := s.SplitText(tt.text)
			require.NotEmpty(t, chunks)
			assert.Equal(t, tt.text, joinChunks(chunks))
		})
	}
}

func TestSplitter_SplitDocumentsCopiesMetadata(t *testing.T) {
	s := NewSplitterWithSize(10, 0)

	docs := s.SplitDocuments([]Document{{
		PageContent: "aa bb cc dd ee ff gg",
		Metadata:    Metadata{Source: "note.txt", Title: "Note"},
	}})

	require.Greater(t, len(docs), 1)
	for _, d := range docs {
		assert.Equal(t, "note.txt", d.Metadata.Source)
		assert.Equal(t, "Note", d.Metadata.Title)
	}
}
