package loader

import (
	"context"
	"strings"
	"testing"

	"github.com/jinford/rag-studio/internal/core/ingestion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVLoader_LoadRowPerDocument(t *testing.T) {
	csv := "name,price\napple,100\npear,200\n"

	docs, err := NewCSVLoader().Load(context.Background(), &ingestion.FileInput{
		Name:        "fruits.csv",
		ContentType: "text/csv",
		Reader:      strings.NewReader(csv),
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "name: apple\nprice: 100", docs[0].PageContent)
	assert.Equal(t, "name: pear\nprice: 200", docs[1].PageContent)
	assert.Equal(t, "fruits.csv", docs[0].Metadata.Source)
}

func TestCSVLoader_LoadRaggedRows(t *testing.T) {
	// ヘッダーより列が多い行は合成列名で補う
	csv := "name\napple,100\n"

	docs, err := NewCSVLoader().Load(context.Background(), &ingestion.FileInput{
		Name:   "ragged.csv",
		Reader: strings.NewReader(csv),
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)

	assert.Equal(t, "name: apple\ncolumn2: 100", docs[0].PageContent)
}

func TestCSVLoader_LoadHeaderOnly(t *testing.T) {
	docs, err := NewCSVLoader().Load(context.Background(), &ingestion.FileInput{
		Name:   "empty.csv",
		Reader: strings.NewReader("name,price\n"),
	})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestCSVLoader_LoadInvalidCSV(t *testing.T) {
	_, err := NewCSVLoader().Load(context.Background(), &ingestion.FileInput{
		Name:   "broken.csv",
		Reader: strings.NewReader("a,\"unterminated\n"),
	})
	assert.Error(t, err)
}
