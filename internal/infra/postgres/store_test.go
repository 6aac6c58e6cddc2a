package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jinford/rag-studio/internal/core/vectorstore"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableName(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "docs", want: "rag_docs"},
		{in: "My Docs", want: "rag_my_docs"},
		{in: "test-col", want: "rag_test_col"},
		{in: "", wantErr: true},
		{in: "docs; DROP TABLE users", wantErr: true},
		{in: "données", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := tableName(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// startPostgres はpgvector入りのPostgreSQLコンテナを起動する
// Dockerが使えない環境ではテストをスキップする
func startPostgres(t *testing.T) ConnectionParams {
	t.Helper()

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker is not available: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker is not available: %v", err)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "pgvector/pgvector",
		Tag:        "pg16",
		Env: []string{
			"POSTGRES_USER=ragstudio",
			"POSTGRES_PASSWORD=ragstudio",
			"POSTGRES_DB=ragstudio_test",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pool.Purge(resource)
	})
	_ = resource.Expire(300)

	params := ConnectionParams{
		Host:     "localhost",
		User:     "ragstudio",
		Password: "ragstudio",
		DBName:   "ragstudio_test",
		SSLMode:  "disable",
	}
	_, err = fmt.Sscan(resource.GetPort("5432/tcp"), &params.Port)
	require.NoError(t, err)

	pool.MaxWait = 60 * time.Second
	err = pool.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		store, err := NewStore(ctx, params, 3)
		if err != nil {
			return err
		}
		store.Close()
		return nil
	})
	require.NoError(t, err)

	return params
}

func TestStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	params := startPostgres(t)
	ctx := context.Background()

	store, err := NewStore(ctx, params, 3)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	t.Run("ensure collection is idempotent", func(t *testing.T) {
		res, err := store.EnsureCollection(ctx, "docs", 3, vectorstore.DistanceCosine)
		require.NoError(t, err)
		assert.True(t, res.Created)

		res, err = store.EnsureCollection(ctx, "docs", 3, vectorstore.DistanceCosine)
		require.NoError(t, err)
		assert.False(t, res.Created)
		assert.Empty(t, res.DimensionWarning)

		res, err = store.EnsureCollection(ctx, "docs", 8, vectorstore.DistanceCosine)
		require.NoError(t, err)
		assert.False(t, res.Created)
		assert.NotEmpty(t, res.DimensionWarning)
	})

	t.Run("upsert and search", func(t *testing.T) {
		err := store.Upsert(ctx, "docs", []vectorstore.Point{
			{Vector: []float32{1, 0, 0}, Payload: vectorstore.Payload{PageContent: "alpha", Source: "a.txt"}},
			{Vector: []float32{0, 1, 0}, Payload: vectorstore.Payload{PageContent: "beta", Source: "b.txt"}},
			{Vector: []float32{0.9, 0.1, 0}, Payload: vectorstore.Payload{PageContent: "gamma", Source: "c.txt"}},
		})
		require.NoError(t, err)

		results, err := store.Search(ctx, "docs", []float32{1, 0, 0}, 2)
		require.NoError(t, err)
		require.Len(t, results, 2)

		assert.Equal(t, "alpha", results[0].Payload.PageContent)
		assert.Equal(t, "gamma", results[1].Payload.PageContent)
		assert.Greater(t, results[0].Score, results[1].Score)
	})

	t.Run("scroll paginates with keyset cursor", func(t *testing.T) {
		var all []vectorstore.Payload
		var offset vectorstore.ScrollOffset
		for {
			payloads, next, err := store.Scroll(ctx, "docs", 2, offset)
			require.NoError(t, err)
			all = append(all, payloads...)
			if next == nil {
				break
			}
			offset = next
		}
		assert.Len(t, all, 3)
	})

	t.Run("clear keeps table", func(t *testing.T) {
		require.NoError(t, store.Clear(ctx, "docs"))

		results, err := store.Search(ctx, "docs", []float32{1, 0, 0}, 5)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("search after drop is store unavailable", func(t *testing.T) {
		require.NoError(t, store.Drop(ctx, "docs"))

		_, err := store.Search(ctx, "docs", []float32{1, 0, 0}, 5)
		assert.ErrorIs(t, err, vectorstore.ErrStoreUnavailable)
	})

	t.Run("upsert auto-creates table", func(t *testing.T) {
		err := store.Upsert(ctx, "fresh", []vectorstore.Point{
			{Vector: []float32{0, 0, 1}, Payload: vectorstore.Payload{PageContent: "delta"}},
		})
		require.NoError(t, err)

		results, err := store.Search(ctx, "fresh", []float32{0, 0, 1}, 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "delta", results[0].Payload.PageContent)
	})
}
