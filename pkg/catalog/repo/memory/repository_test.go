package memory_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/music-catalog/pkg/catalog"
	"github.com/tendant/music-catalog/pkg/catalog/repo/memory"
	"github.com/tendant/music-catalog/pkg/catalog/repo/repotest"
)

func TestMemoryRepository_Contract(t *testing.T) {
	repotest.Run(t, func(t *testing.T) catalog.Repository {
		return memory.New()
	})
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	album, err := repo.InsertAlbum(ctx, repotest.NewAlbum("copies"))
	require.NoError(t, err)
	require.NoError(t, repo.AppendSongToAlbum(ctx, album.ID, uuid.New()))

	got, err := repo.GetAlbum(ctx, album.ID)
	require.NoError(t, err)
	got.Songs[0] = uuid.Nil
	got.Title = "changed"

	again, err := repo.GetAlbum(ctx, album.ID)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, again.Songs[0])
	assert.Equal(t, "copies", again.Title)
}

func TestMemoryRepository_ListsInInsertionOrder(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	album, err := repo.InsertAlbum(ctx, repotest.NewAlbum("ordered"))
	require.NoError(t, err)

	var want []uuid.UUID
	for _, title := range []string{"a", "b", "c", "d"} {
		song, err := repo.InsertSong(ctx, repotest.NewSong(title, &album.ID))
		require.NoError(t, err)
		want = append(want, song.ID)
	}

	songs, err := repo.ListSongsByAlbum(ctx, album.ID)
	require.NoError(t, err)
	var got []uuid.UUID
	for _, s := range songs {
		got = append(got, s.ID)
	}
	assert.Equal(t, want, got)
}
