// Package repotest holds the behavioural contract every catalog.Repository
// backend must satisfy. Backend test files call Run with a constructor that
// returns an empty repository.
package repotest

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/music-catalog/pkg/catalog"
)

// Run exercises repo against the Repository contract
func Run(t *testing.T, newRepo func(t *testing.T) catalog.Repository) {
	t.Helper()

	t.Run("SongRoundTrip", func(t *testing.T) { testSongRoundTrip(t, newRepo(t)) })
	t.Run("SongNotFound", func(t *testing.T) { testSongNotFound(t, newRepo(t)) })
	t.Run("AlbumRoundTrip", func(t *testing.T) { testAlbumRoundTrip(t, newRepo(t)) })
	t.Run("AppendAndRemove", func(t *testing.T) { testAppendAndRemove(t, newRepo(t)) })
	t.Run("MissingAlbum", func(t *testing.T) { testMissingAlbum(t, newRepo(t)) })
	t.Run("SongsByAlbum", func(t *testing.T) { testSongsByAlbum(t, newRepo(t)) })
	t.Run("ConcurrentAppend", func(t *testing.T) { testConcurrentAppend(t, newRepo(t)) })
}

// NewAlbum returns an album ready for InsertAlbum
func NewAlbum(title string) *catalog.Album {
	return &catalog.Album{
		Title:       title,
		Artist:      "Test Artist",
		ReleaseYear: 2024,
		ImageURL:    "https://cdn.example.com/image/" + title + ".png",
		Songs:       []uuid.UUID{},
	}
}

// NewSong returns a song ready for InsertSong
func NewSong(title string, albumID *uuid.UUID) *catalog.Song {
	return &catalog.Song{
		Title:    title,
		Artist:   "Test Artist",
		AudioURL: "https://cdn.example.com/audio/" + title + ".mp3",
		ImageURL: "https://cdn.example.com/image/" + title + ".png",
		Duration: 180,
		AlbumID:  albumID,
	}
}

func testSongRoundTrip(t *testing.T, repo catalog.Repository) {
	ctx := context.Background()

	created, err := repo.InsertSong(ctx, NewSong("roundtrip", nil))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := repo.GetSong(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "roundtrip", got.Title)
	assert.Equal(t, "Test Artist", got.Artist)
	assert.Equal(t, 180, got.Duration)
	assert.Equal(t, created.AudioURL, got.AudioURL)
	assert.Nil(t, got.AlbumID)

	deleted, err := repo.DeleteSong(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.DeleteSong(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func testSongNotFound(t *testing.T, repo catalog.Repository) {
	_, err := repo.GetSong(context.Background(), uuid.New())
	assert.ErrorIs(t, err, catalog.ErrSongNotFound)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func testAlbumRoundTrip(t *testing.T, repo catalog.Repository) {
	ctx := context.Background()

	created, err := repo.InsertAlbum(ctx, NewAlbum("first"))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)

	got, err := repo.GetAlbum(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Title)
	assert.Equal(t, 2024, got.ReleaseYear)
	assert.Empty(t, got.Songs)

	deleted, err := repo.DeleteAlbum(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = repo.GetAlbum(ctx, created.ID)
	assert.ErrorIs(t, err, catalog.ErrAlbumNotFound)

	deleted, err = repo.DeleteAlbum(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func testAppendAndRemove(t *testing.T, repo catalog.Repository) {
	ctx := context.Background()

	album, err := repo.InsertAlbum(ctx, NewAlbum("append"))
	require.NoError(t, err)

	first, second := uuid.New(), uuid.New()
	require.NoError(t, repo.AppendSongToAlbum(ctx, album.ID, first))
	require.NoError(t, repo.AppendSongToAlbum(ctx, album.ID, second))
	// Appending twice is a no-op
	require.NoError(t, repo.AppendSongToAlbum(ctx, album.ID, first))

	got, err := repo.GetAlbum(ctx, album.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{first, second}, got.Songs)

	require.NoError(t, repo.RemoveSongFromAlbum(ctx, album.ID, first))
	// Removing an absent song is a no-op
	require.NoError(t, repo.RemoveSongFromAlbum(ctx, album.ID, uuid.New()))

	got, err = repo.GetAlbum(ctx, album.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{second}, got.Songs)
}

func testMissingAlbum(t *testing.T, repo catalog.Repository) {
	ctx := context.Background()

	err := repo.AppendSongToAlbum(ctx, uuid.New(), uuid.New())
	assert.ErrorIs(t, err, catalog.ErrAlbumNotFound)

	err = repo.RemoveSongFromAlbum(ctx, uuid.New(), uuid.New())
	assert.ErrorIs(t, err, catalog.ErrAlbumNotFound)
}

func testSongsByAlbum(t *testing.T, repo catalog.Repository) {
	ctx := context.Background()

	album, err := repo.InsertAlbum(ctx, NewAlbum("listing"))
	require.NoError(t, err)
	other, err := repo.InsertAlbum(ctx, NewAlbum("other"))
	require.NoError(t, err)

	var ids []uuid.UUID
	for _, title := range []string{"one", "two", "three"} {
		song, err := repo.InsertSong(ctx, NewSong(title, &album.ID))
		require.NoError(t, err)
		ids = append(ids, song.ID)
	}
	stray, err := repo.InsertSong(ctx, NewSong("stray", &other.ID))
	require.NoError(t, err)
	_, err = repo.InsertSong(ctx, NewSong("single", nil))
	require.NoError(t, err)

	songs, err := repo.ListSongsByAlbum(ctx, album.ID)
	require.NoError(t, err)
	require.Len(t, songs, 3)
	var listed []uuid.UUID
	for _, s := range songs {
		listed = append(listed, s.ID)
		require.NotNil(t, s.AlbumID)
		assert.Equal(t, album.ID, *s.AlbumID)
	}
	assert.ElementsMatch(t, ids, listed)

	n, err := repo.DeleteSongsByAlbum(ctx, album.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	songs, err = repo.ListSongsByAlbum(ctx, album.ID)
	require.NoError(t, err)
	assert.Empty(t, songs)

	_, err = repo.GetSong(ctx, stray.ID)
	assert.NoError(t, err)
}

func testConcurrentAppend(t *testing.T, repo catalog.Repository) {
	ctx := context.Background()

	album, err := repo.InsertAlbum(ctx, NewAlbum("concurrent"))
	require.NoError(t, err)

	const writers = 16
	ids := make([]uuid.UUID, writers)
	var wg sync.WaitGroup
	for i := range ids {
		ids[i] = uuid.New()
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			assert.NoError(t, repo.AppendSongToAlbum(ctx, album.ID, id))
		}(ids[i])
	}
	wg.Wait()

	got, err := repo.GetAlbum(ctx, album.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, got.Songs)
}
