package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/music-catalog/pkg/catalog"
	"github.com/tendant/music-catalog/pkg/catalog/repo/memory"
	memorystorage "github.com/tendant/music-catalog/pkg/catalog/storage/memory"
)

func file(name, contentType string) *catalog.File {
	return &catalog.File{
		Name:        name,
		ContentType: contentType,
		Size:        4,
		Open:        func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader("data")), nil },
	}
}

func setupAdminTest(t *testing.T) (catalog.Service, *memory.Repository, *catalog.Album, *catalog.Song) {
	repo := memory.New()
	svc, err := catalog.New(
		catalog.WithRepository(repo),
		catalog.WithBlobStore(memorystorage.New()),
		catalog.WithAuthorizer(catalog.AllowAll()),
	)
	require.NoError(t, err)

	ctx := context.Background()
	album, err := svc.CreateAlbum(ctx, catalog.CreateAlbumRequest{
		Title: "Blue Train", Artist: "John Coltrane", ReleaseYear: "1957", ImageFile: file("c.jpg", "image/jpeg"),
	})
	require.NoError(t, err)
	song, err := svc.CreateSong(ctx, catalog.CreateSongRequest{
		Title: "Moment's Notice", Artist: "John Coltrane", Duration: "550", AlbumID: album.ID.String(),
		AudioFile: file("a.mp3", "audio/mpeg"), ImageFile: file("c.jpg", "image/jpeg"),
	})
	require.NoError(t, err)
	return svc, repo, album, song
}

func TestRun_Verify(t *testing.T) {
	svc, repo, album, _ := setupAdminTest(t)
	var stdout, stderr bytes.Buffer

	code := run(context.Background(), svc, []string{"verify", album.ID.String()}, &stdout, &stderr)
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout.String(), "ok")

	stray := uuid.New()
	require.NoError(t, repo.AppendSongToAlbum(context.Background(), album.ID, stray))

	stdout.Reset()
	code = run(context.Background(), svc, []string{"verify", "--json", album.ID.String()}, &stdout, &stderr)
	assert.Equal(t, exitIntegrity, code)

	var results []VerifyResult
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &results))
	require.Len(t, results, 1)
	assert.False(t, results[0].Consistent)
	require.NotNil(t, results[0].SongID)
	assert.Equal(t, stray, *results[0].SongID)
}

func TestRun_ShowAndDelete(t *testing.T) {
	svc, _, album, song := setupAdminTest(t)
	ctx := context.Background()
	var stdout, stderr bytes.Buffer

	code := run(ctx, svc, []string{"album", album.ID.String()}, &stdout, &stderr)
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout.String(), "Blue Train")
	assert.Contains(t, stdout.String(), song.ID.String())

	stdout.Reset()
	code = run(ctx, svc, []string{"song", "--json", song.ID.String()}, &stdout, &stderr)
	assert.Equal(t, exitOK, code)
	var songs []catalog.Song
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &songs))
	require.Len(t, songs, 1)
	assert.Equal(t, "Moment's Notice", songs[0].Title)

	stdout.Reset()
	code = run(ctx, svc, []string{"delete-album", album.ID.String()}, &stdout, &stderr)
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout.String(), "Deleted album")

	code = run(ctx, svc, []string{"song", song.ID.String()}, &stdout, &stderr)
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr.String(), "not found")
}

func TestRun_BadArguments(t *testing.T) {
	svc, _, _, _ := setupAdminTest(t)
	var stdout, stderr bytes.Buffer

	assert.Equal(t, exitError, run(context.Background(), svc, []string{"verify"}, &stdout, &stderr))
	assert.Equal(t, exitError, run(context.Background(), svc, []string{"verify", "nope"}, &stdout, &stderr))
	assert.Equal(t, exitError, run(context.Background(), svc, []string{"frobnicate", uuid.NewString()}, &stdout, &stderr))
}
