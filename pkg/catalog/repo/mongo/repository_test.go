package mongo

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/music-catalog/pkg/catalog"
	"github.com/tendant/music-catalog/pkg/catalog/repo/repotest"
)

// newTestRepository connects to CATALOG_TEST_MONGO_URL and uses a fresh
// database per test.
func newTestRepository(t *testing.T) catalog.Repository {
	t.Helper()

	uri := os.Getenv("CATALOG_TEST_MONGO_URL")
	if uri == "" {
		t.Skip("CATALOG_TEST_MONGO_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := Connect(ctx, uri)
	require.NoError(t, err)

	db := client.Database("catalog_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})

	repo := New(db)
	require.NoError(t, repo.EnsureIndexes(ctx))
	return repo
}

func TestMongoRepository_Contract(t *testing.T) {
	repotest.Run(t, newTestRepository)
}

func TestSongDocument_RoundTrip(t *testing.T) {
	albumID := uuid.New()
	song := &catalog.Song{
		ID:        uuid.New(),
		Title:     "Track",
		Artist:    "Artist",
		AudioURL:  "https://cdn.example.com/a.mp3",
		ImageURL:  "https://cdn.example.com/a.png",
		Duration:  42,
		AlbumID:   &albumID,
		CreatedAt: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
	}

	doc := toSongDocument(song)
	require.NotNil(t, doc.AlbumID)
	assert.Equal(t, albumID.String(), *doc.AlbumID)

	back, err := doc.toSong()
	require.NoError(t, err)
	assert.Equal(t, song.ID, back.ID)
	assert.Equal(t, albumID, *back.AlbumID)
	assert.Equal(t, song.CreatedAt, back.CreatedAt)
}

func TestAlbumDocument_MalformedSongID(t *testing.T) {
	doc := albumDocument{ID: uuid.NewString(), Songs: []string{"not-a-uuid"}}
	_, err := doc.toAlbum()
	assert.ErrorContains(t, err, "malformed song id")
}
