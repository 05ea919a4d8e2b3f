package catalog_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/music-catalog/pkg/catalog"
	memorystorage "github.com/tendant/music-catalog/pkg/catalog/storage/memory"
)

func TestNew_RequiresRepositoryAndStore(t *testing.T) {
	_, err := catalog.New(catalog.WithBlobStore(newBlobStore()))
	assert.Error(t, err)

	_, err = catalog.New(catalog.WithRepository(newFaultyRepo()))
	assert.Error(t, err)
}

func TestService_AlbumSongScenario(t *testing.T) {
	f := setupServiceTest(t)
	ctx := context.Background()

	album, err := f.svc.CreateAlbum(ctx, albumRequest("X"))
	require.NoError(t, err)
	assert.Equal(t, "X", album.Title)
	assert.Equal(t, 2020, album.ReleaseYear)
	assert.Empty(t, album.Songs)
	assert.NotEmpty(t, album.ImageURL)

	song, err := f.svc.CreateSong(ctx, songRequest("T", &album.ID))
	require.NoError(t, err)
	require.NotNil(t, song.AlbumID)
	assert.Equal(t, album.ID, *song.AlbumID)
	assert.Equal(t, 210, song.Duration)

	got, err := f.svc.GetAlbum(ctx, album.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{song.ID}, got.Songs)

	require.NoError(t, f.svc.DeleteSong(ctx, song.ID))

	_, err = f.svc.GetSong(ctx, song.ID)
	assert.ErrorIs(t, err, catalog.ErrSongNotFound)

	got, err = f.svc.GetAlbum(ctx, album.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Songs)

	assert.Equal(t, []uuid.UUID{song.ID}, f.sink.created)
	assert.Equal(t, []uuid.UUID{song.ID}, f.sink.deleted)
}

func TestService_CreateSongWithoutAlbum(t *testing.T) {
	f := setupServiceTest(t)

	song, err := f.svc.CreateSong(context.Background(), songRequest("single", nil))
	require.NoError(t, err)
	assert.Nil(t, song.AlbumID)
	assert.NotEmpty(t, song.AudioURL)
	assert.NotEmpty(t, song.ImageURL)
	assert.Len(t, f.blobs.Keys(), 2)
}

func TestService_ValidationPrecedesUpload(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*catalog.CreateSongRequest)
	}{
		{"missing title", func(r *catalog.CreateSongRequest) { r.Title = "" }},
		{"blank artist", func(r *catalog.CreateSongRequest) { r.Artist = "   " }},
		{"missing duration", func(r *catalog.CreateSongRequest) { r.Duration = "" }},
		{"bad duration", func(r *catalog.CreateSongRequest) { r.Duration = "three minutes" }},
		{"missing audio", func(r *catalog.CreateSongRequest) { r.AudioFile = nil }},
		{"missing image", func(r *catalog.CreateSongRequest) { r.ImageFile = nil }},
		{"audio is an image", func(r *catalog.CreateSongRequest) { r.AudioFile = imageFile() }},
		{"image is audio", func(r *catalog.CreateSongRequest) { r.ImageFile = audioFile() }},
		{"bad album id", func(r *catalog.CreateSongRequest) { r.AlbumID = "42" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupServiceTest(t)
			req := songRequest("T", nil)
			tt.mutate(&req)

			_, err := f.svc.CreateSong(context.Background(), req)

			var validationErr *catalog.ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, catalog.KindValidation, catalog.Kind(err))
			assert.Zero(t, f.blobs.uploadCount())
			assert.Zero(t, f.repo.mutationCount())
		})
	}
}

func TestService_CreateAlbumValidation(t *testing.T) {
	f := setupServiceTest(t)

	req := albumRequest("X")
	req.ReleaseYear = "soon"
	_, err := f.svc.CreateAlbum(context.Background(), req)
	assert.Equal(t, catalog.KindValidation, catalog.Kind(err))

	req = albumRequest("")
	req.ImageFile = newFile("cover.mp3", "audio/mpeg", "x")
	_, err = f.svc.CreateAlbum(context.Background(), req)
	var validationErr *catalog.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, []string{"title"}, validationErr.Missing)

	assert.Zero(t, f.blobs.uploadCount())
}

func TestService_DeleteSongTwice(t *testing.T) {
	f := setupServiceTest(t)
	ctx := context.Background()

	song, err := f.svc.CreateSong(ctx, songRequest("T", nil))
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteSong(ctx, song.ID))

	err = f.svc.DeleteSong(ctx, song.ID)
	assert.ErrorIs(t, err, catalog.ErrSongNotFound)
	assert.Equal(t, catalog.KindNotFound, catalog.Kind(err))
}

func TestService_ConcurrentDeleteSong(t *testing.T) {
	f := setupServiceTest(t)
	ctx := context.Background()

	album, err := f.svc.CreateAlbum(ctx, albumRequest("X"))
	require.NoError(t, err)
	song, err := f.svc.CreateSong(ctx, songRequest("T", &album.ID))
	require.NoError(t, err)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.svc.DeleteSong(ctx, song.ID)
		}(i)
	}
	wg.Wait()

	var succeeded, notFound int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, catalog.ErrSongNotFound):
			notFound++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, notFound)
	assertConsistent(t, f, album.ID)
}

func TestService_DeleteAlbumCascades(t *testing.T) {
	f := setupServiceTest(t)
	ctx := context.Background()

	album, err := f.svc.CreateAlbum(ctx, albumRequest("A"))
	require.NoError(t, err)
	s1, err := f.svc.CreateSong(ctx, songRequest("s1", &album.ID))
	require.NoError(t, err)
	s2, err := f.svc.CreateSong(ctx, songRequest("s2", &album.ID))
	require.NoError(t, err)
	other, err := f.svc.CreateSong(ctx, songRequest("other", nil))
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteAlbum(ctx, album.ID))

	for _, id := range []uuid.UUID{s1.ID, s2.ID} {
		_, err := f.svc.GetSong(ctx, id)
		assert.ErrorIs(t, err, catalog.ErrSongNotFound)
	}
	_, err = f.svc.GetAlbum(ctx, album.ID)
	assert.ErrorIs(t, err, catalog.ErrAlbumNotFound)

	songs, err := f.repo.ListSongsByAlbum(ctx, album.ID)
	require.NoError(t, err)
	assert.Empty(t, songs)

	_, err = f.svc.GetSong(ctx, other.ID)
	assert.NoError(t, err)

	err = f.svc.DeleteAlbum(ctx, album.ID)
	assert.ErrorIs(t, err, catalog.ErrAlbumNotFound)
}

func TestService_CreateSongUnknownAlbumFails(t *testing.T) {
	f := setupServiceTest(t)
	missing := uuid.New()

	_, err := f.svc.CreateSong(context.Background(), songRequest("T", &missing))

	assert.ErrorIs(t, err, catalog.ErrAlbumNotFound)
	assert.Zero(t, f.blobs.uploadCount())
	assert.Zero(t, f.repo.mutationCount())
}

func TestService_LinkFailureRemovesSong(t *testing.T) {
	f := setupServiceTest(t)
	ctx := context.Background()

	album, err := f.svc.CreateAlbum(ctx, albumRequest("X"))
	require.NoError(t, err)
	albumKeys := len(f.blobs.Keys())

	// The album disappears between the existence check and the link.
	f.repo.set(func(r *faultyRepo) { r.appendErr = catalog.ErrAlbumNotFound })

	_, err = f.svc.CreateSong(ctx, songRequest("T", &album.ID))

	var songErr *catalog.SongError
	require.ErrorAs(t, err, &songErr)
	assert.Equal(t, "link_album", songErr.Op)
	assert.ErrorIs(t, err, catalog.ErrAlbumNotFound)
	assert.NotEqual(t, catalog.KindIntegrity, catalog.Kind(err))

	songs, err := f.repo.ListSongsByAlbum(ctx, album.ID)
	require.NoError(t, err)
	assert.Empty(t, songs, "the inserted song must be removed again")
	assert.Len(t, f.blobs.Keys(), albumKeys, "song assets must be discarded")
	assert.Empty(t, f.sink.created)
	assert.Empty(t, f.sink.violations)
}

func TestService_FailedCompensationEscalates(t *testing.T) {
	f := setupServiceTest(t)
	ctx := context.Background()

	album, err := f.svc.CreateAlbum(ctx, albumRequest("X"))
	require.NoError(t, err)

	f.repo.set(func(r *faultyRepo) {
		r.appendErr = errors.New("write conflict")
		r.deleteSongErr = errors.New("connection reset")
	})

	_, err = f.svc.CreateSong(ctx, songRequest("T", &album.ID))

	var integrityErr *catalog.IntegrityError
	require.ErrorAs(t, err, &integrityErr)
	assert.Equal(t, catalog.KindIntegrity, catalog.Kind(err))
	assert.Equal(t, album.ID, integrityErr.AlbumID)
	assert.Equal(t, "create_song", integrityErr.Op)
	assert.Contains(t, err.Error(), "write conflict")
	assert.Contains(t, err.Error(), "connection reset")

	orphans, err := f.repo.ListSongsByAlbum(ctx, album.ID)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, orphans[0].ID, integrityErr.SongID, "the error names the orphan song")

	require.Len(t, f.sink.violations, 1)
	assert.Equal(t, integrityErr.SongID, f.sink.violations[0].SongID)

	// The orphan stays referenced by its assets until reconciled.
	assert.Len(t, f.blobs.Keys(), 3)
}

func TestService_UploadFailureLeavesNoSong(t *testing.T) {
	tests := []struct {
		name       string
		failKinds  []catalog.AssetKind
		wantErrors int
	}{
		{"audio fails", []catalog.AssetKind{catalog.AssetAudio}, 1},
		{"image fails", []catalog.AssetKind{catalog.AssetImage}, 1},
		{"both fail", []catalog.AssetKind{catalog.AssetAudio, catalog.AssetImage}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupServiceTest(t)
			for _, kind := range tt.failKinds {
				f.blobs.failUploads(kind, fmt.Errorf("%s: SlowDown: please reduce your request rate", kind))
			}

			_, err := f.svc.CreateSong(context.Background(), songRequest("T", nil))

			require.Error(t, err)
			assert.Equal(t, catalog.KindUpload, catalog.Kind(err))
			assert.Contains(t, err.Error(), "SlowDown")

			var joined interface{ Unwrap() []error }
			require.ErrorAs(t, err, &joined)
			assert.Len(t, joined.Unwrap(), tt.wantErrors)

			assert.Empty(t, f.blobs.Keys(), "successful uploads are discarded")
			assert.Zero(t, f.repo.mutationCount())
		})
	}
}

func TestService_InsecureStoreURLLeavesNoObjects(t *testing.T) {
	store := memorystorage.NewWithBaseURL("http://blobs.internal")
	repo := newFaultyRepo()
	svc, err := catalog.New(
		catalog.WithRepository(repo),
		catalog.WithBlobStore(store),
		catalog.WithAuthorizer(catalog.AllowAll()),
	)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.CreateSong(ctx, songRequest("T", nil))
	assert.ErrorIs(t, err, catalog.ErrInsecureURL)
	assert.Equal(t, catalog.KindUpload, catalog.Kind(err))

	_, err = svc.CreateAlbum(ctx, albumRequest("X"))
	assert.ErrorIs(t, err, catalog.ErrInsecureURL)
	assert.Equal(t, catalog.KindUpload, catalog.Kind(err))

	assert.Empty(t, store.Keys())
	assert.Zero(t, repo.mutationCount())
}

func TestService_InsertFailureDiscardsAssets(t *testing.T) {
	f := setupServiceTest(t)
	f.repo.set(func(r *faultyRepo) { r.insertSongErr = errors.New("disk full") })

	_, err := f.svc.CreateSong(context.Background(), songRequest("T", nil))

	var songErr *catalog.SongError
	require.ErrorAs(t, err, &songErr)
	assert.Equal(t, catalog.KindInternal, catalog.Kind(err))
	assert.Empty(t, f.blobs.Keys())
}

func TestService_DiscardFailureDoesNotMaskError(t *testing.T) {
	f := setupServiceTest(t)
	f.blobs.failUploads(catalog.AssetImage, errors.New("boom"))
	f.blobs.mu.Lock()
	f.blobs.deleteErr = errors.New("delete refused")
	f.blobs.mu.Unlock()

	_, err := f.svc.CreateSong(context.Background(), songRequest("T", nil))

	assert.Equal(t, catalog.KindUpload, catalog.Kind(err))
	assert.NotContains(t, err.Error(), "delete refused")
}

func TestService_GateDenialHasNoSideEffects(t *testing.T) {
	tests := []struct {
		name    string
		opts    []catalog.Option
		ctx     context.Context
		wantErr error
	}{
		{
			name:    "no authorizer configured",
			opts:    []catalog.Option{catalog.WithAuthorizer(nil)},
			ctx:     catalog.WithCaller(context.Background(), catalog.Caller{Subject: "anyone"}),
			wantErr: catalog.ErrForbidden,
		},
		{
			name:    "anonymous caller",
			opts:    []catalog.Option{catalog.WithAuthorizer(catalog.NewAdminGate("admin@example.com"))},
			ctx:     context.Background(),
			wantErr: catalog.ErrUnauthenticated,
		},
		{
			name:    "caller not listed",
			opts:    []catalog.Option{catalog.WithAuthorizer(catalog.NewAdminGate("admin@example.com"))},
			ctx:     catalog.WithCaller(context.Background(), catalog.Caller{Subject: "u2", Email: "fan@example.com"}),
			wantErr: catalog.ErrForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupServiceTest(t, tt.opts...)
			existing, err := f.repo.InsertAlbum(context.Background(), &catalog.Album{Title: "A", Artist: "B", ReleaseYear: 1, ImageURL: "https://x/y", Songs: []uuid.UUID{}})
			require.NoError(t, err)
			before := f.repo.mutationCount()

			_, err = f.svc.CreateSong(tt.ctx, songRequest("T", &existing.ID))
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, catalog.KindAuthorization, catalog.Kind(err))

			_, err = f.svc.CreateAlbum(tt.ctx, albumRequest("X"))
			assert.ErrorIs(t, err, tt.wantErr)

			assert.ErrorIs(t, f.svc.DeleteAlbum(tt.ctx, existing.ID), tt.wantErr)
			assert.ErrorIs(t, f.svc.DeleteSong(tt.ctx, uuid.New()), tt.wantErr)
			assert.ErrorIs(t, f.svc.CheckAdmin(tt.ctx), tt.wantErr)

			assert.Zero(t, f.blobs.uploadCount())
			assert.Equal(t, before, f.repo.mutationCount())
		})
	}
}

func TestService_AdminGateAdmitsListedCaller(t *testing.T) {
	f := setupServiceTest(t, catalog.WithAuthorizer(catalog.NewAdminGate("Admin@Example.com")))
	ctx := catalog.WithCaller(context.Background(), catalog.Caller{Subject: "u1", Email: "admin@example.com"})

	require.NoError(t, f.svc.CheckAdmin(ctx))
	_, err := f.svc.CreateAlbum(ctx, albumRequest("X"))
	assert.NoError(t, err)
}

func TestService_AdmittedOperationSurvivesCancellation(t *testing.T) {
	f := setupServiceTest(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	song, err := f.svc.CreateSong(ctx, songRequest("T", nil))
	require.NoError(t, err)
	assert.NotEmpty(t, song.AudioURL)
}

func TestService_ConcurrentCreateIntoOneAlbum(t *testing.T) {
	f := setupServiceTest(t)
	ctx := context.Background()

	album, err := f.svc.CreateAlbum(ctx, albumRequest("X"))
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	ids := make(chan uuid.UUID, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			song, err := f.svc.CreateSong(ctx, songRequest(fmt.Sprintf("track-%d", i), &album.ID))
			if assert.NoError(t, err) {
				ids <- song.ID
			}
		}(i)
	}
	wg.Wait()
	close(ids)

	got, err := f.svc.GetAlbum(ctx, album.ID)
	require.NoError(t, err)
	assert.Len(t, got.Songs, n)
	for id := range ids {
		assert.True(t, got.HasSong(id))
	}
	assertConsistent(t, f, album.ID)
}

func TestService_DeleteSongOfMissingAlbum(t *testing.T) {
	f := setupServiceTest(t)
	ctx := context.Background()

	// A song left behind by an interrupted album delete.
	dangling := uuid.New()
	song, err := f.repo.Repository.InsertSong(ctx, &catalog.Song{
		Title: "T", Artist: "Y", AudioURL: "https://a", ImageURL: "https://b", AlbumID: &dangling,
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteSong(ctx, song.ID))
	_, err = f.svc.GetSong(ctx, song.ID)
	assert.ErrorIs(t, err, catalog.ErrSongNotFound)
}

func TestService_InvariantHoldsAcrossOperations(t *testing.T) {
	f := setupServiceTest(t)
	ctx := context.Background()

	var albums []uuid.UUID
	for i := 0; i < 3; i++ {
		album, err := f.svc.CreateAlbum(ctx, albumRequest(fmt.Sprintf("album-%d", i)))
		require.NoError(t, err)
		albums = append(albums, album.ID)
	}

	var songs []uuid.UUID
	for i := 0; i < 12; i++ {
		albumID := albums[i%len(albums)]
		song, err := f.svc.CreateSong(ctx, songRequest(fmt.Sprintf("song-%d", i), &albumID))
		require.NoError(t, err)
		songs = append(songs, song.ID)
		assertConsistent(t, f, albums...)
	}

	for i, id := range songs {
		if i%3 == 0 {
			require.NoError(t, f.svc.DeleteSong(ctx, id))
			assertConsistent(t, f, albums...)
		}
	}

	require.NoError(t, f.svc.DeleteAlbum(ctx, albums[1]))
	assertConsistent(t, f, albums...)

	for _, id := range []uuid.UUID{albums[0], albums[2]} {
		album, err := f.svc.GetAlbum(ctx, id)
		require.NoError(t, err)
		listed, err := f.repo.ListSongsByAlbum(ctx, id)
		require.NoError(t, err)
		assert.Len(t, album.Songs, len(listed))
	}
}

func TestService_VerifyAlbumFindsMismatch(t *testing.T) {
	f := setupServiceTest(t)
	ctx := context.Background()

	album, err := f.svc.CreateAlbum(ctx, albumRequest("X"))
	require.NoError(t, err)
	require.NoError(t, f.svc.VerifyAlbum(ctx, album.ID))

	// Song references the album but is not listed.
	unlisted, err := f.repo.Repository.InsertSong(ctx, &catalog.Song{
		Title: "T", Artist: "Y", AudioURL: "https://a", ImageURL: "https://b", AlbumID: &album.ID,
	})
	require.NoError(t, err)

	err = f.svc.VerifyAlbum(ctx, album.ID)
	var integrityErr *catalog.IntegrityError
	require.ErrorAs(t, err, &integrityErr)
	assert.Equal(t, unlisted.ID, integrityErr.SongID)
	assert.Equal(t, "verify_album", integrityErr.Op)
	assert.Len(t, f.sink.violations, 1)
}

func TestService_EventSinkFailureDoesNotFailOperation(t *testing.T) {
	f := setupServiceTest(t)
	f.sink.failWith = errors.New("collector unavailable")

	song, err := f.svc.CreateSong(context.Background(), songRequest("T", nil))
	require.NoError(t, err)
	assert.NoError(t, f.svc.DeleteSong(context.Background(), song.ID))
}

type metricsSpy struct {
	mu            sync.Mutex
	operations    map[string]catalog.ErrorKind
	uploads       int
	compensations map[string]int
}

func newMetricsSpy() *metricsSpy {
	return &metricsSpy{operations: map[string]catalog.ErrorKind{}, compensations: map[string]int{}}
}

func (m *metricsSpy) ObserveOperation(op string, kind catalog.ErrorKind, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operations[op] = kind
}

func (m *metricsSpy) ObserveUpload(catalog.AssetKind, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads++
}

func (m *metricsSpy) ObserveCompensation(op string, _ error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.compensations[op]++
}

func TestService_RecordsMetrics(t *testing.T) {
	spy := newMetricsSpy()
	f := setupServiceTest(t, catalog.WithMetrics(spy))
	ctx := context.Background()

	_, err := f.svc.CreateSong(ctx, songRequest("T", nil))
	require.NoError(t, err)

	f.blobs.failUploads(catalog.AssetAudio, errors.New("boom"))
	_, err = f.svc.CreateSong(ctx, songRequest("T", nil))
	require.Error(t, err)

	assert.Equal(t, catalog.KindUpload, spy.operations["create_song"])
	assert.Equal(t, 4, spy.uploads)
	assert.Equal(t, 1, spy.compensations["create_song"], "the image upload is discarded")
}
