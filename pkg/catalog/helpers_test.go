package catalog_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/tendant/music-catalog/pkg/catalog"
	"github.com/tendant/music-catalog/pkg/catalog/repo/memory"
	memorystorage "github.com/tendant/music-catalog/pkg/catalog/storage/memory"
)

func newFile(name, contentType string, data string) *catalog.File {
	return &catalog.File{
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader([]byte(data))), nil
		},
	}
}

func audioFile() *catalog.File { return newFile("track.mp3", "audio/mpeg", "audio-bytes") }
func imageFile() *catalog.File { return newFile("cover.jpg", "image/jpeg", "image-bytes") }

func songRequest(title string, albumID *uuid.UUID) catalog.CreateSongRequest {
	req := catalog.CreateSongRequest{
		Title:     title,
		Artist:    "Y",
		Duration:  "210",
		AudioFile: audioFile(),
		ImageFile: imageFile(),
	}
	if albumID != nil {
		req.AlbumID = albumID.String()
	}
	return req
}

func albumRequest(title string) catalog.CreateAlbumRequest {
	return catalog.CreateAlbumRequest{
		Title:       title,
		Artist:      "Y",
		ReleaseYear: "2020",
		ImageFile:   imageFile(),
	}
}

// blobStore wraps the memory backend, counting calls and injecting faults
// per asset kind.
type blobStore struct {
	*memorystorage.Backend

	mu        sync.Mutex
	uploads   int
	deletes   int
	failKinds map[catalog.AssetKind]error
	deleteErr error
}

func newBlobStore() *blobStore {
	return &blobStore{Backend: memorystorage.New(), failKinds: map[catalog.AssetKind]error{}}
}

func (b *blobStore) Upload(ctx context.Context, r io.Reader, params catalog.UploadParams) error {
	b.mu.Lock()
	b.uploads++
	var err error
	for kind, e := range b.failKinds {
		if strings.HasPrefix(params.ObjectKey, string(kind)+"/") {
			err = e
		}
	}
	b.mu.Unlock()
	if err != nil {
		return err
	}
	return b.Backend.Upload(ctx, r, params)
}

func (b *blobStore) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	b.deletes++
	err := b.deleteErr
	b.mu.Unlock()
	if err != nil {
		return err
	}
	return b.Backend.Delete(ctx, key)
}

func (b *blobStore) failUploads(kind catalog.AssetKind, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failKinds[kind] = err
}

func (b *blobStore) uploadCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.uploads
}

// faultyRepo wraps the memory repository and fails selected calls.
type faultyRepo struct {
	*memory.Repository

	mu            sync.Mutex
	insertSongErr error
	appendErr     error
	deleteSongErr error
	mutations     int
}

func newFaultyRepo() *faultyRepo {
	return &faultyRepo{Repository: memory.New()}
}

func (r *faultyRepo) set(fn func(r *faultyRepo)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r)
}

func (r *faultyRepo) count() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mutations++
}

func (r *faultyRepo) mutationCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mutations
}

func (r *faultyRepo) InsertSong(ctx context.Context, song *catalog.Song) (*catalog.Song, error) {
	r.count()
	r.mu.Lock()
	err := r.insertSongErr
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return r.Repository.InsertSong(ctx, song)
}

func (r *faultyRepo) AppendSongToAlbum(ctx context.Context, albumID, songID uuid.UUID) error {
	r.count()
	r.mu.Lock()
	err := r.appendErr
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.Repository.AppendSongToAlbum(ctx, albumID, songID)
}

func (r *faultyRepo) DeleteSong(ctx context.Context, id uuid.UUID) (bool, error) {
	r.count()
	r.mu.Lock()
	err := r.deleteSongErr
	r.mu.Unlock()
	if err != nil {
		return false, err
	}
	return r.Repository.DeleteSong(ctx, id)
}

func (r *faultyRepo) InsertAlbum(ctx context.Context, album *catalog.Album) (*catalog.Album, error) {
	r.count()
	return r.Repository.InsertAlbum(ctx, album)
}

func (r *faultyRepo) DeleteAlbum(ctx context.Context, id uuid.UUID) (bool, error) {
	r.count()
	return r.Repository.DeleteAlbum(ctx, id)
}

func (r *faultyRepo) DeleteSongsByAlbum(ctx context.Context, albumID uuid.UUID) (int64, error) {
	r.count()
	return r.Repository.DeleteSongsByAlbum(ctx, albumID)
}

func (r *faultyRepo) RemoveSongFromAlbum(ctx context.Context, albumID, songID uuid.UUID) error {
	r.count()
	return r.Repository.RemoveSongFromAlbum(ctx, albumID, songID)
}

// recordingSink captures emitted events.
type recordingSink struct {
	catalog.NoopEventSink

	mu         sync.Mutex
	created    []uuid.UUID
	deleted    []uuid.UUID
	violations []*catalog.IntegrityError
	failWith   error
}

func (s *recordingSink) SongCreated(ctx context.Context, song *catalog.Song) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, song.ID)
	return s.failWith
}

func (s *recordingSink) SongDeleted(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, id)
	return s.failWith
}

func (s *recordingSink) IntegrityViolation(ctx context.Context, v *catalog.IntegrityError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.violations = append(s.violations, v)
	return s.failWith
}

type fixture struct {
	svc   catalog.Service
	repo  *faultyRepo
	blobs *blobStore
	sink  *recordingSink
}

func setupServiceTest(t *testing.T, opts ...catalog.Option) *fixture {
	t.Helper()
	f := &fixture{
		repo:  newFaultyRepo(),
		blobs: newBlobStore(),
		sink:  &recordingSink{},
	}
	base := []catalog.Option{
		catalog.WithRepository(f.repo),
		catalog.WithBlobStore(f.blobs),
		catalog.WithAuthorizer(catalog.AllowAll()),
		catalog.WithEventSink(f.sink),
	}
	svc, err := catalog.New(append(base, opts...)...)
	require.NoError(t, err)
	f.svc = svc
	return f
}

// assertConsistent checks both directions of the album/song reference for
// every album id given.
func assertConsistent(t *testing.T, f *fixture, albumIDs ...uuid.UUID) {
	t.Helper()
	for _, id := range albumIDs {
		err := f.svc.VerifyAlbum(context.Background(), id)
		if errors.Is(err, catalog.ErrAlbumNotFound) {
			songs, lerr := f.repo.ListSongsByAlbum(context.Background(), id)
			require.NoError(t, lerr)
			require.Empty(t, songs, "songs reference deleted album %s", id)
			continue
		}
		require.NoError(t, err, "album %s", id)
	}
}
