package catalog

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// BlobStore defines the interface for storage backends
type BlobStore interface {
	// Upload stores the payload under params.ObjectKey
	Upload(ctx context.Context, reader io.Reader, params UploadParams) error

	// PublicURL returns the durable URL at which the object is served
	PublicURL(ctx context.Context, objectKey string) (string, error)

	// Delete deletes an object
	Delete(ctx context.Context, objectKey string) error
}

// Repository is the catalog store. It offers single-document atomicity only;
// cross-collection consistency is the Service's job.
type Repository interface {
	// Song operations
	InsertSong(ctx context.Context, song *Song) (*Song, error)
	GetSong(ctx context.Context, id uuid.UUID) (*Song, error)
	DeleteSong(ctx context.Context, id uuid.UUID) (bool, error)
	ListSongsByAlbum(ctx context.Context, albumID uuid.UUID) ([]*Song, error)
	DeleteSongsByAlbum(ctx context.Context, albumID uuid.UUID) (int64, error)

	// Album operations
	InsertAlbum(ctx context.Context, album *Album) (*Album, error)
	GetAlbum(ctx context.Context, id uuid.UUID) (*Album, error)
	DeleteAlbum(ctx context.Context, id uuid.UUID) (bool, error)

	// AppendSongToAlbum appends songID to the album's song list unless it is
	// already present. Returns ErrAlbumNotFound when the album is missing.
	AppendSongToAlbum(ctx context.Context, albumID, songID uuid.UUID) error

	// RemoveSongFromAlbum removes songID from the album's song list.
	// Returns ErrAlbumNotFound when the album is missing.
	RemoveSongFromAlbum(ctx context.Context, albumID, songID uuid.UUID) error
}

// Authorizer is the admission gate consulted before every mutating operation
type Authorizer interface {
	Authorize(ctx context.Context) error
}

// EventSink receives lifecycle events. Sink failures never change the
// outcome of the operation that emitted them.
type EventSink interface {
	SongCreated(ctx context.Context, song *Song) error
	SongDeleted(ctx context.Context, songID uuid.UUID) error
	AlbumCreated(ctx context.Context, album *Album) error
	AlbumDeleted(ctx context.Context, albumID uuid.UUID, songsDeleted int64) error
	IntegrityViolation(ctx context.Context, violation *IntegrityError) error
}

// MetricsRecorder observes workflow outcomes
type MetricsRecorder interface {
	ObserveOperation(op string, kind ErrorKind, duration time.Duration)
	ObserveUpload(asset AssetKind, bytes int64, err error)
	ObserveCompensation(op string, err error)
}
