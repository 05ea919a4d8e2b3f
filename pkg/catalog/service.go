package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Service is the publishing workflow. Mutating operations consult the
// Authorizer first and fail with *AuthorizationError without side effects
// when the caller is not admitted.
type Service interface {
	// CreateSong validates req, uploads both assets, stores the song and
	// links it to its album. A failed link removes the stored song again.
	CreateSong(ctx context.Context, req CreateSongRequest) (*Song, error)

	// DeleteSong unlinks the song from its album, then deletes it.
	DeleteSong(ctx context.Context, id uuid.UUID) error

	// CreateAlbum validates req, uploads the cover and stores an empty album.
	CreateAlbum(ctx context.Context, req CreateAlbumRequest) (*Album, error)

	// DeleteAlbum deletes every song of the album, then the album.
	DeleteAlbum(ctx context.Context, id uuid.UUID) error

	GetSong(ctx context.Context, id uuid.UUID) (*Song, error)
	GetAlbum(ctx context.Context, id uuid.UUID) (*Album, error)

	// VerifyAlbum returns *IntegrityError when the album's song list and
	// the songs referencing it disagree.
	VerifyAlbum(ctx context.Context, id uuid.UUID) error

	// CheckAdmin runs the admission gate only.
	CheckAdmin(ctx context.Context) error
}

// service implements the Service interface
type service struct {
	repository Repository
	uploader   *Uploader
	authorizer Authorizer
	eventSink  EventSink
	metrics    MetricsRecorder
	logger     *slog.Logger

	blobStore       BlobStore
	uploaderOptions []UploaderOption
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the catalog repository
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore sets the blob store; the service builds its Uploader from it
func WithBlobStore(store BlobStore, opts ...UploaderOption) Option {
	return func(s *service) {
		s.blobStore = store
		s.uploaderOptions = append(s.uploaderOptions, opts...)
	}
}

// WithUploader sets a preconfigured Uploader, taking precedence over WithBlobStore
func WithUploader(uploader *Uploader) Option {
	return func(s *service) {
		s.uploader = uploader
	}
}

// WithAuthorizer sets the admission gate. Without one every mutating
// operation is denied.
func WithAuthorizer(authorizer Authorizer) Option {
	return func(s *service) {
		s.authorizer = authorizer
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(m MetricsRecorder) Option {
	return func(s *service) {
		s.metrics = m
	}
}

// WithLogger sets the logger for the service
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.uploader == nil {
		if s.blobStore == nil {
			return nil, fmt.Errorf("blob store is required")
		}
		opts := append([]UploaderOption{WithUploadMetrics(s.metrics)}, s.uploaderOptions...)
		s.uploader = NewUploader(s.blobStore, opts...)
	}
	if s.authorizer == nil {
		s.authorizer = denyAll{}
	}
	if s.eventSink == nil {
		s.eventSink = NewNoopEventSink()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "catalog")

	return s, nil
}
