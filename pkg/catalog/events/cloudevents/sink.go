// Package cloudevents delivers catalog lifecycle events as CloudEvents over
// HTTP, typically to an audit collector.
package cloudevents

import (
	"context"
	"errors"
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"github.com/tendant/music-catalog/pkg/catalog"
)

// Event types emitted by the sink
const (
	TypeSongCreated        = "com.tendant.catalog.song.created"
	TypeSongDeleted        = "com.tendant.catalog.song.deleted"
	TypeAlbumCreated       = "com.tendant.catalog.album.created"
	TypeAlbumDeleted       = "com.tendant.catalog.album.deleted"
	TypeIntegrityViolation = "com.tendant.catalog.integrity.violation"
)

// DefaultSource is the CloudEvents source attribute
const DefaultSource = "/music-catalog"

// Sink implements catalog.EventSink by posting CloudEvents to Target
type Sink struct {
	client  cloudevents.Client
	target  string
	source  string
	timeout time.Duration
}

// Option configures a Sink
type Option func(*Sink)

// WithSource overrides DefaultSource
func WithSource(source string) Option {
	return func(s *Sink) {
		s.source = source
	}
}

// WithTimeout bounds a single delivery
func WithTimeout(d time.Duration) Option {
	return func(s *Sink) {
		s.timeout = d
	}
}

// New creates a sink that delivers to target
func New(target string, opts ...Option) (*Sink, error) {
	if target == "" {
		return nil, errors.New("event target is required")
	}

	client, err := cloudevents.NewClientHTTP()
	if err != nil {
		return nil, fmt.Errorf("failed to create cloudevents client: %w", err)
	}

	s := &Sink{
		client:  client,
		target:  target,
		source:  DefaultSource,
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type songDeletedData struct {
	SongID uuid.UUID `json:"songId"`
}

type albumDeletedData struct {
	AlbumID      uuid.UUID `json:"albumId"`
	SongsDeleted int64     `json:"songsDeleted"`
}

type integrityData struct {
	Op      string    `json:"op"`
	SongID  uuid.UUID `json:"songId"`
	AlbumID uuid.UUID `json:"albumId"`
	Error   string    `json:"error"`
}

func (s *Sink) SongCreated(ctx context.Context, song *catalog.Song) error {
	return s.send(ctx, TypeSongCreated, song.ID.String(), song)
}

func (s *Sink) SongDeleted(ctx context.Context, songID uuid.UUID) error {
	return s.send(ctx, TypeSongDeleted, songID.String(), songDeletedData{SongID: songID})
}

func (s *Sink) AlbumCreated(ctx context.Context, album *catalog.Album) error {
	return s.send(ctx, TypeAlbumCreated, album.ID.String(), album)
}

func (s *Sink) AlbumDeleted(ctx context.Context, albumID uuid.UUID, songsDeleted int64) error {
	return s.send(ctx, TypeAlbumDeleted, albumID.String(), albumDeletedData{AlbumID: albumID, SongsDeleted: songsDeleted})
}

func (s *Sink) IntegrityViolation(ctx context.Context, violation *catalog.IntegrityError) error {
	data := integrityData{
		Op:      violation.Op,
		SongID:  violation.SongID,
		AlbumID: violation.AlbumID,
	}
	if violation.Err != nil {
		data.Error = violation.Err.Error()
	}
	return s.send(ctx, TypeIntegrityViolation, violation.SongID.String(), data)
}

func (s *Sink) send(ctx context.Context, eventType, subject string, data any) error {
	event := cloudevents.NewEvent()
	event.SetID(uuid.NewString())
	event.SetSource(s.source)
	event.SetType(eventType)
	event.SetSubject(subject)
	event.SetTime(time.Now().UTC())
	if err := event.SetData(cloudevents.ApplicationJSON, data); err != nil {
		return fmt.Errorf("failed to encode %s event: %w", eventType, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result := s.client.Send(cloudevents.ContextWithTarget(ctx, s.target), event)
	if !cloudevents.IsACK(result) {
		return fmt.Errorf("failed to deliver %s event: %w", eventType, result)
	}
	return nil
}

var _ catalog.EventSink = (*Sink)(nil)
