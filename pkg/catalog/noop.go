package catalog

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

func (n *NoopEventSink) SongCreated(ctx context.Context, song *Song) error { return nil }

func (n *NoopEventSink) SongDeleted(ctx context.Context, songID uuid.UUID) error { return nil }

func (n *NoopEventSink) AlbumCreated(ctx context.Context, album *Album) error { return nil }

func (n *NoopEventSink) AlbumDeleted(ctx context.Context, albumID uuid.UUID, songsDeleted int64) error {
	return nil
}

func (n *NoopEventSink) IntegrityViolation(ctx context.Context, violation *IntegrityError) error {
	return nil
}

// LoggingEventSink writes every event as a structured log record.
// Useful for development and debugging
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates a new logging event sink
func NewLoggingEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger.With("component", "events")}
}

func (l *LoggingEventSink) SongCreated(ctx context.Context, song *Song) error {
	attrs := []any{"song_id", song.ID, "title", song.Title, "artist", song.Artist}
	if song.AlbumID != nil {
		attrs = append(attrs, "album_id", *song.AlbumID)
	}
	l.logger.InfoContext(ctx, "song created", attrs...)
	return nil
}

func (l *LoggingEventSink) SongDeleted(ctx context.Context, songID uuid.UUID) error {
	l.logger.InfoContext(ctx, "song deleted", "song_id", songID)
	return nil
}

func (l *LoggingEventSink) AlbumCreated(ctx context.Context, album *Album) error {
	l.logger.InfoContext(ctx, "album created", "album_id", album.ID, "title", album.Title, "release_year", album.ReleaseYear)
	return nil
}

func (l *LoggingEventSink) AlbumDeleted(ctx context.Context, albumID uuid.UUID, songsDeleted int64) error {
	l.logger.InfoContext(ctx, "album deleted", "album_id", albumID, "songs_deleted", songsDeleted)
	return nil
}

func (l *LoggingEventSink) IntegrityViolation(ctx context.Context, violation *IntegrityError) error {
	l.logger.ErrorContext(ctx, "integrity violation",
		"op", violation.Op,
		"song_id", violation.SongID,
		"album_id", violation.AlbumID,
		"error", violation.Err,
	)
	return nil
}

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(string, ErrorKind, time.Duration) {}
func (noopMetrics) ObserveUpload(AssetKind, int64, error)             {}
func (noopMetrics) ObserveCompensation(string, error)                 {}
