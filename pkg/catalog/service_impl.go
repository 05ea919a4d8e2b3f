package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Song operations

func (s *service) CreateSong(ctx context.Context, req CreateSongRequest) (_ *Song, err error) {
	defer s.observe("create_song", time.Now(), &err)

	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	// Once admitted the pipeline runs to completion; a disconnecting
	// caller must not strand a half-published song.
	ctx = context.WithoutCancel(ctx)

	in, err := validateCreateSong(req)
	if err != nil {
		return nil, err
	}

	if in.albumID != nil {
		if _, err := s.repository.GetAlbum(ctx, *in.albumID); err != nil {
			return nil, &AlbumError{AlbumID: *in.albumID, Op: "create_song", Err: err}
		}
	}

	audio, image, err := s.uploadSongAssets(ctx, req.AudioFile, req.ImageFile)
	if err != nil {
		return nil, err
	}

	song, err := s.repository.InsertSong(ctx, &Song{
		Title:    in.title,
		Artist:   in.artist,
		AudioURL: audio.URL,
		ImageURL: image.URL,
		Duration: in.duration,
		AlbumID:  in.albumID,
	})
	if err != nil {
		s.discard(ctx, "create_song", audio.Key, image.Key)
		return nil, &SongError{Op: "create", Err: err}
	}

	if in.albumID != nil {
		if err := s.repository.AppendSongToAlbum(ctx, *in.albumID, song.ID); err != nil {
			return nil, s.unpublishSong(ctx, song, *in.albumID, err, audio.Key, image.Key)
		}
	}

	if err := s.eventSink.SongCreated(ctx, song); err != nil {
		s.logger.WarnContext(ctx, "event sink failed", "event", "song_created", "song_id", song.ID, "error", err)
	}

	return song, nil
}

// uploadSongAssets uploads both payloads concurrently. Each failure is
// reported on its own; a payload that did upload is discarded when the
// other one failed.
func (s *service) uploadSongAssets(ctx context.Context, audioFile, imageFile *File) (Asset, Asset, error) {
	var (
		g                  errgroup.Group
		audio, image       Asset
		audioErr, imageErr error
	)
	g.Go(func() error {
		audio, audioErr = s.uploader.Upload(ctx, AssetAudio, audioFile)
		return audioErr
	})
	g.Go(func() error {
		image, imageErr = s.uploader.Upload(ctx, AssetImage, imageFile)
		return imageErr
	})
	if g.Wait() == nil {
		return audio, image, nil
	}

	if audioErr == nil {
		s.discard(ctx, "create_song", audio.Key)
	}
	if imageErr == nil {
		s.discard(ctx, "create_song", image.Key)
	}
	return Asset{}, Asset{}, errors.Join(audioErr, imageErr)
}

// unpublishSong removes a song that could not be linked to its album. When
// the removal itself fails the song is an orphan and an IntegrityError
// naming it is returned.
func (s *service) unpublishSong(ctx context.Context, song *Song, albumID uuid.UUID, cause error, keys ...string) error {
	s.logger.WarnContext(ctx, "linking song to album failed, removing song",
		"song_id", song.ID, "album_id", albumID, "error", cause)

	_, err := s.repository.DeleteSong(ctx, song.ID)
	s.metrics.ObserveCompensation("create_song", err)
	if err != nil {
		violation := &IntegrityError{
			SongID:  song.ID,
			AlbumID: albumID,
			Op:      "create_song",
			Err:     errors.Join(cause, fmt.Errorf("removing orphan song: %w", err)),
		}
		s.reportViolation(ctx, violation)
		return violation
	}

	s.discard(ctx, "create_song", keys...)
	return &SongError{SongID: song.ID, Op: "link_album", Err: cause}
}

func (s *service) DeleteSong(ctx context.Context, id uuid.UUID) (err error) {
	defer s.observe("delete_song", time.Now(), &err)

	if err := s.authorize(ctx); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)

	song, err := s.repository.GetSong(ctx, id)
	if err != nil {
		return &SongError{SongID: id, Op: "delete", Err: err}
	}

	// Unlink before deleting so the album never lists a missing song.
	if song.AlbumID != nil {
		if err := s.repository.RemoveSongFromAlbum(ctx, *song.AlbumID, id); err != nil {
			if !errors.Is(err, ErrAlbumNotFound) {
				return &SongError{SongID: id, Op: "unlink_album", Err: err}
			}
			s.logger.WarnContext(ctx, "song referenced a missing album", "song_id", id, "album_id", *song.AlbumID)
		}
	}

	deleted, err := s.repository.DeleteSong(ctx, id)
	if err != nil {
		return &SongError{SongID: id, Op: "delete", Err: err}
	}
	if !deleted {
		return &SongError{SongID: id, Op: "delete", Err: ErrSongNotFound}
	}

	if err := s.eventSink.SongDeleted(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "event sink failed", "event", "song_deleted", "song_id", id, "error", err)
	}

	return nil
}

func (s *service) GetSong(ctx context.Context, id uuid.UUID) (*Song, error) {
	return s.repository.GetSong(ctx, id)
}

// Album operations

func (s *service) CreateAlbum(ctx context.Context, req CreateAlbumRequest) (_ *Album, err error) {
	defer s.observe("create_album", time.Now(), &err)

	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	in, err := validateCreateAlbum(req)
	if err != nil {
		return nil, err
	}

	image, err := s.uploader.Upload(ctx, AssetImage, req.ImageFile)
	if err != nil {
		return nil, err
	}

	album, err := s.repository.InsertAlbum(ctx, &Album{
		Title:       in.title,
		Artist:      in.artist,
		ReleaseYear: in.releaseYear,
		ImageURL:    image.URL,
		Songs:       []uuid.UUID{},
	})
	if err != nil {
		s.discard(ctx, "create_album", image.Key)
		return nil, &AlbumError{Op: "create", Err: err}
	}

	if err := s.eventSink.AlbumCreated(ctx, album); err != nil {
		s.logger.WarnContext(ctx, "event sink failed", "event", "album_created", "album_id", album.ID, "error", err)
	}

	return album, nil
}

func (s *service) DeleteAlbum(ctx context.Context, id uuid.UUID) (err error) {
	defer s.observe("delete_album", time.Now(), &err)

	if err := s.authorize(ctx); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)

	// Songs go first: an interrupted delete leaves songs pointing at an
	// album that still exists, and re-running finishes the job.
	n, err := s.repository.DeleteSongsByAlbum(ctx, id)
	if err != nil {
		return &AlbumError{AlbumID: id, Op: "delete_songs", Err: err}
	}

	deleted, err := s.repository.DeleteAlbum(ctx, id)
	if err != nil {
		return &AlbumError{AlbumID: id, Op: "delete", Err: err}
	}
	if !deleted {
		if n > 0 {
			s.logger.WarnContext(ctx, "removed songs of a missing album", "album_id", id, "songs_deleted", n)
		}
		return &AlbumError{AlbumID: id, Op: "delete", Err: ErrAlbumNotFound}
	}

	if err := s.eventSink.AlbumDeleted(ctx, id, n); err != nil {
		s.logger.WarnContext(ctx, "event sink failed", "event", "album_deleted", "album_id", id, "error", err)
	}

	return nil
}

func (s *service) GetAlbum(ctx context.Context, id uuid.UUID) (*Album, error) {
	return s.repository.GetAlbum(ctx, id)
}

func (s *service) VerifyAlbum(ctx context.Context, id uuid.UUID) error {
	album, err := s.repository.GetAlbum(ctx, id)
	if err != nil {
		return &AlbumError{AlbumID: id, Op: "verify", Err: err}
	}
	songs, err := s.repository.ListSongsByAlbum(ctx, id)
	if err != nil {
		return &AlbumError{AlbumID: id, Op: "verify", Err: err}
	}

	referencing := make(map[uuid.UUID]struct{}, len(songs))
	for _, song := range songs {
		referencing[song.ID] = struct{}{}
	}

	var dangling, unlisted []uuid.UUID
	listed := make(map[uuid.UUID]struct{}, len(album.Songs))
	for _, songID := range album.Songs {
		if _, dup := listed[songID]; dup {
			dangling = append(dangling, songID)
			continue
		}
		listed[songID] = struct{}{}
		if _, ok := referencing[songID]; !ok {
			dangling = append(dangling, songID)
		}
	}
	for _, song := range songs {
		if _, ok := listed[song.ID]; !ok {
			unlisted = append(unlisted, song.ID)
		}
	}

	if len(dangling) == 0 && len(unlisted) == 0 {
		return nil
	}

	violation := &IntegrityError{
		AlbumID: id,
		Op:      "verify_album",
		Err:     fmt.Errorf("album lists songs %v that do not reference it; songs %v reference it but are not listed", dangling, unlisted),
	}
	if len(dangling) > 0 {
		violation.SongID = dangling[0]
	} else {
		violation.SongID = unlisted[0]
	}
	s.reportViolation(ctx, violation)
	return violation
}

func (s *service) CheckAdmin(ctx context.Context) error {
	return s.authorize(ctx)
}

// Helper methods

func (s *service) authorize(ctx context.Context) error {
	err := s.authorizer.Authorize(ctx)
	if err == nil {
		return nil
	}
	var authErr *AuthorizationError
	if !errors.As(err, &authErr) {
		caller, _ := CallerFromContext(ctx)
		err = &AuthorizationError{Subject: caller.Subject, Err: err}
	}
	s.logger.InfoContext(ctx, "caller denied", "error", err)
	return err
}

// discard removes uploaded objects after a failed publish. Failures are
// logged only; the objects are unreferenced either way.
func (s *service) discard(ctx context.Context, op string, keys ...string) {
	for _, key := range keys {
		err := s.uploader.Discard(ctx, key)
		s.metrics.ObserveCompensation(op, err)
		if err != nil {
			s.logger.WarnContext(ctx, "failed to discard uploaded object", "op", op, "key", key, "error", err)
		}
	}
}

func (s *service) reportViolation(ctx context.Context, violation *IntegrityError) {
	s.logger.ErrorContext(ctx, "catalog integrity violation",
		"op", violation.Op, "song_id", violation.SongID, "album_id", violation.AlbumID, "error", violation.Err)
	if err := s.eventSink.IntegrityViolation(ctx, violation); err != nil {
		s.logger.WarnContext(ctx, "event sink failed", "event", "integrity_violation", "error", err)
	}
}

func (s *service) observe(op string, start time.Time, err *error) {
	s.metrics.ObserveOperation(op, Kind(*err), time.Since(start))
}
