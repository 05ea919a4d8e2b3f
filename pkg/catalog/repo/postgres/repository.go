package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/music-catalog/pkg/catalog"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements catalog.Repository using PostgreSQL. An album's
// song list is a uuid[] column so that appends and removals stay single-row
// statements.
type Repository struct {
	db  DBTX
	now func() time.Time
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db, now: time.Now}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return New(pool)
}

// EnsureSchema creates the catalog tables when they are missing. When schema
// is non-empty it is created as well and the tables are placed in it.
func EnsureSchema(ctx context.Context, db DBTX, schema string) error {
	albums, songs, index := pgx.Identifier{"albums"}, pgx.Identifier{"songs"}, "songs_album_id_idx"
	if schema != "" {
		if _, err := db.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{schema}.Sanitize()); err != nil {
			return handlePostgresError("create schema", err)
		}
		albums = pgx.Identifier{schema, "albums"}
		songs = pgx.Identifier{schema, "songs"}
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS ` + albums.Sanitize() + ` (
			id           uuid PRIMARY KEY,
			title        text NOT NULL,
			artist       text NOT NULL,
			release_year integer NOT NULL,
			image_url    text NOT NULL,
			songs        uuid[] NOT NULL DEFAULT '{}',
			created_at   timestamptz NOT NULL,
			updated_at   timestamptz NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ` + songs.Sanitize() + ` (
			id         uuid PRIMARY KEY,
			title      text NOT NULL,
			artist     text NOT NULL,
			audio_url  text NOT NULL,
			image_url  text NOT NULL,
			duration   integer NOT NULL CHECK (duration >= 0),
			album_id   uuid,
			created_at timestamptz NOT NULL,
			updated_at timestamptz NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS ` + index + ` ON ` + songs.Sanitize() + ` (album_id, created_at)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return handlePostgresError("ensure schema", err)
		}
	}
	return nil
}

// Error handling helper
func handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("duplicate entry in %s: %w", operation, err)
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "23514": // check_violation
			return fmt.Errorf("%s violates constraint %s", operation, pgErr.ConstraintName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

// Song operations

const songColumns = `id, title, artist, audio_url, image_url, duration, album_id::text, created_at, updated_at`

func (r *Repository) InsertSong(ctx context.Context, song *catalog.Song) (*catalog.Song, error) {
	created := *song
	if created.ID == uuid.Nil {
		created.ID = uuid.New()
	}
	now := r.now().UTC().Truncate(time.Microsecond)
	created.CreatedAt = now
	created.UpdatedAt = now

	query := `
		INSERT INTO songs (
			id, title, artist, audio_url, image_url, duration, album_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	var albumID any
	if created.AlbumID != nil {
		albumID = *created.AlbumID
	}
	_, err := r.db.Exec(ctx, query,
		created.ID, created.Title, created.Artist, created.AudioURL, created.ImageURL,
		created.Duration, albumID, created.CreatedAt, created.UpdatedAt)
	if err != nil {
		return nil, handlePostgresError("insert song", err)
	}

	return &created, nil
}

func (r *Repository) GetSong(ctx context.Context, id uuid.UUID) (*catalog.Song, error) {
	query := `SELECT ` + songColumns + ` FROM songs WHERE id = $1`

	song, err := scanSong(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrSongNotFound
		}
		return nil, handlePostgresError("get song", err)
	}
	return song, nil
}

func (r *Repository) DeleteSong(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM songs WHERE id = $1`, id)
	if err != nil {
		return false, handlePostgresError("delete song", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) ListSongsByAlbum(ctx context.Context, albumID uuid.UUID) ([]*catalog.Song, error) {
	query := `SELECT ` + songColumns + ` FROM songs WHERE album_id = $1 ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, albumID)
	if err != nil {
		return nil, handlePostgresError("list songs", err)
	}
	defer rows.Close()

	songs := []*catalog.Song{}
	for rows.Next() {
		song, err := scanSong(rows)
		if err != nil {
			return nil, handlePostgresError("scan song", err)
		}
		songs = append(songs, song)
	}
	if err := rows.Err(); err != nil {
		return nil, handlePostgresError("list songs", err)
	}
	return songs, nil
}

func (r *Repository) DeleteSongsByAlbum(ctx context.Context, albumID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM songs WHERE album_id = $1`, albumID)
	if err != nil {
		return 0, handlePostgresError("delete songs by album", err)
	}
	return tag.RowsAffected(), nil
}

// Album operations

const albumColumns = `id, title, artist, release_year, image_url, songs::text[], created_at, updated_at`

func (r *Repository) InsertAlbum(ctx context.Context, album *catalog.Album) (*catalog.Album, error) {
	created := *album
	if created.ID == uuid.Nil {
		created.ID = uuid.New()
	}
	created.Songs = append([]uuid.UUID{}, album.Songs...)
	now := r.now().UTC().Truncate(time.Microsecond)
	created.CreatedAt = now
	created.UpdatedAt = now

	songs := make([]string, len(created.Songs))
	for i, id := range created.Songs {
		songs[i] = id.String()
	}

	query := `
		INSERT INTO albums (
			id, title, artist, release_year, image_url, songs, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6::uuid[], $7, $8)`

	_, err := r.db.Exec(ctx, query,
		created.ID, created.Title, created.Artist, created.ReleaseYear, created.ImageURL,
		songs, created.CreatedAt, created.UpdatedAt)
	if err != nil {
		return nil, handlePostgresError("insert album", err)
	}

	return &created, nil
}

func (r *Repository) GetAlbum(ctx context.Context, id uuid.UUID) (*catalog.Album, error) {
	query := `SELECT ` + albumColumns + ` FROM albums WHERE id = $1`

	var (
		album catalog.Album
		songs []string
	)
	err := r.db.QueryRow(ctx, query, id).Scan(
		&album.ID, &album.Title, &album.Artist, &album.ReleaseYear, &album.ImageURL,
		&songs, &album.CreatedAt, &album.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrAlbumNotFound
		}
		return nil, handlePostgresError("get album", err)
	}

	album.Songs = make([]uuid.UUID, 0, len(songs))
	for _, s := range songs {
		songID, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("album %s lists malformed song id %q: %w", id, s, err)
		}
		album.Songs = append(album.Songs, songID)
	}
	return &album, nil
}

func (r *Repository) DeleteAlbum(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM albums WHERE id = $1`, id)
	if err != nil {
		return false, handlePostgresError("delete album", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) AppendSongToAlbum(ctx context.Context, albumID, songID uuid.UUID) error {
	// The CASE keeps the append idempotent within the single row update.
	query := `
		UPDATE albums SET
			songs = CASE WHEN $2::uuid = ANY(songs) THEN songs ELSE array_append(songs, $2::uuid) END,
			updated_at = $3
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, albumID, songID, r.now().UTC())
	if err != nil {
		return handlePostgresError("append song to album", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrAlbumNotFound
	}
	return nil
}

func (r *Repository) RemoveSongFromAlbum(ctx context.Context, albumID, songID uuid.UUID) error {
	query := `UPDATE albums SET songs = array_remove(songs, $2::uuid), updated_at = $3 WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, albumID, songID, r.now().UTC())
	if err != nil {
		return handlePostgresError("remove song from album", err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrAlbumNotFound
	}
	return nil
}

func scanSong(row pgx.Row) (*catalog.Song, error) {
	var (
		song    catalog.Song
		albumID *string
	)
	err := row.Scan(
		&song.ID, &song.Title, &song.Artist, &song.AudioURL, &song.ImageURL,
		&song.Duration, &albumID, &song.CreatedAt, &song.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if albumID != nil {
		id, err := uuid.Parse(*albumID)
		if err != nil {
			return nil, fmt.Errorf("song %s has malformed album id %q: %w", song.ID, *albumID, err)
		}
		song.AlbumID = &id
	}
	return &song, nil
}

var _ catalog.Repository = (*Repository)(nil)
