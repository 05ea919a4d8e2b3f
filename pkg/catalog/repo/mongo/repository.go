package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/music-catalog/pkg/catalog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names
const (
	SongsCollection  = "songs"
	AlbumsCollection = "albums"
)

// songDocument is the stored form of a catalog.Song. IDs are kept as
// canonical uuid strings.
type songDocument struct {
	ID        string    `bson:"_id"`
	Title     string    `bson:"title"`
	Artist    string    `bson:"artist"`
	AudioURL  string    `bson:"audioUrl"`
	ImageURL  string    `bson:"imageUrl"`
	Duration  int       `bson:"duration"`
	AlbumID   *string   `bson:"albumId"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

type albumDocument struct {
	ID          string    `bson:"_id"`
	Title       string    `bson:"title"`
	Artist      string    `bson:"artist"`
	ReleaseYear int       `bson:"releaseYear"`
	ImageURL    string    `bson:"imageUrl"`
	Songs       []string  `bson:"songs"`
	CreatedAt   time.Time `bson:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt"`
}

// Repository implements catalog.Repository on a MongoDB database. Every
// method is a single-document operation.
type Repository struct {
	songs  *mongo.Collection
	albums *mongo.Collection
	now    func() time.Time
}

// New creates a repository over db
func New(db *mongo.Database) *Repository {
	return &Repository{
		songs:  db.Collection(SongsCollection),
		albums: db.Collection(AlbumsCollection),
		now:    time.Now,
	}
}

// Connect dials uri and verifies the connection
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	return client, nil
}

// EnsureIndexes creates the songs-by-album index
func (r *Repository) EnsureIndexes(ctx context.Context) error {
	_, err := r.songs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "albumId", Value: 1}, {Key: "createdAt", Value: 1}},
		Options: options.Index().SetName("songs_album_id"),
	})
	if err != nil {
		return fmt.Errorf("failed to create songs index: %w", err)
	}
	return nil
}

// Song operations

func (r *Repository) InsertSong(ctx context.Context, song *catalog.Song) (*catalog.Song, error) {
	created := *song
	if created.ID == uuid.Nil {
		created.ID = uuid.New()
	}
	now := r.now().UTC().Truncate(time.Millisecond)
	created.CreatedAt = now
	created.UpdatedAt = now

	if _, err := r.songs.InsertOne(ctx, toSongDocument(&created)); err != nil {
		return nil, fmt.Errorf("failed to insert song: %w", err)
	}
	return &created, nil
}

func (r *Repository) GetSong(ctx context.Context, id uuid.UUID) (*catalog.Song, error) {
	var doc songDocument
	err := r.songs.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, catalog.ErrSongNotFound
		}
		return nil, fmt.Errorf("failed to get song: %w", err)
	}
	return doc.toSong()
}

func (r *Repository) DeleteSong(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.songs.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return false, fmt.Errorf("failed to delete song: %w", err)
	}
	return res.DeletedCount > 0, nil
}

func (r *Repository) ListSongsByAlbum(ctx context.Context, albumID uuid.UUID) ([]*catalog.Song, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.songs.Find(ctx, bson.M{"albumId": albumID.String()}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list songs: %w", err)
	}
	defer cursor.Close(ctx)

	songs := []*catalog.Song{}
	for cursor.Next(ctx) {
		var doc songDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode song: %w", err)
		}
		song, err := doc.toSong()
		if err != nil {
			return nil, err
		}
		songs = append(songs, song)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to list songs: %w", err)
	}
	return songs, nil
}

func (r *Repository) DeleteSongsByAlbum(ctx context.Context, albumID uuid.UUID) (int64, error) {
	res, err := r.songs.DeleteMany(ctx, bson.M{"albumId": albumID.String()})
	if err != nil {
		return 0, fmt.Errorf("failed to delete songs of album: %w", err)
	}
	return res.DeletedCount, nil
}

// Album operations

func (r *Repository) InsertAlbum(ctx context.Context, album *catalog.Album) (*catalog.Album, error) {
	created := *album
	if created.ID == uuid.Nil {
		created.ID = uuid.New()
	}
	created.Songs = append([]uuid.UUID{}, album.Songs...)
	now := r.now().UTC().Truncate(time.Millisecond)
	created.CreatedAt = now
	created.UpdatedAt = now

	if _, err := r.albums.InsertOne(ctx, toAlbumDocument(&created)); err != nil {
		return nil, fmt.Errorf("failed to insert album: %w", err)
	}
	return &created, nil
}

func (r *Repository) GetAlbum(ctx context.Context, id uuid.UUID) (*catalog.Album, error) {
	var doc albumDocument
	err := r.albums.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, catalog.ErrAlbumNotFound
		}
		return nil, fmt.Errorf("failed to get album: %w", err)
	}
	return doc.toAlbum()
}

func (r *Repository) DeleteAlbum(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.albums.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return false, fmt.Errorf("failed to delete album: %w", err)
	}
	return res.DeletedCount > 0, nil
}

func (r *Repository) AppendSongToAlbum(ctx context.Context, albumID, songID uuid.UUID) error {
	update := bson.M{
		"$addToSet": bson.M{"songs": songID.String()},
		"$set":      bson.M{"updatedAt": r.now().UTC()},
	}
	return r.updateAlbum(ctx, albumID, update, "append song to album")
}

func (r *Repository) RemoveSongFromAlbum(ctx context.Context, albumID, songID uuid.UUID) error {
	update := bson.M{
		"$pull": bson.M{"songs": songID.String()},
		"$set":  bson.M{"updatedAt": r.now().UTC()},
	}
	return r.updateAlbum(ctx, albumID, update, "remove song from album")
}

func (r *Repository) updateAlbum(ctx context.Context, albumID uuid.UUID, update bson.M, op string) error {
	res, err := r.albums.UpdateOne(ctx, bson.M{"_id": albumID.String()}, update)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return catalog.ErrAlbumNotFound
	}
	return nil
}

func toSongDocument(song *catalog.Song) songDocument {
	doc := songDocument{
		ID:        song.ID.String(),
		Title:     song.Title,
		Artist:    song.Artist,
		AudioURL:  song.AudioURL,
		ImageURL:  song.ImageURL,
		Duration:  song.Duration,
		CreatedAt: song.CreatedAt,
		UpdatedAt: song.UpdatedAt,
	}
	if song.AlbumID != nil {
		albumID := song.AlbumID.String()
		doc.AlbumID = &albumID
	}
	return doc
}

func (d *songDocument) toSong() (*catalog.Song, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("malformed song id %q: %w", d.ID, err)
	}
	song := &catalog.Song{
		ID:        id,
		Title:     d.Title,
		Artist:    d.Artist,
		AudioURL:  d.AudioURL,
		ImageURL:  d.ImageURL,
		Duration:  d.Duration,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
	if d.AlbumID != nil {
		albumID, err := uuid.Parse(*d.AlbumID)
		if err != nil {
			return nil, fmt.Errorf("song %s has malformed album id %q: %w", d.ID, *d.AlbumID, err)
		}
		song.AlbumID = &albumID
	}
	return song, nil
}

func toAlbumDocument(album *catalog.Album) albumDocument {
	songs := make([]string, len(album.Songs))
	for i, id := range album.Songs {
		songs[i] = id.String()
	}
	return albumDocument{
		ID:          album.ID.String(),
		Title:       album.Title,
		Artist:      album.Artist,
		ReleaseYear: album.ReleaseYear,
		ImageURL:    album.ImageURL,
		Songs:       songs,
		CreatedAt:   album.CreatedAt,
		UpdatedAt:   album.UpdatedAt,
	}
}

func (d *albumDocument) toAlbum() (*catalog.Album, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("malformed album id %q: %w", d.ID, err)
	}
	album := &catalog.Album{
		ID:          id,
		Title:       d.Title,
		Artist:      d.Artist,
		ReleaseYear: d.ReleaseYear,
		ImageURL:    d.ImageURL,
		Songs:       make([]uuid.UUID, 0, len(d.Songs)),
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
	for _, s := range d.Songs {
		songID, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("album %s lists malformed song id %q: %w", d.ID, s, err)
		}
		album.Songs = append(album.Songs, songID)
	}
	return album, nil
}

var _ catalog.Repository = (*Repository)(nil)
