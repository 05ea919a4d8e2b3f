package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/music-catalog/pkg/catalog"
)

// Repository implements catalog.Repository using in-memory storage
type Repository struct {
	mu     sync.RWMutex
	songs  map[uuid.UUID]*catalog.Song
	albums map[uuid.UUID]*catalog.Album
	seq    map[uuid.UUID]uint64 // song_id -> insertion order
	next   uint64
	now    func() time.Time
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		songs:  make(map[uuid.UUID]*catalog.Song),
		albums: make(map[uuid.UUID]*catalog.Album),
		seq:    make(map[uuid.UUID]uint64),
		now:    time.Now,
	}
}

// Song operations

func (r *Repository) InsertSong(ctx context.Context, song *catalog.Song) (*catalog.Song, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Create a copy to avoid external modifications
	songCopy := copySong(song)
	if songCopy.ID == uuid.Nil {
		songCopy.ID = uuid.New()
	}
	now := r.now().UTC()
	songCopy.CreatedAt = now
	songCopy.UpdatedAt = now

	r.songs[songCopy.ID] = songCopy
	r.next++
	r.seq[songCopy.ID] = r.next

	return copySong(songCopy), nil
}

func (r *Repository) GetSong(ctx context.Context, id uuid.UUID) (*catalog.Song, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	song, exists := r.songs[id]
	if !exists {
		return nil, catalog.ErrSongNotFound
	}
	// Return a copy to prevent external modifications
	return copySong(song), nil
}

func (r *Repository) DeleteSong(ctx context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.songs[id]; !exists {
		return false, nil
	}
	delete(r.songs, id)
	delete(r.seq, id)
	return true, nil
}

func (r *Repository) ListSongsByAlbum(ctx context.Context, albumID uuid.UUID) ([]*catalog.Song, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := []*catalog.Song{}
	for _, song := range r.songs {
		if song.AlbumID != nil && *song.AlbumID == albumID {
			result = append(result, copySong(song))
		}
	}

	// Sort by insertion order
	sort.Slice(result, func(i, j int) bool {
		return r.seq[result[i].ID] < r.seq[result[j].ID]
	})

	return result, nil
}

func (r *Repository) DeleteSongsByAlbum(ctx context.Context, albumID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, song := range r.songs {
		if song.AlbumID != nil && *song.AlbumID == albumID {
			delete(r.songs, id)
			delete(r.seq, id)
			n++
		}
	}
	return n, nil
}

// Album operations

func (r *Repository) InsertAlbum(ctx context.Context, album *catalog.Album) (*catalog.Album, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	albumCopy := copyAlbum(album)
	if albumCopy.ID == uuid.Nil {
		albumCopy.ID = uuid.New()
	}
	now := r.now().UTC()
	albumCopy.CreatedAt = now
	albumCopy.UpdatedAt = now

	r.albums[albumCopy.ID] = albumCopy

	return copyAlbum(albumCopy), nil
}

func (r *Repository) GetAlbum(ctx context.Context, id uuid.UUID) (*catalog.Album, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	album, exists := r.albums[id]
	if !exists {
		return nil, catalog.ErrAlbumNotFound
	}
	return copyAlbum(album), nil
}

func (r *Repository) DeleteAlbum(ctx context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.albums[id]; !exists {
		return false, nil
	}
	delete(r.albums, id)
	return true, nil
}

func (r *Repository) AppendSongToAlbum(ctx context.Context, albumID, songID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	album, exists := r.albums[albumID]
	if !exists {
		return catalog.ErrAlbumNotFound
	}
	if !album.HasSong(songID) {
		album.Songs = append(album.Songs, songID)
		album.UpdatedAt = r.now().UTC()
	}
	return nil
}

func (r *Repository) RemoveSongFromAlbum(ctx context.Context, albumID, songID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	album, exists := r.albums[albumID]
	if !exists {
		return catalog.ErrAlbumNotFound
	}
	if album.HasSong(songID) {
		album.Songs = slices.DeleteFunc(album.Songs, func(id uuid.UUID) bool { return id == songID })
		album.UpdatedAt = r.now().UTC()
	}
	return nil
}

func copySong(song *catalog.Song) *catalog.Song {
	songCopy := *song
	if song.AlbumID != nil {
		albumID := *song.AlbumID
		songCopy.AlbumID = &albumID
	}
	return &songCopy
}

func copyAlbum(album *catalog.Album) *catalog.Album {
	albumCopy := *album
	albumCopy.Songs = append([]uuid.UUID{}, album.Songs...)
	return &albumCopy
}

var _ catalog.Repository = (*Repository)(nil)
