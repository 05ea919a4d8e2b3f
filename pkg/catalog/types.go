package catalog

import (
	"io"
	"time"

	"github.com/google/uuid"
)

// AssetKind classifies an uploaded payload.
type AssetKind string

const (
	AssetAudio AssetKind = "audio"
	AssetImage AssetKind = "image"
)

// MIME prefixes accepted for each asset kind.
const (
	AudioMimePrefix = "audio/"
	ImageMimePrefix = "image/"
)

// Song is a published track. AudioURL and ImageURL are always both set.
type Song struct {
	ID        uuid.UUID  `json:"id"`
	Title     string     `json:"title"`
	Artist    string     `json:"artist"`
	AudioURL  string     `json:"audioUrl"`
	ImageURL  string     `json:"imageUrl"`
	Duration  int        `json:"duration"`
	AlbumID   *uuid.UUID `json:"albumId"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Album groups songs. Songs is derived from the songs whose AlbumID points
// at this album, in creation order.
type Album struct {
	ID          uuid.UUID   `json:"id"`
	Title       string      `json:"title"`
	Artist      string      `json:"artist"`
	ReleaseYear int         `json:"releaseYear"`
	ImageURL    string      `json:"imageUrl"`
	Songs       []uuid.UUID `json:"songs"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// HasSong reports whether id is listed in the album.
func (a *Album) HasSong(id uuid.UUID) bool {
	for _, s := range a.Songs {
		if s == id {
			return true
		}
	}
	return false
}

// File is a staged upload payload, typically a multipart file part.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// Asset is a durable object produced by the Uploader.
type Asset struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// UploadParams contains parameters for uploading an object
type UploadParams struct {
	ObjectKey string
	MimeType  string
	Size      int64
}
