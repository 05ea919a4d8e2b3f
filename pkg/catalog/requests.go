package catalog

// Request DTOs. Text fields arrive as raw form values and are coerced by
// the service after validation.

// CreateSongRequest contains parameters for publishing a song
type CreateSongRequest struct {
	Title     string
	Artist    string
	AlbumID   string // optional
	Duration  string // seconds
	AudioFile *File
	ImageFile *File
}

// CreateAlbumRequest contains parameters for publishing an album
type CreateAlbumRequest struct {
	Title       string
	Artist      string
	ReleaseYear string
	ImageFile   *File
}
