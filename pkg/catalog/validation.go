package catalog

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// songInput is a CreateSongRequest after validation and coercion.
type songInput struct {
	title    string
	artist   string
	duration int
	albumID  *uuid.UUID
}

// albumInput is a CreateAlbumRequest after validation and coercion.
type albumInput struct {
	title       string
	artist      string
	releaseYear int
}

func validateCreateSong(req CreateSongRequest) (*songInput, error) {
	if req.AudioFile == nil && req.ImageFile == nil {
		return nil, &ValidationError{Message: "No files were uploaded"}
	}
	if req.AudioFile == nil {
		return nil, &ValidationError{Message: "Audio file is required"}
	}
	if req.ImageFile == nil {
		return nil, &ValidationError{Message: "Image file is required"}
	}

	in := &songInput{
		title:  strings.TrimSpace(req.Title),
		artist: strings.TrimSpace(req.Artist),
	}
	duration := strings.TrimSpace(req.Duration)

	var missing []string
	if in.title == "" {
		missing = append(missing, "title")
	}
	if in.artist == "" {
		missing = append(missing, "artist")
	}
	if duration == "" {
		missing = append(missing, "duration")
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Message: "Missing required fields", Missing: missing}
	}

	d, err := strconv.Atoi(duration)
	if err != nil || d < 0 {
		return nil, &ValidationError{Message: "Duration must be a non-negative integer number of seconds"}
	}
	in.duration = d

	if !hasMimePrefix(req.AudioFile, AudioMimePrefix) {
		return nil, &ValidationError{Message: "Invalid audio file type"}
	}
	if !hasMimePrefix(req.ImageFile, ImageMimePrefix) {
		return nil, &ValidationError{Message: "Invalid image file type"}
	}

	if albumID := strings.TrimSpace(req.AlbumID); albumID != "" {
		id, err := uuid.Parse(albumID)
		if err != nil {
			return nil, &ValidationError{Message: "Invalid album ID"}
		}
		in.albumID = &id
	}

	return in, nil
}

func validateCreateAlbum(req CreateAlbumRequest) (*albumInput, error) {
	if req.ImageFile == nil {
		return nil, &ValidationError{Message: "Image file is required"}
	}

	in := &albumInput{
		title:  strings.TrimSpace(req.Title),
		artist: strings.TrimSpace(req.Artist),
	}
	year := strings.TrimSpace(req.ReleaseYear)

	var missing []string
	if in.title == "" {
		missing = append(missing, "title")
	}
	if in.artist == "" {
		missing = append(missing, "artist")
	}
	if year == "" {
		missing = append(missing, "releaseYear")
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Message: "Missing required fields", Missing: missing}
	}

	y, err := strconv.Atoi(year)
	if err != nil || y <= 0 {
		return nil, &ValidationError{Message: "Release year must be a positive integer"}
	}
	in.releaseYear = y

	if !hasMimePrefix(req.ImageFile, ImageMimePrefix) {
		return nil, &ValidationError{Message: "Invalid image file type"}
	}

	return in, nil
}

func hasMimePrefix(f *File, prefix string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(f.ContentType)), prefix)
}
