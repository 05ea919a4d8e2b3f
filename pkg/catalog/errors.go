package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Error types
var (
	// ErrNotFound indicates a referenced song or album does not exist
	ErrNotFound = errors.New("not found")

	// ErrSongNotFound indicates a song was not found
	ErrSongNotFound = fmt.Errorf("song %w", ErrNotFound)

	// ErrAlbumNotFound indicates an album was not found
	ErrAlbumNotFound = fmt.Errorf("album %w", ErrNotFound)

	// ErrUnauthenticated indicates the caller presented no identity
	ErrUnauthenticated = errors.New("authentication required")

	// ErrForbidden indicates the caller is known but not admitted
	ErrForbidden = errors.New("admin access required")

	// ErrInvalidFile indicates a missing or empty staged payload
	ErrInvalidFile = errors.New("invalid file provided")

	// ErrInsecureURL indicates the blob store resolved a URL that is not https
	ErrInsecureURL = errors.New("storage did not return a secure URL")
)

// ValidationError reports bad or missing input. It is always raised before
// any external call is made.
type ValidationError struct {
	Message string
	Missing []string
}

func (e *ValidationError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Missing, ", "))
	}
	return e.Message
}

// UploadError represents a failed transfer to the blob store, including
// timeouts. Err carries the provider's message.
type UploadError struct {
	Asset AssetKind
	Key   string
	Err   error
}

func (e *UploadError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s upload failed: %v", e.Asset, e.Err)
	}
	return fmt.Sprintf("%s upload failed for key %s: %v", e.Asset, e.Key, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// IntegrityError reports a mismatch between a song's AlbumID and its
// album's song list, or a compensation that could not be applied.
type IntegrityError struct {
	SongID  uuid.UUID
	AlbumID uuid.UUID
	Op      string
	Err     error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation during %s (song %s, album %s): %v", e.Op, e.SongID, e.AlbumID, e.Err)
}

func (e *IntegrityError) Unwrap() error {
	return e.Err
}

// AuthorizationError is returned when the admission gate denies a caller
type AuthorizationError struct {
	Subject string
	Err     error
}

func (e *AuthorizationError) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("authorization failed: %v", e.Err)
	}
	return fmt.Sprintf("authorization failed for %s: %v", e.Subject, e.Err)
}

func (e *AuthorizationError) Unwrap() error {
	return e.Err
}

// SongError represents an error related to song operations
type SongError struct {
	SongID uuid.UUID
	Op     string
	Err    error
}

func (e *SongError) Error() string {
	return fmt.Sprintf("song operation %s failed for song %s: %v", e.Op, e.SongID, e.Err)
}

func (e *SongError) Unwrap() error {
	return e.Err
}

// AlbumError represents an error related to album operations
type AlbumError struct {
	AlbumID uuid.UUID
	Op      string
	Err     error
}

func (e *AlbumError) Error() string {
	return fmt.Sprintf("album operation %s failed for album %s: %v", e.Op, e.AlbumID, e.Err)
}

func (e *AlbumError) Unwrap() error {
	return e.Err
}

// ErrorKind is a machine-readable error class.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindUpload        ErrorKind = "upload"
	KindNotFound      ErrorKind = "not_found"
	KindIntegrity     ErrorKind = "integrity"
	KindAuthorization ErrorKind = "authorization"
	KindInternal      ErrorKind = "internal"
)

// Kind classifies err. Integrity wins over the other kinds since it marks
// state that needs reconciliation.
func Kind(err error) ErrorKind {
	var (
		integrityErr  *IntegrityError
		validationErr *ValidationError
		authErr       *AuthorizationError
		uploadErr     *UploadError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &integrityErr):
		return KindIntegrity
	case errors.As(err, &validationErr):
		return KindValidation
	case errors.As(err, &authErr):
		return KindAuthorization
	case errors.As(err, &uploadErr):
		return KindUpload
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}
