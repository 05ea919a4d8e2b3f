package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultUploadTimeout bounds a single payload transfer
const DefaultUploadTimeout = 120 * time.Second

// Uploader pushes staged payloads to a BlobStore and resolves their public
// URLs. An object whose upload or URL resolution fails is removed before the
// error is returned; callers use Discard when a later step fails.
type Uploader struct {
	store   BlobStore
	timeout time.Duration
	metrics MetricsRecorder
	now     func() time.Time
}

// UploaderOption configures an Uploader
type UploaderOption func(*Uploader)

// WithUploadTimeout overrides DefaultUploadTimeout
func WithUploadTimeout(d time.Duration) UploaderOption {
	return func(u *Uploader) {
		if d > 0 {
			u.timeout = d
		}
	}
}

// WithUploadMetrics sets the recorder for upload outcomes
func WithUploadMetrics(m MetricsRecorder) UploaderOption {
	return func(u *Uploader) {
		if m != nil {
			u.metrics = m
		}
	}
}

// NewUploader creates an Uploader over store
func NewUploader(store BlobStore, opts ...UploaderOption) *Uploader {
	u := &Uploader{
		store:   store,
		timeout: DefaultUploadTimeout,
		metrics: noopMetrics{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Upload transfers f and returns the stored object's key and https URL.
func (u *Uploader) Upload(ctx context.Context, kind AssetKind, f *File) (Asset, error) {
	if f == nil || f.Open == nil || f.Size <= 0 {
		err := &UploadError{Asset: kind, Err: ErrInvalidFile}
		u.metrics.ObserveUpload(kind, 0, err)
		return Asset{}, err
	}

	asset, err := u.upload(ctx, kind, f)
	u.metrics.ObserveUpload(kind, f.Size, err)
	return asset, err
}

func (u *Uploader) upload(ctx context.Context, kind AssetKind, f *File) (Asset, error) {
	key := u.objectKey(kind, f.Name)

	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	reader, err := f.Open()
	if err != nil {
		return Asset{}, &UploadError{Asset: kind, Key: key, Err: fmt.Errorf("%w: %v", ErrInvalidFile, err)}
	}
	defer reader.Close()

	params := UploadParams{
		ObjectKey: key,
		MimeType:  f.ContentType,
		Size:      f.Size,
	}
	if err := u.store.Upload(ctx, reader, params); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", u.timeout, err)
		}
		// A timed out or aborted transfer may still have left a partial object.
		u.abandon(ctx, key)
		return Asset{}, &UploadError{Asset: kind, Key: key, Err: err}
	}

	rawURL, err := u.store.PublicURL(ctx, key)
	if err != nil {
		u.abandon(ctx, key)
		return Asset{}, &UploadError{Asset: kind, Key: key, Err: err}
	}
	if !isSecureURL(rawURL) {
		u.abandon(ctx, key)
		return Asset{}, &UploadError{Asset: kind, Key: key, Err: fmt.Errorf("%w: %q", ErrInsecureURL, rawURL)}
	}

	return Asset{Key: key, URL: rawURL}, nil
}

// Discard deletes a previously uploaded object
func (u *Uploader) Discard(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	return u.store.Delete(ctx, key)
}

// abandonTimeout bounds the cleanup of an object that could not be published
const abandonTimeout = 10 * time.Second

// abandon removes key on a best-effort basis. It runs detached from ctx,
// which may already be past its deadline; a missing object is not an error.
func (u *Uploader) abandon(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abandonTimeout)
	defer cancel()
	_ = u.store.Delete(ctx, key)
}

// objectKey builds "<kind>/<yyyy>/<mm>/<uuid><ext>"
func (u *Uploader) objectKey(kind AssetKind, fileName string) string {
	now := u.now().UTC()
	return fmt.Sprintf("%s/%04d/%02d/%s%s", kind, now.Year(), int(now.Month()), uuid.New(), cleanExt(fileName))
}

func cleanExt(fileName string) string {
	ext := strings.ToLower(path.Ext(fileName))
	if len(ext) < 2 || len(ext) > 10 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

func isSecureURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme == "https" && u.Host != ""
}
