package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/tendant/music-catalog/pkg/catalog"
)

// DefaultBaseURL prefixes the public URLs handed out by the memory backend
const DefaultBaseURL = "https://blobs.localhost"

// ErrObjectNotFound is returned for keys the backend does not hold
var ErrObjectNotFound = errors.New("object not found")

// Backend is an in-memory implementation of the catalog.BlobStore interface
type Backend struct {
	mu              sync.RWMutex
	baseURL         string
	objects         map[string][]byte
	objectsMimeType map[string]string
}

// New creates a new in-memory storage backend serving URLs under
// DefaultBaseURL
func New() *Backend {
	return NewWithBaseURL(DefaultBaseURL)
}

// NewWithBaseURL creates a backend whose public URLs start with baseURL
func NewWithBaseURL(baseURL string) *Backend {
	return &Backend{
		baseURL:         strings.TrimRight(baseURL, "/"),
		objects:         make(map[string][]byte),
		objectsMimeType: make(map[string]string),
	}
}

// Upload stores the payload under params.ObjectKey
func (b *Backend) Upload(ctx context.Context, reader io.Reader, params catalog.UploadParams) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	mimeType := params.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[params.ObjectKey] = data
	b.objectsMimeType[params.ObjectKey] = mimeType
	return nil
}

// PublicURL returns the URL the object would be served at
func (b *Backend) PublicURL(ctx context.Context, objectKey string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if _, exists := b.objects[objectKey]; !exists {
		return "", ErrObjectNotFound
	}
	return b.baseURL + "/" + objectKey, nil
}

// Download returns the stored payload
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.objects[objectKey]
	if !exists {
		return nil, ErrObjectNotFound
	}

	return io.NopCloser(bytes.NewReader(data)), nil
}

// MimeType returns the content type recorded for objectKey
func (b *Backend) MimeType(objectKey string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	mimeType, ok := b.objectsMimeType[objectKey]
	return mimeType, ok
}

// Keys lists every stored object key
func (b *Backend) Keys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	return keys
}

// Delete deletes an object
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[objectKey]; !exists {
		return ErrObjectNotFound
	}

	delete(b.objects, objectKey)
	delete(b.objectsMimeType, objectKey)
	return nil
}

var _ catalog.BlobStore = (*Backend)(nil)
