package api

import (
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/music-catalog/pkg/catalog"
)

// DefaultMaxUploadMemory is the part of a multipart body kept in memory;
// the rest spills to temporary files.
const DefaultMaxUploadMemory = 32 << 20

// HandlerOption configures the catalog handlers
type HandlerOption func(*handlerConfig)

type handlerConfig struct {
	maxUploadMemory int64
	showErrorDetail bool
}

// WithMaxUploadMemory sets the in-memory budget for multipart parsing
func WithMaxUploadMemory(n int64) HandlerOption {
	return func(c *handlerConfig) {
		if n > 0 {
			c.maxUploadMemory = n
		}
	}
}

// WithErrorDetail echoes the full error chain in error responses.
// Never enable it in production.
func WithErrorDetail(show bool) HandlerOption {
	return func(c *handlerConfig) {
		c.showErrorDetail = show
	}
}

func newHandlerConfig(opts []HandlerOption) handlerConfig {
	c := handlerConfig{maxUploadMemory: DefaultMaxUploadMemory}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// MessageResponse confirms a completed mutation
type MessageResponse struct {
	Message string `json:"message"`
}

// AdminCheckResponse is returned by the admin probe
type AdminCheckResponse struct {
	Admin bool `json:"admin"`
}

// VerifyResponse reports a consistent album
type VerifyResponse struct {
	AlbumID    uuid.UUID `json:"albumId"`
	Consistent bool      `json:"consistent"`
}

// AdminHandler serves the publishing endpoints. Every route goes through
// the service's admission gate.
type AdminHandler struct {
	service catalog.Service
	config  handlerConfig
}

func NewAdminHandler(service catalog.Service, opts ...HandlerOption) *AdminHandler {
	return &AdminHandler{
		service: service,
		config:  newHandlerConfig(opts),
	}
}

// Routes returns the router for admin endpoints
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/check", h.CheckAdmin)
	r.Post("/songs", h.CreateSong)
	r.Delete("/songs/{id}", h.DeleteSong)
	r.Post("/albums", h.CreateAlbum)
	r.Delete("/albums/{id}", h.DeleteAlbum)
	r.Get("/albums/{id}/verify", h.VerifyAlbum)
	return r
}

func (h *AdminHandler) CheckAdmin(w http.ResponseWriter, r *http.Request) {
	if err := h.service.CheckAdmin(r.Context()); err != nil {
		writeError(w, r, err, h.config.showErrorDetail)
		return
	}
	render.JSON(w, r, AdminCheckResponse{Admin: true})
}

func (h *AdminHandler) CreateSong(w http.ResponseWriter, r *http.Request) {
	// Reject before reading the body so unauthorized callers cannot make
	// the server spool uploads.
	if err := h.service.CheckAdmin(r.Context()); err != nil {
		writeError(w, r, err, h.config.showErrorDetail)
		return
	}

	form, err := h.parseForm(r)
	if err != nil {
		writeError(w, r, err, h.config.showErrorDetail)
		return
	}
	defer removeForm(form)

	req := catalog.CreateSongRequest{
		Title:     formValue(form, "title"),
		Artist:    formValue(form, "artist"),
		AlbumID:   formValue(form, "albumId"),
		Duration:  formValue(form, "duration"),
		AudioFile: formFile(form, "audioFile"),
		ImageFile: formFile(form, "imageFile"),
	}

	song, err := h.service.CreateSong(r.Context(), req)
	if err != nil {
		writeError(w, r, err, h.config.showErrorDetail)
		return
	}

	slog.Info("Song published", "song_id", song.ID, "title", song.Title)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, song)
}

func (h *AdminHandler) DeleteSong(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteSong(r.Context(), id); err != nil {
		writeError(w, r, err, h.config.showErrorDetail)
		return
	}

	render.JSON(w, r, MessageResponse{Message: "Song deleted successfully"})
}

func (h *AdminHandler) CreateAlbum(w http.ResponseWriter, r *http.Request) {
	if err := h.service.CheckAdmin(r.Context()); err != nil {
		writeError(w, r, err, h.config.showErrorDetail)
		return
	}

	form, err := h.parseForm(r)
	if err != nil {
		writeError(w, r, err, h.config.showErrorDetail)
		return
	}
	defer removeForm(form)

	req := catalog.CreateAlbumRequest{
		Title:       formValue(form, "title"),
		Artist:      formValue(form, "artist"),
		ReleaseYear: formValue(form, "releaseYear"),
		ImageFile:   formFile(form, "imageFile"),
	}

	album, err := h.service.CreateAlbum(r.Context(), req)
	if err != nil {
		writeError(w, r, err, h.config.showErrorDetail)
		return
	}

	slog.Info("Album published", "album_id", album.ID, "title", album.Title)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, album)
}

func (h *AdminHandler) DeleteAlbum(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteAlbum(r.Context(), id); err != nil {
		writeError(w, r, err, h.config.showErrorDetail)
		return
	}

	render.JSON(w, r, MessageResponse{Message: "Album deleted successfully"})
}

func (h *AdminHandler) VerifyAlbum(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	if err := h.service.VerifyAlbum(r.Context(), id); err != nil {
		writeError(w, r, err, h.config.showErrorDetail)
		return
	}

	render.JSON(w, r, VerifyResponse{AlbumID: id, Consistent: true})
}

// parseID reads the {id} path parameter. The gate runs first so an
// unauthorized caller learns nothing about id syntax.
func (h *AdminHandler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	if err := h.service.CheckAdmin(r.Context()); err != nil {
		writeError(w, r, err, h.config.showErrorDetail)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, &catalog.ValidationError{Message: "Invalid ID"}, h.config.showErrorDetail)
		return uuid.Nil, false
	}
	return id, true
}

func (h *AdminHandler) parseForm(r *http.Request) (*multipart.Form, error) {
	err := r.ParseMultipartForm(h.config.maxUploadMemory)
	switch {
	case err == nil:
		return r.MultipartForm, nil
	case errors.Is(err, http.ErrNotMultipart):
		// No parts at all; validation reports the missing files.
		return &multipart.Form{}, nil
	default:
		return nil, &catalog.ValidationError{Message: "Malformed multipart body: " + err.Error()}
	}
}

func formValue(form *multipart.Form, name string) string {
	if values := form.Value[name]; len(values) > 0 {
		return values[0]
	}
	return ""
}

func formFile(form *multipart.Form, name string) *catalog.File {
	files := form.File[name]
	if len(files) == 0 {
		return nil
	}
	fh := files[0]
	return &catalog.File{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

func removeForm(form *multipart.Form) {
	if form.File == nil {
		return
	}
	if err := form.RemoveAll(); err != nil {
		slog.Warn("Failed to remove multipart temp files", "error", err)
	}
}

// CatalogHandler serves read-only catalog lookups
type CatalogHandler struct {
	service catalog.Service
	config  handlerConfig
}

func NewCatalogHandler(service catalog.Service, opts ...HandlerOption) *CatalogHandler {
	return &CatalogHandler{
		service: service,
		config:  newHandlerConfig(opts),
	}
}

// SongRoutes returns the router mounted at /songs
func (h *CatalogHandler) SongRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{id}", h.GetSong)
	return r
}

// AlbumRoutes returns the router mounted at /albums
func (h *CatalogHandler) AlbumRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{id}", h.GetAlbum)
	return r
}

func (h *CatalogHandler) GetSong(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, &catalog.ValidationError{Message: "Invalid song ID"}, h.config.showErrorDetail)
		return
	}

	song, err := h.service.GetSong(r.Context(), id)
	if err != nil {
		writeError(w, r, err, h.config.showErrorDetail)
		return
	}
	render.JSON(w, r, song)
}

func (h *CatalogHandler) GetAlbum(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, &catalog.ValidationError{Message: "Invalid album ID"}, h.config.showErrorDetail)
		return
	}

	album, err := h.service.GetAlbum(r.Context(), id)
	if err != nil {
		writeError(w, r, err, h.config.showErrorDetail)
		return
	}
	render.JSON(w, r, album)
}
