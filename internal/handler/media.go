package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"tush00nka/teledrive/internal/gallery"
	"tush00nka/teledrive/internal/model"
	"tush00nka/teledrive/internal/pkg/httputils"
	"tush00nka/teledrive/internal/service"
)

// multipartOverhead is allowed on top of the file limit for the other form fields.
const multipartOverhead = 1 << 20

// UploadHistory lists journaled uploads of a session.
type UploadHistory interface {
	ListBySession(ctx context.Context, sessionID string, limit int) ([]model.UploadRecord, error)
}

type MediaHandler struct {
	sessions service.GallerySessions
	history  UploadHistory
	maxBytes int64
}

// NewMediaHandler builds the gallery routes. history may be nil when the
// upload journal is disabled.
func NewMediaHandler(sessions service.GallerySessions, history UploadHistory, maxBytes int64) *MediaHandler {
	if maxBytes <= 0 {
		maxBytes = gallery.DefaultMaxUploadBytes
	}
	return &MediaHandler{sessions: sessions, history: history, maxBytes: maxBytes}
}

func (h *MediaHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/media", h.snapshot).Methods("GET", "OPTIONS")
	router.HandleFunc("/media/reload", h.reload).Methods("POST", "OPTIONS")
	router.HandleFunc("/media/search", h.search).Methods("POST", "OPTIONS")
	router.HandleFunc("/media/sort", h.sort).Methods("PUT", "OPTIONS")
	router.HandleFunc("/media/upload", h.upload).Methods("POST", "OPTIONS")
	router.HandleFunc("/media/uploads", h.uploads).Methods("GET", "OPTIONS")
	router.HandleFunc("/media/{id}", h.preview).Methods("GET", "OPTIONS")
}

type RedirectResponse struct {
	Message  string `json:"message"`
	Redirect string `json:"redirect"`
}

type SearchRequest struct {
	Term string `json:"term"`
}

type SortRequest struct {
	Key   model.SortKey   `json:"key"`
	Order model.SortOrder `json:"order"`
}

type UploadResponse struct {
	Message     string          `json:"message"`
	Item        model.MediaItem `json:"item"`
	Provisional bool            `json:"provisional"`
}

// @Summary Gallery
// @Description Current gallery view. The first call checks the login and loads the collection.
// @ID media-snapshot
// @Tags media
// @Produce json
// @Success 200 {object} gallery.Snapshot
// @Failure 401 {object} RedirectResponse
// @Router /media [get]
func (h *MediaHandler) snapshot(w http.ResponseWriter, r *http.Request) {
	s, ok := mustSession(w, r)
	if !ok {
		return
	}

	if s.Controller.AuthState() != gallery.AuthAuthenticated {
		if h.sessions.Mount(r.Context(), s) != gallery.AuthAuthenticated {
			httputils.ResponseJSON(w, http.StatusUnauthorized, RedirectResponse{
				Message:  "Not logged in",
				Redirect: "/login",
			})
			return
		}
	} else {
		// вход через sign_in ещё не загрузил коллекцию
		s.Controller.EnsureLoaded(r.Context())
	}

	httputils.ResponseJSON(w, http.StatusOK, s.Controller.Snapshot())
}

// requireLogin answers 401 unless the session has been mounted successfully.
func requireLogin(w http.ResponseWriter, s *service.Session) bool {
	if s.Controller.AuthState() == gallery.AuthAuthenticated {
		return true
	}
	httputils.ResponseJSON(w, http.StatusUnauthorized, RedirectResponse{
		Message:  "Not logged in",
		Redirect: "/login",
	})
	return false
}

// @Summary Reload
// @Description Fetch the whole collection again. Failures are reported as notices.
// @ID media-reload
// @Tags media
// @Produce json
// @Success 200 {object} gallery.Snapshot
// @Failure 401 {object} RedirectResponse
// @Router /media/reload [post]
func (h *MediaHandler) reload(w http.ResponseWriter, r *http.Request) {
	s, ok := mustSession(w, r)
	if !ok || !requireLogin(w, s) {
		return
	}

	s.Controller.Load(r.Context())
	httputils.ResponseJSON(w, http.StatusOK, s.Controller.Snapshot())
}

// @Summary Search
// @Description Filter the collection by name and tags. An empty term shows everything.
// @ID media-search
// @Tags media
// @Accept json
// @Produce json
// @Param request body SearchRequest true "Search term"
// @Success 200 {object} gallery.Snapshot
// @Failure 400 {object} httputils.ErrorResponse
// @Failure 401 {object} RedirectResponse
// @Router /media/search [post]
func (h *MediaHandler) search(w http.ResponseWriter, r *http.Request) {
	s, ok := mustSession(w, r)
	if !ok || !requireLogin(w, s) {
		return
	}

	var request SearchRequest
	if err := httputils.DecodeJSON(r, &request); err != nil {
		httputils.ResponseError(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	s.Controller.EnsureLoaded(r.Context())
	s.Controller.Search(r.Context(), request.Term)
	httputils.ResponseJSON(w, http.StatusOK, s.Controller.Snapshot())
}

// @Summary Sort
// @Description Change the sort order of the displayed items
// @ID media-sort
// @Tags media
// @Accept json
// @Produce json
// @Param request body SortRequest true "Sort key and order"
// @Success 200 {object} gallery.Snapshot
// @Failure 400 {object} httputils.ErrorResponse
// @Failure 401 {object} RedirectResponse
// @Router /media/sort [put]
func (h *MediaHandler) sort(w http.ResponseWriter, r *http.Request) {
	s, ok := mustSession(w, r)
	if !ok || !requireLogin(w, s) {
		return
	}

	var request SortRequest
	if err := httputils.DecodeJSON(r, &request); err != nil {
		httputils.ResponseError(w, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := s.Controller.SetSort(model.SortSpec{Key: request.Key, Order: request.Order}); err != nil {
		writeError(w, err)
		return
	}
	httputils.ResponseJSON(w, http.StatusOK, s.Controller.Snapshot())
}

// @Summary Upload
// @Description Upload a file to Saved Messages
// @ID media-upload
// @Tags media
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "File"
// @Param fileName formData string true "Display name"
// @Param tags formData string false "Comma separated tags"
// @Success 201 {object} UploadResponse
// @Success 202 {object} UploadResponse
// @Failure 400 {object} httputils.ErrorResponse
// @Failure 401 {object} RedirectResponse
// @Failure 413 {object} httputils.ErrorResponse
// @Failure 502 {object} httputils.ErrorResponse
// @Router /media/upload [post]
func (h *MediaHandler) upload(w http.ResponseWriter, r *http.Request) {
	s, ok := mustSession(w, r)
	if !ok || !requireLogin(w, s) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputils.ResponseFieldError(w, http.StatusRequestEntityTooLarge, "file", "File is too large.")
			return
		}
		httputils.ResponseError(w, http.StatusBadRequest, "Invalid upload form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	req := gallery.UploadRequest{
		FileName: r.FormValue("fileName"),
		Tags:     r.FormValue("tags"),
	}

	file, header, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		// пустой запрос отклонит валидация
	case err != nil:
		httputils.ResponseError(w, http.StatusBadRequest, "Invalid upload form")
		return
	default:
		defer file.Close()
		content, err := io.ReadAll(file)
		if err != nil {
			httputils.ResponseError(w, http.StatusBadRequest, "Failed to read the uploaded file")
			return
		}
		req.Content = content
		req.OriginalName = header.Filename
		req.ContentType = header.Header.Get("Content-Type")
	}

	result, err := h.sessions.Upload(r.Context(), s, req)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Provisional {
		status = http.StatusAccepted
	}
	httputils.ResponseJSON(w, status, UploadResponse{
		Message:     result.Message,
		Item:        result.Item,
		Provisional: result.Provisional,
	})
}

// @Summary Preview
// @Description One item of the collection, for the preview dialog
// @ID media-preview
// @Tags media
// @Produce json
// @Param id path string true "Item ID"
// @Success 200 {object} model.MediaItem
// @Failure 401 {object} RedirectResponse
// @Failure 404 {object} httputils.ErrorResponse
// @Router /media/{id} [get]
func (h *MediaHandler) preview(w http.ResponseWriter, r *http.Request) {
	s, ok := mustSession(w, r)
	if !ok || !requireLogin(w, s) {
		return
	}

	s.Controller.EnsureLoaded(r.Context())
	item, found := s.Controller.Preview(mux.Vars(r)["id"])
	if !found {
		httputils.ResponseError(w, http.StatusNotFound, "Media item not found")
		return
	}
	httputils.ResponseJSON(w, http.StatusOK, item)
}

type UploadHistoryEntry struct {
	LocalID     string             `json:"localId"`
	RemoteID    string             `json:"remoteId,omitempty"`
	FileName    string             `json:"fileName"`
	ContentType string             `json:"contentType"`
	SizeBytes   int64              `json:"sizeBytes"`
	Status      model.UploadStatus `json:"status"`
	Message     string             `json:"message,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
}

const uploadHistoryLimit = 50

// @Summary Upload history
// @Description Recent upload attempts of this session
// @ID media-uploads
// @Tags media
// @Produce json
// @Success 200 {array} UploadHistoryEntry
// @Failure 401 {object} RedirectResponse
// @Failure 404 {object} httputils.ErrorResponse
// @Router /media/uploads [get]
func (h *MediaHandler) uploads(w http.ResponseWriter, r *http.Request) {
	s, ok := mustSession(w, r)
	if !ok || !requireLogin(w, s) {
		return
	}
	if h.history == nil {
		httputils.ResponseError(w, http.StatusNotFound, "Upload history is disabled")
		return
	}

	records, err := h.history.ListBySession(r.Context(), s.ID(), uploadHistoryLimit)
	if err != nil {
		httputils.ResponseError(w, http.StatusInternalServerError, "Failed to load upload history")
		return
	}

	entries := make([]UploadHistoryEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, UploadHistoryEntry{
			LocalID:     rec.ProvisionalID,
			RemoteID:    rec.RemoteID,
			FileName:    rec.FileName,
			ContentType: rec.ContentType,
			SizeBytes:   rec.SizeBytes,
			Status:      rec.Status,
			Message:     rec.Message,
			CreatedAt:   rec.CreatedAt,
		})
	}
	httputils.ResponseJSON(w, http.StatusOK, entries)
}
