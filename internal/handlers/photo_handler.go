package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/photosync/photosync/internal/models"
	"github.com/photosync/photosync/internal/observability"
	"github.com/photosync/photosync/internal/repository"
	"github.com/photosync/photosync/internal/services"
)

// multipart bodies above this are spooled to disk by ParseMultipartForm
const multipartMemory = 32 << 20

// PhotoHandler handles the intake endpoints
type PhotoHandler struct {
	repo   repository.PhotoRepo
	blobs  services.BlobStore
	intake *services.IntakeService
}

// NewPhotoHandler creates a new PhotoHandler
func NewPhotoHandler(repo repository.PhotoRepo, blobs services.BlobStore, intake *services.IntakeService) *PhotoHandler {
	return &PhotoHandler{
		repo:   repo,
		blobs:  blobs,
		intake: intake,
	}
}

// Upload receives a single photo as multipart/form-data. Content the
// server already holds is answered with the existing ID.
// @Summary Upload a photo
// @Description Store a photo. Duplicates are detected by SHA-256 and answered with the existing ID.
// @Tags photos
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Photo file"
// @Param originalFilename formData string false "Original filename"
// @Param dateTaken formData string false "Capture date (RFC3339)"
// @Param deviceId formData string false "Uploading device"
// @Success 200 {object} models.UploadResponse
// @Failure 400 {object} models.UploadResponse
// @Failure 413 {object} models.UploadResponse
// @Failure 415 {object} models.UploadResponse
// @Failure 500 {object} models.UploadResponse
// @Security BearerAuth
// @Router /api/upload [post]
func (h *PhotoHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		h.respondUpload(w, http.StatusBadRequest, models.UploadResponse{Message: "Request must be multipart/form-data."})
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.respondUpload(w, http.StatusBadRequest, models.UploadResponse{Message: "File is empty"})
		return
	}
	defer file.Close()

	filename := r.FormValue("originalFilename")
	if filename == "" {
		filename = header.Filename
	}

	req := services.IntakeRequest{
		Body:     file,
		Filename: filename,
		DeviceID: r.FormValue("deviceId"),
	}
	if s := r.FormValue("dateTaken"); s != "" {
		if parsed, err := time.Parse(time.RFC3339, s); err == nil {
			req.DateTaken = &parsed
		}
	}

	photo, duplicate, err := h.intake.Receive(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrEmptyFile):
			h.respondUpload(w, http.StatusBadRequest, models.UploadResponse{Message: "File is empty"})
		case errors.Is(err, models.ErrFileTooLarge):
			h.respondUpload(w, http.StatusRequestEntityTooLarge, models.UploadResponse{Message: err.Error()})
		case errors.Is(err, models.ErrInvalidExtension):
			h.respondUpload(w, http.StatusUnsupportedMediaType, models.UploadResponse{Message: err.Error()})
		default:
			observability.WithContext(r.Context()).WithError(err).Error("upload failed")
			h.respondUpload(w, http.StatusInternalServerError, models.UploadResponse{Message: "Upload failed"})
		}
		return
	}

	if duplicate {
		h.respondUpload(w, http.StatusOK, models.DuplicateUploadResponse(photo.ID))
		return
	}
	h.respondUpload(w, http.StatusOK, models.NewUploadResponse(photo.ID))
}

// CheckHashes reports which SHA-256 hashes the server already holds
// @Summary Check hashes
// @Tags photos
// @Accept json
// @Produce json
// @Param request body models.CheckHashesRequest true "Hashes to look up"
// @Success 200 {object} models.CheckHashesResult
// @Failure 400 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/photos/check [post]
func (h *PhotoHandler) CheckHashes(w http.ResponseWriter, r *http.Request) {
	var req models.CheckHashesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	if len(req.Hashes) == 0 {
		respondError(w, http.StatusBadRequest, "At least one hash is required.")
		return
	}

	const maxHashes = 1000
	if len(req.Hashes) > maxHashes {
		respondError(w, http.StatusBadRequest, "Maximum 1000 hashes can be checked at once.")
		return
	}

	normalized := make([]string, 0, len(req.Hashes))
	seen := make(map[string]bool)
	for _, hash := range req.Hashes {
		n := strings.ToLower(strings.TrimSpace(hash))
		if !seen[n] {
			normalized = append(normalized, n)
			seen[n] = true
		}
	}

	existing, err := h.repo.GetExistingHashes(r.Context(), normalized)
	if err != nil {
		observability.WithContext(r.Context()).WithError(err).Error("hash check failed")
		respondError(w, http.StatusInternalServerError, "Database error.")
		return
	}

	existingSet := make(map[string]bool, len(existing))
	for _, e := range existing {
		existingSet[e] = true
	}

	missing := make([]string, 0)
	for _, n := range normalized {
		if !existingSet[n] {
			missing = append(missing, n)
		}
	}

	respondJSON(w, http.StatusOK, models.CheckHashesResult{
		Existing: existing,
		Missing:  missing,
	})
}

// List returns photos newest first, paginated by skip and take
// @Summary List photos
// @Tags photos
// @Produce json
// @Param skip query int false "Offset"
// @Param take query int false "Page size"
// @Success 200 {object} models.PhotoListResponse
// @Security BearerAuth
// @Router /api/photos [get]
func (h *PhotoHandler) List(w http.ResponseWriter, r *http.Request) {
	skip := 0
	take := 50

	if s := r.URL.Query().Get("skip"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			skip = v
		}
	}
	if t := r.URL.Query().Get("take"); t != "" {
		if v, err := strconv.Atoi(t); err == nil && v >= 1 && v <= 100 {
			take = v
		}
	}

	photos, err := h.repo.GetAll(r.Context(), skip, take)
	if err != nil {
		observability.WithContext(r.Context()).WithError(err).Error("listing photos failed")
		respondError(w, http.StatusInternalServerError, "Database error.")
		return
	}

	totalCount, err := h.repo.GetCount(r.Context())
	if err != nil {
		observability.WithContext(r.Context()).WithError(err).Error("counting photos failed")
		respondError(w, http.StatusInternalServerError, "Database error.")
		return
	}

	responses := make([]models.PhotoResponse, len(photos))
	for i, p := range photos {
		responses[i] = models.PhotoToResponse(p)
	}

	respondJSON(w, http.StatusOK, models.PhotoListResponse{
		Photos:     responses,
		TotalCount: totalCount,
		Skip:       skip,
		Take:       take,
	})
}

// GetByID returns a single photo
// @Summary Get a photo
// @Tags photos
// @Produce json
// @Param id path string true "Photo ID"
// @Success 200 {object} models.PhotoResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/photos/{id} [get]
func (h *PhotoHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	photo, ok := h.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, models.PhotoToResponse(photo))
}

// Thumbnail streams the JPEG thumbnail of a photo
func (h *PhotoHandler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	photo, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if photo.ThumbPath == nil {
		respondError(w, http.StatusNotFound, "Thumbnail not available.")
		return
	}

	rc, err := h.blobs.Open(r.Context(), *photo.ThumbPath)
	if err != nil {
		observability.WithContext(r.Context()).WithError(err).Warnf("thumbnail %s unreadable", *photo.ThumbPath)
		respondError(w, http.StatusNotFound, "Thumbnail not available.")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=86400")
	io.Copy(w, rc)
}

// Delete removes a photo record together with its stored files
// @Summary Delete a photo
// @Tags photos
// @Param id path string true "Photo ID"
// @Success 204
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/photos/{id} [delete]
func (h *PhotoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	photo, ok := h.lookup(w, r)
	if !ok {
		return
	}

	deleted, err := h.repo.Delete(r.Context(), photo.ID)
	if err != nil {
		observability.WithContext(r.Context()).WithError(err).Error("deleting photo failed")
		respondError(w, http.StatusInternalServerError, "Database error.")
		return
	}
	if !deleted {
		respondError(w, http.StatusNotFound, "Photo not found.")
		return
	}

	paths := []string{photo.StoredPath}
	if photo.ThumbPath != nil {
		paths = append(paths, *photo.ThumbPath)
	}
	for _, p := range paths {
		if err := h.blobs.Delete(r.Context(), p); err != nil {
			observability.WithContext(r.Context()).WithError(err).Warnf("failed to remove %s", p)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// Test is a plain text liveness probe kept for older clients
func (h *PhotoHandler) Test(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "PhotoSync server up and running...")
}

func (h *PhotoHandler) lookup(w http.ResponseWriter, r *http.Request) (*models.Photo, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "Photo ID is required.")
		return nil, false
	}

	photo, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		observability.WithContext(r.Context()).WithError(err).Error("loading photo failed")
		respondError(w, http.StatusInternalServerError, "Database error.")
		return nil, false
	}
	if photo == nil {
		respondError(w, http.StatusNotFound, "Photo not found.")
		return nil, false
	}
	return photo, true
}

func (h *PhotoHandler) respondUpload(w http.ResponseWriter, status int, body models.UploadResponse) {
	respondJSON(w, status, body)
}
