package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kavrelis/streamtube/internal/domain"
	"github.com/kavrelis/streamtube/internal/repository"
	"github.com/kavrelis/streamtube/internal/service"
	"github.com/kavrelis/streamtube/pkg/httputil"
	"github.com/kavrelis/streamtube/pkg/pagination"
	"github.com/kavrelis/streamtube/pkg/validator"
)

// videoMaxBytes bounds a video upload including its thumbnail.
const videoMaxBytes = 512 << 20

// VideoHandler handles video publishing and browsing endpoints.
type VideoHandler struct {
	service *service.VideoService
	logger  *slog.Logger
}

// NewVideoHandler creates a video HTTP handler.
func NewVideoHandler(svc *service.VideoService, logger *slog.Logger) *VideoHandler {
	return &VideoHandler{service: svc, logger: logger}
}

// List handles GET /api/v1/videos.
func (h *VideoHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.VideoFilter{
		Query:   q.Get("query"),
		OwnerID: q.Get("owner_id"),
		SortBy:  q.Get("sort_by"),
		SortDir: q.Get("sort_dir"),
	}

	result, err := h.service.List(r.Context(), filter, pagination.FromRequest(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, result, "videos")
}

// Create handles POST /api/v1/videos (multipart).
func (h *VideoHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, videoMaxBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	defer cleanupMultipart(r)

	duration, _ := strconv.ParseFloat(r.FormValue("duration"), 64)
	req := domain.PublishVideoRequest{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Duration:    duration,
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	videoFile, err := fileInput(r, "video", "videos")
	if err != nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, "video file is required")
		return
	}
	defer videoFile.close()

	thumbFile, err := fileInput(r, "thumbnail", "thumbnails")
	if err != nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, "thumbnail file is required")
		return
	}
	defer thumbFile.close()

	video, err := h.service.Publish(r.Context(), service.PublishInput{
		OwnerID:     user.ID,
		Title:       req.Title,
		Description: req.Description,
		Duration:    req.Duration,
		Video:       videoFile.input,
		Thumbnail:   thumbFile.input,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, http.StatusCreated, video, "video published")
}

// Get handles GET /api/v1/videos/{id}.
func (h *VideoHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	videoID := chi.URLParam(r, "id")

	video, err := h.service.Get(r.Context(), videoID, user.ID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, video, "video")
}
