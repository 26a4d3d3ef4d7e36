package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kavrelis/streamtube/internal/domain"
	"github.com/kavrelis/streamtube/internal/service"
	"github.com/kavrelis/streamtube/internal/storage"
	"github.com/kavrelis/streamtube/pkg/httputil"
	"github.com/kavrelis/streamtube/pkg/pagination"
	"github.com/kavrelis/streamtube/pkg/validator"
)

// imageMaxBytes bounds avatar and cover image uploads.
const imageMaxBytes = 10 << 20

// UserHandler handles profile and channel endpoints.
type UserHandler struct {
	service *service.UserService
	logger  *slog.Logger
}

// NewUserHandler creates a user HTTP handler.
func NewUserHandler(svc *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{service: svc, logger: logger}
}

// Me handles GET /api/v1/users/me.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	httputil.WriteSuccess(w, http.StatusOK, user, "current user")
}

// UpdateMe handles PATCH /api/v1/users/me.
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	var req domain.UpdateProfileRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	updated, err := h.service.UpdateProfile(r.Context(), user.ID, &req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, updated, "profile updated")
}

// UpdateAvatar handles PATCH /api/v1/users/me/avatar (multipart).
func (h *UserHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "avatar", "avatars", h.service.UpdateAvatar)
}

// UpdateCoverImage handles PATCH /api/v1/users/me/cover-image (multipart).
func (h *UserHandler) UpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "cover_image", "covers", h.service.UpdateCoverImage)
}

func (h *UserHandler) updateImage(
	w http.ResponseWriter,
	r *http.Request,
	field, prefix string,
	update func(ctx context.Context, userID string, file *storage.UploadInput) (string, error),
) {
	user := UserFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, imageMaxBytes)
	if err := r.ParseMultipartForm(imageMaxBytes); err != nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	defer cleanupMultipart(r)

	file, err := fileInput(r, field, prefix)
	if err != nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, field+" file is required")
		return
	}
	defer file.close()

	url, err := update(r.Context(), user.ID, file.input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, map[string]string{"url": url}, field+" updated")
}

// Channel handles GET /api/v1/users/{username}/channel.
func (h *UserHandler) Channel(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	profile, err := h.service.GetChannelProfile(r.Context(), username)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, profile, "channel profile")
}

// History handles GET /api/v1/users/me/history.
func (h *UserHandler) History(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	params := pagination.FromRequest(r)

	result, err := h.service.GetWatchHistory(r.Context(), user.ID, params)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, result, "watch history")
}
