package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/kavrelis/streamtube/internal/domain"
	"github.com/kavrelis/streamtube/internal/service"
	"github.com/kavrelis/streamtube/internal/storage"
	"github.com/kavrelis/streamtube/pkg/httputil"
	"github.com/kavrelis/streamtube/pkg/validator"
)

// Cookie slot names for the two bearer credentials.
const (
	accessTokenCookie  = "access_token"
	refreshTokenCookie = "refresh_token"
)

// registerMaxBytes bounds the multipart registration body (avatar and
// cover images included).
const registerMaxBytes = 20 << 20

// CookieConfig controls the auth cookie attributes.
type CookieConfig struct {
	Domain        string
	Secure        bool
	AccessMaxAge  time.Duration
	RefreshMaxAge time.Duration
}

// AuthHandler handles registration and session endpoints.
type AuthHandler struct {
	service *service.UserService
	cookies CookieConfig
	logger  *slog.Logger
}

// NewAuthHandler creates an auth HTTP handler.
func NewAuthHandler(svc *service.UserService, cookies CookieConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, cookies: cookies, logger: logger}
}

// RefreshRequest is the JSON body accepted by the refresh endpoint for
// clients that do not use cookies.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// SessionResponse pairs the user with the issued tokens. The tokens are
// also set as cookies; the body copy serves non-cookie clients.
type SessionResponse struct {
	User   *domain.User      `json:"user,omitempty"`
	Tokens *domain.TokenPair `json:"tokens"`
}

// Register handles POST /api/v1/auth/register (multipart).
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, registerMaxBytes)
	if err := r.ParseMultipartForm(registerMaxBytes); err != nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	defer cleanupMultipart(r)

	req := domain.RegisterUserRequest{
		Username: r.FormValue("username"),
		Email:    r.FormValue("email"),
		FullName: r.FormValue("full_name"),
		Password: r.FormValue("password"),
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	avatar, err := fileInput(r, "avatar", "avatars")
	if err != nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, "avatar file is required")
		return
	}
	defer avatar.close()

	var coverInput *storage.UploadInput
	cover, err := fileInput(r, "cover_image", "covers")
	if err == nil {
		defer cover.close()
		coverInput = cover.input
	}

	user, err := h.service.Register(r.Context(), service.RegisterInput{
		Username:   req.Username,
		Email:      req.Email,
		FullName:   req.FullName,
		Password:   req.Password,
		Avatar:     avatar.input,
		CoverImage: coverInput,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, http.StatusCreated, user, "user registered successfully")
}

// Login handles POST /api/v1/auth/login. The identifier field matches
// either username or email; plain username/email fields are accepted
// too for older clients.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Identifier string `json:"identifier"`
		Username   string `json:"username"`
		Email      string `json:"email"`
		Password   string `json:"password"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&body); err != nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	identifier := body.Identifier
	if identifier == "" {
		identifier = body.Username
	}
	if identifier == "" {
		identifier = body.Email
	}

	user, pair, err := h.service.Login(r.Context(), identifier, body.Password)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.setAuthCookies(w, pair)
	httputil.WriteSuccess(w, http.StatusOK, SessionResponse{User: user, Tokens: pair}, "logged in successfully")
}

// Refresh handles POST /api/v1/auth/refresh. The token is taken from
// the refresh cookie when present, otherwise from the body.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	token := ""
	if c, err := r.Cookie(refreshTokenCookie); err == nil {
		token = c.Value
	}
	if token == "" {
		var req RefreshRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err == nil {
			token = req.RefreshToken
		}
	}

	pair, err := h.service.Refresh(r.Context(), token)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.setAuthCookies(w, pair)
	httputil.WriteSuccess(w, http.StatusOK, SessionResponse{Tokens: pair}, "session refreshed")
}

// Logout handles POST /api/v1/auth/logout. Always succeeds for an
// authenticated caller, even when no session is active.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	if err := h.service.Logout(r.Context(), user.ID); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.clearAuthCookies(w)
	httputil.WriteSuccess(w, http.StatusOK, nil, "logged out successfully")
}

// ChangePassword handles POST /api/v1/auth/change-password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	var req domain.ChangePasswordRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	if err := h.service.ChangePassword(r.Context(), user.ID, req.OldPassword, req.NewPassword); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	// The stored refresh token is gone; drop the cookies too.
	h.clearAuthCookies(w)
	httputil.WriteSuccess(w, http.StatusOK, nil, "password changed successfully")
}

func (h *AuthHandler) setAuthCookies(w http.ResponseWriter, pair *domain.TokenPair) {
	http.SetCookie(w, h.cookie(accessTokenCookie, pair.AccessToken, h.cookies.AccessMaxAge))
	http.SetCookie(w, h.cookie(refreshTokenCookie, pair.RefreshToken, h.cookies.RefreshMaxAge))
}

func (h *AuthHandler) clearAuthCookies(w http.ResponseWriter) {
	http.SetCookie(w, h.cookie(accessTokenCookie, "", -time.Second))
	http.SetCookie(w, h.cookie(refreshTokenCookie, "", -time.Second))
}

func (h *AuthHandler) cookie(name, value string, maxAge time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   h.cookies.Domain,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteStrictMode,
	}
	if maxAge < 0 {
		c.MaxAge = -1
	} else {
		c.MaxAge = int(maxAge / time.Second)
	}
	return c
}

// formFile wraps an uploaded file together with its storage input.
type formFile struct {
	input *storage.UploadInput
	close func()
}

// fileInput pulls one uploaded file out of the parsed multipart form
// and keys it under prefix with a fresh UUID.
func fileInput(r *http.Request, field, prefix string) (*formFile, error) {
	f, header, err := r.FormFile(field)
	if err != nil {
		return nil, err
	}

	key := prefix + "/" + uuid.New().String() + filepath.Ext(header.Filename)
	return &formFile{
		input: &storage.UploadInput{
			Key:         key,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Data:        f,
		},
		close: func() { _ = f.Close() },
	}, nil
}

func cleanupMultipart(r *http.Request) {
	if r.MultipartForm != nil {
		_ = r.MultipartForm.RemoveAll()
	}
}
