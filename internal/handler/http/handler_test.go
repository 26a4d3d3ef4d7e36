package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavrelis/streamtube/internal/auth"
	"github.com/kavrelis/streamtube/internal/domain"
	"github.com/kavrelis/streamtube/internal/event"
	"github.com/kavrelis/streamtube/internal/repository"
	"github.com/kavrelis/streamtube/internal/service"
	"github.com/kavrelis/streamtube/internal/storage/memory"
	apperrors "github.com/kavrelis/streamtube/pkg/errors"
	"github.com/kavrelis/streamtube/pkg/health"
	pkgkafka "github.com/kavrelis/streamtube/pkg/kafka"
	"github.com/kavrelis/streamtube/pkg/middleware"
	"github.com/kavrelis/streamtube/pkg/pagination"
)

// --- In-memory fakes ---

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*domain.User)}
}

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == user.Username || u.Email == user.Email {
			return apperrors.AlreadyExists("user", "username", user.Username)
		}
	}
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, apperrors.ErrNotFound
}

func (r *fakeUserRepo) GetByUsernameOrEmail(_ context.Context, identifier string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == identifier || u.Email == identifier {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *fakeUserRepo) UpdateProfile(_ context.Context, id string, req *domain.UpdateProfileRequest) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, apperrors.NotFound("user", id)
	}
	if req.FullName != nil {
		u.FullName = *req.FullName
	}
	if req.Email != nil {
		u.Email = *req.Email
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) UpdateAvatar(_ context.Context, id, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.AvatarURL = url
		return nil
	}
	return apperrors.NotFound("user", id)
}

func (r *fakeUserRepo) UpdateCoverImage(_ context.Context, id, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.CoverImageURL = url
		return nil
	}
	return apperrors.NotFound("user", id)
}

func (r *fakeUserRepo) UpdatePassword(_ context.Context, id, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.PasswordHash = passwordHash
		u.RefreshToken = nil
		return nil
	}
	return apperrors.NotFound("user", id)
}

func (r *fakeUserRepo) SetRefreshToken(_ context.Context, id, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.RefreshToken = &token
		return nil
	}
	return apperrors.NotFound("user", id)
}

func (r *fakeUserRepo) RotateRefreshToken(_ context.Context, id, presented, newToken string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok || u.RefreshToken == nil || *u.RefreshToken != presented {
		return false, nil
	}
	u.RefreshToken = &newToken
	return true, nil
}

func (r *fakeUserRepo) ClearRefreshToken(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.RefreshToken = nil
	}
	return nil
}

func (r *fakeUserRepo) GetChannelProfile(_ context.Context, username string) (*domain.ChannelProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			return &domain.ChannelProfile{ID: u.ID, Username: u.Username, FullName: u.FullName}, nil
		}
	}
	return nil, apperrors.NotFound("channel", username)
}

func (r *fakeUserRepo) GetWatchHistory(_ context.Context, _ string, _ pagination.Params) ([]domain.Video, int, error) {
	return []domain.Video{}, 0, nil
}

type fakeVideoRepo struct {
	mu     sync.Mutex
	videos map[string]*domain.Video
}

func newFakeVideoRepo() *fakeVideoRepo {
	return &fakeVideoRepo{videos: make(map[string]*domain.Video)}
}

func (r *fakeVideoRepo) Create(_ context.Context, v *domain.Video) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *v
	r.videos[v.ID] = &cp
	return nil
}

func (r *fakeVideoRepo) GetByID(_ context.Context, id string) (*domain.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.videos[id]; ok {
		cp := *v
		return &cp, nil
	}
	return nil, apperrors.NotFound("video", id)
}

func (r *fakeVideoRepo) List(_ context.Context, _ repository.VideoFilter, _ pagination.Params) ([]domain.Video, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Video, 0, len(r.videos))
	for _, v := range r.videos {
		out = append(out, *v)
	}
	return out, len(out), nil
}

func (r *fakeVideoRepo) IncrementViews(_ context.Context, videoID, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.videos[videoID]; ok {
		v.Views++
		return nil
	}
	return apperrors.NotFound("video", videoID)
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, *pkgkafka.Event) error { return nil }

// --- Fixture ---

type fixture struct {
	router http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	tokens := auth.NewTokenManager("access-secret-for-tests", "refresh-secret-for-tests", 15*time.Minute, 240*time.Hour)
	producer := event.NewProducer(noopPublisher{}, logger)
	blobs := memory.New("http://localhost:8080")

	userSvc := service.NewUserService(newFakeUserRepo(), tokens, auth.NewPasswordHasher(), blobs, producer, nil, logger)
	videoSvc := service.NewVideoService(newFakeVideoRepo(), blobs, producer, logger)

	router := NewRouter(RouterConfig{
		UserService:  userSvc,
		VideoService: videoSvc,
		Health:       health.NewHandler(),
		Cookies:      CookieConfig{Secure: true, AccessMaxAge: 15 * time.Minute, RefreshMaxAge: 240 * time.Hour},
		CORS:         middleware.CORSConfig{AllowedOrigins: []string{"*"}},
		Logger:       logger,
	})

	return &fixture{router: router}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	StatusCode int             `json:"status_code"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Success    bool            `json:"success"`
}

func decodeEnvelope(t *testing.T, body io.Reader) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.NewDecoder(body).Decode(&env))
	return env
}

func registerForm(t *testing.T, username, email, password string, withAvatar bool) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	require.NoError(t, mw.WriteField("username", username))
	require.NoError(t, mw.WriteField("email", email))
	require.NoError(t, mw.WriteField("full_name", "Ana Petrova"))
	require.NoError(t, mw.WriteField("password", password))
	if withAvatar {
		fw, err := mw.CreateFormFile("avatar", "avatar.png")
		require.NoError(t, err)
		_, err = fw.Write([]byte("png-bytes"))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return buf, mw.FormDataContentType()
}

func (f *fixture) register(t *testing.T) {
	t.Helper()
	body, ct := registerForm(t, "ana", "ana@x.io", "Secret123", true)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", body)
	req.Header.Set("Content-Type", ct)
	rec := f.do(req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (f *fixture) login(t *testing.T) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"identifier":"ana","password":"Secret123"}`))
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return rec
}

func cookieByName(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// --- Tests ---

func TestRegister_Created(t *testing.T) {
	f := newFixture(t)

	body, ct := registerForm(t, "ana", "ana@x.io", "Secret123", true)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", body)
	req.Header.Set("Content-Type", ct)
	rec := f.do(req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	env := decodeEnvelope(t, rec.Body)
	assert.True(t, env.Success)
	assert.Equal(t, http.StatusCreated, env.StatusCode)
	// Sensitive fields never appear in the projection.
	assert.NotContains(t, string(env.Data), "password")
	assert.NotContains(t, string(env.Data), "refresh_token")
}

func TestRegister_MissingAvatar(t *testing.T) {
	f := newFixture(t)

	body, ct := registerForm(t, "ana", "ana@x.io", "Secret123", false)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", body)
	req.Header.Set("Content-Type", ct)
	rec := f.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec.Body)
	assert.False(t, env.Success)
}

func TestRegister_Duplicate(t *testing.T) {
	f := newFixture(t)
	f.register(t)

	body, ct := registerForm(t, "ana", "other@x.io", "Secret123", true)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", body)
	req.Header.Set("Content-Type", ct)
	rec := f.do(req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLogin_SetsCookiesAndBodyTokens(t *testing.T) {
	f := newFixture(t)
	f.register(t)

	rec := f.login(t)

	access := cookieByName(rec, "access_token")
	refresh := cookieByName(rec, "refresh_token")
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	assert.True(t, access.HttpOnly)
	assert.True(t, access.Secure)
	assert.Equal(t, http.SameSiteStrictMode, access.SameSite)
	assert.NotEmpty(t, refresh.Value)

	env := decodeEnvelope(t, rec.Body)
	assert.True(t, env.Success)
	assert.Contains(t, string(env.Data), "access_token")
}

func TestLogin_InvalidCredentialsIndistinguishable(t *testing.T) {
	f := newFixture(t)
	f.register(t)

	wrongPw := f.do(httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"identifier":"ana","password":"wrong"}`)))
	unknown := f.do(httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"identifier":"nobody","password":"Secret123"}`)))

	assert.Equal(t, http.StatusUnauthorized, wrongPw.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, wrongPw.Body.String(), unknown.Body.String())
}

func TestLogin_MissingIdentifier(t *testing.T) {
	f := newFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"password":"Secret123"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthGate_RejectsMissingAndBadTokens(t *testing.T) {
	f := newFixture(t)

	noToken := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil))
	assert.Equal(t, http.StatusUnauthorized, noToken.Code)

	badHeader := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	badHeader.Header.Set("Authorization", "Bearer not-a-token")
	assert.Equal(t, http.StatusUnauthorized, f.do(badHeader).Code)

	// Same envelope either way.
	assert.Equal(t, noToken.Body.String(), f.do(badHeader).Body.String())
}

func TestAuthGate_AcceptsHeaderAndCookie(t *testing.T) {
	f := newFixture(t)
	f.register(t)
	login := f.login(t)
	access := cookieByName(login, "access_token")

	viaHeader := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	viaHeader.Header.Set("Authorization", "Bearer "+access.Value)
	rec := f.do(viaHeader)
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec.Body)
	assert.Contains(t, string(env.Data), `"username":"ana"`)
	assert.NotContains(t, string(env.Data), "password")

	viaCookie := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	viaCookie.AddCookie(access)
	assert.Equal(t, http.StatusOK, f.do(viaCookie).Code)
}

func TestRefresh_RotatesAndRejectsReplay(t *testing.T) {
	f := newFixture(t)
	f.register(t)
	login := f.login(t)
	oldRefresh := cookieByName(login, "refresh_token")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
	req.AddCookie(oldRefresh)
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	newRefresh := cookieByName(rec, "refresh_token")
	require.NotNil(t, newRefresh)
	assert.NotEqual(t, oldRefresh.Value, newRefresh.Value)

	// Replaying the superseded token fails.
	replay := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
	replay.AddCookie(oldRefresh)
	assert.Equal(t, http.StatusUnauthorized, f.do(replay).Code)
}

func TestRefresh_BodyTokenForNonCookieClients(t *testing.T) {
	f := newFixture(t)
	f.register(t)
	login := f.login(t)
	refresh := cookieByName(login, "refresh_token")

	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh",
		strings.NewReader(`{"refresh_token":"`+refresh.Value+`"}`)))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRefresh_MissingToken(t *testing.T) {
	f := newFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout_IdempotentAndClearsCookies(t *testing.T) {
	f := newFixture(t)
	f.register(t)
	login := f.login(t)
	access := cookieByName(login, "access_token")
	refresh := cookieByName(login, "refresh_token")

	logout := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
		req.AddCookie(access)
		return f.do(req)
	}

	first := logout()
	require.Equal(t, http.StatusOK, first.Code)
	cleared := cookieByName(first, "refresh_token")
	require.NotNil(t, cleared)
	assert.Less(t, cleared.MaxAge, 0)

	// Logout again: still 200.
	assert.Equal(t, http.StatusOK, logout().Code)

	// The cleared refresh token no longer rotates.
	replay := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
	replay.AddCookie(refresh)
	assert.Equal(t, http.StatusUnauthorized, f.do(replay).Code)
}

func TestChangePassword_WrongOldPassword(t *testing.T) {
	f := newFixture(t)
	f.register(t)
	login := f.login(t)
	access := cookieByName(login, "access_token")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/change-password",
		strings.NewReader(`{"old_password":"wrong","new_password":"NewSecret456"}`))
	req.AddCookie(access)
	assert.Equal(t, http.StatusUnauthorized, f.do(req).Code)
}

func TestChangePassword_MissingFields(t *testing.T) {
	f := newFixture(t)
	f.register(t)
	login := f.login(t)
	access := cookieByName(login, "access_token")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/change-password",
		strings.NewReader(`{}`))
	req.AddCookie(access)
	assert.Equal(t, http.StatusBadRequest, f.do(req).Code)
}

func TestVideos_PublishAndFetch(t *testing.T) {
	f := newFixture(t)
	f.register(t)
	login := f.login(t)
	access := cookieByName(login, "access_token")

	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	require.NoError(t, mw.WriteField("title", "channel intro"))
	require.NoError(t, mw.WriteField("duration", "12.5"))
	fw, err := mw.CreateFormFile("video", "intro.mp4")
	require.NoError(t, err)
	_, err = fw.Write([]byte("mp4-bytes"))
	require.NoError(t, err)
	tw, err := mw.CreateFormFile("thumbnail", "intro.png")
	require.NoError(t, err)
	_, err = tw.Write([]byte("png-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/videos", buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.AddCookie(access)
	rec := f.do(req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Data domain.Video `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	get := httptest.NewRequest(http.MethodGet, "/api/v1/videos/"+created.Data.ID, nil)
	get.AddCookie(access)
	got := f.do(get)
	require.Equal(t, http.StatusOK, got.Code)
	env := decodeEnvelope(t, got.Body)
	assert.Contains(t, string(env.Data), "channel intro")
}

func TestHealth_Liveness(t *testing.T) {
	f := newFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
