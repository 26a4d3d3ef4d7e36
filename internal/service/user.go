package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kavrelis/streamtube/internal/auth"
	"github.com/kavrelis/streamtube/internal/domain"
	"github.com/kavrelis/streamtube/internal/event"
	"github.com/kavrelis/streamtube/internal/repository"
	"github.com/kavrelis/streamtube/internal/storage"
	apperrors "github.com/kavrelis/streamtube/pkg/errors"
	"github.com/kavrelis/streamtube/pkg/pagination"
)

// channelCacheTTL bounds how stale a cached channel profile may get.
const channelCacheTTL = 60 * time.Second

// UserService implements registration, the session lifecycle and
// profile operations.
type UserService struct {
	userRepo repository.UserRepository
	tokens   *auth.TokenManager
	hasher   *auth.PasswordHasher
	blobs    storage.Storage
	producer *event.Producer
	cache    *redis.Client
	logger   *slog.Logger
}

// NewUserService creates a user service. cache may be nil, in which
// case channel profiles are served straight from the store.
func NewUserService(
	userRepo repository.UserRepository,
	tokens *auth.TokenManager,
	hasher *auth.PasswordHasher,
	blobs storage.Storage,
	producer *event.Producer,
	cache *redis.Client,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		userRepo: userRepo,
		tokens:   tokens,
		hasher:   hasher,
		blobs:    blobs,
		producer: producer,
		cache:    cache,
		logger:   logger,
	}
}

// RegisterInput holds the parameters for registering a new user. Avatar
// is mandatory; CoverImage may be nil.
type RegisterInput struct {
	Username   string
	Email      string
	FullName   string
	Password   string
	Avatar     *storage.UploadInput
	CoverImage *storage.UploadInput
}

// Indistinguishable messages for every authentication failure branch.
// Distinguishing "no such user" from "wrong password" (or "stale" from
// "forged" on refresh) would leak information to an attacker.
const (
	msgInvalidCredentials = "invalid credentials"
	msgInvalidRefresh     = "invalid or expired refresh token"
)

// Register creates a new account. The password is hashed before the
// record is stored; the avatar upload is a hard precondition, the cover
// upload is best-effort.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	if input.Username == "" || input.Email == "" || input.FullName == "" || input.Password == "" {
		return nil, apperrors.InvalidInput("username, email, full name and password are required")
	}
	if input.Avatar == nil {
		return nil, apperrors.InvalidInput("avatar file is required")
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	avatar, err := s.blobs.Upload(ctx, input.Avatar)
	if err != nil {
		return nil, fmt.Errorf("upload avatar: %w", err)
	}

	coverURL := ""
	if input.CoverImage != nil {
		cover, err := s.blobs.Upload(ctx, input.CoverImage)
		if err != nil {
			s.logger.WarnContext(ctx, "cover image upload failed, continuing without it",
				slog.String("username", input.Username),
				slog.String("error", err.Error()),
			)
		} else {
			coverURL = cover.URL
		}
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:            uuid.New().String(),
		Username:      input.Username,
		Email:         input.Email,
		FullName:      input.FullName,
		PasswordHash:  hash,
		AvatarURL:     avatar.URL,
		CoverImageURL: coverURL,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	// Publish registration event (non-blocking on failure).
	if err := s.producer.PublishUserRegistered(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.registered event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)

	return user, nil
}

// Login authenticates by username or email and returns a fresh token
// pair. The issued refresh token becomes the user's single canonical
// one, superseding any previous session.
func (s *UserService) Login(ctx context.Context, identifier, password string) (*domain.User, *domain.TokenPair, error) {
	if identifier == "" {
		return nil, nil, apperrors.InvalidInput("username or email is required")
	}
	if password == "" {
		return nil, nil, apperrors.InvalidInput("password is required")
	}

	user, err := s.userRepo.GetByUsernameOrEmail(ctx, identifier)
	if err != nil {
		if errors.Is(err, apperrors.ErrUnavailable) {
			return nil, nil, err
		}
		return nil, nil, apperrors.Unauthorized(msgInvalidCredentials)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, nil, apperrors.Unauthorized(msgInvalidCredentials)
	}

	pair, err := s.issuePair(user)
	if err != nil {
		return nil, nil, err
	}

	if err := s.userRepo.SetRefreshToken(ctx, user.ID, pair.RefreshToken); err != nil {
		return nil, nil, fmt.Errorf("persist refresh token: %w", err)
	}

	s.logger.InfoContext(ctx, "user logged in", slog.String("user_id", user.ID))

	return user, pair, nil
}

// Refresh rotates the session: the presented refresh token must verify
// and byte-equal the stored canonical value, and is atomically replaced
// by a new one. A superseded token, even if unexpired and correctly
// signed, loses the compare-and-set and is rejected.
func (s *UserService) Refresh(ctx context.Context, presented string) (*domain.TokenPair, error) {
	if presented == "" {
		return nil, apperrors.Unauthorized(msgInvalidRefresh)
	}

	claims, err := s.tokens.VerifyRefreshToken(presented)
	if err != nil {
		return nil, apperrors.Unauthorized(msgInvalidRefresh)
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrUnavailable) {
			return nil, err
		}
		return nil, apperrors.Unauthorized(msgInvalidRefresh)
	}

	pair, err := s.issuePair(user)
	if err != nil {
		return nil, err
	}

	rotated, err := s.userRepo.RotateRefreshToken(ctx, user.ID, presented, pair.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}
	if !rotated {
		// The stored token has moved on: either this token was already
		// rotated, or it was replayed after the rightful client refreshed.
		s.logger.WarnContext(ctx, "stale refresh token presented",
			slog.String("user_id", user.ID),
		)
		return nil, apperrors.Unauthorized(msgInvalidRefresh)
	}

	s.logger.InfoContext(ctx, "session refreshed", slog.String("user_id", user.ID))

	return pair, nil
}

// Logout clears the stored refresh token. Logging out twice is fine;
// both calls succeed and leave the slot empty.
func (s *UserService) Logout(ctx context.Context, userID string) error {
	if err := s.userRepo.ClearRefreshToken(ctx, userID); err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}

	s.logger.InfoContext(ctx, "user logged out", slog.String("user_id", userID))
	return nil
}

// ChangePassword verifies the old password, stores the new hash and
// invalidates the active session.
func (s *UserService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return apperrors.InvalidInput("old and new password are required")
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	if !s.hasher.Verify(oldPassword, user.PasswordHash) {
		return apperrors.Unauthorized(msgInvalidCredentials)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.userRepo.UpdatePassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	if err := s.producer.PublishUserPasswordChanged(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.password_changed event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "password changed", slog.String("user_id", userID))
	return nil
}

// GetByID fetches a user record. Used by the auth gate to resolve the
// identity behind a verified access token.
func (s *UserService) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

// UpdateProfile applies a partial profile update.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, req *domain.UpdateProfileRequest) (*domain.User, error) {
	if req.FullName == nil && req.Email == nil {
		return nil, apperrors.InvalidInput("nothing to update")
	}
	return s.userRepo.UpdateProfile(ctx, userID, req)
}

// UpdateAvatar uploads a new avatar and persists its URL.
func (s *UserService) UpdateAvatar(ctx context.Context, userID string, file *storage.UploadInput) (string, error) {
	res, err := s.blobs.Upload(ctx, file)
	if err != nil {
		return "", fmt.Errorf("upload avatar: %w", err)
	}
	if err := s.userRepo.UpdateAvatar(ctx, userID, res.URL); err != nil {
		return "", fmt.Errorf("persist avatar url: %w", err)
	}
	return res.URL, nil
}

// UpdateCoverImage uploads a new cover image and persists its URL.
func (s *UserService) UpdateCoverImage(ctx context.Context, userID string, file *storage.UploadInput) (string, error) {
	res, err := s.blobs.Upload(ctx, file)
	if err != nil {
		return "", fmt.Errorf("upload cover image: %w", err)
	}
	if err := s.userRepo.UpdateCoverImage(ctx, userID, res.URL); err != nil {
		return "", fmt.Errorf("persist cover image url: %w", err)
	}
	return res.URL, nil
}

// GetChannelProfile returns the public channel view for a username,
// served from a short-lived cache when available.
func (s *UserService) GetChannelProfile(ctx context.Context, username string) (*domain.ChannelProfile, error) {
	cacheKey := "channel:" + username

	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, cacheKey).Bytes(); err == nil {
			var p domain.ChannelProfile
			if err := json.Unmarshal(raw, &p); err == nil {
				return &p, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.WarnContext(ctx, "channel cache read failed",
				slog.String("error", err.Error()))
		}
	}

	profile, err := s.userRepo.GetChannelProfile(ctx, username)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if raw, err := json.Marshal(profile); err == nil {
			if err := s.cache.Set(ctx, cacheKey, raw, channelCacheTTL).Err(); err != nil {
				s.logger.WarnContext(ctx, "channel cache write failed",
					slog.String("error", err.Error()))
			}
		}
	}

	return profile, nil
}

// GetWatchHistory returns the user's paginated watch history.
func (s *UserService) GetWatchHistory(ctx context.Context, userID string, params pagination.Params) (*pagination.Result[domain.Video], error) {
	videos, total, err := s.userRepo.GetWatchHistory(ctx, userID, params)
	if err != nil {
		return nil, err
	}
	result := pagination.NewResult(videos, total, params)
	return &result, nil
}

// VerifyAccessToken exposes stateless access-token verification for the
// auth gate.
func (s *UserService) VerifyAccessToken(token string) (*auth.AccessClaims, error) {
	return s.tokens.VerifyAccessToken(token)
}

func (s *UserService) issuePair(user *domain.User) (*domain.TokenPair, error) {
	access, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.tokens.IssueRefreshToken(user)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	return &domain.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
