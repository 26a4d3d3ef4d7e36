package repository

import (
	"context"

	"github.com/kavrelis/streamtube/internal/domain"
	"github.com/kavrelis/streamtube/pkg/pagination"
)

// UserRepository defines the persistence operations for user records.
type UserRepository interface {
	// Create inserts a new user into the store.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by their unique identifier.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByUsernameOrEmail retrieves the user whose username or email
	// matches the identifier.
	GetByUsernameOrEmail(ctx context.Context, identifier string) (*domain.User, error)

	// UpdateProfile applies a partial profile update and returns the
	// updated record.
	UpdateProfile(ctx context.Context, id string, req *domain.UpdateProfileRequest) (*domain.User, error)

	// UpdateAvatar replaces the user's avatar URL.
	UpdateAvatar(ctx context.Context, id, url string) error

	// UpdateCoverImage replaces the user's cover image URL.
	UpdateCoverImage(ctx context.Context, id, url string) error

	// UpdatePassword replaces the stored password hash and clears the
	// refresh token so existing sessions cannot be extended.
	UpdatePassword(ctx context.Context, id, passwordHash string) error

	// SetRefreshToken unconditionally stores token as the user's
	// canonical refresh token. Used at login.
	SetRefreshToken(ctx context.Context, id, token string) error

	// RotateRefreshToken atomically replaces the stored refresh token
	// with newToken, but only if the stored value still equals
	// presented. It returns false when the stored value has moved on,
	// which means the presented token is stale or already rotated.
	RotateRefreshToken(ctx context.Context, id, presented, newToken string) (bool, error)

	// ClearRefreshToken nulls out the stored refresh token. Clearing an
	// already empty slot is not an error.
	ClearRefreshToken(ctx context.Context, id string) error

	// GetChannelProfile returns the public channel view for a username,
	// including the channel's video count and total views.
	GetChannelProfile(ctx context.Context, username string) (*domain.ChannelProfile, error)

	// GetWatchHistory returns the videos the user watched, most recent
	// first.
	GetWatchHistory(ctx context.Context, userID string, params pagination.Params) ([]domain.Video, int, error)
}

// VideoFilter narrows and orders video listings. Zero values mean no
// filtering and the default created_at/desc ordering.
type VideoFilter struct {
	Query   string
	OwnerID string
	SortBy  string
	SortDir string
}

// VideoRepository defines the persistence operations for videos.
type VideoRepository interface {
	// Create inserts a new video record.
	Create(ctx context.Context, video *domain.Video) error

	// GetByID retrieves a video by its identifier.
	GetByID(ctx context.Context, id string) (*domain.Video, error)

	// List returns published videos matching the filter.
	List(ctx context.Context, filter VideoFilter, params pagination.Params) ([]domain.Video, int, error)

	// IncrementViews bumps the view counter and records the watch in
	// the viewer's history.
	IncrementViews(ctx context.Context, videoID, viewerID string) error
}
