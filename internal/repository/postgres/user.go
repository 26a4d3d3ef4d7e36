package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kavrelis/streamtube/internal/domain"
	apperrors "github.com/kavrelis/streamtube/pkg/errors"
	"github.com/kavrelis/streamtube/pkg/pagination"
)

// Pool is the subset of pgxpool.Pool the repositories use. pgxmock's
// pool implements it too, which is what the tests run against.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// storeTimeout bounds every store call so a wedged database surfaces as
// a retryable error instead of hanging the request.
const storeTimeout = 5 * time.Second

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	pool Pool
}

// NewUserRepository creates a PostgreSQL-backed user repository.
func NewUserRepository(pool Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

const userColumns = `id, username, email, full_name, password_hash, avatar_url, cover_image_url, refresh_token, created_at, updated_at`

// Create inserts a new user into the database.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	query := `
		INSERT INTO users (id, username, email, full_name, password_hash, avatar_url, cover_image_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		u.ID,
		u.Username,
		u.Email,
		u.FullName,
		u.PasswordHash,
		u.AvatarURL,
		u.CoverImageURL,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			field, value := uniqueField(err), u.Username
			if field == "email" {
				value = u.Email
			}
			return apperrors.AlreadyExists("user", field, value)
		}
		return wrapStoreErr("insert user", err)
	}

	return nil
}

// GetByID retrieves a user by their ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(ctx, query, id)
}

// GetByUsernameOrEmail retrieves the user whose username or email equals
// the identifier.
func (r *UserRepository) GetByUsernameOrEmail(ctx context.Context, identifier string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1 OR email = $1`
	return r.scanUser(ctx, query, identifier)
}

// UpdateProfile applies a partial profile update. Nil request fields
// leave the corresponding column untouched.
func (r *UserRepository) UpdateProfile(ctx context.Context, id string, req *domain.UpdateProfileRequest) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	query := `
		UPDATE users
		SET full_name = COALESCE($2, full_name),
		    email = COALESCE($3, email),
		    updated_at = $4
		WHERE id = $1
		RETURNING ` + userColumns

	var u domain.User
	err := r.pool.QueryRow(ctx, query, id, req.FullName, req.Email, time.Now().UTC()).Scan(
		&u.ID, &u.Username, &u.Email, &u.FullName, &u.PasswordHash,
		&u.AvatarURL, &u.CoverImageURL, &u.RefreshToken, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("user", id)
		}
		if isUniqueViolation(err) {
			return nil, apperrors.AlreadyExists("user", "email", deref(req.Email))
		}
		return nil, wrapStoreErr("update profile", err)
	}

	return &u, nil
}

// UpdateAvatar replaces the user's avatar URL.
func (r *UserRepository) UpdateAvatar(ctx context.Context, id, url string) error {
	return r.execOne(ctx, "update avatar", id,
		`UPDATE users SET avatar_url = $2, updated_at = $3 WHERE id = $1`, id, url, time.Now().UTC())
}

// UpdateCoverImage replaces the user's cover image URL.
func (r *UserRepository) UpdateCoverImage(ctx context.Context, id, url string) error {
	return r.execOne(ctx, "update cover image", id,
		`UPDATE users SET cover_image_url = $2, updated_at = $3 WHERE id = $1`, id, url, time.Now().UTC())
}

// UpdatePassword stores a new password hash and clears the refresh token
// slot so existing sessions cannot be extended past the access expiry.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.execOne(ctx, "update password", id,
		`UPDATE users SET password_hash = $2, refresh_token = NULL, updated_at = $3 WHERE id = $1`,
		id, passwordHash, time.Now().UTC())
}

// SetRefreshToken unconditionally stores token as the user's canonical
// refresh token, superseding any previous one.
func (r *UserRepository) SetRefreshToken(ctx context.Context, id, token string) error {
	return r.execOne(ctx, "set refresh token", id,
		`UPDATE users SET refresh_token = $2, updated_at = $3 WHERE id = $1`, id, token, time.Now().UTC())
}

// RotateRefreshToken replaces the stored refresh token with newToken
// only if the stored value still equals presented. The conditional
// WHERE clause makes rotation a single compare-and-set, so when two
// refresh calls race with the same token exactly one update matches a
// row and wins.
func (r *UserRepository) RotateRefreshToken(ctx context.Context, id, presented, newToken string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	query := `
		UPDATE users
		SET refresh_token = $3, updated_at = $4
		WHERE id = $1 AND refresh_token = $2`

	ct, err := r.pool.Exec(ctx, query, id, presented, newToken, time.Now().UTC())
	if err != nil {
		return false, wrapStoreErr("rotate refresh token", err)
	}

	return ct.RowsAffected() == 1, nil
}

// ClearRefreshToken nulls out the stored refresh token. Clearing an
// already empty slot still succeeds, which makes logout idempotent.
func (r *UserRepository) ClearRefreshToken(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	query := `UPDATE users SET refresh_token = NULL, updated_at = $2 WHERE id = $1`

	if _, err := r.pool.Exec(ctx, query, id, time.Now().UTC()); err != nil {
		return wrapStoreErr("clear refresh token", err)
	}
	return nil
}

// GetChannelProfile returns the public channel view for a username,
// aggregating the channel's published video stats in one query.
func (r *UserRepository) GetChannelProfile(ctx context.Context, username string) (*domain.ChannelProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	query := `
		SELECT u.id, u.username, u.full_name, u.avatar_url, u.cover_image_url,
		       COUNT(v.id) FILTER (WHERE v.is_published),
		       COALESCE(SUM(v.views) FILTER (WHERE v.is_published), 0)
		FROM users u
		LEFT JOIN videos v ON v.owner_id = u.id
		WHERE u.username = $1
		GROUP BY u.id, u.username, u.full_name, u.avatar_url, u.cover_image_url`

	var p domain.ChannelProfile
	err := r.pool.QueryRow(ctx, query, username).Scan(
		&p.ID, &p.Username, &p.FullName, &p.AvatarURL, &p.CoverImageURL,
		&p.VideoCount, &p.TotalViews,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("channel", username)
		}
		return nil, wrapStoreErr("get channel profile", err)
	}

	return &p, nil
}

// GetWatchHistory returns the user's watched videos, most recent first.
func (r *UserRepository) GetWatchHistory(ctx context.Context, userID string, params pagination.Params) ([]domain.Video, int, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM watch_history WHERE user_id = $1`, userID,
	).Scan(&total); err != nil {
		return nil, 0, wrapStoreErr("count watch history", err)
	}

	query := `
		SELECT v.id, v.owner_id, v.title, v.description, v.video_url, v.thumbnail_url,
		       v.duration_seconds, v.views, v.is_published, v.created_at, v.updated_at
		FROM watch_history h
		JOIN videos v ON v.id = h.video_id
		WHERE h.user_id = $1
		ORDER BY h.watched_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, userID, params.PerPage, params.Offset)
	if err != nil {
		return nil, 0, wrapStoreErr("list watch history", err)
	}
	defer rows.Close()

	videos, err := scanVideos(rows)
	if err != nil {
		return nil, 0, err
	}

	return videos, total, nil
}

// scanUser executes a query expected to return a single user row.
func (r *UserRepository) scanUser(ctx context.Context, query string, args ...any) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	var u domain.User
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&u.ID, &u.Username, &u.Email, &u.FullName, &u.PasswordHash,
		&u.AvatarURL, &u.CoverImageURL, &u.RefreshToken, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, wrapStoreErr("scan user", err)
	}

	return &u, nil
}

// execOne runs an update that must touch exactly one row.
func (r *UserRepository) execOne(ctx context.Context, op, id, query string, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	ct, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return wrapStoreErr(op, err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", id)
	}
	return nil
}

// wrapStoreErr translates deadline and cancellation failures into the
// retryable Unavailable kind; everything else stays an internal error.
func wrapStoreErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Unavailable(op + ": store timeout")
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isUniqueViolation checks for a PostgreSQL unique constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}

// uniqueField guesses which unique column tripped from the constraint
// name embedded in the error.
func uniqueField(err error) string {
	if err != nil && strings.Contains(err.Error(), "email") {
		return "email"
	}
	return "username"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
