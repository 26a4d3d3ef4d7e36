package postgres

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kavrelis/streamtube/internal/domain"
	"github.com/kavrelis/streamtube/internal/repository"
	apperrors "github.com/kavrelis/streamtube/pkg/errors"
	"github.com/kavrelis/streamtube/pkg/pagination"
)

// VideoRepository implements repository.VideoRepository using PostgreSQL.
type VideoRepository struct {
	pool Pool
}

// NewVideoRepository creates a PostgreSQL-backed video repository.
func NewVideoRepository(pool Pool) *VideoRepository {
	return &VideoRepository{pool: pool}
}

const videoColumns = `id, owner_id, title, description, video_url, thumbnail_url, duration_seconds, views, is_published, created_at, updated_at`

// Create inserts a new video record.
func (r *VideoRepository) Create(ctx context.Context, v *domain.Video) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	query := `
		INSERT INTO videos (id, owner_id, title, description, video_url, thumbnail_url, duration_seconds, views, is_published, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.pool.Exec(ctx, query,
		v.ID,
		v.OwnerID,
		v.Title,
		v.Description,
		v.VideoURL,
		v.ThumbnailURL,
		v.Duration,
		v.Views,
		v.IsPublished,
		v.CreatedAt,
		v.UpdatedAt,
	)
	if err != nil {
		return wrapStoreErr("insert video", err)
	}

	return nil
}

// GetByID retrieves a video by its ID.
func (r *VideoRepository) GetByID(ctx context.Context, id string) (*domain.Video, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	query := `SELECT ` + videoColumns + ` FROM videos WHERE id = $1`

	var v domain.Video
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&v.ID, &v.OwnerID, &v.Title, &v.Description, &v.VideoURL, &v.ThumbnailURL,
		&v.Duration, &v.Views, &v.IsPublished, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("video", id)
		}
		return nil, wrapStoreErr("scan video", err)
	}

	return &v, nil
}

// sortColumns maps allowed sort keys to real columns. Anything else
// falls back to created_at so user input never reaches the ORDER BY
// clause directly.
var sortColumns = map[string]string{
	"created_at": "created_at",
	"views":      "views",
	"duration":   "duration_seconds",
	"title":      "title",
}

// listColumns joins the uploader's public fields so a listing page
// renders without a second lookup per video.
const listColumns = `v.id, v.owner_id, v.title, v.description, v.video_url, v.thumbnail_url, v.duration_seconds, v.views, v.is_published, v.created_at, v.updated_at, u.username, u.full_name, u.avatar_url`

// List returns published videos matching the filter, paginated, with
// the owner projection joined in.
func (r *VideoRepository) List(ctx context.Context, filter repository.VideoFilter, params pagination.Params) ([]domain.Video, int, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	where := ` WHERE v.is_published`
	args := []any{}

	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		where += ` AND v.owner_id = $1`
	}
	if filter.Query != "" {
		args = append(args, "%"+filter.Query+"%")
		placeholder := `$` + strconv.Itoa(len(args))
		where += ` AND (v.title ILIKE ` + placeholder + ` OR v.description ILIKE ` + placeholder + `)`
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM videos v`+where, args...).Scan(&total); err != nil {
		return nil, 0, wrapStoreErr("count videos", err)
	}

	orderBy, ok := sortColumns[filter.SortBy]
	if !ok {
		orderBy = "created_at"
	}
	dir := "DESC"
	if filter.SortDir == "asc" {
		dir = "ASC"
	}

	limitArg := len(args) + 1
	offsetArg := len(args) + 2
	args = append(args, params.PerPage, params.Offset)

	query := `SELECT ` + listColumns + ` FROM videos v JOIN users u ON u.id = v.owner_id` + where +
		` ORDER BY v.` + orderBy + ` ` + dir +
		` LIMIT $` + strconv.Itoa(limitArg) + ` OFFSET $` + strconv.Itoa(offsetArg)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, wrapStoreErr("list videos", err)
	}
	defer rows.Close()

	videos := make([]domain.Video, 0)
	for rows.Next() {
		var v domain.Video
		var owner domain.VideoOwner
		if err := rows.Scan(
			&v.ID, &v.OwnerID, &v.Title, &v.Description, &v.VideoURL, &v.ThumbnailURL,
			&v.Duration, &v.Views, &v.IsPublished, &v.CreatedAt, &v.UpdatedAt,
			&owner.Username, &owner.FullName, &owner.AvatarURL,
		); err != nil {
			return nil, 0, wrapStoreErr("scan video row", err)
		}
		v.Owner = &owner
		videos = append(videos, v)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, wrapStoreErr("iterate videos", err)
	}

	return videos, total, nil
}

// IncrementViews bumps the view counter and appends a watch history
// entry for the viewer in one transaction-free pass: the history insert
// is best-effort and upserts on repeat views.
func (r *VideoRepository) IncrementViews(ctx context.Context, videoID, viewerID string) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	ct, err := r.pool.Exec(ctx,
		`UPDATE videos SET views = views + 1 WHERE id = $1 AND is_published`, videoID)
	if err != nil {
		return wrapStoreErr("increment views", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("video", videoID)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO watch_history (user_id, video_id, watched_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, video_id) DO UPDATE SET watched_at = EXCLUDED.watched_at`,
		viewerID, videoID, time.Now().UTC())
	if err != nil {
		return wrapStoreErr("record watch history", err)
	}

	return nil
}

// scanVideos drains a rows set of videoColumns-shaped rows.
func scanVideos(rows pgx.Rows) ([]domain.Video, error) {
	videos := make([]domain.Video, 0)
	for rows.Next() {
		var v domain.Video
		if err := rows.Scan(
			&v.ID, &v.OwnerID, &v.Title, &v.Description, &v.VideoURL, &v.ThumbnailURL,
			&v.Duration, &v.Views, &v.IsPublished, &v.CreatedAt, &v.UpdatedAt,
		); err != nil {
			return nil, wrapStoreErr("scan video row", err)
		}
		videos = append(videos, v)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreErr("iterate videos", err)
	}
	return videos, nil
}
