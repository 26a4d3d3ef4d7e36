package postgres

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavrelis/streamtube/internal/domain"
	"github.com/kavrelis/streamtube/internal/repository"
	apperrors "github.com/kavrelis/streamtube/pkg/errors"
	"github.com/kavrelis/streamtube/pkg/pagination"
)

func newVideoTestFixture(t *testing.T) (*VideoRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return NewVideoRepository(mock), mock
}

func sampleVideo() *domain.Video {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Video{
		ID:           "v-1",
		OwnerID:      "u-1234",
		Title:        "channel intro",
		Description:  "first upload",
		VideoURL:     "https://cdn.example.com/v-1.mp4",
		ThumbnailURL: "https://cdn.example.com/v-1.png",
		Duration:     42.5,
		IsPublished:  true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func videoCols() []string {
	return []string{
		"id", "owner_id", "title", "description", "video_url", "thumbnail_url",
		"duration_seconds", "views", "is_published", "created_at", "updated_at",
	}
}

func videoRow(v *domain.Video) *pgxmock.Rows {
	return pgxmock.NewRows(videoCols()).AddRow(
		v.ID, v.OwnerID, v.Title, v.Description, v.VideoURL, v.ThumbnailURL,
		v.Duration, v.Views, v.IsPublished, v.CreatedAt, v.UpdatedAt,
	)
}

func TestVideoRepository_Create_Success(t *testing.T) {
	repo, mock := newVideoTestFixture(t)
	defer mock.Close()

	v := sampleVideo()

	mock.ExpectExec("INSERT INTO videos").
		WithArgs(
			v.ID, v.OwnerID, v.Title, v.Description, v.VideoURL, v.ThumbnailURL,
			v.Duration, v.Views, v.IsPublished, v.CreatedAt, v.UpdatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Create(context.Background(), v)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVideoRepository_GetByID_Success(t *testing.T) {
	repo, mock := newVideoTestFixture(t)
	defer mock.Close()

	v := sampleVideo()

	mock.ExpectQuery("SELECT (.+) FROM videos WHERE id").
		WithArgs("v-1").
		WillReturnRows(videoRow(v))

	got, err := repo.GetByID(context.Background(), "v-1")
	require.NoError(t, err)
	assert.Equal(t, v.Title, got.Title)
	assert.True(t, got.IsPublished)
}

func TestVideoRepository_GetByID_NotFound(t *testing.T) {
	repo, mock := newVideoTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT (.+) FROM videos WHERE id").
		WithArgs("v-missing").
		WillReturnRows(pgxmock.NewRows(videoCols()))

	_, err := repo.GetByID(context.Background(), "v-missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestVideoRepository_List_OwnerFilter(t *testing.T) {
	repo, mock := newVideoTestFixture(t)
	defer mock.Close()

	v := sampleVideo()

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("u-1234").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))

	listCols := append(videoCols(), "username", "full_name", "avatar_url")
	mock.ExpectQuery("SELECT (.+) FROM videos v JOIN users u ON (.+) AND v.owner_id").
		WithArgs("u-1234", 20, 0).
		WillReturnRows(pgxmock.NewRows(listCols).AddRow(
			v.ID, v.OwnerID, v.Title, v.Description, v.VideoURL, v.ThumbnailURL,
			v.Duration, v.Views, v.IsPublished, v.CreatedAt, v.UpdatedAt,
			"ana", "Ana Petrova", "https://cdn.example.com/ana.png",
		))

	videos, total, err := repo.List(context.Background(),
		repository.VideoFilter{OwnerID: "u-1234"}, pagination.DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, videos, 1)
	assert.Equal(t, "v-1", videos[0].ID)
	require.NotNil(t, videos[0].Owner)
	assert.Equal(t, "ana", videos[0].Owner.Username)
}

func TestVideoRepository_IncrementViews_Success(t *testing.T) {
	repo, mock := newVideoTestFixture(t)
	defer mock.Close()

	mock.ExpectExec("UPDATE videos SET views").
		WithArgs("v-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	mock.ExpectExec("INSERT INTO watch_history").
		WithArgs("u-1234", "v-1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.IncrementViews(context.Background(), "v-1", "u-1234")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVideoRepository_IncrementViews_UnpublishedOrMissing(t *testing.T) {
	repo, mock := newVideoTestFixture(t)
	defer mock.Close()

	mock.ExpectExec("UPDATE videos SET views").
		WithArgs("v-hidden").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.IncrementViews(context.Background(), "v-hidden", "u-1234")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
