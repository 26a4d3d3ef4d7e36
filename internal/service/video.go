package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kavrelis/streamtube/internal/domain"
	"github.com/kavrelis/streamtube/internal/event"
	"github.com/kavrelis/streamtube/internal/repository"
	"github.com/kavrelis/streamtube/internal/storage"
	apperrors "github.com/kavrelis/streamtube/pkg/errors"
	"github.com/kavrelis/streamtube/pkg/pagination"
)

// VideoService implements video publishing and browsing.
type VideoService struct {
	videoRepo repository.VideoRepository
	blobs     storage.Storage
	producer  *event.Producer
	logger    *slog.Logger
}

// NewVideoService creates a video service.
func NewVideoService(
	videoRepo repository.VideoRepository,
	blobs storage.Storage,
	producer *event.Producer,
	logger *slog.Logger,
) *VideoService {
	return &VideoService{
		videoRepo: videoRepo,
		blobs:     blobs,
		producer:  producer,
		logger:    logger,
	}
}

// PublishInput holds the metadata and files for a new video.
type PublishInput struct {
	OwnerID     string
	Title       string
	Description string
	Duration    float64
	Video       *storage.UploadInput
	Thumbnail   *storage.UploadInput
}

// Publish uploads the video and thumbnail to the blob store and creates
// the video record. Both files are mandatory.
func (s *VideoService) Publish(ctx context.Context, input PublishInput) (*domain.Video, error) {
	if input.Title == "" {
		return nil, apperrors.InvalidInput("title is required")
	}
	if input.Video == nil || input.Thumbnail == nil {
		return nil, apperrors.InvalidInput("video and thumbnail files are required")
	}

	videoAsset, err := s.blobs.Upload(ctx, input.Video)
	if err != nil {
		return nil, fmt.Errorf("upload video: %w", err)
	}

	thumbAsset, err := s.blobs.Upload(ctx, input.Thumbnail)
	if err != nil {
		return nil, fmt.Errorf("upload thumbnail: %w", err)
	}

	now := time.Now().UTC()
	video := &domain.Video{
		ID:           uuid.New().String(),
		OwnerID:      input.OwnerID,
		Title:        input.Title,
		Description:  input.Description,
		VideoURL:     videoAsset.URL,
		ThumbnailURL: thumbAsset.URL,
		Duration:     input.Duration,
		IsPublished:  true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.videoRepo.Create(ctx, video); err != nil {
		return nil, fmt.Errorf("create video: %w", err)
	}

	if err := s.producer.PublishVideoPublished(ctx, video); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish video.published event",
			slog.String("video_id", video.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "video published",
		slog.String("video_id", video.ID),
		slog.String("owner_id", video.OwnerID),
	)

	return video, nil
}

// List returns published videos matching the filter.
func (s *VideoService) List(ctx context.Context, filter repository.VideoFilter, params pagination.Params) (*pagination.Result[domain.Video], error) {
	videos, total, err := s.videoRepo.List(ctx, filter, params)
	if err != nil {
		return nil, err
	}
	result := pagination.NewResult(videos, total, params)
	return &result, nil
}

// Get fetches one video, counts the view and records it in the viewer's
// watch history. The view bookkeeping is best-effort: a failure there
// does not fail the fetch.
func (s *VideoService) Get(ctx context.Context, videoID, viewerID string) (*domain.Video, error) {
	video, err := s.videoRepo.GetByID(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if !video.IsPublished {
		return nil, apperrors.NotFound("video", videoID)
	}

	if err := s.videoRepo.IncrementViews(ctx, videoID, viewerID); err != nil {
		s.logger.WarnContext(ctx, "failed to record video view",
			slog.String("video_id", videoID),
			slog.String("viewer_id", viewerID),
			slog.String("error", err.Error()),
		)
	} else {
		video.Views++
	}

	return video, nil
}
