package domain

import (
	"time"
)

// VideoOwner is the public projection of a video's uploader, joined
// into listings so clients do not need a second lookup.
type VideoOwner struct {
	Username  string `json:"username"`
	FullName  string `json:"full_name"`
	AvatarURL string `json:"avatar_url"`
}

// Video represents a published video and its stored asset URLs.
type Video struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	VideoURL     string    `json:"video_url"`
	ThumbnailURL string    `json:"thumbnail_url"`
	Duration     float64   `json:"duration"`
	Views        int64     `json:"views"`
	IsPublished  bool      `json:"is_published"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Owner *VideoOwner `json:"owner,omitempty"`
}

// WatchHistoryEntry records one video view by one user.
type WatchHistoryEntry struct {
	UserID    string    `json:"user_id"`
	VideoID   string    `json:"video_id"`
	WatchedAt time.Time `json:"watched_at"`
}

// PublishVideoRequest is the metadata payload accompanying a video upload.
type PublishVideoRequest struct {
	Title       string  `json:"title" validate:"required,min=1,max=200"`
	Description string  `json:"description" validate:"max=5000"`
	Duration    float64 `json:"duration" validate:"min=0"`
}
