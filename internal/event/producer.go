package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kavrelis/streamtube/internal/domain"
	pkgkafka "github.com/kavrelis/streamtube/pkg/kafka"
)

// Kafka topics for StreamTube domain events.
const (
	TopicUserRegistered      = "streamtube.user.registered"
	TopicUserPasswordChanged = "streamtube.user.password_changed"
	TopicVideoPublished      = "streamtube.video.published"
)

const (
	aggregateTypeUser  = "user"
	aggregateTypeVideo = "video"
	source             = "streamtube"
)

// UserRegisteredData is the payload for a user.registered event.
type UserRegisteredData struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

// UserPasswordChangedData is the payload for a user.password_changed event.
type UserPasswordChangedData struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// VideoPublishedData is the payload for a video.published event.
type VideoPublishedData struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
	Title   string `json:"title"`
}

// publisher is the slice of pkg/kafka.Producer the event producer needs.
type publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes StreamTube domain events to Kafka.
type Producer struct {
	kafka  publisher
	logger *slog.Logger
}

// NewProducer creates an event producer.
func NewProducer(kafka publisher, logger *slog.Logger) *Producer {
	return &Producer{kafka: kafka, logger: logger}
}

// PublishUserRegistered publishes a user.registered event.
func (p *Producer) PublishUserRegistered(ctx context.Context, user *domain.User) error {
	data := UserRegisteredData{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
		FullName: user.FullName,
	}
	return p.publish(ctx, TopicUserRegistered, user.ID, aggregateTypeUser, data)
}

// PublishUserPasswordChanged publishes a user.password_changed event.
func (p *Producer) PublishUserPasswordChanged(ctx context.Context, user *domain.User) error {
	data := UserPasswordChangedData{UserID: user.ID, Email: user.Email}
	return p.publish(ctx, TopicUserPasswordChanged, user.ID, aggregateTypeUser, data)
}

// PublishVideoPublished publishes a video.published event.
func (p *Producer) PublishVideoPublished(ctx context.Context, video *domain.Video) error {
	data := VideoPublishedData{ID: video.ID, OwnerID: video.OwnerID, Title: video.Title}
	return p.publish(ctx, TopicVideoPublished, video.ID, aggregateTypeVideo, data)
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	evt, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, source, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}

	if err := p.kafka.Publish(ctx, topic, evt); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "domain event published",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
	)

	return nil
}
