package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kindred-platform/kindred/internal/engine"
)

// ImageEvent is published when an image generation finishes.
type ImageEvent struct {
	ImageID     uuid.UUID `json:"image_id"`
	UserID      uuid.UUID `json:"user_id"`
	CharacterID uuid.UUID `json:"character_id"`
	Prompt      string    `json:"prompt"`
	Status      string    `json:"status"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// FeedbackEvent is published when a user rates a response.
type FeedbackEvent struct {
	FeedbackID uuid.UUID `json:"feedback_id"`
	UserID     uuid.UUID `json:"user_id"`
	Rating     int       `json:"rating"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher provides typed methods for publishing events to NATS JetStream.
// It implements engine.EventSink.
type Publisher struct {
	client *Client
}

// NewPublisher creates a new Publisher.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// PublishTurn publishes a handled conversation turn for analytics consumers.
func (p *Publisher) PublishTurn(ctx context.Context, ev engine.TurnEvent) error {
	return p.publish(ctx, SubjectTurnEvent, ev)
}

// PublishImage publishes an image generation event.
func (p *Publisher) PublishImage(ctx context.Context, ev ImageEvent) error {
	return p.publish(ctx, SubjectImageEvent, ev)
}

// PublishFeedback publishes a feedback event.
func (p *Publisher) PublishFeedback(ctx context.Context, ev FeedbackEvent) error {
	return p.publish(ctx, SubjectFeedbackEvent, ev)
}

// Healthy reports whether the underlying connection is up.
func (p *Publisher) Healthy() bool {
	return p.client != nil && p.client.Healthy()
}

func (p *Publisher) publish(ctx context.Context, subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling event for %s: %w", subject, err)
	}
	_, err = p.client.js.Publish(ctx, subject, payload)
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}
