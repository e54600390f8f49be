package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/kindred-platform/kindred/internal/engine"
	"github.com/kindred-platform/kindred/internal/events"
)

// Consumer listens on the turn event subject and persists entries to the
// database.
type Consumer struct {
	repo        *Repository
	consumerMgr *events.ConsumerManager
}

func NewConsumer(repo *Repository, consumerMgr *events.ConsumerManager) *Consumer {
	return &Consumer{repo: repo, consumerMgr: consumerMgr}
}

// Start begins the consume loop. Blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	consumer, err := c.consumerMgr.EnsureConsumer(ctx, events.StreamEvents, "turn-persister", events.SubjectTurnEvent)
	if err != nil {
		return err
	}

	slog.Info("turn event consumer started", "consumer", "turn-persister")

	for {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(events.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("turn consumer: fetching events", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			c.handleEvent(ctx, msg)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) handleEvent(ctx context.Context, msg jetstream.Msg) {
	var event engine.TurnEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		slog.Error("turn consumer: unmarshaling event", "error", err)
		_ = msg.Nak()
		return
	}

	log, err := convertEventToLog(event)
	if err != nil {
		// A malformed author ID will never parse on redelivery, so drop it.
		slog.Error("turn consumer: dropping event", "author_id", event.AuthorID, "error", err)
		_ = msg.Ack()
		return
	}

	if err := c.repo.Insert(ctx, log); err != nil {
		slog.Error("turn consumer: persisting turn event", "error", err, "author_id", event.AuthorID)
		_ = msg.Nak()
		return
	}

	_ = msg.Ack()
}

// convertEventToLog maps a stream event to its database row.
func convertEventToLog(event engine.TurnEvent) (*TurnLog, error) {
	authorID, err := uuid.Parse(event.AuthorID)
	if err != nil {
		return nil, fmt.Errorf("parsing author ID: %w", err)
	}

	log := &TurnLog{
		ID:          uuid.New(),
		AuthorID:    authorID,
		CharacterID: event.CharacterID,
		Trigger:     event.Trigger,
		SmallTalk:   event.SmallTalk,
		Degraded:    event.Degraded,
		CreatedAt:   event.Timestamp,
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	if event.Traits != nil {
		if data, err := json.Marshal(event.Traits); err == nil {
			log.Traits = data
		}
	}
	return log, nil
}
