package images

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kindred-platform/kindred/internal/events"
	"github.com/kindred-platform/kindred/internal/metrics"
)

type Service struct {
	comfy     *ComfyClient
	repo      Repository
	publisher *events.Publisher
}

func NewService(comfy *ComfyClient, repo Repository, publisher *events.Publisher) *Service {
	return &Service{comfy: comfy, repo: repo, publisher: publisher}
}

// Generate queues an image on ComfyUI and records the pending row. Retrieval
// is a separate call; generation is asynchronous on the ComfyUI side.
func (s *Service) Generate(ctx context.Context, userID uuid.UUID, characterID *uuid.UUID, prompt string) (*GeneratedImage, error) {
	promptID, err := s.comfy.QueuePrompt(ctx, prompt)
	if err != nil {
		metrics.ImagePromptsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	img := &GeneratedImage{
		ID:          uuid.New(),
		UserID:      userID,
		CharacterID: characterID,
		Prompt:      prompt,
		PromptID:    promptID,
		Status:      StatusPending,
		CreatedAt:   time.Now(),
	}
	if err := s.repo.Create(ctx, img); err != nil {
		return nil, err
	}
	metrics.ImagePromptsTotal.WithLabelValues("queued").Inc()

	if s.publisher != nil {
		ev := events.ImageEvent{
			ImageID:    img.ID,
			UserID:     userID,
			Prompt:     prompt,
			Status:     img.Status,
			OccurredAt: img.CreatedAt,
		}
		if characterID != nil {
			ev.CharacterID = *characterID
		}
		if err := s.publisher.PublishImage(ctx, ev); err != nil {
			slog.Warn("publishing image event", "error", err)
		}
	}
	return img, nil
}

// Fetch returns the rendered bytes for an image row, marking it completed on
// first successful retrieval.
func (s *Service) Fetch(ctx context.Context, img *GeneratedImage) ([]byte, error) {
	data, err := s.comfy.FetchImage(ctx, img.PromptID)
	if err != nil {
		return nil, err
	}

	if img.Status == StatusPending {
		url := "/api/v1/images/" + img.ID.String()
		if err := s.repo.UpdateStatus(ctx, img.PromptID, StatusCompleted, url); err != nil {
			slog.Warn("marking image completed", "prompt_id", img.PromptID, "error", err)
		}
	}
	return data, nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*GeneratedImage, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*GeneratedImage, error) {
	return s.repo.ListByUser(ctx, userID, limit, offset)
}
