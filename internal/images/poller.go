package images

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kindred-platform/kindred/internal/events"
)

const (
	pollBatchSize   = 20
	pollConcurrency = 4
	// renders stuck past this age are marked failed so clients stop waiting
	renderDeadline = 30 * time.Minute
)

// Poller resolves pending renders in the background: it asks ComfyUI's
// history endpoint whether each queued prompt has finished, then flips the
// row to completed or failed. Without it, status only advances when a client
// happens to fetch the image.
type Poller struct {
	comfy     *ComfyClient
	repo      Repository
	publisher *events.Publisher
	interval  time.Duration
}

func NewPoller(comfy *ComfyClient, repo Repository, publisher *events.Publisher, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Poller{comfy: comfy, repo: repo, publisher: publisher, interval: interval}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	slog.Info("image render poller started", "interval", p.interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

// sweep checks one batch of pending renders with bounded concurrency.
func (p *Poller) sweep(ctx context.Context) {
	pending, err := p.repo.ListPending(ctx, pollBatchSize)
	if err != nil {
		slog.Warn("poller: listing pending images", "error", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	sem := make(chan struct{}, pollConcurrency)
	var wg sync.WaitGroup
	for _, img := range pending {
		wg.Add(1)
		sem <- struct{}{}
		go func(img *GeneratedImage) {
			defer wg.Done()
			defer func() { <-sem }()
			p.resolve(ctx, img)
		}(img)
	}
	wg.Wait()
}

func (p *Poller) resolve(ctx context.Context, img *GeneratedImage) {
	done, _, err := p.comfy.History(ctx, img.PromptID)
	if err != nil {
		slog.Debug("poller: history check failed", "prompt_id", img.PromptID, "error", err)
		return
	}

	switch {
	case done:
		url := "/api/v1/images/" + img.ID.String()
		if err := p.repo.UpdateStatus(ctx, img.PromptID, StatusCompleted, url); err != nil {
			slog.Warn("poller: marking image completed", "prompt_id", img.PromptID, "error", err)
			return
		}
		p.publishStatus(ctx, img, StatusCompleted)
	case time.Since(img.CreatedAt) > renderDeadline:
		if err := p.repo.UpdateStatus(ctx, img.PromptID, StatusFailed, ""); err != nil {
			slog.Warn("poller: marking image failed", "prompt_id", img.PromptID, "error", err)
			return
		}
		p.publishStatus(ctx, img, StatusFailed)
	}
}

func (p *Poller) publishStatus(ctx context.Context, img *GeneratedImage, status string) {
	if p.publisher == nil {
		return
	}
	ev := events.ImageEvent{
		ImageID:    img.ID,
		UserID:     img.UserID,
		Prompt:     img.Prompt,
		Status:     status,
		OccurredAt: time.Now().UTC(),
	}
	if img.CharacterID != nil {
		ev.CharacterID = *img.CharacterID
	}
	if err := p.publisher.PublishImage(ctx, ev); err != nil {
		slog.Warn("poller: publishing image event", "error", err)
	}
}
