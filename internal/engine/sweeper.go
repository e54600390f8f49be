package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SweeperConfig tunes the background history sweep.
type SweeperConfig struct {
	// Interval between sweep runs.
	Interval time.Duration
	// Retention is how long history entries are kept.
	Retention time.Duration
}

// DefaultSweeperConfig prunes 24h-old history once an hour.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval:  time.Hour,
		Retention: 24 * time.Hour,
	}
}

func (c SweeperConfig) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", c.Interval)
	}
	if c.Retention <= 0 {
		return fmt.Errorf("history retention must be positive, got %s", c.Retention)
	}
	return nil
}

// Sweeper periodically prunes old history entries across all authors. Runs
// never block foreground request handling and overlapping runs are harmless.
type Sweeper struct {
	store *ContextStore
	cfg   SweeperConfig
}

// NewSweeper builds a sweeper or fails fast on invalid configuration.
func NewSweeper(store *ContextStore, cfg SweeperConfig) (*Sweeper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("sweeper config: %w", err)
	}
	return &Sweeper{store: store, cfg: cfg}, nil
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	slog.Info("history sweeper started", "interval", s.cfg.Interval, "retention", s.cfg.Retention)
	for {
		select {
		case <-ctx.Done():
			slog.Info("history sweeper stopped")
			return
		case <-ticker.C:
			removed := s.store.PruneHistory(s.cfg.Retention)
			if removed > 0 {
				slog.Debug("pruned history entries", "removed", removed)
			}
		}
	}
}
