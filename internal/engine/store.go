package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kindred-platform/kindred/internal/metrics"
)

const evictionThreshold = 0.1

// StoreConfig tunes the per-author context window.
type StoreConfig struct {
	// MaxLength bounds the number of resident turns per author.
	MaxLength int
	// MaxAge is how long a turn may stay resident regardless of relevance.
	MaxAge time.Duration
	// DecayRate is the relevance lost per minute of age.
	DecayRate float64
}

// DefaultStoreConfig mirrors the reference tuning: 100 turns, 15 minutes,
// 5% relevance loss per minute.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		MaxLength: 100,
		MaxAge:    15 * time.Minute,
		DecayRate: 0.05,
	}
}

// Validate rejects configurations that would break the decay invariants.
// These are programming errors and fail fast at construction time.
func (c StoreConfig) Validate() error {
	var errs []error
	if c.MaxLength < 1 {
		errs = append(errs, fmt.Errorf("max length must be >= 1, got %d", c.MaxLength))
	}
	if c.MaxAge <= 0 {
		errs = append(errs, fmt.Errorf("max age must be positive, got %s", c.MaxAge))
	}
	if c.DecayRate <= 0 || c.DecayRate >= 1 {
		errs = append(errs, fmt.Errorf("decay rate must be in (0, 1), got %g", c.DecayRate))
	}
	return errors.Join(errs...)
}

// conversation holds the state of a single author. Each conversation has its
// own lock so different authors never contend.
type conversation struct {
	mu      sync.Mutex
	window  []*Turn
	history []HistoryEntry
}

// ContextStore keeps a bounded, relevance-decayed sliding window of recent
// turns per author, plus an unbounded append-only history log. Windows are
// created lazily and live for the process lifetime; nothing here is durable.
type ContextStore struct {
	cfg StoreConfig
	now func() time.Time

	mu    sync.RWMutex
	convs map[string]*conversation
}

// NewContextStore builds a store or fails fast on an invalid configuration.
func NewContextStore(cfg StoreConfig) (*ContextStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("context store config: %w", err)
	}
	return &ContextStore{
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
		convs: make(map[string]*conversation),
	}, nil
}

func (s *ContextStore) conv(authorID string) *conversation {
	s.mu.RLock()
	c := s.convs[authorID]
	s.mu.RUnlock()
	if c != nil {
		return c
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c = s.convs[authorID]; c == nil {
		c = &conversation{}
		s.convs[authorID] = c
	}
	return c
}

// Update runs a decay pass over the author's resident turns, evicts by age
// and by relevance, appends the incoming turns, logs them to history, and
// trims the window from the front when it exceeds the length bound.
//
// Malformed incoming turns (zero timestamp) are silently filtered rather
// than rejected; this is the permissive policy and it means such turns never
// reach the history log either.
func (s *ContextStore) Update(authorID string, newTurns []Turn) {
	c := s.conv(authorID)
	now := s.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.window = s.decayAndEvict(c.window, now)

	for i := range newTurns {
		t := newTurns[i]
		if t.CreatedAt.IsZero() {
			slog.Debug("dropping turn without timestamp", "author_id", authorID, "role", t.Role)
			continue
		}
		if t.Relevance == 0 {
			t.Relevance = 1.0
		}

		// Every well-formed incoming turn reaches history, even ones too
		// old for the window. The stored copy keeps the relevance it
		// arrived with; later decay passes never touch it.
		c.history = append(c.history, HistoryEntry{Turn: t, ObservedAt: now})

		if now.Sub(t.CreatedAt) >= s.cfg.MaxAge {
			slog.Debug("dropping stale incoming turn", "author_id", authorID, "age", now.Sub(t.CreatedAt))
			metrics.ContextEvictionsTotal.WithLabelValues("stale_arrival").Inc()
			continue
		}
		t.touchedAt = now
		resident := t
		c.window = append(c.window, &resident)
	}

	for len(c.window) > s.cfg.MaxLength {
		c.window = c.window[1:]
		metrics.ContextEvictionsTotal.WithLabelValues("length").Inc()
	}
}

// decayAndEvict recomputes relevance for every resident turn and drops those
// past the age bound or below the relevance threshold. Age and relevance are
// independent eviction conditions. Ordering is preserved.
func (s *ContextStore) decayAndEvict(window []*Turn, now time.Time) []*Turn {
	kept := window[:0]
	for _, t := range window {
		if now.Sub(t.CreatedAt) >= s.cfg.MaxAge {
			metrics.ContextEvictionsTotal.WithLabelValues("age").Inc()
			continue
		}
		if t.Relevance == 0 {
			t.Relevance = 1.0
		}
		touched := t.touchedAt
		if touched.IsZero() {
			touched = t.CreatedAt
		}
		elapsed := now.Sub(touched).Seconds()
		t.Relevance -= s.cfg.DecayRate * (elapsed / 60)
		t.touchedAt = now
		if t.Relevance <= evictionThreshold {
			metrics.ContextEvictionsTotal.WithLabelValues("relevance").Inc()
			continue
		}
		kept = append(kept, t)
	}
	return kept
}

// Context returns a snapshot of the author's resident window, oldest first.
// A positive limit truncates to the most recent entries. Unknown authors get
// an empty slice, not an error.
func (s *ContextStore) Context(authorID string, limit int) []Turn {
	s.mu.RLock()
	c := s.convs[authorID]
	s.mu.RUnlock()
	if c == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	window := c.window
	if limit > 0 && len(window) > limit {
		window = window[len(window)-limit:]
	}
	out := make([]Turn, len(window))
	for i, t := range window {
		out[i] = *t
	}
	return out
}

// History returns the author's full history log, optionally filtered to
// entries observed at or after since.
func (s *ContextStore) History(authorID string, since time.Time) []HistoryEntry {
	s.mu.RLock()
	c := s.convs[authorID]
	s.mu.RUnlock()
	if c == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]HistoryEntry, 0, len(c.history))
	for _, e := range c.history {
		if !since.IsZero() && e.ObservedAt.Before(since) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// ClearHistory empties the author's history log. The active window is not
// touched.
func (s *ContextStore) ClearHistory(authorID string) {
	s.mu.RLock()
	c := s.convs[authorID]
	s.mu.RUnlock()
	if c == nil {
		return
	}
	c.mu.Lock()
	c.history = nil
	c.mu.Unlock()
}

// PruneHistory drops history entries older than retention across all
// authors and reports how many were removed. It locks one conversation at a
// time so foreground updates for other authors are never blocked, and it is
// idempotent with respect to overlapping runs.
func (s *ContextStore) PruneHistory(retention time.Duration) int {
	cutoff := s.now().Add(-retention)

	s.mu.RLock()
	convs := make([]*conversation, 0, len(s.convs))
	for _, c := range s.convs {
		convs = append(convs, c)
	}
	s.mu.RUnlock()

	removed := 0
	for _, c := range convs {
		c.mu.Lock()
		kept := c.history[:0]
		for _, e := range c.history {
			if e.ObservedAt.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		c.history = kept
		c.mu.Unlock()
	}
	if removed > 0 {
		metrics.HistoryPrunedTotal.Add(float64(removed))
	}
	return removed
}
