package characters

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kindred-platform/kindred/internal/engine"
)

// catchphraseRate is the chance a non-adaptive character tags a catchphrase
// onto a generated reply.
const catchphraseRate = 0.3

type Service struct {
	repo Repository

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Service) Create(ctx context.Context, req *CreateCharacterRequest) (*Character, error) {
	now := time.Now()

	characterType := req.CharacterType
	if characterType == "" {
		characterType = "default"
	}
	available := true
	if req.Available != nil {
		available = *req.Available
	}

	c := &Character{
		ID:                uuid.New(),
		Name:              req.Name,
		Description:       req.Description,
		PersonalityTraits: req.PersonalityTraits,
		CharacterType:     characterType,
		Available:         available,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Character, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, params ListCharactersParams) ([]*Character, int64, error) {
	chars, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	count, err := s.repo.Count(ctx, params.AvailableOnly)
	if err != nil {
		return nil, 0, err
	}
	return chars, count, nil
}

func (s *Service) Update(ctx context.Context, c *Character, req *UpdateCharacterRequest) (*Character, error) {
	if req.Name != nil {
		c.Name = *req.Name
	}
	if req.Description != nil {
		c.Description = *req.Description
	}
	if req.PersonalityTraits != nil {
		c.PersonalityTraits = *req.PersonalityTraits
	}
	if req.CharacterType != nil {
		c.CharacterType = *req.CharacterType
	}
	if req.Available != nil {
		c.Available = *req.Available
	}
	c.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.SoftDelete(ctx, id)
}

// Seed upserts the bundled character dossiers into the catalog so a fresh
// deployment always has someone to talk to. Existing rows keep their ID.
func (s *Service) Seed(ctx context.Context) error {
	for characterType, details := range builtinDetails {
		existing, err := s.repo.GetByType(ctx, characterType)
		if err != nil {
			return fmt.Errorf("seeding character %q: %w", characterType, err)
		}

		if existing != nil {
			existing.Name = details.Name
			existing.Description = details.Backstory
			existing.PersonalityTraits = strings.Join(details.PersonalityTraits, ", ")
			existing.Available = true
			existing.UpdatedAt = time.Now()
			if err := s.repo.Update(ctx, existing); err != nil {
				return fmt.Errorf("seeding character %q: %w", characterType, err)
			}
			continue
		}

		now := time.Now()
		c := &Character{
			ID:                uuid.New(),
			Name:              details.Name,
			Description:       details.Backstory,
			PersonalityTraits: strings.Join(details.PersonalityTraits, ", "),
			CharacterType:     characterType,
			Available:         true,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := s.repo.Create(ctx, c); err != nil {
			return fmt.Errorf("seeding character %q: %w", characterType, err)
		}
		slog.Info("seeded character", "character_type", characterType, "id", c.ID)
	}
	return nil
}

// DefaultCharacter returns the adaptive character, creating it if the catalog
// has never been seeded.
func (s *Service) DefaultCharacter(ctx context.Context) (*Character, error) {
	c, err := s.repo.GetByType(ctx, TypeAdaptive)
	if err != nil {
		return nil, err
	}
	if c != nil {
		return c, nil
	}

	details := builtinDetails[TypeAdaptive]
	now := time.Now()
	c = &Character{
		ID:                uuid.New(),
		Name:              details.Name,
		Description:       details.Backstory,
		PersonalityTraits: strings.Join(details.PersonalityTraits, ", "),
		CharacterType:     TypeAdaptive,
		Available:         true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Embellish occasionally appends one of the character's catchphrases to a
// generated reply. Adaptive characters speak in their learned voice and are
// never embellished.
func (s *Service) Embellish(c *Character, text string) string {
	if c.Adaptive() || text == "" {
		return text
	}
	phrases := DetailsFor(c.CharacterType).Catchphrases
	if len(phrases) == 0 {
		return text
	}

	s.rngMu.Lock()
	roll := s.rng.Float64()
	pick := s.rng.Intn(len(phrases))
	s.rngMu.Unlock()

	if roll >= catchphraseRate {
		return text
	}
	return text + " " + phrases[pick]
}

// Binding assembles the orchestration binding for a character: the prompt
// card from its dossier plus whether the adaptive trait loop applies.
func (s *Service) Binding(c *Character) engine.Binding {
	details := DetailsFor(c.CharacterType)
	return engine.Binding{
		CharacterID: c.ID.String(),
		Adaptive:    c.Adaptive(),
		Card: engine.CharacterCard{
			Name:           details.Name,
			Description:    c.Description,
			BaseTraits:     c.PersonalityTraits,
			Backstory:      details.Backstory,
			SpeechStyle:    details.SpeechStyle,
			KnowledgeAreas: details.KnowledgeAreas,
		},
	}
}
