package characters

import (
	"time"

	"github.com/google/uuid"
)

// Character is the persisted catalog entry a user can chat with.
type Character struct {
	ID                uuid.UUID  `json:"id"`
	Name              string     `json:"name"`
	Description       string     `json:"description"`
	PersonalityTraits string     `json:"personality_traits"`
	CharacterType     string     `json:"character_type"`
	Available         bool       `json:"available"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	DeletedAt         *time.Time `json:"deleted_at,omitempty"`
}

// Adaptive reports whether this character develops its personality from the
// conversation instead of playing a fixed persona.
func (c *Character) Adaptive() bool {
	return c.CharacterType == TypeAdaptive
}

type CreateCharacterRequest struct {
	Name              string `json:"name" validate:"required,min=1,max=255"`
	Description       string `json:"description" validate:"required"`
	PersonalityTraits string `json:"personality_traits"`
	CharacterType     string `json:"character_type" validate:"max=50"`
	Available         *bool  `json:"available"`
}

type UpdateCharacterRequest struct {
	Name              *string `json:"name" validate:"omitempty,min=1,max=255"`
	Description       *string `json:"description"`
	PersonalityTraits *string `json:"personality_traits"`
	CharacterType     *string `json:"character_type" validate:"omitempty,max=50"`
	Available         *bool   `json:"available"`
}

type ListCharactersParams struct {
	Page          int
	PageSize      int
	AvailableOnly bool
}

func DefaultListParams() ListCharactersParams {
	return ListCharactersParams{Page: 1, PageSize: 20}
}
