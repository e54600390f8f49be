package images

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Image statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type GeneratedImage struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	CharacterID *uuid.UUID `json:"character_id,omitempty"`
	Prompt      string     `json:"prompt"`
	PromptID    string     `json:"prompt_id"`
	ImageURL    string     `json:"image_url,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
}

type Repository interface {
	Create(ctx context.Context, img *GeneratedImage) error
	GetByID(ctx context.Context, id uuid.UUID) (*GeneratedImage, error)
	GetByPromptID(ctx context.Context, promptID string) (*GeneratedImage, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*GeneratedImage, error)
	ListPending(ctx context.Context, limit int) ([]*GeneratedImage, error)
	UpdateStatus(ctx context.Context, promptID, status, imageURL string) error
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) Create(ctx context.Context, img *GeneratedImage) error {
	query := `
		INSERT INTO generated_images (id, user_id, character_id, prompt, prompt_id, image_url, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		img.ID, img.UserID, img.CharacterID, img.Prompt,
		img.PromptID, img.ImageURL, img.Status, img.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting generated image: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*GeneratedImage, error) {
	return r.get(ctx, `WHERE id = $1`, id)
}

func (r *postgresRepository) GetByPromptID(ctx context.Context, promptID string) (*GeneratedImage, error) {
	return r.get(ctx, `WHERE prompt_id = $1`, promptID)
}

func (r *postgresRepository) get(ctx context.Context, where string, arg any) (*GeneratedImage, error) {
	query := `
		SELECT id, user_id, character_id, prompt, prompt_id, image_url, status, created_at
		FROM generated_images ` + where

	img := &GeneratedImage{}
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&img.ID, &img.UserID, &img.CharacterID, &img.Prompt,
		&img.PromptID, &img.ImageURL, &img.Status, &img.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying generated image: %w", err)
	}
	return img, nil
}

func (r *postgresRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*GeneratedImage, error) {
	query := `
		SELECT id, user_id, character_id, prompt, prompt_id, image_url, status, created_at
		FROM generated_images
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing generated images: %w", err)
	}
	defer rows.Close()

	var out []*GeneratedImage
	for rows.Next() {
		img := &GeneratedImage{}
		err := rows.Scan(
			&img.ID, &img.UserID, &img.CharacterID, &img.Prompt,
			&img.PromptID, &img.ImageURL, &img.Status, &img.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning generated image row: %w", err)
		}
		out = append(out, img)
	}
	return out, rows.Err()
}

func (r *postgresRepository) ListPending(ctx context.Context, limit int) ([]*GeneratedImage, error) {
	query := `
		SELECT id, user_id, character_id, prompt, prompt_id, image_url, status, created_at
		FROM generated_images
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("listing pending images: %w", err)
	}
	defer rows.Close()

	var out []*GeneratedImage
	for rows.Next() {
		img := &GeneratedImage{}
		err := rows.Scan(
			&img.ID, &img.UserID, &img.CharacterID, &img.Prompt,
			&img.PromptID, &img.ImageURL, &img.Status, &img.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning pending image row: %w", err)
		}
		out = append(out, img)
	}
	return out, rows.Err()
}

func (r *postgresRepository) UpdateStatus(ctx context.Context, promptID, status, imageURL string) error {
	query := `UPDATE generated_images SET status = $2, image_url = $3 WHERE prompt_id = $1`

	result, err := r.pool.Exec(ctx, query, promptID, status, imageURL)
	if err != nil {
		return fmt.Errorf("updating generated image: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("generated image not found")
	}
	return nil
}
