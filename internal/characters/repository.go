package characters

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Create(ctx context.Context, c *Character) error
	GetByID(ctx context.Context, id uuid.UUID) (*Character, error)
	GetByType(ctx context.Context, characterType string) (*Character, error)
	List(ctx context.Context, params ListCharactersParams) ([]*Character, error)
	Count(ctx context.Context, availableOnly bool) (int64, error)
	Update(ctx context.Context, c *Character) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

const characterColumns = "id, name, description, personality_traits, character_type, available, created_at, updated_at, deleted_at"

func (r *postgresRepository) Create(ctx context.Context, c *Character) error {
	query := `
		INSERT INTO characters (id, name, description, personality_traits, character_type, available, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		c.ID, c.Name, c.Description, c.PersonalityTraits,
		c.CharacterType, c.Available, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting character: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Character, error) {
	query := `
		SELECT ` + characterColumns + `
		FROM characters
		WHERE id = $1 AND deleted_at IS NULL`

	c := &Character{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.Description, &c.PersonalityTraits,
		&c.CharacterType, &c.Available, &c.CreatedAt, &c.UpdatedAt, &c.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying character by id: %w", err)
	}
	return c, nil
}

func (r *postgresRepository) GetByType(ctx context.Context, characterType string) (*Character, error) {
	query := `
		SELECT ` + characterColumns + `
		FROM characters
		WHERE character_type = $1 AND deleted_at IS NULL
		ORDER BY created_at ASC
		LIMIT 1`

	c := &Character{}
	err := r.pool.QueryRow(ctx, query, characterType).Scan(
		&c.ID, &c.Name, &c.Description, &c.PersonalityTraits,
		&c.CharacterType, &c.Available, &c.CreatedAt, &c.UpdatedAt, &c.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying character by type: %w", err)
	}
	return c, nil
}

func (r *postgresRepository) List(ctx context.Context, params ListCharactersParams) ([]*Character, error) {
	query := `
		SELECT ` + characterColumns + `
		FROM characters
		WHERE deleted_at IS NULL AND ($1 = false OR available = true)
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3`

	offset := (params.Page - 1) * params.PageSize
	rows, err := r.pool.Query(ctx, query, params.AvailableOnly, params.PageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("listing characters: %w", err)
	}
	defer rows.Close()

	var out []*Character
	for rows.Next() {
		c := &Character{}
		err := rows.Scan(
			&c.ID, &c.Name, &c.Description, &c.PersonalityTraits,
			&c.CharacterType, &c.Available, &c.CreatedAt, &c.UpdatedAt, &c.DeletedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning character row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *postgresRepository) Count(ctx context.Context, availableOnly bool) (int64, error) {
	query := `SELECT COUNT(*) FROM characters WHERE deleted_at IS NULL AND ($1 = false OR available = true)`

	var count int64
	if err := r.pool.QueryRow(ctx, query, availableOnly).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting characters: %w", err)
	}
	return count, nil
}

func (r *postgresRepository) Update(ctx context.Context, c *Character) error {
	query := `
		UPDATE characters
		SET name = $2, description = $3, personality_traits = $4, character_type = $5, available = $6, updated_at = $7
		WHERE id = $1 AND deleted_at IS NULL`

	result, err := r.pool.Exec(ctx, query,
		c.ID, c.Name, c.Description, c.PersonalityTraits,
		c.CharacterType, c.Available, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("updating character: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("character not found or already deleted")
	}
	return nil
}

func (r *postgresRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE characters SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("soft deleting character: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("character not found or already deleted")
	}
	return nil
}
