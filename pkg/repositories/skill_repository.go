package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/loomworks/loom-engine/pkg/apperrors"
	"github.com/loomworks/loom-engine/pkg/database"
	"github.com/loomworks/loom-engine/pkg/models"
)

// SkillRepository persists compiled skill graphs as append-only,
// versioned records keyed by (workspace, skill id). A recompilation
// appends the next version; prior versions are never mutated.
type SkillRepository interface {
	// CreateVersion appends the next version of a skill and sets
	// skill.Version to the assigned number.
	CreateVersion(ctx context.Context, workspaceID uuid.UUID, skill *models.SkillGraph) error

	// GetLatest returns the highest version of the given skill.
	GetLatest(ctx context.Context, workspaceID uuid.UUID, skillID string) (*models.SkillGraph, error)

	// ListLatest returns the highest version of every skill in the
	// workspace, ordered by skill id.
	ListLatest(ctx context.Context, workspaceID uuid.UUID) ([]models.SkillGraph, error)

	// ListVersions returns every version of a skill, oldest first.
	ListVersions(ctx context.Context, workspaceID uuid.UUID, skillID string) ([]models.SkillGraph, error)
}

type skillRepository struct {
	db *database.DB
}

// NewSkillRepository creates a new SkillRepository.
func NewSkillRepository(db *database.DB) SkillRepository {
	return &skillRepository{db: db}
}

var _ SkillRepository = (*skillRepository)(nil)

func (r *skillRepository) CreateVersion(ctx context.Context, workspaceID uuid.UUID, skill *models.SkillGraph) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var next int
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(version), 0) + 1
		FROM engine_skills
		WHERE workspace_id = $1 AND skill_id = $2`,
		workspaceID, skill.ID,
	).Scan(&next)
	if err != nil {
		return fmt.Errorf("failed to compute next skill version: %w", err)
	}

	skill.Version = next
	definition, err := json.Marshal(skill)
	if err != nil {
		return fmt.Errorf("failed to marshal skill: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO engine_skills (workspace_id, skill_id, version, definition)
		VALUES ($1, $2, $3, $4)`,
		workspaceID, skill.ID, next, definition,
	)
	if err != nil {
		return fmt.Errorf("failed to insert skill version: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit skill version: %w", err)
	}
	return nil
}

func (r *skillRepository) GetLatest(ctx context.Context, workspaceID uuid.UUID, skillID string) (*models.SkillGraph, error) {
	query := `
		SELECT definition
		FROM engine_skills
		WHERE workspace_id = $1 AND skill_id = $2
		ORDER BY version DESC
		LIMIT 1`

	var definition []byte
	err := r.db.QueryRow(ctx, query, workspaceID, skillID).Scan(&definition)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("skill %s: %w", skillID, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest skill version: %w", err)
	}
	return unmarshalSkill(definition)
}

func (r *skillRepository) ListLatest(ctx context.Context, workspaceID uuid.UUID) ([]models.SkillGraph, error) {
	query := `
		SELECT DISTINCT ON (skill_id) definition
		FROM engine_skills
		WHERE workspace_id = $1
		ORDER BY skill_id, version DESC`

	return r.querySkills(ctx, query, workspaceID)
}

func (r *skillRepository) ListVersions(ctx context.Context, workspaceID uuid.UUID, skillID string) ([]models.SkillGraph, error) {
	query := `
		SELECT definition
		FROM engine_skills
		WHERE workspace_id = $1 AND skill_id = $2
		ORDER BY version`

	return r.querySkills(ctx, query, workspaceID, skillID)
}

func (r *skillRepository) querySkills(ctx context.Context, query string, args ...any) ([]models.SkillGraph, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query skills: %w", err)
	}
	defer rows.Close()

	var skills []models.SkillGraph
	for rows.Next() {
		var definition []byte
		if err := rows.Scan(&definition); err != nil {
			return nil, fmt.Errorf("failed to scan skill: %w", err)
		}
		skill, err := unmarshalSkill(definition)
		if err != nil {
			return nil, err
		}
		skills = append(skills, *skill)
	}
	return skills, rows.Err()
}

func unmarshalSkill(definition []byte) (*models.SkillGraph, error) {
	var skill models.SkillGraph
	if err := json.Unmarshal(definition, &skill); err != nil {
		return nil, fmt.Errorf("failed to unmarshal skill: %w", err)
	}
	return &skill, nil
}
