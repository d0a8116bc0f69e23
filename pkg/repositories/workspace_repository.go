package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/loomworks/loom-engine/pkg/apperrors"
	"github.com/loomworks/loom-engine/pkg/database"
	"github.com/loomworks/loom-engine/pkg/models"
)

// WorkspaceRepository provides data access for workspaces, their event
// sets and the latest mining output.
type WorkspaceRepository interface {
	Create(ctx context.Context, ws *models.Workspace) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Workspace, error)
	List(ctx context.Context) ([]*models.Workspace, error)

	// UpsertEvents inserts events, ignoring ids already present.
	// Event ids are deterministic hashes, so redelivery dedups here.
	// Returns the number of newly inserted rows.
	UpsertEvents(ctx context.Context, workspaceID uuid.UUID, events []models.OrgEvent) (int, error)
	GetEvents(ctx context.Context, workspaceID uuid.UUID) ([]models.OrgEvent, error)

	// SaveMiningResult fully replaces the workspace's graph and
	// patterns; results from prior runs are never merged.
	SaveMiningResult(ctx context.Context, workspaceID uuid.UUID, graph *models.EventGraph, patterns []models.MinedPattern) error
	GetMiningResult(ctx context.Context, workspaceID uuid.UUID) (*models.EventGraph, []models.MinedPattern, error)
}

type workspaceRepository struct {
	db *database.DB
}

// NewWorkspaceRepository creates a new WorkspaceRepository.
func NewWorkspaceRepository(db *database.DB) WorkspaceRepository {
	return &workspaceRepository{db: db}
}

var _ WorkspaceRepository = (*workspaceRepository)(nil)

func (r *workspaceRepository) Create(ctx context.Context, ws *models.Workspace) error {
	now := time.Now()
	ws.CreatedAt = now
	ws.UpdatedAt = now
	if ws.ID == uuid.Nil {
		ws.ID = uuid.New()
	}

	query := `
		INSERT INTO engine_workspaces (id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4)`

	_, err := r.db.Exec(ctx, query, ws.ID, ws.Name, ws.CreatedAt, ws.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}
	return nil
}

func (r *workspaceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Workspace, error) {
	query := `
		SELECT id, name, created_at, updated_at
		FROM engine_workspaces
		WHERE id = $1`

	var ws models.Workspace
	err := r.db.QueryRow(ctx, query, id).Scan(&ws.ID, &ws.Name, &ws.CreatedAt, &ws.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("workspace %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}
	return &ws, nil
}

func (r *workspaceRepository) List(ctx context.Context) ([]*models.Workspace, error) {
	query := `
		SELECT id, name, created_at, updated_at
		FROM engine_workspaces
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	defer rows.Close()

	var workspaces []*models.Workspace
	for rows.Next() {
		var ws models.Workspace
		if err := rows.Scan(&ws.ID, &ws.Name, &ws.CreatedAt, &ws.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan workspace: %w", err)
		}
		workspaces = append(workspaces, &ws)
	}
	return workspaces, rows.Err()
}

func (r *workspaceRepository) UpsertEvents(ctx context.Context, workspaceID uuid.UUID, events []models.OrgEvent) (int, error) {
	query := `
		INSERT INTO engine_org_events (
			workspace_id, id, org_id, source, event_type,
			actor_id, actor_name, entity_type, entity_id, entity_name,
			occurred_at, metadata, related_entity_ids
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (workspace_id, id) DO NOTHING`

	batch := &pgx.Batch{}
	for i := range events {
		e := &events[i]
		metadata, err := json.Marshal(orEmptyMap(e.Metadata))
		if err != nil {
			return 0, fmt.Errorf("failed to marshal event metadata: %w", err)
		}
		related, err := json.Marshal(orEmptySlice(e.RelatedEntityIDs))
		if err != nil {
			return 0, fmt.Errorf("failed to marshal related entity ids: %w", err)
		}
		batch.Queue(query,
			workspaceID, e.ID, e.OrgID, e.Source, e.EventType,
			e.ActorID, nullIfEmpty(e.ActorName), e.EntityType, e.EntityID, nullIfEmpty(e.EntityName),
			e.Timestamp, metadata, related,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range events {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("failed to upsert event: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func (r *workspaceRepository) GetEvents(ctx context.Context, workspaceID uuid.UUID) ([]models.OrgEvent, error) {
	query := `
		SELECT id, org_id, source, event_type,
		       actor_id, actor_name, entity_type, entity_id, entity_name,
		       occurred_at, metadata, related_entity_ids
		FROM engine_org_events
		WHERE workspace_id = $1
		ORDER BY occurred_at, id`

	rows, err := r.db.Query(ctx, query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.OrgEvent
	for rows.Next() {
		var (
			e          models.OrgEvent
			actorName  *string
			entityName *string
			metadata   []byte
			related    []byte
		)
		if err := rows.Scan(
			&e.ID, &e.OrgID, &e.Source, &e.EventType,
			&e.ActorID, &actorName, &e.EntityType, &e.EntityID, &entityName,
			&e.Timestamp, &metadata, &related,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if actorName != nil {
			e.ActorName = *actorName
		}
		if entityName != nil {
			e.EntityName = *entityName
		}
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event metadata: %w", err)
		}
		if err := json.Unmarshal(related, &e.RelatedEntityIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal related entity ids: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *workspaceRepository) SaveMiningResult(ctx context.Context, workspaceID uuid.UUID, graph *models.EventGraph, patterns []models.MinedPattern) error {
	graphJSON, err := json.Marshal(graph)
	if err != nil {
		return fmt.Errorf("failed to marshal event graph: %w", err)
	}
	if patterns == nil {
		patterns = []models.MinedPattern{}
	}
	patternsJSON, err := json.Marshal(patterns)
	if err != nil {
		return fmt.Errorf("failed to marshal mined patterns: %w", err)
	}

	query := `
		INSERT INTO engine_mining_results (workspace_id, event_graph, mined_patterns, mined_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (workspace_id) DO UPDATE
		SET event_graph = EXCLUDED.event_graph,
		    mined_patterns = EXCLUDED.mined_patterns,
		    mined_at = EXCLUDED.mined_at`

	if _, err := r.db.Exec(ctx, query, workspaceID, graphJSON, patternsJSON); err != nil {
		return fmt.Errorf("failed to save mining result: %w", err)
	}
	return nil
}

func (r *workspaceRepository) GetMiningResult(ctx context.Context, workspaceID uuid.UUID) (*models.EventGraph, []models.MinedPattern, error) {
	query := `
		SELECT event_graph, mined_patterns
		FROM engine_mining_results
		WHERE workspace_id = $1`

	var graphJSON, patternsJSON []byte
	err := r.db.QueryRow(ctx, query, workspaceID).Scan(&graphJSON, &patternsJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, fmt.Errorf("mining result for workspace %s: %w", workspaceID, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get mining result: %w", err)
	}

	var graph models.EventGraph
	if err := json.Unmarshal(graphJSON, &graph); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal event graph: %w", err)
	}
	var patterns []models.MinedPattern
	if err := json.Unmarshal(patternsJSON, &patterns); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal mined patterns: %w", err)
	}
	return &graph, patterns, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func orEmptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
