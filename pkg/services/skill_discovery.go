package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loomworks/loom-engine/pkg/models"
	"github.com/loomworks/loom-engine/pkg/repositories"
)

// DiscoveryResult summarizes one discovery run over a workspace.
type DiscoveryResult struct {
	Events              int `json:"events"`
	Patterns            int `json:"patterns"`
	CrossSystemPatterns int `json:"cross_system_patterns"`
	SkillsCompiled      int `json:"skills_compiled"`
}

// SkillDiscoveryService is the auto-discovery workflow around the pure
// mining core: it loads a workspace's events, runs the pipeline,
// persists the replaced mining output and appends a new version of
// every qualifying compiled skill.
type SkillDiscoveryService interface {
	DiscoverSkills(ctx context.Context, workspaceID uuid.UUID, cfg models.MiningConfig, progress ProgressFunc) (*DiscoveryResult, error)
}

type skillDiscoveryService struct {
	workspaceRepo repositories.WorkspaceRepository
	skillRepo     repositories.SkillRepository
	pipeline      MiningPipeline
	compiler      SkillCompiler
	logger        *zap.Logger
}

// NewSkillDiscoveryService creates a new SkillDiscoveryService.
func NewSkillDiscoveryService(
	workspaceRepo repositories.WorkspaceRepository,
	skillRepo repositories.SkillRepository,
	pipeline MiningPipeline,
	compiler SkillCompiler,
	logger *zap.Logger,
) SkillDiscoveryService {
	return &skillDiscoveryService{
		workspaceRepo: workspaceRepo,
		skillRepo:     skillRepo,
		pipeline:      pipeline,
		compiler:      compiler,
		logger:        logger.Named("skill-discovery"),
	}
}

var _ SkillDiscoveryService = (*skillDiscoveryService)(nil)

func (s *skillDiscoveryService) DiscoverSkills(ctx context.Context, workspaceID uuid.UUID, cfg models.MiningConfig, progress ProgressFunc) (*DiscoveryResult, error) {
	ws, err := s.workspaceRepo.GetByID(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("get workspace: %w", err)
	}

	events, err := s.workspaceRepo.GetEvents(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("load workspace events: %w", err)
	}
	ws.Events = events

	if err := s.pipeline.Run(ws, cfg, progress); err != nil {
		return nil, fmt.Errorf("run mining pipeline: %w", err)
	}

	result := &DiscoveryResult{Events: len(events)}
	if ws.EventGraph == nil {
		// Empty workspace: nothing was replaced, nothing to compile.
		return result, nil
	}

	if err := s.workspaceRepo.SaveMiningResult(ctx, workspaceID, ws.EventGraph, ws.MinedPatterns); err != nil {
		return nil, fmt.Errorf("save mining result: %w", err)
	}

	result.Patterns = len(ws.MinedPatterns)
	for i := range ws.MinedPatterns {
		if ws.MinedPatterns[i].CrossSystem {
			result.CrossSystemPatterns++
		}
	}

	skills := s.compiler.CompileAll(ws.MinedPatterns, cfg.MinConfidence)
	for i := range skills {
		if err := s.skillRepo.CreateVersion(ctx, workspaceID, &skills[i]); err != nil {
			return nil, fmt.Errorf("persist skill %s: %w", skills[i].ID, err)
		}
	}
	result.SkillsCompiled = len(skills)

	s.logger.Info("Discovery run complete",
		zap.String("workspace_id", workspaceID.String()),
		zap.Int("events", result.Events),
		zap.Int("patterns", result.Patterns),
		zap.Int("skills", result.SkillsCompiled))

	return result, nil
}
