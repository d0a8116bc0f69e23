package services

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/loomworks/loom-engine/pkg/models"
)

// Pipeline stage identifiers reported through the progress callback.
const (
	StageBuildGraph   = "build_graph"
	StageMinePatterns = "mine_patterns"
	StageComplete     = "complete"
)

// ProgressUpdate is emitted at stage boundaries. Callbacks fire
// synchronously between stages, never interleaved with computation.
type ProgressUpdate struct {
	Stage   string         `json:"stage"`
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Counts  map[string]int `json:"counts,omitempty"`
}

// ProgressFunc observes pipeline progress. Purely observational; the
// pipeline ignores its behavior entirely.
type ProgressFunc func(ProgressUpdate)

// MiningPipeline runs the graph builder and the pattern miner over a
// workspace's events, fully replacing the workspace's graph and
// patterns. It performs no I/O and holds no state between runs;
// compilation and persistence belong to the discovery caller.
type MiningPipeline interface {
	Run(ws *models.Workspace, cfg models.MiningConfig, progress ProgressFunc) error
}

type miningPipeline struct {
	builder EventGraphBuilder
	miner   PatternMiner
	logger  *zap.Logger
}

// NewMiningPipeline creates a new MiningPipeline.
func NewMiningPipeline(builder EventGraphBuilder, miner PatternMiner, logger *zap.Logger) MiningPipeline {
	return &miningPipeline{
		builder: builder,
		miner:   miner,
		logger:  logger.Named("mining-pipeline"),
	}
}

var _ MiningPipeline = (*miningPipeline)(nil)

func (p *miningPipeline) Run(ws *models.Workspace, cfg models.MiningConfig, progress ProgressFunc) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if progress == nil {
		progress = func(ProgressUpdate) {}
	}

	if len(ws.Events) == 0 {
		progress(ProgressUpdate{
			Stage:   StageComplete,
			Status:  "completed",
			Message: "No events to mine",
		})
		return nil
	}

	graph := p.builder.Build(ws.Events)
	progress(ProgressUpdate{
		Stage:   StageBuildGraph,
		Status:  "completed",
		Message: fmt.Sprintf("Built event graph: %d nodes, %d edges", graph.Stats.NodeCount, graph.Stats.EdgeCount),
		Counts: map[string]int{
			"nodes": graph.Stats.NodeCount,
			"edges": graph.Stats.EdgeCount,
		},
	})

	patterns, err := p.miner.MinePatterns(graph, cfg)
	if err != nil {
		return fmt.Errorf("mine patterns: %w", err)
	}
	crossSystem := 0
	for i := range patterns {
		if patterns[i].CrossSystem {
			crossSystem++
		}
	}
	progress(ProgressUpdate{
		Stage:   StageMinePatterns,
		Status:  "completed",
		Message: fmt.Sprintf("Mined %d patterns (%d cross-system)", len(patterns), crossSystem),
		Counts: map[string]int{
			"patterns":     len(patterns),
			"cross_system": crossSystem,
		},
	})

	// Full replacement of the previous run's output, never a merge.
	ws.EventGraph = graph
	ws.MinedPatterns = patterns

	progress(ProgressUpdate{
		Stage:   StageComplete,
		Status:  "completed",
		Message: "Mining complete",
	})

	p.logger.Info("Pipeline run complete",
		zap.String("workspace_id", ws.ID.String()),
		zap.Int("events", len(ws.Events)),
		zap.Int("patterns", len(patterns)))

	return nil
}
