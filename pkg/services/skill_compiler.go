package services

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/loomworks/loom-engine/pkg/models"
)

// waitInsertionThresholdMs: steps this far (or further) from the
// trigger get an explicit wait node ahead of them, except the first
// step.
const waitInsertionThresholdMs = int64(60_000)

// DefaultCompileMinConfidence is the confidence floor CompileAll
// applies when the caller passes a non-positive one.
const DefaultCompileMinConfidence = 0.3

// SkillCompiler turns mined patterns into executable skill graphs.
type SkillCompiler interface {
	// CompilePattern compiles one pattern into a skill graph. The
	// produced graph has exactly one trigger node, every edge endpoint
	// references an existing node, and nodes are only appended forward,
	// so it is acyclic.
	CompilePattern(pattern *models.MinedPattern) *models.SkillGraph

	// CompileAll compiles every pattern whose confidence meets the
	// floor, preserving the input's relative order.
	CompileAll(patterns []models.MinedPattern, minConfidence float64) []models.SkillGraph
}

type skillCompiler struct {
	logger *zap.Logger
}

// NewSkillCompiler creates a new SkillCompiler.
func NewSkillCompiler(logger *zap.Logger) SkillCompiler {
	return &skillCompiler{
		logger: logger.Named("skill-compiler"),
	}
}

var _ SkillCompiler = (*skillCompiler)(nil)

func (c *skillCompiler) CompilePattern(pattern *models.MinedPattern) *models.SkillGraph {
	nodes := []models.SkillNode{{
		ID:   "trigger",
		Type: models.SkillNodeTrigger,
		Name: "When " + pattern.AnchorEvent,
		Config: map[string]any{
			"event_type": pattern.AnchorEvent,
			"source":     pattern.AnchorSource,
		},
	}}
	var edges []models.SkillEdge

	prev := "trigger"
	for i, step := range pattern.Sequence {
		stepID := fmt.Sprintf("step_%d", i+1)

		switch {
		case step.Optional:
			// Conditional edge into the optional step plus a skip edge
			// routing around it to the nearest guaranteed step. Step
			// ids are positional, so the skip target exists in the
			// finished graph even though it is created later.
			edges = append(edges, models.SkillEdge{
				From:       prev,
				To:         stepID,
				Condition:  fmt.Sprintf("optional_%d", i+1),
				AvgDelayMs: step.AvgDelayMs,
			})
			if next, ok := nextRequiredStep(pattern.Sequence, i); ok {
				edges = append(edges, models.SkillEdge{
					From:      prev,
					To:        fmt.Sprintf("step_%d", next+1),
					Condition: fmt.Sprintf("skip_optional_%d", i+1),
				})
			}

		case step.AvgDelayMs > waitInsertionThresholdMs && i > 0:
			waitID := fmt.Sprintf("wait_%d", i+1)
			nodes = append(nodes, models.SkillNode{
				ID:   waitID,
				Type: models.SkillNodeWait,
				Name: "Wait before " + step.EventType,
				Config: map[string]any{
					"wait_ms": step.AvgDelayMs,
				},
			})
			edges = append(edges,
				models.SkillEdge{From: prev, To: waitID},
				models.SkillEdge{From: waitID, To: stepID},
			)

		default:
			edges = append(edges, models.SkillEdge{
				From:       prev,
				To:         stepID,
				AvgDelayMs: step.AvgDelayMs,
			})
		}

		nodes = append(nodes, models.SkillNode{
			ID:   stepID,
			Type: models.SkillNodeAction,
			Name: step.EventType,
			Config: map[string]any{
				"event_type": step.EventType,
				"source":     step.Source,
			},
		})
		prev = stepID
	}

	skill := &models.SkillGraph{
		ID:          "skill_" + strings.TrimPrefix(pattern.ID, "pat_"),
		Name:        pattern.Name,
		Description: describePattern(pattern),
		Version:     1,
		Trigger: models.SkillTrigger{
			EventType: pattern.AnchorEvent,
			Source:    pattern.AnchorSource,
		},
		Nodes: nodes,
		Edges: edges,
		Metadata: models.SkillMetadata{
			Frequency:     pattern.Frequency,
			Confidence:    pattern.Confidence,
			Entropy:       pattern.Entropy,
			CrossSystem:   pattern.CrossSystem,
			ActorCount:    len(pattern.Actors),
			SourcePattern: pattern.ID,
			Integrations:  patternIntegrations(pattern),
		},
		Status:     models.SkillStatusDraft,
		CompiledAt: time.Now().UTC(),
	}

	c.logger.Debug("Compiled pattern into skill",
		zap.String("pattern_id", pattern.ID),
		zap.String("skill_id", skill.ID),
		zap.Int("nodes", len(skill.Nodes)),
		zap.Int("edges", len(skill.Edges)))

	return skill
}

func (c *skillCompiler) CompileAll(patterns []models.MinedPattern, minConfidence float64) []models.SkillGraph {
	if minConfidence <= 0 {
		minConfidence = DefaultCompileMinConfidence
	}
	skills := make([]models.SkillGraph, 0, len(patterns))
	for i := range patterns {
		if patterns[i].Confidence < minConfidence {
			continue
		}
		skills = append(skills, *c.CompilePattern(&patterns[i]))
	}
	return skills
}

// nextRequiredStep returns the index of the nearest non-optional step
// after position i, if any.
func nextRequiredStep(steps []models.PatternStep, i int) (int, bool) {
	for j := i + 1; j < len(steps); j++ {
		if !steps[j].Optional {
			return j, true
		}
	}
	return 0, false
}

// patternIntegrations returns the distinct sources the pattern touches.
func patternIntegrations(pattern *models.MinedPattern) []string {
	set := map[string]bool{pattern.AnchorSource: true}
	for _, s := range pattern.Sequence {
		set[s.Source] = true
	}
	integrations := make([]string, 0, len(set))
	for s := range set {
		integrations = append(integrations, s)
	}
	sort.Strings(integrations)
	return integrations
}

// describePattern synthesizes a one-line human description of the
// compiled workflow.
func describePattern(pattern *models.MinedPattern) string {
	chain := []string{pattern.AnchorEvent}
	for _, s := range pattern.Sequence {
		chain = append(chain, s.EventType)
	}

	scope := ""
	if pattern.CrossSystem {
		scope = " across multiple systems"
	}

	desc := fmt.Sprintf("Recurring workflow%s: %s. Observed %d %s",
		scope, strings.Join(chain, " → "), pattern.Frequency, countNoun(pattern.Frequency, "time"))
	if len(pattern.Actors) > 0 {
		desc += fmt.Sprintf(" by %d team %s", len(pattern.Actors), countNoun(len(pattern.Actors), "member"))
	}
	desc += fmt.Sprintf(" with %d%% confidence.", int(math.Round(pattern.Confidence*100)))
	return desc
}

func countNoun(n int, noun string) string {
	if n == 1 {
		return noun
	}
	return inflection.Plural(noun)
}
