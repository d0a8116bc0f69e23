package services

import (
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/loomworks/loom-engine/pkg/models"
)

func reviewPattern() models.MinedPattern {
	return models.MinedPattern{
		ID:           "pat_00112233445566778899aabbccddeeff",
		Name:         "pr.opened → message.sent → issue.created",
		AnchorEvent:  "pr.opened",
		AnchorSource: "github",
		Sequence: []models.PatternStep{
			{EventType: "message.sent", Source: "slack", AvgDelayMs: 5 * 60 * 1000},
			{EventType: "issue.created", Source: "linear", AvgDelayMs: 2 * 60 * 60 * 1000},
		},
		Frequency:   4,
		Actors:      []string{"alice", "bob", "carol", "dave"},
		Confidence:  1.0,
		CrossSystem: true,
	}
}

func nodeIDs(g *models.SkillGraph) map[string]models.SkillNodeType {
	ids := make(map[string]models.SkillNodeType, len(g.Nodes))
	for _, n := range g.Nodes {
		ids[n.ID] = n.Type
	}
	return ids
}

func TestSkillCompiler_CompilePattern(t *testing.T) {
	compiler := NewSkillCompiler(zap.NewNop())
	pattern := reviewPattern()

	skill := compiler.CompilePattern(&pattern)

	if skill.TriggerNodeCount() != 1 {
		t.Errorf("Expected exactly one trigger node, got %d", skill.TriggerNodeCount())
	}
	if skill.Trigger.EventType != "pr.opened" || skill.Trigger.Source != "github" {
		t.Errorf("Unexpected trigger %+v", skill.Trigger)
	}
	if !strings.HasPrefix(skill.ID, "skill_") {
		t.Errorf("Expected skill_ id prefix, got %s", skill.ID)
	}
	if skill.Status != models.SkillStatusDraft {
		t.Errorf("Expected draft status, got %s", skill.Status)
	}
	if skill.Version != 1 {
		t.Errorf("Expected version 1, got %d", skill.Version)
	}
	if skill.Metadata.SourcePattern != pattern.ID {
		t.Errorf("Expected source pattern %s, got %s", pattern.ID, skill.Metadata.SourcePattern)
	}

	// Trigger, two actions, and a wait ahead of the 2h step. The first
	// step never gets a wait even though five minutes exceeds the
	// threshold.
	ids := nodeIDs(skill)
	want := map[string]models.SkillNodeType{
		"trigger": models.SkillNodeTrigger,
		"step_1":  models.SkillNodeAction,
		"wait_2":  models.SkillNodeWait,
		"step_2":  models.SkillNodeAction,
	}
	if len(ids) != len(want) {
		t.Fatalf("Expected %d nodes, got %d: %v", len(want), len(ids), ids)
	}
	for id, typ := range want {
		if ids[id] != typ {
			t.Errorf("Node %s: expected type %s, got %s", id, typ, ids[id])
		}
	}

	wait := skill.NodeByID("wait_2")
	if wait == nil || wait.Config["wait_ms"] != int64(2*60*60*1000) {
		t.Errorf("Expected wait node configured with the step delay, got %+v", wait)
	}
}

func TestSkillCompiler_EdgeEndpointsExist(t *testing.T) {
	compiler := NewSkillCompiler(zap.NewNop())
	pattern := reviewPattern()
	pattern.Sequence = append(pattern.Sequence, models.PatternStep{
		EventType: "ticket.closed", Source: "jira", AvgDelayMs: 3 * 60 * 60 * 1000, Optional: true,
	})

	skill := compiler.CompilePattern(&pattern)

	ids := nodeIDs(skill)
	for _, e := range skill.Edges {
		if _, ok := ids[e.From]; !ok {
			t.Errorf("Edge references missing node %s", e.From)
		}
		if _, ok := ids[e.To]; !ok {
			t.Errorf("Edge references missing node %s", e.To)
		}
	}
}

func TestSkillCompiler_OptionalStepEdges(t *testing.T) {
	compiler := NewSkillCompiler(zap.NewNop())
	pattern := models.MinedPattern{
		ID:           "pat_feedfacefeedfacefeedfacefeedface",
		Name:         "pr.opened → message.sent → issue.created → ticket.closed",
		AnchorEvent:  "pr.opened",
		AnchorSource: "github",
		Sequence: []models.PatternStep{
			{EventType: "message.sent", Source: "slack", AvgDelayMs: 5 * 60 * 1000},
			{EventType: "issue.created", Source: "linear", AvgDelayMs: 10 * 60 * 1000, Optional: true},
			{EventType: "ticket.closed", Source: "jira", AvgDelayMs: 25 * 60 * 1000},
		},
		Frequency:   5,
		Actors:      []string{"alice", "bob", "carol", "dave", "erin"},
		Confidence:  1.0,
		CrossSystem: true,
	}

	skill := compiler.CompilePattern(&pattern)

	var conditional, skip *models.SkillEdge
	for i := range skill.Edges {
		switch skill.Edges[i].Condition {
		case "optional_2":
			conditional = &skill.Edges[i]
		case "skip_optional_2":
			skip = &skill.Edges[i]
		}
	}
	if conditional == nil {
		t.Fatal("Expected a conditional edge into the optional step")
	}
	if conditional.From != "step_1" || conditional.To != "step_2" {
		t.Errorf("Conditional edge %s->%s, expected step_1->step_2", conditional.From, conditional.To)
	}
	if skip == nil {
		t.Fatal("Expected a skip edge around the optional step")
	}
	if skip.From != "step_1" || skip.To != "step_3" {
		t.Errorf("Skip edge %s->%s, expected step_1->step_3", skip.From, skip.To)
	}

	// No wait node ahead of an optional step.
	if skill.NodeByID("wait_2") != nil {
		t.Error("Expected no wait node for the optional step")
	}
}

func TestSkillCompiler_TrailingOptionalHasNoSkipEdge(t *testing.T) {
	compiler := NewSkillCompiler(zap.NewNop())
	pattern := reviewPattern()
	pattern.Sequence[1].Optional = true

	skill := compiler.CompilePattern(&pattern)

	for _, e := range skill.Edges {
		if strings.HasPrefix(e.Condition, "skip_optional") {
			t.Errorf("Expected no skip edge for a trailing optional step, got %+v", e)
		}
	}
}

func TestSkillCompiler_Description(t *testing.T) {
	compiler := NewSkillCompiler(zap.NewNop())
	pattern := reviewPattern()

	skill := compiler.CompilePattern(&pattern)

	want := "Recurring workflow across multiple systems: pr.opened → message.sent → issue.created. " +
		"Observed 4 times by 4 team members with 100% confidence."
	if skill.Description != want {
		t.Errorf("Unexpected description:\n got %q\nwant %q", skill.Description, want)
	}

	single := reviewPattern()
	single.Frequency = 1
	single.Actors = []string{"alice"}
	single.Confidence = 0.5
	single.CrossSystem = false
	skill = compiler.CompilePattern(&single)
	if !strings.Contains(skill.Description, "Observed 1 time by 1 team member with 50% confidence.") {
		t.Errorf("Expected singular nouns, got %q", skill.Description)
	}
}

func TestSkillCompiler_Integrations(t *testing.T) {
	compiler := NewSkillCompiler(zap.NewNop())
	pattern := reviewPattern()

	skill := compiler.CompilePattern(&pattern)

	want := []string{"github", "linear", "slack"}
	if len(skill.Metadata.Integrations) != len(want) {
		t.Fatalf("Expected %v, got %v", want, skill.Metadata.Integrations)
	}
	for i, s := range want {
		if skill.Metadata.Integrations[i] != s {
			t.Errorf("Expected integrations %v, got %v", want, skill.Metadata.Integrations)
		}
	}
}

func TestSkillCompiler_CompileAll(t *testing.T) {
	compiler := NewSkillCompiler(zap.NewNop())

	confident := reviewPattern()
	weak := reviewPattern()
	weak.ID = "pat_00000000000000000000000000000000"
	weak.Confidence = 0.1

	skills := compiler.CompileAll([]models.MinedPattern{confident, weak}, 0)

	if len(skills) != 1 {
		t.Fatalf("Expected the default floor to drop the weak pattern, got %d skills", len(skills))
	}
	if skills[0].Metadata.SourcePattern != confident.ID {
		t.Errorf("Expected the confident pattern to survive, got %s", skills[0].Metadata.SourcePattern)
	}

	skills = compiler.CompileAll([]models.MinedPattern{confident, weak}, 0.05)
	if len(skills) != 2 {
		t.Fatalf("Expected both patterns above an explicit floor, got %d", len(skills))
	}
	if skills[0].Metadata.SourcePattern != confident.ID || skills[1].Metadata.SourcePattern != weak.ID {
		t.Error("Expected input order to be preserved")
	}
}

func TestSkillCompiler_DeterministicIDs(t *testing.T) {
	compiler := NewSkillCompiler(zap.NewNop())
	pattern := reviewPattern()

	first := compiler.CompilePattern(&pattern)
	second := compiler.CompilePattern(&pattern)

	if first.ID != second.ID {
		t.Errorf("Expected stable skill ids, got %s and %s", first.ID, second.ID)
	}
}
