package services

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/loomworks/loom-engine/pkg/apperrors"
	"github.com/loomworks/loom-engine/pkg/models"
)

func mineFixture(t *testing.T, events []models.OrgEvent, cfg models.MiningConfig) []models.MinedPattern {
	t.Helper()
	graph := NewEventGraphBuilder(zap.NewNop()).Build(events)
	patterns, err := NewPatternMiner(zap.NewNop()).MinePatterns(graph, cfg)
	if err != nil {
		t.Fatalf("MinePatterns failed: %v", err)
	}
	return patterns
}

func TestPatternMiner_RecurringReviewWorkflow(t *testing.T) {
	patterns := mineFixture(t, reviewWorkload(4), models.DefaultMiningConfig())

	if len(patterns) != 1 {
		t.Fatalf("Expected 1 pattern, got %d", len(patterns))
	}
	p := patterns[0]

	if p.AnchorEvent != "pr.opened" || p.AnchorSource != "github" {
		t.Errorf("Expected github pr.opened anchor, got %s %s", p.AnchorSource, p.AnchorEvent)
	}
	if p.Frequency != 4 {
		t.Errorf("Expected frequency 4, got %d", p.Frequency)
	}
	if p.Confidence != 1.0 {
		t.Errorf("Expected confidence 1.0, got %f", p.Confidence)
	}
	if !p.CrossSystem {
		t.Error("Expected a cross-system pattern")
	}
	if p.Entropy != 0 {
		t.Errorf("Expected zero entropy for identical timings, got %f", p.Entropy)
	}
	if len(p.Actors) != 4 {
		t.Errorf("Expected 4 actors, got %d", len(p.Actors))
	}
	if p.Name != "pr.opened → message.sent → issue.created" {
		t.Errorf("Unexpected pattern name %q", p.Name)
	}

	if len(p.Sequence) != 2 {
		t.Fatalf("Expected 2 steps after the anchor, got %d", len(p.Sequence))
	}
	msg, iss := p.Sequence[0], p.Sequence[1]
	if msg.EventType != "message.sent" || msg.Source != "slack" {
		t.Errorf("Unexpected first step %s %s", msg.Source, msg.EventType)
	}
	if msg.AvgDelayMs != 5*60*1000 || msg.StdDevMs != 0 {
		t.Errorf("Expected first step at +300000ms ±0, got %d ±%d", msg.AvgDelayMs, msg.StdDevMs)
	}
	if iss.EventType != "issue.created" || iss.Source != "linear" {
		t.Errorf("Unexpected second step %s %s", iss.Source, iss.EventType)
	}
	if iss.AvgDelayMs != 2*60*60*1000 {
		t.Errorf("Expected second step at +7200000ms, got %d", iss.AvgDelayMs)
	}
	if msg.Optional || iss.Optional {
		t.Error("Expected no optional steps in a uniform cluster")
	}
	if len(p.Instances) != 4 {
		t.Errorf("Expected 4 instances, got %d", len(p.Instances))
	}
}

func TestPatternMiner_EmptyGraph(t *testing.T) {
	patterns := mineFixture(t, nil, models.DefaultMiningConfig())

	if len(patterns) != 0 {
		t.Errorf("Expected no patterns from an empty graph, got %d", len(patterns))
	}
}

func TestPatternMiner_InvalidConfig(t *testing.T) {
	graph := NewEventGraphBuilder(zap.NewNop()).Build(reviewWorkload(3))

	cfg := models.DefaultMiningConfig()
	cfg.SequenceWindowMs = 0
	_, err := NewPatternMiner(zap.NewNop()).MinePatterns(graph, cfg)

	if !errors.Is(err, apperrors.ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
}

func TestPatternMiner_BelowMinFrequency(t *testing.T) {
	patterns := mineFixture(t, reviewWorkload(2), models.DefaultMiningConfig())

	if len(patterns) != 0 {
		t.Errorf("Expected no patterns below min frequency, got %d", len(patterns))
	}
}

// optionalWorkload: five actors share the review workflow, but only
// three of them file a linear issue; the other two do something
// unrelated in that slot.
func optionalWorkload() []models.OrgEvent {
	var events []models.OrgEvent
	add := func(i int, actor, source, eventType string) {
		start := fixtureBase.Add(time.Duration(i) * 4 * time.Hour)
		suffix := fmt.Sprintf("%s-%d", actor, i)
		events = append(events,
			evt("github", "pr.opened", actor, "pr-"+suffix, start),
			evt("slack", "message.sent", actor, "msg-"+suffix, start.Add(5*time.Minute)),
			evt(source, eventType, actor, "mid-"+suffix, start.Add(10*time.Minute)),
			evt("jira", "ticket.closed", actor, "tkt-"+suffix, start.Add(25*time.Minute)),
		)
	}
	add(0, "alice", "linear", "issue.created")
	add(1, "bob", "linear", "issue.created")
	add(2, "carol", "linear", "issue.created")
	add(3, "dave", "asana", "task.created")
	add(4, "erin", "notion", "doc.edited")
	return events
}

func TestPatternMiner_OptionalStep(t *testing.T) {
	patterns := mineFixture(t, optionalWorkload(), models.DefaultMiningConfig())

	var p *models.MinedPattern
	for i := range patterns {
		if patterns[i].AnchorEvent == "pr.opened" {
			p = &patterns[i]
			break
		}
	}
	if p == nil {
		t.Fatal("Expected a pr.opened pattern")
	}

	if p.Frequency != 5 {
		t.Errorf("Expected all 5 instances in one cluster, got %d", p.Frequency)
	}
	if len(p.Sequence) != 3 {
		t.Fatalf("Expected 3 steps, got %d", len(p.Sequence))
	}
	if p.Sequence[0].Optional {
		t.Error("Expected message.sent to be required")
	}
	mid := p.Sequence[1]
	if mid.EventType != "issue.created" {
		t.Errorf("Expected the canonical middle step to be issue.created, got %s", mid.EventType)
	}
	if !mid.Optional {
		t.Error("Expected a step present in 60%% of instances to be optional")
	}
	if mid.AvgDelayMs != 10*60*1000 {
		t.Errorf("Expected optional step delay from matching instances only, got %d", mid.AvgDelayMs)
	}
	last := p.Sequence[2]
	if last.EventType != "ticket.closed" || last.Optional {
		t.Errorf("Expected required ticket.closed last, got %+v", last)
	}
}

func TestPatternMiner_ConfidenceCountsAllAnchorOccurrences(t *testing.T) {
	events := reviewWorkload(3)
	// A lone pull request with no follow-up dilutes confidence.
	events = append(events, evt("github", "pr.opened", "zoe", "pr-lone", fixtureBase.Add(10*24*time.Hour)))

	patterns := mineFixture(t, events, models.DefaultMiningConfig())

	if len(patterns) != 1 {
		t.Fatalf("Expected 1 pattern, got %d", len(patterns))
	}
	if math.Abs(patterns[0].Confidence-0.75) > 1e-9 {
		t.Errorf("Expected confidence 0.75, got %f", patterns[0].Confidence)
	}
	if patterns[0].Frequency != 3 {
		t.Errorf("Expected frequency 3, got %d", patterns[0].Frequency)
	}
}

func TestPatternMiner_MaxSequenceLength(t *testing.T) {
	// Three actors each run a 12-event chain; walks must stop at the
	// configured cap of 10 events.
	var events []models.OrgEvent
	actors := []string{"alice", "bob", "carol"}
	for i, actor := range actors {
		start := fixtureBase.Add(time.Duration(i) * 5 * time.Hour)
		for step := 0; step < 12; step++ {
			events = append(events, evt("github", fmt.Sprintf("step.%02d", step), actor,
				fmt.Sprintf("ent-%s-%d", actor, step), start.Add(time.Duration(step)*2*time.Minute)))
		}
	}

	patterns := mineFixture(t, events, models.DefaultMiningConfig())

	var p *models.MinedPattern
	for i := range patterns {
		if patterns[i].AnchorEvent == "step.00" {
			p = &patterns[i]
			break
		}
	}
	if p == nil {
		t.Fatal("Expected a step.00 pattern")
	}
	if len(p.Sequence) != 9 {
		t.Errorf("Expected 9 steps after the anchor at the length cap, got %d", len(p.Sequence))
	}
	if p.CrossSystem {
		t.Error("Expected a single-system pattern")
	}
	if p.Name != "step.00 → step.01 → step.02 → step.03 +6 more" {
		t.Errorf("Unexpected name %q", p.Name)
	}
}

func TestPatternMiner_Deterministic(t *testing.T) {
	graph := NewEventGraphBuilder(zap.NewNop()).Build(reviewWorkload(5))
	miner := NewPatternMiner(zap.NewNop())

	first, err := miner.MinePatterns(graph, models.DefaultMiningConfig())
	if err != nil {
		t.Fatalf("MinePatterns failed: %v", err)
	}
	second, err := miner.MinePatterns(graph, models.DefaultMiningConfig())
	if err != nil {
		t.Fatalf("MinePatterns failed: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Error("Expected identical results across runs")
	}
	if len(first) > 0 && first[0].ID == "" {
		t.Error("Expected non-empty pattern ids")
	}
}

func TestPatternMiner_SortedByFrequencyThenID(t *testing.T) {
	patterns := mineFixture(t, optionalWorkload(), models.DefaultMiningConfig())

	for i := 1; i < len(patterns); i++ {
		prev, curr := patterns[i-1], patterns[i]
		if prev.Frequency < curr.Frequency {
			t.Errorf("Pattern %d out of order: %d before %d", i, prev.Frequency, curr.Frequency)
		}
		if prev.Frequency == curr.Frequency && prev.ID > curr.ID {
			t.Errorf("Tied patterns not sorted by id: %s before %s", prev.ID, curr.ID)
		}
	}
}

func TestTokenEditDistance(t *testing.T) {
	tests := []struct {
		name string
		a    []string
		b    []string
		want int
	}{
		{"identical", []string{"x", "y", "z"}, []string{"x", "y", "z"}, 0},
		{"substitution", []string{"x", "y", "z"}, []string{"x", "q", "z"}, 1},
		{"insertion", []string{"x", "z"}, []string{"x", "y", "z"}, 1},
		{"empty vs two", nil, []string{"x", "y"}, 2},
		{"disjoint", []string{"a", "b", "c"}, []string{"x", "y", "z"}, 3},
		{"length gap fast path", []string{"a", "b", "c", "d", "e", "f"}, []string{"a"}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tokenEditDistance(tt.a, tt.b); got != tt.want {
				t.Errorf("tokenEditDistance(%v, %v) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
