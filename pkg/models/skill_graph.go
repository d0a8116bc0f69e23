package models

import "time"

// ============================================================================
// Skill Node Types
// ============================================================================

// SkillNodeType identifies what a node in a compiled skill graph does.
type SkillNodeType string

const (
	SkillNodeTrigger   SkillNodeType = "trigger"
	SkillNodeAction    SkillNodeType = "action"
	SkillNodeWait      SkillNodeType = "wait"
	SkillNodeCondition SkillNodeType = "condition"
	SkillNodeTransform SkillNodeType = "transform"
	SkillNodeNotify    SkillNodeType = "notify"
)

// ValidSkillNodeTypes contains all valid skill node type values.
var ValidSkillNodeTypes = []SkillNodeType{
	SkillNodeTrigger,
	SkillNodeAction,
	SkillNodeWait,
	SkillNodeCondition,
	SkillNodeTransform,
	SkillNodeNotify,
}

// IsValidSkillNodeType checks if the given node type is valid.
func IsValidSkillNodeType(t SkillNodeType) bool {
	for _, v := range ValidSkillNodeTypes {
		if v == t {
			return true
		}
	}
	return false
}

// ============================================================================
// Skill Status
// ============================================================================

// SkillStatus represents the lifecycle status of a compiled skill.
type SkillStatus string

const (
	SkillStatusDraft    SkillStatus = "draft"
	SkillStatusActive   SkillStatus = "active"
	SkillStatusArchived SkillStatus = "archived"
)

// ValidSkillStatuses contains all valid skill status values.
var ValidSkillStatuses = []SkillStatus{
	SkillStatusDraft,
	SkillStatusActive,
	SkillStatusArchived,
}

// IsValidSkillStatus checks if the given status is valid.
func IsValidSkillStatus(s SkillStatus) bool {
	for _, v := range ValidSkillStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// ============================================================================
// Skill Graph Model
// ============================================================================

// SkillTrigger describes the event that starts a skill.
type SkillTrigger struct {
	EventType string `json:"event_type"`
	Source    string `json:"source"`
	Condition string `json:"condition,omitempty"`
}

// SkillNode is a node of a compiled skill graph.
type SkillNode struct {
	ID     string         `json:"id"`
	Type   SkillNodeType  `json:"type"`
	Name   string         `json:"name"`
	Config map[string]any `json:"config,omitempty"`
}

// SkillEdge is a directed edge of a compiled skill graph. Condition is
// the tag of a conditional branch ("optional_2", "skip_optional_2");
// unconditional edges leave it empty.
type SkillEdge struct {
	From       string `json:"from"`
	To         string `json:"to"`
	Condition  string `json:"condition,omitempty"`
	AvgDelayMs int64  `json:"avg_delay_ms,omitempty"`
}

// SkillMetadata carries the mining statistics a skill was compiled from.
type SkillMetadata struct {
	Frequency     int      `json:"frequency"`
	Confidence    float64  `json:"confidence"`
	Entropy       float64  `json:"entropy"`
	CrossSystem   bool     `json:"cross_system"`
	ActorCount    int      `json:"actor_count"`
	SourcePattern string   `json:"source_pattern"`
	Integrations  []string `json:"integrations"`
}

// SkillGraph is a compiled, versioned, executable DAG representation of
// a mined pattern. Nodes and edges are only ever appended forward from
// the previous node during compilation, so the graph is acyclic by
// construction. Persisted as an append-only, versioned record per
// (workspace, skill id); recompilation never mutates a prior version.
type SkillGraph struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Version     int           `json:"version"`
	Trigger     SkillTrigger  `json:"trigger"`
	Nodes       []SkillNode   `json:"nodes"`
	Edges       []SkillEdge   `json:"edges"`
	Metadata    SkillMetadata `json:"metadata"`
	Status      SkillStatus   `json:"status"`
	CompiledAt  time.Time     `json:"compiled_at"`
}

// NodeByID returns the node with the given id, or nil.
func (s *SkillGraph) NodeByID(id string) *SkillNode {
	for i := range s.Nodes {
		if s.Nodes[i].ID == id {
			return &s.Nodes[i]
		}
	}
	return nil
}

// TriggerNodeCount returns how many trigger nodes the graph holds.
// A valid compiled skill has exactly one.
func (s *SkillGraph) TriggerNodeCount() int {
	count := 0
	for _, n := range s.Nodes {
		if n.Type == SkillNodeTrigger {
			count++
		}
	}
	return count
}
