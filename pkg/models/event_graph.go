package models

// ============================================================================
// Edge Relations
// ============================================================================

// EdgeRelation classifies how two events in the graph are connected.
type EdgeRelation string

const (
	// RelationTemporal links events from different sources, actors and
	// entities that occurred close together in time.
	RelationTemporal EdgeRelation = "temporal"
	// RelationSameActor links two events performed by the same actor.
	RelationSameActor EdgeRelation = "same_actor"
	// RelationSameEntity links events that touched the same entity
	// through different actors.
	RelationSameEntity EdgeRelation = "same_entity"
	// RelationCausal links same-actor events on the same entity within
	// the tight causal window.
	RelationCausal EdgeRelation = "causal"
)

// ValidEdgeRelations contains all valid edge relation values.
var ValidEdgeRelations = []EdgeRelation{
	RelationTemporal,
	RelationSameActor,
	RelationSameEntity,
	RelationCausal,
}

// IsValidEdgeRelation checks if the given relation is valid.
func IsValidEdgeRelation(r EdgeRelation) bool {
	for _, v := range ValidEdgeRelations {
		if v == r {
			return true
		}
	}
	return false
}

// ============================================================================
// Graph
// ============================================================================

// GraphEdge is a directed edge between two events. Edges always point
// forward in time: the "from" event strictly precedes the "to" event.
type GraphEdge struct {
	From        string       `json:"from"`
	To          string       `json:"to"`
	Relation    EdgeRelation `json:"relation"`
	Weight      float64      `json:"weight"` // [0,1], decays with time distance
	TimeDeltaMs int64        `json:"time_delta_ms"`
}

// GraphStats aggregates counts computed while building a graph.
type GraphStats struct {
	NodeCount        int `json:"node_count"`
	EdgeCount        int `json:"edge_count"`
	CrossSystemEdges int `json:"cross_system_edges"`
	ActorCount       int `json:"actor_count"`
	EntityCount      int `json:"entity_count"`
	EventTypeCount   int `json:"event_type_count"`
	// SkippedEvents counts events dropped for unparseable timestamps.
	SkippedEvents int `json:"skipped_events"`
}

// EventGraph is a temporal graph over a workspace's events. Nodes are a
// time-sorted projection of the input events; the three indices map a
// key to the time-ordered ids of the events that carry it. A graph is
// built fresh on every call and never mutated afterwards.
type EventGraph struct {
	Nodes []OrgEvent  `json:"nodes"`
	Edges []GraphEdge `json:"edges"`

	ActorIndex     map[string][]string `json:"actor_index"`
	EntityIndex    map[string][]string `json:"entity_index"`
	EventTypeIndex map[string][]string `json:"event_type_index"`

	Stats GraphStats `json:"stats"`
}

// NodeByID returns the node with the given event id, or nil.
func (g *EventGraph) NodeByID(id string) *OrgEvent {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// TypeOccurrences returns how many events of the given type the graph
// holds. This is the confidence denominator used by the miner.
func (g *EventGraph) TypeOccurrences(eventType string) int {
	return len(g.EventTypeIndex[eventType])
}
