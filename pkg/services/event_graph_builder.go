package services

import (
	"sort"

	"go.uber.org/zap"

	"github.com/loomworks/loom-engine/pkg/models"
)

// Edge construction windows. Same-actor pairs inside the causal window
// that also share an entity are classified causal instead.
const (
	actorWindowMs    = int64(4 * 60 * 60 * 1000)  // 4h
	causalWindowMs   = int64(2 * 60 * 60 * 1000)  // 2h
	entityWindowMs   = int64(24 * 60 * 60 * 1000) // 24h
	temporalWindowMs = int64(60 * 60 * 1000)      // 1h

	// maxNodeDegree caps both the in-degree and the out-degree of every
	// node. Attempted edges beyond the cap are dropped, not deferred;
	// pass order and sorted-time iteration decide which edges survive.
	maxNodeDegree = 20
)

// EventGraphBuilder turns a flat event set into a temporal graph.
type EventGraphBuilder interface {
	// Build constructs a fresh EventGraph from the given events. It is
	// a total function: any well-typed input yields a graph. Events
	// with unparseable timestamps are skipped and counted in
	// Stats.SkippedEvents (see DESIGN.md for the policy decision).
	Build(events []models.OrgEvent) *models.EventGraph
}

type eventGraphBuilder struct {
	logger *zap.Logger
}

// NewEventGraphBuilder creates a new EventGraphBuilder.
func NewEventGraphBuilder(logger *zap.Logger) EventGraphBuilder {
	return &eventGraphBuilder{
		logger: logger.Named("graph-builder"),
	}
}

var _ EventGraphBuilder = (*eventGraphBuilder)(nil)

// graphArena holds the mutable state of one Build call. Nothing in it
// escapes: Build returns an immutable EventGraph and drops the arena.
type graphArena struct {
	nodes    []models.OrgEvent
	times    map[string]int64 // event id -> unix millis
	byID     map[string]*models.OrgEvent
	edges    []models.GraphEdge
	outDeg   map[string]int
	inDeg    map[string]int
	seenPair map[[2]string]bool
}

func (b *eventGraphBuilder) Build(events []models.OrgEvent) *models.EventGraph {
	arena := &graphArena{
		times:    make(map[string]int64, len(events)),
		byID:     make(map[string]*models.OrgEvent, len(events)),
		outDeg:   make(map[string]int),
		inDeg:    make(map[string]int),
		seenPair: make(map[[2]string]bool),
	}

	// Sort events by timestamp, ties broken by event id so repeated
	// builds over the same input are identical.
	skipped := 0
	for i := range events {
		t, err := events[i].Time()
		if err != nil {
			skipped++
			b.logger.Warn("Skipping event with unparseable timestamp",
				zap.String("event_id", events[i].ID),
				zap.String("timestamp", events[i].Timestamp))
			continue
		}
		arena.nodes = append(arena.nodes, events[i])
		arena.times[events[i].ID] = t.UnixMilli()
	}
	sort.SliceStable(arena.nodes, func(i, j int) bool {
		ti, tj := arena.times[arena.nodes[i].ID], arena.times[arena.nodes[j].ID]
		if ti != tj {
			return ti < tj
		}
		return arena.nodes[i].ID < arena.nodes[j].ID
	})
	for i := range arena.nodes {
		arena.byID[arena.nodes[i].ID] = &arena.nodes[i]
	}

	actorIndex := buildIndex(arena.nodes, func(e *models.OrgEvent) []string {
		return []string{e.ActorID}
	})
	entityIndex := buildIndex(arena.nodes, func(e *models.OrgEvent) []string {
		keys := make([]string, 0, 1+len(e.RelatedEntityIDs))
		keys = append(keys, e.EntityID)
		keys = append(keys, e.RelatedEntityIDs...)
		return keys
	})
	eventTypeIndex := buildIndex(arena.nodes, func(e *models.OrgEvent) []string {
		return []string{e.EventType}
	})

	b.sameActorPass(arena, actorIndex)
	b.sameEntityPass(arena, entityIndex)
	b.temporalPass(arena)

	crossSystem := 0
	for _, e := range arena.edges {
		if arena.byID[e.From].Source != arena.byID[e.To].Source {
			crossSystem++
		}
	}

	return &models.EventGraph{
		Nodes:          arena.nodes,
		Edges:          arena.edges,
		ActorIndex:     actorIndex,
		EntityIndex:    entityIndex,
		EventTypeIndex: eventTypeIndex,
		Stats: models.GraphStats{
			NodeCount:        len(arena.nodes),
			EdgeCount:        len(arena.edges),
			CrossSystemEdges: crossSystem,
			ActorCount:       len(actorIndex),
			EntityCount:      len(entityIndex),
			EventTypeCount:   len(eventTypeIndex),
			SkippedEvents:    skipped,
		},
	}
}

// buildIndex maps each key produced by keyFn to the time-ordered ids of
// the events carrying it. Empty keys are not indexed.
func buildIndex(nodes []models.OrgEvent, keyFn func(*models.OrgEvent) []string) map[string][]string {
	index := make(map[string][]string)
	for i := range nodes {
		for _, key := range keyFn(&nodes[i]) {
			if key == "" {
				continue
			}
			index[key] = append(index[key], nodes[i].ID)
		}
	}
	return index
}

// sameActorPass links the time-ordered events of each actor within the
// 4h window. Pairs that also share an entity inside the tighter 2h
// window are classified causal. Actor ids that carry no attribution
// ("unknown", "system") are excluded.
func (b *eventGraphBuilder) sameActorPass(arena *graphArena, actorIndex map[string][]string) {
	for _, actor := range sortedKeys(actorIndex) {
		if actor == "unknown" || actor == "system" {
			continue
		}
		ids := actorIndex[actor]
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				dt := arena.times[ids[j]] - arena.times[ids[i]]
				if dt > actorWindowMs {
					break // ids are time-sorted
				}
				if dt <= 0 {
					continue
				}
				from, to := arena.byID[ids[i]], arena.byID[ids[j]]
				if from.EntityID != "" && from.EntityID == to.EntityID && dt <= causalWindowMs {
					arena.addEdge(ids[i], ids[j], models.RelationCausal, 1-float64(dt)/float64(causalWindowMs), dt)
				} else {
					arena.addEdge(ids[i], ids[j], models.RelationSameActor, 1-float64(dt)/float64(actorWindowMs), dt)
				}
			}
		}
	}
}

// sameEntityPass links events touching the same entity through
// different actors within the 24h window. Same-actor pairs are already
// covered by the first pass.
func (b *eventGraphBuilder) sameEntityPass(arena *graphArena, entityIndex map[string][]string) {
	for _, entity := range sortedKeys(entityIndex) {
		ids := entityIndex[entity]
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				dt := arena.times[ids[j]] - arena.times[ids[i]]
				if dt > entityWindowMs {
					break
				}
				if dt <= 0 {
					continue
				}
				if arena.byID[ids[i]].ActorID == arena.byID[ids[j]].ActorID {
					continue
				}
				arena.addEdge(ids[i], ids[j], models.RelationSameEntity, 1-float64(dt)/float64(entityWindowMs), dt)
			}
		}
	}
}

// temporalPass links events with different sources, actors and entities
// that occurred within the 1h window.
func (b *eventGraphBuilder) temporalPass(arena *graphArena) {
	for i := 0; i < len(arena.nodes); i++ {
		from := &arena.nodes[i]
		for j := i + 1; j < len(arena.nodes); j++ {
			to := &arena.nodes[j]
			dt := arena.times[to.ID] - arena.times[from.ID]
			if dt > temporalWindowMs {
				break
			}
			if dt <= 0 {
				continue
			}
			if from.Source == to.Source || from.ActorID == to.ActorID || from.EntityID == to.EntityID {
				continue
			}
			arena.addEdge(from.ID, to.ID, models.RelationTemporal, 1-float64(dt)/float64(temporalWindowMs), dt)
		}
	}
}

// addEdge appends an edge unless either endpoint has exhausted its
// degree cap or the pair is already connected.
func (a *graphArena) addEdge(from, to string, relation models.EdgeRelation, weight float64, dt int64) {
	if a.outDeg[from] >= maxNodeDegree || a.inDeg[to] >= maxNodeDegree {
		return
	}
	pair := [2]string{from, to}
	if a.seenPair[pair] {
		return
	}
	if weight < 0 {
		weight = 0
	}
	a.seenPair[pair] = true
	a.outDeg[from]++
	a.inDeg[to]++
	a.edges = append(a.edges, models.GraphEdge{
		From:        from,
		To:          to,
		Relation:    relation,
		Weight:      weight,
		TimeDeltaMs: dt,
	})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
