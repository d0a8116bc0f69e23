package services

import (
	"fmt"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/zap"

	"github.com/loomworks/loom-engine/pkg/models"
)

// randomEvents draws n events over a two-day span from small pools of
// sources, types, actors and entities, so every edge pass gets a chance
// to fire.
func randomEvents(r *rand.Rand, n int) []models.OrgEvent {
	sources := []string{"github", "slack", "linear", "jira"}
	types := []string{"pr.opened", "message.sent", "issue.created", "ticket.moved"}
	actors := []string{"alice", "bob", "carol", "dave", "unknown"}

	events := make([]models.OrgEvent, 0, n)
	for i := 0; i < n; i++ {
		at := fixtureBase.Add(time.Duration(r.Int63n(48*3600)) * time.Second)
		e := evt(
			sources[r.Intn(len(sources))],
			types[r.Intn(len(types))],
			actors[r.Intn(len(actors))],
			fmt.Sprintf("entity-%d", r.Intn(12)),
			at,
		)
		// The content hash collides for same-second duplicates; real
		// feeds carry provider ids, so keep ids unique here.
		e.ID = fmt.Sprintf("%s-%04d", e.ID, i)
		events = append(events, e)
	}
	return events
}

func TestProperty_EventGraphInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	builder := NewEventGraphBuilder(zap.NewNop())

	properties.Property("edges always point forward in time", prop.ForAll(
		func(seed int64, n int) bool {
			events := randomEvents(rand.New(rand.NewSource(seed)), n)
			graph := builder.Build(events)

			times := make(map[string]time.Time, len(graph.Nodes))
			for i := range graph.Nodes {
				at, err := graph.Nodes[i].Time()
				if err != nil {
					return false
				}
				times[graph.Nodes[i].ID] = at
			}
			for _, e := range graph.Edges {
				if e.TimeDeltaMs <= 0 {
					return false
				}
				if !times[e.From].Before(times[e.To]) {
					return false
				}
			}
			return true
		},
		gen.Int64(),
		gen.IntRange(0, 80),
	))

	properties.Property("node degrees never exceed the cap", prop.ForAll(
		func(seed int64, n int) bool {
			events := randomEvents(rand.New(rand.NewSource(seed)), n)
			graph := builder.Build(events)

			outDeg := make(map[string]int)
			inDeg := make(map[string]int)
			for _, e := range graph.Edges {
				outDeg[e.From]++
				inDeg[e.To]++
			}
			for _, d := range outDeg {
				if d > maxNodeDegree {
					return false
				}
			}
			for _, d := range inDeg {
				if d > maxNodeDegree {
					return false
				}
			}
			return true
		},
		gen.Int64(),
		gen.IntRange(0, 120),
	))

	properties.Property("edge weights stay within [0, 1]", prop.ForAll(
		func(seed int64, n int) bool {
			events := randomEvents(rand.New(rand.NewSource(seed)), n)
			graph := builder.Build(events)

			for _, e := range graph.Edges {
				if e.Weight < 0 || e.Weight > 1 {
					return false
				}
			}
			return true
		},
		gen.Int64(),
		gen.IntRange(0, 80),
	))

	properties.Property("building twice yields identical graphs", prop.ForAll(
		func(seed int64, n int) bool {
			events := randomEvents(rand.New(rand.NewSource(seed)), n)
			shuffled := make([]models.OrgEvent, len(events))
			copy(shuffled, events)
			rand.New(rand.NewSource(seed + 1)).Shuffle(len(shuffled), func(i, j int) {
				shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
			})

			return reflect.DeepEqual(builder.Build(events), builder.Build(shuffled))
		},
		gen.Int64(),
		gen.IntRange(0, 60),
	))

	properties.TestingRun(t)
}
