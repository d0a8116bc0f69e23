package services

import (
	"time"

	"github.com/loomworks/loom-engine/pkg/models"
)

var fixtureBase = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func evt(source, eventType, actor, entity string, at time.Time) models.OrgEvent {
	ts := at.UTC().Format(time.RFC3339)
	return models.OrgEvent{
		ID:        models.EventID(source, eventType, entity, ts),
		Source:    source,
		EventType: eventType,
		ActorID:   actor,
		EntityID:  entity,
		Timestamp: ts,
	}
}

// reviewChain is one actor's recurring review workflow: a pull request
// is opened, announced on slack five minutes later, and tracked in
// linear two hours after the start.
func reviewChain(actor, suffix string, start time.Time) []models.OrgEvent {
	return []models.OrgEvent{
		evt("github", "pr.opened", actor, "pr-"+suffix, start),
		evt("slack", "message.sent", actor, "msg-"+suffix, start.Add(5*time.Minute)),
		evt("linear", "issue.created", actor, "iss-"+suffix, start.Add(2*time.Hour)),
	}
}

// reviewWorkload builds n non-overlapping review chains, one per actor,
// spaced four hours apart so no cross-chain edges form.
func reviewWorkload(n int) []models.OrgEvent {
	var events []models.OrgEvent
	for i := 0; i < n; i++ {
		actor := string(rune('a'+i)) + "-user"
		events = append(events, reviewChain(actor, actor, fixtureBase.Add(time.Duration(i)*4*time.Hour))...)
	}
	return events
}
