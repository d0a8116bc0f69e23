package models

import (
	"fmt"
	"time"

	"github.com/spaolacci/murmur3"
)

// OrgEvent is a canonical activity event produced by the ingestion layer
// from an arbitrary connected system. Events are immutable once created;
// the engine never mutates them.
type OrgEvent struct {
	ID               string            `json:"id"`
	OrgID            string            `json:"org_id"`
	Source           string            `json:"source"`
	EventType        string            `json:"event_type"` // "<noun>.<verb>", e.g. "pr.opened"
	ActorID          string            `json:"actor_id"`
	ActorName        string            `json:"actor_name,omitempty"`
	EntityType       string            `json:"entity_type"`
	EntityID         string            `json:"entity_id"`
	EntityName       string            `json:"entity_name,omitempty"`
	Timestamp        string            `json:"timestamp"` // ISO-8601
	Metadata         map[string]any    `json:"metadata,omitempty"`
	RelatedEntityIDs []string          `json:"related_entity_ids,omitempty"`
}

// EventID computes the deterministic id for an event: a murmur3 hash of
// source, event type, entity id and timestamp. Re-ingesting the same
// upstream record always yields the same id, so duplicate deliveries
// dedup naturally.
func EventID(source, eventType, entityID, timestamp string) string {
	h1, h2 := murmur3.Sum128([]byte(source + "|" + eventType + "|" + entityID + "|" + timestamp))
	return fmt.Sprintf("evt_%016x%016x", h1, h2)
}

// Time parses the event's ISO-8601 timestamp. A parse failure is a
// contract violation by the upstream normalizer; callers decide whether
// to skip the event (the graph builder does, counting it in stats).
func (e *OrgEvent) Time() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, e.Timestamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse event timestamp %q: %w", e.Timestamp, err)
	}
	return t, nil
}
