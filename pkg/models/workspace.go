package models

import (
	"time"

	"github.com/google/uuid"
)

// Workspace groups the events of one organization together with the
// latest mining output. EventGraph and MinedPatterns are fully replaced
// on every mining run; they are never merged with a previous run.
type Workspace struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`

	Events        []OrgEvent     `json:"events,omitempty"`
	EventGraph    *EventGraph    `json:"event_graph,omitempty"`
	MinedPatterns []MinedPattern `json:"mined_patterns,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
