package models

// SequenceStep is a single step of an extracted event sequence.
// RelativeTimeMs is measured from the sequence's anchor event, so the
// anchor itself is always at 0.
type SequenceStep struct {
	EventType      string `json:"event_type"`
	Source         string `json:"source"`
	RelativeTimeMs int64  `json:"relative_time_ms"`
}

// EventSequence is one concrete walk through the event graph, starting
// at an anchor occurrence.
type EventSequence struct {
	Steps     []SequenceStep `json:"steps"`
	ActorID   string         `json:"actor_id"`
	StartTime string         `json:"start_time"`
	EndTime   string         `json:"end_time"`
}

// PatternStep is one canonical step of a mined pattern, aggregated over
// every instance in the pattern's cluster. AvgDelayMs and StdDevMs are
// computed over the instances' relative times from the anchor.
type PatternStep struct {
	EventType  string `json:"event_type"`
	Source     string `json:"source"`
	AvgDelayMs int64  `json:"avg_delay_ms"`
	StdDevMs   int64  `json:"std_dev_ms"`
	// Optional marks steps present in fewer than 80% of the cluster's
	// instances.
	Optional bool `json:"optional"`
}

// MinedPattern is a recurring multi-step behavioral sequence mined from
// an event graph.
type MinedPattern struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	AnchorEvent  string        `json:"anchor_event"`
	AnchorSource string        `json:"anchor_source"`
	Sequence     []PatternStep `json:"sequence"`
	Frequency    int           `json:"frequency"`
	Actors       []string      `json:"actors"`
	// Confidence is frequency over the total occurrences of the anchor
	// type across the whole graph, so it is bounded to [0,1] by
	// construction.
	Confidence  float64 `json:"confidence"`
	Entropy     float64 `json:"entropy"`
	CrossSystem bool    `json:"cross_system"`
	// Instances retains the raw matched sequences for traceability.
	Instances []EventSequence `json:"instances"`
}
