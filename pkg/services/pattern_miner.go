package services

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/spaolacci/murmur3"
	"go.uber.org/zap"

	"github.com/loomworks/loom-engine/pkg/models"
)

// optionalStepThreshold: a canonical step observed in fewer than this
// share of a cluster's instances is marked optional.
const optionalStepThreshold = 0.8

// editDistanceLengthGap is the fast-path cutoff for clustering: token
// sequences whose lengths differ by more than this use the length
// difference itself as the distance, skipping the full DP.
const editDistanceLengthGap = 3

// PatternMiner extracts recurring behavioral sequences from an event
// graph and scores them into MinedPattern records.
type PatternMiner interface {
	// MinePatterns runs the full mining pass over the graph. The
	// result is sorted by frequency descending and is deterministic:
	// the same graph and config always produce identical output.
	MinePatterns(graph *models.EventGraph, cfg models.MiningConfig) ([]models.MinedPattern, error)
}

type patternMiner struct {
	logger *zap.Logger
}

// NewPatternMiner creates a new PatternMiner.
func NewPatternMiner(logger *zap.Logger) PatternMiner {
	return &patternMiner{
		logger: logger.Named("pattern-miner"),
	}
}

var _ PatternMiner = (*patternMiner)(nil)

func (m *patternMiner) MinePatterns(graph *models.EventGraph, cfg models.MiningConfig) ([]models.MinedPattern, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(graph.Nodes) == 0 {
		return []models.MinedPattern{}, nil
	}

	byID := make(map[string]*models.OrgEvent, len(graph.Nodes))
	for i := range graph.Nodes {
		byID[graph.Nodes[i].ID] = &graph.Nodes[i]
	}
	adj := buildAdjacency(graph)

	anchors := selectAnchors(graph)
	if len(anchors) == 0 {
		return []models.MinedPattern{}, nil
	}

	patterns := make([]models.MinedPattern, 0)
	for _, anchor := range anchors {
		sequences := m.extractSequences(graph, byID, adj, anchor, cfg)
		if len(sequences) == 0 {
			continue
		}
		clusters := clusterSequences(sequences, cfg.MaxEditDistance)
		total := graph.TypeOccurrences(anchor)
		for _, cluster := range clusters {
			p := summarizeCluster(anchor, cluster, total)
			if p.Frequency < cfg.MinFrequency || p.Confidence < cfg.MinConfidence {
				continue
			}
			patterns = append(patterns, p)
		}
	}

	sort.SliceStable(patterns, func(i, j int) bool {
		if patterns[i].Frequency != patterns[j].Frequency {
			return patterns[i].Frequency > patterns[j].Frequency
		}
		return patterns[i].ID < patterns[j].ID
	})

	m.logger.Info("Mining complete",
		zap.Int("anchors", len(anchors)),
		zap.Int("patterns", len(patterns)))

	return patterns, nil
}

// buildAdjacency groups outgoing edges per node, best candidate first:
// highest weight, then smallest time delta, then target id.
func buildAdjacency(graph *models.EventGraph) map[string][]models.GraphEdge {
	adj := make(map[string][]models.GraphEdge)
	for _, e := range graph.Edges {
		adj[e.From] = append(adj[e.From], e)
	}
	for _, edges := range adj {
		sort.SliceStable(edges, func(i, j int) bool {
			if edges[i].Weight != edges[j].Weight {
				return edges[i].Weight > edges[j].Weight
			}
			if edges[i].TimeDeltaMs != edges[j].TimeDeltaMs {
				return edges[i].TimeDeltaMs < edges[j].TimeDeltaMs
			}
			return edges[i].To < edges[j].To
		})
	}
	return adj
}

// selectAnchors picks the event types worth starting sequence walks
// from: types with above-average forward connectivity. Types occurring
// at least 3 times qualify (relaxed to 2 if none do); the top half by
// summed out-degree is kept, minimum one.
func selectAnchors(graph *models.EventGraph) []string {
	outDeg := make(map[string]int)
	for _, e := range graph.Edges {
		outDeg[e.From]++
	}

	type typeStat struct {
		eventType string
		degree    int
		count     int
	}
	byType := make(map[string]*typeStat)
	for i := range graph.Nodes {
		n := &graph.Nodes[i]
		s, ok := byType[n.EventType]
		if !ok {
			s = &typeStat{eventType: n.EventType}
			byType[n.EventType] = s
		}
		s.count++
		s.degree += outDeg[n.ID]
	}

	pick := func(minCount int) []*typeStat {
		var out []*typeStat
		for _, s := range byType {
			if s.count >= minCount {
				out = append(out, s)
			}
		}
		return out
	}

	candidates := pick(3)
	if len(candidates) == 0 {
		candidates = pick(2)
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].degree != candidates[j].degree {
			return candidates[i].degree > candidates[j].degree
		}
		return candidates[i].eventType < candidates[j].eventType
	})

	keep := len(candidates) / 2
	if keep < 1 {
		keep = 1
	}
	anchors := make([]string, 0, keep)
	for _, s := range candidates[:keep] {
		anchors = append(anchors, s.eventType)
	}
	return anchors
}

// extractSequences walks forward from every occurrence of the anchor
// type, greedily following the strongest unvisited outgoing edge whose
// time delta fits the sequence window. Sequences shorter than two
// events are discarded.
func (m *patternMiner) extractSequences(
	graph *models.EventGraph,
	byID map[string]*models.OrgEvent,
	adj map[string][]models.GraphEdge,
	anchor string,
	cfg models.MiningConfig,
) []models.EventSequence {
	var sequences []models.EventSequence
	for _, anchorID := range graph.EventTypeIndex[anchor] {
		start := byID[anchorID]
		steps := []models.SequenceStep{{
			EventType:      start.EventType,
			Source:         start.Source,
			RelativeTimeMs: 0,
		}}
		visited := map[string]bool{anchorID: true}
		current := anchorID
		last := start
		elapsed := int64(0)

		for len(steps) < cfg.MaxSequenceLength {
			var next *models.GraphEdge
			for i := range adj[current] {
				e := &adj[current][i]
				if visited[e.To] || e.TimeDeltaMs <= 0 || e.TimeDeltaMs > cfg.SequenceWindowMs {
					continue
				}
				next = e
				break
			}
			if next == nil {
				break
			}
			node := byID[next.To]
			elapsed += next.TimeDeltaMs
			steps = append(steps, models.SequenceStep{
				EventType:      node.EventType,
				Source:         node.Source,
				RelativeTimeMs: elapsed,
			})
			visited[next.To] = true
			current = next.To
			last = node
		}

		if len(steps) < 2 {
			continue
		}
		sequences = append(sequences, models.EventSequence{
			Steps:     steps,
			ActorID:   start.ActorID,
			StartTime: start.Timestamp,
			EndTime:   last.Timestamp,
		})
	}
	return sequences
}

// sequenceTokens renders a sequence as its canonical "source:eventType"
// token string used for clustering.
func sequenceTokens(seq *models.EventSequence) []string {
	tokens := make([]string, len(seq.Steps))
	for i, s := range seq.Steps {
		tokens[i] = s.Source + ":" + s.EventType
	}
	return tokens
}

// clusterSequences greedily groups sequences whose token edit distance
// from the cluster seed is within maxEditDistance. Input order is the
// extraction order, which is deterministic, so clustering is too.
func clusterSequences(sequences []models.EventSequence, maxEditDistance int) [][]models.EventSequence {
	tokens := make([][]string, len(sequences))
	for i := range sequences {
		tokens[i] = sequenceTokens(&sequences[i])
	}

	used := make([]bool, len(sequences))
	var clusters [][]models.EventSequence
	for i := range sequences {
		if used[i] {
			continue
		}
		used[i] = true
		cluster := []models.EventSequence{sequences[i]}
		for j := i + 1; j < len(sequences); j++ {
			if used[j] {
				continue
			}
			if tokenEditDistance(tokens[i], tokens[j]) <= maxEditDistance {
				used[j] = true
				cluster = append(cluster, sequences[j])
			}
		}
		clusters = append(clusters, cluster)
	}
	return clusters
}

// tokenEditDistance is the Levenshtein distance over whole tokens.
// Sequences whose lengths differ by more than editDistanceLengthGap
// short-circuit to that difference, skipping the full DP.
func tokenEditDistance(a, b []string) int {
	diff := len(a) - len(b)
	if diff < 0 {
		diff = -diff
	}
	if diff > editDistanceLengthGap {
		return diff
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// summarizeCluster collapses one cluster of sequences into a scored
// MinedPattern. The canonical step at each aligned position is the most
// frequent (source, eventType) pair observed there; totalAnchors is the
// anchor type's occurrence count across the entire graph, so confidence
// never exceeds 1.
func summarizeCluster(anchor string, cluster []models.EventSequence, totalAnchors int) models.MinedPattern {
	frequency := len(cluster)

	maxLen := 0
	for i := range cluster {
		if len(cluster[i].Steps) > maxLen {
			maxLen = len(cluster[i].Steps)
		}
	}

	anchorSource := mostFrequentToken(cluster, 0, func(s *models.SequenceStep) string { return s.Source })

	var steps []models.PatternStep
	var entropySum float64
	for pos := 1; pos < maxLen; pos++ {
		counts := make(map[string]int)
		timesByToken := make(map[string][]float64)
		for i := range cluster {
			if pos >= len(cluster[i].Steps) {
				continue
			}
			step := &cluster[i].Steps[pos]
			key := step.Source + ":" + step.EventType
			counts[key]++
			timesByToken[key] = append(timesByToken[key], float64(step.RelativeTimeMs))
		}

		token := ""
		best := 0
		for t, c := range counts {
			if c > best || (c == best && t < token) {
				token, best = t, c
			}
		}
		source, eventType, _ := strings.Cut(token, ":")

		avg, std := meanStdDev(timesByToken[token])
		if avg != 0 {
			entropySum += std / avg
		}

		steps = append(steps, models.PatternStep{
			EventType:  eventType,
			Source:     source,
			AvgDelayMs: int64(avg),
			StdDevMs:   int64(std),
			Optional:   float64(best) < optionalStepThreshold*float64(frequency),
		})
	}

	entropy := 0.0
	if len(steps) > 0 {
		entropy = entropySum / float64(len(steps))
	}

	sources := map[string]bool{anchorSource: true}
	for _, s := range steps {
		sources[s.Source] = true
	}

	actorSet := make(map[string]bool)
	for i := range cluster {
		actorSet[cluster[i].ActorID] = true
	}
	actors := sortedKeys(actorSet)

	confidence := 0.0
	if totalAnchors > 0 {
		confidence = float64(frequency) / float64(totalAnchors)
	}

	return models.MinedPattern{
		ID:           patternID(anchor, steps),
		Name:         patternName(anchor, steps),
		AnchorEvent:  anchor,
		AnchorSource: anchorSource,
		Sequence:     steps,
		Frequency:    frequency,
		Actors:       actors,
		Confidence:   confidence,
		Entropy:      entropy,
		CrossSystem:  len(sources) > 1,
		Instances:    cluster,
	}
}

// mostFrequentToken returns the most frequent value of fn over the
// cluster's steps at the given position, ties broken lexicographically.
func mostFrequentToken(cluster []models.EventSequence, pos int, fn func(*models.SequenceStep) string) string {
	counts := make(map[string]int)
	for i := range cluster {
		if pos >= len(cluster[i].Steps) {
			continue
		}
		counts[fn(&cluster[i].Steps[pos])]++
	}
	best, bestCount := "", 0
	for v, c := range counts {
		if c > bestCount || (c == bestCount && v < best) {
			best, bestCount = v, c
		}
	}
	return best
}

// meanStdDev returns the mean and sample standard deviation (n-1
// denominator) of the values. A single observation has deviation 0.
func meanStdDev(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	if len(values) == 1 {
		return mean, 0
	}
	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values) - 1)
	return mean, math.Sqrt(variance)
}

// patternID derives a stable content hash so repeated mining runs over
// the same graph emit identical ids.
func patternID(anchor string, steps []models.PatternStep) string {
	parts := make([]string, 0, len(steps)+1)
	parts = append(parts, anchor)
	for _, s := range steps {
		parts = append(parts, s.Source+":"+s.EventType)
	}
	h1, h2 := murmur3.Sum128([]byte(strings.Join(parts, "|")))
	return fmt.Sprintf("pat_%016x%016x", h1, h2)
}

// patternName renders "anchor → step1 → step2 → step3 +N more".
func patternName(anchor string, steps []models.PatternStep) string {
	parts := []string{anchor}
	for i, s := range steps {
		if i == 3 {
			break
		}
		parts = append(parts, s.EventType)
	}
	name := strings.Join(parts, " → ")
	if len(steps) > 3 {
		name += fmt.Sprintf(" +%d more", len(steps)-3)
	}
	return name
}
