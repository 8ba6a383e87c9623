package fusion

import (
	"time"

	"github.com/engramlabs/engram-go/pkg/record"
	"github.com/engramlabs/engram-go/pkg/vector"
)

// DefaultThreshold is the composite similarity above which two records are
// considered duplicates.
const DefaultThreshold = 0.85

// relevanceBoost is applied once per actual merge, capped at 1.0.
const relevanceBoost = 1.1

// Weights are the components of the composite similarity. They should sum
// to 1.0.
type Weights struct {
	EmbeddingCosine    float64
	TextJaccard        float64
	KeywordJaccard     float64
	TypeEquality       float64
	TimeProximity      float64
	LogicalConsistency float64
}

// DefaultWeights returns the standard component weighting.
func DefaultWeights() Weights {
	return Weights{
		EmbeddingCosine:    0.35,
		TextJaccard:        0.25,
		KeywordJaccard:     0.15,
		TypeEquality:       0.10,
		TimeProximity:      0.10,
		LogicalConsistency: 0.05,
	}
}

// Merge describes one cluster collapse: which record survived and which were
// absorbed into it.
type Merge struct {
	RepresentativeID string
	AbsorbedIDs      []string
}

// Engine detects and merges near-duplicate records.
type Engine struct {
	threshold float64
	weights   Weights
	now       func() time.Time
}

// NewEngine creates a fusion engine. A zero threshold selects
// DefaultThreshold.
func NewEngine(threshold float64) *Engine {
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	return &Engine{
		threshold: threshold,
		weights:   DefaultWeights(),
		now:       time.Now,
	}
}

// Similarity computes the weighted composite similarity of two records.
func (e *Engine) Similarity(a, b *record.MemoryRecord) float64 {
	w := e.weights

	score := w.EmbeddingCosine * clamp01(vector.Cosine(a.Embedding, b.Embedding))
	score += w.TextJaccard * jaccard(record.Tokenize(a.DisplayText), record.Tokenize(b.DisplayText))
	score += w.KeywordJaccard * jaccard(record.NormalizeTokens(a.Keywords), record.NormalizeTokens(b.Keywords))
	if a.Type == b.Type {
		score += w.TypeEquality
	}
	score += w.TimeProximity * timeProximity(a.CreatedAt, b.CreatedAt)
	score += w.LogicalConsistency * logicalConsistency(a, b)
	return score
}

// Duplicate reports whether two records should fuse: exact fingerprint match
// or composite similarity at or above the threshold.
func (e *Engine) Duplicate(a, b *record.MemoryRecord) bool {
	if a.SemanticHash != "" && a.SemanticHash == b.SemanticHash {
		return true
	}
	return e.Similarity(a, b) >= e.threshold
}

// Fuse collapses near-duplicates in the candidate set. It returns the
// canonical record set and one Merge per collapsed cluster. Records are
// mutated in place; absorbed records are simply dropped from the result.
//
// The operation is idempotent: running Fuse over an already-fused set leaves
// every record untouched and reports no merges.
func (e *Engine) Fuse(records []*record.MemoryRecord) ([]*record.MemoryRecord, []Merge) {
	n := len(records)
	if n <= 1 {
		return records, nil
	}

	// Connected components over the pairwise duplicate graph.
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(i, j int) {
		ri, rj := find(i), find(j)
		if ri != rj {
			parent[rj] = ri
		}
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if e.Duplicate(records[i], records[j]) {
				union(i, j)
			}
		}
	}

	clusters := make(map[int][]*record.MemoryRecord)
	order := make([]int, 0, n)
	for i, rec := range records {
		root := find(i)
		if _, ok := clusters[root]; !ok {
			order = append(order, root)
		}
		clusters[root] = append(clusters[root], rec)
	}

	out := make([]*record.MemoryRecord, 0, len(clusters))
	var merges []Merge
	for _, root := range order {
		cluster := clusters[root]
		if len(cluster) == 1 {
			out = append(out, cluster[0])
			continue
		}
		rep, absorbed := e.merge(cluster)
		out = append(out, rep)
		merges = append(merges, Merge{RepresentativeID: rep.ID, AbsorbedIDs: absorbed})
	}
	return out, merges
}

// representativeScore ranks cluster members for survival.
func representativeScore(rec *record.MemoryRecord) float64 {
	accessTerm := 0.1 * float64(rec.AccessCount)
	if accessTerm > 0.2 {
		accessTerm = 0.2
	}
	return 0.3*float64(rec.Confidence) + 0.3*float64(rec.Importance) +
		accessTerm + 0.2*rec.RelevanceScore
}

// merge collapses a cluster into its best representative: attribute union,
// ordinal fields raised to the group max, relevance boosted and never
// decreased.
func (e *Engine) merge(cluster []*record.MemoryRecord) (*record.MemoryRecord, []string) {
	rep := cluster[0]
	for _, rec := range cluster[1:] {
		if representativeScore(rec) > representativeScore(rep) {
			rep = rec
		}
	}

	maxConf := rep.Confidence
	maxImp := rep.Importance
	maxRel := rep.RelevanceScore
	var absorbed []string

	for _, rec := range cluster {
		if rec.Confidence > maxConf {
			maxConf = rec.Confidence
		}
		if rec.Importance > maxImp {
			maxImp = rec.Importance
		}
		if rec.RelevanceScore > maxRel {
			maxRel = rec.RelevanceScore
		}
		if rec == rep {
			continue
		}
		absorbed = append(absorbed, rec.ID)
		rep.Keywords = unionTokens(rep.Keywords, rec.Keywords)
		rep.Tags = unionTokens(rep.Tags, rec.Tags)
		rep.Categories = unionTokens(rep.Categories, rec.Categories)
		rep.RelatedIDs = unionTokens(rep.RelatedIDs, rec.RelatedIDs)
		rep.RelatedIDs = unionTokens(rep.RelatedIDs, []string{rec.ID})
		if rec.AccessCount > 0 {
			rep.AccessCount += rec.AccessCount
			rep.TotalActivations += rec.TotalActivations
		}
	}

	rep.Confidence = maxConf.Clamp()
	rep.Importance = maxImp.Clamp()
	rep.RelevanceScore = maxRel * relevanceBoost
	if rep.RelevanceScore > 1.0 {
		rep.RelevanceScore = 1.0
	}
	rep.LastModified = e.now()
	return rep, absorbed
}

func unionTokens(dst, add []string) []string {
	seen := make(map[string]bool, len(dst))
	for _, t := range dst {
		seen[t] = true
	}
	for _, t := range add {
		if t != "" && !seen[t] {
			seen[t] = true
			dst = append(dst, t)
		}
	}
	return dst
}

// jaccard computes |A∩B| / |A∪B| over token sets. Two empty sets score 0.
func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]bool, len(a))
	for _, t := range a {
		setA[t] = true
	}
	setB := make(map[string]bool, len(b))
	for _, t := range b {
		setB[t] = true
	}
	inter := 0
	for t := range setA {
		if setB[t] {
			inter++
		}
	}
	unionSize := len(setA) + len(setB) - inter
	if unionSize == 0 {
		return 0
	}
	return float64(inter) / float64(unionSize)
}

// timeProximity scores creation-time closeness in 24h / 1-week bands.
func timeProximity(a, b time.Time) float64 {
	if a.IsZero() || b.IsZero() {
		return 0
	}
	delta := a.Sub(b)
	if delta < 0 {
		delta = -delta
	}
	switch {
	case delta <= 24*time.Hour:
		return 1.0
	case delta <= 7*24*time.Hour:
		return 0.5
	default:
		return 0
	}
}

// logicalConsistency measures (subject, predicate, object) overlap.
func logicalConsistency(a, b *record.MemoryRecord) float64 {
	score := jaccard(record.NormalizeTokens(a.Subjects), record.NormalizeTokens(b.Subjects))
	if a.Predicate != "" && a.Predicate == b.Predicate {
		score += 1.0
	}
	score += jaccard(record.Tokenize(a.Object), record.Tokenize(b.Object))
	return score / 3.0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
