package fusion_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramlabs/engram-go/pkg/fusion"
	"github.com/engramlabs/engram-go/pkg/record"
)

var testTime = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func coffeeRecord(id string) *record.MemoryRecord {
	return &record.MemoryRecord{
		ID:          id,
		Subjects:    []string{"alice"},
		Predicate:   "likes",
		Object:      "coffee",
		DisplayText: "Alice likes coffee",
		Type:        record.TypePreference,
		Keywords:    []string{"coffee", "drinks"},
		Embedding:   []float64{0.8, 0.6, 0},
		Confidence:  record.ConfidenceMedium,
		Importance:  record.ImportanceNormal,
		CreatedAt:   testTime,
	}
}

func TestFingerprintIgnoresTokenOrder(t *testing.T) {
	a := coffeeRecord("a")
	b := coffeeRecord("b")
	b.DisplayText = "coffee likes Alice"

	assert.Equal(t, fusion.Fingerprint(a), fusion.Fingerprint(b))

	c := coffeeRecord("c")
	c.Type = record.TypePersonalFact
	assert.NotEqual(t, fusion.Fingerprint(a), fusion.Fingerprint(c))
}

func TestDuplicateByFingerprint(t *testing.T) {
	e := fusion.NewEngine(0)
	a := coffeeRecord("a")
	b := coffeeRecord("b")
	a.SemanticHash = fusion.Fingerprint(a)
	b.SemanticHash = fusion.Fingerprint(b)

	assert.True(t, e.Duplicate(a, b))
}

func TestDuplicateByCompositeSimilarity(t *testing.T) {
	e := fusion.NewEngine(0)

	a := coffeeRecord("a")
	b := coffeeRecord("b")
	b.DisplayText = "Alice likes coffee a lot"
	b.Embedding = []float64{0.78, 0.62, 0.05}
	b.CreatedAt = testTime.Add(2 * time.Hour)

	assert.GreaterOrEqual(t, e.Similarity(a, b), 0.85)
	assert.True(t, e.Duplicate(a, b))

	unrelated := &record.MemoryRecord{
		ID:          "z",
		Subjects:    []string{"bob"},
		Predicate:   "visited",
		Object:      "tokyo",
		DisplayText: "Bob visited Tokyo last spring",
		Type:        record.TypeEvent,
		Keywords:    []string{"travel", "tokyo"},
		Embedding:   []float64{0, 0.1, 0.99},
		CreatedAt:   testTime.AddDate(0, -2, 0),
	}
	assert.False(t, e.Duplicate(a, unrelated))
}

func TestFuseMergesCluster(t *testing.T) {
	e := fusion.NewEngine(0)

	a := coffeeRecord("a")
	a.Confidence = record.ConfidenceHigh
	a.RelevanceScore = 0.5
	a.AccessCount = 3
	a.TotalActivations = 3

	b := coffeeRecord("b")
	b.DisplayText = "Alice likes coffee very"
	b.Keywords = []string{"coffee", "drinks", "espresso"}
	b.Importance = record.ImportanceHigh
	b.RelevanceScore = 0.6
	b.AccessCount = 1
	b.TotalActivations = 1

	fused, merges := e.Fuse([]*record.MemoryRecord{a, b})
	require.Len(t, fused, 1)
	require.Len(t, merges, 1)

	rep := fused[0]
	assert.Equal(t, rep.ID, merges[0].RepresentativeID)
	assert.Len(t, merges[0].AbsorbedIDs, 1)

	// Ordinals rise to the cluster max, never fall.
	assert.Equal(t, record.ConfidenceHigh, rep.Confidence)
	assert.Equal(t, record.ImportanceHigh, rep.Importance)

	// Relevance is the cluster max boosted by 1.1.
	assert.InDelta(t, 0.66, rep.RelevanceScore, 1e-9)

	// Attribute union and absorbed-id linkage.
	assert.ElementsMatch(t, []string{"coffee", "drinks", "espresso"}, rep.Keywords)
	assert.Contains(t, rep.RelatedIDs, merges[0].AbsorbedIDs[0])

	// Access counts accumulate.
	assert.Equal(t, 4, rep.AccessCount)
	assert.Equal(t, 4, rep.TotalActivations)
	assert.False(t, rep.LastModified.IsZero())
}

func TestFuseIsIdempotent(t *testing.T) {
	e := fusion.NewEngine(0)

	a := coffeeRecord("a")
	b := coffeeRecord("b")
	b.DisplayText = "Alice likes coffee very much"

	first, merges := e.Fuse([]*record.MemoryRecord{a, b})
	require.Len(t, first, 1)
	require.NotEmpty(t, merges)
	relevance := first[0].RelevanceScore

	second, merges := e.Fuse(first)
	assert.Len(t, second, 1)
	assert.Empty(t, merges)
	assert.Equal(t, relevance, second[0].RelevanceScore)
}

func TestFuseRelevanceCapped(t *testing.T) {
	e := fusion.NewEngine(0)

	a := coffeeRecord("a")
	a.RelevanceScore = 0.97
	b := coffeeRecord("b")
	b.RelevanceScore = 0.4

	fused, _ := e.Fuse([]*record.MemoryRecord{a, b})
	require.Len(t, fused, 1)
	assert.Equal(t, 1.0, fused[0].RelevanceScore)
}

func TestFuseKeepsDistinctRecords(t *testing.T) {
	e := fusion.NewEngine(0)

	a := coffeeRecord("a")
	b := &record.MemoryRecord{
		ID:          "b",
		Subjects:    []string{"bob"},
		Predicate:   "works_at",
		Object:      "acme",
		DisplayText: "Bob works at Acme",
		Type:        record.TypePersonalFact,
		Keywords:    []string{"work", "acme"},
		Embedding:   []float64{0, 0, 1},
		CreatedAt:   testTime.AddDate(0, -1, 0),
	}

	fused, merges := e.Fuse([]*record.MemoryRecord{a, b})
	assert.Len(t, fused, 2)
	assert.Empty(t, merges)
}

func TestRepresentativePrefersStrongerRecord(t *testing.T) {
	e := fusion.NewEngine(0)

	weak := coffeeRecord("weak")
	weak.Confidence = record.ConfidenceLow
	weak.Importance = record.ImportanceLow

	strong := coffeeRecord("strong")
	strong.DisplayText = "Alice likes coffee very much"
	strong.Confidence = record.ConfidenceVerified
	strong.Importance = record.ImportanceHigh

	fused, merges := e.Fuse([]*record.MemoryRecord{weak, strong})
	require.Len(t, fused, 1)
	assert.Equal(t, "strong", fused[0].ID)
	assert.Equal(t, []string{"weak"}, merges[0].AbsorbedIDs)
}
