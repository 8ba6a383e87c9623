package retrieval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/engramlabs/engram-go/pkg/record"
)

func TestClassifyIntent(t *testing.T) {
	cases := map[string]Intent{
		"who is alice":                IntentFactQuery,
		"where does bob work":         IntentFactQuery,
		"when did we meet":            IntentEventRecall,
		"what happened in tokyo":      IntentEventRecall,
		"what is my favorite drink":   IntentPreferenceCheck,
		"does she like espresso":      IntentPreferenceCheck,
		"tell me everything you know": IntentGeneral,
	}
	for query, want := range cases {
		assert.Equal(t, want, ClassifyIntent(query), "query: %q", query)
	}
}

func TestRerankWeightsNormalized(t *testing.T) {
	w := RerankWeights{Semantic: 2, Recency: 1, Access: 1, Intent: 0}.normalized()
	assert.InDelta(t, 0.5, w.Semantic, 1e-9)
	assert.InDelta(t, 0.25, w.Recency, 1e-9)
	assert.InDelta(t, 0.25, w.Access, 1e-9)
	assert.Zero(t, w.Intent)

	// All-zero weights fall back to the defaults.
	w = RerankWeights{}.normalized()
	assert.Equal(t, DefaultRerankWeights(), w)
}

func TestRerankScoreRecencyDecay(t *testing.T) {
	now := time.Now()
	fresh := &record.MemoryRecord{Type: record.TypePreference, CreatedAt: now.Add(-time.Hour)}
	stale := &record.MemoryRecord{Type: record.TypePreference, CreatedAt: now.AddDate(0, -6, 0)}

	w := DefaultRerankWeights()
	assert.Greater(t,
		rerankScore(fresh, 0.5, IntentGeneral, w, now),
		rerankScore(stale, 0.5, IntentGeneral, w, now))
}

func TestRerankScoreLastAccessedWins(t *testing.T) {
	now := time.Now()
	rec := &record.MemoryRecord{
		Type:         record.TypePreference,
		CreatedAt:    now.AddDate(-1, 0, 0),
		LastAccessed: now.Add(-time.Hour),
	}
	untouched := &record.MemoryRecord{
		Type:      record.TypePreference,
		CreatedAt: now.AddDate(-1, 0, 0),
	}

	w := DefaultRerankWeights()
	assert.Greater(t,
		rerankScore(rec, 0.5, IntentGeneral, w, now),
		rerankScore(untouched, 0.5, IntentGeneral, w, now))
}

func TestRerankScoreIntentBoost(t *testing.T) {
	now := time.Now()
	preference := &record.MemoryRecord{Type: record.TypePreference, CreatedAt: now}
	event := &record.MemoryRecord{Type: record.TypeEvent, CreatedAt: now}

	w := DefaultRerankWeights()
	boosted := rerankScore(preference, 0.5, IntentPreferenceCheck, w, now)
	plain := rerankScore(event, 0.5, IntentPreferenceCheck, w, now)
	assert.InDelta(t, w.Intent, boosted-plain, 1e-9)
}

func TestRerankScoreAccessSaturation(t *testing.T) {
	now := time.Now()
	hot := &record.MemoryRecord{Type: record.TypeEvent, CreatedAt: now, AccessCount: 5000}
	warm := &record.MemoryRecord{Type: record.TypeEvent, CreatedAt: now, AccessCount: 2000}

	w := DefaultRerankWeights()
	// Both are past the log2 saturation point and score identically.
	assert.InDelta(t,
		rerankScore(hot, 0.5, IntentGeneral, w, now),
		rerankScore(warm, 0.5, IntentGeneral, w, now), 1e-9)
}
