package retrieval

import (
	"math"
	"strings"
	"time"

	"github.com/engramlabs/engram-go/pkg/record"
)

// Intent classifies what kind of answer a query is after. The final rerank
// boosts records whose memory type matches the detected intent.
type Intent string

const (
	IntentFactQuery       Intent = "fact_query"
	IntentEventRecall     Intent = "event_recall"
	IntentPreferenceCheck Intent = "preference_check"
	IntentGeneral         Intent = "general"
)

var intentPatterns = map[Intent][]string{
	IntentFactQuery: {
		"who is", "what is", "where does", "where is", "how old",
		"what does", "name of", "which company", "birthday",
	},
	IntentEventRecall: {
		"when did", "what happened", "last time", "remember when",
		"did i", "did we", "have i", "yesterday", "last week", "last month",
	},
	IntentPreferenceCheck: {
		"favorite", "favourite", "prefer", "like best", "do i like",
		"does she like", "does he like", "what do i like", "fond of",
	},
}

// intentTypes lists the memory types considered a match for each intent.
var intentTypes = map[Intent][]record.MemoryType{
	IntentFactQuery:       {record.TypePersonalFact, record.TypeRelationship, record.TypeKnowledge, record.TypeSkill},
	IntentEventRecall:     {record.TypeEvent, record.TypeExperience, record.TypeContextual},
	IntentPreferenceCheck: {record.TypePreference, record.TypeOpinion, record.TypeEmotion},
}

// ClassifyIntent detects the query intent with lightweight pattern matching.
// Unrecognized queries classify as IntentGeneral.
func ClassifyIntent(query string) Intent {
	q := strings.ToLower(query)
	for _, intent := range []Intent{IntentEventRecall, IntentPreferenceCheck, IntentFactQuery} {
		for _, pat := range intentPatterns[intent] {
			if strings.Contains(q, pat) {
				return intent
			}
		}
	}
	return IntentGeneral
}

// RerankWeights are the mixing weights for the final rerank. They are
// normalized to sum to 1 before use, so callers may pass any positive
// values.
type RerankWeights struct {
	Semantic float64
	Recency  float64
	Access   float64
	Intent   float64
}

// DefaultRerankWeights returns the standard final-rerank mix.
func DefaultRerankWeights() RerankWeights {
	return RerankWeights{Semantic: 0.5, Recency: 0.2, Access: 0.2, Intent: 0.1}
}

// normalized returns the weights scaled to sum to 1. All-zero weights fall
// back to the defaults.
func (w RerankWeights) normalized() RerankWeights {
	sum := w.Semantic + w.Recency + w.Access + w.Intent
	if sum <= 0 {
		return DefaultRerankWeights()
	}
	return RerankWeights{
		Semantic: w.Semantic / sum,
		Recency:  w.Recency / sum,
		Access:   w.Access / sum,
		Intent:   w.Intent / sum,
	}
}

// recencyHalfLife controls the exponential recency decay in the final
// rerank: a record half this old scores ~0.71, one this old scores 0.5.
const recencyHalfLife = 30 * 24 * time.Hour

// rerankScore computes the final score of one record.
//
// final = w1*semantic + w2*recency_decay + w3*access + w4*intent_match
// where recency decays exponentially with age, access is log2(count+1)
// scaled into [0,1], and intent_match is 1 when the record's type matches
// the detected intent.
func rerankScore(rec *record.MemoryRecord, semantic float64, intent Intent, w RerankWeights, now time.Time) float64 {
	age := now.Sub(rec.CreatedAt)
	if rec.LastAccessed.After(rec.CreatedAt) {
		age = now.Sub(rec.LastAccessed)
	}
	if age < 0 {
		age = 0
	}
	recency := math.Exp2(-float64(age) / float64(recencyHalfLife))

	// log2(access+1) scaled so ~1000 accesses saturate at 1.0.
	access := math.Log2(float64(rec.AccessCount)+1) / 10
	if access > 1 {
		access = 1
	}

	var match float64
	if types, ok := intentTypes[intent]; ok {
		for _, t := range types {
			if rec.Type == t {
				match = 1
				break
			}
		}
	}

	return w.Semantic*semantic + w.Recency*recency + w.Access*access + w.Intent*match
}
