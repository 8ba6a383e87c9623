// Package record defines the structured memory record model shared by every
// engine component: the record itself, its bounded ordinal enums with explicit
// wire codecs, and the typed session context threaded through build and
// retrieve calls.
package record

import "time"

// DefaultSubject is the participant label a record falls back to when its
// extracted subjects normalize to nothing usable.
const DefaultSubject = "user"

// activationWindow is the rolling window used for ActivationFrequency.
const activationWindow = 24 * time.Hour

// MemoryRecord is a structured fact persisted across conversation sessions.
//
// A record is created from an extracted (subjects, predicate, object) triple,
// mutated on every read (access stats) and on fusion merges (attribute union,
// ordinal max, relevance boost), and destroyed only by an eviction decision or
// an explicit administrative purge.
//
// Example:
//
//	rec := &record.MemoryRecord{
//	    ID:          "1234567890",
//	    Subjects:    []string{"alice"},
//	    Predicate:   "likes",
//	    Object:      "coffee",
//	    DisplayText: "Alice likes coffee",
//	    Type:        record.TypePreference,
//	    Importance:  record.ImportanceHigh,
//	    Confidence:  record.ConfidenceHigh,
//	}
type MemoryRecord struct {
	// ID is the unique identifier of the record.
	ID string `json:"id"`

	// OwnerScope is the logical memory pool this record belongs to.
	// Scope granularity (shared vs per-scope) is a store configuration
	// decision, not a property of the record.
	OwnerScope string `json:"owner_scope"`

	// Subjects are the normalized subject tokens of the fact.
	// Non-empty after normalization; falls back to DefaultSubject.
	Subjects []string `json:"subjects"`

	// Predicate is the relation of the fact (e.g. "likes", "works_at").
	Predicate string `json:"predicate"`

	// Object is the display-normalized object of the fact.
	Object string `json:"object"`

	// DisplayText is the canonical natural-language form of the fact.
	DisplayText string `json:"display_text"`

	// Type classifies the fact (personal_fact, event, preference, ...).
	Type MemoryType `json:"memory_type"`

	// Keywords, Tags and Categories feed the metadata index.
	Keywords   []string `json:"keywords,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Categories []string `json:"categories,omitempty"`

	// Embedding is the normalized vector representation of DisplayText.
	// Its length is fixed per store instance.
	// Omitted from JSON payloads to keep them small.
	Embedding []float64 `json:"-"`

	// SemanticHash is the content fingerprint used for exact duplicate
	// detection before any similarity math runs.
	SemanticHash string `json:"semantic_hash,omitempty"`

	// RelatedIDs links records merged into or associated with this one.
	RelatedIDs []string `json:"related_ids,omitempty"`

	// CreatedAt is when the record was first built.
	CreatedAt time.Time `json:"created_at"`

	// LastAccessed is when the record was last returned by a retrieval.
	LastAccessed time.Time `json:"last_accessed"`

	// LastModified is when the record content last changed (fusion merge).
	LastModified time.Time `json:"last_modified"`

	// LastActivation is the most recent activation inside the rolling
	// frequency window.
	LastActivation time.Time `json:"last_activation_time"`

	// AccessCount is monotonically non-decreasing.
	AccessCount int `json:"access_count"`

	// ActivationFrequency counts activations within the rolling 24h window.
	ActivationFrequency int `json:"activation_frequency"`

	// TotalActivations counts every activation over the record lifetime.
	TotalActivations int `json:"total_activations"`

	// Confidence is a bounded ordinal (1..4) expressing how certain the
	// extractor was about this fact.
	Confidence Confidence `json:"confidence"`

	// Importance is a bounded ordinal (1..4); ImportanceCritical records
	// are permanently exempt from eviction.
	Importance Importance `json:"importance"`

	// RelevanceScore is a [0,1] score boosted by fusion merges and never
	// decreased by them.
	RelevanceScore float64 `json:"relevance_score"`

	// ForgettingThresholdDays is recomputed lazily from the current
	// importance/confidence/activation frequency. The persisted value is
	// advisory only, never authoritative.
	ForgettingThresholdDays float64 `json:"forgetting_threshold_days,omitempty"`

	// SourceContext records where the fact came from (build session id,
	// conversation reference, ...).
	SourceContext string `json:"source_context,omitempty"`

	// Score is the transient similarity score attached by search
	// operations. It is never persisted.
	Score float64 `json:"score,omitempty"`
}

// Touch updates the access statistics for a retrieval at time now.
//
// AccessCount only ever grows. ActivationFrequency counts activations inside
// the rolling 24h window: if the previous activation fell out of the window
// the counter restarts at 1, otherwise it increments.
func (r *MemoryRecord) Touch(now time.Time) {
	r.AccessCount++
	r.TotalActivations++
	if !r.LastActivation.IsZero() && now.Sub(r.LastActivation) <= activationWindow {
		r.ActivationFrequency++
	} else {
		r.ActivationFrequency = 1
	}
	r.LastActivation = now
	r.LastAccessed = now
}

// Clone returns a deep copy of the record.
func (r *MemoryRecord) Clone() *MemoryRecord {
	cp := *r
	cp.Subjects = append([]string(nil), r.Subjects...)
	cp.Keywords = append([]string(nil), r.Keywords...)
	cp.Tags = append([]string(nil), r.Tags...)
	cp.Categories = append([]string(nil), r.Categories...)
	cp.RelatedIDs = append([]string(nil), r.RelatedIDs...)
	cp.Embedding = append([]float64(nil), r.Embedding...)
	return &cp
}

// NormalizeSubjects lower-cases and trims the record subjects, dropping
// empties, and falls back to DefaultSubject when nothing survives.
func (r *MemoryRecord) NormalizeSubjects() {
	normalized := NormalizeTokens(r.Subjects)
	if len(normalized) == 0 {
		normalized = []string{DefaultSubject}
	}
	r.Subjects = normalized
}
