package record

import (
	"strings"
	"time"
)

// SessionContext carries the conversational situation of a build or retrieve
// call as a typed struct instead of an ad-hoc map.
type SessionContext struct {
	// ScopeID names the logical memory pool of the caller. Whether it is
	// honored or collapsed into one shared pool is a store configuration
	// decision.
	ScopeID string

	// Timestamp is the moment of the call. The zero value means "now".
	Timestamp time.Time

	// Keywords are salient terms of the surrounding conversation.
	Keywords []string

	// Participants are the conversation participants, used for subject
	// normalization fallbacks and contextual scoring.
	Participants []string

	// Plan is an optional pre-computed query plan. When set, the retrieval
	// orchestrator skips its own planning stage.
	Plan *QueryPlan
}

// At returns the context timestamp, substituting now for the zero value.
func (c SessionContext) At(now time.Time) time.Time {
	if c.Timestamp.IsZero() {
		return now
	}
	return c.Timestamp
}

// QueryPlan is a structured interpretation of a free-text retrieval query,
// usually produced by an LLM planner. A failed planner yields a nil plan and
// the pipeline falls back to the raw query text with no filters.
type QueryPlan struct {
	// SemanticQuery is the planner-refined query used for embedding.
	SemanticQuery string `json:"semantic_query"`

	// TargetTypes restricts the coarse filter to specific memory types.
	TargetTypes []MemoryType `json:"target_types,omitempty"`

	// SubjectFilters restricts the coarse filter to specific subjects.
	SubjectFilters []string `json:"subject_filters,omitempty"`

	// RequiredKeywords must all match in the coarse filter.
	RequiredKeywords []string `json:"required_keywords,omitempty"`

	// OptionalKeywords bias scoring but do not filter.
	OptionalKeywords []string `json:"optional_keywords,omitempty"`

	// Recency biases ranking toward recent or historical records.
	Recency RecencyPreference `json:"recency_preference,omitempty"`

	// Limit overrides the caller's result limit when positive.
	Limit int `json:"limit,omitempty"`
}

// NormalizeTokens lower-cases and trims a token list, dropping empties and
// duplicates while preserving order.
func NormalizeTokens(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// Tokenize splits free text into normalized word tokens.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '\'')
	})
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "'")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
