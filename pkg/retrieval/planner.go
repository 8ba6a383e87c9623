// Package retrieval implements the multi-stage retrieval pipeline: query
// planning, metadata coarse filtering, vector search, semantic rerank,
// contextual scoring, and intent-aware final rerank. Every stage degrades
// gracefully instead of failing the whole query.
package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/engramlabs/engram-go/pkg/extraction"
	"github.com/engramlabs/engram-go/pkg/llm"
	"github.com/engramlabs/engram-go/pkg/record"
)

// Planner refines a free-text query into a structured plan. Returning a nil
// plan (or an error) makes the pipeline fall back to the raw query text with
// no filters.
type Planner interface {
	Plan(ctx context.Context, query string, sctx record.SessionContext) (*record.QueryPlan, error)
}

// LLMPlanner asks an LLM to produce a query plan.
type LLMPlanner struct {
	llm llm.Provider
}

// NewLLMPlanner creates a planner backed by the given LLM provider.
func NewLLMPlanner(provider llm.Provider) *LLMPlanner {
	return &LLMPlanner{llm: provider}
}

// wirePlan mirrors the JSON shape the planner prompt asks for.
type wirePlan struct {
	SemanticQuery    string   `json:"semantic_query"`
	TargetTypes      []string `json:"target_types"`
	SubjectFilters   []string `json:"subject_filters"`
	RequiredKeywords []string `json:"required_keywords"`
	OptionalKeywords []string `json:"optional_keywords"`
	Recency          string   `json:"recency_preference"`
	Limit            int      `json:"limit"`
}

// Plan produces a structured query plan for the given query.
//
// Parameters:
//   - ctx: Context for cancellation
//   - query: Raw user query text
//   - sctx: Session context whose keywords and participants hint the planner
//
// Returns the plan, or an error when the LLM call or response parsing fails.
func (p *LLMPlanner) Plan(ctx context.Context, query string, sctx record.SessionContext) (*record.QueryPlan, error) {
	messages := []llm.Message{
		{Role: "system", Content: plannerPrompt},
		{Role: "user", Content: plannerInput(query, sctx)},
	}

	response, err := p.llm.GenerateWithMessages(ctx, messages, llm.WithTemperature(0.0))
	if err != nil {
		return nil, fmt.Errorf("query planning failed: %w", err)
	}

	raw, err := extraction.ParseStructuredResponse(response)
	if err != nil {
		return nil, fmt.Errorf("query planning failed: %w", err)
	}

	var w wirePlan
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("query planning failed: %w", err)
	}

	plan := &record.QueryPlan{
		SemanticQuery:    strings.TrimSpace(w.SemanticQuery),
		SubjectFilters:   record.NormalizeTokens(w.SubjectFilters),
		RequiredKeywords: record.NormalizeTokens(w.RequiredKeywords),
		OptionalKeywords: record.NormalizeTokens(w.OptionalKeywords),
		Recency:          record.ParseRecency(w.Recency),
		Limit:            w.Limit,
	}
	if plan.SemanticQuery == "" {
		plan.SemanticQuery = query
	}
	for _, t := range w.TargetTypes {
		// Unknown types are dropped, not coerced: a hallucinated type must
		// not narrow the filter to contextual records.
		mt := record.MemoryType(strings.ToLower(strings.TrimSpace(t)))
		if mt.Valid() {
			plan.TargetTypes = append(plan.TargetTypes, mt)
		}
	}
	return plan, nil
}

const plannerPrompt = `You are a memory retrieval planner. Given a user query, produce a JSON search plan:
{
  "semantic_query": "rephrased query optimized for similarity search",
  "target_types": ["personal_fact", "event", "preference", "opinion", "relationship", "emotion", "knowledge", "skill", "goal", "experience", "contextual"],
  "subject_filters": ["people or entities the query is about"],
  "required_keywords": ["words results must relate to"],
  "optional_keywords": ["words that should boost results"],
  "recency_preference": "any|recent|historical",
  "limit": 10
}

Rules:
- Only include target_types you are confident about; an empty list means all types.
- subject_filters name WHO the query is about, not the asker.
- Keep required_keywords minimal; over-filtering loses results.
- Return JSON only.`

func plannerInput(query string, sctx record.SessionContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n", query)
	if len(sctx.Keywords) > 0 {
		fmt.Fprintf(&b, "Session keywords: %s\n", strings.Join(sctx.Keywords, ", "))
	}
	if len(sctx.Participants) > 0 {
		fmt.Fprintf(&b, "Participants: %s\n", strings.Join(sctx.Participants, ", "))
	}
	return b.String()
}
