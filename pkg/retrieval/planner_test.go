package retrieval_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramlabs/engram-go/pkg/llm"
	"github.com/engramlabs/engram-go/pkg/record"
	"github.com/engramlabs/engram-go/pkg/retrieval"
)

type stubLLM struct {
	response string
	err      error
}

func (s *stubLLM) Generate(_ context.Context, _ string, _ ...llm.GenerateOption) (string, error) {
	return s.response, s.err
}

func (s *stubLLM) GenerateWithMessages(_ context.Context, _ []llm.Message, _ ...llm.GenerateOption) (string, error) {
	return s.response, s.err
}

func (s *stubLLM) Close() error { return nil }

func TestPlannerParsesPlan(t *testing.T) {
	p := retrieval.NewLLMPlanner(&stubLLM{response: `{
		"semantic_query": "alice coffee preference",
		"target_types": ["preference", "opinion"],
		"subject_filters": ["Alice"],
		"required_keywords": ["coffee"],
		"recency_preference": "recent",
		"limit": 5
	}`})

	plan, err := p.Plan(context.Background(), "what does alice like to drink?", record.SessionContext{})
	require.NoError(t, err)

	assert.Equal(t, "alice coffee preference", plan.SemanticQuery)
	assert.Equal(t, []record.MemoryType{record.TypePreference, record.TypeOpinion}, plan.TargetTypes)
	assert.Equal(t, []string{"alice"}, plan.SubjectFilters)
	assert.Equal(t, []string{"coffee"}, plan.RequiredKeywords)
	assert.Equal(t, record.RecencyRecent, plan.Recency)
	assert.Equal(t, 5, plan.Limit)
}

func TestPlannerDropsUnknownTypes(t *testing.T) {
	p := retrieval.NewLLMPlanner(&stubLLM{response: `{
		"semantic_query": "q",
		"target_types": ["preference", "hobby", "location"]
	}`})

	plan, err := p.Plan(context.Background(), "q", record.SessionContext{})
	require.NoError(t, err)
	assert.Equal(t, []record.MemoryType{record.TypePreference}, plan.TargetTypes)
}

func TestPlannerFallsBackToRawQuery(t *testing.T) {
	p := retrieval.NewLLMPlanner(&stubLLM{response: `{"semantic_query": "  "}`})

	plan, err := p.Plan(context.Background(), "original query", record.SessionContext{})
	require.NoError(t, err)
	assert.Equal(t, "original query", plan.SemanticQuery)
	assert.Equal(t, record.RecencyAny, plan.Recency)
}

func TestPlannerErrors(t *testing.T) {
	p := retrieval.NewLLMPlanner(&stubLLM{err: errors.New("timeout")})
	_, err := p.Plan(context.Background(), "q", record.SessionContext{})
	assert.Error(t, err)

	p = retrieval.NewLLMPlanner(&stubLLM{response: "no json here"})
	_, err = p.Plan(context.Background(), "q", record.SessionContext{})
	assert.Error(t, err)
}
