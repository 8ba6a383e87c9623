package extraction_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramlabs/engram-go/pkg/extraction"
	"github.com/engramlabs/engram-go/pkg/llm"
	"github.com/engramlabs/engram-go/pkg/record"
)

// stubLLM returns a canned response for every call.
type stubLLM struct {
	response string
	err      error
	calls    int
}

func (s *stubLLM) Generate(_ context.Context, _ string, _ ...llm.GenerateOption) (string, error) {
	s.calls++
	return s.response, s.err
}

func (s *stubLLM) GenerateWithMessages(_ context.Context, _ []llm.Message, _ ...llm.GenerateOption) (string, error) {
	s.calls++
	return s.response, s.err
}

func (s *stubLLM) Close() error { return nil }

func TestExtractCandidates(t *testing.T) {
	provider := &stubLLM{response: "```json\n" + `{
		"memories": [
			{
				"subjects": ["Alice"],
				"predicate": "likes",
				"object": "coffee",
				"text": "Alice likes coffee",
				"type": "preference",
				"importance": "normal",
				"confidence": "high",
				"keywords": ["Coffee", "coffee", "drinks"]
			}
		]
	}` + "\n```"}

	e := extraction.NewExtractor(provider)
	candidates, err := e.Extract(context.Background(), "alice said she likes coffee")
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	c := candidates[0]
	assert.Equal(t, []string{"Alice"}, c.Subjects)
	assert.Equal(t, "likes", c.Predicate)
	assert.Equal(t, "coffee", c.Object)
	assert.Equal(t, "Alice likes coffee", c.DisplayText)
	assert.Equal(t, record.TypePreference, c.Type)
	assert.Equal(t, record.ImportanceNormal, c.Importance)
	assert.Equal(t, record.ConfidenceHigh, c.Confidence)
	assert.Equal(t, []string{"coffee", "drinks"}, c.Keywords)
}

func TestExtractToleratesMissingFields(t *testing.T) {
	provider := &stubLLM{response: `{"memories": [{"text": "Bob moved to Berlin"}]}`}

	e := extraction.NewExtractor(provider)
	candidates, err := e.Extract(context.Background(), "bob moved")
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	c := candidates[0]
	assert.Empty(t, c.Subjects)
	assert.Equal(t, record.TypeContextual, c.Type)
	assert.Equal(t, record.ImportanceNormal, c.Importance)
	assert.Equal(t, record.ConfidenceMedium, c.Confidence)
}

func TestExtractRejectsPlaceholderSubjects(t *testing.T) {
	provider := &stubLLM{response: `{"memories": [
		{"subjects": ["someone"], "text": "someone likes coffee"},
		{"subjects": ["they", "it"], "text": "they did it"},
		{"subjects": ["Alice", "someone"], "text": "Alice met someone"}
	]}`}

	e := extraction.NewExtractor(provider)
	candidates, err := e.Extract(context.Background(), "chatter")
	require.NoError(t, err)

	// Entries whose subjects are all placeholders drop; a mixed entry keeps
	// only its concrete subjects.
	require.Len(t, candidates, 1)
	assert.Equal(t, []string{"Alice"}, candidates[0].Subjects)
}

func TestExtractDropsEmptyEntries(t *testing.T) {
	provider := &stubLLM{response: `{"memories": [
		{"predicate": "likes"},
		{"subjects": ["bob"], "predicate": "visited", "object": "Tokyo"}
	]}`}

	e := extraction.NewExtractor(provider)
	candidates, err := e.Extract(context.Background(), "text")
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	// A missing text field is synthesized from the triple.
	assert.Equal(t, "bob visited Tokyo", candidates[0].DisplayText)
}

func TestExtractBareArrayPayload(t *testing.T) {
	provider := &stubLLM{response: `[{"subjects": ["alice"], "text": "Alice plays chess"}]`}

	e := extraction.NewExtractor(provider)
	candidates, err := e.Extract(context.Background(), "text")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
}

func TestExtractEmptyResult(t *testing.T) {
	provider := &stubLLM{response: `{"memories": []}`}

	e := extraction.NewExtractor(provider)
	candidates, err := e.Extract(context.Background(), "hi")
	require.NoError(t, err)
	assert.Empty(t, candidates)

	// Blank input short-circuits without an LLM call.
	candidates, err = e.Extract(context.Background(), "   ")
	require.NoError(t, err)
	assert.Empty(t, candidates)
	assert.Equal(t, 1, provider.calls)
}

func TestExtractProviderError(t *testing.T) {
	provider := &stubLLM{err: errors.New("rate limited")}

	e := extraction.NewExtractor(provider)
	_, err := e.Extract(context.Background(), "text")
	assert.Error(t, err)
}

func TestExtractMalformedResponse(t *testing.T) {
	provider := &stubLLM{response: "I could not find anything."}

	e := extraction.NewExtractor(provider)
	_, err := e.Extract(context.Background(), "text")
	assert.ErrorIs(t, err, extraction.ErrNoStructuredPayload)
}
