// Package extraction turns raw conversation text into structured memory
// candidates using an LLM, with a tolerant parser for the model's JSON
// output.
package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/engramlabs/engram-go/pkg/llm"
	"github.com/engramlabs/engram-go/pkg/record"
)

// Candidate is a structured memory proposal produced by the extractor.
// Missing fields are tolerated and defaulted downstream.
type Candidate struct {
	Subjects    []string
	Predicate   string
	Object      string
	DisplayText string
	Type        record.MemoryType
	Importance  record.Importance
	Confidence  record.Confidence
	Keywords    []string
}

// Extractor extracts subject-predicate-object memory candidates from
// conversation text using an LLM.
//
// Example usage:
//
//	extractor := NewExtractor(llmProvider)
//	candidates, err := extractor.Extract(ctx, "I met Alice for coffee yesterday")
type Extractor struct {
	// llm is the LLM provider for candidate extraction.
	llm llm.Provider

	// customPrompt overrides the default extraction prompt when non-empty.
	customPrompt string
}

// NewExtractor creates a new extractor with the default prompt.
func NewExtractor(provider llm.Provider) *Extractor {
	return &Extractor{llm: provider}
}

// NewExtractorWithPrompt creates a new extractor with a custom prompt.
func NewExtractorWithPrompt(provider llm.Provider, customPrompt string) *Extractor {
	return &Extractor{llm: provider, customPrompt: customPrompt}
}

// Extract extracts memory candidates from text.
//
// The extraction process:
//  1. Calls the LLM with the extraction prompt
//  2. Locates the JSON payload in the response
//  3. Decodes candidates, dropping entries with no usable content or with
//     placeholder subjects ("someone", "it", "they", ...)
//
// Parameters:
//   - ctx: Context for cancellation
//   - text: Conversation text to extract from
//
// Returns the extracted candidates, or an error if the LLM call or response
// parsing fails. An empty candidate list is a valid result.
func (e *Extractor) Extract(ctx context.Context, text string) ([]Candidate, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	messages := []llm.Message{
		{Role: "system", Content: e.systemPrompt()},
		{Role: "user", Content: fmt.Sprintf("Input:\n%s", text)},
	}

	response, err := e.llm.GenerateWithMessages(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("failed to extract candidates: %w", err)
	}

	candidates, err := ParseCandidates(response)
	if err != nil {
		return nil, fmt.Errorf("failed to parse extraction response: %w", err)
	}

	return candidates, nil
}

// systemPrompt returns the system prompt for candidate extraction.
func (e *Extractor) systemPrompt() string {
	if e.customPrompt != "" {
		return e.customPrompt
	}

	today := time.Now().Format("2006-01-02")
	return fmt.Sprintf(`You are a memory curator. Extract durable facts, preferences, events, relationships, goals, and skills from conversations as structured triples.

For each memory produce:
- subjects: the people or entities the memory is about (["user"] for the speaker)
- predicate: a short verb phrase ("prefers", "works at", "met")
- object: what the predicate applies to
- text: a self-contained one-sentence statement of the memory
- type: one of personal_fact, event, preference, opinion, relationship, emotion, knowledge, skill, goal, experience, contextual
- importance: low, normal, high, or critical
- confidence: low, medium, high, or verified
- keywords: 2-6 lowercase topic words

Rules:
- Today: %s
- Return JSON: {"memories": [{...}, {...}]}
- ALWAYS include time references in text ("met Alice yesterday", not "met Alice")
- Extract distinct memories separately
- Use concrete subjects; never "someone", "it", "they"
- If nothing is worth remembering, return {"memories": []}
- Preserve input language

Extract memories from the conversation below:`, today)
}

// wireCandidate mirrors the JSON shape the prompt asks the model for.
type wireCandidate struct {
	Subjects   []string `json:"subjects"`
	Predicate  string   `json:"predicate"`
	Object     string   `json:"object"`
	Text       string   `json:"text"`
	Type       string   `json:"type"`
	Importance string   `json:"importance"`
	Confidence string   `json:"confidence"`
	Keywords   []string `json:"keywords"`
}

// ParseCandidates decodes memory candidates from a raw model response.
//
// The payload may be {"memories": [...]} or a bare array. Entries missing
// both text and a predicate/object pair are dropped; placeholder subjects
// are removed, and an entry whose subjects are all placeholders is dropped.
func ParseCandidates(response string) ([]Candidate, error) {
	raw, err := ParseStructuredResponse(response)
	if err != nil {
		return nil, err
	}

	var wires []wireCandidate
	var envelope struct {
		Memories []wireCandidate `json:"memories"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Memories != nil {
		wires = envelope.Memories
	} else if err := json.Unmarshal(raw, &wires); err != nil {
		return nil, fmt.Errorf("unexpected payload shape: %w", err)
	}

	candidates := make([]Candidate, 0, len(wires))
	for _, w := range wires {
		c, ok := normalize(w)
		if !ok {
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// placeholderSubjects are pronouns and fillers that carry no identity.
var placeholderSubjects = map[string]struct{}{
	"someone": {}, "somebody": {}, "anyone": {}, "it": {}, "they": {},
	"them": {}, "he": {}, "she": {}, "this": {}, "that": {}, "unknown": {},
}

func normalize(w wireCandidate) (Candidate, bool) {
	text := strings.TrimSpace(w.Text)
	predicate := strings.TrimSpace(w.Predicate)
	object := strings.TrimSpace(w.Object)

	if text == "" && (predicate == "" || object == "") {
		return Candidate{}, false
	}
	if text == "" {
		text = strings.TrimSpace(strings.Join(append(append([]string{}, w.Subjects...), predicate, object), " "))
	}

	var subjects []string
	for _, s := range w.Subjects {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, bad := placeholderSubjects[strings.ToLower(s)]; bad {
			continue
		}
		subjects = append(subjects, s)
	}
	if len(w.Subjects) > 0 && len(subjects) == 0 {
		// Every stated subject was a placeholder; the memory is unanchored.
		return Candidate{}, false
	}

	importance, err := record.ParseImportance(w.Importance)
	if err != nil {
		importance = record.ImportanceNormal
	}
	confidence, err := record.ParseConfidence(w.Confidence)
	if err != nil {
		confidence = record.ConfidenceMedium
	}

	return Candidate{
		Subjects:    subjects,
		Predicate:   predicate,
		Object:      object,
		DisplayText: text,
		Type:        record.ParseMemoryType(w.Type),
		Importance:  importance,
		Confidence:  confidence,
		Keywords:    record.NormalizeTokens(w.Keywords),
	}, true
}
