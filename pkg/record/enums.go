package record

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MemoryType classifies what kind of fact a record holds.
type MemoryType string

const (
	TypePersonalFact MemoryType = "personal_fact"
	TypeEvent        MemoryType = "event"
	TypePreference   MemoryType = "preference"
	TypeOpinion      MemoryType = "opinion"
	TypeRelationship MemoryType = "relationship"
	TypeEmotion      MemoryType = "emotion"
	TypeKnowledge    MemoryType = "knowledge"
	TypeSkill        MemoryType = "skill"
	TypeGoal         MemoryType = "goal"
	TypeExperience   MemoryType = "experience"
	TypeContextual   MemoryType = "contextual"
)

// memoryTypes is the closed set of valid values.
var memoryTypes = map[MemoryType]bool{
	TypePersonalFact: true,
	TypeEvent:        true,
	TypePreference:   true,
	TypeOpinion:      true,
	TypeRelationship: true,
	TypeEmotion:      true,
	TypeKnowledge:    true,
	TypeSkill:        true,
	TypeGoal:         true,
	TypeExperience:   true,
	TypeContextual:   true,
}

// Valid reports whether t is a known memory type.
func (t MemoryType) Valid() bool { return memoryTypes[t] }

// Wire returns the persisted form of the memory type.
func (t MemoryType) Wire() string { return string(t) }

// ParseMemoryType converts a wire string back into a MemoryType.
// Unknown values map to TypeContextual so that snapshots written by newer
// versions stay loadable.
func ParseMemoryType(s string) MemoryType {
	t := MemoryType(strings.ToLower(strings.TrimSpace(s)))
	if t.Valid() {
		return t
	}
	return TypeContextual
}

// Confidence is a bounded ordinal (1..4) expressing extraction certainty.
type Confidence int

const (
	ConfidenceLow Confidence = iota + 1
	ConfidenceMedium
	ConfidenceHigh
	ConfidenceVerified
)

var confidenceWire = map[Confidence]string{
	ConfidenceLow:      "low",
	ConfidenceMedium:   "medium",
	ConfidenceHigh:     "high",
	ConfidenceVerified: "verified",
}

var confidenceFromWire = map[string]Confidence{
	"low":      ConfidenceLow,
	"medium":   ConfidenceMedium,
	"high":     ConfidenceHigh,
	"verified": ConfidenceVerified,
}

// Clamp bounds the ordinal to the valid [ConfidenceLow, ConfidenceVerified] range.
func (c Confidence) Clamp() Confidence {
	if c < ConfidenceLow {
		return ConfidenceLow
	}
	if c > ConfidenceVerified {
		return ConfidenceVerified
	}
	return c
}

// Wire returns the persisted string form of the confidence ordinal.
func (c Confidence) Wire() string {
	if s, ok := confidenceWire[c]; ok {
		return s
	}
	return confidenceWire[c.Clamp()]
}

// String implements fmt.Stringer.
func (c Confidence) String() string { return c.Wire() }

// ParseConfidence converts a wire string back into a Confidence.
func ParseConfidence(s string) (Confidence, error) {
	if c, ok := confidenceFromWire[strings.ToLower(strings.TrimSpace(s))]; ok {
		return c, nil
	}
	return 0, fmt.Errorf("record: unknown confidence %q", s)
}

// MarshalJSON serializes the explicit wire form, never the raw ordinal.
func (c Confidence) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Wire())
}

// UnmarshalJSON accepts the wire string form and, for snapshots written by
// older versions, the bare ordinal.
func (c *Confidence) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, perr := ParseConfidence(s)
		if perr != nil {
			return perr
		}
		*c = parsed
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("record: invalid confidence %s", string(data))
	}
	*c = Confidence(n).Clamp()
	return nil
}

// Importance is a bounded ordinal (1..4) weighting a record's eviction
// resistance. ImportanceCritical is permanently exempt from eviction.
type Importance int

const (
	ImportanceLow Importance = iota + 1
	ImportanceNormal
	ImportanceHigh
	ImportanceCritical
)

var importanceWire = map[Importance]string{
	ImportanceLow:      "low",
	ImportanceNormal:   "normal",
	ImportanceHigh:     "high",
	ImportanceCritical: "critical",
}

var importanceFromWire = map[string]Importance{
	"low":      ImportanceLow,
	"normal":   ImportanceNormal,
	"high":     ImportanceHigh,
	"critical": ImportanceCritical,
}

// Clamp bounds the ordinal to the valid [ImportanceLow, ImportanceCritical] range.
func (i Importance) Clamp() Importance {
	if i < ImportanceLow {
		return ImportanceLow
	}
	if i > ImportanceCritical {
		return ImportanceCritical
	}
	return i
}

// Wire returns the persisted string form of the importance ordinal.
func (i Importance) Wire() string {
	if s, ok := importanceWire[i]; ok {
		return s
	}
	return importanceWire[i.Clamp()]
}

// String implements fmt.Stringer.
func (i Importance) String() string { return i.Wire() }

// ParseImportance converts a wire string back into an Importance.
func ParseImportance(s string) (Importance, error) {
	if i, ok := importanceFromWire[strings.ToLower(strings.TrimSpace(s))]; ok {
		return i, nil
	}
	return 0, fmt.Errorf("record: unknown importance %q", s)
}

// MarshalJSON serializes the explicit wire form, never the raw ordinal.
func (i Importance) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.Wire())
}

// UnmarshalJSON accepts the wire string form and, for snapshots written by
// older versions, the bare ordinal.
func (i *Importance) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, perr := ParseImportance(s)
		if perr != nil {
			return perr
		}
		*i = parsed
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("record: invalid importance %s", string(data))
	}
	*i = Importance(n).Clamp()
	return nil
}

// RecencyPreference biases retrieval toward a time range.
type RecencyPreference string

const (
	RecencyAny        RecencyPreference = "any"
	RecencyRecent     RecencyPreference = "recent"
	RecencyHistorical RecencyPreference = "historical"
)

// ParseRecency converts a wire string into a RecencyPreference, defaulting
// to RecencyAny for unknown values.
func ParseRecency(s string) RecencyPreference {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "recent":
		return RecencyRecent
	case "historical":
		return RecencyHistorical
	default:
		return RecencyAny
	}
}
