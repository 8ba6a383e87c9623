package record_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramlabs/engram-go/pkg/record"
)

func TestMemoryTypeParse(t *testing.T) {
	assert.Equal(t, record.TypePreference, record.ParseMemoryType("preference"))
	assert.Equal(t, record.TypePreference, record.ParseMemoryType("  Preference "))

	// Unknown types degrade to contextual instead of failing.
	assert.Equal(t, record.TypeContextual, record.ParseMemoryType("quantum_fact"))
	assert.Equal(t, record.TypeContextual, record.ParseMemoryType(""))
}

func TestConfidenceWireRoundTrip(t *testing.T) {
	for _, c := range []record.Confidence{
		record.ConfidenceLow,
		record.ConfidenceMedium,
		record.ConfidenceHigh,
		record.ConfidenceVerified,
	} {
		parsed, err := record.ParseConfidence(c.Wire())
		require.NoError(t, err)
		assert.Equal(t, c, parsed)
	}

	_, err := record.ParseConfidence("certain")
	assert.Error(t, err)
}

func TestImportanceWireRoundTrip(t *testing.T) {
	for _, i := range []record.Importance{
		record.ImportanceLow,
		record.ImportanceNormal,
		record.ImportanceHigh,
		record.ImportanceCritical,
	} {
		parsed, err := record.ParseImportance(i.Wire())
		require.NoError(t, err)
		assert.Equal(t, i, parsed)
	}
}

func TestOrdinalClamp(t *testing.T) {
	assert.Equal(t, record.ConfidenceLow, record.Confidence(0).Clamp())
	assert.Equal(t, record.ConfidenceLow, record.Confidence(-3).Clamp())
	assert.Equal(t, record.ConfidenceVerified, record.Confidence(9).Clamp())
	assert.Equal(t, record.ImportanceCritical, record.Importance(100).Clamp())
}

func TestOrdinalJSONIsWireString(t *testing.T) {
	data, err := json.Marshal(record.ImportanceHigh)
	require.NoError(t, err)
	assert.Equal(t, `"high"`, string(data))

	var imp record.Importance
	require.NoError(t, json.Unmarshal([]byte(`"critical"`), &imp))
	assert.Equal(t, record.ImportanceCritical, imp)

	// Legacy snapshots stored bare ordinals.
	require.NoError(t, json.Unmarshal([]byte(`2`), &imp))
	assert.Equal(t, record.ImportanceNormal, imp)

	var conf record.Confidence
	require.NoError(t, json.Unmarshal([]byte(`"verified"`), &conf))
	assert.Equal(t, record.ConfidenceVerified, conf)

	assert.Error(t, json.Unmarshal([]byte(`"certain"`), &conf))
}

func TestParseRecency(t *testing.T) {
	assert.Equal(t, record.RecencyRecent, record.ParseRecency("recent"))
	assert.Equal(t, record.RecencyHistorical, record.ParseRecency("historical"))
	assert.Equal(t, record.RecencyAny, record.ParseRecency("whenever"))
}

func TestTouchRollingWindow(t *testing.T) {
	rec := &record.MemoryRecord{}
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	rec.Touch(base)
	assert.Equal(t, 1, rec.AccessCount)
	assert.Equal(t, 1, rec.ActivationFrequency)

	rec.Touch(base.Add(2 * time.Hour))
	assert.Equal(t, 2, rec.ActivationFrequency)

	// An activation past the 24h window restarts the frequency counter but
	// never the monotone counters.
	rec.Touch(base.Add(48 * time.Hour))
	assert.Equal(t, 1, rec.ActivationFrequency)
	assert.Equal(t, 3, rec.AccessCount)
	assert.Equal(t, 3, rec.TotalActivations)
}

func TestNormalizeSubjectsFallback(t *testing.T) {
	rec := &record.MemoryRecord{Subjects: []string{"  Alice ", "BOB"}}
	rec.NormalizeSubjects()
	assert.Equal(t, []string{"alice", "bob"}, rec.Subjects)

	empty := &record.MemoryRecord{Subjects: []string{" ", ""}}
	empty.NormalizeSubjects()
	assert.Equal(t, []string{record.DefaultSubject}, empty.Subjects)
}

func TestTokenize(t *testing.T) {
	tokens := record.Tokenize("Alice's coffee, at 9AM!")
	assert.Equal(t, []string{"alice's", "coffee", "at", "9am"}, tokens)
	assert.Empty(t, record.Tokenize("   "))
}

func TestCloneIsDeep(t *testing.T) {
	rec := &record.MemoryRecord{
		ID:        "1",
		Subjects:  []string{"alice"},
		Keywords:  []string{"coffee"},
		Embedding: []float64{0.1, 0.2},
	}
	cp := rec.Clone()
	cp.Subjects[0] = "bob"
	cp.Embedding[0] = 9

	assert.Equal(t, "alice", rec.Subjects[0])
	assert.Equal(t, 0.1, rec.Embedding[0])
}
