package forgetting_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/engramlabs/engram-go/pkg/forgetting"
	"github.com/engramlabs/engram-go/pkg/record"
)

func agedRecord(id string, daysAgo int, imp record.Importance, conf record.Confidence) *record.MemoryRecord {
	return &record.MemoryRecord{
		ID:         id,
		Importance: imp,
		Confidence: conf,
		CreatedAt:  time.Now().AddDate(0, 0, -daysAgo),
	}
}

func TestThresholdDays(t *testing.T) {
	e := forgetting.NewEngine(0, 0)

	// 30 base + 0 + 0 + 0
	low := agedRecord("a", 0, record.ImportanceLow, record.ConfidenceLow)
	assert.Equal(t, 30.0, e.ThresholdDays(low))

	// 30 + 30 + 20 + 0
	high := agedRecord("b", 0, record.ImportanceHigh, record.ConfidenceHigh)
	assert.Equal(t, 80.0, e.ThresholdDays(high))

	// 30 + 45 + 30 + 20*0.5 (frequency capped at 20)
	crit := agedRecord("c", 0, record.ImportanceCritical, record.ConfidenceVerified)
	crit.ActivationFrequency = 500
	assert.Equal(t, 115.0, e.ThresholdDays(crit))
}

func TestThresholdMonotoneInOrdinals(t *testing.T) {
	e := forgetting.NewEngine(0, 0)

	prev := 0.0
	for imp := record.ImportanceLow; imp <= record.ImportanceCritical; imp++ {
		days := e.ThresholdDays(agedRecord("x", 0, imp, record.ConfidenceMedium))
		assert.Greater(t, days, prev)
		prev = days
	}

	prev = 0.0
	for conf := record.ConfidenceLow; conf <= record.ConfidenceVerified; conf++ {
		days := e.ThresholdDays(agedRecord("x", 0, record.ImportanceNormal, conf))
		assert.Greater(t, days, prev)
		prev = days
	}
}

func TestThresholdClamped(t *testing.T) {
	e := forgetting.NewEngine(0, 0)

	// The formula's maximum (30+45+30+10) stays inside [7, 365], so feed
	// out-of-range ordinals and verify the clamp still bounds the result.
	rec := agedRecord("x", 0, record.Importance(99), record.Confidence(99))
	rec.ActivationFrequency = 1000
	days := e.ThresholdDays(rec)
	assert.GreaterOrEqual(t, days, 7.0)
	assert.LessOrEqual(t, days, 365.0)
}

func TestCheckBatchNormalEviction(t *testing.T) {
	e := forgetting.NewEngine(0, 0)

	// LOW/LOW threshold is 30 days; 200 days inactive exceeds both the
	// threshold and the force window, and 200 > 180 makes it forced.
	stale := agedRecord("stale", 200, record.ImportanceLow, record.ConfidenceLow)

	// 40 days inactive: past its 30-day threshold but not dormant.
	tired := agedRecord("tired", 40, record.ImportanceLow, record.ConfidenceLow)

	fresh := agedRecord("fresh", 3, record.ImportanceLow, record.ConfidenceLow)

	normal, force, stats := e.CheckBatch([]*record.MemoryRecord{stale, tired, fresh})
	assert.Equal(t, []string{"tired"}, normal)
	assert.Equal(t, []string{"stale"}, force)
	assert.Equal(t, 3, stats.Checked)
	assert.Equal(t, 1, stats.Dormant)
	assert.Equal(t, 1, stats.NormalEvict)
	assert.Equal(t, 1, stats.ForceEvict)
	assert.Equal(t, 1, stats.WithinBudget)
}

func TestCheckBatchCriticalExempt(t *testing.T) {
	e := forgetting.NewEngine(0, 0)

	ancient := agedRecord("ancient", 400, record.ImportanceCritical, record.ConfidenceLow)
	normal, force, stats := e.CheckBatch([]*record.MemoryRecord{ancient})

	assert.Empty(t, normal)
	assert.Empty(t, force)
	assert.Equal(t, 1, stats.Exempt)
}

func TestCheckBatchHonorsLastAccess(t *testing.T) {
	e := forgetting.NewEngine(0, 0)

	// Created long ago but accessed yesterday: recent activity wins.
	rec := agedRecord("old-but-warm", 300, record.ImportanceLow, record.ConfidenceLow)
	rec.LastAccessed = time.Now().AddDate(0, 0, -1)

	normal, force, stats := e.CheckBatch([]*record.MemoryRecord{rec})
	assert.Empty(t, normal)
	assert.Empty(t, force)
	assert.Equal(t, 1, stats.WithinBudget)
}

func TestCheckBatchWritesAdvisoryThreshold(t *testing.T) {
	e := forgetting.NewEngine(0, 0)

	rec := agedRecord("x", 10, record.ImportanceHigh, record.ConfidenceHigh)
	e.CheckBatch([]*record.MemoryRecord{rec})
	assert.Equal(t, 80.0, rec.ForgettingThresholdDays)
}

func TestDormantWindowConfigurable(t *testing.T) {
	e := forgetting.NewEngine(10, 20)

	rec := agedRecord("x", 15, record.ImportanceLow, record.ConfidenceLow)
	assert.True(t, e.Dormant(rec))

	// Dormant but inside both the 30-day threshold and the 20-day force
	// window? 15 days is inside the threshold but dormant; only when
	// inactivity passes the force window does eviction trigger.
	normal, force, _ := e.CheckBatch([]*record.MemoryRecord{rec})
	assert.Empty(t, normal)
	assert.Empty(t, force)

	older := agedRecord("y", 25, record.ImportanceLow, record.ConfidenceLow)
	_, force, _ = e.CheckBatch([]*record.MemoryRecord{older})
	assert.Equal(t, []string{"y"}, force)
}
