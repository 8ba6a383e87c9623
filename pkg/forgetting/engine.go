// Package forgetting decides which memory records are stale enough to evict.
// The engine only decides; the store facade performs the actual deletion.
package forgetting

import (
	"time"

	"github.com/engramlabs/engram-go/pkg/record"
)

// Threshold bounds and defaults, in days.
const (
	baseThresholdDays = 30
	minThresholdDays  = 7
	maxThresholdDays  = 365

	// DefaultDormantAfterDays is how long a record can go unaccessed
	// before it counts as dormant, independent of its threshold.
	DefaultDormantAfterDays = 90

	// DefaultForceEvictAfterDays is how long a dormant record can go
	// unaccessed before it is force-evicted even inside its nominal
	// threshold.
	DefaultForceEvictAfterDays = 180

	// activationFrequencyCap bounds the frequency contribution.
	activationFrequencyCap = 20
)

// importanceBonus extends the threshold per importance ordinal.
var importanceBonus = map[record.Importance]float64{
	record.ImportanceLow:      0,
	record.ImportanceNormal:   15,
	record.ImportanceHigh:     30,
	record.ImportanceCritical: 45,
}

// confidenceBonus extends the threshold per confidence ordinal.
var confidenceBonus = map[record.Confidence]float64{
	record.ConfidenceLow:      0,
	record.ConfidenceMedium:   10,
	record.ConfidenceHigh:     20,
	record.ConfidenceVerified: 30,
}

// Stats summarizes one CheckBatch pass.
type Stats struct {
	Checked      int `json:"checked"`
	Dormant      int `json:"dormant"`
	NormalEvict  int `json:"normal_evict"`
	ForceEvict   int `json:"force_evict"`
	Exempt       int `json:"exempt"`
	WithinBudget int `json:"within_budget"`
}

// Engine computes per-record dynamic forgetting thresholds and batch
// eviction decisions.
type Engine struct {
	dormantAfter    time.Duration
	forceEvictAfter time.Duration
	now             func() time.Time
}

// NewEngine creates a forgetting engine. Non-positive day arguments select
// the defaults.
func NewEngine(dormantAfterDays, forceEvictAfterDays float64) *Engine {
	if dormantAfterDays <= 0 {
		dormantAfterDays = DefaultDormantAfterDays
	}
	if forceEvictAfterDays <= 0 {
		forceEvictAfterDays = DefaultForceEvictAfterDays
	}
	return &Engine{
		dormantAfter:    daysToDuration(dormantAfterDays),
		forceEvictAfter: daysToDuration(forceEvictAfterDays),
		now:             time.Now,
	}
}

// ThresholdDays recomputes the record's dynamic forgetting threshold from
// its current importance, confidence and activation frequency. The result
// is clamped to [7, 365] days and is monotonically non-decreasing in both
// ordinals.
func (e *Engine) ThresholdDays(rec *record.MemoryRecord) float64 {
	freq := rec.ActivationFrequency
	if freq > activationFrequencyCap {
		freq = activationFrequencyCap
	}
	days := baseThresholdDays +
		importanceBonus[rec.Importance.Clamp()] +
		confidenceBonus[rec.Confidence.Clamp()] +
		float64(freq)*0.5
	if days < minThresholdDays {
		days = minThresholdDays
	}
	if days > maxThresholdDays {
		days = maxThresholdDays
	}
	return days
}

// Dormant reports whether the record has gone unaccessed for longer than the
// dormancy window, independent of its threshold.
func (e *Engine) Dormant(rec *record.MemoryRecord) bool {
	return e.now().Sub(lastActivity(rec)) > e.dormantAfter
}

// CheckBatch classifies records into normal and forced eviction candidates.
//
// A record is normally evicted when its inactivity exceeds its dynamic
// threshold. A dormant record whose inactivity also exceeds the force-evict
// window is force-evicted even inside its nominal threshold. Records with
// ImportanceCritical are permanently exempt from both lists.
func (e *Engine) CheckBatch(records []*record.MemoryRecord) (normal, force []string, stats Stats) {
	now := e.now()
	for _, rec := range records {
		stats.Checked++

		if rec.Importance.Clamp() == record.ImportanceCritical {
			stats.Exempt++
			continue
		}

		inactive := now.Sub(lastActivity(rec))
		dormant := inactive > e.dormantAfter
		if dormant {
			stats.Dormant++
		}

		threshold := e.ThresholdDays(rec)
		rec.ForgettingThresholdDays = threshold

		switch {
		case dormant && inactive > e.forceEvictAfter:
			force = append(force, rec.ID)
			stats.ForceEvict++
		case inactive > daysToDuration(threshold):
			normal = append(normal, rec.ID)
			stats.NormalEvict++
		default:
			stats.WithinBudget++
		}
	}
	return normal, force, stats
}

// lastActivity picks the most recent of the record's activity timestamps,
// falling back to creation time for never-accessed records.
func lastActivity(rec *record.MemoryRecord) time.Time {
	t := rec.CreatedAt
	if rec.LastAccessed.After(t) {
		t = rec.LastAccessed
	}
	if rec.LastActivation.After(t) {
		t = rec.LastActivation
	}
	return t
}

func daysToDuration(days float64) time.Duration {
	return time.Duration(days * 24 * float64(time.Hour))
}
