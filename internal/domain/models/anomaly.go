package models

import "time"

// Rule identifiers for baseline-relative anomaly checks.
const (
	RuleCallVolume    = "call_volume"
	RulePutVolume     = "put_volume"
	RuleOIChange      = "oi_change"
	RuleShortTermCall = "short_term_call"
	RuleOTMCall       = "otm_call"
)

// AnomalySignal is the outcome of one rule for one symbol-day.
type AnomalySignal struct {
	Rule      string
	Observed  float64
	Baseline  float64
	Ratio     float64
	Triggered bool
	Skipped   bool   // insufficient history; rule not evaluated
	Note      string // human-readable explanation, set when triggered
}

// RiskTier buckets composite scores for downstream consumers.
type RiskTier string

const (
	TierHigh   RiskTier = "high"
	TierMedium RiskTier = "medium"
	TierLow    RiskTier = "low"
)

// FeatureVector is the per-symbol input row to the composite scorer.
type FeatureVector struct {
	Symbol         string
	VolumeRatio    float64
	OIZScore       float64
	ShortTermShare float64
	OTMShare       float64
}

// Values returns the features in fixed column order.
func (f FeatureVector) Values() []float64 {
	return []float64{f.VolumeRatio, f.OIZScore, f.ShortTermShare, f.OTMShare}
}

// AnomalyRecord is the normalized per-symbol-day result handed to storage
// and notification collaborators. Immutable once assembled. The rule-based
// and composite detection paths are reported separately: RuleTriggered and
// CompositeFlagged can be set independently.
type AnomalyRecord struct {
	Symbol           string
	SnapshotDate     time.Time
	Signals          []AnomalySignal // triggered signals only, fixed rule order
	CompositeScore   float64
	Tier             RiskTier
	RuleTriggered    bool
	CompositeFlagged bool
	Notes            string
}

// RunSummary is the deterministic result of one collection+detection run,
// independent of anything logged along the way.
type RunSummary struct {
	RunDate         time.Time
	StartedAt       time.Time
	FinishedAt      time.Time
	Attempted       int
	Succeeded       int
	Failed          int
	FailedByReason  map[string]int
	AnomaliesByTier map[RiskTier]int
	SkippedBaseline int // symbols below the minimum history floor
}

// SymbolFailure records a symbol the run could not collect, with the reason
// from the last provider tried.
type SymbolFailure struct {
	Symbol   string
	Provider string
	Reason   string
	Err      error
}
