package analytics

import (
	"context"
	"fmt"

	"ChainWatch/internal/domain/models"
)

// DetectorOption configures Detector.
type DetectorOption func(*Detector)

// Detector evaluates the baseline-relative rules for one symbol-day. It is
// stateless; all history arrives through the baseline.
type Detector struct {
	volumeThreshold float64
	oiThreshold     float64
	shortTermDays   int
	otmPct          float64
	shareFactor     float64
	minVolume       int64
	minHistory      int
}

// NewDetector creates a rule detector with production defaults.
func NewDetector(opts ...DetectorOption) *Detector {
	d := &Detector{
		volumeThreshold: 3.0,
		oiThreshold:     2.5,
		shortTermDays:   7,
		otmPct:          10.0,
		shareFactor:     2.0,
		minVolume:       100,
		minHistory:      5,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// WithVolumeThreshold sets the volume ratio that triggers the volume rules.
func WithVolumeThreshold(v float64) DetectorOption {
	return func(d *Detector) { d.volumeThreshold = v }
}

// WithOIThreshold sets the z-score that triggers the open interest rule.
func WithOIThreshold(v float64) DetectorOption {
	return func(d *Detector) { d.oiThreshold = v }
}

// WithShortTermDays sets the expiry window for the short-term rule.
func WithShortTermDays(n int) DetectorOption {
	return func(d *Detector) {
		if n > 0 {
			d.shortTermDays = n
		}
	}
}

// WithOTMPercentage sets how far above spot a call strike counts as OTM.
func WithOTMPercentage(v float64) DetectorOption {
	return func(d *Detector) { d.otmPct = v }
}

// WithShareFactor sets the multiple of the baseline share that triggers the
// concentration rules.
func WithShareFactor(v float64) DetectorOption {
	return func(d *Detector) { d.shareFactor = v }
}

// WithMinVolume sets the baseline mean volume below which the volume rules
// stay quiet.
func WithMinVolume(n int64) DetectorOption {
	return func(d *Detector) { d.minVolume = n }
}

// WithMinHistory sets the observation count a baseline needs before rules
// are evaluated at all.
func WithMinHistory(n int) DetectorOption {
	return func(d *Detector) {
		if n > 0 {
			d.minHistory = n
		}
	}
}

// MinHistory returns the baseline observation floor.
func (d *Detector) MinHistory() int { return d.minHistory }

// Evaluate runs every rule against the snapshot. When the baseline has too
// little history all signals come back skipped; this is reported, never an
// error. The feature vector is populated from whatever baseline data exists,
// even a single observation, so the composite scorer can still use the row.
// Only a symbol with no baseline at all yields zero features.
func (d *Detector) Evaluate(ctx context.Context, snap *models.ChainSnapshot, base *models.BaselineStats) ([]models.AnomalySignal, models.FeatureVector) {
	features := models.FeatureVector{Symbol: snap.Symbol}

	if base == nil {
		return skippedSignals(), features
	}

	totalVol := float64(snap.TotalVolume())
	if volMean := base.CallVolumeMean + base.PutVolumeMean; volMean > 0 {
		features.VolumeRatio = totalVol / volMean
	}
	features.OIZScore = oiZScore(snap, base)
	if totalVol > 0 {
		features.ShortTermShare = float64(snap.ShortTermVolume(d.shortTermDays)) / totalVol
		features.OTMShare = float64(snap.OTMCallVolume(d.otmPct)) / totalVol
	}

	if !base.HasHistory(d.minHistory) {
		return skippedSignals(), features
	}

	callVol := float64(snap.CallVolume())
	putVol := float64(snap.PutVolume())

	signals := []models.AnomalySignal{
		d.volumeSignal(models.RuleCallVolume, "Call", callVol, base.CallVolumeMean),
		d.volumeSignal(models.RulePutVolume, "Put", putVol, base.PutVolumeMean),
		d.oiSignal(snap, base),
		d.shareSignal(models.RuleShortTermCall, "Short-term", float64(snap.ShortTermVolume(d.shortTermDays)), totalVol, base.ShortTermShareMean),
		d.shareSignal(models.RuleOTMCall, "OTM call", float64(snap.OTMCallVolume(d.otmPct)), totalVol, base.OTMShareMean),
	}

	return signals, features
}

// volumeSignal compares today's volume against the baseline mean. Symbols
// whose baseline mean sits under the liquidity floor never trigger, no
// matter how large the ratio.
func (d *Detector) volumeSignal(rule, label string, observed, mean float64) models.AnomalySignal {
	s := models.AnomalySignal{Rule: rule, Observed: observed, Baseline: mean}

	if mean <= 0 {
		s.Skipped = true
		return s
	}

	s.Ratio = observed / mean
	if s.Ratio >= d.volumeThreshold && mean >= float64(d.minVolume) {
		s.Triggered = true
		s.Note = fmt.Sprintf("%s volume %.1fx normal", label, s.Ratio)
	}
	return s
}

// oiSignal scores the day-over-day open interest change as a z-score.
func (d *Detector) oiSignal(snap *models.ChainSnapshot, base *models.BaselineStats) models.AnomalySignal {
	change := float64(snap.TotalOpenInterest() - base.PrevOpenInterest)
	s := models.AnomalySignal{Rule: models.RuleOIChange, Observed: change, Baseline: base.OIChangeMean}

	if base.OIChangeStdDev <= 0 {
		s.Skipped = true
		return s
	}

	z := (change - base.OIChangeMean) / base.OIChangeStdDev
	s.Ratio = z
	if z >= d.oiThreshold || z <= -d.oiThreshold {
		s.Triggered = true
		s.Note = fmt.Sprintf("Open interest change %.1f std devs from normal", z)
	}
	return s
}

// shareSignal compares today's volume concentration against the baseline
// share of total volume.
func (d *Detector) shareSignal(rule, label string, part, total, meanShare float64) models.AnomalySignal {
	s := models.AnomalySignal{Rule: rule, Baseline: meanShare}

	if total < float64(d.minVolume) || meanShare <= 0 {
		s.Skipped = true
		return s
	}

	share := part / total
	s.Observed = share
	s.Ratio = share / meanShare
	if s.Ratio >= d.shareFactor {
		s.Triggered = true
		s.Note = fmt.Sprintf("%s volume %.1fx normal share", label, s.Ratio)
	}
	return s
}

func oiZScore(snap *models.ChainSnapshot, base *models.BaselineStats) float64 {
	if base.OIChangeStdDev <= 0 {
		return 0
	}
	change := float64(snap.TotalOpenInterest() - base.PrevOpenInterest)
	return (change - base.OIChangeMean) / base.OIChangeStdDev
}

func skippedSignals() []models.AnomalySignal {
	rules := []string{
		models.RuleCallVolume,
		models.RulePutVolume,
		models.RuleOIChange,
		models.RuleShortTermCall,
		models.RuleOTMCall,
	}
	out := make([]models.AnomalySignal, 0, len(rules))
	for _, r := range rules {
		out = append(out, models.AnomalySignal{Rule: r, Skipped: true})
	}
	return out
}
