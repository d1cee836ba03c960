package analytics

import (
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"ChainWatch/internal/domain/models"
)

// Detection is the per-symbol intermediate between rule evaluation and
// record assembly.
type Detection struct {
	Snapshot *models.ChainSnapshot
	Signals  []models.AnomalySignal
	Features models.FeatureVector
	// Skipped marks a symbol whose baseline was too thin for the rules.
	// Its features still enter the composite fit when a baseline exists.
	Skipped bool
	// HasBaseline is false only when no baseline row exists at all; such
	// symbols carry zero features and stay out of the composite fit.
	HasBaseline bool
}

// TierThresholds maps composite scores onto risk tiers. Low is not a tier
// boundary; scores under Medium are low. It is the floor under the
// composite flagging cutoff.
type TierThresholds struct {
	High   float64
	Medium float64
	Low    float64
}

// AssemblerOption configures Assembler.
type AssemblerOption func(*Assembler)

// Assembler folds rule signals and composite scores into anomaly records.
// Pure function of its inputs; assembling the same day twice yields the
// same records.
type Assembler struct {
	tiers         TierThresholds
	contamination float64
}

// NewAssembler creates an assembler with default tiering.
func NewAssembler(opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		tiers:         TierThresholds{High: 0.7, Medium: 0.4, Low: 0.2},
		contamination: 0.05,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// WithTiers overrides the score-to-tier mapping.
func WithTiers(t TierThresholds) AssemblerOption {
	return func(a *Assembler) { a.tiers = t }
}

// WithContamination sets the expected anomaly fraction used to derive the
// composite cutoff from the day's score distribution.
func WithContamination(v float64) AssemblerOption {
	return func(a *Assembler) {
		if v > 0 && v < 1 {
			a.contamination = v
		}
	}
}

// Assemble builds one record per anomalous symbol. scores[i] belongs to
// detections[i]. Symbols with neither a triggered rule nor a composite flag
// produce nothing; a quiet day returns an empty slice.
func (a *Assembler) Assemble(detections []Detection, scores []float64) []*models.AnomalyRecord {
	cutoff := a.compositeCutoff(scores)

	var records []*models.AnomalyRecord
	for i, det := range detections {
		var score float64
		if i < len(scores) {
			score = scores[i]
		}

		triggered := triggeredSignals(det.Signals)
		ruleHit := len(triggered) > 0
		// Strictly above the cutoff, so a day of near-identical scores
		// flags nothing.
		compositeHit := cutoff > 0 && score > cutoff
		if !ruleHit && !compositeHit {
			continue
		}

		records = append(records, &models.AnomalyRecord{
			Symbol:           det.Snapshot.Symbol,
			SnapshotDate:     det.Snapshot.SnapshotDate,
			Signals:          triggered,
			CompositeScore:   score,
			Tier:             a.tierFor(score),
			RuleTriggered:    ruleHit,
			CompositeFlagged: compositeHit,
			Notes:            joinNotes(triggered),
		})
	}

	return records
}

// compositeCutoff derives the day's flagging threshold: the upper
// contamination quantile of the score distribution, floored at tiers.Low
// so a quiet day flags nothing. Returns 0 when there is nothing to rank.
func (a *Assembler) compositeCutoff(scores []float64) float64 {
	if len(scores) < 2 {
		return 0
	}

	sorted := make([]float64, len(scores))
	copy(sorted, scores)
	sort.Float64s(sorted)

	q := stat.Quantile(1-a.contamination, stat.Empirical, sorted, nil)
	if q < a.tiers.Low {
		return a.tiers.Low
	}
	return q
}

func (a *Assembler) tierFor(score float64) models.RiskTier {
	switch {
	case score >= a.tiers.High:
		return models.TierHigh
	case score >= a.tiers.Medium:
		return models.TierMedium
	default:
		return models.TierLow
	}
}

func triggeredSignals(signals []models.AnomalySignal) []models.AnomalySignal {
	var out []models.AnomalySignal
	for _, s := range signals {
		if s.Triggered {
			out = append(out, s)
		}
	}
	return out
}

func joinNotes(signals []models.AnomalySignal) string {
	notes := make([]string, 0, len(signals))
	for _, s := range signals {
		if s.Note != "" {
			notes = append(notes, s.Note)
		}
	}
	return strings.Join(notes, "; ")
}
