package analytics

import (
	"reflect"
	"testing"

	"ChainWatch/internal/domain/models"
)

func quietDetection(symbol string) Detection {
	return Detection{
		Snapshot: &models.ChainSnapshot{Symbol: symbol, SnapshotDate: snapDate},
		Signals: []models.AnomalySignal{
			{Rule: models.RuleCallVolume, Ratio: 1.1},
			{Rule: models.RulePutVolume, Ratio: 0.9},
		},
	}
}

func TestAssembleHighTierRecord(t *testing.T) {
	detections := []Detection{
		{
			Snapshot: &models.ChainSnapshot{Symbol: "ABC", SnapshotDate: snapDate},
			Signals: []models.AnomalySignal{
				{Rule: models.RuleCallVolume, Ratio: 5.0, Triggered: true, Note: "Call volume 5.0x normal"},
				{Rule: models.RulePutVolume, Ratio: 1.0},
			},
		},
	}
	scores := []float64{0.82}
	for i := 0; i < 20; i++ {
		detections = append(detections, quietDetection("Q"))
		scores = append(scores, 0.3)
	}

	records := NewAssembler().Assemble(detections, scores)
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}

	r := records[0]
	if r.Symbol != "ABC" || !r.SnapshotDate.Equal(snapDate) {
		t.Fatalf("unexpected identity %+v", r)
	}
	if r.Tier != models.TierHigh {
		t.Fatalf("tier %s, want high", r.Tier)
	}
	if !r.RuleTriggered || !r.CompositeFlagged {
		t.Fatalf("both detection paths should report: %+v", r)
	}
	if len(r.Signals) != 1 || r.Signals[0].Rule != models.RuleCallVolume {
		t.Fatalf("only the triggered signal belongs on the record: %+v", r.Signals)
	}
	if r.Notes != "Call volume 5.0x normal" {
		t.Fatalf("notes %q", r.Notes)
	}
}

func TestAssembleQuietDayYieldsNothing(t *testing.T) {
	var detections []Detection
	var scores []float64
	for i := 0; i < 25; i++ {
		detections = append(detections, quietDetection("Q"))
		scores = append(scores, 0.3)
	}

	if records := NewAssembler().Assemble(detections, scores); len(records) != 0 {
		t.Fatalf("quiet day produced %d records", len(records))
	}
}

func TestAssembleRuleOnlyRecordIsLowTier(t *testing.T) {
	detections := []Detection{
		{
			Snapshot: &models.ChainSnapshot{Symbol: "ABC", SnapshotDate: snapDate},
			Signals: []models.AnomalySignal{
				{Rule: models.RuleOIChange, Ratio: 2.8, Triggered: true, Note: "Open interest change 2.8 std devs from normal"},
			},
		},
		quietDetection("Q"),
	}

	records := NewAssembler().Assemble(detections, []float64{0.2, 0.25})
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	r := records[0]
	if !r.RuleTriggered || r.CompositeFlagged {
		t.Fatalf("expected rule-only record: %+v", r)
	}
	if r.Tier != models.TierLow {
		t.Fatalf("tier %s, want low", r.Tier)
	}
}

func TestAssembleThinHistorySymbolCanCompositeFlag(t *testing.T) {
	det := Detection{
		Snapshot: &models.ChainSnapshot{Symbol: "NEW", SnapshotDate: snapDate},
		Signals: []models.AnomalySignal{
			{Rule: models.RuleCallVolume, Skipped: true},
		},
		Skipped:     true,
		HasBaseline: true,
	}
	detections := []Detection{det}
	scores := []float64{0.95}
	for i := 0; i < 20; i++ {
		detections = append(detections, quietDetection("Q"))
		scores = append(scores, 0.3)
	}

	// A recently listed symbol has too little history for the rules, but an
	// extreme day still surfaces through the composite score alone.
	records := NewAssembler().Assemble(detections, scores)
	if len(records) != 1 || records[0].Symbol != "NEW" {
		t.Fatalf("thin-history symbol should flag on score, got %+v", records)
	}
	r := records[0]
	if r.RuleTriggered || !r.CompositeFlagged {
		t.Fatalf("expected composite-only record: %+v", r)
	}
	if r.Tier != models.TierHigh {
		t.Fatalf("tier %s, want high", r.Tier)
	}
}

func TestTierBoundaries(t *testing.T) {
	flagged := func(symbol string) Detection {
		return Detection{
			Snapshot:    &models.ChainSnapshot{Symbol: symbol, SnapshotDate: snapDate},
			Signals:     []models.AnomalySignal{{Rule: models.RuleCallVolume, Ratio: 4.0, Triggered: true}},
			HasBaseline: true,
		}
	}
	detections := []Detection{flagged("HI"), flagged("EDGE_HI"), flagged("MID"), flagged("EDGE_MID"), flagged("LO")}
	scores := []float64{0.72, 0.70, 0.45, 0.40, 0.10}

	records := NewAssembler().Assemble(detections, scores)
	if len(records) != 5 {
		t.Fatalf("got %d records, want 5", len(records))
	}
	want := map[string]models.RiskTier{
		"HI":       models.TierHigh,
		"EDGE_HI":  models.TierHigh,
		"MID":      models.TierMedium,
		"EDGE_MID": models.TierMedium,
		"LO":       models.TierLow,
	}
	for _, r := range records {
		if r.Tier != want[r.Symbol] {
			t.Errorf("%s: tier %s, want %s (score %v)", r.Symbol, r.Tier, want[r.Symbol], r.CompositeScore)
		}
	}
}

func TestAssembleJoinsNotes(t *testing.T) {
	detections := []Detection{
		{
			Snapshot: &models.ChainSnapshot{Symbol: "ABC", SnapshotDate: snapDate},
			Signals: []models.AnomalySignal{
				{Rule: models.RuleCallVolume, Triggered: true, Note: "Call volume 4.0x normal"},
				{Rule: models.RuleShortTermCall, Triggered: true, Note: "Short-term volume 2.2x normal share"},
			},
		},
	}

	records := NewAssembler().Assemble(detections, []float64{0.9})
	if len(records) != 1 {
		t.Fatalf("got %d records", len(records))
	}
	want := "Call volume 4.0x normal; Short-term volume 2.2x normal share"
	if records[0].Notes != want {
		t.Fatalf("notes %q, want %q", records[0].Notes, want)
	}
}

func TestAssembleIsIdempotent(t *testing.T) {
	detections := []Detection{
		{
			Snapshot: &models.ChainSnapshot{Symbol: "ABC", SnapshotDate: snapDate},
			Signals: []models.AnomalySignal{
				{Rule: models.RuleCallVolume, Ratio: 5.0, Triggered: true, Note: "Call volume 5.0x normal"},
			},
		},
		quietDetection("Q"),
		quietDetection("Q2"),
	}
	scores := []float64{0.82, 0.3, 0.31}

	a := NewAssembler()
	first := a.Assemble(detections, scores)
	second := a.Assemble(detections, scores)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("assembly is not deterministic")
	}
}
