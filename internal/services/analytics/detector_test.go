package analytics

import (
	"context"
	"testing"
	"time"

	"ChainWatch/internal/domain/models"
)

var snapDate = time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)

func baseline(observations int) *models.BaselineStats {
	return &models.BaselineStats{
		Symbol:             "ABC",
		AsOf:               snapDate,
		CallVolumeMean:     100,
		CallVolumeStdDev:   20,
		PutVolumeMean:      80,
		PutVolumeStdDev:    15,
		OIChangeMean:       0,
		OIChangeStdDev:     100,
		PrevOpenInterest:   10000,
		ShortTermShareMean: 0.2,
		OTMShareMean:       0.1,
		Observations:       observations,
	}
}

// snapshot builds a chain with the given call/put volume split. Calls land
// on a far expiration and an OTM strike unless overridden per test.
func snapshot(callVol, putVol int64) *models.ChainSnapshot {
	return &models.ChainSnapshot{
		Symbol:          "ABC",
		SnapshotDate:    snapDate,
		UnderlyingPrice: 100,
		Contracts: []models.OptionContract{
			{Type: models.Call, Strike: 105, Expiration: snapDate.AddDate(0, 1, 0), Volume: callVol, OpenInterest: 10000},
			{Type: models.Put, Strike: 95, Expiration: snapDate.AddDate(0, 1, 0), Volume: putVol},
		},
	}
}

func signalByRule(t *testing.T, signals []models.AnomalySignal, rule string) models.AnomalySignal {
	t.Helper()
	for _, s := range signals {
		if s.Rule == rule {
			return s
		}
	}
	t.Fatalf("no signal for rule %s", rule)
	return models.AnomalySignal{}
}

func TestCallVolumeRuleTriggers(t *testing.T) {
	d := NewDetector()
	signals, _ := d.Evaluate(context.Background(), snapshot(500, 80), baseline(30))

	s := signalByRule(t, signals, models.RuleCallVolume)
	if !s.Triggered {
		t.Fatalf("expected call volume rule to trigger: %+v", s)
	}
	if s.Ratio != 5.0 {
		t.Fatalf("ratio %v, want 5.0", s.Ratio)
	}
	if s.Note != "Call volume 5.0x normal" {
		t.Fatalf("note %q", s.Note)
	}

	// Put volume is at baseline; its rule stays quiet.
	if p := signalByRule(t, signals, models.RulePutVolume); p.Triggered {
		t.Fatalf("put volume rule should not trigger: %+v", p)
	}
}

func TestVolumeRuleBelowThresholdStaysQuiet(t *testing.T) {
	d := NewDetector()
	signals, _ := d.Evaluate(context.Background(), snapshot(250, 80), baseline(30))

	if s := signalByRule(t, signals, models.RuleCallVolume); s.Triggered {
		t.Fatalf("2.5x should be below the 3.0 threshold: %+v", s)
	}
}

func TestVolumeRuleRespectsLiquidityFloor(t *testing.T) {
	d := NewDetector()
	base := baseline(30)
	base.CallVolumeMean = 10

	// 500x the baseline mean of 10, but a mean that thin sits under the
	// floor of 100 and never triggers.
	signals, _ := d.Evaluate(context.Background(), snapshot(5000, 80), base)
	if s := signalByRule(t, signals, models.RuleCallVolume); s.Triggered {
		t.Fatalf("illiquid baseline should not trigger: %+v", s)
	}
}

func TestInsufficientHistorySkipsRulesButKeepsFeatures(t *testing.T) {
	d := NewDetector()
	signals, features := d.Evaluate(context.Background(), snapshot(280, 80), baseline(3))

	if len(signals) != 5 {
		t.Fatalf("got %d signals, want 5", len(signals))
	}
	for _, s := range signals {
		if !s.Skipped || s.Triggered {
			t.Fatalf("expected skipped signal, got %+v", s)
		}
	}
	// Three observations are under the history floor for the rules, but the
	// feature vector still reflects the day so the scorer can rank it.
	if features.VolumeRatio != 2.0 { // 360 / (100+80)
		t.Fatalf("volume ratio %v, want 2.0", features.VolumeRatio)
	}
}

func TestNoBaselineYieldsZeroFeatures(t *testing.T) {
	d := NewDetector()
	signals, features := d.Evaluate(context.Background(), snapshot(500, 80), nil)

	for _, s := range signals {
		if !s.Skipped {
			t.Fatalf("expected skipped signal, got %+v", s)
		}
	}
	if features.VolumeRatio != 0 || features.OIZScore != 0 || features.ShortTermShare != 0 {
		t.Fatalf("features should stay zero without a baseline: %+v", features)
	}
}

func TestOIChangeTriggersOnZScore(t *testing.T) {
	d := NewDetector()
	snap := snapshot(100, 80)
	snap.Contracts[0].OpenInterest = 10300 // +300 against stddev 100

	signals, features := d.Evaluate(context.Background(), snap, baseline(30))
	s := signalByRule(t, signals, models.RuleOIChange)
	if !s.Triggered {
		t.Fatalf("z=3.0 should trigger at threshold 2.5: %+v", s)
	}
	if s.Note != "Open interest change 3.0 std devs from normal" {
		t.Fatalf("note %q", s.Note)
	}
	if features.OIZScore != 3.0 {
		t.Fatalf("feature z-score %v, want 3.0", features.OIZScore)
	}
}

func TestOIChangeTriggersOnNegativeSwing(t *testing.T) {
	d := NewDetector()
	snap := snapshot(100, 80)
	snap.Contracts[0].OpenInterest = 9700 // -300

	signals, _ := d.Evaluate(context.Background(), snap, baseline(30))
	if s := signalByRule(t, signals, models.RuleOIChange); !s.Triggered {
		t.Fatalf("large unwind should trigger: %+v", s)
	}
}

func TestOIRuleSkippedWithoutVariance(t *testing.T) {
	d := NewDetector()
	base := baseline(30)
	base.OIChangeStdDev = 0

	signals, _ := d.Evaluate(context.Background(), snapshot(100, 80), base)
	if s := signalByRule(t, signals, models.RuleOIChange); !s.Skipped {
		t.Fatalf("zero stddev must skip the rule: %+v", s)
	}
}

func TestShortTermConcentrationTriggers(t *testing.T) {
	d := NewDetector()
	snap := &models.ChainSnapshot{
		Symbol:          "ABC",
		SnapshotDate:    snapDate,
		UnderlyingPrice: 100,
		Contracts: []models.OptionContract{
			// Everything expires inside the 7 day window.
			{Type: models.Call, Strike: 100, Expiration: snapDate.AddDate(0, 0, 2), Volume: 300, OpenInterest: 10000},
		},
	}

	signals, features := d.Evaluate(context.Background(), snap, baseline(30))
	s := signalByRule(t, signals, models.RuleShortTermCall)
	if !s.Triggered {
		t.Fatalf("full short-term concentration should trigger: %+v", s)
	}
	if s.Ratio != 5.0 { // share 1.0 vs mean 0.2
		t.Fatalf("ratio %v, want 5.0", s.Ratio)
	}
	if features.ShortTermShare != 1.0 {
		t.Fatalf("short-term share %v, want 1.0", features.ShortTermShare)
	}
}

func TestOTMCallConcentrationTriggers(t *testing.T) {
	d := NewDetector()
	snap := &models.ChainSnapshot{
		Symbol:          "ABC",
		SnapshotDate:    snapDate,
		UnderlyingPrice: 100,
		Contracts: []models.OptionContract{
			// Strike 10% above spot is the boundary; 115 is well beyond it.
			{Type: models.Call, Strike: 115, Expiration: snapDate.AddDate(0, 1, 0), Volume: 200, OpenInterest: 10000},
			{Type: models.Call, Strike: 100, Expiration: snapDate.AddDate(0, 1, 0), Volume: 200},
		},
	}

	signals, features := d.Evaluate(context.Background(), snap, baseline(30))
	s := signalByRule(t, signals, models.RuleOTMCall)
	if !s.Triggered { // share 0.5 vs mean 0.1 is 5x
		t.Fatalf("OTM concentration should trigger: %+v", s)
	}
	if features.OTMShare != 0.5 {
		t.Fatalf("OTM share %v, want 0.5", features.OTMShare)
	}
}

func TestFeatureVectorFromBaseline(t *testing.T) {
	d := NewDetector()
	_, features := d.Evaluate(context.Background(), snapshot(270, 90), baseline(30))

	if features.Symbol != "ABC" {
		t.Fatalf("symbol %q", features.Symbol)
	}
	if features.VolumeRatio != 2.0 { // 360 / (100+80)
		t.Fatalf("volume ratio %v, want 2.0", features.VolumeRatio)
	}
}
