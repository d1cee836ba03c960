package repository

import (
	"math"
	"testing"
	"time"
)

func days(ois ...float64) []dailyStat {
	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	out := make([]dailyStat, len(ois))
	for i, oi := range ois {
		out[i] = dailyStat{
			date:       base.AddDate(0, 0, i),
			callVol:    100,
			putVol:     80,
			totalOI:    oi,
			shortShare: 0.2,
			otmShare:   0.1,
		}
	}
	return out
}

func TestTrimOutliersDropsSpike(t *testing.T) {
	xs := make([]float64, 0, 21)
	for i := 0; i < 20; i++ {
		xs = append(xs, 100+float64(i%5))
	}
	xs = append(xs, 5000)

	trimmed := trimOutliers(xs)
	if len(trimmed) != 20 {
		t.Fatalf("trimmed to %d values, want 20", len(trimmed))
	}
	for _, x := range trimmed {
		if x > 200 {
			t.Fatalf("spike survived trimming: %v", x)
		}
	}
}

func TestTrimOutliersKeepsShortSeries(t *testing.T) {
	xs := []float64{1, 2, 5000}
	if got := trimOutliers(xs); len(got) != 3 {
		t.Fatalf("short series must pass through, got %v", got)
	}
}

func TestBuildBaselineOIChanges(t *testing.T) {
	asOf := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	b := buildBaseline("ABC", asOf, 30, days(100, 110, 130))

	if b.OIChangeMean != 15 { // changes are +10 and +20
		t.Fatalf("OI change mean %v, want 15", b.OIChangeMean)
	}
	if b.PrevOpenInterest != 130 {
		t.Fatalf("prev OI %d, want 130", b.PrevOpenInterest)
	}
	if b.Observations != 3 {
		t.Fatalf("observations %d, want 3", b.Observations)
	}
	if b.CallVolumeMean != 100 || b.PutVolumeMean != 80 {
		t.Fatalf("volume means %v/%v", b.CallVolumeMean, b.PutVolumeMean)
	}
	if math.Abs(b.ShortTermShareMean-0.2) > 1e-9 {
		t.Fatalf("short-term share mean %v", b.ShortTermShareMean)
	}
}

func TestBuildBaselineSingleDayHasNoVariance(t *testing.T) {
	asOf := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	b := buildBaseline("ABC", asOf, 30, days(100))

	if b.Observations != 1 {
		t.Fatalf("observations %d, want 1", b.Observations)
	}
	if b.OIChangeStdDev != 0 || b.CallVolumeStdDev != 0 {
		t.Fatalf("single day cannot have variance: %+v", b)
	}
	if b.HasHistory(5) {
		t.Fatalf("one observation must not satisfy the history floor")
	}
}
