package analytics

import (
	"testing"

	"ChainWatch/internal/domain/models"
)

func clusterRow(symbol string, jitter float64) models.FeatureVector {
	return models.FeatureVector{
		Symbol:         symbol,
		VolumeRatio:    1.0 + jitter,
		OIZScore:       0.1 * jitter,
		ShortTermShare: 0.2 + 0.01*jitter,
		OTMShare:       0.1 + 0.01*jitter,
	}
}

func TestOutlierScoresAboveCluster(t *testing.T) {
	f := NewIsolationForest(WithSeed(7))

	var rows []models.FeatureVector
	for i := 0; i < 30; i++ {
		rows = append(rows, clusterRow("S", float64(i%5)*0.05))
	}
	outlier := models.FeatureVector{
		Symbol:         "OUT",
		VolumeRatio:    9.0,
		OIZScore:       5.0,
		ShortTermShare: 0.9,
		OTMShare:       0.8,
	}
	rows = append(rows, outlier)

	scores := f.FitScore(rows)
	if len(scores) != len(rows) {
		t.Fatalf("got %d scores for %d rows", len(scores), len(rows))
	}

	outScore := scores[len(scores)-1]
	for i, s := range scores[:len(scores)-1] {
		if s >= outScore {
			t.Fatalf("inlier %d scored %v >= outlier %v", i, s, outScore)
		}
	}
	if outScore <= 0.5 {
		t.Fatalf("outlier score %v should exceed 0.5", outScore)
	}
}

func TestScoresStayInUnitInterval(t *testing.T) {
	f := NewIsolationForest()
	var rows []models.FeatureVector
	for i := 0; i < 50; i++ {
		rows = append(rows, clusterRow("S", float64(i)*0.1))
	}

	for _, s := range f.FitScore(rows) {
		if s <= 0 || s >= 1 {
			t.Fatalf("score %v outside (0,1)", s)
		}
	}
}

func TestSameSeedSameScores(t *testing.T) {
	var rows []models.FeatureVector
	for i := 0; i < 20; i++ {
		rows = append(rows, clusterRow("S", float64(i)*0.2))
	}

	a := NewIsolationForest(WithSeed(42)).FitScore(rows)
	b := NewIsolationForest(WithSeed(42)).FitScore(rows)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("row %d: %v != %v", i, a[i], b[i])
		}
	}
}

func TestTooFewRowsScoreZero(t *testing.T) {
	f := NewIsolationForest()

	if got := f.FitScore(nil); len(got) != 0 {
		t.Fatalf("expected no scores for no rows")
	}

	got := f.FitScore([]models.FeatureVector{clusterRow("S", 0)})
	if len(got) != 1 || got[0] != 0 {
		t.Fatalf("single row cannot be ranked, got %v", got)
	}
}

func TestIdenticalRowsScoreEqually(t *testing.T) {
	f := NewIsolationForest(WithSeed(3))
	rows := []models.FeatureVector{
		clusterRow("A", 0), clusterRow("B", 0), clusterRow("C", 0), clusterRow("D", 0),
	}

	scores := f.FitScore(rows)
	for i := 1; i < len(scores); i++ {
		if scores[i] != scores[0] {
			t.Fatalf("identical rows scored differently: %v", scores)
		}
	}
}
