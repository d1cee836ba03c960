package models

import "time"

// BaselineStats holds rolling-window aggregates for one symbol as of a date.
// Maintained by the baseline repository; the detection core only reads it.
type BaselineStats struct {
	Symbol string
	AsOf   time.Time
	Window int // trading days in the window

	CallVolumeMean   float64
	CallVolumeStdDev float64
	PutVolumeMean    float64
	PutVolumeStdDev  float64

	// Day-over-day open interest change statistics.
	OIChangeMean     float64
	OIChangeStdDev   float64
	PrevOpenInterest int64

	// Historical shares of total volume, in [0,1].
	ShortTermShareMean float64
	OTMShareMean       float64

	Observations int // distinct trading days contributing to the window
}

// HasHistory reports whether the window carries at least min observations,
// the floor below which baseline-relative rules are skipped.
func (b *BaselineStats) HasHistory(min int) bool {
	return b != nil && b.Observations >= min
}
