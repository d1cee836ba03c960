package models

import "time"

// OptionType distinguishes calls from puts.
type OptionType string

const (
	Call OptionType = "CALL"
	Put  OptionType = "PUT"
)

// Symbol identifies one tracked underlying.
type Symbol struct {
	Ticker   string
	Exchange string
	Active   bool
}

// OptionContract is a single listed contract as observed on one snapshot date.
// Never mutated after creation; each trading day produces a fresh set.
type OptionContract struct {
	Symbol         string
	ContractSymbol string
	Expiration     time.Time
	Strike         float64
	Type           OptionType
	LastPrice      float64
	Bid            float64
	Ask            float64
	Volume         int64
	OpenInterest   int64
	ImpliedVol     float64
	// Greeks are provider-dependent; zero when the tier does not expose them.
	Delta float64
	Gamma float64
	Theta float64
	Vega  float64
}

// ChainSnapshot is the full option chain for one symbol on one trading day.
// All contracts share Symbol and SnapshotDate.
type ChainSnapshot struct {
	Symbol          string
	SnapshotDate    time.Time
	UnderlyingPrice float64
	Provider        string
	Contracts       []OptionContract
}

// CallVolume sums today's volume across call contracts.
func (s *ChainSnapshot) CallVolume() int64 {
	return s.volumeBy(Call)
}

// PutVolume sums today's volume across put contracts.
func (s *ChainSnapshot) PutVolume() int64 {
	return s.volumeBy(Put)
}

func (s *ChainSnapshot) volumeBy(t OptionType) int64 {
	var total int64
	for _, c := range s.Contracts {
		if c.Type == t {
			total += c.Volume
		}
	}
	return total
}

// TotalVolume sums volume across all contracts.
func (s *ChainSnapshot) TotalVolume() int64 {
	return s.CallVolume() + s.PutVolume()
}

// TotalOpenInterest sums open interest across all contracts.
func (s *ChainSnapshot) TotalOpenInterest() int64 {
	var total int64
	for _, c := range s.Contracts {
		total += c.OpenInterest
	}
	return total
}

// ShortTermVolume sums volume in contracts expiring within `days` of the
// snapshot date.
func (s *ChainSnapshot) ShortTermVolume(days int) int64 {
	cutoff := s.SnapshotDate.AddDate(0, 0, days)
	var total int64
	for _, c := range s.Contracts {
		if !c.Expiration.After(cutoff) {
			total += c.Volume
		}
	}
	return total
}

// OTMCallVolume sums call volume in strikes more than otmPct percent above
// the underlying price.
func (s *ChainSnapshot) OTMCallVolume(otmPct float64) int64 {
	threshold := s.UnderlyingPrice * (1 + otmPct/100)
	var total int64
	for _, c := range s.Contracts {
		if c.Type == Call && c.Strike > threshold {
			total += c.Volume
		}
	}
	return total
}
