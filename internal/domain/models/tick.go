package models

import "time"

// Source identifies an external data provider/category.
type Source string

const (
	SourceCrypto Source = "crypto"
	SourceEquity Source = "equity"
	SourceCarbon Source = "carbon"
)

// IsValidSource returns true if s is a supported source.
func IsValidSource(s Source) bool {
	switch s {
	case SourceCrypto, SourceEquity, SourceCarbon:
		return true
	default:
		return false
	}
}

// Tick is one normalized price/volume observation for a symbol from a given
// source. Ticks are immutable; a newer tick supersedes an older one for the
// same (source, symbol) key.
type Tick struct {
	Source        Source    `json:"source"`
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"changePercent"`
	Volume        float64   `json:"volume"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Timestamp     time.Time `json:"timestamp"`
	// Simulated marks ticks produced by a simulator rather than a live feed,
	// so degraded data is never indistinguishable from real data.
	Simulated bool `json:"simulated,omitempty"`
}

// CacheEntry wraps the latest tick for a key together with fetch bookkeeping.
type CacheEntry struct {
	Tick      Tick          `json:"tick"`
	FetchedAt time.Time     `json:"fetchedAt"`
	TTL       time.Duration `json:"ttl"`
}

// IsStale reports whether the entry is older than its TTL at the given time.
func (e CacheEntry) IsStale(now time.Time) bool {
	return now.Sub(e.FetchedAt) > e.TTL
}
