package models

import "time"

// SentimentLabel buckets a composite score.
type SentimentLabel string

const (
	SentimentBullish SentimentLabel = "bullish"
	SentimentNeutral SentimentLabel = "neutral"
	SentimentBearish SentimentLabel = "bearish"
)

// SentimentComponents are the raw inputs of the composite score.
type SentimentComponents struct {
	Volatility  float64 `json:"volatility"`
	Momentum    float64 `json:"momentum"`
	VolumeTrend float64 `json:"volumeTrend"`
}

// SentimentScore is a composite 0-100 score derived on demand from recent
// history. Degraded scores come from insufficient data and are always
// neutral; they are flagged, never fabricated silently.
type SentimentScore struct {
	Symbol     string              `json:"symbol"`
	Score      float64             `json:"score"`
	Label      SentimentLabel      `json:"label"`
	Components SentimentComponents `json:"components"`
	Degraded   bool                `json:"degraded"`
	ComputedAt time.Time           `json:"computedAt"`
}
