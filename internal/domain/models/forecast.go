package models

import (
	"fmt"
	"time"
)

// AssetClass distinguishes which history provider serves a forecast request.
type AssetClass string

const (
	AssetEquity AssetClass = "equity"
	AssetCrypto AssetClass = "crypto"
)

// Model names a forecasting model family.
type Model string

const (
	// ModelPrimary is the additive trend/seasonality subprocess model.
	ModelPrimary Model = "prophet"
	// ModelSecondary is the autoregressive statistical subprocess model.
	ModelSecondary Model = "arima"
	// ModelSimple is the in-process deterministic trend model, always available.
	ModelSimple Model = "simple"
)

// FallbackChain returns the ordered models to attempt for a preference.
// The chain is strictly sequential: a later model is tried only after every
// earlier one has failed.
func FallbackChain(pref Model) []Model {
	switch pref {
	case ModelSecondary:
		return []Model{ModelSecondary, ModelPrimary, ModelSimple}
	case ModelSimple:
		return []Model{ModelSimple}
	default:
		return []Model{ModelPrimary, ModelSecondary, ModelSimple}
	}
}

// HistoryPoint is one daily observation of a historical series. Volume is
// zero for providers that do not report it.
type HistoryPoint struct {
	Date   time.Time `json:"date"`
	Value  float64   `json:"value"`
	Volume float64   `json:"volume,omitempty"`
}

// ForecastRequest asks for a price path forecast for one symbol.
type ForecastRequest struct {
	Symbol          string     `json:"symbol"`
	AssetClass      AssetClass `json:"assetClass"`
	HorizonDays     int        `json:"horizonDays"`
	ModelPreference Model      `json:"modelPreference"`
}

// Key identifies a deduplicatable forecast computation.
func (r ForecastRequest) Key() string {
	return fmt.Sprintf("%s|%s|%d", r.Symbol, r.ModelPreference, r.HorizonDays)
}

// ForecastPoint is one step of a forecast path with its confidence bounds.
type ForecastPoint struct {
	Date          time.Time `json:"date"`
	PointEstimate float64   `json:"pointEstimate"`
	LowerBound    float64   `json:"lowerBound"`
	UpperBound    float64   `json:"upperBound"`
}

// ForecastSummary carries heuristic metadata reported by the model.
// Confidence is a heuristic derived from interval width, not a backtested
// accuracy figure.
type ForecastSummary struct {
	HistoricalMean float64 `json:"historicalMean"`
	HistoricalStd  float64 `json:"historicalStd"`
	Trend          string  `json:"trend"` // "increasing" or "decreasing"
	Confidence     float64 `json:"confidence"`
}

// ForecastResult is the normalized output of a forecast computation,
// tagged with the model that actually produced it.
type ForecastResult struct {
	Symbol      string          `json:"symbol"`
	Model       Model           `json:"model"`
	GeneratedAt time.Time       `json:"generatedAt"`
	Path        []ForecastPoint `json:"path"`
	DataPoints  int             `json:"dataPoints"`
	Degraded    bool            `json:"degraded"`
	Summary     ForecastSummary `json:"summary"`
}
