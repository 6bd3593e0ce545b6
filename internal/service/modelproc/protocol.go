package modelproc

import (
	"time"

	"MarketPulse/internal/domain/models"
)

// Wire schema for the model subprocess bridge, version 1. One JSON request
// on the process's stdin, one JSON response on its stdout. The schema is
// transport-independent: the same payloads could travel over a local socket
// or RPC without changing callers.

const protocolDateLayout = "2006-01-02"

type wireRequest struct {
	Series      []wirePoint    `json:"series"`
	HorizonDays int            `json:"horizonDays"`
	Params      map[string]any `json:"params,omitempty"`
}

type wirePoint struct {
	DS string  `json:"ds"`
	Y  float64 `json:"y"`
}

type wireForecastPoint struct {
	DS        string  `json:"ds"`
	YHat      float64 `json:"yhat"`
	YHatLower float64 `json:"yhat_lower"`
	YHatUpper float64 `json:"yhat_upper"`
}

type wireSummary struct {
	HistoricalMean float64 `json:"historicalMean"`
	HistoricalStd  float64 `json:"historicalStd"`
	ForecastTrend  string  `json:"forecastTrend"`
	Confidence     float64 `json:"confidence"`
}

type wireResponse struct {
	Error       string              `json:"error,omitempty"`
	Model       string              `json:"model"`
	HorizonDays int                 `json:"horizonDays"`
	DataPoints  int                 `json:"dataPoints"`
	Path        []wireForecastPoint `json:"path"`
	Summary     wireSummary         `json:"summary"`
}

func encodeSeries(series []models.HistoryPoint) []wirePoint {
	out := make([]wirePoint, 0, len(series))
	for _, p := range series {
		out = append(out, wirePoint{DS: p.Date.Format(protocolDateLayout), Y: p.Value})
	}
	return out
}

func decodePath(path []wireForecastPoint) ([]models.ForecastPoint, bool) {
	out := make([]models.ForecastPoint, 0, len(path))
	for _, p := range path {
		d, err := time.Parse(protocolDateLayout, p.DS)
		if err != nil {
			return nil, false
		}
		out = append(out, models.ForecastPoint{
			Date:          d,
			PointEstimate: p.YHat,
			LowerBound:    p.YHatLower,
			UpperBound:    p.YHatUpper,
		})
	}
	return out, true
}
