package modelproc

import (
	"context"
	"fmt"
	"math"
	"time"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
)

// TrendModel is the in-process deterministic last resort: a linear trend fit
// plus return volatility, projected forward with confidence intervals that
// widen with the horizon. It never fails on a non-empty series, which is
// what makes it a safe end of the fallback chain.
type TrendModel struct{}

func NewTrendModel() *TrendModel { return &TrendModel{} }

func (m *TrendModel) Name() models.Model { return models.ModelSimple }

func (m *TrendModel) Run(_ context.Context, series []models.HistoryPoint, horizonDays int, _ map[string]any) (*models.ForecastResult, error) {
	values := make([]float64, 0, len(series))
	for _, p := range series {
		if p.Value > 0 && !math.IsNaN(p.Value) {
			values = append(values, p.Value)
		}
	}
	if len(values) < 2 {
		return nil, fmt.Errorf("%w: trend model needs at least 2 points", models.ErrModelUnavailable)
	}

	slope, intercept := linearFit(values)

	// residual standard error of the fit
	var ssr float64
	for i, v := range values {
		r := v - (slope*float64(i) + intercept)
		ssr += r * r
	}
	stdErr := math.Sqrt(ssr / float64(len(values)))

	// daily return volatility scales the widening of the interval
	vol := returnVolatility(values)

	lastDate := series[len(series)-1].Date
	n := float64(len(values))
	path := make([]models.ForecastPoint, 0, horizonDays)
	for i := 1; i <= horizonDays; i++ {
		est := slope*(n+float64(i)-1) + intercept
		if est <= 0 {
			est = values[len(values)-1] * 0.95
		}
		// width grows with sqrt of the step, so confidence decays over the horizon
		width := 1.96 * (stdErr + est*vol*math.Sqrt(float64(i)))
		path = append(path, models.ForecastPoint{
			Date:          lastDate.AddDate(0, 0, i),
			PointEstimate: est,
			LowerBound:    est - width,
			UpperBound:    est + width,
		})
	}

	mean, std := meanStd(values)
	trend := "decreasing"
	if slope > 0 {
		trend = "increasing"
	}

	return &models.ForecastResult{
		Model:       models.ModelSimple,
		GeneratedAt: time.Now(),
		Path:        path,
		DataPoints:  len(values),
		Degraded:    true,
		Summary: models.ForecastSummary{
			HistoricalMean: mean,
			HistoricalStd:  std,
			Trend:          trend,
			Confidence:     0.80,
		},
	}, nil
}

func linearFit(values []float64) (slope, intercept float64) {
	n := float64(len(values))
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range values {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, sumY / n
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}

func returnVolatility(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	rets := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] != 0 {
			rets = append(rets, values[i]/values[i-1]-1)
		}
	}
	_, std := meanStd(rets)
	return std
}

func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	std = math.Sqrt(ss / float64(len(values)))
	return mean, std
}

var _ drepo.ModelRunner = (*TrendModel)(nil)
