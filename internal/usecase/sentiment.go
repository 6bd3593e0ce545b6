package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
)

// Sentiment weighting. The composite is a heuristic: momentum pushes the
// score away from neutral, volatility pulls it back toward it, and a rising
// volume trend amplifies whatever direction momentum points.
const (
	sentimentBase         = 50.0
	sentimentMinPoints    = 5
	momentumWeight        = 2.0
	volatilityWeight      = 150.0
	volumeTrendWeight     = 10.0
	shortVolumeWindowFrac = 0.25
)

// SentimentAggregator reduces raw history to a composite 0-100 score with a
// label. Insufficient history yields an explicitly degraded neutral score,
// never a fabricated one.
type SentimentAggregator struct {
	histories map[models.AssetClass]drepo.HistoryProvider
	metrics   drepo.Metrics
}

func NewSentimentAggregator(histories map[models.AssetClass]drepo.HistoryProvider, metrics drepo.Metrics) *SentimentAggregator {
	return &SentimentAggregator{histories: histories, metrics: metrics}
}

// Score computes sentiment for a symbol over a trailing window of days.
func (a *SentimentAggregator) Score(ctx context.Context, symbol string, class models.AssetClass, windowDays int) (models.SentimentScore, error) {
	if windowDays <= 0 {
		windowDays = 30
	}

	provider, ok := a.histories[class]
	if !ok {
		return models.SentimentScore{}, fmt.Errorf("no history provider for asset class %q", class)
	}
	series, err := provider.History(ctx, symbol, windowDays)
	if err != nil {
		return models.SentimentScore{}, fmt.Errorf("history %s: %w", symbol, err)
	}

	return ComputeSentiment(symbol, series), nil
}

// ComputeSentiment is the pure scoring function over a daily series.
func ComputeSentiment(symbol string, series []models.HistoryPoint) models.SentimentScore {
	now := time.Now()
	valid := make([]models.HistoryPoint, 0, len(series))
	for _, p := range series {
		if p.Value > 0 && !math.IsNaN(p.Value) {
			valid = append(valid, p)
		}
	}

	if len(valid) < sentimentMinPoints {
		return models.SentimentScore{
			Symbol:     symbol,
			Score:      sentimentBase,
			Label:      models.SentimentNeutral,
			Degraded:   true,
			ComputedAt: now,
		}
	}

	first, last := valid[0].Value, valid[len(valid)-1].Value
	momentum := (last - first) / first * 100

	volatility := dailyReturnVolatility(valid)
	volumeTrend := volumeTrendRatio(valid)

	score := sentimentBase +
		momentum*momentumWeight +
		volumeTrend*volumeTrendWeight*sign(momentum) -
		volatility*volatilityWeight

	score = clamp(score, 0, 100)

	return models.SentimentScore{
		Symbol: symbol,
		Score:  score,
		Label:  labelFor(score),
		Components: models.SentimentComponents{
			Volatility:  volatility,
			Momentum:    momentum,
			VolumeTrend: volumeTrend,
		},
		ComputedAt: now,
	}
}

func labelFor(score float64) models.SentimentLabel {
	switch {
	case score >= 70:
		return models.SentimentBullish
	case score <= 30:
		return models.SentimentBearish
	default:
		return models.SentimentNeutral
	}
}

func dailyReturnVolatility(series []models.HistoryPoint) float64 {
	if len(series) < 2 {
		return 0
	}
	rets := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		rets = append(rets, series[i].Value/series[i-1].Value-1)
	}
	_, std := meanStdFloat(rets)
	return std
}

// volumeTrendRatio compares the recent short-window average volume against
// the full-window average. Zero when the provider reports no volume.
func volumeTrendRatio(series []models.HistoryPoint) float64 {
	var full float64
	n := 0
	for _, p := range series {
		if p.Volume > 0 {
			full += p.Volume
			n++
		}
	}
	if n == 0 {
		return 0
	}
	full /= float64(n)

	short := int(math.Ceil(float64(len(series)) * shortVolumeWindowFrac))
	var recent float64
	rn := 0
	for _, p := range series[len(series)-short:] {
		if p.Volume > 0 {
			recent += p.Volume
			rn++
		}
	}
	if rn == 0 || full == 0 {
		return 0
	}
	return recent/float64(rn)/full - 1
}

func meanStdFloat(values []float64) (mean, std float64) {
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
	return mean, math.Sqrt(ss / float64(len(values)))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
