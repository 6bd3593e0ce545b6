package usecase

import (
	"math"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
)

func series(values ...float64) []models.HistoryPoint {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.HistoryPoint, 0, len(values))
	for i, v := range values {
		out = append(out, models.HistoryPoint{Date: base.AddDate(0, 0, i), Value: v})
	}
	return out
}

func TestSentimentInsufficientDataIsDegradedNeutral(t *testing.T) {
	cases := [][]models.HistoryPoint{
		nil,
		series(),
		series(100, 101, 102, 103),
		{{Value: math.NaN()}, {Value: -5}, {Value: 0}, {Value: 100}, {Value: 101}, {Value: 102}},
	}
	for i, s := range cases {
		got := ComputeSentiment("AAPL", s)
		if !got.Degraded {
			t.Fatalf("case %d: expected degraded score", i)
		}
		if got.Score != 50 || got.Label != models.SentimentNeutral {
			t.Fatalf("case %d: expected neutral 50, got %.2f %s", i, got.Score, got.Label)
		}
	}
}

func TestSentimentScoreAlwaysClamped(t *testing.T) {
	cases := [][]models.HistoryPoint{
		series(1, 2, 4, 8, 16, 32, 64, 128),       // explosive rally
		series(128, 64, 32, 16, 8, 4, 2, 1),       // collapse
		series(100, 100, 100, 100, 100, 100, 100), // flat
		series(100, 1, 100, 1, 100, 1, 100, 1),    // pathological whipsaw
		series(1e-9, 2e-9, 1e-9, 3e-9, 2e-9),      // near-zero prices
	}
	for i, s := range cases {
		got := ComputeSentiment("X", s)
		if got.Score < 0 || got.Score > 100 {
			t.Fatalf("case %d: score %.4f outside [0,100]", i, got.Score)
		}
		if math.IsNaN(got.Score) {
			t.Fatalf("case %d: score is NaN", i)
		}
	}
}

func TestSentimentLabels(t *testing.T) {
	bull := ComputeSentiment("UP", series(100, 105, 110, 116, 122, 128, 135))
	if bull.Label != models.SentimentBullish {
		t.Fatalf("sustained rally should be bullish, got %s (%.2f)", bull.Label, bull.Score)
	}
	if bull.Score < 70 {
		t.Fatalf("bullish label requires score >= 70, got %.2f", bull.Score)
	}

	bear := ComputeSentiment("DOWN", series(135, 128, 122, 116, 110, 105, 100))
	if bear.Label != models.SentimentBearish {
		t.Fatalf("sustained decline should be bearish, got %s (%.2f)", bear.Label, bear.Score)
	}
	if bear.Score > 30 {
		t.Fatalf("bearish label requires score <= 30, got %.2f", bear.Score)
	}

	flat := ComputeSentiment("FLAT", series(100, 100.1, 99.9, 100, 100.05, 99.95, 100))
	if flat.Label != models.SentimentNeutral {
		t.Fatalf("flat series should be neutral, got %s (%.2f)", flat.Label, flat.Score)
	}
	if flat.Degraded {
		t.Fatalf("flat series with enough points must not be degraded")
	}
}

func TestSentimentVolatilityPullsTowardNeutral(t *testing.T) {
	calm := ComputeSentiment("CALM", series(100, 102, 104, 106, 108, 110))
	choppy := ComputeSentiment("CHOP", series(100, 96, 106, 99, 112, 110))
	if choppy.Score >= calm.Score {
		t.Fatalf("same net move with higher volatility must score lower: calm=%.2f choppy=%.2f", calm.Score, choppy.Score)
	}
}

func TestSentimentVolumeTrendAmplifiesMomentum(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	prices := []float64{100, 102, 104, 106, 108, 110, 112, 114}

	flatVol := make([]models.HistoryPoint, len(prices))
	risingVol := make([]models.HistoryPoint, len(prices))
	for i, p := range prices {
		d := base.AddDate(0, 0, i)
		flatVol[i] = models.HistoryPoint{Date: d, Value: p, Volume: 1000}
		risingVol[i] = models.HistoryPoint{Date: d, Value: p, Volume: 1000 * float64(i+1)}
	}

	plain := ComputeSentiment("FLAT-VOL", flatVol)
	amplified := ComputeSentiment("RISING-VOL", risingVol)
	if amplified.Score <= plain.Score && plain.Score < 100 {
		t.Fatalf("rising volume behind an uptrend should raise the score: %.2f vs %.2f", plain.Score, amplified.Score)
	}
	if amplified.Components.VolumeTrend <= 0 {
		t.Fatalf("expected positive volume trend, got %.4f", amplified.Components.VolumeTrend)
	}
}
