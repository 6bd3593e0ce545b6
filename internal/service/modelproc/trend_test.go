package modelproc

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
)

func series(n int, start float64, step float64) []models.HistoryPoint {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.HistoryPoint, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.HistoryPoint{
			Date:  base.AddDate(0, 0, i),
			Value: start + step*float64(i),
		})
	}
	return out
}

func TestTrendModelUpwardSeries(t *testing.T) {
	m := NewTrendModel()
	res, err := m.Run(context.Background(), series(100, 100, 1), 7, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Model != models.ModelSimple || !res.Degraded {
		t.Fatalf("expected degraded simple model result, got %+v", res)
	}
	if len(res.Path) != 7 {
		t.Fatalf("expected 7 path points, got %d", len(res.Path))
	}
	if res.Summary.Trend != "increasing" {
		t.Fatalf("expected increasing trend, got %s", res.Summary.Trend)
	}
	// a clean linear series should project past the last value
	if res.Path[0].PointEstimate < 199 {
		t.Fatalf("expected projection above last value, got %v", res.Path[0].PointEstimate)
	}
}

func TestTrendModelConfidenceDecays(t *testing.T) {
	m := NewTrendModel()
	pts := series(60, 100, 0)
	for i := range pts {
		// add alternating noise so volatility is non-zero
		if i%2 == 0 {
			pts[i].Value += 2
		}
	}
	res, err := m.Run(context.Background(), pts, 14, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := res.Path[0].UpperBound - res.Path[0].LowerBound
	last := res.Path[len(res.Path)-1].UpperBound - res.Path[len(res.Path)-1].LowerBound
	if !(last > first) {
		t.Fatalf("interval width should grow with horizon: first=%v last=%v", first, last)
	}
}

func TestTrendModelRejectsDegenerateSeries(t *testing.T) {
	m := NewTrendModel()
	_, err := m.Run(context.Background(), []models.HistoryPoint{{Value: 10}}, 7, nil)
	if !errors.Is(err, models.ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestTrendModelIgnoresInvalidPoints(t *testing.T) {
	m := NewTrendModel()
	pts := series(60, 100, 1)
	pts[10].Value = -5
	pts[20].Value = math.NaN()
	res, err := m.Run(context.Background(), pts, 3, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.DataPoints != 58 {
		t.Fatalf("expected 58 valid points, got %d", res.DataPoints)
	}
}

func TestDecodePathRejectsBadDates(t *testing.T) {
	if _, ok := decodePath([]wireForecastPoint{{DS: "not-a-date"}}); ok {
		t.Fatalf("expected decode failure")
	}
}
