package stocksim

import (
	"context"
	"hash/fnv"
	"math/rand"
	"time"

	"MarketPulse/internal/domain/models"
)

// History is a synthetic equity HistoryProvider. It regenerates the same
// daily random walk for a symbol on every call, so forecasts and sentiment
// over simulated equities are stable across requests.
type History struct {
	seed int64
}

func NewHistory(seed int64) *History {
	if seed == 0 {
		seed = 1
	}
	return &History{seed: seed}
}

func (h *History) History(_ context.Context, symbol string, days int) ([]models.HistoryPoint, error) {
	if days <= 0 {
		days = 365
	}

	hs := fnv.New64a()
	_, _ = hs.Write([]byte(symbol))
	rng := rand.New(rand.NewSource(h.seed ^ int64(hs.Sum64())))

	price, ok := basePrices[symbol]
	if !ok {
		price = 50 + rng.Float64()*200
	}
	// walk backwards from the base so the series ends near today's price
	today := time.Now().UTC().Truncate(24 * time.Hour)
	out := make([]models.HistoryPoint, days)
	for i := days - 1; i >= 0; i-- {
		out[i] = models.HistoryPoint{
			Date:   today.AddDate(0, 0, i-days+1),
			Value:  price,
			Volume: 1e6 * (0.5 + rng.Float64()),
		}
		price /= 1 + (rng.Float64()-0.495)*0.02
	}
	return out, nil
}
