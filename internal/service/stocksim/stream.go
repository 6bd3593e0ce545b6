package stocksim

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
)

// Stream is a simulated equity MarketStream: a seeded random walk per
// subscribed symbol. Every tick is flagged Simulated so consumers can never
// mistake it for live exchange data.
type Stream struct {
	interval time.Duration

	mu        sync.Mutex
	connected bool
	rng       *rand.Rand
	state     map[string]*walk
}

type walk struct {
	price  float64
	open   float64
	high   float64
	low    float64
	volume float64
}

var basePrices = map[string]float64{
	"AAPL": 190, "MSFT": 420, "GOOGL": 165, "AMZN": 185, "TSLA": 250,
}

// New creates a simulated stream. A fixed seed gives reproducible walks in
// tests; pass 0 to seed from the clock.
func New(interval time.Duration, seed int64) drepo.MarketStream {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Stream{
		interval: interval,
		rng:      rand.New(rand.NewSource(seed)),
		state:    make(map[string]*walk),
	}
}

func (s *Stream) Connect(context.Context) error {
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	return nil
}

func (s *Stream) Subscribe(_ context.Context, symbols []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sym := range symbols {
		if _, ok := s.state[sym]; ok {
			continue
		}
		base, ok := basePrices[sym]
		if !ok {
			base = 50 + s.rng.Float64()*200
		}
		s.state[sym] = &walk{price: base, open: base, high: base, low: base}
	}
	return nil
}

func (s *Stream) Unsubscribe(_ context.Context, symbols []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sym := range symbols {
		delete(s.state, sym)
	}
	return nil
}

func (s *Stream) Read(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	ticks := make(chan *models.Tick, 256)
	errs := make(chan error, 1)

	go func() {
		defer close(ticks)
		defer close(errs)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				for _, t := range s.step(now) {
					select {
					case ticks <- t:
					default:
					}
				}
			}
		}
	}()

	return ticks, errs
}

func (s *Stream) step(now time.Time) []*models.Tick {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil
	}
	out := make([]*models.Tick, 0, len(s.state))
	for sym, w := range s.state {
		// bounded drift, ±0.5% per step
		w.price *= 1 + (s.rng.Float64()-0.5)*0.01
		if w.price > w.high {
			w.high = w.price
		}
		if w.price < w.low {
			w.low = w.price
		}
		w.volume += float64(s.rng.Intn(1000))

		change := w.price - w.open
		out = append(out, &models.Tick{
			Source:        models.SourceEquity,
			Symbol:        sym,
			Price:         w.price,
			Change:        change,
			ChangePercent: change / w.open * 100,
			Volume:        w.volume,
			High:          w.high,
			Low:           w.low,
			Timestamp:     now,
			Simulated:     true,
		})
	}
	return out
}

func (s *Stream) Close() error {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	return nil
}

func (s *Stream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}
