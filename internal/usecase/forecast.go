package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	pkgcache "MarketPulse/pkg/cache"
	applogger "MarketPulse/pkg/logger"
)

const (
	// minValidPoints is the sufficiency floor: below this no model process
	// is ever spawned.
	minValidPoints = 50
	// defaultMinHistoryDays is the floor on how much history is requested
	// when the configuration does not set one.
	defaultMinHistoryDays = 365
)

// ForecastDispatcher produces forecasts with resilient model selection:
// request deduplication per key, a strictly sequential fallback chain, and a
// TTL result cache. A caller deadline detaches the caller; the computation
// continues and still populates the cache.
type ForecastDispatcher struct {
	histories  map[models.AssetClass]drepo.HistoryProvider
	runners    map[models.Model]drepo.ModelRunner
	cache      pkgcache.Service
	cacheTTL   time.Duration
	minHistory int
	metrics    drepo.Metrics
	l          *applogger.Logger

	mu      sync.Mutex
	pending map[string]*pendingForecast
}

// pendingForecast tracks one in-flight computation so concurrent identical
// requests share a single result. Removed on completion.
type pendingForecast struct {
	done chan struct{}
	res  *models.ForecastResult
	err  error
}

func NewForecastDispatcher(
	histories map[models.AssetClass]drepo.HistoryProvider,
	runners []drepo.ModelRunner,
	cache pkgcache.Service,
	cacheTTL time.Duration,
	minHistoryDays int,
	metrics drepo.Metrics,
	l *applogger.Logger,
) *ForecastDispatcher {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	if minHistoryDays <= 0 {
		minHistoryDays = defaultMinHistoryDays
	}
	rm := make(map[models.Model]drepo.ModelRunner, len(runners))
	for _, r := range runners {
		rm[r.Name()] = r
	}
	return &ForecastDispatcher{
		histories:  histories,
		runners:    rm,
		cache:      cache,
		cacheTTL:   cacheTTL,
		minHistory: minHistoryDays,
		metrics:    metrics,
		l:          l,
		pending:    make(map[string]*pendingForecast),
	}
}

// Request resolves a forecast request. Errors surfaced to callers are only
// the exhaustion conditions: ErrInsufficientData, ErrAllModelsFailed, or the
// caller's own context error.
func (d *ForecastDispatcher) Request(ctx context.Context, req models.ForecastRequest) (*models.ForecastResult, error) {
	if req.HorizonDays <= 0 {
		req.HorizonDays = 7
	}
	if req.ModelPreference == "" {
		req.ModelPreference = models.ModelPrimary
	}
	key := req.Key()

	if res, ok := d.cached(ctx, key); ok {
		d.metrics.RecordLatency("forecast_cache_hit", 0)
		return res, nil
	}

	days := req.HorizonDays * 3
	if days < d.minHistory {
		days = d.minHistory
	}
	provider, ok := d.histories[req.AssetClass]
	if !ok {
		return nil, fmt.Errorf("%w: no history provider for asset class %q", models.ErrInsufficientData, req.AssetClass)
	}
	series, err := provider.History(ctx, req.Symbol, days)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", req.Symbol, err)
	}
	series = validPoints(series)
	if len(series) < minValidPoints {
		return nil, fmt.Errorf("%w: %s has %d valid points, need %d",
			models.ErrInsufficientData, req.Symbol, len(series), minValidPoints)
	}

	// check-then-insert in one critical section: at most one pending
	// computation per key.
	d.mu.Lock()
	if p, exists := d.pending[key]; exists {
		d.mu.Unlock()
		return d.await(ctx, p)
	}
	p := &pendingForecast{done: make(chan struct{})}
	d.pending[key] = p
	d.mu.Unlock()

	// detached from the caller's deadline: the chain runs to completion and
	// populates the cache even if every waiter has given up
	go d.compute(p, key, req, series)

	return d.await(ctx, p)
}

func (d *ForecastDispatcher) await(ctx context.Context, p *pendingForecast) (*models.ForecastResult, error) {
	select {
	case <-p.done:
		return p.res, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *ForecastDispatcher) compute(p *pendingForecast, key string, req models.ForecastRequest, series []models.HistoryPoint) {
	defer func() {
		d.mu.Lock()
		delete(d.pending, key)
		d.mu.Unlock()
		close(p.done)
	}()

	ctx := context.Background()
	for _, name := range models.FallbackChain(req.ModelPreference) {
		runner, ok := d.runners[name]
		if !ok {
			continue
		}
		start := time.Now()
		res, err := runner.Run(ctx, series, req.HorizonDays, nil)
		elapsed := time.Since(start).Seconds()
		if err != nil {
			d.metrics.RecordModelRun(string(name), "error", elapsed)
			if d.l != nil {
				d.l.Warn("model attempt failed",
					applogger.String("model", string(name)),
					applogger.String("symbol", req.Symbol),
					applogger.Error(err))
			}
			continue
		}
		d.metrics.RecordModelRun(string(name), "ok", elapsed)

		res.Symbol = req.Symbol
		res.Model = name
		d.store(ctx, key, res)
		p.res = res
		return
	}

	// every model failed; a previously cached result still within TTL is
	// better than nothing
	if res, ok := d.cached(ctx, key); ok {
		d.metrics.RecordError("forecast_served_stale")
		p.res = res
		return
	}
	d.metrics.RecordError("forecast_all_models_failed")
	p.err = fmt.Errorf("%w: %s", models.ErrAllModelsFailed, req.Symbol)
}

func (d *ForecastDispatcher) cached(ctx context.Context, key string) (*models.ForecastResult, bool) {
	if d.cache == nil {
		return nil, false
	}
	var raw string
	if err := d.cache.Get(ctx, forecastCacheKey(key), &raw); err != nil {
		return nil, false
	}
	var res models.ForecastResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return nil, false
	}
	return &res, true
}

func (d *ForecastDispatcher) store(ctx context.Context, key string, res *models.ForecastResult) {
	if d.cache == nil {
		return
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := d.cache.Set(ctx, forecastCacheKey(key), string(raw), d.cacheTTL); err != nil {
		d.metrics.RecordError("forecast_cache_set")
	}
}

func forecastCacheKey(key string) string { return pkgcache.GenerateKey("forecast", key) }

func validPoints(series []models.HistoryPoint) []models.HistoryPoint {
	out := make([]models.HistoryPoint, 0, len(series))
	for _, p := range series {
		if p.Value > 0 && !math.IsNaN(p.Value) {
			out = append(out, p)
		}
	}
	return out
}
