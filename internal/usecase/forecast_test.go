package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	pkgcache "MarketPulse/pkg/cache"
)

type fakeMetrics struct{}

func (fakeMetrics) RecordTick(string, string)               {}
func (fakeMetrics) RecordError(string)                      {}
func (fakeMetrics) RecordLastPrice(string, string, float64) {}
func (fakeMetrics) RecordLatency(string, float64)           {}
func (fakeMetrics) RecordReconnect(string)                  {}
func (fakeMetrics) RecordModelRun(string, string, float64)  {}

type fakeHistory struct {
	points int

	mu       sync.Mutex
	lastDays int
}

func (f *fakeHistory) History(_ context.Context, _ string, days int) ([]models.HistoryPoint, error) {
	f.mu.Lock()
	f.lastDays = days
	f.mu.Unlock()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.HistoryPoint, 0, f.points)
	for i := 0; i < f.points; i++ {
		out = append(out, models.HistoryPoint{Date: base.AddDate(0, 0, i), Value: 100 + float64(i)})
	}
	return out, nil
}

func (f *fakeHistory) requestedDays() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastDays
}

type fakeRunner struct {
	name  models.Model
	fail  bool
	delay time.Duration

	mu    sync.Mutex
	calls int
	log   *[]models.Model
	logMu *sync.Mutex
}

func (f *fakeRunner) Name() models.Model { return f.name }

func (f *fakeRunner) Run(ctx context.Context, series []models.HistoryPoint, horizon int, _ map[string]any) (*models.ForecastResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.log != nil {
		f.logMu.Lock()
		*f.log = append(*f.log, f.name)
		f.logMu.Unlock()
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: cancelled", models.ErrModelUnavailable)
		}
	}
	if f.fail {
		return nil, fmt.Errorf("%w: %s down", models.ErrModelUnavailable, f.name)
	}
	degraded := f.name == models.ModelSimple
	return &models.ForecastResult{
		Model:       f.name,
		GeneratedAt: time.Now(),
		Path:        []models.ForecastPoint{{PointEstimate: 1}},
		DataPoints:  len(series),
		Degraded:    degraded,
	}, nil
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newDispatcher(t *testing.T, hist *fakeHistory, runners ...*fakeRunner) (*ForecastDispatcher, pkgcache.Service) {
	t.Helper()
	mem := pkgcache.NewMemoryCache()
	t.Cleanup(func() { _ = mem.Close() })

	rs := make([]drepo.ModelRunner, 0, len(runners))
	for _, r := range runners {
		rs = append(rs, r)
	}
	return NewForecastDispatcher(
		map[models.AssetClass]drepo.HistoryProvider{models.AssetCrypto: hist},
		rs,
		mem,
		5*time.Minute,
		0,
		fakeMetrics{},
		nil,
	), mem
}

func req(pref models.Model) models.ForecastRequest {
	return models.ForecastRequest{
		Symbol:          "BTCUSDT",
		AssetClass:      models.AssetCrypto,
		HorizonDays:     7,
		ModelPreference: pref,
	}
}

func TestHistoryWindowHonorsConfiguredFloor(t *testing.T) {
	hist := &fakeHistory{points: 120}
	primary := &fakeRunner{name: models.ModelPrimary}
	mem := pkgcache.NewMemoryCache()
	t.Cleanup(func() { _ = mem.Close() })
	d := NewForecastDispatcher(
		map[models.AssetClass]drepo.HistoryProvider{models.AssetCrypto: hist},
		[]drepo.ModelRunner{primary},
		mem,
		5*time.Minute,
		90,
		fakeMetrics{},
		nil,
	)

	// horizon*3 below the floor: the floor wins
	if _, err := d.Request(context.Background(), req(models.ModelPrimary)); err != nil {
		t.Fatalf("request: %v", err)
	}
	if got := hist.requestedDays(); got != 90 {
		t.Fatalf("expected 90 days requested, got %d", got)
	}

	// horizon*3 above the floor: the horizon wins
	r := req(models.ModelPrimary)
	r.HorizonDays = 40
	if _, err := d.Request(context.Background(), r); err != nil {
		t.Fatalf("request: %v", err)
	}
	if got := hist.requestedDays(); got != 120 {
		t.Fatalf("expected 120 days requested, got %d", got)
	}
}

func TestInsufficientDataFailsFast(t *testing.T) {
	primary := &fakeRunner{name: models.ModelPrimary}
	d, _ := newDispatcher(t, &fakeHistory{points: 40}, primary)

	_, err := d.Request(context.Background(), req(models.ModelPrimary))
	if !errors.Is(err, models.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
	if primary.callCount() != 0 {
		t.Fatalf("no model must run on insufficient data, got %d calls", primary.callCount())
	}
	if models.Retryable(err) {
		t.Fatalf("insufficient data is structural, not retryable")
	}
}

func TestFallbackChainStrictOrder(t *testing.T) {
	var order []models.Model
	var mu sync.Mutex
	primary := &fakeRunner{name: models.ModelPrimary, fail: true, log: &order, logMu: &mu}
	secondary := &fakeRunner{name: models.ModelSecondary, fail: true, log: &order, logMu: &mu}
	simple := &fakeRunner{name: models.ModelSimple, log: &order, logMu: &mu}
	d, _ := newDispatcher(t, &fakeHistory{points: 120}, primary, secondary, simple)

	res, err := d.Request(context.Background(), req(models.ModelPrimary))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Model != models.ModelSimple || !res.Degraded {
		t.Fatalf("expected degraded simple result, got %+v", res)
	}

	want := []models.Model{models.ModelPrimary, models.ModelSecondary, models.ModelSimple}
	if len(order) != len(want) {
		t.Fatalf("expected %v attempts, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("attempt %d: expected %s, got %s", i, want[i], order[i])
		}
	}
}

func TestSecondaryPreferenceNeverTriesSimpleFirst(t *testing.T) {
	var order []models.Model
	var mu sync.Mutex
	primary := &fakeRunner{name: models.ModelPrimary, log: &order, logMu: &mu}
	secondary := &fakeRunner{name: models.ModelSecondary, log: &order, logMu: &mu}
	simple := &fakeRunner{name: models.ModelSimple, log: &order, logMu: &mu}
	d, _ := newDispatcher(t, &fakeHistory{points: 120}, primary, secondary, simple)

	res, err := d.Request(context.Background(), req(models.ModelSecondary))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Model != models.ModelSecondary {
		t.Fatalf("expected secondary model, got %s", res.Model)
	}
	if len(order) != 1 || order[0] != models.ModelSecondary {
		t.Fatalf("expected a single secondary attempt, got %v", order)
	}
}

func TestConcurrentRequestsShareOneComputation(t *testing.T) {
	secondary := &fakeRunner{name: models.ModelSecondary, delay: 100 * time.Millisecond}
	d, _ := newDispatcher(t, &fakeHistory{points: 120}, secondary)

	var wg sync.WaitGroup
	results := make([]*models.ForecastResult, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := d.Request(context.Background(), req(models.ModelSecondary))
			if err != nil {
				t.Errorf("request %d: %v", i, err)
				return
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	if secondary.callCount() != 1 {
		t.Fatalf("expected exactly one model invocation, got %d", secondary.callCount())
	}
	if results[0] == nil || results[1] == nil {
		t.Fatalf("missing results")
	}
	if !results[0].GeneratedAt.Equal(results[1].GeneratedAt) {
		t.Fatalf("waiters must share one result: %v vs %v", results[0].GeneratedAt, results[1].GeneratedAt)
	}
}

func TestResultCacheServesRepeatRequests(t *testing.T) {
	primary := &fakeRunner{name: models.ModelPrimary}
	d, _ := newDispatcher(t, &fakeHistory{points: 120}, primary)

	if _, err := d.Request(context.Background(), req(models.ModelPrimary)); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if _, err := d.Request(context.Background(), req(models.ModelPrimary)); err != nil {
		t.Fatalf("second request: %v", err)
	}
	if primary.callCount() != 1 {
		t.Fatalf("second request should hit the cache, got %d invocations", primary.callCount())
	}
}

func TestAllModelsFailed(t *testing.T) {
	primary := &fakeRunner{name: models.ModelPrimary, fail: true}
	secondary := &fakeRunner{name: models.ModelSecondary, fail: true}
	simple := &fakeRunner{name: models.ModelSimple, fail: true}
	d, _ := newDispatcher(t, &fakeHistory{points: 120}, primary, secondary, simple)

	_, err := d.Request(context.Background(), req(models.ModelPrimary))
	if !errors.Is(err, models.ErrAllModelsFailed) {
		t.Fatalf("expected ErrAllModelsFailed, got %v", err)
	}
	if !models.Retryable(err) {
		t.Fatalf("all-models-failed should be retryable")
	}
}

func TestCallerDeadlineDetachesComputation(t *testing.T) {
	primary := &fakeRunner{name: models.ModelPrimary, delay: 150 * time.Millisecond}
	d, _ := newDispatcher(t, &fakeHistory{points: 120}, primary)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := d.Request(ctx, req(models.ModelPrimary))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}

	// the computation keeps going and populates the cache for later readers
	deadline := time.Now().Add(2 * time.Second)
	for {
		if res, ok := d.cached(context.Background(), req(models.ModelPrimary).Key()); ok {
			if res.Model != models.ModelPrimary {
				t.Fatalf("unexpected cached model %s", res.Model)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("cache never populated after caller deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
