package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	internalrepo "MarketPulse/internal/repository"
)

// Every production sink must expose the batch path or the flush loop silently
// degrades to per-tick publishes.
var (
	_ batchSink = (*internalrepo.CHTickStore)(nil)
	_ batchSink = (*internalrepo.KafkaTickSink)(nil)
	_ batchSink = (*internalrepo.MultiSink)(nil)
)

type fakeSink struct {
	mu        sync.Mutex
	published []*models.Tick
	batches   int
	fail      bool
	closed    bool
}

func (f *fakeSink) Publish(_ context.Context, t *models.Tick) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("downstream down")
	}
	f.published = append(f.published, t)
	return nil
}

func (f *fakeSink) PublishBatch(_ context.Context, ticks []*models.Tick) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("downstream down")
	}
	f.batches++
	f.published = append(f.published, ticks...)
	return nil
}

func (f *fakeSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func (f *fakeSink) setFail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = v
}

type nopMetrics struct{}

func (nopMetrics) RecordTick(string, string)               {}
func (nopMetrics) RecordError(string)                      {}
func (nopMetrics) RecordLastPrice(string, string, float64) {}
func (nopMetrics) RecordLatency(string, float64)           {}
func (nopMetrics) RecordReconnect(string)                  {}
func (nopMetrics) RecordModelRun(string, string, float64)  {}

func tick(symbol string) *models.Tick {
	return &models.Tick{
		Source:    models.SourceCrypto,
		Symbol:    symbol,
		Price:     100,
		Volume:    1,
		Timestamp: time.Now(),
	}
}

func TestPipelineRejectsInvalidTicks(t *testing.T) {
	sink := &fakeSink{}
	p := NewTickPipeline(sink, nopMetrics{})

	cases := []*models.Tick{
		nil,
		{Source: models.SourceCrypto, Price: 1, Timestamp: time.Now()},
		{Source: models.SourceCrypto, Symbol: "BTCUSDT", Price: 1},
		{Source: models.SourceCrypto, Symbol: "BTCUSDT", Price: -1, Timestamp: time.Now()},
	}
	for i, c := range cases {
		if err := p.Publish(context.Background(), c); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
	if sink.count() != 0 {
		t.Fatalf("invalid ticks reached sink: %d", sink.count())
	}
}

func TestPipelineThrottlesPerSymbol(t *testing.T) {
	sink := &fakeSink{}
	p := NewTickPipeline(sink, nopMetrics{}, WithMaxRPS(1))

	if err := p.Publish(context.Background(), tick("BTCUSDT")); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	// second tick for the same symbol inside the window is dropped, not an error
	if err := p.Publish(context.Background(), tick("BTCUSDT")); err != nil {
		t.Fatalf("throttled publish should not error: %v", err)
	}
	// a different symbol has its own window
	if err := p.Publish(context.Background(), tick("ETHUSDT")); err != nil {
		t.Fatalf("other symbol publish: %v", err)
	}
	if got := sink.count(); got != 2 {
		t.Fatalf("expected 2 delivered, got %d", got)
	}
}

func TestPipelineBuffersAndFlushesAfterRecovery(t *testing.T) {
	sink := &fakeSink{fail: true}
	p := NewTickPipeline(sink, nopMetrics{}, WithBufferSize(8))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	if err := p.Publish(ctx, tick("BTCUSDT")); err == nil {
		t.Fatalf("expected downstream error")
	}
	if err := p.Publish(ctx, tick("ETHUSDT")); err == nil {
		t.Fatalf("expected downstream error")
	}

	sink.setFail(false)

	deadline := time.Now().Add(2 * time.Second)
	for sink.count() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("buffered ticks never flushed, delivered %d", sink.count())
		}
		time.Sleep(10 * time.Millisecond)
	}

	sink.mu.Lock()
	batches := sink.batches
	sink.mu.Unlock()
	if batches == 0 {
		t.Fatalf("expected batch flush path to be used")
	}
}

func TestPipelineCloseClosesDownstream(t *testing.T) {
	sink := &fakeSink{}
	p := NewTickPipeline(sink, nopMetrics{})
	p.Start(context.Background())

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	sink.mu.Lock()
	closed := sink.closed
	sink.mu.Unlock()
	if !closed {
		t.Fatalf("downstream not closed")
	}
}
