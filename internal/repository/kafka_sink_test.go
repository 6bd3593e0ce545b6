package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
)

type recordingSink struct {
	mu        sync.Mutex
	published []*models.Tick
	batches   int
}

func (r *recordingSink) Publish(_ context.Context, t *models.Tick) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, t)
	return nil
}

func (r *recordingSink) Close() error { return nil }

func (r *recordingSink) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.published), r.batches
}

// batchRecordingSink also implements the batch path.
type batchRecordingSink struct {
	recordingSink
}

func (r *batchRecordingSink) PublishBatch(_ context.Context, ticks []*models.Tick) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches++
	r.published = append(r.published, ticks...)
	return nil
}

func TestMultiSinkPublishBatchFansOut(t *testing.T) {
	batch := &batchRecordingSink{}
	plain := &recordingSink{}
	m := NewMultiSink(batch, plain)

	ticks := []*models.Tick{
		{Source: models.SourceCrypto, Symbol: "BTCUSDT", Price: 1, Timestamp: time.Now()},
		{Source: models.SourceCrypto, Symbol: "ETHUSDT", Price: 2, Timestamp: time.Now()},
	}
	if err := m.PublishBatch(context.Background(), ticks); err != nil {
		t.Fatalf("publish batch: %v", err)
	}

	if n, b := batch.counts(); n != 2 || b != 1 {
		t.Fatalf("batch-capable sink: got %d ticks in %d batches, want 2 in 1", n, b)
	}
	// a sink without a batch path still sees every tick
	if n, _ := plain.counts(); n != 2 {
		t.Fatalf("plain sink: got %d ticks, want 2", n)
	}
}
