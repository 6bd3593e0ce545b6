package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
)

// batchSink is implemented by sinks that can flush many ticks in one call.
type batchSink interface {
	PublishBatch(ctx context.Context, ticks []*models.Tick) error
}

// TickPipeline sits between the stream managers and the tick sink.
// It validates, throttles per symbol, and buffers when the downstream is
// unavailable, flushing in the background with backoff.
type TickPipeline struct {
	sink    domrepo.TickSink
	metrics domrepo.Metrics
	maxRPS  int
	bufSize int
	bufCh   chan *models.Tick
	stopCh  chan struct{}
	started bool

	mu       sync.Mutex
	lastSeen map[string]time.Time // per-symbol last accepted time
}

type PipelineOption func(*TickPipeline)

// WithMaxRPS sets the max accepted ticks per second per symbol.
func WithMaxRPS(n int) PipelineOption {
	return func(p *TickPipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the retry buffer size used when downstream fails.
func WithBufferSize(n int) PipelineOption {
	return func(p *TickPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// NewTickPipeline creates a pipeline in front of sink.
func NewTickPipeline(sink domrepo.TickSink, metrics domrepo.Metrics, opts ...PipelineOption) *TickPipeline {
	p := &TickPipeline{
		sink:     sink,
		metrics:  metrics,
		maxRPS:   20,
		bufSize:  1000,
		stopCh:   make(chan struct{}),
		lastSeen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.Tick, p.bufSize)
	return p
}

// Start launches background flushing of buffered ticks.
func (p *TickPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.flushLoop(ctx)
}

func (p *TickPipeline) flushLoop(ctx context.Context) {
	backoff := 50 * time.Millisecond
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case t := <-p.bufCh:
			if t == nil {
				continue
			}
			// drain whatever else is queued into one batch flush
			batch := append([]*models.Tick{t}, p.drain()...)
			if err := p.publishBatch(ctx, batch); err != nil {
				if backoff < 2*time.Second {
					backoff *= 2
				}
				p.metrics.RecordError("pipeline_flush")
				time.Sleep(backoff)
				// requeue what fits; drop the rest
				for _, b := range batch {
					select {
					case p.bufCh <- b:
					default:
						p.metrics.RecordError("pipeline_buffer_drop")
					}
				}
			} else {
				backoff = 50 * time.Millisecond
			}
		}
	}
}

func (p *TickPipeline) drain() []*models.Tick {
	var out []*models.Tick
	for {
		select {
		case t := <-p.bufCh:
			out = append(out, t)
		default:
			return out
		}
	}
}

func (p *TickPipeline) publishBatch(ctx context.Context, batch []*models.Tick) error {
	if bs, ok := p.sink.(batchSink); ok {
		return bs.PublishBatch(ctx, batch)
	}
	for _, t := range batch {
		if err := p.sink.Publish(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// Publish validates, throttles, and forwards one tick, buffering on
// downstream errors. Implements domrepo.TickSink.
func (p *TickPipeline) Publish(ctx context.Context, t *models.Tick) error {
	start := time.Now()
	if err := validateTick(t); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if !p.allow(t.Symbol, start) {
		// throttled, dropped silently
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	if err := p.sink.Publish(ctx, t); err != nil {
		p.metrics.RecordError("pipeline_publish")
		select {
		case p.bufCh <- t:
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_publish", time.Since(start).Seconds())
	return nil
}

// Close stops the flush loop and closes the downstream sink.
func (p *TickPipeline) Close() error {
	p.mu.Lock()
	if p.started {
		p.started = false
		close(p.stopCh)
	}
	p.mu.Unlock()
	return p.sink.Close()
}

func validateTick(t *models.Tick) error {
	if t == nil {
		return fmt.Errorf("tick nil")
	}
	if t.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if t.Timestamp.IsZero() {
		return fmt.Errorf("timestamp invalid")
	}
	if t.Price < 0 || t.Volume < 0 {
		return fmt.Errorf("negative price/volume")
	}
	return nil
}

func (p *TickPipeline) allow(symbol string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	last := p.lastSeen[symbol]
	if last.IsZero() || now.Sub(last) >= time.Second/time.Duration(p.maxRPS) {
		p.lastSeen[symbol] = now
		return true
	}
	return false
}
