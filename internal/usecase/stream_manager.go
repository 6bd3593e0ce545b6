package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	"MarketPulse/internal/service/broadcast"
	"MarketPulse/internal/service/subscriptions"
	"MarketPulse/internal/service/tickcache"
	applogger "MarketPulse/pkg/logger"
)

// SeedFunc optionally fetches an initial snapshot tick for a symbol right
// after subscribing, so the cache is warm before the stream delivers.
type SeedFunc func(ctx context.Context, symbol string) (*models.Tick, error)

// StreamManagerOption configures a StreamManager.
type StreamManagerOption func(*StreamManager)

func WithReconnect(delay time.Duration, maxAttempts int) StreamManagerOption {
	return func(m *StreamManager) {
		if delay > 0 {
			m.reconnectDelay = delay
		}
		if maxAttempts > 0 {
			m.maxAttempts = maxAttempts
		}
	}
}

// WithMaxRuntime bounds how long one connection may live before a planned
// restart, to bound resource/connection drift. Planned restarts do not count
// against the reconnect attempt cap.
func WithMaxRuntime(d time.Duration) StreamManagerOption {
	return func(m *StreamManager) {
		if d > 0 {
			m.maxRuntime = d
		}
	}
}

func WithSeed(fn SeedFunc) StreamManagerOption {
	return func(m *StreamManager) { m.seed = fn }
}

func WithSink(sink drepo.TickSink) StreamManagerOption {
	return func(m *StreamManager) { m.sink = sink }
}

// StreamManager owns the lifecycle of one source's stream: connect,
// subscribe, normalize-and-cache, reconnect with a fixed delay up to an
// attempt cap, then stop until an explicit restart. At most one manager
// exists per source.
type StreamManager struct {
	source   models.Source
	stream   drepo.MarketStream
	cache    *tickcache.Cache
	registry *subscriptions.Registry
	broker   *broadcast.Broker
	sink     drepo.TickSink
	metrics  drepo.Metrics
	l        *applogger.Logger

	reconnectDelay time.Duration
	maxAttempts    int
	maxRuntime     time.Duration
	seed           SeedFunc

	mu      sync.Mutex
	state   models.ConnectionState
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

func NewStreamManager(
	source models.Source,
	stream drepo.MarketStream,
	cache *tickcache.Cache,
	registry *subscriptions.Registry,
	broker *broadcast.Broker,
	metrics drepo.Metrics,
	l *applogger.Logger,
	opts ...StreamManagerOption,
) *StreamManager {
	m := &StreamManager{
		source:         source,
		stream:         stream,
		cache:          cache,
		registry:       registry,
		broker:         broker,
		metrics:        metrics,
		l:              l,
		reconnectDelay: 3 * time.Second,
		maxAttempts:    5,
		maxRuntime:     6 * time.Hour,
		state:          models.ConnectionState{Source: source, Phase: models.PhaseDisconnected},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins streaming for the given symbols. Idempotent: symbols already
// tracked are no-ops, and a running manager just absorbs the new symbols
// through the registry watcher.
func (m *StreamManager) Start(ctx context.Context, symbols []string) error {
	for _, s := range symbols {
		m.registry.Add(m.source, s)
	}

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true
	m.state.Phase = models.PhaseConnecting
	m.state.ReconnectAttempts = 0
	m.state.StartedAt = time.Now()
	m.state.LastError = ""
	done := m.done
	m.mu.Unlock()

	go func() {
		defer close(done)
		m.run(runCtx)
	}()
	return nil
}

// Stop releases the connection and clears this source's registry entries.
func (m *StreamManager) Stop() error {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.running = false
	m.state.Phase = models.PhaseStopped
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	err := m.stream.Close()
	if done != nil {
		<-done
	}
	m.registry.Clear(m.source)
	return err
}

// Restart stops the stream if needed and starts over with the currently
// registered symbols, resetting the reconnect counter.
func (m *StreamManager) Restart(ctx context.Context) error {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.running = false
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	_ = m.stream.Close()
	if done != nil {
		<-done
	}
	return m.Start(ctx, m.registry.List(m.source))
}

// Status returns a snapshot of the connection state.
func (m *StreamManager) Status() models.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Source returns the source this manager owns.
func (m *StreamManager) Source() models.Source { return m.source }

func (m *StreamManager) run(ctx context.Context) {
	changes, unwatch := m.registry.Watch()
	defer unwatch()

	for {
		if ctx.Err() != nil {
			m.exit()
			return
		}

		m.setPhase(models.PhaseConnecting, "")
		if err := m.stream.Connect(ctx); err != nil {
			if !m.backoff(ctx, err) {
				return
			}
			continue
		}

		symbols := m.registry.List(m.source)
		if err := m.stream.Subscribe(ctx, symbols); err != nil {
			_ = m.stream.Close()
			if !m.backoff(ctx, err) {
				return
			}
			continue
		}
		m.seedSymbols(ctx, symbols)

		m.mu.Lock()
		m.state.Phase = models.PhaseConnected
		m.state.ReconnectAttempts = 0
		m.state.LastError = ""
		m.mu.Unlock()
		if m.l != nil {
			m.l.Info("source connected",
				applogger.String("source", string(m.source)),
				applogger.Strings("symbols", symbols))
		}

		err := m.consume(ctx, changes)
		_ = m.stream.Close()
		switch {
		case ctx.Err() != nil:
			m.exit()
			return
		case err == nil:
			// planned restart after the runtime window; not a failure
			if m.l != nil {
				m.l.Info("planned restart", applogger.String("source", string(m.source)))
			}
		default:
			if !m.backoff(ctx, err) {
				return
			}
		}
	}
}

// consume pumps the stream until it fails (returned error), the runtime
// window elapses (nil), or ctx is done.
func (m *StreamManager) consume(ctx context.Context, changes <-chan subscriptions.Change) error {
	readCtx, cancelRead := context.WithCancel(ctx)
	defer cancelRead()
	ticks, errs := m.stream.Read(readCtx)

	var runtimeC <-chan time.Time
	if m.maxRuntime > 0 {
		timer := time.NewTimer(m.maxRuntime)
		defer timer.Stop()
		runtimeC = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-runtimeC:
			return nil

		case ch, ok := <-changes:
			if !ok {
				continue
			}
			if ch.Source != m.source {
				continue
			}
			if ch.Added {
				if err := m.stream.Subscribe(ctx, []string{ch.Symbol}); err != nil {
					return err
				}
				m.seedSymbols(ctx, []string{ch.Symbol})
			} else if err := m.stream.Unsubscribe(ctx, []string{ch.Symbol}); err != nil {
				return err
			}

		case err, ok := <-errs:
			if !ok {
				return errors.New("stream closed")
			}
			var malformed *models.MalformedMessageError
			if errors.As(err, &malformed) {
				// logged and dropped, never fatal
				m.metrics.RecordError("malformed_message")
				if m.l != nil {
					m.l.Warn("dropping malformed message",
						applogger.String("source", string(m.source)),
						applogger.String("reason", malformed.Reason))
				}
				continue
			}
			return err

		case t, ok := <-ticks:
			if !ok {
				return errors.New("stream closed")
			}
			if t == nil {
				continue
			}
			m.handleTick(ctx, t)
		}
	}
}

func (m *StreamManager) handleTick(ctx context.Context, t *models.Tick) {
	m.cache.Put(*t)
	if m.broker != nil {
		m.broker.Publish(*t)
	}
	if m.sink != nil {
		if err := m.sink.Publish(ctx, t); err != nil {
			m.metrics.RecordError("sink_publish")
		}
	}
	m.metrics.RecordTick(string(t.Source), t.Symbol)
	m.metrics.RecordLastPrice(string(t.Source), t.Symbol, t.Price)
}

func (m *StreamManager) seedSymbols(ctx context.Context, symbols []string) {
	if m.seed == nil {
		return
	}
	for _, sym := range symbols {
		t, err := m.seed(ctx, sym)
		if err != nil {
			m.metrics.RecordError("seed_snapshot")
			continue
		}
		if t != nil {
			m.handleTick(ctx, t)
		}
	}
}

// backoff records a failure and waits the fixed reconnect delay. Returns
// false once the attempt cap is reached: the source transitions to Stopped
// exactly once and stays there until an explicit restart.
func (m *StreamManager) backoff(ctx context.Context, cause error) bool {
	m.metrics.RecordReconnect(string(m.source))

	m.mu.Lock()
	m.state.ReconnectAttempts++
	m.state.LastError = cause.Error()
	attempts := m.state.ReconnectAttempts
	if attempts >= m.maxAttempts {
		m.state.Phase = models.PhaseStopped
		m.running = false
		m.mu.Unlock()
		m.metrics.RecordError("connection_exhausted")
		if m.l != nil {
			m.l.Error("reconnect attempts exhausted",
				applogger.String("source", string(m.source)),
				applogger.Int("attempts", attempts),
				applogger.Error(models.ErrConnectionExhausted))
		}
		return false
	}
	m.state.Phase = models.PhaseReconnecting
	m.mu.Unlock()

	if m.l != nil {
		m.l.Warn("reconnecting",
			applogger.String("source", string(m.source)),
			applogger.Int("attempt", attempts),
			applogger.Error(cause))
	}

	select {
	case <-ctx.Done():
		return false
	case <-time.After(m.reconnectDelay):
		return true
	}
}

func (m *StreamManager) setPhase(p models.Phase, lastErr string) {
	m.mu.Lock()
	m.state.Phase = p
	if lastErr != "" {
		m.state.LastError = lastErr
	}
	m.mu.Unlock()
}

func (m *StreamManager) exit() {
	m.mu.Lock()
	if m.state.Phase != models.PhaseStopped {
		m.state.Phase = models.PhaseStopped
	}
	m.running = false
	m.mu.Unlock()
}
