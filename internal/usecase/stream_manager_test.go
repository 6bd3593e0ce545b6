package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/service/broadcast"
	"MarketPulse/internal/service/subscriptions"
	"MarketPulse/internal/service/tickcache"
)

type fakeStream struct {
	mu           sync.Mutex
	failConnects int
	connects     int
	connected    bool
	subscribed   map[string]int
	ticks        chan *models.Tick
	errs         chan error
}

func newFakeStream(failConnects int) *fakeStream {
	return &fakeStream{failConnects: failConnects, subscribed: make(map[string]int)}
}

func (f *fakeStream) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connects <= f.failConnects {
		return errors.New("dial refused")
	}
	f.connected = true
	f.ticks = make(chan *models.Tick, 64)
	f.errs = make(chan error, 64)
	return nil
}

func (f *fakeStream) Subscribe(_ context.Context, symbols []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range symbols {
		f.subscribed[s]++
	}
	return nil
}

func (f *fakeStream) Unsubscribe(_ context.Context, symbols []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range symbols {
		delete(f.subscribed, s)
	}
	return nil
}

func (f *fakeStream) Read(context.Context) (<-chan *models.Tick, <-chan error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ticks, f.errs
}

func (f *fakeStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeStream) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeStream) emit(t *models.Tick) {
	f.mu.Lock()
	ch := f.ticks
	f.mu.Unlock()
	ch <- t
}

func (f *fakeStream) emitErr(err error) {
	f.mu.Lock()
	ch := f.errs
	f.mu.Unlock()
	ch <- err
}

func (f *fakeStream) subCount(sym string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribed[sym]
}

func (f *fakeStream) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func newManager(stream *fakeStream, opts ...StreamManagerOption) (*StreamManager, *tickcache.Cache, *subscriptions.Registry, *broadcast.Broker) {
	cache := tickcache.New(nil, nil)
	registry := subscriptions.New()
	broker := broadcast.NewBroker(16)
	base := []StreamManagerOption{WithReconnect(time.Millisecond, 5)}
	m := NewStreamManager(models.SourceCrypto, stream, cache, registry, broker, fakeMetrics{}, nil, append(base, opts...)...)
	return m, cache, registry, broker
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestTickFlowsToCacheAndBroker(t *testing.T) {
	stream := newFakeStream(0)
	m, cache, _, broker := newManager(stream)
	sub := broker.Subscribe()
	defer sub.Close()

	if err := m.Start(context.Background(), []string{"BTCUSDT"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer m.Stop()
	waitFor(t, "connected", func() bool { return m.Status().Phase == models.PhaseConnected })

	ts := time.Now()
	stream.emit(&models.Tick{Source: models.SourceCrypto, Symbol: "BTCUSDT", Price: 45000, Timestamp: ts})

	waitFor(t, "cached tick", func() bool {
		e, ok := cache.Get(models.SourceCrypto, "BTCUSDT")
		return ok && e.Tick.Price == 45000
	})
	select {
	case got := <-sub.C:
		if got.Price != 45000 {
			t.Fatalf("unexpected broadcast tick %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("tick not broadcast")
	}
}

func TestStartIsIdempotent(t *testing.T) {
	stream := newFakeStream(0)
	m, _, registry, _ := newManager(stream)

	if err := m.Start(context.Background(), []string{"BTCUSDT"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer m.Stop()
	waitFor(t, "connected", func() bool { return m.Status().Phase == models.PhaseConnected })

	// re-subscribing an already-tracked symbol is a no-op
	if err := m.Start(context.Background(), []string{"BTCUSDT"}); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if got := registry.List(models.SourceCrypto); len(got) != 1 {
		t.Fatalf("expected 1 tracked symbol, got %v", got)
	}
	if stream.connectCount() != 1 {
		t.Fatalf("second start must not reconnect, got %d connects", stream.connectCount())
	}
}

func TestRegistryAddSubscribesLive(t *testing.T) {
	stream := newFakeStream(0)
	m, _, registry, _ := newManager(stream)

	if err := m.Start(context.Background(), []string{"BTCUSDT"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer m.Stop()
	waitFor(t, "connected", func() bool { return m.Status().Phase == models.PhaseConnected })

	registry.Add(models.SourceCrypto, "ETHUSDT")
	waitFor(t, "live subscribe", func() bool { return stream.subCount("ETHUSDT") == 1 })

	registry.Remove(models.SourceCrypto, "ETHUSDT")
	waitFor(t, "live unsubscribe", func() bool { return stream.subCount("ETHUSDT") == 0 })
}

func TestMalformedMessagesAreDropped(t *testing.T) {
	stream := newFakeStream(0)
	m, cache, _, _ := newManager(stream)

	if err := m.Start(context.Background(), []string{"BTCUSDT"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer m.Stop()
	waitFor(t, "connected", func() bool { return m.Status().Phase == models.PhaseConnected })

	stream.emitErr(&models.MalformedMessageError{Source: models.SourceCrypto, Reason: "garbage frame"})
	stream.emit(&models.Tick{Source: models.SourceCrypto, Symbol: "BTCUSDT", Price: 1, Timestamp: time.Now()})

	waitFor(t, "tick after malformed frame", func() bool {
		_, ok := cache.Get(models.SourceCrypto, "BTCUSDT")
		return ok
	})
	if m.Status().Phase != models.PhaseConnected {
		t.Fatalf("malformed message must not drop the connection, phase=%s", m.Status().Phase)
	}
}

func TestReconnectCapStops(t *testing.T) {
	stream := newFakeStream(1000)
	m, _, _, _ := newManager(stream)

	if err := m.Start(context.Background(), []string{"BTCUSDT"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "stopped", func() bool { return m.Status().Phase == models.PhaseStopped })

	st := m.Status()
	if st.ReconnectAttempts != 5 {
		t.Fatalf("expected exactly 5 attempts, got %d", st.ReconnectAttempts)
	}
	if st.LastError == "" {
		t.Fatalf("expected last error to be recorded")
	}

	// stays stopped: no further connection attempts
	n := stream.connectCount()
	time.Sleep(20 * time.Millisecond)
	if stream.connectCount() != n {
		t.Fatalf("stopped manager kept reconnecting")
	}
}

func TestRestartResetsAttempts(t *testing.T) {
	stream := newFakeStream(1000)
	m, _, _, _ := newManager(stream)

	if err := m.Start(context.Background(), []string{"BTCUSDT"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "stopped", func() bool { return m.Status().Phase == models.PhaseStopped })

	// endpoint recovers
	stream.mu.Lock()
	stream.failConnects = 0
	stream.mu.Unlock()

	if err := m.Restart(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer m.Stop()
	waitFor(t, "reconnected", func() bool { return m.Status().Phase == models.PhaseConnected })
	if got := m.Status().ReconnectAttempts; got != 0 {
		t.Fatalf("restart must reset attempts, got %d", got)
	}
}

func TestConnectionErrorTriggersReconnect(t *testing.T) {
	stream := newFakeStream(0)
	m, _, _, _ := newManager(stream)

	if err := m.Start(context.Background(), []string{"BTCUSDT"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer m.Stop()
	waitFor(t, "connected", func() bool { return m.Status().Phase == models.PhaseConnected })

	stream.emitErr(&models.ConnectionError{Source: models.SourceCrypto, Err: errors.New("peer reset")})
	waitFor(t, "reconnected", func() bool {
		return stream.connectCount() >= 2 && m.Status().Phase == models.PhaseConnected
	})
}

func TestStopClearsRegistry(t *testing.T) {
	stream := newFakeStream(0)
	m, _, registry, _ := newManager(stream)

	if err := m.Start(context.Background(), []string{"BTCUSDT", "ETHUSDT"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, "connected", func() bool { return m.Status().Phase == models.PhaseConnected })

	if err := m.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if m.Status().Phase != models.PhaseStopped {
		t.Fatalf("expected stopped, got %s", m.Status().Phase)
	}
	if got := registry.List(models.SourceCrypto); len(got) != 0 {
		t.Fatalf("stop must clear registry entries, got %v", got)
	}
}

func TestMaxRuntimeForcesPlannedRestart(t *testing.T) {
	stream := newFakeStream(0)
	m, _, _, _ := newManager(stream, WithMaxRuntime(20*time.Millisecond))

	if err := m.Start(context.Background(), []string{"BTCUSDT"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer m.Stop()

	waitFor(t, "planned restart", func() bool { return stream.connectCount() >= 2 })
	waitFor(t, "reconnected", func() bool { return m.Status().Phase == models.PhaseConnected })
	if got := m.Status().ReconnectAttempts; got != 0 {
		t.Fatalf("planned restart must not count as a reconnect attempt, got %d", got)
	}
}
