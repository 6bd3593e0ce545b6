package broadcast

import (
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
)

func TestPublishFansOut(t *testing.T) {
	b := NewBroker(4)
	s1 := b.Subscribe()
	s2 := b.Subscribe()
	defer s1.Close()
	defer s2.Close()

	b.Publish(models.Tick{Symbol: "BTCUSDT"})

	for _, s := range []*Subscription{s1, s2} {
		select {
		case got := <-s.C:
			if got.Symbol != "BTCUSDT" {
				t.Fatalf("unexpected tick %+v", got)
			}
		case <-time.After(time.Second):
			t.Fatalf("tick not delivered")
		}
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroker(1)
	slow := b.Subscribe()
	defer slow.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(models.Tick{Symbol: "ETHUSDT"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked on slow subscriber")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	b := NewBroker(1)
	s := b.Subscribe()
	s.Close()
	s.Close()
	if n := b.Subscribers(); n != 0 {
		t.Fatalf("expected 0 subscribers, got %d", n)
	}
	// publish after close must not panic
	b.Publish(models.Tick{Symbol: "BTCUSDT"})
}
