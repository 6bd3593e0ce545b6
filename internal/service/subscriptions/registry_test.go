package subscriptions

import (
	"testing"

	"MarketPulse/internal/domain/models"
)

func TestAddIdempotent(t *testing.T) {
	r := New()

	if !r.Add(models.SourceCrypto, "BTCUSDT") {
		t.Fatalf("first add should report change")
	}
	if r.Add(models.SourceCrypto, "BTCUSDT") {
		t.Fatalf("second add should be a no-op")
	}
	if got := r.List(models.SourceCrypto); len(got) != 1 || got[0] != "BTCUSDT" {
		t.Fatalf("unexpected list %v", got)
	}
}

func TestRemoveNonMember(t *testing.T) {
	r := New()
	if r.Remove(models.SourceCrypto, "BTCUSDT") {
		t.Fatalf("removing non-member should be a no-op")
	}
	r.Add(models.SourceCrypto, "BTCUSDT")
	if !r.Remove(models.SourceCrypto, "BTCUSDT") {
		t.Fatalf("expected removal")
	}
	if got := r.List(models.SourceCrypto); len(got) != 0 {
		t.Fatalf("expected empty list, got %v", got)
	}
}

func TestListSortedAndPerSource(t *testing.T) {
	r := New()
	r.Add(models.SourceCrypto, "ETHUSDT")
	r.Add(models.SourceCrypto, "BTCUSDT")
	r.Add(models.SourceCarbon, "EUA")

	got := r.List(models.SourceCrypto)
	if len(got) != 2 || got[0] != "BTCUSDT" || got[1] != "ETHUSDT" {
		t.Fatalf("unexpected crypto list %v", got)
	}
	if got := r.List(models.SourceCarbon); len(got) != 1 {
		t.Fatalf("unexpected carbon list %v", got)
	}
}

func TestWatchDeliversChanges(t *testing.T) {
	r := New()
	ch, off := r.Watch()
	defer off()

	r.Add(models.SourceCrypto, "BTCUSDT")
	c := <-ch
	if !c.Added || c.Symbol != "BTCUSDT" || c.Source != models.SourceCrypto {
		t.Fatalf("unexpected change %+v", c)
	}

	r.Add(models.SourceCrypto, "BTCUSDT") // duplicate, no change event
	r.Remove(models.SourceCrypto, "BTCUSDT")
	c = <-ch
	if c.Added {
		t.Fatalf("expected removal change, got %+v", c)
	}
}
