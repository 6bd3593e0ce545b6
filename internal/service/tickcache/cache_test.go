package tickcache

import (
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
)

func tick(sym string, ts time.Time, price float64) models.Tick {
	return models.Tick{Source: models.SourceCrypto, Symbol: sym, Price: price, Timestamp: ts}
}

func TestPutLastWriterWinsByTimestamp(t *testing.T) {
	c := New(nil, nil)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	c.Put(tick("BTCUSDT", base.Add(2*time.Second), 45100))
	// out-of-order, must be discarded
	c.Put(tick("BTCUSDT", base, 45000))
	// duplicate ts, discarded
	c.Put(tick("BTCUSDT", base.Add(2*time.Second), 45200))

	e, ok := c.Get(models.SourceCrypto, "BTCUSDT")
	if !ok {
		t.Fatalf("expected entry")
	}
	if e.Tick.Price != 45100 {
		t.Fatalf("expected latest-by-timestamp price 45100, got %v", e.Tick.Price)
	}
}

func TestFetchedAtMonotonic(t *testing.T) {
	c := New(nil, nil)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	c.Put(tick("ETHUSDT", base, 3000))
	first, _ := c.Get(models.SourceCrypto, "ETHUSDT")
	c.Put(tick("ETHUSDT", base.Add(time.Second), 3001))
	second, _ := c.Get(models.SourceCrypto, "ETHUSDT")

	if second.FetchedAt.Before(first.FetchedAt) {
		t.Fatalf("fetchedAt went backwards")
	}
}

func TestGetAllOrderedBySymbol(t *testing.T) {
	c := New(nil, nil)
	now := time.Now()
	c.Put(tick("ETHUSDT", now, 1))
	c.Put(tick("BTCUSDT", now, 2))
	c.Put(models.Tick{Source: models.SourceCarbon, Symbol: "EUA", Timestamp: now})

	all := c.GetAll(models.SourceCrypto)
	if len(all) != 2 {
		t.Fatalf("expected 2 crypto entries, got %d", len(all))
	}
	if all[0].Tick.Symbol != "BTCUSDT" || all[1].Tick.Symbol != "ETHUSDT" {
		t.Fatalf("expected symbol order, got %v %v", all[0].Tick.Symbol, all[1].Tick.Symbol)
	}
}

func TestStalenessPerSourceTTL(t *testing.T) {
	c := New(nil, nil)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Put(tick("BTCUSDT", now, 1))
	c.Put(models.Tick{Source: models.SourceCarbon, Symbol: "EUA", Timestamp: now})

	crypto, _ := c.Get(models.SourceCrypto, "BTCUSDT")
	carbon, _ := c.Get(models.SourceCarbon, "EUA")

	c.now = func() time.Time { return now.Add(45 * time.Second) }
	if !c.IsStale(crypto) {
		t.Fatalf("crypto entry should be stale after 45s")
	}
	if c.IsStale(carbon) {
		t.Fatalf("carbon entry should still be fresh (1h ttl)")
	}
}

func TestListenerPanicIsolated(t *testing.T) {
	c := New(nil, nil)

	var got []string
	c.Subscribe(func(models.Tick) { panic("bad listener") })
	c.Subscribe(func(tk models.Tick) { got = append(got, tk.Symbol) })

	c.Put(tick("BTCUSDT", time.Now(), 1))

	if len(got) != 1 || got[0] != "BTCUSDT" {
		t.Fatalf("healthy listener should still run, got %v", got)
	}
	if _, ok := c.Get(models.SourceCrypto, "BTCUSDT"); !ok {
		t.Fatalf("cache write should survive listener panic")
	}
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	c := New(nil, nil)
	n := 0
	off := c.Subscribe(func(models.Tick) { n++ })

	c.Put(tick("BTCUSDT", time.Now(), 1))
	off()
	c.Put(tick("BTCUSDT", time.Now().Add(time.Second), 2))

	if n != 1 {
		t.Fatalf("expected exactly 1 notification, got %d", n)
	}
}
