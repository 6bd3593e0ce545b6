package tickcache

import (
	"sort"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
	applogger "MarketPulse/pkg/logger"
)

// Listener is notified after every accepted Put. Panics are recovered per
// listener so one faulty consumer cannot break others or the cache.
type Listener func(t models.Tick)

type key struct {
	source models.Source
	symbol string
}

// Cache is the single source of truth for the latest known tick per
// (source, symbol). Last-writer-wins by tick timestamp, not arrival order.
type Cache struct {
	mu        sync.RWMutex
	entries   map[key]models.CacheEntry
	ttls      map[models.Source]time.Duration
	listeners map[int]Listener
	nextID    int
	l         *applogger.Logger

	now func() time.Time
}

// DefaultTTLs mirror how quickly each source is expected to refresh.
var DefaultTTLs = map[models.Source]time.Duration{
	models.SourceCrypto: 30 * time.Second,
	models.SourceEquity: 60 * time.Second,
	models.SourceCarbon: time.Hour,
}

func New(ttls map[models.Source]time.Duration, l *applogger.Logger) *Cache {
	if ttls == nil {
		ttls = DefaultTTLs
	}
	return &Cache{
		entries:   make(map[key]models.CacheEntry),
		ttls:      ttls,
		listeners: make(map[int]Listener),
		l:         l,
		now:       time.Now,
	}
}

// Put stores t if it is newer than the current entry for its key. Older or
// duplicate timestamps are discarded silently. FetchedAt is monotonically
// non-decreasing per key.
func (c *Cache) Put(t models.Tick) {
	k := key{source: t.Source, symbol: t.Symbol}

	c.mu.Lock()
	if cur, ok := c.entries[k]; ok && !t.Timestamp.After(cur.Tick.Timestamp) {
		c.mu.Unlock()
		return
	}
	c.entries[k] = models.CacheEntry{Tick: t, FetchedAt: c.now(), TTL: c.ttl(t.Source)}
	ls := make([]Listener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		ls = append(ls, fn)
	}
	c.mu.Unlock()

	for _, fn := range ls {
		c.notify(fn, t)
	}
}

func (c *Cache) notify(fn Listener, t models.Tick) {
	defer func() {
		if r := recover(); r != nil && c.l != nil {
			c.l.Warn("tick listener panicked", applogger.Any("panic", r), applogger.String("symbol", t.Symbol))
		}
	}()
	fn(t)
}

// Get returns the latest entry for (source, symbol), if any.
func (c *Cache) Get(source models.Source, symbol string) (models.CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key{source: source, symbol: symbol}]
	return e, ok
}

// GetAll returns all entries for a source, ordered by symbol.
func (c *Cache) GetAll(source models.Source) []models.CacheEntry {
	c.mu.RLock()
	out := make([]models.CacheEntry, 0, len(c.entries))
	for k, e := range c.entries {
		if k.source == source {
			out = append(out, e)
		}
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Tick.Symbol < out[j].Tick.Symbol })
	return out
}

// IsStale reports whether e has outlived its TTL.
func (c *Cache) IsStale(e models.CacheEntry) bool {
	return e.IsStale(c.now())
}

// Subscribe registers a listener and returns an unsubscribe func.
func (c *Cache) Subscribe(fn Listener) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Cache) ttl(s models.Source) time.Duration {
	if d, ok := c.ttls[s]; ok {
		return d
	}
	return time.Minute
}
