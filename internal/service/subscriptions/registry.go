package subscriptions

import (
	"sort"
	"sync"

	"MarketPulse/internal/domain/models"
)

// Change describes one registry mutation, delivered to watchers so stream
// managers can re-issue subscribe/unsubscribe messages. The registry itself
// never touches a connection.
type Change struct {
	Source models.Source
	Symbol string
	Added  bool
}

// Registry tracks which symbols each source must track. Set semantics:
// duplicate adds and removals of non-members are no-ops.
type Registry struct {
	mu       sync.RWMutex
	bySource map[models.Source]map[string]struct{}
	watchers map[int]chan Change
	nextID   int
}

func New() *Registry {
	return &Registry{
		bySource: make(map[models.Source]map[string]struct{}),
		watchers: make(map[int]chan Change),
	}
}

// Add registers a symbol for a source. Returns true if it was not tracked.
func (r *Registry) Add(source models.Source, symbol string) bool {
	r.mu.Lock()
	set, ok := r.bySource[source]
	if !ok {
		set = make(map[string]struct{})
		r.bySource[source] = set
	}
	if _, exists := set[symbol]; exists {
		r.mu.Unlock()
		return false
	}
	set[symbol] = struct{}{}
	r.broadcastLocked(Change{Source: source, Symbol: symbol, Added: true})
	r.mu.Unlock()
	return true
}

// Remove drops a symbol. Removing a non-member is not an error.
func (r *Registry) Remove(source models.Source, symbol string) bool {
	r.mu.Lock()
	set, ok := r.bySource[source]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if _, exists := set[symbol]; !exists {
		r.mu.Unlock()
		return false
	}
	delete(set, symbol)
	r.broadcastLocked(Change{Source: source, Symbol: symbol, Added: false})
	r.mu.Unlock()
	return true
}

// Clear removes every symbol tracked for a source.
func (r *Registry) Clear(source models.Source) {
	r.mu.Lock()
	delete(r.bySource, source)
	r.mu.Unlock()
}

// List returns the sorted symbol set for a source.
func (r *Registry) List(source models.Source) []string {
	r.mu.RLock()
	set := r.bySource[source]
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Strings(out)
	return out
}

// Watch returns a buffered change channel and an unsubscribe func. Changes
// are dropped for watchers that fall behind rather than blocking mutations.
func (r *Registry) Watch() (<-chan Change, func()) {
	ch := make(chan Change, 64)

	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.watchers[id] = ch
	r.mu.Unlock()

	return ch, func() {
		r.mu.Lock()
		if c, ok := r.watchers[id]; ok {
			delete(r.watchers, id)
			close(c)
		}
		r.mu.Unlock()
	}
}

func (r *Registry) broadcastLocked(c Change) {
	for _, ch := range r.watchers {
		select {
		case ch <- c:
		default:
		}
	}
}
