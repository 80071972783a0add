package sqlite

import (
	"context"
	"sync"

	"github.com/pigeon-chat/pigeon/internal/backend"
)

const subscriptionBuffer = 256

type subscriber struct {
	collection string
	kinds      map[backend.ChangeKind]bool
	filter     backend.Filter
	ch         chan backend.Change
}

type subscribers struct {
	mu   sync.RWMutex
	subs map[int]*subscriber
	next int
}

func newSubscribers() *subscribers {
	return &subscribers{subs: make(map[int]*subscriber)}
}

func (s *subscribers) publish(c backend.Change) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		if sub.collection != c.Collection {
			continue
		}
		if len(sub.kinds) > 0 && !sub.kinds[c.Kind] {
			continue
		}
		if !matches(sub.filter, c) {
			continue
		}
		select {
		case sub.ch <- c:
		default:
			// Slow consumer, drop. A later full refresh reconverges.
		}
	}
}

func matches(f backend.Filter, c backend.Change) bool {
	if len(f) == 0 {
		return true
	}
	rec := c.Record
	if rec == nil {
		rec = c.Old
	}
	for k, want := range f {
		if rec[k] != want {
			return false
		}
	}
	return true
}

// Subscribe registers a change feed for one collection. The feed closes when
// ctx ends or the cancel function is called.
func (b *Backend) Subscribe(ctx context.Context, collection string, kinds []backend.ChangeKind, filter backend.Filter) (<-chan backend.Change, func(), error) {
	if _, err := columnsFor(collection); err != nil {
		return nil, nil, err
	}

	kindSet := make(map[backend.ChangeKind]bool, len(kinds))
	for _, k := range kinds {
		kindSet[k] = true
	}

	sub := &subscriber{
		collection: collection,
		kinds:      kindSet,
		filter:     filter,
		ch:         make(chan backend.Change, subscriptionBuffer),
	}

	b.subs.mu.Lock()
	id := b.subs.next
	b.subs.next++
	b.subs.subs[id] = sub
	b.subs.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.subs.mu.Lock()
			delete(b.subs.subs, id)
			b.subs.mu.Unlock()
			close(sub.ch)
			close(done)
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()

	return sub.ch, cancel, nil
}
