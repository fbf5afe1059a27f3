package hub

import (
	"sync"

	"github.com/google/uuid"

	"pulsehub/internal/pipeline"
)

// Subscriber receives one filtered snapshot per aggregation cycle. Each
// subscriber owns a capacity-one delivery channel with drop-oldest
// semantics: a slow consumer only ever sees the most recent snapshot,
// and a slow consumer never blocks the hub.
type Subscriber struct {
	id      string
	modules []string
	ch      chan *pipeline.Snapshot
}

// C is the subscriber's delivery channel
func (s *Subscriber) C() <-chan *pipeline.Snapshot {
	return s.ch
}

// deliver pushes a snapshot, evicting the undelivered one if present
func (s *Subscriber) deliver(snapshot *pipeline.Snapshot) {
	select {
	case s.ch <- snapshot:
		return
	default:
	}
	// Channel full: drop the stale snapshot and retry once.
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- snapshot:
	default:
	}
}

// subscribers is the hub's fan-out registry
type subscribers struct {
	mu   sync.Mutex
	subs map[string]*Subscriber
}

func newSubscribers() *subscribers {
	return &subscribers{subs: make(map[string]*Subscriber)}
}

func (r *subscribers) add(modules []string) *Subscriber {
	sub := &Subscriber{
		id:      uuid.New().String(),
		modules: modules,
		ch:      make(chan *pipeline.Snapshot, 1),
	}
	r.mu.Lock()
	r.subs[sub.id] = sub
	r.mu.Unlock()
	return sub
}

func (r *subscribers) remove(sub *Subscriber) {
	r.mu.Lock()
	delete(r.subs, sub.id)
	r.mu.Unlock()
}

func (r *subscribers) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// broadcast delivers a per-subscriber filtered view of the snapshot
func (r *subscribers) broadcast(snapshot *pipeline.Snapshot) {
	r.mu.Lock()
	subs := make([]*Subscriber, 0, len(r.subs))
	for _, s := range r.subs {
		subs = append(subs, s)
	}
	r.mu.Unlock()

	for _, s := range subs {
		s.deliver(snapshot.FilterForModules(s.modules))
	}
}
