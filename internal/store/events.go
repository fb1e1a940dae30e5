package store

import "sync"

// Op says whether a mutation created or updated rows.
type Op int

const (
	OpAdded Op = iota
	OpUpdated
)

func (o Op) String() string {
	if o == OpUpdated {
		return "updated"
	}
	return "added"
}

// EntityKind names the record type a mutation touched.
type EntityKind int

const (
	KindSource EntityKind = iota
	KindEntry
)

func (k EntityKind) String() string {
	if k == KindEntry {
		return "entry"
	}
	return "source"
}

// Event is one change notification. SourceIDs lists the affected sources:
// the mutated sources themselves, or the parents of mutated entries.
type Event struct {
	Op        Op
	Kind      EntityKind
	SourceIDs []int64
}

// Subscriber receives every successful mutation. Callbacks run synchronously
// on the mutating goroutine and must not call back into the store.
type Subscriber func(Event)

type notifier struct {
	mu          sync.Mutex
	subscribers []Subscriber
}

func (n *notifier) subscribe(fn Subscriber) {
	if fn == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subscribers = append(n.subscribers, fn)
}

func (n *notifier) notify(event Event) {
	n.mu.Lock()
	subscribers := make([]Subscriber, len(n.subscribers))
	copy(subscribers, n.subscribers)
	n.mu.Unlock()

	for _, fn := range subscribers {
		fn(event)
	}
}
