package events

import (
	"sync"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	EventUpdateStarted       EventType = "update.started"
	EventUpdatePhase         EventType = "update.phase"
	EventUpdateFinished      EventType = "update.finished"
	EventRollbackFinished    EventType = "rollback.finished"
	EventBackupCreated       EventType = "backup.created"
	EventReleaseChecked      EventType = "release.checked"
	EventMaintenanceEnabled  EventType = "maintenance.enabled"
	EventMaintenanceDisabled EventType = "maintenance.disabled"
)

// Event is a state change of the update subsystem
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Message   string
	Metadata  map[string]string
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

const (
	queueSize      = 100
	subscriberSize = 50
)

// Broker fans events out to subscribers. Delivery is best effort: a full
// subscriber misses events rather than holding up the others.
type Broker struct {
	mu    sync.RWMutex
	subs  map[Subscriber]struct{}
	queue chan *Event
	done  chan struct{}
	once  sync.Once
}

// NewBroker creates a broker; call Start to begin delivery
func NewBroker() *Broker {
	return &Broker{
		subs:  make(map[Subscriber]struct{}),
		queue: make(chan *Event, queueSize),
		done:  make(chan struct{}),
	}
}

// Start begins delivering queued events
func (b *Broker) Start() {
	go b.run()
}

// Stop ends delivery; later events are dropped
func (b *Broker) Stop() {
	b.once.Do(func() { close(b.done) })
}

// Subscribe registers a new subscriber
func (b *Broker) Subscribe() Subscriber {
	sub := make(Subscriber, subscriberSize)
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes sub and closes it
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub)
	}
}

// Publish queues an event for all subscribers. It never blocks: when the
// queue is full or the broker is stopped the event is dropped, so a slow
// consumer cannot stall an update run.
func (b *Broker) Publish(event *Event) {
	if b == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case <-b.done:
		return
	default:
	}

	select {
	case b.queue <- event:
	default:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.queue:
			b.broadcast(event)
		case <-b.done:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		select {
		case sub <- event:
		default:
		}
	}
}

// SubscriberCount returns the number of registered subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
