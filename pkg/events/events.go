package events

import (
	"sync"
	"time"
)

// EventType names a submission lifecycle event.
type EventType string

const (
	EventPocCreated      EventType = "poc.created"
	EventPocDeduplicated EventType = "poc.deduplicated"
	EventRunFinished     EventType = "run.finished"
	EventAgentVerified   EventType = "agent.verified"
)

// Event is one lifecycle notification.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Message   string
	Metadata  map[string]string
}

// Subscriber receives events. The channel is closed when the
// subscription ends, so consumers can simply range over it.
type Subscriber chan *Event

const (
	queueSize      = 128
	subscriberSize = 64
)

// Broker fans lifecycle events out to subscribers. Delivery is best
// effort: publishing never blocks the submission path, so a full queue
// or a slow subscriber drops events instead of stalling a request.
type Broker struct {
	mu   sync.Mutex
	subs []Subscriber

	queue chan *Event
	stop  chan struct{}
	done  chan struct{}
}

// NewBroker creates a broker. It delivers nothing until Start.
func NewBroker() *Broker {
	return &Broker{
		queue: make(chan *Event, queueSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Start launches the delivery loop.
func (b *Broker) Start() {
	go b.pump()
}

// Stop shuts the broker down: queued events are still delivered, then
// every subscriber channel is closed.
func (b *Broker) Stop() {
	close(b.stop)
	<-b.done
}

// Subscribe registers a new subscriber.
func (b *Broker) Subscribe() Subscriber {
	sub := make(Subscriber, subscriberSize)
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscriber and closes its channel. Removing a
// subscriber twice is a no-op.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(sub)
			return
		}
	}
}

// Publish enqueues an event, stamping its time if unset.
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case b.queue <- event:
	default:
	}
}

func (b *Broker) pump() {
	defer close(b.done)
	for {
		select {
		case event := <-b.queue:
			b.deliver(event)
		case <-b.stop:
			b.drain()
			return
		}
	}
}

// drain delivers what was queued before shutdown, then closes every
// subscriber so range loops over them terminate.
func (b *Broker) drain() {
	for {
		select {
		case event := <-b.queue:
			b.deliver(event)
		default:
			b.mu.Lock()
			for _, sub := range b.subs {
				close(sub)
			}
			b.subs = nil
			b.mu.Unlock()
			return
		}
	}
}

func (b *Broker) deliver(event *Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		select {
		case sub <- event:
		default:
		}
	}
}
