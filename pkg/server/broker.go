package server

import (
	"encoding/json"
	"sync"

	"github.com/matzehuels/layerview/pkg/pipeline"
)

// Event is one server-sent event.
type Event struct {
	Type string
	Data []byte
}

// subscriberBuffer is the number of events a slow client may lag behind
// before events are dropped for it.
const subscriberBuffer = 64

// Broker fans session events out to /api/events subscribers. Install its
// methods as session callbacks:
//
//	b := server.NewBroker()
//	opts.OnFrame, opts.OnProgress, opts.OnLoading = b.Frame, b.Progress, b.Loading
type Broker struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	closed bool
}

// NewBroker returns a broker with no subscribers.
func NewBroker() *Broker {
	return &Broker{subs: make(map[chan Event]struct{})}
}

// Subscribe returns a channel of events and a function that unsubscribes.
// The channel is closed when the broker closes.
func (b *Broker) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
	}
}

// Publish sends an event to every subscriber without blocking.
func (b *Broker) Publish(typ string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	ev := Event{Type: typ, Data: data}

	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Frame publishes a "frame" event.
func (b *Broker) Frame(f pipeline.Frame) {
	b.Publish("frame", frameResponse{
		ProjectID: f.ProjectID,
		Layers:    f.Layers,
		Vertices:  len(f.Geometry.Vertices),
		Triangles: f.Geometry.TriangleCount(),
	})
}

// Progress publishes a "progress" event.
func (b *Broker) Progress(p pipeline.Progress) { b.Publish("progress", p) }

// Loading publishes a "loading" event.
func (b *Broker) Loading(loading bool) {
	b.Publish("loading", map[string]bool{"loading": loading})
}

// Subscribers returns the number of active subscribers.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscriber channel and rejects new subscribers.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
