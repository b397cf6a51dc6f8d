package playback

import (
	"sync"

	"github.com/mmcdole/kinocast/internal/domain"
)

// EventPump queues destination events without ever blocking the producer.
// Destinations push from their reader goroutines while the controller may be
// waiting on a reply from that same reader. Consecutive position events are
// coalesced.
type EventPump struct {
	mu     sync.Mutex
	queue  []domain.DestinationEvent
	closed bool

	wake   chan struct{}
	out    chan domain.DestinationEvent
	done   chan struct{}
	exited chan struct{}
	once   sync.Once
}

// NewEventPump starts a pump. Close releases its goroutine.
func NewEventPump() *EventPump {
	p := &EventPump{
		wake:   make(chan struct{}, 1),
		out:    make(chan domain.DestinationEvent),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go p.run()
	return p
}

// Events is closed once the pump is closed.
func (p *EventPump) Events() <-chan domain.DestinationEvent { return p.out }

// Push queues an event. It is a no-op after Close.
func (p *EventPump) Push(ev domain.DestinationEvent) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	if n := len(p.queue); n > 0 && ev.Kind == domain.DestinationPosition && p.queue[n-1].Kind == domain.DestinationPosition {
		p.queue[n-1] = ev
	} else {
		p.queue = append(p.queue, ev)
	}
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Close stops delivery and closes the events channel.
func (p *EventPump) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.done)
	})
	<-p.exited
}

func (p *EventPump) run() {
	defer close(p.exited)
	defer close(p.out)
	for {
		ev, ok := p.next()
		if !ok {
			return
		}
		select {
		case p.out <- ev:
		case <-p.done:
			return
		}
	}
}

func (p *EventPump) next() (domain.DestinationEvent, bool) {
	for {
		p.mu.Lock()
		if len(p.queue) > 0 {
			ev := p.queue[0]
			p.queue = p.queue[1:]
			p.mu.Unlock()
			return ev, true
		}
		p.mu.Unlock()

		select {
		case <-p.wake:
		case <-p.done:
			return domain.DestinationEvent{}, false
		}
	}
}
