package notify

import (
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the queue length of an Async notifier.
const DefaultBuffer = 256

// Async delivers events to a wrapped notifier on its own goroutine.
// Notify never blocks: when the queue is full the event is dropped.
type Async struct {
	next    Notifier
	queue   chan Event
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// NewAsync starts the delivery goroutine.
func NewAsync(next Notifier, buffer int) *Async {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	a := &Async{
		next:  next,
		queue: make(chan Event, buffer),
		done:  make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *Async) loop() {
	defer close(a.done)
	for e := range a.queue {
		a.deliver(e)
	}
}

// deliver isolates the loop from a panicking sink.
func (a *Async) deliver(e Event) {
	defer func() {
		if recover() != nil {
			a.dropped.Add(1)
		}
	}()
	a.next.Notify(e)
}

// Notify enqueues e, or drops it when the queue is full or closed.
func (a *Async) Notify(e Event) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.dropped.Add(1)
		return
	}
	select {
	case a.queue <- e:
	default:
		a.dropped.Add(1)
	}
}

// Close stops accepting events and waits until queued ones are delivered.
func (a *Async) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	<-a.done
}

// Dropped counts events that were never delivered.
func (a *Async) Dropped() int64 {
	return a.dropped.Load()
}
