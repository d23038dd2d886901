package mqtt

import (
	"sync"
	"sync/atomic"
)

// Publisher is the blocking publish call AsyncPublisher drives.
// *Client satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// DefaultEventQueue bounds the number of unsent events.
const DefaultEventQueue = 64

type message struct {
	topic   string
	payload []byte
}

// AsyncPublisher moves broker round-trips off the caller's goroutine.
//
// Retained messages are coalesced per topic: if the worker is behind, only
// the newest payload for a topic is sent. Events are queued in order and
// dropped when the queue is full.
type AsyncPublisher struct {
	pub    Publisher
	qos    byte
	logger Logger

	mu       sync.Mutex
	retained map[string][]byte
	order    []string
	events   []message
	maxQueue int
	closed   bool

	dropped atomic.Uint64

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// NewAsyncPublisher starts the worker goroutine. Close stops it.
func NewAsyncPublisher(pub Publisher, qos byte, maxQueue int) *AsyncPublisher {
	if maxQueue <= 0 {
		maxQueue = DefaultEventQueue
	}
	p := &AsyncPublisher{
		pub:      pub,
		qos:      qos,
		logger:   noopLogger{},
		retained: make(map[string][]byte),
		maxQueue: maxQueue,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	p.wg.Add(1)
	go p.worker()
	return p
}

// SetLogger sets the logger for publish failures.
func (p *AsyncPublisher) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	p.mu.Lock()
	p.logger = logger
	p.mu.Unlock()
}

// Retain replaces the pending retained payload for topic.
func (p *AsyncPublisher) Retain(topic string, payload []byte) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPublisherClosed
	}
	if _, pending := p.retained[topic]; !pending {
		p.order = append(p.order, topic)
	}
	p.retained[topic] = payload
	p.mu.Unlock()

	p.signal()
	return nil
}

// Send queues a non-retained event.
func (p *AsyncPublisher) Send(topic string, payload []byte) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPublisherClosed
	}
	if len(p.events) >= p.maxQueue {
		p.mu.Unlock()
		p.dropped.Add(1)
		return nil
	}
	p.events = append(p.events, message{topic: topic, payload: payload})
	p.mu.Unlock()

	p.signal()
	return nil
}

// Dropped returns the number of events discarded because the queue was full.
func (p *AsyncPublisher) Dropped() uint64 {
	return p.dropped.Load()
}

// Close sends whatever is still pending and stops the worker.
// Safe to call more than once.
func (p *AsyncPublisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.done)
	p.wg.Wait()
}

func (p *AsyncPublisher) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *AsyncPublisher) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.wake:
			p.flush()
		case <-p.done:
			p.flush()
			return
		}
	}
}

// flush takes everything pending and publishes it, retained state first.
func (p *AsyncPublisher) flush() {
	p.mu.Lock()
	order := p.order
	retained := p.retained
	events := p.events
	logger := p.logger
	p.order = nil
	p.retained = make(map[string][]byte, len(retained))
	p.events = nil
	p.mu.Unlock()

	for _, topic := range order {
		if err := p.pub.Publish(topic, retained[topic], p.qos, true); err != nil {
			logger.Warn("mqtt publish failed", "topic", topic, "error", err)
		}
	}
	for _, m := range events {
		if err := p.pub.Publish(m.topic, m.payload, p.qos, false); err != nil {
			logger.Warn("mqtt publish failed", "topic", m.topic, "error", err)
		}
	}
}
