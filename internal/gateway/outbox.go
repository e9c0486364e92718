package gateway

import "sync"

// EnqueueResult tells the caller what happened to its message. The bridge's
// policy on Full is drop-and-log, but the result type leaves that choice to
// the caller.
type EnqueueResult int

const (
	EnqueueOK EnqueueResult = iota
	EnqueueFull
	EnqueueClosed
)

// Outbox is a fixed-capacity ring buffer of encoded outbound frames. A single
// writer goroutine drains it; any goroutine may enqueue.
type Outbox struct {
	mu     sync.Mutex
	buf    [][]byte
	head   int
	size   int
	closed bool

	// ready carries at most one wake-up; Next re-checks the buffer after
	// every wake, so a single pending signal covers any number of enqueues.
	ready chan struct{}
}

// NewOutbox creates an outbox holding at most capacity messages.
func NewOutbox(capacity int) *Outbox {
	if capacity < 1 {
		capacity = 1
	}
	return &Outbox{
		buf:   make([][]byte, capacity),
		ready: make(chan struct{}, 1),
	}
}

// Enqueue appends one message. It never blocks.
func (o *Outbox) Enqueue(msg []byte) EnqueueResult {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return EnqueueClosed
	}
	if o.size == len(o.buf) {
		o.mu.Unlock()
		return EnqueueFull
	}
	o.buf[(o.head+o.size)%len(o.buf)] = msg
	o.size++
	o.mu.Unlock()

	o.signal()
	return EnqueueOK
}

// TryNext pops one message without blocking. The second return is false
// when the buffer is currently empty.
func (o *Outbox) TryNext() ([]byte, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.size == 0 {
		return nil, false
	}
	msg := o.buf[o.head]
	o.buf[o.head] = nil
	o.head = (o.head + 1) % len(o.buf)
	o.size--
	return msg, true
}

// Ready signals that the buffer needs draining or was closed. The single
// consumer must drain with TryNext after every receive.
func (o *Outbox) Ready() <-chan struct{} {
	return o.ready
}

// Closed reports whether Close was called.
func (o *Outbox) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// Close wakes the consumer; queued messages are still delivered first.
func (o *Outbox) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	o.signal()
}

// Len reports the number of queued messages.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.size
}

func (o *Outbox) signal() {
	select {
	case o.ready <- struct{}{}:
	default:
	}
}
