package mqtt

import "sync"

// Inbox hands inbound messages from paho to a single consumer in arrival
// order. Push never blocks, so a slow consumer cannot stall paho's receive
// goroutine. The queue is unbounded.
type Inbox struct {
	mu    sync.Mutex
	queue []Message

	ready     chan struct{}
	out       chan Message
	done      chan struct{}
	closeOnce sync.Once
}

// NewInbox creates an inbox and starts its delivery goroutine.
func NewInbox() *Inbox {
	b := &Inbox{
		ready: make(chan struct{}, 1),
		out:   make(chan Message),
		done:  make(chan struct{}),
	}
	go b.pump()
	return b
}

// Push queues m. It is safe to call from any goroutine and drops m once
// the inbox is closed.
func (b *Inbox) Push(m Message) {
	select {
	case <-b.done:
		return
	default:
	}

	b.mu.Lock()
	b.queue = append(b.queue, m)
	b.mu.Unlock()

	select {
	case b.ready <- struct{}{}:
	default:
	}
}

// C returns the channel messages are delivered on.
func (b *Inbox) C() <-chan Message {
	return b.out
}

// Len returns the number of messages waiting for the consumer.
func (b *Inbox) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Close stops delivery. Queued messages are discarded.
func (b *Inbox) Close() {
	b.closeOnce.Do(func() { close(b.done) })
}

func (b *Inbox) pump() {
	for {
		select {
		case <-b.ready:
		case <-b.done:
			return
		}

		for {
			m, ok := b.pop()
			if !ok {
				break
			}
			select {
			case b.out <- m:
			case <-b.done:
				return
			}
		}
	}
}

func (b *Inbox) pop() (Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return Message{}, false
	}
	m := b.queue[0]
	b.queue[0] = Message{}
	b.queue = b.queue[1:]
	return m, true
}
