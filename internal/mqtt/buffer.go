package mqtt

import "log/slog"

// outbound is a serialized MQTT message held for replay after reconnection.
type outbound struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a fixed-capacity FIFO of outbound messages queued while
// disconnected. When full, the oldest message is dropped.
// Not safe for concurrent use: caller must synchronize.
type ringBuffer struct {
	buf     []outbound
	head    int // next write position
	count   int
	dropped int // messages lost since last drain
	logger  *slog.Logger
}

func newRingBuffer(capacity int, logger *slog.Logger) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ringBuffer{
		buf:    make([]outbound, capacity),
		logger: logger,
	}
}

func (r *ringBuffer) push(msg outbound) {
	if r.count == len(r.buf) {
		if r.dropped == 0 {
			r.logger.Warn("mqtt offline buffer full, dropping oldest", "capacity", len(r.buf))
		}
		r.dropped++
		// head already points at the oldest entry
		r.buf[r.head] = msg
		r.head = (r.head + 1) % len(r.buf)
		return
	}
	r.buf[r.head] = msg
	r.head = (r.head + 1) % len(r.buf)
	r.count++
}

// drain returns queued messages oldest first along with the number dropped,
// and empties the buffer.
func (r *ringBuffer) drain() ([]outbound, int) {
	if r.count == 0 {
		return nil, 0
	}

	out := make([]outbound, r.count)
	start := (r.head - r.count + len(r.buf)) % len(r.buf)
	for i := range out {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}

	dropped := r.dropped
	r.count = 0
	r.head = 0
	r.dropped = 0
	return out, dropped
}

func (r *ringBuffer) len() int {
	return r.count
}
