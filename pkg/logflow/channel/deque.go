package channel

import "github.com/randalmurphal/logflow/pkg/logflow/event"

const minDequeSize = 16

// queued is an event together with the byte slots it was charged when it
// was put. Releases always use slots, never the event's current size.
type queued struct {
	evt   *event.Event
	slots int64
}

// deque is a growable ring buffer of queued events. It is not safe for
// concurrent use; MemoryChannel guards it with its queue lock.
type deque struct {
	buf  []queued
	head int
	n    int
}

func (d *deque) len() int { return d.n }

func (d *deque) grow() {
	size := len(d.buf) * 2
	if size < minDequeSize {
		size = minDequeSize
	}
	buf := make([]queued, size)
	for i := 0; i < d.n; i++ {
		buf[i] = d.buf[(d.head+i)%len(d.buf)]
	}
	d.buf = buf
	d.head = 0
}

func (d *deque) pushBack(q queued) {
	if d.n == len(d.buf) {
		d.grow()
	}
	d.buf[(d.head+d.n)%len(d.buf)] = q
	d.n++
}

func (d *deque) pushFront(q queued) {
	if d.n == len(d.buf) {
		d.grow()
	}
	d.head = (d.head - 1 + len(d.buf)) % len(d.buf)
	d.buf[d.head] = q
	d.n++
}

// popFront reports false when the deque is empty.
func (d *deque) popFront() (queued, bool) {
	if d.n == 0 {
		return queued{}, false
	}
	q := d.buf[d.head]
	d.buf[d.head] = queued{}
	d.head = (d.head + 1) % len(d.buf)
	d.n--
	return q, true
}

// snapshot returns the events in order, front first.
func (d *deque) snapshot() []*event.Event {
	out := make([]*event.Event, d.n)
	for i := range out {
		out[i] = d.buf[(d.head+i)%len(d.buf)].evt
	}
	return out
}
