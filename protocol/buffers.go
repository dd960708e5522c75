package protocol

import (
	"bytes"
	"sync/atomic"

	"go.einride.tech/can"
)

// LineBuffer collects a serial byte stream and hands it back one
// terminated SLCAN line at a time. A line is closed by CR, or by BEL when
// the adapter rejects a command.
type LineBuffer struct {
	buf      []byte
	start    int // first byte not yet handed out
	limit    int
	overruns uint32 // atomic
}

// NewLineBuffer creates a buffer that discards a partial line once it grows
// past limit bytes without a terminator.
func NewLineBuffer(limit int) *LineBuffer {
	return &LineBuffer{
		buf:   make([]byte, 0, 4*limit),
		limit: limit,
	}
}

// Write appends p. Lines returned by Next are invalid afterwards.
func (b *LineBuffer) Write(p []byte) (int, error) {
	if b.start > 0 {
		n := copy(b.buf, b.buf[b.start:])
		b.buf = b.buf[:n]
		b.start = 0
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// Next returns the next complete line without its terminator. ok is false
// when only a partial line is left. Garbage longer than the limit is dropped
// so the stream can resync on the next terminator.
func (b *LineBuffer) Next() (line []byte, term byte, ok bool) {
	pending := b.buf[b.start:]
	i := bytes.IndexAny(pending, "\r\a")
	if i < 0 {
		if len(pending) > b.limit {
			atomic.AddUint32(&b.overruns, 1)
			b.Reset()
		}
		return nil, 0, false
	}
	b.start += i + 1
	return pending[:i], pending[i], true
}

// Pending returns the number of bytes not yet handed out.
func (b *LineBuffer) Pending() int { return len(b.buf) - b.start }

// Overruns returns how many overlong partial lines were discarded.
func (b *LineBuffer) Overruns() uint32 { return atomic.LoadUint32(&b.overruns) }

// Reset clears the buffer.
func (b *LineBuffer) Reset() {
	b.buf = b.buf[:0]
	b.start = 0
}

// FrameFIFOSize is the capacity of a FrameFIFO. Must be a power of two.
const FrameFIFOSize = 32

// FrameFIFO is a single-producer single-consumer queue of CAN frames.
// The receive interrupt calls Push, the task loop calls Pop; neither side
// takes a lock. The counters run freely and are masked on access, so all
// FrameFIFOSize slots are usable.
type FrameFIFO struct {
	frames  [FrameFIFOSize]can.Frame
	head    uint32 // frames written, owned by the producer
	tail    uint32 // frames read, owned by the consumer
	dropped uint32
}

// Push enqueues f. It returns false and counts a drop when the queue is full.
func (q *FrameFIFO) Push(f can.Frame) bool {
	head := atomic.LoadUint32(&q.head)
	if head-atomic.LoadUint32(&q.tail) == FrameFIFOSize {
		atomic.AddUint32(&q.dropped, 1)
		return false
	}
	q.frames[head&(FrameFIFOSize-1)] = f
	atomic.StoreUint32(&q.head, head+1)
	return true
}

// Pop dequeues the oldest frame.
func (q *FrameFIFO) Pop() (can.Frame, bool) {
	tail := atomic.LoadUint32(&q.tail)
	if tail == atomic.LoadUint32(&q.head) {
		return can.Frame{}, false
	}
	f := q.frames[tail&(FrameFIFOSize-1)]
	atomic.StoreUint32(&q.tail, tail+1)
	return f, true
}

// Len returns the number of queued frames.
func (q *FrameFIFO) Len() int {
	head := atomic.LoadUint32(&q.head)
	tail := atomic.LoadUint32(&q.tail)
	return int(head - tail)
}

// Dropped returns how many frames were rejected because the queue was full.
func (q *FrameFIFO) Dropped() uint32 {
	return atomic.LoadUint32(&q.dropped)
}
