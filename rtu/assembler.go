package rtu

import (
	"log/slog"
	"time"
)

// DefaultFlushTimeout is how long the assembler waits for more bytes before
// it gives up on an incomplete receive frame.
const DefaultFlushTimeout = 50 * time.Millisecond

// FrameSink consumes completed frames.
type FrameSink interface {
	HandleFrame(f Frame)
}

// FrameSinkFunc adapts a function to FrameSink.
type FrameSinkFunc func(f Frame)

func (fn FrameSinkFunc) HandleFrame(f Frame) {
	fn(f)
}

// Timer is a pending single shot callback.
type Timer interface {
	// Stop cancels the callback. It returns false if the callback already
	// ran or was already handed to its executor.
	Stop() bool
}

// Scheduler registers single shot callbacks. Callbacks must run on the
// goroutine that owns the Assembler.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// RealScheduler schedules callbacks with time.AfterFunc. The callback runs
// on its own goroutine, so it only fits owners that synchronize on their
// own.
type RealScheduler struct{}

func (RealScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// State of the Assembler.
type State int

const (
	Idle State = iota
	Accumulating
)

func (s State) String() string {
	if s == Idle {
		return "idle"
	}
	return "accumulating"
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(a *Assembler)

// WithFlushTimeout sets the timeout after which incomplete receive frames are
// flushed. Non-positive values keep the default.
func WithFlushTimeout(d time.Duration) AssemblerOption {
	return func(a *Assembler) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// Assembler rebuilds logical frames from transport chunks. Sent chunks are
// passed through as written, received chunks are collected until IsComplete
// holds or the flush timeout elapses.
//
// An Assembler is not safe for concurrent use. Handle, Reset and the timer
// callbacks must all run on one goroutine.
type Assembler struct {
	sink    FrameSink
	sched   Scheduler
	timeout time.Duration

	buf     []byte
	last    time.Time
	timer   Timer
	gen     uint64
	flushes int
}

// NewAssembler creates an idle assembler that delivers frames to sink.
func NewAssembler(sink FrameSink, sched Scheduler, opts ...AssemblerOption) *Assembler {
	a := &Assembler{sink: sink, sched: sched, timeout: DefaultFlushTimeout}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handle feeds one transport event into the assembler.
func (a *Assembler) Handle(ev Event) {
	if len(ev.Data) == 0 {
		return
	}
	if ev.Direction == Sent {
		a.emit(Frame{Time: ev.Time, Direction: Sent, Data: append([]byte(nil), ev.Data...)})
		return
	}

	a.cancel()
	a.buf = append(a.buf, ev.Data...)
	a.last = ev.Time
	if IsComplete(a.buf) {
		a.emitBuffer()
		return
	}

	gen := a.gen
	a.timer = a.sched.AfterFunc(a.timeout, func() { a.expire(gen) })
}

// Reset drops any partial frame and cancels the pending flush.
func (a *Assembler) Reset() {
	a.cancel()
	a.buf = nil
}

// State tells whether a receive frame is in progress.
func (a *Assembler) State() State {
	if len(a.buf) == 0 {
		return Idle
	}
	return Accumulating
}

// Pending returns a copy of the bytes collected for the frame in progress.
func (a *Assembler) Pending() []byte {
	return append([]byte(nil), a.buf...)
}

// Flushes counts frames emitted by timeout rather than by detection.
func (a *Assembler) Flushes() int {
	return a.flushes
}

// cancel stops the pending timer before the buffer changes. The generation
// bump makes sure a callback that was already handed off becomes a no-op.
func (a *Assembler) cancel() {
	a.gen++
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

func (a *Assembler) expire(gen uint64) {
	if gen != a.gen {
		slog.Debug("stale flush ignored", "gen", gen, "current", a.gen)
		return
	}
	a.timer = nil
	if len(a.buf) == 0 {
		return
	}
	a.flushes++
	slog.Debug("flushing incomplete frame", "len", len(a.buf))
	a.emitBuffer()
}

func (a *Assembler) emitBuffer() {
	f := Frame{Time: a.last, Direction: Received, Data: a.buf}
	a.buf = nil
	a.emit(f)
}

func (a *Assembler) emit(f Frame) {
	if a.sink != nil {
		a.sink.HandleFrame(f)
	}
}
