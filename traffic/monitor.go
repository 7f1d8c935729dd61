package traffic

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rwirdemann/rfidlabs/rtu"
)

const defaultQueueSize = 256

// Option configures a Monitor.
type Option func(m *Monitor)

// WithFlushTimeout sets the receive frame flush timeout of the assembler.
func WithFlushTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		m.flushTimeout = d
	}
}

// WithQueueSize sets how many transport events may wait for the monitor
// goroutine before new ones are dropped.
func WithQueueSize(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.queueSize = n
		}
	}
}

// Monitor owns an rtu.Assembler and runs it on a single goroutine. The
// transport reports chunks through Observe from any goroutine. Chunks, flush
// timer callbacks and resets share one queue, so the frame buffer is never
// touched concurrently and a reset never overtakes earlier chunks.
type Monitor struct {
	flushTimeout time.Duration
	queueSize    int

	asm     *rtu.Assembler
	queue   chan func()
	done    chan struct{}
	stop    sync.Once
	enabled atomic.Bool
	dropped atomic.Int64
}

// NewMonitor creates an enabled monitor that hands frames to sink.
func NewMonitor(sink rtu.FrameSink, opts ...Option) *Monitor {
	m := &Monitor{
		flushTimeout: rtu.DefaultFlushTimeout,
		queueSize:    defaultQueueSize,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.queue = make(chan func(), m.queueSize)
	m.asm = rtu.NewAssembler(sink, loopScheduler{m}, rtu.WithFlushTimeout(m.flushTimeout))
	m.enabled.Store(true)
	return m
}

// Observe queues ev for reassembly. It never blocks: events are discarded
// while the monitor is disabled or its queue is full.
func (m *Monitor) Observe(ev rtu.Event) {
	if !m.enabled.Load() {
		return
	}
	select {
	case m.queue <- func() { m.asm.Handle(ev) }:
	default:
		n := m.dropped.Add(1)
		slog.Warn("traffic queue full, event dropped", "direction", ev.Direction, "len", len(ev.Data), "dropped", n)
	}
}

// Run processes events and timer callbacks in arrival order until ctx is
// done.
func (m *Monitor) Run(ctx context.Context) error {
	defer m.stop.Do(func() { close(m.done) })
	for {
		select {
		case <-ctx.Done():
			return nil
		case task := <-m.queue:
			task()
		}
	}
}

// Enable resumes capturing traffic.
func (m *Monitor) Enable() {
	m.enabled.Store(true)
}

// Disable stops capturing. A partially assembled frame is discarded.
func (m *Monitor) Disable() {
	m.enabled.Store(false)
	m.post(m.asm.Reset)
}

func (m *Monitor) Enabled() bool {
	return m.enabled.Load()
}

// Dropped counts events lost to a full queue.
func (m *Monitor) Dropped() int64 {
	return m.dropped.Load()
}

func (m *Monitor) post(task func()) {
	select {
	case m.queue <- task:
	case <-m.done:
	}
}

// loopScheduler runs timer callbacks on the monitor goroutine.
type loopScheduler struct {
	m *Monitor
}

func (s loopScheduler) AfterFunc(d time.Duration, f func()) rtu.Timer {
	return time.AfterFunc(d, func() { s.m.post(f) })
}
