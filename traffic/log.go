package traffic

import (
	"fmt"
	"sync"

	"github.com/rwirdemann/rfidlabs/message"
	"github.com/rwirdemann/rfidlabs/rtu"
)

// DefaultCapacity is the number of frames kept for replay.
const DefaultCapacity = 1000

// Printer shows log lines to the user.
type Printer interface {
	InfoX(m message.Message)
}

// Stats sums up the traffic seen since the last Clear.
type Stats struct {
	TXBytes  int
	RXBytes  int
	TXFrames int
	RXFrames int
}

func (s Stats) String() string {
	return fmt.Sprintf("TX: %d bytes, RX: %d bytes (%d/%d frames)", s.TXBytes, s.RXBytes, s.TXFrames, s.RXFrames)
}

// Log is a bounded history of completed frames. It is the rtu.FrameSink of
// the Monitor and prints every frame as it arrives.
type Log struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	format   Format
	stats    Stats
	printer  Printer
}

// NewLog creates a log that keeps up to capacity frames. printer may be nil.
func NewLog(capacity int, printer Printer) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{capacity: capacity, format: FormatDecode, printer: printer}
}

func (l *Log) HandleFrame(f rtu.Frame) {
	e := Entry{Time: f.Time, Direction: f.Direction, Data: f.Data}

	l.mu.Lock()
	if len(l.entries) == l.capacity {
		copy(l.entries, l.entries[1:])
		l.entries = l.entries[:len(l.entries)-1]
	}
	l.entries = append(l.entries, e)
	if f.Direction == rtu.Sent {
		l.stats.TXBytes += len(f.Data)
		l.stats.TXFrames++
	} else {
		l.stats.RXBytes += len(f.Data)
		l.stats.RXFrames++
	}
	line := Render(e, l.format)
	l.mu.Unlock()

	l.print(line)
}

// SetFormat changes the rendering of subsequent and replayed frames.
func (l *Log) SetFormat(f Format) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.format = f
}

func (l *Log) Format() Format {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.format
}

// Entries returns a copy of the history, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

func (l *Log) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Clear drops the history and resets the statistics.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	l.stats = Stats{}
}

// Replay prints the whole history in the current format and returns the
// number of lines printed.
func (l *Log) Replay() int {
	l.mu.Lock()
	lines := make([]string, 0, len(l.entries))
	for _, e := range l.entries {
		lines = append(lines, Render(e, l.format))
	}
	l.mu.Unlock()

	for _, line := range lines {
		l.print(line)
	}
	return len(lines)
}

func (l *Log) print(line string) {
	if l.printer != nil {
		l.printer.InfoX(message.NewFrame(line))
	}
}
