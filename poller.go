package rfidlabs

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	DefaultPollInterval  = 500 * time.Millisecond
	DefaultPollMaxErrors = 3
	defaultPollBackoff   = time.Second
)

// RegisterReader is what the poller reads from, usually a *Device.
type RegisterReader interface {
	ReadRegisters(addr, count uint16) ([]uint16, error)
}

// PollerOption configures a Poller.
type PollerOption func(p *Poller)

func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithMaxErrors sets the number of consecutive errors after which polling
// stops.
func WithMaxErrors(n int) PollerOption {
	return func(p *Poller) {
		if n > 0 {
			p.maxErrors = n
		}
	}
}

// WithBackoff sets the extra pause after a failed read.
func WithBackoff(d time.Duration) PollerOption {
	return func(p *Poller) {
		p.backoff = d
	}
}

// WithErrorHandler is called for every failed read with the current number
// of consecutive errors.
func WithErrorHandler(f func(err error, count, max int)) PollerOption {
	return func(p *Poller) {
		p.onError = f
	}
}

// Poller periodically reads a block of holding registers.
type Poller struct {
	reader    RegisterReader
	addr      uint16
	count     uint16
	interval  time.Duration
	maxErrors int
	backoff   time.Duration
	onData    func(values []uint16)
	onError   func(err error, count, max int)
}

// NewPoller reads count registers at addr from reader and hands every
// result to onData.
func NewPoller(reader RegisterReader, addr, count uint16, onData func(values []uint16), opts ...PollerOption) *Poller {
	p := &Poller{
		reader:    reader,
		addr:      addr,
		count:     count,
		interval:  DefaultPollInterval,
		maxErrors: DefaultPollMaxErrors,
		backoff:   defaultPollBackoff,
		onData:    onData,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls until ctx is done, which returns nil, or until maxErrors reads
// in a row have failed, which returns the last error.
func (p *Poller) Run(ctx context.Context) error {
	errCount := 0
	for {
		values, err := p.reader.ReadRegisters(p.addr, p.count)
		pause := p.interval
		if err != nil {
			errCount++
			slog.Debug("poll failed", "count", errCount, "max", p.maxErrors, "err", err)
			if p.onError != nil {
				p.onError(err, errCount, p.maxErrors)
			}
			if errCount >= p.maxErrors {
				return fmt.Errorf("polling stopped after %d consecutive errors: %w", errCount, err)
			}
			pause = p.backoff
		} else {
			errCount = 0
			if p.onData != nil {
				p.onData(values)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(pause):
		}
	}
}
