package rtu

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/goburrow/serial"
)

var (
	ErrClosed       = errors.New("rtu: transport closed")
	ErrFrameTooLong = errors.New("rtu: response exceeds maximum frame size")
)

// maxEmptyReads bounds the number of consecutive (0, nil) reads.
const maxEmptyReads = 16

// Tap receives every chunk written to or read from the line.
type Tap interface {
	Observe(ev Event)
}

// TapFunc adapts a function to Tap.
type TapFunc func(ev Event)

func (fn TapFunc) Observe(ev Event) {
	fn(ev)
}

// Transporter sends RTU request ADUs over a byte stream and reads back the
// response. It satisfies the Transporter interface of github.com/goburrow/modbus
// and reports the raw traffic to a Tap: one Sent event per request, one
// Received event per chunk returned by the underlying Read.
type Transporter struct {
	port io.ReadWriteCloser
	tap  Tap
	now  func() time.Time
	mu   sync.Mutex
}

// NewTransporter creates a transporter on port. tap may be nil.
func NewTransporter(port io.ReadWriteCloser, tap Tap) *Transporter {
	return &Transporter{port: port, tap: tap, now: time.Now}
}

// OpenSerial opens a serial line and wraps it into a Transporter.
func OpenSerial(config *serial.Config, tap Tap) (*Transporter, error) {
	port, err := serial.Open(config)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	slog.Debug("serial port opened", "address", config.Address, "baud", config.BaudRate, "parity", config.Parity)
	return NewTransporter(port, tap), nil
}

// Send writes aduRequest and returns the response ADU. A response cut short
// by a read error or timeout is returned together with the error.
func (t *Transporter) Send(aduRequest []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil, ErrClosed
	}

	if _, err := t.port.Write(aduRequest); err != nil {
		return nil, fmt.Errorf("failed to write request: %w", err)
	}
	t.observe(Sent, aduRequest)

	expected := ResponseLength(aduRequest)
	buf := make([]byte, MaxFrameSize)
	n, idle := 0, 0
	for {
		k, err := t.port.Read(buf[n:])
		if k > 0 {
			t.observe(Received, buf[n:n+k])
			n += k
			idle = 0
		}
		if responseDone(aduRequest, buf[:n], expected) {
			return append([]byte(nil), buf[:n]...), nil
		}
		if err != nil {
			if n == 0 {
				return nil, fmt.Errorf("failed to read response: %w", err)
			}
			return append([]byte(nil), buf[:n]...), fmt.Errorf("incomplete response after %d bytes: %w", n, err)
		}
		if n == len(buf) {
			return append([]byte(nil), buf[:n]...), ErrFrameTooLong
		}
		if k == 0 {
			idle++
			if idle >= maxEmptyReads {
				return append([]byte(nil), buf[:n]...), io.ErrNoProgress
			}
		}
	}
}

// Close closes the underlying port. Further Sends fail with ErrClosed.
func (t *Transporter) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	return err
}

func (t *Transporter) observe(dir Direction, data []byte) {
	if t.tap != nil {
		t.tap.Observe(NewEvent(dir, data, t.now()))
	}
}

func responseDone(request, response []byte, expected int) bool {
	if len(response) < MinFrameSize {
		return false
	}
	if len(request) >= 2 && IsException(response) && response[1]&^exceptionFlag == request[1] {
		return len(response) >= exceptionFrameSize
	}
	if expected > 0 {
		return len(response) >= expected
	}
	return IsComplete(response)
}
