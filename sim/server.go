package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/goburrow/serial"
	"github.com/rwirdemann/rfidlabs/rtu"
)

// ServerOption configures a Server.
type ServerOption func(s *Server)

// WithChunks makes the server write responses in pieces of size bytes with
// delay in between, the way slow serial converters deliver them.
func WithChunks(size int, delay time.Duration) ServerOption {
	return func(s *Server) {
		s.chunkSize = size
		s.chunkDelay = delay
	}
}

// Server answers RTU requests read from a byte stream on behalf of its
// slaves. Requests for unknown unit ids stay unanswered like on a real bus.
type Server struct {
	mu         sync.RWMutex
	slaves     map[uint8]*Slave
	chunkSize  int
	chunkDelay time.Duration
}

func NewServer(opts ...ServerOption) *Server {
	s := &Server{slaves: make(map[uint8]*Slave)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddSlave attaches slave to the bus.
func (s *Server) AddSlave(slave *Slave) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slaves[slave.UnitID()] = slave
	slog.Debug("slave added", "unitID", slave.UnitID())
}

// Serve handles requests on conn until ctx is done or the stream ends. A
// read timeout counts as an inter-frame gap and drops a partial request.
func (s *Server) Serve(ctx context.Context, conn io.ReadWriter) error {
	if c, ok := conn.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { c.Close() })
		defer stop()
	}

	var pending []byte
	buffer := make([]byte, rtu.MaxFrameSize)
	for {
		n, err := conn.Read(buffer)
		if n > 0 {
			pending = append(pending, buffer[:n]...)
			pending = s.drain(conn, pending)
		}
		if err != nil {
			if isTimeout(err) {
				if len(pending) > 0 {
					slog.Debug("partial request dropped", "data", fmt.Sprintf("% X", pending))
					pending = nil
				}
				continue
			}
			if ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("failed to read request: %w", err)
		}
	}
}

// drain answers every complete request at the front of pending and returns
// the remainder.
func (s *Server) drain(w io.Writer, pending []byte) []byte {
	for {
		length := rtu.RequestLength(pending)
		if length < 0 {
			slog.Error("unsupported request dropped", "data", fmt.Sprintf("% X", pending))
			return nil
		}
		if length > rtu.MaxFrameSize {
			slog.Error("oversized request dropped", "length", length)
			return nil
		}
		if length == 0 || len(pending) < length {
			return pending
		}

		frame := pending[:length]
		pending = append([]byte(nil), pending[length:]...)
		if !rtu.ValidCRC(frame) {
			slog.Error("crc's not equal", "data", fmt.Sprintf("% X", frame))
			continue
		}
		if response := s.handle(frame); response != nil {
			if err := s.write(w, response); err != nil {
				slog.Error("failed to write response", "err", err)
			}
		}
	}
}

func (s *Server) handle(frame []byte) []byte {
	pdu := PDU{UnitId: frame[0], FunctionCode: frame[1], Payload: frame[2 : len(frame)-2]}
	s.mu.RLock()
	slave, exists := s.slaves[pdu.UnitId]
	s.mu.RUnlock()
	if !exists {
		slog.Debug("slave does not exist", "unitID", pdu.UnitId)
		return nil
	}

	res := slave.Process(pdu)
	if res == nil {
		return nil
	}
	// Build complete RTU frame: UnitId + FunctionCode + Payload + CRC
	response := make([]byte, 0, 4+len(res.Payload))
	response = append(response, res.UnitId, res.FunctionCode)
	response = append(response, res.Payload...)
	return rtu.AppendCRC(response)
}

func (s *Server) write(w io.Writer, response []byte) error {
	if s.chunkSize <= 0 {
		_, err := w.Write(response)
		return err
	}
	for start := 0; start < len(response); start += s.chunkSize {
		if start > 0 && s.chunkDelay > 0 {
			time.Sleep(s.chunkDelay)
		}
		end := min(start+s.chunkSize, len(response))
		if _, err := w.Write(response[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, serial.ErrTimeout) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
