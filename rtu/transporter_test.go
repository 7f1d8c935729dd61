package rtu

import (
	"bytes"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) Observe(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// device reads one request of reqLen bytes and answers with chunks.
func device(t *testing.T, conn net.Conn, reqLen int, chunks ...[]byte) {
	t.Helper()
	go func() {
		req := make([]byte, reqLen)
		if _, err := io.ReadFull(conn, req); err != nil {
			return
		}
		for _, c := range chunks {
			if _, err := conn.Write(c); err != nil {
				return
			}
		}
	}()
}

func TestTransporterReportsChunks(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()
	rec := &eventRecorder{}
	tr := NewTransporter(local, rec)
	defer tr.Close()

	response := AppendCRC([]byte{0x01, 0x03, 0x02, 0x00, 0x2A})
	device(t, remote, 8, response[:3], response[3:])

	request := AppendCRC([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01})
	got, err := tr.Send(request)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !bytes.Equal(got, response) {
		t.Errorf("response = % X, want % X", got, response)
	}

	if len(rec.events) != 3 {
		t.Fatalf("got %d events, want 3", len(rec.events))
	}
	if rec.events[0].Direction != Sent || !bytes.Equal(rec.events[0].Data, request) {
		t.Errorf("event 0 = %v, want sent request", rec.events[0])
	}
	if rec.events[1].Direction != Received || !bytes.Equal(rec.events[1].Data, response[:3]) {
		t.Errorf("event 1 = %v, want first chunk", rec.events[1])
	}
	if rec.events[2].Direction != Received || !bytes.Equal(rec.events[2].Data, response[3:]) {
		t.Errorf("event 2 = %v, want second chunk", rec.events[2])
	}
}

func TestTransporterException(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()
	tr := NewTransporter(local, nil)
	defer tr.Close()

	exception := AppendCRC([]byte{0x01, 0x83, 0x02})
	device(t, remote, 8, exception)

	got, err := tr.Send(AppendCRC([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x10}))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !bytes.Equal(got, exception) {
		t.Errorf("response = % X, want % X", got, exception)
	}
}

func TestTransporterUnknownFunctionUsesDetector(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()
	tr := NewTransporter(local, nil)
	defer tr.Close()

	response := AppendCRC([]byte{0x01, 0x41, 0x00, 0x07})
	request := AppendCRC([]byte{0x01, 0x41, 0x00, 0x00, 0x00, 0x00})
	device(t, remote, len(request), response[:2], response[2:])

	got, err := tr.Send(request)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !bytes.Equal(got, response) {
		t.Errorf("response = % X, want % X", got, response)
	}
}

func TestTransporterPartialResponse(t *testing.T) {
	local, remote := net.Pipe()
	tr := NewTransporter(local, nil)
	defer tr.Close()

	go func() {
		req := make([]byte, 8)
		io.ReadFull(remote, req)
		remote.Write([]byte{0x01, 0x03, 0x04, 0x00})
		remote.Close()
	}()

	got, err := tr.Send(AppendCRC([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x02}))
	if err == nil {
		t.Fatal("expected error for truncated response")
	}
	if !errors.Is(err, io.EOF) {
		t.Errorf("err = %v, want wrapped io.EOF", err)
	}
	if !bytes.Equal(got, []byte{0x01, 0x03, 0x04, 0x00}) {
		t.Errorf("partial = % X", got)
	}
}

func TestTransporterClosed(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()
	tr := NewTransporter(local, nil)
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := tr.Send([]byte{0x01, 0x03}); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
