package sim

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/rwirdemann/rfidlabs/rtu"
)

func startServer(t *testing.T, srv *Server) net.Conn {
	t.Helper()
	local, remote := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, remote) }()
	t.Cleanup(func() {
		cancel()
		local.Close()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Serve: %v", err)
			}
		case <-time.After(time.Second):
			t.Error("Serve did not return")
		}
	})
	return local
}

func TestServerAnswersRequests(t *testing.T) {
	srv := NewServer()
	slave := NewSlave(5)
	slave.Set(0, 42)
	srv.AddSlave(slave)
	tr := rtu.NewTransporter(startServer(t, srv), nil)

	got, err := tr.Send(rtu.AppendCRC([]byte{0x05, 0x03, 0x00, 0x00, 0x00, 0x01}))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if want := rtu.AppendCRC([]byte{0x05, 0x03, 0x02, 0x00, 0x2A}); !bytes.Equal(got, want) {
		t.Errorf("response = % X, want % X", got, want)
	}

	got, err = tr.Send(rtu.AppendCRC([]byte{0x05, 0x10, 0x00, 0x01, 0x00, 0x01, 0x02, 0x00, 0x07}))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if want := rtu.AppendCRC([]byte{0x05, 0x10, 0x00, 0x01, 0x00, 0x01}); !bytes.Equal(got, want) {
		t.Errorf("response = % X, want % X", got, want)
	}
	if slave.Register(1) != 7 {
		t.Errorf("register 1 = %d, want 7", slave.Register(1))
	}
}

func TestServerChunkedResponse(t *testing.T) {
	srv := NewServer(WithChunks(2, time.Millisecond))
	srv.AddSlave(NewSlave(1))
	var chunks [][]byte
	tr := rtu.NewTransporter(startServer(t, srv), rtu.TapFunc(func(ev rtu.Event) {
		if ev.Direction == rtu.Received {
			chunks = append(chunks, ev.Data)
		}
	}))

	got, err := tr.Send(rtu.AppendCRC([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x02}))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(got) != 9 {
		t.Fatalf("response length %d, want 9", len(got))
	}
	if len(chunks) != 5 {
		t.Errorf("got %d chunks, want 5", len(chunks))
	}
}

func TestServerIgnoresBadCRCAndUnknownSlave(t *testing.T) {
	srv := NewServer()
	srv.AddSlave(NewSlave(1))
	conn := startServer(t, srv)

	bad := rtu.AppendCRC([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01})
	bad[len(bad)-1] ^= 0xFF
	if _, err := conn.Write(bad); err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Write(rtu.AppendCRC([]byte{0x09, 0x03, 0x00, 0x00, 0x00, 0x01})); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	buf := make([]byte, 16)
	if n, err := conn.Read(buf); err == nil {
		t.Errorf("unexpected response % X", buf[:n])
	}
}
