package tcp

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

func TestHandlerServesDialedConnection(t *testing.T) {
	h, err := NewHandler("tcp://127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := h.Start(ctx, func(ctx context.Context, conn net.Conn) {
		defer conn.Close()
		io.Copy(conn, conn)
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.Stop()

	c, err := Dial("tcp://"+h.Addr(), time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	if _, err := c.Write([]byte{0x01, 0x03}); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 2)
	if _, err := io.ReadFull(c, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if buf[0] != 0x01 || buf[1] != 0x03 {
		t.Errorf("echo = % X", buf)
	}
}

func TestConnectionReadTimesOut(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()
	c := NewConnection(local, 20*time.Millisecond)
	defer c.Close()

	_, err := c.Read(make([]byte, 1))
	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Errorf("Read = %v, want timeout", err)
	}
}

func TestNewHandlerRejectsEmptyURL(t *testing.T) {
	if _, err := NewHandler(""); err == nil {
		t.Error("expected error")
	}
}
