package rfidlabs

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/rwirdemann/rfidlabs/config"
	"github.com/rwirdemann/rfidlabs/rtu"
	"github.com/rwirdemann/rfidlabs/sim"
)

// simDialer attaches every connection to srv over an in-memory pipe.
func simDialer(t *testing.T, srv *sim.Server) Dialer {
	return func(_ config.Transport, tap rtu.Tap) (Transport, error) {
		local, remote := net.Pipe()
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := srv.Serve(ctx, remote); err != nil {
				t.Errorf("Serve: %v", err)
			}
		}()
		t.Cleanup(func() {
			cancel()
			local.Close()
			<-done
		})
		return rtu.NewTransporter(local, tap), nil
	}
}

type eventRecorder struct {
	mu     sync.Mutex
	events []rtu.Event
}

func (r *eventRecorder) Observe(ev rtu.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) sent() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out [][]byte
	for _, ev := range r.events {
		if ev.Direction == rtu.Sent {
			out = append(out, ev.Data)
		}
	}
	return out
}

func newSimDevice(t *testing.T, slave *sim.Slave) (*Device, *eventRecorder) {
	t.Helper()
	srv := sim.NewServer()
	srv.AddSlave(slave)
	rec := &eventRecorder{}
	transport, err := simDialer(t, srv)(config.Transport{}, rec)
	if err != nil {
		t.Fatal(err)
	}
	return NewDevice("pipe", slave.UnitID(), transport), rec
}

func TestDeviceReadRegisters(t *testing.T) {
	slave := sim.NewSlave(1)
	slave.Set(2000, 0x0102, 0xCAFE)
	d, _ := newSimDevice(t, slave)

	regs, err := d.ReadRegisters(2000, 2)
	if err != nil {
		t.Fatalf("ReadRegisters: %v", err)
	}
	if len(regs) != 2 || regs[0] != 0x0102 || regs[1] != 0xCAFE {
		t.Errorf("regs = %04X", regs)
	}

	input, err := d.ReadInputRegisters(2001, 1)
	if err != nil {
		t.Fatalf("ReadInputRegisters: %v", err)
	}
	if len(input) != 1 || input[0] != 0xCAFE {
		t.Errorf("input = %04X", input)
	}
}

func TestDeviceSingleWriteUsesFC16(t *testing.T) {
	slave := sim.NewSlave(1)
	d, rec := newSimDevice(t, slave)

	if err := d.WriteRegisters(10, 3); err != nil {
		t.Fatalf("WriteRegisters: %v", err)
	}
	sent := rec.sent()
	if len(sent) != 1 {
		t.Fatalf("sent %d frames, want 1", len(sent))
	}
	want := rtu.AppendCRC([]byte{0x01, 0x10, 0x00, 0x0A, 0x00, 0x01, 0x02, 0x00, 0x03})
	if !bytes.Equal(sent[0], want) {
		t.Errorf("request = % X, want % X", sent[0], want)
	}
	if got := slave.Register(10); got != 3 {
		t.Errorf("register 10 = %d, want 3", got)
	}
}

func TestDeviceWriteQuantity(t *testing.T) {
	d, rec := newSimDevice(t, sim.NewSlave(1))
	if err := d.WriteRegisters(0); err == nil {
		t.Error("expected error for empty write")
	}
	if err := d.WriteRegisters(0, make([]uint16, maxWriteQuantity+1)...); err == nil {
		t.Error("expected error for oversized write")
	}
	if n := len(rec.sent()); n != 0 {
		t.Errorf("%d frames sent for rejected writes", n)
	}
}

func TestDeviceException(t *testing.T) {
	d, _ := newSimDevice(t, sim.NewSlave(1).WithRange(0, 99))

	_, err := d.ReadRegisters(100, 1)
	if err == nil {
		t.Fatal("expected exception")
	}
	code, ok := ExceptionCode(err)
	if !ok || code != sim.ExIllegalDataAddress {
		t.Errorf("exception = %d %v, want %d for %v", code, ok, sim.ExIllegalDataAddress, err)
	}
	if _, ok := ExceptionCode(errors.New("timeout")); ok {
		t.Error("plain error reported as exception")
	}
}

func TestDeviceSendRaw(t *testing.T) {
	slave := sim.NewSlave(1)
	slave.Set(0, 42)
	d, _ := newSimDevice(t, slave)

	response, err := d.SendRaw([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01})
	if err != nil {
		t.Fatalf("SendRaw: %v", err)
	}
	want := []byte{0x01, 0x03, 0x02, 0x00, 0x2A, 0x39, 0x9B}
	if !bytes.Equal(response, want) {
		t.Errorf("response = % X, want % X", response, want)
	}
	if _, err := d.SendRaw([]byte{0x01}); err == nil {
		t.Error("expected error for short frame")
	}
}
