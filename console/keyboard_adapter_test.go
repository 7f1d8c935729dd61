package console

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rwirdemann/rfidlabs"
	"github.com/rwirdemann/rfidlabs/traffic"
)

type fakeHarness struct {
	calls []string
	regs  []uint16
	err   error
}

func (f *fakeHarness) record(format string, args ...any) error {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
	return f.err
}

func (f *fakeHarness) Connect() error    { return f.record("connect") }
func (f *fakeHarness) Disconnect() error { return f.record("disconnect") }
func (f *fakeHarness) Connected() bool   { return true }
func (f *fakeHarness) ReadRegisters(addr, count uint16) ([]uint16, error) {
	return f.regs, f.record("read %d %d", addr, count)
}
func (f *fakeHarness) ReadInputRegisters(addr, count uint16) ([]uint16, error) {
	return nil, f.record("input %d %d", addr, count)
}
func (f *fakeHarness) WriteRegisters(addr uint16, values ...uint16) error {
	return f.record("write %d %v", addr, values)
}
func (f *fakeHarness) SendRaw(frame []byte) ([]byte, error) {
	return nil, f.record("raw % X", frame)
}
func (f *fakeHarness) StartPolling() error {
	return f.record("poll on")
}
func (f *fakeHarness) StopPolling() {
	f.record("poll off")
}
func (f *fakeHarness) Polling() bool {
	return false
}
func (f *fakeHarness) SetTrafficLogging(on bool) {
	f.record("log %v", on)
}
func (f *fakeHarness) SetFormat(fm traffic.Format) {
	f.record("format %s", fm)
}
func (f *fakeHarness) History() int {
	f.record("history")
	return 4
}
func (f *fakeHarness) Stats() traffic.Stats {
	return traffic.Stats{TXBytes: 8, RXBytes: 7, TXFrames: 1, RXFrames: 1}
}
func (f *fakeHarness) ClearTraffic() {
	f.record("clear")
}
func (f *fakeHarness) Status() string {
	return "Port: pipe"
}

var _ rfidlabs.ControlPort = (*fakeHarness)(nil)

func newTestAdapter(h *fakeHarness) (*KeyboardAdapter, *bytes.Buffer) {
	a := NewKeyboardAdapter(h, "")
	var out bytes.Buffer
	a.out = &out
	return a, &out
}

func TestExecuteCommands(t *testing.T) {
	tests := []struct {
		line string
		call string
	}{
		{"connect", "connect"},
		{"disconnect", "disconnect"},
		{"read 2000", "read 2000 1"},
		{"READ 0x7D0 10", "read 2000 10"},
		{"input 5 2", "input 5 2"},
		{"write 10 3", "write 10 [3]"},
		{"write 0x10 0xCAFE 1", "write 16 [51966 1]"},
		{"raw 01 03 00 00 00 01", "raw 01 03 00 00 00 01"},
		{"raw 0103000A0001", "raw 01 03 00 0A 00 01"},
		{"poll on", "poll on"},
		{"poll off", "poll off"},
		{"log off", "log false"},
		{"log ON", "log true"},
		{"format hex", "format hex"},
		{"history", "history"},
		{"clear", "clear"},
		{"text 36 8", "read 36 8"},
		{"bytes 2101 5", "read 2101 3"},
		{"writebytes 2000 01 02 03", "write 2000 [513 3]"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			h := &fakeHarness{}
			a, out := newTestAdapter(h)
			if quit := a.Execute(tt.line); quit {
				t.Fatal("unexpected quit")
			}
			if len(h.calls) != 1 || h.calls[0] != tt.call {
				t.Errorf("calls = %q, want %q (output %q)", h.calls, tt.call, out.String())
			}
		})
	}
}

func TestExecuteRejectsBadArguments(t *testing.T) {
	for _, line := range []string{
		"read",
		"read x",
		"read 1 0",
		"read 1 126",
		"write 1",
		"write 1 0x10000",
		"raw",
		"raw 0",
		"poll maybe",
		"log",
		"format binary",
		"text 1",
		"bytes 1 251",
		"writebytes 1",
	} {
		t.Run(line, func(t *testing.T) {
			h := &fakeHarness{}
			a, out := newTestAdapter(h)
			a.Execute(line)
			if len(h.calls) != 0 {
				t.Errorf("harness called: %q", h.calls)
			}
			if !strings.HasPrefix(out.String(), "Error:") {
				t.Errorf("output = %q, want error", out.String())
			}
		})
	}
}

func TestExecuteReportsHarnessErrors(t *testing.T) {
	h := &fakeHarness{err: rfidlabs.ErrNotConnected}
	a, out := newTestAdapter(h)
	a.Execute("read 1")
	if !strings.Contains(out.String(), rfidlabs.ErrNotConnected.Error()) {
		t.Errorf("output = %q", out.String())
	}
	if !errors.Is(h.err, rfidlabs.ErrNotConnected) {
		t.Fatal("unexpected error value")
	}
}

func TestExecuteOutput(t *testing.T) {
	h := &fakeHarness{}
	a, out := newTestAdapter(h)

	a.Execute("")
	a.Execute("stats")
	a.Execute("status")
	a.Execute("history")
	a.Execute("bogus")
	got := out.String()
	for _, want := range []string{"TX: 8 bytes, RX: 7 bytes (1/1 frames)", "Port: pipe", "4 frames", "Unknown command: bogus"} {
		if !strings.Contains(got, want) {
			t.Errorf("output %q misses %q", got, want)
		}
	}

	for _, q := range []string{"quit", "exit", "q"} {
		if !a.Execute(q) {
			t.Errorf("%s did not quit", q)
		}
	}
}

func TestExecuteByteBlobs(t *testing.T) {
	h := &fakeHarness{regs: []uint16{0x4142, 0x4300}}
	a, out := newTestAdapter(h)

	a.Execute("text 28 2")
	a.Execute("bytes 2101 3")
	got := out.String()
	for _, want := range []string{`Text: "ABC"`, "Bytes: 42 41 00"} {
		if !strings.Contains(got, want) {
			t.Errorf("output %q misses %q", got, want)
		}
	}
}
