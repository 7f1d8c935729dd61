package rfidlabs

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/rwirdemann/rfidlabs/config"
	"github.com/rwirdemann/rfidlabs/message"
	"github.com/rwirdemann/rfidlabs/rtu"
	"github.com/rwirdemann/rfidlabs/traffic"
)

var _ ControlPort = (*Session)(nil)

// Dialer opens the link to the reader.
type Dialer func(cfg config.Transport, tap rtu.Tap) (Transport, error)

// SessionOption configures a Session.
type SessionOption func(s *Session)

// WithDialer replaces Dial, e.g. to attach a simulated reader.
func WithDialer(d Dialer) SessionOption {
	return func(s *Session) {
		s.dial = d
	}
}

// WithPollerOptions appends options to every poller the session starts.
func WithPollerOptions(opts ...PollerOption) SessionOption {
	return func(s *Session) {
		s.pollOpts = append(s.pollOpts, opts...)
	}
}

// Session is one operator session with a reader: the connection, the raw
// traffic monitor and the background poller.
type Session struct {
	cfg      config.Config
	port     ProtocolPort
	dial     Dialer
	pollOpts []PollerOption

	monitor *traffic.Monitor
	log     *traffic.Log

	ctx      context.Context
	mu       sync.Mutex
	device   *Device
	pollStop context.CancelFunc
	pollDone chan struct{}
}

func NewSession(cfg config.Config, port ProtocolPort, opts ...SessionOption) *Session {
	s := &Session{
		cfg:  cfg,
		port: port,
		dial: Dial,
		ctx:  context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.log = traffic.NewLog(cfg.Traffic.Capacity, port)
	if f, err := traffic.ParseFormat(cfg.Traffic.Format); err == nil {
		s.log.SetFormat(f)
	}
	var monitorOpts []traffic.Option
	if cfg.Traffic.FlushTimeout > 0 {
		monitorOpts = append(monitorOpts, traffic.WithFlushTimeout(cfg.Traffic.FlushTimeout))
	}
	s.monitor = traffic.NewMonitor(s.log, monitorOpts...)
	if !cfg.Traffic.Enabled {
		s.monitor.Disable()
	}
	return s
}

// Run drives the traffic monitor until ctx is done and disconnects
// afterwards. Polling started later is bound to ctx as well.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	err := s.monitor.Run(ctx)
	if s.Connected() {
		if cerr := s.Disconnect(); cerr != nil {
			slog.Error("failed to disconnect", "err", cerr)
		}
	}
	return err
}

func (s *Session) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device != nil {
		return fmt.Errorf("already connected to %s", s.device.Name())
	}

	t, err := s.dial(s.cfg.Transport, s.monitor)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	s.device = NewDevice(s.cfg.Transport.Address, s.cfg.SlaveID, t)
	s.port.Info(fmt.Sprintf("Connected to %s, slave %d", s.cfg.Transport.Address, s.cfg.SlaveID))
	return nil
}

func (s *Session) Disconnect() error {
	s.StopPolling()

	s.mu.Lock()
	d := s.device
	s.device = nil
	s.mu.Unlock()
	if d == nil {
		return ErrNotConnected
	}
	if err := d.Close(); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	s.port.Info(fmt.Sprintf("Disconnected from %s", d.Name()))
	return nil
}

func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device != nil
}

func (s *Session) currentDevice() (*Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil {
		return nil, ErrNotConnected
	}
	return s.device, nil
}

// ReadRegisters reads holding registers and prints them as a table.
func (s *Session) ReadRegisters(addr, count uint16) ([]uint16, error) {
	d, err := s.currentDevice()
	if err != nil {
		return nil, err
	}
	regs, err := d.ReadRegisters(addr, count)
	if err != nil {
		return nil, err
	}
	s.port.Println(FormatRegisters(addr, regs))
	return regs, nil
}

// ReadInputRegisters reads input registers and prints them as a table.
func (s *Session) ReadInputRegisters(addr, count uint16) ([]uint16, error) {
	d, err := s.currentDevice()
	if err != nil {
		return nil, err
	}
	regs, err := d.ReadInputRegisters(addr, count)
	if err != nil {
		return nil, err
	}
	s.port.Println(FormatRegisters(addr, regs))
	return regs, nil
}

func (s *Session) WriteRegisters(addr uint16, values ...uint16) error {
	d, err := s.currentDevice()
	if err != nil {
		return err
	}
	if err := d.WriteRegisters(addr, values...); err != nil {
		return err
	}
	s.port.Info(fmt.Sprintf("Wrote %d register(s) at %d", len(values), addr))
	return nil
}

func (s *Session) SendRaw(frame []byte) ([]byte, error) {
	d, err := s.currentDevice()
	if err != nil {
		return nil, err
	}
	response, err := d.SendRaw(frame)
	if err != nil {
		return response, err
	}
	s.port.Info(fmt.Sprintf("Raw response: % X", response))
	return response, nil
}

// StartPolling reads the configured register block in the background. The
// poller stops by itself after too many consecutive errors.
func (s *Session) StartPolling() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil {
		return ErrNotConnected
	}
	if s.pollStop != nil {
		return nil
	}

	p := s.cfg.Poll
	var last []uint16
	onData := func(values []uint16) {
		if slices.Equal(last, values) {
			return
		}
		last = values
		s.port.InfoX(message.NewInfo(fmt.Sprintf("Poll %d: %s", p.Address, words(values))))
	}
	onError := func(err error, count, max int) {
		s.port.Info(fmt.Sprintf("Polling error (%d/%d): %v", count, max, err))
	}
	opts := []PollerOption{WithInterval(p.Interval), WithMaxErrors(p.MaxErrors), WithErrorHandler(onError)}
	poller := NewPoller(s.device, p.Address, p.Count, onData, append(opts, s.pollOpts...)...)

	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan struct{})
	s.pollStop, s.pollDone = cancel, done
	go func() {
		defer close(done)
		defer cancel()
		err := poller.Run(ctx)

		s.mu.Lock()
		if s.pollDone == done {
			s.pollStop, s.pollDone = nil, nil
		}
		s.mu.Unlock()
		if err != nil {
			s.port.Info(fmt.Sprintf("Auto-polling disabled: %v", err))
		}
	}()
	s.port.Info("Started polling")
	return nil
}

func (s *Session) StopPolling() {
	s.mu.Lock()
	stop, done := s.pollStop, s.pollDone
	s.pollStop, s.pollDone = nil, nil
	s.mu.Unlock()
	if stop == nil {
		return
	}
	stop()
	<-done
	s.port.Info("Stopped polling")
}

func (s *Session) Polling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pollStop != nil
}

// SetTrafficLogging turns the raw traffic capture on or off.
func (s *Session) SetTrafficLogging(on bool) {
	if on {
		s.monitor.Enable()
		return
	}
	s.monitor.Disable()
}

func (s *Session) SetFormat(f traffic.Format) {
	s.log.SetFormat(f)
}

// History prints the captured traffic again and returns the number of
// frames.
func (s *Session) History() int {
	return s.log.Replay()
}

func (s *Session) Stats() traffic.Stats {
	return s.log.Stats()
}

func (s *Session) ClearTraffic() {
	s.log.Clear()
}

// Entries returns the captured frames, oldest first.
func (s *Session) Entries() []traffic.Entry {
	return s.log.Entries()
}

func (s *Session) Status() string {
	t := s.cfg.Transport
	var b strings.Builder
	fmt.Fprintf(&b, "Port: %s (%s", t.Address, t.Type)
	if t.Type == "rtu" {
		fmt.Fprintf(&b, ", %d %d%s%d", t.BaudRate, t.DataBits, t.Parity, t.StopBits)
	}
	b.WriteString(")")
	fmt.Fprintf(&b, "\n  Slave: %d", s.cfg.SlaveID)
	fmt.Fprintf(&b, "\n  Connected: %s", onOff(s.Connected()))
	fmt.Fprintf(&b, "\n  Polling: %s", onOff(s.Polling()))
	fmt.Fprintf(&b, "\n  Traffic: %s (%s)", onOff(s.monitor.Enabled()), s.log.Format())
	fmt.Fprintf(&b, "\n  %s", s.log.Stats())
	if n := s.monitor.Dropped(); n > 0 {
		fmt.Fprintf(&b, "\n  Dropped events: %d", n)
	}
	return b.String()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func words(values []uint16) string {
	s := make([]string, len(values))
	for i, v := range values {
		s[i] = fmt.Sprintf("%04X", v)
	}
	return strings.Join(s, " ")
}
