package rfidlabs

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/goburrow/modbus"
	"github.com/goburrow/serial"
	"github.com/rwirdemann/rfidlabs/config"
	"github.com/rwirdemann/rfidlabs/encoding"
	"github.com/rwirdemann/rfidlabs/rtu"
	"github.com/rwirdemann/rfidlabs/tcp"
)

// maxWriteQuantity is the register limit of one FC16 request.
const maxWriteQuantity = 123

var ErrNotConnected = errors.New("not connected to modbus device")

// Transport is the byte level link to the reader.
type Transport interface {
	modbus.Transporter
	Close() error
}

// Dial opens the transport described by cfg and reports its traffic to tap.
func Dial(cfg config.Transport, tap rtu.Tap) (Transport, error) {
	switch cfg.Type {
	case "rtu":
		t, err := rtu.OpenSerial(&serial.Config{
			Address:  cfg.Address,
			BaudRate: cfg.BaudRate,
			DataBits: cfg.DataBits,
			StopBits: cfg.StopBits,
			Parity:   cfg.Parity,
			Timeout:  cfg.Timeout,
		}, tap)
		if err != nil {
			return nil, err
		}
		return t, nil
	case "tcp":
		conn, err := tcp.Dial(cfg.Address, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		return rtu.NewTransporter(conn, tap), nil
	}
	return nil, fmt.Errorf("unknown transport type %q", cfg.Type)
}

// Device talks to the reader over Modbus RTU.
type Device struct {
	name      string
	slaveID   uint8
	transport Transport
	client    modbus.Client
}

// NewDevice uses the RTU packager of github.com/goburrow/modbus on top of
// transport, so every ADU passes through the traffic tap of transport.
func NewDevice(name string, slaveID uint8, transport Transport) *Device {
	packager := modbus.NewRTUClientHandler(name)
	packager.SlaveId = slaveID
	return &Device{
		name:      name,
		slaveID:   slaveID,
		transport: transport,
		client:    modbus.NewClient2(packager, transport),
	}
}

func (d *Device) Name() string {
	return d.name
}

func (d *Device) SlaveID() uint8 {
	return d.slaveID
}

// ReadRegisters reads count holding registers starting at addr (FC3).
func (d *Device) ReadRegisters(addr, count uint16) ([]uint16, error) {
	results, err := d.client.ReadHoldingRegisters(addr, count)
	if err != nil {
		return nil, fmt.Errorf("read %d registers at %d: %w", count, addr, err)
	}
	slog.Debug("registers read", "addr", addr, "count", count, "data", fmt.Sprintf("% X", results))
	return encoding.BytesToRegisters(results), nil
}

// ReadInputRegisters reads count input registers starting at addr (FC4).
func (d *Device) ReadInputRegisters(addr, count uint16) ([]uint16, error) {
	results, err := d.client.ReadInputRegisters(addr, count)
	if err != nil {
		return nil, fmt.Errorf("read %d input registers at %d: %w", count, addr, err)
	}
	return encoding.BytesToRegisters(results), nil
}

// WriteRegisters writes values starting at addr. The reader only implements
// FC3 and FC16, so single values are written with FC16 as well.
func (d *Device) WriteRegisters(addr uint16, values ...uint16) error {
	if len(values) == 0 || len(values) > maxWriteQuantity {
		return fmt.Errorf("write at %d: %d values out of range 1..%d", addr, len(values), maxWriteQuantity)
	}
	if _, err := d.client.WriteMultipleRegisters(addr, uint16(len(values)), encoding.RegistersToBytes(values)); err != nil {
		return fmt.Errorf("write %d registers at %d: %w", len(values), addr, err)
	}
	slog.Debug("registers written", "addr", addr, "values", values)
	return nil
}

// SendRaw appends the checksum to frame, sends it and returns the raw
// response ADU.
func (d *Device) SendRaw(frame []byte) ([]byte, error) {
	if len(frame) < 2 {
		return nil, fmt.Errorf("raw frame needs at least slave id and function code")
	}
	adu := rtu.AppendCRC(append([]byte(nil), frame...))
	response, err := d.transport.Send(adu)
	if err != nil {
		return response, fmt.Errorf("raw request % X: %w", adu, err)
	}
	return response, nil
}

func (d *Device) Close() error {
	return d.transport.Close()
}

// ExceptionCode extracts the Modbus exception code of err. It returns false
// for transport errors.
func ExceptionCode(err error) (uint8, bool) {
	var mbErr *modbus.ModbusError
	if errors.As(err, &mbErr) {
		return mbErr.ExceptionCode, true
	}
	return 0, false
}
