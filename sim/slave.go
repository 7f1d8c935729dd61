// Package sim simulates a Modbus RTU register device, so the harness can be
// exercised without the reader attached.
package sim

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/rwirdemann/rfidlabs/encoding"
	"github.com/rwirdemann/rfidlabs/rtu"
)

// Exception codes returned by the simulated device.
const (
	ExIllegalFunction    uint8 = 0x01
	ExIllegalDataAddress uint8 = 0x02
	ExIllegalDataValue   uint8 = 0x03
)

// maxReadQuantity is the register limit of one read request.
const maxReadQuantity = 125

// PDU is a struct to represent a Modbus Protocol Data unit.
type PDU struct {
	UnitId       uint8
	FunctionCode uint8
	Payload      []byte
}

func (p PDU) String() string {
	return fmt.Sprintf("UnitId:%d FC:%d Payload:% X", p.UnitId, p.FunctionCode, p.Payload)
}

// Slave is a register bank. Holding and input registers share one address
// space. Addresses outside [low, high] are rejected with an exception.
type Slave struct {
	unitID    uint8
	low, high uint16
	mu        sync.Mutex
	registers map[uint16]uint16
}

// NewSlave creates a slave whose registers span the full address range.
func NewSlave(unitID uint8) *Slave {
	return &Slave{unitID: unitID, high: 0xFFFF, registers: make(map[uint16]uint16)}
}

// WithRange limits the valid register addresses.
func (s *Slave) WithRange(low, high uint16) *Slave {
	s.low, s.high = low, high
	return s
}

func (s *Slave) UnitID() uint8 {
	return s.unitID
}

// Set presets consecutive registers starting at addr.
func (s *Slave) Set(addr uint16, values ...uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, v := range values {
		s.registers[addr+uint16(i)] = v
	}
}

// Register returns the value at addr. Registers never written read as zero.
func (s *Slave) Register(addr uint16) uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registers[addr]
}

// Process answers one request PDU.
func (s *Slave) Process(pdu PDU) *PDU {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch pdu.FunctionCode {
	case rtu.FC3ReadHoldingRegisters, rtu.FC4ReadInputRegisters:
		return s.processRead(pdu)
	case rtu.FC6WriteSingleRegister:
		return s.processFC6(pdu)
	case rtu.FC16WriteMultipleRegisters:
		return s.processFC16(pdu)
	}
	slog.Debug("function code not implemented", "fc", pdu.FunctionCode)
	return exception(pdu, ExIllegalFunction)
}

func (s *Slave) inRange(addr, quantity uint16) bool {
	end := uint32(addr) + uint32(quantity) - 1
	return addr >= s.low && end <= uint32(s.high)
}

// Response payload: [byte count] [value 1 hi] [value 1 lo] ...
func (s *Slave) processRead(pdu PDU) *PDU {
	if len(pdu.Payload) < 4 {
		return exception(pdu, ExIllegalDataValue)
	}
	addr := encoding.BytesToUint16(pdu.Payload[0:2])
	quantity := encoding.BytesToUint16(pdu.Payload[2:4])
	if quantity == 0 || quantity > maxReadQuantity {
		return exception(pdu, ExIllegalDataValue)
	}
	if !s.inRange(addr, quantity) {
		return exception(pdu, ExIllegalDataAddress)
	}

	payload := make([]byte, 1, 1+2*quantity)
	payload[0] = uint8(quantity * 2)
	for i := range quantity {
		payload = append(payload, encoding.Uint16ToBytes(s.registers[addr+i])...)
	}
	slog.Debug("registers read", "unitID", pdu.UnitId, "fc", pdu.FunctionCode, "addr", addr, "quantity", quantity)
	return &PDU{UnitId: pdu.UnitId, FunctionCode: pdu.FunctionCode, Payload: payload}
}

// FC6 payload format: [regAddr(2 bytes)][value(2 bytes)]
func (s *Slave) processFC6(pdu PDU) *PDU {
	if len(pdu.Payload) < 4 {
		return exception(pdu, ExIllegalDataValue)
	}
	addr := encoding.BytesToUint16(pdu.Payload[0:2])
	if !s.inRange(addr, 1) {
		return exception(pdu, ExIllegalDataAddress)
	}
	value := encoding.BytesToUint16(pdu.Payload[2:4])
	s.registers[addr] = value
	slog.Debug("FC6 Write Single Register", "unitID", pdu.UnitId, "addr", fmt.Sprintf("0x%04X", addr), "value", fmt.Sprintf("0x%04X", value))

	// FC6 response: echo back the request (register address + value)
	return &PDU{UnitId: pdu.UnitId, FunctionCode: pdu.FunctionCode, Payload: pdu.Payload[0:4]}
}

// FC16 payload format: [startAddr(2 bytes)][quantity(2 bytes)][byteCount(1 byte)][values(N bytes)]
func (s *Slave) processFC16(pdu PDU) *PDU {
	if len(pdu.Payload) < 5 {
		return exception(pdu, ExIllegalDataValue)
	}
	addr := encoding.BytesToUint16(pdu.Payload[0:2])
	quantity := encoding.BytesToUint16(pdu.Payload[2:4])
	byteCount := pdu.Payload[4]
	if quantity == 0 || int(byteCount) != 2*int(quantity) || len(pdu.Payload) < 5+int(byteCount) {
		slog.Debug("FC16 byte count mismatch", "quantity", quantity, "byteCount", byteCount, "len", len(pdu.Payload))
		return exception(pdu, ExIllegalDataValue)
	}
	if !s.inRange(addr, quantity) {
		return exception(pdu, ExIllegalDataAddress)
	}

	values := encoding.BytesToRegisters(pdu.Payload[5 : 5+int(byteCount)])
	for i, v := range values {
		s.registers[addr+uint16(i)] = v
	}
	slog.Debug("FC16 Write Multiple Registers", "unitID", pdu.UnitId, "addr", fmt.Sprintf("0x%04X", addr), "values", values)

	// FC16 response: echo back starting address and quantity
	return &PDU{UnitId: pdu.UnitId, FunctionCode: pdu.FunctionCode, Payload: pdu.Payload[0:4]}
}

func exception(pdu PDU, code uint8) *PDU {
	return &PDU{UnitId: pdu.UnitId, FunctionCode: pdu.FunctionCode | 0x80, Payload: []byte{code}}
}
