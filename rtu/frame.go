// Package rtu observes Modbus RTU traffic on a byte stream: checksums,
// frame boundaries, reassembly of fragmented receive chunks and a human
// readable summary of every frame.
package rtu

import (
	"encoding/binary"
	"fmt"
	"time"
)

const (
	FC1ReadCoils                   uint8 = 0x01
	FC2ReadDiscreteInputs          uint8 = 0x02
	FC3ReadHoldingRegisters        uint8 = 0x03
	FC4ReadInputRegisters          uint8 = 0x04
	FC5WriteSingleCoil             uint8 = 0x05
	FC6WriteSingleRegister         uint8 = 0x06
	FC15WriteMultipleCoils         uint8 = 0x0F
	FC16WriteMultipleRegisters     uint8 = 0x10
	FC17ReadWriteMultipleRegisters uint8 = 0x17

	exceptionFlag uint8 = 0x80
)

const (
	// MinFrameSize covers slave id, function code and checksum.
	MinFrameSize = 4
	// MaxFrameSize is the largest ADU a serial line may carry.
	MaxFrameSize = 256

	exceptionFrameSize = 5
)

// Direction tells whether bytes were written by the local side or read from
// the line.
type Direction int

const (
	Sent Direction = iota
	Received
)

func (d Direction) String() string {
	if d == Sent {
		return "TX"
	}
	return "RX"
}

// Event is one chunk of bytes seen at the transport boundary.
type Event struct {
	Time      time.Time
	Direction Direction
	Data      []byte
}

// NewEvent copies data so the caller may reuse its buffer.
func NewEvent(dir Direction, data []byte, ts time.Time) Event {
	return Event{Time: ts, Direction: dir, Data: append([]byte(nil), data...)}
}

// Frame is one logical request or response as reconstructed from Events.
type Frame struct {
	Time      time.Time
	Direction Direction
	Data      []byte
}

func (f Frame) String() string {
	return fmt.Sprintf("%s % X", f.Direction, f.Data)
}

// IsComplete guesses whether buf holds a whole RTU frame. Register read
// responses carry a byte count, every other frame is considered complete as
// soon as its trailing checksum matches. The guess can be wrong in both
// directions.
func IsComplete(buf []byte) bool {
	if len(buf) < MinFrameSize {
		return false
	}
	switch buf[1] {
	case FC3ReadHoldingRegisters, FC4ReadInputRegisters:
		expected := 3 + int(buf[2]) + 2
		return len(buf) >= expected
	}
	if len(buf) >= 5 {
		return ValidCRC(buf)
	}
	return false
}

// ResponseLength returns the length of a regular response to request or 0
// if the function code is not known.
func ResponseLength(request []byte) int {
	if len(request) < 6 {
		return 0
	}
	quantity := int(binary.BigEndian.Uint16(request[4:6]))
	switch request[1] {
	case FC1ReadCoils, FC2ReadDiscreteInputs:
		n := quantity / 8
		if quantity%8 != 0 {
			n++
		}
		return 3 + n + 2
	case FC3ReadHoldingRegisters, FC4ReadInputRegisters:
		return 3 + 2*quantity + 2
	case FC17ReadWriteMultipleRegisters:
		// read quantity sits at the same offset as for FC3
		return 3 + 2*quantity + 2
	case FC5WriteSingleCoil, FC6WriteSingleRegister, FC15WriteMultipleCoils, FC16WriteMultipleRegisters:
		return 8
	}
	return 0
}

// RequestLength returns the length of the request that starts with head. It
// returns 0 while head is too short to tell and -1 for unsupported function
// codes.
func RequestLength(head []byte) int {
	if len(head) < 2 {
		return 0
	}
	switch head[1] {
	case FC1ReadCoils, FC2ReadDiscreteInputs, FC3ReadHoldingRegisters, FC4ReadInputRegisters,
		FC5WriteSingleCoil, FC6WriteSingleRegister:
		return 8
	case FC15WriteMultipleCoils, FC16WriteMultipleRegisters:
		if len(head) < 7 {
			return 0
		}
		return 9 + int(head[6])
	case FC17ReadWriteMultipleRegisters:
		if len(head) < 11 {
			return 0
		}
		return 13 + int(head[10])
	}
	return -1
}

// IsException reports whether frame is an exception response.
func IsException(frame []byte) bool {
	return len(frame) >= 2 && frame[1]&exceptionFlag != 0
}
