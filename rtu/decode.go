package rtu

import (
	"encoding/binary"
	"fmt"
	"strings"
)

var functionNames = map[uint8]string{
	FC1ReadCoils:                   "Read Coils",
	FC2ReadDiscreteInputs:          "Read Discrete Inputs",
	FC3ReadHoldingRegisters:        "Read Holding Registers",
	FC4ReadInputRegisters:          "Read Input Registers",
	FC5WriteSingleCoil:             "Write Single Coil",
	FC6WriteSingleRegister:         "Write Single Register",
	FC15WriteMultipleCoils:         "Write Multiple Coils",
	FC16WriteMultipleRegisters:     "Write Multiple Registers",
	FC17ReadWriteMultipleRegisters: "Read/Write Multiple Registers",
}

// FunctionName returns a label for fc. Unknown codes are rendered in hex.
func FunctionName(fc uint8) string {
	if name, ok := functionNames[fc]; ok {
		return name
	}
	return fmt.Sprintf("Function 0x%02X", fc)
}

// Decode summarizes frame for the traffic log, e.g.
//
//	Slave:1 Read Holding Registers Addr:0 Count:1 CRC:OK
//
// Frames shorter than MinFrameSize yield the empty string. Decode never
// fails; fields that do not fit into the frame are left out.
func Decode(frame []byte, dir Direction) string {
	if len(frame) < MinFrameSize {
		return ""
	}

	slave, fc := frame[0], frame[1]
	var sb strings.Builder
	if fc&exceptionFlag != 0 {
		fmt.Fprintf(&sb, "Slave:%d %s Exception:0x%02X", slave, FunctionName(fc&^exceptionFlag), frame[2])
	} else {
		fmt.Fprintf(&sb, "Slave:%d %s", slave, FunctionName(fc))
		sb.WriteString(fields(frame, fc, dir))
	}

	status := "OK"
	if !ValidCRC(frame) {
		status = "ERROR"
	}
	sb.WriteString(" CRC:" + status)
	return sb.String()
}

func fields(frame []byte, fc uint8, dir Direction) string {
	u16 := func(offset int) uint16 {
		return binary.BigEndian.Uint16(frame[offset : offset+2])
	}

	switch {
	case (fc == FC3ReadHoldingRegisters || fc == FC4ReadInputRegisters) && dir == Sent && len(frame) >= 8:
		return fmt.Sprintf(" Addr:%d Count:%d", u16(2), u16(4))
	case (fc == FC3ReadHoldingRegisters || fc == FC4ReadInputRegisters) && dir == Received && len(frame) >= 5:
		return fmt.Sprintf(" Bytes:%d", frame[2])
	case fc == FC6WriteSingleRegister && len(frame) >= 8:
		return fmt.Sprintf(" Addr:%d Value:0x%04X", u16(2), u16(4))
	case fc == FC16WriteMultipleRegisters && dir == Sent && len(frame) >= 9:
		return fmt.Sprintf(" Addr:%d Count:%d Bytes:%d", u16(2), u16(4), frame[6])
	case fc == FC16WriteMultipleRegisters && dir == Received && len(frame) >= 8:
		return fmt.Sprintf(" Addr:%d Count:%d", u16(2), u16(4))
	}
	return ""
}
