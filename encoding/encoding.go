package encoding

import (
	"encoding/binary"
	"strings"
)

func Uint16ToBytes(in uint16) []byte {
	out := make([]byte, 2)
	binary.BigEndian.PutUint16(out, in)
	return out
}

func BytesToUint16(in []byte) uint16 {
	return binary.BigEndian.Uint16(in)
}

// BytesToRegisters decodes register values as they travel on the wire (big
// endian). A trailing odd byte is ignored.
func BytesToRegisters(in []byte) []uint16 {
	out := make([]uint16, len(in)/2)
	for i := range out {
		out[i] = binary.BigEndian.Uint16(in[2*i:])
	}
	return out
}

// RegistersToBytes is the inverse of BytesToRegisters.
func RegistersToBytes(in []uint16) []byte {
	out := make([]byte, 2*len(in))
	for i, v := range in {
		binary.BigEndian.PutUint16(out[2*i:], v)
	}
	return out
}

// PackBytes stores a byte array in registers the way the reader firmware
// expects it: the first byte of each pair goes to the low byte of the
// register. An odd trailing byte ends up in a register with high byte zero.
//
// Example: []byte{0x01, 0x02, 0x03} -> []uint16{0x0201, 0x0003}
func PackBytes(in []byte) []uint16 {
	out := make([]uint16, 0, (len(in)+1)/2)
	for i := 0; i < len(in); i += 2 {
		reg := uint16(in[i])
		if i+1 < len(in) {
			reg |= uint16(in[i+1]) << 8
		}
		out = append(out, reg)
	}
	return out
}

// UnpackBytes is the inverse of PackBytes. A positive n trims the result to
// n bytes.
func UnpackBytes(in []uint16, n int) []byte {
	out := make([]byte, 0, 2*len(in))
	for _, reg := range in {
		out = append(out, byte(reg&0xFF), byte(reg>>8))
	}
	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

// RegistersToASCII reads text stored high byte first. Non printable bytes
// become spaces and the result is trimmed.
func RegistersToASCII(in []uint16) string {
	var sb strings.Builder
	for _, reg := range in {
		for _, b := range []byte{byte(reg >> 8), byte(reg & 0xFF)} {
			if b >= 32 && b <= 126 {
				sb.WriteByte(b)
			} else {
				sb.WriteByte(' ')
			}
		}
	}
	return strings.TrimSpace(sb.String())
}
