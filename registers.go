package rfidlabs

import (
	"fmt"
	"strings"
)

const registerHeader = "Addr    Dec     Hex    Binary            ASCII"

// FormatRegisters renders registers read from start as a table with one
// row per register. ASCII shows the high byte first, non-printable bytes
// as dots.
func FormatRegisters(start uint16, regs []uint16) string {
	var b strings.Builder
	b.WriteString(registerHeader)
	for i, reg := range regs {
		fmt.Fprintf(&b, "\n%5d  %5d  %04X   %016b  %s", int(start)+i, reg, reg, reg, registerASCII(reg))
	}
	return b.String()
}

func registerASCII(reg uint16) string {
	return string([]byte{asciiByte(byte(reg >> 8)), asciiByte(byte(reg))})
}

func asciiByte(b byte) byte {
	if b < 32 || b > 126 {
		return '.'
	}
	return b
}
