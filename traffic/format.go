// Package traffic keeps the raw Modbus traffic log: reassembled frames,
// byte statistics and their rendering in the console.
package traffic

import (
	"fmt"
	"strings"
	"time"

	"github.com/rwirdemann/rfidlabs/rtu"
)

// Format selects how entries are rendered.
type Format int

const (
	FormatHex Format = iota
	FormatASCII
	FormatDecode
)

func (f Format) String() string {
	switch f {
	case FormatHex:
		return "hex"
	case FormatASCII:
		return "ascii"
	default:
		return "decode"
	}
}

// ParseFormat accepts hex, ascii and decode.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hex":
		return FormatHex, nil
	case "ascii":
		return FormatASCII, nil
	case "decode", "":
		return FormatDecode, nil
	}
	return FormatDecode, fmt.Errorf("unknown display format %q, use hex, ascii or decode", s)
}

// Entry is one frame in the log.
type Entry struct {
	Time      time.Time
	Direction rtu.Direction
	Data      []byte
}

const timestampLayout = "15:04:05.000"

// Render formats e, e.g.
//
//	[12:00:00.123] TX: 01 03 00 00 00 01 84 0A  | Slave:1 Read Holding Registers Addr:0 Count:1 CRC:OK
func Render(e Entry, f Format) string {
	line := fmt.Sprintf("[%s] %s: % X", e.Time.Format(timestampLayout), e.Direction, e.Data)
	switch f {
	case FormatASCII:
		line += "  |" + printable(e.Data) + "|"
	case FormatDecode:
		if decoded := rtu.Decode(e.Data, e.Direction); decoded != "" {
			line += "  | " + decoded
		}
	}
	return line
}

func printable(data []byte) string {
	var sb strings.Builder
	for _, b := range data {
		if b >= 32 && b < 127 {
			sb.WriteByte(b)
		} else {
			sb.WriteByte('.')
		}
	}
	return sb.String()
}
