package encoding

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Hex is a register address or value given as 0x prefixed hex or decimal.
type Hex uint16

func NewHex(value string) (*Hex, error) {
	var h = new(Hex)
	if err := h.Set(value); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Hex) Uint16() uint16 {
	return uint16(*h)
}

// Set parses value. It implements flag.Value.
func (h *Hex) Set(value string) error {
	value = strings.TrimSpace(value)
	v, err := strconv.ParseUint(value, 0, 16)
	if err != nil {
		return fmt.Errorf("invalid register value %q: %w", value, err)
	}
	*h = Hex(v)
	return nil
}

func (h *Hex) String() string {
	return fmt.Sprintf("0x%X", uint64(*h))
}

// ParseHexWord parses a register value given in hex with or without 0x
// prefix, e.g. "1A2B" or "0x1A2B".
func ParseHexWord(s string) (uint16, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid hex value %q: %w", s, err)
	}
	return uint16(v), nil
}

// HexStringToBytes converts a hex string (e.g., "00FF1234" or "00 FF 12 34")
// to a byte array.
func HexStringToBytes(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	s = strings.Join(strings.Fields(s), "")

	if len(s)%2 != 0 {
		return nil, fmt.Errorf("hex string must have even length")
	}

	return hex.DecodeString(s)
}
