package rfidlabs

import "github.com/rwirdemann/rfidlabs/traffic"

// ControlPort is the set of operations an operator front end drives.
type ControlPort interface {
	Connect() error
	Disconnect() error
	Connected() bool

	ReadRegisters(addr, count uint16) ([]uint16, error)
	ReadInputRegisters(addr, count uint16) ([]uint16, error)
	WriteRegisters(addr uint16, values ...uint16) error
	SendRaw(frame []byte) ([]byte, error)

	StartPolling() error
	StopPolling()
	Polling() bool

	SetTrafficLogging(on bool)
	SetFormat(f traffic.Format)
	History() int
	Stats() traffic.Stats
	ClearTraffic()

	Status() string
}
