package rfidlabs

import "github.com/rwirdemann/rfidlabs/message"

// ProtocolPort is where the harness reports what it does.
type ProtocolPort interface {
	InfoX(m message.Message)
	Info(msg string)

	// Println logs the output even when it's muted
	Println(msg string)

	Separator()
	Mute()
	Unmute()
}
