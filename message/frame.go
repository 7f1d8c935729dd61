package message

// Frame is a rendered traffic log line. It carries its own timestamp.
type Frame struct {
	Line string
}

func NewFrame(line string) Frame {
	return Frame{Line: line}
}

func (m Frame) String() string {
	return m.Line
}

func (m Frame) Type() Type {
	return TypeFrame
}
