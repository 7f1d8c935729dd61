package message

// Info is a status line of the harness, e.g. the result of a register read.
type Info struct {
	Value string
}

func NewInfo(value string) Info {
	return Info{Value: value}
}

func (m Info) String() string {
	return m.Value
}

func (m Info) Type() Type {
	return TypeInfo
}
