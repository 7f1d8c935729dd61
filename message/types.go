package message

type Type int

const (
	TypeInfo Type = iota
	TypeFrame
)

type Message interface {
	String() string
	Type() Type
}
