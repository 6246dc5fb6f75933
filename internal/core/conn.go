package core

// Frame is an encoded outbound event.
type Frame []byte

// Conn abstracts a system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type Conn interface {
	TrySend(Frame) error
	Close()
}
