package port

import "context"

// Socket is one message-oriented connection. ReadMessage is called from a
// single goroutine and WriteMessage from a single (possibly different)
// goroutine; Close may be called from anywhere and unblocks both.
// ReadMessage returns io.EOF when the peer closes the connection cleanly.
type Socket interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

type SocketDialer interface {
	Dial(ctx context.Context, url string) (Socket, error)
}
