package transport

import (
	"errors"
	"time"
)

// MaxBuffered is the buffered-amount ceiling above which binary sends
// are deferred or dropped (512 KiB).
const MaxBuffered int64 = 512 * 1024

// Close codes used by the protocol.
const (
	// CloseNormal is the orderly shutdown code.
	CloseNormal = 1000
	// ClosePolicyViolation terminates a session after a protocol
	// violation, with a human-readable reason.
	ClosePolicyViolation = 1008
)

// ErrClosed indicates an operation on a transport that is no longer open.
var ErrClosed = errors.New("transport is closed")

// MessageKind distinguishes the two WebSocket message types.
type MessageKind int

const (
	// TextMessage carries a JSON control envelope.
	TextMessage MessageKind = iota + 1
	// BinaryMessage carries a framed binary payload.
	BinaryMessage
)

// Transport is a bidirectional, message-oriented connection. Writes are
// safe for concurrent use; Read must be driven from a single goroutine.
type Transport interface {
	// WriteText queues a text message. Fails with ErrClosed when the
	// transport is not open.
	WriteText(data []byte) error

	// WriteBinary queues a binary message. Fails with ErrClosed when
	// the transport is not open.
	WriteBinary(data []byte) error

	// Read blocks until the next inbound message, the read deadline, or
	// close.
	Read() (MessageKind, []byte, error)

	// SetReadDeadline bounds subsequent Read calls. The zero time
	// removes the deadline.
	SetReadDeadline(t time.Time) error

	// BufferedAmount returns the bytes accepted for sending but not yet
	// written to the network.
	BufferedAmount() int64

	// Open reports whether writes are still accepted.
	Open() bool

	// Close tears the connection down. A non-zero code is delivered to
	// the peer with the reason; code 0 means a plain normal closure.
	Close(code int, reason string) error

	// RemoteAddr describes the peer, for logging and registry display.
	RemoteAddr() string
}
