package transport

import (
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// memInboxDepth bounds undelivered messages per direction.
const memInboxDepth = 4096

type memFrame struct {
	kind MessageKind
	data []byte
}

// MemoryTransport is one end of an in-process transport pair. It exists
// for tests and examples: both protocol endpoints can run in one
// process with no network, time can be pinned, and the buffered amount
// can be forced to any value to drive the backpressure paths.
type MemoryTransport struct {
	peer *MemoryTransport

	inbox chan memFrame
	open  atomic.Bool
	done  chan struct{}

	forcedBuffered atomic.Int64

	mu           sync.Mutex
	closeOnce    sync.Once
	closeCode    int
	closeReason  string
	readDeadline time.Time

	remoteAddr string
}

// MemoryPair creates two connected transports; what one writes the
// other reads.
func MemoryPair() (*MemoryTransport, *MemoryTransport) {
	a := newMemoryTransport("mem-a")
	b := newMemoryTransport("mem-b")
	a.peer, b.peer = b, a
	return a, b
}

func newMemoryTransport(addr string) *MemoryTransport {
	t := &MemoryTransport{
		inbox:      make(chan memFrame, memInboxDepth),
		done:       make(chan struct{}),
		remoteAddr: addr,
	}
	t.open.Store(true)
	return t
}

func (t *MemoryTransport) deliver(kind MessageKind, data []byte) error {
	if !t.open.Load() {
		return ErrClosed
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	select {
	case t.inbox <- memFrame{kind: kind, data: buf}:
		return nil
	default:
		return ErrClosed
	}
}

// WriteText queues a text message on the peer.
func (t *MemoryTransport) WriteText(data []byte) error {
	if !t.open.Load() {
		return ErrClosed
	}
	return t.peer.deliver(TextMessage, data)
}

// WriteBinary queues a binary message on the peer.
func (t *MemoryTransport) WriteBinary(data []byte) error {
	if !t.open.Load() {
		return ErrClosed
	}
	return t.peer.deliver(BinaryMessage, data)
}

// Read blocks for the next message, the read deadline, or close.
func (t *MemoryTransport) Read() (MessageKind, []byte, error) {
	t.mu.Lock()
	deadline := t.readDeadline
	t.mu.Unlock()

	var timeout <-chan time.Time
	if !deadline.IsZero() {
		wait := time.Until(deadline)
		if wait <= 0 {
			return 0, nil, os.ErrDeadlineExceeded
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case frame := <-t.inbox:
		return frame.kind, frame.data, nil
	case <-timeout:
		return 0, nil, os.ErrDeadlineExceeded
	case <-t.done:
		// Drain anything delivered before the close landed.
		select {
		case frame := <-t.inbox:
			return frame.kind, frame.data, nil
		default:
			return 0, nil, ErrClosed
		}
	}
}

// SetReadDeadline bounds subsequent reads. Zero removes the deadline.
func (t *MemoryTransport) SetReadDeadline(deadline time.Time) error {
	t.mu.Lock()
	t.readDeadline = deadline
	t.mu.Unlock()
	return nil
}

// BufferedAmount returns the forced value set by SetBufferedAmount.
// A real transport reports its outbound queue; the memory pair lets
// tests dial the value directly.
func (t *MemoryTransport) BufferedAmount() int64 {
	return t.forcedBuffered.Load()
}

// SetBufferedAmount forces the reported buffered amount.
func (t *MemoryTransport) SetBufferedAmount(n int64) {
	t.forcedBuffered.Store(n)
}

// Open reports whether writes are still accepted.
func (t *MemoryTransport) Open() bool {
	return t.open.Load()
}

// Close closes both directions and records the code and reason for
// test inspection.
func (t *MemoryTransport) Close(code int, reason string) error {
	t.closeOnce.Do(func() {
		if code == 0 {
			code = CloseNormal
		}
		t.mu.Lock()
		t.closeCode = code
		t.closeReason = reason
		t.mu.Unlock()
		t.open.Store(false)
		close(t.done)
		if peer := t.peer; peer != nil {
			peer.peerClosed(code, reason)
		}
	})
	return nil
}

func (t *MemoryTransport) peerClosed(code int, reason string) {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closeCode = code
		t.closeReason = reason
		t.mu.Unlock()
		t.open.Store(false)
		close(t.done)
	})
}

// CloseCode returns the close code observed on this end, or 0 while
// still open.
func (t *MemoryTransport) CloseCode() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeCode
}

// CloseReason returns the close reason observed on this end.
func (t *MemoryTransport) CloseReason() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeReason
}

// RemoteAddr describes the peer endpoint.
func (t *MemoryTransport) RemoteAddr() string {
	return t.remoteAddr
}
