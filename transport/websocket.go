package transport

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// sendQueueDepth bounds the number of in-flight outbound messages.
// Backpressure policies act on BufferedAmount well before the queue
// fills; the cap only protects against a wedged peer.
const sendQueueDepth = 256

// closeWriteTimeout bounds delivery of the close control frame.
const closeWriteTimeout = time.Second

type wsFrame struct {
	kind MessageKind
	data []byte
}

// WebSocketTransport adapts a gorilla/websocket connection to the
// Transport interface. Outbound messages pass through a single writer
// goroutine; BufferedAmount is the byte count accepted but not yet
// written, mirroring the browser bufferedAmount semantics the protocol
// backpressure rules are defined against.
type WebSocketTransport struct {
	conn     *websocket.Conn
	sendq    chan wsFrame
	buffered atomic.Int64
	open     atomic.Bool

	closeOnce sync.Once
	done      chan struct{}
}

// NewWebSocket wraps an established websocket connection (either side
// of the upgrade) and starts its writer.
func NewWebSocket(conn *websocket.Conn) *WebSocketTransport {
	t := &WebSocketTransport{
		conn:  conn,
		sendq: make(chan wsFrame, sendQueueDepth),
		done:  make(chan struct{}),
	}
	t.open.Store(true)
	go t.writeLoop()
	return t
}

func (t *WebSocketTransport) writeLoop() {
	for {
		select {
		case frame := <-t.sendq:
			msgType := websocket.TextMessage
			if frame.kind == BinaryMessage {
				msgType = websocket.BinaryMessage
			}
			err := t.conn.WriteMessage(msgType, frame.data)
			t.buffered.Add(-int64(len(frame.data)))
			if err != nil {
				logrus.WithFields(logrus.Fields{
					"remote_addr": t.RemoteAddr(),
					"error":       err,
				}).Debug("websocket write failed, closing transport")
				t.teardown()
				return
			}
		case <-t.done:
			return
		}
	}
}

func (t *WebSocketTransport) write(kind MessageKind, data []byte) error {
	if !t.open.Load() {
		return ErrClosed
	}
	t.buffered.Add(int64(len(data)))
	select {
	case t.sendq <- wsFrame{kind: kind, data: data}:
		return nil
	case <-t.done:
		t.buffered.Add(-int64(len(data)))
		return ErrClosed
	}
}

// WriteText queues a text message.
func (t *WebSocketTransport) WriteText(data []byte) error {
	return t.write(TextMessage, data)
}

// WriteBinary queues a binary message.
func (t *WebSocketTransport) WriteBinary(data []byte) error {
	return t.write(BinaryMessage, data)
}

// Read blocks for the next inbound message. Control frames are handled
// by gorilla internally.
func (t *WebSocketTransport) Read() (MessageKind, []byte, error) {
	msgType, data, err := t.conn.ReadMessage()
	if err != nil {
		t.teardown()
		return 0, nil, err
	}
	switch msgType {
	case websocket.TextMessage:
		return TextMessage, data, nil
	case websocket.BinaryMessage:
		return BinaryMessage, data, nil
	default:
		// Skip anything else and read on.
		return t.Read()
	}
}

// SetReadDeadline bounds subsequent reads.
func (t *WebSocketTransport) SetReadDeadline(deadline time.Time) error {
	return t.conn.SetReadDeadline(deadline)
}

// BufferedAmount returns bytes queued but not yet written.
func (t *WebSocketTransport) BufferedAmount() int64 {
	return t.buffered.Load()
}

// Open reports whether writes are still accepted.
func (t *WebSocketTransport) Open() bool {
	return t.open.Load()
}

// Close sends a close frame (policy code + reason when given) and tears
// the connection down.
func (t *WebSocketTransport) Close(code int, reason string) error {
	var err error
	t.closeOnce.Do(func() {
		t.open.Store(false)
		if code == 0 {
			code = CloseNormal
		}
		msg := websocket.FormatCloseMessage(code, reason)
		writeErr := t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
		if writeErr != nil {
			logrus.WithFields(logrus.Fields{
				"remote_addr": t.RemoteAddr(),
				"close_code":  code,
				"error":       writeErr,
			}).Debug("close frame delivery failed")
		}
		close(t.done)
		err = t.conn.Close()
	})
	return err
}

// teardown closes without attempting a close handshake, for paths where
// the connection already failed.
func (t *WebSocketTransport) teardown() {
	t.closeOnce.Do(func() {
		t.open.Store(false)
		close(t.done)
		_ = t.conn.Close()
	})
}

// RemoteAddr describes the peer endpoint.
func (t *WebSocketTransport) RemoteAddr() string {
	if addr := t.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
