// Package transport abstracts the bidirectional message connection the
// Sendspin protocol runs over.
//
// The protocol core never touches a socket directly; sessions and
// clients speak to a Transport, which carries whole text (JSON control)
// and binary (framed media) messages and exposes the number of bytes
// queued but not yet handed to the network. That buffered amount is the
// signal the backpressure policies key on.
//
// Two implementations ship here: WebSocketTransport over a
// gorilla/websocket connection, and an in-process MemoryPair used by
// tests and examples.
package transport
