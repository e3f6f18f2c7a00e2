// Package wire defines the Sendspin wire format: the JSON control
// envelope with its typed payloads, the protocol enumerations, and the
// 9-byte binary frame header that prefixes every audio, artwork,
// visualizer, and source-capture frame.
//
// Control messages are JSON objects of the form:
//
//	{"type": "client/hello", "payload": {...}}
//
// Binary frames carry a one-byte type tag followed by a big-endian
// signed 64-bit microsecond timestamp; the payload body runs to the end
// of the WebSocket message:
//
//	frame := wire.PackFrame(wire.BinaryAudioChunk, ts, pcm)
//	hdr, body, err := wire.ParseFrame(frame)
package wire
