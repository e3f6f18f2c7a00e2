// Package sendspin implements both endpoints of the Sendspin protocol,
// a WebSocket-based synchronized multi-room audio streaming protocol.
//
// A server drives playback across many clients: JSON control messages
// and framed binary audio, artwork, and visualizer payloads share one
// bidirectional connection per client, and every client adopts the
// server's clock through a Kalman time filter so frames stamped with a
// server timestamp render in lock-step across devices.
//
// The root package is the server facade: it upgrades HTTP connections,
// extracts per-connection metadata, and pumps frames into a session
// registry.
//
//	srv := sendspin.NewServer(sendspin.DefaultOptions())
//	mux := http.NewServeMux()
//	mux.Handle(sendspin.DefaultPath, srv)
//	http.ListenAndServe(":8927", mux)
//
// The subpackages carry the protocol core:
//
//   - wire: JSON message schema and the 9-byte binary frame header
//   - timesync: the 2-D Kalman clock filter and microsecond clock
//   - session: per-connection server protocol driver and registry
//   - client: the connecting peer for any mix of roles
//   - transport: the buffered-amount-aware connection abstraction
//   - audio: stream format model and opus decode helper
package sendspin
