// Package session implements the server side of the Sendspin protocol:
// the per-connection protocol driver and the registry that owns every
// live session.
//
// A Session is fed inbound frames by whoever pumps the transport
// (normally the Registry via the top-level server) and exposes the
// server-initiated operations: stream control, PCM/artwork/visualizer
// fan-out, commands, metadata, and group updates. Lifecycle and data
// events surface through a Hooks value, which can be registered with
// the Registry by client id before the client ever connects; the
// registry attaches it as soon as a session for that id says hello.
//
// Outbound binary frames respect the transport's buffered amount: PCM
// is retried once after a short delay, ancillary streams are dropped
// and counted so a slow peer never stalls the broadcaster.
package session
