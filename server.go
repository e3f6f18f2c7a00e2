package sendspin

import (
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/lox-audioserver/sendspin/session"
	"github.com/lox-audioserver/sendspin/transport"
	"github.com/lox-audioserver/sendspin/wire"
)

// Server accepts Sendspin WebSocket connections and pumps them into a
// session registry. It implements http.Handler; mount it on the
// protocol path (DefaultPath) of any HTTP server.
type Server struct {
	opts     Options
	registry *session.Registry
	upgrader websocket.Upgrader
}

// NewServer creates a server facade with its own registry.
func NewServer(opts Options) *Server {
	opts = opts.withDefaults()
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Server{
		opts:     opts,
		registry: session.NewRegistry(opts.sessionConfig()),
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
	}
}

// Registry exposes the session registry for hook registration and
// server-initiated operations.
func (s *Server) Registry() *session.Registry {
	return s.registry
}

// Attach mounts the server on its configured path.
func (s *Server) Attach(mux *http.ServeMux) {
	mux.Handle(s.opts.Path, s)
}

// ServeHTTP upgrades the connection and runs its read pump until the
// peer goes away. One goroutine per connection, the one the HTTP
// server already dedicated to the request.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"remote_addr": r.RemoteAddr,
			"error":       err,
		}).Warn("websocket upgrade failed")
		return
	}

	tr := transport.NewWebSocket(conn)
	sess := s.registry.Add(tr, connMeta(r))
	defer s.registry.Remove(tr)

	for {
		kind, data, err := tr.Read()
		if err != nil {
			return
		}
		switch kind {
		case transport.TextMessage:
			s.registry.HandleText(sess, data)
		case transport.BinaryMessage:
			s.registry.HandleBinary(sess, data)
		}
	}
}

// connMeta extracts the per-connection metadata from the request URL
// query: zone (integer), player (string), and the connection reason.
func connMeta(r *http.Request) session.ConnMeta {
	q := r.URL.Query()
	meta := session.ConnMeta{
		RemoteAddr: r.RemoteAddr,
		PlayerID:   q.Get("player"),
		Reason:     wire.ReasonDiscovery,
	}
	if zone := q.Get("zone"); zone != "" {
		if id, err := strconv.Atoi(zone); err == nil {
			meta.ZoneID = &id
		}
	}
	if q.Get("reason") == string(wire.ReasonPlayback) {
		meta.Reason = wire.ReasonPlayback
	}
	return meta
}
