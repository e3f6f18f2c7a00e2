package sendspin

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/lox-audioserver/sendspin/session"
	"github.com/lox-audioserver/sendspin/timesync"
	"github.com/lox-audioserver/sendspin/wire"
)

// Defaults for the server endpoint.
const (
	// DefaultPort is the port Sendspin servers conventionally listen on.
	DefaultPort = 8927
	// DefaultPath is the WebSocket path clients dial.
	DefaultPath = "/sendspin"
)

// Options configures a Server.
type Options struct {
	// ServerID identifies this server to clients; defaults to a freshly
	// generated random UUID.
	ServerID string
	// ServerName is the display name sent in server/hello.
	ServerName string
	// SupportedRoles is the set of roles this server grants; defaults
	// to all of them.
	SupportedRoles []wire.Role
	// Path is the WebSocket path, for Attach.
	Path string
	// CheckOrigin overrides the upgrade origin policy; nil allows all
	// origins, which suits a LAN streaming server.
	CheckOrigin func(r *http.Request) bool
	// Clock supplies local microsecond time.
	Clock timesync.Clock
	// MaxBuffered is the per-connection buffered-amount ceiling.
	MaxBuffered int64
	// InitialStateTimeout bounds the wait for a player's first state.
	InitialStateTimeout time.Duration
}

// DefaultOptions returns options with identity, roles and path filled
// in. Clock, MaxBuffered and InitialStateTimeout stay zero and fall back
// to the session defaults; CheckOrigin stays nil (all origins allowed).
func DefaultOptions() Options {
	return Options{
		ServerID:       uuid.NewString(),
		ServerName:     "Sendspin",
		SupportedRoles: wire.AllRoles(),
		Path:           DefaultPath,
	}
}

func (o Options) withDefaults() Options {
	if o.ServerID == "" {
		o.ServerID = uuid.NewString()
	}
	if o.ServerName == "" {
		o.ServerName = "Sendspin"
	}
	if len(o.SupportedRoles) == 0 {
		o.SupportedRoles = wire.AllRoles()
	}
	if o.Path == "" {
		o.Path = DefaultPath
	}
	return o
}

func (o Options) sessionConfig() session.Config {
	return session.Config{
		ServerID:            o.ServerID,
		ServerName:          o.ServerName,
		SupportedRoles:      o.SupportedRoles,
		Clock:               o.Clock,
		MaxBuffered:         o.MaxBuffered,
		InitialStateTimeout: o.InitialStateTimeout,
	}
}
