package session

import (
	"time"

	"github.com/lox-audioserver/sendspin/timesync"
	"github.com/lox-audioserver/sendspin/transport"
	"github.com/lox-audioserver/sendspin/wire"
)

// Timing defaults for the server side of the protocol.
const (
	// DefaultInitialStateTimeout is how long a player client has after
	// the handshake to report its initial state.
	DefaultInitialStateTimeout = 5 * time.Second
	// DefaultPCMRetryDelay is the deferral before a PCM frame blocked
	// by backpressure is sent anyway.
	DefaultPCMRetryDelay = 5 * time.Millisecond
)

// Config is the server-side identity and tuning shared by every
// session a registry creates.
type Config struct {
	// ServerID identifies this server in server/hello.
	ServerID string
	// ServerName is the display name sent in server/hello.
	ServerName string
	// SupportedRoles is the set of role literals this server grants.
	SupportedRoles []wire.Role
	// Clock supplies local microsecond time; defaults to the system
	// clock.
	Clock timesync.Clock
	// MaxBuffered is the transport buffered-amount ceiling for binary
	// sends; defaults to transport.MaxBuffered.
	MaxBuffered int64
	// InitialStateTimeout overrides DefaultInitialStateTimeout.
	InitialStateTimeout time.Duration
	// PCMRetryDelay overrides DefaultPCMRetryDelay.
	PCMRetryDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.ServerName == "" {
		c.ServerName = "Sendspin"
	}
	if len(c.SupportedRoles) == 0 {
		c.SupportedRoles = wire.AllRoles()
	}
	if c.Clock == nil {
		c.Clock = timesync.SystemClock{}
	}
	if c.MaxBuffered <= 0 {
		c.MaxBuffered = transport.MaxBuffered
	}
	if c.InitialStateTimeout <= 0 {
		c.InitialStateTimeout = DefaultInitialStateTimeout
	}
	if c.PCMRetryDelay <= 0 {
		c.PCMRetryDelay = DefaultPCMRetryDelay
	}
	return c
}

func (c Config) roleSupported(role wire.Role) bool {
	for _, r := range c.SupportedRoles {
		if r == role {
			return true
		}
	}
	return false
}

// ConnMeta carries per-connection metadata extracted by the listener,
// typically from the request URL query.
type ConnMeta struct {
	// RemoteAddr is the peer address for logging and display.
	RemoteAddr string
	// Reason is why the client connected; defaults to discovery.
	Reason wire.ConnectionReason
	// ZoneID is the zone the connection was made for, when given.
	ZoneID *int
	// PlayerID is the player the connection was made for, when given.
	PlayerID string
}
