package client

import (
	"time"

	"github.com/lox-audioserver/sendspin/timesync"
	"github.com/lox-audioserver/sendspin/wire"
)

// DefaultConnectTimeout bounds both the socket dial and the wait for
// server/hello.
const DefaultConnectTimeout = 10 * time.Second

// bootstrapMarginUS is the playback safety margin applied while the
// time filter has not locked yet.
const bootstrapMarginUS = 500_000

// Options configures a Client. Capability blocks must be present for
// the roles that require them (player, artwork, source).
type Options struct {
	// DeviceInfo is attached to the hello when set.
	DeviceInfo *wire.DeviceInfo

	// PlayerSupport declares playback capabilities; required with the
	// player role.
	PlayerSupport *wire.PlayerSupport
	// ArtworkSupport declares artwork capabilities; required with the
	// artwork role.
	ArtworkSupport *wire.ArtworkSupport
	// VisualizerSupport declares visualizer capabilities.
	VisualizerSupport *wire.VisualizerSupport
	// SourceSupport declares capture capabilities; required with the
	// source role.
	SourceSupport *wire.SourceSupport

	// StaticDelayMS shifts every scheduled play time to compensate for
	// the local render pipeline.
	StaticDelayMS int

	// InitialVolume is reported in the first client/state; nil means
	// 100.
	InitialVolume *int
	// InitialMuted is reported in the first client/state.
	InitialMuted bool

	// ConnectTimeout overrides DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// Clock supplies local microsecond time; defaults to the system
	// clock.
	Clock timesync.Clock
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.Clock == nil {
		o.Clock = timesync.SystemClock{}
	}
	if o.InitialVolume == nil {
		v := 100
		o.InitialVolume = &v
	}
	return o
}

// ServerInfo is what the server said about itself in server/hello.
type ServerInfo struct {
	ServerID string
	Name     string
	Version  int
}

// syncInterval maps the filter state onto the next client/time delay:
// tight while acquiring, relaxed once the offset uncertainty is small.
func syncInterval(synchronized bool, errorMicros int64) time.Duration {
	if !synchronized {
		return 200 * time.Millisecond
	}
	switch {
	case errorMicros < 1_000:
		return 3 * time.Second
	case errorMicros < 2_000:
		return time.Second
	case errorMicros < 5_000:
		return 500 * time.Millisecond
	default:
		return 200 * time.Millisecond
	}
}
