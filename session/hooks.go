package session

import (
	"github.com/sirupsen/logrus"

	"github.com/lox-audioserver/sendspin/audio"
	"github.com/lox-audioserver/sendspin/wire"
)

// PlayerStateUpdate is the player-relevant part of a client/state
// message. Volume and Muted are nil when the client omitted them.
type PlayerStateUpdate struct {
	State  wire.ClientState
	Volume *int
	Muted  *bool
}

// GroupCommand is a controller client's request against the group.
type GroupCommand struct {
	Command  wire.MediaCommand
	Volume   *int
	Mute     *bool
	SourceID string
}

// Hooks receives session lifecycle and data events. Any field may be
// nil. Hook panics are contained; a failing hook never disturbs the
// protocol machinery or other hooks.
type Hooks struct {
	// OnIdentified fires once, when the session has completed the
	// handshake and (for players) reported its initial state.
	OnIdentified func(s *Session)
	// OnDisconnected fires exactly once when the session is destroyed.
	OnDisconnected func(s *Session)
	// OnGoodbye fires when the client announces an orderly departure.
	OnGoodbye func(s *Session, reason wire.GoodbyeReason)
	// OnPlayerState fires for every client/state; Volume and Muted are
	// nil when the message has no player block.
	OnPlayerState func(s *Session, update PlayerStateUpdate)
	// OnSourceState fires when client/state carries a source block.
	OnSourceState func(s *Session, state wire.SourceStateInfo)
	// OnGroupCommand fires for controller commands.
	OnGroupCommand func(s *Session, cmd GroupCommand)
	// OnSourceCommand fires for source capture requests.
	OnSourceCommand func(s *Session, cmd wire.SourceCommand)
	// OnSourceAudio fires for each inbound source capture frame.
	OnSourceAudio func(s *Session, timestampUS int64, data []byte)
	// OnFormatChanged fires for every stream/request-format player block
	// a player session handles, with the resulting format, whether or not
	// any field changed.
	OnFormatChanged func(s *Session, format audio.Format)
	// OnUnsupportedRoles fires when the hello asked for roles this
	// server does not grant.
	OnUnsupportedRoles func(s *Session, roles []string)
}

// invokeHook runs one hook callback, swallowing panics so a bad hook
// cannot take the session down.
func invokeHook(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"hook":  name,
				"panic": r,
			}).Warn("session hook panicked")
		}
	}()
	fn()
}
