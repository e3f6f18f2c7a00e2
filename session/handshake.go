package session

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lox-audioserver/sendspin/audio"
	"github.com/lox-audioserver/sendspin/wire"
)

// handleHelloLocked validates a client/hello, resolves roles, sends
// server/hello plus the initial group/update, and arms the
// initial-state gate for players. Called with the lock held; releases
// it.
func (s *Session) handleHelloLocked(payload json.RawMessage) {
	var hello wire.ClientHello
	if err := json.Unmarshal(payload, &hello); err != nil {
		s.log.WithField("error", err).Debug("dropping malformed client/hello")
		s.mu.Unlock()
		return
	}

	if hello.Version != wire.ProtocolVersion {
		s.failHelloLocked(reasonInvalidVersion)
		return
	}
	clientID := trimmedClientID(hello.ClientID)
	if clientID == "" {
		s.failHelloLocked(reasonMissingClientID)
		return
	}
	if len(hello.SupportedRoles) == 0 {
		s.failHelloLocked(reasonMissingRoles)
		return
	}

	active, unsupported := s.resolveRolesLocked(hello.SupportedRoles)

	// Every granted family must come with its capability block.
	for _, role := range active {
		switch role.Family() {
		case wire.FamilyPlayer:
			if hello.EffectivePlayerSupport() == nil {
				s.failHelloLocked(reasonMissingPlayer)
				return
			}
		case wire.FamilyArtwork:
			if hello.EffectiveArtworkSupport() == nil {
				s.failHelloLocked(reasonMissingArtwork)
				return
			}
		case wire.FamilyVisualizer:
			if hello.EffectiveVisualizerSupport() == nil {
				s.failHelloLocked(reasonMissingVisualizer)
				return
			}
		case wire.FamilySource:
			if hello.EffectiveSourceSupport() == nil {
				s.failHelloLocked(reasonMissingSource)
				return
			}
		}
	}

	s.clientID = clientID
	s.clientName = hello.Name
	s.activeRoles = active
	s.unsupported = unsupported
	for _, role := range active {
		s.families[role.Family()] = true
	}

	s.playerSupport = hello.EffectivePlayerSupport()
	s.artworkSupport = hello.EffectiveArtworkSupport()
	s.visualizerSupport = hello.EffectiveVisualizerSupport()
	s.sourceSupport = hello.EffectiveSourceSupport()

	if s.playerSupport != nil {
		for _, cmd := range s.playerSupport.SupportedCommands {
			switch cmd {
			case wire.PlayerVolume:
				s.expectVolume = true
			case wire.PlayerMute:
				s.expectMute = true
			}
		}
		if preferred, ok := preferredFormat(s.playerSupport.SupportedFormats); ok {
			s.format = preferred
		}
	}

	s.ready = true
	s.log = s.log.WithFields(logrus.Fields{
		"client_id":   clientID,
		"client_name": hello.Name,
	})
	s.log.WithFields(logrus.Fields{
		"active_roles":      active,
		"unsupported_roles": unsupported,
		"stream_format":     s.format.String(),
	}).Info("client handshake complete")

	s.writeMessageLocked(wire.MsgServerHello, wire.ServerHello{
		ServerID:         s.cfg.ServerID,
		Name:             s.cfg.ServerName,
		Version:          wire.ProtocolVersion,
		ActiveRoles:      active,
		ConnectionReason: s.meta.Reason,
	})

	s.groupID, s.groupName = s.defaultGroupLocked()
	s.playbackState = wire.PlaybackStopped
	s.writeMessageLocked(wire.MsgGroupUpdate, wire.GroupUpdate{
		PlaybackState: wire.PlaybackStopped,
		GroupID:       s.groupID,
		GroupName:     s.groupName,
	})

	var after []func()
	if len(unsupported) > 0 && s.hasHooks && s.hooks.OnUnsupportedRoles != nil {
		hook := s.hooks.OnUnsupportedRoles
		roles := append([]string(nil), unsupported...)
		after = append(after, func() {
			invokeHook("OnUnsupportedRoles", func() { hook(s, roles) })
		})
	}

	if s.families[wire.FamilyPlayer] {
		s.armInitialStateTimerLocked()
	} else {
		s.identified = true
		if fn := s.identifiedHookLocked(); fn != nil {
			after = append(after, fn)
		}
	}

	s.mu.Unlock()
	for _, fn := range after {
		fn()
	}
}

// failHelloLocked closes the handshake with a policy violation and
// releases the lock.
func (s *Session) failHelloLocked(reason string) {
	s.closeViolationLocked(reason)
	s.mu.Unlock()
	s.destroy()
}

// resolveRolesLocked walks the declared roles in order. The first
// occurrence of each family that names a server-supported literal is
// granted; unknown roles are collected for reporting unless they are
// underscore-prefixed experiments. Non-string entries are skipped.
func (s *Session) resolveRolesLocked(declared []any) (active []wire.Role, unsupported []string) {
	granted := make(map[string]bool)
	for _, entry := range declared {
		name, ok := entry.(string)
		if !ok {
			continue
		}
		role := wire.Role(name)
		if granted[role.Family()] {
			continue
		}
		if s.cfg.roleSupported(role) {
			granted[role.Family()] = true
			active = append(active, role)
			continue
		}
		if !strings.HasPrefix(name, "_") {
			unsupported = append(unsupported, name)
		}
	}
	return active, unsupported
}

// preferredFormat picks the first fully valid declared format.
func preferredFormat(specs []wire.FormatSpec) (audio.Format, bool) {
	for _, spec := range specs {
		if spec.Valid() {
			return audio.Format{
				Codec:      spec.Codec,
				SampleRate: spec.SampleRate,
				Channels:   spec.Channels,
				BitDepth:   spec.BitDepth,
			}, true
		}
	}
	return audio.Format{}, false
}

// defaultGroupLocked derives the initial group identity from the
// connection metadata, falling back through player id, zone, client
// id, and finally the protocol name.
func (s *Session) defaultGroupLocked() (id, name string) {
	switch {
	case s.meta.PlayerID != "":
		id = s.meta.PlayerID
	case s.meta.ZoneID != nil:
		id = fmt.Sprintf("zone-%d", *s.meta.ZoneID)
	case s.clientID != "":
		id = s.clientID
	default:
		id = "sendspin"
	}
	return id, id
}

// armInitialStateTimerLocked starts the gate that forces player
// clients to report their initial state promptly.
func (s *Session) armInitialStateTimerLocked() {
	s.initialStateTimer = time.AfterFunc(s.cfg.InitialStateTimeout, func() {
		s.mu.Lock()
		if s.closed || s.initialStateSeen {
			s.mu.Unlock()
			return
		}
		s.closeViolationLocked(reasonInitialStateTimeout)
		s.mu.Unlock()
		s.destroy()
	})
}
