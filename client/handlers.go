package client

import (
	"encoding/base64"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/lox-audioserver/sendspin/audio"
	"github.com/lox-audioserver/sendspin/timesync"
	"github.com/lox-audioserver/sendspin/wire"
)

func unmarshalPayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// handleText dispatches one inbound control message. Unknown types and
// malformed payloads are dropped.
func (c *Client) handleText(data []byte) {
	msg, err := wire.DecodeMessage(data)
	if err != nil {
		c.log.WithField("error", err).Debug("dropping malformed control frame")
		return
	}

	switch msg.Type {
	case wire.MsgServerTime:
		c.handleServerTime(msg.Payload)
	case wire.MsgServerState:
		c.handleServerState(msg.Payload)
	case wire.MsgServerCommand:
		c.handleServerCommand(msg.Payload)
	case wire.MsgGroupUpdate:
		c.handleGroupUpdate(msg.Payload)
	case wire.MsgStreamStart:
		c.handleStreamStart(msg.Payload)
	case wire.MsgStreamClear:
		c.handleStreamClear(msg.Payload)
	case wire.MsgStreamEnd:
		c.handleStreamEnd(msg.Payload)
	default:
		c.log.WithField("type", msg.Type).Debug("ignoring unknown message type")
	}
}

// handleServerTime feeds one completed exchange into the time filter.
func (c *Client) handleServerTime(payload json.RawMessage) {
	received := c.clock.NowMicros()
	var st wire.ServerTime
	if err := unmarshalPayload(payload, &st); err != nil {
		return
	}
	offset, delay := timesync.MeasurementFromExchange(
		st.ClientTransmitted, st.ServerReceived, st.ServerTransmitted, received)
	c.filter.Update(offset, delay, received)
}

// handleServerState merges metadata and forwards controller state.
func (c *Client) handleServerState(payload json.RawMessage) {
	var state wire.ServerStatePayload
	if err := unmarshalPayload(payload, &state); err != nil {
		return
	}
	if state.Metadata != nil {
		c.mu.Lock()
		c.metadata = c.metadata.Merge(*state.Metadata)
		merged := c.metadata
		c.mu.Unlock()
		notify(&c.metadataListeners, func(fn func(wire.Metadata)) { fn(merged) })
	}
	if state.Controller != nil {
		cs := *state.Controller
		notify(&c.controllerStateListeners, func(fn func(wire.ControllerState)) { fn(cs) })
	}
}

// handleServerCommand applies player commands locally and forwards
// both blocks to listeners.
func (c *Client) handleServerCommand(payload json.RawMessage) {
	var cmd wire.ServerCommandPayload
	if err := unmarshalPayload(payload, &cmd); err != nil {
		return
	}
	if cmd.Player != nil {
		pc := *cmd.Player
		c.mu.Lock()
		switch pc.Command {
		case wire.PlayerVolume:
			if pc.Volume != nil {
				c.volume = *pc.Volume
			}
		case wire.PlayerMute:
			if pc.Mute != nil {
				c.muted = *pc.Mute
			}
		}
		c.mu.Unlock()
		notify(&c.serverCommandListeners, func(fn func(wire.PlayerServerCommand)) { fn(pc) })
	}
	if cmd.Source != nil {
		sc := *cmd.Source
		notify(&c.sourceCommandListeners, func(fn func(wire.SourceServerCommand)) { fn(sc) })
	}
}

func (c *Client) handleGroupUpdate(payload json.RawMessage) {
	var gu wire.GroupUpdate
	if err := unmarshalPayload(payload, &gu); err != nil {
		return
	}
	notify(&c.groupUpdateListeners, func(fn func(wire.GroupUpdate)) { fn(gu) })
}

// handleStreamStart configures the audio output for a player stream.
// A format change on an already-running stream updates state without
// re-firing the start listeners; a genuinely new stream also kicks an
// immediate time probe so scheduling tightens right away.
func (c *Client) handleStreamStart(payload json.RawMessage) {
	var start wire.StreamStart
	if err := unmarshalPayload(payload, &start); err != nil {
		return
	}
	p := start.Player
	if p == nil {
		return
	}

	pcm, err := audio.NewPCMFormat(p.SampleRate, p.Channels, p.BitDepth)
	if err != nil {
		c.log.WithFields(logrus.Fields{
			"sample_rate": p.SampleRate,
			"channels":    p.Channels,
			"bit_depth":   p.BitDepth,
			"error":       err,
		}).Warn("rejecting stream/start with unplayable format")
		return
	}

	format := audio.Format{
		Codec:      p.Codec,
		SampleRate: pcm.SampleRate,
		Channels:   pcm.Channels,
		BitDepth:   pcm.BitDepth,
	}
	if p.CodecHeader != "" {
		if hdr, err := base64.StdEncoding.DecodeString(p.CodecHeader); err == nil {
			format.CodecHeader = hdr
		}
	}

	c.mu.Lock()
	wasActive := c.streamActive
	c.streamActive = true
	c.format = &format
	c.mu.Unlock()

	if wasActive {
		return
	}
	notify(&c.streamStartListeners, func(fn func(audio.Format)) { fn(format) })
	c.kickTimeSync()
}

// handleStreamClear forwards flush requests scoped to the clearable
// roles; anything else in the scope invalidates the whole request.
func (c *Client) handleStreamClear(payload json.RawMessage) {
	var scope wire.StreamRoles
	if err := unmarshalPayload(payload, &scope); err != nil {
		return
	}
	for _, role := range scope.Roles {
		if role != wire.FamilyPlayer && role != wire.FamilyVisualizer {
			return
		}
	}
	roles := scope.Roles
	notify(&c.streamClearListeners, func(fn func([]string)) { fn(roles) })
}

// handleStreamEnd drops player stream state when the scope includes
// the player (or is unscoped) and notifies end listeners.
func (c *Client) handleStreamEnd(payload json.RawMessage) {
	var scope wire.StreamRoles
	if err := unmarshalPayload(payload, &scope); err != nil {
		return
	}
	endsPlayer := len(scope.Roles) == 0
	for _, role := range scope.Roles {
		if role == wire.FamilyPlayer {
			endsPlayer = true
		}
	}
	if endsPlayer {
		c.mu.Lock()
		c.streamActive = false
		c.format = nil
		c.mu.Unlock()
	}
	roles := scope.Roles
	notify(&c.streamEndListeners, func(fn func([]string)) { fn(roles) })
}

// handleBinary dispatches one inbound binary frame. Audio is honored
// only while a stream is active; unknown tags are skipped.
func (c *Client) handleBinary(data []byte) {
	hdr, payload, err := wire.ParseFrame(data)
	if err != nil {
		c.log.Debug("dropping short binary frame")
		return
	}

	switch {
	case hdr.Type == wire.BinaryAudioChunk:
		c.mu.Lock()
		active := c.streamActive
		var format audio.Format
		if c.format != nil {
			format = *c.format
		}
		c.mu.Unlock()
		if !active {
			return
		}
		ts := hdr.TimestampUS
		notify(&c.audioChunkListeners, func(fn func(int64, []byte, audio.Format)) {
			fn(ts, payload, format)
		})
	case hdr.Type.IsArtwork():
		channel := hdr.Type.ArtworkChannel()
		ts := hdr.TimestampUS
		notify(&c.artworkListeners, func(fn func(int, int64, []byte)) {
			fn(channel, ts, payload)
		})
	case hdr.Type == wire.BinaryVisualizationData:
		ts := hdr.TimestampUS
		notify(&c.visualizerListeners, func(fn func(int64, []byte)) {
			fn(ts, payload)
		})
	}
}
