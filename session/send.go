package session

import (
	"encoding/base64"
	"time"

	"github.com/lox-audioserver/sendspin/audio"
	"github.com/lox-audioserver/sendspin/wire"
)

// writeMessageLocked serializes and queues a control message. Failures
// are swallowed: sends on a dying transport are no-ops by contract.
func (s *Session) writeMessageLocked(msgType string, payload any) {
	if !s.tr.Open() {
		return
	}
	data, err := wire.EncodeMessage(msgType, payload)
	if err != nil {
		s.log.WithField("error", err).Warn("control message encode failed")
		return
	}
	if err := s.tr.WriteText(data); err != nil {
		s.log.WithField("error", err).Debug("control message write failed")
	}
}

// canSendLocked gates outbound traffic: the transport must be open,
// and everything beyond the hello family and group updates also needs
// a completed handshake.
func (s *Session) canSendLocked(requireReady bool) bool {
	if s.closed || !s.tr.Open() {
		return false
	}
	return !requireReady || s.ready
}

// sendPlayerStreamStartLocked announces the current player format.
func (s *Session) sendPlayerStreamStartLocked() {
	s.activeStream = true
	start := wire.StreamStart{
		Player: &wire.StreamStartPlayer{
			Codec:      s.format.Codec,
			SampleRate: s.format.SampleRate,
			Channels:   s.format.Channels,
			BitDepth:   s.format.BitDepth,
		},
	}
	if len(s.format.CodecHeader) > 0 {
		start.Player.CodecHeader = base64.StdEncoding.EncodeToString(s.format.CodecHeader)
	}
	s.writeMessageLocked(wire.MsgStreamStart, start)
}

// sendArtworkStreamStartLocked announces every configured artwork
// channel.
func (s *Session) sendArtworkStreamStartLocked() {
	channels := make([]wire.ArtworkChannelConfig, 0, wire.ArtworkChannels)
	for _, cfg := range s.artworkChannels {
		if cfg != nil {
			channels = append(channels, *cfg)
		}
	}
	s.writeMessageLocked(wire.MsgStreamStart, wire.StreamStart{
		Artwork: &wire.StreamStartArtwork{Channels: channels},
	})
}

// SendStreamStart announces a player stream. A non-nil format replaces
// the negotiated one first.
func (s *Session) SendStreamStart(format *audio.Format) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.canSendLocked(true) {
		return
	}
	if format != nil {
		s.format = *format
	}
	s.sendPlayerStreamStartLocked()
}

// ensureStreamStartedLocked transmits a stream/start if none is active.
func (s *Session) ensureStreamStartedLocked() {
	if !s.activeStream {
		s.sendPlayerStreamStartLocked()
	}
}

// SendStreamClear asks the named streaming roles (or all, when none
// are given) to flush buffered data.
func (s *Session) SendStreamClear(roles ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.canSendLocked(true) {
		return
	}
	s.writeMessageLocked(wire.MsgStreamClear, wire.StreamRoles{Roles: roles})
}

// SendStreamEnd ends the named streaming roles (or all). Ending the
// player stream clears the active-stream flag.
func (s *Session) SendStreamEnd(roles ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.canSendLocked(true) {
		return
	}
	if len(roles) == 0 {
		s.activeStream = false
	} else {
		for _, r := range roles {
			if r == wire.FamilyPlayer {
				s.activeStream = false
			}
		}
	}
	s.writeMessageLocked(wire.MsgStreamEnd, wire.StreamRoles{Roles: roles})
}

// SendPCM emits one audio chunk. A non-positive timestamp is replaced
// with the current clock reading. When the transport reports more than
// the buffered ceiling, the frame is deferred once and then sent
// regardless, keeping audio continuous while bounding queue growth.
func (s *Session) SendPCM(timestampUS int64, pcm []byte) {
	s.mu.Lock()
	if !s.canSendLocked(true) {
		s.mu.Unlock()
		return
	}
	s.ensureStreamStartedLocked()
	if timestampUS <= 0 {
		timestampUS = s.cfg.Clock.NowMicros()
	}
	frame := wire.PackFrame(wire.BinaryAudioChunk, timestampUS, pcm)

	if s.tr.BufferedAmount() > s.cfg.MaxBuffered {
		tr := s.tr
		delay := s.cfg.PCMRetryDelay
		s.mu.Unlock()
		time.AfterFunc(delay, func() {
			if tr.Open() {
				_ = tr.WriteBinary(frame)
			}
		})
		return
	}
	_ = s.tr.WriteBinary(frame)
	s.mu.Unlock()
}

// sendBinaryDropLocked writes an ancillary frame, dropping and counting
// it instead when the transport is backed up.
func (s *Session) sendBinaryDropLocked(typ wire.BinaryType, timestampUS int64, payload []byte) {
	if s.tr.BufferedAmount() > s.cfg.MaxBuffered {
		s.drops.record(len(payload), s.cfg.Clock.NowMicros())
		s.log.WithField("bytes", len(payload)).Debug("dropped frame under backpressure")
		return
	}
	_ = s.tr.WriteBinary(wire.PackFrame(typ, timestampUS, payload))
}

// SendServerCommand forwards command blocks to the client, silently
// stripping blocks whose role family was never granted.
func (s *Session) SendServerCommand(payload wire.ServerCommandPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.canSendLocked(true) {
		return
	}
	if payload.Player != nil && !s.families[wire.FamilyPlayer] {
		payload.Player = nil
	}
	if payload.Source != nil && !s.families[wire.FamilySource] {
		payload.Source = nil
	}
	if payload.Player == nil && payload.Source == nil {
		return
	}
	s.writeMessageLocked(wire.MsgServerCommand, payload)
}

// SendGroupUpdate pushes the group's playback state. Empty id and name
// leave the current group identity in place.
func (s *Session) SendGroupUpdate(state wire.PlaybackState, groupID, groupName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.canSendLocked(false) {
		return
	}
	if groupID != "" {
		s.groupID = groupID
	}
	if groupName != "" {
		s.groupName = groupName
	}
	s.playbackState = state
	s.writeMessageLocked(wire.MsgGroupUpdate, wire.GroupUpdate{
		PlaybackState: state,
		GroupID:       s.groupID,
		GroupName:     s.groupName,
	})
}

// SendMetadata pushes track metadata to metadata-role sessions.
func (s *Session) SendMetadata(m wire.Metadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.canSendLocked(true) || !s.families[wire.FamilyMetadata] {
		return
	}
	s.writeMessageLocked(wire.MsgServerState, wire.ServerStatePayload{Metadata: &m})
}

// SendControllerState pushes controller state to controller-role
// sessions.
func (s *Session) SendControllerState(cs wire.ControllerState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.canSendLocked(true) || !s.families[wire.FamilyController] {
		return
	}
	s.writeMessageLocked(wire.MsgServerState, wire.ServerStatePayload{Controller: &cs})
}

// SendArtworkStreamStart configures the artwork channels and announces
// them.
func (s *Session) SendArtworkStreamStart(channels []wire.ArtworkChannelConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.canSendLocked(true) || !s.families[wire.FamilyArtwork] {
		return
	}
	for i := range s.artworkChannels {
		s.artworkChannels[i] = nil
	}
	for _, cfg := range channels {
		if cfg.Channel >= 0 && cfg.Channel < wire.ArtworkChannels {
			c := cfg
			s.artworkChannels[cfg.Channel] = &c
		}
	}
	s.sendArtworkStreamStartLocked()
}

// SendArtwork emits artwork bytes on a channel; nil data clears the
// channel on the client. Artwork is ancillary: frames drop under
// backpressure.
func (s *Session) SendArtwork(channel int, data []byte) error {
	typ, err := wire.ArtworkChannelType(channel)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.canSendLocked(true) || !s.families[wire.FamilyArtwork] {
		return nil
	}
	s.sendBinaryDropLocked(typ, s.cfg.Clock.NowMicros(), data)
	return nil
}

// SendVisualizerStreamStart announces the visualizer data stream.
func (s *Session) SendVisualizerStreamStart(cfg wire.VisualizerConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.canSendLocked(true) || !s.families[wire.FamilyVisualizer] {
		return
	}
	s.writeMessageLocked(wire.MsgStreamStart, wire.StreamStart{Visualizer: &cfg})
}

// SendVisualizerFrame emits one visualizer frame. A non-positive
// timestamp is replaced with the clock reading. Visualizer data is
// ancillary: frames drop under backpressure.
func (s *Session) SendVisualizerFrame(timestampUS int64, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.canSendLocked(true) || !s.families[wire.FamilyVisualizer] {
		return
	}
	if timestampUS <= 0 {
		timestampUS = s.cfg.Clock.NowMicros()
	}
	s.sendBinaryDropLocked(wire.BinaryVisualizationData, timestampUS, data)
}
