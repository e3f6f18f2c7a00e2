package session

import (
	"encoding/json"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lox-audioserver/sendspin/audio"
	"github.com/lox-audioserver/sendspin/transport"
	"github.com/lox-audioserver/sendspin/wire"
)

// Close reasons for protocol violations.
const (
	reasonExpectedHello       = "expected client/hello first"
	reasonInvalidVersion      = "invalid protocol version"
	reasonMissingClientID     = "missing client_id"
	reasonMissingRoles        = "missing supported_roles"
	reasonMissingPlayer       = "missing player support"
	reasonMissingArtwork      = "missing artwork support"
	reasonMissingVisualizer   = "missing visualizer support"
	reasonMissingSource       = "missing source support"
	reasonInitialStateTimeout = "initial state timeout"
)

// Session drives the protocol for one client connection. Inbound
// frames are fed through HandleText / HandleBinary; server-initiated
// operations are the Send* methods. All methods are safe for
// concurrent use, though inbound frames must arrive from a single
// pump goroutine to preserve ordering.
type Session struct {
	mu  sync.Mutex
	tr  transport.Transport
	cfg Config
	log *logrus.Entry

	meta ConnMeta

	clientID   string
	clientName string

	activeRoles []wire.Role
	families    map[string]bool
	unsupported []string

	playerSupport     *wire.PlayerSupport
	artworkSupport    *wire.ArtworkSupport
	visualizerSupport *wire.VisualizerSupport
	sourceSupport     *wire.SourceSupport

	expectVolume bool
	expectMute   bool
	warnedVolume bool
	warnedMute   bool

	ready            bool
	identified       bool
	identifiedSent   bool
	initialStateSeen bool
	activeStream     bool
	closed           bool
	destroyed        bool

	format          audio.Format
	artworkChannels [wire.ArtworkChannels]*wire.ArtworkChannelConfig
	playbackState   wire.PlaybackState
	groupID         string
	groupName       string
	goodbyeReason   wire.GoodbyeReason
	sourceState     wire.SourceState
	sourceSignal    wire.SourceSignal

	drops dropLedger

	hooks    Hooks
	hookCtx  any
	hasHooks bool

	initialStateTimer *time.Timer
}

// New creates a session for an accepted transport. The session stays
// in the await-hello state until the client introduces itself.
func New(tr transport.Transport, cfg Config, meta ConnMeta) *Session {
	cfg = cfg.withDefaults()
	if meta.Reason == "" {
		meta.Reason = wire.ReasonDiscovery
	}
	s := &Session{
		tr:            tr,
		cfg:           cfg,
		meta:          meta,
		families:      make(map[string]bool),
		format:        audio.DefaultFormat(),
		playbackState: wire.PlaybackStopped,
		sourceSignal:  wire.SignalUnknown,
		log: logrus.WithFields(logrus.Fields{
			"remote_addr": meta.RemoteAddr,
			"reason":      meta.Reason,
		}),
	}
	return s
}

// HandleText processes one inbound JSON control frame. Malformed JSON
// is dropped; a non-hello message before the handshake closes the
// connection with a policy violation.
func (s *Session) HandleText(data []byte) {
	msg, err := wire.DecodeMessage(data)
	if err != nil {
		s.log.WithField("error", err).Debug("dropping malformed control frame")
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if !s.ready {
		if msg.Type != wire.MsgClientHello {
			s.closeViolationLocked(reasonExpectedHello)
			s.mu.Unlock()
			s.destroy()
			return
		}
		s.handleHelloLocked(msg.Payload)
		return // handleHelloLocked released the lock
	}

	switch msg.Type {
	case wire.MsgClientHello:
		// Repeat hello after the handshake is ignored.
		s.mu.Unlock()
	case wire.MsgClientTime:
		s.handleTimeLocked(msg.Payload)
	case wire.MsgClientState:
		s.handleStateLocked(msg.Payload)
	case wire.MsgClientCommand:
		s.handleCommandLocked(msg.Payload)
	case wire.MsgClientGoodbye:
		s.handleGoodbyeLocked(msg.Payload)
	case wire.MsgStreamRequestFormat:
		s.handleRequestFormatLocked(msg.Payload)
	default:
		s.log.WithField("type", msg.Type).Debug("ignoring unknown message type")
		s.mu.Unlock()
	}
}

// HandleBinary processes one inbound binary frame. Only source capture
// frames from sessions holding the source role are honored.
func (s *Session) HandleBinary(data []byte) {
	hdr, payload, err := wire.ParseFrame(data)
	if err != nil {
		s.log.Debug("dropping short binary frame")
		return
	}

	s.mu.Lock()
	if s.closed || !s.ready || hdr.Type != wire.BinarySourceAudioChunk || !s.families[wire.FamilySource] {
		s.mu.Unlock()
		return
	}
	hook := s.hooks.OnSourceAudio
	s.mu.Unlock()

	if hook != nil {
		invokeHook("OnSourceAudio", func() { hook(s, hdr.TimestampUS, payload) })
	}
}

// handleTimeLocked answers client/time with the receive and (freshly
// re-sampled) transmit timestamps. Releases the lock.
func (s *Session) handleTimeLocked(payload json.RawMessage) {
	received := s.cfg.Clock.NowMicros()
	var ct wire.ClientTime
	if err := json.Unmarshal(payload, &ct); err != nil {
		s.mu.Unlock()
		return
	}
	reply := wire.ServerTime{
		ClientTransmitted: ct.ClientTransmitted,
		ServerReceived:    received,
		ServerTransmitted: s.cfg.Clock.NowMicros(),
	}
	s.writeMessageLocked(wire.MsgServerTime, reply)
	s.mu.Unlock()
}

// handleStateLocked absorbs a client/state. Releases the lock.
func (s *Session) handleStateLocked(payload json.RawMessage) {
	var st wire.ClientStatePayload
	if err := json.Unmarshal(payload, &st); err != nil {
		s.mu.Unlock()
		return
	}

	var after []func()

	if !s.initialStateSeen {
		s.initialStateSeen = true
		s.stopInitialStateTimerLocked()
		if !s.identified {
			s.identified = true
			if fn := s.identifiedHookLocked(); fn != nil {
				after = append(after, fn)
			}
		}
	}

	update := PlayerStateUpdate{State: st.State}
	if st.Player != nil {
		if st.Player.State != "" {
			update.State = st.Player.State
		}
		update.Volume = st.Player.Volume
		update.Muted = st.Player.Muted
	}
	if s.expectVolume && (st.Player == nil || st.Player.Volume == nil) && !s.warnedVolume {
		s.warnedVolume = true
		s.log.Warn("client/state omitted volume the hello promised to report")
	}
	if s.expectMute && (st.Player == nil || st.Player.Muted == nil) && !s.warnedMute {
		s.warnedMute = true
		s.log.Warn("client/state omitted muted the hello promised to report")
	}

	if hook := s.hooks.OnPlayerState; hook != nil {
		after = append(after, func() {
			invokeHook("OnPlayerState", func() { hook(s, update) })
		})
	}

	if st.Source != nil {
		src := *st.Source
		s.sourceState = src.State
		if src.Signal != "" {
			s.sourceSignal = src.Signal
		}
		if hook := s.hooks.OnSourceState; hook != nil {
			after = append(after, func() {
				invokeHook("OnSourceState", func() { hook(s, src) })
			})
		}
	}

	s.mu.Unlock()
	for _, fn := range after {
		fn()
	}
}

// handleCommandLocked dispatches client/command blocks. Releases the lock.
func (s *Session) handleCommandLocked(payload json.RawMessage) {
	var cmd wire.ClientCommandPayload
	if err := json.Unmarshal(payload, &cmd); err != nil {
		s.mu.Unlock()
		return
	}

	var after []func()
	if cmd.Controller != nil {
		gc := GroupCommand{
			Command:  cmd.Controller.Command,
			Volume:   cmd.Controller.Volume,
			Mute:     cmd.Controller.Mute,
			SourceID: cmd.Controller.SourceID,
		}
		if hook := s.hooks.OnGroupCommand; hook != nil {
			after = append(after, func() {
				invokeHook("OnGroupCommand", func() { hook(s, gc) })
			})
		}
	}
	if cmd.Source != nil {
		sc := cmd.Source.Command
		if hook := s.hooks.OnSourceCommand; hook != nil {
			after = append(after, func() {
				invokeHook("OnSourceCommand", func() { hook(s, sc) })
			})
		}
	}

	s.mu.Unlock()
	for _, fn := range after {
		fn()
	}
}

// handleGoodbyeLocked records the reason and closes the connection
// normally. Releases the lock.
func (s *Session) handleGoodbyeLocked(payload json.RawMessage) {
	var gb wire.ClientGoodbye
	_ = json.Unmarshal(payload, &gb)
	s.goodbyeReason = gb.Reason
	s.closed = true
	hook := s.hooks.OnGoodbye
	reason := gb.Reason
	s.mu.Unlock()

	s.log.WithField("goodbye_reason", reason).Info("client said goodbye")
	if hook != nil {
		invokeHook("OnGoodbye", func() { hook(s, reason) })
	}
	_ = s.tr.Close(0, "")
	s.destroy()
}

// handleRequestFormatLocked merges a stream/request-format over the
// negotiated formats. Releases the lock.
func (s *Session) handleRequestFormatLocked(payload json.RawMessage) {
	var req wire.StreamRequestFormat
	if err := json.Unmarshal(payload, &req); err != nil {
		s.mu.Unlock()
		return
	}

	var after []func()

	if req.Player != nil && s.families[wire.FamilyPlayer] {
		s.applyPlayerFormatRequestLocked(req.Player)
		format := s.format
		if hook := s.hooks.OnFormatChanged; hook != nil {
			after = append(after, func() {
				invokeHook("OnFormatChanged", func() { hook(s, format) })
			})
		}
		s.sendPlayerStreamStartLocked()
	}

	if req.Artwork != nil && s.families[wire.FamilyArtwork] {
		s.applyArtworkFormatRequestLocked(req.Artwork)
	}

	s.mu.Unlock()
	for _, fn := range after {
		fn()
	}
}

// applyPlayerFormatRequestLocked merges the requested fields over the
// current format. An unknown codec string is dropped while the numeric
// fields still merge; a partial preference beats rejecting the whole
// request.
func (s *Session) applyPlayerFormatRequestLocked(req *wire.PlayerFormatRequest) {
	if req.Codec != "" && req.Codec.Known() {
		if req.Codec != s.format.Codec {
			s.format.CodecHeader = nil
		}
		s.format.Codec = req.Codec
	}
	if req.SampleRate != nil && *req.SampleRate > 0 {
		s.format.SampleRate = *req.SampleRate
	}
	if req.Channels != nil && *req.Channels > 0 {
		s.format.Channels = *req.Channels
	}
	if req.BitDepth != nil && *req.BitDepth > 0 {
		s.format.BitDepth = *req.BitDepth
	}
}

// applyArtworkFormatRequestLocked updates one artwork channel config
// and re-announces the artwork stream. Out-of-range channels do
// nothing.
func (s *Session) applyArtworkFormatRequestLocked(req *wire.ArtworkFormatRequest) {
	idx := int(math.Floor(req.Channel))
	if idx < 0 || idx >= wire.ArtworkChannels {
		return
	}
	cfg := s.artworkChannels[idx]
	if cfg == nil {
		cfg = &wire.ArtworkChannelConfig{Channel: idx}
		s.artworkChannels[idx] = cfg
	}
	if req.Source != nil {
		cfg.Source = *req.Source
	}
	if req.Format != nil {
		cfg.Format = *req.Format
	}
	if req.MediaWidth != nil {
		cfg.MediaWidth = *req.MediaWidth
	}
	if req.MediaHeight != nil {
		cfg.MediaHeight = *req.MediaHeight
	}
	s.sendArtworkStreamStartLocked()
}

// identifiedHookLocked returns the deferred OnIdentified invocation,
// ensuring it fires at most once per session.
func (s *Session) identifiedHookLocked() func() {
	if s.identifiedSent || !s.hasHooks {
		return nil
	}
	hook := s.hooks.OnIdentified
	if hook == nil {
		return nil
	}
	s.identifiedSent = true
	return func() {
		invokeHook("OnIdentified", func() { hook(s) })
	}
}

func (s *Session) stopInitialStateTimerLocked() {
	if s.initialStateTimer != nil {
		s.initialStateTimer.Stop()
		s.initialStateTimer = nil
	}
}

// closeViolationLocked closes the transport with a policy violation.
func (s *Session) closeViolationLocked(reason string) {
	s.log.WithField("close_reason", reason).Warn("closing session for protocol violation")
	s.closed = true
	_ = s.tr.Close(transport.ClosePolicyViolation, reason)
}

// SetHooks attaches the event hooks and an opaque caller context. Late
// attachment replays events the caller would otherwise have missed:
// unsupported roles reported during the hello, and identification that
// completed before the hooks arrived.
func (s *Session) SetHooks(h Hooks, ctx any) {
	s.mu.Lock()
	s.hooks = h
	s.hookCtx = ctx
	s.hasHooks = true

	var after []func()
	if len(s.unsupported) > 0 && h.OnUnsupportedRoles != nil {
		roles := append([]string(nil), s.unsupported...)
		hook := h.OnUnsupportedRoles
		after = append(after, func() {
			invokeHook("OnUnsupportedRoles", func() { hook(s, roles) })
		})
	}
	if s.identified {
		if fn := s.identifiedHookLocked(); fn != nil {
			after = append(after, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range after {
		fn()
	}
}

// ClearHooks detaches the hooks so a later registration can attach.
func (s *Session) ClearHooks() {
	s.mu.Lock()
	s.hooks = Hooks{}
	s.hookCtx = nil
	s.hasHooks = false
	s.mu.Unlock()
}

// HasHooks reports whether hooks are attached.
func (s *Session) HasHooks() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasHooks
}

// HookContext returns the opaque value passed to SetHooks.
func (s *Session) HookContext() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hookCtx
}

// Destroy tears the session down: timers stopped, transport closed,
// OnDisconnected delivered exactly once.
func (s *Session) Destroy() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	_ = s.tr.Close(0, "")
	s.destroy()
}

func (s *Session) destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	s.closed = true
	s.stopInitialStateTimerLocked()
	hook := s.hooks.OnDisconnected
	s.mu.Unlock()

	if hook != nil {
		invokeHook("OnDisconnected", func() { hook(s) })
	}
}

// --- accessors ---

// ClientID returns the trimmed client id, empty before the hello.
func (s *Session) ClientID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientID
}

// ClientName returns the display name from the hello.
func (s *Session) ClientName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientName
}

// Roles returns the granted roles in hello order.
func (s *Session) Roles() []wire.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]wire.Role(nil), s.activeRoles...)
}

// HasRole reports whether a role family was granted.
func (s *Session) HasRole(family string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.families[family]
}

// Ready reports whether the handshake completed.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Identified reports whether the session is fully admitted: ready and,
// for players, past the initial state report.
func (s *Session) Identified() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identified
}

// ConnectionReason returns why this client connected.
func (s *Session) ConnectionReason() wire.ConnectionReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta.Reason
}

// StreamFormat returns the currently negotiated player format.
func (s *Session) StreamFormat() audio.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}

// StreamActive reports whether a stream/start has been sent and not
// yet ended.
func (s *Session) StreamActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeStream
}

// GoodbyeReason returns the reason from client/goodbye, if any.
func (s *Session) GoodbyeReason() wire.GoodbyeReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.goodbyeReason
}

// SourceStatus returns the last reported source state and signal.
func (s *Session) SourceStatus() (wire.SourceState, wire.SourceSignal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sourceState, s.sourceSignal
}

// RemoteAddr returns the peer address.
func (s *Session) RemoteAddr() string {
	return s.meta.RemoteAddr
}

// BackpressureStats snapshots the drop ledger, pruning the sliding
// window.
func (s *Session) BackpressureStats() DropStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drops.stats(s.cfg.Clock.NowMicros())
}

// Descriptor is a read-only summary of the session for host
// introspection.
type Descriptor struct {
	ClientID         string
	ClientName       string
	Roles            []wire.Role
	ConnectionReason wire.ConnectionReason
	RemoteAddr       string
	Ready            bool
	Identified       bool
	StreamActive     bool
	Format           audio.Format
	PlaybackState    wire.PlaybackState
	GroupID          string
	GroupName        string
	SourceState      wire.SourceState
	SourceSignal     wire.SourceSignal
	Backpressure     DropStats
}

// Descriptor snapshots the session.
func (s *Session) Descriptor() Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Descriptor{
		ClientID:         s.clientID,
		ClientName:       s.clientName,
		Roles:            append([]wire.Role(nil), s.activeRoles...),
		ConnectionReason: s.meta.Reason,
		RemoteAddr:       s.meta.RemoteAddr,
		Ready:            s.ready,
		Identified:       s.identified,
		StreamActive:     s.activeStream,
		Format:           s.format,
		PlaybackState:    s.playbackState,
		GroupID:          s.groupID,
		GroupName:        s.groupName,
		SourceState:      s.sourceState,
		SourceSignal:     s.sourceSignal,
		Backpressure:     s.drops.stats(s.cfg.Clock.NowMicros()),
	}
}

// trimmedClientID normalizes the hello's client id.
func trimmedClientID(id string) string {
	return strings.TrimSpace(id)
}
