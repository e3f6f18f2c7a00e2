package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/lox-audioserver/sendspin/audio"
	"github.com/lox-audioserver/sendspin/timesync"
	"github.com/lox-audioserver/sendspin/transport"
	"github.com/lox-audioserver/sendspin/wire"
)

// disconnectGrace bounds the wait for the read loop to observe a
// graceful close before cleanup proceeds regardless.
const disconnectGrace = 100 * time.Millisecond

// Client is a Sendspin participant. Create one with New, register
// listeners, then Connect. All methods are safe for concurrent use.
type Client struct {
	clientID   string
	clientName string
	roles      []wire.Role
	families   map[string]bool
	opts       Options

	clock         timesync.Clock
	filter        *timesync.Filter
	staticDelayUS int64
	log           *logrus.Entry

	mu           sync.Mutex
	tr           transport.Transport
	connected    bool
	server       *ServerInfo
	streamActive bool
	format       *audio.Format
	metadata     wire.Metadata
	volume       int
	muted        bool
	readDone     chan struct{}
	syncStop     chan struct{}
	syncKick     chan struct{}
	stopOnce     *sync.Once
	discOnce     *sync.Once

	metadataListeners        listenerSet[func(wire.Metadata)]
	groupUpdateListeners     listenerSet[func(wire.GroupUpdate)]
	controllerStateListeners listenerSet[func(wire.ControllerState)]
	streamStartListeners     listenerSet[func(audio.Format)]
	streamEndListeners       listenerSet[func(roles []string)]
	streamClearListeners     listenerSet[func(roles []string)]
	audioChunkListeners      listenerSet[func(timestampUS int64, pcm []byte, format audio.Format)]
	artworkListeners         listenerSet[func(channel int, timestampUS int64, data []byte)]
	visualizerListeners      listenerSet[func(timestampUS int64, data []byte)]
	disconnectListeners      listenerSet[func()]
	serverCommandListeners   listenerSet[func(wire.PlayerServerCommand)]
	sourceCommandListeners   listenerSet[func(wire.SourceServerCommand)]
}

// New creates a client for the given identity and roles. Roles that
// need capability blocks are validated against the options.
func New(clientID, clientName string, roles []wire.Role, opts Options) (*Client, error) {
	opts = opts.withDefaults()

	families := make(map[string]bool, len(roles))
	for _, r := range roles {
		families[r.Family()] = true
	}
	if families[wire.FamilyPlayer] && opts.PlayerSupport == nil {
		return nil, ErrMissingPlayerSupport
	}
	if families[wire.FamilyArtwork] && opts.ArtworkSupport == nil {
		return nil, ErrMissingArtworkSupport
	}
	if families[wire.FamilySource] && opts.SourceSupport == nil {
		return nil, ErrMissingSourceSupport
	}

	return &Client{
		clientID:      clientID,
		clientName:    clientName,
		roles:         append([]wire.Role(nil), roles...),
		families:      families,
		opts:          opts,
		clock:         opts.Clock,
		filter:        timesync.NewFilter(),
		staticDelayUS: int64(opts.StaticDelayMS) * 1000,
		volume:        *opts.InitialVolume,
		muted:         opts.InitialMuted,
		log: logrus.WithFields(logrus.Fields{
			"client_id": clientID,
		}),
	}, nil
}

// Connect dials the server and performs the handshake. The configured
// connect timeout covers both the socket open and the server/hello.
func (c *Client) Connect(ctx context.Context, rawURL string) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: c.opts.ConnectTimeout}
	dialCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()

	conn, _, err := dialer.DialContext(dialCtx, rawURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", rawURL, err)
	}
	return c.ConnectTransport(transport.NewWebSocket(conn))
}

// ConnectTransport runs the protocol over an established transport.
// It exists so tests and embedded setups can connect without a socket.
func (c *Client) ConnectTransport(tr transport.Transport) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		_ = tr.Close(0, "")
		return ErrAlreadyConnected
	}
	c.mu.Unlock()

	info, err := c.handshake(tr)
	if err != nil {
		_ = tr.Close(0, "")
		return err
	}

	c.filter.Reset()

	c.mu.Lock()
	c.tr = tr
	c.connected = true
	c.server = &info
	c.streamActive = false
	c.format = nil
	c.metadata = wire.Metadata{}
	c.readDone = make(chan struct{})
	c.syncStop = make(chan struct{})
	c.syncKick = make(chan struct{}, 1)
	c.stopOnce = &sync.Once{}
	c.discOnce = &sync.Once{}
	volume, muted := c.volume, c.muted
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{
		"server_id":   info.ServerID,
		"server_name": info.Name,
	}).Info("connected to server")

	if c.families[wire.FamilyPlayer] {
		c.writeMessage(tr, wire.MsgClientState, wire.ClientStatePayload{
			State: wire.ClientSynchronized,
			Player: &wire.PlayerStateInfo{
				Volume: &volume,
				Muted:  &muted,
			},
		})
	}

	go c.readLoop(tr)
	go c.timeSyncLoop(tr)
	return nil
}

// handshake sends client/hello and waits for server/hello within the
// connect timeout.
func (c *Client) handshake(tr transport.Transport) (ServerInfo, error) {
	hello := wire.ClientHello{
		ClientID:       c.clientID,
		Name:           c.clientName,
		Version:        wire.ProtocolVersion,
		SupportedRoles: make([]any, 0, len(c.roles)),
		DeviceInfo:     c.opts.DeviceInfo,
	}
	for _, r := range c.roles {
		hello.SupportedRoles = append(hello.SupportedRoles, string(r))
	}
	if c.families[wire.FamilyPlayer] {
		hello.PlayerSupport = c.opts.PlayerSupport
	}
	if c.families[wire.FamilyArtwork] {
		hello.ArtworkSupport = c.opts.ArtworkSupport
	}
	if c.families[wire.FamilyVisualizer] {
		hello.VisualizerSupport = c.opts.VisualizerSupport
	}
	if c.families[wire.FamilySource] {
		hello.SourceSupport = c.opts.SourceSupport
	}

	data, err := wire.EncodeMessage(wire.MsgClientHello, hello)
	if err != nil {
		return ServerInfo{}, err
	}
	if err := tr.WriteText(data); err != nil {
		return ServerInfo{}, fmt.Errorf("send client/hello: %w", err)
	}

	deadline := time.Now().Add(c.opts.ConnectTimeout)
	if err := tr.SetReadDeadline(deadline); err != nil {
		return ServerInfo{}, err
	}
	defer func() { _ = tr.SetReadDeadline(time.Time{}) }()

	for {
		kind, payload, err := tr.Read()
		if err != nil {
			return ServerInfo{}, fmt.Errorf("%w: %v", ErrHelloTimeout, err)
		}
		if kind != transport.TextMessage {
			continue
		}
		msg, err := wire.DecodeMessage(payload)
		if err != nil || msg.Type != wire.MsgServerHello {
			continue
		}
		var sh wire.ServerHello
		if err := unmarshalPayload(msg.Payload, &sh); err != nil {
			return ServerInfo{}, fmt.Errorf("decode server/hello: %w", err)
		}
		return ServerInfo{ServerID: sh.ServerID, Name: sh.Name, Version: sh.Version}, nil
	}
}

// Disconnect says goodbye, closes the transport, and waits briefly for
// the read loop before cleanup proceeds regardless.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	tr := c.tr
	readDone := c.readDone
	c.mu.Unlock()

	c.writeMessage(tr, wire.MsgClientGoodbye, wire.ClientGoodbye{Reason: wire.GoodbyeUserRequest})
	_ = tr.Close(0, "")

	select {
	case <-readDone:
	case <-time.After(disconnectGrace):
	}

	c.handleDisconnect()
	return nil
}

// readLoop pumps the transport until it fails or closes.
func (c *Client) readLoop(tr transport.Transport) {
	c.mu.Lock()
	readDone := c.readDone
	c.mu.Unlock()
	defer close(readDone)

	for {
		kind, data, err := tr.Read()
		if err != nil {
			break
		}
		switch kind {
		case transport.TextMessage:
			c.handleText(data)
		case transport.BinaryMessage:
			c.handleBinary(data)
		}
	}
	c.handleDisconnect()
}

// handleDisconnect tears down connection state once per connection and
// notifies disconnect listeners.
func (c *Client) handleDisconnect() {
	c.mu.Lock()
	stopOnce, discOnce := c.stopOnce, c.discOnce
	syncStop := c.syncStop
	c.connected = false
	c.streamActive = false
	c.mu.Unlock()

	if stopOnce != nil {
		stopOnce.Do(func() { close(syncStop) })
	}
	if discOnce != nil {
		discOnce.Do(func() {
			c.log.Info("disconnected from server")
			notify(&c.disconnectListeners, func(fn func()) { fn() })
		})
	}
}

// timeSyncLoop sends client/time probes, pacing itself by the filter's
// current uncertainty. A kick forces an immediate probe.
func (c *Client) timeSyncLoop(tr transport.Transport) {
	c.mu.Lock()
	stop, kick := c.syncStop, c.syncKick
	c.mu.Unlock()

	for {
		c.writeMessage(tr, wire.MsgClientTime, wire.ClientTime{
			ClientTransmitted: c.clock.NowMicros(),
		})

		interval := syncInterval(c.filter.Synchronized(), c.filter.ErrorMicros())
		timer := time.NewTimer(interval)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-kick:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// kickTimeSync schedules an immediate client/time probe.
func (c *Client) kickTimeSync() {
	c.mu.Lock()
	kick := c.syncKick
	connected := c.connected
	c.mu.Unlock()
	if !connected || kick == nil {
		return
	}
	select {
	case kick <- struct{}{}:
	default:
	}
}

// writeMessage encodes and sends one control message, swallowing
// transport failures: a dying connection surfaces through the read
// loop.
func (c *Client) writeMessage(tr transport.Transport, msgType string, payload any) {
	data, err := wire.EncodeMessage(msgType, payload)
	if err != nil {
		c.log.WithField("error", err).Warn("control message encode failed")
		return
	}
	if err := tr.WriteText(data); err != nil {
		c.log.WithFields(logrus.Fields{
			"type":  msgType,
			"error": err,
		}).Debug("control message write failed")
	}
}

// transport returns the live transport or ErrNotConnected. It takes the
// client lock itself.
func (c *Client) transport() (transport.Transport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected || c.tr == nil {
		return nil, ErrNotConnected
	}
	return c.tr, nil
}

// --- state accessors ---

// Connected reports whether the client currently has a live session.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Server returns what the server said in server/hello, or nil before
// the first connection.
func (c *Client) Server() *ServerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.server == nil {
		return nil
	}
	info := *c.server
	return &info
}

// Synchronized reports whether the time filter has locked on.
func (c *Client) Synchronized() bool {
	return c.filter.Synchronized()
}

// TimeErrorMicros returns the filter's one-sigma offset uncertainty.
func (c *Client) TimeErrorMicros() int64 {
	return c.filter.ErrorMicros()
}

// StreamActive reports whether a player stream is running.
func (c *Client) StreamActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streamActive
}

// StreamFormat returns the current stream format, or nil when no
// stream is active.
func (c *Client) StreamFormat() *audio.Format {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.format == nil {
		return nil
	}
	f := *c.format
	return &f
}

// Metadata returns the merged track metadata received so far.
func (c *Client) Metadata() wire.Metadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metadata
}

// Volume returns the local volume and mute state.
func (c *Client) Volume() (volume int, muted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume, c.muted
}

// --- playback time computation ---

// ComputePlayTime maps a server chunk timestamp onto the local clock,
// adding the static render delay. Before the filter locks, a half
// second bootstrap margin from now keeps early chunks playable.
func (c *Client) ComputePlayTime(serverTSUS int64) int64 {
	if c.filter.Synchronized() {
		return c.filter.ClientFromServer(serverTSUS) + c.staticDelayUS
	}
	return c.clock.NowMicros() + bootstrapMarginUS + c.staticDelayUS
}

// ComputeServerTime maps a local timestamp onto the server clock,
// removing the static render delay first.
func (c *Client) ComputeServerTime(clientTSUS int64) int64 {
	return c.filter.ServerFromClient(clientTSUS - c.staticDelayUS)
}

// --- client-initiated operations ---

// PlayerStateReport is the player condition reported via client/state.
type PlayerStateReport struct {
	State  wire.ClientState
	Volume int
	Muted  bool
}

// SendPlayerState reports the player condition and remembers the
// volume and mute locally.
func (c *Client) SendPlayerState(report PlayerStateReport) error {
	tr, err := c.transport()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.volume = report.Volume
	c.muted = report.Muted
	c.mu.Unlock()

	volume, muted := report.Volume, report.Muted
	c.writeMessage(tr, wire.MsgClientState, wire.ClientStatePayload{
		State: report.State,
		Player: &wire.PlayerStateInfo{
			State:  report.State,
			Volume: &volume,
			Muted:  &muted,
		},
	})
	return nil
}

// SendSourceState reports the capture state of a source client.
func (c *Client) SendSourceState(state wire.SourceStateInfo) error {
	tr, err := c.transport()
	if err != nil {
		return err
	}
	c.writeMessage(tr, wire.MsgClientState, wire.ClientStatePayload{Source: &state})
	return nil
}

// GroupCommandOptions carries the optional arguments of a group
// command.
type GroupCommandOptions struct {
	Volume *int
	Mute   *bool
}

// SendGroupCommand issues a controller command against the group.
func (c *Client) SendGroupCommand(cmd wire.MediaCommand, opts GroupCommandOptions) error {
	tr, err := c.transport()
	if err != nil {
		return err
	}
	c.writeMessage(tr, wire.MsgClientCommand, wire.ClientCommandPayload{
		Controller: &wire.ControllerCommand{
			Command: cmd,
			Volume:  opts.Volume,
			Mute:    opts.Mute,
		},
	})
	return nil
}

// SendSourceCommand asks the server to start or stop source capture.
func (c *Client) SendSourceCommand(cmd wire.SourceCommand) error {
	tr, err := c.transport()
	if err != nil {
		return err
	}
	c.writeMessage(tr, wire.MsgClientCommand, wire.ClientCommandPayload{
		Source: &wire.SourceCommandRequest{Command: cmd},
	})
	return nil
}

// RequestStreamFormat asks the server to adjust the stream format.
func (c *Client) RequestStreamFormat(req wire.StreamRequestFormat) error {
	tr, err := c.transport()
	if err != nil {
		return err
	}
	c.writeMessage(tr, wire.MsgStreamRequestFormat, req)
	return nil
}

// SendSourceAudioChunk uploads captured audio stamped with its local
// capture time, which is projected onto the server clock. The filter
// must be locked; the static delay does not apply to capture.
func (c *Client) SendSourceAudioChunk(captureTSUS int64, data []byte) error {
	if !c.families[wire.FamilySource] {
		return ErrMissingSourceRole
	}
	if !c.filter.Synchronized() {
		return ErrNotSynchronized
	}
	return c.sendSourceFrame(c.filter.ServerFromClient(captureTSUS), data)
}

// SendSourceAudioChunkAt uploads captured audio already stamped with a
// server timestamp.
func (c *Client) SendSourceAudioChunkAt(serverTSUS int64, data []byte) error {
	if !c.families[wire.FamilySource] {
		return ErrMissingSourceRole
	}
	return c.sendSourceFrame(serverTSUS, data)
}

func (c *Client) sendSourceFrame(serverTSUS int64, data []byte) error {
	tr, err := c.transport()
	if err != nil {
		return err
	}
	return tr.WriteBinary(wire.PackFrame(wire.BinarySourceAudioChunk, serverTSUS, data))
}

// --- listener registration; each returns its unsubscribe handle ---

// AddMetadataListener observes merged track metadata updates.
func (c *Client) AddMetadataListener(fn func(wire.Metadata)) func() {
	return c.metadataListeners.add(fn)
}

// AddGroupUpdateListener observes group membership and playback state.
func (c *Client) AddGroupUpdateListener(fn func(wire.GroupUpdate)) func() {
	return c.groupUpdateListeners.add(fn)
}

// AddControllerStateListener observes controller state pushes.
func (c *Client) AddControllerStateListener(fn func(wire.ControllerState)) func() {
	return c.controllerStateListeners.add(fn)
}

// AddStreamStartListener observes new player streams. Format updates
// on an already-running stream do not re-fire.
func (c *Client) AddStreamStartListener(fn func(audio.Format)) func() {
	return c.streamStartListeners.add(fn)
}

// AddStreamEndListener observes stream ends with their role scope.
func (c *Client) AddStreamEndListener(fn func(roles []string)) func() {
	return c.streamEndListeners.add(fn)
}

// AddStreamClearListener observes buffer-flush requests.
func (c *Client) AddStreamClearListener(fn func(roles []string)) func() {
	return c.streamClearListeners.add(fn)
}

// AddAudioChunkListener observes inbound audio with the stream format
// current at receive time.
func (c *Client) AddAudioChunkListener(fn func(timestampUS int64, pcm []byte, format audio.Format)) func() {
	return c.audioChunkListeners.add(fn)
}

// AddArtworkListener observes artwork frames per channel.
func (c *Client) AddArtworkListener(fn func(channel int, timestampUS int64, data []byte)) func() {
	return c.artworkListeners.add(fn)
}

// AddVisualizerListener observes visualizer data frames.
func (c *Client) AddVisualizerListener(fn func(timestampUS int64, data []byte)) func() {
	return c.visualizerListeners.add(fn)
}

// AddDisconnectListener observes connection teardown.
func (c *Client) AddDisconnectListener(fn func()) func() {
	return c.disconnectListeners.add(fn)
}

// AddServerCommandListener observes player commands from the server.
func (c *Client) AddServerCommandListener(fn func(wire.PlayerServerCommand)) func() {
	return c.serverCommandListeners.add(fn)
}

// AddSourceCommandListener observes source commands from the server.
func (c *Client) AddSourceCommandListener(fn func(wire.SourceServerCommand)) func() {
	return c.sourceCommandListeners.add(fn)
}
