package wire

import (
	"encoding/json"
	"errors"
)

// Control message type discriminators.
const (
	MsgClientHello         = "client/hello"
	MsgClientTime          = "client/time"
	MsgClientState         = "client/state"
	MsgClientCommand       = "client/command"
	MsgClientGoodbye       = "client/goodbye"
	MsgServerHello         = "server/hello"
	MsgServerTime          = "server/time"
	MsgServerState         = "server/state"
	MsgServerCommand       = "server/command"
	MsgGroupUpdate         = "group/update"
	MsgStreamStart         = "stream/start"
	MsgStreamClear         = "stream/clear"
	MsgStreamEnd           = "stream/end"
	MsgStreamRequestFormat = "stream/request-format"
)

// ErrMissingType indicates an envelope without a type discriminator.
var ErrMissingType = errors.New("message has no type")

// Message is a decoded control envelope. The payload is kept raw so the
// dispatcher can decode it against the struct matching Type.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DecodeMessage parses a control envelope from a text frame.
func DecodeMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, err
	}
	if msg.Type == "" {
		return Message{}, ErrMissingType
	}
	return msg, nil
}

// EncodeMessage builds the text frame for a control message.
func EncodeMessage(msgType string, payload any) ([]byte, error) {
	return json.Marshal(struct {
		Type    string `json:"type"`
		Payload any    `json:"payload,omitempty"`
	}{Type: msgType, Payload: payload})
}

// DeviceInfo identifies the client device in client/hello.
type DeviceInfo struct {
	ProductName     string `json:"product_name,omitempty"`
	Manufacturer    string `json:"manufacturer,omitempty"`
	SoftwareVersion string `json:"software_version,omitempty"`
}

// FormatSpec describes one audio format a peer supports or requests.
type FormatSpec struct {
	Codec      Codec  `json:"codec"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	BitDepth   int    `json:"bit_depth"`
	// CodecHeader carries base64 codec initialization bytes when the
	// codec needs them (FLAC STREAMINFO, Opus head).
	CodecHeader string `json:"codec_header,omitempty"`
}

// Valid reports whether the spec names a known codec with positive
// PCM parameters.
func (f FormatSpec) Valid() bool {
	return f.Codec.Known() && f.SampleRate > 0 && f.Channels > 0 && f.BitDepth > 0
}

// PlayerSupport is the capability block for the player role.
type PlayerSupport struct {
	SupportedFormats  []FormatSpec    `json:"supported_formats"`
	BufferCapacity    int64           `json:"buffer_capacity,omitempty"`
	SupportedCommands []PlayerCommand `json:"supported_commands"`
}

// ArtworkSupport is the capability block for the artwork role.
type ArtworkSupport struct {
	Channels         int      `json:"channels,omitempty"`
	SupportedFormats []string `json:"supported_formats,omitempty"`
}

// VisualizerSupport is the capability block for the visualizer role.
type VisualizerSupport struct {
	SupportedFormats []string `json:"supported_formats,omitempty"`
	MaxRateHZ        int      `json:"max_rate_hz,omitempty"`
}

// SourceSupport is the capability block for the source role.
type SourceSupport struct {
	SupportedFormats  []FormatSpec    `json:"supported_formats,omitempty"`
	SupportedControls []SourceControl `json:"supported_controls,omitempty"`
}

// ClientHello opens the handshake. SupportedRoles is deliberately lax
// ([]any): servers tolerate and skip non-string entries instead of
// rejecting the whole hello.
//
// Capability blocks are keyed "<family>@v1_support" on the wire; the
// legacy "<family>_support" spelling is still accepted inbound, so each
// block has a canonical and a legacy field with an Effective* accessor.
type ClientHello struct {
	ClientID       string      `json:"client_id"`
	Name           string      `json:"name,omitempty"`
	Version        int         `json:"version"`
	SupportedRoles []any       `json:"supported_roles"`
	DeviceInfo     *DeviceInfo `json:"device_info,omitempty"`

	PlayerSupport     *PlayerSupport     `json:"player@v1_support,omitempty"`
	ArtworkSupport    *ArtworkSupport    `json:"artwork@v1_support,omitempty"`
	VisualizerSupport *VisualizerSupport `json:"visualizer@v1_support,omitempty"`
	SourceSupport     *SourceSupport     `json:"source@v1_support,omitempty"`

	LegacyPlayerSupport     *PlayerSupport     `json:"player_support,omitempty"`
	LegacyArtworkSupport    *ArtworkSupport    `json:"artwork_support,omitempty"`
	LegacyVisualizerSupport *VisualizerSupport `json:"visualizer_support,omitempty"`
	LegacySourceSupport     *SourceSupport     `json:"source_support,omitempty"`
}

// RoleStrings returns the string entries of SupportedRoles in order,
// dropping anything that is not a string.
func (h *ClientHello) RoleStrings() []string {
	out := make([]string, 0, len(h.SupportedRoles))
	for _, v := range h.SupportedRoles {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// EffectivePlayerSupport prefers the canonical block over the legacy one.
func (h *ClientHello) EffectivePlayerSupport() *PlayerSupport {
	if h.PlayerSupport != nil {
		return h.PlayerSupport
	}
	return h.LegacyPlayerSupport
}

// EffectiveArtworkSupport prefers the canonical block over the legacy one.
func (h *ClientHello) EffectiveArtworkSupport() *ArtworkSupport {
	if h.ArtworkSupport != nil {
		return h.ArtworkSupport
	}
	return h.LegacyArtworkSupport
}

// EffectiveVisualizerSupport prefers the canonical block over the legacy one.
func (h *ClientHello) EffectiveVisualizerSupport() *VisualizerSupport {
	if h.VisualizerSupport != nil {
		return h.VisualizerSupport
	}
	return h.LegacyVisualizerSupport
}

// EffectiveSourceSupport prefers the canonical block over the legacy one.
func (h *ClientHello) EffectiveSourceSupport() *SourceSupport {
	if h.SourceSupport != nil {
		return h.SourceSupport
	}
	return h.LegacySourceSupport
}

// ServerHello answers a valid client/hello.
type ServerHello struct {
	ServerID         string           `json:"server_id"`
	Name             string           `json:"name"`
	Version          int              `json:"version"`
	ActiveRoles      []Role           `json:"active_roles"`
	ConnectionReason ConnectionReason `json:"connection_reason"`
}

// ClientTime is one half of a round-trip clock sample.
type ClientTime struct {
	ClientTransmitted int64 `json:"client_transmitted"`
}

// ServerTime echoes a client/time with the server-side receive and
// transmit timestamps, all in microseconds.
type ServerTime struct {
	ClientTransmitted int64 `json:"client_transmitted"`
	ServerReceived    int64 `json:"server_received"`
	ServerTransmitted int64 `json:"server_transmitted"`
}

// PlayerStateInfo is the player block of client/state. Volume and Muted
// are pointers so a session can tell "omitted" from zero values.
type PlayerStateInfo struct {
	State  ClientState `json:"state,omitempty"`
	Volume *int        `json:"volume,omitempty"`
	Muted  *bool       `json:"muted,omitempty"`
}

// SourceStateInfo is the source block of client/state.
type SourceStateInfo struct {
	State  SourceState  `json:"state"`
	Level  *float64     `json:"level,omitempty"`
	Signal SourceSignal `json:"signal,omitempty"`
}

// ClientStatePayload reports the client's current condition.
type ClientStatePayload struct {
	State  ClientState      `json:"state,omitempty"`
	Player *PlayerStateInfo `json:"player,omitempty"`
	Source *SourceStateInfo `json:"source,omitempty"`
}

// ControllerCommand is the controller block of client/command.
type ControllerCommand struct {
	Command  MediaCommand `json:"command"`
	Volume   *int         `json:"volume,omitempty"`
	Mute     *bool        `json:"mute,omitempty"`
	SourceID string       `json:"source_id,omitempty"`
}

// SourceCommandRequest is the source block of client/command.
type SourceCommandRequest struct {
	Command SourceCommand `json:"command"`
}

// ClientCommandPayload carries client-initiated commands.
type ClientCommandPayload struct {
	Controller *ControllerCommand    `json:"controller,omitempty"`
	Source     *SourceCommandRequest `json:"source,omitempty"`
}

// ClientGoodbye announces an orderly departure.
type ClientGoodbye struct {
	Reason GoodbyeReason `json:"reason"`
}

// PlayerFormatRequest is the player block of stream/request-format.
// Absent fields leave the corresponding negotiated value untouched.
type PlayerFormatRequest struct {
	Codec      Codec `json:"codec,omitempty"`
	SampleRate *int  `json:"sample_rate,omitempty"`
	Channels   *int  `json:"channels,omitempty"`
	BitDepth   *int  `json:"bit_depth,omitempty"`
}

// ArtworkFormatRequest is the artwork block of stream/request-format.
// Channel is a JSON number; it is floored before being range-checked.
type ArtworkFormatRequest struct {
	Channel     float64 `json:"channel"`
	Source      *string `json:"source,omitempty"`
	Format      *string `json:"format,omitempty"`
	MediaWidth  *int    `json:"media_width,omitempty"`
	MediaHeight *int    `json:"media_height,omitempty"`
}

// StreamRequestFormat asks the server to adjust stream parameters.
type StreamRequestFormat struct {
	Player  *PlayerFormatRequest  `json:"player,omitempty"`
	Artwork *ArtworkFormatRequest `json:"artwork,omitempty"`
}

// ControllerState is the controller block of server/state.
type ControllerState struct {
	SupportedCommands []MediaCommand `json:"supported_commands"`
	Volume            int            `json:"volume"`
	Muted             bool           `json:"muted"`
	Sources           []SourceInfo   `json:"sources,omitempty"`
}

// SourceInfo names one selectable source in controller state.
type SourceInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active,omitempty"`
}

// ServerStatePayload pushes metadata and controller state to clients.
type ServerStatePayload struct {
	Metadata   *Metadata        `json:"metadata,omitempty"`
	Controller *ControllerState `json:"controller,omitempty"`
}

// PlayerServerCommand is the player block of server/command.
type PlayerServerCommand struct {
	Command PlayerCommand `json:"command"`
	Volume  *int          `json:"volume,omitempty"`
	Mute    *bool         `json:"mute,omitempty"`
}

// VADConfig tunes voice-activity detection on a source client.
type VADConfig struct {
	ThresholdDB *float64 `json:"threshold_db,omitempty"`
	HoldMS      *int     `json:"hold_ms,omitempty"`
}

// SourceServerCommand is the source block of server/command.
type SourceServerCommand struct {
	Command SourceClientCommand `json:"command,omitempty"`
	Control SourceControl       `json:"control,omitempty"`
	VAD     *VADConfig          `json:"vad,omitempty"`
}

// ServerCommandPayload carries server-initiated commands.
type ServerCommandPayload struct {
	Player *PlayerServerCommand `json:"player,omitempty"`
	Source *SourceServerCommand `json:"source,omitempty"`
}

// GroupUpdate reports group membership and playback state.
type GroupUpdate struct {
	PlaybackState PlaybackState `json:"playback_state,omitempty"`
	GroupID       string        `json:"group_id,omitempty"`
	GroupName     string        `json:"group_name,omitempty"`
}

// StreamStartPlayer announces the stream format a player will receive.
type StreamStartPlayer struct {
	Codec      Codec  `json:"codec"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	BitDepth   int    `json:"bit_depth"`
	// CodecHeader is base64 codec initialization data, when present.
	CodecHeader string `json:"codec_header,omitempty"`
}

// ArtworkChannelConfig describes one artwork channel's delivery format.
type ArtworkChannelConfig struct {
	Channel     int    `json:"channel"`
	Source      string `json:"source,omitempty"`
	Format      string `json:"format,omitempty"`
	MediaWidth  int    `json:"media_width,omitempty"`
	MediaHeight int    `json:"media_height,omitempty"`
}

// StreamStartArtwork announces artwork channel configuration.
type StreamStartArtwork struct {
	Channels []ArtworkChannelConfig `json:"channels"`
}

// VisualizerConfig describes the visualizer data stream.
type VisualizerConfig struct {
	Format     string `json:"format,omitempty"`
	Bands      int    `json:"bands,omitempty"`
	IntervalMS int    `json:"interval_ms,omitempty"`
}

// StreamStart opens or reconfigures one or more stream roles.
type StreamStart struct {
	Player     *StreamStartPlayer  `json:"player,omitempty"`
	Artwork    *StreamStartArtwork `json:"artwork,omitempty"`
	Visualizer *VisualizerConfig   `json:"visualizer,omitempty"`
}

// StreamRoles scopes stream/clear and stream/end to role families.
// An absent list addresses every streaming role.
type StreamRoles struct {
	Roles []string `json:"roles,omitempty"`
}
