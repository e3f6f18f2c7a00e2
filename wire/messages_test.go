package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMessage(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"type":"client/time","payload":{"client_transmitted":123}}`))
	require.NoError(t, err)
	assert.Equal(t, MsgClientTime, msg.Type)

	var ct ClientTime
	require.NoError(t, json.Unmarshal(msg.Payload, &ct))
	assert.Equal(t, int64(123), ct.ClientTransmitted)
}

func TestDecodeMessageErrors(t *testing.T) {
	_, err := DecodeMessage([]byte(`{`))
	assert.Error(t, err)

	_, err = DecodeMessage([]byte(`{"payload":{}}`))
	assert.ErrorIs(t, err, ErrMissingType)
}

func TestEncodeMessageRoundTrip(t *testing.T) {
	data, err := EncodeMessage(MsgServerTime, ServerTime{
		ClientTransmitted: 1,
		ServerReceived:    2,
		ServerTransmitted: 3,
	})
	require.NoError(t, err)

	msg, err := DecodeMessage(data)
	require.NoError(t, err)
	require.Equal(t, MsgServerTime, msg.Type)

	var st ServerTime
	require.NoError(t, json.Unmarshal(msg.Payload, &st))
	assert.Equal(t, ServerTime{ClientTransmitted: 1, ServerReceived: 2, ServerTransmitted: 3}, st)
}

func TestClientHelloLegacySupportAlias(t *testing.T) {
	raw := `{
		"client_id": "c1",
		"version": 1,
		"supported_roles": ["player@v1", 7, null],
		"player_support": {"supported_formats": [{"codec":"pcm","sample_rate":48000,"channels":2,"bit_depth":16}], "supported_commands": ["volume"]}
	}`
	var hello ClientHello
	require.NoError(t, json.Unmarshal([]byte(raw), &hello))

	// Non-string role entries are dropped, not fatal.
	assert.Equal(t, []string{"player@v1"}, hello.RoleStrings())

	sup := hello.EffectivePlayerSupport()
	require.NotNil(t, sup)
	require.Len(t, sup.SupportedFormats, 1)
	assert.True(t, sup.SupportedFormats[0].Valid())
}

func TestClientHelloCanonicalWinsOverLegacy(t *testing.T) {
	raw := `{
		"client_id": "c1",
		"version": 1,
		"supported_roles": ["source@v1"],
		"source@v1_support": {"supported_controls": ["play"]},
		"source_support": {"supported_controls": ["pause"]}
	}`
	var hello ClientHello
	require.NoError(t, json.Unmarshal([]byte(raw), &hello))

	sup := hello.EffectiveSourceSupport()
	require.NotNil(t, sup)
	assert.Equal(t, []SourceControl{ControlPlay}, sup.SupportedControls)
}

func TestFormatSpecValid(t *testing.T) {
	valid := FormatSpec{Codec: CodecOpus, SampleRate: 48000, Channels: 2, BitDepth: 16}
	assert.True(t, valid.Valid())

	assert.False(t, FormatSpec{Codec: "mp3", SampleRate: 48000, Channels: 2, BitDepth: 16}.Valid())
	assert.False(t, FormatSpec{Codec: CodecPCM, SampleRate: 0, Channels: 2, BitDepth: 16}.Valid())
	assert.False(t, FormatSpec{Codec: CodecPCM, SampleRate: 48000, Channels: 0, BitDepth: 16}.Valid())
	assert.False(t, FormatSpec{Codec: CodecPCM, SampleRate: 48000, Channels: 2, BitDepth: 0}.Valid())
}

func TestRoleFamily(t *testing.T) {
	assert.Equal(t, FamilyPlayer, RolePlayer.Family())
	assert.Equal(t, FamilyVisualizer, RoleVisualizer.Family())
	assert.Equal(t, "custom", Role("custom").Family())
}

func TestClientStatePointerOptionality(t *testing.T) {
	var cs ClientStatePayload
	require.NoError(t, json.Unmarshal([]byte(`{"state":"synchronized","player":{"state":"synchronized","volume":55}}`), &cs))
	require.NotNil(t, cs.Player)
	require.NotNil(t, cs.Player.Volume)
	assert.Equal(t, 55, *cs.Player.Volume)
	assert.Nil(t, cs.Player.Muted)
	assert.Nil(t, cs.Source)
}

func TestStreamRequestFormatChannelNumber(t *testing.T) {
	var req StreamRequestFormat
	require.NoError(t, json.Unmarshal([]byte(`{"artwork":{"channel":2.9,"format":"jpeg"}}`), &req))
	require.NotNil(t, req.Artwork)
	assert.Equal(t, 2.9, req.Artwork.Channel)
	require.NotNil(t, req.Artwork.Format)
	assert.Equal(t, "jpeg", *req.Artwork.Format)
	assert.Nil(t, req.Artwork.Source)
}
