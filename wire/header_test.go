package wire

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackFrameRoundTrip(t *testing.T) {
	payload := []byte{0xde, 0xad, 0xbe, 0xef}
	timestamps := []int64{0, 1, -1, 1_700_000_000_000_000, math.MinInt64, math.MaxInt64}

	for _, ts := range timestamps {
		frame := PackFrame(BinaryAudioChunk, ts, payload)
		require.Len(t, frame, HeaderSize+len(payload))

		hdr, body, err := ParseFrame(frame)
		require.NoError(t, err)
		assert.Equal(t, BinaryAudioChunk, hdr.Type)
		assert.Equal(t, ts, hdr.TimestampUS)
		assert.Equal(t, payload, body)
	}
}

func TestPackHeaderLayout(t *testing.T) {
	buf := PackHeader(BinarySourceAudioChunk, 1_000_000)
	require.Len(t, buf, HeaderSize)
	assert.Equal(t, byte(12), buf[0])
	// 1_000_000 = 0x0F4240 big-endian in the low bytes.
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0x0f, 0x42, 0x40}, buf[1:])
}

func TestParseFrameShort(t *testing.T) {
	for _, n := range []int{0, 1, 8} {
		_, _, err := ParseFrame(make([]byte, n))
		assert.ErrorIs(t, err, ErrShortHeader)
	}
}

func TestParseFrameEmptyPayload(t *testing.T) {
	hdr, body, err := ParseFrame(PackHeader(BinaryVisualizationData, 42))
	require.NoError(t, err)
	assert.Equal(t, BinaryVisualizationData, hdr.Type)
	assert.Equal(t, int64(42), hdr.TimestampUS)
	assert.Empty(t, body)
}

func TestParseFrameUnknownTag(t *testing.T) {
	// Unknown tags must parse; consumers decide to skip them.
	hdr, _, err := ParseFrame(PackFrame(BinaryType(200), 7, []byte{1}))
	require.NoError(t, err)
	assert.Equal(t, BinaryType(200), hdr.Type)
}

func TestArtworkChannelType(t *testing.T) {
	for ch := 0; ch < ArtworkChannels; ch++ {
		typ, err := ArtworkChannelType(ch)
		require.NoError(t, err)
		assert.Equal(t, BinaryArtworkChannel0+BinaryType(ch), typ)
		assert.True(t, typ.IsArtwork())
		assert.Equal(t, ch, typ.ArtworkChannel())
	}

	_, err := ArtworkChannelType(4)
	assert.ErrorIs(t, err, ErrInvalidArtworkChannel)
	_, err = ArtworkChannelType(-1)
	assert.ErrorIs(t, err, ErrInvalidArtworkChannel)

	assert.False(t, BinaryAudioChunk.IsArtwork())
	assert.Equal(t, -1, BinaryAudioChunk.ArtworkChannel())
}
