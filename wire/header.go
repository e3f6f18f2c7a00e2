package wire

import (
	"encoding/binary"
	"errors"
)

// HeaderSize is the fixed length of the binary frame header.
const HeaderSize = 9

// BinaryType identifies the kind of payload carried by a binary frame.
type BinaryType byte

const (
	// BinaryAudioChunk carries PCM or codec frames from server to player.
	BinaryAudioChunk BinaryType = 4
	// BinaryArtworkChannel0 through BinaryArtworkChannel3 carry artwork
	// image bytes, one tag per artwork channel.
	BinaryArtworkChannel0 BinaryType = 8
	BinaryArtworkChannel1 BinaryType = 9
	BinaryArtworkChannel2 BinaryType = 10
	BinaryArtworkChannel3 BinaryType = 11
	// BinarySourceAudioChunk carries captured audio from a source client
	// up to the server.
	BinarySourceAudioChunk BinaryType = 12
	// BinaryVisualizationData carries visualizer frames from server to
	// visualizer clients.
	BinaryVisualizationData BinaryType = 16
)

// ArtworkChannels is the number of independent artwork channels.
const ArtworkChannels = 4

// ErrShortHeader indicates a binary frame shorter than HeaderSize bytes.
var ErrShortHeader = errors.New("binary frame shorter than header")

// ErrInvalidArtworkChannel indicates an artwork channel outside 0..3.
var ErrInvalidArtworkChannel = errors.New("artwork channel out of range")

// Header is the decoded form of the 9-byte prefix on every binary frame:
// one type byte followed by a big-endian signed 64-bit microsecond
// timestamp. Unknown type tags are preserved so consumers can skip them.
type Header struct {
	Type        BinaryType
	TimestampUS int64
}

// PackHeader serializes a header into a fresh HeaderSize-byte slice.
func PackHeader(typ BinaryType, timestampUS int64) []byte {
	buf := make([]byte, HeaderSize)
	buf[0] = byte(typ)
	binary.BigEndian.PutUint64(buf[1:], uint64(timestampUS))
	return buf
}

// PackFrame builds a complete wire frame: header followed by payload in
// a single allocation.
func PackFrame(typ BinaryType, timestampUS int64, payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	buf[0] = byte(typ)
	binary.BigEndian.PutUint64(buf[1:], uint64(timestampUS))
	copy(buf[HeaderSize:], payload)
	return buf
}

// ParseFrame splits a binary frame into its header and payload body.
// The payload aliases the input buffer. Frames shorter than HeaderSize
// fail with ErrShortHeader.
func ParseFrame(data []byte) (Header, []byte, error) {
	if len(data) < HeaderSize {
		return Header{}, nil, ErrShortHeader
	}
	hdr := Header{
		Type:        BinaryType(data[0]),
		TimestampUS: int64(binary.BigEndian.Uint64(data[1:HeaderSize])),
	}
	return hdr, data[HeaderSize:], nil
}

// ArtworkChannelType returns the binary tag for an artwork channel.
func ArtworkChannelType(channel int) (BinaryType, error) {
	if channel < 0 || channel >= ArtworkChannels {
		return 0, ErrInvalidArtworkChannel
	}
	return BinaryArtworkChannel0 + BinaryType(channel), nil
}

// IsArtwork reports whether the tag addresses an artwork channel.
func (t BinaryType) IsArtwork() bool {
	return t >= BinaryArtworkChannel0 && t <= BinaryArtworkChannel3
}

// ArtworkChannel returns the channel index for an artwork tag, or -1
// when the tag is not an artwork tag.
func (t BinaryType) ArtworkChannel() int {
	if !t.IsArtwork() {
		return -1
	}
	return int(t - BinaryArtworkChannel0)
}
