package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox-audioserver/sendspin/wire"
)

func TestDefaultFormat(t *testing.T) {
	f := DefaultFormat()
	assert.Equal(t, wire.CodecPCM, f.Codec)
	assert.Equal(t, 48000, f.SampleRate)
	assert.Equal(t, 2, f.Channels)
	assert.Equal(t, 16, f.BitDepth)
	assert.Nil(t, f.CodecHeader)
}

func TestFormatSpec(t *testing.T) {
	f := Format{Codec: wire.CodecOpus, SampleRate: 48000, Channels: 2, BitDepth: 16, CodecHeader: []byte{1}}
	spec := f.Spec()
	assert.Equal(t, wire.CodecOpus, spec.Codec)
	assert.Empty(t, spec.CodecHeader)
	assert.True(t, spec.Valid())
}

func TestNewPCMFormat(t *testing.T) {
	f, err := NewPCMFormat(44100, 2, 24)
	require.NoError(t, err)
	assert.Equal(t, 6, f.BytesPerFrame())

	mono, err := NewPCMFormat(48000, 1, 16)
	require.NoError(t, err)
	assert.Equal(t, 2, mono.BytesPerFrame())
}

func TestNewPCMFormatRejectsOutOfRange(t *testing.T) {
	_, err := NewPCMFormat(0, 2, 16)
	assert.ErrorIs(t, err, ErrInvalidSampleRate)

	_, err = NewPCMFormat(48000, 3, 16)
	assert.ErrorIs(t, err, ErrInvalidChannels)
	_, err = NewPCMFormat(48000, 0, 16)
	assert.ErrorIs(t, err, ErrInvalidChannels)

	_, err = NewPCMFormat(48000, 2, 8)
	assert.ErrorIs(t, err, ErrInvalidBitDepth)
}

func TestOpusDecoderEmptyFrame(t *testing.T) {
	d := NewOpusDecoder()
	pcm, channels, err := d.Decode(nil)
	assert.ErrorIs(t, err, ErrEmptyFrame)
	assert.Nil(t, pcm)
	assert.Zero(t, channels)
}

func TestOpusDecoderGarbageFrame(t *testing.T) {
	d := NewOpusDecoder()
	_, _, err := d.Decode([]byte{0xff, 0xff, 0xff})
	assert.Error(t, err)
}
