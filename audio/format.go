package audio

import (
	"errors"
	"fmt"

	"github.com/lox-audioserver/sendspin/wire"
)

// PCMFormat validation errors.
var (
	ErrInvalidSampleRate = errors.New("sample rate must be positive")
	ErrInvalidChannels   = errors.New("channels must be 1 or 2")
	ErrInvalidBitDepth   = errors.New("bit depth must be 16, 24 or 32")
)

// Format is the negotiated stream format: the codec plus the PCM
// parameters of its decoded output, and the codec initialization bytes
// when the codec carries them.
type Format struct {
	Codec       wire.Codec
	SampleRate  int
	Channels    int
	BitDepth    int
	CodecHeader []byte
}

// DefaultFormat is the stream format assumed before negotiation:
// 16-bit stereo PCM at 48 kHz.
func DefaultFormat() Format {
	return Format{
		Codec:      wire.CodecPCM,
		SampleRate: 48000,
		Channels:   2,
		BitDepth:   16,
	}
}

// Spec converts the format to its wire representation (without the
// codec header, which travels base64-encoded in stream/start).
func (f Format) Spec() wire.FormatSpec {
	return wire.FormatSpec{
		Codec:      f.Codec,
		SampleRate: f.SampleRate,
		Channels:   f.Channels,
		BitDepth:   f.BitDepth,
	}
}

func (f Format) String() string {
	return fmt.Sprintf("%s/%d/%dch/%dbit", f.Codec, f.SampleRate, f.Channels, f.BitDepth)
}

// PCMFormat is a validated player output configuration.
type PCMFormat struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// NewPCMFormat validates the parameter ranges a player pipeline can
// render: any positive rate, mono or stereo, 16/24/32-bit samples.
func NewPCMFormat(sampleRate, channels, bitDepth int) (PCMFormat, error) {
	if sampleRate <= 0 {
		return PCMFormat{}, ErrInvalidSampleRate
	}
	if channels != 1 && channels != 2 {
		return PCMFormat{}, ErrInvalidChannels
	}
	if bitDepth != 16 && bitDepth != 24 && bitDepth != 32 {
		return PCMFormat{}, ErrInvalidBitDepth
	}
	return PCMFormat{SampleRate: sampleRate, Channels: channels, BitDepth: bitDepth}, nil
}

// BytesPerFrame returns the size of one sample frame across channels.
func (p PCMFormat) BytesPerFrame() int {
	return p.Channels * p.BitDepth / 8
}
