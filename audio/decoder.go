package audio

import (
	"errors"
	"fmt"

	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
)

// ErrEmptyFrame indicates a decode call with no data.
var ErrEmptyFrame = errors.New("empty audio frame")

// opusMaxFrameSamples is the largest opus frame (120 ms at 48 kHz,
// stereo) the decoder buffer must hold.
const opusMaxFrameSamples = 5760 * 2

// OpusDecoder decodes opus frames to interleaved int16 PCM. It wraps
// the pure-Go pion/opus decoder; one instance per stream, not safe for
// concurrent use.
type OpusDecoder struct {
	decoder opus.Decoder
	out     []byte
}

// NewOpusDecoder creates a decoder ready for the first frame.
func NewOpusDecoder() *OpusDecoder {
	return &OpusDecoder{
		decoder: opus.NewDecoder(),
		out:     make([]byte, opusMaxFrameSamples*2),
	}
}

// Decode decodes one opus frame. It returns the PCM samples
// (interleaved when stereo) and the channel count.
func (d *OpusDecoder) Decode(frame []byte) ([]int16, int, error) {
	if len(frame) == 0 {
		return nil, 0, ErrEmptyFrame
	}

	bandwidth, isStereo, err := d.decoder.Decode(frame, d.out)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"frame_size": len(frame),
			"error":      err,
		}).Debug("opus decode failed")
		return nil, 0, fmt.Errorf("opus decode failed: %w", err)
	}

	channels := 1
	if isStereo {
		channels = 2
	}

	sampleCount := len(d.out) / 2
	pcm := make([]int16, sampleCount)
	for i := 0; i < sampleCount; i++ {
		pcm[i] = int16(d.out[i*2]) | int16(d.out[i*2+1])<<8
	}

	logrus.WithFields(logrus.Fields{
		"frame_size": len(frame),
		"bandwidth":  bandwidth.String(),
		"channels":   channels,
		"samples":    sampleCount,
	}).Debug("decoded opus frame")

	return pcm, channels, nil
}
