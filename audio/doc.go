// Package audio holds the audio format model shared by both protocol
// endpoints and a decode helper for opus streams.
//
// Format mirrors the negotiated stream format (codec, rate, channels,
// depth, optional codec header). PCMFormat is the strict output
// configuration a player accepts; constructing one validates the
// parameter ranges the render pipeline supports.
//
// The protocol itself never converts audio. OpusDecoder exists for
// player callers that want PCM out of an opus stream without bringing
// their own codec.
package audio
