package client

import "errors"

// Constructor errors: a declared role needs its capability block.
var (
	// ErrMissingPlayerSupport indicates the player role was declared
	// without a PlayerSupport block.
	ErrMissingPlayerSupport = errors.New("player role requires player support")

	// ErrMissingArtworkSupport indicates the artwork role was declared
	// without an ArtworkSupport block.
	ErrMissingArtworkSupport = errors.New("artwork role requires artwork support")

	// ErrMissingSourceSupport indicates the source role was declared
	// without a SourceSupport block.
	ErrMissingSourceSupport = errors.New("source role requires source support")
)

// Connection lifecycle errors.
var (
	// ErrAlreadyConnected indicates Connect on a connected client.
	ErrAlreadyConnected = errors.New("client already connected")

	// ErrNotConnected indicates an operation that needs a connection.
	ErrNotConnected = errors.New("client not connected")

	// ErrHelloTimeout indicates the server did not answer the hello in
	// time.
	ErrHelloTimeout = errors.New("timed out waiting for server/hello")
)

// Source upload errors.
var (
	// ErrNotSynchronized indicates a capture upload before the time
	// filter locked onto the server clock.
	ErrNotSynchronized = errors.New("time filter not synchronized")

	// ErrMissingSourceRole indicates a capture upload from a client
	// that never declared the source role.
	ErrMissingSourceRole = errors.New("client has no source role")
)
