package transport

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPairDelivery(t *testing.T) {
	a, b := MemoryPair()

	require.NoError(t, a.WriteText([]byte(`{"type":"x"}`)))
	require.NoError(t, a.WriteBinary([]byte{1, 2, 3}))

	kind, data, err := b.Read()
	require.NoError(t, err)
	assert.Equal(t, TextMessage, kind)
	assert.Equal(t, `{"type":"x"}`, string(data))

	kind, data, err = b.Read()
	require.NoError(t, err)
	assert.Equal(t, BinaryMessage, kind)
	assert.Equal(t, []byte{1, 2, 3}, data)
}

func TestMemoryReadDeadline(t *testing.T) {
	a, _ := MemoryPair()
	require.NoError(t, a.SetReadDeadline(time.Now().Add(20*time.Millisecond)))

	_, _, err := a.Read()
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)

	// Clearing the deadline restores blocking reads.
	require.NoError(t, a.SetReadDeadline(time.Time{}))
}

func TestMemoryCloseStopsWrites(t *testing.T) {
	a, b := MemoryPair()
	require.NoError(t, a.Close(ClosePolicyViolation, "missing client_id"))

	assert.False(t, a.Open())
	assert.False(t, b.Open())
	assert.Equal(t, ClosePolicyViolation, b.CloseCode())
	assert.Equal(t, "missing client_id", b.CloseReason())

	assert.ErrorIs(t, a.WriteText([]byte("x")), ErrClosed)
	assert.ErrorIs(t, b.WriteBinary([]byte("x")), ErrClosed)
}

func TestMemoryCloseDefaultsToNormal(t *testing.T) {
	a, b := MemoryPair()
	require.NoError(t, a.Close(0, ""))
	assert.Equal(t, CloseNormal, b.CloseCode())
}

func TestMemoryReadDrainsBeforeClose(t *testing.T) {
	a, b := MemoryPair()
	require.NoError(t, a.WriteText([]byte("last")))
	require.NoError(t, a.Close(0, ""))

	kind, data, err := b.Read()
	require.NoError(t, err)
	assert.Equal(t, TextMessage, kind)
	assert.Equal(t, "last", string(data))

	_, _, err = b.Read()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryForcedBufferedAmount(t *testing.T) {
	a, _ := MemoryPair()
	assert.Equal(t, int64(0), a.BufferedAmount())

	a.SetBufferedAmount(600 * 1024)
	assert.Equal(t, int64(600*1024), a.BufferedAmount())
	assert.Greater(t, a.BufferedAmount(), MaxBuffered)
}
