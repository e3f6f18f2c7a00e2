package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox-audioserver/sendspin/transport"
	"github.com/lox-audioserver/sendspin/wire"
)

func artworkHello() []byte {
	return []byte(`{"type":"client/hello","payload":{
		"client_id":"art","version":1,
		"supported_roles":["artwork@v1","visualizer@v1"],
		"artwork@v1_support":{"channels":1},
		"visualizer@v1_support":{"supported_formats":["bands"]}
	}}`)
}

func TestAncillaryFramesDropUnderBackpressure(t *testing.T) {
	clock := &fakeClock{now: 1_000_000, step: 1}
	s, client := newTestSession(t, testConfig(clock), ConnMeta{})
	server := s.tr.(*transport.MemoryTransport)

	s.HandleText(artworkHello())
	readMessage(t, client)
	readMessage(t, client)

	server.SetBufferedAmount(600 * 1024)

	require.NoError(t, s.SendArtwork(0, []byte{1, 2, 3}))
	s.SendVisualizerFrame(0, []byte{4, 5})

	stats := s.BackpressureStats()
	assert.Equal(t, uint64(2), stats.TotalDrops)
	assert.Equal(t, 2, stats.LastDropBytes)
	assert.Equal(t, 2, stats.RecentDrops)
	assert.Greater(t, stats.LastDropUS, int64(0))

	expectNothing(t, client, 20*time.Millisecond)

	// Pressure released: frames flow and the counter stops moving.
	server.SetBufferedAmount(0)
	require.NoError(t, s.SendArtwork(0, []byte{1}))
	hdr, _ := readBinary(t, client)
	assert.Equal(t, wire.BinaryArtworkChannel0, hdr.Type)
	assert.Equal(t, uint64(2), s.BackpressureStats().TotalDrops)
}

func TestSendArtworkChannelValidation(t *testing.T) {
	clock := &fakeClock{now: 1, step: 1}
	s, _ := newTestSession(t, testConfig(clock), ConnMeta{})
	s.HandleText(artworkHello())

	assert.ErrorIs(t, s.SendArtwork(4, []byte{1}), wire.ErrInvalidArtworkChannel)
	assert.ErrorIs(t, s.SendArtwork(-1, nil), wire.ErrInvalidArtworkChannel)
}

func TestDropLedgerWindowPruning(t *testing.T) {
	var l dropLedger
	base := int64(10_000_000_000)

	l.record(100, base)
	l.record(200, base+time.Minute.Microseconds())

	// Both inside the window.
	stats := l.stats(base + 2*time.Minute.Microseconds())
	assert.Equal(t, uint64(2), stats.TotalDrops)
	assert.Equal(t, 2, stats.RecentDrops)

	// Six minutes on, the first drop ages out of the window but the
	// totals remain.
	stats = l.stats(base + 6*time.Minute.Microseconds())
	assert.Equal(t, uint64(2), stats.TotalDrops)
	assert.Equal(t, 1, stats.RecentDrops)
	assert.Equal(t, 200, stats.LastDropBytes)
}

func TestDeliveredPlusDroppedEqualsAttempts(t *testing.T) {
	clock := &fakeClock{now: 1, step: 1}
	s, client := newTestSession(t, testConfig(clock), ConnMeta{})
	server := s.tr.(*transport.MemoryTransport)

	s.HandleText(artworkHello())
	readMessage(t, client)
	readMessage(t, client)

	attempts := 10
	for i := 0; i < attempts; i++ {
		if i%3 == 0 {
			server.SetBufferedAmount(600 * 1024)
		} else {
			server.SetBufferedAmount(0)
		}
		require.NoError(t, s.SendArtwork(0, []byte{byte(i)}))
	}

	delivered := 0
	for {
		require.NoError(t, client.SetReadDeadline(time.Now().Add(20*time.Millisecond)))
		_, _, err := client.Read()
		if err != nil {
			break
		}
		delivered++
	}

	stats := s.BackpressureStats()
	assert.Equal(t, attempts, delivered+int(stats.TotalDrops))
}
