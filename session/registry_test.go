package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox-audioserver/sendspin/transport"
	"github.com/lox-audioserver/sendspin/wire"
)

func newTestRegistry() *Registry {
	return NewRegistry(Config{
		ServerID:   "srv-1",
		ServerName: "Test Server",
		Clock:      &fakeClock{now: 1, step: 1},
	})
}

func TestRegistryAddRemove(t *testing.T) {
	r := newTestRegistry()
	server, _ := transport.MemoryPair()

	s := r.Add(server, ConnMeta{RemoteAddr: "10.0.0.5:1"})
	require.NotNil(t, s)
	assert.Len(t, r.Sessions(), 1)

	var disconnected int
	s.SetHooks(Hooks{OnDisconnected: func(*Session) { disconnected++ }}, nil)

	r.Remove(server)
	assert.Empty(t, r.Sessions())
	assert.Equal(t, 1, disconnected)

	// Removing an unknown transport is harmless.
	r.Remove(server)
}

func TestRegistryLatePendingHooks(t *testing.T) {
	r := newTestRegistry()
	server, client := transport.MemoryPair()
	s := r.Add(server, ConnMeta{})

	var identified int
	type ctx struct{ name string }
	r.RegisterHooks("c1", Hooks{OnIdentified: func(*Session) { identified++ }}, &ctx{name: "player-ctx"})

	// The hello flows through the registry, which latches the pending
	// hooks once the session knows its id.
	r.HandleText(s, playerHello("c1"))
	require.True(t, s.HasHooks())
	require.NotNil(t, s.HookContext())
	assert.Equal(t, "player-ctx", s.HookContext().(*ctx).name)

	r.HandleText(s, initialState())
	assert.Equal(t, 1, identified)

	_ = client
}

func TestRegistryRegisterHooksAfterIdentification(t *testing.T) {
	r := newTestRegistry()
	server, _ := transport.MemoryPair()
	s := r.Add(server, ConnMeta{})

	r.HandleText(s, playerHello("c1"))
	r.HandleText(s, initialState())
	require.True(t, s.Identified())

	// Late registration still observes the identification.
	var identified int
	r.RegisterHooks("c1", Hooks{OnIdentified: func(*Session) { identified++ }}, nil)
	assert.Equal(t, 1, identified)
}

func TestRegistryUnregisterHooks(t *testing.T) {
	r := newTestRegistry()
	server, _ := transport.MemoryPair()
	s := r.Add(server, ConnMeta{})

	r.RegisterHooks("c1", Hooks{}, "ctx")
	r.HandleText(s, playerHello("c1"))
	require.True(t, s.HasHooks())

	r.UnregisterHooks("c1")
	assert.False(t, s.HasHooks())
	assert.Nil(t, s.HookContext())

	// With the registration gone, a fresh session gets no hooks.
	server2, _ := transport.MemoryPair()
	s2 := r.Add(server2, ConnMeta{})
	r.HandleText(s2, playerHello("c1"))
	assert.False(t, s2.HasHooks())
}

func TestRegistryPrefersPlaybackSession(t *testing.T) {
	r := newTestRegistry()

	discovery, _ := transport.MemoryPair()
	sd := r.Add(discovery, ConnMeta{Reason: wire.ReasonDiscovery})
	r.HandleText(sd, playerHello("c1"))

	playback, _ := transport.MemoryPair()
	sp := r.Add(playback, ConnMeta{Reason: wire.ReasonPlayback})
	r.HandleText(sp, playerHello("c1"))

	got := r.Session("c1")
	require.NotNil(t, got)
	assert.Equal(t, wire.ReasonPlayback, got.ConnectionReason())
	assert.Same(t, sp, got)

	// With only the discovery session left, it is returned.
	r.Remove(playback)
	assert.Same(t, sd, r.Session("c1"))

	assert.Nil(t, r.Session("missing"))
}

func TestRegistrySendHelpers(t *testing.T) {
	r := newTestRegistry()
	server, client := transport.MemoryPair()
	s := r.Add(server, ConnMeta{})
	r.HandleText(s, playerHello("c1"))
	readMessage(t, client)
	readMessage(t, client)

	require.True(t, r.SendPCM("c1", 5_000, []byte{1}))
	msg := readMessage(t, client)
	assert.Equal(t, wire.MsgStreamStart, msg.Type)
	hdr, _ := readBinary(t, client)
	assert.Equal(t, int64(5_000), hdr.TimestampUS)

	require.True(t, r.SendGroupUpdate("c1", wire.PlaybackPlaying, "g1", "Group One"))
	msg = readMessage(t, client)
	assert.Equal(t, wire.MsgGroupUpdate, msg.Type)

	require.True(t, r.SendStreamEnd("c1", wire.FamilyPlayer))
	msg = readMessage(t, client)
	assert.Equal(t, wire.MsgStreamEnd, msg.Type)
	assert.False(t, s.StreamActive())

	// Unknown ids report false.
	assert.False(t, r.SendPCM("nope", 1, []byte{1}))
	assert.False(t, r.SendStreamStart("nope", nil))
	assert.False(t, r.SendMetadata("nope", wire.Metadata{}))
}

func TestRegistryLeadStats(t *testing.T) {
	r := newTestRegistry()

	_, ok := r.LeadStatsFor("c1")
	assert.False(t, ok)

	buffered := int64(4096)
	r.UpdateLeadStats("c1", LeadStats{
		LeadUS:        120_000,
		TargetLeadUS:  150_000,
		BufferedBytes: &buffered,
		UpdatedAtUS:   time.Now().UnixMicro(),
	})

	stats, ok := r.LeadStatsFor("c1")
	require.True(t, ok)
	assert.Equal(t, int64(120_000), stats.LeadUS)
	assert.Equal(t, int64(150_000), stats.TargetLeadUS)
	require.NotNil(t, stats.BufferedBytes)
	assert.Equal(t, int64(4096), *stats.BufferedBytes)
}

func TestRegistryDescriptors(t *testing.T) {
	r := newTestRegistry()
	server, _ := transport.MemoryPair()
	s := r.Add(server, ConnMeta{RemoteAddr: "10.0.0.9:3"})
	r.HandleText(s, playerHello("c1"))

	ds := r.Descriptors()
	require.Len(t, ds, 1)
	assert.Equal(t, "c1", ds[0].ClientID)
	assert.Equal(t, "10.0.0.9:3", ds[0].RemoteAddr)
}
