package sendspin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox-audioserver/sendspin/client"
	"github.com/lox-audioserver/sendspin/session"
	"github.com/lox-audioserver/sendspin/wire"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.NotEmpty(t, opts.ServerID)
	assert.Equal(t, "Sendspin", opts.ServerName)
	assert.Equal(t, DefaultPath, opts.Path)
	assert.Len(t, opts.SupportedRoles, 6)

	// Each call gets a distinct identity.
	assert.NotEqual(t, opts.ServerID, DefaultOptions().ServerID)
}

func TestConnMetaExtraction(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/sendspin?zone=3&player=living-room&reason=playback", nil)
	meta := connMeta(r)
	require.NotNil(t, meta.ZoneID)
	assert.Equal(t, 3, *meta.ZoneID)
	assert.Equal(t, "living-room", meta.PlayerID)
	assert.Equal(t, wire.ReasonPlayback, meta.Reason)

	r = httptest.NewRequest(http.MethodGet, "/sendspin?zone=junk", nil)
	meta = connMeta(r)
	assert.Nil(t, meta.ZoneID)
	assert.Equal(t, wire.ReasonDiscovery, meta.Reason)
}

func TestServerClientEndToEnd(t *testing.T) {
	opts := DefaultOptions()
	opts.ServerName = "E2E Server"
	srv := NewServer(opts)

	var mu sync.Mutex
	var identified []string
	srv.Registry().RegisterHooks("e2e-client", session.Hooks{
		OnIdentified: func(s *session.Session) {
			mu.Lock()
			identified = append(identified, s.ClientID())
			mu.Unlock()
		},
	}, nil)

	mux := http.NewServeMux()
	srv.Attach(mux)
	httpSrv := httptest.NewServer(mux)
	defer httpSrv.Close()

	url := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + DefaultPath + "?player=e2e&reason=playback"

	c, err := client.New("e2e-client", "E2E", []wire.Role{wire.RolePlayer}, client.Options{
		PlayerSupport: &wire.PlayerSupport{
			SupportedFormats: []wire.FormatSpec{
				{Codec: wire.CodecPCM, SampleRate: 48000, Channels: 2, BitDepth: 16},
			},
			SupportedCommands: []wire.PlayerCommand{},
		},
	})
	require.NoError(t, err)

	require.NoError(t, c.Connect(context.Background(), url))
	defer func() { _ = c.Disconnect() }()

	info := c.Server()
	require.NotNil(t, info)
	assert.Equal(t, "E2E Server", info.Name)

	// The initial client/state identifies the player session and the
	// pre-registered hook observes it.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(identified) == 1
	}, 2*time.Second, 10*time.Millisecond)

	sess := srv.Registry().Session("e2e-client")
	require.NotNil(t, sess)
	assert.Equal(t, wire.ReasonPlayback, sess.ConnectionReason())
	assert.True(t, sess.Identified())
}
