package session

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/lox-audioserver/sendspin/audio"
	"github.com/lox-audioserver/sendspin/transport"
	"github.com/lox-audioserver/sendspin/wire"
)

// LeadStats is the playback-lead snapshot an upstream streamer reports
// per client, kept for introspection.
type LeadStats struct {
	LeadUS        int64
	TargetLeadUS  int64
	BufferedBytes *int64
	UpdatedAtUS   int64
}

type pendingHooks struct {
	hooks Hooks
	ctx   any
}

// Registry owns every live session and routes server-initiated
// operations to them by client id. Hooks can be registered before the
// client connects; they attach as soon as a session for that id is
// seen. The registry's maps are written only on connection open/close,
// hook registration and lead-stats updates; lookups by client id read
// them under the registry lock.
type Registry struct {
	cfg Config

	mu       sync.Mutex
	sessions map[transport.Transport]*Session
	pending  map[string]pendingHooks
	leads    map[string]LeadStats
}

// NewRegistry creates an empty registry with the given server config.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:      cfg.withDefaults(),
		sessions: make(map[transport.Transport]*Session),
		pending:  make(map[string]pendingHooks),
		leads:    make(map[string]LeadStats),
	}
}

// Add creates a session for an accepted transport and tracks it.
func (r *Registry) Add(tr transport.Transport, meta ConnMeta) *Session {
	s := New(tr, r.cfg, meta)
	r.mu.Lock()
	r.sessions[tr] = s
	count := len(r.sessions)
	r.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"remote_addr": meta.RemoteAddr,
		"sessions":    count,
	}).Info("session added")
	return s
}

// Remove drops the session for a closed transport and destroys it.
func (r *Registry) Remove(tr transport.Transport) {
	r.mu.Lock()
	s, ok := r.sessions[tr]
	delete(r.sessions, tr)
	count := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return
	}
	logrus.WithFields(logrus.Fields{
		"client_id": s.ClientID(),
		"sessions":  count,
	}).Info("session removed")
	s.Destroy()
}

// HandleText feeds a text frame to the session, then latches any
// pending hooks once the session knows its client id.
func (r *Registry) HandleText(s *Session, data []byte) {
	s.HandleText(data)

	id := s.ClientID()
	if id == "" || s.HasHooks() {
		return
	}
	r.mu.Lock()
	p, ok := r.pending[id]
	r.mu.Unlock()
	if ok {
		s.SetHooks(p.hooks, p.ctx)
	}
}

// HandleBinary feeds a binary frame to the session.
func (r *Registry) HandleBinary(s *Session, data []byte) {
	s.HandleBinary(data)
}

// RegisterHooks stores hooks for a client id and attaches them
// immediately when a matching session already exists.
func (r *Registry) RegisterHooks(clientID string, h Hooks, ctx any) {
	r.mu.Lock()
	r.pending[clientID] = pendingHooks{hooks: h, ctx: ctx}
	r.mu.Unlock()

	if s := r.Session(clientID); s != nil {
		s.SetHooks(h, ctx)
	}
}

// UnregisterHooks forgets the registration and detaches from any live
// session.
func (r *Registry) UnregisterHooks(clientID string) {
	r.mu.Lock()
	delete(r.pending, clientID)
	r.mu.Unlock()

	if s := r.Session(clientID); s != nil {
		s.ClearHooks()
	}
}

// Session finds a session by client id. When the same id is connected
// more than once, a playback session wins over a discovery one so the
// stream is never served to a stale discovery socket.
func (r *Registry) Session(clientID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var found *Session
	for _, s := range r.sessions {
		if s.ClientID() != clientID {
			continue
		}
		if s.ConnectionReason() == wire.ReasonPlayback {
			return s
		}
		if found == nil {
			found = s
		}
	}
	return found
}

// Sessions snapshots all tracked sessions.
func (r *Registry) Sessions() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Descriptors snapshots all tracked sessions for introspection.
func (r *Registry) Descriptors() []Descriptor {
	sessions := r.Sessions()
	out := make([]Descriptor, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Descriptor())
	}
	return out
}

// UpdateLeadStats records the streamer-reported lead for a client.
func (r *Registry) UpdateLeadStats(clientID string, stats LeadStats) {
	r.mu.Lock()
	r.leads[clientID] = stats
	r.mu.Unlock()
}

// LeadStatsFor returns the recorded lead stats for a client.
func (r *Registry) LeadStatsFor(clientID string) (LeadStats, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats, ok := r.leads[clientID]
	return stats, ok
}

// --- send-verb helpers by client id ---

// SendStreamStart starts or reconfigures the player stream of the
// named client. Reports whether a session was found.
func (r *Registry) SendStreamStart(clientID string, format *audio.Format) bool {
	s := r.Session(clientID)
	if s == nil {
		return false
	}
	s.SendStreamStart(format)
	return true
}

// SendStreamClear forwards a stream/clear to the named client.
func (r *Registry) SendStreamClear(clientID string, roles ...string) bool {
	s := r.Session(clientID)
	if s == nil {
		return false
	}
	s.SendStreamClear(roles...)
	return true
}

// SendStreamEnd forwards a stream/end to the named client.
func (r *Registry) SendStreamEnd(clientID string, roles ...string) bool {
	s := r.Session(clientID)
	if s == nil {
		return false
	}
	s.SendStreamEnd(roles...)
	return true
}

// SendPCM forwards one audio chunk to the named client.
func (r *Registry) SendPCM(clientID string, timestampUS int64, pcm []byte) bool {
	s := r.Session(clientID)
	if s == nil {
		return false
	}
	s.SendPCM(timestampUS, pcm)
	return true
}

// SendServerCommand forwards a server command to the named client.
func (r *Registry) SendServerCommand(clientID string, payload wire.ServerCommandPayload) bool {
	s := r.Session(clientID)
	if s == nil {
		return false
	}
	s.SendServerCommand(payload)
	return true
}

// SendGroupUpdate forwards a group update to the named client.
func (r *Registry) SendGroupUpdate(clientID string, state wire.PlaybackState, groupID, groupName string) bool {
	s := r.Session(clientID)
	if s == nil {
		return false
	}
	s.SendGroupUpdate(state, groupID, groupName)
	return true
}

// SendMetadata forwards metadata to the named client.
func (r *Registry) SendMetadata(clientID string, m wire.Metadata) bool {
	s := r.Session(clientID)
	if s == nil {
		return false
	}
	s.SendMetadata(m)
	return true
}

// SendControllerState forwards controller state to the named client.
func (r *Registry) SendControllerState(clientID string, cs wire.ControllerState) bool {
	s := r.Session(clientID)
	if s == nil {
		return false
	}
	s.SendControllerState(cs)
	return true
}
