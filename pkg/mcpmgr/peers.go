package mcpmgr

import (
	"context"
	"net/url"
	"strings"
	"time"
)

// PeerStatus is the compact status object AddPeer/RemovePeer return, shaped
// so a REST layer built on top needs no translation.
type PeerStatus struct {
	Success       bool   `json:"success"`
	PeerName      string `json:"peer_name"`
	PeerURL       string `json:"peer_url"`
	FunctionCount int    `json:"function_count"`
}

// PeerRegistry is a thin, validating wrapper over Manager that lets
// external API layers add or remove HTTP-transport upstreams at runtime.
type PeerRegistry struct {
	manager *Manager
}

// NewPeerRegistry binds a PeerRegistry to the given Manager.
func NewPeerRegistry(m *Manager) *PeerRegistry { return &PeerRegistry{manager: m} }

// AddPeer validates arguments, refuses a name collision with
// InvalidConfig, and otherwise runs the peer through the same
// initialization path used at boot.
func (r *PeerRegistry) AddPeer(ctx context.Context, name, rawURL, authToken string) (*PeerStatus, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, newError(KindInvalidConfig, name, "peer name must not be empty", nil)
	}
	rawURL = strings.TrimSpace(rawURL)
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, newError(KindInvalidConfig, name, "peer url must be absolute", err)
	}

	params := &HTTPParams{
		BaseParams: BaseParams{Name: name, Enabled: true, TimeoutSeconds: r.manager.defaults.DefaultTimeoutSeconds},
		URL:        rawURL,
	}
	if authToken != "" {
		params.Auth = &AuthConfig{Scheme: AuthSchemeBearer, Token: authToken}
	}

	// registerIfAbsent holds m.mu for the full check+insert, so two
	// concurrent AddPeer calls for the same name can never both win: the
	// loser sees existed=true and returns InvalidConfig having mutated
	// nothing, instead of racing into LoadCatalog's overwrite-on-collision
	// path.
	if existed := r.manager.registerIfAbsent(name, params); existed {
		return nil, newError(KindInvalidConfig, name, "a server with this name already exists", nil)
	}

	r.manager.mu.RLock()
	srv, ok := r.manager.servers[name]
	r.manager.mu.RUnlock()
	if !ok {
		return nil, newError(KindInvalidConfig, name, "failed to register peer", nil)
	}

	if err := r.manager.initializeOne(ctx, name, srv); err != nil {
		return &PeerStatus{Success: false, PeerName: name, PeerURL: rawURL}, err
	}

	_, _, _, catalog := srv.snapshot()
	return &PeerStatus{Success: true, PeerName: name, PeerURL: rawURL, FunctionCount: len(catalog)}, nil
}

// RemovePeer transitions the named server to Closing then Closed and
// removes it from the catalog.
func (r *PeerRegistry) RemovePeer(ctx context.Context, name string) (*PeerStatus, error) {
	name = strings.TrimSpace(name)
	r.manager.mu.Lock()
	srv, ok := r.manager.servers[name]
	if !ok {
		r.manager.mu.Unlock()
		return nil, newError(KindNotFound, name, "unknown peer", nil)
	}
	delete(r.manager.servers, name)
	for i, n := range r.manager.order {
		if n == name {
			r.manager.order = append(r.manager.order[:i], r.manager.order[i+1:]...)
			break
		}
	}
	r.manager.mu.Unlock()

	srv.mu.Lock()
	session := srv.session
	srv.state = StateClosing
	srv.mu.Unlock()

	if session != nil {
		_ = closeWithin(session, 5*time.Second)
	}

	srv.mu.Lock()
	srv.state = StateClosed
	srv.session = nil
	srv.client = nil
	srv.mu.Unlock()

	return &PeerStatus{Success: true, PeerName: name}, nil
}

// ListPeers returns summaries restricted to HTTP-transport servers, which
// is the subset of Manager state peers actually occupy.
func (r *PeerRegistry) ListPeers() []ServerSummary {
	all := r.manager.ListServerSummaries()
	out := make([]ServerSummary, 0, len(all))
	for _, s := range all {
		r.manager.mu.RLock()
		srv, ok := r.manager.servers[s.Name]
		r.manager.mu.RUnlock()
		if !ok {
			continue
		}
		if IsHTTP(srv.params) {
			out = append(out, s)
		}
	}
	return out
}
