// Package mcpmgr provides the process-wide Manager that orchestrates
// startup, per-server state, and ordered shutdown for a federation of
// upstream Model Context Protocol servers. It handles transport setup
// (stdio or streaming HTTP), session lifecycle, toolkit construction, and
// the dynamic peer registry used to add or remove HTTP upstreams after
// boot. Importers construct a single Manager, call Initialize once, and
// rely on getToolkit/reload/shutdown for the remainder of the process
// lifetime.
package mcpmgr

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"
)

// State is a server session's position in its lifecycle:
//
//	Pending -> Initializing -> Ready | Failed -> Closing -> Closed
type State string

const (
	StatePending      State = "Pending"
	StateInitializing State = "Initializing"
	StateReady        State = "Ready"
	StateFailed       State = "Failed"
	StateClosing      State = "Closing"
	StateClosed       State = "Closed"
)

// ServerSummary is the pure, non-suspending read returned by
// Manager.ListServerSummaries.
type ServerSummary struct {
	Name        string
	Enabled     bool
	Connected   bool
	State       State
	Description string
	Functions   []string
}

// InitSummary is the structured report Manager.Initialize emits: which
// servers came up, which failed and why, which were disabled in the
// catalog, a remediation hint per failure, an environment probe, and the
// total time Initialize took.
type InitSummary struct {
	Ready       []string
	Failed      map[string]string
	Hints       map[string]string
	Disabled    []string
	Environment map[string]bool
	Duration    time.Duration
}

// managedServer holds everything the Manager tracks for one catalog entry.
// Its own RWMutex guards state transitions independently of Manager.mu,
// which guards only the server table itself.
type managedServer struct {
	mu sync.RWMutex

	params     ServerParams
	state      State
	toolkit    *Toolkit
	rawCatalog []*mcp.Tool
	lastError  *Error

	client  *mcp.Client
	session *mcp.ClientSession

	registeredAt int

	// reloadMu serializes the close-then-reconnect sequence for this
	// server. Without it, two overlapping Reload calls on the same name
	// (e.g. a manual reload racing a reloadAll sweep) can both dial a
	// fresh session and race to call markReady/markFailed; the loser's
	// session would never be stored anywhere and so never get closed.
	reloadMu sync.Mutex
}

func (s *managedServer) snapshot() (State, ServerParams, *mcp.ClientSession, []*mcp.Tool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, s.params, s.session, s.rawCatalog
}

func (s *managedServer) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *managedServer) markReady(client *mcp.Client, session *mcp.ClientSession, catalog []*mcp.Tool) {
	s.mu.Lock()
	s.state = StateReady
	s.client = client
	s.session = session
	s.rawCatalog = catalog
	s.lastError = nil
	s.toolkit = nil
	s.mu.Unlock()
}

func (s *managedServer) markFailed(err *Error) {
	s.mu.Lock()
	s.state = StateFailed
	s.lastError = err
	s.client = nil
	s.session = nil
	s.mu.Unlock()
}

// Manager orchestrates multiple MCP client sessions.
type Manager struct {
	mu       sync.RWMutex
	defaults ManagerDefaults
	dialer   *dialer
	logger   *slog.Logger

	servers   map[string]*managedServer
	order     []string
	nextOrder int
}

// NewManager constructs an isolated Manager instance. No ambient singleton
// lives in this package; callers own the single process-wide instance,
// which also makes a Manager trivial to construct fresh in tests.
func NewManager(defaults ManagerDefaults, logger *slog.Logger) *Manager {
	defaults = defaults.normalized()
	if defaults.DefaultTimeoutSeconds <= 0 {
		defaults.DefaultTimeoutSeconds = 60
	}
	if defaults.DefaultCallTimeout <= 0 {
		defaults.DefaultCallTimeout = 60 * time.Second
	}
	if defaults.InitDeadline <= 0 {
		defaults.InitDeadline = 2 * time.Minute
	}
	if defaults.MaxConcurrentInit <= 0 {
		defaults.MaxConcurrentInit = 8
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		defaults: defaults,
		dialer:   newDialer(defaults),
		logger:   logger,
		servers:  make(map[string]*managedServer),
	}
}

// LoadCatalog registers a batch of ServerParams as Pending entries. It is
// typically called once at boot with the result of Loader.Load, and again
// whenever a catalog file is hot-reloaded. Existing entries whose names are
// present in the new catalog get the new params in place, whatever their
// state; their live sessions are left untouched until the caller calls
// Reload.
func (m *Manager) LoadCatalog(params map[string]ServerParams) {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, name := range names {
		if _, exists := m.servers[name]; exists {
			m.servers[name].mu.Lock()
			m.servers[name].params = params[name]
			m.servers[name].mu.Unlock()
			continue
		}
		m.servers[name] = &managedServer{params: params[name], state: StatePending, registeredAt: m.nextOrder}
		m.order = append(m.order, name)
		m.nextOrder++
	}
}

// registerIfAbsent atomically checks for and inserts a single new catalog
// entry under one hold of m.mu, returning existed=true (and touching no
// state) when the name was already present. AddPeer uses this instead of
// LoadCatalog so the name-uniqueness invariant (spec §3 invariant 1) holds
// even when two registrations of the same name race: LoadCatalog silently
// overwrites an existing entry's params, which is correct for its batch
// hot-reload use but wrong for a uniqueness-checked peer add.
func (m *Manager) registerIfAbsent(name string, params ServerParams) (existed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.servers[name]; exists {
		return true
	}
	m.servers[name] = &managedServer{params: params, state: StatePending, registeredAt: m.nextOrder}
	m.order = append(m.order, name)
	m.nextOrder++
	return false
}

// Initialize brings every enabled Pending server to a terminal state
// (Ready or Failed), bounded by the global init deadline, with bounded
// concurrency across servers. A single server's failure never aborts the
// others.
func (m *Manager) Initialize(ctx context.Context) *InitSummary {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, m.defaults.InitDeadline)
	defer cancel()

	names := m.ListServers()
	summary := &InitSummary{Failed: make(map[string]string), Hints: make(map[string]string)}

	group, gctx := errgroup.WithContext(context.Background())
	group.SetLimit(m.defaults.MaxConcurrentInit)
	var mu sync.Mutex

	for _, name := range names {
		name := name
		m.mu.RLock()
		srv, ok := m.servers[name]
		m.mu.RUnlock()
		if !ok {
			continue
		}
		if !Enabled(srv.params) {
			mu.Lock()
			summary.Disabled = append(summary.Disabled, name)
			mu.Unlock()
			continue
		}
		group.Go(func() error {
			err := m.initializeOne(selectCtx(ctx, gctx), name, srv)
			mu.Lock()
			if err != nil {
				summary.Failed[name] = err.Error()
				if me, ok := err.(*Error); ok {
					summary.Hints[name] = me.Hint()
				}
			} else {
				summary.Ready = append(summary.Ready, name)
			}
			mu.Unlock()
			return nil // init-time errors are swallowed into lastError, never propagated
		})
	}
	_ = group.Wait()

	sort.Strings(summary.Ready)
	sort.Strings(summary.Disabled)
	summary.Environment = probeEnvironment()
	summary.Duration = time.Since(start)
	m.logger.Info("mcpmgr: initialize complete",
		"ready", summary.Ready, "failed", summary.Failed, "disabled", summary.Disabled, "duration", summary.Duration)
	return summary
}

func selectCtx(outer, inner context.Context) context.Context {
	// errgroup's derived context cancels siblings on the first error; since
	// initializeOne never returns an error to the group, inner never
	// cancels early. Prefer outer so the global deadline still applies.
	return outer
}

func (m *Manager) initializeOne(ctx context.Context, name string, srv *managedServer) error {
	traceID := uuid.NewString()
	srv.setState(StateInitializing)
	m.logger.Debug("mcpmgr: connecting", "server", name, "trace_id", traceID)
	session, client, err := m.dialer.connect(ctx, name, srv.params)
	if err != nil {
		merr, ok := err.(*Error)
		if !ok {
			merr = newError(KindConnectionError, name, "", err)
		}
		m.logger.Warn("mcpmgr: connect failed", "server", name, "trace_id", traceID, "err", merr)
		srv.markFailed(merr)
		return merr
	}
	tools, err := listToolsCatalog(ctx, session)
	if err != nil {
		srv.markFailed(newError(KindConnectionError, name, "failed to enumerate tools after connect", err))
		_ = session.Close()
		return newError(KindConnectionError, name, "failed to enumerate tools after connect", err)
	}
	srv.markReady(client, session, tools)
	go m.monitorSession(name, srv, session)
	return nil
}

func (m *Manager) monitorSession(name string, srv *managedServer, session *mcp.ClientSession) {
	err := session.Wait()
	srv.mu.Lock()
	if srv.session == session {
		if err != nil {
			srv.state = StateFailed
			srv.lastError = newError(KindConnectionError, name, "upstream session ended unexpectedly", err)
		} else if srv.state != StateClosing && srv.state != StateClosed {
			srv.state = StateFailed
			srv.lastError = newError(KindConnectionError, name, "upstream session ended", nil)
		}
		srv.session = nil
		srv.client = nil
	}
	srv.mu.Unlock()
}

func listToolsCatalog(ctx context.Context, session *mcp.ClientSession) ([]*mcp.Tool, error) {
	res, err := session.ListTools(ctx, nil)
	if err != nil {
		if isMethodUnavailableError(err) {
			return []*mcp.Tool{}, nil
		}
		return nil, err
	}
	return res.Tools, nil
}

// ListServers returns known server names in registration order.
func (m *Manager) ListServers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// ListServerSummaries returns a pure, non-suspending snapshot of every
// known server.
func (m *Manager) ListServerSummaries() []ServerSummary {
	names := m.ListServers()
	out := make([]ServerSummary, 0, len(names))
	for _, name := range names {
		m.mu.RLock()
		srv, ok := m.servers[name]
		m.mu.RUnlock()
		if !ok {
			continue
		}
		state, params, _, catalog := srv.snapshot()
		base := params.base()
		fns := make([]string, 0, len(catalog))
		for _, t := range catalog {
			fns = append(fns, t.Name)
		}
		out = append(out, ServerSummary{
			Name:        name,
			Enabled:     base.Enabled,
			Connected:   state == StateReady,
			State:       state,
			Description: base.Description,
			Functions:   fns,
		})
	}
	return out
}

// GetToolkit resolves a filtered Toolkit for serverName. It never blocks on
// network I/O — it reads the server's current snapshot and fails fast if
// the session isn't Ready.
func (m *Manager) GetToolkit(serverName string, allowedFunctions []string) (*Toolkit, error) {
	m.mu.RLock()
	srv, ok := m.servers[serverName]
	m.mu.RUnlock()
	if !ok {
		return nil, newError(KindNotFound, serverName, "unknown server", nil)
	}
	state, params, session, catalog := srv.snapshot()
	if !Enabled(params) {
		return nil, newError(KindDisabled, serverName, "server disabled in catalog", nil)
	}
	if state != StateReady || session == nil {
		return nil, newError(KindNotReady, serverName, fmt.Sprintf("session is %s, not Ready", state), nil)
	}
	invoke := func(ctx context.Context, toolName string, args map[string]any) (*mcp.CallToolResult, error) {
		return m.invoke(ctx, serverName, toolName, args)
	}
	return NewToolkit(serverName, catalog, allowedFunctions, invoke), nil
}

// invoke routes a single tool call through the server's live session,
// applying the default call timeout when the caller's context carries none,
// and reclassifying a mid-call transport death as ToolExecutionError while
// transitioning the session to Failed.
func (m *Manager) invoke(ctx context.Context, serverName, toolName string, args map[string]any) (*mcp.CallToolResult, error) {
	m.mu.RLock()
	srv, ok := m.servers[serverName]
	m.mu.RUnlock()
	if !ok {
		return nil, newError(KindNotFound, serverName, "unknown server", nil)
	}
	state, _, session, _ := srv.snapshot()
	if state != StateReady || session == nil {
		return nil, newError(KindNotReady, serverName, "tool call observed a session not in Ready", nil)
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		callCtx, cancel = context.WithTimeout(ctx, m.defaults.DefaultCallTimeout)
		defer cancel()
	}

	result, err := session.CallTool(callCtx, &mcp.CallToolParams{Name: toolName, Arguments: args})
	if err != nil {
		if callCtx.Err() == context.Canceled {
			return nil, newError(KindCancelled, serverName, fmt.Sprintf("tool %q invocation cancelled", toolName), nil)
		}
		if callCtx.Err() == context.DeadlineExceeded {
			return nil, newError(KindToolExecutionError, serverName, "deadlineExceeded", err)
		}
		srv.markFailed(newError(KindConnectionError, serverName, "transport dropped mid-call", err))
		return nil, newError(KindToolExecutionError, serverName, fmt.Sprintf("tool %q failed", toolName), err)
	}
	return result, nil
}

// Reload closes the existing session (if any) and rebuilds it from the
// server's params. Concurrent reloads of the same server serialize on
// srv.reloadMu; reloads of different servers proceed independently.
func (m *Manager) Reload(ctx context.Context, serverName string) error {
	m.mu.RLock()
	srv, ok := m.servers[serverName]
	m.mu.RUnlock()
	if !ok {
		return newError(KindNotFound, serverName, "unknown server", nil)
	}

	srv.reloadMu.Lock()
	defer srv.reloadMu.Unlock()

	srv.mu.Lock()
	params := srv.params
	oldSession := srv.session
	oldCatalog := srv.rawCatalog
	srv.state = StateClosing
	srv.mu.Unlock()

	if oldSession != nil {
		if err := closeWithin(oldSession, 5*time.Second); err != nil {
			m.logger.Warn("mcpmgr: close during reload failed", "server", serverName, "err", err)
		}
	}

	if !Enabled(params) {
		srv.setState(StatePending)
		return newError(KindDisabled, serverName, "server disabled in catalog", nil)
	}

	if err := m.initializeOne(ctx, serverName, srv); err != nil {
		return err
	}
	_, _, _, newCatalog := srv.snapshot()
	removed, added := diffToolNames(oldCatalog, newCatalog)
	if len(removed) > 0 || len(added) > 0 {
		m.logger.Info("mcpmgr: reload changed tool catalog", "server", serverName, "removed", removed, "added", added)
	}
	return nil
}

// ReloadAll applies Reload to every enabled server; different servers
// proceed in parallel.
func (m *Manager) ReloadAll(ctx context.Context) map[string]error {
	names := m.ListServers()
	results := make(map[string]error, len(names))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, name := range names {
		m.mu.RLock()
		srv, ok := m.servers[name]
		m.mu.RUnlock()
		if !ok || !Enabled(srv.params) {
			continue
		}
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			err := m.Reload(ctx, name)
			mu.Lock()
			results[name] = err
			mu.Unlock()
		}(name)
	}
	wg.Wait()
	return results
}

// Shutdown closes every session in reverse registration order, swallowing
// and logging cleanup errors. Idempotent.
func (m *Manager) Shutdown(ctx context.Context) error {
	names := m.ListServers()
	for i := len(names) - 1; i >= 0; i-- {
		name := names[i]
		m.mu.RLock()
		srv, ok := m.servers[name]
		m.mu.RUnlock()
		if !ok {
			continue
		}
		srv.mu.Lock()
		session := srv.session
		if srv.state != StateClosed {
			srv.state = StateClosing
		}
		srv.mu.Unlock()
		if session != nil {
			if err := closeWithin(session, 5*time.Second); err != nil {
				m.logger.Warn("mcpmgr: shutdown close failed", "server", name, "err", err)
			}
		}
		srv.mu.Lock()
		srv.state = StateClosed
		srv.session = nil
		srv.client = nil
		srv.mu.Unlock()
	}
	return nil
}

func closeWithin(session *mcp.ClientSession, d time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- session.Close() }()
	select {
	case err := <-done:
		return err
	case <-time.After(d):
		return fmt.Errorf("mcpmgr: close did not complete within %s", d)
	}
}
