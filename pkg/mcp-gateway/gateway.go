package mcpgateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/cors"

	"github.com/mcpfederation/gateway/internal/agent"
	"github.com/mcpfederation/gateway/pkg/mcpmgr"
)

// Gateway is the federation gateway: an MCP server bound to a fixed mount
// path, exposing a fixed six-tool surface backed entirely by a
// *mcpmgr.Manager and an agent.Agent collaborator.
type Gateway struct {
	manager *mcpmgr.Manager
	agent   agent.Agent
	opts    Options

	server        *mcp.Server
	streamHandler *mcp.StreamableHTTPHandler
	httpHandler   http.Handler
	mux           *http.ServeMux

	initialized atomic.Bool

	httpServerMu sync.Mutex
	httpServer   *http.Server
}

// NewGateway builds a Gateway bound to mgr, with a deterministic
// agent.EchoAgent backing the chat tool.
func NewGateway(mgr *mcpmgr.Manager, opts *Options) (*Gateway, error) {
	return NewGatewayWithAgent(mgr, nil, opts)
}

// NewGatewayWithAgent is NewGateway with an explicit agent collaborator,
// letting cmd/gateway (or tests) swap in something other than the stub. If
// a is nil, a deterministic agent.EchoAgent backs the chat tool.
func NewGatewayWithAgent(mgr *mcpmgr.Manager, a agent.Agent, opts *Options) (*Gateway, error) {
	if mgr == nil {
		return nil, fmt.Errorf("mcpgateway: manager is required")
	}
	options := opts.withDefaults()
	if a == nil {
		a = agent.NewEchoAgent("")
	}

	verifier := options.TokenVerifier
	if verifier == nil && options.AuthToken != "" {
		verifier = staticBearerVerifier(options.AuthToken)
	}

	g := &Gateway{
		manager: mgr,
		agent:   a,
		opts:    options,
	}

	g.server = mcp.NewServer(options.Implementation, &mcp.ServerOptions{
		HasTools:     true,
		HasResources: true,
	})
	g.registerTools()
	g.registerResources()

	g.streamHandler = mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return g.server
	}, &options.Streamable)

	g.mux = http.NewServeMux()
	g.mountStreamHandler()
	g.httpHandler = cors.Default().Handler(wrapWithAuth(g.mux, verifier))

	g.initialized.Store(true)
	return g, nil
}

// Handler exposes the HTTP handler that serves the Streamable endpoint
// (and any custom routes registered on ServeMux), wrapped in bearer auth
// and CORS.
func (g *Gateway) Handler() http.Handler {
	return g.httpHandler
}

// ServeMux exposes the underlying mux so callers may register additional
// routes (health checks, metrics) before or after the gateway starts
// serving; net/http.ServeMux permits concurrent registration.
func (g *Gateway) ServeMux() *http.ServeMux {
	return g.mux
}

func (g *Gateway) mountStreamHandler() {
	path := g.opts.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	g.mux.Handle(path, g.streamHandler)
	if !strings.HasSuffix(path, "/") {
		g.mux.Handle(path+"/", g.streamHandler)
	}
}

// ListenAndServe runs an HTTP server until the provided context is cancelled
// or the server stops.
func (g *Gateway) ListenAndServe(ctx context.Context) error {
	g.httpServerMu.Lock()
	if g.httpServer != nil {
		serv := g.httpServer
		g.httpServerMu.Unlock()
		return fmt.Errorf("mcpgateway: server already running on %s", serv.Addr)
	}
	srv := &http.Server{Addr: g.opts.Addr, Handler: g.Handler()}
	g.httpServer = srv
	g.httpServerMu.Unlock()
	defer func() {
		g.httpServerMu.Lock()
		if g.httpServer == srv {
			g.httpServer = nil
		}
		g.httpServerMu.Unlock()
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), g.opts.InitTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown stops the embedded HTTP server if it is running.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.httpServerMu.Lock()
	srv := g.httpServer
	g.httpServer = nil
	g.httpServerMu.Unlock()
	if srv == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return srv.Shutdown(ctx)
}

// toolCallContext bounds a tool handler invocation by opts.InitTimeout when
// the caller's context carries no deadline of its own.
func (g *Gateway) toolCallContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	if _, ok := parent.Deadline(); ok {
		return parent, func() {}
	}
	return context.WithTimeout(parent, g.opts.InitTimeout)
}
