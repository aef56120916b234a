package mcpmgr

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func secondsToDuration(seconds int) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func withTimeoutSeconds(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// sessionIDHeaderName is the header the HTTP driver uses to replay a
// negotiated MCP-Session-Id on subsequent requests.
const sessionIDHeaderName = "Mcp-Session-Id"

// HTTPAuthProvider dynamically supplies an Authorization header for outbound
// HTTP requests initiated by a session.
type HTTPAuthProvider func(context.Context) (string, error)

// dialer opens a transport-specific mcp.Client session for one ServerParams,
// establishing the handshake and returning a live *mcp.ClientSession, or a
// typed *Error on failure.
type dialer struct {
	defaults ManagerDefaults
}

func newDialer(defaults ManagerDefaults) *dialer { return &dialer{defaults: defaults} }

func (d *dialer) connect(ctx context.Context, serverID string, params ServerParams) (*mcp.ClientSession, *mcp.Client, error) {
	base := params.base()
	impl := &mcp.Implementation{
		Name:    d.clientName(serverID),
		Version: d.clientVersion(base),
	}
	clientOpts := d.composeClientOptions(base)
	logger := d.resolveLogger(base)

	timeout := base.Timeout()
	if timeout <= 0 {
		if d.defaults.DefaultTimeoutSeconds > 0 {
			timeout = secondsToDuration(d.defaults.DefaultTimeoutSeconds)
		}
	}
	connectCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		connectCtx, cancel = withTimeoutSeconds(ctx, timeout)
		defer cancel()
	}

	attempt := func(ctx context.Context, transport mcp.Transport) (*mcp.ClientSession, *mcp.Client, error) {
		client := mcp.NewClient(impl, &clientOpts)
		wrapped := transport
		if logger != nil {
			wrapped = &loggingTransport{serverID: serverID, delegate: transport, logger: logger}
		}
		session, err := client.Connect(ctx, wrapped, nil)
		if err != nil {
			return nil, nil, err
		}
		return session, client, nil
	}

	switch p := params.(type) {
	case *StdioParams:
		transport, err := buildStdioTransport(serverID, p)
		if err != nil {
			return nil, nil, err
		}
		session, client, err := attempt(connectCtx, transport)
		if err != nil {
			return nil, nil, classifyConnectError(serverID, "stdio", err)
		}
		return session, client, nil
	case *HTTPParams:
		return d.connectHTTP(connectCtx, serverID, p, attempt)
	default:
		return nil, nil, newError(KindInvalidConfig, serverID, "unsupported transport params type", nil)
	}
}

func (d *dialer) connectHTTP(ctx context.Context, serverID string, p *HTTPParams, attempt func(context.Context, mcp.Transport) (*mcp.ClientSession, *mcp.Client, error)) (*mcp.ClientSession, *mcp.Client, error) {
	if p.URL == "" {
		return nil, nil, newError(KindInvalidConfig, serverID, "endpoint missing", nil)
	}
	tracker := newSessionIDTracker("")
	headers := http.Header{}
	if p.Auth != nil {
		name, value := p.Auth.Header()
		if name != "" {
			headers.Set(name, value)
		}
	}

	preferSSE := shouldPreferSSE(p)
	streamClient := decorateHTTPClient(p.HTTPClient, headers, tracker, nil)
	streamableTransport := &mcp.StreamableClientTransport{
		Endpoint:   p.URL,
		HTTPClient: streamClient,
		MaxRetries: p.MaxRetries,
	}

	sseClient := decorateHTTPClient(p.HTTPClient, headers, tracker, nil)
	sseTransport := &mcp.SSEClientTransport{Endpoint: p.URL, HTTPClient: sseClient}

	var streamErr error
	if !preferSSE {
		session, client, err := attempt(ctx, streamableTransport)
		if err == nil {
			if session != nil {
				tracker.Set(session.ID())
			}
			return session, client, nil
		}
		streamErr = err
	}
	session, client, err := attempt(ctx, sseTransport)
	if err != nil {
		if streamErr != nil {
			return nil, nil, classifyConnectError(serverID, "http", fmt.Errorf("streamable: %w; sse: %v", streamErr, err))
		}
		return nil, nil, classifyConnectError(serverID, "http", err)
	}
	if session != nil {
		tracker.Set(session.ID())
	}
	return session, client, nil
}

// classifyConnectError maps a raw SDK/transport error into the closed
// error-kind enum, distinguishing a timed-out handshake from every other
// connection failure.
func classifyConnectError(serverID, transport string, err error) *Error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "context deadline") || strings.Contains(msg, "timeout"):
		return newError(KindConnectionTimeout, serverID, fmt.Sprintf("%s handshake exceeded configured timeout", transport), err)
	default:
		return newError(KindConnectionError, serverID, fmt.Sprintf("%s transport failed", transport), err)
	}
}

func buildStdioTransport(serverID string, p *StdioParams) (mcp.Transport, error) {
	if strings.TrimSpace(p.Command) == "" {
		return nil, newError(KindInvalidConfig, serverID, "command missing", nil)
	}
	cmd := exec.Command(p.Command, p.Args...)
	if len(p.Env) > 0 {
		env := os.Environ()
		for k, v := range p.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		cmd.Env = env
	}
	return &mcp.CommandTransport{Command: cmd}, nil
}

func (d *dialer) clientName(serverID string) string {
	if d.defaults.DefaultClientName != "" {
		return d.defaults.DefaultClientName
	}
	return serverID
}

func (d *dialer) clientVersion(base *BaseParams) string {
	if base.Version != "" {
		return base.Version
	}
	if d.defaults.DefaultClientVersion != "" {
		return d.defaults.DefaultClientVersion
	}
	return "1.0.0"
}

func (d *dialer) composeClientOptions(base *BaseParams) mcp.ClientOptions {
	opts := d.defaults.DefaultClientOptions
	mergeClientOptions(&opts, &base.ClientOptions)
	return opts
}

func (d *dialer) resolveLogger(base *BaseParams) RPCLogger {
	if base.RPCLogger != nil {
		return base.RPCLogger
	}
	if d.defaults.RPCLogger != nil {
		return d.defaults.RPCLogger
	}
	if base.LogJSONRPC || d.defaults.DefaultLogJSONRPC {
		return func(event RPCLogEvent) {
			fmt.Printf("[mcpmgr:%s] %s %s\n", event.ServerID, strings.ToUpper(string(event.Direction)), string(event.Message))
		}
	}
	return nil
}

func mergeClientOptions(dst, src *mcp.ClientOptions) {
	if src == nil {
		return
	}
	if src.CreateMessageHandler != nil {
		dst.CreateMessageHandler = src.CreateMessageHandler
	}
	if src.ElicitationHandler != nil {
		dst.ElicitationHandler = src.ElicitationHandler
	}
	if src.ToolListChangedHandler != nil {
		dst.ToolListChangedHandler = src.ToolListChangedHandler
	}
	if src.PromptListChangedHandler != nil {
		dst.PromptListChangedHandler = src.PromptListChangedHandler
	}
	if src.ResourceListChangedHandler != nil {
		dst.ResourceListChangedHandler = src.ResourceListChangedHandler
	}
	if src.ResourceUpdatedHandler != nil {
		dst.ResourceUpdatedHandler = src.ResourceUpdatedHandler
	}
	if src.LoggingMessageHandler != nil {
		dst.LoggingMessageHandler = src.LoggingMessageHandler
	}
	if src.ProgressNotificationHandler != nil {
		dst.ProgressNotificationHandler = src.ProgressNotificationHandler
	}
	if src.KeepAlive != 0 {
		dst.KeepAlive = src.KeepAlive
	}
}

func shouldPreferSSE(p *HTTPParams) bool {
	if p.PreferSSE != nil {
		return *p.PreferSSE
	}
	return strings.HasSuffix(strings.TrimSpace(p.URL), "/sse")
}

type sessionIDTracker struct {
	mu    sync.RWMutex
	value string
}

func newSessionIDTracker(initial string) *sessionIDTracker {
	return &sessionIDTracker{value: initial}
}

func (s *sessionIDTracker) Set(value string) {
	s.mu.Lock()
	s.value = value
	s.mu.Unlock()
}

func (s *sessionIDTracker) Value() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

func decorateHTTPClient(base *http.Client, headers http.Header, tracker *sessionIDTracker, provider HTTPAuthProvider) *http.Client {
	if base == nil {
		base = http.DefaultClient
	}
	clone := *base
	clone.Transport = &headerDecorator{
		next:         defaultRoundTripper(base.Transport),
		headers:      cloneHeader(headers),
		tracker:      tracker,
		authProvider: provider,
	}
	return &clone
}

func cloneHeader(h http.Header) http.Header {
	if len(h) == 0 {
		return nil
	}
	clone := make(http.Header, len(h))
	for k, values := range h {
		clone[k] = append([]string(nil), values...)
	}
	return clone
}

type headerDecorator struct {
	next         http.RoundTripper
	headers      http.Header
	tracker      *sessionIDTracker
	authProvider HTTPAuthProvider
}

func (d *headerDecorator) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	for k, values := range d.headers {
		req.Header.Del(k)
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	if d.tracker != nil {
		if sessionID := d.tracker.Value(); sessionID != "" {
			req.Header.Set(sessionIDHeaderName, sessionID)
		}
	}
	if d.authProvider != nil && req.Header.Get("Authorization") == "" {
		token, err := d.authProvider(req.Context())
		if err != nil {
			return nil, err
		}
		if token != "" {
			req.Header.Set("Authorization", token)
		}
	}
	return d.next.RoundTrip(req)
}

func defaultRoundTripper(next http.RoundTripper) http.RoundTripper {
	if next != nil {
		return next
	}
	return http.DefaultTransport
}

// loggingTransport wraps an mcp.Transport so every frame crossing the wire
// for one server also reaches that server's RPCLogger, if one is
// configured. It changes nothing about how the wrapped transport behaves.
type loggingTransport struct {
	serverID string
	delegate mcp.Transport
	logger   RPCLogger
}

func (t *loggingTransport) Connect(ctx context.Context) (mcp.Connection, error) {
	conn, err := t.delegate.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &loggingConnection{Connection: conn, serverID: t.serverID, logger: t.logger}, nil
}

// loggingConnection embeds the underlying mcp.Connection so Close and
// SessionID pass straight through; only Read and Write are intercepted to
// fan each frame out to logger before returning it to the caller.
type loggingConnection struct {
	mcp.Connection
	serverID string
	logger   RPCLogger
	mu       sync.Mutex
}

func (c *loggingConnection) Read(ctx context.Context) (jsonrpc.Message, error) {
	msg, err := c.Connection.Read(ctx)
	if err == nil {
		c.log(RPCDirectionReceive, msg)
	}
	return msg, err
}

func (c *loggingConnection) Write(ctx context.Context, msg jsonrpc.Message) error {
	if err := c.Connection.Write(ctx, msg); err != nil {
		return err
	}
	c.log(RPCDirectionSend, msg)
	return nil
}

func (c *loggingConnection) log(direction RPCDirection, msg jsonrpc.Message) {
	if c.logger == nil {
		return
	}
	encoded, err := json.Marshal(msg)
	if err != nil {
		encoded = []byte(err.Error())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger(RPCLogEvent{Direction: direction, Message: encoded, ServerID: c.serverID})
}

func isMethodUnavailableError(err error) bool {
	if err == nil {
		return false
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "method not found") ||
		strings.Contains(lower, "not implemented") ||
		strings.Contains(lower, "unsupported") ||
		strings.Contains(lower, "unimplemented")
}
