package mcpgateway

import (
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/auth"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Options configure a Gateway instance.
type Options struct {
	// Implementation identifies the gateway's MCP server implementation metadata.
	Implementation *mcp.Implementation
	// Addr controls the listen address used by ListenAndServe. Defaults to ":8700".
	Addr string
	// Path mounts the Streamable handler under a specific HTTP path. Defaults
	// to "/mcp".
	Path string
	// AuthToken, when non-empty, is the single shared bearer secret every
	// inbound request must present. Empty means the endpoint is
	// unauthenticated, which is only appropriate in tests — cmd/gateway
	// refuses to boot without one.
	AuthToken string
	// TokenVerifier overrides the verifier constructed from AuthToken, and is
	// handed to auth.RequireBearerToken as is; most callers should set
	// AuthToken instead.
	TokenVerifier auth.TokenVerifier
	// Streamable tweaks the Streamable HTTP handler behavior passed to
	// mcp.NewStreamableHTTPHandler.
	Streamable mcp.StreamableHTTPOptions
	// Logger receives structured diagnostics.
	Logger *slog.Logger
	// InitTimeout bounds tool-handler calls into the Manager.
	InitTimeout time.Duration
	// CatalogPath and BasePath are surfaced read-only on the config://gateway
	// resource; they otherwise have no effect here.
	CatalogPath string
	BasePath    string
}

func (o *Options) withDefaults() Options {
	if o == nil {
		o = &Options{}
	}
	opts := *o
	if opts.Implementation == nil {
		opts.Implementation = &mcp.Implementation{
			Name:    "mcpgateway",
			Title:   "MCP Federation Gateway",
			Version: "1.0.0",
		}
	} else {
		impl := *opts.Implementation
		opts.Implementation = &impl
	}
	if opts.Addr == "" {
		opts.Addr = ":8700"
	}
	if opts.Path == "" {
		opts.Path = "/mcp"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.InitTimeout <= 0 {
		opts.InitTimeout = 30 * time.Second
	}
	return opts
}
