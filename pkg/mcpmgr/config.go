package mcpmgr

import (
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RPCDirection represents the direction of an observed JSON-RPC message.
type RPCDirection string

const (
	RPCDirectionSend    RPCDirection = "send"
	RPCDirectionReceive RPCDirection = "receive"
)

// RPCLogEvent encapsulates JSON-RPC traffic for custom logging.
type RPCLogEvent struct {
	Direction RPCDirection
	Message   []byte
	ServerID  string
}

// RPCLogger is invoked for each JSON-RPC message when logging is enabled.
type RPCLogger func(RPCLogEvent)

// AuthScheme identifies how an http ServerParams authenticates outbound
// requests.
type AuthScheme string

const (
	AuthSchemeBearer AuthScheme = "bearer"
	AuthSchemeAPIKey AuthScheme = "apiKey"
)

// AuthConfig describes the auth block of an http ServerParams entry.
type AuthConfig struct {
	Scheme     AuthScheme
	Token      string
	HeaderName string // apiKey only; defaults to "X-API-Key"
}

// Header returns the (name, value) pair to attach to outbound requests.
func (a *AuthConfig) Header() (name, value string) {
	switch a.Scheme {
	case AuthSchemeBearer:
		return "Authorization", "Bearer " + a.Token
	case AuthSchemeAPIKey:
		headerName := a.HeaderName
		if headerName == "" {
			headerName = "X-API-Key"
		}
		return headerName, a.Token
	default:
		return "", ""
	}
}

// BaseParams captures settings shared by all transports: the catalog
// fields common to every entry.
type BaseParams struct {
	Name           string
	Enabled        bool
	TimeoutSeconds int
	Description    string

	// ClientOptions/Version/OnError/LogJSONRPC/RPCLogger are ambient
	// session-construction knobs, not catalog fields.
	ClientOptions mcp.ClientOptions
	Version       string
	OnError       func(error)
	LogJSONRPC    bool
	RPCLogger     RPCLogger
}

func (b *BaseParams) Timeout() time.Duration {
	if b.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(b.TimeoutSeconds) * time.Second
}

// StdioParams describes an MCP server launched via stdio.
type StdioParams struct {
	BaseParams
	Command string
	Args    []string
	Env     map[string]string
}

func (c *StdioParams) base() *BaseParams { return &c.BaseParams }

// HTTPParams describes an MCP server reachable over HTTP transports.
type HTTPParams struct {
	BaseParams
	URL        string
	Auth       *AuthConfig
	HTTPClient *http.Client
	MaxRetries int
	PreferSSE  *bool
}

func (c *HTTPParams) base() *BaseParams { return &c.BaseParams }

// ServerParams is implemented by all transport-specific parameter sets.
type ServerParams interface {
	base() *BaseParams
}

// ManagerDefaults configures manager-wide fallbacks applied when a catalog
// entry omits a value.
type ManagerDefaults struct {
	// DefaultClientName overrides the client name advertised during
	// initialization. When empty, the server name is used.
	DefaultClientName string
	// DefaultClientVersion controls the semantic version reported to servers.
	DefaultClientVersion string
	// DefaultTimeoutSeconds is applied whenever a catalog entry omits an
	// explicit timeoutSeconds.
	DefaultTimeoutSeconds int
	// DefaultCallTimeout bounds a tool invocation when the caller supplies
	// no deadline (default 60s).
	DefaultCallTimeout time.Duration
	// InitDeadline bounds Manager.Initialize as a whole.
	InitDeadline time.Duration
	// MaxConcurrentInit bounds how many servers initialize in parallel.
	MaxConcurrentInit int
	// DefaultClientOptions are merged into each server's BaseParams options
	// prior to connection.
	DefaultClientOptions mcp.ClientOptions
	// DefaultLogJSONRPC toggles console logging of JSON-RPC traffic for all
	// servers unless overridden per server.
	DefaultLogJSONRPC bool
	// RPCLogger provides a custom logger for JSON-RPC traffic; it takes
	// precedence over DefaultLogJSONRPC.
	RPCLogger RPCLogger
	// BasePath resolves the {BASE_PATH} placeholder in stdio env values.
	BasePath string
}

func (o *ManagerDefaults) normalized() ManagerDefaults {
	if o == nil {
		return ManagerDefaults{}
	}
	return *o
}
