package mcpmgr

import (
	"encoding/json"
	"fmt"
	"strings"
)

// catalogDocument mirrors the on-disk catalog file shape: a single
// "mcpServers" object keyed by server name.
type catalogDocument struct {
	MCPServers map[string]catalogEntry `json:"mcpServers"`
}

type catalogEntry struct {
	Type           string            `json:"type,omitempty"`
	Transport      string            `json:"transport,omitempty"`
	Enabled        *bool             `json:"enabled,omitempty"`
	TimeoutSeconds *int              `json:"timeout_seconds,omitempty"`
	Description    string            `json:"description,omitempty"`
	Command        string            `json:"command,omitempty"`
	Args           []string          `json:"args,omitempty"`
	Env            map[string]string `json:"env,omitempty"`
	URL            string            `json:"url,omitempty"`
	Auth           *catalogAuth      `json:"auth,omitempty"`
}

type catalogAuth struct {
	Type       string `json:"type,omitempty"`
	Token      string `json:"token,omitempty"`
	HeaderName string `json:"header_name,omitempty"`
}

// Loader turns catalog JSON into validated ServerParams. It is pure: it
// never performs I/O with upstream servers and never mutates global state.
// A Loader is safe to reuse across calls to Load.
type Loader struct {
	// BasePath resolves the {BASE_PATH} placeholder in stdio env values.
	BasePath string
	// DefaultTimeoutSeconds fills timeoutSeconds when a catalog entry omits
	// it.
	DefaultTimeoutSeconds int
}

// NewLoader constructs a Loader with the manager's configured defaults.
func NewLoader(defaults ManagerDefaults) *Loader {
	timeout := defaults.DefaultTimeoutSeconds
	if timeout <= 0 {
		timeout = 60
	}
	return &Loader{BasePath: defaults.BasePath, DefaultTimeoutSeconds: timeout}
}

// Load parses a catalog document into a name-keyed map of ServerParams.
// Entries with enabled=false are retained rather than dropped, so a
// disabled server still shows up in listings and can be reloaded once
// re-enabled.
func (l *Loader) Load(raw []byte) (map[string]ServerParams, error) {
	var doc catalogDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, newError(KindInvalidConfig, "", "catalog is not valid JSON", err)
	}
	out := make(map[string]ServerParams, len(doc.MCPServers))
	for name, entry := range doc.MCPServers {
		params, err := l.fromEntry(name, entry)
		if err != nil {
			return nil, err
		}
		out[name] = params
	}
	return out, nil
}

func (l *Loader) fromEntry(name string, entry catalogEntry) (ServerParams, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, newError(KindInvalidConfig, name, "server name must not be empty", nil)
	}

	transport := strings.ToLower(strings.TrimSpace(entry.Type))
	if transport == "" {
		transport = strings.ToLower(strings.TrimSpace(entry.Transport))
	}
	if transport == "" {
		// Missing transport defaults to stdio only if command is present.
		if strings.TrimSpace(entry.Command) != "" {
			transport = string(TransportStdio)
		} else {
			return nil, newError(KindInvalidConfig, name, "missing transport field and no command to infer stdio from", nil)
		}
	}

	enabled := true
	if entry.Enabled != nil {
		enabled = *entry.Enabled
	}

	timeoutSeconds := l.DefaultTimeoutSeconds
	if entry.TimeoutSeconds != nil && *entry.TimeoutSeconds > 0 {
		timeoutSeconds = *entry.TimeoutSeconds
	}

	base := BaseParams{
		Name:           name,
		Enabled:        enabled,
		TimeoutSeconds: timeoutSeconds,
		Description:    strings.TrimSpace(entry.Description),
	}

	switch transport {
	case string(TransportStdio):
		command := strings.TrimSpace(entry.Command)
		if command == "" {
			return nil, newError(KindInvalidConfig, name, "stdio transport requires a non-empty command", nil)
		}
		return &StdioParams{
			BaseParams: base,
			Command:    command,
			Args:       append([]string{}, entry.Args...),
			Env:        l.resolveEnv(entry.Env),
		}, nil
	case string(TransportHTTP), "sse":
		url := strings.TrimSpace(entry.URL)
		if url == "" {
			return nil, newError(KindInvalidConfig, name, "http transport requires an absolute url", nil)
		}
		if !looksAbsolute(url) {
			return nil, newError(KindInvalidConfig, name, fmt.Sprintf("url %q is not an absolute URI", url), nil)
		}
		auth, err := l.resolveAuth(name, entry.Auth)
		if err != nil {
			return nil, err
		}
		return &HTTPParams{
			BaseParams: base,
			URL:        url,
			Auth:       auth,
		}, nil
	default:
		return nil, newError(KindInvalidConfig, name, fmt.Sprintf("unknown transport %q", transport), nil)
	}
}

func (l *Loader) resolveEnv(env map[string]string) map[string]string {
	if len(env) == 0 {
		return nil
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = strings.ReplaceAll(v, "{BASE_PATH}", l.BasePath)
	}
	return out
}

func (l *Loader) resolveAuth(server string, auth *catalogAuth) (*AuthConfig, error) {
	if auth == nil {
		return nil, nil
	}
	token := strings.TrimSpace(auth.Token)
	if token == "" {
		return nil, newError(KindInvalidConfig, server, "auth block present but token is empty", nil)
	}
	scheme := AuthSchemeBearer
	switch strings.ToLower(strings.TrimSpace(auth.Type)) {
	case "", "bearer":
		scheme = AuthSchemeBearer
	case "api_key", "apikey":
		scheme = AuthSchemeAPIKey
	default:
		return nil, newError(KindInvalidConfig, server, fmt.Sprintf("unknown auth type %q", auth.Type), nil)
	}
	return &AuthConfig{Scheme: scheme, Token: token, HeaderName: auth.HeaderName}, nil
}

func looksAbsolute(raw string) bool {
	idx := strings.Index(raw, "://")
	return idx > 0
}

// Serialize renders params back into the catalog document shape, the
// inverse of Load.
func Serialize(params map[string]ServerParams) ([]byte, error) {
	doc := catalogDocument{MCPServers: make(map[string]catalogEntry, len(params))}
	for name, p := range params {
		base := p.base()
		entry := catalogEntry{
			Enabled:        &base.Enabled,
			TimeoutSeconds: &base.TimeoutSeconds,
			Description:    base.Description,
		}
		switch v := p.(type) {
		case *StdioParams:
			entry.Type = string(TransportStdio)
			entry.Command = v.Command
			entry.Args = v.Args
			entry.Env = v.Env
		case *HTTPParams:
			entry.Type = string(TransportHTTP)
			entry.URL = v.URL
			if v.Auth != nil {
				entry.Auth = &catalogAuth{
					Type:       string(v.Auth.Scheme),
					Token:      v.Auth.Token,
					HeaderName: v.Auth.HeaderName,
				}
			}
		}
		doc.MCPServers[name] = entry
	}
	return json.MarshalIndent(doc, "", "  ")
}
