package mcpmgr

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolDescriptor is the copy-at-bind-time view of one tool exposed by a
// session. Its three public attributes remain valid even after the
// underlying session has been re-enumerated.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
	ServerName  string // weak back-reference; never used for ownership
}

// Capability is the explicit interface an LLM agent binds against instead of
// a duck-typed tool object. Both stdio- and http-backed toolkits satisfy it
// identically.
type Capability interface {
	Name() string
	Description() string
	InputSchema() *jsonschema.Schema
	Invoke(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error)
}

// Toolkit is a filtered, caller-owned view over a session's live tool
// catalog. Mutating a caller's copy of the allow-list never affects the
// session it was built from.
type Toolkit struct {
	ServerName   string
	AllowedNames map[string]struct{} // nil means "all"
	Tools        []ToolDescriptor

	invoke func(ctx context.Context, toolName string, args map[string]any) (*mcp.CallToolResult, error)
}

// NewToolkit filters catalog against allowedNames (whitespace trimmed,
// case-sensitive match) and copies each tool's name/description/inputSchema
// so later re-enumeration of the session cannot mutate a previously
// handed-out Toolkit.
func NewToolkit(serverName string, catalog []*mcp.Tool, allowedNames []string, invoke func(context.Context, string, map[string]any) (*mcp.CallToolResult, error)) *Toolkit {
	var allowSet map[string]struct{}
	if allowedNames != nil {
		allowSet = make(map[string]struct{}, len(allowedNames))
		for _, n := range allowedNames {
			allowSet[strings.TrimSpace(n)] = struct{}{}
		}
	}
	tools := make([]ToolDescriptor, 0, len(catalog))
	for _, t := range catalog {
		if allowSet != nil {
			if _, ok := allowSet[t.Name]; !ok {
				continue
			}
		}
		schema, _ := t.InputSchema.(*jsonschema.Schema)
		tools = append(tools, ToolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
			ServerName:  serverName,
		})
	}
	return &Toolkit{ServerName: serverName, AllowedNames: allowSet, Tools: tools, invoke: invoke}
}

// Capabilities adapts every tool in the Toolkit to the Capability interface.
func (tk *Toolkit) Capabilities() []Capability {
	out := make([]Capability, 0, len(tk.Tools))
	for i := range tk.Tools {
		out = append(out, &boundTool{desc: tk.Tools[i], invoke: tk.invoke})
	}
	return out
}

// Has reports whether name is present in the filtered tool set.
func (tk *Toolkit) Has(name string) bool {
	for _, t := range tk.Tools {
		if t.Name == name {
			return true
		}
	}
	return false
}

// diffToolNames reports which tool names disappeared and which appeared
// between two raw catalog snapshots, by name only. Reload uses this purely
// for diagnostics: the invalidation itself is the atomic toolkit swap under
// managedServer.mu, not this diff.
func diffToolNames(before, after []*mcp.Tool) (removed, added []string) {
	beforeSet := make(map[string]struct{}, len(before))
	for _, t := range before {
		beforeSet[t.Name] = struct{}{}
	}
	afterSet := make(map[string]struct{}, len(after))
	for _, t := range after {
		afterSet[t.Name] = struct{}{}
	}
	for name := range beforeSet {
		if _, ok := afterSet[name]; !ok {
			removed = append(removed, name)
		}
	}
	for name := range afterSet {
		if _, ok := beforeSet[name]; !ok {
			added = append(added, name)
		}
	}
	return removed, added
}

type boundTool struct {
	desc   ToolDescriptor
	invoke func(context.Context, string, map[string]any) (*mcp.CallToolResult, error)
}

func (b *boundTool) Name() string                  { return b.desc.Name }
func (b *boundTool) Description() string           { return b.desc.Description }
func (b *boundTool) InputSchema() *jsonschema.Schema { return b.desc.InputSchema }

func (b *boundTool) Invoke(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	if err := validateArgs(b.desc.Name, b.desc.ServerName, b.desc.InputSchema, args); err != nil {
		return nil, err
	}
	return b.invoke(ctx, b.desc.Name, args)
}

// validateArgs performs a shallow check against a tool's input schema:
// required fields present, types match primitives. It never touches
// transport.
func validateArgs(toolName, serverName string, schema *jsonschema.Schema, args map[string]any) error {
	if schema == nil {
		return nil
	}
	for _, required := range schema.Required {
		if _, ok := args[required]; !ok {
			return newError(KindInvalidArgs, serverName, fmt.Sprintf("tool %q: missing required argument %q", toolName, required), nil)
		}
	}
	for name, propSchema := range schema.Properties {
		val, ok := args[name]
		if !ok || propSchema == nil || propSchema.Type == "" {
			continue
		}
		if !primitiveTypeMatches(propSchema.Type, val) {
			return newError(KindInvalidArgs, serverName, fmt.Sprintf("tool %q: argument %q expected type %q", toolName, name, propSchema.Type), nil)
		}
	}
	return nil
}

func primitiveTypeMatches(schemaType string, val any) bool {
	switch schemaType {
	case "string":
		_, ok := val.(string)
		return ok
	case "boolean":
		_, ok := val.(bool)
		return ok
	case "number", "integer":
		switch val.(type) {
		case float64, float32, int, int32, int64:
			return true
		default:
			return false
		}
	case "array":
		_, ok := val.([]any)
		return ok
	case "object":
		_, ok := val.(map[string]any)
		return ok
	default:
		return true
	}
}
