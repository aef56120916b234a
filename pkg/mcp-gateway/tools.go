package mcpgateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mcpfederation/gateway/pkg/mcpmgr"
)

// registerTools mounts the gateway's fixed six-tool surface. The gateway
// never grows beyond this table — it is the stable, auditable tool list
// the bearer-auth boundary in front of it is meant to protect.
func (g *Gateway) registerTools() {
	g.server.AddTool(&mcp.Tool{
		Name:        "list_mcp_servers",
		Description: "Snapshot of manager state: names, states, and function counts for every configured MCP server.",
		InputSchema: &jsonschema.Schema{Type: "object", Properties: map[string]*jsonschema.Schema{}},
	}, g.handleListMCPServers)

	g.server.AddTool(&mcp.Tool{
		Name:        "get_mcp_server_functions",
		Description: "Tool names exposed by a given server.",
		InputSchema: &jsonschema.Schema{
			Type:     "object",
			Required: []string{"name"},
			Properties: map[string]*jsonschema.Schema{
				"name": {Type: "string", Description: "Server name as it appears in the catalog."},
			},
		},
	}, g.handleGetMCPServerFunctions)

	g.server.AddTool(&mcp.Tool{
		Name:        "reload_mcp_server",
		Description: "Rebuilds one server's session from its catalog params.",
		InputSchema: &jsonschema.Schema{
			Type:     "object",
			Required: []string{"name"},
			Properties: map[string]*jsonschema.Schema{
				"name": {Type: "string", Description: "Server name to reload."},
			},
		},
	}, g.handleReloadMCPServer)

	g.server.AddTool(&mcp.Tool{
		Name:        "reload_all_mcp_servers",
		Description: "Rebuilds every enabled server's session in parallel.",
		InputSchema: &jsonschema.Schema{Type: "object", Properties: map[string]*jsonschema.Schema{}},
	}, g.handleReloadAllMCPServers)

	g.server.AddTool(&mcp.Tool{
		Name:        "get_available_mcp_servers",
		Description: "Names of servers currently in the Ready state.",
		InputSchema: &jsonschema.Schema{Type: "object", Properties: map[string]*jsonschema.Schema{}},
	}, g.handleGetAvailableMCPServers)

	g.server.AddTool(&mcp.Tool{
		Name:        "chat",
		Description: "Delegates a natural-language instruction to the local agent, which may recursively consume this gateway's own toolkits.",
		InputSchema: &jsonschema.Schema{
			Type:     "object",
			Required: []string{"message"},
			Properties: map[string]*jsonschema.Schema{
				"message":        {Type: "string", Description: "Natural language instruction."},
				"modelKey":       {Type: "string", Description: "Optional model selector; the agent decides the default when omitted."},
				"conversationId": {Type: "string", Description: "Optional conversation id for multi-turn tracking."},
			},
		},
	}, g.handleChat)
}

func argString(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", key)
	}
	return s, nil
}

func toolArgs(req *mcp.CallToolRequest) map[string]any {
	if req == nil || req.Params == nil || len(req.Params.Arguments) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(req.Params.Arguments, &m); err != nil {
		return nil
	}
	return m
}

func structuredResult(text string, structured any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content:           []mcp.Content{&mcp.TextContent{Text: text}},
		StructuredContent: structured,
	}
}

func errorResult(err error) (*mcp.CallToolResult, error) {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}, nil
}

func (g *Gateway) handleListMCPServers(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	summaries := g.manager.ListServerSummaries()
	payload := make([]map[string]any, 0, len(summaries))
	for _, s := range summaries {
		payload = append(payload, map[string]any{
			"name":          s.Name,
			"enabled":       s.Enabled,
			"connected":     s.Connected,
			"state":         string(s.State),
			"functionCount": len(s.Functions),
		})
	}
	return structuredResult(fmt.Sprintf("%d configured server(s)", len(payload)), map[string]any{"servers": payload}), nil
}

func (g *Gateway) handleGetMCPServerFunctions(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := argString(toolArgs(req), "name")
	if err != nil {
		return errorResult(err)
	}
	for _, s := range g.manager.ListServerSummaries() {
		if s.Name == name {
			return structuredResult(fmt.Sprintf("%d function(s) on %s", len(s.Functions), name), map[string]any{"functions": s.Functions}), nil
		}
	}
	return errorResult(fmt.Errorf("unknown server %q", name))
}

func (g *Gateway) handleReloadMCPServer(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := argString(toolArgs(req), "name")
	if err != nil {
		return errorResult(err)
	}
	callCtx, cancel := g.toolCallContext(ctx)
	defer cancel()
	if err := g.manager.Reload(callCtx, name); err != nil {
		return errorResult(err)
	}
	return structuredResult(fmt.Sprintf("%s reloaded", name), map[string]any{"name": name, "success": true}), nil
}

func (g *Gateway) handleReloadAllMCPServers(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	callCtx, cancel := g.toolCallContext(ctx)
	defer cancel()
	results := g.manager.ReloadAll(callCtx)
	failed, succeeded := 0, 0
	details := make(map[string]string, len(results))
	for name, err := range results {
		if err != nil {
			failed++
			details[name] = err.Error()
		} else {
			succeeded++
			details[name] = "ok"
		}
	}
	return structuredResult(
		fmt.Sprintf("%d succeeded, %d failed", succeeded, failed),
		map[string]any{"succeeded": succeeded, "failed": failed, "results": details},
	), nil
}

func (g *Gateway) handleGetAvailableMCPServers(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var names []string
	for _, s := range g.manager.ListServerSummaries() {
		if s.Connected {
			names = append(names, s.Name)
		}
	}
	return structuredResult(fmt.Sprintf("%d available server(s)", len(names)), map[string]any{"servers": names}), nil
}

func (g *Gateway) handleChat(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := toolArgs(req)
	message, err := argString(args, "message")
	if err != nil {
		return errorResult(err)
	}
	modelKey, _ := args["modelKey"].(string)
	conversationID, _ := args["conversationId"].(string)

	var toolkits []*mcpmgr.Toolkit
	for _, s := range g.manager.ListServerSummaries() {
		if !s.Connected {
			continue
		}
		tk, err := g.manager.GetToolkit(s.Name, nil)
		if err != nil {
			continue
		}
		toolkits = append(toolkits, tk)
	}

	callCtx, cancel := g.toolCallContext(ctx)
	defer cancel()
	reply, err := g.agent.Run(callCtx, message, conversationID, modelKey, toolkits)
	if err != nil {
		return errorResult(err)
	}
	return structuredResult(reply.Content, map[string]any{
		"success":        true,
		"content":        reply.Content,
		"model":          reply.Model,
		"conversationId": reply.ConversationID,
		"messageId":      reply.MessageID,
	}), nil
}
